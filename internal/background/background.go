// Package background runs best-effort side work detached from the request
// that triggered it. Task failures are logged and never returned.
package background

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const DefaultTimeout = 10 * time.Second

type Group struct {
	wg      sync.WaitGroup
	timeout time.Duration
	logger  *zap.Logger
}

func NewGroup(timeout time.Duration, logger *zap.Logger) *Group {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Group{timeout: timeout, logger: logger}
}

// Go starts fn in its own goroutine. fn receives a context that keeps the
// values of ctx but not its cancellation, bounded by the group timeout.
func (g *Group) Go(ctx context.Context, name string, fn func(ctx context.Context) error) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				g.logger.Error("Background task panicked",
					zap.String("task", name),
					zap.String("panic", fmt.Sprint(r)))
			}
		}()

		taskCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.timeout)
		defer cancel()

		if err := fn(taskCtx); err != nil {
			g.logger.Warn("Background task failed",
				zap.String("task", name),
				zap.Error(err))
		}
	}()
}

// Wait blocks until every started task has finished.
func (g *Group) Wait() {
	g.wg.Wait()
}
