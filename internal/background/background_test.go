package background

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestGroupRunsDetachedFromCallerCancellation(t *testing.T) {
	g := NewGroup(time.Second, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	var sawErr atomic.Value
	g.Go(ctx, "save", func(taskCtx context.Context) error {
		time.Sleep(10 * time.Millisecond)
		sawErr.Store(taskCtx.Err() == nil)
		return nil
	})
	cancel()
	g.Wait()

	assert.Equal(t, true, sawErr.Load())
}

func TestGroupSwallowsErrorsAndPanics(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	g := NewGroup(0, zap.New(core))

	g.Go(context.Background(), "fails", func(context.Context) error { return errors.New("db down") })
	g.Go(context.Background(), "panics", func(context.Context) error { panic("boom") })
	g.Wait()

	assert.Equal(t, 1, logs.FilterMessage("Background task failed").Len())
	assert.Equal(t, 1, logs.FilterMessage("Background task panicked").Len())
}

func TestGroupAppliesTimeout(t *testing.T) {
	g := NewGroup(20*time.Millisecond, zap.NewNop())

	var deadlineHit atomic.Bool
	g.Go(context.Background(), "slow", func(ctx context.Context) error {
		<-ctx.Done()
		deadlineHit.Store(errors.Is(ctx.Err(), context.DeadlineExceeded))
		return ctx.Err()
	})
	g.Wait()

	assert.True(t, deadlineHit.Load())
}
