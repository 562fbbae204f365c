// Package provider wraps the external text generation endpoints behind a
// single interface and classifies their failures.
package provider

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xaenox/x-agent/internal/failure"
	"github.com/xaenox/x-agent/internal/metrics"
)

// Document is a binary attachment sent inline with a prompt.
type Document struct {
	Data     []byte
	MimeType string
}

// Request is one generation call.
type Request struct {
	System   string
	Prompt   string
	Document *Document
}

// Provider performs a single generation call and returns the raw reply text.
// Failures are *failure.Error values.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (string, error)
}

// newLimiter spreads calls evenly over a minute. Zero disables throttling.
func newLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 1)
}

func throttle(ctx context.Context, l *rate.Limiter, name string) error {
	if l == nil {
		return nil
	}
	if err := l.Wait(ctx); err != nil {
		return &failure.Error{Kind: failure.KindProvider, Provider: name, Message: "request throttle aborted", Err: err}
	}
	return nil
}

func record(m *metrics.Metrics, logger *zap.Logger, name string, err error) {
	if err == nil {
		m.ProviderCall(name, "ok")
		return
	}
	kind := failure.KindOf(err)
	m.ProviderCall(name, string(kind))
	logger.Warn("Provider call failed",
		zap.String("provider", name),
		zap.String("kind", string(kind)),
		zap.Error(err))
}
