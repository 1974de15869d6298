package services

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Pinger is the part of the backend pool the probe needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ConnectivityProbe tracks whether the backend answers. It starts offline, so
// the first successful check counts as a reconnect.
type ConnectivityProbe struct {
	pinger  Pinger
	timeout time.Duration
	logger  *slog.Logger
	online  atomic.Bool

	mu          sync.Mutex
	onReconnect []func(context.Context)
}

func NewConnectivityProbe(pinger Pinger, timeout time.Duration, logger *slog.Logger) *ConnectivityProbe {
	return &ConnectivityProbe{
		pinger:  pinger,
		timeout: timeout,
		logger:  logger.With("component", "connectivity"),
	}
}

func (p *ConnectivityProbe) Online() bool {
	return p.online.Load()
}

// OnReconnect registers fn to run after every offline to online transition.
func (p *ConnectivityProbe) OnReconnect(fn func(context.Context)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onReconnect = append(p.onReconnect, fn)
}

// Check pings the backend once and reports the resulting state.
func (p *ConnectivityProbe) Check(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, p.timeout)
	err := p.pinger.Ping(pingCtx)
	cancel()

	online := err == nil
	was := p.online.Swap(online)
	switch {
	case online && !was:
		p.logger.Info("backend reachable")
		p.mu.Lock()
		hooks := append([]func(context.Context){}, p.onReconnect...)
		p.mu.Unlock()
		for _, fn := range hooks {
			fn(ctx)
		}
	case !online && was:
		p.logger.Warn("backend unreachable, working offline", "error", err)
	}
	return online
}

// Sync lets the probe run on the scheduler.
func (p *ConnectivityProbe) Sync(ctx context.Context) error {
	p.Check(ctx)
	return nil
}
