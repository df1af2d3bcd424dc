package relay

import (
	"context"
	"errors"
	"sync"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/pairshare/pairshare/internal/audit"
	"github.com/pairshare/pairshare/internal/sessions"
)

// Reaper periodically expires sessions that have been idle for longer than
// the engine's IdleTimeout.
type Reaper struct {
	engine *Engine
	clock  clockwork.Clock
	logger *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewReaper creates a reaper for engine. A nil clock uses wall-clock time.
func NewReaper(engine *Engine, clock clockwork.Clock, logger *zap.Logger) *Reaper {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reaper{
		engine: engine,
		clock:  clock,
		logger: logger,
	}
}

// Start launches the sweep loop. Calling Start on a running reaper is a no-op.
func (r *Reaper) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.running = true

	interval := r.engine.config.ReapInterval
	ticker := r.clock.NewTicker(interval)

	go func() {
		defer close(r.done)
		defer ticker.Stop()

		r.logger.Info("Reaper started",
			zap.Duration("interval", interval),
			zap.Duration("idle_timeout", r.engine.config.IdleTimeout))

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				r.Sweep(ctx)
			}
		}
	}()
}

// Stop halts the sweep loop and waits for an in-flight sweep to finish
func (r *Reaper) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	cancel()
	<-done
	r.logger.Info("Reaper stopped")
}

// Sweep expires every idle session once and returns how many were reaped.
// Each session's lock is held only for its own idle check and removal; blob
// cleanup runs afterwards without any lock.
func (r *Reaper) Sweep(ctx context.Context) int {
	idleTimeout := r.engine.config.IdleTimeout
	reaped := 0

	for _, code := range r.engine.store.Codes() {
		final, err := r.engine.store.Update(ctx, code, func(tx *sessions.Tx) error {
			if tx.Session.IdleFor(tx.Now()) > idleTimeout {
				tx.Delete()
			}
			return nil
		})
		if err != nil {
			// removed by a leave between listing and locking
			if !errors.Is(err, sessions.ErrSessionNotFound) {
				r.logger.Error("Failed to check session idleness", zap.String("session_code", code), zap.Error(err))
			}
			continue
		}
		if final == nil {
			continue
		}

		r.logger.Info("Session expired after inactivity",
			zap.String("session_code", code),
			zap.Duration("idle", final.IdleFor(r.clock.Now())))
		r.engine.terminate(context.WithoutCancel(ctx), final, EventSessionExpired, audit.EventSessionExpired)
		reaped++
	}

	r.pruneAudit(ctx)
	return reaped
}

func (r *Reaper) pruneAudit(ctx context.Context) {
	if r.engine.audit == nil {
		return
	}

	n, err := r.engine.audit.Prune(ctx, r.engine.config.AuditRetention)
	if err != nil {
		r.logger.Warn("Failed to prune audit events", zap.Error(err))
		return
	}
	if n > 0 {
		r.logger.Debug("Pruned audit events", zap.Int("count", n))
	}
}
