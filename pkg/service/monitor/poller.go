// Package monitor holds the timer-driven background loops: the on-chain
// transaction monitor, the deposit monitor, and the generic poller that
// drives them. Each loop runs its own independent interval timer; the
// database guards correctness across loops, the in-progress flag only
// prevents one loop from overlapping itself.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Poller runs fn on a fixed interval. Start is idempotent: a second call
// logs a warning and does nothing. RunOnce skips when the previous cycle
// is still in progress, so overlapping cycles never double-process rows.
type Poller struct {
	name     string
	interval time.Duration
	fn       func(ctx context.Context)
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	processing atomic.Bool
}

// NewPoller creates a poller named for logging.
func NewPoller(name string, interval time.Duration, logger *slog.Logger, fn func(ctx context.Context)) *Poller {
	return &Poller{
		name:     name,
		interval: interval,
		fn:       fn,
		logger:   logger.With("monitor", name),
	}
}

// Start begins scheduling cycles. Calling Start on a running poller is a
// no-op with a warning.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		p.logger.Warn("already started")
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.wg.Add(1)

	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		p.logger.Info("started", "interval", p.interval)
		for {
			select {
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.RunOnce(ctx)
			}
		}
	}()
}

// Stop stops scheduling further cycles and waits for an in-flight cycle
// to finish. Idempotent.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("stopped")
}

// RunOnce executes one cycle unless the previous one is still running.
// Returns whether the cycle actually ran.
func (p *Poller) RunOnce(ctx context.Context) bool {
	if !p.processing.CompareAndSwap(false, true) {
		p.logger.Debug("previous cycle still in progress, skipping")
		return false
	}
	defer p.processing.Store(false)
	p.fn(ctx)
	return true
}

// Processing reports whether a cycle is currently in flight.
func (p *Poller) Processing() bool {
	return p.processing.Load()
}
