package service

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultPruneInterval is how often the Pruner sweeps the blacklist.
const DefaultPruneInterval = time.Hour

// Pruner periodically removes expired entries from the token blacklist.
type Pruner struct {
	auth     *AuthService
	interval time.Duration
	logger   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPruner returns a Pruner sweeping every interval. Returns nil when
// interval is not positive, which disables pruning; a nil Pruner's methods
// are no-ops.
func NewPruner(auth *AuthService, interval time.Duration, logger *slog.Logger) *Pruner {
	if interval <= 0 {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pruner{auth: auth, interval: interval, logger: logger}
}

// Start runs an initial sweep and then one per interval in the background.
// Non-blocking.
func (p *Pruner) Start() {
	if p == nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		p.sweep(ctx)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				p.sweep(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop cancels the background loop and waits for it to exit.
func (p *Pruner) Stop() {
	if p == nil {
		return
	}
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *Pruner) sweep(ctx context.Context) {
	if _, err := p.auth.PruneBlacklist(ctx); err != nil && ctx.Err() == nil {
		p.logger.Error("blacklist prune failed", "error", err)
	}
}
