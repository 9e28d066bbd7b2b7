package sync

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/akyairhashvil/tally/internal/config"
)

// autoSyncTimeout bounds the best-effort pass after a mutating command.
const autoSyncTimeout = 15 * time.Second

// Controller drives the engine: a periodic loop, manual passes, and
// best-effort passes after writes, all serialized.
type Controller struct {
	engine   *Engine
	interval time.Duration
	log      *slog.Logger

	// OnSynced, when set before Start, runs after every successful pass
	// that moved data. The widget snapshot refresh hangs off it.
	OnSynced func(context.Context)

	mu               sync.Mutex
	shutdownComplete chan struct{}
}

// NewController constructs a Controller. A zero interval falls back to
// the default.
func NewController(engine *Engine, interval time.Duration, log *slog.Logger) *Controller {
	if interval <= 0 {
		interval = config.DefaultSyncInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		engine:           engine,
		interval:         interval,
		log:              log,
		shutdownComplete: make(chan struct{}),
	}
}

// Start launches the periodic loop. It should be called in a goroutine
// and runs one pass immediately, then one per interval until the context
// is canceled.
func (c *Controller) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer func() {
		ticker.Stop()
		close(c.shutdownComplete)
	}()

	for {
		if _, err := c.SyncNow(ctx); err != nil && !errors.Is(err, context.Canceled) {
			c.log.Warn("periodic sync failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Wait blocks until a loop started by Start has wound down.
func (c *Controller) Wait() {
	<-c.shutdownComplete
}

// SyncNow runs one pass. Manual, periodic, and post-write passes never
// overlap; late callers wait their turn.
func (c *Controller) SyncNow(ctx context.Context) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.engine.Sync(ctx)
	if err != nil {
		return res, err
	}
	if c.OnSynced != nil && !res.Empty() {
		c.OnSynced(ctx)
	}
	return res, nil
}

// AutoSync runs a bounded pass after a mutating command. Failures are
// logged, never surfaced; the periodic loop retries.
func (c *Controller) AutoSync(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, autoSyncTimeout)
	defer cancel()

	if _, err := c.SyncNow(ctx); err != nil && !errors.Is(err, context.Canceled) {
		c.log.Warn("auto sync failed", "error", err)
	}
}
