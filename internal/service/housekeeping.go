package service

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Purger deletes revocation entries whose token has already expired.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Housekeeping periodically prunes expired entries from the persistent
// revocation registry.
type Housekeeping struct {
	Purger   Purger
	Logger   *slog.Logger
	Interval time.Duration
	Timeout  time.Duration

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewHousekeeping defaults a non-positive interval to one hour.
func NewHousekeeping(p Purger, logger *slog.Logger, interval time.Duration) *Housekeeping {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Housekeeping{
		Purger:   p,
		Logger:   logger.With("component", "housekeeping"),
		Interval: interval,
		Timeout:  30 * time.Second,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs a purge immediately and then once per Interval until Stop.
func (h *Housekeeping) Start() {
	go h.run()
	h.Logger.Info("housekeeping started", "interval", h.Interval)
}

// Stop waits for an in-flight purge to finish. Calling it again is a no-op.
func (h *Housekeeping) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
		<-h.doneCh
		h.Logger.Info("housekeeping stopped")
	})
}

func (h *Housekeeping) run() {
	defer close(h.doneCh)

	ticker := time.NewTicker(h.Interval)
	defer ticker.Stop()

	h.purge()
	for {
		select {
		case <-ticker.C:
			h.purge()
		case <-h.stopCh:
			return
		}
	}
}

func (h *Housekeeping) purge() {
	ctx, cancel := context.WithTimeout(context.Background(), h.Timeout)
	defer cancel()

	n, err := h.Purger.PurgeExpired(ctx)
	if err != nil {
		h.Logger.Error("purge expired revocations failed", "error", err)
		return
	}
	h.Logger.Debug("purged expired revocations", "deleted", n)
}
