package csrf

import (
	"context"
	"time"

	"go.uber.org/zap"

	"plotvault/metrics"
	"plotvault/util/goroutine"
)

// DefaultSweepInterval paces the background eviction loop.
const DefaultSweepInterval = 1 * time.Hour

// Sweeper runs periodic eviction sweeps in addition to the sweep triggered on
// every issuance. Issuance alone already bounds growth; the loop just keeps a
// quiet registry from holding stale entries between issuances.
type Sweeper struct {
	registry Registry
	ttl      time.Duration
	interval time.Duration
	logger   *zap.SugaredLogger
	stopCh   chan struct{}
}

// NewSweeper creates a sweeper for the registry. A non-positive interval
// falls back to DefaultSweepInterval.
func NewSweeper(registry Registry, ttl, interval time.Duration, logger *zap.SugaredLogger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Sweeper{
		registry: registry,
		ttl:      ttl,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Run loops until Stop is called. Call it in its own goroutine.
func (s *Sweeper) Run() {
	defer goroutine.Recover("csrf-sweeper", s.logger)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweepOnce()
		case <-s.stopCh:
			return
		}
	}
}

// Stop terminates the loop. Safe to call once.
func (s *Sweeper) Stop() {
	close(s.stopCh)
}

func (s *Sweeper) sweepOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	swept, err := s.registry.Sweep(ctx, time.Now(), s.ttl)
	if err != nil {
		s.logger.Warnw("Periodic CSRF sweep failed", "error", err)
		return
	}
	if swept > 0 {
		metrics.RecordCSRFSwept(swept)
		s.logger.Infow("Cleaned up expired CSRF tokens", "count", swept)
	}
	if size, err := s.registry.Len(ctx); err == nil {
		metrics.UpdateCSRFRegistrySize(size)
	}
}
