package supervisor

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Readiness tracks whether the backing data sources are reachable. Paths that
// depend on them call Check and pause themselves while it reports false; the
// next Check reopens the path automatically. State transitions are logged
// once instead of on every probe.
type Readiness struct {
	mu        sync.Mutex
	available bool
	probe     func(ctx context.Context) error
	logger    *zap.Logger
}

// NewReadiness creates a tracker around a probe such as a database ping.
func NewReadiness(probe func(ctx context.Context) error, logger *zap.Logger) *Readiness {
	return &Readiness{
		available: true,
		probe:     probe,
		logger:    logger.Named("readiness"),
	}
}

// Check probes the data sources and reports whether processing may proceed.
func (r *Readiness) Check(ctx context.Context) bool {
	err := r.probe(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case err != nil && r.available:
		r.available = false
		r.logger.Warn("Data sources unavailable, pausing updates", zap.Error(err))
	case err == nil && !r.available:
		r.available = true
		r.logger.Info("Data sources available again, resuming updates")
	}

	return r.available
}
