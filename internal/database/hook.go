package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// slowQueryThreshold marks successful queries worth surfacing at warn level.
// League table scans during reconciliation are the usual offenders.
const slowQueryThreshold = 500 * time.Millisecond

// queryHook logs bun queries through zap. Missing-row results are routine on
// the member lookup path and are not treated as failures.
type queryHook struct {
	logger *zap.Logger
}

// NewHook creates a query hook logging through the given logger.
func NewHook(logger *zap.Logger) bun.QueryHook {
	return &queryHook{logger: logger.Named("query")}
}

func (h *queryHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

// AfterQuery logs the query and its execution time.
func (h *queryHook) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	elapsed := time.Since(event.StartTime)

	switch {
	case event.Err != nil && !errors.Is(event.Err, sql.ErrNoRows):
		h.logger.Error("Query failed",
			zap.String("query", event.Query),
			zap.Duration("duration", elapsed),
			zap.Error(event.Err))
	case elapsed > slowQueryThreshold:
		h.logger.Warn("Slow query",
			zap.String("query", event.Query),
			zap.Duration("duration", elapsed))
	default:
		h.logger.Debug("Query executed",
			zap.String("query", event.Query),
			zap.Duration("duration", elapsed))
	}
}
