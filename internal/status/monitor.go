package status

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/rueidis"
	"go.uber.org/zap"

	"github.com/towertools/tiersync/internal/reconcile"
)

const (
	// HeartbeatInterval is how often components report their status.
	HeartbeatInterval = 10 * time.Second

	// HeartbeatTTL is how long a component's status remains valid.
	HeartbeatTTL = 10 * time.Minute

	// StaleThreshold is how long before a component is considered offline.
	StaleThreshold = 1 * time.Minute

	// summaryHistoryLen is how many reconciliation summaries are retained.
	summaryHistoryLen = 20

	latestSummaryKey  = "reconcile:summary:latest"
	summaryHistoryKey = "reconcile:summary:history"
)

// Status is one component's reported state.
type Status struct {
	ComponentID string    `json:"componentId"`
	Component   string    `json:"component"`
	LastSeen    time.Time `json:"lastSeen"`
	CurrentTask string    `json:"currentTask,omitempty"`
	QueueLen    int       `json:"queueLen"`
	IsHealthy   bool      `json:"isHealthy"`
}

// Offline reports whether the status is stale.
func (s Status) Offline() bool {
	return time.Since(s.LastSeen) > StaleThreshold
}

// Monitor stores component statuses and reconciliation summaries in Redis.
type Monitor struct {
	client rueidis.Client
	logger *zap.Logger
}

// NewMonitor creates a status monitor.
func NewMonitor(client rueidis.Client, logger *zap.Logger) *Monitor {
	return &Monitor{
		client: client,
		logger: logger,
	}
}

// ReportStatus writes a component's status with the heartbeat TTL.
func (m *Monitor) ReportStatus(ctx context.Context, status Status) error {
	status.LastSeen = time.Now()

	data, err := sonic.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	key := fmt.Sprintf("status:%s:%s", status.Component, status.ComponentID)

	err = m.client.Do(ctx,
		m.client.B().Set().Key(key).Value(string(data)).Ex(HeartbeatTTL).Build()).Error()
	if err != nil {
		return fmt.Errorf("failed to store status: %w", err)
	}

	return nil
}

// GetAllStatuses retrieves every reported component status.
func (m *Monitor) GetAllStatuses(ctx context.Context) ([]Status, error) {
	keys, err := m.client.Do(ctx, m.client.B().Keys().Pattern("status:*").Build()).AsStrSlice()
	if err != nil {
		return nil, fmt.Errorf("failed to get status keys: %w", err)
	}

	statuses := make([]Status, 0, len(keys))

	for _, key := range keys {
		data, err := m.client.Do(ctx, m.client.B().Get().Key(key).Build()).AsBytes()
		if err != nil {
			m.logger.Error("Failed to get component status", zap.String("key", key), zap.Error(err))
			continue
		}

		var status Status
		if err := sonic.Unmarshal(data, &status); err != nil {
			m.logger.Error("Failed to unmarshal component status", zap.String("key", key), zap.Error(err))
			continue
		}

		statuses = append(statuses, status)
	}

	return statuses, nil
}

// SaveSummary stores a reconciliation summary as the latest one and appends
// it to a bounded history list.
func (m *Monitor) SaveSummary(ctx context.Context, summary *reconcile.Summary) error {
	data, err := sonic.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	err = m.client.Do(ctx,
		m.client.B().Set().Key(latestSummaryKey).Value(string(data)).Build()).Error()
	if err != nil {
		return fmt.Errorf("failed to store latest summary: %w", err)
	}

	err = m.client.Do(ctx,
		m.client.B().Lpush().Key(summaryHistoryKey).Element(string(data)).Build()).Error()
	if err != nil {
		return fmt.Errorf("failed to append summary history: %w", err)
	}

	err = m.client.Do(ctx,
		m.client.B().Ltrim().Key(summaryHistoryKey).Start(0).Stop(summaryHistoryLen-1).Build()).Error()
	if err != nil {
		return fmt.Errorf("failed to trim summary history: %w", err)
	}

	return nil
}

// LatestSummary returns the most recent reconciliation summary, or nil when
// none has been recorded.
func (m *Monitor) LatestSummary(ctx context.Context) (*reconcile.Summary, error) {
	data, err := m.client.Do(ctx, m.client.B().Get().Key(latestSummaryKey).Build()).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to get latest summary: %w", err)
	}

	var summary reconcile.Summary
	if err := sonic.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("failed to unmarshal summary: %w", err)
	}

	return &summary, nil
}
