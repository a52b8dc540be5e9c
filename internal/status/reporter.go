package status

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/rueidis"
	"go.uber.org/zap"
)

// Reporter periodically reports one component's status to the monitor.
type Reporter struct {
	monitor  *Monitor
	status   Status
	queueLen func() int
	stopChan chan struct{}
	stopped  bool
	mu       sync.Mutex
	logger   *zap.Logger
}

// NewReporter creates a reporter for a component. queueLen may be nil for
// components without a queue.
func NewReporter(client rueidis.Client, component string, queueLen func() int, logger *zap.Logger) *Reporter {
	return &Reporter{
		monitor: NewMonitor(client, logger),
		status: Status{
			ComponentID: uuid.New().String(),
			Component:   component,
			IsHealthy:   true,
		},
		queueLen: queueLen,
		stopChan: make(chan struct{}),
		logger:   logger.Named("status_reporter"),
	}
}

// Start begins periodic status reporting until Stop or context cancellation.
func (r *Reporter) Start(ctx context.Context) {
	r.mu.Lock()

	if r.stopped {
		r.mu.Unlock()
		return
	}

	r.mu.Unlock()

	go func() {
		ticker := time.NewTicker(HeartbeatInterval)
		defer ticker.Stop()

		r.report(ctx)

		for {
			select {
			case <-ticker.C:
				r.report(ctx)
			case <-ctx.Done():
				return
			case <-r.stopChan:
				return
			}
		}
	}()
}

// Stop ends status reporting.
func (r *Reporter) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.stopped {
		close(r.stopChan)
		r.stopped = true
	}
}

// UpdateTask updates the task shown in the reported status.
func (r *Reporter) UpdateTask(task string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.status.CurrentTask = task
}

// SetHealthy updates the health flag.
func (r *Reporter) SetHealthy(healthy bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.status.IsHealthy = healthy
}

func (r *Reporter) report(ctx context.Context) {
	r.mu.Lock()
	status := r.status
	r.mu.Unlock()

	if r.queueLen != nil {
		status.QueueLen = r.queueLen()
	}

	if err := r.monitor.ReportStatus(ctx, status); err != nil {
		r.logger.Error("Failed to report status", zap.Error(err))
	}
}
