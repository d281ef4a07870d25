package logger

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// ProgressTracker logs throughput of a batch of work items (files, rows)
// at a bounded rate. Safe for concurrent use by pool workers.
type ProgressTracker struct {
	logger      Logger
	operation   string
	total       int64
	current     *atomic.Int64
	failed      *atomic.Int64
	startTime   time.Time
	logInterval time.Duration

	mu          sync.Mutex
	lastLogTime time.Time
}

// ProgressConfig configures progress tracking behavior
type ProgressConfig struct {
	Operation   string        `json:"operation"`
	Total       int64         `json:"total"`
	LogInterval time.Duration `json:"log_interval"`
	Logger      Logger        `json:"-"`
}

// NewProgressTracker creates a new progress tracker
func NewProgressTracker(config ProgressConfig) *ProgressTracker {
	if config.Logger == nil {
		config.Logger = GetGlobalLogger()
	}
	if config.LogInterval == 0 {
		config.LogInterval = 2 * time.Second
	}

	now := time.Now()
	tracker := &ProgressTracker{
		logger:      config.Logger.WithComponent("progress"),
		operation:   config.Operation,
		total:       config.Total,
		current:     atomic.NewInt64(0),
		failed:      atomic.NewInt64(0),
		startTime:   now,
		lastLogTime: now,
		logInterval: config.LogInterval,
	}

	tracker.logger.WithFields(Fields{
		"operation": config.Operation,
		"total":     config.Total,
	}).Info("Starting operation")

	return tracker
}

// Increment records one finished item
func (p *ProgressTracker) Increment() {
	p.current.Inc()
	p.maybeLog()
}

// Fail records one finished item that failed
func (p *ProgressTracker) Fail() {
	p.failed.Inc()
	p.current.Inc()
	p.maybeLog()
}

func (p *ProgressTracker) maybeLog() {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if now.Sub(p.lastLogTime) < p.logInterval {
		return
	}
	p.lastLogTime = now

	stats := p.GetStats()
	fields := Fields{
		"operation": p.operation,
		"processed": stats.Current,
		"failed":    stats.Failed,
		"rate":      fmt.Sprintf("%.2f/sec", stats.Rate),
	}
	if p.total > 0 {
		fields["total"] = p.total
		fields["percentage"] = fmt.Sprintf("%.1f%%", stats.Percentage)
		if stats.ETA > 0 {
			fields["eta"] = stats.ETA.String()
		}
	}
	p.logger.WithFields(fields).Info("Progress update")
}

// Complete logs final statistics
func (p *ProgressTracker) Complete() {
	stats := p.GetStats()
	entry := p.logger.WithFields(Fields{
		"operation": p.operation,
		"total":     p.total,
		"processed": stats.Current,
		"failed":    stats.Failed,
		"duration":  stats.Duration.String(),
		"rate":      fmt.Sprintf("%.2f/sec", stats.Rate),
	})
	if stats.Failed > 0 {
		entry.Warn("Operation completed with failures")
		return
	}
	entry.Info("Operation completed")
}

// GetStats returns current progress statistics
func (p *ProgressTracker) GetStats() ProgressStats {
	current := p.current.Load()
	duration := time.Since(p.startTime)

	var rate float64
	if duration.Seconds() > 0 {
		rate = float64(current) / duration.Seconds()
	}

	var percentage float64
	if p.total > 0 {
		percentage = float64(current) / float64(p.total) * 100
	}

	var eta time.Duration
	if p.total > 0 && current > 0 && rate > 0 {
		eta = time.Duration(float64(p.total-current)/rate) * time.Second
	}

	return ProgressStats{
		Operation:  p.operation,
		Total:      p.total,
		Current:    current,
		Failed:     p.failed.Load(),
		Percentage: percentage,
		Duration:   duration,
		Rate:       rate,
		ETA:        eta,
	}
}

// ProgressStats contains progress statistics
type ProgressStats struct {
	Operation  string        `json:"operation"`
	Total      int64         `json:"total"`
	Current    int64         `json:"current"`
	Failed     int64         `json:"failed"`
	Percentage float64       `json:"percentage"`
	Duration   time.Duration `json:"duration"`
	Rate       float64       `json:"rate"`
	ETA        time.Duration `json:"eta,omitempty"`
}

// String returns a human-readable representation of the progress
func (ps ProgressStats) String() string {
	if ps.Total > 0 {
		return fmt.Sprintf("%s: %d/%d (%.1f%%), %d failed", ps.Operation, ps.Current, ps.Total, ps.Percentage, ps.Failed)
	}
	return fmt.Sprintf("%s: %d processed, %d failed, elapsed: %v", ps.Operation, ps.Current, ps.Failed, ps.Duration)
}

// OperationLogger provides structured logging for operations with timing
type OperationLogger struct {
	logger    Logger
	operation string
	fields    Fields
	startTime time.Time
}

// NewOperationLogger creates a new operation logger
func NewOperationLogger(operation string, logger Logger) *OperationLogger {
	if logger == nil {
		logger = GetGlobalLogger()
	}

	ol := &OperationLogger{
		logger:    logger,
		operation: operation,
		fields:    make(Fields),
		startTime: time.Now(),
	}

	ol.logger.WithField("operation", operation).Debug("Starting operation")
	return ol
}

// WithField adds a field to the operation context
func (ol *OperationLogger) WithField(key string, value interface{}) *OperationLogger {
	ol.fields[key] = value
	return ol
}

func (ol *OperationLogger) merged(extra Fields) Fields {
	fields := Fields{"operation": ol.operation}
	for k, v := range ol.fields {
		fields[k] = v
	}
	for k, v := range extra {
		fields[k] = v
	}
	return fields
}

// Step logs a step within the operation
func (ol *OperationLogger) Step(step string) {
	ol.logger.WithFields(ol.merged(Fields{"step": step})).Debug("Operation step")
}

// Success completes the operation successfully
func (ol *OperationLogger) Success(message string) {
	ol.logger.WithFields(ol.merged(Fields{
		"duration": time.Since(ol.startTime).String(),
		"status":   "success",
	})).Info(message)
}

// Error completes the operation with an error
func (ol *OperationLogger) Error(err error, message string) {
	ol.logger.WithError(err).WithFields(ol.merged(Fields{
		"duration": time.Since(ol.startTime).String(),
		"status":   "error",
	})).Error(message)
}

// Warning logs a warning during the operation
func (ol *OperationLogger) Warning(message string) {
	ol.logger.WithFields(ol.merged(nil)).Warn(message)
}

// Elapsed returns time since the operation started
func (ol *OperationLogger) Elapsed() time.Duration {
	return time.Since(ol.startTime)
}
