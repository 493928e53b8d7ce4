package observer

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
)

// PipelineEvent represents one step of a counting request
type PipelineEvent struct {
	EventType      EventType              `json:"event_type"`
	Timestamp      time.Time              `json:"timestamp"`
	RequestID      string                 `json:"request_id"`
	Strategy       string                 `json:"strategy"`
	Source         string                 `json:"source,omitempty"`
	ProcessingTime time.Duration          `json:"processing_time"`
	Success        bool                   `json:"success"`
	ErrorType      string                 `json:"error_type,omitempty"`
	ErrorMessage   string                 `json:"error_message,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// EventType represents the type of pipeline event
type EventType string

const (
	// RequestStarted when a counting request is accepted
	RequestStarted EventType = "request_started"
	// ImageStaged when a source image has been copied into its slot
	ImageStaged EventType = "image_staged"
	// AssetEnsured when the cascade asset is present in the data directory
	AssetEnsured EventType = "asset_ensured"
	// CapabilityInvoked when the vision capability returned an outcome
	CapabilityInvoked EventType = "capability_invoked"
	// RequestCompleted when the result has been marshaled
	RequestCompleted EventType = "request_completed"
	// RequestFailed when any stage failed
	RequestFailed EventType = "request_failed"
)

// NewRequestID returns a fresh identifier for correlating a request's events
func NewRequestID() string {
	return uuid.NewString()
}

// Observer defines the interface for event observers
type Observer interface {
	OnEvent(ctx context.Context, event PipelineEvent)
	GetObserverName() string
}

// Subject defines the interface for event publishers
type Subject interface {
	Subscribe(observer Observer)
	Unsubscribe(observer Observer)
	NotifyObservers(ctx context.Context, event PipelineEvent)
}

// LoggingObserver logs pipeline events
type LoggingObserver struct {
	logger *logrus.Logger
}

// NewLoggingObserver creates a new logging observer
func NewLoggingObserver(logger *logrus.Logger) Observer {
	return &LoggingObserver{
		logger: logger,
	}
}

// OnEvent handles pipeline events by logging them
func (o *LoggingObserver) OnEvent(ctx context.Context, event PipelineEvent) {
	fields := logrus.Fields{
		"event_type": event.EventType,
		"request_id": event.RequestID,
		"strategy":   event.Strategy,
		"stage":      string(event.EventType),
		"success":    event.Success,
	}
	if event.Source != "" {
		fields["source"] = event.Source
	}
	if event.ProcessingTime > 0 {
		fields["processing_time"] = event.ProcessingTime
	}
	if event.ErrorMessage != "" {
		fields["error"] = event.ErrorMessage
		fields["error_type"] = event.ErrorType
	}
	for k, v := range event.Metadata {
		fields[k] = v
	}

	entry := o.logger.WithFields(fields)
	switch event.EventType {
	case RequestStarted:
		entry.Info("Counting request started")
	case RequestCompleted:
		entry.Info("Counting request completed")
	case RequestFailed:
		entry.Error("Counting request failed")
	case ImageStaged:
		entry.Debug("Image staged")
	case AssetEnsured:
		entry.Debug("Cascade asset ensured")
	case CapabilityInvoked:
		entry.Debug("Vision capability invoked")
	default:
		entry.Info("Pipeline event occurred")
	}
}

// GetObserverName returns the observer name
func (o *LoggingObserver) GetObserverName() string {
	return "logging_observer"
}

// StrategyMetrics counts requests of one strategy
type StrategyMetrics struct {
	Started   int64 `json:"started"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Snapshot is a point-in-time copy of the collected metrics
type Snapshot struct {
	TotalRequests       int64                      `json:"total_requests"`
	CompletedRequests   int64                      `json:"completed_requests"`
	FailedRequests      int64                      `json:"failed_requests"`
	ByStrategy          map[string]StrategyMetrics `json:"by_strategy"`
	FailuresByType      map[string]int64           `json:"failures_by_type"`
	AvgProcessingSec    float64                    `json:"avg_processing_time_sec"`
	StdDevProcessingSec float64                    `json:"stddev_processing_time_sec"`
}

// durationWindow bounds how many recent completions feed the processing
// time statistics.
const durationWindow = 1024

// MetricsObserver collects metrics from pipeline events
type MetricsObserver struct {
	mu         sync.RWMutex
	byStrategy map[string]*StrategyMetrics
	failures   map[string]int64
	// durations is a ring of the most recent completion times
	durations []float64
	next      int
}

// NewMetricsObserver creates a new metrics observer
func NewMetricsObserver() *MetricsObserver {
	return &MetricsObserver{
		byStrategy: make(map[string]*StrategyMetrics),
		failures:   make(map[string]int64),
	}
}

// OnEvent handles pipeline events by collecting metrics
func (o *MetricsObserver) OnEvent(ctx context.Context, event PipelineEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	m, ok := o.byStrategy[event.Strategy]
	if !ok {
		m = &StrategyMetrics{}
		o.byStrategy[event.Strategy] = m
	}

	switch event.EventType {
	case RequestStarted:
		m.Started++
	case RequestCompleted:
		m.Completed++
		o.recordDuration(event.ProcessingTime.Seconds())
	case RequestFailed:
		m.Failed++
		o.failures[event.ErrorType]++
	}
}

func (o *MetricsObserver) recordDuration(sec float64) {
	if len(o.durations) < durationWindow {
		o.durations = append(o.durations, sec)
		return
	}
	o.durations[o.next] = sec
	o.next = (o.next + 1) % durationWindow
}

// GetObserverName returns the observer name
func (o *MetricsObserver) GetObserverName() string {
	return "metrics_observer"
}

// Snapshot returns current metrics
func (o *MetricsObserver) Snapshot() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()

	snap := Snapshot{
		ByStrategy:     make(map[string]StrategyMetrics, len(o.byStrategy)),
		FailuresByType: make(map[string]int64, len(o.failures)),
	}
	for name, m := range o.byStrategy {
		snap.ByStrategy[name] = *m
		snap.TotalRequests += m.Started
		snap.CompletedRequests += m.Completed
		snap.FailedRequests += m.Failed
	}
	for t, n := range o.failures {
		snap.FailuresByType[t] = n
	}
	if len(o.durations) > 0 {
		snap.AvgProcessingSec, snap.StdDevProcessingSec = stat.MeanStdDev(o.durations, nil)
		if len(o.durations) == 1 {
			snap.StdDevProcessingSec = 0
		}
	}
	return snap
}

// EventPublisher implements the Subject interface
type EventPublisher struct {
	mu        sync.RWMutex
	observers []Observer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher() *EventPublisher {
	return &EventPublisher{
		observers: make([]Observer, 0),
	}
}

// Subscribe adds an observer
func (p *EventPublisher) Subscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, observer)
}

// Unsubscribe removes an observer
func (p *EventPublisher) Unsubscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, obs := range p.observers {
		if obs.GetObserverName() == observer.GetObserverName() {
			p.observers = append(p.observers[:i], p.observers[i+1:]...)
			break
		}
	}
}

// NotifyObservers delivers event to every observer in subscription order
// before returning. A panicking observer is logged and skipped.
func (p *EventPublisher) NotifyObservers(ctx context.Context, event PipelineEvent) {
	p.mu.RLock()
	observers := make([]Observer, len(p.observers))
	copy(observers, p.observers)
	p.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	for _, observer := range observers {
		notify(ctx, observer, event)
	}
}

func notify(ctx context.Context, obs Observer, event PipelineEvent) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("observer", obs.GetObserverName()).
				WithField("panic", r).
				Error("Observer panicked while handling event")
		}
	}()
	obs.OnEvent(ctx, event)
}
