package notifier

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/justinhartfield/protein-empire-cms/pkg/telemetry"
)

// DefaultDelay is how long the notifier waits after the first qualifying
// event before sending a notification.
const DefaultDelay = 5 * time.Second

// Action is a content lifecycle action.
type Action string

const (
	ActionCreate    Action = "create"
	ActionUpdate    Action = "update"
	ActionDelete    Action = "delete"
	ActionPublish   Action = "publish"
	ActionUnpublish Action = "unpublish"
)

// LifecycleEvent is a mutation reported by the content store.
type LifecycleEvent struct {
	Action Action
	Model  string

	// Site is the domain of the affected site, when known.
	Site string

	// Published is true when the entry is published after the mutation.
	Published bool
}

// Qualifies reports whether the event should trigger a rebuild. Drafts
// being created or edited do not change the published sites.
func (e LifecycleEvent) Qualifies() bool {
	switch e.Action {
	case ActionCreate, ActionUpdate:
		return e.Published
	case ActionDelete, ActionPublish, ActionUnpublish:
		return true
	default:
		return false
	}
}

// Notification is one coalesced downstream notification.
type Notification struct {
	// Site is empty when the rebuild is unscoped.
	Site      string
	Timestamp time.Time
	Events    int
}

// Delivery is the result of sending one notification.
type Delivery string

const (
	DeliverySent    Delivery = "sent"
	DeliveryFailed  Delivery = "failed"
	DeliverySkipped Delivery = "skipped"
)

// Recorder persists dispatched notifications.
type Recorder interface {
	RecordNotification(ctx context.Context, n Notification, delivery Delivery, dispatchErr error) error
}

type state int

const (
	idle state = iota
	armed
)

// Notifier coalesces lifecycle events into delayed notifications. The first
// qualifying event arms it and schedules a single flush; events arriving
// while armed are counted into that flush. A scheduled flush always fires.
type Notifier struct {
	dispatcher Dispatcher
	delay      time.Duration
	clock      Clock
	recorder   Recorder
	logger     *telemetry.Logger
	metrics    *telemetry.Metrics
	tracer     *telemetry.Tracer

	mu     sync.Mutex
	state  state
	site   string
	events int

	inflight sync.WaitGroup
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithDelay sets the flush delay.
func WithDelay(d time.Duration) Option {
	return func(n *Notifier) {
		if d > 0 {
			n.delay = d
		}
	}
}

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(n *Notifier) { n.clock = c }
}

// WithRecorder persists every flush through r.
func WithRecorder(r Recorder) Option {
	return func(n *Notifier) { n.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *telemetry.Logger) Option {
	return func(n *Notifier) { n.logger = l }
}

// WithMetrics counts events and notifications in m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(n *Notifier) { n.metrics = m }
}

// WithTracer opens a span per flush.
func WithTracer(t *telemetry.Tracer) Option {
	return func(n *Notifier) { n.tracer = t }
}

// New creates an idle notifier that delivers through d.
func New(d Dispatcher, opts ...Option) *Notifier {
	n := &Notifier{
		dispatcher: d,
		delay:      DefaultDelay,
		clock:      RealClock{},
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.dispatcher == nil {
		n.dispatcher = noopDispatcher{}
	}
	if n.logger == nil {
		n.logger = telemetry.NopLogger()
	}
	n.logger = n.logger.NewComponentLogger("notifier")
	return n
}

// Observe feeds one lifecycle event to the notifier and reports whether it
// qualified. It never blocks on delivery.
func (n *Notifier) Observe(evt LifecycleEvent) bool {
	if !evt.Qualifies() {
		return false
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state == armed {
		n.events++
		n.logger.WithFields(map[string]interface{}{
			"action":  string(evt.Action),
			"model":   evt.Model,
			"pending": n.events,
		}).Debug("Event coalesced into pending notification")
		return true
	}

	n.state = armed
	n.events = 1
	n.site = evt.Site
	if evt.Action == ActionDelete {
		// the deleted entry's site can no longer be resolved
		n.site = ""
	}
	n.inflight.Add(1)
	n.metrics.SetFlushPending(true)
	n.clock.AfterFunc(n.delay, n.flush)

	n.logger.WithFields(map[string]interface{}{
		"action": string(evt.Action),
		"model":  evt.Model,
		"site":   n.site,
		"delay":  n.delay.String(),
	}).Debug("Notification armed")
	return true
}

// Pending reports whether a flush is scheduled.
func (n *Notifier) Pending() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state == armed
}

// Wait blocks until every scheduled flush has been delivered or ctx is done.
func (n *Notifier) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		n.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *Notifier) flush() {
	defer n.inflight.Done()

	n.mu.Lock()
	note := Notification{
		Site:      n.site,
		Timestamp: n.clock.Now(),
		Events:    n.events,
	}
	n.state = idle
	n.site = ""
	n.events = 0
	n.mu.Unlock()
	n.metrics.SetFlushPending(false)

	n.Send(context.Background(), note)
}

// Send delivers a notification immediately and reports the result.
// Delivery failures are logged, counted and recorded, never returned.
func (n *Notifier) Send(ctx context.Context, note Notification) Delivery {
	logger := n.logger.WithFields(map[string]interface{}{
		"site":   note.Site,
		"events": note.Events,
	})

	var span trace.Span
	if n.tracer != nil {
		ctx, span = n.tracer.StartFlushSpan(ctx, note.Site, note.Events)
		defer span.End()
	}

	err := n.dispatcher.Dispatch(ctx, note)
	if span != nil {
		if err != nil {
			telemetry.RecordError(span, err)
		} else {
			telemetry.RecordSuccess(span)
		}
	}
	var delivery Delivery
	switch {
	case err != nil:
		delivery = DeliveryFailed
		logger.WithError(err).Error("Failed to send content update notification")
	case !Enabled(n.dispatcher):
		delivery = DeliverySkipped
		logger.Info("Webhook not configured, skipping notification")
	default:
		delivery = DeliverySent
		logger.Info("Content update notification sent")
	}
	n.metrics.RecordNotification(string(delivery))

	if n.recorder != nil {
		if recErr := n.recorder.RecordNotification(context.WithoutCancel(ctx), note, delivery, err); recErr != nil {
			logger.WithError(recErr).Debug("Failed to record notification")
		}
	}
	return delivery
}
