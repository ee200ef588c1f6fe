package notifier

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/justinhartfield/protein-empire-cms/pkg/telemetry"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type captureDispatcher struct {
	mu    sync.Mutex
	sent  []Notification
	err   error
	calls int
}

func (d *captureDispatcher) Dispatch(_ context.Context, n Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, n)
	return nil
}

type captureRecorder struct {
	notes      []Notification
	deliveries []Delivery
	errs       []error
}

func (r *captureRecorder) RecordNotification(_ context.Context, n Notification, d Delivery, err error) error {
	r.notes = append(r.notes, n)
	r.deliveries = append(r.deliveries, d)
	r.errs = append(r.errs, err)
	return nil
}

func published(site string) LifecycleEvent {
	return LifecycleEvent{Action: ActionUpdate, Model: "recipe", Site: site, Published: true}
}

func TestNotifierCoalescesBurst(t *testing.T) {
	clock := NewManualClock(epoch)
	d := &captureDispatcher{}
	n := New(d, WithClock(clock))

	// five events within one second
	sites := []string{"proteincookies.co", "proteinbars.co", "proteinbars.co", "proteinbites.co", "proteincookies.co"}
	for _, site := range sites {
		if !n.Observe(published(site)) {
			t.Fatalf("Expected event for %s to qualify", site)
		}
		clock.Advance(200 * time.Millisecond)
	}

	if clock.Scheduled() != 1 {
		t.Fatalf("Expected exactly one scheduled flush, got %d", clock.Scheduled())
	}
	if len(d.sent) != 0 {
		t.Fatal("Expected nothing sent before the delay")
	}

	// first event was at epoch; now at epoch+1s
	clock.Advance(3999 * time.Millisecond)
	if len(d.sent) != 0 {
		t.Fatal("Expected nothing sent before 5s")
	}
	clock.Advance(time.Millisecond)

	if len(d.sent) != 1 {
		t.Fatalf("Expected 1 notification, got %d", len(d.sent))
	}
	note := d.sent[0]
	if note.Site != "proteincookies.co" {
		t.Errorf("Expected site captured at first event, got %q", note.Site)
	}
	if note.Events != 5 {
		t.Errorf("Expected 5 coalesced events, got %d", note.Events)
	}
	if got := note.Timestamp.Sub(epoch); got < DefaultDelay {
		t.Errorf("Expected flush at least %s after first event, got %s", DefaultDelay, got)
	}
	if n.Pending() {
		t.Error("Expected notifier to be idle after flush")
	}
}

func TestNotifierRearmsAfterFlush(t *testing.T) {
	clock := NewManualClock(epoch)
	d := &captureDispatcher{}
	n := New(d, WithClock(clock), WithDelay(time.Second))

	n.Observe(published("a.co"))
	clock.Advance(time.Second)
	n.Observe(published("b.co"))
	clock.Advance(time.Second)

	if len(d.sent) != 2 {
		t.Fatalf("Expected 2 notifications, got %d", len(d.sent))
	}
	if d.sent[0].Site != "a.co" || d.sent[1].Site != "b.co" {
		t.Errorf("Unexpected sites %q, %q", d.sent[0].Site, d.sent[1].Site)
	}
}

func TestDeleteIsUnscoped(t *testing.T) {
	clock := NewManualClock(epoch)
	d := &captureDispatcher{}
	n := New(d, WithClock(clock))

	n.Observe(LifecycleEvent{Action: ActionDelete, Model: "recipe", Site: "stale.co"})
	n.Observe(published("proteinbars.co"))
	clock.Advance(DefaultDelay)

	if len(d.sent) != 1 {
		t.Fatalf("Expected 1 notification, got %d", len(d.sent))
	}
	if d.sent[0].Site != "" {
		t.Errorf("Expected unscoped notification, got site %q", d.sent[0].Site)
	}
}

func TestDraftChangesDoNotArm(t *testing.T) {
	clock := NewManualClock(epoch)
	n := New(&captureDispatcher{}, WithClock(clock))

	if n.Observe(LifecycleEvent{Action: ActionCreate, Model: "recipe", Site: "a.co"}) {
		t.Error("Expected unpublished create not to qualify")
	}
	if n.Pending() || clock.Scheduled() != 0 {
		t.Error("Expected notifier to stay idle")
	}
}

func TestQualifies(t *testing.T) {
	tests := []struct {
		evt  LifecycleEvent
		want bool
	}{
		{LifecycleEvent{Action: ActionCreate, Published: true}, true},
		{LifecycleEvent{Action: ActionCreate}, false},
		{LifecycleEvent{Action: ActionUpdate}, false},
		{LifecycleEvent{Action: ActionDelete}, true},
		{LifecycleEvent{Action: ActionPublish}, true},
		{LifecycleEvent{Action: ActionUnpublish}, true},
		{LifecycleEvent{Action: "archive", Published: true}, false},
	}
	for _, tt := range tests {
		if got := tt.evt.Qualifies(); got != tt.want {
			t.Errorf("%+v: expected %v, got %v", tt.evt, tt.want, got)
		}
	}
}

func TestDispatchFailureIsSwallowed(t *testing.T) {
	clock := NewManualClock(epoch)
	d := &captureDispatcher{err: errors.New("401 bad credentials")}
	rec := &captureRecorder{}
	metrics, err := telemetry.NewMetrics(telemetry.DefaultConfig().Metrics)
	if err != nil {
		t.Fatal(err)
	}
	n := New(d, WithClock(clock), WithRecorder(rec), WithMetrics(metrics))

	n.Observe(published("a.co"))
	clock.Advance(DefaultDelay)

	if d.calls != 1 {
		t.Fatalf("Expected one dispatch attempt, got %d", d.calls)
	}
	if n.Pending() {
		t.Error("Expected notifier to return to idle after a failed flush")
	}
	if len(rec.errs) != 1 || rec.errs[0] == nil || rec.deliveries[0] != DeliveryFailed {
		t.Errorf("Expected the failure to be recorded, got %v %v", rec.deliveries, rec.errs)
	}
	expected := `
# HELP empire_notifications_total Change notifications dispatched, by result
# TYPE empire_notifications_total counter
empire_notifications_total{result="failed"} 1
`
	if err := testutil.GatherAndCompare(metrics.Registry(), strings.NewReader(expected), "empire_notifications_total"); err != nil {
		t.Errorf("Unexpected notification metrics: %v", err)
	}

	// the notifier keeps working after a failure
	d.err = nil
	n.Observe(published("b.co"))
	clock.Advance(DefaultDelay)
	if len(d.sent) != 1 {
		t.Errorf("Expected a later notification to go through, got %d", len(d.sent))
	}
}

func TestConcurrentObserveSchedulesOneFlush(t *testing.T) {
	clock := NewManualClock(epoch)
	n := New(&captureDispatcher{}, WithClock(clock))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n.Observe(published("a.co"))
		}()
	}
	wg.Wait()

	if clock.Scheduled() != 1 {
		t.Errorf("Expected one scheduled flush, got %d", clock.Scheduled())
	}
}

func TestWaitForPendingFlush(t *testing.T) {
	d := &captureDispatcher{}
	n := New(d, WithDelay(20*time.Millisecond))
	n.Observe(published("a.co"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := n.Wait(ctx); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sent) != 1 {
		t.Errorf("Expected flush to have been delivered, got %d", len(d.sent))
	}
}

func TestSendWithoutWebhookIsSkipped(t *testing.T) {
	rec := &captureRecorder{}
	n := New(NewDispatcher(DispatcherConfig{}), WithRecorder(rec))

	if got := n.Send(context.Background(), Notification{Site: "a.co", Timestamp: epoch, Events: 1}); got != DeliverySkipped {
		t.Errorf("Expected %s, got %s", DeliverySkipped, got)
	}
	if len(rec.deliveries) != 1 || rec.deliveries[0] != DeliverySkipped {
		t.Errorf("Expected skipped delivery to be recorded, got %v", rec.deliveries)
	}
}
