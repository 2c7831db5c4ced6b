package scheduler_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Mister-Storm/slipnotify/delivery"
	"github.com/Mister-Storm/slipnotify/dlq"
	"github.com/Mister-Storm/slipnotify/id"
	"github.com/Mister-Storm/slipnotify/internal/entity"
	"github.com/Mister-Storm/slipnotify/scheduler"
	"github.com/Mister-Storm/slipnotify/slip"
	"github.com/Mister-Storm/slipnotify/store/memory"
	"github.com/Mister-Storm/slipnotify/subscriber"
)

func ctx() context.Context { return context.Background() }

type fixture struct {
	store   *memory.Store
	subs    *subscriber.Service
	exec    *delivery.Executor
	dlq     *dlq.Service
	sweeper *scheduler.Sweeper
}

func newFixture(maxAttempts int) *fixture {
	store := memory.New()
	exec := delivery.NewExecutor(store, delivery.Config{
		Timeout:     5 * time.Second,
		MaxRetries:  3,
		RetryDelay:  time.Millisecond,
		MaxAttempts: maxAttempts,
	}, nil)
	dlqSvc := dlq.NewService(store, nil)
	return &fixture{
		store:   store,
		subs:    subscriber.NewService(store, nil),
		exec:    exec,
		dlq:     dlqSvc,
		sweeper: scheduler.NewSweeper(store, store, exec, dlqSvc, scheduler.Config{}, nil),
	}
}

func (f *fixture) subscribe(t *testing.T, url string) *subscriber.Subscriber {
	t.Helper()
	sub, err := f.subs.Create(ctx(), subscriber.Input{
		URL:    url,
		Events: []slip.EventType{slip.EventSlipPaid},
	})
	if err != nil {
		t.Fatal(err)
	}
	return sub
}

func TestSweepRecoversPendingDelivery(t *testing.T) {
	var healthy atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if healthy.Load() {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := newFixture(5)
	sub := f.subscribe(t, srv.URL)

	att, err := f.exec.Deliver(ctx(), sub, id.NewSlipID(), slip.EventSlipPaid, []byte(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	if att.State != delivery.StatePending {
		t.Fatalf("precondition: state = %q, want pending", att.State)
	}

	healthy.Store(true)
	counters, err := f.sweeper.RunOnce(ctx())
	if err != nil {
		t.Fatal(err)
	}
	if counters.Scanned != 1 || counters.Recovered != 1 {
		t.Fatalf("counters = %+v, want 1 scanned, 1 recovered", counters)
	}

	stored, _ := f.store.GetAttempt(ctx(), att.ID)
	if stored.State != delivery.StateDelivered {
		t.Errorf("state = %q, want delivered", stored.State)
	}
	if stored.AttemptNumber != 4 {
		t.Errorf("attempt number = %d, want 4 (3 in-call + 1 sweep)", stored.AttemptNumber)
	}

	// Nothing left for the next sweep.
	counters, err = f.sweeper.RunOnce(ctx())
	if err != nil {
		t.Fatal(err)
	}
	if counters.Scanned != 0 {
		t.Errorf("second sweep scanned %d, want 0", counters.Scanned)
	}
}

func TestSweepEscalatesAtCeiling(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	// Ceiling of 4: three in-call attempts plus one sweep attempt.
	f := newFixture(4)
	sub := f.subscribe(t, srv.URL)

	att, err := f.exec.Deliver(ctx(), sub, id.NewSlipID(), slip.EventSlipPaid, []byte(`{}`))
	if err != nil {
		t.Fatal(err)
	}

	counters, err := f.sweeper.RunOnce(ctx())
	if err != nil {
		t.Fatal(err)
	}
	if counters.Escalated != 1 {
		t.Fatalf("counters = %+v, want 1 escalated", counters)
	}

	stored, _ := f.store.GetAttempt(ctx(), att.ID)
	if stored.State != delivery.StateEscalated {
		t.Errorf("state = %q, want escalated", stored.State)
	}
	if stored.AttemptNumber != 4 {
		t.Errorf("attempt number = %d, want 4", stored.AttemptNumber)
	}

	entries, err := f.dlq.FindPending(ctx(), dlq.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("dlq entries = %d, want 1", len(entries))
	}
	if entries[0].EntityID != att.ID {
		t.Error("dlq entry does not reference the attempt")
	}

	// Escalation happens exactly once.
	counters, err = f.sweeper.RunOnce(ctx())
	if err != nil {
		t.Fatal(err)
	}
	if counters.Scanned != 0 || counters.Escalated != 0 {
		t.Errorf("second sweep = %+v, want nothing to do", counters)
	}
	entries, _ = f.dlq.FindPending(ctx(), dlq.ListOpts{})
	if len(entries) != 1 {
		t.Errorf("dlq entries after second sweep = %d, want 1", len(entries))
	}
}

func TestSweepCountsStillFailingDelivery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	// Ceiling of 10: the sweep attempt fails but does not exhaust the record.
	f := newFixture(10)
	sub := f.subscribe(t, srv.URL)

	att, err := f.exec.Deliver(ctx(), sub, id.NewSlipID(), slip.EventSlipPaid, []byte(`{}`))
	if err != nil {
		t.Fatal(err)
	}

	counters, err := f.sweeper.RunOnce(ctx())
	if err != nil {
		t.Fatal(err)
	}
	if counters.Scanned != 1 || counters.Failed != 1 {
		t.Fatalf("counters = %+v, want 1 scanned, 1 failed", counters)
	}
	if counters.Recovered != 0 || counters.Escalated != 0 {
		t.Fatalf("counters = %+v, want nothing recovered or escalated", counters)
	}

	stored, _ := f.store.GetAttempt(ctx(), att.ID)
	if stored.State != delivery.StatePending {
		t.Errorf("state = %q, want still pending", stored.State)
	}
}

func TestSweepSkipsMissingSubscriber(t *testing.T) {
	f := newFixture(5)

	att := &delivery.Attempt{
		Entity:        entity.New(),
		ID:            id.NewAttemptID(),
		SubscriberID:  id.NewSubscriberID(),
		EventType:     slip.EventSlipPaid,
		Payload:       []byte(`{}`),
		State:         delivery.StatePending,
		AttemptNumber: 1,
		MaxAttempts:   5,
	}
	if err := f.store.CreateAttempt(ctx(), att); err != nil {
		t.Fatal(err)
	}

	counters, err := f.sweeper.RunOnce(ctx())
	if err != nil {
		t.Fatal(err)
	}
	if counters.Skipped != 1 {
		t.Fatalf("counters = %+v, want 1 skipped", counters)
	}

	stored, _ := f.store.GetAttempt(ctx(), att.ID)
	if stored.State != delivery.StatePending {
		t.Errorf("state = %q, want still pending", stored.State)
	}
}

func TestSweepEscalatesDeactivatedSubscriber(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := newFixture(10)
	sub := f.subscribe(t, srv.URL)

	att, err := f.exec.Deliver(ctx(), sub, id.NewSlipID(), slip.EventSlipPaid, []byte(`{}`))
	if err != nil {
		t.Fatal(err)
	}

	if err := f.subs.Delete(ctx(), sub.ID); err != nil {
		t.Fatal(err)
	}

	counters, err := f.sweeper.RunOnce(ctx())
	if err != nil {
		t.Fatal(err)
	}
	if counters.Escalated != 1 {
		t.Fatalf("counters = %+v, want 1 escalated", counters)
	}

	stored, _ := f.store.GetAttempt(ctx(), att.ID)
	if stored.State != delivery.StateEscalated {
		t.Errorf("state = %q, want escalated", stored.State)
	}
}

func TestSweepSingleFlight(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := newFixture(5)
	sub := f.subscribe(t, srv.URL)

	att := &delivery.Attempt{
		Entity:        entity.New(),
		ID:            id.NewAttemptID(),
		SubscriberID:  sub.ID,
		EventType:     slip.EventSlipPaid,
		Payload:       []byte(`{}`),
		URL:           srv.URL,
		State:         delivery.StatePending,
		AttemptNumber: 1,
		MaxAttempts:   5,
	}
	if err := f.store.CreateAttempt(ctx(), att); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := f.sweeper.RunOnce(ctx())
		done <- err
	}()

	<-entered
	if _, err := f.sweeper.RunOnce(ctx()); !errors.Is(err, scheduler.ErrSweepRunning) {
		t.Errorf("expected ErrSweepRunning, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}
