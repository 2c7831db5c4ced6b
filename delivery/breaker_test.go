package delivery_test

import (
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/Mister-Storm/slipnotify/delivery"
	"github.com/Mister-Storm/slipnotify/id"
)

func TestBreakersGetReturnsSameInstance(t *testing.T) {
	b := delivery.NewBreakers(delivery.BreakerConfig{})
	subID := id.NewSubscriberID()

	if b.Get(subID) != b.Get(subID) {
		t.Error("expected the same breaker for the same subscriber")
	}
	if b.Get(subID) == b.Get(id.NewSubscriberID()) {
		t.Error("expected distinct breakers for distinct subscribers")
	}
}

func TestBreakersTripAfterThreshold(t *testing.T) {
	b := delivery.NewBreakers(delivery.BreakerConfig{FailureThreshold: 3, OpenFor: time.Minute})
	cb := b.Get(id.NewSubscriberID())

	fail := func() (delivery.Result, error) {
		return delivery.Result{StatusCode: 500}, errors.New("boom")
	}

	for i := 0; i < 3; i++ {
		if _, err := cb.Execute(fail); errors.Is(err, gobreaker.ErrOpenState) {
			t.Fatalf("breaker opened early, after %d failures", i)
		}
	}

	if _, err := cb.Execute(fail); !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected ErrOpenState after threshold, got %v", err)
	}
}

func TestBreakersRemoveResetsState(t *testing.T) {
	b := delivery.NewBreakers(delivery.BreakerConfig{FailureThreshold: 1, OpenFor: time.Hour})
	subID := id.NewSubscriberID()

	cb := b.Get(subID)
	_, _ = cb.Execute(func() (delivery.Result, error) {
		return delivery.Result{}, errors.New("boom")
	})
	if cb.State() != gobreaker.StateOpen {
		t.Fatalf("expected open state, got %v", cb.State())
	}

	b.Remove(subID)
	if b.Get(subID).State() != gobreaker.StateClosed {
		t.Error("expected a fresh closed breaker after Remove")
	}
}
