package subscriber_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Mister-Storm/slipnotify"
	"github.com/Mister-Storm/slipnotify/id"
	"github.com/Mister-Storm/slipnotify/slip"
	"github.com/Mister-Storm/slipnotify/store/memory"
	"github.com/Mister-Storm/slipnotify/subscriber"
)

func ctx() context.Context { return context.Background() }

func newService() *subscriber.Service {
	s := memory.New()
	return subscriber.NewService(s, nil)
}

func TestSubscriberServiceCreate(t *testing.T) {
	svc := newService()

	sub, err := svc.Create(ctx(), subscriber.Input{
		URL:    "https://example.com/webhook",
		Events: []slip.EventType{slip.EventSlipPaid},
	})
	if err != nil {
		t.Fatal(err)
	}

	if sub.ID.String() == "" {
		t.Fatal("expected non-empty ID")
	}
	if !strings.HasPrefix(sub.Secret, "whsec_") {
		t.Fatalf("expected auto-generated secret, got %q", sub.Secret)
	}
	if !sub.Active {
		t.Fatal("expected active by default")
	}
}

func TestSubscriberServiceCreateValidation(t *testing.T) {
	svc := newService()

	// Missing URL
	_, err := svc.Create(ctx(), subscriber.Input{
		Events: []slip.EventType{slip.EventSlipPaid},
	})
	if err == nil {
		t.Fatal("expected error for missing URL")
	}

	// Non-http scheme
	_, err = svc.Create(ctx(), subscriber.Input{
		URL:    "ftp://example.com/webhook",
		Events: []slip.EventType{slip.EventSlipPaid},
	})
	if err == nil {
		t.Fatal("expected error for non-http URL")
	}

	// Missing event types
	_, err = svc.Create(ctx(), subscriber.Input{
		URL: "https://example.com/webhook",
	})
	if err == nil {
		t.Fatal("expected error for missing events")
	}

	// Unknown event type
	_, err = svc.Create(ctx(), subscriber.Input{
		URL:    "https://example.com/webhook",
		Events: []slip.EventType{"SLIP_TELEPORTED"},
	})
	if err == nil {
		t.Fatal("expected error for unknown event type")
	}

	var verr *subscriber.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if verr.Field != "events" {
		t.Fatalf("expected events field, got %q", verr.Field)
	}
}

func TestSubscriberServiceDeleteIsSoft(t *testing.T) {
	svc := newService()

	sub, _ := svc.Create(ctx(), subscriber.Input{
		URL:    "https://example.com/webhook",
		Events: []slip.EventType{slip.EventSlipPaid},
	})

	if err := svc.Delete(ctx(), sub.ID); err != nil {
		t.Fatal(err)
	}

	// Row survives, only fan-out stops.
	got, err := svc.Get(ctx(), sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Active {
		t.Fatal("expected inactive after delete")
	}

	active, err := svc.ListActiveByEvent(ctx(), slip.EventSlipPaid)
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range active {
		if s.ID == sub.ID {
			t.Fatal("deactivated subscriber still resolves for fan-out")
		}
	}
}

func TestSubscriberServiceDeleteIdempotent(t *testing.T) {
	svc := newService()

	sub, _ := svc.Create(ctx(), subscriber.Input{
		URL:    "https://example.com/webhook",
		Events: []slip.EventType{slip.EventSlipPaid},
	})

	if err := svc.Delete(ctx(), sub.ID); err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(ctx(), sub.ID); err != nil {
		t.Fatalf("second delete should be a no-op, got %v", err)
	}
}

func TestSubscriberServiceListActiveByEvent(t *testing.T) {
	svc := newService()

	_, _ = svc.Create(ctx(), subscriber.Input{
		URL:    "https://example.com/paid",
		Events: []slip.EventType{slip.EventSlipPaid},
	})
	_, _ = svc.Create(ctx(), subscriber.Input{
		URL:    "https://example.com/all",
		Events: []slip.EventType{slip.EventSlipPaid, slip.EventSlipExpired},
	})
	_, _ = svc.Create(ctx(), subscriber.Input{
		URL:    "https://example.com/cancelled",
		Events: []slip.EventType{slip.EventSlipCancelled},
	})

	paid, err := svc.ListActiveByEvent(ctx(), slip.EventSlipPaid)
	if err != nil {
		t.Fatal(err)
	}
	if len(paid) != 2 {
		t.Fatalf("expected 2 subscribers for SLIP_PAID, got %d", len(paid))
	}
}

func TestSubscriberServiceRotateSecret(t *testing.T) {
	svc := newService()

	sub, _ := svc.Create(ctx(), subscriber.Input{
		URL:    "https://example.com/webhook",
		Events: []slip.EventType{slip.EventSlipPaid},
	})

	oldSecret := sub.Secret
	newSecret, err := svc.RotateSecret(ctx(), sub.ID)
	if err != nil {
		t.Fatal(err)
	}

	if newSecret == oldSecret {
		t.Fatal("expected different secret after rotation")
	}

	got, _ := svc.Get(ctx(), sub.ID)
	if got.Secret != newSecret {
		t.Fatal("secret not persisted after rotation")
	}
}

func TestSubscriberServiceGetNotFound(t *testing.T) {
	svc := newService()

	_, err := svc.Get(ctx(), id.NewSubscriberID())
	if !errors.Is(err, slipnotify.ErrSubscriberNotFound) {
		t.Fatalf("expected ErrSubscriberNotFound, got %v", err)
	}
}
