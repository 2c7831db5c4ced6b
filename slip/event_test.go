package slip_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/Mister-Storm/slipnotify/id"
	"github.com/Mister-Storm/slipnotify/slip"
)

func TestWebhookEventTypeMapping(t *testing.T) {
	slipID := id.NewSlipID()
	at := time.Now()

	cases := []struct {
		event slip.Event
		want  slip.EventType
	}{
		{slip.NewCreated(slipID, at, "341", "150.00", "2026-09-30", "12345678900"), slip.EventSlipCreated},
		{slip.NewRegistered(slipID, at, "ONLINE", "reg-1"), slip.EventSlipRegistered},
		{slip.NewPaid(slipID, at, "150.00", "2026-08-29"), slip.EventSlipPaid},
		{slip.NewCancelled(slipID, at, "payer request"), slip.EventSlipCancelled},
		{slip.NewExpired(slipID, at), slip.EventSlipExpired},
		{slip.NewRegistrationFailed(slipID, at, "invalid payer document", "ERR-42"), slip.EventSlipRegistrationFailed},
	}

	for _, tc := range cases {
		got, ok := slip.WebhookEventType(tc.event)
		if !ok {
			t.Fatalf("WebhookEventType(%T) not ok", tc.event)
		}
		if got != tc.want {
			t.Errorf("WebhookEventType(%T) = %q, want %q", tc.event, got, tc.want)
		}
	}
}

type unknownEvent struct{ slip.Event }

func TestWebhookEventTypeUnknown(t *testing.T) {
	if _, ok := slip.WebhookEventType(unknownEvent{}); ok {
		t.Error("expected ok=false for event outside the taxonomy")
	}
}

func TestValidEventType(t *testing.T) {
	for _, et := range slip.AllEventTypes {
		if !slip.ValidEventType(et) {
			t.Errorf("ValidEventType(%q) = false", et)
		}
	}
	if slip.ValidEventType("SLIP_TELEPORTED") {
		t.Error("ValidEventType accepted an unknown type")
	}
}

func TestBuildPayloadCommonFields(t *testing.T) {
	slipID := id.NewSlipID()
	occurred := time.Date(2026, 8, 29, 12, 30, 0, 0, time.UTC)

	raw, err := slip.BuildPayload(slip.NewPaid(slipID, occurred, "99.90", "2026-08-29"))
	if err != nil {
		t.Fatalf("BuildPayload: %v", err)
	}

	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}

	if body["eventType"] != "SLIP_PAID" {
		t.Errorf("eventType = %v, want SLIP_PAID", body["eventType"])
	}
	if body["slipId"] != slipID.String() {
		t.Errorf("slipId = %v, want %s", body["slipId"], slipID)
	}
	if body["timestamp"] != "2026-08-29T12:30:00Z" {
		t.Errorf("timestamp = %v, want 2026-08-29T12:30:00Z", body["timestamp"])
	}
	if body["paidAmount"] != "99.90" {
		t.Errorf("paidAmount = %v, want 99.90", body["paidAmount"])
	}
	if body["paymentDate"] != "2026-08-29" {
		t.Errorf("paymentDate = %v, want 2026-08-29", body["paymentDate"])
	}
}

func TestBuildPayloadUnknownEvent(t *testing.T) {
	if _, err := slip.BuildPayload(unknownEvent{}); err == nil {
		t.Error("expected error for event outside the taxonomy")
	}
}
