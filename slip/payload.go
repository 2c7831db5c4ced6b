package slip

import (
	"encoding/json"
	"fmt"
	"time"
)

// BuildPayload renders the JSON body delivered to webhook subscribers.
//
// Every payload carries eventType, slipId and timestamp (RFC 3339 UTC);
// event-specific fields follow. The byte output of this function is the
// exact signing input for the delivery signature, so callers must deliver
// the returned slice unmodified.
func BuildPayload(ev Event) ([]byte, error) {
	eventType, ok := WebhookEventType(ev)
	if !ok {
		return nil, fmt.Errorf("slipnotify: unknown slip event type %T", ev)
	}

	body := map[string]any{
		"eventType": string(eventType),
		"slipId":    ev.SlipID().String(),
		"timestamp": ev.OccurredAt().UTC().Format(time.RFC3339),
	}

	switch e := ev.(type) {
	case Created:
		body["bankCode"] = e.BankCode
		body["amount"] = e.Amount
		body["dueDate"] = e.DueDate
		body["payerDocument"] = e.PayerDocument
	case Registered:
		body["registrationType"] = e.RegistrationType
		body["registrationId"] = e.RegistrationID
	case Paid:
		body["paidAmount"] = e.PaidAmount
		body["paymentDate"] = e.PaymentDate
	case Cancelled:
		body["reason"] = e.Reason
	case Expired:
		// No extra fields.
	case RegistrationFailed:
		body["errorMessage"] = e.ErrorMessage
		body["errorCode"] = e.ErrorCode
	}

	return json.Marshal(body)
}
