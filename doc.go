// Package slipnotify provides the webhook notification subsystem for a
// bank payment-slip service.
//
// Slipnotify is a library rather than a service. Import it into the slip
// processing application to get subscriber management, signed webhook
// deliveries with in-call retries and per-subscriber circuit breaking, a
// delivery ledger, a periodic retry sweep, and a dead letter queue for
// deliveries that exhaust their attempt ceiling.
//
// Key features:
//   - Closed slip event taxonomy (SLIP_CREATED through SLIP_REGISTRATION_FAILED)
//   - HMAC-SHA256 signature on every delivery (X-Webhook-Signature)
//   - Linear backoff in-call retries plus a periodic retry sweep
//   - Per-subscriber circuit breakers so one bad endpoint cannot stall the rest
//   - Dead letter queue with operator resolution workflow
//   - Composable store pattern with Redis and in-memory backends
//   - Idempotency and rate limit middleware for the inbound API
//
// Quick start:
//
//	n, err := slipnotify.New(
//	    slipnotify.WithStore(memory.New()),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	n.Start(ctx)
//	defer n.Stop(ctx)
//
//	n.OnSlipEvent(ctx, slip.NewPaid(slipID, time.Now(), "150.00", "2026-08-29"))
package slipnotify
