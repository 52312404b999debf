// Package idempotency implements the replay guard for inbound payment
// webhooks. Payment providers deliver at-least-once; the guard collapses
// duplicate deliveries of the same real-world event into a single side
// effect.
//
// The dedup window is time-bounded by design: records expire after the
// configured TTL, so a very late redelivery is reprocessed. Bounded memory is
// the trade-off; the permanent audit trail is the subscription_payments
// ledger, keyed by provider reference.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tillpoint/internal/types"
)

// ErrNoIdentifiers is returned by ResolveKey when the delivery carries
// neither a business transaction id nor a delivery event id.
var ErrNoIdentifiers = errors.New("idempotency: no business transaction id or delivery event id")

// Key is the canonical dedup key for one real-world payment event.
type Key string

// ResolveKey collapses a delivery's identifiers into a single canonical key.
//
// The business transaction id is preferred: two deliveries with different
// delivery ids but the same underlying transaction must land on the same key,
// so the delivery id alone is not a sufficient dedup key. The delivery event
// id is the fallback for payloads that carry no business id.
func ResolveKey(provider types.PaymentProvider, businessTxID, deliveryEventID string) (Key, error) {
	switch {
	case businessTxID != "":
		return Key(fmt.Sprintf("%s:tx:%s", provider, businessTxID)), nil
	case deliveryEventID != "":
		return Key(fmt.Sprintf("%s:evt:%s", provider, deliveryEventID)), nil
	default:
		return "", ErrNoIdentifiers
	}
}

// Store is the replay-guard storage contract. CheckAndRecord is
// atomic-insert-if-absent: the first caller for a key wins (isNew=true) and
// subsequent callers within the TTL window observe isNew=false. This is the
// sole serialization point for concurrent deliveries of one event.
//
// A Store error must not fail the webhook: the gateway logs the degradation
// and proceeds with best-effort processing so providers do not retry-storm.
type Store interface {
	CheckAndRecord(ctx context.Context, key Key, ttl time.Duration) (isNew bool, err error)
}
