package redis

// Key prefixes for primary entity storage.
const (
	prefixSubscriber = "sn:sub:"
	prefixAttempt    = "sn:att:"
	prefixDLQ        = "sn:dlq:"
	prefixIdem       = "sn:idem:"
)

// Key prefixes for sorted set indexes.
const (
	zSubscriberAll = "sn:z:sub:all"
	zAttemptAll    = "sn:z:att:all"
	zAttemptPend   = "sn:z:att:pending"
	zAttemptSub    = "sn:z:att:sub:" // + subscriber ID
	zDLQAll        = "sn:z:dlq:all"
)

// Key prefix for set indexes.
const (
	sSubscriberEvent = "sn:s:sub:event:" // + event type
)

// entityKey returns the primary key for an entity.
func entityKey(prefix, id string) string {
	return prefix + id
}

// eventSetKey returns the set key for active subscribers of an event type.
func eventSetKey(eventType string) string {
	return sSubscriberEvent + eventType
}
