package domain

import "fmt"

// MessageStatus defines the lifecycle states of a message.
type MessageStatus string

const (
	MessageStatusQueued      MessageStatus = "queued"
	MessageStatusSending     MessageStatus = "sending"
	MessageStatusSent        MessageStatus = "sent"
	MessageStatusDelivered   MessageStatus = "delivered"
	MessageStatusFailed      MessageStatus = "failed"
	MessageStatusUndelivered MessageStatus = "undelivered"
	MessageStatusCanceled    MessageStatus = "canceled"
)

// messageTransitions is the authoritative transition table. Any (from, to)
// pair not listed here must be rejected before writing.
var messageTransitions = map[MessageStatus][]MessageStatus{
	MessageStatusQueued:      {MessageStatusSending, MessageStatusCanceled},
	MessageStatusSending:     {MessageStatusSent, MessageStatusFailed},
	MessageStatusSent:        {MessageStatusDelivered, MessageStatusUndelivered, MessageStatusFailed},
	MessageStatusFailed:      {MessageStatusQueued},
	MessageStatusUndelivered: {MessageStatusQueued},
	MessageStatusDelivered:   {},
	MessageStatusCanceled:    {},
}

// IsValid reports whether s is a known message status.
func (s MessageStatus) IsValid() bool {
	_, ok := messageTransitions[s]
	return ok
}

// IsTerminal reports whether no further automatic transition occurs from s.
func (s MessageStatus) IsTerminal() bool {
	return s == MessageStatusDelivered || s == MessageStatusCanceled
}

// CanRetry reports whether a message in this status is eligible for a retry
// transition back to queued.
func (s MessageStatus) CanRetry() bool {
	return s == MessageStatusFailed || s == MessageStatusUndelivered
}

// CanTransition reports whether from→to appears in the transition table.
func CanTransition(from, to MessageStatus) bool {
	for _, next := range messageTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanAdvance reports whether to is reachable from from over forward
// transitions. Retry edges back to queued are excluded so the retry cycle
// does not make backward jumps look reachable. Provider callbacks can
// arrive ahead of the worker's own writes; an early callback is accepted
// when the claimed status lies further along the lifecycle.
func CanAdvance(from, to MessageStatus) bool {
	if from == to {
		return false
	}
	seen := map[MessageStatus]bool{from: true}
	frontier := []MessageStatus{from}
	for len(frontier) > 0 {
		next := frontier[0]
		frontier = frontier[1:]
		for _, s := range messageTransitions[next] {
			if s == MessageStatusQueued {
				continue
			}
			if s == to {
				return true
			}
			if !seen[s] {
				seen[s] = true
				frontier = append(frontier, s)
			}
		}
	}
	return false
}

// ParseMessageStatus normalizes a provider-supplied status string.
func ParseMessageStatus(s string) (MessageStatus, error) {
	status := MessageStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("%w: unknown message status %q", ErrValidation, s)
	}
	return status, nil
}

// DeliveryStatus tracks provider-lifecycle granularity on the delivery
// record. It is a superset of MessageStatus; the receiving states apply to
// inbound messages only.
type DeliveryStatus string

const (
	DeliveryStatusPending     DeliveryStatus = "pending"
	DeliveryStatusQueued      DeliveryStatus = "queued"
	DeliveryStatusSending     DeliveryStatus = "sending"
	DeliveryStatusSent        DeliveryStatus = "sent"
	DeliveryStatusDelivered   DeliveryStatus = "delivered"
	DeliveryStatusFailed      DeliveryStatus = "failed"
	DeliveryStatusUndelivered DeliveryStatus = "undelivered"
	DeliveryStatusCanceled    DeliveryStatus = "canceled"
	DeliveryStatusAccepted    DeliveryStatus = "accepted"
	DeliveryStatusReceiving   DeliveryStatus = "receiving"
	DeliveryStatusReceived    DeliveryStatus = "received"
)

// IsTerminal reports whether the delivery has reached a final state.
func (s DeliveryStatus) IsTerminal() bool {
	switch s {
	case DeliveryStatusDelivered, DeliveryStatusFailed, DeliveryStatusCanceled,
		DeliveryStatusUndelivered, DeliveryStatusReceived:
		return true
	}
	return false
}

// IsValid reports whether s is a known delivery status.
func (s DeliveryStatus) IsValid() bool {
	switch s {
	case DeliveryStatusPending, DeliveryStatusQueued, DeliveryStatusSending,
		DeliveryStatusSent, DeliveryStatusDelivered, DeliveryStatusFailed,
		DeliveryStatusUndelivered, DeliveryStatusCanceled,
		DeliveryStatusAccepted, DeliveryStatusReceiving, DeliveryStatusReceived:
		return true
	}
	return false
}

// ParseDeliveryStatus normalizes a provider-supplied delivery status string.
func ParseDeliveryStatus(s string) (DeliveryStatus, error) {
	status := DeliveryStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("%w: unknown delivery status %q", ErrValidation, s)
	}
	return status, nil
}

// DefaultMaxDeliveryAttempts bounds automatic redelivery.
const DefaultMaxDeliveryAttempts = 3

// CanRetryDelivery reports whether a delivery may be attempted again.
// Delivered, received, and canceled deliveries are never retried regardless
// of the attempt count.
func CanRetryDelivery(status DeliveryStatus, attempts, maxAttempts int) bool {
	if status != DeliveryStatusFailed && status != DeliveryStatusUndelivered {
		return false
	}
	return attempts < maxAttempts
}

// deliveryStatusByMessageStatus is the reconciler's mapping from message
// status to delivery status. The delivery side uses a coarser failure bucket
// than the message side. Kept as an explicit table so the mapping stays
// auditable as statuses are added.
var deliveryStatusByMessageStatus = map[MessageStatus]DeliveryStatus{
	MessageStatusQueued:      DeliveryStatusPending,
	MessageStatusSending:     DeliveryStatusPending,
	MessageStatusSent:        DeliveryStatusSent,
	MessageStatusDelivered:   DeliveryStatusDelivered,
	MessageStatusFailed:      DeliveryStatusFailed,
	MessageStatusUndelivered: DeliveryStatusFailed,
	MessageStatusCanceled:    DeliveryStatusFailed,
}

// DeliveryStatusFor returns the delivery status that corresponds to a
// message status.
func DeliveryStatusFor(s MessageStatus) DeliveryStatus {
	if ds, ok := deliveryStatusByMessageStatus[s]; ok {
		return ds
	}
	return DeliveryStatusPending
}
