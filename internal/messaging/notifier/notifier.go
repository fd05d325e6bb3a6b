// Package notifier publishes entity change events for external observers
// such as a live UI. Emission is fire-and-forget from the pipeline's
// perspective.
package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/novasms/gateway/internal/platform/messagebroker"
)

// Action is the kind of change being announced.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
)

// Change carries the affected record and optional before/after snapshots.
type Change struct {
	RecordID string `json:"record_id"`
	Before   any    `json:"before,omitempty"`
	After    any    `json:"after,omitempty"`
}

// ChangeNotifier emits change notifications. Implementations must never
// block the pipeline; failures are logged and dropped.
type ChangeNotifier interface {
	Emit(ctx context.Context, entity string, action Action, change Change)
}

// NATSNotifier publishes change events to "<prefix>.<entity>.<action>".
type NATSNotifier struct {
	client        *messagebroker.NATSClient
	subjectPrefix string
	logger        *slog.Logger
}

func NewNATSNotifier(client *messagebroker.NATSClient, subjectPrefix string, logger *slog.Logger) *NATSNotifier {
	return &NATSNotifier{
		client:        client,
		subjectPrefix: subjectPrefix,
		logger:        logger.With("component", "change_notifier"),
	}
}

func (n *NATSNotifier) Emit(ctx context.Context, entity string, action Action, change Change) {
	data, err := json.Marshal(change)
	if err != nil {
		n.logger.ErrorContext(ctx, "failed to marshal change event", "error", err, "entity", entity, "action", action)
		return
	}
	subject := fmt.Sprintf("%s.%s.%s", n.subjectPrefix, entity, action)
	if err := n.client.Publish(ctx, subject, data); err != nil {
		n.logger.WarnContext(ctx, "failed to publish change event",
			"error", err,
			"subject", subject,
			"record_id", change.RecordID,
		)
	}
}

// Nop discards all notifications.
type Nop struct{}

func (Nop) Emit(ctx context.Context, entity string, action Action, change Change) {}
