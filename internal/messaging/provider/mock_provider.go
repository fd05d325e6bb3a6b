package provider

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// MockProvider is a test and local-run implementation of Client.
type MockProvider struct {
	logger         *slog.Logger
	FailWith       *Error        // when set, Send returns this error
	SimulatedDelay time.Duration // simulated network latency
}

// NewMockProvider creates a provider that accepts every message.
func NewMockProvider(logger *slog.Logger) *MockProvider {
	return &MockProvider{logger: logger.With("provider", "mock")}
}

func (p *MockProvider) Name() string { return "mock" }

func (p *MockProvider) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	if p.SimulatedDelay > 0 {
		select {
		case <-time.After(p.SimulatedDelay):
		case <-ctx.Done():
			return nil, NewError(ErrorTimeout, "TIMEOUT", "mock provider timed out", ctx.Err())
		}
	}

	if p.FailWith != nil {
		p.logger.WarnContext(ctx, "mock provider simulated failure",
			"message_id", req.MessageID,
			"class", p.FailWith.Class,
		)
		return nil, p.FailWith
	}

	externalID := "mock-" + uuid.NewString()
	p.logger.InfoContext(ctx, "mock provider accepted message",
		"message_id", req.MessageID,
		"external_id", externalID,
	)
	return &SendResult{ExternalID: externalID, ProviderStatus: "accepted"}, nil
}
