package app

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/novasms/gateway/internal/messaging/domain"
	"github.com/novasms/gateway/internal/messaging/notifier"
	"github.com/novasms/gateway/internal/messaging/provider"
	"github.com/novasms/gateway/internal/messaging/queue"
	"github.com/novasms/gateway/internal/ratelimit"
)

type mockMessageRepo struct {
	mock.Mock
}

func (m *mockMessageRepo) Create(ctx context.Context, q domain.Querier, msg *domain.Message) error {
	args := m.Called(ctx, q, msg)
	return args.Error(0)
}

func (m *mockMessageRepo) GetByID(ctx context.Context, q domain.Querier, tenantID, id uuid.UUID) (*domain.Message, error) {
	args := m.Called(ctx, q, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

func (m *mockMessageRepo) GetByExternalID(ctx context.Context, q domain.Querier, tenantID uuid.UUID, externalID string) (*domain.Message, error) {
	args := m.Called(ctx, q, tenantID, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

func (m *mockMessageRepo) Update(ctx context.Context, q domain.Querier, msg *domain.Message) error {
	args := m.Called(ctx, q, msg)
	return args.Error(0)
}

type mockDeliveryRepo struct {
	mock.Mock
}

func (m *mockDeliveryRepo) Create(ctx context.Context, q domain.Querier, d *domain.Delivery) error {
	args := m.Called(ctx, q, d)
	return args.Error(0)
}

func (m *mockDeliveryRepo) GetByMessageID(ctx context.Context, q domain.Querier, messageID uuid.UUID) (*domain.Delivery, error) {
	args := m.Called(ctx, q, messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Delivery), args.Error(1)
}

func (m *mockDeliveryRepo) Update(ctx context.Context, q domain.Querier, d *domain.Delivery) error {
	args := m.Called(ctx, q, d)
	return args.Error(0)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Emit(ctx context.Context, entity string, action notifier.Action, change notifier.Change) {
	m.Called(ctx, entity, action, change)
}

type mockQueue struct {
	mock.Mock
}

func (m *mockQueue) Enqueue(ctx context.Context, job queue.DispatchJob, opts queue.EnqueueOptions) error {
	args := m.Called(ctx, job, opts)
	return args.Error(0)
}

type mockRateLimiter struct {
	mock.Mock
}

func (m *mockRateLimiter) CheckAndIncrement(ctx context.Context, tenantID string, messageType ratelimit.MessageType) *ratelimit.Result {
	args := m.Called(ctx, tenantID, messageType)
	return args.Get(0).(*ratelimit.Result)
}

func (m *mockRateLimiter) CheckOnly(ctx context.Context, tenantID string, messageType ratelimit.MessageType) *ratelimit.Result {
	args := m.Called(ctx, tenantID, messageType)
	return args.Get(0).(*ratelimit.Result)
}

func (m *mockRateLimiter) Reset(ctx context.Context, tenantID string, messageType ratelimit.MessageType) error {
	args := m.Called(ctx, tenantID, messageType)
	return args.Error(0)
}

type mockProviderClient struct {
	mock.Mock
}

func (m *mockProviderClient) Send(ctx context.Context, req provider.SendRequest) (*provider.SendResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.SendResult), args.Error(1)
}

func (m *mockProviderClient) Name() string {
	return "mock"
}

type mockReconciler struct {
	mock.Mock
}

func (m *mockReconciler) UpdateStatus(ctx context.Context, tenantID, messageID uuid.UUID, newStatus domain.MessageStatus) (*domain.Message, error) {
	args := m.Called(ctx, tenantID, messageID, newStatus)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

func (m *mockReconciler) UpdateWithExternalID(ctx context.Context, tenantID, messageID uuid.UUID, newStatus domain.MessageStatus, externalID string) (*domain.Message, error) {
	args := m.Called(ctx, tenantID, messageID, newStatus, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

func (m *mockReconciler) UpdateWithError(ctx context.Context, tenantID, messageID uuid.UUID, newStatus domain.MessageStatus, errorCode, errorMessage string) (*domain.Message, error) {
	args := m.Called(ctx, tenantID, messageID, newStatus, errorCode, errorMessage)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

func (m *mockReconciler) ApplyCallback(ctx context.Context, tenantID uuid.UUID, externalID, status string, errorCode, errorMessage *string) (*domain.Message, error) {
	args := m.Called(ctx, tenantID, externalID, status, errorCode, errorMessage)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

func (m *mockReconciler) IngestInbound(ctx context.Context, tenantID uuid.UUID, in InboundMessage) (*domain.Message, bool, error) {
	args := m.Called(ctx, tenantID, in)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*domain.Message), args.Bool(1), args.Error(2)
}
