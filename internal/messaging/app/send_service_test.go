package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/novasms/gateway/internal/messaging/domain"
	"github.com/novasms/gateway/internal/messaging/notifier"
	"github.com/novasms/gateway/internal/messaging/queue"
	"github.com/novasms/gateway/internal/ratelimit"
)

func newSendFixture(t *testing.T) (*SendService, *mockMessageRepo, *mockRateLimiter, *mockQueue, *mockNotifier) {
	t.Helper()
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	messages := &mockMessageRepo{}
	limiter := &mockRateLimiter{}
	dispatchQ := &mockQueue{}
	changes := &mockNotifier{}
	svc := NewSendService(pool, messages, limiter, dispatchQ, changes, "sandbox", testLogger())
	return svc, messages, limiter, dispatchQ, changes
}

func allowedResult() *ratelimit.Result {
	return &ratelimit.Result{Allowed: true, Remaining: 4, ResetAt: time.Now().Add(time.Minute)}
}

func validSendRequest(tenantID uuid.UUID) SendRequest {
	return SendRequest{
		TenantID:  tenantID,
		Sender:    "ACME",
		Recipient: "+15551230001",
		Body:      "hello",
		Channel:   domain.ChannelSMS,
	}
}

func TestSendPersistsAndEnqueues(t *testing.T) {
	svc, messages, limiter, dispatchQ, changes := newSendFixture(t)
	tenantID := uuid.New()

	limiter.On("CheckAndIncrement", mock.Anything, tenantID.String(), ratelimit.MessageTypeSMS).Return(allowedResult())
	messages.On("Create", mock.Anything, mock.Anything, mock.MatchedBy(func(m *domain.Message) bool {
		return m.Status == domain.MessageStatusQueued && m.TenantID == tenantID && m.Direction == domain.DirectionOutbound
	})).Return(nil)
	dispatchQ.On("Enqueue", mock.Anything, mock.MatchedBy(func(job queue.DispatchJob) bool {
		return job.TenantID == tenantID && job.RetryAttempt == 0 && job.Message.Recipient == "+15551230001"
	}), mock.MatchedBy(func(opts queue.EnqueueOptions) bool {
		return opts.Priority == domain.PriorityNormal
	})).Return(nil)
	changes.On("Emit", mock.Anything, "message", notifier.ActionCreated, mock.Anything).Once()

	msg, err := svc.Send(context.Background(), validSendRequest(tenantID))
	require.NoError(t, err)
	assert.Equal(t, domain.MessageStatusQueued, msg.Status)
	assert.Equal(t, domain.PriorityNormal, msg.Priority)

	messages.AssertExpectations(t)
	dispatchQ.AssertExpectations(t)
	changes.AssertExpectations(t)
}

func TestSendRejectsInvalidRequest(t *testing.T) {
	svc, messages, limiter, _, _ := newSendFixture(t)
	tenantID := uuid.New()

	cases := map[string]SendRequest{
		"missing sender":    {TenantID: tenantID, Recipient: "+15551230001", Body: "hi", Channel: domain.ChannelSMS},
		"bad recipient":     {TenantID: tenantID, Sender: "ACME", Recipient: "not-a-number", Body: "hi", Channel: domain.ChannelSMS},
		"missing body":      {TenantID: tenantID, Sender: "ACME", Recipient: "+15551230001", Channel: domain.ChannelSMS},
		"unknown channel":   {TenantID: tenantID, Sender: "ACME", Recipient: "+15551230001", Body: "hi", Channel: domain.Channel("fax")},
		"unknown priority":  {TenantID: tenantID, Sender: "ACME", Recipient: "+15551230001", Body: "hi", Channel: domain.ChannelSMS, Priority: domain.Priority("asap")},
		"missing tenant id": {Sender: "ACME", Recipient: "+15551230001", Body: "hi", Channel: domain.ChannelSMS},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Send(context.Background(), req)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}

	messages.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
	limiter.AssertNotCalled(t, "CheckAndIncrement", mock.Anything, mock.Anything, mock.Anything)
}

func TestSendDeniedByRateLimit(t *testing.T) {
	svc, messages, limiter, dispatchQ, _ := newSendFixture(t)
	tenantID := uuid.New()
	resetAt := time.Now().Add(42 * time.Second)

	limiter.On("CheckAndIncrement", mock.Anything, tenantID.String(), ratelimit.MessageTypeSMS).Return(&ratelimit.Result{
		Allowed:        false,
		ResetAt:        resetAt,
		LimitingWindow: ratelimit.WindowMinute,
		Current:        5,
		Limit:          5,
	})

	_, err := svc.Send(context.Background(), validSendRequest(tenantID))
	require.ErrorIs(t, err, domain.ErrRateLimited)

	var rle *RateLimitError
	require.ErrorAs(t, err, &rle)
	assert.Equal(t, ratelimit.WindowMinute, rle.Result.LimitingWindow)
	assert.Equal(t, resetAt, rle.Result.ResetAt)

	messages.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
	dispatchQ.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything, mock.Anything)
}

func TestSendEnqueueFailureReturnsMessage(t *testing.T) {
	svc, messages, limiter, dispatchQ, changes := newSendFixture(t)
	tenantID := uuid.New()

	limiter.On("CheckAndIncrement", mock.Anything, tenantID.String(), ratelimit.MessageTypeSMS).Return(allowedResult())
	messages.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	dispatchQ.On("Enqueue", mock.Anything, mock.Anything, mock.Anything).Return(domain.ErrQueueUnavailable)

	msg, err := svc.Send(context.Background(), validSendRequest(tenantID))
	require.ErrorIs(t, err, domain.ErrQueueUnavailable)
	// The row exists in queued state even though handoff failed.
	require.NotNil(t, msg)
	assert.Equal(t, domain.MessageStatusQueued, msg.Status)

	changes.AssertNotCalled(t, "Emit", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSendMMSUsesMMSQuota(t *testing.T) {
	svc, messages, limiter, dispatchQ, changes := newSendFixture(t)
	tenantID := uuid.New()

	limiter.On("CheckAndIncrement", mock.Anything, tenantID.String(), ratelimit.MessageTypeMMS).Return(allowedResult())
	messages.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	dispatchQ.On("Enqueue", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	changes.On("Emit", mock.Anything, "message", notifier.ActionCreated, mock.Anything).Once()

	req := validSendRequest(tenantID)
	req.Channel = domain.ChannelMMS
	req.Priority = domain.PriorityHigh

	msg, err := svc.Send(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, domain.PriorityHigh, msg.Priority)
	limiter.AssertExpectations(t)
}

func TestSendCreateFailurePropagates(t *testing.T) {
	svc, messages, limiter, dispatchQ, _ := newSendFixture(t)
	tenantID := uuid.New()
	dbErr := errors.New("insert failed")

	limiter.On("CheckAndIncrement", mock.Anything, tenantID.String(), ratelimit.MessageTypeSMS).Return(allowedResult())
	messages.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(dbErr)

	_, err := svc.Send(context.Background(), validSendRequest(tenantID))
	require.ErrorIs(t, err, dbErr)
	dispatchQ.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything, mock.Anything)
}

func TestGetMessage(t *testing.T) {
	svc, messages, _, _, _ := newSendFixture(t)
	tenantID := uuid.New()
	msg := queuedMessage(tenantID)

	messages.On("GetByID", mock.Anything, mock.Anything, tenantID, msg.ID).Return(msg, nil)

	got, err := svc.GetMessage(context.Background(), tenantID, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, msg.ID, got.ID)

	messages.On("GetByID", mock.Anything, mock.Anything, tenantID, mock.Anything).Return(nil, domain.ErrMessageNotFound)
	_, err = svc.GetMessage(context.Background(), tenantID, uuid.New())
	assert.ErrorIs(t, err, domain.ErrMessageNotFound)
}
