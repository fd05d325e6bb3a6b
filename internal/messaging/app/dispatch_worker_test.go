package app

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/novasms/gateway/internal/messaging/domain"
	"github.com/novasms/gateway/internal/messaging/provider"
	"github.com/novasms/gateway/internal/messaging/queue"
)

func newWorkerFixture(t *testing.T) (*DispatchWorker, *mockReconciler, *mockProviderClient, *mockQueue) {
	t.Helper()
	updater := &mockReconciler{}
	client := &mockProviderClient{}
	dispatchQ := &mockQueue{}
	worker := NewDispatchWorker(nil, updater, client, dispatchQ, testLogger(), time.Second, 3, time.Millisecond)
	return worker, updater, client, dispatchQ
}

func testJob(tenantID uuid.UUID) queue.DispatchJob {
	return queue.DispatchJob{
		MessageID:      uuid.New(),
		TenantID:       tenantID,
		ProviderConfig: "sandbox",
		Message: queue.MessageSnapshot{
			Sender:    "ACME",
			Recipient: "+15551230001",
			Body:      "hello",
			Channel:   domain.ChannelSMS,
			Priority:  domain.PriorityNormal,
		},
	}
}

func sentMessage(tenantID, id uuid.UUID, status domain.MessageStatus) *domain.Message {
	msg := queuedMessage(tenantID)
	msg.ID = id
	msg.Status = status
	return msg
}

func TestHandleJobSuccess(t *testing.T) {
	worker, updater, client, dispatchQ := newWorkerFixture(t)
	tenantID := uuid.New()
	job := testJob(tenantID)

	updater.On("UpdateStatus", mock.Anything, tenantID, job.MessageID, domain.MessageStatusSending).
		Return(sentMessage(tenantID, job.MessageID, domain.MessageStatusSending), nil)
	client.On("Send", mock.Anything, mock.MatchedBy(func(req provider.SendRequest) bool {
		return req.Recipient == "+15551230001" && req.MessageID == job.MessageID.String()
	})).Return(&provider.SendResult{ExternalID: "prov-42", ProviderStatus: "accepted"}, nil)
	updater.On("UpdateWithExternalID", mock.Anything, tenantID, job.MessageID, domain.MessageStatusSent, "prov-42").
		Return(sentMessage(tenantID, job.MessageID, domain.MessageStatusSent), nil)

	require.NoError(t, worker.HandleJob(context.Background(), job))

	updater.AssertExpectations(t)
	client.AssertExpectations(t)
	dispatchQ.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleJobSkipsCanceledMessage(t *testing.T) {
	worker, updater, client, _ := newWorkerFixture(t)
	tenantID := uuid.New()
	job := testJob(tenantID)

	updater.On("UpdateStatus", mock.Anything, tenantID, job.MessageID, domain.MessageStatusSending).
		Return(nil, domain.ErrInvalidTransition)

	require.NoError(t, worker.HandleJob(context.Background(), job))
	client.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestHandleJobSkipsMissingMessage(t *testing.T) {
	worker, updater, client, _ := newWorkerFixture(t)
	tenantID := uuid.New()
	job := testJob(tenantID)

	updater.On("UpdateStatus", mock.Anything, tenantID, job.MessageID, domain.MessageStatusSending).
		Return(nil, domain.ErrMessageNotFound)

	require.NoError(t, worker.HandleJob(context.Background(), job))
	client.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestHandleJobRetryableFailureRequeues(t *testing.T) {
	worker, updater, client, dispatchQ := newWorkerFixture(t)
	tenantID := uuid.New()
	job := testJob(tenantID)

	updater.On("UpdateStatus", mock.Anything, tenantID, job.MessageID, domain.MessageStatusSending).
		Return(sentMessage(tenantID, job.MessageID, domain.MessageStatusSending), nil)
	client.On("Send", mock.Anything, mock.Anything).
		Return(nil, provider.NewError(provider.ErrorTimeout, "PROVIDER_TIMEOUT", "request timed out", nil))
	updater.On("UpdateWithError", mock.Anything, tenantID, job.MessageID, domain.MessageStatusFailed, "PROVIDER_TIMEOUT", mock.Anything).
		Return(sentMessage(tenantID, job.MessageID, domain.MessageStatusFailed), nil).Once()
	updater.On("UpdateStatus", mock.Anything, tenantID, job.MessageID, domain.MessageStatusQueued).
		Return(sentMessage(tenantID, job.MessageID, domain.MessageStatusQueued), nil)
	dispatchQ.On("Enqueue", mock.Anything, mock.MatchedBy(func(j queue.DispatchJob) bool {
		return j.RetryAttempt == 1 && j.MessageID == job.MessageID
	}), mock.Anything).Return(nil)

	// The consumer callback cancels the job context the moment HandleJob
	// returns; the scheduled re-publish must survive that.
	jobCtx, cancel := context.WithCancel(context.Background())
	require.NoError(t, worker.HandleJob(jobCtx, job))
	cancel()
	worker.Stop()

	updater.AssertExpectations(t)
	dispatchQ.AssertExpectations(t)
}

func TestRetrySurvivesJobContextCancelAndStopFlushes(t *testing.T) {
	updater := &mockReconciler{}
	client := &mockProviderClient{}
	dispatchQ := &mockQueue{}
	// Backoff far beyond the test's lifetime; Stop must skip the delay and
	// publish the pending retry instead of dropping it.
	worker := NewDispatchWorker(nil, updater, client, dispatchQ, testLogger(), time.Second, 3, time.Hour)
	tenantID := uuid.New()
	job := testJob(tenantID)

	updater.On("UpdateStatus", mock.Anything, tenantID, job.MessageID, domain.MessageStatusSending).
		Return(sentMessage(tenantID, job.MessageID, domain.MessageStatusSending), nil)
	client.On("Send", mock.Anything, mock.Anything).
		Return(nil, provider.NewError(provider.ErrorTimeout, "PROVIDER_TIMEOUT", "request timed out", nil))
	updater.On("UpdateWithError", mock.Anything, tenantID, job.MessageID, domain.MessageStatusFailed, "PROVIDER_TIMEOUT", mock.Anything).
		Return(sentMessage(tenantID, job.MessageID, domain.MessageStatusFailed), nil).Once()
	updater.On("UpdateStatus", mock.Anything, tenantID, job.MessageID, domain.MessageStatusQueued).
		Return(sentMessage(tenantID, job.MessageID, domain.MessageStatusQueued), nil)
	dispatchQ.On("Enqueue", mock.Anything, mock.MatchedBy(func(j queue.DispatchJob) bool {
		return j.RetryAttempt == 1
	}), mock.Anything).Return(nil).Once()

	jobCtx, cancel := context.WithCancel(context.Background())
	require.NoError(t, worker.HandleJob(jobCtx, job))
	cancel()
	worker.Stop()

	dispatchQ.AssertExpectations(t)
}

func TestHandleJobNonRetryableFailureStops(t *testing.T) {
	worker, updater, client, dispatchQ := newWorkerFixture(t)
	tenantID := uuid.New()
	job := testJob(tenantID)

	updater.On("UpdateStatus", mock.Anything, tenantID, job.MessageID, domain.MessageStatusSending).
		Return(sentMessage(tenantID, job.MessageID, domain.MessageStatusSending), nil)
	client.On("Send", mock.Anything, mock.Anything).
		Return(nil, provider.NewError(provider.ErrorValidation, "INVALID_RECIPIENT", "recipient rejected", nil))
	updater.On("UpdateWithError", mock.Anything, tenantID, job.MessageID, domain.MessageStatusFailed, "INVALID_RECIPIENT", mock.Anything).
		Return(sentMessage(tenantID, job.MessageID, domain.MessageStatusFailed), nil).Once()

	require.NoError(t, worker.HandleJob(context.Background(), job))
	worker.Stop()

	updater.AssertNotCalled(t, "UpdateStatus", mock.Anything, tenantID, job.MessageID, domain.MessageStatusQueued)
	dispatchQ.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleJobExhaustedAttemptsStop(t *testing.T) {
	worker, updater, client, dispatchQ := newWorkerFixture(t)
	tenantID := uuid.New()
	job := testJob(tenantID)
	job.RetryAttempt = 2 // third and final attempt

	updater.On("UpdateStatus", mock.Anything, tenantID, job.MessageID, domain.MessageStatusSending).
		Return(sentMessage(tenantID, job.MessageID, domain.MessageStatusSending), nil)
	client.On("Send", mock.Anything, mock.Anything).
		Return(nil, provider.NewError(provider.ErrorTimeout, "PROVIDER_TIMEOUT", "request timed out", nil))
	updater.On("UpdateWithError", mock.Anything, tenantID, job.MessageID, domain.MessageStatusFailed, "PROVIDER_TIMEOUT", mock.Anything).
		Return(sentMessage(tenantID, job.MessageID, domain.MessageStatusFailed), nil).Once()

	require.NoError(t, worker.HandleJob(context.Background(), job))
	worker.Stop()

	dispatchQ.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleJobPanicRecordsFailure(t *testing.T) {
	worker, updater, client, _ := newWorkerFixture(t)
	tenantID := uuid.New()
	job := testJob(tenantID)

	updater.On("UpdateStatus", mock.Anything, tenantID, job.MessageID, domain.MessageStatusSending).
		Return(sentMessage(tenantID, job.MessageID, domain.MessageStatusSending), nil)
	client.On("Send", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { panic("boom") }).
		Return(nil, nil)
	updater.On("UpdateWithError", mock.Anything, tenantID, job.MessageID, domain.MessageStatusFailed, "WORKER_PANIC", mock.Anything).
		Return(sentMessage(tenantID, job.MessageID, domain.MessageStatusFailed), nil).Once()

	err := worker.HandleJob(context.Background(), job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
	updater.AssertExpectations(t)
}

func TestHandleJobFailureRecordErrorPropagates(t *testing.T) {
	worker, updater, client, dispatchQ := newWorkerFixture(t)
	tenantID := uuid.New()
	job := testJob(tenantID)

	updater.On("UpdateStatus", mock.Anything, tenantID, job.MessageID, domain.MessageStatusSending).
		Return(sentMessage(tenantID, job.MessageID, domain.MessageStatusSending), nil)
	client.On("Send", mock.Anything, mock.Anything).
		Return(nil, provider.NewError(provider.ErrorTimeout, "PROVIDER_TIMEOUT", "request timed out", nil))
	updater.On("UpdateWithError", mock.Anything, tenantID, job.MessageID, domain.MessageStatusFailed, "PROVIDER_TIMEOUT", mock.Anything).
		Return(nil, context.DeadlineExceeded)

	err := worker.HandleJob(context.Background(), job)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	dispatchQ.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything, mock.Anything)
}
