package provider

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHTTPProviderSendSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/messages", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body sendRequestBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "+15551234567", body.Recipient)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(sendResponseBody{ID: "ext-123", Status: "accepted"})
	}))
	defer server.Close()

	p := NewHTTPProvider("vendor", server.URL, "test-key", server.Client(), testLogger())
	result, err := p.Send(context.Background(), SendRequest{
		MessageID: "msg-1",
		Sender:    "+15550000001",
		Recipient: "+15551234567",
		Body:      "hello",
		Channel:   "sms",
	})
	require.NoError(t, err)
	assert.Equal(t, "ext-123", result.ExternalID)
	assert.Equal(t, "accepted", result.ProviderStatus)
}

func TestHTTPProviderClassifiesAuthFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(errorResponseBody{Code: "BAD_KEY", Message: "invalid api key"})
	}))
	defer server.Close()

	p := NewHTTPProvider("vendor", server.URL, "bad-key", server.Client(), testLogger())
	_, err := p.Send(context.Background(), SendRequest{MessageID: "msg-1", Recipient: "+1555"})
	require.Error(t, err)

	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ErrorAuthentication, perr.Class)
	assert.Equal(t, "BAD_KEY", perr.Code)
	assert.False(t, perr.Retryable())
}

func TestHTTPProviderClassifiesRateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	p := NewHTTPProvider("vendor", server.URL, "key", server.Client(), testLogger())
	_, err := p.Send(context.Background(), SendRequest{MessageID: "msg-1", Recipient: "+1555"})
	require.Error(t, err)

	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ErrorRateLimited, perr.Class)
	assert.True(t, perr.Retryable())
}

func TestHTTPProviderClassifiesTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	client := &http.Client{Timeout: 20 * time.Millisecond}
	p := NewHTTPProvider("vendor", server.URL, "key", client, testLogger())
	_, err := p.Send(context.Background(), SendRequest{MessageID: "msg-1", Recipient: "+1555"})
	require.Error(t, err)

	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ErrorTimeout, perr.Class)
	assert.True(t, perr.Retryable())
}

func TestHTTPProviderCircuitOpensAfterConsecutiveFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	p := NewHTTPProvider("vendor", server.URL, "key", server.Client(), testLogger())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := p.Send(ctx, SendRequest{MessageID: "msg-1", Recipient: "+1555"})
		require.Error(t, err)
	}

	_, err := p.Send(ctx, SendRequest{MessageID: "msg-1", Recipient: "+1555"})
	require.Error(t, err)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "CIRCUIT_OPEN", perr.Code)
	assert.True(t, perr.Retryable())
}

func TestClassifyStatusCode(t *testing.T) {
	assert.Equal(t, ErrorAuthentication, classifyStatusCode(http.StatusUnauthorized))
	assert.Equal(t, ErrorAuthentication, classifyStatusCode(http.StatusForbidden))
	assert.Equal(t, ErrorValidation, classifyStatusCode(http.StatusUnprocessableEntity))
	assert.Equal(t, ErrorRateLimited, classifyStatusCode(http.StatusTooManyRequests))
	assert.Equal(t, ErrorTimeout, classifyStatusCode(http.StatusGatewayTimeout))
	assert.Equal(t, ErrorUnknown, classifyStatusCode(http.StatusInternalServerError))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ErrorTimeout, Classify(context.DeadlineExceeded))
	assert.Equal(t, ErrorValidation, Classify(NewError(ErrorValidation, "X", "x", nil)))
	assert.Equal(t, ErrorUnknown, Classify(assert.AnError))
}
