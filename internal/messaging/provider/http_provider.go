package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// HTTPProvider submits messages to a JSON-over-HTTP vendor API. Calls run
// through a circuit breaker so a down vendor sheds load quickly instead of
// tying up workers on timeouts.
type HTTPProvider struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *slog.Logger
}

// NewHTTPProvider creates an HTTP vendor adapter. A nil httpClient gets a
// 10s default timeout.
func NewHTTPProvider(name, baseURL, apiKey string, httpClient *http.Client, logger *slog.Logger) *HTTPProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("provider circuit state changed", "provider", name, "from", from.String(), "to", to.String())
		},
	})
	return &HTTPProvider{
		name:       name,
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: httpClient,
		breaker:    breaker,
		logger:     logger.With("provider", name),
	}
}

func (p *HTTPProvider) Name() string { return p.name }

type sendRequestBody struct {
	MessageID string `json:"message_id"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Body      string `json:"body"`
	Channel   string `json:"channel"`
}

type sendResponseBody struct {
	ID     string   `json:"id"`
	Status string   `json:"status"`
	Cost   *float64 `json:"cost,omitempty"`
}

type errorResponseBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (p *HTTPProvider) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	start := time.Now()
	result, err := p.breaker.Execute(func() (any, error) {
		return p.doSend(ctx, req)
	})
	providerRequestDurationHist.WithLabelValues(p.name).Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, NewError(ErrorUnknown, "CIRCUIT_OPEN", "provider circuit breaker open", err)
		}
		return nil, err
	}
	return result.(*SendResult), nil
}

func (p *HTTPProvider) doSend(ctx context.Context, req SendRequest) (*SendResult, error) {
	payload, err := json.Marshal(sendRequestBody{
		MessageID: req.MessageID,
		Sender:    req.Sender,
		Recipient: req.Recipient,
		Body:      req.Body,
		Channel:   req.Channel,
	})
	if err != nil {
		return nil, NewError(ErrorValidation, "MARSHAL", "failed to encode send request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, NewError(ErrorValidation, "REQUEST", "failed to build send request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return nil, NewError(ErrorTimeout, "TIMEOUT", "provider request timed out", err)
		}
		return nil, NewError(ErrorUnknown, "TRANSPORT", "provider request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, NewError(ErrorUnknown, "READ", "failed to read provider response", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var out sendResponseBody
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, NewError(ErrorUnknown, "DECODE", "failed to decode provider response", err)
		}
		if out.ID == "" {
			return nil, NewError(ErrorUnknown, "NO_ID", "provider response missing message id", nil)
		}
		p.logger.DebugContext(ctx, "provider accepted message",
			"message_id", req.MessageID,
			"external_id", out.ID,
			"provider_status", out.Status,
		)
		return &SendResult{ExternalID: out.ID, ProviderStatus: out.Status, Cost: out.Cost}, nil
	}

	var errBody errorResponseBody
	_ = json.Unmarshal(body, &errBody)
	code := errBody.Code
	if code == "" {
		code = fmt.Sprintf("HTTP_%d", resp.StatusCode)
	}
	message := errBody.Message
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	return nil, NewError(classifyStatusCode(resp.StatusCode), code, message, nil)
}

func classifyStatusCode(status int) ErrorClass {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrorAuthentication
	case status == http.StatusTooManyRequests:
		return ErrorRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return ErrorTimeout
	case status >= 400 && status < 500:
		return ErrorValidation
	default:
		return ErrorUnknown
	}
}
