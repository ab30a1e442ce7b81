package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/pkg/circuitbreaker"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	HeaderUserID         = "X-User-Id"
	HeaderRequestID      = "X-Request-ID"
	HeaderIdempotencyKey = "Idempotency-Key"

	maxErrorBody = 64 << 10
)

type Config struct {
	BaseURL    string
	Timeout    time.Duration
	Breaker    circuitbreaker.Config
	HTTPClient *http.Client // optional, defaults to an otelhttp-instrumented client
}

// Client talks to the storefront REST backend. Authenticated calls carry the
// caller's id in X-User-Id; the backend is the enforcement point.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
	breaker *circuitbreaker.Breaker[*http.Response]
	log     *logger.Logger
}

func NewClient(cfg Config, log *logger.Logger) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	breakerCfg := cfg.Breaker
	if breakerCfg.Name == "" {
		breakerCfg = circuitbreaker.DefaultConfig("storefront-api")
	}
	if breakerCfg.OnStateChange == nil {
		breakerCfg.OnStateChange = func(name, from, to string) {
			log.Warn("circuit breaker state changed", "breaker", name, "from", from, "to", to)
		}
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: timeout,
		http:    httpClient,
		breaker: circuitbreaker.New[*http.Response](breakerCfg),
		log:     log,
	}
}

type request struct {
	op             string
	method         string
	path           string
	userID         int64
	idempotencyKey string
	body           interface{}
}

func (c *Client) do(ctx context.Context, r request, out interface{}) error {
	var body io.Reader
	if r.body != nil {
		payload, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("%s: failed to marshal request: %w", r.op, err)
		}
		body = bytes.NewReader(payload)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, body)
	if err != nil {
		return fmt.Errorf("%s: failed to build request: %w", r.op, err)
	}
	req.Header.Set("Accept", "application/json")
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	requestID := uuid.NewString()
	req.Header.Set(HeaderRequestID, requestID)
	if r.userID != 0 {
		req.Header.Set(HeaderUserID, strconv.FormatInt(r.userID, 10))
	}
	if r.idempotencyKey != "" {
		req.Header.Set(HeaderIdempotencyKey, r.idempotencyKey)
	}

	log := c.log.WithContext(ctx).With("op", r.op, "request_id", requestID)

	// 5xx and transport errors count against the breaker, 4xx do not.
	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			defer resp.Body.Close()
			return nil, readStatusError(resp)
		}
		return resp, nil
	})
	if err != nil {
		log.Warn("api call failed", "error", err)
		return classify(r.op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		statusErr := readStatusError(resp)
		log.Info("api call rejected", "status", resp.StatusCode, "error", statusErr.Message)
		return classify(r.op, statusErr)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.NetworkError(err, "%s: invalid response body", r.op)
	}
	return nil
}

// StatusError is a non-success HTTP answer from the backend.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Message)
}

func readStatusError(resp *http.Response) *StatusError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	msg := ""
	if err := json.Unmarshal(raw, &body); err == nil {
		msg = body.Error
		if msg == "" {
			msg = body.Message
		}
	}
	if msg == "" {
		msg = strings.TrimSpace(string(raw))
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &StatusError{StatusCode: resp.StatusCode, Message: msg}
}

func classify(op string, err error) error {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusUnauthorized:
			return domain.AuthError(statusErr, "%s", op)
		case http.StatusForbidden:
			return domain.AuthorizationError(statusErr, "%s", op)
		case http.StatusBadRequest, http.StatusUnprocessableEntity:
			return domain.ValidationError(statusErr, "%s", op)
		default:
			return domain.NetworkError(statusErr, "%s", op)
		}
	}
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return domain.NetworkError(err, "%s: backend unavailable", op)
	}
	return domain.NetworkError(err, "%s", op)
}

// Message returns the backend's message for err when it carries one.
func Message(err error) string {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Message
	}
	return ""
}
