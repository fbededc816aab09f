package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const maxResponseBodySize = 1 << 20 // 1MB

// connection pooling limits to prevent resource exhaustion when many
// sessions poll the same payment service
const (
	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 10
	defaultIdleConnTimeout     = 60 * time.Second // conservative: matches common ALB defaults
)

// DefaultRequestTimeout bounds a single status request.
const DefaultRequestTimeout = 10 * time.Second

// Status values returned by the payment service. The service is the sole
// source of truth; these strings are stored and compared verbatim.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusSuccess    = "success"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
)

// Snapshot is one immutable status response from the payment service.
type Snapshot struct {
	// SubjectID identifies the payment the snapshot belongs to.
	SubjectID string

	// Status is the raw status string reported by the service.
	Status string

	// IsExpired reports whether the payment session has expired server-side.
	IsExpired bool

	// FailureReason is a human-readable reason for a failed payment.
	// Empty when the service did not provide one.
	FailureReason string

	// StatusCode is the HTTP status code of the response.
	StatusCode int

	// Latency is the time taken to complete the request.
	Latency time.Duration

	// CheckedAt is the timestamp when the snapshot was received.
	CheckedAt time.Time
}

// RequestError reports a non-2xx response from the status endpoint.
//
// Only 403 and 404 are terminal: they mean the caller will never be able to
// read this payment's status. Every other non-2xx code is treated as a
// transient service-side problem and retried.
type RequestError struct {
	SubjectID  string
	StatusCode int
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("status request for %q failed: HTTP %d", e.SubjectID, e.StatusCode)
}

// Terminal reports whether the error must stop a polling session.
func (e *RequestError) Terminal() bool {
	return e.StatusCode == http.StatusForbidden || e.StatusCode == http.StatusNotFound
}

// statusPayload mirrors the wire format of the status endpoint.
type statusPayload struct {
	Status        string `json:"status"`
	IsExpired     bool   `json:"is_expired"`
	FailureReason string `json:"failure_reason"`
}

// Client fetches payment status snapshots from the payment service.
//
// Client uses per-request timeouts via context rather than a global timeout,
// and limits response bodies to 1MB. It is safe for concurrent use by
// multiple sessions.
type Client struct {
	httpClient *http.Client
	baseURL    string
	headers    map[string]string
	timeout    time.Duration
}

// NewClient creates a [Client] for the payment service at baseURL.
//
// headers are sent with every request (typically an Authorization header).
// timeout bounds each individual request; zero means [DefaultRequestTimeout].
//
// The underlying transport is configured with connection pooling limits so
// that many concurrent sessions against the same host reuse connections.
func NewClient(baseURL string, headers map[string]string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Client{
		httpClient: &http.Client{
			// no default timeout - we use per-request timeouts via context
			Transport: &http.Transport{
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				MaxConnsPerHost:     defaultMaxConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
				DisableKeepAlives:   false, // explicitly enable connection reuse
			},
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		headers: headers,
		timeout: timeout,
	}
}

// statusURL builds the status endpoint URL for a payment.
// The trailing slash is part of the service's routing contract.
func (c *Client) statusURL(subjectID string) string {
	return c.baseURL + "/status/" + url.PathEscape(subjectID) + "/"
}

// Status performs one status request for subjectID and returns the snapshot.
//
// A non-2xx response is returned as a [*RequestError]. Transport failures
// and undecodable bodies are returned as wrapped errors; the caller decides
// whether an error is terminal via [RequestError.Terminal].
func (c *Client) Status(ctx context.Context, subjectID string) (*Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.statusURL(subjectID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	// correlation id lets the payment service tie a request back to one attempt
	req.Header.Set("X-Request-ID", uuid.NewString())
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// read body with size limit
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RequestError{SubjectID: subjectID, StatusCode: resp.StatusCode}
	}

	var payload statusPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode status response: %w", err)
	}

	return &Snapshot{
		SubjectID:     subjectID,
		Status:        payload.Status,
		IsExpired:     payload.IsExpired,
		FailureReason: payload.FailureReason,
		StatusCode:    resp.StatusCode,
		Latency:       time.Since(start),
		CheckedAt:     time.Now(),
	}, nil
}

// Close closes all idle connections in the client's connection pool.
//
// Safe to call multiple times. After Close, the client remains usable but
// new connections will be established as needed.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}
