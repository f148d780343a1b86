package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/loopkit/loopkit-go/headers"
)

const defaultUserAgent = "loopkit-go/" + Version

// Refresher renews the stored session. TokenIssuer is the canonical
// implementation; tests substitute their own.
type Refresher interface {
	Refresh(ctx context.Context) (Config, error)
}

// FormPayload carries a pre-encoded multipart/form body. The executor uses
// the payload's own content type (which includes the multipart boundary)
// instead of application/json.
type FormPayload struct {
	ContentType string
	Body        io.Reader
}

// Result is the envelope every executor call returns for a completed HTTP
// round-trip: Data on success, Err when the server flagged the request as
// failed. Transport-level failures (connection errors, malformed JSON) are
// returned as Go errors instead, so callers can distinguish "the API told me
// no" from "I couldn't reach the API".
type Result struct {
	Data json.RawMessage
	Err  *APIError
}

// Decode unmarshals the success payload into v.
func (r Result) Decode(v any) error {
	if len(r.Data) == 0 {
		return &TransportError{Kind: TransportErrorDecode, Message: "empty response body"}
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return &TransportError{Kind: TransportErrorDecode, Message: "decode response body", Cause: err}
	}
	return nil
}

// ExecutorConfig wires the store, transport, and refresh behavior for an
// Executor.
type ExecutorConfig struct {
	// Store resolves configuration per call. Defaults to DefaultStore().
	Store *ConfigStore
	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
	// SkipTokenRefresh disables the pre-request expiry check entirely. The
	// executor a TokenIssuer owns internally runs in this mode: without it,
	// refreshing an expired session would re-enter the same check and recurse
	// forever. The flag is per-instance, not global, so unrelated executors
	// keep normal refresh behavior.
	SkipTokenRefresh bool
	// Refresher performs the refresh when an expired session is observed.
	// Defaults to a TokenIssuer bound to the same store. Ignored when
	// SkipTokenRefresh is set.
	Refresher Refresher
	// Retry controls backoff for idempotent calls. Zero value means the
	// default policy (3 attempts, exponential, no POST retries).
	Retry RetryConfig
	// Telemetry hooks are optional.
	Telemetry TelemetryHooks
	// Logger receives verbose request/response lines when Config.Verbose is
	// set. Defaults to a timestamped stderr logger.
	Logger *zerolog.Logger
	// UserAgent overrides the default SDK user agent.
	UserAgent string
}

// Executor performs authenticated HTTP calls against the API: it resolves
// the live configuration, refreshes an expired session before sending
// (unless constructed with SkipTokenRefresh), and attaches the bearer
// credential to every request.
type Executor struct {
	store            *ConfigStore
	httpClient       *http.Client
	skipTokenRefresh bool
	refresher        Refresher
	retry            RetryConfig
	telemetry        TelemetryHooks
	logger           zerolog.Logger
	userAgent        string
}

// NewExecutor returns an executor bound to the given store.
func NewExecutor(cfg ExecutorConfig) *Executor {
	store := cfg.Store
	if store == nil {
		store = DefaultStore()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	var logger zerolog.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	} else {
		logger = zerolog.New(os.Stderr).With().Timestamp().Str("component", "loopkit-sdk").Logger()
	}
	e := &Executor{
		store:            store,
		httpClient:       httpClient,
		skipTokenRefresh: cfg.SkipTokenRefresh,
		refresher:        cfg.Refresher,
		retry:            cfg.Retry.normalized(),
		telemetry:        cfg.Telemetry,
		logger:           logger,
		userAgent:        ua,
	}
	if !e.skipTokenRefresh && e.refresher == nil {
		e.refresher = NewTokenIssuer(TokenIssuerConfig{
			Store:      store,
			HTTPClient: httpClient,
			Telemetry:  cfg.Telemetry,
			UserAgent:  ua,
		})
	}
	return e
}

// Get issues an authenticated GET.
func (e *Executor) Get(ctx context.Context, path string) (Result, error) {
	return e.do(ctx, http.MethodGet, path, nil)
}

// Post issues an authenticated POST with a JSON or multipart body.
func (e *Executor) Post(ctx context.Context, path string, payload any) (Result, error) {
	return e.do(ctx, http.MethodPost, path, payload)
}

// Put issues an authenticated PUT with a JSON or multipart body.
func (e *Executor) Put(ctx context.Context, path string, payload any) (Result, error) {
	return e.do(ctx, http.MethodPut, path, payload)
}

// Delete issues an authenticated DELETE. The payload is optional.
func (e *Executor) Delete(ctx context.Context, path string, payload any) (Result, error) {
	return e.do(ctx, http.MethodDelete, path, payload)
}

func (e *Executor) do(ctx context.Context, method, path string, payload any) (Result, error) {
	cfg, err := e.store.Config()
	if err != nil {
		return Result{}, err
	}

	if !e.skipTokenRefresh && cfg.Session.Expired() {
		refreshed, err := e.refresher.Refresh(ctx)
		e.telemetry.refresh(ctx, err)
		if err != nil {
			// No fallback to the stale token: a failed refresh fails the
			// original request.
			return Result{}, err
		}
		cfg = refreshed
	}

	var bodyBytes []byte
	var form *FormPayload
	switch p := payload.(type) {
	case nil:
	case *FormPayload:
		form = p
	default:
		encoded, err := json.Marshal(p)
		if err != nil {
			return Result{}, err
		}
		bodyBytes = encoded
	}

	requestURL := buildRequestURL(cfg, path)
	maxAttempts := 1
	// Multipart bodies are single-shot: the reader cannot be replayed.
	if e.retry.retryableMethod(method) && form == nil {
		maxAttempts = e.retry.MaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if delay := e.retry.backoffDelay(attempt); delay > 0 {
			if err := sleepContext(ctx, delay); err != nil {
				return Result{}, &TransportError{Kind: TransportErrorCanceled, Message: "request canceled during backoff", Cause: err}
			}
		}

		req, err := e.newRequest(ctx, method, requestURL, cfg, bodyBytes, form)
		if err != nil {
			return Result{}, err
		}
		if e.telemetry.OnHTTPRequest != nil {
			e.telemetry.OnHTTPRequest(ctx, req)
		}
		e.telemetry.log(ctx, LogLevelInfo, "http_request", map[string]any{
			"method": method,
			"url":    requestURL,
		})
		if cfg.Verbose {
			e.logger.Info().
				Str("method", method).
				Str("url", requestURL).
				Int("attempt", attempt).
				Msg("http request")
		}

		start := time.Now()
		resp, err := e.httpClient.Do(req)
		latency := time.Since(start)
		if e.telemetry.OnHTTPResponse != nil {
			e.telemetry.OnHTTPResponse(ctx, req, resp, err, latency)
		}
		e.telemetry.metric(ctx, "sdk_http_request_latency_ms", float64(latency.Milliseconds()), map[string]string{
			"path": req.URL.Path,
		})
		if err != nil {
			lastErr = &TransportError{
				Kind:    classifyTransportErrorKind(err),
				Message: method + " " + requestURL + " failed",
				Cause:   err,
			}
			e.telemetry.log(ctx, LogLevelError, "http_transport_error", map[string]any{
				"method": method,
				"url":    requestURL,
				"error":  err.Error(),
			})
			if attempt < maxAttempts {
				continue
			}
			return Result{}, lastErr
		}

		data, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if cfg.Verbose {
			e.logger.Info().
				Int("status", resp.StatusCode).
				Dur("latency", latency).
				Msg("http response")
		}
		if readErr != nil {
			lastErr = &TransportError{Kind: TransportErrorConnection, Message: "read response body", Cause: readErr}
			if attempt < maxAttempts {
				continue
			}
			return Result{}, lastErr
		}

		if resp.StatusCode >= 400 {
			apiErr := decodeAPIError(resp.StatusCode, data)
			if retryableStatus(resp.StatusCode) && attempt < maxAttempts {
				continue
			}
			return Result{Err: apiErr}, nil
		}

		trimmed := bytes.TrimSpace(data)
		if len(trimmed) == 0 {
			return Result{}, nil
		}
		if !json.Valid(trimmed) {
			return Result{}, &TransportError{Kind: TransportErrorDecode, Message: "response body is not valid JSON"}
		}
		return Result{Data: trimmed}, nil
	}
	return Result{}, lastErr
}

func (e *Executor) newRequest(ctx context.Context, method, requestURL string, cfg Config, bodyBytes []byte, form *FormPayload) (*http.Request, error) {
	var body io.Reader
	switch {
	case form != nil:
		body = form.Body
	case bodyBytes != nil:
		body = bytes.NewReader(bodyBytes)
	}
	req, err := http.NewRequestWithContext(ctx, method, requestURL, body)
	if err != nil {
		return nil, err
	}
	switch {
	case form != nil:
		// The multipart content type carries the boundary; never override it.
		if form.ContentType != "" {
			req.Header.Set("Content-Type", form.ContentType)
		}
	case bodyBytes != nil:
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set(headers.RequestID, uuid.NewString())
	req.Header.Set(headers.ClientVersion, Version)
	bearerAuth{token: cfg.APIKey}.Apply(req)
	injectTraceparent(ctx, req)
	return req, nil
}

// buildRequestURL prefixes relative paths with the API base URL and the
// version segment. Absolute URLs pass through untouched; the issuer relies on
// this for the unversioned signin/signout endpoints.
func buildRequestURL(cfg Config, path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	base := strings.TrimSuffix(cfg.APIURL, "/")
	if cfg.Version != "" {
		base += "/v" + cfg.Version
	}
	return base + path
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
