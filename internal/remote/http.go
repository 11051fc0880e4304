package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/asteroid-belt/prepsync/internal/models"
	"github.com/asteroid-belt/prepsync/pkg/version"
)

const (
	// DefaultRatePerMinute bounds requests to the progress API.
	DefaultRatePerMinute = 60

	// DefaultMaxRetries is the number of retries after the first attempt.
	DefaultMaxRetries = 3

	// DefaultTimeout applies to each HTTP request.
	DefaultTimeout = 15 * time.Second

	// MinClientHeader is set by servers that refuse older clients.
	MinClientHeader = "X-Min-Client-Version"

	// ClientConstraintHeader carries a semver range such as ">= 1.2, < 2"
	// the client version has to fall into.
	ClientConstraintHeader = "X-Client-Constraint"

	maxResponseBytes = 8 << 20
)

// HTTPConfig configures an HTTPService.
type HTTPConfig struct {
	BaseURL       string
	Token         string
	Timeout       time.Duration
	RatePerMinute int
	MaxRetries    int

	// RetryBase is the first backoff delay (default 500ms).
	RetryBase time.Duration

	// Transport overrides http.DefaultTransport.
	Transport http.RoundTripper
}

// HTTPService talks JSON to the progress API.
type HTTPService struct {
	base       string
	client     *http.Client
	limiter    *rate.Limiter
	maxRetries int
	retryBase  time.Duration
}

var _ ProgressService = (*HTTPService)(nil)

// NewHTTPService creates a client for the API at cfg.BaseURL.
func NewHTTPService(cfg HTTPConfig) (*HTTPService, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid api url %q", cfg.BaseURL)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RatePerMinute <= 0 {
		cfg.RatePerMinute = DefaultRatePerMinute
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}

	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	if cfg.Token != "" {
		transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token}),
			Base:   transport,
		}
	}

	// rateLimit requests per minute, with a burst of the same size
	limiter := rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RatePerMinute)), cfg.RatePerMinute)

	return &HTTPService{
		base:       strings.TrimRight(cfg.BaseURL, "/"),
		client:     &http.Client{Timeout: cfg.Timeout, Transport: transport},
		limiter:    limiter,
		maxRetries: cfg.MaxRetries,
		retryBase:  cfg.RetryBase,
	}, nil
}

// statusError carries a non-2xx response through the retry loop.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.code, e.body)
}

type response struct {
	code   int
	header http.Header
	body   []byte
}

// do sends one request, retrying transport errors, 5xx and 429 with
// exponential backoff.
func (s *HTTPService) do(ctx context.Context, method, path string, body []byte) (*response, error) {
	backoff := retry.WithMaxRetries(uint64(s.maxRetries), retry.NewExponential(s.retryBase))
	backoff = retry.WithCappedDuration(10*time.Second, backoff)

	var out *response
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, s.base+path, reader)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", version.UserAgent())
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("%w: %v", ErrNetworkUnavailable, err))
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return retry.RetryableError(fmt.Errorf("%w: read response: %v", ErrNetworkUnavailable, err))
		}

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return retry.RetryableError(&statusError{code: resp.StatusCode, body: snippet(data)})
		}

		out = &response{code: resp.StatusCode, header: resp.Header, body: data}
		return nil
	})
	if err != nil {
		var se *statusError
		if errors.As(err, &se) {
			return &response{code: se.code, body: []byte(se.body)}, nil
		}
		return nil, err
	}
	return out, nil
}

func (s *HTTPService) fetch(ctx context.Context, kind, userID string, v any) (bool, error) {
	resp, err := s.do(ctx, http.MethodGet, documentPath(kind, userID), nil)
	if err != nil {
		return false, fmt.Errorf("fetch %s: %w", kind, err)
	}

	switch {
	case resp.code == http.StatusNotFound:
		return false, nil
	case resp.code >= 200 && resp.code < 300:
	default:
		return false, fmt.Errorf("%w: fetch %s: server returned %d", ErrNetworkUnavailable, kind, resp.code)
	}

	if len(bytes.TrimSpace(resp.body)) == 0 || string(bytes.TrimSpace(resp.body)) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(resp.body, v); err != nil {
		return false, fmt.Errorf("%w: decode %s: %v", models.ErrInvalidDocument, kind, err)
	}
	return true, nil
}

func (s *HTTPService) push(ctx context.Context, kind, userID string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", kind, err)
	}

	resp, err := s.do(ctx, http.MethodPut, documentPath(kind, userID), data)
	if err != nil {
		return fmt.Errorf("push %s: %w", kind, err)
	}
	if resp.code < 200 || resp.code >= 300 {
		return fmt.Errorf("%w: %s: server returned %d: %s", ErrPushFailed, kind, resp.code, snippet(resp.body))
	}
	return nil
}

// FetchProgress returns the server copy of the user's progress.
func (s *HTTPService) FetchProgress(ctx context.Context, userID string) (*models.ProgressDocument, error) {
	var doc models.ProgressDocument
	found, err := s.fetch(ctx, "progress", userID, &doc)
	if err != nil || !found {
		return nil, err
	}
	doc.Normalize()
	if doc.UserID == "" {
		doc.UserID = userID
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// PushProgress stores doc as the server copy.
func (s *HTTPService) PushProgress(ctx context.Context, userID string, doc *models.ProgressDocument) error {
	return s.push(ctx, "progress", userID, doc)
}

// FetchSettings returns the server copy of the user's settings.
func (s *HTTPService) FetchSettings(ctx context.Context, userID string) (*models.SettingsDocument, error) {
	var doc models.SettingsDocument
	found, err := s.fetch(ctx, "settings", userID, &doc)
	if err != nil || !found {
		return nil, err
	}
	doc.Normalize()
	if doc.UserID == "" {
		doc.UserID = userID
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// PushSettings stores doc as the server copy.
func (s *HTTPService) PushSettings(ctx context.Context, userID string, doc *models.SettingsDocument) error {
	return s.push(ctx, "settings", userID, doc)
}

// Ping checks the health endpoint and the server's minimum client version.
func (s *HTTPService) Ping(ctx context.Context) error {
	resp, err := s.do(ctx, http.MethodGet, "/api/health", nil)
	if err != nil {
		return err
	}
	if resp.code < 200 || resp.code >= 300 {
		return fmt.Errorf("%w: health check returned %d", ErrNetworkUnavailable, resp.code)
	}
	if minVersion := resp.header.Get(MinClientHeader); minVersion != "" && version.IsOlderThan(minVersion) {
		return fmt.Errorf("%w: server requires %s, have %s", ErrClientTooOld, minVersion, version.Short())
	}
	if constraint := resp.header.Get(ClientConstraintHeader); constraint != "" && !version.Satisfies(constraint) {
		return fmt.Errorf("%w: server accepts %q, have %s", ErrClientTooOld, constraint, version.Short())
	}
	return nil
}

func documentPath(kind, userID string) string {
	return "/api/" + kind + "/" + url.PathEscape(userID)
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
