package testit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/lorrc/testit-reports/internal/core/domain"
	apperrors "github.com/lorrc/testit-reports/internal/core/errors"
	"github.com/lorrc/testit-reports/internal/core/ports"
)

const maxErrorBody = 4 << 10

// Config holds the connection settings for the TestIT REST API.
type Config struct {
	BaseURL              string
	Cookies              string
	UseCookies           bool
	Timeout              time.Duration
	RequestsPerSecond    float64
	Burst                int
	MaxRetries           uint64
	RetryInitialInterval time.Duration
}

// RequestObserver is notified once per HTTP exchange with TestIT.
type RequestObserver interface {
	ObserveTestITRequest(endpoint string, statusCode int)
}

// APIError is returned when TestIT answers with a non-2xx status.
type APIError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("testit %s: status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// Unwrap maps upstream failures onto the application sentinels.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return apperrors.ErrUnauthorized
	case http.StatusForbidden:
		return apperrors.ErrForbidden
	case http.StatusNotFound:
		return apperrors.ErrNotFound
	default:
		return apperrors.ErrUpstreamUnavailable
	}
}

func (e *APIError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// Client talks to TestIT over HTTP. It is safe for concurrent use.
type Client struct {
	cfg      Config
	baseURL  *url.URL
	http     *http.Client
	limiter  *rate.Limiter
	observer RequestObserver
	logger   *slog.Logger
}

var _ ports.TestManagementClient = (*Client)(nil)

// NewClient creates a TestIT client. observer may be nil.
func NewClient(cfg Config, observer RequestObserver, logger *slog.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("testit: invalid base url %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryInitialInterval <= 0 {
		cfg.RetryInitialInterval = 500 * time.Millisecond
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	return &Client{
		cfg:      cfg,
		baseURL:  base,
		http:     &http.Client{Timeout: cfg.Timeout},
		limiter:  rate.NewLimiter(limit, cfg.Burst),
		observer: observer,
		logger:   logger,
	}, nil
}

// AuthorizationHeader normalises a user supplied token into an Authorization
// header value. Tokens that already carry a scheme are passed through.
func AuthorizationHeader(token string) string {
	t := strings.TrimSpace(token)
	t = strings.Trim(t, `"'`)
	t = strings.TrimSpace(t)
	if t == "" {
		return ""
	}
	if strings.HasPrefix(t, "Bearer") || strings.HasPrefix(t, "OpenIdConnect") {
		return t
	}
	return "Bearer " + t
}

func (c *Client) SearchWorkItems(ctx context.Context, token string, filter domain.WorkItemFilter) ([]domain.WorkItem, error) {
	var out []workItemDTO
	err := c.do(ctx, token, "workItems.search", http.MethodPost, "/api/v2/workItems/search", nil,
		newWorkItemSearchRequest(filter), &out)
	if err != nil {
		return nil, err
	}
	items := make([]domain.WorkItem, 0, len(out))
	for _, d := range out {
		items = append(items, d.toDomain())
	}
	return items, nil
}

func (c *Client) GetProjectTestPlans(ctx context.Context, token string, projectID uuid.UUID) ([]domain.TestPlan, error) {
	var out []testPlanDTO
	path := "/api/v2/projects/" + projectID.String() + "/testPlans/analytics"
	query := url.Values{"mustUpdateCache": {"false"}}
	if err := c.do(ctx, token, "testPlans.analytics", http.MethodGet, path, query, nil, &out); err != nil {
		return nil, err
	}
	plans := make([]domain.TestPlan, 0, len(out))
	for _, d := range out {
		plans = append(plans, d.toDomain())
	}
	return plans, nil
}

func (c *Client) SearchTestPoints(ctx context.Context, token string, filter domain.TestPointFilter, skip, take int) ([]domain.TestPoint, error) {
	var out []testPointDTO
	query := url.Values{
		"skip": {strconv.Itoa(skip)},
		"take": {strconv.Itoa(take)},
	}
	body := testPointSearchRequest{TestPlanIDs: filter.TestPlanIDs, WorkItemIsDeleted: filter.WorkItemIsDeleted}
	if err := c.do(ctx, token, "testPoints.search", http.MethodPost, "/api/v2/testPoints/search", query, body, &out); err != nil {
		return nil, err
	}
	points := make([]domain.TestPoint, 0, len(out))
	for _, d := range out {
		points = append(points, d.toDomain())
	}
	return points, nil
}

func (c *Client) GetUserName(ctx context.Context, token string, userID uuid.UUID) (string, error) {
	var out userDTO
	if err := c.do(ctx, token, "users.get", http.MethodGet, "/api/v2/users/"+userID.String(), nil, nil, &out); err != nil {
		return "", err
	}
	name := out.name()
	if name == "" {
		return "", fmt.Errorf("testit: user %s has no name: %w", userID, apperrors.ErrNotFound)
	}
	return name, nil
}

func (c *Client) do(ctx context.Context, token, endpoint, method, path string, query url.Values, in, out any) error {
	auth := AuthorizationHeader(token)
	if auth == "" {
		return apperrors.ErrMissingCredential
	}

	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("testit %s: encode request: %w", endpoint, err)
		}
	}

	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	u.RawQuery = query.Encode()
	target := u.String()

	attempt := 0
	operation := func() error {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, body)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", auth)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.cfg.UseCookies && c.cfg.Cookies != "" {
			req.Header.Set("Cookie", c.cfg.Cookies)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			c.observe(endpoint, 0)
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			c.logger.WarnContext(ctx, "TestIT request failed",
				"endpoint", endpoint, "attempt", attempt, "error", err)
			return fmt.Errorf("testit %s: %w: %w", endpoint, apperrors.ErrUpstreamUnavailable, err)
		}
		defer resp.Body.Close()
		c.observe(endpoint, resp.StatusCode)

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			apiErr := &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
			if apiErr.retryable() {
				c.logger.WarnContext(ctx, "TestIT returned retryable status",
					"endpoint", endpoint, "status", resp.StatusCode, "attempt", attempt)
				return apiErr
			}
			return backoff.Permanent(apiErr)
		}

		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return backoff.Permanent(fmt.Errorf("testit %s: decode response: %w", endpoint, err))
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.RetryInitialInterval
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, c.cfg.MaxRetries), ctx)

	return backoff.Retry(operation, policy)
}

func (c *Client) observe(endpoint string, code int) {
	if c.observer != nil {
		c.observer.ObserveTestITRequest(endpoint, code)
	}
}
