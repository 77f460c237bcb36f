package school

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/alem-hub/attendance-hub/internal/domain/attendance"
	"github.com/alem-hub/attendance-hub/internal/domain/schedule"
	"github.com/alem-hub/attendance-hub/internal/domain/shared"
	"github.com/alem-hub/attendance-hub/pkg/circuitbreaker"
	"github.com/alem-hub/attendance-hub/pkg/logger"
	"github.com/alem-hub/attendance-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the school API client.
type ClientConfig struct {
	// BaseURL is the API root, without a trailing slash.
	BaseURL string

	// Timeout bounds a single HTTP request.
	Timeout time.Duration

	// RateLimit is requests per second across all students; RateBurst the bucket size.
	RateLimit float64
	RateBurst int

	// MaxRetries is the attempt budget per call.
	MaxRetries int

	BreakerThreshold int
	BreakerTimeout   time.Duration

	// OnBreakerStateChange is optional.
	OnBreakerStateChange func(name string, from, to circuitbreaker.State)

	Logger *logger.Logger

	// HTTPClient overrides the default client (tests).
	HTTPClient *http.Client
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL:          baseURL,
		Timeout:          15 * time.Second,
		RateLimit:        5,
		RateBurst:        10,
		MaxRetries:       3,
		BreakerThreshold: 5,
		BreakerTimeout:   30 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client is the school API client. It implements command.ScheduleClient.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *circuitbreaker.CircuitBreaker
	retrier    *retry.Retrier
	mapper     *Mapper
	log        *logger.Logger
}

// NewClient creates a new school API client.
func NewClient(config ClientConfig) *Client {
	def := DefaultClientConfig(config.BaseURL)
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if config.RateLimit <= 0 {
		config.RateLimit = def.RateLimit
	}
	if config.RateBurst <= 0 {
		config.RateBurst = def.RateBurst
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = def.MaxRetries
	}
	if config.BreakerThreshold <= 0 {
		config.BreakerThreshold = def.BreakerThreshold
	}
	if config.BreakerTimeout <= 0 {
		config.BreakerTimeout = def.BreakerTimeout
	}
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	log := config.Logger.With(logger.Component("school_api"))
	onChange := func(name string, from, to circuitbreaker.State) {
		log.Warn("circuit breaker state changed",
			logger.String("breaker", name),
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
		if config.OnBreakerStateChange != nil {
			config.OnBreakerStateChange(name, from, to)
		}
	}

	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(config.RateLimit), config.RateBurst),
		breaker:    circuitbreaker.SchoolAPIBreaker(config.BreakerThreshold, config.BreakerTimeout, onChange),
		retrier:    retry.SchoolAPIRetrier(config.MaxRetries),
		mapper:     NewMapper(),
		log:        log,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// VerifyToken resolves the student behind token. A rejected token returns
// shared.ErrInvalidToken.
func (c *Client) VerifyToken(ctx context.Context, token string) (string, error) {
	var resp APIResponse[ProfileDTO]
	if err := c.doRequest(ctx, token, "/api/v1/me", &resp); err != nil {
		return "", fmt.Errorf("verify token: %w", err)
	}
	if !resp.Success || resp.Data == nil || strings.TrimSpace(resp.Data.StudentID) == "" {
		return "", shared.ErrInvalidToken
	}
	return strings.TrimSpace(resp.Data.StudentID), nil
}

// FetchMonthSchedule fetches one calendar month.
func (c *Client) FetchMonthSchedule(ctx context.Context, token string, month time.Month, year int) ([]schedule.RawEvent, error) {
	params := url.Values{}
	params.Set("month", strconv.Itoa(int(month)))
	params.Set("year", strconv.Itoa(year))

	var resp APIResponse[ScheduleDTO]
	if err := c.doRequest(ctx, token, "/api/v1/schedule?"+params.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("fetch schedule %04d-%02d: %w", year, int(month), err)
	}
	if err := envelopeError(resp.Success, resp.Error); err != nil {
		return nil, fmt.Errorf("fetch schedule %04d-%02d: %w", year, int(month), err)
	}
	return c.mapper.RawEventsFromDTO(resp.Data), nil
}

// FetchAttendanceList fetches the courses that have attendance logs.
func (c *Client) FetchAttendanceList(ctx context.Context, token string) ([]attendance.CourseRef, error) {
	var resp APIResponse[AttendanceListDTO]
	if err := c.doRequest(ctx, token, "/api/v1/attendance", &resp); err != nil {
		return nil, fmt.Errorf("fetch attendance list: %w", err)
	}
	if err := envelopeError(resp.Success, resp.Error); err != nil {
		return nil, fmt.Errorf("fetch attendance list: %w", err)
	}
	return c.mapper.CourseRefsFromDTO(resp.Data), nil
}

// FetchAttendanceDetail fetches the attendance log of one course.
func (c *Client) FetchAttendanceDetail(ctx context.Context, token, courseCode string) (*attendance.CourseDetail, error) {
	path := "/api/v1/attendance/" + url.PathEscape(courseCode)

	var resp APIResponse[AttendanceDetailDTO]
	if err := c.doRequest(ctx, token, path, &resp); err != nil {
		return nil, fmt.Errorf("fetch attendance %s: %w", courseCode, err)
	}
	if err := envelopeError(resp.Success, resp.Error); err != nil {
		return nil, fmt.Errorf("fetch attendance %s: %w", courseCode, err)
	}
	return c.mapper.CourseDetailFromDTO(resp.Data), nil
}

// BreakerState reports the circuit breaker state for health checks.
func (c *Client) BreakerState() circuitbreaker.State {
	return c.breaker.State()
}

// ══════════════════════════════════════════════════════════════════════════════
// HTTP HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// doRequest runs a GET through the rate limiter, circuit breaker and retrier.
// Client-side errors (4xx other than 429) are returned without retrying and do
// not count against the breaker.
func (c *Client) doRequest(ctx context.Context, token, path string, result any) error {
	return c.retrier.Do(ctx, func(ctx context.Context) error {
		var clientErr error
		err := c.breaker.Execute(ctx, func(ctx context.Context) error {
			err := c.doSingleRequest(ctx, token, path, result)
			if retry.IsPermanent(err) {
				clientErr = err
				return nil
			}
			return err
		})
		if clientErr != nil {
			return clientErr
		}
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
			return retry.Permanent(fmt.Errorf("%w: %w", shared.ErrSchoolAPIUnavailable, err))
		}
		return err
	})
}

func (c *Client) doSingleRequest(ctx context.Context, token, path string, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return retry.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return retry.Permanent(ctx.Err())
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return retry.Retryable(fmt.Errorf("%w: %w", shared.ErrSchoolAPITimeout, err))
		}
		return retry.Retryable(fmt.Errorf("%w: %w", shared.ErrSchoolAPIUnavailable, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return retry.Retryable(fmt.Errorf("%w: read response: %w", shared.ErrSchoolAPIUnavailable, err))
	}

	c.log.Debug("school api request",
		logger.String("path", req.URL.Path),
		logger.Int("status", resp.StatusCode),
		logger.Latency(time.Since(start)),
	)

	if err := statusError(resp.StatusCode, body); err != nil {
		return err
	}

	if err := json.Unmarshal(body, result); err != nil {
		return retry.Permanent(fmt.Errorf("%w: %w", shared.ErrSchoolAPIInvalidResponse, err))
	}
	return nil
}

func statusError(status int, body []byte) error {
	switch {
	case status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return retry.Permanent(shared.ErrInvalidToken)
	case status == http.StatusTooManyRequests:
		return retry.Retryable(shared.ErrSchoolAPIRateLimited)
	case status >= 500:
		return retry.Retryable(fmt.Errorf("%w: status %d", shared.ErrSchoolAPIUnavailable, status))
	}

	var apiErr APIErrorDTO
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
		return retry.Permanent(fmt.Errorf("%w: status %d: %s", shared.ErrSchoolAPIInvalidResponse, status, apiErr.Message))
	}
	return retry.Permanent(fmt.Errorf("%w: status %d", shared.ErrSchoolAPIInvalidResponse, status))
}

// envelopeError turns {success:false} into "no data" for the caller.
func envelopeError(success bool, message string) error {
	if success {
		return nil
	}
	if message == "" {
		message = "request unsuccessful"
	}
	return shared.NewDomainError("school", "Envelope", shared.ErrExternalService, message)
}
