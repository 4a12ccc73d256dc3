// Package versions is the client for the strategy versions API.
package versions

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"strategy-builder-go/internal/config"
	"strategy-builder-go/internal/models"
	"strategy-builder-go/internal/session"
)

// ErrRequestFailed wraps every non-2xx response.
var ErrRequestFailed = errors.New("request failed")

// API defines the versions endpoints used by the coordinator.
type API interface {
	ListVersions(ctx context.Context, strategyID string) ([]models.StrategyVersionSummary, error)
	CreateVersion(ctx context.Context, strategyID string, req CreateVersionRequest) (*models.StrategyVersionSummary, error)
	ValidateGraph(ctx context.Context, strategyID string, graph models.StrategyGraph) ([]models.CanvasValidationIssue, error)
	RevertVersion(ctx context.Context, strategyID, versionID string) (*models.StrategyVersionSummary, error)
}

// CreateVersionRequest is the autosave payload.
type CreateVersionRequest struct {
	Graph            models.StrategyGraph     `json:"graph"`
	Label            string                   `json:"label,omitempty"`
	Notes            string                   `json:"notes,omitempty"`
	EducatorCallouts []models.EducatorCallout `json:"educatorCallouts"`
}

type listResponse struct {
	Versions []models.StrategyVersionSummary `json:"versions"`
}

type versionResponse struct {
	Version models.StrategyVersionSummary `json:"version"`
}

type validateRequest struct {
	Graph models.StrategyGraph `json:"graph"`
}

type validateResponse struct {
	Issues []models.CanvasValidationIssue `json:"issues"`
}

// Client is a rate-limited, retrying client for the versions API.
// It implements the API interface.
type Client struct {
	client     *resty.Client
	tokens     session.Provider
	logger     *zap.Logger
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
}

// ensure Client implements the interface
var _ API = (*Client)(nil)

// NewClient creates a new versions API client.
func NewClient(cfg *config.API, tokens session.Provider, logger *zap.Logger) *Client {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")

	maxRetries := cfg.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}

	return &Client{
		client:     client,
		tokens:     tokens,
		logger:     logger.Named("versions-api"),
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst),
		maxRetries: maxRetries,
		backoff:    time.Second,
	}
}

// ListVersions returns the versions of a strategy, newest first.
func (c *Client) ListVersions(ctx context.Context, strategyID string) ([]models.StrategyVersionSummary, error) {
	var result listResponse
	path := fmt.Sprintf("/strategies/%s/versions", strategyID)
	if _, err := c.doRequest(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	if result.Versions == nil {
		result.Versions = []models.StrategyVersionSummary{}
	}
	return result.Versions, nil
}

// CreateVersion persists a new version built from req.Graph.
func (c *Client) CreateVersion(ctx context.Context, strategyID string, req CreateVersionRequest) (*models.StrategyVersionSummary, error) {
	if req.EducatorCallouts == nil {
		req.EducatorCallouts = []models.EducatorCallout{}
	}
	var result versionResponse
	path := fmt.Sprintf("/strategies/%s/versions", strategyID)
	if _, err := c.doRequest(ctx, http.MethodPost, path, req, &result); err != nil {
		return nil, fmt.Errorf("failed to create version: %w", err)
	}
	c.logger.Debug("Created version", zap.String("version_id", result.Version.ID), zap.Int("version", result.Version.Version))
	return &result.Version, nil
}

// ValidateGraph runs server-side validation without saving.
func (c *Client) ValidateGraph(ctx context.Context, strategyID string, graph models.StrategyGraph) ([]models.CanvasValidationIssue, error) {
	var result validateResponse
	path := fmt.Sprintf("/strategies/%s/versions/validate", strategyID)
	if _, err := c.doRequest(ctx, http.MethodPost, path, validateRequest{Graph: graph}, &result); err != nil {
		return nil, fmt.Errorf("failed to validate graph: %w", err)
	}
	if result.Issues == nil {
		result.Issues = []models.CanvasValidationIssue{}
	}
	return result.Issues, nil
}

// RevertVersion asks the server to create a new head version copying versionID.
func (c *Client) RevertVersion(ctx context.Context, strategyID, versionID string) (*models.StrategyVersionSummary, error) {
	var result versionResponse
	path := fmt.Sprintf("/strategies/%s/versions/%s/revert", strategyID, versionID)
	if _, err := c.doRequest(ctx, http.MethodPost, path, nil, &result); err != nil {
		return nil, fmt.Errorf("failed to revert version: %w", err)
	}
	return &result.Version, nil
}

// doRequest handles the actual request execution with rate limiting and retry logic.
// GET requests are retried on network errors, 429 and 5xx. POST requests are
// only retried on 429, since the server may already have created a version.
func (c *Client) doRequest(ctx context.Context, method, path string, body, result any) (*resty.Response, error) {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	var resp *resty.Response
	for i := 0; i < c.maxRetries; i++ {
		// Wait for the rate limiter
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		req := c.client.R().
			SetContext(ctx).
			SetAuthToken(token).
			SetResult(result)
		if body != nil {
			req.SetBody(body)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("path", path))
		resp, err = req.Execute(method, path)

		if err == nil && !resp.IsError() {
			return resp, nil // Success
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		// Analyze error and decide whether to retry
		shouldRetry := false
		var retryAfter time.Duration

		if err == nil {
			statusCode := resp.StatusCode()
			switch {
			case statusCode == http.StatusTooManyRequests:
				shouldRetry = true
				if seconds, convErr := strconv.Atoi(resp.Header().Get("Retry-After")); convErr == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			case statusCode >= 500:
				shouldRetry = method == http.MethodGet
			}
			err = fmt.Errorf("%w (%d): %s", ErrRequestFailed, statusCode, resp.String())
		} else {
			// Network or other client-side errors
			shouldRetry = method == http.MethodGet
		}

		if !shouldRetry || i == c.maxRetries-1 {
			return nil, err
		}

		if retryAfter == 0 {
			// Exponential backoff: base, 2*base, 4*base
			retryAfter = time.Duration(math.Pow(2, float64(i))) * c.backoff
		}

		c.logger.Warn("Request failed, retrying...",
			zap.String("path", path),
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", c.maxRetries, err)
}
