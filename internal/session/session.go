// Package session supplies bearer tokens for API calls.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"strategy-builder-go/internal/config"
)

// ErrMissingSession is returned when no usable access token can be obtained.
var ErrMissingSession = errors.New("missing session access token")

// Provider returns the bearer token for the current session.
type Provider interface {
	AccessToken(ctx context.Context) (string, error)
}

// Refresher obtains a new access token.
type Refresher interface {
	Refresh(ctx context.Context) (string, error)
}

// RefresherFunc adapts a function to Refresher.
type RefresherFunc func(ctx context.Context) (string, error)

// Refresh calls f.
func (f RefresherFunc) Refresh(ctx context.Context) (string, error) { return f(ctx) }

// TokenSource caches an access token and refreshes it when it is missing or
// its JWT exp claim is within leeway of now. Tokens that are not JWTs are
// used as they are.
type TokenSource struct {
	mu        sync.Mutex
	token     string
	refresher Refresher
	leeway    time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

var _ Provider = (*TokenSource)(nil)

// NewTokenSource creates a TokenSource. refresher may be nil.
func NewTokenSource(token string, refresher Refresher, leeway time.Duration, logger *zap.Logger) *TokenSource {
	return &TokenSource{
		token:     token,
		refresher: refresher,
		leeway:    leeway,
		now:       time.Now,
		logger:    logger.Named("session"),
	}
}

// SetToken replaces the cached token, e.g. after a sign-in.
func (s *TokenSource) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// AccessToken returns the cached token or refreshes it.
func (s *TokenSource) AccessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && !s.expired(s.token) {
		return s.token, nil
	}
	if s.refresher == nil {
		return "", ErrMissingSession
	}

	s.logger.Debug("Refreshing access token")
	token, err := s.refresher.Refresh(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: refresh failed: %v", ErrMissingSession, err)
	}
	if token == "" {
		return "", ErrMissingSession
	}
	s.token = token
	return token, nil
}

func (s *TokenSource) expired(token string) bool {
	claims := jwt.RegisteredClaims{}
	// The API verifies the signature; here we only read exp.
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !s.now().Add(s.leeway).Before(claims.ExpiresAt.Time)
}

// HTTPRefresher exchanges a refresh token for an access token.
type HTTPRefresher struct {
	client       *resty.Client
	url          string
	refreshToken string
}

var _ Refresher = (*HTTPRefresher)(nil)

// NewHTTPRefresher creates a refresher posting to cfg.RefreshURL.
func NewHTTPRefresher(cfg *config.Session, client *resty.Client) *HTTPRefresher {
	if client == nil {
		client = resty.New()
	}
	return &HTTPRefresher{client: client, url: cfg.RefreshURL, refreshToken: cfg.RefreshToken}
}

// Refresh posts {"refresh_token": ...} and reads {"access_token": ...}.
func (r *HTTPRefresher) Refresh(ctx context.Context) (string, error) {
	var result struct {
		AccessToken string `json:"access_token"`
	}
	resp, err := r.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{"refresh_token": r.refreshToken}).
		SetResult(&result).
		Post(r.url)
	if err != nil {
		return "", fmt.Errorf("failed to refresh token: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("failed to refresh token: status %s", resp.Status())
	}
	return result.AccessToken, nil
}

// New builds the Provider described by cfg.
func New(cfg *config.Session, logger *zap.Logger) *TokenSource {
	var refresher Refresher
	if cfg.RefreshURL != "" {
		refresher = NewHTTPRefresher(cfg, nil)
	}
	return NewTokenSource(cfg.AccessToken, refresher, cfg.ExpiryLeeway, logger)
}
