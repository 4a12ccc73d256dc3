// Package analytics batches onboarding events and posts them to the API.
// Delivery is best effort and never blocks canvas editing.
package analytics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"strategy-builder-go/internal/metrics"
	"strategy-builder-go/internal/models"
	"strategy-builder-go/internal/session"
)

// Step statuses.
const (
	StatusPending    = "pending"
	StatusInProgress = "in-progress"
	StatusCompleted  = "completed"
)

// Sink accepts onboarding events.
type Sink interface {
	Track(event models.OnboardingEvent)
}

// Sender delivers a batch of events.
type Sender interface {
	SendOnboardingEvents(ctx context.Context, token string, events []models.OnboardingEvent) error
}

// Client posts events to POST /analytics/onboarding.
type Client struct {
	client *resty.Client
}

var _ Sender = (*Client)(nil)

// NewClient creates a sender for the API at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{client: resty.New().SetBaseURL(baseURL).SetTimeout(timeout)}
}

// SendOnboardingEvents posts {"events": [...]}. An empty batch is not sent.
func (c *Client) SendOnboardingEvents(ctx context.Context, token string, events []models.OnboardingEvent) error {
	if len(events) == 0 {
		return nil
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]any{"events": events}).
		Post("/analytics/onboarding")
	if err != nil {
		return fmt.Errorf("failed to record onboarding analytics: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("failed to record onboarding analytics (%d): %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// Queue holds events until they are flushed. Failed batches go back to the
// front of the queue. Only one flush runs at a time.
type Queue struct {
	mu       sync.Mutex
	pending  []models.OnboardingEvent
	flushing bool

	sender Sender
	tokens session.Provider
	logger *zap.Logger
	now    func() time.Time
}

var _ Sink = (*Queue)(nil)

// NewQueue creates an empty queue.
func NewQueue(sender Sender, tokens session.Provider, logger *zap.Logger) *Queue {
	return &Queue{
		sender: sender,
		tokens: tokens,
		logger: logger.Named("analytics"),
		now:    time.Now,
	}
}

// Track appends an event.
func (q *Queue) Track(event models.OnboardingEvent) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, event)
}

// MarkStep records a step status change as an event.
func (q *Queue) MarkStep(stepID, status string, properties map[string]any) {
	q.Track(models.OnboardingEvent{
		StepID:     stepID,
		Status:     status,
		OccurredAt: q.now().UTC(),
		Properties: properties,
	})
}

// Pending returns a copy of the queued events.
func (q *Queue) Pending() []models.OnboardingEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]models.OnboardingEvent(nil), q.pending...)
}

// Drain removes and returns every queued event.
func (q *Queue) Drain() []models.OnboardingEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	events := q.pending
	q.pending = nil
	return events
}

// Requeue puts events back in front of anything queued since they were drained.
func (q *Queue) Requeue(events []models.OnboardingEvent) {
	if len(events) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(append([]models.OnboardingEvent(nil), events...), q.pending...)
}

// Flush sends every queued event. On failure the batch is requeued and the
// error returned. A call made while another flush runs does nothing.
func (q *Queue) Flush(ctx context.Context) error {
	q.mu.Lock()
	if q.flushing || len(q.pending) == 0 {
		q.mu.Unlock()
		return nil
	}
	q.flushing = true
	events := q.pending
	q.pending = nil
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.flushing = false
		q.mu.Unlock()
	}()

	err := q.send(ctx, events)
	if err != nil {
		q.Requeue(events)
		metrics.AddAnalyticsEvents("requeued", len(events))
		return err
	}
	metrics.AddAnalyticsEvents("sent", len(events))
	return nil
}

func (q *Queue) send(ctx context.Context, events []models.OnboardingEvent) error {
	token, err := q.tokens.AccessToken(ctx)
	if err != nil {
		return err
	}
	return q.sender.SendOnboardingEvents(ctx, token, events)
}

// Run flushes every interval until ctx is cancelled. Whatever is still queued
// afterwards can be read with Drain.
func (q *Queue) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	q.logger.Info("Starting analytics flush loop", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			q.logger.Info("Stopping analytics flush loop", zap.Int("pending", len(q.Pending())))
			return
		case <-ticker.C:
			if err := q.Flush(ctx); err != nil {
				q.logger.Warn("Failed to send onboarding analytics", zap.Error(err))
			}
		}
	}
}
