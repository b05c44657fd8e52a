package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/stellarpay/starbridge/pkg/provider"
)

// webhookJob is one queued delivery.
type webhookJob struct {
	UserID    string    `json:"userId"`
	EventType string    `json:"eventType"`
	Payload   any       `json:"payload"`
	QueuedAt  time.Time `json:"queuedAt"`
}

// HTTPWebhookQueue delivers events to user-registered webhook endpoints
// through a buffered worker. QueueEvent never blocks the caller on the
// network; a full queue drops the event with a warning.
type HTTPWebhookQueue struct {
	endpointURL string
	secret      string
	httpClient  *http.Client
	logger      *slog.Logger

	jobs chan webhookJob
	wg   sync.WaitGroup
	once sync.Once
}

// NewHTTPWebhookQueue creates a delivery queue posting to the webhook
// dispatcher service. Call Close to drain it on shutdown.
func NewHTTPWebhookQueue(endpointURL, secret string, logger *slog.Logger) *HTTPWebhookQueue {
	q := &HTTPWebhookQueue{
		endpointURL: endpointURL,
		secret:      secret,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		logger:      logger.With("component", "webhook_queue"),
		jobs:        make(chan webhookJob, 256),
	}
	q.wg.Add(1)
	go q.worker()
	return q
}

// QueueEvent enqueues one delivery.
func (q *HTTPWebhookQueue) QueueEvent(ctx context.Context, userID string, eventType string, payload any) error {
	job := webhookJob{
		UserID:    userID,
		EventType: eventType,
		Payload:   payload,
		QueuedAt:  time.Now().UTC(),
	}
	select {
	case q.jobs <- job:
		return nil
	default:
		q.logger.Warn("webhook queue full, dropping event", "user_id", userID, "event", eventType)
		return fmt.Errorf("webhook queue full")
	}
}

func (q *HTTPWebhookQueue) worker() {
	defer q.wg.Done()
	for job := range q.jobs {
		if err := q.deliver(job); err != nil {
			q.logger.Error("webhook delivery failed",
				"user_id", job.UserID, "event", job.EventType, "error", err)
		}
	}
}

func (q *HTTPWebhookQueue) deliver(job webhookJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal webhook job: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, q.endpointURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if q.secret != "" {
		req.Header.Set("X-Webhook-Secret", q.secret)
	}

	resp, err := q.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 300 {
		return fmt.Errorf("dispatcher returned status %d", resp.StatusCode)
	}
	return nil
}

// Close stops accepting events and waits for in-flight deliveries.
func (q *HTTPWebhookQueue) Close() {
	q.once.Do(func() {
		close(q.jobs)
		q.wg.Wait()
	})
}

// MemoryWebhookQueue records queued events for tests and simulation runs.
type MemoryWebhookQueue struct {
	mu     sync.Mutex
	queued []webhookJob
}

// NewMemoryWebhookQueue creates an in-memory queue.
func NewMemoryWebhookQueue() *MemoryWebhookQueue {
	return &MemoryWebhookQueue{}
}

func (q *MemoryWebhookQueue) QueueEvent(ctx context.Context, userID string, eventType string, payload any) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queued = append(q.queued, webhookJob{
		UserID:    userID,
		EventType: eventType,
		Payload:   payload,
		QueuedAt:  time.Now().UTC(),
	})
	return nil
}

// QueuedTypes returns the event types queued so far, in order.
func (q *MemoryWebhookQueue) QueuedTypes() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	types := make([]string, len(q.queued))
	for i, job := range q.queued {
		types[i] = job.EventType
	}
	return types
}

var (
	_ provider.WebhookQueue = (*HTTPWebhookQueue)(nil)
	_ provider.WebhookQueue = (*MemoryWebhookQueue)(nil)
)
