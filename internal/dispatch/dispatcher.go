// package dispatch talks to the external delayed-execution scheduler. The
// scheduler stores an HTTP callback and replays it into this service after the
// requested delay, at-least-once: duplicate and retried deliveries are normal
// and the attribution worker is built to absorb them.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/feedbackhub/review-attribution-service/internal/apperrors"
	"github.com/feedbackhub/review-attribution-service/internal/config"
	"github.com/feedbackhub/review-attribution-service/internal/domain"
	"github.com/feedbackhub/review-attribution-service/pkg/logger/sl"
)

// Job is the payload of one delayed attribution invocation, keyed by
// (request, platform).
type Job struct {
	RequestID  string          `json:"request_id"`
	BusinessID string          `json:"business_id"`
	Platform   domain.Platform `json:"platform"`
}

// Dispatcher schedules a single future attribution callback.
type Dispatcher interface {
	Schedule(ctx context.Context, job Job, delay time.Duration) error
}

// Client enqueues jobs into the scheduler over HTTP.
type Client struct {
	baseURL     string
	token       string
	callbackURL string
	hc          *http.Client
	log         *slog.Logger
}

const (
	delayHeader       = "X-Delay-Seconds"
	callbackURLHeader = "X-Callback-URL"

	maxAttempts = 3
)

func NewClient(cfg config.Scheduler, log *slog.Logger) *Client {
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		token:       cfg.Token,
		callbackURL: strings.TrimRight(cfg.CallbackBaseURL, "/") + "/internal/attribution/callback",
		hc:          &http.Client{Timeout: cfg.Timeout},
		log:         log,
	}
}

// Schedule enqueues one delayed delivery of the job to the attribution
// callback endpoint. Enqueue failures are surfaced as ErrScheduleFailed so the
// caller can report a retryable condition; the click timestamp written before
// this call is never reverted.
func (c *Client) Schedule(ctx context.Context, job Job, delay time.Duration) error {
	const op = "internal.dispatch.Schedule"
	log := c.log.With(
		slog.String("op", op),
		slog.String("request_id", job.RequestID),
		slog.String("platform", string(job.Platform)),
	)

	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("%s: failed to marshal job: %w", op, err)
	}

	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/enqueue", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("%s: failed to build request: %w", op, err)
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set(callbackURLHeader, c.callbackURL)
		req.Header.Set(delayHeader, strconv.Itoa(int(delay.Seconds())))

		resp, err := c.hc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%s: %w", op, ctx.Err())
			}

			lastErr = err
			if !sleepCtx(ctx, backoff(attempt)) {
				break
			}

			continue
		}

		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			log.Info("attribution job enqueued", slog.String("delay", delay.String()))
			return nil
		}

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("scheduler returned %d", resp.StatusCode)
			if sleepCtx(ctx, backoff(attempt)) {
				continue
			}

			break
		}

		return fmt.Errorf("%s: %w: scheduler returned %d", op, apperrors.ErrScheduleFailed, resp.StatusCode)
	}

	log.Error("failed to enqueue attribution job", sl.Err(lastErr))

	return fmt.Errorf("%s: %w: %v", op, apperrors.ErrScheduleFailed, lastErr)
}

// sleepCtx waits for d or returns false if ctx is done first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func backoff(attempt int) time.Duration {
	return time.Duration(1<<attempt) * 200 * time.Millisecond
}
