// package gateway holds the clients for external delivery providers. The
// review-request pipeline treats message delivery as opaque: send a rendered
// message to a phone number, get success or an error.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/feedbackhub/review-attribution-service/internal/config"
)

// Messenger delivers one rendered message to a destination phone number.
type Messenger interface {
	Send(ctx context.Context, phone, text string) error
}

// SMSClient talks to the SMS gateway's HTTP API.
type SMSClient struct {
	baseURL string
	apiKey  string
	sender  string
	hc      *http.Client
	log     *slog.Logger
}

func NewSMSClient(cfg config.Gateway, log *slog.Logger) *SMSClient {
	return &SMSClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		sender:  cfg.Sender,
		hc:      &http.Client{Timeout: cfg.Timeout},
		log:     log,
	}
}

type sendPayload struct {
	To   string `json:"to"`
	From string `json:"from"`
	Text string `json:"text"`
}

func (c *SMSClient) Send(ctx context.Context, phone, text string) error {
	const op = "internal.gateway.Send"

	body, err := json.Marshal(sendPayload{To: phone, From: c.sender, Text: text})
	if err != nil {
		return fmt.Errorf("%s: failed to marshal payload: %w", op, err)
	}

	var lastErr error

	for attempt := 0; attempt < 3; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("%s: failed to build request: %w", op, err)
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

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
			return nil
		}

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("gateway returned %d", resp.StatusCode)
			if sleepCtx(ctx, backoff(attempt)) {
				continue
			}

			break
		}

		return fmt.Errorf("%s: gateway returned %d", op, resp.StatusCode)
	}

	return fmt.Errorf("%s: send failed: %w", op, lastErr)
}

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
