package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// Webhook posts bridged chat to a platform webhook URL. It is send-only;
// inbound platform traffic arrives through a gateway adapter instead.
type Webhook struct {
	url  string
	http *fasthttp.Client

	defaultTimeout time.Duration
	retryMax       int
}

type WebhookOption func(*Webhook)

func WithTimeout(d time.Duration) WebhookOption {
	return func(w *Webhook) { w.defaultTimeout = d }
}

func WithRetry(max int) WebhookOption {
	return func(w *Webhook) { w.retryMax = max }
}

func NewWebhook(url string, opts ...WebhookOption) *Webhook {
	w := &Webhook{
		url:            strings.TrimSpace(url),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 16},
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

type webhookPayload struct {
	Username  string `json:"username,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Content   string `json:"content"`
}

func (w *Webhook) Post(ctx context.Context, authorName, avatarRef, text string) error {
	if w.url == "" {
		return errors.New("webhook url not configured")
	}
	payload, err := json.Marshal(webhookPayload{Username: authorName, AvatarURL: avatarRef, Content: text})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(w.url)
	req.Header.SetContentType("application/json")
	req.SetBody(payload)

	attempts := w.retryMax
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := w.http.DoDeadline(req, resp, w.computeDeadline(ctx))
		if err == nil {
			status := resp.StatusCode()
			if status >= 200 && status < 300 {
				return nil
			}
			err = fmt.Errorf("webhook status=%d body=%s", status, truncate(string(resp.Body()), 256))
			if !shouldRetryStatus(status) {
				return err
			}
		}
		lastErr = err
		if attempt < attempts {
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
		}
	}
	return lastErr
}

// OnInbound is a no-op: webhooks cannot receive.
func (w *Webhook) OnInbound(InboundHandler) {}

func (w *Webhook) Close() error { return nil }

func (w *Webhook) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(w.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	base := 100 * time.Millisecond
	return time.Duration(1<<uint(attempt-1)) * base
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
