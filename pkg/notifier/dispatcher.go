package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultEventType is the repository_dispatch event sent downstream.
	DefaultEventType = "strapi-content-update"

	defaultUserAgent = "protein-empire-cms/0.1"
	defaultTimeout   = 10 * time.Second

	// timestampLayout is ISO-8601 in UTC with millisecond precision.
	timestampLayout = "2006-01-02T15:04:05.000Z"
)

// Dispatcher delivers one notification downstream.
type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification) error
}

// HTTPDoer is the subset of *http.Client used by the webhook dispatcher.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// DispatcherConfig configures the outbound webhook.
type DispatcherConfig struct {
	URL        string
	Token      string
	EventType  string
	UserAgent  string
	Timeout    time.Duration
	HTTPClient HTTPDoer
}

// NewDispatcher builds a webhook dispatcher. When the URL or token is
// missing, a no-op dispatcher is returned.
func NewDispatcher(cfg DispatcherConfig) Dispatcher {
	url := strings.TrimSpace(cfg.URL)
	token := strings.TrimSpace(cfg.Token)
	if url == "" || token == "" {
		return noopDispatcher{}
	}

	eventType := cfg.EventType
	if eventType == "" {
		eventType = DefaultEventType
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	return &webhookDispatcher{
		endpoint:  url,
		token:     token,
		eventType: eventType,
		userAgent: userAgent,
		client:    client,
	}
}

// Enabled reports whether d actually delivers notifications.
func Enabled(d Dispatcher) bool {
	_, noop := d.(noopDispatcher)
	return d != nil && !noop
}

type webhookPayload struct {
	EventType     string        `json:"event_type"`
	ClientPayload clientPayload `json:"client_payload"`
}

type clientPayload struct {
	Site      string `json:"site"`
	Timestamp string `json:"timestamp"`
}

type webhookDispatcher struct {
	endpoint  string
	token     string
	eventType string
	userAgent string
	client    HTTPDoer
}

func (w *webhookDispatcher) Dispatch(ctx context.Context, n Notification) error {
	body, err := json.Marshal(webhookPayload{
		EventType: w.eventType,
		ClientPayload: clientPayload{
			Site:      n.Site,
			Timestamp: n.Timestamp.UTC().Format(timestampLayout),
		},
	})
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+w.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", w.userAgent)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopDispatcher struct{}

func (noopDispatcher) Dispatch(context.Context, Notification) error { return nil }
