// Package push delivers provider notifications to a push gateway (FCM or a
// compatible relay) addressed by device token.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var ErrNotConfigured = errors.New("push webhook url not configured")

type Notification struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

type Sender interface {
	Send(ctx context.Context, token string, n Notification) error
	ProviderID() string
}

type WebhookSender struct {
	url    string
	apiKey string
	http   *http.Client
}

func NewWebhookSender(url, apiKey string, timeout time.Duration) *WebhookSender {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookSender{
		url:    strings.TrimSpace(url),
		apiKey: strings.TrimSpace(apiKey),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (s *WebhookSender) ProviderID() string {
	return "push-webhook"
}

type message struct {
	Token        string       `json:"token"`
	Notification Notification `json:"notification"`
}

func (s *WebhookSender) Send(ctx context.Context, token string, n Notification) error {
	if s.url == "" {
		return ErrNotConfigured
	}
	raw, err := json.Marshal(message{Token: token, Notification: n})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "key="+s.apiKey)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("push webhook returned %d", resp.StatusCode)
	}
	return nil
}

type NoopSender struct{}

func (NoopSender) ProviderID() string { return "push-noop" }

func (NoopSender) Send(context.Context, string, Notification) error { return nil }
