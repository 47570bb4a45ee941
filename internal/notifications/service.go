package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"orderflow/internal/config"
)

const userAgent = "orderflow/0.1.0"

// Service delivers a rendered message to its recipient.
type Service interface {
	Send(ctx context.Context, msg Message) error
}

// NewService builds the notification sender selected in config. When no
// channel is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	endpoint := strings.TrimSpace(cfg.Notifications.Endpoint)
	if endpoint == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := &http.Client{Timeout: timeout}

	switch cfg.Notifications.Kind {
	case "ntfy":
		return &ntfyService{endpoint: strings.TrimRight(endpoint, "/"), client: client}
	case "webhook":
		return &webhookService{endpoint: endpoint, client: client}
	default:
		return noopService{}
	}
}

// ntfyService publishes each message to a topic named after the recipient
// under the configured server URL.
type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) Send(ctx context.Context, msg Message) error {
	r := render(msg)
	body := msg.Data.String("message")
	if r.format != nil {
		body = r.format(msg.Data)
	}
	url := n.endpoint + "/" + msg.Recipient

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if r.title != "" {
		req.Header.Set("Title", r.title)
	}
	if len(r.tags) > 0 {
		req.Header.Set("Tags", strings.Join(r.tags, ","))
	}
	if r.priority != "" {
		req.Header.Set("Priority", r.priority)
	}
	return do(n.client, req, "ntfy")
}

// webhookService posts the message as JSON. The message ID is sent as the
// Idempotency-Key so receivers can drop redeliveries.
type webhookService struct {
	endpoint string
	client   *http.Client
}

type webhookBody struct {
	ID        string  `json:"id"`
	Template  string  `json:"template"`
	Recipient string  `json:"recipient"`
	Title     string  `json:"title"`
	Message   string  `json:"message"`
	Data      Payload `json:"data"`
}

func (w *webhookService) Send(ctx context.Context, msg Message) error {
	r := render(msg)
	body := webhookBody{
		ID:        msg.ID,
		Template:  string(msg.Template),
		Recipient: msg.Recipient,
		Title:     r.title,
		Data:      msg.Data,
	}
	if r.format != nil {
		body.Message = r.format(msg.Data)
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", msg.ID)
	return do(w.client, req, "webhook")
}

func do(client *http.Client, req *http.Request, label string) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send %s notification: %w", label, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("%s returned %d: %s", label, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Send(context.Context, Message) error { return nil }
