package notifications_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderflow/internal/config"
	"orderflow/internal/notifications"
)

func TestNewServiceReturnsNoopWhenEndpointMissing(t *testing.T) {
	cfg := config.Default()
	svc := notifications.NewService(&cfg)
	msg := notifications.MustMessage(notifications.TemplateOrderDelivered, "owner-1", notifications.Payload{"filename": "a.mp3"})
	require.NoError(t, svc.Send(context.Background(), msg))
}

func TestNewMessageRejectsUnknownTemplate(t *testing.T) {
	_, err := notifications.NewMessage("NOT_A_TEMPLATE", "w-1", nil)
	require.Error(t, err)

	_, err = notifications.NewMessage(notifications.TemplateQCJobAssigned, " ", nil)
	require.Error(t, err)

	tmpl, ok := notifications.ParseTemplate("qc_job_timeout")
	require.True(t, ok)
	assert.Equal(t, notifications.TemplateQCJobTimeout, tmpl)
}

func TestNtfyServiceFormatsHeaders(t *testing.T) {
	var (
		gotPath     string
		gotTitle    string
		gotTags     string
		gotPriority string
		gotBody     string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotPath = r.URL.Path
		gotTitle = r.Header.Get("Title")
		gotTags = r.Header.Get("Tags")
		gotPriority = r.Header.Get("Priority")
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.Kind = "ntfy"
	cfg.Notifications.Endpoint = server.URL
	svc := notifications.NewService(&cfg)

	msg := notifications.MustMessage(notifications.TemplateJobTimeoutWarning, "worker-9", notifications.Payload{
		"filename":  "deposition.mp3",
		"remaining": "15m0s",
	})
	require.NoError(t, svc.Send(context.Background(), msg))

	assert.Equal(t, "/worker-9", gotPath)
	assert.Equal(t, "Deadline approaching", gotTitle)
	assert.Equal(t, "orderflow,deadline,warning", gotTags)
	assert.Equal(t, "high", gotPriority)
	assert.Equal(t, "deposition.mp3 is due in 15m0s", gotBody)
}

func TestWebhookServiceSendsIdempotencyKey(t *testing.T) {
	var (
		gotKey  string
		decoded map[string]any
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("Idempotency-Key")
		_ = json.NewDecoder(r.Body).Decode(&decoded)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.Kind = "webhook"
	cfg.Notifications.Endpoint = server.URL
	svc := notifications.NewService(&cfg)

	msg := notifications.MustMessage(notifications.TemplatePendingFilesAlert, "ops", notifications.Payload{"count": 3})
	require.NoError(t, svc.Send(context.Background(), msg))

	assert.Equal(t, msg.ID, gotKey)
	assert.Equal(t, "PENDING_FILES_ALERT", decoded["template"])
	assert.Equal(t, "3 files moved to screening", decoded["message"])
}

func TestWebhookServiceReportsHTTPFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.Kind = "webhook"
	cfg.Notifications.Endpoint = server.URL
	svc := notifications.NewService(&cfg)

	err := svc.Send(context.Background(), notifications.MustMessage(notifications.TemplateOrderDelivered, "o", nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

type memoryOutbox struct {
	mu      sync.Mutex
	pending []notifications.Message
	sent    []string
	failed  map[string]int
	dead    []string
	nextAt  map[string]time.Time
}

func (m *memoryOutbox) PendingMessages(_ context.Context, _ time.Time, limit int) ([]notifications.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pending) > limit {
		return append([]notifications.Message(nil), m.pending[:limit]...), nil
	}
	return append([]notifications.Message(nil), m.pending...), nil
}

func (m *memoryOutbox) MarkMessageSent(_ context.Context, id string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, id)
	return nil
}

func (m *memoryOutbox) MarkMessageFailed(_ context.Context, id string, attempts int, _ string, next time.Time, dead bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failed == nil {
		m.failed = map[string]int{}
		m.nextAt = map[string]time.Time{}
	}
	m.failed[id] = attempts
	m.nextAt[id] = next
	if dead {
		m.dead = append(m.dead, id)
	}
	return nil
}

type scriptedService struct {
	fail map[string]bool
}

func (s scriptedService) Send(_ context.Context, msg notifications.Message) error {
	if s.fail[msg.ID] {
		return errors.New("unreachable")
	}
	return nil
}

func TestDispatcherMarksSentAndBacksOffFailures(t *testing.T) {
	ok := notifications.MustMessage(notifications.TemplateQCJobAssigned, "w-1", nil)
	retry := notifications.MustMessage(notifications.TemplateQCJobTimeout, "w-2", nil)
	retry.Attempts = 1
	doomed := notifications.MustMessage(notifications.TemplateReviewJobTimeout, "w-3", nil)
	doomed.Attempts = 2

	outbox := &memoryOutbox{pending: []notifications.Message{ok, retry, doomed}}
	svc := scriptedService{fail: map[string]bool{retry.ID: true, doomed.ID: true}}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	dispatcher := notifications.NewDispatcher(outbox, svc, nil, 3, 10)
	dispatcher.SetClock(func() time.Time { return now })

	result, err := dispatcher.DispatchOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, notifications.DispatchResult{Sent: 1, Failed: 1, Dead: 1}, result)
	assert.Equal(t, []string{ok.ID}, outbox.sent)
	assert.Equal(t, 2, outbox.failed[retry.ID])
	assert.Equal(t, now.Add(time.Minute), outbox.nextAt[retry.ID])
	assert.Equal(t, []string{doomed.ID}, outbox.dead)
}
