package notification

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

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/careflow-api/config"
	"github.com/jwalitptl/careflow-api/internal/model"
	"github.com/jwalitptl/careflow-api/internal/service/event"
	"github.com/jwalitptl/careflow-api/pkg/logger"
	"github.com/jwalitptl/careflow-api/pkg/messaging"
	"github.com/jwalitptl/careflow-api/pkg/metrics"
	"github.com/jwalitptl/careflow-api/pkg/worker"
)

type capturedRequest struct {
	header http.Header
	body   []byte
}

type webhookServer struct {
	mu       sync.Mutex
	requests []capturedRequest
	status   int
}

func (w *webhookServer) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	w.mu.Lock()
	w.requests = append(w.requests, capturedRequest{header: r.Header.Clone(), body: body})
	status := w.status
	w.mu.Unlock()
	rw.WriteHeader(status)
}

func (w *webhookServer) captured() []capturedRequest {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]capturedRequest(nil), w.requests...)
}

type mailbox struct {
	sent []model.EmailMessage
	err  error
}

func (m *mailbox) Send(ctx context.Context, msg model.EmailMessage) error {
	m.sent = append(m.sent, msg)
	return m.err
}

func newMetrics() *metrics.Metrics {
	return metrics.NewMetrics("test", prometheus.NewRegistry())
}

func notifyEvent(t *testing.T) *model.OutboxEvent {
	t.Helper()
	ctx := context.WithValue(context.Background(), logger.RequestIDKey, "req-7")
	e, err := event.NewEventService(nil).Notify(ctx, event.PatientDischarged, uuid.New(), map[string]interface{}{"report": "Care history"})
	require.NoError(t, err)
	return e
}

func TestWebhookNotifierSignsAndPosts(t *testing.T) {
	srv := &webhookServer{status: http.StatusOK}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	m := newMetrics()
	n := NewWebhookNotifier(config.WebhookConfig{URL: ts.URL, Secret: "s3cret", Timeout: time.Second}, logger.Nop(), m)
	e := notifyEvent(t)

	require.NoError(t, n.Notify(context.Background(), e))
	reqs := srv.captured()
	require.Len(t, reqs, 1)
	got := reqs[0]
	assert.JSONEq(t, string(e.Payload), string(got.body))
	assert.Equal(t, Sign([]byte("s3cret"), e.Payload), got.header.Get(SignatureHeader))
	assert.Equal(t, "patient_discharged", got.header.Get(EventHeader))
	assert.Equal(t, e.ID.String(), got.header.Get(DeliveryHeader))
	assert.Equal(t, "req-7", got.header.Get("X-Request-ID"))
	assert.Equal(t, "application/json", got.header.Get("Content-Type"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WebhookDeliveries.WithLabelValues("patient_discharged", "success")))
}

func TestWebhookNotifierUnsignedWithoutSecret(t *testing.T) {
	srv := &webhookServer{status: http.StatusNoContent}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	n := NewWebhookNotifier(config.WebhookConfig{URL: ts.URL}, logger.Nop(), newMetrics())
	require.NoError(t, n.Notify(context.Background(), notifyEvent(t)))
	assert.Empty(t, srv.captured()[0].header.Get(SignatureHeader))
}

func TestWebhookNotifierFailures(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		permanent bool
	}{
		{"server error retries", http.StatusBadGateway, false},
		{"throttled retries", http.StatusTooManyRequests, false},
		{"client error is permanent", http.StatusBadRequest, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(&webhookServer{status: tt.status})
			defer ts.Close()

			m := newMetrics()
			n := NewWebhookNotifier(config.WebhookConfig{URL: ts.URL}, logger.Nop(), m)
			err := n.Notify(context.Background(), notifyEvent(t))
			require.Error(t, err)
			assert.Equal(t, tt.permanent, worker.IsPermanent(err))
			assert.Equal(t, 1.0, testutil.ToFloat64(m.WebhookDeliveries.WithLabelValues("patient_discharged", "error")))
		})
	}
}

func TestSign(t *testing.T) {
	assert.Equal(t, "sha256=a777724d943eb48dc69bca8a4a6d57a04db3f9ec7e1de4e581e860265bdf3032", Sign([]byte("key"), []byte("{}")))
	assert.NotEqual(t, Sign([]byte("key"), []byte("{}")), Sign([]byte("other"), []byte("{}")))
}

func TestDispatchRoutesByPrefix(t *testing.T) {
	broker := messaging.NewMemoryBroker(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes, err := broker.Subscribe(ctx, "careflow.changes")
	require.NoError(t, err)

	srv := &webhookServer{status: http.StatusOK}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	mail := &mailbox{}
	m := newMetrics()
	svc := NewService(broker, "careflow.changes",
		NewWebhookNotifier(config.WebhookConfig{URL: ts.URL}, logger.Nop(), m),
		mail, logger.Nop(), m)
	events := event.NewEventService(nil)

	change := events.Changed(context.Background(), model.CollectionActions, event.OpCreate, uuid.New())
	require.NoError(t, svc.Dispatch(context.Background(), change))
	select {
	case msg := <-changes:
		assert.JSONEq(t, string(change.Payload), string(msg))
	case <-time.After(time.Second):
		t.Fatal("change not published")
	}

	require.NoError(t, svc.Dispatch(context.Background(), notifyEvent(t)))
	assert.Len(t, srv.captured(), 1)

	mailEvent, err := events.Email(context.Background(), event.DischargeEmailName, model.EmailMessage{To: "a@b.c", Subject: "s", Body: "b"})
	require.NoError(t, err)
	require.NoError(t, svc.Dispatch(context.Background(), mailEvent))
	assert.Equal(t, []model.EmailMessage{{To: "a@b.c", Subject: "s", Body: "b"}}, mail.sent)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmailDeliveries.WithLabelValues("success")))
}

func TestDispatchEdgeCases(t *testing.T) {
	mail := &mailbox{err: errors.New("smtp down")}
	m := newMetrics()
	svc := NewService(messaging.NewMemoryBroker(1), "c", nil, mail, logger.Nop(), m)

	assert.NoError(t, svc.Dispatch(context.Background(), notifyEvent(t)), "notifications are dropped without a webhook")

	err := svc.Dispatch(context.Background(), &model.OutboxEvent{EventType: "audit.login", Payload: json.RawMessage(`{}`)})
	assert.True(t, worker.IsPermanent(err))

	err = svc.Dispatch(context.Background(), &model.OutboxEvent{EventType: "email.x", Payload: json.RawMessage(`[`)})
	assert.True(t, worker.IsPermanent(err))

	err = svc.Dispatch(context.Background(), &model.OutboxEvent{EventType: "email.x", Payload: json.RawMessage(`{"to":"a@b.c"}`)})
	assert.ErrorContains(t, err, "smtp down")
	assert.False(t, worker.IsPermanent(err))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmailDeliveries.WithLabelValues("error")))
}
