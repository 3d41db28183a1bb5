package notification

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jwalitptl/careflow-api/config"
	"github.com/jwalitptl/careflow-api/internal/model"
	"github.com/jwalitptl/careflow-api/pkg/circuitbreaker"
	"github.com/jwalitptl/careflow-api/pkg/logger"
	"github.com/jwalitptl/careflow-api/pkg/metrics"
	"github.com/jwalitptl/careflow-api/pkg/worker"
)

const (
	SignatureHeader = "X-CareFlow-Signature"
	EventHeader     = "X-CareFlow-Event"
	DeliveryHeader  = "X-CareFlow-Delivery"
)

// WebhookNotifier posts notification payloads to the configured endpoint.
type WebhookNotifier struct {
	url     string
	secret  []byte
	client  *http.Client
	cb      *circuitbreaker.CircuitBreaker
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewWebhookNotifier(cfg config.WebhookConfig, log *logger.Logger, m *metrics.Metrics) *WebhookNotifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		url:    cfg.URL,
		secret: []byte(cfg.Secret),
		client: &http.Client{Timeout: timeout},
		cb: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "webhook",
			MaxFailures: 5,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			OnStateChange: func(name, from, to string) {
				log.Warn("Circuit breaker state changed", "breaker", name, "from", from, "to", to)
			},
		}),
		logger:  log,
		metrics: m,
	}
}

// Sign returns the signature header value for body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func (n *WebhookNotifier) Notify(ctx context.Context, event *model.OutboxEvent) error {
	name := event.Name()
	err := n.cb.Execute(func() error {
		return n.post(ctx, event)
	})
	if err != nil {
		n.metrics.WebhookDeliveries.WithLabelValues(name, "error").Inc()
		return err
	}
	n.metrics.WebhookDeliveries.WithLabelValues(name, "success").Inc()
	return nil
}

func (n *WebhookNotifier) post(ctx context.Context, event *model.OutboxEvent) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(event.Payload))
	if err != nil {
		return worker.Permanent(fmt.Errorf("failed to build webhook request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventHeader, event.Name())
	req.Header.Set(DeliveryHeader, event.ID.String())
	if rid := event.Headers["request_id"]; rid != "" {
		req.Header.Set("X-Request-ID", rid)
	}
	if len(n.secret) > 0 {
		req.Header.Set(SignatureHeader, Sign(n.secret, event.Payload))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	err = fmt.Errorf("webhook returned status %d", resp.StatusCode)
	switch {
	case resp.StatusCode == http.StatusRequestTimeout, resp.StatusCode == http.StatusTooManyRequests:
		return err
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return worker.Permanent(err)
	}
	return err
}
