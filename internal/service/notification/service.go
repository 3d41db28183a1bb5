package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jwalitptl/careflow-api/internal/email"
	"github.com/jwalitptl/careflow-api/internal/model"
	"github.com/jwalitptl/careflow-api/pkg/logger"
	"github.com/jwalitptl/careflow-api/pkg/messaging"
	"github.com/jwalitptl/careflow-api/pkg/metrics"
	"github.com/jwalitptl/careflow-api/pkg/worker"
)

// Notifier delivers notify.* events.
type Notifier interface {
	Notify(ctx context.Context, event *model.OutboxEvent) error
}

// Service routes outbox events to the broker, the webhook or the mailer by
// event type prefix. It implements worker.Dispatcher.
type Service struct {
	broker   messaging.Broker
	channel  string
	notifier Notifier
	emailSvc email.Service
	logger   *logger.Logger
	metrics  *metrics.Metrics
}

var _ worker.Dispatcher = (*Service)(nil)

// NewService wires the dispatcher. A nil notifier drops notify.* events.
func NewService(broker messaging.Broker, channel string, notifier Notifier, emailSvc email.Service, log *logger.Logger, m *metrics.Metrics) *Service {
	return &Service{
		broker:   broker,
		channel:  channel,
		notifier: notifier,
		emailSvc: emailSvc,
		logger:   log,
		metrics:  m,
	}
}

func (s *Service) Dispatch(ctx context.Context, event *model.OutboxEvent) error {
	switch event.Kind() {
	case model.EventPrefixChange:
		return s.broker.Publish(ctx, s.channel, json.RawMessage(event.Payload))
	case model.EventPrefixNotify:
		if s.notifier == nil {
			s.logger.Debug("Webhook disabled, notification dropped", "event_type", event.EventType)
			return nil
		}
		return s.notifier.Notify(ctx, event)
	case model.EventPrefixEmail:
		return s.sendEmail(ctx, event)
	default:
		return worker.Permanent(fmt.Errorf("unsupported event type: %s", event.EventType))
	}
}

func (s *Service) sendEmail(ctx context.Context, event *model.OutboxEvent) error {
	var msg model.EmailMessage
	if err := json.Unmarshal(event.Payload, &msg); err != nil {
		return worker.Permanent(fmt.Errorf("invalid email payload: %w", err))
	}
	if err := s.emailSvc.Send(ctx, msg); err != nil {
		s.metrics.EmailDeliveries.WithLabelValues("error").Inc()
		return err
	}
	s.metrics.EmailDeliveries.WithLabelValues("success").Inc()
	return nil
}
