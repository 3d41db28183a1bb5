package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/careflow-api/internal/model"
	"github.com/jwalitptl/careflow-api/internal/repository"
	"github.com/jwalitptl/careflow-api/pkg/logger"
	"github.com/jwalitptl/careflow-api/pkg/metrics"
)

type OutboxProcessorConfig struct {
	BatchSize     int
	PollInterval  time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	LeaseDuration time.Duration
}

// Dispatcher delivers one outbox event to its destination.
type Dispatcher interface {
	Dispatch(ctx context.Context, event *model.OutboxEvent) error
}

type DispatcherFunc func(ctx context.Context, event *model.OutboxEvent) error

func (f DispatcherFunc) Dispatch(ctx context.Context, event *model.OutboxEvent) error {
	return f(ctx, event)
}

// PermanentError marks a delivery failure that retrying cannot fix.
type PermanentError struct{ Err error }

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

type OutboxProcessor struct {
	repo       repository.OutboxRepository
	dispatcher Dispatcher
	config     OutboxProcessorConfig
	logger     *logger.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

func NewOutboxProcessor(
	repo repository.OutboxRepository,
	dispatcher Dispatcher,
	config OutboxProcessorConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *OutboxProcessor {
	// Config validation instead of defaults
	if config.BatchSize <= 0 {
		panic("BatchSize must be greater than 0")
	}
	if config.PollInterval <= 0 {
		panic("PollInterval must be greater than 0")
	}
	if config.RetryAttempts <= 0 {
		panic("RetryAttempts must be greater than 0")
	}
	if config.RetryDelay <= 0 {
		panic("RetryDelay must be greater than 0")
	}
	if config.MaxRetryDelay < config.RetryDelay {
		config.MaxRetryDelay = config.RetryDelay
	}
	if config.LeaseDuration <= 0 {
		panic("LeaseDuration must be greater than 0")
	}

	return &OutboxProcessor{
		repo:       repo,
		dispatcher: dispatcher,
		config:     config,
		logger:     logger,
		metrics:    metrics,
		now:        time.Now,
	}
}

func (p *OutboxProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.logger.Info("Starting outbox processor",
		"batch_size", p.config.BatchSize,
		"poll_interval", p.config.PollInterval.String())

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Shutting down outbox processor")
			return
		case <-ticker.C:
			if _, err := p.ProcessBatch(ctx); err != nil {
				p.logger.Error(err, "Failed to process events")
			}
		}
	}
}

// ProcessBatch claims and delivers one batch and returns how many events
// were claimed.
func (p *OutboxProcessor) ProcessBatch(ctx context.Context) (int, error) {
	timer := prometheus.NewTimer(p.metrics.OutboxProcessingLatency)
	defer timer.ObserveDuration()

	events, err := p.repo.ClaimPending(ctx, p.config.BatchSize, p.config.LeaseDuration)
	if err != nil {
		p.metrics.DatabaseOperations.WithLabelValues("claim_pending_events", "error").Inc()
		return 0, fmt.Errorf("failed to claim pending events: %w", err)
	}
	p.metrics.DatabaseOperations.WithLabelValues("claim_pending_events", "success").Inc()

	for _, event := range events {
		if err := p.processEvent(ctx, event); err != nil {
			p.logger.Error(err, "Failed to process event",
				"event_id", event.ID.String(),
				"event_type", event.EventType)
		}
	}

	if pending, err := p.repo.CountPending(ctx); err == nil {
		p.metrics.OutboxQueueSize.Set(float64(pending))
	}
	return len(events), nil
}

func (p *OutboxProcessor) processEvent(ctx context.Context, event *model.OutboxEvent) error {
	kind := event.Kind()
	err := p.dispatcher.Dispatch(ctx, event)
	if err == nil {
		p.metrics.OutboxEventsProcessed.WithLabelValues(kind).Inc()
		if err := p.repo.MarkProcessed(ctx, event.ID); err != nil {
			return fmt.Errorf("failed to mark event processed: %w", err)
		}
		return nil
	}

	attempt := event.RetryCount + 1
	if IsPermanent(err) || attempt >= p.config.RetryAttempts {
		p.metrics.OutboxEventsFailed.WithLabelValues(kind).Inc()
		event.RetryCount = attempt
		if dlErr := p.repo.MoveToDeadLetter(ctx, event, err.Error()); dlErr != nil {
			return fmt.Errorf("failed to dead-letter event: %w", dlErr)
		}
		p.logger.Warn("Event moved to dead letter queue",
			"event_id", event.ID.String(),
			"event_type", event.EventType,
			"attempts", attempt,
			"error", err.Error())
		return nil
	}

	p.metrics.OutboxRetries.WithLabelValues(kind).Inc()
	retryAt := p.now().Add(p.backoff(attempt))
	if rErr := p.repo.MarkRetry(ctx, event.ID, attempt, retryAt, err.Error()); rErr != nil {
		return fmt.Errorf("failed to schedule retry: %w", rErr)
	}
	return err
}

// backoff doubles RetryDelay per attempt up to MaxRetryDelay.
func (p *OutboxProcessor) backoff(attempt int) time.Duration {
	delay := p.config.RetryDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.config.MaxRetryDelay {
			return p.config.MaxRetryDelay
		}
	}
	return delay
}
