package patient

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/careflow-api/internal/journey"
	"github.com/jwalitptl/careflow-api/internal/model"
	"github.com/jwalitptl/careflow-api/internal/repository"
	"github.com/jwalitptl/careflow-api/internal/service/event"
	apperrors "github.com/jwalitptl/careflow-api/pkg/errors"
	"github.com/jwalitptl/careflow-api/pkg/logger"
	"github.com/jwalitptl/careflow-api/pkg/metrics"
)

const (
	maxCodeAttempts   = 5
	maxCommitAttempts = 3
	followUpDays      = 7
)

// Roster answers whether a staff ID exists for a role.
type Roster interface {
	HasStaff(role model.Role, id string) bool
}

type Service struct {
	store   repository.Store
	events  *event.EventService
	roster  Roster
	codes   *cache.Cache
	logger  *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	newCode func(now time.Time) string
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithCodeGenerator replaces the random patient code generator.
func WithCodeGenerator(gen func(now time.Time) string) Option {
	return func(s *Service) { s.newCode = gen }
}

func NewService(store repository.Store, events *event.EventService, roster Roster, log *logger.Logger, m *metrics.Metrics, codeTTL time.Duration, opts ...Option) *Service {
	if codeTTL <= 0 {
		codeTTL = 10 * time.Minute
	}
	s := &Service{
		store:   store,
		events:  events,
		roster:  roster,
		codes:   cache.New(codeTTL, 2*codeTTL),
		logger:  log,
		metrics: m,
		now:     time.Now,
		newCode: GenerateCode,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GenerateCode builds a PT-<4 digits>-<3 digits> code from the clock and a
// random suffix.
func GenerateCode(now time.Time) string {
	return fmt.Sprintf("PT-%04d-%03d", now.UnixMilli()%10000, rand.Intn(1000))
}

// mapError turns journey and repository errors into AppErrors and reports
// the metrics outcome.
func mapError(err error) (string, error) {
	if _, ok := apperrors.As(err); ok {
		return "rejected", err
	}
	var ve *journey.ValidationError
	if errors.As(err, &ve) {
		return "invalid", apperrors.BadRequest(ve.Error(), nil)
	}
	var ite *journey.IllegalTransitionError
	if errors.As(err, &ite) {
		return "illegal", apperrors.Unprocessable(ite.Error(), nil)
	}
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return "not_found", apperrors.NotFound("patient", err)
	case errors.Is(err, repository.ErrVersionConflict), errors.Is(err, repository.ErrStaleAction):
		return "conflict", apperrors.Conflict("patient was modified by another request, reload and retry", err)
	case errors.Is(err, repository.ErrDuplicateCode):
		return "conflict", apperrors.Conflict("patient code already exists", err)
	}
	return "error", apperrors.Internal(err)
}

func (s *Service) fail(ctx context.Context, intent journey.Intent, err error) error {
	outcome, mapped := mapError(err)
	s.metrics.JourneyTransitions.WithLabelValues(intent.Label(), outcome).Inc()
	if outcome == "error" {
		s.logger.WithContext(ctx).Error(err, "Patient operation failed", "intent", intent.Label())
	}
	return mapped
}

func (s *Service) succeed(intent journey.Intent) {
	s.metrics.JourneyTransitions.WithLabelValues(intent.Label(), "ok").Inc()
}

type mutation func(ctx context.Context, p *model.Patient, now time.Time) (*model.Change, error)

// mutate runs fn against the current patient and commits the result under
// version CAS. Without an expected version a lost race is retried against
// fresh state; with one it surfaces as a conflict.
func (s *Service) mutate(ctx context.Context, id uuid.UUID, expected *int64, intent journey.Intent, fn mutation) (*model.Patient, error) {
	attempts := maxCommitAttempts
	if expected != nil {
		attempts = 1
	}
	for attempt := 1; ; attempt++ {
		p, err := s.store.Patients().Get(ctx, id)
		if err != nil {
			return nil, s.fail(ctx, intent, err)
		}
		if expected != nil && *expected != p.Version {
			return nil, s.fail(ctx, intent, repository.ErrVersionConflict)
		}

		now := s.now().UTC()
		change, err := fn(ctx, p, now)
		if err != nil {
			return nil, s.fail(ctx, intent, err)
		}
		change.PatientID = p.ID
		version := p.Version
		change.ExpectedVersion = &version
		s.events.Announce(ctx, change)

		err = s.store.Commit(ctx, change)
		if err == nil {
			s.succeed(intent)
			if change.Result != nil {
				return change.Result, nil
			}
			return p, nil
		}
		retryable := errors.Is(err, repository.ErrVersionConflict) || errors.Is(err, repository.ErrStaleAction)
		if !retryable || attempt >= attempts {
			return nil, s.fail(ctx, intent, err)
		}
		s.logger.WithContext(ctx).Debug("Retrying patient write after concurrent update",
			"patient_id", id.String(),
			"attempt", attempt)
	}
}

func (s *Service) notify(ctx context.Context, change *model.Change, name string, p *model.Patient, payload map[string]interface{}) error {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	payload["patient_code"] = p.PatientCode
	payload["name"] = p.FullName()
	if p.PhoneNumber != "" {
		payload["phone_number"] = p.PhoneNumber
	}
	if p.Email != "" {
		payload["email"] = p.Email
	}
	e, err := s.events.Notify(ctx, name, p.ID, payload)
	if err != nil {
		return err
	}
	change.AddEvents(e)
	return nil
}

func canonicalCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
