package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/careflow-api/internal/model"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrVersionConflict = errors.New("record was modified concurrently")
	ErrDuplicateCode   = errors.New("patient code already exists")
	ErrStaleAction     = errors.New("action status changed concurrently")
)

// All repository interfaces in one file
type (
	// PatientRepository serves the dashboard read paths. Writes go through
	// UnitOfWork so that audit actions and outbox events commit with them.
	PatientRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.Patient, error)
		GetByCode(ctx context.Context, code string) (*model.Patient, error)
		List(ctx context.Context, filter model.PatientFilter) ([]*model.Patient, error)
	}

	ActionRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.Action, error)
		List(ctx context.Context, filter model.ActionFilter) ([]*model.Action, error)
	}

	AlertRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.CriticalAlert, error)
		ListUnresolved(ctx context.Context) ([]*model.CriticalAlert, error)
	}

	FollowUpRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.FollowUpPatient, error)
		// List returns every record when status is empty.
		List(ctx context.Context, status model.FollowUpStatus) ([]*model.FollowUpPatient, error)
		ListCheckIns(ctx context.Context, followUpID uuid.UUID) ([]*model.CheckInResponse, error)
	}

	OutboxRepository interface {
		// ClaimPending leases up to limit claimable events to the caller.
		ClaimPending(ctx context.Context, limit int, lease time.Duration) ([]*model.OutboxEvent, error)
		MarkProcessed(ctx context.Context, id uuid.UUID) error
		MarkRetry(ctx context.Context, id uuid.UUID, retryCount int, retryAt time.Time, errMsg string) error
		MoveToDeadLetter(ctx context.Context, event *model.OutboxEvent, errMsg string) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
		CountPending(ctx context.Context) (int, error)
	}

	// UnitOfWork commits a Change atomically. A patient update with an
	// ExpectedVersion that does not match fails with ErrVersionConflict and
	// writes nothing.
	UnitOfWork interface {
		Commit(ctx context.Context, change *model.Change) error
	}

	Store interface {
		UnitOfWork
		Patients() PatientRepository
		Actions() ActionRepository
		Alerts() AlertRepository
		FollowUps() FollowUpRepository
		Outbox() OutboxRepository
		Ping(ctx context.Context) error
		Close() error
	}
)
