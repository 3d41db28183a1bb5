package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/careflow-api/internal/model"
	"github.com/jwalitptl/careflow-api/internal/repository"
)

type followUpRepository struct {
	BaseRepository
}

func (r *followUpRepository) Get(ctx context.Context, id uuid.UUID) (*model.FollowUpPatient, error) {
	var f model.FollowUpPatient
	err := r.db.GetContext(ctx, &f, `SELECT * FROM followup_patients WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("follow-up %s: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get follow-up: %w", err)
	}
	return &f, nil
}

func (r *followUpRepository) List(ctx context.Context, status model.FollowUpStatus) ([]*model.FollowUpPatient, error) {
	out := make([]*model.FollowUpPatient, 0)
	var err error
	if status == "" {
		err = r.db.SelectContext(ctx, &out, `SELECT * FROM followup_patients ORDER BY created_at ASC`)
	} else {
		err = r.db.SelectContext(ctx, &out,
			`SELECT * FROM followup_patients WHERE status = $1 ORDER BY created_at ASC`, status)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list follow-ups: %w", err)
	}
	return out, nil
}

func (r *followUpRepository) ListCheckIns(ctx context.Context, followUpID uuid.UUID) ([]*model.CheckInResponse, error) {
	out := make([]*model.CheckInResponse, 0)
	err := r.db.SelectContext(ctx, &out,
		`SELECT * FROM checkin_responses WHERE follow_up_id = $1 ORDER BY created_at DESC`, followUpID)
	if err != nil {
		return nil, fmt.Errorf("failed to list check-ins: %w", err)
	}
	return out, nil
}
