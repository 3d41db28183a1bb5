package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jwalitptl/careflow-api/internal/model"
	"github.com/jwalitptl/careflow-api/internal/repository"
)

type actionRepository struct {
	BaseRepository
}

func (r *actionRepository) Get(ctx context.Context, id uuid.UUID) (*model.Action, error) {
	var action model.Action
	err := r.db.GetContext(ctx, &action, `SELECT * FROM actions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("action %s: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get action: %w", err)
	}
	return &action, nil
}

func (r *actionRepository) List(ctx context.Context, filter model.ActionFilter) ([]*model.Action, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.PatientID != nil {
		args = append(args, *filter.PatientID)
		where = append(where, fmt.Sprintf("patient_id = $%d", len(args)))
	}
	if filter.Department != "" {
		args = append(args, filter.Department)
		where = append(where, fmt.Sprintf("department = $%d", len(args)))
	}
	if filter.OpenOnly {
		args = append(args, model.ActionStatusCompleted)
		where = append(where, fmt.Sprintf("status <> $%d", len(args)))
	}

	query := "SELECT * FROM actions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC"

	actions := make([]*model.Action, 0)
	if err := r.db.SelectContext(ctx, &actions, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list actions: %w", err)
	}
	return actions, nil
}
