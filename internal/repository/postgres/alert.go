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

type alertRepository struct {
	BaseRepository
}

func (r *alertRepository) Get(ctx context.Context, id uuid.UUID) (*model.CriticalAlert, error) {
	var alert model.CriticalAlert
	err := r.db.GetContext(ctx, &alert, `SELECT * FROM critical_alerts WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("alert %s: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return &alert, nil
}

func (r *alertRepository) ListUnresolved(ctx context.Context) ([]*model.CriticalAlert, error) {
	alerts := make([]*model.CriticalAlert, 0)
	err := r.db.SelectContext(ctx, &alerts,
		`SELECT * FROM critical_alerts WHERE NOT resolved ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	return alerts, nil
}
