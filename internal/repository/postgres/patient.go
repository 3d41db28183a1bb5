package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/jwalitptl/careflow-api/internal/model"
	"github.com/jwalitptl/careflow-api/internal/repository"
)

type patientRepository struct {
	BaseRepository
}

func (r *patientRepository) Get(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	var patient model.Patient
	err := r.db.GetContext(ctx, &patient, `SELECT * FROM patients WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("patient %s: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}
	return &patient, nil
}

func (r *patientRepository) GetByCode(ctx context.Context, code string) (*model.Patient, error) {
	var patient model.Patient
	err := r.db.GetContext(ctx, &patient, `SELECT * FROM patients WHERE patient_code = $1`,
		strings.ToUpper(strings.TrimSpace(code)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("patient code %s: %w", code, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}
	return &patient, nil
}

func statusStrings(in []model.PatientStatus) pq.StringArray {
	out := make(pq.StringArray, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

// List returns matches oldest first; the service applies view ordering.
func (r *patientRepository) List(ctx context.Context, filter model.PatientFilter) ([]*model.Patient, error) {
	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.AssignedDoctorID != "" {
		where = append(where, "UPPER(assigned_doctor_id) = UPPER("+arg(filter.AssignedDoctorID)+")")
	}
	if filter.AssignedNurse != "" {
		where = append(where, "UPPER(assigned_nurse) = UPPER("+arg(filter.AssignedNurse)+")")
	}
	if len(filter.Statuses) > 0 {
		where = append(where, "status = ANY("+arg(statusStrings(filter.Statuses))+")")
	}
	if len(filter.ExcludeStatuses) > 0 {
		where = append(where, "NOT (status = ANY("+arg(statusStrings(filter.ExcludeStatuses))+"))")
	}
	if filter.SearchTerm != "" {
		p := arg("%" + filter.SearchTerm + "%")
		where = append(where, "(first_name || ' ' || last_name ILIKE "+p+" OR patient_code ILIKE "+p+")")
	}

	query := "SELECT * FROM patients"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY " + orderClause(filter.Order)
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}

	patients := make([]*model.Patient, 0)
	if err := r.db.SelectContext(ctx, &patients, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list patients: %w", err)
	}
	return patients, nil
}

func orderClause(o model.PatientOrder) string {
	switch o {
	case model.OrderTriage:
		return "CASE priority WHEN 'stat' THEN 0 WHEN 'urgent' THEN 1 ELSE 2 END, created_at DESC"
	case model.OrderNewest:
		return "created_at DESC"
	default:
		return "created_at ASC"
	}
}
