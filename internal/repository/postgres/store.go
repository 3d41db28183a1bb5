package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/careflow-api/internal/model"
	"github.com/jwalitptl/careflow-api/internal/repository"
)

type Store struct {
	BaseRepository
	patients  *patientRepository
	actions   *actionRepository
	alerts    *alertRepository
	followUps *followUpRepository
	outbox    *outboxRepository
}

var _ repository.Store = (*Store)(nil)

func NewStore(db *sqlx.DB) *Store {
	base := NewBaseRepository(db)
	return &Store{
		BaseRepository: base,
		patients:       &patientRepository{base},
		actions:        &actionRepository{base},
		alerts:         &alertRepository{base},
		followUps:      &followUpRepository{base},
		outbox:         &outboxRepository{base},
	}
}

func (s *Store) Patients() repository.PatientRepository   { return s.patients }
func (s *Store) Actions() repository.ActionRepository     { return s.actions }
func (s *Store) Alerts() repository.AlertRepository       { return s.alerts }
func (s *Store) FollowUps() repository.FollowUpRepository { return s.followUps }
func (s *Store) Outbox() repository.OutboxRepository      { return s.outbox }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *Store) Close() error                   { return s.db.Close() }

// Commit writes the change in one transaction.
func (s *Store) Commit(ctx context.Context, c *model.Change) error {
	now := time.Now().UTC()
	return s.WithTx(ctx, func(tx *sqlx.Tx) error {
		if c.CreatePatient != nil {
			p, err := insertPatient(ctx, tx, c.CreatePatient, now)
			if err != nil {
				return err
			}
			c.Result = p
		}
		if c.UpdatesPatient() {
			p, err := updatePatient(ctx, tx, c.PatientID, c.PatientUpdate, c.ExpectedVersion, now)
			if err != nil {
				return err
			}
			c.Result = p
		}
		for _, a := range c.Actions {
			if err := insertAction(ctx, tx, a); err != nil {
				return err
			}
		}
		for _, u := range c.ActionUpdates {
			if err := advanceAction(ctx, tx, u, now); err != nil {
				return err
			}
		}
		for _, a := range c.Alerts {
			if err := insertAlert(ctx, tx, a); err != nil {
				return err
			}
		}
		for _, a := range c.ResolvedAlerts {
			if err := resolveAlert(ctx, tx, a, now); err != nil {
				return err
			}
		}
		for _, f := range c.FollowUps {
			if err := insertFollowUp(ctx, tx, f); err != nil {
				return err
			}
		}
		for _, f := range c.FollowUpUpdates {
			if err := updateFollowUp(ctx, tx, f, now); err != nil {
				return err
			}
		}
		for _, ci := range c.CheckIns {
			if err := insertCheckIn(ctx, tx, ci); err != nil {
				return err
			}
		}
		for _, e := range c.Events {
			if err := insertEvent(ctx, tx, e, now); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertPatient(ctx context.Context, tx *sqlx.Tx, in *model.Patient, now time.Time) (*model.Patient, error) {
	p := *in
	p.PatientCode = strings.ToUpper(p.PatientCode)
	p.CreatedAt, p.UpdatedAt = now, now
	p.Version = 1
	query := `
		INSERT INTO patients (
			id, patient_code, first_name, last_name, age, gender, condition,
			past_medications, past_allergies, status, priority, consultancy_status,
			lab_status, radiology_status, pharmacy_status, lab_test, radiology_test,
			medication, referred_to, assigned_nurse, assigned_doctor_id, follow_up_date,
			phone_number, email, emergency_contact, version, created_at, updated_at
		) VALUES (
			:id, :patient_code, :first_name, :last_name, :age, :gender, :condition,
			:past_medications, :past_allergies, :status, :priority, :consultancy_status,
			:lab_status, :radiology_status, :pharmacy_status, :lab_test, :radiology_test,
			:medication, :referred_to, :assigned_nurse, :assigned_doctor_id, :follow_up_date,
			:phone_number, :email, :emergency_contact, :version, :created_at, :updated_at
		)
	`
	if _, err := tx.NamedExecContext(ctx, query, &p); err != nil {
		return nil, fmt.Errorf("failed to create patient: %w", translate(err))
	}
	return &p, nil
}

// patientColumns lists the columns a PatientUpdate sets, in a fixed order.
func patientColumns(u model.PatientUpdate) ([]string, []interface{}) {
	var cols []string
	var args []interface{}
	add := func(col string, v interface{}) {
		cols = append(cols, col)
		args = append(args, v)
	}
	if u.Status != nil {
		add("status", *u.Status)
	}
	if u.Priority != nil {
		add("priority", *u.Priority)
	}
	if u.ConsultancyStatus != nil {
		add("consultancy_status", *u.ConsultancyStatus)
	}
	if u.LabStatus != nil {
		add("lab_status", *u.LabStatus)
	}
	if u.RadiologyStatus != nil {
		add("radiology_status", *u.RadiologyStatus)
	}
	if u.PharmacyStatus != nil {
		add("pharmacy_status", *u.PharmacyStatus)
	}
	if u.LabTest != nil {
		add("lab_test", *u.LabTest)
	}
	if u.RadiologyTest != nil {
		add("radiology_test", *u.RadiologyTest)
	}
	if u.Medication != nil {
		add("medication", *u.Medication)
	}
	if u.ReferredTo != nil {
		add("referred_to", *u.ReferredTo)
	}
	if u.AssignedNurse != nil {
		add("assigned_nurse", *u.AssignedNurse)
	}
	if u.FollowUpDate != nil {
		add("follow_up_date", *u.FollowUpDate)
	}
	return cols, args
}

func updatePatient(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, u model.PatientUpdate, expected *int64, now time.Time) (*model.Patient, error) {
	cols, args := patientColumns(u)
	sets := make([]string, 0, len(cols)+2)
	for i, col := range cols {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, i+1))
	}
	args = append(args, now, id)
	sets = append(sets, "version = version + 1", fmt.Sprintf("updated_at = $%d", len(args)-1))
	query := fmt.Sprintf(`UPDATE patients SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args))
	if expected != nil {
		args = append(args, *expected)
		query += fmt.Sprintf(" AND version = $%d", len(args))
	}
	query += " RETURNING *"

	var p model.Patient
	err := tx.GetContext(ctx, &p, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if err := tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM patients WHERE id = $1)`, id); err != nil {
			return nil, err
		}
		if !exists {
			return nil, fmt.Errorf("patient %s: %w", id, repository.ErrNotFound)
		}
		return nil, repository.ErrVersionConflict
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update patient: %w", err)
	}
	return &p, nil
}

func insertAction(ctx context.Context, tx *sqlx.Tx, a *model.Action) error {
	query := `
		INSERT INTO actions (
			id, patient_id, patient_name, type, description, priority,
			status, department, created_by, created_at, updated_at
		) VALUES (
			:id, :patient_id, :patient_name, :type, :description, :priority,
			:status, :department, :created_by, :created_at, :updated_at
		)
	`
	if _, err := tx.NamedExecContext(ctx, query, a); err != nil {
		return fmt.Errorf("failed to create action: %w", err)
	}
	return nil
}

func advanceAction(ctx context.Context, tx *sqlx.Tx, u model.ActionStatusUpdate, now time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE actions SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		u.To, now, u.ActionID, u.From)
	if err != nil {
		return fmt.Errorf("failed to update action: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrStaleAction
	}
	return nil
}

func insertAlert(ctx context.Context, tx *sqlx.Tx, a *model.CriticalAlert) error {
	query := `
		INSERT INTO critical_alerts (
			id, patient_id, patient_name, alert_type, reason, resolved,
			resolved_at, resolved_by, created_at, updated_at
		) VALUES (
			:id, :patient_id, :patient_name, :alert_type, :reason, :resolved,
			:resolved_at, :resolved_by, :created_at, :updated_at
		)
	`
	if _, err := tx.NamedExecContext(ctx, query, a); err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}

func resolveAlert(ctx context.Context, tx *sqlx.Tx, a *model.CriticalAlert, now time.Time) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE critical_alerts
		SET resolved = TRUE, resolved_at = $1, resolved_by = $2, updated_at = $1
		WHERE id = $3 AND NOT resolved`, now, a.ResolvedBy, a.ID)
	if err != nil {
		return fmt.Errorf("failed to resolve alert: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrVersionConflict
	}
	return nil
}

func insertFollowUp(ctx context.Context, tx *sqlx.Tx, f *model.FollowUpPatient) error {
	query := `
		INSERT INTO followup_patients (
			id, patient_id, name, phone_number, status, last_status, day,
			duration_days, follow_up_date, created_at, updated_at
		) VALUES (
			:id, :patient_id, :name, :phone_number, :status, :last_status, :day,
			:duration_days, :follow_up_date, :created_at, :updated_at
		)
	`
	if _, err := tx.NamedExecContext(ctx, query, f); err != nil {
		return fmt.Errorf("failed to create follow-up: %w", err)
	}
	return nil
}

// updateFollowUp writes f only if the row still carries the updated_at f was
// read with.
func updateFollowUp(ctx context.Context, tx *sqlx.Tx, f *model.FollowUpPatient, now time.Time) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE followup_patients
		SET status = $1, last_status = $2, day = $3, updated_at = $4
		WHERE id = $5 AND updated_at = $6`, f.Status, f.LastStatus, f.Day, now, f.ID, f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update follow-up: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	var exists bool
	if err := tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM followup_patients WHERE id = $1)`, f.ID); err != nil {
		return fmt.Errorf("failed to check follow-up: %w", err)
	}
	if !exists {
		return fmt.Errorf("follow-up %s: %w", f.ID, repository.ErrNotFound)
	}
	return repository.ErrVersionConflict
}

func insertCheckIn(ctx context.Context, tx *sqlx.Tx, c *model.CheckInResponse) error {
	query := `
		INSERT INTO checkin_responses (
			id, follow_up_id, day, condition_category, summary, answers, created_at, updated_at
		) VALUES (
			:id, :follow_up_id, :day, :condition_category, :summary, :answers, :created_at, :updated_at
		)
	`
	if _, err := tx.NamedExecContext(ctx, query, c); err != nil {
		return fmt.Errorf("failed to create check-in: %w", err)
	}
	return nil
}

func insertEvent(ctx context.Context, tx *sqlx.Tx, e *model.OutboxEvent, now time.Time) error {
	if e.Payload == nil {
		return fmt.Errorf("event payload cannot be nil")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	e.Status = model.OutboxStatusPending
	query := `
		INSERT INTO outbox_events (
			id, event_type, payload, headers, status, retry_count, created_at, updated_at
		) VALUES (
			:id, :event_type, :payload, :headers, :status, :retry_count, :created_at, :updated_at
		)
	`
	if _, err := tx.NamedExecContext(ctx, query, e); err != nil {
		return fmt.Errorf("failed to create outbox event: %w", err)
	}
	return nil
}
