package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jwalitptl/careflow-api/internal/journey"
	"github.com/jwalitptl/careflow-api/internal/model"
	"github.com/jwalitptl/careflow-api/internal/repository"
	apperrors "github.com/jwalitptl/careflow-api/pkg/errors"
)

// View names a role dashboard.
type View string

const (
	ViewDoctor    View = "doctor"
	ViewNurse     View = "nurse"
	ViewLab       View = "lab"
	ViewRadiology View = "radiology"
	ViewAll       View = "all"
)

// Doctor dashboard tabs
const (
	TabOngoing   = "ongoing"
	TabCompleted = "completed"
	TabFollowUp  = "follow_up"
	TabAll       = "all"
)

// ListQuery describes one dashboard listing.
type ListQuery struct {
	View    View
	StaffID string
	Tab     string
	Search  string
	Limit   int
}

// Filter translates the query into a store filter.
func (q ListQuery) Filter() (model.PatientFilter, error) {
	f := model.PatientFilter{
		SearchTerm: strings.TrimSpace(q.Search),
		Order:      model.OrderNewest,
		Limit:      q.Limit,
	}
	switch q.View {
	case ViewDoctor:
		f.AssignedDoctorID = strings.ToUpper(q.StaffID)
		switch q.Tab {
		case "", TabOngoing:
			f.ExcludeStatuses = journey.OngoingExcluded()
		case TabCompleted:
			f.Statuses = []model.PatientStatus{model.StatusCompleted}
		case TabFollowUp:
			f.Statuses = []model.PatientStatus{model.StatusFollowUp}
		case TabAll:
		default:
			return f, &journey.ValidationError{Field: "tab", Reason: "must be one of ongoing, completed, follow_up, all"}
		}
	case ViewNurse:
		f.AssignedNurse = strings.ToUpper(q.StaffID)
	case ViewLab:
		f.Statuses = []model.PatientStatus{model.StatusLabOrdered}
		f.Order = model.OrderTriage
	case ViewRadiology:
		f.Statuses = []model.PatientStatus{model.StatusRadiologyOrdered}
		f.Order = model.OrderTriage
	case ViewAll, "":
	default:
		return f, &journey.ValidationError{Field: "view", Reason: fmt.Sprintf("unknown view %q", q.View)}
	}
	return f, nil
}

func (s *Service) view(ctx context.Context, err error) error {
	_, mapped := mapError(err)
	if !apperrors.HasCode(mapped, apperrors.ErrNotFound) && !apperrors.HasCode(mapped, apperrors.ErrBadRequest) {
		s.logger.WithContext(ctx).Error(err, "Patient query failed")
	}
	return mapped
}

// List returns a dashboard in its display order: triage order for the lab
// and radiology queues, newest first elsewhere. The store orders before it
// limits; the sort here keeps ties stable across stores.
func (s *Service) List(ctx context.Context, q ListQuery) ([]*model.Patient, error) {
	filter, err := q.Filter()
	if err != nil {
		return nil, s.view(ctx, err)
	}
	patients, err := s.store.Patients().List(ctx, filter)
	if err != nil {
		return nil, s.view(ctx, fmt.Errorf("failed to list patients: %w", err))
	}
	switch q.View {
	case ViewLab, ViewRadiology:
		journey.SortTriageQueue(patients)
	default:
		journey.SortNewestFirst(patients)
	}
	return patients, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	p, err := s.store.Patients().Get(ctx, id)
	if err != nil {
		return nil, s.view(ctx, err)
	}
	return p, nil
}

// GetByCode resolves a patient code case-insensitively.
func (s *Service) GetByCode(ctx context.Context, code string) (*model.Patient, error) {
	code = canonicalCode(code)
	if code == "" {
		return nil, apperrors.NotFound("Patient ID", nil)
	}
	if cached, ok := s.codes.Get(code); ok {
		p, err := s.store.Patients().Get(ctx, cached.(uuid.UUID))
		if err == nil {
			return p, nil
		}
		s.codes.Delete(code)
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, s.view(ctx, err)
		}
	}
	p, err := s.store.Patients().GetByCode(ctx, code)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("Patient ID", err)
	}
	if err != nil {
		return nil, s.view(ctx, err)
	}
	s.codes.SetDefault(code, p.ID)
	return p, nil
}

// Tasks is the patient's own progress view.
func (s *Service) Tasks(ctx context.Context, id uuid.UUID) ([]model.Task, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return journey.DeriveTaskView(p, s.now().UTC()), nil
}

// ListActions returns the patient's action log, newest first.
func (s *Service) ListActions(ctx context.Context, patientID uuid.UUID) ([]*model.Action, error) {
	if _, err := s.Get(ctx, patientID); err != nil {
		return nil, err
	}
	actions, err := s.store.Actions().List(ctx, model.ActionFilter{PatientID: &patientID})
	if err != nil {
		return nil, s.view(ctx, fmt.Errorf("failed to list actions: %w", err))
	}
	journey.SortActionsNewestFirst(actions)
	return actions, nil
}

// ListDepartmentActions is a department's work queue, newest first. An empty
// department lists every action.
func (s *Service) ListDepartmentActions(ctx context.Context, department string, openOnly bool) ([]*model.Action, error) {
	filter := model.ActionFilter{OpenOnly: openOnly}
	if department != "" {
		dept, err := model.ParseDepartment(department)
		if err != nil {
			return nil, apperrors.BadRequest(err.Error(), err)
		}
		filter.Department = dept
	}
	actions, err := s.store.Actions().List(ctx, filter)
	if err != nil {
		return nil, s.view(ctx, fmt.Errorf("failed to list actions: %w", err))
	}
	journey.SortActionsNewestFirst(actions)
	return actions, nil
}

const intentAdvanceAction journey.Intent = "advance_action"

// AdvanceAction moves an action forward in its lifecycle.
func (s *Service) AdvanceAction(ctx context.Context, id uuid.UUID, status string) (*model.Action, error) {
	target, err := model.ParseActionStatus(status)
	if err != nil {
		return nil, s.fail(ctx, intentAdvanceAction, &journey.ValidationError{Field: "status", Reason: err.Error()})
	}
	a, err := s.store.Actions().Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, s.fail(ctx, intentAdvanceAction, apperrors.NotFound("action", err))
	}
	if err != nil {
		return nil, s.fail(ctx, intentAdvanceAction, err)
	}
	if !a.Status.CanAdvanceTo(target) {
		return nil, s.fail(ctx, intentAdvanceAction, apperrors.Unprocessable(
			fmt.Sprintf("action status cannot move from %s to %s", a.Status, target), nil))
	}

	change := &model.Change{
		ActionUpdates: []model.ActionStatusUpdate{{ActionID: a.ID, From: a.Status, To: target}},
	}
	s.events.Announce(ctx, change)
	if err := s.store.Commit(ctx, change); err != nil {
		return nil, s.fail(ctx, intentAdvanceAction, err)
	}
	s.succeed(intentAdvanceAction)

	updated, err := s.store.Actions().Get(ctx, id)
	if err != nil {
		return nil, s.view(ctx, err)
	}
	return updated, nil
}

// History renders the patient's care history report.
func (s *Service) History(ctx context.Context, id uuid.UUID) (string, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	actions, err := s.store.Actions().List(ctx, model.ActionFilter{PatientID: &id})
	if err != nil {
		return "", s.view(ctx, fmt.Errorf("failed to list actions: %w", err))
	}
	return journey.RenderHistory(p, actions), nil
}
