package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/careflow-api/internal/journey"
	"github.com/jwalitptl/careflow-api/internal/model"
	"github.com/jwalitptl/careflow-api/internal/repository"
	"github.com/jwalitptl/careflow-api/internal/service/event"
	apperrors "github.com/jwalitptl/careflow-api/pkg/errors"
)

const intentAdmit journey.Intent = "admit"

// Admit registers a new patient under doctorID.
func (s *Service) Admit(ctx context.Context, doctorID string, req *model.CreatePatientRequest) (*model.Patient, error) {
	priority, err := model.ParsePriority(req.Priority)
	if err != nil {
		return nil, s.fail(ctx, intentAdmit, &journey.ValidationError{Field: "priority", Reason: "must be one of normal, urgent, stat"})
	}
	if strings.TrimSpace(req.FirstName) == "" || strings.TrimSpace(req.LastName) == "" {
		return nil, s.fail(ctx, intentAdmit, &journey.ValidationError{Field: "name", Reason: "first and last name are required"})
	}

	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		now := s.now().UTC()
		p := &model.Patient{
			Base:              model.Base{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
			PatientCode:       canonicalCode(s.newCode(now)),
			FirstName:         strings.TrimSpace(req.FirstName),
			LastName:          strings.TrimSpace(req.LastName),
			Age:               req.Age,
			Gender:            req.Gender,
			Condition:         req.Condition,
			PastMedications:   req.PastMedications,
			PastAllergies:     req.PastAllergies,
			Status:            model.StatusWaiting,
			Priority:          priority,
			ConsultancyStatus: model.SubStatusPending,
			AssignedDoctorID:  strings.ToUpper(strings.TrimSpace(doctorID)),
			PhoneNumber:       strings.TrimSpace(req.PhoneNumber),
			Email:             strings.TrimSpace(req.Email),
			EmergencyContact:  req.EmergencyContact,
		}
		change := &model.Change{
			CreatePatient: p,
			Actions:       []*model.Action{journey.AdmitAction(p, p.AssignedDoctorID, now)},
		}
		if p.PhoneNumber != "" {
			if err := s.notify(ctx, change, event.PatientIntake, p, map[string]interface{}{
				"condition": p.Condition,
				"priority":  string(p.Priority),
			}); err != nil {
				return nil, s.fail(ctx, intentAdmit, err)
			}
		}
		s.events.Announce(ctx, change)

		err := s.store.Commit(ctx, change)
		if errors.Is(err, repository.ErrDuplicateCode) {
			s.logger.WithContext(ctx).Warn("Patient code collision, regenerating",
				"patient_code", p.PatientCode,
				"attempt", attempt)
			continue
		}
		if err != nil {
			return nil, s.fail(ctx, intentAdmit, err)
		}
		s.succeed(intentAdmit)
		created := change.Result
		if created == nil {
			created = p
		}
		s.codes.SetDefault(created.PatientCode, created.ID)
		s.logger.WithContext(ctx).Info("Patient admitted",
			"patient_id", created.ID.String(),
			"patient_code", created.PatientCode)
		return created, nil
	}
	return nil, s.fail(ctx, intentAdmit, repository.ErrDuplicateCode)
}

// Order sends the patient to lab, radiology, pharmacy or a specialist.
func (s *Service) Order(ctx context.Context, id uuid.UUID, by string, req *model.OrderRequest) (*model.Patient, error) {
	kind, err := journey.ParseOrderKind(req.Kind)
	if err != nil {
		return nil, s.fail(ctx, journey.IntentOrder, err)
	}
	return s.mutate(ctx, id, req.ExpectedVersion, journey.IntentOrder, func(ctx context.Context, p *model.Patient, now time.Time) (*model.Change, error) {
		upd, err := journey.ApplyOrder(p, kind, req.Value)
		if err != nil {
			return nil, err
		}
		change := &model.Change{
			PatientUpdate: upd,
			Actions:       []*model.Action{journey.OrderAction(p, kind, req.Value, by, now)},
		}
		if p.HasContact() {
			if err := s.notify(ctx, change, event.OrderPlaced, p, map[string]interface{}{
				"kind":  string(kind),
				"value": req.Value,
			}); err != nil {
				return nil, err
			}
		}
		return change, nil
	})
}

// RevertOrder withdraws the current order of one kind.
func (s *Service) RevertOrder(ctx context.Context, id uuid.UUID, by, kindName string, expected *int64) (*model.Patient, error) {
	kind, err := journey.ParseOrderKind(kindName)
	if err != nil {
		return nil, s.fail(ctx, journey.IntentRevertOrder, err)
	}
	return s.mutate(ctx, id, expected, journey.IntentRevertOrder, func(ctx context.Context, p *model.Patient, now time.Time) (*model.Change, error) {
		upd, err := journey.RevertOrder(p, kind)
		if err != nil {
			return nil, err
		}
		change := &model.Change{
			PatientUpdate: upd,
			Actions:       []*model.Action{journey.RevertAction(p, kind, by, now)},
		}
		// The withdrawn order leaves the department queue.
		open, err := s.store.Actions().List(ctx, model.ActionFilter{PatientID: &p.ID, Department: kind.Department(), OpenOnly: true})
		if err != nil {
			return nil, fmt.Errorf("failed to list open actions: %w", err)
		}
		if closed, ok := journey.NextForOrder(open, kind.Department(), model.SubStatusCompleted); ok {
			change.ActionUpdates = append(change.ActionUpdates, *closed)
		}
		return change, nil
	})
}

// AdvanceSubStatus records department progress and moves the matching order
// action along with it.
func (s *Service) AdvanceSubStatus(ctx context.Context, id uuid.UUID, by string, req *model.SubStatusRequest) (*model.Patient, error) {
	kind, err := journey.ParseSubStatusKind(req.Kind)
	if err != nil {
		return nil, s.fail(ctx, journey.IntentAdvance, err)
	}
	value, err := model.ParseSubStatus(req.Value)
	if err != nil {
		return nil, s.fail(ctx, journey.IntentAdvance, &journey.ValidationError{Field: "value", Reason: "must be one of pending, processing, completed"})
	}
	return s.mutate(ctx, id, req.ExpectedVersion, journey.IntentAdvance, func(ctx context.Context, p *model.Patient, now time.Time) (*model.Change, error) {
		upd, err := journey.AdvanceSubStatus(p, kind, value)
		if err != nil {
			return nil, err
		}
		change := &model.Change{PatientUpdate: upd}

		advanced := false
		if kind != journey.SubConsultancy {
			open, err := s.store.Actions().List(ctx, model.ActionFilter{PatientID: &p.ID, Department: kind.Department(), OpenOnly: true})
			if err != nil {
				return nil, fmt.Errorf("failed to list open actions: %w", err)
			}
			if next, ok := journey.NextForOrder(open, kind.Department(), value); ok {
				change.ActionUpdates = append(change.ActionUpdates, *next)
				advanced = true
			}
		}
		if !advanced {
			change.Actions = append(change.Actions, journey.SubStatusAction(p, kind, value, by, now))
		}

		if kind == journey.SubLab && value == model.SubStatusCompleted && p.HasContact() {
			if err := s.notify(ctx, change, event.LabResultUpdated, p, map[string]interface{}{
				"lab_test": p.LabTest,
			}); err != nil {
				return nil, err
			}
		}
		return change, nil
	})
}

// Finalize discharges the patient or moves them to follow-up monitoring. The
// notification and e-mail carry the rendered care history.
func (s *Service) Finalize(ctx context.Context, id uuid.UUID, by string, req *model.FinalizeRequest) (*model.Patient, error) {
	mode := journey.FinalizeMode(strings.ToLower(strings.TrimSpace(req.Mode)))
	intent := journey.IntentDischarge
	if mode == journey.FinalizeFollowUp {
		intent = journey.IntentFollowUp
	}
	return s.mutate(ctx, id, req.ExpectedVersion, intent, func(ctx context.Context, p *model.Patient, now time.Time) (*model.Change, error) {
		upd, err := journey.Finalize(p, mode, req.FollowUpDate)
		if err != nil {
			return nil, err
		}
		history, err := s.store.Actions().List(ctx, model.ActionFilter{PatientID: &p.ID})
		if err != nil {
			return nil, fmt.Errorf("failed to load care history: %w", err)
		}
		report := journey.RenderHistory(p, history)

		followUpDate := ""
		if upd.FollowUpDate != nil {
			followUpDate = *upd.FollowUpDate
		}
		change := &model.Change{
			PatientUpdate: upd,
			Actions:       []*model.Action{journey.FinalizeAction(p, mode, followUpDate, by, now)},
		}

		name := event.PatientDischarged
		if mode == journey.FinalizeFollowUp {
			name = event.PatientFollowUp
			change.FollowUps = append(change.FollowUps, &model.FollowUpPatient{
				Base:         model.Base{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
				PatientID:    &p.ID,
				Name:         p.FullName(),
				PhoneNumber:  p.PhoneNumber,
				Status:       model.FollowUpActive,
				LastStatus:   model.CheckInNormal,
				DurationDays: followUpDays,
				FollowUpDate: followUpDate,
			})
		} else if p.Status == model.StatusFollowUp {
			if err := s.closeFollowUps(ctx, change, p.ID); err != nil {
				return nil, err
			}
		}

		payload := map[string]interface{}{
			"mode":   string(mode),
			"report": report,
		}
		if followUpDate != "" {
			payload["follow_up_date"] = followUpDate
		}
		if err := s.notify(ctx, change, name, p, payload); err != nil {
			return nil, err
		}
		if p.Email != "" {
			mail, err := s.events.Email(ctx, event.DischargeEmailName, model.EmailMessage{
				To:      p.Email,
				Subject: fmt.Sprintf("Discharge summary for %s (%s)", p.FullName(), p.PatientCode),
				Body:    report,
			})
			if err != nil {
				return nil, err
			}
			change.AddEvents(mail)
		}
		return change, nil
	})
}

func (s *Service) closeFollowUps(ctx context.Context, change *model.Change, patientID uuid.UUID) error {
	active, err := s.store.FollowUps().List(ctx, model.FollowUpActive)
	if err != nil {
		return fmt.Errorf("failed to list follow-ups: %w", err)
	}
	for _, f := range active {
		if f.PatientID != nil && *f.PatientID == patientID {
			f.Status = model.FollowUpCompleted
			change.FollowUpUpdates = append(change.FollowUpUpdates, f)
		}
	}
	return nil
}

// SetStatus handles the doctor's under_treatment and critical buttons.
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, by string, req *model.StatusRequest) (*model.Patient, error) {
	intent := journey.IntentTreat
	target, err := model.ParsePatientStatus(req.Status)
	if err != nil {
		return nil, s.fail(ctx, intent, &journey.ValidationError{Field: "status", Reason: err.Error()})
	}
	if target == model.StatusCritical {
		intent = journey.IntentMarkCritical
	}
	return s.mutate(ctx, id, req.ExpectedVersion, intent, func(ctx context.Context, p *model.Patient, now time.Time) (*model.Change, error) {
		upd, err := journey.SetStatus(p, target)
		if err != nil {
			return nil, err
		}
		return &model.Change{
			PatientUpdate: upd,
			Actions:       []*model.Action{journey.StatusAction(p, target, by, now)},
		}, nil
	})
}

func (s *Service) SetPriority(ctx context.Context, id uuid.UUID, by string, req *model.PriorityRequest) (*model.Patient, error) {
	priority := model.Priority(strings.ToLower(strings.TrimSpace(req.Priority)))
	return s.mutate(ctx, id, req.ExpectedVersion, journey.IntentSetPriority, func(ctx context.Context, p *model.Patient, now time.Time) (*model.Change, error) {
		upd, err := journey.SetPriority(p, priority)
		if err != nil {
			return nil, err
		}
		return &model.Change{
			PatientUpdate: upd,
			Actions:       []*model.Action{journey.PriorityAction(p, priority, by, now)},
		}, nil
	})
}

// AssignNurse sets the responsible nurse; an empty ID clears it.
func (s *Service) AssignNurse(ctx context.Context, id uuid.UUID, by string, req *model.AssignNurseRequest) (*model.Patient, error) {
	nurseID := strings.ToUpper(strings.TrimSpace(req.NurseID))
	if nurseID != "" && !s.roster.HasStaff(model.RoleNurse, nurseID) {
		return nil, s.fail(ctx, journey.IntentAssignNurse, apperrors.BadRequest(fmt.Sprintf("unknown nurse %s", nurseID), nil))
	}
	return s.mutate(ctx, id, req.ExpectedVersion, journey.IntentAssignNurse, func(ctx context.Context, p *model.Patient, now time.Time) (*model.Change, error) {
		upd, err := journey.AssignNurse(p, nurseID)
		if err != nil {
			return nil, err
		}
		return &model.Change{
			PatientUpdate: upd,
			Actions:       []*model.Action{journey.NurseAction(p, nurseID, by, now)},
		}, nil
	})
}
