package followup

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
	"github.com/jwalitptl/careflow-api/pkg/logger"
)

// Service owns critical alerts and post-discharge monitoring.
type Service struct {
	store  repository.Store
	events *event.EventService
	logger *logger.Logger
	now    func() time.Time
}

func NewService(store repository.Store, events *event.EventService, log *logger.Logger, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, events: events, logger: log, now: now}
}

func (s *Service) internal(ctx context.Context, err error, msg string) error {
	s.logger.WithContext(ctx).Error(err, msg)
	return apperrors.Internal(err)
}

// ListAlerts returns unresolved alerts, critical first.
func (s *Service) ListAlerts(ctx context.Context) ([]*model.CriticalAlert, error) {
	alerts, err := s.store.Alerts().ListUnresolved(ctx)
	if err != nil {
		return nil, s.internal(ctx, err, "Failed to list alerts")
	}
	journey.SortAlerts(alerts)
	return alerts, nil
}

func (s *Service) newAlert(patientID *uuid.UUID, name string, typ model.AlertType, reason string, now time.Time) *model.CriticalAlert {
	return &model.CriticalAlert{
		Base:        model.Base{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		PatientID:   patientID,
		PatientName: name,
		AlertType:   typ,
		Reason:      reason,
	}
}

func (s *Service) alertEvents(ctx context.Context, change *model.Change, a *model.CriticalAlert) error {
	if a.AlertType != model.AlertTypeCritical {
		return nil
	}
	var pid uuid.UUID
	if a.PatientID != nil {
		pid = *a.PatientID
	}
	e, err := s.events.Notify(ctx, event.CriticalAlert, pid, map[string]interface{}{
		"alert_id":     a.ID.String(),
		"patient_name": a.PatientName,
		"reason":       a.Reason,
	})
	if err != nil {
		return err
	}
	change.AddEvents(e)
	return nil
}

// RaiseAlert records an alert from staff or the follow-up agent.
func (s *Service) RaiseAlert(ctx context.Context, req *model.RaiseAlertRequest) (*model.CriticalAlert, error) {
	typ := model.AlertType(strings.ToLower(strings.TrimSpace(req.AlertType)))
	if typ != model.AlertTypeCritical && typ != model.AlertTypeModerate {
		return nil, apperrors.BadRequest("alert_type must be critical or moderate", nil)
	}
	var patientID *uuid.UUID
	name := strings.TrimSpace(req.PatientName)
	if req.PatientID != "" {
		id, err := uuid.Parse(req.PatientID)
		if err != nil {
			return nil, apperrors.BadRequest("invalid patient_id", err)
		}
		p, err := s.store.Patients().Get(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("patient", err)
		}
		if err != nil {
			return nil, s.internal(ctx, err, "Failed to load patient for alert")
		}
		patientID = &p.ID
		if name == "" {
			name = p.FullName()
		}
	}
	if name == "" {
		return nil, apperrors.BadRequest("patient_name is required", nil)
	}

	alert := s.newAlert(patientID, name, typ, strings.TrimSpace(req.Reason), s.now().UTC())
	change := &model.Change{Alerts: []*model.CriticalAlert{alert}}
	if err := s.alertEvents(ctx, change, alert); err != nil {
		return nil, s.internal(ctx, err, "Failed to build alert notification")
	}
	s.events.Announce(ctx, change)
	if err := s.store.Commit(ctx, change); err != nil {
		return nil, s.internal(ctx, err, "Failed to raise alert")
	}
	s.logger.WithContext(ctx).Info("Alert raised",
		"alert_id", alert.ID.String(),
		"alert_type", string(alert.AlertType))
	return alert, nil
}

// ResolveAlert marks an alert handled by staff member by.
func (s *Service) ResolveAlert(ctx context.Context, id uuid.UUID, by string) (*model.CriticalAlert, error) {
	change := &model.Change{
		ResolvedAlerts: []*model.CriticalAlert{{Base: model.Base{ID: id}, ResolvedBy: by}},
	}
	s.events.Announce(ctx, change)
	err := s.store.Commit(ctx, change)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, apperrors.NotFound("alert", err)
	case errors.Is(err, repository.ErrVersionConflict):
		return nil, apperrors.Conflict("alert is already resolved", err)
	case err != nil:
		return nil, s.internal(ctx, err, "Failed to resolve alert")
	}
	alert, err := s.store.Alerts().Get(ctx, id)
	if err != nil {
		return nil, s.internal(ctx, err, "Failed to reload alert")
	}
	return alert, nil
}

// ListFollowUps returns monitored patients, most severe last check-in first.
// status is active, completed, or all/empty.
func (s *Service) ListFollowUps(ctx context.Context, status string) ([]*model.FollowUpPatient, error) {
	var st model.FollowUpStatus
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "", "all":
	case string(model.FollowUpActive):
		st = model.FollowUpActive
	case string(model.FollowUpCompleted):
		st = model.FollowUpCompleted
	default:
		return nil, apperrors.BadRequest("status must be one of active, completed, all", nil)
	}
	list, err := s.store.FollowUps().List(ctx, st)
	if err != nil {
		return nil, s.internal(ctx, err, "Failed to list follow-ups")
	}
	journey.SortByCheckInSeverity(list)
	return list, nil
}

func (s *Service) getFollowUp(ctx context.Context, id uuid.UUID) (*model.FollowUpPatient, error) {
	f, err := s.store.FollowUps().Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("follow-up", err)
	}
	if err != nil {
		return nil, s.internal(ctx, err, "Failed to load follow-up")
	}
	return f, nil
}

// CheckIns returns a monitored patient's check-ins, newest first.
func (s *Service) CheckIns(ctx context.Context, followUpID uuid.UUID) ([]*model.CheckInResponse, error) {
	if _, err := s.getFollowUp(ctx, followUpID); err != nil {
		return nil, err
	}
	list, err := s.store.FollowUps().ListCheckIns(ctx, followUpID)
	if err != nil {
		return nil, s.internal(ctx, err, "Failed to list check-ins")
	}
	return list, nil
}

// maxCheckInAttempts bounds retries when another check-in for the same
// follow-up commits first.
const maxCheckInAttempts = 3

// RecordCheckIn stores one check-in from the follow-up agent. A critical
// check-in raises a critical alert in the same commit; monitoring completes
// once the configured number of days has been reported.
func (s *Service) RecordCheckIn(ctx context.Context, followUpID uuid.UUID, req *model.CheckInRequest) (*model.CheckInResponse, error) {
	category := model.CheckInCategory(strings.ToLower(strings.TrimSpace(req.ConditionCategory)))
	switch category {
	case model.CheckInNormal, model.CheckInNote, model.CheckInCritical:
	default:
		return nil, apperrors.BadRequest("condition_category must be one of normal, note, critical", nil)
	}
	if req.Day < 0 {
		return nil, apperrors.BadRequest("day must not be negative", nil)
	}

	for attempt := 1; ; attempt++ {
		f, err := s.getFollowUp(ctx, followUpID)
		if err != nil {
			return nil, err
		}
		if f.Status == model.FollowUpCompleted {
			return nil, apperrors.Unprocessable("follow-up monitoring has ended", nil)
		}

		checkIn, change, err := s.checkInChange(ctx, f, req, category)
		if err != nil {
			return nil, err
		}
		s.events.Announce(ctx, change)
		err = s.store.Commit(ctx, change)
		switch {
		case err == nil:
			return checkIn, nil
		case errors.Is(err, repository.ErrNotFound):
			return nil, apperrors.NotFound("follow-up", err)
		case errors.Is(err, repository.ErrVersionConflict) && attempt < maxCheckInAttempts:
			s.logger.WithContext(ctx).Debug("Retrying check-in after concurrent update",
				"follow_up_id", followUpID.String(),
				"attempt", attempt)
		case errors.Is(err, repository.ErrVersionConflict):
			return nil, apperrors.Conflict("follow-up was updated concurrently, retry", err)
		default:
			return nil, s.internal(ctx, err, "Failed to record check-in")
		}
	}
}

// checkInChange builds the write for one check-in against the follow-up as
// read. The store rejects it if f changed in the meantime.
func (s *Service) checkInChange(ctx context.Context, f *model.FollowUpPatient, req *model.CheckInRequest,
	category model.CheckInCategory) (*model.CheckInResponse, *model.Change, error) {
	now := s.now().UTC()
	checkIn := &model.CheckInResponse{
		Base:              model.Base{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		FollowUpID:        f.ID,
		Day:               req.Day,
		ConditionCategory: category,
		Summary:           req.Summary,
		Answers:           model.JSONMap(req.Answers),
	}

	f.LastStatus = category
	if req.Day > f.Day {
		f.Day = req.Day
	}
	if f.DurationDays > 0 && f.Day >= f.DurationDays {
		f.Status = model.FollowUpCompleted
	}
	change := &model.Change{
		CheckIns:        []*model.CheckInResponse{checkIn},
		FollowUpUpdates: []*model.FollowUpPatient{f},
	}

	var pid uuid.UUID
	if f.PatientID != nil {
		pid = *f.PatientID
	}
	notice, err := s.events.Notify(ctx, event.CheckInReceived, pid, map[string]interface{}{
		"follow_up_id":       f.ID.String(),
		"day":                checkIn.Day,
		"condition_category": string(category),
		"summary":            checkIn.Summary,
	})
	if err != nil {
		return nil, nil, s.internal(ctx, err, "Failed to build check-in notification")
	}
	change.AddEvents(notice)

	if category == model.CheckInCritical {
		reason := fmt.Sprintf("Day %d check-in flagged critical", checkIn.Day)
		if checkIn.Summary != "" {
			reason += ": " + checkIn.Summary
		}
		alert := s.newAlert(f.PatientID, f.Name, model.AlertTypeCritical, reason, now)
		change.Alerts = append(change.Alerts, alert)
		if err := s.alertEvents(ctx, change, alert); err != nil {
			return nil, nil, s.internal(ctx, err, "Failed to build alert notification")
		}
	}
	return checkIn, change, nil
}
