package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/careflow-api/internal/model"
	"github.com/jwalitptl/careflow-api/pkg/logger"
)

// Notification event names, sent as the webhook event_type.
const (
	PatientIntake      = "patient_intake"
	OrderPlaced        = "order_placed"
	LabResultUpdated   = "lab_result_updated"
	PatientDischarged  = "patient_discharged"
	PatientFollowUp    = "patient_followup"
	CriticalAlert      = "critical_alert"
	CheckInReceived    = "patient_checkin"
	DischargeEmailName = "discharge_summary"
)

// Change operations
const (
	OpCreate = "create"
	OpUpdate = "update"
)

const HeaderRequestID = "request_id"

// EventService builds outbox events. The events are written by the caller's
// unit of work, never on their own.
type EventService struct {
	now func() time.Time
}

func NewEventService(now func() time.Time) *EventService {
	if now == nil {
		now = time.Now
	}
	return &EventService{now: now}
}

func (s *EventService) newEvent(ctx context.Context, eventType string, payload interface{}) (*model.OutboxEvent, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	now := s.now().UTC()
	event := &model.OutboxEvent{
		ID:        uuid.New(),
		EventType: eventType,
		Payload:   payloadJSON,
		Headers:   model.StringMap{},
		Status:    model.OutboxStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if rid, ok := ctx.Value(logger.RequestIDKey).(string); ok && rid != "" {
		event.Headers[HeaderRequestID] = rid
	}
	return event, nil
}

// Changed announces a write to collection for the live views.
func (s *EventService) Changed(ctx context.Context, collection, op string, id uuid.UUID) *model.OutboxEvent {
	notice := model.ChangeNotice{
		Collection: collection,
		RecordID:   id,
		Operation:  op,
		At:         s.now().UTC(),
	}
	// a ChangeNotice always marshals
	event, _ := s.newEvent(ctx, model.EventPrefixChange+collection, notice)
	return event
}

// Notify queues a webhook notification.
func (s *EventService) Notify(ctx context.Context, name string, patientID uuid.UUID, payload map[string]interface{}) (*model.OutboxEvent, error) {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	body := model.NotificationPayload{
		EventType: name,
		Payload:   payload,
	}
	if patientID != uuid.Nil {
		body.PatientID = patientID.String()
	}
	return s.newEvent(ctx, model.EventPrefixNotify+name, body)
}

// Email queues an e-mail rendered by the caller.
func (s *EventService) Email(ctx context.Context, template string, msg model.EmailMessage) (*model.OutboxEvent, error) {
	if msg.To == "" {
		return nil, fmt.Errorf("email %s: missing recipient", template)
	}
	return s.newEvent(ctx, model.EventPrefixEmail+template, msg)
}

// Announce appends a change.* event for every record c writes.
func (s *EventService) Announce(ctx context.Context, c *model.Change) {
	var events []*model.OutboxEvent
	add := func(collection, op string, id uuid.UUID) {
		events = append(events, s.Changed(ctx, collection, op, id))
	}
	if c.CreatePatient != nil {
		add(model.CollectionPatients, OpCreate, c.CreatePatient.ID)
	}
	if c.UpdatesPatient() {
		add(model.CollectionPatients, OpUpdate, c.PatientID)
	}
	for _, a := range c.Actions {
		add(model.CollectionActions, OpCreate, a.ID)
	}
	for _, u := range c.ActionUpdates {
		add(model.CollectionActions, OpUpdate, u.ActionID)
	}
	for _, a := range c.Alerts {
		add(model.CollectionAlerts, OpCreate, a.ID)
	}
	for _, a := range c.ResolvedAlerts {
		add(model.CollectionAlerts, OpUpdate, a.ID)
	}
	for _, f := range c.FollowUps {
		add(model.CollectionFollowUps, OpCreate, f.ID)
	}
	for _, f := range c.FollowUpUpdates {
		add(model.CollectionFollowUps, OpUpdate, f.ID)
	}
	for _, ci := range c.CheckIns {
		add(model.CollectionCheckIns, OpCreate, ci.ID)
	}
	c.AddEvents(events...)
}
