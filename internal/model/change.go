package model

import "github.com/google/uuid"

// Change is everything one user intent writes. A store commits it atomically
// or not at all.
type Change struct {
	CreatePatient *Patient

	PatientID       uuid.UUID
	PatientUpdate   PatientUpdate
	ExpectedVersion *int64

	Actions       []*Action
	ActionUpdates []ActionStatusUpdate

	Alerts         []*CriticalAlert
	ResolvedAlerts []*CriticalAlert

	FollowUps       []*FollowUpPatient
	FollowUpUpdates []*FollowUpPatient
	CheckIns        []*CheckInResponse

	Events []*OutboxEvent

	// Result is filled by the store with the patient as committed.
	Result *Patient
}

func (c *Change) AddEvents(events ...*OutboxEvent) {
	c.Events = append(c.Events, events...)
}

// UpdatesPatient reports whether the change writes an existing patient.
func (c *Change) UpdatesPatient() bool {
	return c.PatientID != uuid.Nil && !c.PatientUpdate.IsEmpty()
}
