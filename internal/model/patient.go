package model

import (
	"fmt"
	"strings"
)

type PatientStatus string

const (
	StatusWaiting          PatientStatus = "waiting"
	StatusUnderTreatment   PatientStatus = "under_treatment"
	StatusLabOrdered       PatientStatus = "lab_ordered"
	StatusRadiologyOrdered PatientStatus = "radiology_ordered"
	StatusPharmacyOrdered  PatientStatus = "pharmacy_ordered"
	StatusReferred         PatientStatus = "referred"
	StatusCritical         PatientStatus = "critical"
	StatusFollowUp         PatientStatus = "follow_up"
	StatusCompleted        PatientStatus = "completed"
)

var patientStatuses = map[PatientStatus]struct{}{
	StatusWaiting:          {},
	StatusUnderTreatment:   {},
	StatusLabOrdered:       {},
	StatusRadiologyOrdered: {},
	StatusPharmacyOrdered:  {},
	StatusReferred:         {},
	StatusCritical:         {},
	StatusFollowUp:         {},
	StatusCompleted:        {},
}

// ParsePatientStatus accepts any casing; legacy records used "Critical".
func ParsePatientStatus(s string) (PatientStatus, error) {
	st := PatientStatus(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := patientStatuses[st]; !ok {
		return "", fmt.Errorf("invalid patient status %q", s)
	}
	return st, nil
}

type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityUrgent Priority = "urgent"
	PriorityStat   Priority = "stat"
)

// TriageRank orders priorities for the work queues: stat first, unknown
// values rank as normal.
func (p Priority) TriageRank() int {
	switch p {
	case PriorityStat:
		return 0
	case PriorityUrgent:
		return 1
	default:
		return 2
	}
}

func ParsePriority(s string) (Priority, error) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case PriorityNormal, PriorityUrgent, PriorityStat:
		return p, nil
	case "":
		return PriorityNormal, nil
	default:
		return "", fmt.Errorf("invalid priority %q", s)
	}
}

// SubStatus tracks progress of one department's work on a patient.
type SubStatus string

const (
	SubStatusNone       SubStatus = ""
	SubStatusPending    SubStatus = "pending"
	SubStatusProcessing SubStatus = "processing"
	SubStatusCompleted  SubStatus = "completed"
)

func ParseSubStatus(s string) (SubStatus, error) {
	switch st := SubStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case SubStatusPending, SubStatusProcessing, SubStatusCompleted:
		return st, nil
	default:
		return "", fmt.Errorf("invalid sub-status %q", s)
	}
}

type Patient struct {
	Base
	PatientCode       string        `json:"patient_code" db:"patient_code"`
	FirstName         string        `json:"first_name" db:"first_name"`
	LastName          string        `json:"last_name" db:"last_name"`
	Age               int           `json:"age" db:"age"`
	Gender            string        `json:"gender" db:"gender"`
	Condition         string        `json:"condition" db:"condition"`
	PastMedications   string        `json:"past_medications" db:"past_medications"`
	PastAllergies     string        `json:"past_allergies" db:"past_allergies"`
	Status            PatientStatus `json:"status" db:"status"`
	Priority          Priority      `json:"priority" db:"priority"`
	ConsultancyStatus SubStatus     `json:"consultancy_status" db:"consultancy_status"`
	LabStatus         SubStatus     `json:"lab_status" db:"lab_status"`
	RadiologyStatus   SubStatus     `json:"radiology_status" db:"radiology_status"`
	PharmacyStatus    SubStatus     `json:"pharmacy_status" db:"pharmacy_status"`
	LabTest           string        `json:"lab_test" db:"lab_test"`
	RadiologyTest     string        `json:"radiology_test" db:"radiology_test"`
	Medication        string        `json:"medication" db:"medication"`
	ReferredTo        string        `json:"referred_to" db:"referred_to"`
	AssignedNurse     string        `json:"assigned_nurse" db:"assigned_nurse"`
	AssignedDoctorID  string        `json:"assigned_doctor_id" db:"assigned_doctor_id"`
	FollowUpDate      string        `json:"follow_up_date" db:"follow_up_date"`
	PhoneNumber       string        `json:"phone_number" db:"phone_number"`
	Email             string        `json:"email" db:"email"`
	EmergencyContact  string        `json:"emergency_contact" db:"emergency_contact"`
	Version           int64         `json:"version" db:"version"`
}

func (p *Patient) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// HasContact reports whether a notification can reach the patient.
func (p *Patient) HasContact() bool {
	return p.PhoneNumber != "" || p.Email != ""
}

// PatientUpdate is a partial patient write. Nil fields are left untouched.
type PatientUpdate struct {
	Status            *PatientStatus `json:"status,omitempty"`
	Priority          *Priority      `json:"priority,omitempty"`
	ConsultancyStatus *SubStatus     `json:"consultancy_status,omitempty"`
	LabStatus         *SubStatus     `json:"lab_status,omitempty"`
	RadiologyStatus   *SubStatus     `json:"radiology_status,omitempty"`
	PharmacyStatus    *SubStatus     `json:"pharmacy_status,omitempty"`
	LabTest           *string        `json:"lab_test,omitempty"`
	RadiologyTest     *string        `json:"radiology_test,omitempty"`
	Medication        *string        `json:"medication,omitempty"`
	ReferredTo        *string        `json:"referred_to,omitempty"`
	AssignedNurse     *string        `json:"assigned_nurse,omitempty"`
	FollowUpDate      *string        `json:"follow_up_date,omitempty"`
}

func (u PatientUpdate) IsEmpty() bool {
	return u == PatientUpdate{}
}

// ApplyTo copies every set field onto p.
func (u PatientUpdate) ApplyTo(p *Patient) {
	if u.Status != nil {
		p.Status = *u.Status
	}
	if u.Priority != nil {
		p.Priority = *u.Priority
	}
	if u.ConsultancyStatus != nil {
		p.ConsultancyStatus = *u.ConsultancyStatus
	}
	if u.LabStatus != nil {
		p.LabStatus = *u.LabStatus
	}
	if u.RadiologyStatus != nil {
		p.RadiologyStatus = *u.RadiologyStatus
	}
	if u.PharmacyStatus != nil {
		p.PharmacyStatus = *u.PharmacyStatus
	}
	if u.LabTest != nil {
		p.LabTest = *u.LabTest
	}
	if u.RadiologyTest != nil {
		p.RadiologyTest = *u.RadiologyTest
	}
	if u.Medication != nil {
		p.Medication = *u.Medication
	}
	if u.ReferredTo != nil {
		p.ReferredTo = *u.ReferredTo
	}
	if u.AssignedNurse != nil {
		p.AssignedNurse = *u.AssignedNurse
	}
	if u.FollowUpDate != nil {
		p.FollowUpDate = *u.FollowUpDate
	}
}

// PatientFilter selects patients for a dashboard view.
type PatientFilter struct {
	AssignedDoctorID string
	AssignedNurse    string
	Statuses         []PatientStatus
	ExcludeStatuses  []PatientStatus
	SearchTerm       string
	Order            PatientOrder
	// Limit applies after Order, so a limited queue keeps its head.
	Limit int
}

type PatientOrder string

const (
	// OrderCreated is oldest first.
	OrderCreated PatientOrder = ""
	OrderNewest  PatientOrder = "newest"
	// OrderTriage is stat, urgent, normal, newest first within a priority.
	OrderTriage PatientOrder = "triage"
)

// Less reports whether a sorts before b under o.
func (o PatientOrder) Less(a, b *Patient) bool {
	switch o {
	case OrderTriage:
		if ra, rb := a.Priority.TriageRank(), b.Priority.TriageRank(); ra != rb {
			return ra < rb
		}
		return a.CreatedAt.After(b.CreatedAt)
	case OrderNewest:
		return a.CreatedAt.After(b.CreatedAt)
	default:
		return a.CreatedAt.Before(b.CreatedAt)
	}
}

// Matches evaluates the filter in memory. Used by the in-memory store and by
// live subscribers deciding whether a change touches their view.
func (f PatientFilter) Matches(p *Patient) bool {
	if f.AssignedDoctorID != "" && !strings.EqualFold(p.AssignedDoctorID, f.AssignedDoctorID) {
		return false
	}
	if f.AssignedNurse != "" && !strings.EqualFold(p.AssignedNurse, f.AssignedNurse) {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, p.Status) {
		return false
	}
	if containsStatus(f.ExcludeStatuses, p.Status) {
		return false
	}
	if f.SearchTerm != "" {
		term := strings.ToLower(f.SearchTerm)
		if !strings.Contains(strings.ToLower(p.FullName()), term) &&
			!strings.Contains(strings.ToLower(p.PatientCode), term) {
			return false
		}
	}
	return true
}

func containsStatus(list []PatientStatus, s PatientStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

type CreatePatientRequest struct {
	FirstName        string `json:"first_name" binding:"required"`
	LastName         string `json:"last_name" binding:"required"`
	Age              int    `json:"age" binding:"gte=0,lte=150"`
	Gender           string `json:"gender"`
	Condition        string `json:"condition"`
	PastMedications  string `json:"past_medications"`
	PastAllergies    string `json:"past_allergies"`
	Priority         string `json:"priority" binding:"omitempty,priority"`
	PhoneNumber      string `json:"phone_number"`
	Email            string `json:"email" binding:"omitempty,email"`
	EmergencyContact string `json:"emergency_contact"`
}

type OrderRequest struct {
	Kind            string `json:"kind" binding:"required,order_kind"`
	Value           string `json:"value" binding:"required"`
	ExpectedVersion *int64 `json:"expected_version"`
}

type SubStatusRequest struct {
	Kind            string `json:"kind" binding:"required,sub_status_kind"`
	Value           string `json:"value" binding:"required,sub_status"`
	ExpectedVersion *int64 `json:"expected_version"`
}

type FinalizeRequest struct {
	Mode            string `json:"mode" binding:"required,oneof=discharge follow_up"`
	FollowUpDate    string `json:"follow_up_date" binding:"omitempty,iso_date"`
	ExpectedVersion *int64 `json:"expected_version"`
}

type StatusRequest struct {
	Status          string `json:"status" binding:"required,oneof=under_treatment critical"`
	ExpectedVersion *int64 `json:"expected_version"`
}

type PriorityRequest struct {
	Priority        string `json:"priority" binding:"required,priority"`
	ExpectedVersion *int64 `json:"expected_version"`
}

type AssignNurseRequest struct {
	NurseID         string `json:"nurse_id"`
	ExpectedVersion *int64 `json:"expected_version"`
}
