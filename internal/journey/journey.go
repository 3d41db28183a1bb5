// Package journey holds the patient journey state machine. Every function is
// pure: it reads a patient and returns the partial update an intent produces.
package journey

import (
	"strings"
	"time"

	"github.com/jwalitptl/careflow-api/internal/model"
)

// OrderKind is a department that can receive an order.
type OrderKind string

const (
	OrderLab       OrderKind = "lab"
	OrderRadiology OrderKind = "radiology"
	OrderPharmacy  OrderKind = "pharmacy"
	OrderReferral  OrderKind = "referral"
)

func ParseOrderKind(s string) (OrderKind, error) {
	switch k := OrderKind(strings.ToLower(strings.TrimSpace(s))); k {
	case OrderLab, OrderRadiology, OrderPharmacy, OrderReferral:
		return k, nil
	default:
		return "", invalid("order kind", "must be one of lab, radiology, pharmacy, referral")
	}
}

// OrderedStatus is the top-level status an order of this kind puts the patient in.
func (k OrderKind) OrderedStatus() model.PatientStatus {
	switch k {
	case OrderLab:
		return model.StatusLabOrdered
	case OrderRadiology:
		return model.StatusRadiologyOrdered
	case OrderPharmacy:
		return model.StatusPharmacyOrdered
	default:
		return model.StatusReferred
	}
}

func (k OrderKind) Department() model.Department {
	switch k {
	case OrderLab:
		return model.DepartmentLab
	case OrderRadiology:
		return model.DepartmentRadiology
	case OrderPharmacy:
		return model.DepartmentPharmacy
	default:
		return model.DepartmentDoctor
	}
}

// detail returns the current value of the kind's detail field.
func (k OrderKind) detail(p *model.Patient) string {
	switch k {
	case OrderLab:
		return p.LabTest
	case OrderRadiology:
		return p.RadiologyTest
	case OrderPharmacy:
		return p.Medication
	default:
		return p.ReferredTo
	}
}

// SubStatusKind names one of the per-department progress fields.
type SubStatusKind string

const (
	SubConsultancy SubStatusKind = "consultancy"
	SubLab         SubStatusKind = "lab"
	SubRadiology   SubStatusKind = "radiology"
	SubPharmacy    SubStatusKind = "pharmacy"
)

func ParseSubStatusKind(s string) (SubStatusKind, error) {
	switch k := SubStatusKind(strings.ToLower(strings.TrimSpace(s))); k {
	case SubConsultancy, SubLab, SubRadiology, SubPharmacy:
		return k, nil
	default:
		return "", invalid("sub-status kind", "must be one of consultancy, lab, radiology, pharmacy")
	}
}

func (k SubStatusKind) Department() model.Department {
	switch k {
	case SubLab:
		return model.DepartmentLab
	case SubRadiology:
		return model.DepartmentRadiology
	case SubPharmacy:
		return model.DepartmentPharmacy
	default:
		return model.DepartmentDoctor
	}
}

// FinalizeMode ends a patient's hospital journey.
type FinalizeMode string

const (
	FinalizeDischarge FinalizeMode = "discharge"
	FinalizeFollowUp  FinalizeMode = "follow_up"
)

// DateLayout is the wire format of follow-up dates.
const DateLayout = "2006-01-02"

func ptr[T any](v T) *T { return &v }

// ApplyOrder sends the patient to a department. The value is stored verbatim.
func ApplyOrder(p *model.Patient, kind OrderKind, value string) (model.PatientUpdate, error) {
	if strings.TrimSpace(value) == "" {
		return model.PatientUpdate{}, invalid(string(kind), "order detail is required")
	}
	if err := checkTransition(p, IntentOrder); err != nil {
		return model.PatientUpdate{}, err
	}

	u := model.PatientUpdate{Status: ptr(kind.OrderedStatus())}
	switch kind {
	case OrderLab:
		u.LabTest = ptr(value)
		u.LabStatus = ptr(model.SubStatusPending)
	case OrderRadiology:
		u.RadiologyTest = ptr(value)
		u.RadiologyStatus = ptr(model.SubStatusPending)
	case OrderPharmacy:
		u.Medication = ptr(value)
		u.PharmacyStatus = ptr(model.SubStatusPending)
	case OrderReferral:
		u.ReferredTo = ptr(value)
	default:
		return model.PatientUpdate{}, invalid("order kind", string(kind))
	}
	return u, nil
}

// RevertOrder undoes an order toggle. The top-level status falls back to
// waiting only while it still reflects this order.
func RevertOrder(p *model.Patient, kind OrderKind) (model.PatientUpdate, error) {
	if kind.detail(p) == "" && p.Status != kind.OrderedStatus() {
		return model.PatientUpdate{}, invalid(string(kind), "nothing is ordered")
	}
	if err := checkTransition(p, IntentRevertOrder); err != nil {
		return model.PatientUpdate{}, err
	}

	var u model.PatientUpdate
	switch kind {
	case OrderLab:
		u.LabTest = ptr("")
		u.LabStatus = ptr(model.SubStatusNone)
	case OrderRadiology:
		u.RadiologyTest = ptr("")
		u.RadiologyStatus = ptr(model.SubStatusNone)
	case OrderPharmacy:
		u.Medication = ptr("")
		u.PharmacyStatus = ptr(model.SubStatusNone)
	case OrderReferral:
		u.ReferredTo = ptr("")
	}
	if p.Status == kind.OrderedStatus() {
		u.Status = ptr(model.StatusWaiting)
	}
	return u, nil
}

// AdvanceSubStatus sets one department's progress. Values may be skipped and
// the top-level status is never changed.
func AdvanceSubStatus(p *model.Patient, kind SubStatusKind, value model.SubStatus) (model.PatientUpdate, error) {
	switch value {
	case model.SubStatusPending, model.SubStatusProcessing, model.SubStatusCompleted:
	default:
		return model.PatientUpdate{}, invalid(string(kind)+" status", "must be one of pending, processing, completed")
	}
	if err := checkTransition(p, IntentAdvance); err != nil {
		return model.PatientUpdate{}, err
	}

	var u model.PatientUpdate
	switch kind {
	case SubConsultancy:
		u.ConsultancyStatus = ptr(value)
	case SubLab:
		u.LabStatus = ptr(value)
	case SubRadiology:
		u.RadiologyStatus = ptr(value)
	case SubPharmacy:
		u.PharmacyStatus = ptr(value)
	default:
		return model.PatientUpdate{}, invalid("sub-status kind", string(kind))
	}
	return u, nil
}

// Finalize discharges the patient or hands them to follow-up monitoring.
func Finalize(p *model.Patient, mode FinalizeMode, followUpDate string) (model.PatientUpdate, error) {
	switch mode {
	case FinalizeDischarge:
		if err := checkTransition(p, IntentDischarge); err != nil {
			return model.PatientUpdate{}, err
		}
		return model.PatientUpdate{
			Status:            ptr(model.StatusCompleted),
			ConsultancyStatus: ptr(model.SubStatusCompleted),
		}, nil
	case FinalizeFollowUp:
		date := strings.TrimSpace(followUpDate)
		if date == "" {
			return model.PatientUpdate{}, invalid("follow_up_date", "a follow-up date is required")
		}
		if _, err := time.Parse(DateLayout, date); err != nil {
			return model.PatientUpdate{}, invalid("follow_up_date", "must be formatted YYYY-MM-DD")
		}
		if err := checkTransition(p, IntentFollowUp); err != nil {
			return model.PatientUpdate{}, err
		}
		return model.PatientUpdate{
			Status:            ptr(model.StatusFollowUp),
			ConsultancyStatus: ptr(model.SubStatusCompleted),
			FollowUpDate:      ptr(date),
		}, nil
	default:
		return model.PatientUpdate{}, invalid("mode", "must be discharge or follow_up")
	}
}

// SetStatus handles the doctor's direct status buttons.
func SetStatus(p *model.Patient, target model.PatientStatus) (model.PatientUpdate, error) {
	var intent Intent
	switch target {
	case model.StatusUnderTreatment:
		intent = IntentTreat
	case model.StatusCritical:
		intent = IntentMarkCritical
	default:
		return model.PatientUpdate{}, invalid("status", "only under_treatment and critical can be set directly")
	}
	if err := checkTransition(p, intent); err != nil {
		return model.PatientUpdate{}, err
	}
	u := model.PatientUpdate{Status: ptr(target)}
	if target == model.StatusUnderTreatment && p.ConsultancyStatus != model.SubStatusCompleted {
		u.ConsultancyStatus = ptr(model.SubStatusProcessing)
	}
	return u, nil
}

func SetPriority(p *model.Patient, priority model.Priority) (model.PatientUpdate, error) {
	if _, err := model.ParsePriority(string(priority)); err != nil || priority == "" {
		return model.PatientUpdate{}, invalid("priority", "must be one of normal, urgent, stat")
	}
	if err := checkTransition(p, IntentSetPriority); err != nil {
		return model.PatientUpdate{}, err
	}
	return model.PatientUpdate{Priority: ptr(priority)}, nil
}

// AssignNurse sets or clears (empty id) the responsible nurse.
func AssignNurse(p *model.Patient, nurseID string) (model.PatientUpdate, error) {
	if err := checkTransition(p, IntentAssignNurse); err != nil {
		return model.PatientUpdate{}, err
	}
	return model.PatientUpdate{AssignedNurse: ptr(strings.ToUpper(strings.TrimSpace(nurseID)))}, nil
}
