package journey

import "github.com/jwalitptl/careflow-api/internal/model"

// Intent names a role-initiated request against a patient record.
type Intent string

const (
	IntentOrder        Intent = "order"
	IntentRevertOrder  Intent = "revert order for"
	IntentAdvance      Intent = "advance sub-status of"
	IntentTreat        Intent = "start treatment for"
	IntentMarkCritical Intent = "mark critical"
	IntentDischarge    Intent = "discharge"
	IntentFollowUp     Intent = "schedule follow-up for"
	IntentSetPriority  Intent = "change priority of"
	IntentAssignNurse  Intent = "assign a nurse to"
)

var intentLabels = map[Intent]string{
	IntentOrder:        "order",
	IntentRevertOrder:  "revert_order",
	IntentAdvance:      "advance",
	IntentTreat:        "treat",
	IntentMarkCritical: "mark_critical",
	IntentDischarge:    "discharge",
	IntentFollowUp:     "follow_up",
	IntentSetPriority:  "set_priority",
	IntentAssignNurse:  "assign_nurse",
}

// Label is the intent's short name for logs and metrics.
func (i Intent) Label() string {
	if l, ok := intentLabels[i]; ok {
		return l
	}
	return string(i)
}

// activeStatuses are the statuses a patient holds while still in the
// hospital's ongoing workflow.
var activeStatuses = []model.PatientStatus{
	model.StatusWaiting,
	model.StatusUnderTreatment,
	model.StatusLabOrdered,
	model.StatusRadiologyOrdered,
	model.StatusPharmacyOrdered,
	model.StatusReferred,
	model.StatusCritical,
}

var transitions = map[Intent][]model.PatientStatus{
	IntentOrder:        activeStatuses,
	IntentRevertOrder:  activeStatuses,
	IntentTreat:        activeStatuses,
	IntentMarkCritical: activeStatuses,
	IntentAssignNurse:  activeStatuses,
	IntentFollowUp:     activeStatuses,
	IntentAdvance:      append(append([]model.PatientStatus{}, activeStatuses...), model.StatusFollowUp),
	IntentSetPriority:  append(append([]model.PatientStatus{}, activeStatuses...), model.StatusFollowUp),
	IntentDischarge:    append(append([]model.PatientStatus{}, activeStatuses...), model.StatusFollowUp),
}

// Allowed reports whether intent may be applied to a patient in status from.
func Allowed(intent Intent, from model.PatientStatus) bool {
	for _, s := range transitions[intent] {
		if s == from {
			return true
		}
	}
	return false
}

func checkTransition(p *model.Patient, intent Intent) error {
	if !Allowed(intent, p.Status) {
		return &IllegalTransitionError{From: p.Status, Intent: intent}
	}
	return nil
}

// IsOngoing reports whether the patient belongs on the doctor's ongoing tab.
func IsOngoing(s model.PatientStatus) bool {
	return s != model.StatusCompleted && s != model.StatusFollowUp
}

// OngoingExcluded lists the statuses the ongoing view filters out.
func OngoingExcluded() []model.PatientStatus {
	return []model.PatientStatus{model.StatusCompleted, model.StatusFollowUp}
}
