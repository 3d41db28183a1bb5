package journey

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/careflow-api/internal/model"
)

var orderTitles = map[OrderKind]string{
	OrderLab:       "Lab Test Ordered",
	OrderRadiology: "Radiology Scan Ordered",
	OrderPharmacy:  "Medication Prescribed",
	OrderReferral:  "Specialist Referral",
}

func newAction(p *model.Patient, dept model.Department, typ, desc, by string, now time.Time) *model.Action {
	return &model.Action{
		Base:        model.Base{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		PatientID:   p.ID,
		PatientName: p.FullName(),
		Type:        typ,
		Description: desc,
		Priority:    model.ActionPriorityFor(p.Priority),
		Status:      model.ActionStatusPending,
		Department:  dept,
		CreatedBy:   by,
	}
}

// OrderAction records an order in the department's queue.
func OrderAction(p *model.Patient, kind OrderKind, value, by string, now time.Time) *model.Action {
	return newAction(p, kind.Department(), orderTitles[kind], value, by, now)
}

func RevertAction(p *model.Patient, kind OrderKind, by string, now time.Time) *model.Action {
	a := newAction(p, kind.Department(), "Order Cancelled", fmt.Sprintf("%s order withdrawn", kind), by, now)
	a.Status = model.ActionStatusCompleted
	return a
}

// SubStatusAction records a progress change that had no open order to advance.
func SubStatusAction(p *model.Patient, kind SubStatusKind, value model.SubStatus, by string, now time.Time) *model.Action {
	a := newAction(p, kind.Department(), "Status Update", fmt.Sprintf("%s status set to %s", kind, value), by, now)
	if st, ok := ActionStatusFor(value); ok {
		a.Status = st
	}
	return a
}

func StatusAction(p *model.Patient, target model.PatientStatus, by string, now time.Time) *model.Action {
	a := newAction(p, model.DepartmentDoctor, "Status Change", fmt.Sprintf("status set to %s", target), by, now)
	a.Status = model.ActionStatusCompleted
	return a
}

func PriorityAction(p *model.Patient, priority model.Priority, by string, now time.Time) *model.Action {
	a := newAction(p, model.DepartmentDoctor, "Priority Change", fmt.Sprintf("priority set to %s", priority), by, now)
	a.Priority = model.ActionPriorityFor(priority)
	a.Status = model.ActionStatusCompleted
	return a
}

func NurseAction(p *model.Patient, nurseID, by string, now time.Time) *model.Action {
	desc := "nurse assignment cleared"
	if nurseID != "" {
		desc = "assigned to nurse " + nurseID
	}
	a := newAction(p, model.DepartmentNurse, "Nurse Assignment", desc, by, now)
	a.Status = model.ActionStatusCompleted
	return a
}

func FinalizeAction(p *model.Patient, mode FinalizeMode, followUpDate, by string, now time.Time) *model.Action {
	desc := "Patient discharged"
	typ := "Discharge"
	if mode == FinalizeFollowUp {
		typ = "Discharge to Follow-up"
		desc = "Follow-up scheduled for " + followUpDate
	}
	a := newAction(p, model.DepartmentDoctor, typ, desc, by, now)
	a.Status = model.ActionStatusCompleted
	return a
}

func AdmitAction(p *model.Patient, by string, now time.Time) *model.Action {
	a := newAction(p, model.DepartmentDoctor, "Patient Admitted", "Registered with code "+p.PatientCode, by, now)
	a.Status = model.ActionStatusCompleted
	return a
}

// ActionStatusFor maps a department sub-status onto the action log's status.
func ActionStatusFor(s model.SubStatus) (model.ActionStatus, bool) {
	switch s {
	case model.SubStatusProcessing:
		return model.ActionStatusProcessing, true
	case model.SubStatusCompleted:
		return model.ActionStatusCompleted, true
	case model.SubStatusPending:
		return model.ActionStatusPending, true
	default:
		return "", false
	}
}

// NextForOrder picks the open order action a sub-status change advances, if
// the move is forward. actions may be in any order.
func NextForOrder(actions []*model.Action, dept model.Department, s model.SubStatus) (*model.ActionStatusUpdate, bool) {
	target, ok := ActionStatusFor(s)
	if !ok {
		return nil, false
	}
	var newest *model.Action
	for _, a := range actions {
		if a.Department != dept || !a.Status.IsOpen() {
			continue
		}
		if _, isOrder := orderTypes[a.Type]; !isOrder {
			continue
		}
		if newest == nil || a.CreatedAt.After(newest.CreatedAt) {
			newest = a
		}
	}
	if newest == nil || !newest.Status.CanAdvanceTo(target) {
		return nil, false
	}
	return &model.ActionStatusUpdate{ActionID: newest.ID, From: newest.Status, To: target}, true
}

var orderTypes = func() map[string]struct{} {
	m := make(map[string]struct{}, len(orderTitles))
	for _, t := range orderTitles {
		m[t] = struct{}{}
	}
	return m
}()
