package model

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type Department string

const (
	DepartmentLab       Department = "Lab"
	DepartmentRadiology Department = "Radiology"
	DepartmentPharmacy  Department = "Pharmacy"
	DepartmentDoctor    Department = "Doctor"
	DepartmentNurse     Department = "Nurse"
)

func ParseDepartment(s string) (Department, error) {
	for _, d := range []Department{DepartmentLab, DepartmentRadiology, DepartmentPharmacy, DepartmentDoctor, DepartmentNurse} {
		if strings.EqualFold(string(d), strings.TrimSpace(s)) {
			return d, nil
		}
	}
	return "", fmt.Errorf("invalid department %q", s)
}

type ActionPriority string

const (
	ActionPriorityNormal ActionPriority = "NORMAL"
	ActionPriorityUrgent ActionPriority = "URGENT"
	ActionPriorityStat   ActionPriority = "STAT"
)

// ActionPriorityFor maps a patient priority onto the audit log vocabulary.
func ActionPriorityFor(p Priority) ActionPriority {
	switch p {
	case PriorityStat:
		return ActionPriorityStat
	case PriorityUrgent:
		return ActionPriorityUrgent
	default:
		return ActionPriorityNormal
	}
}

type ActionStatus string

const (
	ActionStatusPending    ActionStatus = "Pending"
	ActionStatusInProgress ActionStatus = "In Progress"
	ActionStatusProcessing ActionStatus = "Processing"
	ActionStatusReady      ActionStatus = "Ready"
	ActionStatusCompleted  ActionStatus = "Completed"
)

var actionStatusRank = map[ActionStatus]int{
	ActionStatusPending:    0,
	ActionStatusInProgress: 1,
	ActionStatusProcessing: 1,
	ActionStatusReady:      2,
	ActionStatusCompleted:  3,
}

func ParseActionStatus(s string) (ActionStatus, error) {
	for st := range actionStatusRank {
		if strings.EqualFold(string(st), strings.TrimSpace(s)) {
			return st, nil
		}
	}
	return "", fmt.Errorf("invalid action status %q", s)
}

// Rank orders action statuses; In Progress and Processing share a rank.
func (s ActionStatus) Rank() int {
	if r, ok := actionStatusRank[s]; ok {
		return r
	}
	return -1
}

// CanAdvanceTo reports whether moving from s to next is a forward move.
func (s ActionStatus) CanAdvanceTo(next ActionStatus) bool {
	return next.Rank() > s.Rank()
}

func (s ActionStatus) IsOpen() bool {
	return s != ActionStatusCompleted
}

// Action is one audit-log entry for a care event.
type Action struct {
	Base
	PatientID   uuid.UUID      `json:"patient_id" db:"patient_id"`
	PatientName string         `json:"patient_name" db:"patient_name"`
	Type        string         `json:"type" db:"type"`
	Description string         `json:"description" db:"description"`
	Priority    ActionPriority `json:"priority" db:"priority"`
	Status      ActionStatus   `json:"status" db:"status"`
	Department  Department     `json:"department" db:"department"`
	CreatedBy   string         `json:"created_by" db:"created_by"`
}

// ActionStatusUpdate moves an existing action forward.
type ActionStatusUpdate struct {
	ActionID uuid.UUID
	From     ActionStatus
	To       ActionStatus
}

type ActionFilter struct {
	PatientID  *uuid.UUID
	Department Department
	OpenOnly   bool
}

func (f ActionFilter) Matches(a *Action) bool {
	if f.PatientID != nil && a.PatientID != *f.PatientID {
		return false
	}
	if f.Department != "" && a.Department != f.Department {
		return false
	}
	if f.OpenOnly && !a.Status.IsOpen() {
		return false
	}
	return true
}

type ActionStatusRequest struct {
	Status string `json:"status" binding:"required"`
}
