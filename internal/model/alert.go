package model

import (
	"time"

	"github.com/google/uuid"
)

type AlertType string

const (
	AlertTypeCritical AlertType = "critical"
	AlertTypeModerate AlertType = "moderate"
)

// CriticalAlert is raised by the follow-up agent or by staff.
type CriticalAlert struct {
	Base
	PatientID   *uuid.UUID `json:"patient_id,omitempty" db:"patient_id"`
	PatientName string     `json:"patient_name" db:"patient_name"`
	AlertType   AlertType  `json:"alert_type" db:"alert_type"`
	Reason      string     `json:"reason" db:"reason"`
	Resolved    bool       `json:"resolved" db:"resolved"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`
	ResolvedBy  string     `json:"resolved_by,omitempty" db:"resolved_by"`
}

type RaiseAlertRequest struct {
	PatientID   string `json:"patient_id" binding:"omitempty,uuid"`
	PatientName string `json:"patient_name" binding:"required_without=PatientID"`
	AlertType   string `json:"alert_type" binding:"required,oneof=critical moderate"`
	Reason      string `json:"reason" binding:"required"`
}
