package model

import (
	"github.com/google/uuid"
)

type FollowUpStatus string

const (
	FollowUpActive    FollowUpStatus = "active"
	FollowUpCompleted FollowUpStatus = "completed"
)

// CheckInCategory is the severity the follow-up agent assigned to a check-in.
type CheckInCategory string

const (
	CheckInNormal   CheckInCategory = "normal"
	CheckInNote     CheckInCategory = "note"
	CheckInCritical CheckInCategory = "critical"
)

type FollowUpPatient struct {
	Base
	PatientID    *uuid.UUID      `json:"patient_id,omitempty" db:"patient_id"`
	Name         string          `json:"name" db:"name"`
	PhoneNumber  string          `json:"phone_number" db:"phone_number"`
	Status       FollowUpStatus  `json:"status" db:"status"`
	LastStatus   CheckInCategory `json:"last_status" db:"last_status"`
	Day          int             `json:"day" db:"day"`
	DurationDays int             `json:"duration_days" db:"duration_days"`
	FollowUpDate string          `json:"follow_up_date" db:"follow_up_date"`
}

type CheckInResponse struct {
	Base
	FollowUpID        uuid.UUID       `json:"follow_up_id" db:"follow_up_id"`
	Day               int             `json:"day" db:"day"`
	ConditionCategory CheckInCategory `json:"condition_category" db:"condition_category"`
	Summary           string          `json:"summary" db:"summary"`
	Answers           JSONMap         `json:"answers" db:"answers"`
}

type CheckInRequest struct {
	Day               int                    `json:"day" binding:"gte=0"`
	ConditionCategory string                 `json:"condition_category" binding:"required,oneof=normal note critical"`
	Summary           string                 `json:"summary"`
	Answers           map[string]interface{} `json:"answers"`
}
