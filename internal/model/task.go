package model

import "time"

type TaskCategory string

const (
	TaskConsultation TaskCategory = "consultation"
	TaskLab          TaskCategory = "lab"
	TaskRadiology    TaskCategory = "radiology"
	TaskPharmacy     TaskCategory = "pharmacy"
	TaskReferral     TaskCategory = "referral"
)

// Task is one line of the patient-facing progress view. It is never stored.
type Task struct {
	Category    TaskCategory `json:"category"`
	Title       string       `json:"title"`
	Status      string       `json:"status"`
	Details     string       `json:"details"`
	IsCompleted bool         `json:"is_completed"`
	IsOverdue   bool         `json:"is_overdue"`
	Timestamp   time.Time    `json:"timestamp"`
}
