package model

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "PENDING"
	OutboxStatusProcessing OutboxStatus = "PROCESSING"
	OutboxStatusProcessed  OutboxStatus = "PROCESSED"
	OutboxStatusRetry      OutboxStatus = "RETRY"
	OutboxStatusFailed     OutboxStatus = "FAILED"
)

// Event type prefixes. The suffix names the collection, the notification
// event or the e-mail template.
const (
	EventPrefixChange = "change."
	EventPrefixNotify = "notify."
	EventPrefixEmail  = "email."
)

type OutboxEvent struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	EventType    string          `db:"event_type" json:"event_type"`
	Payload      json.RawMessage `db:"payload" json:"payload"`
	Headers      StringMap       `db:"headers" json:"headers"`
	Status       OutboxStatus    `db:"status" json:"status"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	ProcessedAt  *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
	RetryCount   int             `db:"retry_count" json:"retry_count"`
	RetryAt      *time.Time      `db:"retry_at" json:"retry_at,omitempty"`
	LockedUntil  *time.Time      `db:"locked_until" json:"locked_until,omitempty"`
}

// Kind returns the event type prefix including the trailing dot.
func (e *OutboxEvent) Kind() string {
	if i := strings.IndexByte(e.EventType, '.'); i >= 0 {
		return e.EventType[:i+1]
	}
	return e.EventType
}

// Name returns the event type without its prefix.
func (e *OutboxEvent) Name() string {
	return strings.TrimPrefix(e.EventType, e.Kind())
}

// Claimable reports whether a worker may pick the event up at now.
func (e *OutboxEvent) Claimable(now time.Time) bool {
	switch e.Status {
	case OutboxStatusPending:
	case OutboxStatusRetry:
		if e.RetryAt != nil && e.RetryAt.After(now) {
			return false
		}
	case OutboxStatusProcessing:
		if e.LockedUntil == nil || e.LockedUntil.After(now) {
			return false
		}
	default:
		return false
	}
	return true
}

// ChangeNotice is the body of a change.* event and of broker messages on the
// changes channel.
type ChangeNotice struct {
	Collection string    `json:"collection"`
	RecordID   uuid.UUID `json:"record_id"`
	Operation  string    `json:"operation"`
	At         time.Time `json:"at"`
}

// Collections
const (
	CollectionPatients  = "patients"
	CollectionActions   = "actions"
	CollectionAlerts    = "critical_alerts"
	CollectionFollowUps = "followup_patients"
	CollectionCheckIns  = "checkin_responses"
)

// NotificationPayload is the JSON body posted to the notification webhook.
type NotificationPayload struct {
	EventType string                 `json:"event_type"`
	PatientID string                 `json:"patient_id"`
	Payload   map[string]interface{} `json:"payload"`
}

// EmailMessage is the body of an email.* event.
type EmailMessage struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}
