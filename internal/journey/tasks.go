package journey

import (
	"time"

	"github.com/jwalitptl/careflow-api/internal/model"
)

// OverdueAfter is how long an open task may sit before it is flagged.
const OverdueAfter = 24 * time.Hour

// DeriveTaskView projects a patient onto the ordered task list shown to the
// patient and to staff. Consultation is always present; the other categories
// appear once their detail field or matching status is set.
func DeriveTaskView(p *model.Patient, now time.Time) []model.Task {
	tasks := make([]model.Task, 0, 5)

	consult := model.Task{
		Category:    model.TaskConsultation,
		Title:       "Doctor Consultation",
		Details:     "Waiting for triage...",
		IsCompleted: p.ConsultancyStatus == model.SubStatusCompleted || p.Status != model.StatusWaiting,
		Timestamp:   p.CreatedAt,
	}
	switch {
	case p.ConsultancyStatus != model.SubStatusNone:
		consult.Status = string(p.ConsultancyStatus)
	case p.Status == model.StatusWaiting:
		consult.Status = string(model.SubStatusPending)
	default:
		consult.Status = string(model.SubStatusCompleted)
	}
	if p.Condition != "" {
		consult.Details = "Condition: " + p.Condition
	}
	tasks = append(tasks, consult)

	departments := []struct {
		category model.TaskCategory
		title    string
		detail   string
		fallback string
		status   model.SubStatus
		ordered  model.PatientStatus
	}{
		{model.TaskLab, "Laboratory Analysis", p.LabTest, "Lab work requested", p.LabStatus, model.StatusLabOrdered},
		{model.TaskRadiology, "Radiology & Imaging", p.RadiologyTest, "Scanning requested", p.RadiologyStatus, model.StatusRadiologyOrdered},
		{model.TaskPharmacy, "Pharmacy & Medication", p.Medication, "Prescription processing", p.PharmacyStatus, model.StatusPharmacyOrdered},
	}
	for _, d := range departments {
		if d.detail == "" && p.Status != d.ordered {
			continue
		}
		t := model.Task{
			Category:    d.category,
			Title:       d.title,
			Status:      string(d.status),
			Details:     d.detail,
			IsCompleted: d.status == model.SubStatusCompleted,
			Timestamp:   p.UpdatedAt,
		}
		if t.Status == "" {
			t.Status = string(model.SubStatusPending)
		}
		if t.Details == "" {
			t.Details = d.fallback
		}
		tasks = append(tasks, t)
	}

	if p.ReferredTo != "" || p.Status == model.StatusReferred {
		t := model.Task{
			Category:    model.TaskReferral,
			Title:       "Specialist Referral",
			Status:      "Completed",
			Details:     p.ReferredTo,
			IsCompleted: p.Status == model.StatusCompleted,
			Timestamp:   p.UpdatedAt,
		}
		if p.Status == model.StatusReferred {
			t.Status = "Referral Sent"
		}
		if t.Details == "" {
			t.Details = "Referral processing"
		}
		tasks = append(tasks, t)
	}

	for i := range tasks {
		tasks[i].IsOverdue = isOverdue(tasks[i], now)
	}
	return tasks
}

func isOverdue(t model.Task, now time.Time) bool {
	if t.IsCompleted || t.Timestamp.IsZero() {
		return false
	}
	return now.Sub(t.Timestamp) > OverdueAfter
}
