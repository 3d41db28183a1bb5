package journey

import (
	"sort"

	"github.com/jwalitptl/careflow-api/internal/model"
)

// SortTriageQueue orders the lab and radiology work queues: stat, urgent, then
// normal, newest first within a priority.
func SortTriageQueue(patients []*model.Patient) {
	sort.SliceStable(patients, func(i, j int) bool {
		return model.OrderTriage.Less(patients[i], patients[j])
	})
}

var severityRank = map[model.CheckInCategory]int{
	model.CheckInCritical: 3,
	model.CheckInNote:     2,
	model.CheckInNormal:   1,
}

// SortByCheckInSeverity orders the follow-up dashboard by the severity of the
// latest check-in. This is not a triage priority and must not be mixed with
// SortTriageQueue.
func SortByCheckInSeverity(followUps []*model.FollowUpPatient) {
	sort.SliceStable(followUps, func(i, j int) bool {
		return severityRank[followUps[i].LastStatus] > severityRank[followUps[j].LastStatus]
	})
}

func SortNewestFirst(patients []*model.Patient) {
	sort.SliceStable(patients, func(i, j int) bool {
		return patients[i].CreatedAt.After(patients[j].CreatedAt)
	})
}

func SortActionsNewestFirst(actions []*model.Action) {
	sort.SliceStable(actions, func(i, j int) bool {
		return actions[i].CreatedAt.After(actions[j].CreatedAt)
	})
}

func SortActionsOldestFirst(actions []*model.Action) {
	sort.SliceStable(actions, func(i, j int) bool {
		return actions[i].CreatedAt.Before(actions[j].CreatedAt)
	})
}

// SortAlerts puts critical alerts ahead of moderate ones, newest first.
func SortAlerts(alerts []*model.CriticalAlert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		ci := alerts[i].AlertType == model.AlertTypeCritical
		cj := alerts[j].AlertType == model.AlertTypeCritical
		if ci != cj {
			return ci
		}
		return alerts[i].CreatedAt.After(alerts[j].CreatedAt)
	})
}
