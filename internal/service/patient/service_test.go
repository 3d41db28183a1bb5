package patient

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/careflow-api/internal/model"
	"github.com/jwalitptl/careflow-api/internal/repository/memory"
	"github.com/jwalitptl/careflow-api/internal/service/event"
	apperrors "github.com/jwalitptl/careflow-api/pkg/errors"
	"github.com/jwalitptl/careflow-api/pkg/logger"
	"github.com/jwalitptl/careflow-api/pkg/metrics"
)

type tickingClock struct {
	mu sync.Mutex
	t  time.Time
}

// Now advances a minute per call so records get distinct timestamps.
func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Minute)
	return c.t
}

type roster map[model.Role][]string

func (r roster) HasStaff(role model.Role, id string) bool {
	for _, s := range r[role] {
		if strings.EqualFold(s, id) {
			return true
		}
	}
	return false
}

type fixture struct {
	svc     *Service
	store   *memory.Store
	metrics *metrics.Metrics
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	clk := &tickingClock{t: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)}
	store := memory.NewStore(memory.WithClock(clk.Now))
	m := metrics.NewMetrics("test", prometheus.NewRegistry())
	opts = append([]Option{WithClock(clk.Now)}, opts...)
	svc := NewService(store, event.NewEventService(clk.Now),
		roster{model.RoleNurse: {"NU-0001"}}, logger.Nop(), m, time.Minute, opts...)
	return &fixture{svc: svc, store: store, metrics: m}
}

func (f *fixture) admit(t *testing.T, req *model.CreatePatientRequest) *model.Patient {
	t.Helper()
	if req == nil {
		req = &model.CreatePatientRequest{FirstName: "Ada", LastName: "Lovelace", Age: 36, Condition: "Fever"}
	}
	p, err := f.svc.Admit(context.Background(), "doc-0001", req)
	require.NoError(t, err)
	return p
}

func (f *fixture) eventsOf(eventType string) []*model.OutboxEvent {
	var out []*model.OutboxEvent
	for _, e := range f.store.Events() {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (f *fixture) actions(t *testing.T, id uuid.UUID) []*model.Action {
	t.Helper()
	actions, err := f.svc.ListActions(context.Background(), id)
	require.NoError(t, err)
	return actions
}

func assertStatus(t *testing.T, err error, status int) {
	t.Helper()
	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok, "expected AppError, got %v", err)
	assert.Equal(t, status, appErr.Code.HTTPStatus())
}

func TestAdmit(t *testing.T) {
	f := newFixture(t)
	p := f.admit(t, &model.CreatePatientRequest{
		FirstName: "Ada", LastName: "Lovelace", Priority: "URGENT", PhoneNumber: "+15550100",
	})

	assert.Regexp(t, `^PT-\d{4}-\d{3}$`, p.PatientCode)
	assert.Equal(t, model.StatusWaiting, p.Status)
	assert.Equal(t, model.SubStatusPending, p.ConsultancyStatus)
	assert.Equal(t, model.PriorityUrgent, p.Priority)
	assert.Equal(t, "DOC-0001", p.AssignedDoctorID)
	assert.Equal(t, int64(1), p.Version)

	intake := f.eventsOf("notify.patient_intake")
	require.Len(t, intake, 1)
	var body model.NotificationPayload
	require.NoError(t, json.Unmarshal(intake[0].Payload, &body))
	assert.Equal(t, p.ID.String(), body.PatientID)
	assert.Equal(t, p.PatientCode, body.Payload["patient_code"])
	assert.Len(t, f.eventsOf("change.patients"), 1)

	actions := f.actions(t, p.ID)
	require.Len(t, actions, 1)
	assert.Equal(t, "Patient Admitted", actions[0].Type)
	assert.Equal(t, model.ActionPriorityUrgent, actions[0].Priority)
}

func TestAdmitWithoutPhoneSkipsIntakeNotification(t *testing.T) {
	f := newFixture(t)
	f.admit(t, nil)
	assert.Empty(t, f.eventsOf("notify.patient_intake"))
}

func TestAdmitRetriesCodeCollision(t *testing.T) {
	codes := []string{"PT-0001-001", "PT-0001-001", "pt-0002-002"}
	f := newFixture(t, WithCodeGenerator(func(time.Time) string {
		c := codes[0]
		codes = codes[1:]
		return c
	}))

	first := f.admit(t, nil)
	second := f.admit(t, nil)
	assert.Equal(t, "PT-0001-001", first.PatientCode)
	assert.Equal(t, "PT-0002-002", second.PatientCode)
}

func TestAdmitGivesUpAfterRepeatedCollisions(t *testing.T) {
	f := newFixture(t, WithCodeGenerator(func(time.Time) string { return "PT-0000-000" }))
	f.admit(t, nil)

	_, err := f.svc.Admit(context.Background(), "DOC-0001", &model.CreatePatientRequest{FirstName: "B", LastName: "C"})
	assertStatus(t, err, http.StatusConflict)
}

func TestAdmitRejectsBadPriority(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Admit(context.Background(), "DOC-0001", &model.CreatePatientRequest{FirstName: "A", LastName: "B", Priority: "asap"})
	assertStatus(t, err, http.StatusBadRequest)
}

func TestOrderAndRevert(t *testing.T) {
	f := newFixture(t)
	p := f.admit(t, &model.CreatePatientRequest{FirstName: "Ada", LastName: "L", Email: "ada@example.com"})

	updated, err := f.svc.Order(context.Background(), p.ID, "DOC-0001", &model.OrderRequest{Kind: "lab", Value: "CBC"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusLabOrdered, updated.Status)
	assert.Equal(t, "CBC", updated.LabTest)
	assert.Equal(t, model.SubStatusPending, updated.LabStatus)
	assert.Equal(t, int64(2), updated.Version)
	assert.Len(t, f.eventsOf("notify.order_placed"), 1)

	lab, err := f.svc.ListDepartmentActions(context.Background(), "lab", true)
	require.NoError(t, err)
	require.Len(t, lab, 1)
	assert.Equal(t, "Lab Test Ordered", lab[0].Type)
	assert.Equal(t, "CBC", lab[0].Description)
	assert.Equal(t, model.ActionStatusPending, lab[0].Status)

	reverted, err := f.svc.RevertOrder(context.Background(), p.ID, "DOC-0001", "lab", nil)
	require.NoError(t, err)
	assert.Equal(t, model.StatusWaiting, reverted.Status)
	assert.Empty(t, reverted.LabTest)
	assert.Equal(t, model.SubStatusNone, reverted.LabStatus)

	lab, err = f.svc.ListDepartmentActions(context.Background(), "lab", true)
	require.NoError(t, err)
	assert.Empty(t, lab, "withdrawn order must leave the open queue")

	_, err = f.svc.RevertOrder(context.Background(), p.ID, "DOC-0001", "lab", nil)
	assertStatus(t, err, http.StatusBadRequest)
}

func TestRevertClosesOnlyTheWithdrawnOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.admit(t, nil)

	_, err := f.svc.Order(ctx, p.ID, "DOC-0001", &model.OrderRequest{Kind: "lab", Value: "CBC"})
	require.NoError(t, err)
	_, err = f.svc.Order(ctx, p.ID, "DOC-0001", &model.OrderRequest{Kind: "radiology", Value: "Chest X-ray"})
	require.NoError(t, err)
	_, err = f.svc.RevertOrder(ctx, p.ID, "DOC-0001", "radiology", nil)
	require.NoError(t, err)

	rad, err := f.svc.ListDepartmentActions(ctx, "radiology", true)
	require.NoError(t, err)
	assert.Empty(t, rad)

	lab, err := f.svc.ListDepartmentActions(ctx, "lab", true)
	require.NoError(t, err)
	require.Len(t, lab, 1)
	assert.Equal(t, "CBC", lab[0].Description)
	assert.Equal(t, model.ActionStatusPending, lab[0].Status)

	// A re-order opens a fresh action for radiology.
	_, err = f.svc.Order(ctx, p.ID, "DOC-0001", &model.OrderRequest{Kind: "radiology", Value: "CT head"})
	require.NoError(t, err)
	rad, err = f.svc.ListDepartmentActions(ctx, "radiology", true)
	require.NoError(t, err)
	require.Len(t, rad, 1)
	assert.Equal(t, "CT head", rad[0].Description)
}

func TestOrderValidation(t *testing.T) {
	f := newFixture(t)
	p := f.admit(t, nil)

	_, err := f.svc.Order(context.Background(), p.ID, "DOC-0001", &model.OrderRequest{Kind: "surgery", Value: "x"})
	assertStatus(t, err, http.StatusBadRequest)

	_, err = f.svc.Order(context.Background(), p.ID, "DOC-0001", &model.OrderRequest{Kind: "lab", Value: "   "})
	assertStatus(t, err, http.StatusBadRequest)

	_, err = f.svc.Order(context.Background(), uuid.New(), "DOC-0001", &model.OrderRequest{Kind: "lab", Value: "CBC"})
	assertStatus(t, err, http.StatusNotFound)
}

func TestIllegalTransitionWritesNothing(t *testing.T) {
	f := newFixture(t)
	p := f.admit(t, nil)
	done, err := f.svc.Finalize(context.Background(), p.ID, "DOC-0001", &model.FinalizeRequest{Mode: "discharge"})
	require.NoError(t, err)
	before := len(f.store.Events())

	_, err = f.svc.Order(context.Background(), p.ID, "DOC-0001", &model.OrderRequest{Kind: "radiology", Value: "X-Ray"})
	assertStatus(t, err, http.StatusUnprocessableEntity)

	after, err := f.svc.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, done.Version, after.Version)
	assert.Equal(t, model.StatusCompleted, after.Status)
	assert.Len(t, f.store.Events(), before)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.JourneyTransitions.WithLabelValues("order", "illegal")))
}

func TestJourneyErrorsStateTheirMessageOnce(t *testing.T) {
	f := newFixture(t)
	p := f.admit(t, nil)

	_, err := f.svc.Finalize(context.Background(), p.ID, "DOC-0001", &model.FinalizeRequest{Mode: "follow_up"})
	assertStatus(t, err, http.StatusBadRequest)
	assert.Equal(t, "invalid follow_up_date: a follow-up date is required", err.Error())

	_, err = f.svc.Finalize(context.Background(), p.ID, "DOC-0001", &model.FinalizeRequest{Mode: "discharge"})
	require.NoError(t, err)
	_, err = f.svc.Order(context.Background(), p.ID, "DOC-0001", &model.OrderRequest{Kind: "lab", Value: "CBC"})
	assertStatus(t, err, http.StatusUnprocessableEntity)
	assert.Equal(t, 1, strings.Count(err.Error(), "cannot order"), err.Error())
}

func TestStaleExpectedVersionConflicts(t *testing.T) {
	f := newFixture(t)
	p := f.admit(t, nil)
	_, err := f.svc.SetStatus(context.Background(), p.ID, "DOC-0001", &model.StatusRequest{Status: "under_treatment"})
	require.NoError(t, err)

	stale := p.Version
	_, err = f.svc.SetStatus(context.Background(), p.ID, "DOC-0001", &model.StatusRequest{Status: "critical", ExpectedVersion: &stale})
	assertStatus(t, err, http.StatusConflict)

	current, err := f.svc.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusUnderTreatment, current.Status)
	assert.Equal(t, model.SubStatusProcessing, current.ConsultancyStatus)

	fresh := current.Version
	updated, err := f.svc.SetStatus(context.Background(), p.ID, "DOC-0001", &model.StatusRequest{Status: "Critical", ExpectedVersion: &fresh})
	require.NoError(t, err)
	assert.Equal(t, model.StatusCritical, updated.Status)
}

func TestAdvanceSubStatusMovesOrderAction(t *testing.T) {
	f := newFixture(t)
	p := f.admit(t, &model.CreatePatientRequest{FirstName: "Ada", LastName: "L", PhoneNumber: "+1555"})
	_, err := f.svc.Order(context.Background(), p.ID, "DOC-0001", &model.OrderRequest{Kind: "lab", Value: "CBC"})
	require.NoError(t, err)

	updated, err := f.svc.AdvanceSubStatus(context.Background(), p.ID, "LAB-0001", &model.SubStatusRequest{Kind: "lab", Value: "processing"})
	require.NoError(t, err)
	assert.Equal(t, model.SubStatusProcessing, updated.LabStatus)
	assert.Equal(t, model.StatusLabOrdered, updated.Status)

	lab, err := f.svc.ListDepartmentActions(context.Background(), "Lab", false)
	require.NoError(t, err)
	require.Len(t, lab, 1)
	assert.Equal(t, model.ActionStatusProcessing, lab[0].Status)

	_, err = f.svc.AdvanceSubStatus(context.Background(), p.ID, "LAB-0001", &model.SubStatusRequest{Kind: "lab", Value: "completed"})
	require.NoError(t, err)
	lab, err = f.svc.ListDepartmentActions(context.Background(), "Lab", false)
	require.NoError(t, err)
	require.Len(t, lab, 1)
	assert.Equal(t, model.ActionStatusCompleted, lab[0].Status)
	assert.Len(t, f.eventsOf("notify.lab_result_updated"), 1)

	// nothing open any more, so the change is logged as its own action
	_, err = f.svc.AdvanceSubStatus(context.Background(), p.ID, "LAB-0001", &model.SubStatusRequest{Kind: "lab", Value: "pending"})
	require.NoError(t, err)
	lab, err = f.svc.ListDepartmentActions(context.Background(), "Lab", false)
	require.NoError(t, err)
	require.Len(t, lab, 2)
	assert.Equal(t, "Status Update", lab[0].Type)
}

func TestFinalizeDischarge(t *testing.T) {
	f := newFixture(t)
	p := f.admit(t, &model.CreatePatientRequest{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"})
	_, err := f.svc.Order(context.Background(), p.ID, "DOC-0001", &model.OrderRequest{Kind: "pharmacy", Value: "Paracetamol"})
	require.NoError(t, err)

	done, err := f.svc.Finalize(context.Background(), p.ID, "DOC-0001", &model.FinalizeRequest{Mode: "discharge"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, done.Status)
	assert.Equal(t, model.SubStatusCompleted, done.ConsultancyStatus)

	var discharges int
	for _, a := range f.actions(t, p.ID) {
		if a.Type == "Discharge" {
			discharges++
		}
	}
	assert.Equal(t, 1, discharges)

	notes := f.eventsOf("notify.patient_discharged")
	require.Len(t, notes, 1)
	var body model.NotificationPayload
	require.NoError(t, json.Unmarshal(notes[0].Payload, &body))
	report, _ := body.Payload["report"].(string)
	lines := strings.Split(strings.TrimSpace(report), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Care history for Ada Lovelace ("+p.PatientCode+")", lines[0])
	assert.Contains(t, lines[1], "Patient Admitted")
	assert.Contains(t, lines[2], "| Pharmacy | Medication Prescribed | Paracetamol | Pending")

	mails := f.eventsOf("email.discharge_summary")
	require.Len(t, mails, 1)
	var msg model.EmailMessage
	require.NoError(t, json.Unmarshal(mails[0].Payload, &msg))
	assert.Equal(t, "ada@example.com", msg.To)
	assert.Equal(t, report, msg.Body)
}

func TestFinalizeFollowUp(t *testing.T) {
	f := newFixture(t)
	p := f.admit(t, &model.CreatePatientRequest{FirstName: "Ada", LastName: "L", PhoneNumber: "+1555"})

	_, err := f.svc.Finalize(context.Background(), p.ID, "DOC-0001", &model.FinalizeRequest{Mode: "follow_up"})
	assertStatus(t, err, http.StatusBadRequest)
	_, err = f.svc.Finalize(context.Background(), p.ID, "DOC-0001", &model.FinalizeRequest{Mode: "follow_up", FollowUpDate: "01/07/2024"})
	assertStatus(t, err, http.StatusBadRequest)

	updated, err := f.svc.Finalize(context.Background(), p.ID, "DOC-0001", &model.FinalizeRequest{Mode: "follow_up", FollowUpDate: "2024-07-01"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusFollowUp, updated.Status)
	assert.Equal(t, "2024-07-01", updated.FollowUpDate)
	assert.Len(t, f.eventsOf("notify.patient_followup"), 1)

	followUps, err := f.store.FollowUps().List(context.Background(), model.FollowUpActive)
	require.NoError(t, err)
	require.Len(t, followUps, 1)
	assert.Equal(t, p.ID, *followUps[0].PatientID)
	assert.Equal(t, 7, followUps[0].DurationDays)

	// discharging from follow-up closes the monitoring record
	_, err = f.svc.Finalize(context.Background(), p.ID, "DOC-0001", &model.FinalizeRequest{Mode: "discharge"})
	require.NoError(t, err)
	followUps, err = f.store.FollowUps().List(context.Background(), model.FollowUpActive)
	require.NoError(t, err)
	assert.Empty(t, followUps)
}

func TestSetPriorityAndAssignNurse(t *testing.T) {
	f := newFixture(t)
	p := f.admit(t, nil)

	updated, err := f.svc.SetPriority(context.Background(), p.ID, "DOC-0001", &model.PriorityRequest{Priority: "stat"})
	require.NoError(t, err)
	assert.Equal(t, model.PriorityStat, updated.Priority)

	_, err = f.svc.AssignNurse(context.Background(), p.ID, "DOC-0001", &model.AssignNurseRequest{NurseID: "NU-9999"})
	assertStatus(t, err, http.StatusBadRequest)

	updated, err = f.svc.AssignNurse(context.Background(), p.ID, "DOC-0001", &model.AssignNurseRequest{NurseID: "nu-0001"})
	require.NoError(t, err)
	assert.Equal(t, "NU-0001", updated.AssignedNurse)

	mine, err := f.svc.List(context.Background(), ListQuery{View: ViewNurse, StaffID: "nu-0001"})
	require.NoError(t, err)
	require.Len(t, mine, 1)

	updated, err = f.svc.AssignNurse(context.Background(), p.ID, "DOC-0001", &model.AssignNurseRequest{})
	require.NoError(t, err)
	assert.Empty(t, updated.AssignedNurse)
}

func TestGetByCode(t *testing.T) {
	f := newFixture(t)
	p := f.admit(t, nil)

	got, err := f.svc.GetByCode(context.Background(), strings.ToLower(p.PatientCode))
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	_, err = f.svc.GetByCode(context.Background(), "PT-9999-999")
	assertStatus(t, err, http.StatusNotFound)
	assert.Equal(t, "Patient ID not found", err.(*apperrors.AppError).Message)
}

func TestListViews(t *testing.T) {
	f := newFixture(t)
	a := f.admit(t, &model.CreatePatientRequest{FirstName: "Ann", LastName: "One"})
	b := f.admit(t, &model.CreatePatientRequest{FirstName: "Bob", LastName: "Two", Priority: "stat"})
	c := f.admit(t, &model.CreatePatientRequest{FirstName: "Cid", LastName: "Three"})
	ctx := context.Background()

	for _, p := range []*model.Patient{a, b} {
		_, err := f.svc.Order(ctx, p.ID, "DOC-0001", &model.OrderRequest{Kind: "lab", Value: "CBC"})
		require.NoError(t, err)
	}
	_, err := f.svc.Finalize(ctx, c.ID, "DOC-0001", &model.FinalizeRequest{Mode: "discharge"})
	require.NoError(t, err)

	ongoing, err := f.svc.List(ctx, ListQuery{View: ViewDoctor, StaffID: "DOC-0001"})
	require.NoError(t, err)
	require.Len(t, ongoing, 2)
	assert.Equal(t, b.ID, ongoing[0].ID, "newest first")

	completed, err := f.svc.List(ctx, ListQuery{View: ViewDoctor, StaffID: "DOC-0001", Tab: TabCompleted})
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, c.ID, completed[0].ID)

	queue, err := f.svc.List(ctx, ListQuery{View: ViewLab})
	require.NoError(t, err)
	require.Len(t, queue, 2)
	assert.Equal(t, b.ID, queue[0].ID, "stat first")

	found, err := f.svc.List(ctx, ListQuery{View: ViewAll, Search: "ann"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, a.ID, found[0].ID)

	_, err = f.svc.List(ctx, ListQuery{View: ViewDoctor, Tab: "archived"})
	assertStatus(t, err, http.StatusBadRequest)
}

func TestListLimitKeepsQueueHead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	older := f.admit(t, &model.CreatePatientRequest{FirstName: "Old", LastName: "Normal"})
	stat := f.admit(t, &model.CreatePatientRequest{FirstName: "New", LastName: "Stat", Priority: "stat"})
	newest := f.admit(t, &model.CreatePatientRequest{FirstName: "Newest", LastName: "Normal"})
	for _, p := range []*model.Patient{older, stat, newest} {
		_, err := f.svc.Order(ctx, p.ID, "DOC-0001", &model.OrderRequest{Kind: "radiology", Value: "MRI"})
		require.NoError(t, err)
	}

	queue, err := f.svc.List(ctx, ListQuery{View: ViewRadiology, Limit: 1})
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, stat.ID, queue[0].ID)

	queue, err = f.svc.List(ctx, ListQuery{View: ViewRadiology, Limit: 2})
	require.NoError(t, err)
	require.Len(t, queue, 2)
	assert.Equal(t, []uuid.UUID{stat.ID, newest.ID}, []uuid.UUID{queue[0].ID, queue[1].ID})

	all, err := f.svc.List(ctx, ListQuery{View: ViewAll, Limit: 1})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, newest.ID, all[0].ID, "newest first before the limit")
}

func TestAdvanceActionIsForwardOnly(t *testing.T) {
	f := newFixture(t)
	p := f.admit(t, nil)
	_, err := f.svc.Order(context.Background(), p.ID, "DOC-0001", &model.OrderRequest{Kind: "radiology", Value: "MRI"})
	require.NoError(t, err)
	queue, err := f.svc.ListDepartmentActions(context.Background(), "radiology", true)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	id := queue[0].ID

	a, err := f.svc.AdvanceAction(context.Background(), id, "Ready")
	require.NoError(t, err)
	assert.Equal(t, model.ActionStatusReady, a.Status)

	_, err = f.svc.AdvanceAction(context.Background(), id, "In Progress")
	assertStatus(t, err, http.StatusUnprocessableEntity)

	_, err = f.svc.AdvanceAction(context.Background(), id, "done")
	assertStatus(t, err, http.StatusBadRequest)

	_, err = f.svc.AdvanceAction(context.Background(), uuid.New(), "Completed")
	assertStatus(t, err, http.StatusNotFound)
}

func TestTasksAndHistory(t *testing.T) {
	f := newFixture(t)
	p := f.admit(t, nil)
	_, err := f.svc.Order(context.Background(), p.ID, "DOC-0001", &model.OrderRequest{Kind: "referral", Value: "Cardiology"})
	require.NoError(t, err)

	tasks, err := f.svc.Tasks(context.Background(), p.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "Doctor Consultation", tasks[0].Title)
	assert.Equal(t, "Specialist Referral", tasks[1].Title)
	assert.Equal(t, "Referral Sent", tasks[1].Status)

	history, err := f.svc.History(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Contains(t, history, "| Doctor | Specialist Referral | Cardiology | Pending")
}

func TestGenerateCode(t *testing.T) {
	code := GenerateCode(time.UnixMilli(1718000001234))
	assert.Regexp(t, `^PT-1234-\d{3}$`, code)
}
