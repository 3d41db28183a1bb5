package event

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/careflow-api/internal/model"
	"github.com/jwalitptl/careflow-api/pkg/logger"
)

var fixed = time.Date(2024, 5, 2, 9, 30, 0, 0, time.UTC)

func newService() *EventService {
	return NewEventService(func() time.Time { return fixed })
}

func TestChanged(t *testing.T) {
	id := uuid.New()
	e := newService().Changed(context.Background(), model.CollectionPatients, OpUpdate, id)

	assert.Equal(t, "change.patients", e.EventType)
	assert.Equal(t, "change.", e.Kind())
	assert.Equal(t, model.OutboxStatusPending, e.Status)
	assert.Equal(t, fixed, e.CreatedAt)

	var notice model.ChangeNotice
	require.NoError(t, json.Unmarshal(e.Payload, &notice))
	assert.Equal(t, model.ChangeNotice{Collection: "patients", RecordID: id, Operation: "update", At: fixed}, notice)
}

func TestNotifyCarriesRequestID(t *testing.T) {
	ctx := context.WithValue(context.Background(), logger.RequestIDKey, "req-42")
	id := uuid.New()

	e, err := newService().Notify(ctx, PatientIntake, id, map[string]interface{}{"name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "notify.patient_intake", e.EventType)
	assert.Equal(t, "req-42", e.Headers[HeaderRequestID])

	var body model.NotificationPayload
	require.NoError(t, json.Unmarshal(e.Payload, &body))
	assert.Equal(t, PatientIntake, body.EventType)
	assert.Equal(t, id.String(), body.PatientID)
	assert.Equal(t, "Ada", body.Payload["name"])
}

func TestNotifyWithoutPatient(t *testing.T) {
	e, err := newService().Notify(context.Background(), CriticalAlert, uuid.Nil, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event_type":"critical_alert","patient_id":"","payload":{}}`, string(e.Payload))
	assert.Empty(t, e.Headers)
}

func TestEmail(t *testing.T) {
	s := newService()
	_, err := s.Email(context.Background(), DischargeEmailName, model.EmailMessage{Subject: "x"})
	assert.Error(t, err)

	e, err := s.Email(context.Background(), DischargeEmailName, model.EmailMessage{To: "a@b.c", Subject: "s", Body: "b"})
	require.NoError(t, err)
	assert.Equal(t, "email.discharge_summary", e.EventType)
	assert.Equal(t, "discharge_summary", e.Name())
}

func TestAnnounce(t *testing.T) {
	patientID := uuid.New()
	status := model.StatusCritical
	change := &model.Change{
		PatientID:     patientID,
		PatientUpdate: model.PatientUpdate{Status: &status},
		Actions:       []*model.Action{{Base: model.Base{ID: uuid.New()}}},
		ActionUpdates: []model.ActionStatusUpdate{{ActionID: uuid.New()}},
		Alerts:        []*model.CriticalAlert{{Base: model.Base{ID: uuid.New()}}},
	}
	newService().Announce(context.Background(), change)

	var got []string
	for _, e := range change.Events {
		var n model.ChangeNotice
		require.NoError(t, json.Unmarshal(e.Payload, &n))
		got = append(got, n.Collection+"/"+n.Operation)
	}
	assert.Equal(t, []string{"patients/update", "actions/create", "actions/update", "critical_alerts/create"}, got)
}

func TestAnnounceSkipsEmptyPatientUpdate(t *testing.T) {
	change := &model.Change{PatientID: uuid.New()}
	newService().Announce(context.Background(), change)
	assert.Empty(t, change.Events)
}
