package journey

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/careflow-api/internal/model"
)

func waitingPatient() *model.Patient {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return &model.Patient{
		Base:              model.Base{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		PatientCode:       "PT-1234-567",
		FirstName:         "Ada",
		LastName:          "Lovelace",
		Status:            model.StatusWaiting,
		Priority:          model.PriorityNormal,
		ConsultancyStatus: model.SubStatusPending,
	}
}

func TestApplyOrderLab(t *testing.T) {
	p := waitingPatient()
	p.RadiologyTest = "Chest X-ray"
	p.RadiologyStatus = model.SubStatusProcessing

	u, err := ApplyOrder(p, OrderLab, "CBC")
	require.NoError(t, err)

	require.NotNil(t, u.Status)
	assert.Equal(t, model.StatusLabOrdered, *u.Status)
	assert.Equal(t, "CBC", *u.LabTest)
	assert.Equal(t, model.SubStatusPending, *u.LabStatus)
	assert.Nil(t, u.RadiologyTest)
	assert.Nil(t, u.RadiologyStatus)
	assert.Nil(t, u.Medication)
	assert.Nil(t, u.PharmacyStatus)

	u.ApplyTo(p)
	assert.Equal(t, "Chest X-ray", p.RadiologyTest)
	assert.Equal(t, model.SubStatusProcessing, p.RadiologyStatus)
}

func TestApplyOrderKinds(t *testing.T) {
	tests := []struct {
		kind   OrderKind
		status model.PatientStatus
		check  func(t *testing.T, p *model.Patient)
	}{
		{OrderRadiology, model.StatusRadiologyOrdered, func(t *testing.T, p *model.Patient) {
			assert.Equal(t, "  MRI brain ", p.RadiologyTest)
			assert.Equal(t, model.SubStatusPending, p.RadiologyStatus)
		}},
		{OrderPharmacy, model.StatusPharmacyOrdered, func(t *testing.T, p *model.Patient) {
			assert.Equal(t, "  MRI brain ", p.Medication)
			assert.Equal(t, model.SubStatusPending, p.PharmacyStatus)
		}},
		{OrderReferral, model.StatusReferred, func(t *testing.T, p *model.Patient) {
			assert.Equal(t, "  MRI brain ", p.ReferredTo)
		}},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			p := waitingPatient()
			u, err := ApplyOrder(p, tt.kind, "  MRI brain ")
			require.NoError(t, err)
			u.ApplyTo(p)
			assert.Equal(t, tt.status, p.Status)
			tt.check(t, p)
		})
	}
}

func TestApplyOrderRejectsBlankValue(t *testing.T) {
	u, err := ApplyOrder(waitingPatient(), OrderLab, "   ")
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.True(t, u.IsEmpty())
}

func TestApplyOrderOnCompletedPatientIsIllegal(t *testing.T) {
	p := waitingPatient()
	p.Status = model.StatusCompleted

	_, err := ApplyOrder(p, OrderLab, "CBC")
	var tErr *IllegalTransitionError
	require.True(t, errors.As(err, &tErr))
	assert.Equal(t, model.StatusCompleted, tErr.From)
	assert.Equal(t, IntentOrder, tErr.Intent)
}

func TestAdvanceSubStatusLeavesStatus(t *testing.T) {
	p := waitingPatient()
	p.Status = model.StatusLabOrdered
	p.LabStatus = model.SubStatusPending

	u, err := AdvanceSubStatus(p, SubLab, model.SubStatusCompleted)
	require.NoError(t, err)
	assert.Nil(t, u.Status)
	assert.Equal(t, model.SubStatusCompleted, *u.LabStatus)
}

func TestAdvanceSubStatusValidation(t *testing.T) {
	_, err := AdvanceSubStatus(waitingPatient(), SubLab, model.SubStatus("done"))
	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)

	_, err = AdvanceSubStatus(waitingPatient(), SubStatusKind("billing"), model.SubStatusPending)
	assert.ErrorAs(t, err, &vErr)
}

func TestFinalizeDischarge(t *testing.T) {
	p := waitingPatient()
	p.Status = model.StatusUnderTreatment

	u, err := Finalize(p, FinalizeDischarge, "")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, *u.Status)
	assert.Equal(t, model.SubStatusCompleted, *u.ConsultancyStatus)
	assert.Nil(t, u.FollowUpDate)
}

func TestFinalizeFollowUpRequiresDate(t *testing.T) {
	for _, date := range []string{"", "  ", "next tuesday", "2026/03/04"} {
		u, err := Finalize(waitingPatient(), FinalizeFollowUp, date)
		var vErr *ValidationError
		assert.ErrorAs(t, err, &vErr, date)
		assert.True(t, u.IsEmpty(), date)
	}

	u, err := Finalize(waitingPatient(), FinalizeFollowUp, "2026-03-08")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFollowUp, *u.Status)
	assert.Equal(t, "2026-03-08", *u.FollowUpDate)
	assert.Equal(t, model.SubStatusCompleted, *u.ConsultancyStatus)
}

func TestFinalizeFromFollowUp(t *testing.T) {
	p := waitingPatient()
	p.Status = model.StatusFollowUp

	_, err := Finalize(p, FinalizeDischarge, "")
	assert.NoError(t, err)

	_, err = Finalize(p, FinalizeFollowUp, "2026-04-01")
	var tErr *IllegalTransitionError
	assert.ErrorAs(t, err, &tErr)
}

func TestCompletedIsTerminal(t *testing.T) {
	p := waitingPatient()
	p.Status = model.StatusCompleted
	var tErr *IllegalTransitionError

	_, err := Finalize(p, FinalizeDischarge, "")
	assert.ErrorAs(t, err, &tErr)
	_, err = SetStatus(p, model.StatusCritical)
	assert.ErrorAs(t, err, &tErr)
	_, err = AssignNurse(p, "NU-0001")
	assert.ErrorAs(t, err, &tErr)
	_, err = AdvanceSubStatus(p, SubLab, model.SubStatusCompleted)
	assert.ErrorAs(t, err, &tErr)
}

func TestRevertOrder(t *testing.T) {
	p := waitingPatient()
	u, err := ApplyOrder(p, OrderRadiology, "CT abdomen")
	require.NoError(t, err)
	u.ApplyTo(p)

	u, err = RevertOrder(p, OrderRadiology)
	require.NoError(t, err)
	u.ApplyTo(p)

	assert.Equal(t, model.StatusWaiting, p.Status)
	assert.Empty(t, p.RadiologyTest)
	assert.Equal(t, model.SubStatusNone, p.RadiologyStatus)
}

func TestRevertOrderKeepsStatusOfLaterOrder(t *testing.T) {
	p := waitingPatient()
	for _, step := range []struct {
		kind  OrderKind
		value string
	}{{OrderLab, "CBC"}, {OrderPharmacy, "Amoxicillin"}} {
		u, err := ApplyOrder(p, step.kind, step.value)
		require.NoError(t, err)
		u.ApplyTo(p)
	}

	u, err := RevertOrder(p, OrderLab)
	require.NoError(t, err)
	assert.Nil(t, u.Status)
	u.ApplyTo(p)
	assert.Equal(t, model.StatusPharmacyOrdered, p.Status)
	assert.Empty(t, p.LabTest)
}

func TestRevertWithoutOrder(t *testing.T) {
	_, err := RevertOrder(waitingPatient(), OrderPharmacy)
	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestSetStatus(t *testing.T) {
	p := waitingPatient()
	u, err := SetStatus(p, model.StatusUnderTreatment)
	require.NoError(t, err)
	assert.Equal(t, model.StatusUnderTreatment, *u.Status)
	assert.Equal(t, model.SubStatusProcessing, *u.ConsultancyStatus)

	_, err = SetStatus(p, model.StatusCompleted)
	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestSetPriority(t *testing.T) {
	u, err := SetPriority(waitingPatient(), model.PriorityStat)
	require.NoError(t, err)
	assert.Equal(t, model.PriorityStat, *u.Priority)

	_, err = SetPriority(waitingPatient(), model.Priority("asap"))
	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestAssignNurseCanonicalisesID(t *testing.T) {
	u, err := AssignNurse(waitingPatient(), " nu-0002 ")
	require.NoError(t, err)
	assert.Equal(t, "NU-0002", *u.AssignedNurse)

	u, err = AssignNurse(waitingPatient(), "")
	require.NoError(t, err)
	assert.Equal(t, "", *u.AssignedNurse)
}

func TestParseKinds(t *testing.T) {
	k, err := ParseOrderKind("Radiology")
	require.NoError(t, err)
	assert.Equal(t, OrderRadiology, k)

	_, err = ParseOrderKind("surgery")
	assert.Error(t, err)

	s, err := ParseSubStatusKind("CONSULTANCY")
	require.NoError(t, err)
	assert.Equal(t, SubConsultancy, s)
}

func TestOngoingView(t *testing.T) {
	assert.True(t, IsOngoing(model.StatusCritical))
	assert.False(t, IsOngoing(model.StatusFollowUp))
	assert.False(t, IsOngoing(model.StatusCompleted))
}

func TestIntentLabel(t *testing.T) {
	assert.Equal(t, "revert_order", IntentRevertOrder.Label())
	assert.Equal(t, "admit", Intent("admit").Label())
}
