package auth

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jwalitptl/careflow-api/config"
	"github.com/jwalitptl/careflow-api/internal/model"
	"github.com/jwalitptl/careflow-api/pkg/auth"
	apperrors "github.com/jwalitptl/careflow-api/pkg/errors"
	"github.com/jwalitptl/careflow-api/pkg/logger"
	"github.com/jwalitptl/careflow-api/pkg/metrics"
	"github.com/jwalitptl/careflow-api/pkg/security"
)

type patientsByCode map[string]*model.Patient

func (p patientsByCode) GetByCode(ctx context.Context, code string) (*model.Patient, error) {
	if pt, ok := p[strings.ToUpper(code)]; ok {
		return pt, nil
	}
	return nil, apperrors.NotFound("Patient ID", nil)
}

func newService(t *testing.T, patients PatientLookup) (*Service, *metrics.Metrics) {
	t.Helper()
	hasher := security.NewBcryptHasher(bcrypt.MinCost)
	hash, err := hasher.Hash("2468")
	require.NoError(t, err)

	roster := map[string][]config.StaffEntry{
		"doctor": {{ID: "doc-0001", Name: "Dr. Grey", PasscodeHash: hash}},
		"nurse":  {{ID: "NU-0002", Name: "Nurse Joy"}, {ID: "NU-0001", Name: "Nurse Ann"}},
	}
	m := metrics.NewMetrics("test", prometheus.NewRegistry())
	svc, err := NewService(roster, auth.NewJWTService("secret", "careflow-api", nil), hasher, patients,
		Options{MaxLoginAttempts: 3, LockoutDuration: time.Minute}, logger.Nop(), m)
	require.NoError(t, err)
	return svc, m
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	appErr, ok := apperrors.As(err)
	require.True(t, ok, "expected AppError, got %v", err)
	return appErr.Code.HTTPStatus()
}

func TestRoster(t *testing.T) {
	svc, _ := newService(t, nil)
	assert.True(t, svc.HasStaff(model.RoleDoctor, "DOC-0001"))
	assert.True(t, svc.HasStaff(model.RoleNurse, " nu-0001 "))
	assert.False(t, svc.HasStaff(model.RoleLab, "NU-0001"))

	nurses := svc.Staff(model.RoleNurse)
	require.Len(t, nurses, 2)
	assert.Equal(t, "NU-0001", nurses[0].ID)
}

func TestNewServiceRejectsUnknownRole(t *testing.T) {
	_, err := NewService(map[string][]config.StaffEntry{"janitor": {{ID: "J-1"}}},
		auth.NewJWTService("s", "i", nil), security.NewBcryptHasher(bcrypt.MinCost), nil, Options{}, logger.Nop(), nil)
	assert.Error(t, err)
}

func TestLogin(t *testing.T) {
	svc, m := newService(t, nil)

	resp, err := svc.Login(context.Background(), &model.LoginRequest{Role: "doctor", StaffID: "doc-0001", Passcode: "2468"})
	require.NoError(t, err)
	assert.Equal(t, "DOC-0001", resp.Subject)
	assert.Equal(t, model.RoleDoctor, resp.Role)

	principal, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, model.Principal{Role: model.RoleDoctor, Subject: "DOC-0001", Name: "Dr. Grey"}, *principal)

	// roster members without a passcode sign in with their ID
	_, err = svc.Login(context.Background(), &model.LoginRequest{Role: "nurse", StaffID: "nu-0002"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LoginAttempts.WithLabelValues("nurse", "success")))
}

func TestLoginFailuresLockOut(t *testing.T) {
	svc, m := newService(t, nil)
	ctx := context.Background()
	bad := &model.LoginRequest{Role: "doctor", StaffID: "DOC-0001", Passcode: "0000"}

	for i := 0; i < 3; i++ {
		_, err := svc.Login(ctx, bad)
		assert.Equal(t, http.StatusUnauthorized, statusOf(t, err))
	}
	_, err := svc.Login(ctx, &model.LoginRequest{Role: "doctor", StaffID: "DOC-0001", Passcode: "2468"})
	assert.Equal(t, http.StatusTooManyRequests, statusOf(t, err))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.LoginAttempts.WithLabelValues("doctor", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LoginAttempts.WithLabelValues("doctor", "locked")))
}

func TestLoginWrongRole(t *testing.T) {
	svc, _ := newService(t, nil)
	_, err := svc.Login(context.Background(), &model.LoginRequest{Role: "lab", StaffID: "DOC-0001", Passcode: "2468"})
	assert.Equal(t, http.StatusUnauthorized, statusOf(t, err))

	_, err = svc.Login(context.Background(), &model.LoginRequest{Role: "admin", StaffID: "DOC-0001"})
	assert.Equal(t, http.StatusBadRequest, statusOf(t, err))
}

func TestPatientLogin(t *testing.T) {
	p := &model.Patient{Base: model.Base{ID: uuid.New()}, PatientCode: "PT-1234-567", FirstName: "Ada", LastName: "L"}
	svc, _ := newService(t, patientsByCode{"PT-1234-567": p})

	resp, err := svc.PatientLogin(context.Background(), &model.PatientLoginRequest{PatientCode: "pt-1234-567"})
	require.NoError(t, err)
	assert.Equal(t, model.RolePatient, resp.Role)
	assert.Equal(t, p.ID.String(), resp.Subject)

	principal, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, model.RolePatient, principal.Role)

	_, err = svc.PatientLogin(context.Background(), &model.PatientLoginRequest{PatientCode: "PT-0000-000"})
	require.Error(t, err)
	assert.Equal(t, "Patient ID not found", err.Error())
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	svc, _ := newService(t, nil)
	_, err := svc.ValidateToken("garbage")
	assert.Equal(t, http.StatusUnauthorized, statusOf(t, err))
}
