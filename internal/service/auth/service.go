package auth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/careflow-api/config"
	"github.com/jwalitptl/careflow-api/internal/model"
	"github.com/jwalitptl/careflow-api/pkg/auth"
	apperrors "github.com/jwalitptl/careflow-api/pkg/errors"
	"github.com/jwalitptl/careflow-api/pkg/logger"
	"github.com/jwalitptl/careflow-api/pkg/metrics"
	"github.com/jwalitptl/careflow-api/pkg/security"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// PatientLookup resolves patient codes for patient logins.
type PatientLookup interface {
	GetByCode(ctx context.Context, code string) (*model.Patient, error)
}

type Options struct {
	StaffTTL         time.Duration
	PatientTTL       time.Duration
	MaxLoginAttempts int
	LockoutDuration  time.Duration
}

type Service struct {
	roster   map[model.Role]map[string]model.StaffMember
	jwtSvc   auth.JWTService
	hasher   security.PasswordHasher
	patients PatientLookup
	failures *cache.Cache
	opts     Options
	logger   *logger.Logger
	metrics  *metrics.Metrics
}

func NewService(roster map[string][]config.StaffEntry, jwtSvc auth.JWTService, hasher security.PasswordHasher,
	patients PatientLookup, opts Options, log *logger.Logger, m *metrics.Metrics) (*Service, error) {
	if opts.MaxLoginAttempts <= 0 {
		opts.MaxLoginAttempts = 5
	}
	if opts.LockoutDuration <= 0 {
		opts.LockoutDuration = 15 * time.Minute
	}
	if opts.StaffTTL <= 0 {
		opts.StaffTTL = 12 * time.Hour
	}
	if opts.PatientTTL <= 0 {
		opts.PatientTTL = 24 * time.Hour
	}

	table := make(map[model.Role]map[string]model.StaffMember, len(roster))
	for name, entries := range roster {
		role, err := model.ParseStaffRole(name)
		if err != nil {
			return nil, fmt.Errorf("roster: %w", err)
		}
		members := make(map[string]model.StaffMember, len(entries))
		for _, e := range entries {
			id := strings.ToUpper(strings.TrimSpace(e.ID))
			if id == "" {
				return nil, fmt.Errorf("roster: empty staff id for role %s", role)
			}
			members[id] = model.StaffMember{ID: id, Name: e.Name, PasscodeHash: e.PasscodeHash}
		}
		table[role] = members
	}

	return &Service{
		roster:   table,
		jwtSvc:   jwtSvc,
		hasher:   hasher,
		patients: patients,
		failures: cache.New(opts.LockoutDuration, opts.LockoutDuration),
		opts:     opts,
		logger:   log,
		metrics:  m,
	}, nil
}

// SetPatientLookup wires the patient service once it exists.
func (s *Service) SetPatientLookup(p PatientLookup) {
	s.patients = p
}

// HasStaff reports whether id is on the roster for role. IDs match
// case-insensitively.
func (s *Service) HasStaff(role model.Role, id string) bool {
	_, ok := s.roster[role][strings.ToUpper(strings.TrimSpace(id))]
	return ok
}

// Staff lists a role's roster ordered by ID.
func (s *Service) Staff(role model.Role) []model.StaffMember {
	out := make([]model.StaffMember, 0, len(s.roster[role]))
	for _, m := range s.roster[role] {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func lockKey(role model.Role, id string) string {
	return string(role) + ":" + id
}

func (s *Service) locked(key string) bool {
	n, ok := s.failures.Get(key)
	return ok && n.(int) >= s.opts.MaxLoginAttempts
}

func (s *Service) recordFailure(key string) {
	if err := s.failures.Add(key, 1, cache.DefaultExpiration); err != nil {
		// the counter exists; lockout runs from the first failure
		_, _ = s.failures.IncrementInt(key, 1)
	}
}

// Login authenticates a staff member against the roster. Members without a
// passcode hash log in with their ID alone.
func (s *Service) Login(ctx context.Context, req *model.LoginRequest) (*model.TokenResponse, error) {
	role, err := model.ParseStaffRole(req.Role)
	if err != nil {
		return nil, apperrors.BadRequest(err.Error(), err)
	}
	id := strings.ToUpper(strings.TrimSpace(req.StaffID))
	key := lockKey(role, id)
	log := s.logger.WithContext(ctx)

	if s.locked(key) {
		s.metrics.LoginAttempts.WithLabelValues(string(role), "locked").Inc()
		log.Warn("Login attempt on locked staff ID", "role", string(role), "staff_id", id)
		return nil, apperrors.TooManyRequests("too many failed attempts, please try again later")
	}

	member, ok := s.roster[role][id]
	if !ok || (member.PasscodeHash != "" && s.hasher.Compare(member.PasscodeHash, req.Passcode) != nil) {
		s.recordFailure(key)
		s.metrics.LoginAttempts.WithLabelValues(string(role), "failure").Inc()
		log.Info("Login failed", "role", string(role), "staff_id", id)
		return nil, apperrors.Unauthorized(ErrInvalidCredentials)
	}
	s.failures.Delete(key)

	token, expiresAt, err := s.jwtSvc.GenerateToken(model.Principal{Role: role, Subject: member.ID, Name: member.Name}, s.opts.StaffTTL)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	s.metrics.LoginAttempts.WithLabelValues(string(role), "success").Inc()
	return &model.TokenResponse{
		AccessToken: token,
		ExpiresAt:   expiresAt.Unix(),
		Role:        role,
		Subject:     member.ID,
		Name:        member.Name,
	}, nil
}

// PatientLogin issues a patient-scoped token for a patient code.
func (s *Service) PatientLogin(ctx context.Context, req *model.PatientLoginRequest) (*model.TokenResponse, error) {
	code := strings.ToUpper(strings.TrimSpace(req.PatientCode))
	key := lockKey(model.RolePatient, code)
	if s.locked(key) {
		s.metrics.LoginAttempts.WithLabelValues(string(model.RolePatient), "locked").Inc()
		return nil, apperrors.TooManyRequests("too many failed attempts, please try again later")
	}

	p, err := s.patients.GetByCode(ctx, code)
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrNotFound) {
			s.recordFailure(key)
			s.metrics.LoginAttempts.WithLabelValues(string(model.RolePatient), "failure").Inc()
		}
		return nil, err
	}

	token, expiresAt, err := s.jwtSvc.GenerateToken(model.Principal{
		Role:    model.RolePatient,
		Subject: p.ID.String(),
		Name:    p.FullName(),
	}, s.opts.PatientTTL)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	s.metrics.LoginAttempts.WithLabelValues(string(model.RolePatient), "success").Inc()
	return &model.TokenResponse{
		AccessToken: token,
		ExpiresAt:   expiresAt.Unix(),
		Role:        model.RolePatient,
		Subject:     p.ID.String(),
		Name:        p.FullName(),
	}, nil
}

func (s *Service) ValidateToken(token string) (*model.Principal, error) {
	claims, err := s.jwtSvc.ValidateToken(token)
	if err != nil {
		return nil, apperrors.Unauthorized(err)
	}
	p := claims.Principal()
	return &p, nil
}
