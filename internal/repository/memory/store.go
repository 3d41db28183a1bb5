// Package memory is a process-local Store used by the "memory" database
// driver and by tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/careflow-api/internal/model"
	"github.com/jwalitptl/careflow-api/internal/repository"
)

type deadLetter struct {
	event  model.OutboxEvent
	reason string
}

type Store struct {
	mu  sync.RWMutex
	now func() time.Time

	patients  map[uuid.UUID]*model.Patient
	codes     map[string]uuid.UUID
	actions   map[uuid.UUID]*model.Action
	alerts    map[uuid.UUID]*model.CriticalAlert
	followUps map[uuid.UUID]*model.FollowUpPatient
	checkIns  map[uuid.UUID]*model.CheckInResponse
	outbox    map[uuid.UUID]*model.OutboxEvent
	dead      []deadLetter
}

var _ repository.Store = (*Store)(nil)

type Option func(*Store)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		now:       time.Now,
		patients:  make(map[uuid.UUID]*model.Patient),
		codes:     make(map[string]uuid.UUID),
		actions:   make(map[uuid.UUID]*model.Action),
		alerts:    make(map[uuid.UUID]*model.CriticalAlert),
		followUps: make(map[uuid.UUID]*model.FollowUpPatient),
		checkIns:  make(map[uuid.UUID]*model.CheckInResponse),
		outbox:    make(map[uuid.UUID]*model.OutboxEvent),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Patients() repository.PatientRepository   { return patientRepo{s} }
func (s *Store) Actions() repository.ActionRepository     { return actionRepo{s} }
func (s *Store) Alerts() repository.AlertRepository       { return alertRepo{s} }
func (s *Store) FollowUps() repository.FollowUpRepository { return followUpRepo{s} }
func (s *Store) Outbox() repository.OutboxRepository      { return outboxRepo{s} }

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }
func (s *Store) Close() error                   { return nil }

// Commit validates the whole change before applying any of it.
func (s *Store) Commit(ctx context.Context, c *model.Change) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()

	if c.CreatePatient != nil {
		code := strings.ToUpper(c.CreatePatient.PatientCode)
		if _, dup := s.codes[code]; dup {
			return repository.ErrDuplicateCode
		}
	}
	var current *model.Patient
	if c.UpdatesPatient() {
		var ok bool
		current, ok = s.patients[c.PatientID]
		if !ok {
			return fmt.Errorf("patient %s: %w", c.PatientID, repository.ErrNotFound)
		}
		if c.ExpectedVersion != nil && *c.ExpectedVersion != current.Version {
			return repository.ErrVersionConflict
		}
	}
	for _, u := range c.ActionUpdates {
		a, ok := s.actions[u.ActionID]
		if !ok {
			return fmt.Errorf("action %s: %w", u.ActionID, repository.ErrNotFound)
		}
		if a.Status != u.From {
			return repository.ErrStaleAction
		}
	}
	for _, r := range c.ResolvedAlerts {
		a, ok := s.alerts[r.ID]
		if !ok {
			return fmt.Errorf("alert %s: %w", r.ID, repository.ErrNotFound)
		}
		if a.Resolved {
			return repository.ErrVersionConflict
		}
	}
	for _, f := range c.FollowUpUpdates {
		stored, ok := s.followUps[f.ID]
		if !ok {
			return fmt.Errorf("follow-up %s: %w", f.ID, repository.ErrNotFound)
		}
		// f must be based on the stored row.
		if !stored.UpdatedAt.Equal(f.UpdatedAt) {
			return repository.ErrVersionConflict
		}
	}

	if c.CreatePatient != nil {
		p := *c.CreatePatient
		p.PatientCode = strings.ToUpper(p.PatientCode)
		p.CreatedAt, p.UpdatedAt = now, now
		p.Version = 1
		s.patients[p.ID] = &p
		s.codes[p.PatientCode] = p.ID
		c.Result = clonePatient(&p)
	}
	if current != nil {
		c.PatientUpdate.ApplyTo(current)
		current.Version++
		current.UpdatedAt = now
		c.Result = clonePatient(current)
	}
	for _, a := range c.Actions {
		cp := *a
		s.actions[cp.ID] = &cp
	}
	for _, u := range c.ActionUpdates {
		a := s.actions[u.ActionID]
		a.Status = u.To
		a.UpdatedAt = now
	}
	for _, a := range c.Alerts {
		cp := *a
		s.alerts[cp.ID] = &cp
	}
	for _, r := range c.ResolvedAlerts {
		a := s.alerts[r.ID]
		a.Resolved = true
		a.ResolvedAt = &now
		a.ResolvedBy = r.ResolvedBy
		a.UpdatedAt = now
	}
	for _, f := range c.FollowUps {
		cp := *f
		s.followUps[cp.ID] = &cp
	}
	for _, f := range c.FollowUpUpdates {
		cp := *f
		cp.UpdatedAt = now
		s.followUps[cp.ID] = &cp
	}
	for _, ci := range c.CheckIns {
		cp := *ci
		s.checkIns[cp.ID] = &cp
	}
	for _, e := range c.Events {
		cp := *e
		cp.Status = model.OutboxStatusPending
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = now
		}
		cp.UpdatedAt = now
		s.outbox[cp.ID] = &cp
	}
	return nil
}

// DeadLetters returns the ids of dead-lettered events.
func (s *Store) DeadLetters() []uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(s.dead))
	for _, d := range s.dead {
		ids = append(ids, d.event.ID)
	}
	return ids
}

// Events returns a snapshot of the outbox ordered by creation time.
func (s *Store) Events() []*model.OutboxEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.OutboxEvent, 0, len(s.outbox))
	for _, e := range s.outbox {
		cp := *e
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func clonePatient(p *model.Patient) *model.Patient {
	cp := *p
	return &cp
}
