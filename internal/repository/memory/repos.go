package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/careflow-api/internal/model"
	"github.com/jwalitptl/careflow-api/internal/repository"
)

type patientRepo struct{ s *Store }

func (r patientRepo) Get(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.patients[id]
	if !ok {
		return nil, fmt.Errorf("patient %s: %w", id, repository.ErrNotFound)
	}
	return clonePatient(p), nil
}

func (r patientRepo) GetByCode(ctx context.Context, code string) (*model.Patient, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	id, ok := r.s.codes[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return nil, fmt.Errorf("patient code %s: %w", code, repository.ErrNotFound)
	}
	return clonePatient(r.s.patients[id]), nil
}

// List returns matches in filter.Order, then applies the limit.
func (r patientRepo) List(ctx context.Context, filter model.PatientFilter) ([]*model.Patient, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*model.Patient, 0)
	for _, p := range r.s.patients {
		if filter.Matches(p) {
			out = append(out, clonePatient(p))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return filter.Order.Less(out[i], out[j]) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

type actionRepo struct{ s *Store }

func (r actionRepo) Get(ctx context.Context, id uuid.UUID) (*model.Action, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	a, ok := r.s.actions[id]
	if !ok {
		return nil, fmt.Errorf("action %s: %w", id, repository.ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

func (r actionRepo) List(ctx context.Context, filter model.ActionFilter) ([]*model.Action, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*model.Action, 0)
	for _, a := range r.s.actions {
		if filter.Matches(a) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type alertRepo struct{ s *Store }

func (r alertRepo) Get(ctx context.Context, id uuid.UUID) (*model.CriticalAlert, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	a, ok := r.s.alerts[id]
	if !ok {
		return nil, fmt.Errorf("alert %s: %w", id, repository.ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

func (r alertRepo) ListUnresolved(ctx context.Context) ([]*model.CriticalAlert, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*model.CriticalAlert, 0)
	for _, a := range r.s.alerts {
		if !a.Resolved {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type followUpRepo struct{ s *Store }

func (r followUpRepo) Get(ctx context.Context, id uuid.UUID) (*model.FollowUpPatient, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	f, ok := r.s.followUps[id]
	if !ok {
		return nil, fmt.Errorf("follow-up %s: %w", id, repository.ErrNotFound)
	}
	cp := *f
	return &cp, nil
}

func (r followUpRepo) List(ctx context.Context, status model.FollowUpStatus) ([]*model.FollowUpPatient, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*model.FollowUpPatient, 0)
	for _, f := range r.s.followUps {
		if status == "" || f.Status == status {
			cp := *f
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r followUpRepo) ListCheckIns(ctx context.Context, followUpID uuid.UUID) ([]*model.CheckInResponse, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*model.CheckInResponse, 0)
	for _, c := range r.s.checkIns {
		if c.FollowUpID == followUpID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

type outboxRepo struct{ s *Store }

func (r outboxRepo) ClaimPending(ctx context.Context, limit int, lease time.Duration) ([]*model.OutboxEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.now().UTC()

	candidates := make([]*model.OutboxEvent, 0)
	for _, e := range r.s.outbox {
		if e.Claimable(now) {
			candidates = append(candidates, e)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].CreatedAt.Before(candidates[j].CreatedAt) })
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	until := now.Add(lease)
	out := make([]*model.OutboxEvent, 0, len(candidates))
	for _, e := range candidates {
		e.Status = model.OutboxStatusProcessing
		e.LockedUntil = &until
		e.UpdatedAt = now
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (r outboxRepo) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.outbox[id]
	if !ok {
		return fmt.Errorf("outbox event %s: %w", id, repository.ErrNotFound)
	}
	now := r.s.now().UTC()
	e.Status = model.OutboxStatusProcessed
	e.ProcessedAt = &now
	e.LockedUntil = nil
	e.ErrorMessage = nil
	e.UpdatedAt = now
	return nil
}

func (r outboxRepo) MarkRetry(ctx context.Context, id uuid.UUID, retryCount int, retryAt time.Time, errMsg string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.outbox[id]
	if !ok {
		return fmt.Errorf("outbox event %s: %w", id, repository.ErrNotFound)
	}
	e.Status = model.OutboxStatusRetry
	e.RetryCount = retryCount
	e.RetryAt = &retryAt
	e.LockedUntil = nil
	e.ErrorMessage = &errMsg
	e.UpdatedAt = r.s.now().UTC()
	return nil
}

func (r outboxRepo) MoveToDeadLetter(ctx context.Context, event *model.OutboxEvent, errMsg string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.outbox[event.ID]
	if !ok {
		return fmt.Errorf("outbox event %s: %w", event.ID, repository.ErrNotFound)
	}
	e.Status = model.OutboxStatusFailed
	e.RetryCount = event.RetryCount
	e.ErrorMessage = &errMsg
	e.LockedUntil = nil
	e.UpdatedAt = r.s.now().UTC()
	r.s.dead = append(r.s.dead, deadLetter{event: *e, reason: errMsg})
	return nil
}

func (r outboxRepo) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, e := range r.s.outbox {
		if e.Status == model.OutboxStatusProcessed && e.ProcessedAt != nil && e.ProcessedAt.Before(before) {
			delete(r.s.outbox, id)
			n++
		}
	}
	return n, nil
}

func (r outboxRepo) CountPending(ctx context.Context) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	n := 0
	for _, e := range r.s.outbox {
		switch e.Status {
		case model.OutboxStatusPending, model.OutboxStatusRetry, model.OutboxStatusProcessing:
			n++
		}
	}
	return n, nil
}
