package journey

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/careflow-api/internal/model"
)

func TestRenderHistoryOldestFirst(t *testing.T) {
	p := waitingPatient()
	t0 := p.CreatedAt
	late := OrderAction(p, OrderPharmacy, "Ibuprofen", "DOC-0001", t0.Add(2*time.Hour))
	early := OrderAction(p, OrderLab, "CBC", "DOC-0001", t0.Add(time.Hour))
	actions := []*model.Action{late, early}

	report := RenderHistory(p, actions)
	lines := strings.Split(strings.TrimSpace(report), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Care history for Ada Lovelace (PT-1234-567)", lines[0])
	assert.Equal(t, "2026-03-01 10:00 | Lab | Lab Test Ordered | CBC | Pending", lines[1])
	assert.Equal(t, "2026-03-01 11:00 | Pharmacy | Medication Prescribed | Ibuprofen | Pending", lines[2])

	assert.Same(t, late, actions[0], "input order is preserved")
}

func TestRenderHistoryEmpty(t *testing.T) {
	report := RenderHistory(waitingPatient(), nil)
	assert.Contains(t, report, "No recorded actions.")
}

func TestNextForOrder(t *testing.T) {
	p := waitingPatient()
	t0 := p.CreatedAt
	older := OrderAction(p, OrderLab, "CBC", "DOC-0001", t0)
	newer := OrderAction(p, OrderLab, "Lipids", "DOC-0001", t0.Add(time.Minute))
	pharmacy := OrderAction(p, OrderPharmacy, "Aspirin", "DOC-0001", t0.Add(2*time.Minute))
	actions := []*model.Action{older, newer, pharmacy}

	upd, ok := NextForOrder(actions, model.DepartmentLab, model.SubStatusProcessing)
	require.True(t, ok)
	assert.Equal(t, newer.ID, upd.ActionID)
	assert.Equal(t, model.ActionStatusProcessing, upd.To)

	newer.Status = model.ActionStatusProcessing
	_, ok = NextForOrder(actions, model.DepartmentLab, model.SubStatusPending)
	assert.False(t, ok, "backwards moves are never produced")

	_, ok = NextForOrder(actions, model.DepartmentRadiology, model.SubStatusCompleted)
	assert.False(t, ok)
}
