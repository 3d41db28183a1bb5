package journey

import (
	"fmt"
	"strings"

	"github.com/jwalitptl/careflow-api/internal/model"
)

const reportTimeLayout = "2006-01-02 15:04"

// RenderHistory concatenates a patient's actions, oldest first, one line per
// action. The input slice is not reordered.
func RenderHistory(p *model.Patient, actions []*model.Action) string {
	ordered := make([]*model.Action, len(actions))
	copy(ordered, actions)
	SortActionsOldestFirst(ordered)

	var b strings.Builder
	fmt.Fprintf(&b, "Care history for %s (%s)\n", p.FullName(), p.PatientCode)
	if len(ordered) == 0 {
		b.WriteString("No recorded actions.\n")
		return b.String()
	}
	for _, a := range ordered {
		fmt.Fprintf(&b, "%s | %s | %s | %s | %s\n",
			a.CreatedAt.UTC().Format(reportTimeLayout), a.Department, a.Type, a.Description, a.Status)
	}
	return b.String()
}
