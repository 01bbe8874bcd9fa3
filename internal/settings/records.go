package settings

import (
	"strings"

	"github.com/samber/lo"
)

const (
	// MaxHistory is the number of distinct values remembered per app.
	MaxHistory = 10

	// DraftSlots is the number of candidate inputs per app.
	DraftSlots = 2
)

// OverrideRecord is the per-app override state.
type OverrideRecord struct {
	// Override is the committed override value. Empty means none.
	Override  string   `json:"override"`
	Input1    string   `json:"input_1"`
	Input2    string   `json:"input_2"`
	Selection int      `json:"selection"`
	Values    []string `json:"values"`
}

// Drafts returns both draft inputs.
func (r OverrideRecord) Drafts() [DraftSlots]string {
	return [DraftSlots]string{r.Input1, r.Input2}
}

// Draft returns the draft input in slot.
func (r OverrideRecord) Draft(slot int) string {
	if slot == 1 {
		return r.Input2
	}
	return r.Input1
}

// SelectedDraft returns the draft input picked by Selection.
func (r OverrideRecord) SelectedDraft() string {
	return r.Draft(r.Selection)
}

func (r OverrideRecord) withDraft(slot int, value string) OverrideRecord {
	if slot == 1 {
		r.Input2 = value
	} else {
		r.Input1 = value
	}
	return r
}

// withCommittedDrafts appends every trimmed, non-empty draft not already in
// the history and evicts the oldest entries beyond MaxHistory.
func (r OverrideRecord) withCommittedDrafts() OverrideRecord {
	values := append([]string(nil), r.Values...)
	for _, input := range r.Drafts() {
		v := strings.TrimSpace(input)
		if v == "" || lo.Contains(values, v) {
			continue
		}
		values = append(values, v)
		if len(values) > MaxHistory {
			values = values[1:]
		}
	}
	r.Values = values
	return r
}

func (r OverrideRecord) clone() OverrideRecord {
	r.Values = append([]string(nil), r.Values...)
	return r
}
