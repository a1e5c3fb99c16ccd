// File: api/schemas/request.go
package schemas

import (
	"fmt"
	"strings"
)

// Mode selects the simplification style requested by the user.
type Mode string

const (
	ModeSimple    Mode = "simple"
	ModeShort     Mode = "short"
	ModeKeyPoints Mode = "key_points"
	ModeExamples  Mode = "examples"
)

// PremiumModes are locked on the free plan tier.
var PremiumModes = map[Mode]bool{
	ModeKeyPoints: true,
	ModeExamples:  true,
}

// KnownModes lists every mode the backend accepts.
var KnownModes = []Mode{ModeSimple, ModeShort, ModeKeyPoints, ModeExamples}

// Unlocked reports whether the mode is available on the given plan tier.
func (m Mode) Unlocked(planID string) bool {
	if !PremiumModes[m] {
		return true
	}
	return planID != "" && planID != PlanFree
}

// SelectionRequest describes one simplification request. It is created when the
// user invokes the action and consumed exactly once by the stream orchestrator.
type SelectionRequest struct {
	Text      string `json:"text"`
	Mode      Mode   `json:"mode"`
	SourceURL string `json:"url"`
	Language  string `json:"language,omitempty"`
}

// Validate rejects requests that would never be accepted by the backend.
func (r SelectionRequest) Validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return fmt.Errorf("selection text is empty")
	}
	for _, m := range KnownModes {
		if r.Mode == m {
			return nil
		}
	}
	return fmt.Errorf("unknown simplification mode %q", r.Mode)
}
