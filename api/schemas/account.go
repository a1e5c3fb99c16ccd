// File: api/schemas/account.go
// Description: Account, subscription and history shapes as served by the backend.
// These mirror the backend's JSON contract; staleness of cached copies is
// acceptable and always superseded by a live fetch.

package schemas

import "time"

// Plan tier identifiers as issued by the backend.
const (
	PlanFree     = "free"
	PlanGo       = "go"
	PlanGoPro    = "go_pro"
	PlanGoProPls = "go_pro_plus"
)

// Profile is the identity-provider view of the signed-in user.
type Profile struct {
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
}

// Subscription is the backend /me response.
type Subscription struct {
	PlanID            string `json:"plan_id"`
	PlanName          string `json:"plan_name"`
	RequestsUsed      int    `json:"requests_used"`
	MaxRequests       int    `json:"max_requests"`
	AISettingsEnabled bool   `json:"ai_settings_enabled"`
}

// Remaining returns the request budget left on the current plan.
func (s Subscription) Remaining() int {
	if s.MaxRequests < s.RequestsUsed {
		return 0
	}
	return s.MaxRequests - s.RequestsUsed
}

// AISettings tunes how the backend phrases each simplification mode.
type AISettings struct {
	SimpleLevel   int `json:"simple_level"`
	ShortLevel    int `json:"short_level"`
	PointsCount   int `json:"points_count"`
	ExamplesCount int `json:"examples_count"`
}

// HistoryEntry is one past simplification as stored by the backend.
type HistoryEntry struct {
	ID             string    `json:"id"`
	SourceURL      string    `json:"url"`
	OriginalText   string    `json:"original_text"`
	SimplifiedText string    `json:"simplified_text"`
	Mode           Mode      `json:"mode"`
	CreatedAt      time.Time `json:"created_at"`
}

// HistoryPage is one page of the user's history.
type HistoryPage struct {
	Entries []HistoryEntry `json:"entries"`
	Total   int            `json:"total"`
}

// PendingHighlight is the single-slot record written when the user follows a
// history source link. It is consumed at most once by the content runtime.
type PendingHighlight struct {
	URL       string    `json:"url"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Expired reports whether the record is older than ttl at the given instant.
func (p PendingHighlight) Expired(ttl time.Duration, now time.Time) bool {
	return now.Sub(p.CreatedAt) > ttl
}
