package schemas

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectionRequestValidate(t *testing.T) {
	t.Run("accepts a known mode with text", func(t *testing.T) {
		req := SelectionRequest{Text: "quantum entanglement", Mode: ModeSimple}
		require.NoError(t, req.Validate())
	})

	t.Run("rejects empty or whitespace-only text", func(t *testing.T) {
		assert.Error(t, SelectionRequest{Text: "", Mode: ModeSimple}.Validate())
		assert.Error(t, SelectionRequest{Text: "  \t\n", Mode: ModeShort}.Validate())
	})

	t.Run("rejects an unknown mode", func(t *testing.T) {
		err := SelectionRequest{Text: "x", Mode: "eli5"}.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "eli5")
	})
}

func TestModeUnlocked(t *testing.T) {
	assert.True(t, ModeSimple.Unlocked(PlanFree))
	assert.True(t, ModeShort.Unlocked(PlanFree))
	assert.False(t, ModeKeyPoints.Unlocked(PlanFree))
	assert.False(t, ModeExamples.Unlocked(PlanFree))
	assert.True(t, ModeKeyPoints.Unlocked(PlanGo))
	assert.True(t, ModeExamples.Unlocked(PlanGoProPls))

	// An unknown plan keeps premium modes locked rather than guessing.
	assert.False(t, ModeExamples.Unlocked(""))
}

func TestStreamEventTerminal(t *testing.T) {
	assert.False(t, StreamEvent{Kind: EventStart}.Terminal())
	assert.False(t, StreamEvent{Kind: EventChunk, Chunk: "a"}.Terminal())
	assert.True(t, StreamEvent{Kind: EventComplete}.Terminal())
	assert.True(t, StreamEvent{Kind: EventError, Code: CodeGeneric}.Terminal())
}

func TestPendingHighlightExpired(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	hl := PendingHighlight{URL: "https://a.com/p", Text: "t", CreatedAt: now.Add(-4 * time.Minute)}
	assert.False(t, hl.Expired(5*time.Minute, now))
	assert.True(t, hl.Expired(5*time.Minute, now.Add(2*time.Minute)))
}

func TestSubscriptionRemaining(t *testing.T) {
	assert.Equal(t, 40, Subscription{RequestsUsed: 10, MaxRequests: 50}.Remaining())
	// Never negative, even if the backend over-counts.
	assert.Equal(t, 0, Subscription{RequestsUsed: 60, MaxRequests: 50}.Remaining())
}
