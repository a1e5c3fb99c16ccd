package locator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/avelichko7/textlens/internal/storage"
)

func newTestSlot(t *testing.T) (*PendingSlot, *time.Time) {
	t.Helper()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	slot := NewPendingSlot(storage.NewMemStore(0), 5*time.Minute, zap.NewNop())
	slot.now = func() time.Time { return now }
	return slot, &now
}

func TestPendingSlotRoundTrip(t *testing.T) {
	slot, _ := newTestSlot(t)

	require.NoError(t, slot.Put("https://www.a.com/article/", "the selected passage"))

	hl, ok := slot.Peek("http://a.com/article")
	require.True(t, ok, "normalized URLs must match")
	assert.Equal(t, "the selected passage", hl.Text)
}

func TestPendingSlotExpiredRecordIsDiscarded(t *testing.T) {
	slot, now := newTestSlot(t)

	require.NoError(t, slot.Put("https://a.com/p", "text"))
	*now = now.Add(6 * time.Minute)

	_, ok := slot.Peek("https://a.com/p")
	assert.False(t, ok)

	// The expired record was removed, not just skipped.
	*now = now.Add(-6 * time.Minute)
	_, ok = slot.Peek("https://a.com/p")
	assert.False(t, ok)
}

func TestPendingSlotKeepsRecordForOtherPages(t *testing.T) {
	slot, _ := newTestSlot(t)

	require.NoError(t, slot.Put("https://a.com/target", "text"))

	// Visiting an unrelated page neither applies nor clears the record.
	_, ok := slot.Peek("https://a.com/other")
	assert.False(t, ok)

	hl, ok := slot.Peek("https://a.com/target")
	require.True(t, ok)
	assert.Equal(t, "text", hl.Text)
}

func TestPendingSlotSingleSlotOverwrites(t *testing.T) {
	slot, _ := newTestSlot(t)

	require.NoError(t, slot.Put("https://a.com/first", "first"))
	require.NoError(t, slot.Put("https://a.com/second", "second"))

	_, ok := slot.Peek("https://a.com/first")
	assert.False(t, ok, "the older record must be gone")

	hl, ok := slot.Peek("https://a.com/second")
	require.True(t, ok)
	assert.Equal(t, "second", hl.Text)
}

func TestPendingSlotClearIsIdempotent(t *testing.T) {
	slot, _ := newTestSlot(t)
	slot.Clear()
	require.NoError(t, slot.Put("https://a.com/p", "text"))
	slot.Clear()
	slot.Clear()

	_, ok := slot.Peek("https://a.com/p")
	assert.False(t, ok)
}
