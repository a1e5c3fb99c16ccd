package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/avelichko7/textlens/api/schemas"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	fs, err := NewFileStore(path)
	require.NoError(t, err)

	sub := schemas.Subscription{PlanID: schemas.PlanGo, PlanName: "GO", RequestsUsed: 3, MaxRequests: 100}
	require.NoError(t, fs.Set(KeySubscription, sub))

	var got schemas.Subscription
	ok, err := fs.Get(KeySubscription, &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sub, got)

	// A second store on the same path sees the persisted value.
	fs2, err := NewFileStore(path)
	require.NoError(t, err)
	ok, err = fs2.Get(KeySubscription, &got)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFileStoreMissingKey(t *testing.T) {
	fs, err := NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)

	var v string
	ok, err := fs.Get("nope", &v)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileStoreDeleteIsIdempotent(t *testing.T) {
	fs, err := NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)

	require.NoError(t, fs.Set("k", "v"))
	require.NoError(t, fs.Delete("k"))
	require.NoError(t, fs.Delete("k"))

	var v string
	ok, err := fs.Get("k", &v)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileStoreLastWriterWins(t *testing.T) {
	fs, err := NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)

	require.NoError(t, fs.Set("plan", "free"))
	require.NoError(t, fs.Set("plan", "go"))

	var plan string
	ok, err := fs.Get("plan", &plan)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "go", plan)
}

func TestMemStoreTTL(t *testing.T) {
	m := NewMemStore(20 * time.Millisecond)
	require.NoError(t, m.Set("k", "v"))

	var v string
	ok, err := m.Get("k", &v)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v", v)

	time.Sleep(40 * time.Millisecond)
	ok, err = m.Get("k", &v)
	require.NoError(t, err)
	assert.False(t, ok, "entry should age out after the TTL")
}

func TestCacheSnapshots(t *testing.T) {
	c := NewCache(NewMemStore(0), zap.NewNop())

	_, ok := c.Subscription()
	assert.False(t, ok)
	_, ok = c.PlanID()
	assert.False(t, ok)

	c.SetSubscription(schemas.Subscription{PlanID: schemas.PlanGoPro, PlanName: "GO PRO", MaxRequests: 500})

	sub, ok := c.Subscription()
	require.True(t, ok)
	assert.Equal(t, schemas.PlanGoPro, sub.PlanID)

	// Setting a subscription also refreshes the derived plan-id slot.
	plan, ok := c.PlanID()
	require.True(t, ok)
	assert.Equal(t, schemas.PlanGoPro, plan)

	c.ClearPlanID()
	_, ok = c.PlanID()
	assert.False(t, ok)

	c.SetProfile(schemas.Profile{Email: "a@b.c"})
	p, ok := c.Profile()
	require.True(t, ok)
	assert.Equal(t, "a@b.c", p.Email)
}
