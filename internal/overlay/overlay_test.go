package overlay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/avelichko7/textlens/api/schemas"
	"github.com/avelichko7/textlens/internal/bus"
	"github.com/avelichko7/textlens/internal/config"
	"github.com/avelichko7/textlens/internal/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recordingView captures render calls for assertion.
type recordingView struct {
	mu        sync.Mutex
	auth      []schemas.AuthStatus
	loading   int
	stream    []string
	completed []string
	errors    []schemas.StreamEvent
}

func (v *recordingView) RenderAuth(status schemas.AuthStatus) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.auth = append(v.auth, status)
}

func (v *recordingView) RenderLoading() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.loading++
}

func (v *recordingView) RenderStream(text string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stream = append(v.stream, text)
}

func (v *recordingView) RenderComplete(text string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.completed = append(v.completed, text)
}

func (v *recordingView) RenderError(code schemas.ErrorCode, message string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.errors = append(v.errors, schemas.StreamEvent{Kind: schemas.EventError, Code: code, Message: message})
}

func (v *recordingView) authCalls() []schemas.AuthStatus {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]schemas.AuthStatus(nil), v.auth...)
}

func (v *recordingView) streamCalls() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.stream...)
}

func (v *recordingView) errorCalls() []schemas.StreamEvent {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]schemas.StreamEvent(nil), v.errors...)
}

func (v *recordingView) completeCalls() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.completed...)
}

type fixture struct {
	router  *bus.Router
	cache   *storage.Cache
	view    *recordingView
	session *Session

	authMu    sync.Mutex
	authReply schemas.AuthStatus
}

func (f *fixture) setAuth(status schemas.AuthStatus) {
	f.authMu.Lock()
	defer f.authMu.Unlock()
	f.authReply = status
}

// newFixture wires a session against a live router. The CHECK_AUTH handler
// answers with whatever setAuth last stored, so tests can simulate
// transitions mid-poll.
func newFixture(t *testing.T, authReply schemas.AuthStatus) *fixture {
	t.Helper()
	router := bus.New(zap.NewNop(), 16)
	t.Cleanup(router.Shutdown)

	f := &fixture{router: router, authReply: authReply}
	router.Handle(schemas.MsgCheckAuth, func(context.Context, schemas.Envelope) (any, error) {
		f.authMu.Lock()
		defer f.authMu.Unlock()
		return f.authReply, nil
	})

	f.cache = storage.NewCache(storage.NewMemStore(0), zap.NewNop())
	f.view = &recordingView{}
	cfg := config.OverlayConfig{AuthPollInterval: 20 * time.Millisecond}
	f.session = NewSession(router, f.cache, f.view, cfg, zap.NewNop())
	t.Cleanup(f.session.Close)

	return f
}

func TestOpenPaintsCachedPlanInstantly(t *testing.T) {
	f := newFixture(t, schemas.AuthStatus{Authenticated: true, PlanID: schemas.PlanGo})
	f.cache.SetSubscription(schemas.Subscription{PlanID: schemas.PlanGo})

	f.session.Open(context.Background(), "text", "https://a.com/p")

	// The very first paint comes from the cache, before any probe returns.
	calls := f.view.authCalls()
	require.NotEmpty(t, calls)
	assert.True(t, calls[0].Authenticated)
	assert.Equal(t, schemas.PlanGo, calls[0].PlanID)

	// The authoritative probe agrees, so no repaint follows.
	time.Sleep(80 * time.Millisecond)
	assert.Len(t, f.view.authCalls(), 1, "unchanged auth state must not repaint")
}

func TestPollRepaintsOnlyOnTransition(t *testing.T) {
	f := newFixture(t, schemas.AuthStatus{})

	f.session.Open(context.Background(), "text", "https://a.com/p")

	require.Eventually(t, func() bool {
		return len(f.view.authCalls()) >= 1
	}, time.Second, 5*time.Millisecond)

	// Sign the user in mid-poll: exactly one more paint.
	f.setAuth(schemas.AuthStatus{Authenticated: true, PlanID: schemas.PlanGoPro})
	require.Eventually(t, func() bool {
		calls := f.view.authCalls()
		return calls[len(calls)-1].Authenticated
	}, time.Second, 5*time.Millisecond)

	settled := len(f.view.authCalls())
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, settled, len(f.view.authCalls()), "steady state must not repaint")
}

func TestPickModeUnauthenticatedShowsSignInPrompt(t *testing.T) {
	f := newFixture(t, schemas.AuthStatus{})

	simplifies, unsub := f.router.Subscribe(schemas.MsgSimplify)
	defer unsub()

	f.session.Open(context.Background(), "text", "https://a.com/p")
	require.Eventually(t, func() bool {
		return len(f.view.authCalls()) >= 1
	}, time.Second, 5*time.Millisecond)

	f.session.PickMode(context.Background(), schemas.ModeSimple)

	errs := f.view.errorCalls()
	require.Len(t, errs, 1)
	assert.Equal(t, schemas.CodeLoginRequired, errs[0].Code)
	select {
	case <-simplifies:
		t.Fatal("no request may be issued while signed out")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPickModeLockedOnFreePlanRedirectsToSettings(t *testing.T) {
	f := newFixture(t, schemas.AuthStatus{Authenticated: true, PlanID: schemas.PlanFree})

	settings, unsubSettings := f.router.Subscribe(schemas.MsgOpenSettings)
	defer unsubSettings()
	simplifies, unsubSimplify := f.router.Subscribe(schemas.MsgSimplify)
	defer unsubSimplify()

	f.session.Open(context.Background(), "text", "https://a.com/p")
	require.Eventually(t, func() bool {
		calls := f.view.authCalls()
		return len(calls) > 0 && calls[len(calls)-1].Authenticated
	}, time.Second, 5*time.Millisecond)

	f.session.PickMode(context.Background(), schemas.ModeKeyPoints)

	select {
	case <-settings:
	case <-time.After(time.Second):
		t.Fatal("locked mode must redirect to settings")
	}
	select {
	case <-simplifies:
		t.Fatal("locked mode must not issue a request")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Zero(t, func() int { f.view.mu.Lock(); defer f.view.mu.Unlock(); return f.view.loading }())
}

func TestPickModeUnlockedDispatchesSimplify(t *testing.T) {
	f := newFixture(t, schemas.AuthStatus{Authenticated: true, PlanID: schemas.PlanGoPro})

	simplifies, unsub := f.router.Subscribe(schemas.MsgSimplify)
	defer unsub()

	f.session.Open(context.Background(), "выделенный текст", "https://a.com/p")
	require.Eventually(t, func() bool {
		calls := f.view.authCalls()
		return len(calls) > 0 && calls[len(calls)-1].Authenticated
	}, time.Second, 5*time.Millisecond)

	f.session.PickMode(context.Background(), schemas.ModeKeyPoints)

	select {
	case env := <-simplifies:
		cmd, ok := env.Payload.(schemas.SimplifyCommand)
		require.True(t, ok)
		assert.Equal(t, "выделенный текст", cmd.Request.Text)
		assert.Equal(t, schemas.ModeKeyPoints, cmd.Request.Mode)
		assert.Equal(t, "https://a.com/p", cmd.Request.SourceURL)
		assert.Equal(t, f.session.Surface(), cmd.Surface)
	case <-time.After(time.Second):
		t.Fatal("expected a SIMPLIFY dispatch")
	}
}

func TestStreamFirstChunkReplacesPlaceholderOnce(t *testing.T) {
	f := newFixture(t, schemas.AuthStatus{Authenticated: true, PlanID: schemas.PlanGo})

	f.session.Open(context.Background(), "text", "https://a.com/p")
	f.session.PickMode(context.Background(), schemas.ModeSimple)

	ctx := context.Background()
	surface := f.session.Surface()
	send := func(msgType schemas.MessageType, e schemas.StreamEvent) {
		require.NoError(t, f.router.SendToSurface(ctx, surface, msgType, e))
	}
	send(schemas.MsgStreamStart, schemas.StreamEvent{Kind: schemas.EventStart, RequestID: "r1"})
	send(schemas.MsgStreamChunk, schemas.StreamEvent{Kind: schemas.EventChunk, RequestID: "r1", Chunk: "Первая"})
	send(schemas.MsgStreamChunk, schemas.StreamEvent{Kind: schemas.EventChunk, RequestID: "r1", Chunk: " часть"})
	send(schemas.MsgStreamComplete, schemas.StreamEvent{Kind: schemas.EventComplete, RequestID: "r1"})

	require.Eventually(t, func() bool {
		return len(f.view.completeCalls()) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"Первая", "Первая часть"}, f.view.streamCalls(),
		"first chunk replaces the placeholder, later chunks append")
	assert.Equal(t, []string{"Первая часть"}, f.view.completeCalls())
}

func TestStreamLoginRequiredKeepsOverlayOpen(t *testing.T) {
	f := newFixture(t, schemas.AuthStatus{Authenticated: true, PlanID: schemas.PlanGo})

	f.session.Open(context.Background(), "text", "https://a.com/p")

	ctx := context.Background()
	require.NoError(t, f.router.SendToSurface(ctx, f.session.Surface(), schemas.MsgStreamError,
		schemas.StreamEvent{Kind: schemas.EventError, RequestID: "r1", Code: schemas.CodeLoginRequired}))

	require.Eventually(t, func() bool {
		return len(f.view.errorCalls()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, schemas.CodeLoginRequired, f.view.errorCalls()[0].Code)

	// Still open: picking a mode now renders the sign-in prompt instead of
	// silently doing nothing.
	f.session.PickMode(ctx, schemas.ModeSimple)
	require.Eventually(t, func() bool {
		return len(f.view.errorCalls()) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestCreditsExhaustedCarriesUpgradeMessage(t *testing.T) {
	f := newFixture(t, schemas.AuthStatus{Authenticated: true, PlanID: schemas.PlanFree})

	f.session.Open(context.Background(), "text", "https://a.com/p")

	require.NoError(t, f.router.SendToSurface(context.Background(), f.session.Surface(), schemas.MsgStreamError,
		schemas.StreamEvent{Kind: schemas.EventError, Code: schemas.CodeCreditsExhausted, Message: "Лимит исчерпан"}))

	require.Eventually(t, func() bool {
		return len(f.view.errorCalls()) == 1
	}, time.Second, 5*time.Millisecond)
	e := f.view.errorCalls()[0]
	assert.Equal(t, schemas.CodeCreditsExhausted, e.Code)
	assert.Equal(t, "Лимит исчерпан", e.Message)
}

func TestCloseStopsPollingAndIsIdempotent(t *testing.T) {
	f := newFixture(t, schemas.AuthStatus{})

	f.session.Open(context.Background(), "text", "https://a.com/p")
	f.session.Close()
	f.session.Close()
	// goleak verifies the ticker goroutines are gone at process exit.
}

// reentrantView calls back into its session from a render, the way a real UI
// might when a click lands during a paint.
type reentrantView struct {
	*recordingView
	session *Session
	once    sync.Once
}

func (v *reentrantView) RenderAuth(status schemas.AuthStatus) {
	v.recordingView.RenderAuth(status)
	v.once.Do(func() {
		v.session.PickMode(context.Background(), schemas.ModeSimple)
	})
}

func TestOpenToleratesReentrantView(t *testing.T) {
	router := bus.New(zap.NewNop(), 16)
	t.Cleanup(router.Shutdown)
	router.Handle(schemas.MsgCheckAuth, func(context.Context, schemas.Envelope) (any, error) {
		return schemas.AuthStatus{}, nil
	})

	cache := storage.NewCache(storage.NewMemStore(0), zap.NewNop())
	view := &reentrantView{recordingView: &recordingView{}}
	session := NewSession(router, cache, view, config.OverlayConfig{AuthPollInterval: 20 * time.Millisecond}, zap.NewNop())
	view.session = session
	t.Cleanup(session.Close)

	opened := make(chan struct{})
	go func() {
		session.Open(context.Background(), "text", "https://a.com/p")
		close(opened)
	}()
	select {
	case <-opened:
	case <-time.After(time.Second):
		t.Fatal("Open must not hold the session lock across a render")
	}
	require.NotEmpty(t, view.errorCalls(), "the reentrant PickMode runs against the opened session")
}

func TestOpenTwiceIsNoop(t *testing.T) {
	f := newFixture(t, schemas.AuthStatus{})

	f.session.Open(context.Background(), "text", "https://a.com/p")
	first := len(f.view.authCalls())
	f.session.Open(context.Background(), "other", "https://b.com/q")
	assert.Equal(t, first, len(f.view.authCalls()), "reopening an open session must not repaint")
}
