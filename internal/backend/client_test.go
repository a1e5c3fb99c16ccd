package backend

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/avelichko7/textlens/api/schemas"
	"github.com/avelichko7/textlens/internal/config"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := config.BackendConfig{
		BaseURL:        srv.URL,
		CallerID:       "ext-test",
		RequestTimeout: 5 * time.Second,
		ProbeRate:      100,
		ProbeBurst:     10,
		Language:       "ru",
	}
	return New(cfg, zap.NewNop())
}

func TestSimplifyStreamsChunks(t *testing.T) {
	var gotAuth, gotExtID string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/simplify", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		gotExtID = r.Header.Get(HeaderExtensionID)

		var req schemas.SelectionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ru", req.Language, "configured language fills the blank")

		flusher := w.(http.Flusher)
		for _, chunk := range []string{"Первый ", "второй ", "третий."} {
			io.WriteString(w, chunk) //nolint:errcheck
			flusher.Flush()
		}
	}))

	body, err := client.Simplify(context.Background(), "tok", schemas.SelectionRequest{
		Text: "сложный текст",
		Mode: schemas.ModeSimple,
	})
	require.NoError(t, err)
	defer body.Close()

	all, err := io.ReadAll(bufio.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, "Первый второй третий.", string(all))
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "ext-test", gotExtID)
}

func TestSimplifyStatusErrorParsesJSONDetail(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		io.WriteString(w, `{"detail":"Лимит запросов исчерпан"}`) //nolint:errcheck
	}))

	_, err := client.Simplify(context.Background(), "tok", schemas.SelectionRequest{Text: "x", Mode: schemas.ModeSimple})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusPaymentRequired, se.Status)
	assert.Equal(t, "Лимит запросов исчерпан", se.Detail)
}

func TestSimplifyStatusErrorFallsBackToRawBody(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, "plain text failure") //nolint:errcheck
	}))

	_, err := client.Simplify(context.Background(), "tok", schemas.SelectionRequest{Text: "x", Mode: schemas.ModeSimple})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.Status)
	assert.Equal(t, "plain text failure", se.Detail)
}

func TestSimplifyUnauthorized(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := client.Simplify(context.Background(), "expired", schemas.SelectionRequest{Text: "x", Mode: schemas.ModeSimple})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.Status)
}

func TestMeDecodesSubscription(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/me", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"plan_id":"go_pro","plan_name":"Go Pro","requests_used":3,"max_requests":100,"ai_settings_enabled":true}`) //nolint:errcheck
	}))

	sub, err := client.Me(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, schemas.PlanGoPro, sub.PlanID)
	assert.Equal(t, 97, sub.Remaining())
	assert.True(t, sub.AISettingsEnabled)
}

func TestMeRejectedCredential(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"detail":"invalid token"}`) //nolint:errcheck
	}))

	_, err := client.Me(context.Background(), "bad")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.Status)
	assert.Equal(t, "invalid token", se.Detail)
}

func TestHealth(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/health", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"), "health is unauthenticated")
		w.WriteHeader(http.StatusOK)
	}))

	assert.NoError(t, client.Health(context.Background()))
}

func TestSettingsRoundTrip(t *testing.T) {
	stored := schemas.AISettings{SimpleLevel: 2, ShortLevel: 1, PointsCount: 5, ExamplesCount: 2}
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/settings", r.URL.Path)
		switch r.Method {
		case http.MethodGet:
			require.NoError(t, json.NewEncoder(w).Encode(stored))
		case http.MethodPost:
			require.NoError(t, json.NewDecoder(r.Body).Decode(&stored))
			w.WriteHeader(http.StatusOK)
		}
	}))

	s, err := client.Settings(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, 5, s.PointsCount)

	s.PointsCount = 7
	require.NoError(t, client.SaveSettings(context.Background(), "tok", s))
	assert.Equal(t, 7, stored.PointsCount)
}

func TestHistoryPagination(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "2", r.URL.Query().Get("page"))
		io.WriteString(w, `{"entries":[{"id":"h1","url":"https://a.com/p","original_text":"o","simplified_text":"s","mode":"simple","created_at":"2025-06-01T12:00:00Z"}],"total":11}`) //nolint:errcheck
	}))

	page, err := client.History(context.Background(), "tok", 2)
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	assert.Equal(t, 11, page.Total)
	assert.Equal(t, schemas.ModeSimple, page.Entries[0].Mode)
}

func TestUpgrade(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/upgrade", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, schemas.PlanGoPro, body["plan_id"])
		io.WriteString(w, `{"plan_id":"go_pro","plan_name":"Go Pro","requests_used":0,"max_requests":100}`) //nolint:errcheck
	}))

	sub, err := client.Upgrade(context.Background(), "tok", schemas.PlanGoPro)
	require.NoError(t, err)
	assert.Equal(t, schemas.PlanGoPro, sub.PlanID)
}

func TestUnreachableBackendIsPlainError(t *testing.T) {
	cfg := config.BackendConfig{
		BaseURL:        "http://127.0.0.1:1", // nothing listens here
		RequestTimeout: 500 * time.Millisecond,
		ProbeRate:      100,
		ProbeBurst:     1,
	}
	client := New(cfg, zap.NewNop())

	err := client.Health(context.Background())
	require.Error(t, err)
	var se *StatusError
	assert.False(t, errors.As(err, &se), "transport failures are not status errors")
}
