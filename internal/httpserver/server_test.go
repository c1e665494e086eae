package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/skillhub/skillhub/internal/aistream"
	"github.com/skillhub/skillhub/internal/auth"
	"github.com/skillhub/skillhub/internal/config"
	"github.com/skillhub/skillhub/internal/provider"
	"github.com/skillhub/skillhub/internal/provider/loopback"
	"github.com/skillhub/skillhub/internal/store"
	"github.com/skillhub/skillhub/internal/store/sqlite"
)

type env struct {
	srv     *Server
	store   store.Store
	streams *aistream.Registry
	cfg     config.ServerConfig
}

func newEnv(t *testing.T, ai provider.ChatStreamer) *env {
	return newEnvWith(t, ai, nil)
}

func newEnvWith(t *testing.T, ai provider.ChatStreamer, tweak func(*config.ServerConfig)) *env {
	t.Helper()
	st, err := sqlite.New(filepath.Join(t.TempDir(), "skillhub.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	if ai == nil {
		ai = loopback.New()
	}
	cfg := config.ServerConfig{
		Environment:     "test",
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
		HistoryLimit:    200,
		Models: []config.ModelInfo{
			{ID: "loopback", Name: "Loopback"},
			{ID: "test-model", Name: "Test Model"},
		},
	}
	if tweak != nil {
		tweak(&cfg)
	}
	streams := aistream.NewRegistry()
	srv := New(cfg, st, auth.NewManager("test-secret"), streams, ai, "", log.New(io.Discard, "", 0))
	return &env{srv: srv, store: st, streams: streams, cfg: cfg}
}

func (e *env) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		switch b := body.(type) {
		case []byte:
			rd = bytes.NewReader(b)
		case string:
			rd = bytes.NewReader([]byte(b))
		default:
			data, err := json.Marshal(body)
			require.NoError(t, err)
			rd = bytes.NewReader(data)
		}
	}
	req := httptest.NewRequest(method, path, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body: %s", rec.Body.String())
	return v
}

func (e *env) register(t *testing.T, email string) (userID, token string) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/auth/register", "", registerRequest{
		Email: email, Password: "password123", DisplayName: "Tester",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decodeBody[tokenResponse](t, rec)
	return resp.User.ID, resp.AccessToken
}

func TestRegisterLoginMe(t *testing.T) {
	e := newEnv(t, nil)

	userID, token := e.register(t, "alice@example.com")

	rec := e.do(t, http.MethodPost, "/api/v1/auth/register", "", registerRequest{
		Email: "alice@example.com", Password: "password123",
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/v1/auth/login", "", loginRequest{
		Email: "alice@example.com", Password: "wrong-password",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/v1/auth/login", "", loginRequest{
		Email: "alice@example.com", Password: "password123",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/v1/users/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decodeBody[store.User](t, rec)
	require.Equal(t, userID, me.ID)

	rec = e.do(t, http.MethodGet, "/api/v1/users/me", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRefreshTokenRotation(t *testing.T) {
	e := newEnv(t, nil)

	rec := e.do(t, http.MethodPost, "/api/v1/auth/register", "", registerRequest{
		Email: "bob@example.com", Password: "password123",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	first := decodeBody[tokenResponse](t, rec)

	rec = e.do(t, http.MethodPost, "/api/v1/auth/refresh", "", refreshRequest{RefreshToken: first.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code)
	second := decodeBody[tokenResponse](t, rec)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)

	// The used token is revoked and cannot be replayed.
	rec = e.do(t, http.MethodPost, "/api/v1/auth/refresh", "", refreshRequest{RefreshToken: first.RefreshToken})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSkillLifecycle(t *testing.T) {
	e := newEnv(t, nil)
	_, token := e.register(t, "owner@example.com")

	rec := e.do(t, http.MethodPost, "/api/v1/skills/", token, skillRequest{
		Name: "Summarizer", Description: "Summarizes text", Tags: []string{"text"}, Content: "v1 instructions",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[skillResponse](t, rec)
	require.Equal(t, 1, created.LatestVersion)

	// Updating content mints a new version; metadata edits do not.
	rec = e.do(t, http.MethodPut, "/api/v1/skills/"+created.ID+"/", token, skillRequest{
		Description: "Better summaries", Content: "v2 instructions",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decodeBody[skillResponse](t, rec)
	require.Equal(t, 2, updated.LatestVersion)
	require.Equal(t, "Better summaries", updated.Description)

	rec = e.do(t, http.MethodGet, "/api/v1/skills/"+created.ID+"/versions", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	versions := decodeBody[map[string][]store.SkillVersion](t, rec)
	require.Len(t, versions["versions"], 2)

	rec = e.do(t, http.MethodGet, "/api/v1/skills/"+created.ID+"/versions/1", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	v1 := decodeBody[store.SkillVersion](t, rec)
	require.Equal(t, "v1 instructions", v1.Content)

	rec = e.do(t, http.MethodPost, "/api/v1/skills/"+created.ID+"/versions", token, createVersionRequest{Content: "v3 instructions"})
	require.Equal(t, http.StatusCreated, rec.Code)
	v3 := decodeBody[store.SkillVersion](t, rec)
	require.Equal(t, 3, v3.Version)

	rec = e.do(t, http.MethodGet, "/api/v1/skills/?mine=true", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	mine := decodeBody[map[string][]store.Skill](t, rec)
	require.Len(t, mine["skills"], 1)

	rec = e.do(t, http.MethodDelete, "/api/v1/skills/"+created.ID+"/", token, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/v1/skills/"+created.ID+"/", token, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPrivateSkillHiddenFromOthers(t *testing.T) {
	e := newEnv(t, nil)
	_, ownerToken := e.register(t, "owner@example.com")
	_, otherToken := e.register(t, "other@example.com")

	rec := e.do(t, http.MethodPost, "/api/v1/skills/", ownerToken, skillRequest{
		Name: "Secret", Visibility: "private", Content: "hidden",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	sk := decodeBody[skillResponse](t, rec)

	rec = e.do(t, http.MethodGet, "/api/v1/skills/"+sk.ID+"/", ownerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/v1/skills/"+sk.ID+"/", otherToken, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(t, http.MethodPut, "/api/v1/skills/"+sk.ID+"/", otherToken, skillRequest{Name: "Hijacked"})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSkillExportImportRoundTrip(t *testing.T) {
	e := newEnv(t, nil)
	_, token := e.register(t, "owner@example.com")

	rec := e.do(t, http.MethodPost, "/api/v1/skills/", token, skillRequest{
		Name: "Poet", Description: "Writes poems", Tags: []string{"fun"}, Content: "# Poet\nRhyme everything.\n",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	sk := decodeBody[skillResponse](t, rec)

	rec = e.do(t, http.MethodPut, "/api/v1/skills/"+sk.ID, token, skillRequest{Content: "# Poet\nRhyme everything, always.\n"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 2, decodeBody[skillResponse](t, rec).LatestVersion)

	rec = e.do(t, http.MethodGet, "/api/v1/skills/"+sk.ID+"/export", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Disposition"), "poet.skill")
	exported := rec.Body.Bytes()

	rec = e.do(t, http.MethodPost, "/api/v1/skills/import", token, exported)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	imported := decodeBody[skillResponse](t, rec)
	require.Equal(t, "Poet", imported.Name)
	require.Equal(t, []string{"fun"}, imported.Tags)
	require.Equal(t, "# Poet\nRhyme everything, always.\n", imported.Content)

	// The exported version number survives the round trip.
	require.Equal(t, 2, imported.LatestVersion)
	v, err := e.store.GetSkillVersion(context.Background(), imported.ID, 2)
	require.NoError(t, err)
	require.NotNil(t, v)
}

func TestDeleteSkillStampsDeletionTime(t *testing.T) {
	e := newEnv(t, nil)
	_, token := e.register(t, "owner@example.com")

	rec := e.do(t, http.MethodPost, "/api/v1/skills/", token, skillRequest{Name: "Old", Content: "old"})
	require.Equal(t, http.StatusCreated, rec.Code)
	sk := decodeBody[skillResponse](t, rec)

	// Age the row so a stale-timestamp copy would be visible.
	aged, err := e.store.GetSkill(context.Background(), sk.ID)
	require.NoError(t, err)
	aged.UpdatedAt = time.Now().UTC().Add(-24 * time.Hour)
	require.NoError(t, e.store.UpdateSkill(context.Background(), aged))

	rec = e.do(t, http.MethodDelete, "/api/v1/skills/"+sk.ID, token, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	deleted, err := e.store.GetSkill(context.Background(), sk.ID)
	require.NoError(t, err)
	require.True(t, deleted.Deleted)
	require.NotNil(t, deleted.DeletedAt)
	require.Less(t, time.Since(*deleted.DeletedAt), time.Minute)
	require.Less(t, time.Since(deleted.UpdatedAt), time.Minute)
}

func TestFavoritesRatingsComments(t *testing.T) {
	e := newEnv(t, nil)
	ownerID, ownerToken := e.register(t, "owner@example.com")
	_, fanToken := e.register(t, "fan@example.com")

	rec := e.do(t, http.MethodPost, "/api/v1/skills/", ownerToken, skillRequest{Name: "Helper", Content: "help"})
	require.Equal(t, http.StatusCreated, rec.Code)
	sk := decodeBody[skillResponse](t, rec)
	base := "/api/v1/skills/" + sk.ID

	rec = e.do(t, http.MethodPut, base+"/favorite", fanToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = e.do(t, http.MethodPut, base+"/favorite", fanToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/v1/users/me/favorites", fanToken, nil)
	favs := decodeBody[map[string][]store.SkillFavorite](t, rec)
	require.Len(t, favs["favorites"], 1)

	rec = e.do(t, http.MethodPut, base+"/rating", fanToken, ratingRequest{Rating: 6})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	rec = e.do(t, http.MethodPut, base+"/rating", fanToken, ratingRequest{Rating: 4})
	require.Equal(t, http.StatusOK, rec.Code)
	rated := decodeBody[ratingResponse](t, rec)
	require.Equal(t, 1, rated.Summary.Count)
	require.InDelta(t, 4.0, rated.Summary.Average, 0.001)

	rec = e.do(t, http.MethodPost, base+"/comments", fanToken, commentRequest{Content: "love it"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = e.do(t, http.MethodGet, base+"/comments", ownerToken, nil)
	comments := decodeBody[map[string][]store.SkillComment](t, rec)
	require.Len(t, comments["comments"], 1)

	// Commenting on someone else's skill notifies the owner.
	rec = e.do(t, http.MethodGet, "/api/v1/notifications?unread=true", ownerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	notifs := decodeBody[map[string][]store.Notification](t, rec)
	require.Len(t, notifs["notifications"], 1)
	require.Equal(t, ownerID, notifs["notifications"][0].UserID)

	rec = e.do(t, http.MethodPatch, "/api/v1/notifications/"+notifs["notifications"][0].ID, ownerToken, updateNotificationRequest{Read: true})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = e.do(t, http.MethodGet, "/api/v1/notifications?unread=true", ownerToken, nil)
	notifs = decodeBody[map[string][]store.Notification](t, rec)
	require.Empty(t, notifs["notifications"])

	rec = e.do(t, http.MethodDelete, base+"/favorite", fanToken, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestSuggestionRejectionDisablesSession(t *testing.T) {
	e := newEnv(t, nil)
	_, token := e.register(t, "user@example.com")

	rec := e.do(t, http.MethodPost, "/api/v1/skills/", token, skillRequest{Name: "Helper", Content: "help"})
	sk := decodeBody[skillResponse](t, rec)

	rec = e.do(t, http.MethodPost, "/api/v1/chats/", token, createChatRequest{Title: "advice"})
	require.Equal(t, http.StatusCreated, rec.Code)
	sess := decodeBody[store.ChatSession](t, rec)

	rec = e.do(t, http.MethodPost, "/api/v1/chats/"+sess.ID+"/suggestions", token, createSuggestionRequest{SkillID: sk.ID})
	require.Equal(t, http.StatusCreated, rec.Code)
	sg := decodeBody[store.SkillSuggestion](t, rec)

	rec = e.do(t, http.MethodPatch, "/api/v1/suggestions/"+sg.ID, token, updateSuggestionRequest{Status: "rejected"})
	require.Equal(t, http.StatusOK, rec.Code)

	// A rejection latches: the session gets no further suggestions.
	rec = e.do(t, http.MethodPost, "/api/v1/chats/"+sess.ID+"/suggestions", token, createSuggestionRequest{SkillID: sk.ID})
	require.Equal(t, http.StatusConflict, rec.Code)

	// And an already resolved suggestion cannot flip.
	rec = e.do(t, http.MethodPatch, "/api/v1/suggestions/"+sg.ID, token, updateSuggestionRequest{Status: "accepted"})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestChatMessagesEndpoint(t *testing.T) {
	e := newEnv(t, nil)
	_, token := e.register(t, "user@example.com")

	rec := e.do(t, http.MethodPost, "/api/v1/chats/", token, createChatRequest{Title: "scratch"})
	require.Equal(t, http.StatusCreated, rec.Code)
	sess := decodeBody[store.ChatSession](t, rec)

	rec = e.do(t, http.MethodPost, "/api/v1/chats/"+sess.ID+"/messages", token, createMessageRequest{Content: "note to self"})
	require.Equal(t, http.StatusCreated, rec.Code)
	msg := decodeBody[store.ChatMessage](t, rec)
	require.Equal(t, store.ChatRoleUser, msg.Role)

	// Assistant messages only come from the streaming pipeline.
	rec = e.do(t, http.MethodPost, "/api/v1/chats/"+sess.ID+"/messages", token, createMessageRequest{Role: "assistant", Content: "nope"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/v1/chats/"+sess.ID+"/messages", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	msgs := decodeBody[map[string][]store.ChatMessage](t, rec)
	require.Len(t, msgs["messages"], 1)
}

func TestMemoriesUpsertAndScope(t *testing.T) {
	e := newEnv(t, nil)
	_, token := e.register(t, "user@example.com")

	rec := e.do(t, http.MethodPut, "/api/v1/memories", token, memoryRequest{Key: "likes", Value: "go"})
	require.Equal(t, http.StatusOK, rec.Code)
	m := decodeBody[store.MemoryItem](t, rec)

	rec = e.do(t, http.MethodPut, "/api/v1/memories", token, memoryRequest{Key: "likes", Value: "sql"})
	require.Equal(t, http.StatusOK, rec.Code)
	again := decodeBody[store.MemoryItem](t, rec)
	require.Equal(t, m.ID, again.ID)
	require.Equal(t, "sql", again.Value)

	rec = e.do(t, http.MethodPatch, "/api/v1/memories/"+m.ID, token, memoryRequest{Value: "yaml", Scope: "work"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/v1/memories?scope=work", token, nil)
	items := decodeBody[map[string][]store.MemoryItem](t, rec)
	require.Len(t, items["memories"], 1)
	require.Equal(t, "yaml", items["memories"][0].Value)
}

func TestReportsAdminOnlyStatusChange(t *testing.T) {
	e := newEnv(t, nil)
	_, token := e.register(t, "user@example.com")

	rec := e.do(t, http.MethodPost, "/api/v1/reports", token, reportRequest{Title: "broken skill", Content: "details"})
	require.Equal(t, http.StatusCreated, rec.Code)
	report := decodeBody[store.Report](t, rec)

	rec = e.do(t, http.MethodGet, "/api/v1/reports/"+report.ID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodPatch, "/api/v1/reports/"+report.ID, token, updateReportRequest{Status: "resolved"})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestListModels(t *testing.T) {
	e := newEnv(t, nil)
	_, token := e.register(t, "user@example.com")

	rec := e.do(t, http.MethodGet, "/api/v1/ai/models", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	models := decodeBody[map[string][]config.ModelInfo](t, rec)
	require.Len(t, models["models"], 2)
}
