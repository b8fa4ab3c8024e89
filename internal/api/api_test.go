package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alcyxob/setpad/internal/auth"
	"alcyxob/setpad/internal/autosave"
	"alcyxob/setpad/internal/autosave/autosavetest"
	"alcyxob/setpad/internal/domain"
	"alcyxob/setpad/internal/editor"
	"alcyxob/setpad/internal/localstore"
	"alcyxob/setpad/internal/metrics"
	"alcyxob/setpad/internal/repository/memory"
	"alcyxob/setpad/internal/service"
	"alcyxob/setpad/internal/syncstatus"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router  *gin.Engine
	clock   *autosavetest.Clock
	logs    *memory.LogRepository
	auth    service.AuthService
	metrics *metrics.Manager
}

func newTestServer(t *testing.T, mutate func(*testServer, *Dependencies)) *testServer {
	t.Helper()
	s := &testServer{clock: autosavetest.NewClock(time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC))}
	s.logs = memory.NewLogRepository(auth.ContextProvider{}, s.clock.Now)
	s.auth = service.NewAuthService(memory.NewUserRepository(), "test-secret", time.Hour)
	s.metrics, _ = metrics.NewTestManagerAndRegistry()

	active := localstore.NewActiveLog(localstore.NewFileKV(t.TempDir(), 0), "").PerUser(auth.ContextProvider{})
	manager := service.NewLogManager(s.logs, active, s.clock.Now)
	registry := editor.NewRegistry(manager, auth.ContextProvider{}, autosave.Options{Clock: s.clock})

	deps := Dependencies{
		Auth:    s.auth,
		Logs:    manager,
		Editors: registry,
		Sync:    syncstatus.NewTracker(nil, time.Minute, registry),
		Metrics: s.metrics,
	}
	if mutate != nil {
		mutate(s, &deps)
	}
	s.router = NewRouter(deps)
	return s
}

func (s *testServer) token(t *testing.T, email string) string {
	t.Helper()
	ctx := context.Background()
	_, err := s.auth.Register(ctx, "Lifter", email, "password123")
	require.NoError(t, err)
	token, _, err := s.auth.Login(ctx, email, "password123")
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func TestPingAndMetrics(t *testing.T) {
	s := newTestServer(t, nil)

	rr := s.do(t, http.MethodGet, "/ping", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"message":"pong"}`, rr.Body.String())

	rr = s.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `setpad_test_server_request{method="GET",route="/ping",status="200"} 1`)
}

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t, nil)

	rr := s.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{"name": "Sam", "email": "sam@example.com", "password": "longenough"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	user := decode[UserResponse](t, rr)
	assert.Equal(t, "sam@example.com", user.Email)
	assert.NotContains(t, rr.Body.String(), "password")

	rr = s.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{"name": "Sam", "email": "sam@example.com", "password": "longenough"})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = s.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{"name": "Sam", "email": "not-an-email", "password": "short"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "sam@example.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = s.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "sam@example.com", "password": "longenough"})
	require.Equal(t, http.StatusOK, rr.Code)
	login := decode[LoginResponse](t, rr)
	require.NotEmpty(t, login.Token)

	rr = s.do(t, http.MethodGet, "/api/v1/me", login.Token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"userId":"`+user.ID+`","email":"sam@example.com"}`, rr.Body.String())
}

func TestProtectedRoutesRequireBearerToken(t *testing.T) {
	s := newTestServer(t, nil)

	rr := s.do(t, http.MethodGet, "/api/v1/tables", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = s.do(t, http.MethodGet, "/api/v1/tables", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tables", nil)
	req.Header.Set("Authorization", "Token abc")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTableLifecycle(t *testing.T) {
	s := newTestServer(t, nil)
	token := s.token(t, "lifter@example.com")

	rr := s.do(t, http.MethodGet, "/api/v1/tables", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, service.ListEmpty, decode[ListTablesResponse](t, rr).State)

	rr = s.do(t, http.MethodPost, "/api/v1/tables", token, nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decode[TableResponse](t, rr)
	id := created.Table.ID
	assert.Equal(t, domain.NewLogName, created.Table.TableName)
	assert.Equal(t, domain.LogDate("2024-03-04"), created.Table.Date)
	require.Len(t, created.Table.Rows, 1)

	rr = s.do(t, http.MethodPost, "/api/v1/tables/"+id+"/rows", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[TableResponse](t, rr).Table.Rows, 2)

	rr = s.do(t, http.MethodPatch, "/api/v1/tables/"+id+"/rows/1", token, gin.H{
		"exercise":    "Deadlift",
		"muscleGroup": "Back",
		"sets":        []gin.H{{"reps": "5", "weight": "140"}},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	patched := decode[TableResponse](t, rr)
	assert.True(t, patched.Pending)
	assert.Equal(t, "Deadlift", patched.Table.Rows[1].Exercise)

	ctx := auth.WithUser(context.Background(), mustParse(t, s.auth, token))
	stored, err := s.logs.Get(ctx, id)
	require.NoError(t, err)
	assert.Len(t, stored.Rows, 1, "edits wait for the auto-save delay")

	s.clock.Advance(autosave.DefaultDelay)
	stored, err = s.logs.Get(ctx, id)
	require.NoError(t, err)
	require.Len(t, stored.Rows, 2)
	assert.Equal(t, "Deadlift", stored.Rows[1].Exercise)

	rr = s.do(t, http.MethodGet, "/api/v1/tables", token, nil)
	list := decode[ListTablesResponse](t, rr)
	assert.Equal(t, service.ListLoaded, list.State)
	require.Len(t, list.Tables, 1)
	assert.Equal(t, id, list.Tables[0].ID)

	rr = s.do(t, http.MethodGet, "/api/v1/autocomplete/exercises?muscleGroup=back", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"Deadlift"}, decode[NamesResponse](t, rr).Names)

	rr = s.do(t, http.MethodDelete, "/api/v1/tables/"+id, token, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = s.do(t, http.MethodGet, "/api/v1/tables/"+id, token, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRowAndSetEdits(t *testing.T) {
	s := newTestServer(t, nil)
	token := s.token(t, "sets@example.com")

	rr := s.do(t, http.MethodPost, "/api/v1/tables", token, nil)
	id := decode[TableResponse](t, rr).Table.ID
	base := "/api/v1/tables/" + id

	rr = s.do(t, http.MethodPost, base+"/rows/0/sets", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[TableResponse](t, rr).Table.Rows[0].Sets, 2)

	rr = s.do(t, http.MethodDelete, base+"/rows/0/sets/1", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[TableResponse](t, rr).Table.Rows[0].Sets, 1)

	rr = s.do(t, http.MethodDelete, base+"/rows/0/sets/0", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[TableResponse](t, rr).Table.Rows[0].Sets, 1, "a row keeps one set")

	rr = s.do(t, http.MethodPost, base+"/rows/0/toggle-unit", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, domain.UnitKg, decode[TableResponse](t, rr).Table.Rows[0].WeightUnit)

	rr = s.do(t, http.MethodDelete, base+"/rows/last", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[TableResponse](t, rr).Table.Rows, 1, "the last row stays")

	rr = s.do(t, http.MethodPatch, base+"/rows/7", token, gin.H{"exercise": "Row"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do(t, http.MethodPatch, base+"/rows/abc", token, gin.H{"exercise": "Row"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do(t, http.MethodPatch, base+"/rows/0", token, gin.H{"weightUnit": "stone"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do(t, http.MethodPatch, base, token, gin.H{"tableName": "  Push Day  ", "date": "2024-03-01"})
	require.Equal(t, http.StatusOK, rr.Code)
	renamed := decode[TableResponse](t, rr)
	assert.Equal(t, "Push Day", renamed.Table.TableName)
	assert.Equal(t, domain.LogDate("2024-03-01"), renamed.Table.Date)

	rr = s.do(t, http.MethodPost, base+"/flush", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.False(t, decode[TableResponse](t, rr).Pending)
}

func TestPutTableAndActive(t *testing.T) {
	s := newTestServer(t, nil)
	alice := s.token(t, "alice@example.com")
	bob := s.token(t, "bob@example.com")

	rr := s.do(t, http.MethodGet, "/api/v1/active", alice, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = s.do(t, http.MethodPut, "/api/v1/tables/legacy-1", alice, gin.H{
		"tableName": "Imported",
		"date":      gin.H{"today": "2023-12-31"},
		"rows":      []gin.H{{"exercise": "Squat", "sets": []gin.H{{"reps": 5, "weight": 100}}}},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	saved := decode[TableResponse](t, rr).Table
	assert.Equal(t, "legacy-1", saved.ID)
	assert.Equal(t, domain.LogDate("2023-12-31"), saved.Date)
	assert.Equal(t, "100", saved.Rows[0].Sets[0].Weight)

	rr = s.do(t, http.MethodGet, "/api/v1/active", alice, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "legacy-1", decode[domain.LogRecord](t, rr).ID)

	rr = s.do(t, http.MethodGet, "/api/v1/active", bob, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = s.do(t, http.MethodGet, "/api/v1/tables/legacy-1", bob, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = s.do(t, http.MethodPut, "/api/v1/tables/x", alice, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestListFetchFailed(t *testing.T) {
	s := newTestServer(t, func(_ *testServer, d *Dependencies) {
		d.Logs = service.NewLogManager(unreachableRepo{}, nil, time.Now)
	})
	token := s.token(t, "offline@example.com")

	rr := s.do(t, http.MethodGet, "/api/v1/tables", token, nil)
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	resp := decode[ListTablesResponse](t, rr)
	assert.Equal(t, service.ListFetchFailed, resp.State)
	assert.Empty(t, resp.Tables)
	assert.Contains(t, resp.Error, "server selection timeout")
}

func TestTemplatesAndSearch(t *testing.T) {
	s := newTestServer(t, nil)
	token := s.token(t, "planner@example.com")

	rr := s.do(t, http.MethodGet, "/api/v1/templates", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	templates := decode[TemplatesResponse](t, rr).Templates
	require.NotEmpty(t, templates)
	assert.Equal(t, "push-day", templates[0].ID)

	rr = s.do(t, http.MethodPost, "/api/v1/tables?template=pull-day", token, nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decode[TableResponse](t, rr)
	assert.Equal(t, "Pull Day", created.Table.TableName)
	require.Len(t, created.Table.Rows, 5)
	assert.Equal(t, "Pull-ups", created.Table.Rows[0].Exercise)

	rr = s.do(t, http.MethodPost, "/api/v1/tables?template=arm-day", token, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do(t, http.MethodGet, "/api/v1/search?q=curls", token, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	found := decode[service.SearchResult](t, rr)
	require.Len(t, found.Logs, 1)
	assert.Equal(t, created.Table.ID, found.Logs[0].ID)
	assert.ElementsMatch(t, []string{"Barbell Curls", "Hammer Curls"}, found.Logs[0].MatchedExercises)

	rr = s.do(t, http.MethodGet, "/api/v1/search?q=curls&from=2030-01-01", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decode[service.SearchResult](t, rr).Logs)

	other := s.token(t, "someone-else@example.com")
	rr = s.do(t, http.MethodGet, "/api/v1/search?q=curls", other, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decode[service.SearchResult](t, rr).Logs, "search only sees the caller's logs")
}

func TestOptionalFeaturesNotConfigured(t *testing.T) {
	s := newTestServer(t, nil)
	token := s.token(t, "plain@example.com")

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/insights"},
		{http.MethodPost, "/api/v1/import"},
		{http.MethodPost, "/api/v1/export"},
	} {
		rr := s.do(t, tc.method, tc.path, token, nil)
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code, tc.path)
	}
}

func TestSyncStatus(t *testing.T) {
	s := newTestServer(t, nil)
	token := s.token(t, "status@example.com")

	rr := s.do(t, http.MethodPost, "/api/v1/tables", token, nil)
	id := decode[TableResponse](t, rr).Table.ID
	s.do(t, http.MethodPost, "/api/v1/tables/"+id+"/rows", token, nil)

	rr = s.do(t, http.MethodGet, "/api/v1/sync-status", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	status := decode[syncstatus.Status](t, rr)
	assert.Equal(t, 1, status.PendingSyncs)

	s.clock.Advance(autosave.DefaultDelay)
	rr = s.do(t, http.MethodGet, "/api/v1/sync-status", token, nil)
	assert.Zero(t, decode[syncstatus.Status](t, rr).PendingSyncs)
}

func TestRecoveryGuard(t *testing.T) {
	m, _ := metrics.NewTestManagerAndRegistry()
	router := gin.New()
	router.Use(Recovery(m))
	router.GET("/boom", func(c *gin.Context) { panic("nil row") })

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	body := decode[map[string]any](t, rr)
	assert.NotEmpty(t, body["error"])
	assert.Equal(t, map[string]any{"actions": []any{"retry", "reload", "home"}}, body["recovery"])
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CounterHandleRequestPanic))
}

func mustParse(t *testing.T, svc service.AuthService, token string) domain.AuthUser {
	t.Helper()
	u, err := svc.ParseToken(token)
	require.NoError(t, err)
	return u
}

var errServerSelection = errors.New("server selection timeout")

type unreachableRepo struct{}

func (unreachableRepo) Get(context.Context, string) (*domain.LogRecord, error) {
	return nil, errServerSelection
}
func (unreachableRepo) Put(context.Context, domain.LogRecord) (domain.LogRecord, error) {
	return domain.LogRecord{}, errServerSelection
}
func (unreachableRepo) Delete(context.Context, string) error { return errServerSelection }
func (unreachableRepo) List(context.Context) ([]domain.LogSummary, error) {
	return nil, errServerSelection
}
func (unreachableRepo) All(context.Context) ([]domain.LogRecord, error) {
	return nil, errServerSelection
}
