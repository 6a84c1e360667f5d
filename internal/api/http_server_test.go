package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"taskcal/internal/apperr"
	"taskcal/internal/calendar"
	"taskcal/internal/config"
	"taskcal/internal/database"
	"taskcal/internal/domain"
	"taskcal/internal/events"
	"taskcal/internal/models"
	"taskcal/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const testSecret = "test-secret"

type envelope struct {
	Success bool                       `json:"success"`
	Message string                     `json:"message"`
	Data    json.RawMessage            `json:"data"`
	Meta    map[string]json.RawMessage `json:"meta"`
}

func (e envelope) sync(t *testing.T) models.SyncOutcome {
	t.Helper()
	var out models.SyncOutcome
	require.NoError(t, json.Unmarshal(e.Meta["sync"], &out))
	return out
}

type testEnv struct {
	ts   *httptest.Server
	db   *database.DB
	auth *JWTAuth
}

func newTestEnv(t *testing.T, cal domain.CalendarSync, apiCfg config.APIConfig) *testEnv {
	t.Helper()
	logger := zerolog.New(io.Discard)

	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	if apiCfg.Auth.JWTSecret == "" {
		apiCfg.Auth.JWTSecret = testSecret
	}
	tasks := service.NewTaskService(db, cal, events.NewEventBus(), &logger)
	checks := []ReadinessCheck{{Name: "database", Check: db.PingContext}}
	srv := NewHTTPServer(apiCfg, tasks, "", checks, &logger)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, db: db, auth: NewJWTAuth(apiCfg.Auth)}
}

func (e *testEnv) token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := e.auth.Issue(userID, time.Hour)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, token, body string) (*http.Response, envelope) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var env envelope
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp, env
}

// noCalendar behaves like a user who never linked a calendar.
type noCalendar struct{}

func (noCalendar) CreateEvent(_ context.Context, _ string, task *models.Task) models.SyncOutcome {
	if !task.HasTimeBounds() {
		return models.Skipped("Task has no start and end time")
	}
	return models.Skipped("No calendar linked for this user")
}
func (noCalendar) UpdateEvent(_ context.Context, _ string, task *models.Task) models.SyncOutcome {
	if !task.HasTimeBounds() || task.EventID() == "" {
		return models.Skipped("Task has no start and end time")
	}
	return models.Skipped("No calendar linked for this user")
}
func (noCalendar) DeleteEvent(context.Context, string, string) models.SyncOutcome {
	return models.Skipped("No calendar linked for this user")
}

func TestCreateTaskWithoutCalendar(t *testing.T) {
	env := newTestEnv(t, noCalendar{}, config.APIConfig{})
	tok := env.token(t, "user-1")

	resp, body := env.do(t, http.MethodPost, "/api/v1/tasks", tok,
		`{"title":"Write report","startTime":"2024-01-01T09:00:00Z","endTime":"2024-01-01T10:00:00Z"}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.True(t, body.Success)
	assert.Equal(t, "Task created", body.Message)
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))

	var data map[string]any
	require.NoError(t, json.Unmarshal(body.Data, &data))
	assert.NotContains(t, data, "externalEventId")
	assert.Equal(t, "pending", data["status"])
	assert.Equal(t, "user-1", data["userId"])
	assert.False(t, body.sync(t).Succeeded)
}

func TestCreateTaskValidation(t *testing.T) {
	env := newTestEnv(t, noCalendar{}, config.APIConfig{})
	tok := env.token(t, "user-1")

	cases := map[string]string{
		"StartAfterEnd": `{"title":"x","startTime":"2024-01-01T10:00:00Z","endTime":"2024-01-01T09:00:00Z"}`,
		"EqualTimes":    `{"title":"x","startTime":"2024-01-01T10:00:00Z","endTime":"2024-01-01T10:00:00Z"}`,
		"MissingTitle":  `{"description":"x"}`,
		"UnknownField":  `{"title":"x","priority":3}`,
		"BadJSON":       `{"title":`,
		"WrongType":     `{"title":5}`,
		"BadStatus":     `{"title":"x","status":"later"}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			resp, body := env.do(t, http.MethodPost, "/api/v1/tasks", tok, payload)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.False(t, body.Success)
			assert.NotEmpty(t, body.Message)
		})
	}

	_, list := env.do(t, http.MethodGet, "/api/v1/tasks", tok, "")
	assert.JSONEq(t, `[]`, string(list.Data))
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t, noCalendar{}, config.APIConfig{})

	resp, body := env.do(t, http.MethodGet, "/api/v1/tasks", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.False(t, body.Success)

	resp, _ = env.do(t, http.MethodGet, "/api/v1/tasks", "not-a-jwt", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	other := NewJWTAuth(config.APIAuthConfig{JWTSecret: "other-secret"})
	forged, err := other.Issue("user-1", time.Hour)
	require.NoError(t, err)
	resp, _ = env.do(t, http.MethodGet, "/api/v1/tasks", forged, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUpdateTitleOnlySkipsSync(t *testing.T) {
	env := newTestEnv(t, noCalendar{}, config.APIConfig{})
	tok := env.token(t, "user-1")

	_, created := env.do(t, http.MethodPost, "/api/v1/tasks", tok, `{"title":"Untimed"}`)
	var task models.Task
	require.NoError(t, json.Unmarshal(created.Data, &task))

	resp, body := env.do(t, http.MethodPatch, "/api/v1/tasks/"+task.ID, tok, `{"title":"Renamed"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, body.Success)
	assert.False(t, body.sync(t).Attempted)

	var updated models.Task
	require.NoError(t, json.Unmarshal(body.Data, &updated))
	assert.Equal(t, "Renamed", updated.Title)
}

func TestPatchNullClearsField(t *testing.T) {
	env := newTestEnv(t, noCalendar{}, config.APIConfig{})
	tok := env.token(t, "user-1")

	_, created := env.do(t, http.MethodPost, "/api/v1/tasks", tok,
		`{"title":"t","description":"d","startTime":"2024-01-01T09:00:00Z","endTime":"2024-01-01T10:00:00Z"}`)
	var task models.Task
	require.NoError(t, json.Unmarshal(created.Data, &task))

	_, body := env.do(t, http.MethodPatch, "/api/v1/tasks/"+task.ID, tok, `{"description":null,"startTime":null,"endTime":null}`)
	var updated models.Task
	require.NoError(t, json.Unmarshal(body.Data, &updated))
	assert.Nil(t, updated.Description)
	assert.Nil(t, updated.StartTime)
	assert.Nil(t, updated.EndTime)
}

func TestOwnershipLooksLikeMissing(t *testing.T) {
	env := newTestEnv(t, noCalendar{}, config.APIConfig{})
	owner := env.token(t, "owner")
	intruder := env.token(t, "intruder")

	_, created := env.do(t, http.MethodPost, "/api/v1/tasks", owner, `{"title":"mine"}`)
	var task models.Task
	require.NoError(t, json.Unmarshal(created.Data, &task))

	for _, id := range []string{task.ID, "missing-id"} {
		for _, method := range []string{http.MethodGet, http.MethodPatch, http.MethodDelete} {
			payload := ""
			if method == http.MethodPatch {
				payload = `{"title":"stolen"}`
			}
			resp, body := env.do(t, method, "/api/v1/tasks/"+id, intruder, payload)
			assert.Equal(t, http.StatusNotFound, resp.StatusCode, method+" "+id)
			assert.Equal(t, "Task not found", body.Message)
		}
	}
}

func TestListAndExport(t *testing.T) {
	env := newTestEnv(t, noCalendar{}, config.APIConfig{})
	tok := env.token(t, "user-1")

	env.do(t, http.MethodPost, "/api/v1/tasks", tok, `{"title":"a"}`)
	env.do(t, http.MethodPost, "/api/v1/tasks", tok, `{"title":"b","status":"completed"}`)

	_, all := env.do(t, http.MethodGet, "/api/v1/tasks", tok, "")
	assert.JSONEq(t, `2`, string(all.Meta["count"]))

	_, done := env.do(t, http.MethodGet, "/api/v1/tasks?status=completed", tok, "")
	assert.JSONEq(t, `1`, string(done.Meta["count"]))

	resp, _ := env.do(t, http.MethodGet, "/api/v1/tasks?status=later", tok, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, env.ts.URL+"/api/v1/tasks/export", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tok)
	xresp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer xresp.Body.Close()
	assert.Equal(t, http.StatusOK, xresp.StatusCode)

	f, err := excelize.OpenReader(xresp.Body)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Tasks")
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestReadiness(t *testing.T) {
	env := newTestEnv(t, noCalendar{}, config.APIConfig{})

	resp, body := env.do(t, http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `"ok"`, string(body.Meta["database"]))

	require.NoError(t, env.db.Close())
	resp, body = env.do(t, http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.False(t, body.Success)
}

func TestRateLimitPerUser(t *testing.T) {
	env := newTestEnv(t, noCalendar{}, config.APIConfig{RateLimit: config.APIRateLimitConfig{RPS: 0.001, Burst: 1}})
	a := env.token(t, "a")
	b := env.token(t, "b")

	resp, _ := env.do(t, http.MethodGet, "/api/v1/tasks", a, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, body := env.do(t, http.MethodGet, "/api/v1/tasks", a, "")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.False(t, body.Success)

	resp, _ = env.do(t, http.MethodGet, "/api/v1/tasks", b, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// fakeProvider answers the identity probe and the calendar event endpoints.
type fakeProvider struct {
	server      *httptest.Server
	createCode  int
	createCalls atomic.Int32
	deleteCode  int
	deleteCalls atomic.Int32
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	p := &fakeProvider{deleteCode: http.StatusNoContent}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /oauth2/v2/userinfo", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "g-1"})
	})
	mux.HandleFunc("POST /calendar/v3/calendars/primary/events", func(w http.ResponseWriter, r *http.Request) {
		p.createCalls.Add(1)
		if p.createCode != 0 {
			w.WriteHeader(p.createCode)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "ev123"})
	})
	mux.HandleFunc("PATCH /calendar/v3/calendars/primary/events/{id}", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"id": r.PathValue("id")})
	})
	mux.HandleFunc("DELETE /calendar/v3/calendars/primary/events/{id}", func(w http.ResponseWriter, r *http.Request) {
		p.deleteCalls.Add(1)
		w.WriteHeader(p.deleteCode)
	})
	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)
	return p
}

func newGatewayEnv(t *testing.T, provider *fakeProvider) *testEnv {
	t.Helper()
	logger := zerolog.New(io.Discard)
	calCfg := config.CalendarConfig{
		CalendarID:       "primary",
		CalendarEndpoint: provider.server.URL + "/calendar/v3/",
		IdentityEndpoint: provider.server.URL + "/",
		ProbeTimeout:     time.Second,
		RequestTimeout:   time.Second,
	}

	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.SaveCredential(context.Background(), &models.ExternalCredential{UserID: "user-1", AccessToken: "tok"}))

	gw := calendar.NewGateway(calendar.NewResolver(db), calendar.NewProber(calCfg, nil, &logger), calCfg, &logger)
	apiCfg := config.APIConfig{Auth: config.APIAuthConfig{JWTSecret: testSecret}}
	srv := NewHTTPServer(apiCfg, service.NewTaskService(db, gw, nil, &logger), "", nil, &logger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, db: db, auth: NewJWTAuth(apiCfg.Auth)}
}

func TestDeleteLinkedTask(t *testing.T) {
	for _, code := range []int{http.StatusNoContent, http.StatusGone, http.StatusBadGateway} {
		t.Run(http.StatusText(code), func(t *testing.T) {
			provider := newFakeProvider(t)
			provider.deleteCode = code
			env := newGatewayEnv(t, provider)
			tok := env.token(t, "user-1")

			_, created := env.do(t, http.MethodPost, "/api/v1/tasks", tok,
				`{"title":"Write report","startTime":"2024-01-01T09:00:00Z","endTime":"2024-01-01T10:00:00Z"}`)
			require.True(t, created.sync(t).Succeeded)
			var task models.Task
			require.NoError(t, json.Unmarshal(created.Data, &task))
			require.Equal(t, "ev123", task.EventID())

			resp, body := env.do(t, http.MethodDelete, "/api/v1/tasks/"+task.ID, tok, "")
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.JSONEq(t, `{"deleted":true}`, string(body.Data))
			assert.Equal(t, code != http.StatusBadGateway, body.sync(t).Succeeded)
			assert.Equal(t, int32(1), provider.deleteCalls.Load())

			found, err := env.db.FindTask(context.Background(), "user-1", task.ID)
			require.NoError(t, err)
			assert.Nil(t, found)
		})
	}
}

func TestCreateProviderFailureCalledOnce(t *testing.T) {
	provider := newFakeProvider(t)
	provider.createCode = http.StatusServiceUnavailable
	env := newGatewayEnv(t, provider)
	tok := env.token(t, "user-1")

	resp, created := env.do(t, http.MethodPost, "/api/v1/tasks", tok,
		`{"title":"Write report","startTime":"2024-01-01T09:00:00Z","endTime":"2024-01-01T10:00:00Z"}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	outcome := created.sync(t)
	assert.True(t, outcome.Attempted)
	assert.False(t, outcome.Succeeded)
	assert.Equal(t, int32(1), provider.createCalls.Load())

	var task models.Task
	require.NoError(t, json.Unmarshal(created.Data, &task))
	assert.Empty(t, task.EventID())
}

func TestUpdateKeepsEventIDWhenUnchanged(t *testing.T) {
	provider := newFakeProvider(t)
	env := newGatewayEnv(t, provider)
	tok := env.token(t, "user-1")

	_, created := env.do(t, http.MethodPost, "/api/v1/tasks", tok,
		`{"title":"a","startTime":"2024-01-01T09:00:00Z","endTime":"2024-01-01T10:00:00Z"}`)
	var task models.Task
	require.NoError(t, json.Unmarshal(created.Data, &task))

	_, body := env.do(t, http.MethodPatch, "/api/v1/tasks/"+task.ID, tok, `{"status":"in_progress"}`)
	assert.True(t, body.sync(t).Succeeded)

	stored, err := env.db.FindTask(context.Background(), "user-1", task.ID)
	require.NoError(t, err)
	assert.Equal(t, "ev123", stored.EventID())
	assert.True(t, task.StartTime.Equal(*stored.StartTime))
}

func TestJWTVerify(t *testing.T) {
	a := NewJWTAuth(config.APIAuthConfig{JWTSecret: testSecret, Issuer: "taskcal"})

	tok, err := a.Issue("u1", time.Hour)
	require.NoError(t, err)
	sub, err := a.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", sub)

	expired, err := a.Issue("u1", -time.Minute)
	require.NoError(t, err)
	_, err = a.Verify(expired)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Token expired")

	noSub, err := a.Issue("", time.Hour)
	require.NoError(t, err)
	_, err = a.Verify(noSub)
	assert.Error(t, err)

	wrongIssuer := NewJWTAuth(config.APIAuthConfig{JWTSecret: testSecret, Issuer: "other"})
	tok, err = wrongIssuer.Issue("u1", time.Hour)
	require.NoError(t, err)
	_, err = a.Verify(tok)
	assert.ErrorIs(t, err, apperr.ErrAuth)
}
