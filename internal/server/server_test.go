package server

import (
	"bytes"
	"encoding/json"
	"mime"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitebski/schema-designer/internal/autosave"
	"github.com/vitebski/schema-designer/internal/designer"
	"github.com/vitebski/schema-designer/internal/store"
	"github.com/vitebski/schema-designer/pkg/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func createTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel) // Suppress log output during tests
	return logger
}

type testEnv struct {
	server *Server
	store  *store.BadgerStore
	clock  *autosave.ManualClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := createTestLogger()

	st, err := store.NewBadgerStore(store.InMemoryBadgerConfig(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	clock := autosave.NewManualClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	manager := designer.NewManager(st, designer.Options{Clock: clock}, logger)
	srv := NewServer(manager, nil, logger)
	srv.SampleTables = 3
	return &testEnv{server: srv, store: st, clock: clock}
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func (e *testEnv) do(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(UserHeader, user)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, data any) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	if data != nil {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}

func (e *testEnv) createSchema(t *testing.T, user string, body any) models.SchemaRecord {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/schemas", user, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var record models.SchemaRecord
	decode(t, rec, &record)
	return record
}

func shopGraph() models.Graph {
	return models.Graph{
		Nodes: []models.Node{
			{ID: "users", Type: models.KindTable, Data: models.NodeData{Label: "users", Columns: []models.Column{
				{Name: "id", Type: models.TypeInteger, IsPrimary: true},
				{Name: "email", Type: models.TypeVarchar},
			}}},
			{ID: "orders", Type: models.KindTable, Data: models.NodeData{Label: "orders", Columns: []models.Column{
				{Name: "id", Type: models.TypeInteger, IsPrimary: true},
				{Name: "user_id", Type: models.TypeInteger, IsForeignKey: true},
			}}},
		},
		Edges: []models.Edge{{ID: "fk", Source: "orders", Target: "users"}},
	}
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = env.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "schema_designer_http_requests_total")
}

func TestSchemaRoutesRequireUser(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/api/v1/schemas", "/api/v1/schemas/s1", "/api/v1/schemas/s1/history", "/api/v1/dashboard"} {
		rec := env.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
		resp := decode(t, rec, nil)
		assert.Equal(t, "error", resp.Status)
	}

	rec := env.do(t, http.MethodPost, "/api/v1/schemas", "", map[string]string{"name": "x"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 0, env.server.Manager.OpenSessions())
}

func TestCreateListAndGet(t *testing.T) {
	env := newTestEnv(t)

	blank := env.createSchema(t, "alice", map[string]string{"name": "Blank"})
	assert.Equal(t, "Blank", blank.Name)
	assert.Empty(t, blank.Nodes)

	env.clock.Advance(time.Minute)
	sample := env.createSchema(t, "alice", map[string]string{"name": "Demo", "template": "sample"})
	assert.Len(t, sample.Nodes, 4)

	env.createSchema(t, "bob", map[string]any{"graph": shopGraph()})

	rec := env.do(t, http.MethodGet, "/api/v1/schemas", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []models.SchemaRecord
	decode(t, rec, &list)
	require.Len(t, list, 2)
	assert.Equal(t, sample.ID, list[0].ID, "newest first")

	rec = env.do(t, http.MethodGet, "/api/v1/schemas/"+blank.ID, "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.SchemaRecord
	decode(t, rec, &got)
	assert.Equal(t, "Blank", got.Name)

	rec = env.do(t, http.MethodGet, "/api/v1/schemas/"+blank.ID, "bob", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateRejectsUnknownTemplate(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/schemas", "alice", map[string]string{"template": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestActionsUndoRedo(t *testing.T) {
	env := newTestEnv(t)
	record := env.createSchema(t, "alice", map[string]any{"name": "Shop", "graph": shopGraph()})
	base := "/api/v1/schemas/" + record.ID

	rec := env.do(t, http.MethodPost, base+"/actions", "alice", `{"type":"addTable","label":"products"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp graphResponse
	decode(t, rec, &resp)
	assert.Len(t, resp.Graph.Nodes, 3)
	assert.True(t, resp.Pending)
	assert.False(t, resp.History.CanUndo, "history only grows when a save succeeds")

	// the quiet period ends and the change is written
	env.clock.Advance(2 * time.Second)

	rec = env.do(t, http.MethodGet, base+"/history", "alice", nil)
	var h struct {
		Length  int  `json:"length"`
		CanUndo bool `json:"canUndo"`
	}
	decode(t, rec, &h)
	assert.Equal(t, 2, h.Length)
	assert.True(t, h.CanUndo)

	rec = env.do(t, http.MethodPost, base+"/undo", "alice", nil)
	decode(t, rec, &resp)
	assert.True(t, resp.Changed)
	assert.Len(t, resp.Graph.Nodes, 2)
	assert.True(t, resp.History.CanRedo)

	rec = env.do(t, http.MethodPost, base+"/redo", "alice", nil)
	decode(t, rec, &resp)
	assert.Len(t, resp.Graph.Nodes, 3)

	rec = env.do(t, http.MethodGet, base+"/notifications", "alice", nil)
	var notes []autosave.Notification
	decode(t, rec, &notes)
	require.NotEmpty(t, notes)
	assert.Equal(t, autosave.LevelSuccess, notes[0].Level)
}

func TestActionErrors(t *testing.T) {
	env := newTestEnv(t)
	record := env.createSchema(t, "alice", map[string]any{"graph": shopGraph()})
	base := "/api/v1/schemas/" + record.ID

	rec := env.do(t, http.MethodPost, base+"/actions", "alice", `{"type":"explode"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, base+"/actions", "alice", `{"type":"connect","source":"orders","target":"ghost"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/schemas/missing/actions", "alice", `{"type":"addTable"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSaveRenameAndClose(t *testing.T) {
	env := newTestEnv(t)
	record := env.createSchema(t, "alice", map[string]any{"graph": shopGraph()})
	base := "/api/v1/schemas/" + record.ID

	rec := env.do(t, http.MethodPatch, base, "alice", map[string]string{"name": "Renamed"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, base+"/save", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	stored, err := env.store.ReadSchema(t.Context(), "alice", record.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", stored.Name)

	rec = env.do(t, http.MethodPost, base+"/close", "alice", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, env.server.Manager.OpenSessions())
}

func TestExportSchema(t *testing.T) {
	env := newTestEnv(t)
	record := env.createSchema(t, "alice", map[string]any{"name": "Shop", "graph": shopGraph()})
	base := "/api/v1/schemas/" + record.ID

	rec := env.do(t, http.MethodGet, base+"/export?format=sql", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "attachment; filename=Shop.sql", rec.Header().Get("Content-Disposition"))
	assert.Contains(t, rec.Body.String(), "CREATE TABLE users (\n  id INTEGER PRIMARY KEY,\n  email VARCHAR\n);")
	assert.Contains(t, rec.Body.String(), "ALTER TABLE orders ADD FOREIGN KEY (user_id) REFERENCES users(id);")

	rec = env.do(t, http.MethodGet, base+"/export?format=json", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json"))
	assert.True(t, json.Valid(rec.Body.Bytes()))

	rec = env.do(t, http.MethodGet, base+"/export?format=xml", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportGraphWithoutIdentity(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/export?format=sql", "", map[string]any{"name": "Draft", "graph": shopGraph()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "attachment; filename=Draft.sql", rec.Header().Get("Content-Disposition"))
	assert.Contains(t, rec.Body.String(), "CREATE TABLE orders")

	rec = env.do(t, http.MethodPost, "/api/v1/export", "", map[string]string{"name": "Draft"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportFileNameIsQuoted(t *testing.T) {
	env := newTestEnv(t)
	name := `Bob's "shop"; v2`
	record := env.createSchema(t, "alice", map[string]any{"name": name, "graph": shopGraph()})

	rec := env.do(t, http.MethodGet, "/api/v1/schemas/"+record.ID+"/export?format=sql", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	disposition, params, err := mime.ParseMediaType(rec.Header().Get("Content-Disposition"))
	require.NoError(t, err)
	assert.Equal(t, "attachment", disposition)
	assert.Equal(t, name+".sql", params["filename"])
	assert.Len(t, params, 1)
}

func TestAnalysisAndDashboard(t *testing.T) {
	env := newTestEnv(t)
	record := env.createSchema(t, "alice", map[string]any{"graph": shopGraph()})
	env.createSchema(t, "alice", map[string]string{"name": "Blank"})

	rec := env.do(t, http.MethodGet, "/api/v1/schemas/"+record.ID+"/analysis", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var report struct {
		Tables        int `json:"tables"`
		Relationships int `json:"relationships"`
		CreationOrder []struct {
			Name string `json:"name"`
		} `json:"creationOrder"`
	}
	decode(t, rec, &report)
	assert.Equal(t, 2, report.Tables)
	assert.Equal(t, 1, report.Relationships)
	require.Len(t, report.CreationOrder, 2)
	assert.Equal(t, "users", report.CreationOrder[0].Name)

	rec = env.do(t, http.MethodGet, "/api/v1/dashboard", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats models.DashboardStats
	decode(t, rec, &stats)
	assert.Equal(t, 2, stats.TotalSchemas)
	assert.Equal(t, 2, stats.TotalTables)
	assert.Equal(t, 1, stats.TotalRelationships)
}

func TestDeleteSchema(t *testing.T) {
	env := newTestEnv(t)
	record := env.createSchema(t, "alice", map[string]any{"graph": shopGraph()})
	base := "/api/v1/schemas/" + record.ID

	env.do(t, http.MethodPost, base+"/actions", "alice", `{"type":"addTable"}`)
	rec := env.do(t, http.MethodDelete, base, "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	env.clock.Advance(time.Minute)
	rec = env.do(t, http.MethodGet, base, "alice", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPresence(t *testing.T) {
	env := newTestEnv(t)
	base := "/api/v1/schemas/s1/presence"

	rec := env.do(t, http.MethodGet, base, "alice", nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	env.server.Presence = store.NewRedisStore(client, createTestLogger())

	rec = env.do(t, http.MethodPost, base, "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodPost, base+"?owner=alice", "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, base, "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var presence struct {
		Collaborators []string `json:"collaborators"`
	}
	decode(t, rec, &presence)
	assert.ElementsMatch(t, []string{"alice", "bob"}, presence.Collaborators)
}
