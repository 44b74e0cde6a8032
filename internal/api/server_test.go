package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	_ "github.com/mattn/go-sqlite3"

	"github.com/nerrad567/mhi-hvac-core/internal/bridge"
	"github.com/nerrad567/mhi-hvac-core/internal/hvac"
	"github.com/nerrad567/mhi-hvac-core/internal/infrastructure/config"
	"github.com/nerrad567/mhi-hvac-core/internal/infrastructure/logging"
	"github.com/nerrad567/mhi-hvac-core/internal/sclink"
)

// mockWriter records writes and fails for selected units.
type mockWriter struct {
	mu     sync.Mutex
	ops    []hvac.WriteOp
	errFor map[hvac.UnitID]error
}

func (w *mockWriter) Write(_ context.Context, op hvac.WriteOp) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ops = append(w.ops, op)
	return w.errFor[op.Unit]
}

func (w *mockWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.ops)
}

// mockController implements Controller.
type mockController struct {
	mu        sync.Mutex
	refreshes int
}

func (c *mockController) IsConnected() bool { return true }

func (c *mockController) Stats() sclink.ManagerStats {
	return sclink.ManagerStats{State: "polling", Connected: true, Endpoint: "tcp://192.0.2.10:9950", PollsTotal: 12}
}

func (c *mockController) RequestRefresh() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshes++
}

// countingRepublisher counts Republish calls.
type countingRepublisher struct {
	mu    sync.Mutex
	calls int
}

func (r *countingRepublisher) Republish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
}

func (r *countingRepublisher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type testEnv struct {
	srv         *Server
	registry    *hvac.Registry
	writer      *mockWriter
	history     *hvac.SQLiteHistoryRepository
	controller  *mockController
	republisher *countingRepublisher
}

func uid(block, unit int) hvac.UnitID {
	return hvac.UnitID{Block: block, Unit: unit}
}

func ptr[T any](v T) *T {
	return &v
}

// testServer creates a Server over units 1-01..1-03 and 2-01 with group
// "Office" of 1-01..1-03 and history backed by in-memory SQLite.
func testServer(t *testing.T) *testEnv {
	t.Helper()

	bounds := hvac.Bounds{Min: 18, Max: 30}
	registry, err := hvac.NewRegistry(bounds, []hvac.UnitConfig{
		{ID: uid(1, 1)}, {ID: uid(1, 2)}, {ID: uid(1, 3)}, {ID: uid(2, 1)},
	})
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	now := time.Now()
	for _, id := range registry.IDs() {
		registry.ApplyStatus(id, hvac.UnitStatus{
			Power: true, Mode: hvac.ModeCool, Target: 22, Fan: hvac.FanMedium, Swing: hvac.SwingAuto,
			RoomTemp: 24, RoomTempValid: true,
		}, now)
	}

	resolver, err := hvac.NewResolver(registry, []hvac.Group{
		{Name: "Office", Members: []hvac.UnitID{uid(1, 1), uid(1, 2), uid(1, 3)}},
	})
	if err != nil {
		t.Fatalf("NewResolver() error = %v", err)
	}
	modeSets, err := hvac.NewModeSets([]hvac.ModeSet{
		{Name: "Summer", Modes: []hvac.HVACMode{hvac.ModeCool, hvac.ModeDry, hvac.ModeFanOnly}},
		{Name: "Winter", Modes: []hvac.HVACMode{hvac.ModeHeat, hvac.ModeFanOnly}},
	}, "")
	if err != nil {
		t.Fatalf("NewModeSets() error = %v", err)
	}
	presets, err := hvac.NewPresets([]hvac.Preset{
		{Name: "Comfort", Mode: hvac.ModeCool, Target: ptr(22.0)},
		{Name: "Warm", Mode: hvac.ModeHeat, Target: ptr(24.0)},
	}, bounds)
	if err != nil {
		t.Fatalf("NewPresets() error = %v", err)
	}

	db := setupTestDB(t)
	env := &testEnv{
		registry:    registry,
		writer:      &mockWriter{errFor: make(map[hvac.UnitID]error)},
		history:     hvac.NewSQLiteHistoryRepository(db),
		controller:  &mockController{},
		republisher: &countingRepublisher{},
	}

	svc, err := hvac.NewService(hvac.ServiceOptions{
		Registry: registry,
		Resolver: resolver,
		ModeSets: modeSets,
		Presets:  presets,
		Writer:   env.writer,
		Device:   hvac.DeviceInfo{Name: "Plant room", Manufacturer: "Mitsubishi Heavy Industries", Model: "SC-SL4"},
	})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	env.srv, err = New(Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logger:      log,
		Service:     svc,
		History:     env.history,
		Controller:  env.controller,
		Republisher: env.republisher,
		DB:          db,
		Version:     "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go env.srv.Hub().Run(ctx)

	return env
}

// setupTestDB creates an in-memory SQLite database with the history table.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	schema := `
		CREATE TABLE unit_state_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			unit_id TEXT NOT NULL,
			state TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT 'poll',
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;
	`
	if _, execErr := db.Exec(schema); execErr != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", execErr)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.srv.buildRouter().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("unmarshal %s: %v", w.Body.String(), err)
	}
	return v
}

// ─── Health and Middleware ─────────────────────────────────────────

func TestHealth(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodGet, "/api/v1/health", "")
	if w.Code != http.StatusOK {
		t.Errorf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	resp := decode[map[string]any](t, w)
	if resp["status"] != "ok" || resp["version"] != "test" {
		t.Errorf("health = %v", resp)
	}
}

type staticHealth struct{}

func (staticHealth) Health() bridge.HealthMessage {
	return bridge.HealthMessage{Status: bridge.HealthDegraded, Reason: "controller disconnected"}
}

func TestHealth_FromSource(t *testing.T) {
	env := testServer(t)
	env.srv.health = staticHealth{}

	resp := decode[bridge.HealthMessage](t, env.do(t, http.MethodGet, "/api/v1/health", ""))
	if resp.Status != bridge.HealthDegraded || resp.Reason == "" {
		t.Errorf("health = %+v, want degraded with reason", resp)
	}
}

func TestRequestID(t *testing.T) {
	env := testServer(t)
	router := env.srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want client-123", got)
	}
}

func TestCORS_Preflight(t *testing.T) {
	env := testServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/entities", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	env.srv.buildRouter().ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("ACAO = %q, want http://localhost:3000", got)
	}
}

func TestNotFound(t *testing.T) {
	env := testServer(t)

	if w := env.do(t, http.MethodGet, "/api/v1/nonexistent", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// ─── Entities ──────────────────────────────────────────────────────

func TestListEntities(t *testing.T) {
	env := testServer(t)

	resp := decode[struct {
		Entities []hvac.EntityView `json:"entities"`
		Count    int               `json:"count"`
	}](t, env.do(t, http.MethodGet, "/api/v1/entities", ""))
	if resp.Count != 6 {
		t.Errorf("count = %d, want 6 (4 units, 1 group, all)", resp.Count)
	}

	resp = decode[struct {
		Entities []hvac.EntityView `json:"entities"`
		Count    int               `json:"count"`
	}](t, env.do(t, http.MethodGet, "/api/v1/entities?kind=group", ""))
	if resp.Count != 1 || resp.Entities[0].ID != "office" {
		t.Errorf("groups = %+v, want office only", resp.Entities)
	}
}

func TestGetEntity(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodGet, "/api/v1/entities/Office", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	view := decode[hvac.EntityView](t, w)
	if view.ID != "office" || len(view.Members) != 3 || !view.Status.Available {
		t.Errorf("office = %+v", view)
	}

	if w := env.do(t, http.MethodGet, "/api/v1/entities/attic", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown entity status = %d, want 404", w.Code)
	}
}

func TestEntityHistory(t *testing.T) {
	env := testServer(t)
	ctx := context.Background()

	status := hvac.UnitStatus{Power: true, Mode: hvac.ModeHeat, Target: 23}
	if err := env.history.Record(ctx, uid(1, 2), status, hvac.HistorySourceCommand); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	w := env.do(t, http.MethodGet, "/api/v1/entities/1-02/history?limit=10", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	resp := decode[struct {
		History []hvac.HistoryEntry `json:"history"`
		Count   int                 `json:"count"`
	}](t, w)
	if resp.Count != 1 || resp.History[0].Source != hvac.HistorySourceCommand {
		t.Errorf("history = %+v", resp.History)
	}

	tests := []struct {
		path string
		want int
	}{
		{"/api/v1/entities/office/history", http.StatusBadRequest},
		{"/api/v1/entities/9-09/history", http.StatusNotFound},
		{"/api/v1/entities/1-02/history?limit=abc", http.StatusBadRequest},
	}
	for _, tt := range tests {
		if w := env.do(t, http.MethodGet, tt.path, ""); w.Code != tt.want {
			t.Errorf("GET %s = %d, want %d", tt.path, w.Code, tt.want)
		}
	}
}

// ─── Commands ──────────────────────────────────────────────────────

func TestCommand(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodPost, "/api/v1/entities/office/commands",
		`{"hvac_mode":"dry","target_temperature":24,"targets":["2-01"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	result := decode[hvac.DispatchResult](t, w)
	if len(result.Results) != 4 {
		t.Errorf("results = %d, want 4", len(result.Results))
	}
	if env.writer.count() != 4 {
		t.Errorf("writes = %d, want 4", env.writer.count())
	}
}

func TestCommand_Rejections(t *testing.T) {
	env := testServer(t)

	tests := []struct {
		name     string
		path     string
		body     string
		want     int
		wantCode string
	}{
		{"bad json", "/api/v1/entities/1-01/commands", `{`, http.StatusBadRequest, ErrCodeBadRequest},
		{"bad fan", "/api/v1/entities/1-01/commands", `{"fan_mode":"turbo"}`, http.StatusBadRequest, ErrCodeBadRequest},
		{"no fields", "/api/v1/entities/1-01/commands", `{}`, http.StatusBadRequest, ErrCodeBadRequest},
		{"out of range", "/api/v1/entities/1-01/commands", `{"target_temperature":31}`, http.StatusUnprocessableEntity, ErrCodeValidation},
		{"unknown entity", "/api/v1/entities/attic/commands", `{"onoff_mode":"off"}`, http.StatusNotFound, ErrCodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, tt.path, tt.body)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d, body %s", w.Code, tt.want, w.Body.String())
			}
			if resp := decode[Error](t, w); resp.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", resp.Code, tt.wantCode)
			}
		})
	}

	if env.writer.count() != 0 {
		t.Errorf("writes = %d, want 0", env.writer.count())
	}
}

func TestCommand_ViolationsReported(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodPost, "/api/v1/entities/office/commands", `{"target_temperature":12}`)
	resp := decode[Error](t, w)
	if len(resp.Violations) == 0 || resp.Violations[0].Kind != hvac.KindTemperatureOutOfRange {
		t.Errorf("violations = %+v", resp.Violations)
	}
}

func TestCommand_PartialFailure(t *testing.T) {
	env := testServer(t)
	env.writer.errFor[uid(1, 3)] = sclink.ErrRejected

	w := env.do(t, http.MethodPost, "/api/v1/entities/office/commands", `{"fan_mode":"low"}`)
	if w.Code != http.StatusMultiStatus {
		t.Fatalf("status = %d, want 207, body %s", w.Code, w.Body.String())
	}
	result := decode[struct {
		Results []struct {
			Unit  string `json:"unit"`
			OK    bool   `json:"ok"`
			Error string `json:"error"`
		} `json:"results"`
	}](t, w)
	if len(result.Results) != 3 {
		t.Fatalf("results = %+v", result.Results)
	}
	var failed int
	for _, r := range result.Results {
		if r.Error != "" {
			failed++
		}
	}
	if failed != 1 {
		t.Errorf("failed members = %d, want 1", failed)
	}
}

func TestCommand_ControllerOffline(t *testing.T) {
	env := testServer(t)
	for _, id := range []hvac.UnitID{uid(1, 1), uid(1, 2), uid(1, 3)} {
		env.writer.errFor[id] = sclink.ErrNotConnected
	}

	w := env.do(t, http.MethodPost, "/api/v1/entities/office/commands", `{"onoff_mode":"off"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestApplyPreset(t *testing.T) {
	env := testServer(t)

	if w := env.do(t, http.MethodPost, "/api/v1/entities/all/preset", `{"preset":"comfort"}`); w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if env.writer.count() != 4 {
		t.Errorf("writes = %d, want 4", env.writer.count())
	}

	if w := env.do(t, http.MethodPost, "/api/v1/entities/all/preset", `{"preset":"boost"}`); w.Code != http.StatusNotFound {
		t.Errorf("unknown preset status = %d, want 404", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/api/v1/entities/all/preset", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("missing preset status = %d, want 400", w.Code)
	}
}

// ─── Mode sets and presets ─────────────────────────────────────────

func TestModeSets(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodPut, "/api/v1/mode-sets/active", `{"name":"winter"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	resp := decode[map[string]any](t, w)
	if resp["active"] != "Winter" || resp["changed"] != true {
		t.Errorf("activate = %v", resp)
	}
	if env.republisher.count() != 1 {
		t.Errorf("republish calls = %d, want 1", env.republisher.count())
	}

	// Unchanged activation does not republish.
	env.do(t, http.MethodPut, "/api/v1/mode-sets/active", `{"name":"Winter"}`)
	if env.republisher.count() != 1 {
		t.Errorf("republish calls = %d after no-op, want 1", env.republisher.count())
	}

	if w := env.do(t, http.MethodPut, "/api/v1/mode-sets/active", `{"name":"spring"}`); w.Code != http.StatusNotFound {
		t.Errorf("unknown set status = %d, want 404", w.Code)
	}

	list := decode[struct {
		ModeSets []hvac.ModeSet `json:"mode_sets"`
		Active   string         `json:"active"`
	}](t, env.do(t, http.MethodGet, "/api/v1/mode-sets", ""))
	if len(list.ModeSets) != 2 || list.Active != "Winter" {
		t.Errorf("mode sets = %+v", list)
	}

	active := decode[map[string]any](t, env.do(t, http.MethodGet, "/api/v1/mode-sets/active", ""))
	if active["active"] != "Winter" {
		t.Errorf("GET active = %v", active)
	}
}

func TestReplaceModes(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodPut, "/api/v1/entities/office/modes", `{"hvac_modes":["cool","fan_only"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if resp := decode[map[string]any](t, w); resp["count"] != float64(3) {
		t.Errorf("replace = %v", resp)
	}

	view := decode[hvac.EntityView](t, env.do(t, http.MethodGet, "/api/v1/entities/1-02", ""))
	if len(view.Attributes.AllowedModes) != 2 {
		t.Errorf("1-02 allowed modes = %v, want 2", view.Attributes.AllowedModes)
	}

	if w := env.do(t, http.MethodPut, "/api/v1/entities/office/modes", `{"hvac_modes":["turbo"]}`); w.Code != http.StatusBadRequest {
		t.Errorf("invalid mode status = %d, want 400", w.Code)
	}
}

func TestListPresets(t *testing.T) {
	env := testServer(t)

	resp := decode[struct {
		Presets []hvac.Preset `json:"presets"`
		Count   int           `json:"count"`
	}](t, env.do(t, http.MethodGet, "/api/v1/presets", ""))
	if resp.Count != 2 || resp.Presets[0].Name != "Comfort" {
		t.Errorf("presets = %+v", resp.Presets)
	}
}

// ─── Controller ────────────────────────────────────────────────────

func TestController(t *testing.T) {
	env := testServer(t)

	resp := decode[controllerResponse](t, env.do(t, http.MethodGet, "/api/v1/controller", ""))
	if resp.Device.Model != "SC-SL4" || !resp.Connected {
		t.Errorf("controller = %+v", resp)
	}
	if resp.Link == nil || resp.Link.PollsTotal != 12 {
		t.Errorf("link stats = %+v", resp.Link)
	}
	if resp.Registry.Units != 4 {
		t.Errorf("registry units = %d, want 4", resp.Registry.Units)
	}

	if w := env.do(t, http.MethodPost, "/api/v1/controller/refresh", ""); w.Code != http.StatusAccepted {
		t.Errorf("refresh status = %d, want 202", w.Code)
	}
	if env.controller.refreshes != 1 {
		t.Errorf("refreshes = %d, want 1", env.controller.refreshes)
	}
}

func TestMetrics(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodGet, "/api/v1/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", w.Code)
	}
	m := decode[SystemMetrics](t, w)
	if m.Version != "test" || m.Runtime.Goroutines == 0 {
		t.Errorf("metrics = %+v", m)
	}
	if m.Units.Units != 4 || m.Units.ValidUnits != 4 {
		t.Errorf("unit metrics = %+v", m.Units)
	}
	if m.Link == nil || m.Link.Polls != 12 || m.Link.State != "polling" {
		t.Errorf("link metrics = %+v", m.Link)
	}
	if m.Database == nil {
		t.Error("database metrics missing")
	}
}

// ─── WebSocket ─────────────────────────────────────────────────────

func TestWebSocket_EntityEvents(t *testing.T) {
	env := testServer(t)
	ts := httptest.NewServer(env.srv.buildRouter())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	ws, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v (resp: %v)", err, resp)
	}
	defer ws.Close()

	if err := ws.WriteJSON(WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "sub-1",
		Payload: WSSubscribePayload{Channels: []string{ChannelEntityState}},
	}); err != nil {
		t.Fatalf("write subscribe message: %v", err)
	}

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ack WSMessage
	if err := ws.ReadJSON(&ack); err != nil {
		t.Fatalf("read response: %v", err)
	}
	if ack.Type != WSTypeResponse || ack.ID != "sub-1" {
		t.Errorf("subscribe response = %+v", ack)
	}

	view, err := env.srv.svc.Entity("office")
	if err != nil {
		t.Fatalf("Entity() error = %v", err)
	}
	hub := env.srv.Hub()
	hub.EntityChanged(view)
	// Not subscribed: must not arrive.
	hub.ControllerChanged(bridge.ControllerMessage{Connected: false})

	var event struct {
		Type      string          `json:"type"`
		EventType string          `json:"event_type"`
		Payload   hvac.EntityView `json:"payload"`
	}
	if err := ws.ReadJSON(&event); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if event.EventType != ChannelEntityState || event.Payload.ID != "office" {
		t.Errorf("event = %+v", event)
	}

	if err := ws.WriteJSON(WSMessage{Type: WSTypePing, ID: "p1"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	var pong WSMessage
	if err := ws.ReadJSON(&pong); err != nil {
		t.Fatalf("read pong: %v", err)
	}
	if pong.Type != WSTypePong {
		t.Errorf("expected pong, got %+v", pong)
	}
}
