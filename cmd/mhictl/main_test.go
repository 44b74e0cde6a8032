package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/fatih/color"
)

const entitiesBody = `{"entities":[
 {"id":"1-01","name":"1-01","kind":"unit","members":["1-01"],
  "status":{"available":true,"onoff_mode":true,"hvac_mode":"heat","target_temperature":22,"fan_mode":"low","swing_mode":"auto","room_temperature":21.5,"lock_mode":"none"},
  "attributes":{"hvac_modes":["heat","fan_only"],"temperature_bounds":{"min":16,"max":30},"preset_mode":"Comfort"}},
 {"id":"office","name":"Office","kind":"group","members":["1-01","1-02"],
  "status":{"available":true,"onoff_mode":"mixed","hvac_mode":"heat","target_temperature":"mixed","fan_mode":null,"room_temperature":null,"lock_mode":"none"},
  "attributes":{"hvac_modes":["heat"],"temperature_bounds":{"min":16,"max":30}}},
 {"id":"2-01","name":"2-01","kind":"unit","members":["2-01"],
  "status":{"available":false,"onoff_mode":null,"hvac_mode":null,"target_temperature":null,"lock_mode":""},
  "attributes":{}}
],"count":3}`

type recorded struct {
	method string
	path   string
	body   map[string]any
}

type recorder struct {
	mu    sync.Mutex
	calls []recorded
}

func (r *recorder) at(i int) recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i >= len(r.calls) {
		return recorded{}
	}
	return r.calls[i]
}

func newTestAPI(t *testing.T) (*httptest.Server, *recorder) {
	t.Helper()
	color.NoColor = true

	calls := &recorder{}
	mux := http.NewServeMux()
	record := func(r *http.Request) {
		rec := recorded{method: r.Method, path: r.URL.RequestURI()}
		if r.Body != nil {
			json.NewDecoder(r.Body).Decode(&rec.body) //nolint:errcheck // empty bodies are fine
		}
		calls.mu.Lock()
		calls.calls = append(calls.calls, rec)
		calls.mu.Unlock()
	}
	writeJSON := func(w http.ResponseWriter, status int, body string) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body)) //nolint:errcheck // test server
	}

	mux.HandleFunc("GET /api/v1/entities", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		writeJSON(w, http.StatusOK, entitiesBody)
	})
	mux.HandleFunc("GET /api/v1/entities/{id}", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		if r.PathValue("id") != "1-01" {
			writeJSON(w, http.StatusNotFound, `{"status":404,"code":"not_found","message":"unknown entity"}`)
			return
		}
		var list struct {
			Entities []json.RawMessage `json:"entities"`
		}
		json.Unmarshal([]byte(entitiesBody), &list) //nolint:errcheck // constant
		writeJSON(w, http.StatusOK, string(list.Entities[0]))
	})
	mux.HandleFunc("POST /api/v1/entities/{id}/commands", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		switch r.PathValue("id") {
		case "office":
			writeJSON(w, http.StatusMultiStatus, `{"target":"office","results":[{"unit":"1-01","ok":true},{"unit":"1-02","ok":false,"error":"sclink: request timed out"}]}`)
		case "bad":
			writeJSON(w, http.StatusUnprocessableEntity, `{"status":422,"code":"validation_error","message":"command rejected","violations":[{"field":"target_temperature","kind":"temperature_out_of_range","message":"35 outside 16-30"}]}`)
		default:
			writeJSON(w, http.StatusOK, `{"target":"1-01","results":[{"unit":"1-01","ok":true}]}`)
		}
	})
	mux.HandleFunc("POST /api/v1/entities/{id}/preset", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		writeJSON(w, http.StatusOK, `{"target":"all","results":[{"unit":"1-01","ok":true},{"unit":"2-01","ok":true}]}`)
	})
	mux.HandleFunc("PUT /api/v1/mode-sets/active", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		writeJSON(w, http.StatusOK, `{"active":"Summer","changed":true}`)
	})
	mux.HandleFunc("GET /api/v1/entities/{id}/history", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		writeJSON(w, http.StatusOK, `{"unit":"1-01","count":1,"history":[
		  {"id":7,"unit":"1-01","source":"command","created_at":"2026-03-01T10:00:00Z",
		   "status":{"power":true,"hvac_mode":"cool","target_temperature":24,"fan_mode":"high","swing_mode":"auto","lock_mode":"none","room_temperature":26.5,"room_temperature_valid":true}}]}`)
	})
	mux.HandleFunc("POST /api/v1/controller/refresh", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		writeJSON(w, http.StatusAccepted, `{"status":"scheduled"}`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, calls
}

func runCLI(t *testing.T, srv *httptest.Server, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), append([]string{"-api", srv.URL, "-no-color"}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestList(t *testing.T) {
	srv, calls := newTestAPI(t)

	code, out, errOut := runCLI(t, srv, "list", "-kind", "unit")
	if code != 0 {
		t.Fatalf("exit = %d, stderr = %s", code, errOut)
	}
	if got := calls.at(0).path; got != "/api/v1/entities?kind=unit" {
		t.Errorf("path = %q", got)
	}
	for _, want := range []string{"1-01", "Comfort", "mixed", "unavailable", "21.5"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestGet(t *testing.T) {
	srv, _ := newTestAPI(t)

	code, out, _ := runCLI(t, srv, "get", "1-01")
	if code != 0 {
		t.Fatalf("exit = %d", code)
	}
	if !strings.Contains(out, "heat") || !strings.Contains(out, "16-30") {
		t.Errorf("unexpected output:\n%s", out)
	}

	code, _, errOut := runCLI(t, srv, "get", "9-09")
	if code != 1 || !strings.Contains(errOut, "not_found") {
		t.Errorf("unknown entity: exit %d, stderr %q", code, errOut)
	}
}

func TestSet(t *testing.T) {
	srv, calls := newTestAPI(t)

	code, out, errOut := runCLI(t, srv, "set", "1-01", "power=on", "mode=cool", "target=23.5", "fan=high")
	if code != 0 {
		t.Fatalf("exit = %d, stderr = %s", code, errOut)
	}
	if !strings.Contains(out, "ok") {
		t.Errorf("output = %q", out)
	}
	body := calls.at(0).body
	if body["onoff_mode"] != "on" || body["hvac_mode"] != "cool" || body["target_temperature"] != 23.5 || body["fan_mode"] != "high" {
		t.Errorf("request body = %v", body)
	}
	if _, ok := body["swing_mode"]; ok {
		t.Error("unset fields must be omitted")
	}
}

func TestSetPartialFailure(t *testing.T) {
	srv, _ := newTestAPI(t)

	code, out, errOut := runCLI(t, srv, "set", "office", "power=off")
	if code != 1 {
		t.Errorf("exit = %d, want 1", code)
	}
	if !strings.Contains(out, "FAIL 1-02") || !strings.Contains(errOut, "1 of 2 units failed") {
		t.Errorf("stdout %q stderr %q", out, errOut)
	}
}

func TestSetValidationError(t *testing.T) {
	srv, _ := newTestAPI(t)

	code, _, errOut := runCLI(t, srv, "set", "bad", "target=35")
	if code != 1 {
		t.Errorf("exit = %d, want 1", code)
	}
	if !strings.Contains(errOut, "target_temperature: 35 outside 16-30") {
		t.Errorf("stderr = %q", errOut)
	}
}

func TestPresetModesRefresh(t *testing.T) {
	srv, calls := newTestAPI(t)

	if code, _, errOut := runCLI(t, srv, "preset", "all", "Comfort"); code != 0 {
		t.Fatalf("preset exit = %d: %s", code, errOut)
	}
	if calls.at(0).body["preset"] != "Comfort" {
		t.Errorf("preset body = %v", calls.at(0).body)
	}

	code, out, _ := runCLI(t, srv, "modes", "Summer")
	if code != 0 || !strings.Contains(out, "activated") {
		t.Errorf("modes: exit %d, out %q", code, out)
	}
	if calls.at(1).body["name"] != "Summer" {
		t.Errorf("modes body = %v", calls.at(1).body)
	}

	code, out, _ = runCLI(t, srv, "refresh")
	if code != 0 || !strings.Contains(out, "scheduled") {
		t.Errorf("refresh: exit %d, out %q", code, out)
	}
}

func TestHistory(t *testing.T) {
	srv, calls := newTestAPI(t)

	code, out, errOut := runCLI(t, srv, "history", "1-01", "-limit", "5")
	if code != 0 {
		t.Fatalf("exit = %d, stderr = %s", code, errOut)
	}
	if got := calls.at(0).path; got != "/api/v1/entities/1-01/history?limit=5" {
		t.Errorf("path = %q", got)
	}
	for _, want := range []string{"command", "cool", "26.5"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestUsageErrors(t *testing.T) {
	srv, _ := newTestAPI(t)

	tests := [][]string{
		{},
		{"frobnicate"},
		{"get"},
		{"set", "1-01"},
		{"set", "1-01", "colour=blue"},
		{"set", "1-01", "target=warm"},
		{"preset", "all"},
	}
	for _, args := range tests {
		if code, _, _ := runCLI(t, srv, args...); code != 2 {
			t.Errorf("run(%v) exit = %d, want 2", args, code)
		}
	}
}

func TestParseAssignments(t *testing.T) {
	req, err := parseAssignments([]string{"swing=stop2", "lock=locked_mode", "filter_reset=true", "HVAC_MODE=off"})
	if err != nil {
		t.Fatalf("parseAssignments() error = %v", err)
	}
	if *req.SwingMode != "stop2" || *req.LockMode != "locked_mode" || !req.FilterReset || *req.HVACMode != "off" {
		t.Errorf("request = %+v", req)
	}

	cmd, err := req.Command()
	if err != nil {
		t.Fatalf("Command() error = %v", err)
	}
	if cmd.Power == nil || *cmd.Power {
		t.Error("hvac_mode=off should switch power off")
	}
}
