package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/mhi-hvac-core/internal/hvac"
)

const requestTimeout = 35 * time.Second

// apiError is the error body returned by the service.
type apiError struct {
	Status     int              `json:"status"`
	Code       string           `json:"code"`
	Message    string           `json:"message"`
	Violations []hvac.Violation `json:"violations,omitempty"`
}

func (e *apiError) Error() string {
	if len(e.Violations) == 0 {
		return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
	}
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.Field+": "+v.Message)
	}
	return fmt.Sprintf("%s (%d): %s [%s]", e.Code, e.Status, e.Message, strings.Join(parts, "; "))
}

// entity is the client-side view of an entity. Aggregated fields are kept
// loose because they may be a value, "mixed" or null.
type entity struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Kind    string   `json:"kind"`
	Members []string `json:"members"`
	Status  struct {
		Available bool   `json:"available"`
		Power     any    `json:"onoff_mode"`
		Mode      any    `json:"hvac_mode"`
		Target    any    `json:"target_temperature"`
		Fan       any    `json:"fan_mode"`
		Swing     any    `json:"swing_mode"`
		RoomTemp  any    `json:"room_temperature"`
		Lock      string `json:"lock_mode"`
		Filter    bool   `json:"filter_sign"`
	} `json:"status"`
	Attributes struct {
		ActiveModeSet string   `json:"active_mode_set"`
		AllowedModes  []string `json:"hvac_modes"`
		Bounds        struct {
			Min float64 `json:"min"`
			Max float64 `json:"max"`
		} `json:"temperature_bounds"`
		Preset string `json:"preset_mode"`
	} `json:"attributes"`
}

type unitResult struct {
	Unit  string `json:"unit"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type dispatchResult struct {
	Target  string       `json:"target"`
	Results []unitResult `json:"results"`
}

// client talks to the service HTTP API.
type client struct {
	base string
	http *http.Client
}

func newClient(base string) *client {
	return &client{
		base: strings.TrimRight(base, "/") + "/api/v1",
		http: &http.Client{Timeout: requestTimeout},
	}
}

// do sends a request and decodes a JSON response into out. Status 207 is
// treated as success; the caller inspects per-unit results.
func (c *client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &apiError{Status: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Code == "" {
			return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *client) listEntities(ctx context.Context, kind string) ([]entity, error) {
	path := "/entities"
	if kind != "" {
		path += "?kind=" + url.QueryEscape(kind)
	}
	var resp struct {
		Entities []entity `json:"entities"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Entities, nil
}

func (c *client) getEntity(ctx context.Context, id string) (entity, error) {
	var e entity
	err := c.do(ctx, http.MethodGet, "/entities/"+url.PathEscape(id), nil, &e)
	return e, err
}

func (c *client) history(ctx context.Context, id string, limit int) ([]hvac.HistoryEntry, error) {
	path := "/entities/" + url.PathEscape(id) + "/history?limit=" + strconv.Itoa(limit)
	var resp struct {
		History []hvac.HistoryEntry `json:"history"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.History, nil
}

func (c *client) command(ctx context.Context, id string, req hvac.CommandRequest) (dispatchResult, error) {
	var res dispatchResult
	err := c.do(ctx, http.MethodPost, "/entities/"+url.PathEscape(id)+"/commands", req, &res)
	return res, err
}

func (c *client) applyPreset(ctx context.Context, id, preset string) (dispatchResult, error) {
	var res dispatchResult
	body := map[string]string{"preset": preset}
	err := c.do(ctx, http.MethodPost, "/entities/"+url.PathEscape(id)+"/preset", body, &res)
	return res, err
}

func (c *client) activateModeSet(ctx context.Context, name string) (bool, error) {
	var resp struct {
		Active  string `json:"active"`
		Changed bool   `json:"changed"`
	}
	err := c.do(ctx, http.MethodPut, "/mode-sets/active", map[string]string{"name": name}, &resp)
	return resp.Changed, err
}

func (c *client) refresh(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/controller/refresh", nil, nil)
}
