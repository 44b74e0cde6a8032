package hvac

import (
	"context"
	"sync"
	"testing"
	"time"
)

var testBounds = Bounds{Min: 18, Max: 30}

func uid(block, unit int) UnitID {
	return UnitID{Block: block, Unit: unit}
}

func ptr[T any](v T) *T {
	return &v
}

// newTestRegistry creates a registry with units 1-01..1-04 and 2-01 on the
// default bounds.
func newTestRegistry(t *testing.T) *Registry {
	t.Helper()

	r, err := NewRegistry(testBounds, []UnitConfig{
		{ID: uid(1, 1)},
		{ID: uid(1, 2)},
		{ID: uid(1, 3)},
		{ID: uid(1, 4)},
		{ID: uid(2, 1)},
	})
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	return r
}

func coolStatus() UnitStatus {
	return UnitStatus{
		Power:         true,
		Mode:          ModeCool,
		Target:        22,
		Fan:           FanMedium,
		Swing:         SwingAuto,
		RoomTemp:      24.5,
		RoomTempValid: true,
	}
}

// applyAll marks every unit in the registry valid with status.
func applyAll(r *Registry, status UnitStatus) {
	now := time.Now()
	for _, id := range r.IDs() {
		r.ApplyStatus(id, status, now)
	}
}

// newTestResolver builds a resolver with one group "Office" of 1-01..1-03.
func newTestResolver(t *testing.T, r *Registry) *Resolver {
	t.Helper()

	res, err := NewResolver(r, []Group{
		{Name: "Office", Members: []UnitID{uid(1, 1), uid(1, 2), uid(1, 3)}},
	})
	if err != nil {
		t.Fatalf("NewResolver() error = %v", err)
	}
	return res
}

func newTestModeSets(t *testing.T) *ModeSets {
	t.Helper()

	ms, err := NewModeSets([]ModeSet{
		{Name: "Summer", Modes: []HVACMode{ModeCool, ModeDry, ModeFanOnly}},
		{Name: "Winter", Modes: []HVACMode{ModeHeat, ModeFanOnly}},
	}, "")
	if err != nil {
		t.Fatalf("NewModeSets() error = %v", err)
	}
	return ms
}

// MockWriter is a test implementation of Writer.
type MockWriter struct {
	mu     sync.Mutex
	ops    []WriteOp
	errFor map[UnitID]error
}

func NewMockWriter() *MockWriter {
	return &MockWriter{errFor: make(map[UnitID]error)}
}

func (m *MockWriter) Write(_ context.Context, op WriteOp) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ops = append(m.ops, op)
	return m.errFor[op.Unit]
}

func (m *MockWriter) FailFor(id UnitID, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errFor[id] = err
}

func (m *MockWriter) Ops() []WriteOp {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]WriteOp(nil), m.ops...)
}

func (m *MockWriter) Units() map[UnitID]bool {
	out := make(map[UnitID]bool)
	for _, op := range m.Ops() {
		out[op.Unit] = true
	}
	return out
}

// mockRefresher counts refresh requests.
type mockRefresher struct {
	mu    sync.Mutex
	count int
}

func (m *mockRefresher) RequestRefresh() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count++
}

func (m *mockRefresher) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

// countingLogger counts records at every level.
type countingLogger struct {
	mu sync.Mutex
	n  int
}

func (l *countingLogger) add() {
	l.mu.Lock()
	l.n++
	l.mu.Unlock()
}

func (l *countingLogger) Debug(string, ...any) { l.add() }
func (l *countingLogger) Info(string, ...any)  { l.add() }
func (l *countingLogger) Warn(string, ...any)  { l.add() }
func (l *countingLogger) Error(string, ...any) { l.add() }

func (l *countingLogger) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.n
}
