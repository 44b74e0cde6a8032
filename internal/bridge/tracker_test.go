package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/nerrad567/mhi-hvac-core/internal/hvac"
	"github.com/nerrad567/mhi-hvac-core/internal/sclink"
)

func TestCommandTracker(t *testing.T) {
	w := &mockWriter{errFor: map[hvac.UnitID]error{uid(1, 2): sclink.ErrRejected}}
	tr := NewCommandTracker(w, time.Minute)
	now := time.Now()
	tr.now = func() time.Time { return now }
	ctx := context.Background()

	if err := tr.Write(ctx, hvac.WriteOp{Unit: uid(1, 1), Changes: hvac.Command{Power: ptr(true)}}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := tr.Write(ctx, hvac.WriteOp{Unit: uid(1, 2), Changes: hvac.Command{Power: ptr(true)}}); err == nil {
		t.Fatal("Write() error = nil, want rejection passed through")
	}

	if got := tr.Source(uid(1, 1)); got != hvac.HistorySourceCommand {
		t.Errorf("1-01 source = %q, want command", got)
	}
	if got := tr.Source(uid(1, 1)); got != hvac.HistorySourcePoll {
		t.Errorf("second 1-01 source = %q, want poll", got)
	}
	if got := tr.Source(uid(1, 2)); got != hvac.HistorySourcePoll {
		t.Errorf("failed write source = %q, want poll", got)
	}
	if n := len(w.Ops()); n != 2 {
		t.Errorf("forwarded writes = %d, want 2", n)
	}
}

func TestCommandTrackerWindow(t *testing.T) {
	tr := NewCommandTracker(&mockWriter{}, time.Minute)
	now := time.Now()
	tr.now = func() time.Time { return now }

	if err := tr.Write(context.Background(), hvac.WriteOp{Unit: uid(2, 1)}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	now = now.Add(2 * time.Minute)

	if got := tr.Source(uid(2, 1)); got != hvac.HistorySourcePoll {
		t.Errorf("source after window = %q, want poll", got)
	}
}
