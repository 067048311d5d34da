package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/chazu/rbot/protocol"
)

func openTemp(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "ticks.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRecordAndReadBack(t *testing.T) {
	j := openTemp(t)
	ctx := context.Background()
	at := time.Unix(1700000000, 42)

	move := protocol.Command{Type: protocol.MessageMoveTo, Direction: protocol.North, Distance: 1}
	entries := []Entry{
		{
			Session: "s1",
			Tick:    1,
			At:      at,
			Circumstances: protocol.Circumstances{
				LastTickDuration: 16,
				LastMoveResult:   protocol.MoveSucceeded,
				HitPoints:        100,
				Surroundings:     []protocol.TileType{protocol.TileFloor, protocol.TileWall},
			},
			Command:  &move,
			Steps:    1234,
			Duration: 3 * time.Millisecond,
		},
		{
			Session:  "s1",
			Tick:     2,
			At:       at.Add(time.Second),
			Steps:    10,
			Duration: time.Millisecond,
			Err:      "tick: BudgetExceeded: step limit of 10 instructions exceeded",
		},
		{Session: "s2", Tick: 1, At: at},
	}
	// Out of order on purpose.
	for _, i := range []int{1, 0, 2} {
		if err := j.Record(ctx, entries[i]); err != nil {
			t.Fatal(err)
		}
	}

	got, err := j.Ticks(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Tick != 1 || got[1].Tick != 2 {
		t.Fatalf("ticks = %+v", got)
	}
	first := got[0]
	if first.Command == nil || *first.Command != move {
		t.Errorf("command = %v", first.Command)
	}
	if !first.At.Equal(at) || first.Steps != 1234 || first.Duration != 3*time.Millisecond {
		t.Errorf("first = %+v", first)
	}
	if c := first.Circumstances; c.HitPoints != 100 || c.LastTickDuration != 16 || len(c.Surroundings) != 2 || c.Surroundings[1] != protocol.TileWall {
		t.Errorf("circumstances = %+v", c)
	}
	if got[1].Command != nil || got[1].Err == "" {
		t.Errorf("failed tick = %+v", got[1])
	}

	sessions, err := j.Sessions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if sessions["s1"] != 2 || sessions["s2"] != 1 {
		t.Errorf("sessions = %v", sessions)
	}
}

func TestRecordReplacesTick(t *testing.T) {
	j := openTemp(t)
	ctx := context.Background()
	for _, steps := range []int64{5, 7} {
		if err := j.Record(ctx, Entry{Session: "s", Tick: 1, Steps: steps}); err != nil {
			t.Fatal(err)
		}
	}
	got, err := j.Ticks(ctx, "s")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Steps != 7 {
		t.Errorf("ticks = %+v", got)
	}
}

func TestReopenKeepsTicks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ticks.db")
	j, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := j.Record(context.Background(), Entry{Session: "s", Tick: 9}); err != nil {
		t.Fatal(err)
	}
	j.Close()

	j, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()
	got, err := j.Ticks(context.Background(), "s")
	if err != nil || len(got) != 1 || got[0].Tick != 9 {
		t.Errorf("ticks = %+v, %v", got, err)
	}
}

func TestClosedJournal(t *testing.T) {
	j := openTemp(t)
	if err := j.Close(); err != nil {
		t.Fatal(err)
	}
	if err := j.Record(context.Background(), Entry{Session: "s"}); !errors.Is(err, ErrClosed) {
		t.Errorf("Record err = %v", err)
	}
	if _, err := j.Ticks(context.Background(), "s"); !errors.Is(err, ErrClosed) {
		t.Errorf("Ticks err = %v", err)
	}
	if err := j.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
}
