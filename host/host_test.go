package host

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	rb "github.com/chazu/rbot/compiler"
	"github.com/chazu/rbot/config"
	"github.com/chazu/rbot/examples"
	"github.com/chazu/rbot/journal"
	"github.com/chazu/rbot/protocol"
	"github.com/chazu/rbot/vm"
)

func newBot(t *testing.T, p *vm.Program, opts ...Option) *Bot {
	t.Helper()
	b, err := New(context.Background(), p, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func sampleBot(t *testing.T, opts ...Option) *Bot {
	t.Helper()
	p, err := examples.Program("bot")
	if err != nil {
		t.Fatal(err)
	}
	return newBot(t, p, opts...)
}

// script compiles a bot from defs. setup always allocates $m.
func script(t *testing.T, defs ...*rb.Def) *vm.Program {
	t.Helper()
	setup := rb.Method("setup", rb.Params("size"),
		rb.SetGlobal("m", rb.Send(rb.Const("SharedMemory"), "new", rb.Local("size"))),
		rb.Global("m"),
	)
	p, err := rb.Compile(&rb.Script{Name: "test_bot", Defs: append([]*rb.Def{setup}, defs...)})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

// writeCommand is tick(offset) writing a one-byte command.
func writeCommand(msg protocol.MessageType) *rb.Def {
	return rb.Method("tick", rb.Params("offset"),
		rb.SetIndex(rb.Global("m"), rb.Range(rb.Int(0), rb.Int(0)),
			rb.Send(rb.Arr(rb.Int(int64(msg))), "pack", rb.Str("C"))),
	)
}

func TestSampleBotInArena(t *testing.T) {
	var logs []string
	bot := sampleBot(t, WithLogSink(func(level protocol.LogLevel, msg string) {
		if level == protocol.LogInfo {
			logs = append(logs, msg)
		}
	}))

	j, err := journal.Open(filepath.Join(t.TempDir(), "ticks.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()

	arena := NewArena(5, 5)
	engine := NewEngine(bot, arena, WithJournal(j, "arena"))
	var results []TickResult
	if err := engine.Run(context.Background(), 3, func(r TickResult) { results = append(results, r) }); err != nil {
		t.Fatal(err)
	}

	h, err := bot.Header()
	if err != nil {
		t.Fatal(err)
	}
	if h.BotName() != examples.BotName || h.VersionString() != "0.1.0" {
		t.Errorf("header = %q %s", h.BotName(), h.VersionString())
	}
	for _, want := range []string{
		"Hello, world! This is made by " + vm.EngineName,
		"param engine version: 0.1.0",
		"direction: 0",
	} {
		found := false
		for _, l := range logs {
			found = found || l == want
		}
		if !found {
			t.Errorf("missing log %q in %q", want, logs)
		}
	}

	if len(results) != 3 {
		t.Fatalf("played %d ticks", len(results))
	}
	north := protocol.Command{Type: protocol.MessageMoveTo, Direction: protocol.North, Distance: 1}
	wantResults := []protocol.MoveResult{protocol.MoveSucceeded, protocol.MoveFailed, protocol.MoveFailed}
	for i, r := range results {
		if r.Command != north || r.Result != wantResults[i] || r.Steps == 0 {
			t.Errorf("tick %d = %+v", i+1, r)
		}
	}
	if arena.X != 2 || arena.Y != 1 {
		t.Errorf("bot at (%d,%d), want (2,1)", arena.X, arena.Y)
	}

	entries, err := j.Ticks(context.Background(), "arena")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("journal has %d ticks", len(entries))
	}
	if s := entries[0].Circumstances.Surroundings; len(s) != 8 || s[protocol.North] != protocol.TileFloor {
		t.Errorf("tick 1 surroundings = %v", s)
	}
	second := entries[1].Circumstances
	if second.LastMoveResult != protocol.MoveSucceeded || second.Surroundings[protocol.North] != protocol.TileWall {
		t.Errorf("tick 2 circumstances = %+v", second)
	}
	if entries[2].Circumstances.LastMoveResult != protocol.MoveFailed {
		t.Errorf("tick 3 last move = %v", entries[2].Circumstances.LastMoveResult)
	}
}

func TestHeaderSurvivesCommands(t *testing.T) {
	bot := sampleBot(t)
	engine := NewEngine(bot, NewArena(5, 5))
	if _, err := engine.Step(context.Background()); err == nil {
		t.Fatal("Step before Start succeeded")
	}
	if err := engine.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if _, err := engine.Step(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	// The command now occupies the start of the name.
	if got := bot.Memory().Bytes()[0]; got != byte(protocol.MessageMoveTo) {
		t.Fatalf("memory[0] = %d", got)
	}
	h, err := bot.Header()
	if err != nil {
		t.Fatal(err)
	}
	if h.BotName() != examples.BotName {
		t.Errorf("BotName = %q, want %q", h.BotName(), examples.BotName)
	}
}

func TestOptionalEntryPoints(t *testing.T) {
	bot := newBot(t, script(t, writeCommand(protocol.MessageWait)))
	engine := NewEngine(bot, NewArena(3, 3))
	var got []TickResult
	if err := engine.Run(context.Background(), 2, func(r TickResult) { got = append(got, r) }); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[1].Command.Type != protocol.MessageWait || got[1].Result != protocol.MoveSucceeded {
		t.Errorf("results = %+v", got)
	}
}

func TestResignEndsRun(t *testing.T) {
	bot := newBot(t, script(t, writeCommand(protocol.MessageResign)))
	engine := NewEngine(bot, NewArena(3, 3))
	if err := engine.Run(context.Background(), 10, nil); err != nil {
		t.Fatal(err)
	}
	if engine.Ticks() != 1 {
		t.Errorf("played %d ticks after resigning", engine.Ticks())
	}
}

func TestTickWithoutCommand(t *testing.T) {
	bot := newBot(t, script(t, rb.Method("tick", rb.Params("offset"), rb.Nil())))
	engine := NewEngine(bot, NewArena(3, 3))
	if err := engine.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	_, err := engine.Step(context.Background())
	var ee *EntryError
	if !errors.As(err, &ee) || ee.Entry != EntryTick || !strings.Contains(err.Error(), "unknown message type 0") {
		t.Errorf("err = %v", err)
	}
}

func TestStepLimitStopsTick(t *testing.T) {
	cfg := config.Default()
	cfg.VM.StepLimit = 1000
	spin := rb.Method("tick", rb.Params("offset"), rb.Loop(rb.True()))
	bot := newBot(t, script(t, spin), WithConfig(cfg))

	j, err := journal.Open(filepath.Join(t.TempDir(), "ticks.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()

	engine := NewEngine(bot, NewArena(3, 3), WithJournal(j, "spin"))
	err = engine.Run(context.Background(), 5, nil)
	if !errors.Is(err, vm.ErrBudgetExceeded) {
		t.Fatalf("err = %v, want BudgetExceeded", err)
	}
	var ee *EntryError
	if !errors.As(err, &ee) || ee.Entry != EntryTick {
		t.Errorf("err = %#v, want an EntryError for tick", err)
	}
	if bot.Steps() <= 1000 {
		t.Errorf("steps = %d", bot.Steps())
	}

	entries, err := j.Ticks(context.Background(), "spin")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Command != nil || !strings.Contains(entries[0].Err, "BudgetExceeded") {
		t.Errorf("journal = %+v", entries)
	}
}

func TestEntryTimeout(t *testing.T) {
	cfg := config.Default()
	cfg.VM.StepLimit = 0
	cfg.Host.EntryTimeout = config.Duration{Duration: 20 * time.Millisecond}
	spin := rb.Method("clientInitialize", nil, rb.Loop(rb.True()))
	bot := newBot(t, script(t, spin), WithConfig(cfg))

	err := bot.ClientInitialize(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if bot.VM().Interpreter().Depth() != 0 {
		t.Error("frames left on the stack after the deadline")
	}
}

func TestSetupMustReturnMemory(t *testing.T) {
	p, err := rb.Compile(&rb.Script{Name: "bad", Defs: []*rb.Def{rb.Method("setup", rb.Params("size"), rb.Int(1))}})
	if err != nil {
		t.Fatal(err)
	}
	bot := newBot(t, p)
	_, err = bot.Setup(context.Background(), 64)
	if !errors.Is(err, vm.ErrType) {
		t.Errorf("err = %v, want a type error", err)
	}
	if bot.Memory() != nil {
		t.Error("memory kept after a failed setup")
	}
}

func TestEntryPointsNeedMemory(t *testing.T) {
	bot := sampleBot(t)
	if err := bot.Tick(context.Background(), 64); !errors.Is(err, ErrNoMemory) {
		t.Errorf("tick err = %v", err)
	}
	if _, err := bot.ReceiveGameParams(context.Background(), 32); !errors.Is(err, ErrNoMemory) {
		t.Errorf("receiveGameParams err = %v", err)
	}
	if _, err := bot.Command(); !errors.Is(err, ErrNoMemory) {
		t.Errorf("command err = %v", err)
	}
}

func TestMissingSetup(t *testing.T) {
	p, err := rb.Compile(&rb.Script{Name: "empty"})
	if err != nil {
		t.Fatal(err)
	}
	bot := newBot(t, p)
	if _, err := bot.Setup(context.Background(), 64); !errors.Is(err, ErrMissingEntry) {
		t.Errorf("err = %v", err)
	}
}

func TestRejectedParameters(t *testing.T) {
	refuse := rb.Method("receiveGameParams", rb.Params("offset"), rb.False())
	bot := newBot(t, script(t, refuse, writeCommand(protocol.MessageWait)))
	err := NewEngine(bot, NewArena(3, 3)).Start(context.Background())
	if !errors.Is(err, ErrParamsRejected) {
		t.Errorf("err = %v", err)
	}
}

func TestWritesBelowHeaderAreRejected(t *testing.T) {
	bot := newBot(t, script(t, writeCommand(protocol.MessageWait)))
	if _, err := bot.Setup(context.Background(), 128); err != nil {
		t.Fatal(err)
	}
	if err := bot.WriteGameParameters(8, NewArena(3, 3).Parameters()); err == nil {
		t.Error("wrote parameters over the header")
	}
	if err := bot.WriteCircumstances(120, NewArena(3, 3).Circumstances()); !errors.Is(err, vm.ErrOutOfBounds) {
		t.Errorf("overflowing write err = %v", err)
	}
}

func TestBotsAreIndependent(t *testing.T) {
	a, b := sampleBot(t), sampleBot(t)
	ctx := context.Background()
	if _, err := a.Setup(ctx, 256); err != nil {
		t.Fatal(err)
	}
	if b.Memory() != nil || !b.VM().Globals["$memory"].IsNil() {
		t.Error("setup of one bot leaked into another")
	}
}

func TestLogFunctionLevels(t *testing.T) {
	type entry struct {
		level protocol.LogLevel
		msg   string
	}
	var got []entry
	logAll := rb.Method("clientInitialize", nil,
		rb.Fn("logFunction", rb.Int(0), rb.Str("bad")),
		rb.Fn("logFunction", rb.Int(1), rb.Int(7)),
		rb.Fn("logFunction", rb.Int(9), rb.Str("chatter")),
	)
	bot := newBot(t, script(t, logAll), WithLogSink(func(l protocol.LogLevel, m string) {
		got = append(got, entry{l, m})
	}))
	if err := bot.ClientInitialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	want := []entry{{protocol.LogError, "bad"}, {protocol.LogWarn, "7"}, {protocol.LogLevel(9), "chatter"}}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d = %v, want %v", i, got[i], want[i])
		}
	}

	badLevel := rb.Method("clientInitialize", nil, rb.Fn("logFunction", rb.Str("info"), rb.Str("x")))
	bot = newBot(t, script(t, badLevel))
	if err := bot.ClientInitialize(context.Background()); !errors.Is(err, vm.ErrType) {
		t.Errorf("err = %v, want TypeError", err)
	}
}

func TestArena(t *testing.T) {
	a := NewArena(5, 5)
	a.SetTile(3, 2, protocol.TileClosedDoor)

	move := func(d protocol.Direction, n uint8) protocol.MoveResult {
		return a.Apply(protocol.Command{Type: protocol.MessageMoveTo, Direction: d, Distance: n})
	}
	if r := move(protocol.East, 1); r != protocol.MoveFailed {
		t.Errorf("move into closed door = %v", r)
	}
	if r := a.Apply(protocol.Command{Type: protocol.MessageOpen, Direction: protocol.East}); r != protocol.MoveSucceeded {
		t.Errorf("open = %v", r)
	}
	if r := move(protocol.East, 1); r != protocol.MoveSucceeded || a.X != 3 {
		t.Errorf("move through open door = %v at x=%d", r, a.X)
	}
	if r := move(protocol.East, 2); r != protocol.MoveInvalid {
		t.Errorf("move beyond stride = %v", r)
	}
	if r := a.Apply(protocol.Command{Type: protocol.MessageClose, Direction: protocol.West}); r != protocol.MoveFailed {
		t.Errorf("close with no door west = %v", r)
	}
	if r := move(protocol.West, 1); r != protocol.MoveSucceeded {
		t.Errorf("move back west = %v", r)
	}
	if r := a.Apply(protocol.Command{Type: protocol.MessageClose, Direction: protocol.East}); r != protocol.MoveSucceeded {
		t.Errorf("close = %v", r)
	}
	if got := a.Circumstances().Surroundings[protocol.East]; got != protocol.TileClosedDoor {
		t.Errorf("east of (2,2) = %v", got)
	}

	a.Params.DiagonalMovement = false
	if r := move(protocol.Northwest, 1); r != protocol.MoveInvalid {
		t.Errorf("diagonal without diagonal movement = %v", r)
	}
	if !strings.Contains(a.String(), "@") {
		t.Error("String does not draw the bot")
	}
	if a.Done() {
		t.Error("done before resigning")
	}
	a.Apply(protocol.Command{Type: protocol.MessageResign})
	if !a.Done() {
		t.Error("not done after resigning")
	}
}
