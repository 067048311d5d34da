package host

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chazu/rbot/journal"
	"github.com/chazu/rbot/protocol"
)

// ErrParamsRejected is returned when receiveGameParams answers false.
var ErrParamsRejected = errors.New("host: bot rejected the game parameters")

// TickResult describes one played tick.
type TickResult struct {
	Tick     int64
	Command  protocol.Command
	Result   protocol.MoveResult
	Steps    int64
	Duration time.Duration
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithJournal records every tick under session.
func WithJournal(j *journal.Journal, session string) EngineOption {
	return func(e *Engine) {
		e.journal = j
		e.session = session
	}
}

// Engine drives a Bot through a World: it writes the parameters and
// circumstances into shared memory, calls the entry points and applies
// the commands the bot writes back.
type Engine struct {
	bot     *Bot
	world   World
	journal *journal.Journal
	session string

	tick       int64
	lastTick   time.Duration
	lastResult protocol.MoveResult
	started    bool
}

// NewEngine pairs a bot with a world.
func NewEngine(bot *Bot, world World, opts ...EngineOption) *Engine {
	e := &Engine{bot: bot, world: world}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Bot returns the driven bot.
func (e *Engine) Bot() *Bot { return e.bot }

// Ticks returns the number of ticks played.
func (e *Engine) Ticks() int64 { return e.tick }

// Start runs clientInitialize, setup and receiveGameParams.
func (e *Engine) Start(ctx context.Context) error {
	hc := e.bot.Config().Host
	if err := e.bot.ClientInitialize(ctx); err != nil {
		return err
	}
	if _, err := e.bot.Setup(ctx, hc.MemorySize); err != nil {
		return err
	}
	if h, err := e.bot.Header(); err == nil {
		log.Infof("bot %q version %s", h.BotName(), h.VersionString())
	}
	if err := e.bot.WriteGameParameters(hc.ParamsOffset, e.world.Parameters()); err != nil {
		return fmt.Errorf("host: writing game parameters: %w", err)
	}
	ok, err := e.bot.ReceiveGameParams(ctx, hc.ParamsOffset)
	if err != nil {
		return err
	}
	if !ok {
		return ErrParamsRejected
	}
	e.started = true
	return nil
}

// Step plays one tick. A failed tick is journaled and returned as an
// error; the world is left unchanged.
func (e *Engine) Step(ctx context.Context) (TickResult, error) {
	if !e.started {
		return TickResult{}, errors.New("host: engine not started")
	}
	e.tick++
	res := TickResult{Tick: e.tick}

	circumstances := e.world.Circumstances()
	circumstances.LastTickDuration = uint32(e.lastTick.Milliseconds())
	circumstances.LastMoveResult = e.lastResult

	offset := e.bot.Config().Host.TickOffset
	if err := e.bot.WriteCircumstances(offset, circumstances); err != nil {
		return res, fmt.Errorf("host: writing circumstances: %w", err)
	}
	// A bot that writes nothing reads back as an invalid command.
	e.bot.Memory().Bytes()[0] = 0

	start := time.Now()
	err := e.bot.Tick(ctx, offset)
	res.Duration = time.Since(start)
	res.Steps = e.bot.Steps()
	e.lastTick = res.Duration

	var cmd *protocol.Command
	if err == nil {
		var c protocol.Command
		c, err = e.bot.Command()
		if err == nil {
			cmd = &c
			res.Command = c
			res.Result = e.world.Apply(c)
			e.lastResult = res.Result
		} else {
			err = &EntryError{Entry: EntryTick, Err: err}
			e.lastResult = protocol.MoveError
		}
	} else {
		e.lastResult = protocol.MoveError
	}

	if e.journal != nil {
		entry := journal.Entry{
			Session:       e.session,
			Tick:          e.tick,
			At:            start,
			Circumstances: circumstances,
			Command:       cmd,
			Steps:         res.Steps,
			Duration:      res.Duration,
		}
		if err != nil {
			entry.Err = err.Error()
		}
		if jerr := e.journal.Record(ctx, entry); jerr != nil {
			log.Errorf("journal: %v", jerr)
		}
	}
	return res, err
}

// Run plays up to n ticks, stopping early when the world is done or a
// tick fails. fn, if not nil, sees every successful tick.
func (e *Engine) Run(ctx context.Context, n int, fn func(TickResult)) error {
	if !e.started {
		if err := e.Start(ctx); err != nil {
			return err
		}
	}
	for i := 0; i < n && !e.world.Done(); i++ {
		res, err := e.Step(ctx)
		if err != nil {
			return err
		}
		if fn != nil {
			fn(res)
		}
	}
	return nil
}
