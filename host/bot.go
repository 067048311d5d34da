// Package host embeds a guest program as a game bot. A Bot owns one VM
// and the shared memory its setup function returns, and exposes the four
// entry points a game engine calls.
package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tliron/commonlog"

	"github.com/chazu/rbot/config"
	"github.com/chazu/rbot/protocol"
	"github.com/chazu/rbot/vm"
)

var (
	log      = commonlog.GetLogger("rbot.host")
	guestLog = commonlog.GetLogger("rbot.guest")
)

// Entry names a guest entry point.
type Entry string

const (
	EntryClientInitialize  Entry = "clientInitialize"
	EntrySetup             Entry = "setup"
	EntryReceiveGameParams Entry = "receiveGameParams"
	EntryTick              Entry = "tick"
)

var (
	// ErrNoMemory is returned when an entry point needs shared memory
	// before setup has provided it.
	ErrNoMemory = errors.New("host: no shared memory; call setup first")
	// ErrMissingEntry is returned when a required entry point is not
	// defined by the program.
	ErrMissingEntry = errors.New("host: entry point not defined")
)

// EntryError reports the failure of one entry point.
type EntryError struct {
	Entry Entry
	Err   error
}

func (e *EntryError) Error() string { return fmt.Sprintf("%s: %v", e.Entry, e.Err) }

func (e *EntryError) Unwrap() error { return e.Err }

// LogSink receives the guest's logFunction calls after they have been
// written to the rbot.guest logger.
type LogSink func(level protocol.LogLevel, message string)

// Option configures a Bot.
type Option func(*Bot)

// WithConfig sets the VM and host settings. The default is config.Default().
func WithConfig(cfg *config.Config) Option {
	return func(b *Bot) { b.cfg = cfg }
}

// WithOutput redirects the guest's puts/p/print.
func WithOutput(w io.Writer) Option {
	return func(b *Bot) { b.out = w }
}

// WithClock pins Time.now.
func WithClock(clock vm.Clock) Option {
	return func(b *Bot) { b.clock = clock }
}

// WithLogSink observes guest log messages.
func WithLogSink(sink LogSink) Option {
	return func(b *Bot) { b.sink = sink }
}

// Bot is one loaded guest program.
type Bot struct {
	cfg   *config.Config
	out   io.Writer
	clock vm.Clock
	sink  LogSink

	vm     *vm.VM
	memory *vm.SharedMemory
	header protocol.Header // as setup left it; offset 0 is reused for commands
	steps  int64
}

// New creates a VM for program, registers the host functions and loads
// the program, running its main body.
func New(ctx context.Context, program *vm.Program, opts ...Option) (*Bot, error) {
	b := &Bot{cfg: config.Default()}
	for _, opt := range opts {
		opt(b)
	}

	vmOpts := b.cfg.VMOptions()
	if b.out != nil {
		vmOpts = append(vmOpts, vm.WithOutput(b.out))
	}
	if b.clock != nil {
		vmOpts = append(vmOpts, vm.WithClock(b.clock))
	}
	b.vm = vm.NewVM(vmOpts...)
	b.vm.DefineGlobalFunction("logFunction", 2, 2, b.logFunction)

	ctx, cancel := b.entryContext(ctx)
	defer cancel()
	if err := b.vm.Load(ctx, program); err != nil {
		return nil, fmt.Errorf("host: loading %s: %w", program.Name, err)
	}
	b.steps = b.vm.Interpreter().Steps()
	log.Infof("loaded bot %q", program.Name)
	return b, nil
}

// VM returns the bot's VM.
func (b *Bot) VM() *vm.VM { return b.vm }

// Config returns the bot's settings.
func (b *Bot) Config() *config.Config { return b.cfg }

// Memory returns the shared memory returned by setup, or nil.
func (b *Bot) Memory() *vm.SharedMemory { return b.memory }

// Steps returns the instructions spent by the last entry point.
func (b *Bot) Steps() int64 { return b.steps }

func (b *Bot) logFunction(in *vm.Interpreter, _ vm.Value, args []vm.Value) (vm.Value, error) {
	if !args[0].IsInt() {
		m := in.VM()
		return vm.Nil, m.Raise(m.Classes.Lookup("TypeError"), "logFunction: level must be an Integer, not %s", m.ClassOf(args[0]).Name)
	}
	msg, err := in.ToS(args[1])
	if err != nil {
		return vm.Nil, err
	}
	level := protocol.LogLevel(args[0].Int())
	switch level {
	case protocol.LogError:
		guestLog.Error(msg)
	case protocol.LogWarn:
		guestLog.Warning(msg)
	case protocol.LogInfo:
		guestLog.Info(msg)
	default:
		guestLog.Debugf("[%s] %s", level, msg)
	}
	if b.sink != nil {
		b.sink(level, msg)
	}
	return vm.Nil, nil
}

func (b *Bot) entryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d := b.cfg.Host.EntryTimeout.Duration; d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

// call runs one entry point under the entry deadline.
func (b *Bot) call(ctx context.Context, entry Entry, args ...vm.Value) (vm.Value, error) {
	ctx, cancel := b.entryContext(ctx)
	defer cancel()

	start := time.Now()
	v, err := b.vm.Funcall(ctx, string(entry), args...)
	b.steps = b.vm.Interpreter().Steps()
	if err != nil {
		log.Warningf("%s failed after %d steps: %v", entry, b.steps, err)
		return vm.Nil, &EntryError{Entry: entry, Err: err}
	}
	log.Debugf("%s: %d steps in %s", entry, b.steps, time.Since(start))
	return v, nil
}

// ClientInitialize calls the guest's clientInitialize, if defined.
func (b *Bot) ClientInitialize(ctx context.Context) error {
	if !b.vm.HasFunction(string(EntryClientInitialize)) {
		return nil
	}
	_, err := b.call(ctx, EntryClientInitialize)
	return err
}

// Setup calls setup(size) and keeps the SharedMemory it returns.
func (b *Bot) Setup(ctx context.Context, size int) (*vm.SharedMemory, error) {
	if !b.vm.HasFunction(string(EntrySetup)) {
		return nil, &EntryError{Entry: EntrySetup, Err: ErrMissingEntry}
	}
	v, err := b.call(ctx, EntrySetup, vm.FromInt(int64(size)))
	if err != nil {
		return nil, err
	}
	mem := v.Memory()
	if mem == nil {
		return nil, &EntryError{Entry: EntrySetup, Err: fmt.Errorf("returned %s, not a SharedMemory: %w", v, vm.ErrType)}
	}
	if mem.Size() < protocol.HeaderSize {
		return nil, &EntryError{Entry: EntrySetup, Err: fmt.Errorf("shared memory of %d bytes cannot hold the header", mem.Size())}
	}
	h, err := protocol.DecodeHeader(mem.Bytes())
	if err != nil {
		return nil, &EntryError{Entry: EntrySetup, Err: err}
	}
	b.memory = mem
	b.header = h
	return mem, nil
}

// ReceiveGameParams calls receiveGameParams(offset). A program without
// the function accepts every parameter set.
func (b *Bot) ReceiveGameParams(ctx context.Context, offset int) (bool, error) {
	if b.memory == nil {
		return false, &EntryError{Entry: EntryReceiveGameParams, Err: ErrNoMemory}
	}
	if !b.vm.HasFunction(string(EntryReceiveGameParams)) {
		return true, nil
	}
	v, err := b.call(ctx, EntryReceiveGameParams, vm.FromInt(int64(offset)))
	if err != nil {
		return false, err
	}
	return v.Truthy(), nil
}

// Tick calls tick(offset). The command is left in shared memory.
func (b *Bot) Tick(ctx context.Context, offset int) error {
	if b.memory == nil {
		return &EntryError{Entry: EntryTick, Err: ErrNoMemory}
	}
	if !b.vm.HasFunction(string(EntryTick)) {
		return &EntryError{Entry: EntryTick, Err: ErrMissingEntry}
	}
	_, err := b.call(ctx, EntryTick, vm.FromInt(int64(offset)))
	return err
}

// Header returns the header setup wrote, decoded when setup returned.
func (b *Bot) Header() (protocol.Header, error) {
	if b.memory == nil {
		return protocol.Header{}, ErrNoMemory
	}
	return b.header, nil
}

// Command decodes the command at offset 0.
func (b *Bot) Command() (protocol.Command, error) {
	if b.memory == nil {
		return protocol.Command{}, ErrNoMemory
	}
	return protocol.DecodeCommand(b.memory.Bytes())
}

// WriteGameParameters stores p at offset.
func (b *Bot) WriteGameParameters(offset int, p protocol.GameParameters) error {
	buf := make([]byte, protocol.GameParametersSize)
	if err := p.Encode(buf); err != nil {
		return err
	}
	return b.write(offset, buf)
}

// WriteCircumstances stores c at offset.
func (b *Bot) WriteCircumstances(offset int, c protocol.Circumstances) error {
	buf := make([]byte, c.Size())
	if err := c.Encode(buf); err != nil {
		return err
	}
	return b.write(offset, buf)
}

func (b *Bot) write(offset int, data []byte) error {
	if b.memory == nil {
		return ErrNoMemory
	}
	if offset < protocol.HeaderSize {
		return fmt.Errorf("host: offset %d overlaps the header", offset)
	}
	return b.memory.WriteAt(offset, data)
}
