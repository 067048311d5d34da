// Package config handles rbot.toml configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/chazu/rbot/vm"
)

// FileName is the configuration file looked up by Load and FindAndLoad.
const FileName = "rbot.toml"

// Config represents an rbot.toml file.
type Config struct {
	VM      VMConfig      `toml:"vm"`
	Host    HostConfig    `toml:"host"`
	Log     LogConfig     `toml:"log"`
	Journal JournalConfig `toml:"journal"`
	Server  ServerConfig  `toml:"server"`

	// Dir is the directory containing the rbot.toml file (set at load time).
	Dir string `toml:"-"`
}

// VMConfig sizes the interpreter.
type VMConfig struct {
	MaxFrameDepth int    `toml:"max_frame_depth"`
	StackSlots    int    `toml:"stack_slots"`
	StepLimit     int64  `toml:"step_limit"`
	ClosurePolicy string `toml:"closure_policy"` // "promote" or "strict"
}

// HostConfig configures the bot host.
type HostConfig struct {
	MemoryLimit  int      `toml:"memory_limit"`
	MemorySize   int      `toml:"memory_size"`
	EntryTimeout Duration `toml:"entry_timeout"`
	ParamsOffset int      `toml:"params_offset"`
	TickOffset   int      `toml:"tick_offset"`
}

// LogConfig configures commonlog.
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// JournalConfig configures the tick journal. An empty path disables it.
type JournalConfig struct {
	Path string `toml:"path"`
}

// ServerConfig configures the RPC server.
type ServerConfig struct {
	Addr        string   `toml:"addr"`
	MaxSessions int      `toml:"max_sessions"`
	IdleTimeout Duration `toml:"idle_timeout"` // sessions unused this long are closed; 0 keeps them
}

// Duration is a time.Duration written as a string such as "250ms".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for toml.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		VM: VMConfig{
			MaxFrameDepth: vm.DefaultMaxFrameDepth,
			StackSlots:    vm.DefaultStackSlots,
			StepLimit:     10_000_000,
			ClosurePolicy: "promote",
		},
		Host: HostConfig{
			MemoryLimit:  1 << 20,
			MemorySize:   8192,
			EntryTimeout: Duration{time.Second},
			ParamsOffset: 32,
			TickOffset:   64,
		},
		Server: ServerConfig{
			Addr:        "127.0.0.1:7470",
			MaxSessions: 64,
			IdleTimeout: Duration{30 * time.Minute},
		},
	}
}

// Load parses an rbot.toml file from the given directory.
func Load(dir string) (*Config, error) {
	c, err := LoadFile(filepath.Join(dir, FileName))
	if err != nil {
		return nil, err
	}
	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return c, nil
}

// LoadFile parses a configuration file. Unset keys keep their defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c := Default()
	md, err := toml.Decode(string(data), c)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undec := md.Undecoded(); len(undec) > 0 {
		return nil, fmt.Errorf("%s: unknown key %q", path, undec[0].String())
	}
	c.Dir = filepath.Dir(path)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// FindAndLoad walks up from startDir to find an rbot.toml file, then
// loads and returns it. Returns Default() if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), nil
		}
		dir = parent
	}
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.VM.MaxFrameDepth <= 0 {
		errs = append(errs, fmt.Errorf("vm.max_frame_depth must be positive, got %d", c.VM.MaxFrameDepth))
	}
	if c.VM.StackSlots < 256 {
		errs = append(errs, fmt.Errorf("vm.stack_slots must be at least 256, got %d", c.VM.StackSlots))
	}
	if c.VM.StepLimit < 0 {
		errs = append(errs, fmt.Errorf("vm.step_limit must not be negative"))
	}
	if _, err := c.Policy(); err != nil {
		errs = append(errs, err)
	}
	if c.Host.MemoryLimit < 0 || c.Host.MemorySize <= 0 {
		errs = append(errs, fmt.Errorf("host.memory_size must be positive and host.memory_limit not negative"))
	}
	if c.Host.MemoryLimit > 0 && c.Host.MemorySize > c.Host.MemoryLimit {
		errs = append(errs, fmt.Errorf("host.memory_size %d exceeds host.memory_limit %d", c.Host.MemorySize, c.Host.MemoryLimit))
	}
	if c.Host.EntryTimeout.Duration < 0 {
		errs = append(errs, fmt.Errorf("host.entry_timeout must not be negative"))
	}
	if c.Host.ParamsOffset < 32 || c.Host.TickOffset < 32 {
		errs = append(errs, fmt.Errorf("host offsets must not overlap the 32-byte header"))
	}
	if c.Server.MaxSessions < 0 {
		errs = append(errs, fmt.Errorf("server.max_sessions must not be negative"))
	}
	if c.Server.IdleTimeout.Duration < 0 {
		errs = append(errs, fmt.Errorf("server.idle_timeout must not be negative"))
	}
	return errors.Join(errs...)
}

// Policy maps closure_policy onto the VM's policy.
func (c *Config) Policy() (vm.ClosurePolicy, error) {
	switch c.VM.ClosurePolicy {
	case "", "promote":
		return vm.PromoteCaptured, nil
	case "strict":
		return vm.StrictLifetime, nil
	}
	return 0, fmt.Errorf("vm.closure_policy must be promote or strict, got %q", c.VM.ClosurePolicy)
}

// VMOptions converts the [vm] and [host] sections into VM options.
func (c *Config) VMOptions() []vm.Option {
	policy, _ := c.Policy()
	return []vm.Option{
		vm.WithMaxFrameDepth(c.VM.MaxFrameDepth),
		vm.WithStackSlots(c.VM.StackSlots),
		vm.WithStepLimit(c.VM.StepLimit),
		vm.WithClosurePolicy(policy),
		vm.WithMemoryLimit(c.Host.MemoryLimit),
	}
}

// JournalPath returns the journal path resolved against Dir, or "".
func (c *Config) JournalPath() string {
	if c.Journal.Path == "" || filepath.IsAbs(c.Journal.Path) || c.Dir == "" {
		return c.Journal.Path
	}
	return filepath.Join(c.Dir, c.Journal.Path)
}
