// rbot runs Ruby-subset game bots: against the built-in arena, or as a
// service for remote game engines.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/rbot/config"
	"github.com/chazu/rbot/examples"
	"github.com/chazu/rbot/host"
	"github.com/chazu/rbot/journal"
	"github.com/chazu/rbot/protocol"
	"github.com/chazu/rbot/server"
	"github.com/chazu/rbot/vm"
	"github.com/chazu/rbot/vm/image"
)

var log = commonlog.GetLogger("rbot")

func main() {
	configPath := flag.String("config", "", "Path to rbot.toml (default: search upward from the working directory)")
	imagePath := flag.String("image", "", "Load the program from an .rbi image")
	programName := flag.String("program", "bot", "Built-in sample to run when no image is given")
	emitPath := flag.String("emit", "", "Write the program as an .rbi image and exit")
	ticks := flag.Int("ticks", 10, "Number of ticks to play against the built-in arena")
	arenaSize := flag.Int("arena", 7, "Width and height of the built-in arena")
	memory := flag.Int("memory", 0, "Shared memory size passed to setup (default from config)")
	serve := flag.Bool("serve", false, "Serve BotService (Connect and gRPC) instead of playing locally")
	addr := flag.String("addr", "", "Listen address for -serve (default from config)")
	disasm := flag.Bool("disasm", false, "Print the program's bytecode and exit")
	list := flag.Bool("list", false, "List the built-in samples and exit")
	verbose := flag.Int("v", -1, "Log verbosity (default from config)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: rbot [options]\n\n")
		fmt.Fprintf(os.Stderr, "Runs a bot program against the built-in arena, or serves it to game engines.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  rbot -ticks 5                 # Play the sample bot for 5 ticks\n")
		fmt.Fprintf(os.Stderr, "  rbot -program fib             # Run a sample script\n")
		fmt.Fprintf(os.Stderr, "  rbot -emit bot.rbi            # Save the sample bot as an image\n")
		fmt.Fprintf(os.Stderr, "  rbot -image bot.rbi -disasm   # Inspect an image\n")
		fmt.Fprintf(os.Stderr, "  rbot -serve -addr :7470       # Start the bot service\n")
	}
	flag.Parse()

	if *list {
		for _, name := range examples.Names() {
			fmt.Println(name)
		}
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal(err)
	}
	if *verbose >= 0 {
		cfg.Log.Verbosity = *verbose
	}
	if *memory > 0 {
		cfg.Host.MemorySize = *memory
	}
	var logFile *string
	if cfg.Log.File != "" {
		logFile = &cfg.Log.File
	}
	commonlog.Configure(cfg.Log.Verbosity, logFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *serve {
		if err := runServer(ctx, cfg, *addr); err != nil {
			fatal(err)
		}
		return
	}

	program, err := loadProgram(*imagePath, *programName)
	if err != nil {
		fatal(err)
	}

	switch {
	case *emitPath != "":
		if err := image.WriteFile(*emitPath, program); err != nil {
			fatal(err)
		}
		fmt.Printf("wrote %s\n", *emitPath)
	case *disasm:
		printDisassembly(program)
	case program.Method(string(host.EntryTick)) != nil:
		if err := play(ctx, cfg, program, *ticks, *arenaSize); err != nil {
			fatal(err)
		}
	default:
		if err := runScript(ctx, cfg, program); err != nil {
			fatal(err)
		}
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return config.FindAndLoad(wd)
}

func loadProgram(imagePath, name string) (*vm.Program, error) {
	if imagePath != "" {
		return image.ReadFile(imagePath)
	}
	return examples.Program(name)
}

func printDisassembly(p *vm.Program) {
	if p.Main != nil {
		fmt.Print(vm.Disassemble(p.Main))
	}
	for _, m := range p.Methods {
		fmt.Print(vm.Disassemble(m))
	}
	for _, c := range p.Classes {
		super := c.Superclass
		if super == "" {
			super = "Object"
		}
		fmt.Printf("\nclass %s < %s\n", c.Name, super)
		for _, m := range c.Methods {
			fmt.Print(indent(vm.Disassemble(m)))
		}
		for _, m := range c.ClassMethods {
			fmt.Print(indent("self." + vm.Disassemble(m)))
		}
	}
}

func indent(s string) string {
	lines := strings.SplitAfter(s, "\n")
	var sb strings.Builder
	for _, l := range lines {
		if l != "" {
			sb.WriteString("  ")
			sb.WriteString(l)
		}
	}
	return sb.String()
}

// play runs the bot in an arena, journaling when the config names a
// journal.
func play(ctx context.Context, cfg *config.Config, p *vm.Program, ticks, size int) error {
	bot, err := host.New(ctx, p,
		host.WithConfig(cfg),
		host.WithOutput(os.Stdout),
		host.WithLogSink(func(level protocol.LogLevel, msg string) {
			fmt.Printf("[%s] %s\n", level, msg)
		}),
	)
	if err != nil {
		return err
	}

	var opts []host.EngineOption
	if path := cfg.JournalPath(); path != "" {
		j, err := journal.Open(path)
		if err != nil {
			return err
		}
		defer j.Close()
		session := uuid.NewString()
		opts = append(opts, host.WithJournal(j, session))
		log.Infof("journaling to %s as session %s", path, session)
	}

	arena := host.NewArena(size, size)
	engine := host.NewEngine(bot, arena, opts...)
	err = engine.Run(ctx, ticks, func(r host.TickResult) {
		fmt.Printf("tick %d: %s -> %s (%d steps, %s)\n", r.Tick, r.Command, r.Result, r.Steps, r.Duration)
	})
	fmt.Print(arena)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runScript(ctx context.Context, cfg *config.Config, p *vm.Program) error {
	opts := append(cfg.VMOptions(), vm.WithOutput(os.Stdout))
	machine := vm.NewVM(opts...)
	return machine.Load(ctx, p)
}

func runServer(ctx context.Context, cfg *config.Config, addr string) error {
	srv, err := server.New(cfg)
	if err != nil {
		return err
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe(addr) }()

	select {
	case err := <-errc:
		srv.Close()
		return err
	case <-ctx.Done():
		log.Info("shutting down")
		return srv.Close()
	}
}
