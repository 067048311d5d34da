package server

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"connectrpc.com/connect"
	"github.com/tliron/commonlog"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/chazu/rbot/config"
	"github.com/chazu/rbot/examples"
	"github.com/chazu/rbot/host"
	"github.com/chazu/rbot/journal"
	"github.com/chazu/rbot/vm"
	"github.com/chazu/rbot/vm/image"
)

var log = commonlog.GetLogger("rbot.server")

// Server plays bots for remote game engines. It serves both gRPC and
// Connect on the same port, CBOR-encoded.
type Server struct {
	cfg      *config.Config
	service  *BotService
	sessions *SessionStore
	mux      *http.ServeMux
	journal  *journal.Journal

	ownsJournal bool
	stopSweeper func()
	closeOnce   sync.Once

	mu         sync.Mutex
	httpServer *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithJournal records every tick in j. The caller keeps ownership.
func WithJournal(j *journal.Journal) Option {
	return func(s *Server) { s.journal = j }
}

// WithProgramSource replaces DefaultProgramSource.
func WithProgramSource(src ProgramSource) Option {
	return func(s *Server) { s.service.programs = src }
}

// WithBotOptions adds options to every bot the server creates.
func WithBotOptions(opts ...host.Option) Option {
	return func(s *Server) { s.service.botOpts = append(s.service.botOpts, opts...) }
}

// DefaultProgramSource decodes an image when one is given, otherwise it
// looks the name up among the built-in samples.
func DefaultProgramSource(name string, data []byte) (*vm.Program, error) {
	if len(data) > 0 {
		return image.Unmarshal(data)
	}
	return examples.Program(name)
}

// New creates a Server. When cfg names a journal and WithJournal was not
// given, the server opens and owns it.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	s := &Server{
		cfg:      cfg,
		sessions: NewSessionStore(cfg.Server.MaxSessions),
		mux:      http.NewServeMux(),
	}
	s.service = &BotService{
		cfg:      cfg,
		sessions: s.sessions,
		programs: DefaultProgramSource,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.journal == nil {
		if path := cfg.JournalPath(); path != "" {
			j, err := journal.Open(path)
			if err != nil {
				return nil, err
			}
			s.journal = j
			s.ownsJournal = true
		}
	}
	s.service.journal = s.journal

	codec := connect.WithCodec(Codec{})
	s.mux.Handle(CreateSessionProcedure, connect.NewUnaryHandler(CreateSessionProcedure, s.service.CreateSession, codec))
	s.mux.Handle(SetupProcedure, connect.NewUnaryHandler(SetupProcedure, s.service.Setup, codec))
	s.mux.Handle(ReceiveGameParamsProcedure, connect.NewUnaryHandler(ReceiveGameParamsProcedure, s.service.ReceiveGameParams, codec))
	s.mux.Handle(TickProcedure, connect.NewUnaryHandler(TickProcedure, s.service.Tick, codec))
	s.mux.Handle(ReadMemoryProcedure, connect.NewUnaryHandler(ReadMemoryProcedure, s.service.ReadMemory, codec))
	s.mux.Handle(CloseSessionProcedure, connect.NewUnaryHandler(CloseSessionProcedure, s.service.CloseSession, codec))

	if ttl := cfg.Server.IdleTimeout.Duration; ttl > 0 {
		interval := ttl / 6
		if interval < time.Second {
			interval = time.Second
		}
		s.stopSweeper = s.sessions.StartSweeper(interval, ttl)
	}
	return s, nil
}

// Sessions exposes the session store.
func (s *Server) Sessions() *SessionStore { return s.sessions }

// Journal returns the tick journal, or nil.
func (s *Server) Journal() *journal.Journal { return s.journal }

// Handler returns the HTTP handler. gRPC clients need HTTP/2, which is
// accepted here without TLS.
func (s *Server) Handler() http.Handler {
	return h2c.NewHandler(s.mux, &http2.Server{})
}

// ListenAndServe serves on addr, or on the configured address when addr
// is empty.
func (s *Server) ListenAndServe(addr string) error {
	if addr == "" {
		addr = s.cfg.Server.Addr
	}
	hs := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = hs
	s.mu.Unlock()

	log.Infof("listening on %s (connect and gRPC, %s codec)", addr, CodecName)
	err := hs.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Close stops the listener, every session and the sweeper.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.stopSweeper != nil {
			s.stopSweeper()
		}
		s.mu.Lock()
		hs := s.httpServer
		s.mu.Unlock()
		if hs != nil {
			err = hs.Close()
		}
		s.sessions.CloseAll()
		if s.ownsJournal {
			if jerr := s.journal.Close(); err == nil {
				err = jerr
			}
		}
	})
	return err
}
