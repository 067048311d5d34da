package server

import (
	"context"
	"time"

	"connectrpc.com/connect"

	"github.com/chazu/rbot/config"
	"github.com/chazu/rbot/host"
	"github.com/chazu/rbot/journal"
	"github.com/chazu/rbot/protocol"
	"github.com/chazu/rbot/vm"
)

// ProgramSource resolves a CreateSession request into a program.
type ProgramSource func(name string, image []byte) (*vm.Program, error)

// BotService implements the BotService handlers. Every session owns one
// bot behind its own worker.
type BotService struct {
	cfg      *config.Config
	sessions *SessionStore
	journal  *journal.Journal
	programs ProgramSource
	botOpts  []host.Option
}

// Setup calls clientInitialize and setup(size).
func (s *BotService) Setup(
	ctx context.Context,
	req *connect.Request[SetupRequest],
) (*connect.Response[SetupResponse], error) {
	session, err := s.session(req.Msg.SessionID)
	if err != nil {
		return nil, err
	}
	size := req.Msg.Size
	if size <= 0 {
		size = s.cfg.Host.MemorySize
	}

	res, err := do(ctx, session.worker, func(ctx context.Context, b *host.Bot) (*SetupResponse, error) {
		if err := b.ClientInitialize(ctx); err != nil {
			return nil, err
		}
		mem, err := b.Setup(ctx, size)
		if err != nil {
			return nil, err
		}
		h, err := b.Header()
		if err != nil {
			return nil, err
		}
		return &SetupResponse{
			BotName:    h.BotName(),
			Version:    h.Version,
			MemorySize: mem.Size(),
			Steps:      b.Steps(),
		}, nil
	})
	if err != nil {
		return nil, connectError(err)
	}
	log.Infof("session %s: bot %q %d.%d.%d ready", session.ID, res.BotName, res.Version[0], res.Version[1], res.Version[2])
	return connect.NewResponse(res), nil
}

// ReceiveGameParams writes the parameters and calls receiveGameParams.
func (s *BotService) ReceiveGameParams(
	ctx context.Context,
	req *connect.Request[ReceiveGameParamsRequest],
) (*connect.Response[ReceiveGameParamsResponse], error) {
	session, err := s.session(req.Msg.SessionID)
	if err != nil {
		return nil, err
	}
	if _, err := protocol.DecodeGameParameters(req.Msg.Data); err != nil {
		return nil, connectError(err)
	}

	res, err := do(ctx, session.worker, func(ctx context.Context, b *host.Bot) (*ReceiveGameParamsResponse, error) {
		if err := memoryWrite(b, req.Msg.Offset, req.Msg.Data); err != nil {
			return nil, err
		}
		ok, err := b.ReceiveGameParams(ctx, req.Msg.Offset)
		if err != nil {
			return nil, err
		}
		return &ReceiveGameParamsResponse{Accepted: ok, Steps: b.Steps()}, nil
	})
	if err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(res), nil
}

// Tick writes the circumstances, calls tick and returns the command.
func (s *BotService) Tick(
	ctx context.Context,
	req *connect.Request[TickRequest],
) (*connect.Response[TickResponse], error) {
	session, err := s.session(req.Msg.SessionID)
	if err != nil {
		return nil, err
	}
	circumstances, err := protocol.DecodeCircumstances(req.Msg.Data)
	if err != nil {
		return nil, connectError(err)
	}

	tick := session.ticks.Add(1)
	start := time.Now()
	var steps int64
	cmd, err := do(ctx, session.worker, func(ctx context.Context, b *host.Bot) (*protocol.Command, error) {
		if err := memoryWrite(b, req.Msg.Offset, req.Msg.Data); err != nil {
			return nil, err
		}
		b.Memory().Bytes()[0] = 0
		err := b.Tick(ctx, req.Msg.Offset)
		steps = b.Steps()
		if err != nil {
			return nil, err
		}
		c, err := b.Command()
		if err != nil {
			return nil, &host.EntryError{Entry: host.EntryTick, Err: err}
		}
		return &c, nil
	})
	s.record(ctx, session, tick, start, circumstances, cmd, steps, err)
	if err != nil {
		return nil, connectError(err)
	}

	data := make([]byte, cmd.Size())
	if err := cmd.Encode(data); err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(&TickResponse{Tick: tick, Command: data, Steps: steps}), nil
}

func (s *BotService) record(ctx context.Context, session *Session, tick int64, start time.Time,
	c protocol.Circumstances, cmd *protocol.Command, steps int64, err error) {
	if s.journal == nil {
		return
	}
	e := journal.Entry{
		Session:       session.ID,
		Tick:          tick,
		At:            start,
		Circumstances: c,
		Command:       cmd,
		Steps:         steps,
		Duration:      time.Since(start),
	}
	if err != nil {
		e.Err = err.Error()
	}
	if jerr := s.journal.Record(ctx, e); jerr != nil {
		log.Errorf("session %s: %v", session.ID, jerr)
	}
}
