package server

import (
	"context"
	"fmt"

	"connectrpc.com/connect"

	"github.com/chazu/rbot/host"
	"github.com/chazu/rbot/protocol"
	"github.com/chazu/rbot/vm"
)

// CreateSession loads a program into a new bot.
func (s *BotService) CreateSession(
	ctx context.Context,
	req *connect.Request[CreateSessionRequest],
) (*connect.Response[CreateSessionResponse], error) {
	if req.Msg.Program == "" && len(req.Msg.Image) == 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("program or image is required"))
	}
	program, err := s.programs(req.Msg.Program, req.Msg.Image)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	opts := append([]host.Option{host.WithConfig(s.cfg)}, s.botOpts...)
	bot, err := host.New(ctx, program, opts...)
	if err != nil {
		return nil, connectError(err)
	}
	session, err := s.sessions.Create(req.Msg.Name, program.Name, bot)
	if err != nil {
		return nil, connectError(err)
	}
	log.Infof("session %s: created for %q", session.ID, program.Name)
	return connect.NewResponse(&CreateSessionResponse{
		SessionID: session.ID,
		Program:   program.Name,
	}), nil
}

// ReadMemory copies a range of the bot's shared memory.
func (s *BotService) ReadMemory(
	ctx context.Context,
	req *connect.Request[ReadMemoryRequest],
) (*connect.Response[ReadMemoryResponse], error) {
	session, err := s.session(req.Msg.SessionID)
	if err != nil {
		return nil, err
	}
	data, err := do(ctx, session.worker, func(_ context.Context, b *host.Bot) ([]byte, error) {
		mem := b.Memory()
		if mem == nil {
			return nil, host.ErrNoMemory
		}
		return mem.ReadAt(req.Msg.Offset, req.Msg.Length)
	})
	if err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(&ReadMemoryResponse{Data: data}), nil
}

// CloseSession destroys a session and stops its worker.
func (s *BotService) CloseSession(
	ctx context.Context,
	req *connect.Request[CloseSessionRequest],
) (*connect.Response[CloseSessionResponse], error) {
	if req.Msg.SessionID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("session_id is required"))
	}
	session, ok := s.sessions.Destroy(req.Msg.SessionID)
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q not found", req.Msg.SessionID))
	}
	log.Infof("session %s: closed after %d ticks", session.ID, session.Ticks())
	return connect.NewResponse(&CloseSessionResponse{Ticks: session.Ticks()}), nil
}

// session resolves a session ID into a connect error when unknown.
func (s *BotService) session(id string) (*Session, error) {
	if id == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("session_id is required"))
	}
	session, ok := s.sessions.Get(id)
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q not found", id))
	}
	return session, nil
}

// memoryWrite copies data into the bot's shared memory at offset.
func memoryWrite(b *host.Bot, offset int, data []byte) error {
	mem := b.Memory()
	if mem == nil {
		return host.ErrNoMemory
	}
	if offset < protocol.HeaderSize {
		return &vm.Error{Kind: vm.KindOutOfBounds, Message: fmt.Sprintf("offset %d overlaps the header", offset)}
	}
	return mem.WriteAt(offset, data)
}
