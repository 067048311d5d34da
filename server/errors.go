package server

import (
	"context"
	"errors"

	"connectrpc.com/connect"

	"github.com/chazu/rbot/host"
	"github.com/chazu/rbot/protocol"
	"github.com/chazu/rbot/vm"
	"github.com/chazu/rbot/vm/image"
)

// codeOf maps a failure onto a connect code. Errors raised by guest code
// inside an entry point are Aborted; budget exhaustion is
// ResourceExhausted, or DeadlineExceeded when the entry deadline fired.
func codeOf(err error) connect.Code {
	var ee *host.EntryError
	var ve *vm.Error
	switch {
	case errors.Is(err, context.Canceled):
		return connect.CodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return connect.CodeDeadlineExceeded
	case errors.Is(err, ErrTooManySessions):
		return connect.CodeResourceExhausted
	case errors.Is(err, ErrWorkerStopped):
		return connect.CodeUnavailable
	case errors.Is(err, host.ErrNoMemory), errors.Is(err, host.ErrMissingEntry):
		return connect.CodeFailedPrecondition
	case errors.Is(err, image.ErrNotImage), errors.Is(err, image.ErrVersion), errors.Is(err, protocol.ErrShortBuffer):
		return connect.CodeInvalidArgument
	case errors.As(err, &ee) && errors.As(err, &ve):
		switch ve.Kind {
		case vm.KindBudgetExceeded, vm.KindStackOverflow:
			return connect.CodeResourceExhausted
		case vm.KindInternal:
			return connect.CodeInternal
		}
		return connect.CodeAborted
	case errors.As(err, &ee):
		return connect.CodeAborted
	case errors.As(err, &ve):
		// Host-side memory access with a bad offset or length.
		if ve.Kind == vm.KindOutOfBounds {
			return connect.CodeOutOfRange
		}
		if ve.Kind == vm.KindInternal {
			return connect.CodeInvalidArgument
		}
		return connect.CodeAborted
	}
	return connect.CodeInternal
}

func connectError(err error) *connect.Error {
	var ce *connect.Error
	if errors.As(err, &ce) {
		return ce
	}
	return connect.NewError(codeOf(err), err)
}
