package vm

import (
	"context"
	"fmt"
)

// budget bounds one top-level invocation: an instruction count and the
// caller's context (cancellation and deadline).
type budget struct {
	limit int64
	used  int64
	ctx   context.Context
}

// checkEvery is how many instructions run between context checks.
const checkEvery = 1024

func (b *budget) reset(ctx context.Context, limit int64) {
	b.ctx = ctx
	b.limit = limit
	b.used = 0
}

func (b *budget) step() error {
	b.used++
	if b.limit > 0 && b.used > b.limit {
		return &Error{Kind: KindBudgetExceeded, Message: fmt.Sprintf("step limit of %d instructions exceeded", b.limit)}
	}
	if b.used%checkEvery == 0 && b.ctx != nil {
		if err := b.ctx.Err(); err != nil {
			return &Error{Kind: KindBudgetExceeded, Message: err.Error(), cause: err}
		}
	}
	return nil
}

// enter runs fn as a top-level invocation. The outermost entry resets the
// budget, converts escaping control signals into internal errors, and
// recovers panics so a fault in one invocation leaves the VM usable.
func (in *Interpreter) enter(ctx context.Context, fn func() (Result, error)) (v Value, err error) {
	outer := in.entered == 0
	if outer {
		if ctx == nil {
			ctx = context.Background()
		}
		if err := ctx.Err(); err != nil {
			return Nil, &Error{Kind: KindBudgetExceeded, Message: err.Error(), cause: err}
		}
		in.budget.reset(ctx, in.StepLimit)
	}
	in.entered++
	defer func() {
		in.entered--
		if !outer {
			return
		}
		if p := recover(); p != nil {
			err = internalError("panic during execution: %v", p)
			v = Nil
		}
		if err != nil {
			in.unwindAll()
		}
	}()

	r, err := fn()
	if err != nil {
		return Nil, err
	}
	if !r.IsNormal() {
		return Nil, internalError("%s signal escaped the outermost entry point", r.Signal)
	}
	return r.Value, nil
}
