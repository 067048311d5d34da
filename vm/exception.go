package vm

import (
	"errors"
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Error taxonomy
// ---------------------------------------------------------------------------

// ErrorKind classifies VM failures.
type ErrorKind uint8

const (
	KindRuntime           ErrorKind = iota // raised by guest code
	KindNoMethod                           // dispatch exhausted the class chain
	KindArity                              // argument count mismatch
	KindOutOfBounds                        // shared-memory or index range invalid
	KindStackOverflow                      // frame depth or slot arena exhausted
	KindUndefinedVariable                  // unassigned local or unknown constant
	KindType                               // operand of the wrong kind
	KindZeroDivision                       // integer division by zero
	KindLocalJump                          // control signal with no valid target
	KindClosureExpired                     // closure used after its frame expired
	KindBudgetExceeded                     // step budget or deadline exhausted
	KindInternal                           // malformed IR or unconsumed signal
)

var errorKindInfo = [...]struct {
	name      string
	class     string // guest exception class
	recovered bool
}{
	KindRuntime:           {"RuntimeError", "RuntimeError", true},
	KindNoMethod:          {"NoMethodError", "NoMethodError", true},
	KindArity:             {"ArityError", "ArgumentError", true},
	KindOutOfBounds:       {"OutOfBounds", "IndexError", true},
	KindStackOverflow:     {"StackOverflow", "SystemStackError", false},
	KindUndefinedVariable: {"UndefinedVariable", "NameError", true},
	KindType:              {"TypeError", "TypeError", true},
	KindZeroDivision:      {"ZeroDivisionError", "ZeroDivisionError", true},
	KindLocalJump:         {"LocalJumpError", "LocalJumpError", true},
	KindClosureExpired:    {"ClosureExpired", "LocalJumpError", true},
	KindBudgetExceeded:    {"BudgetExceeded", "", false},
	KindInternal:          {"InternalError", "", false},
}

func (k ErrorKind) String() string {
	if int(k) < len(errorKindInfo) {
		return errorKindInfo[k].name
	}
	return fmt.Sprintf("ErrorKind(%d)", k)
}

// Recoverable reports whether errors of this kind may be rescued by guest
// code and reported as ordinary failures of an entry point. Fatal kinds
// abort the whole top-level invocation.
func (k ErrorKind) Recoverable() bool {
	return int(k) < len(errorKindInfo) && errorKindInfo[k].recovered
}

// Error is a VM failure. Recoverable errors carry the guest exception
// object that rescue clauses receive.
type Error struct {
	Kind      ErrorKind
	Message   string
	Exception *Exception
	Backtrace []string

	cause error
}

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrRuntime           = &Error{Kind: KindRuntime}
	ErrNoMethod          = &Error{Kind: KindNoMethod}
	ErrArity             = &Error{Kind: KindArity}
	ErrOutOfBounds       = &Error{Kind: KindOutOfBounds}
	ErrStackOverflow     = &Error{Kind: KindStackOverflow}
	ErrUndefinedVariable = &Error{Kind: KindUndefinedVariable}
	ErrType              = &Error{Kind: KindType}
	ErrZeroDivision      = &Error{Kind: KindZeroDivision}
	ErrLocalJump         = &Error{Kind: KindLocalJump}
	ErrClosureExpired    = &Error{Kind: KindClosureExpired}
	ErrBudgetExceeded    = &Error{Kind: KindBudgetExceeded}
	ErrInternal          = &Error{Kind: KindInternal}
)

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.ClassName())
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	if len(e.Backtrace) > 0 {
		sb.WriteString(" (in ")
		sb.WriteString(e.Backtrace[0])
		sb.WriteByte(')')
	}
	return sb.String()
}

// Is matches sentinels by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Message == "" && t.Exception == nil && t.Kind == e.Kind
}

// Unwrap exposes the underlying cause, such as a context deadline.
func (e *Error) Unwrap() error { return e.cause }

// Recoverable reports whether the error may be rescued.
func (e *Error) Recoverable() bool { return e.Kind.Recoverable() }

// ClassName returns the guest exception class name, or the kind name for
// errors that have no guest class.
func (e *Error) ClassName() string {
	if e.Exception != nil && e.Exception.class != nil {
		return e.Exception.class.Name
	}
	return e.Kind.String()
}

// addFrame appends a backtrace entry as the error leaves a frame.
func (e *Error) addFrame(desc string) {
	if len(e.Backtrace) < 64 {
		e.Backtrace = append(e.Backtrace, desc)
	}
}

// kindForClass maps a raised exception class onto the taxonomy by looking
// for the nearest builtin ancestor.
func kindForClass(c *Class) ErrorKind {
	for k := c; k != nil; k = k.Superclass {
		switch k.Name {
		case "NoMethodError":
			return KindNoMethod
		case "ArgumentError":
			return KindArity
		case "IndexError", "RangeError":
			return KindOutOfBounds
		case "NameError":
			return KindUndefinedVariable
		case "TypeError":
			return KindType
		case "ZeroDivisionError":
			return KindZeroDivision
		case "LocalJumpError":
			return KindLocalJump
		}
	}
	return KindRuntime
}

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

// newError builds an error of the given kind together with its guest
// exception object.
func (vm *VM) newError(kind ErrorKind, format string, args ...any) *Error {
	msg := fmt.Sprintf(format, args...)
	e := &Error{Kind: kind, Message: msg}
	if name := errorKindInfo[kind].class; name != "" {
		if c := vm.Classes.Lookup(name); c != nil {
			e.Exception = &Exception{class: c, Message: msg}
		}
	}
	return e
}

// errorFromException wraps a raised guest exception.
func errorFromException(exc *Exception) *Error {
	return &Error{Kind: kindForClass(exc.class), Message: exc.Message, Exception: exc}
}

// internalError reports a VM consistency fault.
func internalError(format string, args ...any) *Error {
	return &Error{Kind: KindInternal, Message: fmt.Sprintf(format, args...)}
}

// exceptionValue returns the guest value a rescue clause receives.
func (e *Error) exceptionValue() Value {
	if e.Exception == nil {
		return Nil
	}
	return FromException(e.Exception)
}

// guestError attaches a guest exception to an error built without access
// to the VM, such as those from SharedMemory's Go API.
func (vm *VM) guestError(err error) error {
	var e *Error
	if !errors.As(err, &e) || e.Exception != nil {
		return err
	}
	if name := errorKindInfo[e.Kind].class; name != "" {
		if c := vm.Classes.Lookup(name); c != nil {
			e.Exception = &Exception{class: c, Message: e.Message}
		}
	}
	return e
}
