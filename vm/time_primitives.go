package vm

import "time"

// ---------------------------------------------------------------------------
// Time Primitives
// ---------------------------------------------------------------------------

// Clock supplies Time.now. Tests and the host can pin it.
type Clock func() time.Time

// WithClock replaces the wall clock used by Time.now.
func WithClock(clock Clock) Option {
	return func(vm *VM) { vm.clock = clock }
}

func (vm *VM) newTime(t time.Time) Value {
	o := NewObject(vm.TimeClass)
	o.Data = t
	return FromObject(o)
}

func timeOf(v Value) (time.Time, bool) {
	if o := v.Object(); o != nil {
		t, ok := o.Data.(time.Time)
		return t, ok
	}
	return time.Time{}, false
}

func (vm *VM) registerTimePrimitives() {
	c := vm.TimeClass

	c.AddClassMethodN("now", 0, 0, func(in *Interpreter, _ Value, _ []Value) (Value, error) {
		return in.vm.newTime(in.vm.clock()), nil
	})
	c.AddClassMethodN("at", 1, 1, func(in *Interpreter, _ Value, args []Value) (Value, error) {
		if !args[0].IsNumeric() {
			return Nil, in.vm.newError(KindType, "can't convert %s into an exact number", in.vm.typeName(args[0]))
		}
		sec := args[0].Number()
		return in.vm.newTime(time.Unix(0, int64(sec*1e9))), nil
	})

	c.AddMethod0("to_i", func(_ *Interpreter, self Value) (Value, error) {
		t, _ := timeOf(self)
		return FromInt(t.Unix()), nil
	})
	c.AddMethod0("to_f", func(_ *Interpreter, self Value) (Value, error) {
		t, _ := timeOf(self)
		return FromFloat(float64(t.UnixNano()) / 1e9), nil
	})
	c.AddMethod0("usec", func(_ *Interpreter, self Value) (Value, error) {
		t, _ := timeOf(self)
		return FromInt(int64(t.Nanosecond() / 1000)), nil
	})
	c.AddMethod1("-", func(in *Interpreter, self Value, arg Value) (Value, error) {
		t, _ := timeOf(self)
		if u, ok := timeOf(arg); ok {
			return FromFloat(t.Sub(u).Seconds()), nil
		}
		if !arg.IsNumeric() {
			return Nil, in.vm.newError(KindType, "can't convert %s into an exact number", in.vm.typeName(arg))
		}
		return in.vm.newTime(t.Add(-time.Duration(arg.Number() * 1e9))), nil
	})
	c.AddMethod1("+", func(in *Interpreter, self Value, arg Value) (Value, error) {
		t, _ := timeOf(self)
		if !arg.IsNumeric() {
			return Nil, in.vm.newError(KindType, "can't convert %s into an exact number", in.vm.typeName(arg))
		}
		return in.vm.newTime(t.Add(time.Duration(arg.Number() * 1e9))), nil
	})
	c.AddMethod0("to_s", func(_ *Interpreter, self Value) (Value, error) {
		t, _ := timeOf(self)
		return NewString(t.Format("2006-01-02 15:04:05 -0700")), nil
	})
	c.VTable.AddMethod("inspect", c.LookupMethod("to_s"))
}
