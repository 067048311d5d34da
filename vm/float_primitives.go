package vm

import "math"

// ---------------------------------------------------------------------------
// Float Primitives
// ---------------------------------------------------------------------------

func (vm *VM) registerFloatPrimitives() {
	c := vm.FloatClass
	registerArithmetic(c)

	c.AddMethod1("**", func(in *Interpreter, self Value, arg Value) (Value, error) {
		if err := in.vm.numericOperand(self, arg, false); err != nil {
			return Nil, err
		}
		return FromFloat(math.Pow(self.Float(), arg.Number())), nil
	})
	c.AddMethod1("fdiv", func(in *Interpreter, self Value, arg Value) (Value, error) {
		if err := in.vm.numericOperand(self, arg, false); err != nil {
			return Nil, err
		}
		return FromFloat(self.Float() / arg.Number()), nil
	})
	c.AddMethod0("-@", func(_ *Interpreter, self Value) (Value, error) {
		return FromFloat(-self.Float()), nil
	})
	c.AddMethod0("abs", func(_ *Interpreter, self Value) (Value, error) {
		return FromFloat(math.Abs(self.Float())), nil
	})

	toInt := func(in *Interpreter, f float64) (Value, error) {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return Nil, in.vm.raiseNamed("FloatDomainError", "%s", formatFloat(f))
		}
		return FromInt(int64(f)), nil
	}
	c.AddMethod0("to_i", func(in *Interpreter, self Value) (Value, error) {
		return toInt(in, math.Trunc(self.Float()))
	})
	c.VTable.AddMethod("truncate", c.LookupMethod("to_i"))
	c.AddMethod0("floor", func(in *Interpreter, self Value) (Value, error) {
		return toInt(in, math.Floor(self.Float()))
	})
	c.AddMethod0("ceil", func(in *Interpreter, self Value) (Value, error) {
		return toInt(in, math.Ceil(self.Float()))
	})
	c.AddMethodN("round", 0, 1, func(in *Interpreter, self Value, args []Value) (Value, error) {
		f := self.Float()
		if len(args) == 0 || !args[0].IsInt() || args[0].Int() == 0 {
			return toInt(in, math.Round(f))
		}
		p := math.Pow(10, float64(args[0].Int()))
		return FromFloat(math.Round(f*p) / p), nil
	})
	c.AddMethod0("to_f", func(_ *Interpreter, self Value) (Value, error) { return self, nil })
	c.AddMethod0("to_s", func(_ *Interpreter, self Value) (Value, error) {
		return NewString(formatFloat(self.Float())), nil
	})
	c.VTable.AddMethod("inspect", c.LookupMethod("to_s"))

	c.AddMethod0("nan?", func(_ *Interpreter, self Value) (Value, error) {
		return FromBool(math.IsNaN(self.Float())), nil
	})
	c.AddMethod0("finite?", func(_ *Interpreter, self Value) (Value, error) {
		f := self.Float()
		return FromBool(!math.IsNaN(f) && !math.IsInf(f, 0)), nil
	})
	c.AddMethod0("infinite?", func(_ *Interpreter, self Value) (Value, error) {
		switch f := self.Float(); {
		case math.IsInf(f, 1):
			return FromInt(1), nil
		case math.IsInf(f, -1):
			return FromInt(-1), nil
		}
		return Nil, nil
	})
	c.AddMethod0("zero?", func(_ *Interpreter, self Value) (Value, error) {
		return FromBool(self.Float() == 0), nil
	})
	c.AddMethod0("integer?", func(_ *Interpreter, _ Value) (Value, error) { return False, nil })
	c.AddMethod0("hash", func(_ *Interpreter, self Value) (Value, error) {
		return FromInt(int64(math.Float64bits(self.Float()))), nil
	})
}
