package vm

import (
	"context"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Closures over enclosing locals
// ---------------------------------------------------------------------------

// accumulate is
//
//	result = 100
//	3.times { |i| result += 100 }
//	result
func accumulate() *CompiledMethod {
	body := block(1, 1, func(b *CompiledMethodBuilder) {
		bc := b.Bytecode()
		bc.EmitOuter(OpPushOuter, 1, 0)
		b.PushInt(100)
		bc.Emit(OpAdd)
		bc.EmitOuter(OpStoreOuter, 1, 0)
		bc.Emit(OpReturn)
	})
	return method("do_times", 0, 1, func(b *CompiledMethodBuilder) {
		bc := b.Bytecode()
		b.PushInt(100)
		bc.EmitByte(OpStoreTemp, 0)
		bc.Emit(OpPOP)
		b.PushInt(3)
		b.MakeBlock(body)
		b.SendBlock("times", 0)
		bc.Emit(OpPOP)
		bc.EmitByte(OpPushTemp, 0)
		bc.Emit(OpReturn)
	})
}

func TestBlockWritesEnclosingLocal(t *testing.T) {
	for _, policy := range []ClosurePolicy{PromoteCaptured, StrictLifetime} {
		t.Run(policy.String(), func(t *testing.T) {
			vm, _ := newTestVM(t, WithClosurePolicy(policy))
			wantInt(t, run(t, vm, accumulate()), 400)
		})
	}
}

func TestNestedBlocksReachTwoScopesUp(t *testing.T) {
	vm, _ := newTestVM(t)

	// result = 200; 3.times { 3.times { result += 200 } }; result
	inner := block(1, 1, func(b *CompiledMethodBuilder) {
		bc := b.Bytecode()
		bc.EmitOuter(OpPushOuter, 2, 0)
		b.PushInt(200)
		bc.Emit(OpAdd)
		bc.EmitOuter(OpStoreOuter, 2, 0)
		bc.Emit(OpReturn)
	})
	outer := block(1, 1, func(b *CompiledMethodBuilder) {
		b.PushInt(3)
		b.MakeBlock(inner)
		b.SendBlock("times", 0)
		b.Bytecode().Emit(OpReturn)
	})
	m := method("do_times_nest", 0, 1, func(b *CompiledMethodBuilder) {
		bc := b.Bytecode()
		b.PushInt(200)
		bc.EmitByte(OpStoreTemp, 0)
		bc.Emit(OpPOP)
		b.PushInt(3)
		b.MakeBlock(outer)
		b.SendBlock("times", 0)
		bc.Emit(OpPOP)
		bc.EmitByte(OpPushTemp, 0)
		bc.Emit(OpReturn)
	})
	wantInt(t, run(t, vm, m), 2000)
}

func TestBlockParametersSplatSingleArray(t *testing.T) {
	vm, _ := newTestVM(t)

	// [[1, 2], [3, 4]].map { |a, b| a * b }
	body := block(2, 2, func(b *CompiledMethodBuilder) {
		bc := b.Bytecode()
		bc.EmitByte(OpPushTemp, 0)
		bc.EmitByte(OpPushTemp, 1)
		bc.Emit(OpMul)
		bc.Emit(OpReturn)
	})
	m := method("test", 0, 0, func(b *CompiledMethodBuilder) {
		bc := b.Bytecode()
		b.PushInt(1)
		b.PushInt(2)
		bc.EmitByte(OpMakeArray, 2)
		b.PushInt(3)
		b.PushInt(4)
		bc.EmitByte(OpMakeArray, 2)
		bc.EmitByte(OpMakeArray, 2)
		b.MakeBlock(body)
		b.SendBlock("map", 0)
		bc.Emit(OpReturn)
	})
	got := run(t, vm, m)
	if want := NewArray(FromInt(2), FromInt(12)); !Equal(got, want) {
		t.Errorf("result = %v, want %v", got, want)
	}
}

// ---------------------------------------------------------------------------
// next / break / return
// ---------------------------------------------------------------------------

func TestBlockNext(t *testing.T) {
	vm, _ := newTestVM(t)

	// [1, 2, 3].map { |x| next 0 if x == 2; x }
	body := block(1, 1, func(b *CompiledMethodBuilder) {
		bc := b.Bytecode()
		keep := bc.NewLabel()
		bc.EmitByte(OpPushTemp, 0)
		b.PushInt(2)
		bc.Emit(OpEQ)
		bc.EmitJump(OpJumpUnless, keep)
		b.PushInt(0)
		bc.Emit(OpNext)
		bc.Mark(keep)
		bc.EmitByte(OpPushTemp, 0)
		bc.Emit(OpReturn)
	})
	m := method("test", 0, 0, func(b *CompiledMethodBuilder) {
		bc := b.Bytecode()
		b.PushInt(1)
		b.PushInt(2)
		b.PushInt(3)
		bc.EmitByte(OpMakeArray, 3)
		b.MakeBlock(body)
		b.SendBlock("map", 0)
		bc.Emit(OpReturn)
	})
	got := run(t, vm, m)
	if want := NewArray(FromInt(1), FromInt(0), FromInt(3)); !Equal(got, want) {
		t.Errorf("result = %v, want %v", got, want)
	}
}

func TestBlockBreakStopsIteration(t *testing.T) {
	vm, out := newTestVM(t)

	// 5.times { |i| puts i; break i * 10 if i == 2 }
	body := block(1, 1, func(b *CompiledMethodBuilder) {
		bc := b.Bytecode()
		cont := bc.NewLabel()
		bc.Emit(OpPushSelf)
		bc.EmitByte(OpPushTemp, 0)
		b.Send("puts", 1)
		bc.Emit(OpPOP)
		bc.EmitByte(OpPushTemp, 0)
		b.PushInt(2)
		bc.Emit(OpEQ)
		bc.EmitJump(OpJumpUnless, cont)
		bc.EmitByte(OpPushTemp, 0)
		b.PushInt(10)
		bc.Emit(OpMul)
		bc.Emit(OpBreak)
		bc.Mark(cont)
		bc.Emit(OpPushNil)
		bc.Emit(OpReturn)
	})
	m := method("test", 0, 0, func(b *CompiledMethodBuilder) {
		b.PushInt(5)
		b.MakeBlock(body)
		b.SendBlock("times", 0)
		b.Bytecode().Emit(OpReturn)
	})
	wantInt(t, run(t, vm, m), 20)
	if got := out.String(); got != "0\n1\n2\n" {
		t.Errorf("output = %q", got)
	}
}

func TestBlockBreakThroughYield(t *testing.T) {
	vm, _ := newTestVM(t)

	// def each_two; yield 1; yield 2; 99; end
	eachTwo := method("each_two", 0, 0, func(b *CompiledMethodBuilder) {
		bc := b.Bytecode()
		for _, v := range []int64{1, 2} {
			b.PushInt(v)
			bc.EmitByte(OpYield, 1)
			bc.Emit(OpPOP)
		}
		b.PushInt(99)
		bc.Emit(OpReturn)
	})
	mustLoad(t, vm, &Program{Name: "yield", Methods: []*CompiledMethod{eachTwo}})

	// each_two { |x| break x * 5 }
	body := block(1, 1, func(b *CompiledMethodBuilder) {
		b.Bytecode().EmitByte(OpPushTemp, 0)
		b.PushInt(5)
		b.Bytecode().Emit(OpMul)
		b.Bytecode().Emit(OpBreak)
	})
	m := method("test", 0, 0, func(b *CompiledMethodBuilder) {
		b.Bytecode().Emit(OpPushSelf)
		b.MakeBlock(body)
		b.SendBlock("each_two", 0)
		b.Bytecode().Emit(OpReturn)
	})
	wantInt(t, run(t, vm, m), 5)
}

// finder is def find; [1, 2, 3].each { |x| return x * 10 if x == 2 }; 99; end
func finder() *CompiledMethod {
	body := block(1, 1, func(b *CompiledMethodBuilder) {
		bc := b.Bytecode()
		cont := bc.NewLabel()
		bc.EmitByte(OpPushTemp, 0)
		b.PushInt(2)
		bc.Emit(OpEQ)
		bc.EmitJump(OpJumpUnless, cont)
		bc.EmitByte(OpPushTemp, 0)
		b.PushInt(10)
		bc.Emit(OpMul)
		bc.Emit(OpBlockReturn)
		bc.Mark(cont)
		bc.Emit(OpPushNil)
		bc.Emit(OpReturn)
	})
	return method("find", 0, 0, func(b *CompiledMethodBuilder) {
		bc := b.Bytecode()
		b.PushInt(1)
		b.PushInt(2)
		b.PushInt(3)
		bc.EmitByte(OpMakeArray, 3)
		b.MakeBlock(body)
		b.SendBlock("each", 0)
		bc.Emit(OpPOP)
		b.PushInt(99)
		bc.Emit(OpReturn)
	})
}

func TestBlockReturnFromHomeMethod(t *testing.T) {
	vm, _ := newTestVM(t)
	mustLoad(t, vm, &Program{Name: "find", Methods: []*CompiledMethod{finder()}})

	v, err := vm.Funcall(context.Background(), "find")
	if err != nil {
		t.Fatal(err)
	}
	wantInt(t, v, 20)
	if n := len(vm.Interpreter().stack); n != 0 {
		t.Errorf("operand stack holds %d values after return", n)
	}
}

func TestBlockReturnThroughNestedBlocks(t *testing.T) {
	vm, _ := newTestVM(t)

	// def deep; 3.times { 3.times { return 7 } }; 0; end
	inner := block(1, 1, func(b *CompiledMethodBuilder) {
		b.PushInt(7)
		b.Bytecode().Emit(OpBlockReturn)
	})
	outer := block(1, 1, func(b *CompiledMethodBuilder) {
		b.PushInt(3)
		b.MakeBlock(inner)
		b.SendBlock("times", 0)
		b.Bytecode().Emit(OpReturn)
	})
	deep := method("deep", 0, 0, func(b *CompiledMethodBuilder) {
		b.PushInt(3)
		b.MakeBlock(outer)
		b.SendBlock("times", 0)
		b.Bytecode().Emit(OpPOP)
		b.PushInt(0)
		b.Bytecode().Emit(OpReturn)
	})
	mustLoad(t, vm, &Program{Name: "deep", Methods: []*CompiledMethod{deep}})

	v, err := vm.Funcall(context.Background(), "deep")
	if err != nil {
		t.Fatal(err)
	}
	wantInt(t, v, 7)
}

func TestOrphanProcReturnIsLocalJump(t *testing.T) {
	vm, _ := newTestVM(t)

	// def mk; proc { return 1 }; end; mk.call
	body := block(0, 0, func(b *CompiledMethodBuilder) {
		b.PushInt(1)
		b.Bytecode().Emit(OpBlockReturn)
	})
	mk := method("mk", 0, 0, func(b *CompiledMethodBuilder) {
		b.MakeBlock(body)
		b.Bytecode().Emit(OpReturn)
	})
	mustLoad(t, vm, &Program{Name: "orphan", Methods: []*CompiledMethod{mk}})

	m := method("test", 0, 0, func(b *CompiledMethodBuilder) {
		b.Bytecode().Emit(OpPushSelf)
		b.Send("mk", 0)
		b.Send("call", 0)
		b.Bytecode().Emit(OpReturn)
	})
	wantKind(t, runErr(vm, m), KindLocalJump)
}

func TestLambdaConsumesReturn(t *testing.T) {
	vm, _ := newTestVM(t)

	// l = lambda { return 5 }; l.call + 1
	body := block(0, 0, func(b *CompiledMethodBuilder) {
		b.PushInt(5)
		b.Bytecode().Emit(OpBlockReturn)
	})
	m := method("test", 0, 1, func(b *CompiledMethodBuilder) {
		bc := b.Bytecode()
		b.MakeLambda(body)
		bc.EmitByte(OpStoreTemp, 0)
		bc.Emit(OpPOP)
		bc.EmitByte(OpPushTemp, 0)
		b.Send("call", 0)
		b.PushInt(1)
		bc.Emit(OpAdd)
		bc.Emit(OpReturn)
	})
	wantInt(t, run(t, vm, m), 6)
}

func TestLambdaStrictArity(t *testing.T) {
	vm, _ := newTestVM(t)
	body := block(1, 1, func(b *CompiledMethodBuilder) {
		b.Bytecode().EmitByte(OpPushTemp, 0)
		b.Bytecode().Emit(OpReturn)
	})
	m := method("test", 0, 0, func(b *CompiledMethodBuilder) {
		b.MakeLambda(body)
		b.Send("call", 0)
		b.Bytecode().Emit(OpReturn)
	})
	wantKind(t, runErr(vm, m), KindArity)
}

// ---------------------------------------------------------------------------
// yield
// ---------------------------------------------------------------------------

func TestYield(t *testing.T) {
	vm, _ := newTestVM(t)

	// def twice; yield(1) + yield(2); end
	twice := method("twice", 0, 0, func(b *CompiledMethodBuilder) {
		bc := b.Bytecode()
		b.PushInt(1)
		bc.EmitByte(OpYield, 1)
		b.PushInt(2)
		bc.EmitByte(OpYield, 1)
		bc.Emit(OpAdd)
		bc.Emit(OpReturn)
	})
	given := method("given", 0, 0, func(b *CompiledMethodBuilder) {
		b.Bytecode().Emit(OpBlockGiven)
		b.Bytecode().Emit(OpReturn)
	})
	mustLoad(t, vm, &Program{Name: "yield", Methods: []*CompiledMethod{twice, given}})

	times10 := block(1, 1, func(b *CompiledMethodBuilder) {
		b.Bytecode().EmitByte(OpPushTemp, 0)
		b.PushInt(10)
		b.Bytecode().Emit(OpMul)
		b.Bytecode().Emit(OpReturn)
	})
	callWith := func(name string, withBlock bool) *CompiledMethod {
		return method("test", 0, 0, func(b *CompiledMethodBuilder) {
			b.Bytecode().Emit(OpPushSelf)
			if withBlock {
				b.MakeBlock(times10)
				b.SendBlock(name, 0)
			} else {
				b.Send(name, 0)
			}
			b.Bytecode().Emit(OpReturn)
		})
	}

	wantInt(t, run(t, vm, callWith("twice", true)), 30)
	if v := run(t, vm, callWith("given", true)); v != True {
		t.Errorf("block_given? with block = %v", v)
	}
	if v := run(t, vm, callWith("given", false)); v != False {
		t.Errorf("block_given? without block = %v", v)
	}

	e := wantKind(t, runErr(vm, callWith("twice", false)), KindLocalJump)
	if !strings.Contains(e.Message, "no block given (yield)") {
		t.Errorf("message = %q", e.Message)
	}
}

// ---------------------------------------------------------------------------
// Escaping closures and the closure policy
// ---------------------------------------------------------------------------

// escapingCounter is
//
//	def do_time_block
//	  result = 0
//	  ->(i) { result += 100; puts result }
//	end
//	def do_times; 3.times(&do_time_block); end
func escapingCounter() []*CompiledMethod {
	body := block(1, 1, func(b *CompiledMethodBuilder) {
		bc := b.Bytecode()
		bc.EmitOuter(OpPushOuter, 1, 0)
		b.PushInt(100)
		bc.Emit(OpAdd)
		bc.EmitOuter(OpStoreOuter, 1, 0)
		bc.Emit(OpPOP)
		bc.Emit(OpPushSelf)
		bc.EmitOuter(OpPushOuter, 1, 0)
		b.Send("puts", 1)
		bc.Emit(OpReturn)
	})
	mk := method("do_time_block", 0, 1, func(b *CompiledMethodBuilder) {
		bc := b.Bytecode()
		b.PushInt(0)
		bc.EmitByte(OpStoreTemp, 0)
		bc.Emit(OpPOP)
		b.MakeLambda(body)
		bc.Emit(OpReturn)
	})
	doTimes := method("do_times", 0, 0, func(b *CompiledMethodBuilder) {
		bc := b.Bytecode()
		b.PushInt(3)
		bc.Emit(OpPushSelf)
		b.Send("do_time_block", 0)
		b.SendBlock("times", 0)
		bc.Emit(OpReturn)
	})
	return []*CompiledMethod{mk, doTimes}
}

func TestEscapingClosurePromoted(t *testing.T) {
	vm, out := newTestVM(t, WithClosurePolicy(PromoteCaptured))
	mustLoad(t, vm, &Program{Name: "todo", Methods: escapingCounter()})

	if _, err := vm.Funcall(context.Background(), "do_times"); err != nil {
		t.Fatal(err)
	}
	if got := out.String(); got != "100\n200\n300\n" {
		t.Errorf("output = %q", got)
	}
}

func TestEscapingClosureExpiresUnderStrictPolicy(t *testing.T) {
	vm, out := newTestVM(t, WithClosurePolicy(StrictLifetime))
	mustLoad(t, vm, &Program{Name: "todo", Methods: escapingCounter()})

	_, err := vm.Funcall(context.Background(), "do_times")
	e := wantKind(t, err, KindClosureExpired)
	if e.ClassName() != "LocalJumpError" {
		t.Errorf("class = %s, want LocalJumpError", e.ClassName())
	}
	if out.Len() != 0 {
		t.Errorf("output = %q, want nothing before the failure", out.String())
	}

	// The VM stays usable.
	v, err := vm.Execute(context.Background(), accumulate(), vm.Main())
	if err != nil {
		t.Fatal(err)
	}
	wantInt(t, v, 400)
}
