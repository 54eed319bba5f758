package glee

import (
	"fmt"
	"math"
	"math/bits"
)

// IntrinsicKind identifies the built-in behaviour of a bodiless function.
type IntrinsicKind int

const (
	IntrinsicMalloc IntrinsicKind = iota + 1
	IntrinsicCalloc
	IntrinsicRealloc
	IntrinsicFree
	IntrinsicExit
	IntrinsicAbort
	IntrinsicSetJump
	IntrinsicLongJump
	IntrinsicStackSave
	IntrinsicStackRestore
	IntrinsicSignalMask
	IntrinsicFunnelShiftLeft
	IntrinsicNull
	IntrinsicGcUnimplemented
	IntrinsicOpen
	IntrinsicSeek
	IntrinsicClose
	IntrinsicMemset
	IntrinsicMemcpy
	IntrinsicSymbolic
	IntrinsicAssume
	IntrinsicAssert
	IntrinsicBoundsCheck
)

var intrinsicNames = map[IntrinsicKind]string{
	IntrinsicMalloc:          "malloc",
	IntrinsicCalloc:          "calloc",
	IntrinsicRealloc:         "realloc",
	IntrinsicFree:            "free",
	IntrinsicExit:            "exit",
	IntrinsicAbort:           "abort",
	IntrinsicSetJump:         "setjmp",
	IntrinsicLongJump:        "longjmp",
	IntrinsicStackSave:       "stacksave",
	IntrinsicStackRestore:    "stackrestore",
	IntrinsicSignalMask:      "sigprocmask",
	IntrinsicFunnelShiftLeft: "fshl",
	IntrinsicNull:            "null",
	IntrinsicGcUnimplemented: "gc_unimplemented",
	IntrinsicOpen:            "open",
	IntrinsicSeek:            "lseek",
	IntrinsicClose:           "close",
	IntrinsicMemset:          "memset",
	IntrinsicMemcpy:          "memcpy",
	IntrinsicSymbolic:        "symbolic",
	IntrinsicAssume:          "assume",
	IntrinsicAssert:          "assert",
	IntrinsicBoundsCheck:     "bounds_check",
}

// Aliases used by common toolchains.
var intrinsicAliases = map[string]IntrinsicKind{
	"_exit":             IntrinsicExit,
	"_setjmp":           IntrinsicSetJump,
	"_longjmp":          IntrinsicLongJump,
	"llvm.stacksave":    IntrinsicStackSave,
	"llvm.stackrestore": IntrinsicStackRestore,
	"llvm.fshl":         IntrinsicFunnelShiftLeft,
	"llvm.memset":       IntrinsicMemset,
	"llvm.memcpy":       IntrinsicMemcpy,
	"memmove":           IntrinsicMemcpy,
	"pthread_sigmask":   IntrinsicSignalMask,
	"panic":             IntrinsicAbort,
}

// String returns the name of the intrinsic.
func (k IntrinsicKind) String() string {
	if name, ok := intrinsicNames[k]; ok {
		return name
	}
	return fmt.Sprintf("IntrinsicKind<%d>", int(k))
}

// LookupIntrinsic returns the intrinsic implemented under name.
func LookupIntrinsic(name string) (IntrinsicKind, bool) {
	if kind, ok := intrinsicAliases[name]; ok {
		return kind, true
	}
	for kind, s := range intrinsicNames {
		if s == name {
			return kind, true
		}
	}
	return 0, false
}

// Intrinsic is a function implemented by the executor.
type Intrinsic struct {
	ID   FunctionID
	Name string
	Kind IntrinsicKind
}

// FunctionID returns the function id.
func (fn *Intrinsic) FunctionID() FunctionID { return fn.ID }

// FunctionName returns the function name.
func (fn *Intrinsic) FunctionName() string { return fn.Name }

// Call executes the intrinsic.
func (fn *Intrinsic) Call(state *ExecutionState, caller Caller, args []Expr) error {
	if n := intrinsicArgN(fn.Kind); len(args) < n {
		return fmt.Errorf("glee: %s: expected %d arguments, got %d", fn.Name, n, len(args))
	}

	switch fn.Kind {
	case IntrinsicMalloc:
		return callMalloc(state, caller, args, false)
	case IntrinsicCalloc:
		return callCalloc(state, caller, args)
	case IntrinsicRealloc:
		return callRealloc(state, caller, args)
	case IntrinsicFree:
		return callFree(state, args)
	case IntrinsicExit:
		state.exit(args[0])
		return nil
	case IntrinsicAbort:
		return NewStateError(state.space, "%s called", fn.Name)
	case IntrinsicSetJump:
		return callSetJump(state, caller, args)
	case IntrinsicLongJump:
		return callLongJump(state, args)
	case IntrinsicStackSave:
		return callStackSave(state, caller)
	case IntrinsicStackRestore:
		return callStackRestore(state, args)
	case IntrinsicSignalMask:
		state.bind(caller, NewConstantExpr(0, caller.Width))
		return nil
	case IntrinsicFunnelShiftLeft:
		return callFunnelShiftLeft(state, caller, args)
	case IntrinsicNull:
		state.bind(caller, state.space.CreateConstant(state.space.PointerWidth(), 0))
		return nil
	case IntrinsicGcUnimplemented:
		state.bind(caller, NewConstantExpr(3, caller.Width))
		return nil
	case IntrinsicOpen:
		return callOpen(state, caller, args)
	case IntrinsicSeek:
		return callSeek(state, caller, args)
	case IntrinsicClose:
		return callClose(state, caller, args)
	case IntrinsicMemset:
		return callMemset(state, caller, args)
	case IntrinsicMemcpy:
		return callMemcpy(state, caller, args)
	case IntrinsicSymbolic:
		state.bind(caller, state.space.CreateSymbolic(caller.Width, fmt.Sprintf("%s.%d", fn.Name, state.nextSymbol())))
		return nil
	case IntrinsicAssume:
		return callAssume(state, args)
	case IntrinsicAssert:
		return callAssert(state, args)
	case IntrinsicBoundsCheck:
		return callBoundsCheck(state, args)
	default:
		return fmt.Errorf("glee: unknown intrinsic: %s", fn.Kind)
	}
}

func intrinsicArgN(kind IntrinsicKind) int {
	switch kind {
	case IntrinsicMalloc, IntrinsicFree, IntrinsicExit, IntrinsicSetJump,
		IntrinsicStackRestore, IntrinsicOpen, IntrinsicClose, IntrinsicAssume, IntrinsicAssert:
		return 1
	case IntrinsicCalloc, IntrinsicRealloc, IntrinsicLongJump, IntrinsicBoundsCheck:
		return 2
	case IntrinsicFunnelShiftLeft, IntrinsicSeek, IntrinsicMemset, IntrinsicMemcpy:
		return 3
	default:
		return 0
	}
}

// concrete returns the value of expr, which must not be symbolic.
func concrete(state *ExecutionState, expr Expr, what string) (uint64, error) {
	if expr, ok := expr.(*ConstantExpr); ok {
		return expr.Value, nil
	}
	return 0, NewStateError(state.space, "symbolic %s is not supported", what)
}

// offsetAddress returns address+offset at pointer width.
func offsetAddress(state *ExecutionState, address Expr, offset uint64) Expr {
	width := state.space.PointerWidth()
	return NewBinaryExpr(ADD, NewCastExpr(address, width, false), NewConstantExpr(offset, width))
}

func isNull(expr Expr) bool {
	c, ok := expr.(*ConstantExpr)
	return ok && c.Value == 0
}

func callMalloc(state *ExecutionState, caller Caller, args []Expr, zero bool) error {
	size, err := allocationSize(state, args[0])
	if err != nil {
		return err
	}

	var address Expr
	if zero {
		address = state.memory.AllocateZeroed(SectionHeap, uint(size*8))
	} else {
		address = state.memory.Allocate(SectionHeap, uint(size*8))
	}
	state.bind(caller, address)
	return nil
}

func callCalloc(state *ExecutionState, caller Caller, args []Expr) error {
	count, err := concrete(state, args[0], "allocation count")
	if err != nil {
		return err
	}
	size, err := concrete(state, args[1], "allocation size")
	if err != nil {
		return err
	} else if hi, _ := bits.Mul64(count, size); hi != 0 {
		return NewStateError(state.space, "allocation size is too large")
	}
	return callMalloc(state, caller, []Expr{NewConstantExpr64(count * size)}, true)
}

func callRealloc(state *ExecutionState, caller Caller, args []Expr) error {
	if isNull(args[0]) {
		return callMalloc(state, caller, args[1:], false)
	}

	size, err := allocationSize(state, args[1])
	if err != nil {
		return err
	}
	address, err := state.memory.Move(args[0], uint(size*8))
	if err != nil {
		return err
	}
	state.bind(caller, address)
	return nil
}

// allocationSize returns the concrete byte count in expr. A count that
// cannot fit below the maximum address fails the path.
func allocationSize(state *ExecutionState, expr Expr) (uint64, error) {
	size, err := concrete(state, expr, "allocation size")
	if err != nil {
		return 0, err
	} else if size > state.memory.Memory().MaxAddress() || size > math.MaxUint/8 {
		return 0, NewStateError(state.space, "allocation size is too large")
	}
	return size, nil
}

func callFree(state *ExecutionState, args []Expr) error {
	if isNull(args[0]) {
		return nil
	}
	return state.memory.Free(SectionHeap, args[0])
}

// callSetJump stores a fresh continuation in the jump buffer and saves the
// frame under it. The direct return value is zero.
func callSetJump(state *ExecutionState, caller Caller, args []Expr) error {
	continuation := state.nextContinuation()
	if err := state.memory.Write(args[0], continuation); err != nil {
		return err
	}
	if err := state.stack.SetJump(continuation, true, caller); err != nil {
		return err
	}
	state.bind(caller, NewConstantExpr(0, caller.Width))
	return nil
}

// callLongJump resumes after the matching setjmp, which then returns value
// or one if value is zero.
func callLongJump(state *ExecutionState, args []Expr) error {
	continuation, err := state.memory.Read(args[0], state.space.PointerWidth())
	if err != nil {
		return err
	}

	jp, ok, err := state.stack.Restore(continuation, true)
	if err != nil {
		return err
	} else if !ok {
		return NewStateError(state.space, "longjmp to invalid jump buffer")
	}

	if jp.Caller.Width > 0 {
		value := NewCastExpr(args[1], jp.Caller.Width, false)
		one := NewConstantExpr(1, jp.Caller.Width)
		state.bind(jp.Caller, NewIteExpr(NewIsZeroExpr(value), one, value))
	}
	return nil
}

func callStackSave(state *ExecutionState, caller Caller) error {
	continuation := state.nextContinuation()
	if err := state.stack.SetJump(continuation, false, caller); err != nil {
		return err
	}
	state.bind(caller, continuation)
	return nil
}

func callStackRestore(state *ExecutionState, args []Expr) error {
	if _, ok, err := state.stack.Restore(args[0], false); err != nil {
		return err
	} else if !ok {
		return NewStateError(state.space, "stackrestore to invalid stack pointer")
	}
	return nil
}

// callFunnelShiftLeft concatenates high and low, shifts left by the amount
// modulo the width and returns the upper half.
func callFunnelShiftLeft(state *ExecutionState, caller Caller, args []Expr) error {
	high, low, shift := args[0], args[1], args[2]
	width := NewConstantExpr(uint64(ExprWidth(shift)), ExprWidth(shift))
	offset := NewBinaryExpr(UREM, shift, width)
	result := NewBinaryExpr(OR,
		NewBinaryExpr(SHL, high, offset),
		NewBinaryExpr(LSHR, low, NewBinaryExpr(SUB, width, offset)),
	)
	state.bind(caller, result)
	return nil
}

// maxPathLength bounds the scan for a path terminator.
const maxPathLength = 4096

func callOpen(state *ExecutionState, caller Caller, args []Expr) error {
	var path []byte
	for i := uint64(0); ; i++ {
		if i == maxPathLength {
			return NewStateError(state.space, "path too long")
		}
		b, err := state.memory.Read(offsetAddress(state, args[0], i), Width8)
		if err != nil {
			return err
		}
		c, err := concrete(state, b, "path")
		if err != nil {
			return err
		} else if c == 0 {
			break
		}
		path = append(path, byte(c))
	}

	state.bind(caller, NewConstantExpr(uint64(int64(state.system.Open(string(path)))), caller.Width))
	return nil
}

func callSeek(state *ExecutionState, caller Caller, args []Expr) error {
	descriptor, err := concrete(state, args[0], "descriptor")
	if err != nil {
		return err
	}
	offset, err := concrete(state, NewCastExpr(args[1], Width64, true), "offset")
	if err != nil {
		return err
	}
	whence, err := concrete(state, args[2], "whence")
	if err != nil {
		return err
	}

	result := state.system.Seek(int(int32(descriptor)), int64(offset), int(whence))
	state.bind(caller, NewConstantExpr(uint64(result), caller.Width))
	return nil
}

func callClose(state *ExecutionState, caller Caller, args []Expr) error {
	descriptor, err := concrete(state, args[0], "descriptor")
	if err != nil {
		return err
	}
	state.bind(caller, NewConstantExpr(uint64(int64(state.system.Close(int(int32(descriptor))))), caller.Width))
	return nil
}

func callMemset(state *ExecutionState, caller Caller, args []Expr) error {
	n, err := concrete(state, args[2], "length")
	if err != nil {
		return err
	}

	value := NewCastExpr(args[1], Width8, false)
	for i := uint64(0); i < n; i++ {
		if err := state.memory.Write(offsetAddress(state, args[0], i), value); err != nil {
			return err
		}
	}
	state.bind(caller, args[0])
	return nil
}

func callMemcpy(state *ExecutionState, caller Caller, args []Expr) error {
	n, err := concrete(state, args[2], "length")
	if err != nil {
		return err
	}

	// Read everything first so overlapping ranges behave like memmove.
	values := make([]Expr, n)
	for i := range values {
		if values[i], err = state.memory.Read(offsetAddress(state, args[1], uint64(i)), Width8); err != nil {
			return err
		}
	}
	for i, value := range values {
		if err := state.memory.Write(offsetAddress(state, args[0], uint64(i)), value); err != nil {
			return err
		}
	}
	state.bind(caller, args[0])
	return nil
}

// callAssume narrows the path to the condition. The path is pruned if the
// condition cannot hold.
func callAssume(state *ExecutionState, args []Expr) error {
	p, err := state.space.Evaluate(NewBinaryExpr(NE, args[0], NewConstantExpr(0, ExprWidth(args[0]))))
	if err != nil {
		return err
	} else if !p.CanBeTrue {
		state.prune("assumption cannot hold")
		return nil
	}
	state.narrow(p.TrueSpace)
	return nil
}

func callAssert(state *ExecutionState, args []Expr) error {
	cond := NewBinaryExpr(NE, args[0], NewConstantExpr(0, ExprWidth(args[0])))
	return state.Fork(cond,
		func(state *ExecutionState) error { return nil },
		func(state *ExecutionState) error { return NewStateError(state.space, "assertion failed") },
	)
}

func callBoundsCheck(state *ExecutionState, args []Expr) error {
	index, length := args[0], NewCastExpr(args[1], ExprWidth(args[0]), false)
	return state.Fork(NewBinaryExpr(ULT, index, length),
		func(state *ExecutionState) error { return nil },
		func(state *ExecutionState) error { return NewStateError(state.space, "index out of range") },
	)
}
