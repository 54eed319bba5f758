package glee

import (
	"bytes"
	"fmt"

	"github.com/benbjohnson/immutable"
)

// Frame is a single activation of a defined function. Frames are values:
// every change produces a new frame.
type Frame struct {
	function    *DefinedFunction
	caller      Caller
	block       *BasicBlock
	predecessor *BasicBlock
	pc          int

	locals      *immutable.SortedMap[InstructionID, Expr]
	allocations *immutable.List[Expr]
}

func newFrame(fn *DefinedFunction, caller Caller, args []Expr) *Frame {
	locals := immutable.NewSortedMap[InstructionID, Expr](idComparer[InstructionID]{})
	for i, p := range fn.Params {
		locals = locals.Set(p.ID, args[i])
	}
	return &Frame{
		function:    fn,
		caller:      caller,
		block:       fn.Blocks[0],
		locals:      locals,
		allocations: immutable.NewList[Expr](),
	}
}

func (f *Frame) clone() *Frame {
	other := *f
	return &other
}

// Function returns the function executing in the frame.
func (f *Frame) Function() *DefinedFunction { return f.function }

// Caller returns where the frame's result is bound in the calling frame.
func (f *Frame) Caller() Caller { return f.caller }

// Block returns the current basic block.
func (f *Frame) Block() *BasicBlock { return f.block }

// PC returns the index of the next instruction in the current block.
func (f *Frame) PC() int { return f.pc }

// Dump returns the contents of the frame as a string.
func (f *Frame) Dump() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "fn=%s block=b%d pc=%d\n", f.function.Name, f.block.ID, f.pc)

	itr := f.locals.Iterator()
	for !itr.Done() {
		id, value, _ := itr.Next()
		fmt.Fprintf(&buf, "%%%d = %s\n", id, value)
	}

	itr2 := f.allocations.Iterator()
	for !itr2.Done() {
		_, address := itr2.Next()
		fmt.Fprintf(&buf, "alloca %s\n", address)
	}
	return buf.String()
}

// JumpPoint is a saved frame that control may later return to. Points saved
// by setjmp use the jump buffer, points saved by stacksave do not.
type JumpPoint struct {
	Continuation  Expr
	UseJumpBuffer bool
	Caller        Caller
	Saved         SavedFrame
}

// SavedFrame is a frame and its depth in the stack, zero being the bottom.
type SavedFrame struct {
	Depth int
	Frame *Frame
}

// Stack is a persistent call stack with its jump points.
type Stack struct {
	frames *immutable.List[*Frame]
	jumps  *immutable.List[JumpPoint]
}

// NewStack returns an empty stack.
func NewStack() *Stack {
	return &Stack{
		frames: immutable.NewList[*Frame](),
		jumps:  immutable.NewList[JumpPoint](),
	}
}

// Depth returns the number of frames.
func (s *Stack) Depth() int { return s.frames.Len() }

// Frame returns the top frame or nil if the stack is empty.
func (s *Stack) Frame() *Frame {
	if s.frames.Len() == 0 {
		return nil
	}
	return s.frames.Get(s.frames.Len() - 1)
}

// Frames returns all frames, bottom first.
func (s *Stack) Frames() []*Frame {
	a := make([]*Frame, 0, s.frames.Len())
	itr := s.frames.Iterator()
	for !itr.Done() {
		_, f := itr.Next()
		a = append(a, f)
	}
	return a
}

func (s *Stack) push(f *Frame) *Stack {
	return &Stack{frames: s.frames.Append(f), jumps: s.jumps}
}

// pop removes the top frame. Jump points into the frame become unreachable
// and are dropped.
func (s *Stack) pop() (*Frame, *Stack) {
	n := s.frames.Len()
	assert(n > 0, "pop from empty stack")
	return s.frames.Get(n - 1), &Stack{
		frames: s.frames.Slice(0, n-1),
		jumps:  s.jumpsBelow(n - 1),
	}
}

func (s *Stack) withTop(f *Frame) *Stack {
	return &Stack{frames: s.frames.Set(s.frames.Len()-1, f), jumps: s.jumps}
}

// jumpsBelow returns the jump points saved in frames below depth.
func (s *Stack) jumpsBelow(depth int) *immutable.List[JumpPoint] {
	jumps := s.jumps
	for jumps.Len() > 0 && jumps.Get(jumps.Len()-1).Saved.Depth >= depth {
		jumps = jumps.Slice(0, jumps.Len()-1)
	}
	return jumps
}

// SetJump saves the top frame under continuation.
func (s *Stack) SetJump(continuation Expr, useJumpBuffer bool, caller Caller) *Stack {
	jp := JumpPoint{
		Continuation:  continuation,
		UseJumpBuffer: useJumpBuffer,
		Caller:        caller,
		Saved:         SavedFrame{Depth: s.frames.Len() - 1, Frame: s.Frame()},
	}
	return &Stack{frames: s.frames, jumps: s.jumps.Append(jp)}
}

// Restore unwinds to the newest jump point whose flag matches and whose
// continuation must equal continuation. Frames above the point are dropped.
// With the jump buffer the saved frame replaces the current one, otherwise
// the current frame continues. Stack allocations made since the point was
// saved are returned for release. The bool is false if no point matches.
func (s *Stack) Restore(space Space, continuation Expr, useJumpBuffer bool) (JumpPoint, *Stack, []Expr, bool, error) {
	for i := s.jumps.Len() - 1; i >= 0; i-- {
		jp := s.jumps.Get(i)
		if jp.UseJumpBuffer != useJumpBuffer {
			continue
		}

		p, err := space.Evaluate(NewBinaryExpr(EQ, jp.Continuation, continuation))
		if err != nil {
			return JumpPoint{}, nil, nil, false, err
		} else if p.CanBeFalse {
			continue
		}

		depth := jp.Saved.Depth
		assert(depth < s.frames.Len(), "jump point above stack: depth=%d", depth)

		// Release everything allocated by the discarded frames.
		var released []Expr
		for j := s.frames.Len() - 1; j > depth; j-- {
			released = appendList(released, s.frames.Get(j).allocations, 0)
		}

		current := s.frames.Get(depth)
		n := current.allocations.Len()
		if m := jp.Saved.Frame.allocations.Len(); m < n {
			n = m
		}
		released = appendList(released, current.allocations, n)

		var restored *Frame
		if useJumpBuffer {
			restored = jp.Saved.Frame.clone()
		} else {
			restored = current.clone()
		}
		restored.allocations = current.allocations.Slice(0, n)

		return jp, &Stack{
			frames: s.frames.Slice(0, depth).Append(restored),
			jumps:  s.jumps.Slice(0, i+1),
		}, released, true, nil
	}
	return JumpPoint{}, s, nil, false, nil
}

// appendList appends the elements of l from index start onwards to a.
func appendList(a []Expr, l *immutable.List[Expr], start int) []Expr {
	for i := start; i < l.Len(); i++ {
		a = append(a, l.Get(i))
	}
	return a
}

// StackProxy binds a stack snapshot to a single path.
type StackProxy struct {
	state *ExecutionState
	stack *Stack
}

// Stack returns the current snapshot.
func (p *StackProxy) Stack() *Stack { return p.stack }

func (p *StackProxy) clone(state *ExecutionState) *StackProxy {
	return &StackProxy{state: state, stack: p.stack}
}

func (p *StackProxy) top() (*Frame, error) {
	f := p.stack.Frame()
	if f == nil {
		return nil, ErrStackEmpty
	}
	return f, nil
}

// Call pushes a frame for fn and enters its first block.
func (p *StackProxy) Call(fn *DefinedFunction, caller Caller, args []Expr) error {
	f := newFrame(fn, caller, args)
	p.stack = p.stack.push(f)
	p.state.cover(fn, f.block)
	return nil
}

// Return pops the top frame, releases its stack allocations and binds value
// in the caller. Returning from the last frame exits the path with value.
func (p *StackProxy) Return(value Expr) error {
	if _, err := p.top(); err != nil {
		return err
	}

	f, stack := p.stack.pop()
	p.stack = stack
	if err := p.release(appendList(nil, f.allocations, 0)); err != nil {
		return err
	}

	if stack.Depth() == 0 {
		p.state.exit(value)
		return nil
	}
	if value != nil && f.caller.Width > 0 {
		p.SetVariable(f.caller.ID, NewCastExpr(value, f.caller.Width, false))
	}
	return nil
}

func (p *StackProxy) release(addresses []Expr) error {
	for _, address := range addresses {
		if err := p.state.memory.Free(SectionStack, address); err != nil {
			return err
		}
	}
	return nil
}

// TransferBasicBlock moves the top frame to block id. Leading phis of the
// block are resolved together against the block control is leaving.
func (p *StackProxy) TransferBasicBlock(id BasicBlockID) error {
	f, err := p.top()
	if err != nil {
		return err
	}
	block, err := f.function.Block(id)
	if err != nil {
		return err
	}

	locals := f.locals
	pc := 0
	for ; pc < len(block.Instructions); pc++ {
		phi, ok := block.Instructions[pc].(*PhiInstr)
		if !ok {
			break
		}
		op, ok := phi.value(f.block.ID)
		if !ok {
			return fmt.Errorf("glee: phi %%%d has no edge from b%d", phi.ID, f.block.ID)
		}
		value, err := p.state.Evaluate(op)
		if err != nil {
			return err
		}
		locals = locals.Set(phi.ID, value)
	}

	next := f.clone()
	next.predecessor, next.block, next.pc, next.locals = f.block, block, pc, locals
	p.stack = p.stack.withTop(next)
	p.state.cover(f.function, block)
	return nil
}

// ExecuteNextInstruction advances the top frame and executes the
// instruction it was positioned at.
func (p *StackProxy) ExecuteNextInstruction() error {
	f, err := p.top()
	if err != nil {
		return err
	} else if f.pc >= len(f.block.Instructions) {
		return fmt.Errorf("glee: no terminator in %s b%d", f.function.Name, f.block.ID)
	}

	instr := f.block.Instructions[f.pc]
	next := f.clone()
	next.pc++
	p.stack = p.stack.withTop(next)
	return executeInstruction(p.state, instr)
}

// SetVariable binds value to id in the top frame.
func (p *StackProxy) SetVariable(id InstructionID, value Expr) {
	f := p.stack.Frame()
	assert(f != nil, "set variable on empty stack")
	next := f.clone()
	next.locals = f.locals.Set(id, value)
	p.stack = p.stack.withTop(next)
}

// Variable returns the value bound to id in the top frame.
func (p *StackProxy) Variable(id InstructionID) (Expr, error) {
	f, err := p.top()
	if err != nil {
		return nil, err
	}
	value, ok := f.locals.Get(id)
	if !ok {
		return nil, fmt.Errorf("glee: variable not bound: %s %%%d", f.function.Name, id)
	}
	return value, nil
}

// AddAllocation records a stack allocation owned by the top frame.
func (p *StackProxy) AddAllocation(address Expr) error {
	f, err := p.top()
	if err != nil {
		return err
	}
	next := f.clone()
	next.allocations = f.allocations.Append(address)
	p.stack = p.stack.withTop(next)
	return nil
}

// SetJump saves the top frame under continuation.
func (p *StackProxy) SetJump(continuation Expr, useJumpBuffer bool, caller Caller) error {
	if _, err := p.top(); err != nil {
		return err
	}
	p.stack = p.stack.SetJump(continuation, useJumpBuffer, caller)
	return nil
}

// Restore unwinds to the jump point saved under continuation. The bool is
// false if no point matches.
func (p *StackProxy) Restore(continuation Expr, useJumpBuffer bool) (JumpPoint, bool, error) {
	jp, stack, released, ok, err := p.stack.Restore(p.state.space, continuation, useJumpBuffer)
	if err != nil || !ok {
		return JumpPoint{}, false, err
	}
	p.stack = stack
	if err := p.release(released); err != nil {
		return JumpPoint{}, false, err
	}
	return jp, true, nil
}
