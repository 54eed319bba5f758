package glee

import (
	"bytes"
	"fmt"
)

// Action continues a path on the state it is given.
type Action func(state *ExecutionState) error

// ExecutionState represents a path under exploration.
type ExecutionState struct {
	id     int
	parent int

	// Executor this is executed within.
	executor *Executor
	module   *Module

	// Path condition and the machine state bound to it.
	space   Space
	memory  *MemoryProxy
	stack   *StackProxy
	system  *SystemProxy
	globals *Globals

	// Shows whether state is running, forked, or terminated.
	status    ExecutionStatus
	reason    string
	err       *StateError
	exitValue Expr

	// Number of symbols created on the path.
	symbolN int
}

func newExecutionState(executor *Executor, space Space, memory *Memory, stack *Stack, system *SystemProxy, globals *Globals) *ExecutionState {
	s := &ExecutionState{
		id:       executor.nextStateID(),
		executor: executor,
		module:   executor.module,
		space:    space,
		memory:   NewMemoryProxy(space, memory),
		system:   system,
		globals:  globals,
		status:   ExecutionStatusRunning,
	}
	s.stack = &StackProxy{state: s, stack: stack}
	return s
}

// ID returns an autoincrementing ID assigned by the executor.
func (s *ExecutionState) ID() int { return s.id }

// Parent returns the ID of the state this state was forked from, or zero.
func (s *ExecutionState) Parent() int { return s.parent }

// Executor returns the parent executor of this state.
func (s *ExecutionState) Executor() *Executor { return s.executor }

// Space returns the path condition.
func (s *ExecutionState) Space() Space { return s.space }

// Memory returns the memory proxy of the path.
func (s *ExecutionState) Memory() *MemoryProxy { return s.memory }

// Stack returns the stack proxy of the path.
func (s *ExecutionState) Stack() *StackProxy { return s.stack }

// System returns the system proxy of the path.
func (s *ExecutionState) System() *SystemProxy { return s.system }

// Globals returns the global address table of the path.
func (s *ExecutionState) Globals() *Globals { return s.globals }

// Status returns the current status of the state.
// See Reason() for additional information if status is not running.
func (s *ExecutionState) Status() ExecutionStatus { return s.status }

// Reason returns additional information about the status of the state.
func (s *ExecutionState) Reason() string { return s.reason }

// Err returns the fatal error that terminated the path, if any.
func (s *ExecutionState) Err() *StateError { return s.err }

// ExitValue returns the value the path exited with, if any.
func (s *ExecutionState) ExitValue() Expr { return s.exitValue }

// Terminated returns true if the state will execute no more instructions.
func (s *ExecutionState) Terminated() bool {
	return s.status != ExecutionStatusRunning
}

// TryExecuteNextInstruction executes a single instruction. Returns false
// without executing anything if the state is already complete.
func (s *ExecutionState) TryExecuteNextInstruction() (bool, error) {
	if s.Terminated() {
		return false, nil
	}
	s.executor.Metrics.instruction()
	return true, s.stack.ExecuteNextInstruction()
}

// Complete marks the state as terminal. Calling it again has no effect.
func (s *ExecutionState) Complete() {
	s.terminate(ExecutionStatusExited, "")
}

func (s *ExecutionState) terminate(status ExecutionStatus, reason string) {
	if s.status != ExecutionStatusRunning {
		return
	}
	s.status, s.reason = status, reason
}

func (s *ExecutionState) exit(value Expr) {
	if s.Terminated() {
		return
	}
	s.exitValue = value
	s.terminate(ExecutionStatusExited, "")
}

func (s *ExecutionState) fail(err *StateError) {
	if s.Terminated() {
		return
	}
	s.err = err
	s.terminate(ExecutionStatusFailed, err.Message)
}

func (s *ExecutionState) prune(reason string) {
	s.terminate(ExecutionStatusPruned, reason)
}

// narrow replaces the path condition with a stronger one.
func (s *ExecutionState) narrow(space Space) {
	s.space = space
	s.memory = s.memory.Clone(space)
}

// Fork splits the path on cond. If cond is determined the matching action
// runs on this state. Otherwise a program is added for each branch, false
// first, and this state is marked forked.
func (s *ExecutionState) Fork(cond Expr, trueAction, falseAction Action) error {
	p, err := s.space.Evaluate(cond)
	if err != nil {
		return err
	} else if !p.CanBeFalse {
		return trueAction(s)
	} else if !p.CanBeTrue {
		return falseAction(s)
	}

	s.executor.pool.Add(s.program(p.FalseSpace, falseAction))
	s.executor.pool.Add(s.program(p.TrueSpace, trueAction))
	s.terminate(ExecutionStatusForked, "")

	s.executor.Metrics.fork()
	s.executor.Logger.Debug().Int("state", s.id).Str("cond", cond.String()).Msg("fork")
	return nil
}

// program returns a program that continues this path in space with action.
// The snapshots are taken now, not when the program runs.
func (s *ExecutionState) program(space Space, action Action) Program {
	executor, parent, symbolN := s.executor, s.id, s.symbolN
	memory, stack, system, globals := s.memory.Memory(), s.stack.Stack(), s.system.Clone(), s.globals

	return func() (*ExecutionState, error) {
		state := newExecutionState(executor, space, memory, stack, system, globals)
		state.parent, state.symbolN = parent, symbolN
		return state, action(state)
	}
}

// Evaluate returns the value of an operand in the current frame.
func (s *ExecutionState) Evaluate(op Operand) (Expr, error) {
	switch op := op.(type) {
	case *ConstantExpr:
		return op, nil
	case Local:
		return s.stack.Variable(InstructionID(op))
	case GlobalRef:
		return s.GetGlobalAddress(GlobalID(op))
	case nil:
		return nil, fmt.Errorf("glee: missing operand")
	default:
		return nil, fmt.Errorf("glee: unexpected operand: %T", op)
	}
}

func (s *ExecutionState) evaluatePair(x, y Operand) (Expr, Expr, error) {
	a, err := s.Evaluate(x)
	if err != nil {
		return nil, nil, err
	}
	b, err := s.Evaluate(y)
	if err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

// evaluateCondition returns an operand as a boolean. Wider values are true
// when non-zero.
func (s *ExecutionState) evaluateCondition(op Operand) (Expr, error) {
	cond, err := s.Evaluate(op)
	if err != nil {
		return nil, err
	}
	if w := ExprWidth(cond); w != WidthBool {
		return NewBinaryExpr(NE, cond, NewConstantExpr(0, w)), nil
	}
	return cond, nil
}

// GetGlobalAddress returns the address of a global. On first use on this
// path the global is allocated and initialized. The address is recorded
// before the initializer runs so self references resolve.
func (s *ExecutionState) GetGlobalAddress(id GlobalID) (Expr, error) {
	if address, ok := s.globals.Address(id); ok {
		return address, nil
	}

	g, err := s.module.Global(id)
	if err != nil {
		return nil, err
	}

	var address Expr
	if g.Init == nil {
		address = s.memory.AllocateZeroed(SectionGlobal, g.Size)
	} else {
		address = s.memory.Allocate(SectionGlobal, g.Size)
	}
	s.globals = s.globals.set(id, address)

	if g.Init != nil {
		value, err := s.Evaluate(g.Init)
		if err != nil {
			return nil, err
		} else if err := s.memory.Write(address, value); err != nil {
			return nil, err
		}
	}
	return address, nil
}

// GetFunction returns a function of the module.
func (s *ExecutionState) GetFunction(id FunctionID) (Function, error) {
	return s.module.Function(id)
}

// bind sets the result of a call. Nothing is bound for a zero width caller.
func (s *ExecutionState) bind(caller Caller, value Expr) {
	if caller.Width == 0 {
		return
	}
	s.stack.SetVariable(caller.ID, NewCastExpr(value, caller.Width, false))
}

func (s *ExecutionState) cover(fn *DefinedFunction, block *BasicBlock) {
	s.executor.coverage.Mark(fn.ID, block.ID)
}

// nextSymbol returns a sequence number for naming a new symbol.
func (s *ExecutionState) nextSymbol() int {
	s.symbolN++
	return s.symbolN
}

// nextContinuation returns a pointer sized value distinct from every other
// continuation of the run.
func (s *ExecutionState) nextContinuation() Expr {
	return s.space.CreateConstant(s.space.PointerWidth(), s.executor.continuationSeq.Add(1))
}

// Dump returns the contents of the state and frames as a string.
func (s *ExecutionState) Dump() string {
	var buf bytes.Buffer

	fmt.Fprintln(&buf, "EXECUTION STATE")
	fmt.Fprintln(&buf, "===============")
	fmt.Fprintf(&buf, "id=%d parent=%d\n", s.id, s.parent)
	fmt.Fprintf(&buf, "status=%s\n", s.status)
	fmt.Fprintf(&buf, "reason=%s\n", s.reason)
	fmt.Fprintln(&buf, "")

	frames := s.stack.Stack().Frames()
	for i := len(frames) - 1; i >= 0; i-- {
		fmt.Fprintf(&buf, "== FRAME #%d\n", i)
		fmt.Fprintln(&buf, frames[i].Dump())
	}

	fmt.Fprintln(&buf, "== MEMORY")
	for _, b := range s.memory.Memory().Blocks() {
		fmt.Fprintf(&buf, "%s %s size=%d %s\n", b.Section, b.Address, b.Size, b.Data)
		for upd := b.Data.Updates; upd != nil; upd = upd.Next {
			fmt.Fprintf(&buf, "  + UPD: I=%s; V=%s\n", upd.Index.String(), upd.Value.String())
		}
	}
	fmt.Fprintln(&buf, "")

	if space, ok := s.space.(*ConstraintSpace); ok {
		fmt.Fprintln(&buf, "== CONSTRAINTS")
		for i, expr := range space.Constraints() {
			fmt.Fprintf(&buf, "%d. %s\n", i, expr.String())
		}
	}
	return buf.String()
}

// ExecutionStatus represents the current status of the execution state.
// The state will also include a reason if the status is failed or pruned.
type ExecutionStatus string

const (
	ExecutionStatusRunning = ExecutionStatus("running") // has future instructions
	ExecutionStatusForked  = ExecutionStatus("forked")  // continued by two programs
	ExecutionStatusExited  = ExecutionStatus("exited")  // clean completion
	ExecutionStatusFailed  = ExecutionStatus("failed")  // fatal state error
	ExecutionStatusPruned  = ExecutionStatus("pruned")  // assumption cannot hold
)

// PathInfeasible is the reason reported for a path whose constraints have no
// solution.
const PathInfeasible = "path constraints cannot hold"
