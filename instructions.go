package glee

import (
	"fmt"
	"strings"
)

// Instruction is a single step of a basic block.
type Instruction interface {
	InstructionID() InstructionID
	String() string
	instruction()
}

func (*BinaryInstr) instruction()      {}
func (*DivideInstr) instruction()      {}
func (*ShiftInstr) instruction()       {}
func (*CastInstr) instruction()        {}
func (*SelectInstr) instruction()      {}
func (*AllocInstr) instruction()       {}
func (*LoadInstr) instruction()        {}
func (*StoreInstr) instruction()       {}
func (*BranchInstr) instruction()      {}
func (*PhiInstr) instruction()         {}
func (*CallInstr) instruction()        {}
func (*ReturnInstr) instruction()      {}
func (*UnreachableInstr) instruction() {}

// BinaryInstr applies an operation that cannot fault, including comparisons.
type BinaryInstr struct {
	ID       InstructionID
	Op       BinaryOp
	LHS, RHS Operand
}

func (instr *BinaryInstr) InstructionID() InstructionID { return instr.ID }

func (instr *BinaryInstr) String() string {
	return fmt.Sprintf("%%%d = %s %s, %s", instr.ID, strings.ToLower(instr.Op.String()), instr.LHS, instr.RHS)
}

// DivideInstr is a division or remainder. A zero divisor is fatal.
type DivideInstr struct {
	ID       InstructionID
	Op       BinaryOp // UDIV, SDIV, UREM or SREM
	LHS, RHS Operand
}

func (instr *DivideInstr) InstructionID() InstructionID { return instr.ID }

func (instr *DivideInstr) String() string {
	return fmt.Sprintf("%%%d = %s %s, %s", instr.ID, strings.ToLower(instr.Op.String()), instr.LHS, instr.RHS)
}

// ShiftInstr is a shift whose result is undefined when the amount is at
// least the operand width. Such a shift is fatal.
type ShiftInstr struct {
	ID       InstructionID
	Op       BinaryOp // SHL, LSHR or ASHR
	LHS, RHS Operand
}

func (instr *ShiftInstr) InstructionID() InstructionID { return instr.ID }

func (instr *ShiftInstr) String() string {
	return fmt.Sprintf("%%%d = %s %s, %s", instr.ID, strings.ToLower(instr.Op.String()), instr.LHS, instr.RHS)
}

// CastInstr extends or truncates a value to a new width.
type CastInstr struct {
	ID     InstructionID
	Value  Operand
	Width  uint
	Signed bool
}

func (instr *CastInstr) InstructionID() InstructionID { return instr.ID }

func (instr *CastInstr) String() string {
	op := "zext"
	if instr.Signed {
		op = "sext"
	}
	return fmt.Sprintf("%%%d = %s %s to i%d", instr.ID, op, instr.Value, instr.Width)
}

// SelectInstr chooses between two values without branching.
type SelectInstr struct {
	ID          InstructionID
	Cond        Operand
	True, False Operand
}

func (instr *SelectInstr) InstructionID() InstructionID { return instr.ID }

func (instr *SelectInstr) String() string {
	return fmt.Sprintf("%%%d = select %s, %s, %s", instr.ID, instr.Cond, instr.True, instr.False)
}

// AllocInstr allocates Size bits and binds the address. Stack allocations
// are released when the frame returns.
type AllocInstr struct {
	ID      InstructionID
	Section Section
	Size    uint
	Zero    bool
}

func (instr *AllocInstr) InstructionID() InstructionID { return instr.ID }

func (instr *AllocInstr) String() string {
	s := fmt.Sprintf("%%%d = alloc %s %d", instr.ID, instr.Section, instr.Size)
	if instr.Zero {
		s += " zero"
	}
	return s
}

// LoadInstr reads Width bits from memory.
type LoadInstr struct {
	ID    InstructionID
	Addr  Operand
	Width uint
}

func (instr *LoadInstr) InstructionID() InstructionID { return instr.ID }

func (instr *LoadInstr) String() string {
	return fmt.Sprintf("%%%d = load i%d %s", instr.ID, instr.Width, instr.Addr)
}

// StoreInstr writes a value to memory.
type StoreInstr struct {
	ID    InstructionID
	Addr  Operand
	Value Operand
}

func (instr *StoreInstr) InstructionID() InstructionID { return instr.ID }

func (instr *StoreInstr) String() string {
	return fmt.Sprintf("store %s, %s", instr.Value, instr.Addr)
}

// BranchInstr transfers control. A nil Cond always jumps to True.
type BranchInstr struct {
	ID          InstructionID
	Cond        Operand
	True, False BasicBlockID
}

func (instr *BranchInstr) InstructionID() InstructionID { return instr.ID }

func (instr *BranchInstr) String() string {
	if instr.Cond == nil {
		return fmt.Sprintf("br b%d", instr.True)
	}
	return fmt.Sprintf("br %s, b%d, b%d", instr.Cond, instr.True, instr.False)
}

// PhiInstr selects a value by the block control arrived from. Phis must lead
// their block and are resolved on entry to it.
type PhiInstr struct {
	ID    InstructionID
	Edges []PhiEdge
}

// PhiEdge is an incoming value of a phi.
type PhiEdge struct {
	Block BasicBlockID
	Value Operand
}

func (instr *PhiInstr) InstructionID() InstructionID { return instr.ID }

func (instr *PhiInstr) String() string {
	edges := make([]string, len(instr.Edges))
	for i, e := range instr.Edges {
		edges[i] = fmt.Sprintf("b%d: %s", e.Block, e.Value)
	}
	return fmt.Sprintf("%%%d = phi [%s]", instr.ID, strings.Join(edges, ", "))
}

// value returns the incoming operand for the predecessor block.
func (instr *PhiInstr) value(pred BasicBlockID) (Operand, bool) {
	for _, e := range instr.Edges {
		if e.Block == pred {
			return e.Value, true
		}
	}
	return nil, false
}

// CallInstr calls a function. A zero Width discards the result.
type CallInstr struct {
	ID     InstructionID
	Callee FunctionID
	Args   []Operand
	Width  uint
}

func (instr *CallInstr) InstructionID() InstructionID { return instr.ID }

func (instr *CallInstr) String() string {
	args := make([]string, len(instr.Args))
	for i, arg := range instr.Args {
		args[i] = arg.String()
	}
	call := fmt.Sprintf("call #%d(%s)", instr.Callee, strings.Join(args, ", "))
	if instr.Width == 0 {
		return call
	}
	return fmt.Sprintf("%%%d = %s i%d", instr.ID, call, instr.Width)
}

// ReturnInstr returns from the current function. Value is nil for void.
type ReturnInstr struct {
	ID    InstructionID
	Value Operand
}

func (instr *ReturnInstr) InstructionID() InstructionID { return instr.ID }

func (instr *ReturnInstr) String() string {
	if instr.Value == nil {
		return "ret"
	}
	return fmt.Sprintf("ret %s", instr.Value)
}

// UnreachableInstr marks code that must never execute.
type UnreachableInstr struct {
	ID InstructionID
}

func (instr *UnreachableInstr) InstructionID() InstructionID { return instr.ID }

func (instr *UnreachableInstr) String() string { return "unreachable" }

func executeInstruction(state *ExecutionState, instr Instruction) error {
	switch instr := instr.(type) {
	case *BinaryInstr:
		return executeBinaryInstr(state, instr)
	case *DivideInstr:
		return executeDivideInstr(state, instr)
	case *ShiftInstr:
		return executeShiftInstr(state, instr)
	case *CastInstr:
		return executeCastInstr(state, instr)
	case *SelectInstr:
		return executeSelectInstr(state, instr)
	case *AllocInstr:
		return executeAllocInstr(state, instr)
	case *LoadInstr:
		return executeLoadInstr(state, instr)
	case *StoreInstr:
		return executeStoreInstr(state, instr)
	case *BranchInstr:
		return executeBranchInstr(state, instr)
	case *PhiInstr:
		return fmt.Errorf("glee: phi must lead its block: %%%d", instr.ID)
	case *CallInstr:
		return executeCallInstr(state, instr)
	case *ReturnInstr:
		return executeReturnInstr(state, instr)
	case *UnreachableInstr:
		return NewStateError(state.space, "unreachable instruction executed")
	default:
		return fmt.Errorf("glee: illegal instruction: %T", instr)
	}
}

func executeBinaryInstr(state *ExecutionState, instr *BinaryInstr) error {
	x, y, err := state.evaluatePair(instr.LHS, instr.RHS)
	if err != nil {
		return err
	}
	state.stack.SetVariable(instr.ID, NewBinaryExpr(instr.Op, x, y))
	return nil
}

func executeDivideInstr(state *ExecutionState, instr *DivideInstr) error {
	x, y, err := state.evaluatePair(instr.LHS, instr.RHS)
	if err != nil {
		return err
	}

	return state.Fork(NewIsZeroExpr(y),
		func(state *ExecutionState) error {
			return NewStateError(state.space, "division by zero")
		},
		func(state *ExecutionState) error {
			state.stack.SetVariable(instr.ID, NewBinaryExpr(instr.Op, x, y))
			return nil
		},
	)
}

func executeShiftInstr(state *ExecutionState, instr *ShiftInstr) error {
	x, y, err := state.evaluatePair(instr.LHS, instr.RHS)
	if err != nil {
		return err
	}

	width := ExprWidth(x)
	p, err := state.space.Evaluate(NewBinaryExpr(UGE, y, NewConstantExpr(uint64(width), ExprWidth(y))))
	if err != nil {
		return err
	} else if p.CanBeTrue {
		return NewStateError(p.TrueSpace, "shift could be undefined")
	}
	state.stack.SetVariable(instr.ID, NewBinaryExpr(instr.Op, x, y))
	return nil
}

func executeCastInstr(state *ExecutionState, instr *CastInstr) error {
	value, err := state.Evaluate(instr.Value)
	if err != nil {
		return err
	}
	state.stack.SetVariable(instr.ID, NewCastExpr(value, instr.Width, instr.Signed))
	return nil
}

func executeSelectInstr(state *ExecutionState, instr *SelectInstr) error {
	cond, err := state.evaluateCondition(instr.Cond)
	if err != nil {
		return err
	}
	t, f, err := state.evaluatePair(instr.True, instr.False)
	if err != nil {
		return err
	}
	state.stack.SetVariable(instr.ID, NewIteExpr(cond, t, f))
	return nil
}

func executeAllocInstr(state *ExecutionState, instr *AllocInstr) error {
	var address Expr
	if instr.Zero {
		address = state.memory.AllocateZeroed(instr.Section, instr.Size)
	} else {
		address = state.memory.Allocate(instr.Section, instr.Size)
	}

	if instr.Section == SectionStack {
		if err := state.stack.AddAllocation(address); err != nil {
			return err
		}
	}
	state.stack.SetVariable(instr.ID, address)
	return nil
}

func executeLoadInstr(state *ExecutionState, instr *LoadInstr) error {
	address, err := state.Evaluate(instr.Addr)
	if err != nil {
		return err
	}
	value, err := state.memory.Read(address, instr.Width)
	if err != nil {
		return err
	}
	state.stack.SetVariable(instr.ID, value)
	return nil
}

func executeStoreInstr(state *ExecutionState, instr *StoreInstr) error {
	address, value, err := state.evaluatePair(instr.Addr, instr.Value)
	if err != nil {
		return err
	}
	return state.memory.Write(address, value)
}

func executeBranchInstr(state *ExecutionState, instr *BranchInstr) error {
	if instr.Cond == nil {
		return state.stack.TransferBasicBlock(instr.True)
	}

	cond, err := state.evaluateCondition(instr.Cond)
	if err != nil {
		return err
	}
	return state.Fork(cond,
		func(state *ExecutionState) error { return state.stack.TransferBasicBlock(instr.True) },
		func(state *ExecutionState) error { return state.stack.TransferBasicBlock(instr.False) },
	)
}

func executeCallInstr(state *ExecutionState, instr *CallInstr) error {
	fn, err := state.GetFunction(instr.Callee)
	if err != nil {
		return err
	}

	args := make([]Expr, len(instr.Args))
	for i, arg := range instr.Args {
		if args[i], err = state.Evaluate(arg); err != nil {
			return err
		}
	}
	return fn.Call(state, Caller{ID: instr.ID, Width: instr.Width}, args)
}

func executeReturnInstr(state *ExecutionState, instr *ReturnInstr) error {
	var value Expr
	if instr.Value != nil {
		var err error
		if value, err = state.Evaluate(instr.Value); err != nil {
			return err
		}
	}
	return state.stack.Return(value)
}
