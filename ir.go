package glee

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"
)

// FunctionID uniquely identifies a function within a module.
type FunctionID int

// GlobalID uniquely identifies a global variable within a module.
type GlobalID int

// BasicBlockID uniquely identifies a basic block within a function.
type BasicBlockID int

// InstructionID identifies the value produced by an instruction or a
// function parameter within a function.
type InstructionID int

// Operand is an instruction input.
type Operand interface {
	operand()
	String() string
}

func (*ConstantExpr) operand() {}
func (Local) operand()         {}
func (GlobalRef) operand()     {}

// Local refers to the value of an instruction or parameter in the current frame.
type Local InstructionID

// String returns the string representation of the operand.
func (v Local) String() string { return fmt.Sprintf("%%%d", int(v)) }

// GlobalRef refers to the address of a global variable.
type GlobalRef GlobalID

// String returns the string representation of the operand.
func (v GlobalRef) String() string { return fmt.Sprintf("@%d", int(v)) }

// Module is a complete program: its functions, globals and entry point.
type Module struct {
	Entry FunctionID

	functions map[FunctionID]Function
	globals   map[GlobalID]*Global
}

// NewModule returns an empty module that starts at entry.
func NewModule(entry FunctionID) *Module {
	return &Module{
		Entry:     entry,
		functions: make(map[FunctionID]Function),
		globals:   make(map[GlobalID]*Global),
	}
}

// AddFunction adds fn to the module.
func (m *Module) AddFunction(fn Function) error {
	if _, ok := m.functions[fn.FunctionID()]; ok {
		return fmt.Errorf("glee: duplicate function id: %d", fn.FunctionID())
	}
	if fn, ok := fn.(*DefinedFunction); ok {
		if err := fn.index(); err != nil {
			return err
		}
	}
	m.functions[fn.FunctionID()] = fn
	return nil
}

// AddGlobal adds g to the module.
func (m *Module) AddGlobal(g *Global) error {
	if _, ok := m.globals[g.ID]; ok {
		return fmt.Errorf("glee: duplicate global id: %d", g.ID)
	}
	m.globals[g.ID] = g
	return nil
}

// Function returns the function with the given id.
func (m *Module) Function(id FunctionID) (Function, error) {
	fn, ok := m.functions[id]
	if !ok {
		return nil, fmt.Errorf("glee: function not found: id=%d", id)
	}
	return fn, nil
}

// Global returns the global with the given id.
func (m *Module) Global(id GlobalID) (*Global, error) {
	g, ok := m.globals[id]
	if !ok {
		return nil, fmt.Errorf("glee: global not found: id=%d", id)
	}
	return g, nil
}

// Functions returns all functions sorted by id.
func (m *Module) Functions() []Function {
	a := make([]Function, 0, len(m.functions))
	for _, fn := range m.functions {
		a = append(a, fn)
	}
	sort.Slice(a, func(i, j int) bool { return a[i].FunctionID() < a[j].FunctionID() })
	return a
}

// Globals returns all globals sorted by id.
func (m *Module) Globals() []*Global {
	a := make([]*Global, 0, len(m.globals))
	for _, g := range m.globals {
		a = append(a, g)
	}
	sort.Slice(a, func(i, j int) bool { return a[i].ID < a[j].ID })
	return a
}

// WriteTo writes a textual listing of the module to w.
func (m *Module) WriteTo(w io.Writer) (int64, error) {
	cw := &countWriter{w: w}
	bw := bufio.NewWriter(cw)

	fmt.Fprintf(bw, "entry #%d\n", m.Entry)
	for _, g := range m.Globals() {
		fmt.Fprintf(bw, "global @%d %s size=%d", g.ID, g.Name, g.Size)
		if g.Init != nil {
			fmt.Fprintf(bw, " init=%s", g.Init)
		}
		fmt.Fprintln(bw)
	}

	for _, fn := range m.Functions() {
		fmt.Fprintln(bw)
		switch fn := fn.(type) {
		case *Intrinsic:
			fmt.Fprintf(bw, "declare #%d %s (%s)\n", fn.ID, fn.Name, fn.Kind)
		case *DefinedFunction:
			params := make([]string, len(fn.Params))
			for i, p := range fn.Params {
				params[i] = fmt.Sprintf("%%%d:i%d", p.ID, p.Width)
			}
			fmt.Fprintf(bw, "define #%d %s(%s) {\n", fn.ID, fn.Name, strings.Join(params, ", "))
			for _, b := range fn.Blocks {
				fmt.Fprintf(bw, "b%d:\n", b.ID)
				for _, instr := range b.Instructions {
					fmt.Fprintf(bw, "\t%s\n", instr)
				}
			}
			fmt.Fprintln(bw, "}")
		}
	}

	if err := bw.Flush(); err != nil {
		return cw.n, err
	}
	return cw.n, nil
}

type countWriter struct {
	w io.Writer
	n int64
}

func (w *countWriter) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	w.n += int64(n)
	return n, err
}

// Global is a module-level variable. Its storage is allocated on first use.
type Global struct {
	ID   GlobalID
	Name string
	Size uint    // in bits
	Init Operand // initial value, zero if nil
}

// Caller describes where the result of a call is bound. A zero width means
// the result is discarded.
type Caller struct {
	ID    InstructionID
	Width uint
}

// Function is a callable unit of a module.
type Function interface {
	FunctionID() FunctionID
	FunctionName() string

	// Call invokes the function on the state. Results are bound through caller.
	Call(state *ExecutionState, caller Caller, args []Expr) error

	function()
}

func (*DefinedFunction) function() {}
func (*Intrinsic) function()       {}

// Parameter is a named function input.
type Parameter struct {
	ID    InstructionID
	Name  string
	Width uint
}

// DefinedFunction is a function with a body. Blocks[0] is the entry block.
type DefinedFunction struct {
	ID     FunctionID
	Name   string
	Params []Parameter
	Blocks []*BasicBlock

	blocks map[BasicBlockID]*BasicBlock
}

// FunctionID returns the function id.
func (fn *DefinedFunction) FunctionID() FunctionID { return fn.ID }

// FunctionName returns the function name.
func (fn *DefinedFunction) FunctionName() string { return fn.Name }

// Block returns the basic block with the given id.
func (fn *DefinedFunction) Block(id BasicBlockID) (*BasicBlock, error) {
	if b, ok := fn.blocks[id]; ok {
		return b, nil
	}
	return nil, fmt.Errorf("glee: basic block not found: %s b%d", fn.Name, id)
}

func (fn *DefinedFunction) index() error {
	if len(fn.Blocks) == 0 {
		return fmt.Errorf("glee: function has no blocks: %s", fn.Name)
	}
	fn.blocks = make(map[BasicBlockID]*BasicBlock, len(fn.Blocks))
	for _, b := range fn.Blocks {
		if _, ok := fn.blocks[b.ID]; ok {
			return fmt.Errorf("glee: duplicate basic block: %s b%d", fn.Name, b.ID)
		}
		fn.blocks[b.ID] = b
	}
	return nil
}

// Call pushes a new frame for fn with args bound to its parameters.
func (fn *DefinedFunction) Call(state *ExecutionState, caller Caller, args []Expr) error {
	if len(args) != len(fn.Params) {
		return fmt.Errorf("glee: %s: expected %d arguments, got %d", fn.Name, len(fn.Params), len(args))
	}
	return state.stack.Call(fn, caller, args)
}

// BasicBlock is a straight-line sequence of instructions ending in a terminator.
type BasicBlock struct {
	ID           BasicBlockID
	Instructions []Instruction
}
