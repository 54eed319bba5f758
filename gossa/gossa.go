// Package gossa lowers Go functions in SSA form into glee modules.
package gossa

import (
	"errors"
	"fmt"
	"go/constant"
	"go/token"
	"go/types"
	"runtime"

	"github.com/symforge/glee"
	"golang.org/x/tools/go/ssa"
)

// MarkerPackage is the import path of the package whose functions are
// replaced by intrinsics.
const MarkerPackage = "github.com/symforge/glee"

// ErrUnsupported is returned for Go constructs the translator cannot lower.
var ErrUnsupported = errors.New("gossa: unsupported")

// Big endian architectures known to the gc toolchain.
var bigEndian = map[string]bool{
	"mips":    true,
	"mips64":  true,
	"ppc64":   true,
	"s390x":   true,
	"sparc64": true,
}

// Target returns the memory model of arch. An empty arch means the host.
func Target(arch string) (glee.Target, error) {
	if arch == "" {
		arch = runtime.GOARCH
	}
	sizes := types.SizesFor("gc", arch)
	if sizes == nil {
		return glee.Target{}, fmt.Errorf("gossa: unknown architecture: %q", arch)
	}

	target := glee.Target{
		PointerWidth: uint(sizes.Sizeof(types.Typ[types.UnsafePointer])) * 8,
		LittleEndian: !bigEndian[arch],
		Alignment:    uint64(sizes.Alignof(types.Typ[types.UnsafePointer])),
		MaxAddress:   glee.DefaultMaxAddress,
	}
	if target.PointerWidth == glee.Width32 {
		target.MaxAddress = 0x7fffffff
	}
	return target, nil
}

// Translate lowers fn, everything it calls and the globals it touches into
// a module. The module entry initializes the package and then calls fn with
// its parameters as named symbols.
func Translate(fn *ssa.Function, arch string) (*glee.Module, error) {
	t, err := NewTranslator(arch)
	if err != nil {
		return nil, err
	}
	return t.Translate(fn)
}

// Translator converts SSA functions into IR.
type Translator struct {
	sizes  types.Sizes
	target glee.Target

	fns        map[*ssa.Function]glee.FunctionID
	globals    map[*ssa.Global]*glee.Global
	intrinsics map[string]*glee.Intrinsic
	defined    []*glee.DefinedFunction
	queue      []*ssa.Function
	nextFnID   glee.FunctionID
}

// NewTranslator returns a translator for arch.
func NewTranslator(arch string) (*Translator, error) {
	if arch == "" {
		arch = runtime.GOARCH
	}
	target, err := Target(arch)
	if err != nil {
		return nil, err
	}
	return &Translator{
		sizes:      types.SizesFor("gc", arch),
		target:     target,
		fns:        make(map[*ssa.Function]glee.FunctionID),
		globals:    make(map[*ssa.Global]*glee.Global),
		intrinsics: make(map[string]*glee.Intrinsic),
		nextFnID:   1,
	}, nil
}

// Target returns the memory model used for layout.
func (t *Translator) Target() glee.Target { return t.target }

// Translate builds a module with fn as the target of the entry.
func (t *Translator) Translate(fn *ssa.Function) (*glee.Module, error) {
	entry, err := t.entry(fn)
	if err != nil {
		return nil, err
	}

	// Callees are queued as they are referenced.
	for len(t.queue) > 0 {
		next := t.queue[0]
		t.queue = t.queue[1:]
		if err := t.translateFunction(next); err != nil {
			return nil, err
		}
	}

	m := glee.NewModule(entry.ID)
	if err := m.AddFunction(entry); err != nil {
		return nil, err
	}
	for _, fn := range t.defined {
		if err := m.AddFunction(fn); err != nil {
			return nil, err
		}
	}
	for _, fn := range t.intrinsics {
		if err := m.AddFunction(fn); err != nil {
			return nil, err
		}
	}
	for _, g := range t.globals {
		if err := m.AddGlobal(g); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// entry returns a function that runs the package initializer and then fn.
func (t *Translator) entry(fn *ssa.Function) (*glee.DefinedFunction, error) {
	if len(fn.Blocks) == 0 {
		return nil, fmt.Errorf("gossa: function has no body: %s", fn)
	}

	entry := &glee.DefinedFunction{ID: 0, Name: "entry"}
	var instrs []glee.Instruction
	var args []glee.Operand
	for i, p := range fn.Params {
		width, err := t.width(p.Type())
		if err != nil {
			return nil, fmt.Errorf("%s: parameter %s: %w", fn, p.Name(), err)
		}
		entry.Params = append(entry.Params, glee.Parameter{ID: glee.InstructionID(i), Name: p.Name(), Width: width})
		args = append(args, glee.Local(i))
	}
	id := glee.InstructionID(len(fn.Params))

	if fn.Pkg != nil {
		if initFn := fn.Pkg.Func("init"); initFn != nil && initFn != fn && len(initFn.Blocks) > 0 {
			instrs = append(instrs, &glee.CallInstr{ID: id, Callee: t.function(initFn)})
			id++
		}
	}

	width, err := t.resultWidth(fn.Signature)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}
	instrs = append(instrs, &glee.CallInstr{ID: id, Callee: t.function(fn), Args: args, Width: width})

	ret := &glee.ReturnInstr{ID: id + 1}
	if width > 0 {
		ret.Value = glee.Local(id)
	}
	instrs = append(instrs, ret)

	entry.Blocks = []*glee.BasicBlock{{ID: 0, Instructions: instrs}}
	return entry, nil
}

// function returns the id of fn, queueing it for translation on first use.
func (t *Translator) function(fn *ssa.Function) glee.FunctionID {
	if id, ok := t.fns[fn]; ok {
		return id
	}
	id := t.nextFnID
	t.nextFnID++
	t.fns[fn] = id
	t.queue = append(t.queue, fn)
	return id
}

// intrinsic returns the id of the intrinsic registered under name.
func (t *Translator) intrinsic(name string, kind glee.IntrinsicKind) glee.FunctionID {
	if fn, ok := t.intrinsics[name]; ok {
		return fn.ID
	}
	fn := &glee.Intrinsic{ID: t.nextFnID, Name: name, Kind: kind}
	t.nextFnID++
	t.intrinsics[name] = fn
	return fn.ID
}

func (t *Translator) global(g *ssa.Global) (glee.GlobalID, error) {
	if other, ok := t.globals[g]; ok {
		return other.ID, nil
	}
	elem := deref(g.Type())
	size := uint(t.sizes.Sizeof(elem)) * 8
	if size == 0 {
		size = glee.Width8
	}
	other := &glee.Global{ID: glee.GlobalID(len(t.globals)), Name: g.String(), Size: size}
	t.globals[g] = other
	return other.ID, nil
}

// width returns the width of a value of typ held in a register.
func (t *Translator) width(typ types.Type) (uint, error) {
	switch typ := typ.Underlying().(type) {
	case *types.Basic:
		info := typ.Info()
		switch {
		case info&types.IsBoolean != 0:
			return glee.WidthBool, nil
		case info&types.IsInteger != 0, typ.Kind() == types.UnsafePointer:
			return uint(t.sizes.Sizeof(typ)) * 8, nil
		}
	case *types.Pointer:
		return t.target.PointerWidth, nil
	}
	return 0, fmt.Errorf("%w: type %s", ErrUnsupported, typ)
}

// resultWidth returns the width of the single result of sig, or zero if it
// returns nothing.
func (t *Translator) resultWidth(sig *types.Signature) (uint, error) {
	switch sig.Results().Len() {
	case 0:
		return 0, nil
	case 1:
		return t.width(sig.Results().At(0).Type())
	default:
		return 0, fmt.Errorf("%w: multiple results", ErrUnsupported)
	}
}

func (t *Translator) translateFunction(fn *ssa.Function) error {
	ft := &funcTranslator{
		t:   t,
		fn:  fn,
		ids: make(map[ssa.Value]glee.InstructionID),
		out: &glee.DefinedFunction{ID: t.fns[fn], Name: fn.String()},
	}
	if err := ft.translate(); err != nil {
		return fmt.Errorf("%s: %w", fn, err)
	}
	t.defined = append(t.defined, ft.out)
	return nil
}

// funcTranslator lowers the body of a single function.
type funcTranslator struct {
	t   *Translator
	fn  *ssa.Function
	out *glee.DefinedFunction

	ids    map[ssa.Value]glee.InstructionID
	nextID glee.InstructionID
	instrs []glee.Instruction // current block
}

func (ft *funcTranslator) translate() error {
	for _, p := range ft.fn.Params {
		width, err := ft.t.width(p.Type())
		if err != nil {
			return fmt.Errorf("parameter %s: %w", p.Name(), err)
		}
		ft.out.Params = append(ft.out.Params, glee.Parameter{ID: ft.id(p), Name: p.Name(), Width: width})
	}

	for _, b := range ft.fn.Blocks {
		ft.instrs = nil
		for _, instr := range b.Instrs {
			if err := ft.instruction(instr); err != nil {
				return err
			}
		}
		ft.out.Blocks = append(ft.out.Blocks, &glee.BasicBlock{ID: glee.BasicBlockID(b.Index), Instructions: ft.instrs})
	}
	return nil
}

// id returns the local bound to v. Ids are assigned on first reference so
// phis may refer to values defined later.
func (ft *funcTranslator) id(v ssa.Value) glee.InstructionID {
	if id, ok := ft.ids[v]; ok {
		return id
	}
	id := ft.temp()
	ft.ids[v] = id
	return id
}

// temp returns an unused local.
func (ft *funcTranslator) temp() glee.InstructionID {
	id := ft.nextID
	ft.nextID++
	return id
}

func (ft *funcTranslator) emit(instr glee.Instruction) {
	ft.instrs = append(ft.instrs, instr)
}

func (ft *funcTranslator) operand(v ssa.Value) (glee.Operand, error) {
	switch v := v.(type) {
	case *ssa.Const:
		return ft.constant(v)
	case *ssa.Global:
		id, err := ft.t.global(v)
		if err != nil {
			return nil, err
		}
		return glee.GlobalRef(id), nil
	case *ssa.Parameter, ssa.Instruction:
		return glee.Local(ft.id(v)), nil
	default:
		return nil, fmt.Errorf("%w: value %s (%T)", ErrUnsupported, v.Name(), v)
	}
}

func (ft *funcTranslator) operands(values ...ssa.Value) ([]glee.Operand, error) {
	a := make([]glee.Operand, len(values))
	for i, v := range values {
		op, err := ft.operand(v)
		if err != nil {
			return nil, err
		}
		a[i] = op
	}
	return a, nil
}

func (ft *funcTranslator) constant(c *ssa.Const) (*glee.ConstantExpr, error) {
	width, err := ft.t.width(c.Type())
	if err != nil {
		return nil, err
	}
	switch {
	case c.Value == nil:
		return glee.NewConstantExpr(0, width), nil
	case c.Value.Kind() == constant.Bool:
		return glee.NewBoolConstantExpr(constant.BoolVal(c.Value)), nil
	case c.Value.Kind() == constant.Int:
		if isSigned(c.Type()) {
			return glee.NewConstantExpr(uint64(c.Int64()), width), nil
		}
		return glee.NewConstantExpr(c.Uint64(), width), nil
	default:
		return nil, fmt.Errorf("%w: constant %s", ErrUnsupported, c)
	}
}

func (ft *funcTranslator) instruction(instr ssa.Instruction) error {
	switch instr := instr.(type) {
	case *ssa.Alloc:
		return ft.alloc(instr)
	case *ssa.BinOp:
		return ft.binOp(instr)
	case *ssa.Call:
		return ft.call(instr)
	case *ssa.ChangeType:
		return ft.convert(instr, instr.X)
	case *ssa.Convert:
		return ft.convert(instr, instr.X)
	case *ssa.DebugRef:
		return nil
	case *ssa.FieldAddr:
		return ft.fieldAddr(instr)
	case *ssa.If:
		return ft.branch(instr)
	case *ssa.IndexAddr:
		return ft.indexAddr(instr)
	case *ssa.Jump:
		ft.emit(&glee.BranchInstr{ID: ft.temp(), True: glee.BasicBlockID(instr.Block().Succs[0].Index)})
		return nil
	case *ssa.MakeInterface:
		return ft.makeInterface(instr)
	case *ssa.Panic:
		ft.emit(&glee.CallInstr{ID: ft.temp(), Callee: ft.t.intrinsic("panic", glee.IntrinsicAbort)})
		ft.emit(&glee.UnreachableInstr{ID: ft.temp()})
		return nil
	case *ssa.Phi:
		return ft.phi(instr)
	case *ssa.Return:
		return ft.ret(instr)
	case *ssa.Store:
		return ft.store(instr)
	case *ssa.UnOp:
		return ft.unOp(instr)
	default:
		return fmt.Errorf("%w: instruction %s (%T)", ErrUnsupported, instr, instr)
	}
}

func (ft *funcTranslator) alloc(instr *ssa.Alloc) error {
	size := uint(ft.t.sizes.Sizeof(deref(instr.Type()))) * 8
	if size == 0 {
		size = glee.Width8
	}
	section := glee.SectionStack
	if instr.Heap {
		section = glee.SectionHeap
	}
	ft.emit(&glee.AllocInstr{ID: ft.id(instr), Section: section, Size: size, Zero: true})
	return nil
}

// binaryOps maps Go operators to IR operators as (unsigned, signed).
var binaryOps = map[token.Token][2]glee.BinaryOp{
	token.ADD: {glee.ADD, glee.ADD},
	token.SUB: {glee.SUB, glee.SUB},
	token.MUL: {glee.MUL, glee.MUL},
	token.AND: {glee.AND, glee.AND},
	token.OR:  {glee.OR, glee.OR},
	token.XOR: {glee.XOR, glee.XOR},
	token.EQL: {glee.EQ, glee.EQ},
	token.NEQ: {glee.NE, glee.NE},
	token.LSS: {glee.ULT, glee.SLT},
	token.LEQ: {glee.ULE, glee.SLE},
	token.GTR: {glee.UGT, glee.SGT},
	token.GEQ: {glee.UGE, glee.SGE},
	token.QUO: {glee.UDIV, glee.SDIV},
	token.REM: {glee.UREM, glee.SREM},
}

func (ft *funcTranslator) binOp(instr *ssa.BinOp) error {
	if _, err := ft.t.width(instr.X.Type()); err != nil {
		return err
	}
	x, err := ft.operand(instr.X)
	if err != nil {
		return err
	}
	y, err := ft.operand(instr.Y)
	if err != nil {
		return err
	}

	switch instr.Op {
	case token.SHL, token.SHR:
		return ft.shift(instr, x, y)
	case token.AND_NOT:
		width, _ := ft.t.width(instr.Y.Type())
		mask := ft.temp()
		ft.emit(&glee.BinaryInstr{ID: mask, Op: glee.XOR, LHS: y, RHS: glee.NewConstantExpr(^uint64(0), width)})
		ft.emit(&glee.BinaryInstr{ID: ft.id(instr), Op: glee.AND, LHS: x, RHS: glee.Local(mask)})
		return nil
	}

	ops, ok := binaryOps[instr.Op]
	if !ok {
		return fmt.Errorf("%w: operator %s", ErrUnsupported, instr.Op)
	}
	op := ops[0]
	if isSigned(instr.X.Type()) {
		op = ops[1]
	}

	if instr.Op == token.QUO || instr.Op == token.REM {
		ft.emit(&glee.DivideInstr{ID: ft.id(instr), Op: op, LHS: x, RHS: y})
		return nil
	}
	ft.emit(&glee.BinaryInstr{ID: ft.id(instr), Op: op, LHS: x, RHS: y})
	return nil
}

// shift lowers a Go shift. Counts of at least the width shift every bit out
// and the count may have any integer type.
func (ft *funcTranslator) shift(instr *ssa.BinOp, x, y glee.Operand) error {
	xw, _ := ft.t.width(instr.X.Type())
	yw, err := ft.t.width(instr.Y.Type())
	if err != nil {
		return err
	}

	op := glee.SHL
	if instr.Op == token.SHR {
		op = glee.LSHR
		if isSigned(instr.X.Type()) {
			op = glee.ASHR
		}
	}

	amount := y
	if yw != xw {
		id := ft.temp()
		ft.emit(&glee.CastInstr{ID: id, Value: y, Width: xw})
		amount = glee.Local(id)
	}

	shifted, over := ft.temp(), ft.temp()
	ft.emit(&glee.BinaryInstr{ID: shifted, Op: op, LHS: x, RHS: amount})
	ft.emit(&glee.BinaryInstr{ID: over, Op: glee.UGE, LHS: y, RHS: glee.NewConstantExpr(uint64(xw), yw)})

	var fill glee.Operand = glee.NewConstantExpr(0, xw)
	if op == glee.ASHR {
		id := ft.temp()
		ft.emit(&glee.BinaryInstr{ID: id, Op: glee.ASHR, LHS: x, RHS: glee.NewConstantExpr(uint64(xw-1), xw)})
		fill = glee.Local(id)
	}
	ft.emit(&glee.SelectInstr{ID: ft.id(instr), Cond: glee.Local(over), True: fill, False: glee.Local(shifted)})
	return nil
}

func (ft *funcTranslator) unOp(instr *ssa.UnOp) error {
	x, err := ft.operand(instr.X)
	if err != nil {
		return err
	}

	switch instr.Op {
	case token.MUL:
		width, err := ft.t.width(instr.Type())
		if err != nil {
			return err
		}
		ft.emit(&glee.LoadInstr{ID: ft.id(instr), Addr: x, Width: width})
		return nil
	case token.SUB:
		width, err := ft.t.width(instr.Type())
		if err != nil {
			return err
		}
		ft.emit(&glee.BinaryInstr{ID: ft.id(instr), Op: glee.SUB, LHS: glee.NewConstantExpr(0, width), RHS: x})
		return nil
	case token.XOR:
		width, err := ft.t.width(instr.Type())
		if err != nil {
			return err
		}
		ft.emit(&glee.BinaryInstr{ID: ft.id(instr), Op: glee.XOR, LHS: x, RHS: glee.NewConstantExpr(^uint64(0), width)})
		return nil
	case token.NOT:
		ft.emit(&glee.BinaryInstr{ID: ft.id(instr), Op: glee.EQ, LHS: x, RHS: glee.NewBoolConstantExpr(false)})
		return nil
	default:
		return fmt.Errorf("%w: unary operator %s", ErrUnsupported, instr.Op)
	}
}

// convert lowers integer, pointer and named type conversions.
func (ft *funcTranslator) convert(instr ssa.Value, v ssa.Value) error {
	width, err := ft.t.width(instr.Type())
	if err != nil {
		return err
	}
	if _, err := ft.t.width(v.Type()); err != nil {
		return err
	}
	x, err := ft.operand(v)
	if err != nil {
		return err
	}
	ft.emit(&glee.CastInstr{ID: ft.id(instr), Value: x, Width: width, Signed: isSigned(v.Type())})
	return nil
}

func (ft *funcTranslator) fieldAddr(instr *ssa.FieldAddr) error {
	st, ok := deref(instr.X.Type()).Underlying().(*types.Struct)
	if !ok {
		return fmt.Errorf("%w: field of %s", ErrUnsupported, instr.X.Type())
	}
	fields := make([]*types.Var, st.NumFields())
	for i := range fields {
		fields[i] = st.Field(i)
	}
	offset := ft.t.sizes.Offsetsof(fields)[instr.Field]

	x, err := ft.operand(instr.X)
	if err != nil {
		return err
	}
	ft.emit(&glee.BinaryInstr{ID: ft.id(instr), Op: glee.ADD, LHS: x, RHS: glee.NewConstantExpr(uint64(offset), ft.t.target.PointerWidth)})
	return nil
}

// indexAddr lowers the address of an array element. The index is checked
// against the length first.
func (ft *funcTranslator) indexAddr(instr *ssa.IndexAddr) error {
	arr, ok := deref(instr.X.Type()).Underlying().(*types.Array)
	if !ok {
		return fmt.Errorf("%w: index of %s", ErrUnsupported, instr.X.Type())
	}
	ptrWidth := ft.t.target.PointerWidth

	x, err := ft.operand(instr.X)
	if err != nil {
		return err
	}
	index, err := ft.operand(instr.Index)
	if err != nil {
		return err
	}
	if width, err := ft.t.width(instr.Index.Type()); err != nil {
		return err
	} else if width != ptrWidth {
		id := ft.temp()
		ft.emit(&glee.CastInstr{ID: id, Value: index, Width: ptrWidth, Signed: isSigned(instr.Index.Type())})
		index = glee.Local(id)
	}

	ft.emit(&glee.CallInstr{
		ID:     ft.temp(),
		Callee: ft.t.intrinsic("bounds_check", glee.IntrinsicBoundsCheck),
		Args:   []glee.Operand{index, glee.NewConstantExpr(uint64(arr.Len()), ptrWidth)},
	})

	offset := ft.temp()
	elem := uint64(ft.t.sizes.Sizeof(arr.Elem()))
	ft.emit(&glee.BinaryInstr{ID: offset, Op: glee.MUL, LHS: index, RHS: glee.NewConstantExpr(elem, ptrWidth)})
	ft.emit(&glee.BinaryInstr{ID: ft.id(instr), Op: glee.ADD, LHS: x, RHS: glee.Local(offset)})
	return nil
}

func (ft *funcTranslator) branch(instr *ssa.If) error {
	cond, err := ft.operand(instr.Cond)
	if err != nil {
		return err
	}
	succs := instr.Block().Succs
	ft.emit(&glee.BranchInstr{
		ID:    ft.temp(),
		Cond:  cond,
		True:  glee.BasicBlockID(succs[0].Index),
		False: glee.BasicBlockID(succs[1].Index),
	})
	return nil
}

func (ft *funcTranslator) phi(instr *ssa.Phi) error {
	if _, err := ft.t.width(instr.Type()); err != nil {
		return err
	}
	values, err := ft.operands(instr.Edges...)
	if err != nil {
		return err
	}

	preds := instr.Block().Preds
	edges := make([]glee.PhiEdge, len(values))
	for i, v := range values {
		edges[i] = glee.PhiEdge{Block: glee.BasicBlockID(preds[i].Index), Value: v}
	}
	ft.emit(&glee.PhiInstr{ID: ft.id(instr), Edges: edges})
	return nil
}

func (ft *funcTranslator) ret(instr *ssa.Return) error {
	switch len(instr.Results) {
	case 0:
		ft.emit(&glee.ReturnInstr{ID: ft.temp()})
		return nil
	case 1:
		value, err := ft.operand(instr.Results[0])
		if err != nil {
			return err
		}
		ft.emit(&glee.ReturnInstr{ID: ft.temp(), Value: value})
		return nil
	default:
		return fmt.Errorf("%w: multiple results", ErrUnsupported)
	}
}

func (ft *funcTranslator) store(instr *ssa.Store) error {
	if _, err := ft.t.width(instr.Val.Type()); err != nil {
		return err
	}
	addr, err := ft.operand(instr.Addr)
	if err != nil {
		return err
	}
	value, err := ft.operand(instr.Val)
	if err != nil {
		return err
	}
	ft.emit(&glee.StoreInstr{ID: ft.temp(), Addr: addr, Value: value})
	return nil
}

// makeInterface is only supported for panic values, which are discarded.
func (ft *funcTranslator) makeInterface(instr *ssa.MakeInterface) error {
	for _, ref := range *instr.Referrers() {
		if _, ok := ref.(*ssa.Panic); !ok {
			return fmt.Errorf("%w: interface value %s", ErrUnsupported, instr)
		}
	}
	return nil
}

func (ft *funcTranslator) call(instr *ssa.Call) error {
	common := instr.Common()
	if common.IsInvoke() {
		return fmt.Errorf("%w: interface method call %s", ErrUnsupported, instr)
	}
	if b, ok := common.Value.(*ssa.Builtin); ok {
		switch b.Name() {
		case "print", "println":
			return nil
		}
		return fmt.Errorf("%w: builtin %s", ErrUnsupported, b.Name())
	}

	callee := common.StaticCallee()
	if callee == nil {
		return fmt.Errorf("%w: dynamic call %s", ErrUnsupported, instr)
	}

	// Other packages are initialized outside of exploration.
	if callee.Name() == "init" && callee.Pkg != ft.fn.Pkg && callee.Synthetic != "" {
		return nil
	}

	width, err := ft.t.resultWidth(callee.Signature)
	if err != nil {
		return err
	}
	args, err := ft.operands(common.Args...)
	if err != nil {
		return err
	}

	id, err := ft.callee(callee)
	if err != nil {
		return err
	}
	ft.emit(&glee.CallInstr{ID: ft.id(instr), Callee: id, Args: args, Width: width})
	return nil
}

// callee resolves a static callee to a translated function or intrinsic.
func (ft *funcTranslator) callee(fn *ssa.Function) (glee.FunctionID, error) {
	if fn.Pkg != nil && fn.Pkg.Pkg.Path() == MarkerPackage {
		switch fn.Name() {
		case "Assert":
			return ft.t.intrinsic("assert", glee.IntrinsicAssert), nil
		case "Assume":
			return ft.t.intrinsic("assume", glee.IntrinsicAssume), nil
		case "Bool", "Byte", "Int", "Int8", "Int16", "Int32", "Int64",
			"Uint", "Uint8", "Uint16", "Uint32", "Uint64":
			return ft.t.intrinsic(fn.Name(), glee.IntrinsicSymbolic), nil
		}
	}

	if len(fn.Blocks) > 0 {
		return ft.t.function(fn), nil
	}
	if kind, ok := glee.LookupIntrinsic(fn.Name()); ok {
		return ft.t.intrinsic(fn.Name(), kind), nil
	}
	return 0, fmt.Errorf("%w: function has no body: %s", ErrUnsupported, fn)
}

func deref(typ types.Type) types.Type {
	if p, ok := typ.Underlying().(*types.Pointer); ok {
		return p.Elem()
	}
	return typ
}

func isSigned(typ types.Type) bool {
	b, ok := typ.Underlying().(*types.Basic)
	return ok && b.Info()&types.IsInteger != 0 && b.Info()&types.IsUnsigned == 0
}
