package glee

import (
	"fmt"
	"math/bits"
	"sort"
)

// Expr represents an immutable symbolic bit-vector expression.
type Expr interface {
	expr()
	String() string
}

func (*BinaryExpr) expr()   {}
func (*CastExpr) expr()     {}
func (*ConcatExpr) expr()   {}
func (*ConstantExpr) expr() {}
func (*ExtractExpr) expr()  {}
func (*NotExpr) expr()      {}
func (*SelectExpr) expr()   {}

// ExprWidth returns the bit width of the expression.
func ExprWidth(expr Expr) uint {
	switch expr := expr.(type) {
	case *ConstantExpr:
		return expr.Width
	case *SelectExpr:
		return Width8
	case *ConcatExpr:
		return ExprWidth(expr.MSB) + ExprWidth(expr.LSB)
	case *ExtractExpr:
		return expr.Width
	case *NotExpr:
		return ExprWidth(expr.Expr)
	case *CastExpr:
		return expr.Width
	case *BinaryExpr:
		if expr.Op.IsCompare() {
			return WidthBool
		}
		return ExprWidth(expr.LHS)
	default:
		panic(fmt.Sprintf("unexpected expr: %T", expr))
	}
}

// BinaryOp represents a binary expression operation.
type BinaryOp int

// BinaryExpr operations.
const (
	arithmetic_op_begin = BinaryOp(iota)
	ADD
	SUB
	MUL
	UDIV
	SDIV
	UREM
	SREM
	AND
	OR
	XOR
	SHL
	LSHR
	ASHR
	arithmetic_op_end

	compare_op_begin
	EQ
	NE
	ULT
	ULE
	UGT
	UGE
	SLT
	SLE
	SGT
	SGE
	compare_op_end
)

var binaryOps = [...]string{
	ADD:  "add",
	SUB:  "sub",
	MUL:  "mul",
	UDIV: "udiv",
	SDIV: "sdiv",
	UREM: "urem",
	SREM: "srem",
	AND:  "and",
	OR:   "or",
	XOR:  "xor",
	SHL:  "shl",
	LSHR: "lshr",
	ASHR: "ashr",
	EQ:   "eq",
	NE:   "ne",
	ULT:  "ult",
	ULE:  "ule",
	UGT:  "ugt",
	UGE:  "uge",
	SLT:  "slt",
	SLE:  "sle",
	SGT:  "sgt",
	SGE:  "sge",
}

// String returns the string representation of the operation.
func (op BinaryOp) String() string {
	if op >= 0 && op < BinaryOp(len(binaryOps)) && binaryOps[op] != "" {
		return binaryOps[op]
	}
	return fmt.Sprintf("BinaryOp<%d>", op)
}

// IsArithmetic returns true if op is an arithmetic operator.
func (op BinaryOp) IsArithmetic() bool {
	return op > arithmetic_op_begin && op < arithmetic_op_end
}

// IsCompare returns true if op is a comparison operator.
func (op BinaryOp) IsCompare() bool {
	return op > compare_op_begin && op < compare_op_end
}

// BinaryExpr represents an operation on two expressions of equal width.
type BinaryExpr struct {
	Op  BinaryOp
	LHS Expr
	RHS Expr
}

// NewBinaryExpr returns a simplified expression for op applied to lhs & rhs.
func NewBinaryExpr(op BinaryOp, lhs, rhs Expr) Expr {
	switch op {
	case ADD:
		return newAddExpr(lhs, rhs)
	case SUB:
		return newSubExpr(lhs, rhs)
	case MUL:
		return newMulExpr(lhs, rhs)
	case UDIV, SDIV:
		return newDivExpr(op, lhs, rhs)
	case UREM, SREM:
		return newRemExpr(op, lhs, rhs)
	case AND:
		return newAndExpr(lhs, rhs)
	case OR:
		return newOrExpr(lhs, rhs)
	case XOR:
		return newXorExpr(lhs, rhs)
	case SHL, LSHR, ASHR:
		return newShiftExpr(op, lhs, rhs)
	case EQ:
		return newEqExpr(lhs, rhs)
	case NE:
		return newEqExpr(NewBoolConstantExpr(false), newEqExpr(lhs, rhs))
	case ULT:
		return newUltExpr(lhs, rhs)
	case UGT:
		return newUltExpr(rhs, lhs)
	case ULE:
		return newUleExpr(lhs, rhs)
	case UGE:
		return newUleExpr(rhs, lhs)
	case SLT:
		return newSltExpr(lhs, rhs)
	case SGT:
		return newSltExpr(rhs, lhs)
	case SLE:
		return newSleExpr(lhs, rhs)
	case SGE:
		return newSleExpr(rhs, lhs)
	default:
		panic(fmt.Sprintf("unexpected binary op: %s", op))
	}
}

// String returns the string representation of the expression.
func (e *BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", e.Op, e.LHS, e.RHS)
}

func newAddExpr(lhs, rhs Expr) Expr {
	// Constants move to the left.
	if !IsConstantExpr(lhs) && IsConstantExpr(rhs) {
		lhs, rhs = rhs, lhs
	}
	if ExprWidth(lhs) == WidthBool {
		return newXorExpr(lhs, rhs)
	}

	if lhs, ok := lhs.(*ConstantExpr); ok {
		if lhs.Value == 0 {
			return rhs
		} else if rhs, ok := rhs.(*ConstantExpr); ok {
			return lhs.Add(rhs)
		}

		if rhs, ok := rhs.(*BinaryExpr); ok && IsConstantExpr(rhs.LHS) {
			switch rhs.Op {
			case ADD: // X + (Y+z) == (X+Y) + z
				return newAddExpr(lhs.Add(rhs.LHS.(*ConstantExpr)), rhs.RHS)
			case SUB: // X + (Y-z) == (X+Y) - z
				return newSubExpr(lhs.Add(rhs.LHS.(*ConstantExpr)), rhs.RHS)
			}
		}
	}

	if l, ok := lhs.(*BinaryExpr); ok && IsConstantExpr(l.LHS) {
		switch l.Op {
		case ADD: // (X+y) + z == X + (y+z)
			return newAddExpr(l.LHS, newAddExpr(l.RHS, rhs))
		case SUB: // (X-y) + z == X + (z-y)
			return newAddExpr(l.LHS, newSubExpr(rhs, l.RHS))
		}
	}
	if r, ok := rhs.(*BinaryExpr); ok && IsConstantExpr(r.LHS) {
		switch r.Op {
		case ADD: // x + (Y+z) == Y + (x+z)
			return newAddExpr(r.LHS, newAddExpr(lhs, r.RHS))
		case SUB: // x + (Y-z) == Y + (x-z)
			return newAddExpr(r.LHS, newSubExpr(lhs, r.RHS))
		}
	}
	return &BinaryExpr{Op: ADD, LHS: lhs, RHS: rhs}
}

func newSubExpr(lhs, rhs Expr) Expr {
	if CompareExpr(lhs, rhs) == 0 {
		return NewConstantExpr(0, ExprWidth(lhs))
	}
	if lhs, ok := lhs.(*ConstantExpr); ok {
		if rhs, ok := rhs.(*ConstantExpr); ok {
			return lhs.Sub(rhs)
		}
	}
	if ExprWidth(lhs) == WidthBool {
		return newXorExpr(lhs, rhs)
	}

	// x - Y == -Y + x
	if rhs, ok := rhs.(*ConstantExpr); ok {
		return newAddExpr(rhs.Neg(), lhs)
	}

	if lhs, ok := lhs.(*ConstantExpr); ok {
		if rhs, ok := rhs.(*BinaryExpr); ok && IsConstantExpr(rhs.LHS) {
			switch rhs.Op {
			case ADD: // X - (Y+z) == (X-Y) - z
				return newSubExpr(lhs.Sub(rhs.LHS.(*ConstantExpr)), rhs.RHS)
			case SUB: // X - (Y-z) == (X-Y) + z
				return newAddExpr(lhs.Sub(rhs.LHS.(*ConstantExpr)), rhs.RHS)
			}
		}
	}

	if l, ok := lhs.(*BinaryExpr); ok && IsConstantExpr(l.LHS) {
		switch l.Op {
		case ADD: // (X+y) - z == X + (y-z)
			return newAddExpr(l.LHS, newSubExpr(l.RHS, rhs))
		case SUB: // (X-y) - z == X - (y+z)
			return newSubExpr(l.LHS, newAddExpr(l.RHS, rhs))
		}
	}
	if r, ok := rhs.(*BinaryExpr); ok && IsConstantExpr(r.LHS) {
		switch r.Op {
		case ADD: // x - (Y+z) == (x-z) - Y
			return newSubExpr(newSubExpr(lhs, r.RHS), r.LHS)
		case SUB: // x - (Y-z) == (x+z) - Y
			return newSubExpr(newAddExpr(lhs, r.RHS), r.LHS)
		}
	}
	return &BinaryExpr{Op: SUB, LHS: lhs, RHS: rhs}
}

func newMulExpr(lhs, rhs Expr) Expr {
	if IsConstantExpr(rhs) && !IsConstantExpr(lhs) {
		lhs, rhs = rhs, lhs
	}
	if lhs, ok := lhs.(*ConstantExpr); ok {
		if rhs, ok := rhs.(*ConstantExpr); ok {
			return lhs.Mul(rhs)
		}
	}
	if ExprWidth(lhs) == WidthBool {
		return newAndExpr(lhs, rhs)
	}
	if lhs, ok := lhs.(*ConstantExpr); ok {
		switch lhs.Value {
		case 0:
			return lhs
		case 1:
			return rhs
		}
	}
	return &BinaryExpr{Op: MUL, LHS: lhs, RHS: rhs}
}

func newDivExpr(op BinaryOp, lhs, rhs Expr) Expr {
	if lhs, ok := lhs.(*ConstantExpr); ok {
		if rhs, ok := rhs.(*ConstantExpr); ok {
			if op == UDIV {
				return lhs.UDiv(rhs)
			}
			return lhs.SDiv(rhs)
		}
	}
	if rhs, ok := rhs.(*ConstantExpr); ok && rhs.Value == 1 {
		return lhs
	}
	return &BinaryExpr{Op: op, LHS: lhs, RHS: rhs}
}

func newRemExpr(op BinaryOp, lhs, rhs Expr) Expr {
	if lhs, ok := lhs.(*ConstantExpr); ok {
		if rhs, ok := rhs.(*ConstantExpr); ok {
			if op == UREM {
				return lhs.URem(rhs)
			}
			return lhs.SRem(rhs)
		}
	}

	// x urem 2^k == x & (2^k-1)
	if rhs, ok := rhs.(*ConstantExpr); ok && op == UREM && rhs.Value != 0 && bits.OnesCount64(rhs.Value) == 1 {
		return newAndExpr(lhs, rhs.Sub(NewConstantExpr(1, rhs.Width)))
	}
	return &BinaryExpr{Op: op, LHS: lhs, RHS: rhs}
}

func newAndExpr(lhs, rhs Expr) Expr {
	if lhs, ok := lhs.(*ConstantExpr); ok {
		if rhs, ok := rhs.(*ConstantExpr); ok {
			return lhs.And(rhs)
		}
	}

	// Constants move to the right.
	if IsConstantExpr(lhs) {
		lhs, rhs = rhs, lhs
	}
	if rhs, ok := rhs.(*ConstantExpr); ok {
		if rhs.IsAllOnes() {
			return lhs
		} else if rhs.Value == 0 {
			return rhs
		}
	}
	if CompareExpr(lhs, rhs) == 0 {
		return lhs
	}
	return &BinaryExpr{Op: AND, LHS: lhs, RHS: rhs}
}

func newOrExpr(lhs, rhs Expr) Expr {
	if lhs, ok := lhs.(*ConstantExpr); ok {
		if rhs, ok := rhs.(*ConstantExpr); ok {
			return lhs.Or(rhs)
		}
	}
	if IsConstantExpr(lhs) {
		lhs, rhs = rhs, lhs
	}
	if rhs, ok := rhs.(*ConstantExpr); ok {
		if rhs.IsAllOnes() {
			return rhs
		} else if rhs.Value == 0 {
			return lhs
		}
	}
	if CompareExpr(lhs, rhs) == 0 {
		return lhs
	}
	return &BinaryExpr{Op: OR, LHS: lhs, RHS: rhs}
}

func newXorExpr(lhs, rhs Expr) Expr {
	if !IsConstantExpr(lhs) && IsConstantExpr(rhs) {
		lhs, rhs = rhs, lhs
	}
	if lhs, ok := lhs.(*ConstantExpr); ok {
		if lhs.Value == 0 {
			return rhs
		} else if rhs, ok := rhs.(*ConstantExpr); ok {
			return lhs.Xor(rhs)
		}
	}
	if CompareExpr(lhs, rhs) == 0 {
		return NewConstantExpr(0, ExprWidth(lhs))
	}
	return &BinaryExpr{Op: XOR, LHS: lhs, RHS: rhs}
}

func newShiftExpr(op BinaryOp, lhs, rhs Expr) Expr {
	if lhs, ok := lhs.(*ConstantExpr); ok {
		if rhs, ok := rhs.(*ConstantExpr); ok {
			switch op {
			case SHL:
				return lhs.Shl(rhs)
			case LSHR:
				return lhs.LShr(rhs)
			default:
				return lhs.AShr(rhs)
			}
		}
	}
	if rhs, ok := rhs.(*ConstantExpr); ok && rhs.Value == 0 {
		return lhs
	}
	if ExprWidth(lhs) == WidthBool {
		if op == ASHR {
			return lhs
		}
		return newAndExpr(lhs, NewIsZeroExpr(rhs)) // l & !r
	}
	return &BinaryExpr{Op: op, LHS: lhs, RHS: rhs}
}

func newEqExpr(lhs, rhs Expr) Expr {
	if !IsConstantExpr(lhs) && IsConstantExpr(rhs) {
		lhs, rhs = rhs, lhs
	}

	if lhs, ok := lhs.(*ConstantExpr); ok {
		if rhs, ok := rhs.(*ConstantExpr); ok {
			return lhs.Eq(rhs)
		}

		width := ExprWidth(lhs)
		switch rhs := rhs.(type) {
		case *BinaryExpr:
			switch rhs.Op {
			case EQ:
				if width == WidthBool {
					if lhs.IsTrue() {
						return rhs
					} else if IsConstantFalse(rhs.LHS) {
						return rhs.RHS // F == (F == A) => A
					}
				}
			case OR:
				if width == WidthBool {
					if lhs.IsTrue() {
						return rhs
					}
					return newAndExpr(NewIsZeroExpr(rhs.LHS), NewIsZeroExpr(rhs.RHS)) // F == X|Y => !X & !Y
				}
			case ADD:
				if c, ok := rhs.LHS.(*ConstantExpr); ok { // X == Y+z => X-Y == z
					return newEqExpr(lhs.Sub(c), rhs.RHS)
				}
			case SUB:
				if c, ok := rhs.LHS.(*ConstantExpr); ok { // X == Y-z => Y-X == z
					return newEqExpr(c.Sub(lhs), rhs.RHS)
				}
			}

		case *CastExpr:
			// Compare against the source when the constant survives truncation.
			trunc := lhs.ZExt(ExprWidth(rhs.Src))
			ext := trunc.ZExt(width)
			if rhs.Signed {
				ext = trunc.SExt(width)
			}
			if CompareExpr(lhs, ext) == 0 {
				return newEqExpr(trunc, rhs.Src)
			}
			return NewBoolConstantExpr(false)
		}
	}

	if CompareExpr(lhs, rhs) == 0 {
		return NewBoolConstantExpr(true)
	}
	return &BinaryExpr{Op: EQ, LHS: lhs, RHS: rhs}
}

func newUltExpr(lhs, rhs Expr) Expr {
	if lhs, ok := lhs.(*ConstantExpr); ok {
		if rhs, ok := rhs.(*ConstantExpr); ok {
			return lhs.Ult(rhs)
		}
	}
	if CompareExpr(lhs, rhs) == 0 {
		return NewBoolConstantExpr(false)
	}
	if ExprWidth(lhs) == WidthBool { // !l & r
		return newAndExpr(NewIsZeroExpr(lhs), rhs)
	}
	return &BinaryExpr{Op: ULT, LHS: lhs, RHS: rhs}
}

func newUleExpr(lhs, rhs Expr) Expr {
	if lhs, ok := lhs.(*ConstantExpr); ok {
		if rhs, ok := rhs.(*ConstantExpr); ok {
			return lhs.Ule(rhs)
		}
	}
	if CompareExpr(lhs, rhs) == 0 {
		return NewBoolConstantExpr(true)
	}
	if ExprWidth(lhs) == WidthBool { // !l | r
		return newOrExpr(NewIsZeroExpr(lhs), rhs)
	}
	return &BinaryExpr{Op: ULE, LHS: lhs, RHS: rhs}
}

func newSltExpr(lhs, rhs Expr) Expr {
	if lhs, ok := lhs.(*ConstantExpr); ok {
		if rhs, ok := rhs.(*ConstantExpr); ok {
			return lhs.Slt(rhs)
		}
	}
	if CompareExpr(lhs, rhs) == 0 {
		return NewBoolConstantExpr(false)
	}
	if ExprWidth(lhs) == WidthBool { // l & !r
		return newAndExpr(lhs, NewIsZeroExpr(rhs))
	}
	return &BinaryExpr{Op: SLT, LHS: lhs, RHS: rhs}
}

func newSleExpr(lhs, rhs Expr) Expr {
	if lhs, ok := lhs.(*ConstantExpr); ok {
		if rhs, ok := rhs.(*ConstantExpr); ok {
			return lhs.Sle(rhs)
		}
	}
	if CompareExpr(lhs, rhs) == 0 {
		return NewBoolConstantExpr(true)
	}
	if ExprWidth(lhs) == WidthBool { // l | !r
		return newOrExpr(lhs, NewIsZeroExpr(rhs))
	}
	return &BinaryExpr{Op: SLE, LHS: lhs, RHS: rhs}
}

// NewIteExpr returns an expression equal to t when cond is true and f otherwise.
func NewIteExpr(cond, t, f Expr) Expr {
	if cond, ok := cond.(*ConstantExpr); ok {
		if cond.IsTrue() {
			return t
		}
		return f
	}
	if CompareExpr(t, f) == 0 {
		return t
	}
	mask := newSExtExpr(cond, ExprWidth(t))
	return newOrExpr(newAndExpr(mask, t), newAndExpr(NewNotExpr(mask), f))
}

// SelectExpr represents a one byte read from an array.
type SelectExpr struct {
	Array *Array
	Index Expr
}

// NewSelectExpr returns a new instance of SelectExpr based on a given array.
func NewSelectExpr(a *Array, index Expr) Expr {
	return &SelectExpr{Array: a, Index: index}
}

// String returns the string representation of the expression.
func (e *SelectExpr) String() string {
	return fmt.Sprintf("(select %s %s)", e.Array, e.Index)
}

// ConcatExpr represents a concatenation of two expressions.
type ConcatExpr struct {
	MSB Expr
	LSB Expr
}

// NewConcatExpr returns a new instance of ConcatExpr.
func NewConcatExpr(msb, lsb Expr) Expr {
	if msb, ok := msb.(*ConstantExpr); ok {
		if lsb, ok := lsb.(*ConstantExpr); ok {
			return msb.Concat(lsb)
		}
	}

	// Join contiguous extractions of the same expression.
	if msb, ok := msb.(*ExtractExpr); ok {
		if lsb, ok := lsb.(*ExtractExpr); ok {
			if msb.Expr == lsb.Expr && lsb.Offset+lsb.Width == msb.Offset {
				return NewExtractExpr(msb.Expr, lsb.Offset, msb.Width+lsb.Width)
			}
		}
	}
	return &ConcatExpr{MSB: msb, LSB: lsb}
}

// String returns the string representation of the expression.
func (e *ConcatExpr) String() string {
	return fmt.Sprintf("(concat %s %s)", e.MSB, e.LSB)
}

// ExtractExpr represents the extraction of a set of bits at a given offset/width.
type ExtractExpr struct {
	Expr   Expr
	Offset uint
	Width  uint
}

// NewExtractExpr returns a new instance of ExtractExpr.
func NewExtractExpr(expr Expr, offset uint, width uint) Expr {
	kw := ExprWidth(expr)
	assert(width > 0, "extract width cannot be zero")
	assert(offset+width <= kw, "extract out of bounds: %d+%d > %d", offset, width, kw)

	if width == kw {
		return expr
	} else if expr, ok := expr.(*ConstantExpr); ok {
		return expr.Extract(offset, width)
	}

	if expr, ok := expr.(*ConcatExpr); ok {
		lw := ExprWidth(expr.LSB)
		if offset >= lw {
			return NewExtractExpr(expr.MSB, offset-lw, width)
		} else if offset+width <= lw {
			return NewExtractExpr(expr.LSB, offset, width)
		}

		// Straddles both halves: E(C(x,y)) == C(E(x), E(y))
		return NewConcatExpr(
			NewExtractExpr(expr.MSB, 0, offset+width-lw),
			NewExtractExpr(expr.LSB, offset, lw-offset),
		)
	}
	return &ExtractExpr{Expr: expr, Offset: offset, Width: width}
}

// String returns the string representation of the expression.
func (e *ExtractExpr) String() string {
	return fmt.Sprintf("(extract %s %d %d)", e.Expr, e.Offset, e.Width)
}

// NotExpr represents a bitwise not of an expression.
type NotExpr struct {
	Expr Expr
}

// NewNotExpr returns a new instance of NotExpr.
func NewNotExpr(expr Expr) Expr {
	switch expr := expr.(type) {
	case *ConstantExpr:
		return expr.Not()
	case *NotExpr:
		return expr.Expr
	}
	return &NotExpr{Expr: expr}
}

// String returns the string representation of the expression.
func (e *NotExpr) String() string {
	return fmt.Sprintf("(not %s)", e.Expr)
}

// CastExpr represents an expression that extends an expression to a new width.
type CastExpr struct {
	Src    Expr
	Width  uint
	Signed bool
}

// NewCastExpr returns an expression resized to width. Narrowing truncates.
func NewCastExpr(src Expr, width uint, signed bool) Expr {
	if signed {
		return newSExtExpr(src, width)
	}
	return newZExtExpr(src, width)
}

func newZExtExpr(src Expr, w uint) Expr {
	sw := ExprWidth(src)
	if w == sw {
		return src
	} else if w < sw {
		return NewExtractExpr(src, 0, w)
	} else if src, ok := src.(*ConstantExpr); ok {
		return src.ZExt(w)
	}
	return &CastExpr{Src: src, Width: w}
}

func newSExtExpr(src Expr, w uint) Expr {
	sw := ExprWidth(src)
	if w == sw {
		return src
	} else if w < sw {
		return NewExtractExpr(src, 0, w)
	} else if src, ok := src.(*ConstantExpr); ok {
		return src.SExt(w)
	}
	return &CastExpr{Src: src, Width: w, Signed: true}
}

// String returns the string representation of the expression.
func (e *CastExpr) String() string {
	if e.Signed {
		return fmt.Sprintf("(sext %s %d)", e.Src, e.Width)
	}
	return fmt.Sprintf("(zext %s %d)", e.Src, e.Width)
}

// ConstantExpr represents a concrete value of up to 64 bits.
type ConstantExpr struct {
	Value uint64
	Width uint
}

// NewConstantExpr returns a new instance of ConstantExpr. The value is
// truncated to width.
func NewConstantExpr(value uint64, width uint) *ConstantExpr {
	assert(width > 0 && width <= Width64, "invalid constant width: %d", width)
	return &ConstantExpr{Value: value & bitmask(width), Width: width}
}

// NewConstantExpr8 returns a 8-bit constant expression.
func NewConstantExpr8(value uint64) *ConstantExpr { return NewConstantExpr(value, 8) }

// NewConstantExpr32 returns a 32-bit constant expression.
func NewConstantExpr32(value uint64) *ConstantExpr { return NewConstantExpr(value, 32) }

// NewConstantExpr64 returns a 64-bit constant expression.
func NewConstantExpr64(value uint64) *ConstantExpr { return NewConstantExpr(value, 64) }

// NewBoolConstantExpr returns a constant boolean expression.
func NewBoolConstantExpr(value bool) *ConstantExpr {
	if value {
		return &ConstantExpr{Value: 1, Width: WidthBool}
	}
	return &ConstantExpr{Value: 0, Width: WidthBool}
}

// String returns the string representation of the expression.
func (e *ConstantExpr) String() string {
	return fmt.Sprintf("(const %d %d)", e.Value, e.Width)
}

// IsTrue returns true if this is a boolean true expression.
func (e *ConstantExpr) IsTrue() bool { return e.Width == WidthBool && e.Value != 0 }

// IsFalse returns true if this is a boolean false expression.
func (e *ConstantExpr) IsFalse() bool { return e.Width == WidthBool && e.Value == 0 }

// IsAllOnes returns true if all bits in the value are one.
func (e *ConstantExpr) IsAllOnes() bool { return e.Value == bitmask(e.Width) }

// Int64 returns the value interpreted as a two's complement integer.
func (e *ConstantExpr) Int64() int64 {
	shift := Width64 - e.Width
	return int64(e.Value<<shift) >> shift
}

func (e *ConstantExpr) isNegative() bool { return e.Int64() < 0 }

// Neg returns the two's complement negation of e.
func (e *ConstantExpr) Neg() *ConstantExpr { return NewConstantExpr(-e.Value, e.Width) }

func (e *ConstantExpr) abs() *ConstantExpr {
	if e.isNegative() {
		return e.Neg()
	}
	return e
}

func (e *ConstantExpr) check(op string, other *ConstantExpr) {
	assert(e.Width == other.Width, "%s: width mismatch: %d != %d", op, e.Width, other.Width)
}

// Add returns the sum of e and other.
func (e *ConstantExpr) Add(other *ConstantExpr) *ConstantExpr {
	e.check("add", other)
	return NewConstantExpr(e.Value+other.Value, e.Width)
}

// Sub returns the difference of e and other.
func (e *ConstantExpr) Sub(other *ConstantExpr) *ConstantExpr {
	e.check("sub", other)
	return NewConstantExpr(e.Value-other.Value, e.Width)
}

// Mul returns the product of e and other.
func (e *ConstantExpr) Mul(other *ConstantExpr) *ConstantExpr {
	e.check("mul", other)
	return NewConstantExpr(e.Value*other.Value, e.Width)
}

// UDiv returns the unsigned quotient. Division by zero yields all ones.
func (e *ConstantExpr) UDiv(other *ConstantExpr) *ConstantExpr {
	e.check("udiv", other)
	if other.Value == 0 {
		return NewConstantExpr(^uint64(0), e.Width)
	}
	return NewConstantExpr(e.Value/other.Value, e.Width)
}

// SDiv returns the signed quotient, truncated toward zero.
func (e *ConstantExpr) SDiv(other *ConstantExpr) *ConstantExpr {
	e.check("sdiv", other)
	q := e.abs().UDiv(other.abs())
	if e.isNegative() != other.isNegative() {
		return q.Neg()
	}
	return q
}

// URem returns the unsigned remainder. A zero divisor yields e.
func (e *ConstantExpr) URem(other *ConstantExpr) *ConstantExpr {
	e.check("urem", other)
	if other.Value == 0 {
		return e
	}
	return NewConstantExpr(e.Value%other.Value, e.Width)
}

// SRem returns the signed remainder, which takes the sign of e.
func (e *ConstantExpr) SRem(other *ConstantExpr) *ConstantExpr {
	e.check("srem", other)
	r := e.abs().URem(other.abs())
	if e.isNegative() {
		return r.Neg()
	}
	return r
}

// And returns the bitwise AND of e and other.
func (e *ConstantExpr) And(other *ConstantExpr) *ConstantExpr {
	e.check("and", other)
	return NewConstantExpr(e.Value&other.Value, e.Width)
}

// Or returns the bitwise OR of e and other.
func (e *ConstantExpr) Or(other *ConstantExpr) *ConstantExpr {
	e.check("or", other)
	return NewConstantExpr(e.Value|other.Value, e.Width)
}

// Xor returns the bitwise XOR of e and other.
func (e *ConstantExpr) Xor(other *ConstantExpr) *ConstantExpr {
	e.check("xor", other)
	return NewConstantExpr(e.Value^other.Value, e.Width)
}

// Shl returns e shifted left by other bits. Oversized shifts yield zero.
func (e *ConstantExpr) Shl(other *ConstantExpr) *ConstantExpr {
	return NewConstantExpr(e.Value<<other.Value, e.Width)
}

// LShr returns e logically shifted right by other bits.
func (e *ConstantExpr) LShr(other *ConstantExpr) *ConstantExpr {
	return NewConstantExpr(e.Value>>other.Value, e.Width)
}

// AShr returns e arithmetically shifted right by other bits.
func (e *ConstantExpr) AShr(other *ConstantExpr) *ConstantExpr {
	return NewConstantExpr(uint64(e.Int64()>>other.Value), e.Width)
}

// Eq returns the equality of e and other.
func (e *ConstantExpr) Eq(other *ConstantExpr) *ConstantExpr {
	e.check("eq", other)
	return NewBoolConstantExpr(e.Value == other.Value)
}

// Ult returns the unsigned less than comparison of e to other.
func (e *ConstantExpr) Ult(other *ConstantExpr) *ConstantExpr {
	e.check("ult", other)
	return NewBoolConstantExpr(e.Value < other.Value)
}

// Ule returns the unsigned less than or equal comparison of e to other.
func (e *ConstantExpr) Ule(other *ConstantExpr) *ConstantExpr {
	e.check("ule", other)
	return NewBoolConstantExpr(e.Value <= other.Value)
}

// Slt returns the signed less than comparison of e to other.
func (e *ConstantExpr) Slt(other *ConstantExpr) *ConstantExpr {
	e.check("slt", other)
	return NewBoolConstantExpr(e.Int64() < other.Int64())
}

// Sle returns the signed less than or equal comparison of e to other.
func (e *ConstantExpr) Sle(other *ConstantExpr) *ConstantExpr {
	e.check("sle", other)
	return NewBoolConstantExpr(e.Int64() <= other.Int64())
}

// ZExt returns e zero-extended, or truncated, to width.
func (e *ConstantExpr) ZExt(width uint) *ConstantExpr {
	if e.Width == width {
		return e
	}
	return NewConstantExpr(e.Value, width)
}

// SExt returns e sign-extended, or truncated, to width.
func (e *ConstantExpr) SExt(width uint) *ConstantExpr {
	if e.Width == width {
		return e
	}
	return NewConstantExpr(uint64(e.Int64()), width)
}

// Not returns the bitwise NOT of the expression.
func (e *ConstantExpr) Not() *ConstantExpr {
	return NewConstantExpr(^e.Value, e.Width)
}

// Extract returns width number of bits starting at offset.
func (e *ConstantExpr) Extract(offset, width uint) *ConstantExpr {
	return NewConstantExpr(e.Value>>offset, width)
}

// Concat returns the concatenation of e and lsb.
func (e *ConstantExpr) Concat(lsb *ConstantExpr) *ConstantExpr {
	return NewConstantExpr((e.Value<<lsb.Width)|lsb.Value, e.Width+lsb.Width)
}

func bitmask(width uint) uint64 {
	return (1 << width) - 1
}

// IsConstantExpr returns true if expr is an instance of ConstantExpr.
func IsConstantExpr(expr Expr) bool {
	_, ok := expr.(*ConstantExpr)
	return ok
}

// IsConstantTrue returns true if expr is a constant true.
func IsConstantTrue(expr Expr) bool {
	tmp, ok := expr.(*ConstantExpr)
	return ok && tmp.IsTrue()
}

// IsConstantFalse returns true if expr is a constant false.
func IsConstantFalse(expr Expr) bool {
	tmp, ok := expr.(*ConstantExpr)
	return ok && tmp.IsFalse()
}

// NewIsZeroExpr returns an expression that checks the equality of other to zero.
func NewIsZeroExpr(other Expr) Expr {
	return newEqExpr(other, NewConstantExpr(0, ExprWidth(other)))
}

// CompareExpr returns an integer comparing two expressions structurally.
// The result will be 0 if a==b, -1 if a < b, and +1 if a > b.
func CompareExpr(a, b Expr) int {
	switch {
	case a == b:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}

	if ak, bk := exprKind(a), exprKind(b); ak != bk {
		return compareUint(uint64(ak), uint64(bk))
	}

	switch a := a.(type) {
	case *ConstantExpr:
		b := b.(*ConstantExpr)
		if cmp := compareUint(uint64(a.Width), uint64(b.Width)); cmp != 0 {
			return cmp
		}
		return compareUint(a.Value, b.Value)
	case *SelectExpr:
		b := b.(*SelectExpr)
		if cmp := CompareExpr(a.Index, b.Index); cmp != 0 {
			return cmp
		}
		return CompareArray(a.Array, b.Array)
	case *ConcatExpr:
		b := b.(*ConcatExpr)
		if cmp := CompareExpr(a.MSB, b.MSB); cmp != 0 {
			return cmp
		}
		return CompareExpr(a.LSB, b.LSB)
	case *ExtractExpr:
		b := b.(*ExtractExpr)
		if cmp := compareUint(uint64(a.Offset), uint64(b.Offset)); cmp != 0 {
			return cmp
		} else if cmp := compareUint(uint64(a.Width), uint64(b.Width)); cmp != 0 {
			return cmp
		}
		return CompareExpr(a.Expr, b.Expr)
	case *NotExpr:
		return CompareExpr(a.Expr, b.(*NotExpr).Expr)
	case *CastExpr:
		b := b.(*CastExpr)
		if a.Signed != b.Signed {
			if !a.Signed {
				return -1
			}
			return 1
		} else if cmp := compareUint(uint64(a.Width), uint64(b.Width)); cmp != 0 {
			return cmp
		}
		return CompareExpr(a.Src, b.Src)
	case *BinaryExpr:
		b := b.(*BinaryExpr)
		if cmp := compareUint(uint64(a.Op), uint64(b.Op)); cmp != 0 {
			return cmp
		} else if cmp := CompareExpr(a.LHS, b.LHS); cmp != 0 {
			return cmp
		}
		return CompareExpr(a.RHS, b.RHS)
	default:
		panic(fmt.Sprintf("unexpected expr: %T", a))
	}
}

func compareUint(a, b uint64) int {
	if a < b {
		return -1
	} else if a > b {
		return 1
	}
	return 0
}

// exprKind returns a numeric value for the type of expression.
// Only used internally for equality checks and sorting.
func exprKind(expr Expr) int {
	switch expr.(type) {
	case *ConstantExpr:
		return 1
	case *SelectExpr:
		return 2
	case *ConcatExpr:
		return 3
	case *ExtractExpr:
		return 4
	case *NotExpr:
		return 5
	case *CastExpr:
		return 6
	case *BinaryExpr:
		return 7
	default:
		panic(fmt.Sprintf("unexpected expr: %T", expr))
	}
}

// WalkExpr calls fn for every expression reachable from exprs, including the
// indices and values of array updates. Shared subtrees are visited once.
// Children are skipped when fn returns false.
func WalkExpr(fn func(Expr) bool, exprs ...Expr) {
	w := exprWalker{fn: fn, seen: make(map[Expr]struct{}), updates: make(map[*ArrayUpdate]struct{})}
	for _, expr := range exprs {
		w.walk(expr)
	}
}

type exprWalker struct {
	fn      func(Expr) bool
	seen    map[Expr]struct{}
	updates map[*ArrayUpdate]struct{}
}

func (w *exprWalker) walk(expr Expr) {
	if _, ok := w.seen[expr]; ok {
		return
	}
	w.seen[expr] = struct{}{}
	if !w.fn(expr) {
		return
	}

	switch expr := expr.(type) {
	case *BinaryExpr:
		w.walk(expr.LHS)
		w.walk(expr.RHS)
	case *CastExpr:
		w.walk(expr.Src)
	case *ConcatExpr:
		w.walk(expr.MSB)
		w.walk(expr.LSB)
	case *ExtractExpr:
		w.walk(expr.Expr)
	case *NotExpr:
		w.walk(expr.Expr)
	case *SelectExpr:
		w.walk(expr.Index)
		for upd := expr.Array.Updates; upd != nil; upd = upd.Next {
			if _, ok := w.updates[upd]; ok {
				break
			}
			w.updates[upd] = struct{}{}
			w.walk(upd.Index)
			w.walk(upd.Value)
		}
	}
}

// FindArrays returns the arrays with unconstrained contents referenced by
// the expressions, one per array id, sorted by id.
func FindArrays(exprs ...Expr) []*Array {
	m := make(map[uint64]*Array)
	WalkExpr(func(expr Expr) bool {
		if expr, ok := expr.(*SelectExpr); ok && !expr.Array.Zeroed {
			if _, ok := m[expr.Array.ID]; !ok {
				m[expr.Array.ID] = expr.Array
			}
		}
		return true
	}, exprs...)

	a := make([]*Array, 0, len(m))
	for _, array := range m {
		a = append(a, array)
	}
	sort.Slice(a, func(i, j int) bool { return a[i].ID < a[j].ID })
	return a
}

// ExprEvaluator evaluates expressions using known array values.
type ExprEvaluator struct {
	m map[uint64][]byte // mapping of array id to value
}

// NewExprEvaluator returns a new instance of ExprEvaluator with the given array/value mapping.
func NewExprEvaluator(arrays []*Array, values [][]byte) *ExprEvaluator {
	assert(len(arrays) == len(values), "array/value count mismatch: %d != %d", len(arrays), len(values))

	m := make(map[uint64][]byte)
	for i, array := range arrays {
		m[array.ID] = values[i]
	}
	return &ExprEvaluator{m: m}
}

// Evaluate evaluates expr to a constant expression.
// Returns an error if an unknown array is encountered.
func (ee *ExprEvaluator) Evaluate(expr Expr) (*ConstantExpr, error) {
	switch expr := expr.(type) {
	case *ConstantExpr:
		return expr, nil
	case *BinaryExpr:
		lhs, err := ee.Evaluate(expr.LHS)
		if err != nil {
			return nil, err
		}
		rhs, err := ee.Evaluate(expr.RHS)
		if err != nil {
			return nil, err
		}
		return NewBinaryExpr(expr.Op, lhs, rhs).(*ConstantExpr), nil
	case *CastExpr:
		src, err := ee.Evaluate(expr.Src)
		if err != nil {
			return nil, err
		}
		return NewCastExpr(src, expr.Width, expr.Signed).(*ConstantExpr), nil
	case *ConcatExpr:
		msb, err := ee.Evaluate(expr.MSB)
		if err != nil {
			return nil, err
		}
		lsb, err := ee.Evaluate(expr.LSB)
		if err != nil {
			return nil, err
		}
		return msb.Concat(lsb), nil
	case *ExtractExpr:
		src, err := ee.Evaluate(expr.Expr)
		if err != nil {
			return nil, err
		}
		return src.Extract(expr.Offset, expr.Width), nil
	case *NotExpr:
		src, err := ee.Evaluate(expr.Expr)
		if err != nil {
			return nil, err
		}
		return src.Not(), nil
	case *SelectExpr:
		i, err := ee.Evaluate(expr.Index)
		if err != nil {
			return nil, err
		}

		// Most recent update to the index wins.
		for upd := expr.Array.Updates; upd != nil; upd = upd.Next {
			index, err := ee.Evaluate(upd.Index)
			if err != nil {
				return nil, err
			} else if index.Value == i.Value {
				return ee.Evaluate(upd.Value)
			}
		}

		if expr.Array.Zeroed {
			return NewConstantExpr(0, Width8), nil
		}
		initial, ok := ee.m[expr.Array.ID]
		if !ok {
			return nil, fmt.Errorf("array not bound: id=%d", expr.Array.ID)
		} else if i.Value >= uint64(len(initial)) {
			return NewConstantExpr(0, Width8), nil
		}
		return NewConstantExpr(uint64(initial[i.Value]), Width8), nil
	default:
		return nil, fmt.Errorf("invalid expression type: %T", expr)
	}
}

// minBytes returns smallest number of bytes in which the w fits.
func minBytes(bits uint) uint {
	return (bits + 7) / 8
}
