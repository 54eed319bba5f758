package glee

import (
	"bytes"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/benbjohnson/immutable"
	"github.com/cespare/xxhash/v2"
	"github.com/tidwall/tinylru"
)

// Solver represents a constraint solver.
type Solver interface {
	// Solve returns true if constraints are satisfiable. If satisfiable, the
	// initial contents of each requested array are returned.
	Solve(constraints []Expr, arrays []*Array) (satisfiable bool, values [][]byte, err error)
}

// Constraint restricts a newly created symbolic value.
type Constraint func(value Expr) Expr

// Space is the set of constraints accumulated along a path. Values created
// by a space are only meaningful within that space and its successors.
type Space interface {
	PointerWidth() uint
	IsLittleEndian() bool

	// CreateConstant returns a concrete value of the given width.
	CreateConstant(width uint, value uint64) Expr

	// CreateSymbolic returns a fresh unconstrained value and adds the
	// conjunction of constraints applied to it.
	CreateSymbolic(width uint, name string, constraints ...Constraint) Expr

	// CreateGarbage returns an array of size bytes with unknown contents.
	CreateGarbage(size uint) *Array

	// Evaluate reports whether cond can hold and whether it can fail,
	// along with the spaces narrowed by cond and by its negation.
	Evaluate(cond Expr) (Proposition, error)

	// Example returns a satisfying assignment of the named symbols.
	Example() (map[string]uint64, error)
}

// Proposition is the result of evaluating a condition in a space. A branch
// space is nil when the branch is impossible.
type Proposition struct {
	CanBeTrue  bool
	CanBeFalse bool
	TrueSpace  Space
	FalseSpace Space
}

// Definite returns true if exactly one outcome is possible.
func (p Proposition) Definite() bool {
	return p.CanBeTrue != p.CanBeFalse
}

// Symbol is a named symbolic value created within a space.
type Symbol struct {
	Name  string
	Value Expr
}

// ConstraintSpace is a Space backed by a persistent list of constraints.
// Successor spaces share the solver, array ids, the query cache and stats.
type ConstraintSpace struct {
	shared      *spaceShared
	constraints *immutable.List[constraint]
	symbols     *immutable.List[Symbol]
}

type spaceShared struct {
	solver Solver
	target Target
	nextID atomic.Uint64
	cache  *queryCache
	stats  SpaceStats
}

// constraint is a path condition with the ids of the arrays it reads.
type constraint struct {
	expr   Expr
	arrays []uint64
}

var _ Space = (*ConstraintSpace)(nil)

// NewConstraintSpace returns an empty space. Query results are cached when
// cacheSize is positive.
func NewConstraintSpace(solver Solver, target Target, cacheSize int) *ConstraintSpace {
	shared := &spaceShared{solver: solver, target: target}
	if cacheSize > 0 {
		shared.cache = newQueryCache(cacheSize)
	}
	return &ConstraintSpace{
		shared:      shared,
		constraints: immutable.NewList[constraint](),
		symbols:     immutable.NewList[Symbol](),
	}
}

// Stats returns the query statistics shared by every space derived from the
// same root.
func (s *ConstraintSpace) Stats() *SpaceStats { return &s.shared.stats }

// PointerWidth returns the target pointer width, in bits.
func (s *ConstraintSpace) PointerWidth() uint { return s.shared.target.PointerWidth }

// IsLittleEndian returns true if the target stores the least significant byte first.
func (s *ConstraintSpace) IsLittleEndian() bool { return s.shared.target.LittleEndian }

// CreateConstant returns a constant expression.
func (s *ConstraintSpace) CreateConstant(width uint, value uint64) Expr {
	return NewConstantExpr(value, width)
}

// CreateSymbolic returns a new symbolic value of width bits.
func (s *ConstraintSpace) CreateSymbolic(width uint, name string, constraints ...Constraint) Expr {
	array := s.CreateGarbage(minBytes(width))
	value := array.Select(NewConstantExpr64(0), width, s.IsLittleEndian())
	if name != "" {
		s.symbols = s.symbols.Append(Symbol{Name: name, Value: value})
	}
	for _, fn := range constraints {
		s.constraints = appendConstraint(s.constraints, fn(value))
	}
	return value
}

// CreateGarbage returns a new array with unconstrained contents.
func (s *ConstraintSpace) CreateGarbage(size uint) *Array {
	return NewArray(s.shared.nextID.Add(1), size)
}

// Constraints returns the path condition as a list of expressions.
func (s *ConstraintSpace) Constraints() []Expr {
	a := make([]Expr, 0, s.constraints.Len())
	itr := s.constraints.Iterator()
	for !itr.Done() {
		_, c := itr.Next()
		a = append(a, c.expr)
	}
	return a
}

// Symbols returns the named symbols created in this space.
func (s *ConstraintSpace) Symbols() []Symbol {
	a := make([]Symbol, 0, s.symbols.Len())
	itr := s.symbols.Iterator()
	for !itr.Done() {
		_, sym := itr.Next()
		a = append(a, sym)
	}
	return a
}

// Evaluate evaluates a boolean condition against the space.
func (s *ConstraintSpace) Evaluate(cond Expr) (Proposition, error) {
	assert(ExprWidth(cond) == WidthBool, "evaluate: non-boolean condition: %s", cond)

	if cond, ok := cond.(*ConstantExpr); ok {
		if cond.IsTrue() {
			return Proposition{CanBeTrue: true, TrueSpace: s}, nil
		}
		return Proposition{CanBeFalse: true, FalseSpace: s}, nil
	}

	notCond := NewBinaryExpr(EQ, NewBoolConstantExpr(false), cond)
	related := s.related(cond)

	canBeTrue, err := s.check(related, cond)
	if err != nil {
		return Proposition{}, err
	}

	// The space itself is satisfiable so one of the branches must be.
	canBeFalse := true
	if canBeTrue {
		if canBeFalse, err = s.check(related, notCond); err != nil {
			return Proposition{}, err
		}
	}

	var p Proposition
	switch {
	case canBeTrue && canBeFalse:
		p.CanBeTrue, p.TrueSpace = true, s.with(cond)
		p.CanBeFalse, p.FalseSpace = true, s.with(notCond)
	case canBeTrue:
		p.CanBeTrue, p.TrueSpace = true, s
	default:
		p.CanBeFalse, p.FalseSpace = true, s
	}
	return p, nil
}

// Example solves the space and returns a value for each named symbol.
func (s *ConstraintSpace) Example() (map[string]uint64, error) {
	symbols := s.Symbols()
	constraints := s.Constraints()

	exprs := make([]Expr, 0, len(constraints)+len(symbols))
	exprs = append(exprs, constraints...)
	for _, sym := range symbols {
		exprs = append(exprs, sym.Value)
	}
	arrays := FindArrays(exprs...)

	s.shared.stats.QueryN.Add(1)
	satisfiable, values, err := s.shared.solver.Solve(constraints, arrays)
	if err != nil {
		return nil, err
	} else if !satisfiable {
		return nil, ErrUnsatisfiable
	}

	eval := NewExprEvaluator(arrays, values)
	m := make(map[string]uint64, len(symbols))
	for _, sym := range symbols {
		v, err := eval.Evaluate(sym.Value)
		if err != nil {
			return nil, err
		}
		m[sym.Name] = v.Value
	}
	return m, nil
}

// with returns a successor space constrained by cond.
func (s *ConstraintSpace) with(cond Expr) *ConstraintSpace {
	return &ConstraintSpace{
		shared:      s.shared,
		constraints: appendConstraint(s.constraints, cond),
		symbols:     s.symbols,
	}
}

// related returns the constraints that transitively share arrays with expr.
// Constraints over unrelated arrays cannot affect its satisfiability.
func (s *ConstraintSpace) related(expr Expr) []Expr {
	ids := make(map[uint64]struct{})
	for _, array := range FindArrays(expr) {
		ids[array.ID] = struct{}{}
	}

	pending := make([]constraint, 0, s.constraints.Len())
	itr := s.constraints.Iterator()
	for !itr.Done() {
		_, c := itr.Next()
		pending = append(pending, c)
	}

	var a []Expr
	for changed := true; changed; {
		changed = false
		for i := 0; i < len(pending); i++ {
			if !sharesArray(ids, pending[i].arrays) {
				continue
			}
			for _, id := range pending[i].arrays {
				ids[id] = struct{}{}
			}
			a = append(a, pending[i].expr)
			pending = append(pending[:i], pending[i+1:]...)
			i--
			changed = true
		}
	}
	return a
}

func sharesArray(ids map[uint64]struct{}, arrays []uint64) bool {
	for _, id := range arrays {
		if _, ok := ids[id]; ok {
			return true
		}
	}
	return false
}

// check returns true if query is satisfiable together with constraints.
func (s *ConstraintSpace) check(constraints []Expr, query Expr) (bool, error) {
	exprs := append(append(make([]Expr, 0, len(constraints)+1), constraints...), query)

	var key string
	if s.shared.cache != nil {
		key = canonicalQuery(exprs)
		if satisfiable, ok := s.shared.cache.get(key); ok {
			s.shared.stats.CacheHitN.Add(1)
			return satisfiable, nil
		}
	}

	s.shared.stats.QueryN.Add(1)
	satisfiable, _, err := s.shared.solver.Solve(exprs, nil)
	if err != nil {
		return false, err
	}

	if s.shared.cache != nil {
		s.shared.cache.set(key, satisfiable)
	}
	return satisfiable, nil
}

// appendConstraint adds expr to the list. Conjunctions are split into
// separate constraints so that unrelated halves stay independent.
func appendConstraint(l *immutable.List[constraint], expr Expr) *immutable.List[constraint] {
	if expr, ok := expr.(*ConstantExpr); ok {
		assert(expr.IsTrue(), "invalid false constraint")
		return l
	}
	if expr, ok := expr.(*BinaryExpr); ok && expr.Op == AND && ExprWidth(expr) == WidthBool {
		return appendConstraint(appendConstraint(l, expr.LHS), expr.RHS)
	}

	arrays := FindArrays(expr)
	ids := make([]uint64, len(arrays))
	for i := range arrays {
		ids[i] = arrays[i].ID
	}
	return l.Append(constraint{expr: expr, arrays: ids})
}

// SpaceStats holds solver query statistics.
type SpaceStats struct {
	QueryN    atomic.Int64 // solver invocations
	CacheHitN atomic.Int64 // queries answered by the cache
}

// queryCache maps canonical query text to satisfiability.
type queryCache struct {
	lru tinylru.LRU
}

type queryCacheEntry struct {
	text        string
	satisfiable bool
}

func newQueryCache(size int) *queryCache {
	c := &queryCache{}
	c.lru.Resize(size)
	return c
}

func (c *queryCache) get(text string) (satisfiable, ok bool) {
	v, ok := c.lru.Get(xxhash.Sum64String(text))
	if !ok {
		return false, false
	}
	entry := v.(queryCacheEntry)
	if entry.text != text {
		return false, false // hash collision
	}
	return entry.satisfiable, true
}

func (c *queryCache) set(text string, satisfiable bool) {
	c.lru.Set(xxhash.Sum64String(text), queryCacheEntry{text: text, satisfiable: satisfiable})
}

// canonicalQuery returns a text form of exprs that, unlike String(),
// includes array update chains. Shared chain nodes are written once and
// referenced by number afterwards.
func canonicalQuery(exprs []Expr) string {
	w := canonicalWriter{updates: make(map[*ArrayUpdate]int)}
	for _, expr := range exprs {
		w.writeExpr(expr)
		w.buf.WriteByte('\n')
	}
	return w.buf.String()
}

type canonicalWriter struct {
	buf     bytes.Buffer
	updates map[*ArrayUpdate]int
}

func (w *canonicalWriter) writeExpr(expr Expr) {
	switch expr := expr.(type) {
	case *ConstantExpr:
		w.buf.WriteString(strconv.FormatUint(expr.Value, 16))
		w.buf.WriteByte(':')
		w.buf.WriteString(strconv.FormatUint(uint64(expr.Width), 10))
	case *BinaryExpr:
		w.buf.WriteByte('(')
		w.buf.WriteString(expr.Op.String())
		w.buf.WriteByte(' ')
		w.writeExpr(expr.LHS)
		w.buf.WriteByte(' ')
		w.writeExpr(expr.RHS)
		w.buf.WriteByte(')')
	case *CastExpr:
		fmt.Fprintf(&w.buf, "(cast %d %t ", expr.Width, expr.Signed)
		w.writeExpr(expr.Src)
		w.buf.WriteByte(')')
	case *ConcatExpr:
		w.buf.WriteString("(concat ")
		w.writeExpr(expr.MSB)
		w.buf.WriteByte(' ')
		w.writeExpr(expr.LSB)
		w.buf.WriteByte(')')
	case *ExtractExpr:
		fmt.Fprintf(&w.buf, "(extract %d %d ", expr.Offset, expr.Width)
		w.writeExpr(expr.Expr)
		w.buf.WriteByte(')')
	case *NotExpr:
		w.buf.WriteString("(not ")
		w.writeExpr(expr.Expr)
		w.buf.WriteByte(')')
	case *SelectExpr:
		fmt.Fprintf(&w.buf, "(select #%d %t ", expr.Array.ID, expr.Array.Zeroed)
		w.writeUpdates(expr.Array.Updates)
		w.buf.WriteByte(' ')
		w.writeExpr(expr.Index)
		w.buf.WriteByte(')')
	default:
		panic(fmt.Sprintf("unexpected expr: %T", expr))
	}
}

func (w *canonicalWriter) writeUpdates(upd *ArrayUpdate) {
	w.buf.WriteByte('[')
	for ; upd != nil; upd = upd.Next {
		if n, ok := w.updates[upd]; ok {
			fmt.Fprintf(&w.buf, "@%d", n)
			break
		}
		w.updates[upd] = len(w.updates)

		w.buf.WriteByte('{')
		w.writeExpr(upd.Index)
		w.buf.WriteByte('=')
		w.writeExpr(upd.Value)
		w.buf.WriteByte('}')
	}
	w.buf.WriteByte(']')
}
