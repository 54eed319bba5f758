// Package sat implements a glee.Solver by bit-blasting expressions into a
// boolean circuit and solving it with the gini SAT solver.
package sat

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-air/gini"
	"github.com/go-air/gini/logic"
	"github.com/go-air/gini/z"
	"github.com/symforge/glee"
)

// Ensure solver implements interface.
var _ glee.Solver = (*Solver)(nil)

// Solver is a pure Go bit-vector solver. It is safe for concurrent use; each
// call builds its own circuit.
type Solver struct {
	mu    sync.Mutex
	stats Stats

	// Limits the search of a single call. A call that runs out of time
	// returns glee.ErrSolverTimeout. Zero means no limit.
	Timeout time.Duration
}

// NewSolver returns a new instance of Solver.
func NewSolver() *Solver {
	return &Solver{}
}

// Stats returns statistics for the solver.
func (s *Solver) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Stats holds solver statistics.
type Stats struct {
	SolveN    int
	SolveTime time.Duration
	TimeoutN  int
}

// Solve returns true if the conjunction of constraints is satisfiable. If it
// is, the initial contents of each of arrays are returned.
func (s *Solver) Solve(constraints []glee.Expr, arrays []*glee.Array) (satisfiable bool, values [][]byte, err error) {
	t := time.Now()
	defer func() {
		s.mu.Lock()
		s.stats.SolveN++
		s.stats.SolveTime += time.Since(t)
		s.mu.Unlock()
	}()

	b := newBlaster()
	roots := make([]z.Lit, 0, len(constraints))
	for _, expr := range constraints {
		if w := glee.ExprWidth(expr); w != glee.WidthBool {
			return false, nil, fmt.Errorf("sat: constraint width must be 1, got %d: %s", w, expr)
		}
		root := b.blast(expr)[0]
		if root == b.c.F {
			return false, nil, nil
		}
		roots = append(roots, root)
	}
	roots = append(roots, b.assertions...)

	g := gini.New()
	b.c.ToCnf(g)

	// Register every input with the solver so it has a model value.
	for _, m := range b.inputs {
		g.Add(b.c.T)
		g.Add(m)
		g.Add(0)
	}
	g.Assume(b.c.T)
	g.Assume(roots...)

	var result int
	if s.Timeout > 0 {
		result = g.Try(s.Timeout)
	} else {
		result = g.Solve()
	}

	switch result {
	case 1:
	case -1:
		return false, nil, nil
	case 0:
		if s.Timeout > 0 {
			s.mu.Lock()
			s.stats.TimeoutN++
			s.mu.Unlock()
			return false, nil, glee.ErrSolverTimeout
		}
		return false, nil, glee.ErrSolverUnknown
	default:
		return false, nil, glee.ErrSolverUnknown
	}

	if len(arrays) == 0 {
		return true, nil, nil // no symbolics, ignore model
	}
	return true, b.model(g, arrays), nil
}

// blaster translates expressions into circuit literals, least significant
// bit first.
type blaster struct {
	c          *logic.C
	cache      map[glee.Expr][]z.Lit
	inputs     []z.Lit
	assertions []z.Lit

	reads      map[uint64][]baseRead
	constReads map[constRead][]z.Lit
}

// baseRead is a byte read from the initial contents of an array.
type baseRead struct {
	index []z.Lit
	value []z.Lit
}

type constRead struct {
	array uint64
	index uint64
}

func newBlaster() *blaster {
	return &blaster{
		c:          logic.NewC(),
		cache:      make(map[glee.Expr][]z.Lit),
		reads:      make(map[uint64][]baseRead),
		constReads: make(map[constRead][]z.Lit),
	}
}

func (b *blaster) blast(expr glee.Expr) []z.Lit {
	if bits, ok := b.cache[expr]; ok {
		return bits
	}

	var bits []z.Lit
	switch expr := expr.(type) {
	case *glee.ConstantExpr:
		bits = b.constant(expr.Value, expr.Width)
	case *glee.NotExpr:
		bits = not(b.blast(expr.Expr))
	case *glee.ConcatExpr:
		lsb, msb := b.blast(expr.LSB), b.blast(expr.MSB)
		bits = append(append(make([]z.Lit, 0, len(lsb)+len(msb)), lsb...), msb...)
	case *glee.ExtractExpr:
		bits = b.blast(expr.Expr)[expr.Offset : expr.Offset+expr.Width]
	case *glee.CastExpr:
		bits = b.cast(b.blast(expr.Src), expr.Width, expr.Signed)
	case *glee.SelectExpr:
		bits = b.read(expr.Array, expr.Array.Updates, b.blast(expr.Index))
	case *glee.BinaryExpr:
		bits = b.binary(expr.Op, b.blast(expr.LHS), b.blast(expr.RHS))
	default:
		panic(fmt.Sprintf("sat: unexpected expr: %T", expr))
	}

	b.cache[expr] = bits
	return bits
}

func (b *blaster) binary(op glee.BinaryOp, x, y []z.Lit) []z.Lit {
	switch op {
	case glee.ADD:
		sum, _ := b.add(x, y, b.c.F)
		return sum
	case glee.SUB:
		return b.sub(x, y)
	case glee.MUL:
		return b.mul(x, y)
	case glee.UDIV:
		q, _ := b.udivrem(x, y)
		return q
	case glee.UREM:
		_, r := b.udivrem(x, y)
		return r
	case glee.SDIV:
		q, _ := b.udivrem(b.abs(x), b.abs(y))
		return b.muxBits(b.xor(msb(x), msb(y)), b.neg(q), q)
	case glee.SREM:
		_, r := b.udivrem(b.abs(x), b.abs(y))
		return b.muxBits(msb(x), b.neg(r), r)
	case glee.AND:
		return b.zip(x, y, b.and)
	case glee.OR:
		return b.zip(x, y, b.or)
	case glee.XOR:
		return b.zip(x, y, b.xor)
	case glee.SHL:
		return b.shift(x, y, shiftLeft)
	case glee.LSHR:
		return b.shift(x, y, shiftRightLogical)
	case glee.ASHR:
		return b.shift(x, y, shiftRightArithmetic)
	case glee.EQ:
		return []z.Lit{b.eq(x, y)}
	case glee.NE:
		return []z.Lit{b.eq(x, y).Not()}
	case glee.ULT:
		return []z.Lit{b.ult(x, y)}
	case glee.ULE:
		return []z.Lit{b.ult(y, x).Not()}
	case glee.UGT:
		return []z.Lit{b.ult(y, x)}
	case glee.UGE:
		return []z.Lit{b.ult(x, y).Not()}
	case glee.SLT:
		return []z.Lit{b.slt(x, y)}
	case glee.SLE:
		return []z.Lit{b.slt(y, x).Not()}
	case glee.SGT:
		return []z.Lit{b.slt(y, x)}
	case glee.SGE:
		return []z.Lit{b.slt(x, y).Not()}
	default:
		panic(fmt.Sprintf("sat: unexpected binary op: %s", op))
	}
}

func (b *blaster) constant(value uint64, width uint) []z.Lit {
	bits := make([]z.Lit, width)
	for i := range bits {
		if value&(1<<uint(i)) != 0 {
			bits[i] = b.c.T
		} else {
			bits[i] = b.c.F
		}
	}
	return bits
}

func (b *blaster) input(width int) []z.Lit {
	bits := make([]z.Lit, width)
	for i := range bits {
		bits[i] = b.c.Lit()
		b.inputs = append(b.inputs, bits[i])
	}
	return bits
}

func (b *blaster) cast(bits []z.Lit, width uint, signed bool) []z.Lit {
	if width <= uint(len(bits)) {
		return bits[:width]
	}
	fill := b.c.F
	if signed {
		fill = msb(bits)
	}
	other := append(make([]z.Lit, 0, width), bits...)
	for uint(len(other)) < width {
		other = append(other, fill)
	}
	return other
}

// read returns the byte at index after applying the updates, newest first.
func (b *blaster) read(array *glee.Array, upd *glee.ArrayUpdate, index []z.Lit) []z.Lit {
	if upd == nil {
		return b.baseRead(array, index)
	}

	cond := b.eq(index, b.blast(upd.Index))
	switch cond {
	case b.c.T:
		return b.blast(upd.Value)
	case b.c.F:
		return b.read(array, upd.Next, index)
	}
	return b.muxBits(cond, b.blast(upd.Value), b.read(array, upd.Next, index))
}

// baseRead returns the initial byte of an array at index. Reads at indices
// that may be equal are constrained to return equal bytes.
func (b *blaster) baseRead(array *glee.Array, index []z.Lit) []z.Lit {
	if array.Zeroed {
		return b.constant(0, glee.Width8)
	}

	constIndex, isConst := b.constValue(index)
	if isConst {
		if value, ok := b.constReads[constRead{array.ID, constIndex}]; ok {
			return value
		}
	}

	value := b.input(glee.Width8)
	for _, prev := range b.reads[array.ID] {
		same := b.eq(index, prev.index)
		if same == b.c.F {
			continue
		}
		b.assertions = append(b.assertions, b.or(same.Not(), b.eq(value, prev.value)))
	}
	b.reads[array.ID] = append(b.reads[array.ID], baseRead{index: index, value: value})
	if isConst {
		b.constReads[constRead{array.ID, constIndex}] = value
	}
	return value
}

// constValue returns the value of bits if every bit is a constant.
func (b *blaster) constValue(bits []z.Lit) (uint64, bool) {
	var v uint64
	for i, m := range bits {
		switch m {
		case b.c.T:
			v |= 1 << uint(i)
		case b.c.F:
		default:
			return 0, false
		}
	}
	return v, true
}

// model extracts the initial contents of arrays from a satisfied solver.
func (b *blaster) model(g *gini.Gini, arrays []*glee.Array) [][]byte {
	values := make([][]byte, len(arrays))
	for i, array := range arrays {
		values[i] = make([]byte, array.Size)
		for _, r := range b.reads[array.ID] {
			if index := b.value(g, r.index); index < uint64(array.Size) {
				values[i][index] = byte(b.value(g, r.value))
			}
		}
	}
	return values
}

func (b *blaster) value(g *gini.Gini, bits []z.Lit) uint64 {
	var v uint64
	for i, m := range bits {
		if i >= glee.Width64 {
			break
		}
		var set bool
		switch m {
		case b.c.T:
			set = true
		case b.c.F:
			set = false
		default:
			set = g.Value(m)
		}
		if set {
			v |= 1 << uint(i)
		}
	}
	return v
}
