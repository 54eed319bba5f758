package sat

import (
	"github.com/go-air/gini/z"
)

func (b *blaster) and(x, y z.Lit) z.Lit {
	switch {
	case x == b.c.F || y == b.c.F:
		return b.c.F
	case x == b.c.T:
		return y
	case y == b.c.T:
		return x
	case x == y:
		return x
	case x == y.Not():
		return b.c.F
	}
	return b.c.And(x, y)
}

func (b *blaster) or(x, y z.Lit) z.Lit {
	return b.and(x.Not(), y.Not()).Not()
}

func (b *blaster) xor(x, y z.Lit) z.Lit {
	return b.or(b.and(x, y.Not()), b.and(x.Not(), y))
}

// mux returns t if s is true, otherwise f.
func (b *blaster) mux(s, t, f z.Lit) z.Lit {
	switch {
	case s == b.c.T || t == f:
		return t
	case s == b.c.F:
		return f
	}
	return b.or(b.and(s, t), b.and(s.Not(), f))
}

func (b *blaster) muxBits(s z.Lit, t, f []z.Lit) []z.Lit {
	bits := make([]z.Lit, len(t))
	for i := range bits {
		bits[i] = b.mux(s, t[i], f[i])
	}
	return bits
}

func (b *blaster) zip(x, y []z.Lit, fn func(z.Lit, z.Lit) z.Lit) []z.Lit {
	bits := make([]z.Lit, len(x))
	for i := range bits {
		bits[i] = fn(x[i], y[i])
	}
	return bits
}

func not(x []z.Lit) []z.Lit {
	bits := make([]z.Lit, len(x))
	for i := range bits {
		bits[i] = x[i].Not()
	}
	return bits
}

func msb(x []z.Lit) z.Lit {
	return x[len(x)-1]
}

// add returns the ripple-carry sum of x, y and carry, and the carry out.
func (b *blaster) add(x, y []z.Lit, carry z.Lit) ([]z.Lit, z.Lit) {
	sum := make([]z.Lit, len(x))
	for i := range sum {
		t := b.xor(x[i], y[i])
		sum[i] = b.xor(t, carry)
		carry = b.or(b.and(x[i], y[i]), b.and(carry, t))
	}
	return sum, carry
}

func (b *blaster) sub(x, y []z.Lit) []z.Lit {
	diff, _ := b.add(x, not(y), b.c.T)
	return diff
}

func (b *blaster) neg(x []z.Lit) []z.Lit {
	return b.sub(b.constant(0, uint(len(x))), x)
}

func (b *blaster) abs(x []z.Lit) []z.Lit {
	return b.muxBits(msb(x), b.neg(x), x)
}

// mul returns the truncated shift-add product of x and y.
func (b *blaster) mul(x, y []z.Lit) []z.Lit {
	w := len(x)
	acc := b.constant(0, uint(w))
	for i := 0; i < w; i++ {
		if y[i] == b.c.F {
			continue
		}
		shifted := make([]z.Lit, w)
		for j := range shifted {
			if j < i {
				shifted[j] = b.c.F
			} else {
				shifted[j] = x[j-i]
			}
		}
		sum, _ := b.add(acc, shifted, b.c.F)
		acc = b.muxBits(y[i], sum, acc)
	}
	return acc
}

// udivrem returns the quotient and remainder of restoring division. A zero
// divisor yields an all ones quotient and a remainder of x.
func (b *blaster) udivrem(x, y []z.Lit) (q, r []z.Lit) {
	w := len(x)
	divisor := append(append(make([]z.Lit, 0, w+1), y...), b.c.F)

	q = make([]z.Lit, w)
	r = b.constant(0, uint(w+1))
	for i := w - 1; i >= 0; i-- {
		// r = r<<1 | x[i]
		shifted := make([]z.Lit, w+1)
		shifted[0] = x[i]
		copy(shifted[1:], r[:w])

		diff, noBorrow := b.add(shifted, not(divisor), b.c.T)
		q[i] = noBorrow
		r = b.muxBits(noBorrow, diff, shifted)
	}
	return q, r[:w]
}

type shiftKind int

const (
	shiftLeft shiftKind = iota
	shiftRightLogical
	shiftRightArithmetic
)

// shift returns a barrel shift of x by amount. Shifting by the width or
// more yields zero, or the sign for arithmetic shifts.
func (b *blaster) shift(x, amount []z.Lit, kind shiftKind) []z.Lit {
	w := len(x)
	fill := b.c.F
	if kind == shiftRightArithmetic {
		fill = msb(x)
	}

	overflow := b.c.F
	for k, s := range amount {
		n := 1 << uint(k)
		if k >= 63 || n >= w {
			overflow = b.or(overflow, s)
			continue
		}

		shifted := make([]z.Lit, w)
		for i := range shifted {
			var j int
			if kind == shiftLeft {
				j = i - n
			} else {
				j = i + n
			}
			if j >= 0 && j < w {
				shifted[i] = x[j]
			} else {
				shifted[i] = fill
			}
		}
		x = b.muxBits(s, shifted, x)
	}

	fills := make([]z.Lit, w)
	for i := range fills {
		fills[i] = fill
	}
	return b.muxBits(overflow, fills, x)
}

func (b *blaster) eq(x, y []z.Lit) z.Lit {
	cond := b.c.T
	for i := range x {
		cond = b.and(cond, b.xor(x[i], y[i]).Not())
		if cond == b.c.F {
			break
		}
	}
	return cond
}

// ult is true when x - y borrows.
func (b *blaster) ult(x, y []z.Lit) z.Lit {
	_, noBorrow := b.add(x, not(y), b.c.T)
	return noBorrow.Not()
}

// slt compares with the sign bits flipped, which maps signed order onto
// unsigned order.
func (b *blaster) slt(x, y []z.Lit) z.Lit {
	fx := append(append(make([]z.Lit, 0, len(x)), x[:len(x)-1]...), msb(x).Not())
	fy := append(append(make([]z.Lit, 0, len(y)), y[:len(y)-1]...), msb(y).Not())
	return b.ult(fx, fy)
}
