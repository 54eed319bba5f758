package glee

import (
	"fmt"
)

// Array represents a byte array with a persistent history of updates.
//
// The base contents of a Zeroed array are all zero. Otherwise every base
// byte is an unconstrained symbol.
type Array struct {
	ID      uint64       // unique id
	Size    uint         // width, in bytes
	Zeroed  bool         // base contents are zero
	Updates *ArrayUpdate // linked list of updates, newest first
}

// NewArray returns a new Array of the given size.
func NewArray(id uint64, size uint) *Array {
	return &Array{
		ID:   id,
		Size: size,
	}
}

// String returns a string representation of the array.
func (a *Array) String() string {
	if a.Zeroed {
		return fmt.Sprintf("(array #%d %d zero)", a.ID, a.Size)
	}
	return fmt.Sprintf("(array #%d %d)", a.ID, a.Size)
}

// Clone returns a copy of the array. The update chain is shared.
func (a *Array) Clone() *Array {
	other := *a
	return &other
}

// Resize returns a copy of the array with a new size. Contents are kept.
func (a *Array) Resize(size uint) *Array {
	other := a.Clone()
	other.Size = size
	return other
}

// Select reads a value from the array.
func (a *Array) Select(offset Expr, width uint, isLittleEndian bool) Expr {
	assert(width > 0, "select: invalid width")

	offset = newZExtExpr(offset, Width64)

	if width == WidthBool {
		return NewExtractExpr(a.selectByte(offset), 0, WidthBool)
	}

	// Handle read byte-by-byte.
	var result Expr
	for i, n := uint64(0), uint64(minBytes(width)); i != n; i++ {
		byteOffset := i
		if !isLittleEndian {
			byteOffset = (n - i - 1)
		}

		value := a.selectByte(NewBinaryExpr(ADD, offset, NewConstantExpr64(byteOffset)))
		if i == 0 {
			result = value
		} else {
			result = NewConcatExpr(value, result)
		}
	}
	return newZExtExpr(result, width)
}

// selectByte reads a single byte from the array.
//
// Attempts to find a concrete value by traversing the array update history.
// Falls back to a select expression if either the selected index or an update's
// index is symbolic.
func (a *Array) selectByte(index Expr) Expr {
	assert(ExprWidth(index) == 64, "selectByte: invalid array index width: %d", ExprWidth(index))
	for upd := a.Updates; upd != nil; upd = upd.Next {
		cond, ok := NewBinaryExpr(EQ, index, upd.Index).(*ConstantExpr)
		if !ok {
			return NewSelectExpr(a, index)
		} else if cond.IsTrue() {
			return upd.Value
		}
	}
	if a.Zeroed && IsConstantExpr(index) {
		return NewConstantExpr(0, Width8)
	}
	return NewSelectExpr(a, index)
}

// Store writes a value at an offset. Returns a new copy of the array.
func (a *Array) Store(offset, value Expr, isLittleEndian bool) *Array {
	other := a.Clone()

	offset = newZExtExpr(offset, Width64)

	// Treat bool specially, it is the only non-byte sized write we allow.
	width := ExprWidth(value)
	assert(width > 0, "store: invalid width")
	if width == WidthBool {
		other.storeByte(offset, value)
		return other
	}

	n := uint64(minBytes(width))
	value = newZExtExpr(value, uint(n*8))
	for i := uint64(0); i != n; i++ {
		byteOffset := i
		if !isLittleEndian {
			byteOffset = (n - i - 1)
		}
		other.storeByte(NewBinaryExpr(ADD, offset, NewConstantExpr64(byteOffset)), NewExtractExpr(value, uint(i*8), Width8))
	}
	return other
}

// storeByte writes a single byte to the array. Only a's own head pointer is
// changed; update nodes shared with other arrays are never modified.
func (a *Array) storeByte(index, value Expr) {
	assert(ExprWidth(index) == 64, "storeByte: invalid array index width: %d", ExprWidth(index))

	// Verify constant is not out of bounds.
	if index, ok := index.(*ConstantExpr); ok {
		assert(index.Value < uint64(a.Size), "storeByte: index out of bounds: %d < %d", index.Value, a.Size)
		a.Updates = NewArrayUpdate(index, value, withoutIndex(a.Updates, index.Value))
		return
	}
	a.Updates = NewArrayUpdate(index, value, a.Updates)
}

// withoutIndex returns the chain with earlier writes to a concrete index
// dropped. Only the concrete prefix of the chain is rewritten.
func withoutIndex(upd *ArrayUpdate, index uint64) *ArrayUpdate {
	if upd == nil {
		return nil
	}
	updIndex, ok := upd.Index.(*ConstantExpr)
	if !ok {
		return upd
	} else if updIndex.Value == index {
		return upd.Next // at most one match in a concrete prefix
	}

	next := withoutIndex(upd.Next, index)
	if next == upd.Next {
		return upd
	}
	return &ArrayUpdate{Index: upd.Index, Value: upd.Value, Next: next}
}

// CompareArray returns an integer comparing two arrays.
// The result will be 0 if a==b, -1 if a < b, and +1 if a > b.
func CompareArray(a, b *Array) int {
	if a == nil && b != nil {
		return -1
	} else if a != nil && b == nil {
		return 1
	} else if a == b {
		return 0
	}

	if a.ID < b.ID {
		return -1
	} else if a.ID > b.ID {
		return 1
	}

	if a.Size < b.Size {
		return -1
	} else if a.Size > b.Size {
		return 1
	}

	if a.Zeroed != b.Zeroed {
		if !a.Zeroed {
			return -1
		}
		return 1
	}

	return CompareArrayUpdate(a.Updates, b.Updates)
}

// ArrayUpdate represents an update to a single byte of an array.
type ArrayUpdate struct {
	Index Expr // byte index of update
	Value Expr // byte value to update

	Next *ArrayUpdate // linked list of next update
}

// NewArrayUpdate returns a new instance of ArrayUpdate.
func NewArrayUpdate(index, value Expr, next *ArrayUpdate) *ArrayUpdate {
	return &ArrayUpdate{
		Index: newZExtExpr(index, Width64),
		Value: newZExtExpr(value, Width8),
		Next:  next,
	}
}

// CompareArrayUpdate returns an integer comparing two array updates.
// The result will be 0 if a==b, -1 if a < b, and +1 if a > b.
func CompareArrayUpdate(a, b *ArrayUpdate) int {
	for {
		if a == b {
			return 0
		} else if a == nil {
			return -1
		} else if b == nil {
			return 1
		}

		if cmp := CompareExpr(a.Index, b.Index); cmp != 0 {
			return cmp
		} else if cmp := CompareExpr(a.Value, b.Value); cmp != 0 {
			return cmp
		}
		a, b = a.Next, b.Next
	}
}
