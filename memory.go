package glee

import (
	"fmt"

	"github.com/benbjohnson/immutable"
)

// Section identifies the region a block of memory was allocated in. A block
// may only be freed or moved through the section it was allocated in.
type Section int

const (
	SectionStack Section = iota
	SectionHeap
	SectionGlobal
)

// String returns the name of the section.
func (s Section) String() string {
	switch s {
	case SectionStack:
		return "stack"
	case SectionHeap:
		return "heap"
	case SectionGlobal:
		return "global"
	default:
		return fmt.Sprintf("Section<%d>", int(s))
	}
}

// Block is a contiguous allocation at a possibly symbolic address.
type Block struct {
	Section Section
	Address Expr
	Size    uint64 // in bytes
	Data    *Array
}

// invalidBlock replaces freed blocks so that list positions stay stable.
var invalidBlock = &Block{}

func (b *Block) valid() bool { return b != invalidBlock }

// contains returns a condition that n bytes at offset lie within the block.
func (b *Block) contains(offset Expr, n uint64) Expr {
	if n > b.Size {
		return NewBoolConstantExpr(false)
	}
	return NewBinaryExpr(ULE, offset, NewConstantExpr(b.Size-n, ExprWidth(offset)))
}

// canFree returns true if address is certainly the base of the block.
func (b *Block) canFree(space Space, section Section, address Expr) (bool, error) {
	if !b.valid() || b.Section != section {
		return false, nil
	}
	p, err := space.Evaluate(NewBinaryExpr(EQ, b.Address, address))
	if err != nil {
		return false, err
	}
	return p.CanBeTrue && !p.CanBeFalse, nil
}

// Memory is a persistent collection of blocks. Every operation leaves the
// receiver untouched and returns a successor.
type Memory struct {
	alignment  uint64
	maxAddress uint64
	blocks     *immutable.List[*Block]
}

// NewMemory returns an empty memory for the target.
func NewMemory(target Target) *Memory {
	return &Memory{
		alignment:  target.Alignment,
		maxAddress: target.MaxAddress,
		blocks:     immutable.NewList[*Block](),
	}
}

// MaxAddress returns the highest address a block may end at.
func (m *Memory) MaxAddress() uint64 { return m.maxAddress }

// Allocate returns the address of a new block of size bits with unknown
// contents. The address is symbolic, constrained to be non-null, aligned,
// in range and disjoint from every live block.
func (m *Memory) Allocate(space Space, section Section, size uint) (Expr, *Memory) {
	return m.allocate(space, section, size, false)
}

// AllocateZeroed is like Allocate but the block contents start as zero.
func (m *Memory) AllocateZeroed(space Space, section Section, size uint) (Expr, *Memory) {
	return m.allocate(space, section, size, true)
}

func (m *Memory) allocate(space Space, section Section, size uint, zeroed bool) (Expr, *Memory) {
	n := uint64(minBytes(size))
	address := m.createAddress(space, n)

	data := space.CreateGarbage(uint(n))
	if zeroed {
		data = data.Clone()
		data.Zeroed = true
	}
	b := &Block{Section: section, Address: address, Size: n, Data: data}
	return address, &Memory{alignment: m.alignment, maxAddress: m.maxAddress, blocks: m.blocks.Append(b)}
}

func (m *Memory) createAddress(space Space, size uint64) Expr {
	width := space.PointerWidth()
	bound := func(address Expr, size uint64) Expr {
		return NewBinaryExpr(ADD, address, NewConstantExpr(size, width))
	}

	constraints := []Constraint{
		func(a Expr) Expr { return NewBinaryExpr(NE, a, NewConstantExpr(0, width)) },
		func(a Expr) Expr { return NewBinaryExpr(ULE, a, bound(a, size)) },
		func(a Expr) Expr { return NewBinaryExpr(ULE, bound(a, size), NewConstantExpr(m.maxAddress, width)) },
		func(a Expr) Expr {
			return NewBinaryExpr(EQ, NewBinaryExpr(UREM, a, NewConstantExpr(m.alignment, width)), NewConstantExpr(0, width))
		},
	}

	itr := m.blocks.Iterator()
	for !itr.Done() {
		_, b := itr.Next()
		if !b.valid() {
			continue
		}
		constraints = append(constraints, func(a Expr) Expr {
			return NewBinaryExpr(OR,
				NewBinaryExpr(ULE, bound(a, size), b.Address),
				NewBinaryExpr(ULE, bound(b.Address, b.Size), a),
			)
		})
	}
	return space.CreateSymbolic(width, "", constraints...)
}

// Move reallocates the block based at address to a new address with a new
// size in bits. Contents are kept.
func (m *Memory) Move(space Space, section Section, address Expr, size uint) (Expr, *Memory, error) {
	for i := m.blocks.Len() - 1; i >= 0; i-- {
		b := m.blocks.Get(i)
		if ok, err := b.canFree(space, section, address); err != nil {
			return nil, nil, err
		} else if !ok {
			continue
		}

		n := uint64(minBytes(size))
		newAddress := m.createAddress(space, n)
		moved := &Block{Section: b.Section, Address: newAddress, Size: n, Data: b.Data.Resize(uint(n))}
		return newAddress, m.withBlocks(m.blocks.Set(i, moved)), nil
	}
	return nil, nil, NewStateError(space, "attempted to move invalid memory")
}

// Free releases the block based at address.
func (m *Memory) Free(space Space, section Section, address Expr) (*Memory, error) {
	for i := m.blocks.Len() - 1; i >= 0; i-- {
		if ok, err := m.blocks.Get(i).canFree(space, section, address); err != nil {
			return nil, err
		} else if ok {
			return m.withBlocks(m.blocks.Set(i, invalidBlock)), nil
		}
	}
	return nil, NewStateError(space, "attempted to free invalid memory")
}

// Write stores value at address. Every block that may hold the address is
// updated. The write is fatal if the address may lie outside all blocks.
func (m *Memory) Write(space Space, address, value Expr) (*Memory, error) {
	address = NewCastExpr(address, space.PointerWidth(), false)
	n := uint64(minBytes(ExprWidth(value)))

	blocks := m.blocks
	for i := m.blocks.Len() - 1; i >= 0; i-- {
		b := m.blocks.Get(i)
		if !b.valid() {
			continue
		}

		offset := NewBinaryExpr(SUB, address, b.Address)
		p, err := space.Evaluate(b.contains(offset, n))
		if err != nil {
			return nil, err
		} else if !p.CanBeTrue {
			continue
		}

		// Indices past the end of the block never alias an in-bounds read.
		updated := *b
		updated.Data = b.Data.Store(offset, value, space.IsLittleEndian())
		blocks = blocks.Set(i, &updated)

		if !p.CanBeFalse {
			return m.withBlocks(blocks), nil
		}
		space = p.FalseSpace
	}
	return nil, NewStateError(space, "attempted to write to invalid memory")
}

// Read returns width bits at address. The read is fatal if the address may
// lie outside all blocks.
func (m *Memory) Read(space Space, address Expr, width uint) (Expr, error) {
	address = NewCastExpr(address, space.PointerWidth(), false)
	n := uint64(minBytes(width))

	var result Expr
	for i := m.blocks.Len() - 1; i >= 0; i-- {
		b := m.blocks.Get(i)
		if !b.valid() {
			continue
		}

		offset := NewBinaryExpr(SUB, address, b.Address)
		inBounds := b.contains(offset, n)
		p, err := space.Evaluate(inBounds)
		if err != nil {
			return nil, err
		} else if !p.CanBeTrue {
			continue
		}

		value := b.Data.Select(offset, width, space.IsLittleEndian())
		if result == nil && !p.CanBeFalse {
			return value, nil
		}

		// Blocks are disjoint so at most one masked value is nonzero.
		masked := NewIteExpr(inBounds, value, NewConstantExpr(0, width))
		if result == nil {
			result = masked
		} else {
			result = NewBinaryExpr(OR, result, masked)
		}

		if !p.CanBeFalse {
			return result, nil
		}
		space = p.FalseSpace
	}
	return nil, NewStateError(space, "attempted to read from invalid memory")
}

// Blocks returns the live blocks, oldest first.
func (m *Memory) Blocks() []*Block {
	a := make([]*Block, 0, m.blocks.Len())
	itr := m.blocks.Iterator()
	for !itr.Done() {
		if _, b := itr.Next(); b.valid() {
			a = append(a, b)
		}
	}
	return a
}

func (m *Memory) withBlocks(blocks *immutable.List[*Block]) *Memory {
	return &Memory{alignment: m.alignment, maxAddress: m.maxAddress, blocks: blocks}
}

// MemoryProxy binds a memory snapshot to the space of a single path.
type MemoryProxy struct {
	space  Space
	memory *Memory
}

// NewMemoryProxy returns a new instance of MemoryProxy.
func NewMemoryProxy(space Space, memory *Memory) *MemoryProxy {
	return &MemoryProxy{space: space, memory: memory}
}

// Clone returns a proxy over the same snapshot bound to another space.
func (p *MemoryProxy) Clone(space Space) *MemoryProxy {
	return &MemoryProxy{space: space, memory: p.memory}
}

// Memory returns the current snapshot.
func (p *MemoryProxy) Memory() *Memory { return p.memory }

// Allocate allocates size bits in section.
func (p *MemoryProxy) Allocate(section Section, size uint) Expr {
	address, memory := p.memory.Allocate(p.space, section, size)
	p.memory = memory
	return address
}

// AllocateZeroed allocates size bits of zeroed memory in section.
func (p *MemoryProxy) AllocateZeroed(section Section, size uint) Expr {
	address, memory := p.memory.AllocateZeroed(p.space, section, size)
	p.memory = memory
	return address
}

// Move reallocates a heap block.
func (p *MemoryProxy) Move(address Expr, size uint) (Expr, error) {
	newAddress, memory, err := p.memory.Move(p.space, SectionHeap, address, size)
	if err != nil {
		return nil, err
	}
	p.memory = memory
	return newAddress, nil
}

// Free releases a block allocated in section.
func (p *MemoryProxy) Free(section Section, address Expr) error {
	memory, err := p.memory.Free(p.space, section, address)
	if err != nil {
		return err
	}
	p.memory = memory
	return nil
}

// Write stores value at address.
func (p *MemoryProxy) Write(address, value Expr) error {
	memory, err := p.memory.Write(p.space, address, value)
	if err != nil {
		return err
	}
	p.memory = memory
	return nil
}

// Read loads width bits from address.
func (p *MemoryProxy) Read(address Expr, width uint) (Expr, error) {
	return p.memory.Read(p.space, address, width)
}
