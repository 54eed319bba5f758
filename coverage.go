package glee

import (
	"sort"
	"sync"

	"github.com/bits-and-blooms/bitset"
)

// Coverage records the basic blocks entered on any path.
type Coverage struct {
	mu     sync.Mutex
	blocks map[FunctionID]*bitset.BitSet
}

// NewCoverage returns an empty coverage set.
func NewCoverage() *Coverage {
	return &Coverage{blocks: make(map[FunctionID]*bitset.BitSet)}
}

// Mark records that block was entered in fn.
func (c *Coverage) Mark(fn FunctionID, block BasicBlockID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	set := c.blocks[fn]
	if set == nil {
		set = bitset.New(8)
		c.blocks[fn] = set
	}
	set.Set(uint(block))
}

// Covered returns true if block was entered in fn.
func (c *Coverage) Covered(fn FunctionID, block BasicBlockID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	set := c.blocks[fn]
	return set != nil && set.Test(uint(block))
}

// Blocks returns the entered blocks of fn in ascending order.
func (c *Coverage) Blocks(fn FunctionID) []BasicBlockID {
	c.mu.Lock()
	defer c.mu.Unlock()

	set := c.blocks[fn]
	if set == nil {
		return nil
	}
	a := make([]BasicBlockID, 0, set.Count())
	for i, ok := set.NextSet(0); ok; i, ok = set.NextSet(i + 1) {
		a = append(a, BasicBlockID(i))
	}
	return a
}

// Ratio returns the number of entered blocks and the total number of blocks
// over the defined functions of m.
func (c *Coverage) Ratio(m *Module) (covered, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, fn := range m.Functions() {
		fn, ok := fn.(*DefinedFunction)
		if !ok {
			continue
		}
		total += len(fn.Blocks)
		if set := c.blocks[fn.ID]; set != nil {
			for _, b := range fn.Blocks {
				if set.Test(uint(b.ID)) {
					covered++
				}
			}
		}
	}
	return covered, total
}

// Functions returns the ids of functions with any covered block.
func (c *Coverage) Functions() []FunctionID {
	c.mu.Lock()
	defer c.mu.Unlock()

	a := make([]FunctionID, 0, len(c.blocks))
	for id := range c.blocks {
		a = append(a, id)
	}
	sort.Slice(a, func(i, j int) bool { return a[i] < a[j] })
	return a
}
