package glee

import (
	"github.com/benbjohnson/immutable"
)

// Globals maps global variables to their addresses. It is persistent: each
// path owns its snapshot, so the first touch on a path allocates the global
// for that path and its descendants.
type Globals struct {
	addresses *immutable.SortedMap[GlobalID, Expr]
}

// NewGlobals returns an empty table.
func NewGlobals() *Globals {
	return &Globals{addresses: immutable.NewSortedMap[GlobalID, Expr](idComparer[GlobalID]{})}
}

// Address returns the address of the global if it has been allocated.
func (g *Globals) Address(id GlobalID) (Expr, bool) {
	return g.addresses.Get(id)
}

// Len returns the number of allocated globals.
func (g *Globals) Len() int { return g.addresses.Len() }

func (g *Globals) set(id GlobalID, address Expr) *Globals {
	return &Globals{addresses: g.addresses.Set(id, address)}
}
