package glee

import (
	"fmt"
	"math/rand"
)

// Searcher represents a strategy for choosing the next program to run.
// Searchers are not safe for concurrent use; the pool serializes access.
type Searcher interface {
	// Removes and returns the next program, or nil if none remain.
	SelectProgram() Program

	// Adds a program to the searcher.
	AddProgram(program Program)

	// Returns the number of programs held.
	Len() int
}

// NewSearcher returns the searcher for a strategy name.
func NewSearcher(strategy string, seed int64) (Searcher, error) {
	switch strategy {
	case SearchDFS, "":
		return NewDFSSearcher(), nil
	case SearchBFS:
		return NewBFSSearcher(), nil
	case SearchRandom:
		return NewRandomSearcher(rand.New(rand.NewSource(seed))), nil
	default:
		return nil, fmt.Errorf("glee: unknown search strategy: %q", strategy)
	}
}

// DFSSearcher represents a searcher with a depth-first search strategy.
// The most recently added program runs first, so after a fork the true
// branch is explored before the false one.
type DFSSearcher struct {
	programs []Program
}

// NewDFSSearcher returns a new instance of DFSSearcher.
func NewDFSSearcher() *DFSSearcher {
	return &DFSSearcher{}
}

// SelectProgram returns the next program to run.
func (s *DFSSearcher) SelectProgram() Program {
	if len(s.programs) == 0 {
		return nil
	}
	program := s.programs[len(s.programs)-1]
	s.programs[len(s.programs)-1] = nil
	s.programs = s.programs[:len(s.programs)-1]
	return program
}

// AddProgram adds a new program to the searcher.
func (s *DFSSearcher) AddProgram(program Program) {
	s.programs = append(s.programs, program)
}

// Len returns the number of pending programs.
func (s *DFSSearcher) Len() int { return len(s.programs) }

// BFSSearcher represents a searcher with a breadth-first search strategy.
type BFSSearcher struct {
	programs []Program
}

// NewBFSSearcher returns a new instance of BFSSearcher.
func NewBFSSearcher() *BFSSearcher {
	return &BFSSearcher{}
}

// SelectProgram returns the next program to run.
func (s *BFSSearcher) SelectProgram() Program {
	if len(s.programs) == 0 {
		return nil
	}
	program := s.programs[0]
	s.programs[0] = nil
	s.programs = s.programs[1:]
	return program
}

// AddProgram adds a new program to the searcher.
func (s *BFSSearcher) AddProgram(program Program) {
	s.programs = append(s.programs, program)
}

// Len returns the number of pending programs.
func (s *BFSSearcher) Len() int { return len(s.programs) }

// RandomSearcher picks a pending program uniformly at random. Runs with the
// same seed explore in the same order when a single worker is used.
type RandomSearcher struct {
	programs []Program
	rand     *rand.Rand
}

// NewRandomSearcher returns a new instance of RandomSearcher.
func NewRandomSearcher(rand *rand.Rand) *RandomSearcher {
	return &RandomSearcher{
		rand: rand,
	}
}

// SelectProgram returns a random program to run.
func (s *RandomSearcher) SelectProgram() Program {
	if len(s.programs) == 0 {
		return nil
	}
	i := s.rand.Intn(len(s.programs))
	program := s.programs[i]
	last := len(s.programs) - 1
	s.programs[i], s.programs[last] = s.programs[last], nil
	s.programs = s.programs[:last]
	return program
}

// AddProgram adds a new program to the searcher.
func (s *RandomSearcher) AddProgram(program Program) {
	s.programs = append(s.programs, program)
}

// Len returns the number of pending programs.
func (s *RandomSearcher) Len() int { return len(s.programs) }
