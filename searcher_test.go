package glee_test

import (
	"math/rand"
	"reflect"
	"testing"

	"github.com/symforge/glee"
)

func TestDFSSearcher(t *testing.T) {
	s := glee.NewDFSSearcher()
	if s.SelectProgram() != nil {
		t.Fatal("expected nil program")
	}
	for _, p := range labeled(3) {
		s.AddProgram(p)
	}
	if got, exp := labels(s), []int{2, 1, 0}; !reflect.DeepEqual(got, exp) {
		t.Fatalf("order=%v, expected %v", got, exp)
	}
}

func TestBFSSearcher(t *testing.T) {
	s := glee.NewBFSSearcher()
	if s.SelectProgram() != nil {
		t.Fatal("expected nil program")
	}
	for _, p := range labeled(3) {
		s.AddProgram(p)
	}
	if got, exp := labels(s), []int{0, 1, 2}; !reflect.DeepEqual(got, exp) {
		t.Fatalf("order=%v, expected %v", got, exp)
	}
}

func TestRandomSearcher(t *testing.T) {
	run := func(seed int64) []int {
		s := glee.NewRandomSearcher(rand.New(rand.NewSource(seed)))
		for _, p := range labeled(8) {
			s.AddProgram(p)
		}
		return labels(s)
	}

	order := run(1)
	if got, exp := len(order), 8; got != exp {
		t.Fatalf("len=%d, expected %d", got, exp)
	}
	seen := make(map[int]bool)
	for _, i := range order {
		seen[i] = true
	}
	if len(seen) != 8 {
		t.Fatalf("programs repeated: %v", order)
	}
	if got := run(1); !reflect.DeepEqual(got, order) {
		t.Fatalf("same seed, different order: %v != %v", got, order)
	}
}

func TestNewSearcher(t *testing.T) {
	for _, strategy := range []string{"", glee.SearchDFS, glee.SearchBFS, glee.SearchRandom} {
		if _, err := glee.NewSearcher(strategy, 0); err != nil {
			t.Fatalf("%q: %s", strategy, err)
		}
	}
	if _, err := glee.NewSearcher("best-first", 0); err == nil {
		t.Fatal("expected error")
	}
}

func TestProgramPool(t *testing.T) {
	t.Run("TryTake", func(t *testing.T) {
		p := glee.NewProgramPool(glee.NewDFSSearcher())
		if _, ok := p.TryTake(); ok {
			t.Fatal("expected empty pool")
		}
		for _, program := range labeled(2) {
			p.Add(program)
		}
		if got, exp := p.Len(), 2; got != exp {
			t.Fatalf("len=%d, expected %d", got, exp)
		}
		program, ok := p.TryTake()
		if !ok {
			t.Fatal("expected program")
		}
		p.Done()
		if got, exp := label(program), 1; got != exp {
			t.Fatalf("label=%d, expected %d", got, exp)
		}
	})

	// A waiting taker is woken by a program added while another runs.
	t.Run("TakeWaitsForRunning", func(t *testing.T) {
		p := glee.NewProgramPool(glee.NewBFSSearcher())
		p.Add(labeled(1)[0])
		if _, ok := p.Take(); !ok {
			t.Fatal("expected program")
		}

		ch := make(chan int)
		go func() {
			program, ok := p.Take()
			if !ok {
				ch <- -1
				return
			}
			p.Done()
			ch <- label(program)
		}()

		p.Add(labeled(6)[5])
		p.Done()
		if got, exp := <-ch, 5; got != exp {
			t.Fatalf("label=%d, expected %d", got, exp)
		}
	})

	t.Run("TakeDrained", func(t *testing.T) {
		p := glee.NewProgramPool(glee.NewDFSSearcher())
		p.Add(labeled(1)[0])
		if _, ok := p.Take(); !ok {
			t.Fatal("expected program")
		}
		p.Done()
		if _, ok := p.Take(); ok {
			t.Fatal("expected drained pool")
		}
	})

	t.Run("Close", func(t *testing.T) {
		p := glee.NewProgramPool(glee.NewDFSSearcher())
		p.Add(labeled(1)[0])
		p.Close()
		if _, ok := p.Take(); ok {
			t.Fatal("expected closed pool")
		}
		p.Add(labeled(1)[0])
		if _, ok := p.TryTake(); ok {
			t.Fatal("expected add after close to be dropped")
		}
	})
}

// labeled returns n programs that fail with their index as the error.
func labeled(n int) []glee.Program {
	a := make([]glee.Program, n)
	for i := range a {
		i := i
		a[i] = func() (*glee.ExecutionState, error) { return nil, labelError(i) }
	}
	return a
}

type labelError int

func (e labelError) Error() string { return "label" }

func label(program glee.Program) int {
	_, err := program()
	return int(err.(labelError))
}

func labels(s glee.Searcher) []int {
	var a []int
	for s.Len() > 0 {
		a = append(a, label(s.SelectProgram()))
	}
	return a
}
