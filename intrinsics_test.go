package glee_test

import (
	"context"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/google/go-cmp/cmp"
	"github.com/symforge/glee"
	"github.com/symforge/glee/sat"
)

// intrinsic returns an intrinsic looked up by name.
func intrinsic(tb testing.TB, id glee.FunctionID, name string) *glee.Intrinsic {
	tb.Helper()
	kind, ok := glee.LookupIntrinsic(name)
	if !ok {
		tb.Fatalf("intrinsic not found: %s", name)
	}
	return &glee.Intrinsic{ID: id, Name: name, Kind: kind}
}

// call returns a call to callee whose result is width bits.
func call(id glee.InstructionID, callee glee.FunctionID, width uint, args ...glee.Operand) *glee.CallInstr {
	return &glee.CallInstr{ID: id, Callee: callee, Args: args, Width: width}
}

func TestLookupIntrinsic(t *testing.T) {
	for _, tt := range []struct {
		name string
		kind glee.IntrinsicKind
	}{
		{"malloc", glee.IntrinsicMalloc},
		{"_setjmp", glee.IntrinsicSetJump},
		{"llvm.stacksave", glee.IntrinsicStackSave},
		{"memmove", glee.IntrinsicMemcpy},
		{"bounds_check", glee.IntrinsicBoundsCheck},
	} {
		if kind, ok := glee.LookupIntrinsic(tt.name); !ok || kind != tt.kind {
			t.Errorf("%s: kind=%s, expected %s", tt.name, kind, tt.kind)
		}
	}
	if _, ok := glee.LookupIntrinsic("printf"); ok {
		t.Fatal("expected no intrinsic")
	}
}

func TestIntrinsic_Heap(t *testing.T) {
	t.Run("Realloc", func(t *testing.T) {
		m := NewModule(t,
			&glee.DefinedFunction{
				ID: 0, Name: "main",
				Blocks: []*glee.BasicBlock{
					block(0,
						call(1, 1, 64, c64(4)),
						&glee.StoreInstr{ID: 2, Addr: glee.Local(1), Value: c32(0xDEADBEEF)},
						call(3, 2, 64, glee.Local(1), c64(8)),
						&glee.LoadInstr{ID: 4, Addr: glee.Local(3), Width: 32},
						call(5, 3, 0, glee.Local(3)),
						&glee.ReturnInstr{ID: 6, Value: glee.Local(4)},
					),
				},
			},
			intrinsic(t, 1, "malloc"),
			intrinsic(t, 2, "realloc"),
			intrinsic(t, 3, "free"),
		)

		states := MustExecuteAll(t, NewExecutor(t, m))
		state := states[0]
		if got, exp := state.Status(), glee.ExecutionStatusExited; got != exp {
			t.Fatalf("status=%s (%s), expected %s", got, state.Reason(), exp)
		} else if got := len(state.Memory().Memory().Blocks()); got != 0 {
			t.Fatalf("blocks=%d, expected 0", got)
		}
		MustProve(t, state.Space(), glee.NewBinaryExpr(glee.EQ, state.ExitValue(), c32(0xDEADBEEF)))
	})

	t.Run("Calloc", func(t *testing.T) {
		m := NewModule(t,
			&glee.DefinedFunction{
				ID: 0, Name: "main",
				Blocks: []*glee.BasicBlock{
					block(0,
						call(1, 1, 64, c64(4), c64(2)),
						&glee.LoadInstr{ID: 2, Addr: glee.Local(1), Width: 64},
						&glee.ReturnInstr{ID: 3, Value: glee.Local(2)},
					),
				},
			},
			intrinsic(t, 1, "calloc"),
		)
		states := MustExecuteAll(t, NewExecutor(t, m))
		MustProve(t, states[0].Space(), glee.NewBinaryExpr(glee.EQ, states[0].ExitValue(), c64(0)))
	})

	t.Run("DoubleFree", func(t *testing.T) {
		m := NewModule(t,
			&glee.DefinedFunction{
				ID: 0, Name: "main",
				Blocks: []*glee.BasicBlock{
					block(0,
						call(1, 1, 64, c64(4)),
						call(2, 2, 0, glee.Local(1)),
						call(3, 2, 0, glee.Local(1)),
						&glee.ReturnInstr{ID: 4},
					),
				},
			},
			intrinsic(t, 1, "malloc"),
			intrinsic(t, 2, "free"),
		)
		results := MustRun(t, m)
		if diff := cmp.Diff([]string{"failed: attempted to free invalid memory"}, Statuses(results)); diff != "" {
			t.Fatalf("unexpected statuses (-want +got):\n%s", diff)
		}
	})

	t.Run("FreeNull", func(t *testing.T) {
		m := NewModule(t,
			&glee.DefinedFunction{
				ID: 0, Name: "main",
				Blocks: []*glee.BasicBlock{
					block(0,
						call(1, 1, 64),
						call(2, 2, 0, glee.Local(1)),
						&glee.ReturnInstr{ID: 3, Value: c32(0)},
					),
				},
			},
			intrinsic(t, 1, "null"),
			intrinsic(t, 2, "free"),
		)
		if diff := cmp.Diff([]string{"exited"}, Statuses(MustRun(t, m))); diff != "" {
			t.Fatalf("unexpected statuses (-want +got):\n%s", diff)
		}
	})

	t.Run("TooLarge", func(t *testing.T) {
		for _, tt := range []struct {
			name string
			fn   string
			args []glee.Operand
		}{
			{"Malloc", "malloc", []glee.Operand{c64(1<<61 + 1)}},
			{"AboveMaxAddress", "malloc", []glee.Operand{c64(glee.DefaultMaxAddress + 1)}},
			{"Calloc", "calloc", []glee.Operand{c64(1 << 32), c64(1 << 32)}},
		} {
			t.Run(tt.name, func(t *testing.T) {
				m := NewModule(t,
					&glee.DefinedFunction{
						ID: 0, Name: "main",
						Blocks: []*glee.BasicBlock{
							block(0,
								call(1, 1, 64, tt.args...),
								&glee.StoreInstr{ID: 2, Addr: glee.Local(1), Value: c8(1)},
								&glee.ReturnInstr{ID: 3},
							),
						},
					},
					intrinsic(t, 1, tt.fn),
				)
				if diff := cmp.Diff([]string{"failed: allocation size is too large"}, Statuses(MustRun(t, m))); diff != "" {
					t.Fatalf("unexpected statuses (-want +got):\n%s", diff)
				}
			})
		}
	})

	t.Run("ReallocTooLarge", func(t *testing.T) {
		m := NewModule(t,
			&glee.DefinedFunction{
				ID: 0, Name: "main",
				Blocks: []*glee.BasicBlock{
					block(0,
						call(1, 1, 64, c64(4)),
						call(2, 2, 64, glee.Local(1), c64(1<<61+1)),
						&glee.ReturnInstr{ID: 3},
					),
				},
			},
			intrinsic(t, 1, "malloc"),
			intrinsic(t, 2, "realloc"),
		)
		if diff := cmp.Diff([]string{"failed: allocation size is too large"}, Statuses(MustRun(t, m))); diff != "" {
			t.Fatalf("unexpected statuses (-want +got):\n%s", diff)
		}
	})

	t.Run("SymbolicSize", func(t *testing.T) {
		m := NewModule(t,
			&glee.DefinedFunction{
				ID: 0, Name: "main", Params: []glee.Parameter{param(0, "n", 64)},
				Blocks: []*glee.BasicBlock{
					block(0,
						call(1, 1, 64, glee.Local(0)),
						&glee.ReturnInstr{ID: 2},
					),
				},
			},
			intrinsic(t, 1, "malloc"),
		)
		if diff := cmp.Diff([]string{"failed: symbolic allocation size is not supported"}, Statuses(MustRun(t, m))); diff != "" {
			t.Fatalf("unexpected statuses (-want +got):\n%s", diff)
		}
	})
}

func TestIntrinsic_Memory(t *testing.T) {
	// memset fills a, memcpy copies it to b.
	m := NewModule(t,
		&glee.DefinedFunction{
			ID: 0, Name: "main",
			Blocks: []*glee.BasicBlock{
				block(0,
					&glee.AllocInstr{ID: 1, Section: glee.SectionStack, Size: 32},
					&glee.AllocInstr{ID: 2, Section: glee.SectionStack, Size: 32, Zero: true},
					call(3, 1, 64, glee.Local(1), c8(0xAB), c64(4)),
					call(4, 2, 64, glee.Local(2), glee.Local(1), c64(3)),
					&glee.LoadInstr{ID: 5, Addr: glee.Local(2), Width: 32},
					&glee.ReturnInstr{ID: 6, Value: glee.Local(5)},
				),
			},
		},
		intrinsic(t, 1, "memset"),
		intrinsic(t, 2, "memcpy"),
	)

	states := MustExecuteAll(t, NewExecutor(t, m))
	MustProve(t, states[0].Space(), glee.NewBinaryExpr(glee.EQ, states[0].ExitValue(), c32(0x00ABABAB)))
}

func TestIntrinsic_FunnelShiftLeft(t *testing.T) {
	m := NewModule(t,
		&glee.DefinedFunction{
			ID: 0, Name: "main",
			Blocks: []*glee.BasicBlock{
				block(0,
					call(1, 1, 8, c8(0x12), c8(0x34), c8(12)),
					&glee.ReturnInstr{ID: 2, Value: glee.Local(1)},
				),
			},
		},
		intrinsic(t, 1, "llvm.fshl"),
	)
	results := MustRun(t, m)
	if got := MustConstant(t, results[0].ExitValue); got != 0x23 {
		t.Fatalf("exit=%#x, expected 0x23", got)
	}
}

func TestIntrinsic_Exit(t *testing.T) {
	t.Run("Nested", func(t *testing.T) {
		m := NewModule(t,
			&glee.DefinedFunction{
				ID: 0, Name: "main",
				Blocks: []*glee.BasicBlock{
					block(0,
						call(1, 1, 0),
						&glee.ReturnInstr{ID: 2, Value: c32(0)},
					),
				},
			},
			&glee.DefinedFunction{
				ID: 1, Name: "quit",
				Blocks: []*glee.BasicBlock{
					block(0,
						call(1, 2, 0, c32(3)),
						&glee.UnreachableInstr{ID: 2},
					),
				},
			},
			intrinsic(t, 2, "exit"),
		)
		results := MustRun(t, m)
		if diff := cmp.Diff([]string{"exited"}, Statuses(results)); diff != "" {
			t.Fatalf("unexpected statuses (-want +got):\n%s", diff)
		} else if got := MustConstant(t, results[0].ExitValue); got != 3 {
			t.Fatalf("exit=%d, expected 3", got)
		}
	})

	t.Run("Abort", func(t *testing.T) {
		m := NewModule(t,
			&glee.DefinedFunction{
				ID: 0, Name: "main",
				Blocks: []*glee.BasicBlock{
					block(0,
						call(1, 1, 0),
						&glee.ReturnInstr{ID: 2},
					),
				},
			},
			intrinsic(t, 1, "abort"),
		)
		if diff := cmp.Diff([]string{"failed: abort called"}, Statuses(MustRun(t, m))); diff != "" {
			t.Fatalf("unexpected statuses (-want +got):\n%s", diff)
		}
	})
}

func TestIntrinsic_Symbolic(t *testing.T) {
	// Two symbols from the same intrinsic are independent and named.
	m := NewModule(t,
		&glee.DefinedFunction{
			ID: 0, Name: "main",
			Blocks: []*glee.BasicBlock{
				block(0,
					call(1, 1, 8),
					call(2, 1, 8),
					&glee.BinaryInstr{ID: 3, Op: glee.EQ, LHS: glee.Local(1), RHS: glee.Local(2)},
					&glee.BranchInstr{ID: 4, Cond: glee.Local(3), True: 1, False: 2},
				),
				block(1, &glee.ReturnInstr{ID: 5, Value: c32(1)}),
				block(2, &glee.ReturnInstr{ID: 6, Value: c32(0)}),
			},
		},
		intrinsic(t, 1, "symbolic"),
	)

	results := MustRun(t, m)
	if got, exp := len(results), 2; got != exp {
		t.Fatalf("paths=%d, expected %d", got, exp)
	}
	if ex := results[0].Example; ex["symbolic.1"] != ex["symbolic.2"] {
		t.Fatalf("equal path example differs: %v", ex)
	} else if ex := results[1].Example; ex["symbolic.1"] == ex["symbolic.2"] {
		t.Fatalf("unequal path example matches: %v", ex)
	}
}

func TestIntrinsic_Assume(t *testing.T) {
	t.Run("Narrow", func(t *testing.T) {
		m := NewModule(t,
			&glee.DefinedFunction{
				ID: 0, Name: "main", Params: []glee.Parameter{param(0, "x", 8)},
				Blocks: []*glee.BasicBlock{
					block(0,
						&glee.BinaryInstr{ID: 1, Op: glee.ULT, LHS: glee.Local(0), RHS: c8(10)},
						call(2, 1, 0, glee.Local(1)),
						&glee.BinaryInstr{ID: 3, Op: glee.ULT, LHS: glee.Local(0), RHS: c8(20)},
						&glee.BranchInstr{ID: 4, Cond: glee.Local(3), True: 1, False: 2},
					),
					block(1, &glee.ReturnInstr{ID: 5, Value: c32(1)}),
					block(2, &glee.ReturnInstr{ID: 6, Value: c32(2)}),
				},
			},
			intrinsic(t, 1, "assume"),
		)
		results := MustRun(t, m)
		if got, exp := len(results), 1; got != exp {
			t.Fatalf("paths=%d, expected %d", got, exp)
		} else if got := MustConstant(t, results[0].ExitValue); got != 1 {
			t.Fatalf("exit=%d, expected 1", got)
		} else if got := results[0].Example["x"]; got >= 10 {
			t.Fatalf("x=%d, expected below 10", got)
		}
	})

	t.Run("Prune", func(t *testing.T) {
		m := NewModule(t,
			&glee.DefinedFunction{
				ID: 0, Name: "main",
				Blocks: []*glee.BasicBlock{
					block(0,
						call(1, 1, 0, glee.NewBoolConstantExpr(false)),
						&glee.ReturnInstr{ID: 2},
					),
				},
			},
			intrinsic(t, 1, "assume"),
		)
		if diff := cmp.Diff([]string{"pruned: assumption cannot hold"}, Statuses(MustRun(t, m))); diff != "" {
			t.Fatalf("unexpected statuses (-want +got):\n%s", diff)
		}
	})
}

func TestIntrinsic_Assert(t *testing.T) {
	m := NewModule(t,
		&glee.DefinedFunction{
			ID: 0, Name: "main", Params: []glee.Parameter{param(0, "x", 8)},
			Blocks: []*glee.BasicBlock{
				block(0,
					&glee.BinaryInstr{ID: 1, Op: glee.NE, LHS: glee.Local(0), RHS: c8(7)},
					call(2, 1, 0, glee.Local(1)),
					&glee.ReturnInstr{ID: 3, Value: c32(0)},
				),
			},
		},
		intrinsic(t, 1, "assert"),
	)

	results := MustRun(t, m)
	if diff := cmp.Diff([]string{"exited", "failed: assertion failed"}, Statuses(results)); diff != "" {
		t.Fatalf("unexpected statuses (-want +got):\n%s", diff)
	} else if got := results[1].Example["x"]; got != 7 {
		t.Fatalf("x=%d, expected 7", got)
	}
}

func TestIntrinsic_BoundsCheck(t *testing.T) {
	m := NewModule(t,
		&glee.DefinedFunction{
			ID: 0, Name: "main", Params: []glee.Parameter{param(0, "i", 64)},
			Blocks: []*glee.BasicBlock{
				block(0,
					call(1, 1, 0, glee.Local(0), c64(4)),
					&glee.ReturnInstr{ID: 2, Value: c32(0)},
				),
			},
		},
		intrinsic(t, 1, "bounds_check"),
	)

	results := MustRun(t, m)
	if diff := cmp.Diff([]string{"exited", "failed: index out of range"}, Statuses(results)); diff != "" {
		t.Fatalf("unexpected statuses (-want +got):\n%s", diff)
	} else if got := results[0].Example["i"]; got >= 4 {
		t.Fatalf("in range i=%d", got)
	} else if got := results[1].Example["i"]; got < 4 {
		t.Fatalf("out of range i=%d", got)
	}
}

func TestIntrinsic_Constant(t *testing.T) {
	m := NewModule(t,
		&glee.DefinedFunction{
			ID: 0, Name: "main",
			Blocks: []*glee.BasicBlock{
				block(0,
					call(1, 1, 32, c32(0), c64(0), c64(0)),
					call(2, 2, 32),
					&glee.BinaryInstr{ID: 3, Op: glee.ADD, LHS: glee.Local(1), RHS: glee.Local(2)},
					&glee.ReturnInstr{ID: 4, Value: glee.Local(3)},
				),
			},
		},
		intrinsic(t, 1, "sigprocmask"),
		intrinsic(t, 2, "gc_unimplemented"),
	)
	if got := MustConstant(t, MustRun(t, m)[0].ExitValue); got != 3 {
		t.Fatalf("exit=%d, expected 3", got)
	}
}

func TestIntrinsic_ArgumentCount(t *testing.T) {
	m := NewModule(t,
		&glee.DefinedFunction{
			ID: 0, Name: "main",
			Blocks: []*glee.BasicBlock{
				block(0,
					call(1, 1, 64),
					&glee.ReturnInstr{ID: 2},
				),
			},
		},
		intrinsic(t, 1, "malloc"),
	)
	e, err := glee.NewExecutor(m, sat.NewSolver(), glee.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestIntrinsic_File(t *testing.T) {
	const (
		fnOpen glee.FunctionID = iota + 1
		fnSeek
		fnClose
	)

	// main opens the file named "a", seeks to its end and returns the
	// offset, or -1 if the open fails.
	newModule := func(tb testing.TB) *glee.Module {
		return NewModule(tb,
			&glee.DefinedFunction{
				ID: 0, Name: "main",
				Blocks: []*glee.BasicBlock{
					block(0,
						&glee.AllocInstr{ID: 1, Section: glee.SectionStack, Size: 16},
						&glee.StoreInstr{ID: 2, Addr: glee.Local(1), Value: glee.NewConstantExpr('a', 16)},
						call(3, fnOpen, 32, glee.Local(1)),
						&glee.BinaryInstr{ID: 4, Op: glee.SLT, LHS: glee.Local(3), RHS: c32(0)},
						&glee.BranchInstr{ID: 5, Cond: glee.Local(4), True: 1, False: 2},
					),
					block(1, &glee.ReturnInstr{ID: 6, Value: c64(^uint64(0))}),
					block(2,
						call(7, fnSeek, 64, glee.Local(3), c64(0), c32(2)),
						call(8, fnClose, 32, glee.Local(3)),
						call(9, fnClose, 32, glee.Local(3)),
						&glee.ReturnInstr{ID: 10, Value: glee.Local(7)},
					),
				},
			},
			intrinsic(tb, fnOpen, "open"),
			intrinsic(tb, fnSeek, "lseek"),
			intrinsic(tb, fnClose, "close"),
		)
	}

	t.Run("OK", func(t *testing.T) {
		fs := memfs.New()
		if err := util.WriteFile(fs, "a", []byte("0123456789"), 0644); err != nil {
			t.Fatal(err)
		}

		e := NewExecutor(t, newModule(t))
		e.FS = fs
		states := MustExecuteAll(t, e)
		state := states[0]
		if got := MustConstant(t, state.ExitValue()); got != 10 {
			t.Fatalf("exit=%d, expected 10", got)
		}

		// The second close fails and leaves only the standard streams.
		system := state.System().System()
		if got, _ := system.Close(3); got != -1 {
			t.Fatalf("close=%d, expected -1", got)
		} else if fd, _ := system.Open("a"); fd != 3 {
			t.Fatalf("fd=%d, expected 3", fd)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		e := NewExecutor(t, newModule(t))
		e.FS = memfs.New()
		results, err := e.Run(context.Background())
		if err != nil {
			t.Fatal(err)
		} else if got := MustConstant(t, results[0].ExitValue); got != ^uint64(0) {
			t.Fatalf("exit=%#x, expected -1", got)
		}
	})

	// Both branches of a fork open "a" after the parent did. Each sees the
	// parent's descriptors only, so each gets descriptor 4.
	t.Run("Forked", func(t *testing.T) {
		fs := memfs.New()
		if err := util.WriteFile(fs, "a", nil, 0644); err != nil {
			t.Fatal(err)
		}

		m := NewModule(t,
			&glee.DefinedFunction{
				ID: 0, Name: "main", Params: []glee.Parameter{param(0, "x", 8)},
				Blocks: []*glee.BasicBlock{
					block(0,
						&glee.AllocInstr{ID: 1, Section: glee.SectionStack, Size: 16},
						&glee.StoreInstr{ID: 2, Addr: glee.Local(1), Value: glee.NewConstantExpr('a', 16)},
						call(3, fnOpen, 32, glee.Local(1)),
						&glee.BinaryInstr{ID: 4, Op: glee.EQ, LHS: glee.Local(0), RHS: c8(0)},
						&glee.BranchInstr{ID: 5, Cond: glee.Local(4), True: 1, False: 2},
					),
					block(1,
						call(6, fnOpen, 32, glee.Local(1)),
						&glee.ReturnInstr{ID: 7, Value: glee.Local(6)},
					),
					block(2,
						call(8, fnOpen, 32, glee.Local(1)),
						&glee.ReturnInstr{ID: 9, Value: glee.Local(8)},
					),
				},
			},
			intrinsic(t, fnOpen, "open"),
		)

		e := NewExecutor(t, m)
		e.FS = fs
		results, err := e.Run(context.Background())
		if err != nil {
			t.Fatal(err)
		} else if diff := cmp.Diff([]uint64{4, 4}, []uint64{MustConstant(t, results[0].ExitValue), MustConstant(t, results[1].ExitValue)}); diff != "" {
			t.Fatalf("unexpected descriptors (-want +got):\n%s", diff)
		}
	})
}
