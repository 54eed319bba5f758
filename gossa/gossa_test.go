package gossa_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"github.com/symforge/glee"
	"github.com/symforge/glee/gossa"
	"github.com/symforge/glee/sat"
)

func TestTarget(t *testing.T) {
	for _, tt := range []struct {
		arch string
		want glee.Target
	}{
		{"amd64", glee.Target{PointerWidth: 64, LittleEndian: true, Alignment: 8, MaxAddress: glee.DefaultMaxAddress}},
		{"386", glee.Target{PointerWidth: 32, LittleEndian: true, Alignment: 4, MaxAddress: 0x7fffffff}},
		{"s390x", glee.Target{PointerWidth: 64, LittleEndian: false, Alignment: 8, MaxAddress: glee.DefaultMaxAddress}},
	} {
		t.Run(tt.arch, func(t *testing.T) {
			target, err := gossa.Target(tt.arch)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, target); diff != "" {
				t.Fatal(diff)
			}
		})
	}

	t.Run("Unknown", func(t *testing.T) {
		_, err := gossa.Target("pdp11")
		require.Error(t, err)
	})
}

func TestTranslate_Call(t *testing.T) {
	m := MustTranslate(t, "pkg001_call", "caller")

	var names []string
	for _, fn := range m.Functions() {
		names = append(names, fn.FunctionName())
	}
	require.Equal(t, "entry", names[0])
	require.True(t, hasSuffix(names, ".caller"))
	require.True(t, hasSuffix(names, ".callee"))
	require.Contains(t, names, "Int8")
	require.Contains(t, names, "Int16")

	results := MustRun(t, m)
	require.Equal(t, []uint64{1, 0, 0}, Exits(t, results))

	x, y := int8(results[0].Example["Int8.1"]), int16(results[0].Example["Int16.2"])
	require.Equal(t, int32(0xAABB), int32(x)*int32(y)+1)
}

func TestTranslate_Struct(t *testing.T) {
	t.Run("Local", func(t *testing.T) {
		results := MustRun(t, MustTranslate(t, "pkg002_struct", "simple"))
		require.Equal(t, []uint64{1, 0}, Exits(t, results))
		require.Equal(t, uint64(2), results[0].Example["Int.1"])
	})

	t.Run("Heap", func(t *testing.T) {
		results := MustRun(t, MustTranslate(t, "pkg002_struct", "escape"))
		require.Equal(t, []uint64{1, 0}, Exits(t, results))
		require.Equal(t, uint64(42), results[0].Example["Int32.1"])
	})
}

func TestTranslate_Divide(t *testing.T) {
	t.Run("ByZero", func(t *testing.T) {
		results := MustRun(t, MustTranslate(t, "pkg003_divide", "divide"))
		if diff := cmp.Diff([]string{"failed: division by zero", "exited"}, Statuses(results)); diff != "" {
			t.Fatal(diff)
		}
		require.Equal(t, uint64(0), results[0].Example["Int.1"])
	})

	t.Run("ConstantDivisor", func(t *testing.T) {
		results := MustRun(t, MustTranslate(t, "pkg003_divide", "remainder"))
		require.Equal(t, []string{"exited"}, Statuses(results))
	})
}

func TestTranslate_Shift(t *testing.T) {
	t.Run("Oversized", func(t *testing.T) {
		results := MustRun(t, MustTranslate(t, "pkg004_shift", "shiftLeft"))
		require.Equal(t, []uint64{1, 0}, Exits(t, results))
		require.GreaterOrEqual(t, results[0].Example["Uint8.1"], uint64(8))
		require.Less(t, results[1].Example["Uint8.1"], uint64(8))
	})

	// x>>9 on an int8 is -1 for negative x and 0 otherwise.
	t.Run("SignFill", func(t *testing.T) {
		results := MustRun(t, MustTranslate(t, "pkg004_shift", "shiftRight"))
		require.Equal(t, []uint64{1, 0}, Exits(t, results))
		require.GreaterOrEqual(t, results[0].Example["x"], uint64(0x80))
		require.Less(t, results[1].Example["x"], uint64(0x80))
	})
}

func TestTranslate_Array(t *testing.T) {
	results := MustRun(t, MustTranslate(t, "pkg005_array", "arrayIndex"))
	if diff := cmp.Diff([]string{"exited", "exited", "failed: index out of range"}, Statuses(results)); diff != "" {
		t.Fatal(diff)
	}
	require.Equal(t, uint64(1), MustConstant(t, results[0].ExitValue))
	require.Equal(t, uint64(1), results[0].Example["Int.1"])
	require.Equal(t, uint64(0), MustConstant(t, results[1].ExitValue))
	require.GreaterOrEqual(t, results[2].Example["Int.1"], uint64(4))
}

func TestTranslate_Global(t *testing.T) {
	m := MustTranslate(t, "pkg007_global", "increment")
	require.NotEmpty(t, m.Globals())

	results := MustRun(t, m)
	require.Equal(t, []uint64{42}, Exits(t, results))
}

func TestTranslate_Panic(t *testing.T) {
	results := MustRun(t, MustTranslate(t, "pkg008_panic", "mustPositive"))
	if diff := cmp.Diff([]string{"failed: panic called", "exited"}, Statuses(results)); diff != "" {
		t.Fatal(diff)
	}
	require.GreaterOrEqual(t, results[0].Example["Int8.1"], uint64(0x80))
}

func TestTranslate_Assert(t *testing.T) {
	t.Run("Assert", func(t *testing.T) {
		results := MustRun(t, MustTranslate(t, "pkg009_assert", "even"))
		if diff := cmp.Diff([]string{"exited", "failed: assertion failed"}, Statuses(results)); diff != "" {
			t.Fatal(diff)
		}
		x := results[1].Example["Uint8.1"]
		require.Less(t, x, uint64(100))
		require.Equal(t, uint64(1), x%2)
	})

	t.Run("BoolParams", func(t *testing.T) {
		results := MustRun(t, MustTranslate(t, "pkg009_assert", "flags"))
		require.Equal(t, []uint64{0, 1, 0}, Exits(t, results))
		require.Equal(t, map[string]uint64{"a": 1, "b": 0}, results[1].Example)
	})
}

func TestTranslate_Unsupported(t *testing.T) {
	prog := MustLoad(t, "pkg006_interface")
	fn := prog.Function("changeInterface")
	require.NotNil(t, fn)

	_, err := gossa.Translate(fn, "amd64")
	require.True(t, errors.Is(err, gossa.ErrUnsupported), "unexpected error: %v", err)
}

func TestTranslate_WriteTo(t *testing.T) {
	var buf bytes.Buffer
	_, err := MustTranslate(t, "pkg007_global", "increment").WriteTo(&buf)
	require.NoError(t, err)
	require.Contains(t, buf.String(), "counter")
}

func TestProgram_Function(t *testing.T) {
	prog := MustLoad(t, "pkg001_call")
	require.NotNil(t, prog.Function("caller"))
	require.NotNil(t, prog.Function("main.callee"))
	require.Nil(t, prog.Function("other.callee"))
	require.Nil(t, prog.Function("missing"))

	var names []string
	for _, fn := range prog.Functions() {
		names = append(names, fn.Name())
	}
	require.ElementsMatch(t, []string{"caller", "callee"}, names)
}

// MustLoad loads a package from the testdata directory.
func MustLoad(tb testing.TB, pkg string) *gossa.Program {
	tb.Helper()
	prog, err := gossa.Load("testdata", "./"+pkg)
	if err != nil {
		tb.Fatal(err)
	}
	return prog
}

// MustTranslate loads a testdata package and translates a function in it
// for amd64.
func MustTranslate(tb testing.TB, pkg, name string) *glee.Module {
	tb.Helper()
	fn := MustLoad(tb, pkg).Function(name)
	if fn == nil {
		tb.Fatalf("function not found: %s", name)
	}
	m, err := gossa.Translate(fn, "amd64")
	if err != nil {
		tb.Fatal(err)
	}
	return m
}

// MustRun explores every path of m on amd64.
func MustRun(tb testing.TB, m *glee.Module) []*glee.PathResult {
	tb.Helper()
	target, err := gossa.Target("amd64")
	if err != nil {
		tb.Fatal(err)
	}
	config := glee.DefaultConfig()
	config.Target = target

	e, err := glee.NewExecutor(m, sat.NewSolver(), config)
	if err != nil {
		tb.Fatal(err)
	}
	results, err := e.Run(context.Background())
	if err != nil {
		tb.Fatal(err)
	}
	return results
}

// Exits returns the constant exit value of each result.
func Exits(tb testing.TB, results []*glee.PathResult) []uint64 {
	tb.Helper()
	a := make([]uint64, len(results))
	for i, r := range results {
		if r.Status != glee.ExecutionStatusExited {
			tb.Fatalf("result %d: %s: %s", i, r.Status, r.Reason)
		}
		a[i] = MustConstant(tb, r.ExitValue)
	}
	return a
}

// MustConstant returns the value of a constant expression.
func MustConstant(tb testing.TB, expr glee.Expr) uint64 {
	tb.Helper()
	c, ok := expr.(*glee.ConstantExpr)
	if !ok {
		tb.Fatalf("expected constant, got %s", expr)
	}
	return c.Value
}

// Statuses returns the status and reason of each result.
func Statuses(results []*glee.PathResult) []string {
	a := make([]string, len(results))
	for i, r := range results {
		a[i] = string(r.Status)
		if r.Reason != "" {
			a[i] += ": " + r.Reason
		}
	}
	return a
}

func hasSuffix(a []string, suffix string) bool {
	for _, s := range a {
		if strings.HasSuffix(s, suffix) {
			return true
		}
	}
	return false
}
