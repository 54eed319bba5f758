package glee_test

import (
	"math"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/require"
	"github.com/symforge/glee"
)

func TestExecutionState_Globals(t *testing.T) {
	newModule := func(tb testing.TB) *glee.Module {
		m := NewModule(tb, &glee.DefinedFunction{
			ID: 0, Name: "main", Params: []glee.Parameter{param(0, "x", 8)},
			Blocks: []*glee.BasicBlock{
				block(0,
					&glee.LoadInstr{ID: 1, Addr: glee.GlobalRef(0), Width: 32},
					&glee.LoadInstr{ID: 2, Addr: glee.GlobalRef(1), Width: 64},
					&glee.BinaryInstr{ID: 3, Op: glee.EQ, LHS: glee.Local(2), RHS: glee.GlobalRef(1)},
					&glee.CastInstr{ID: 4, Value: glee.Local(3), Width: 32},
					&glee.BinaryInstr{ID: 5, Op: glee.ADD, LHS: glee.Local(1), RHS: glee.Local(4)},
					&glee.BranchInstr{ID: 6, Cond: glee.Local(0), True: 1, False: 2},
				),
				block(1,
					&glee.StoreInstr{ID: 7, Addr: glee.GlobalRef(0), Value: c32(100)},
					&glee.BranchInstr{ID: 8, True: 2},
				),
				block(2,
					&glee.LoadInstr{ID: 9, Addr: glee.GlobalRef(0), Width: 32},
					&glee.LoadInstr{ID: 10, Addr: glee.GlobalRef(2), Width: 8},
					&glee.BinaryInstr{ID: 11, Op: glee.ADD, LHS: glee.Local(5), RHS: glee.Local(9)},
					&glee.ReturnInstr{ID: 12, Value: glee.Local(11)},
				),
			},
		})
		require.NoError(tb, m.AddGlobal(&glee.Global{ID: 0, Name: "count", Size: 32, Init: c32(42)}))
		require.NoError(tb, m.AddGlobal(&glee.Global{ID: 1, Name: "self", Size: 64, Init: glee.GlobalRef(1)}))
		require.NoError(tb, m.AddGlobal(&glee.Global{ID: 2, Name: "zero", Size: 8}))
		return m
	}

	states := MustExecuteAll(t, NewExecutor(t, newModule(t)))
	require.Len(t, states, 3)

	// Globals touched before the fork are shared by both paths.
	root := states[0]
	require.Equal(t, glee.ExecutionStatusForked, root.Status())
	require.Equal(t, 2, root.Globals().Len())
	count, ok := root.Globals().Address(0)
	require.True(t, ok)

	// The store on the true path is not seen by the false path.
	for _, tt := range []struct {
		state *glee.ExecutionState
		exit  uint64
	}{
		{states[1], 42 + 1 + 100},
		{states[2], 42 + 1 + 42},
	} {
		require.Equal(t, glee.ExecutionStatusExited, tt.state.Status(), tt.state.Reason())
		MustProve(t, tt.state.Space(), glee.NewBinaryExpr(glee.EQ, tt.state.ExitValue(), c32(tt.exit)))

		require.Equal(t, 3, tt.state.Globals().Len())
		address, _ := tt.state.Globals().Address(0)
		require.Equal(t, count, address)
	}
}

func TestExecutionState_Fork(t *testing.T) {
	// Both children of a fork continue from the parent's snapshots and
	// record the parent id.
	m := NewModule(t, &glee.DefinedFunction{
		ID: 0, Name: "main", Params: []glee.Parameter{param(0, "x", 8)},
		Blocks: []*glee.BasicBlock{
			block(0,
				&glee.AllocInstr{ID: 1, Section: glee.SectionHeap, Size: 8},
				&glee.StoreInstr{ID: 2, Addr: glee.Local(1), Value: glee.Local(0)},
				&glee.BinaryInstr{ID: 3, Op: glee.EQ, LHS: glee.Local(0), RHS: c8(0)},
				&glee.BranchInstr{ID: 4, Cond: glee.Local(3), True: 1, False: 2},
			),
			block(1,
				&glee.StoreInstr{ID: 5, Addr: glee.Local(1), Value: c8(1)},
				&glee.LoadInstr{ID: 6, Addr: glee.Local(1), Width: 8},
				&glee.ReturnInstr{ID: 7, Value: glee.Local(6)},
			),
			block(2,
				&glee.LoadInstr{ID: 8, Addr: glee.Local(1), Width: 8},
				&glee.ReturnInstr{ID: 9, Value: glee.Local(8)},
			),
		},
	})

	states := MustExecuteAll(t, NewExecutor(t, m))
	require.Len(t, states, 3)
	root, taken, notTaken := states[0], states[1], states[2]

	require.Equal(t, 1, root.ID())
	require.Equal(t, glee.ExecutionStatusForked, root.Status())
	require.Equal(t, root.ID(), taken.Parent())
	require.Equal(t, root.ID(), notTaken.Parent())
	require.Less(t, taken.ID(), notTaken.ID())

	require.Equal(t, uint64(1), MustConstant(t, taken.ExitValue()))

	// The false path reads back the symbol it stored, which cannot be zero.
	MustProve(t, notTaken.Space(), glee.NewBinaryExpr(glee.NE, notTaken.ExitValue(), c8(0)))

	// The forked state keeps its memory as it was at the fork.
	require.Len(t, root.Memory().Memory().Blocks(), 1)
	require.True(t, root.Terminated())
}

func TestSystem(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "/etc/hosts", []byte("127.0.0.1 localhost\n"), 0644))
	require.NoError(t, fs.MkdirAll("/tmp", 0755))

	s0 := glee.NewSystem(fs)

	t.Run("Open", func(t *testing.T) {
		fd, s1 := s0.Open("/etc/hosts")
		require.Equal(t, 3, fd)

		// Persistent: the original still has 3 free.
		fd, _ = s0.Open("/etc/hosts")
		require.Equal(t, 3, fd)

		fd, _ = s1.Open("/etc/hosts")
		require.Equal(t, 4, fd)
	})

	t.Run("OpenInvalid", func(t *testing.T) {
		fd, _ := s0.Open("/missing")
		require.Equal(t, -1, fd)
		fd, _ = s0.Open("/tmp")
		require.Equal(t, -1, fd)
		fd, _ = glee.NewSystem(nil).Open("/etc/hosts")
		require.Equal(t, -1, fd)
	})

	t.Run("Seek", func(t *testing.T) {
		fd, s := s0.Open("/etc/hosts")

		off, s := s.Seek(fd, 4, 0)
		require.Equal(t, int64(4), off)
		off, s = s.Seek(fd, 2, 1)
		require.Equal(t, int64(6), off)
		off, s = s.Seek(fd, -1, 2)
		require.Equal(t, int64(19), off)

		off, _ = s.Seek(fd, -100, 1)
		require.Equal(t, int64(-1), off)
		off, _ = s.Seek(fd, 0, 7)
		require.Equal(t, int64(-1), off)

		// Standard streams cannot be repositioned.
		off, _ = s.Seek(1, 0, 0)
		require.Equal(t, int64(-1), off)

		// Offsets past the largest int64 fail instead of wrapping.
		off, s = s.Seek(fd, 1, 0)
		require.Equal(t, int64(1), off)
		off, _ = s.Seek(fd, math.MaxInt64, 1)
		require.Equal(t, int64(-1), off)
		off, _ = s.Seek(fd, math.MaxInt64, 2)
		require.Equal(t, int64(-1), off)
		off, _ = s.Seek(fd, math.MaxInt64, 0)
		require.Equal(t, int64(math.MaxInt64), off)
	})

	t.Run("ReadDir", func(t *testing.T) {
		require.NoError(t, util.WriteFile(fs, "/etc/passwd", nil, 0644))
		require.NoError(t, fs.MkdirAll("/etc/ssl", 0755))

		names, ok := s0.ReadDir("/etc")
		require.True(t, ok)
		require.Equal(t, []string{"hosts", "passwd", "ssl", ".", ".."}, names)

		names, ok = glee.NewSystemProxy(s0).ReadDir("/tmp")
		require.True(t, ok)
		require.Equal(t, []string{".", ".."}, names)

		_, ok = s0.ReadDir("/etc/hosts")
		require.False(t, ok)
		_, ok = s0.ReadDir("/missing")
		require.False(t, ok)
		_, ok = glee.NewSystem(nil).ReadDir("/etc")
		require.False(t, ok)
	})

	t.Run("Close", func(t *testing.T) {
		fd, s := s0.Open("/etc/hosts")
		ret, s := s.Close(fd)
		require.Equal(t, 0, ret)
		ret, s = s.Close(fd)
		require.Equal(t, -1, ret)

		// Descriptors are reused lowest first.
		ret, s = s.Close(0)
		require.Equal(t, 0, ret)
		fd, _ = s.Open("/etc/hosts")
		require.Equal(t, 0, fd)
	})

	t.Run("Proxy", func(t *testing.T) {
		p := glee.NewSystemProxy(s0)
		other := p.Clone()

		fd := p.Open("/etc/hosts")
		require.Equal(t, 3, fd)
		require.Equal(t, int64(10), p.Seek(fd, 10, 0))
		require.Equal(t, -1, int(other.Seek(fd, 0, 0)))
		require.Equal(t, 0, p.Close(fd))
		require.Same(t, s0, other.System())
	})
}

func TestGlobals(t *testing.T) {
	g := glee.NewGlobals()
	require.Equal(t, 0, g.Len())
	_, ok := g.Address(0)
	require.False(t, ok)
}

func TestConfig_Validate(t *testing.T) {
	for _, tt := range []struct {
		name   string
		modify func(*glee.Config)
	}{
		{"PointerWidth", func(c *glee.Config) { c.Target.PointerWidth = 12 }},
		{"Alignment", func(c *glee.Config) { c.Target.Alignment = 3 }},
		{"MaxAddress", func(c *glee.Config) { c.Target.PointerWidth, c.Target.MaxAddress = 16, 1 << 20 }},
		{"Search", func(c *glee.Config) { c.Search = "best" }},
		{"Workers", func(c *glee.Config) { c.Workers = 0 }},
		{"MaxPaths", func(c *glee.Config) { c.MaxPaths = -1 }},
		{"SolverCache", func(c *glee.Config) { c.SolverCache = -1 }},
	} {
		t.Run(tt.name, func(t *testing.T) {
			config := glee.DefaultConfig()
			tt.modify(&config)
			require.Error(t, config.Validate())
		})
	}

	config := glee.DefaultConfig()
	require.NoError(t, config.Validate())
}
