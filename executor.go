package glee

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/go-git/go-billy/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Program is a deferred path. Running it builds the state for the path,
// which is then executed until it completes or forks.
type Program func() (*ExecutionState, error)

// ProgramPool holds the programs waiting to run. It is safe for concurrent
// use. Order is decided by the searcher.
type ProgramPool struct {
	mu       sync.Mutex
	cond     *sync.Cond
	searcher Searcher
	running  int
	closed   bool
}

// NewProgramPool returns a new instance of ProgramPool.
func NewProgramPool(searcher Searcher) *ProgramPool {
	p := &ProgramPool{searcher: searcher}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Add enqueues a program. Programs added after Close are dropped.
func (p *ProgramPool) Add(program Program) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.searcher.AddProgram(program)
	p.cond.Signal()
}

// TryTake removes the next program without waiting. The caller must call
// Done once the program has run.
func (p *ProgramPool) TryTake() (Program, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.searcher.Len() == 0 {
		return nil, false
	}
	p.running++
	return p.searcher.SelectProgram(), true
}

// Take removes the next program. While the pool is empty it waits for
// running programs, which may fork. Returns false once the pool is drained
// or closed. The caller must call Done once the program has run.
func (p *ProgramPool) Take() (Program, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for !p.closed && p.searcher.Len() == 0 && p.running > 0 {
		p.cond.Wait()
	}
	if p.closed || p.searcher.Len() == 0 {
		return nil, false
	}
	p.running++
	return p.searcher.SelectProgram(), true
}

// Done marks a taken program as finished.
func (p *ProgramPool) Done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running--
	if p.running == 0 && p.searcher.Len() == 0 {
		p.cond.Broadcast()
	}
}

// Close stops the pool. Pending programs are discarded.
func (p *ProgramPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.cond.Broadcast()
}

// Len returns the number of pending programs.
func (p *ProgramPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.searcher.Len()
}

// Executor explores the paths of a module.
type Executor struct {
	module   *Module
	config   Config
	space    *ConstraintSpace
	pool     *ProgramPool
	coverage *Coverage

	stateIDSeq      atomic.Int64 // autoincrementing state ID
	continuationSeq atomic.Uint64

	// Filesystem visible to the explored program. Nil makes every open fail.
	FS billy.Filesystem

	Logger  zerolog.Logger
	Metrics *Metrics
}

// NewExecutor returns an executor with the entry function of module queued
// as the first program. Entry parameters are named symbolic values.
func NewExecutor(module *Module, solver Solver, config Config) (*Executor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	entry, err := module.Function(module.Entry)
	if err != nil {
		return nil, err
	}
	searcher, err := NewSearcher(config.Search, config.Seed)
	if err != nil {
		return nil, err
	}

	e := &Executor{
		module:   module,
		config:   config,
		space:    NewConstraintSpace(solver, config.Target, config.SolverCache),
		pool:     NewProgramPool(searcher),
		coverage: NewCoverage(),
		Logger:   zerolog.Nop(),
	}
	e.pool.Add(e.rootProgram(entry))
	return e, nil
}

// Module returns the module being explored.
func (e *Executor) Module() *Module { return e.module }

// Config returns the executor configuration.
func (e *Executor) Config() Config { return e.config }

// Space returns the root space. Its stats cover every path.
func (e *Executor) Space() *ConstraintSpace { return e.space }

// Pool returns the program pool.
func (e *Executor) Pool() *ProgramPool { return e.pool }

// Coverage returns the blocks entered so far.
func (e *Executor) Coverage() *Coverage { return e.coverage }

// nextStateID returns the next autoincrementing state ID.
func (e *Executor) nextStateID() int {
	return int(e.stateIDSeq.Add(1))
}

func (e *Executor) rootProgram(entry Function) Program {
	return func() (*ExecutionState, error) {
		state := newExecutionState(e, e.space, NewMemory(e.config.Target), NewStack(), NewSystemProxy(NewSystem(e.FS)), NewGlobals())

		var args []Expr
		if fn, ok := entry.(*DefinedFunction); ok {
			for i, p := range fn.Params {
				name := p.Name
				if name == "" {
					name = fmt.Sprintf("arg%d", i)
				}
				args = append(args, state.space.CreateSymbolic(p.Width, name))
			}
		}
		return state, entry.Call(state, Caller{}, args)
	}
}

// ExecuteNextProgram runs the next program until its state completes or
// forks. A fatal state error fails that state and is not returned. Returns
// ErrNoProgramAvailable once the pool is empty.
func (e *Executor) ExecuteNextProgram() (*ExecutionState, error) {
	program, ok := e.pool.TryTake()
	if !ok {
		return nil, ErrNoProgramAvailable
	}
	defer e.pool.Done()
	return e.execute(program)
}

func (e *Executor) execute(program Program) (*ExecutionState, error) {
	e.Metrics.program()

	state, err := program()
	for err == nil {
		var ok bool
		if ok, err = state.TryExecuteNextInstruction(); !ok {
			break
		}
	}

	if err != nil {
		var serr *StateError
		if state == nil || !errors.As(err, &serr) {
			return state, err
		}
		state.fail(serr)
	}

	if state.status != ExecutionStatusForked {
		e.Metrics.path(state.status)
		e.Logger.Debug().
			Int("state", state.id).
			Int("parent", state.parent).
			Str("status", string(state.status)).
			Str("reason", state.reason).
			Msg("path complete")
	}
	return state, nil
}

// PathResult is the outcome of a completed path.
type PathResult struct {
	StateID  int
	ParentID int
	Status   ExecutionStatus
	Reason   string

	// Value passed to exit or returned by the entry function.
	ExitValue Expr

	// Values of the named symbols that drive execution down the path. For a
	// failed path they trigger the failure.
	Example map[string]uint64
}

func (e *Executor) result(state *ExecutionState) (*PathResult, error) {
	space := state.space
	if state.err != nil && state.err.Space != nil {
		space = state.err.Space
	}
	example, err := space.Example()
	if errors.Is(err, ErrUnsatisfiable) {
		// Allocation constraints can leave a path with no feasible inputs.
		e.Logger.Debug().Int("state", state.id).Str("status", string(state.status)).Msg("path infeasible")
		return &PathResult{
			StateID:  state.id,
			ParentID: state.parent,
			Status:   ExecutionStatusPruned,
			Reason:   PathInfeasible,
		}, nil
	} else if err != nil {
		return nil, fmt.Errorf("example: state=%d: %w", state.id, err)
	}

	return &PathResult{
		StateID:   state.id,
		ParentID:  state.parent,
		Status:    state.status,
		Reason:    state.reason,
		ExitValue: state.exitValue,
		Example:   example,
	}, nil
}

// Run drains the program pool with the configured number of workers and
// returns the completed paths ordered by state ID. Run stops early once
// MaxPaths paths complete or ctx is canceled. It may only be called once.
func (e *Executor) Run(ctx context.Context) ([]*PathResult, error) {
	logger := e.Logger.With().Str("run", uuid.New().String()).Logger()
	logger.Info().Int("workers", e.config.Workers).Str("search", e.config.Search).Msg("run started")

	parent := ctx
	g, ctx := errgroup.WithContext(parent)
	go func() {
		<-ctx.Done()
		e.pool.Close()
	}()

	var mu sync.Mutex
	var results []*PathResult
	for i := 0; i < e.config.Workers; i++ {
		g.Go(func() error {
			for {
				program, ok := e.pool.Take()
				if !ok {
					return nil
				}
				state, err := e.execute(program)
				e.pool.Done()
				if err != nil {
					return err
				} else if state.status == ExecutionStatusForked {
					continue
				}

				result, err := e.result(state)
				if err != nil {
					return err
				}

				mu.Lock()
				results = append(results, result)
				n := len(results)
				mu.Unlock()

				if e.config.MaxPaths > 0 && n >= e.config.MaxPaths {
					e.pool.Close()
					return nil
				}
			}
		})
	}

	err := g.Wait()
	sort.Slice(results, func(i, j int) bool { return results[i].StateID < results[j].StateID })
	if e.config.MaxPaths > 0 && len(results) > e.config.MaxPaths {
		results = results[:e.config.MaxPaths]
	}

	covered, total := e.coverage.Ratio(e.module)
	stats := e.space.Stats()
	logger.Info().
		Int("paths", len(results)).
		Int("covered", covered).
		Int("blocks", total).
		Int64("queries", stats.QueryN.Load()).
		Int64("cache_hits", stats.CacheHitN.Load()).
		Msg("run complete")

	if err != nil {
		return results, err
	}
	return results, parent.Err()
}
