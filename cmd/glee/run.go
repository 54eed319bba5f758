package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/symforge/glee"
	"github.com/symforge/glee/gossa"
	"github.com/symforge/glee/sat"
	"golang.org/x/tools/go/ssa"
)

// SymbolicTestPrefix selects the functions explored when none is named.
var SymbolicTestPrefix = "SymbolicTest"

// RunCommand represents a command for exploring the paths of Go functions.
type RunCommand struct {
	Stdout io.Writer
	Stderr io.Writer
}

// NewRunCommand returns a new instance of RunCommand.
func NewRunCommand() *RunCommand {
	return &RunCommand{}
}

// Command returns the cobra command for the "run" subcommand.
func (cmd *RunCommand) Command() *cobra.Command {
	c := &cobra.Command{
		Use:   "run PACKAGE [FUNCTION]",
		Short: "Explore every path of a function",
		Long: `Run translates a Go function into the intermediate representation and
explores every path through it. Each completed path is printed with its
status and the symbolic input values that drive execution down it.

Without a function name, every function prefixed with SymbolicTest is run.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(c *cobra.Command, args []string) error {
			config, err := loadConfig(c.Flags())
			if err != nil {
				return err
			}
			cmd.Stdout, cmd.Stderr = c.OutOrStdout(), c.ErrOrStderr()
			return cmd.Run(c.Context(), config, args)
		},
	}
	registerFlags(c.Flags())
	return c
}

// Run executes the "run" subcommand.
func (cmd *RunCommand) Run(ctx context.Context, config Config, args []string) error {
	logger, err := NewLogger(config.Log, cmd.Stderr)
	if err != nil {
		return err
	}

	fns, err := findFunctions(args)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	metrics := glee.NewMetrics(reg)
	if config.Metrics.Addr != "" {
		ln, err := net.Listen("tcp", config.Metrics.Addr)
		if err != nil {
			return err
		}
		defer ln.Close()

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.Serve(ln, mux); err != nil && !errors.Is(err, net.ErrClosed) {
				logger.Error().Err(err).Msg("metrics server")
			}
		}()
		logger.Info().Str("addr", ln.Addr().String()).Msg("serving metrics")
	}

	for _, fn := range fns {
		if err := cmd.runFunction(ctx, config, fn, metrics, reg, logger); err != nil {
			return fmt.Errorf("%s: %w", fn.Name(), err)
		}
	}
	return nil
}

// runFunction explores a single function and prints its paths.
func (cmd *RunCommand) runFunction(ctx context.Context, config Config, fn *ssa.Function, metrics *glee.Metrics, reg prometheus.Registerer, logger zerolog.Logger) error {
	target, err := gossa.Target(config.Arch)
	if err != nil {
		return err
	}
	config.Target = target

	m, err := gossa.Translate(fn, config.Arch)
	if err != nil {
		return err
	}

	solver := sat.NewSolver()
	solver.Timeout = config.SolverTimeout
	e, err := glee.NewExecutor(m, solver, config.Config)
	if err != nil {
		return err
	}
	e.Logger = logger.With().Str("func", fn.Name()).Logger()
	e.Metrics = metrics
	if config.Root != "" {
		e.FS = osfs.New(config.Root)
	}

	// Solver counters belong to the executor's space, so they are labeled
	// per function.
	glee.RegisterSpaceStats(prometheus.WrapRegistererWith(prometheus.Labels{"func": fn.Name()}, reg), e.Space().Stats())

	results, err := e.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.Stdout, "%s: %d paths\n", fn.Name(), len(results))
	for _, r := range results {
		printResult(cmd.Stdout, r)
	}
	return nil
}

// printResult writes the status, exit value and example of a path.
func printResult(w io.Writer, r *glee.PathResult) {
	fmt.Fprintf(w, "path #%d: %s", r.StateID, r.Status)
	if r.Reason != "" {
		fmt.Fprintf(w, ": %s", r.Reason)
	}
	if c, ok := r.ExitValue.(*glee.ConstantExpr); ok {
		fmt.Fprintf(w, " (exit %d)", c.Value)
	} else if r.ExitValue != nil {
		fmt.Fprintf(w, " (exit %s)", r.ExitValue)
	}
	fmt.Fprintln(w)

	names := make([]string, 0, len(r.Example))
	for name := range r.Example {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "\t%s = 0x%x\n", name, r.Example[name])
	}
}

// findFunctions loads the package in args[0] and returns the function named
// by args[1] or every symbolic test.
func findFunctions(args []string) ([]*ssa.Function, error) {
	prog, err := gossa.Load("", args[0])
	if err != nil {
		return nil, err
	}

	if len(args) > 1 {
		fn := prog.Function(args[1])
		if fn == nil {
			return nil, fmt.Errorf("function not found: %s", args[1])
		}
		return []*ssa.Function{fn}, nil
	}

	var fns []*ssa.Function
	for _, fn := range prog.Functions() {
		if strings.HasPrefix(fn.Name(), SymbolicTestPrefix) {
			fns = append(fns, fn)
		}
	}
	if len(fns) == 0 {
		return nil, fmt.Errorf("no functions with prefix %s", SymbolicTestPrefix)
	}
	sort.Slice(fns, func(i, j int) bool { return fns[i].Name() < fns[j].Name() })
	return fns, nil
}
