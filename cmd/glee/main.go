package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// NewRootCommand returns the glee command with its subcommands attached.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "glee",
		Short: "Glee is a tool for symbolic execution of Go code.",
		Long: `Glee is a tool for symbolic execution of Go code.

Functions are translated into an intermediate representation and every
feasible path through them is explored. Values returned by the functions
in github.com/symforge/glee become symbolic inputs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(NewRunCommand().Command())
	root.AddCommand(NewIRCommand().Command())
	return root
}
