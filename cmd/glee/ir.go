package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/symforge/glee/gossa"
)

// IRCommand represents a command for printing the translated form of a
// function.
type IRCommand struct {
	Stdout io.Writer
}

// NewIRCommand returns a new instance of IRCommand.
func NewIRCommand() *IRCommand {
	return &IRCommand{}
}

// Command returns the cobra command for the "ir" subcommand.
func (cmd *IRCommand) Command() *cobra.Command {
	c := &cobra.Command{
		Use:   "ir PACKAGE FUNCTION",
		Short: "Print the intermediate representation of a function",
		Args:  cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			config, err := loadConfig(c.Flags())
			if err != nil {
				return err
			}
			cmd.Stdout = c.OutOrStdout()
			return cmd.Run(c.Context(), config, args)
		},
	}
	registerFlags(c.Flags())
	return c
}

// Run executes the "ir" subcommand.
func (cmd *IRCommand) Run(ctx context.Context, config Config, args []string) error {
	fns, err := findFunctions(args)
	if err != nil {
		return err
	}

	m, err := gossa.Translate(fns[0], config.Arch)
	if err != nil {
		return fmt.Errorf("%s: %w", fns[0].Name(), err)
	}
	_, err = m.WriteTo(cmd.Stdout)
	return err
}
