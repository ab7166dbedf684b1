package main

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var trace bool

var rootCmd = &cobra.Command{
	Use:   "solar-forth [script ...]",
	Short: "a tiny Forth-like language with timers and TCP",
	Long: `solar-forth interprets a small stack-based concatenative language
wired to an asynchronous I/O event loop.

Script files are interpreted in order; with no arguments an interactive
prompt reads one line at a time. Quotations [ ... ] stored by the uv:
words run when their timer fires, a client connects, or bytes arrive.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.Flags().BoolVar(&trace, "trace", false, "trace execution (for debugging)")
}

func run(cmd *cobra.Command, args []string) error {
	opts := []VMOption{WithOutput(os.Stdout)}
	if trace {
		opts = append(opts, WithLogf(logrus.StandardLogger().Debugf))
		logrus.SetLevel(logrus.DebugLevel)
	}
	vm := New(opts...)
	defer vm.Close()

	ctx := cmd.Context()
	if len(args) == 0 {
		return repl(ctx, vm)
	}
	for _, path := range args {
		src, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("cannot read %v: %w", path, err)
		}
		if err := vm.Eval(ctx, src); err != nil {
			return err
		}
	}
	return nil
}

// repl reads one line at a time until bye clears the run flag or input
// ends.
func repl(ctx context.Context, vm *VM) error {
	in := bufio.NewScanner(os.Stdin)
	for vm.Running() {
		fmt.Print("> ")
		if !in.Scan() {
			break
		}
		if err := vm.Eval(ctx, in.Bytes()); err != nil {
			return err
		}
	}
	return in.Err()
}
