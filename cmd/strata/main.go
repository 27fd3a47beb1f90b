// cmd/strata/main.go
//
// strata is Strata's CLI shell: a single binary that either runs one
// command and exits (shell mode), or, with no subcommand, drives a
// REPL against a TTY or a one-command-per-line loop against a pipe.
// Built on cobra for flag/subcommand parsing.
package main

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"strata/internal/key"
	"strata/pkg/cli"
	"strata/pkg/strata"
)

var (
	flagDB       string
	flagReadOnly bool
	flagBranch   string
	flagSpace    string
	flagJSON     bool
	flagRaw      bool
)

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "(error) %s\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "strata",
		Short: "Strata is an embeddable, agent-oriented database engine.",
		// With no subcommand, fall into the REPL (TTY) or pipe
		// (non-TTY) loop.
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInteractive()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagDB, "db", "", "database directory (empty for an in-memory engine)")
	root.PersistentFlags().BoolVar(&flagReadOnly, "read-only", false, "open the database read-only")
	root.PersistentFlags().StringVar(&flagBranch, "branch", "", "select (or create) a run by tag for this invocation")
	root.PersistentFlags().StringVar(&flagSpace, "space", "", "default namespace for commands that accept one")
	root.PersistentFlags().BoolVar(&flagJSON, "json", false, "machine-readable JSON output")
	root.PersistentFlags().BoolVar(&flagRaw, "raw", false, "value-only output, no decoration")

	for _, name := range []string{"kv", "json", "event", "cell", "trace", "vector", "run", "bundle"} {
		root.AddCommand(newPrimitiveCommand(name))
	}
	return root
}

// newPrimitiveCommand builds one subcommand per primitive, each
// forwarding its own name plus its arguments into the same Dispatch
// the REPL and pipe-mode loop use, so shell mode, REPL, and pipe mode
// share one command grammar.
func newPrimitiveCommand(name string) *cobra.Command {
	return &cobra.Command{
		Use:                name + " OP [args...]",
		Short:              "Operate on the " + name + " primitive",
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, sess, err := openSession()
			if err != nil {
				return err
			}
			defer db.Close()
			code := cli.Dispatch(sess, append([]string{name}, args...), os.Stdout, os.Stderr)
			if code != 0 {
				os.Exit(code)
			}
			return nil
		},
	}
}

func outputMode() cli.OutputMode {
	switch {
	case flagJSON:
		return cli.ModeJSON
	case flagRaw:
		return cli.ModeRaw
	default:
		return cli.ModeHuman
	}
}

func openSession() (*strata.DB, *cli.Session, error) {
	opts := strata.Options{Path: flagDB, Durability: strata.DurabilityBatched}
	if flagDB == "" {
		opts.Durability = strata.DurabilityNone
	}
	if flagReadOnly {
		opts.AccessMode = strata.ReadOnly
	}
	db, err := strata.Open(opts)
	if err != nil {
		return nil, nil, err
	}
	sess := &cli.Session{DB: db, Mode: outputMode(), Space: flagSpace}
	if flagBranch != "" {
		runID, err := resolveBranch(db, flagBranch)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		sess.RunID, sess.HasRun = runID, true
	}
	return db, sess, nil
}

// resolveBranch maps a human-readable --branch tag onto a run id,
// creating a fresh tagged run on first use, so repeated invocations
// with the same --branch value keep operating on the same run.
func resolveBranch(db *strata.DB, tag string) (key.RunID, error) {
	for _, r := range db.RunQueryByTag(tag) {
		return r, nil
	}
	return db.RunCreate([]string{tag})
}

// runInteractive falls into the REPL loop on a TTY and the
// one-command-per-line pipe loop otherwise, both served
// by pkg/cli.REPL; the two differ only in whether Shell's prompt is
// meaningful to a human, matched here via go-isatty.
func runInteractive() error {
	repl, err := cli.NewREPL(flagDB, os.Stdout, os.Stderr)
	if err != nil {
		return err
	}
	defer repl.Close()
	repl.SetOutputMode(outputMode())
	repl.SetSpace(flagSpace)
	if flagBranch != "" {
		runID, err := resolveBranch(repl.DB(), flagBranch)
		if err != nil {
			return err
		}
		repl.SetRun(runID)
	}
	if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		repl.DisablePrompt()
	}
	repl.Run()
	return nil
}
