// pkg/cli/repl.go
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"strata/internal/key"
	"strata/pkg/strata"
)

// REPL drives Strata's interactive and pipe-mode loops: read a line,
// route meta-commands (`use`, `help`, `clear`, `quit`/`exit`), hand
// everything else to Dispatch.
type REPL struct {
	db    *strata.DB
	sess  *Session
	shell *Shell

	output    io.Writer
	errOutput io.Writer

	running bool
}

// NewREPL opens a database at dbPath (":memory:" for a purely
// in-memory engine) and wires a REPL reading from os.Stdin.
func NewREPL(dbPath string, output, errOutput io.Writer) (*REPL, error) {
	return NewREPLWithInput(dbPath, os.Stdin, output, errOutput)
}

// NewREPLWithInput is NewREPL with an explicit input stream, used by
// pipe mode and by tests driving the loop without a real terminal.
func NewREPLWithInput(dbPath string, input io.Reader, output, errOutput io.Writer) (*REPL, error) {
	opts := strata.Options{Durability: strata.DurabilityBatched}
	if dbPath == "" || dbPath == ":memory:" {
		opts.Path = ""
		opts.Durability = strata.DurabilityNone
	} else {
		opts.Path = dbPath
	}
	db, err := strata.Open(opts)
	if err != nil {
		return nil, err
	}
	shell := NewShell(input, output, errOutput)
	return &REPL{
		db:        db,
		sess:      &Session{DB: db, Mode: ModeHuman},
		shell:     shell,
		output:    output,
		errOutput: errOutput,
	}, nil
}

// Close releases the database handle.
func (r *REPL) Close() error {
	return r.db.Close()
}

// DB returns the REPL's open database handle, for callers (e.g.
// cmd/strata) that need to resolve a --branch tag before the loop starts.
func (r *REPL) DB() *strata.DB {
	return r.db
}

// DisablePrompt silences the interactive prompt, for pipe mode where
// a prompt string would just pollute piped output.
func (r *REPL) DisablePrompt() {
	r.shell.SetPrompt("")
}

// SetOutputMode switches between human, JSON, and raw rendering.
func (r *REPL) SetOutputMode(m OutputMode) {
	r.sess.Mode = m
}

// SetRun pins the REPL's current run, the way `--branch` or a `use`
// meta-command does.
func (r *REPL) SetRun(runID key.RunID) {
	r.sess.RunID, r.sess.HasRun = runID, true
}

// SetSpace sets the --space flag's default namespace for this REPL's
// session.
func (r *REPL) SetSpace(space string) {
	r.sess.Space = space
}

// ExecuteStatement runs one command line immediately, writing its
// result (or error) to the REPL's configured output streams. It
// returns an error if the command failed, so callers driving the loop
// programmatically can distinguish success from failure without
// scraping output.
func (r *REPL) ExecuteStatement(line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if handled, err := r.runMeta(line); handled {
		return err
	}
	args := SplitArgs(line)
	if Dispatch(r.sess, args, r.output, r.errOutput) != 0 {
		return fmt.Errorf("command failed: %s", line)
	}
	return nil
}

// runMeta handles the REPL-only meta-commands: `use`, `help`,
// `clear`, `quit`/`exit`. It reports whether line was a meta-command
// at all.
func (r *REPL) runMeta(line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	switch strings.ToLower(fields[0]) {
	case "use":
		if len(fields) != 2 {
			err := fmt.Errorf("usage: use <run-id>")
			fmt.Fprintf(r.errOutput, "(error) %s\n", err)
			return true, err
		}
		runID, err := key.ParseRunID(fields[1])
		if err != nil {
			fmt.Fprintf(r.errOutput, "(error) invalid run id: %s\n", err)
			return true, err
		}
		r.SetRun(runID)
		fmt.Fprintf(r.output, "using run %s\n", runID.String())
		return true, nil
	case "help":
		r.printHelp()
		return true, nil
	case "clear":
		r.shell.ClearHistory()
		return true, nil
	case "quit", "exit":
		r.running = false
		return true, nil
	default:
		return false, nil
	}
}

func (r *REPL) printHelp() {
	fmt.Fprint(r.output, `Strata commands:
  kv get|put|del|cas <ns> <name> [args...]
  json get|put|patch|del <ns> <name> [doc]
  event append|read|range|tail <topic> [args...]
  cell get|cas|incr <ns> <name> [args...]
  trace record|step|steps|del <trace-id> [args...]
  vector upsert|del|search [args...]
  run create|get|transition|delete|list|bystate|bytag|gc|retention [args...]
  bundle export|import <args...>
Meta-commands:
  use <run-id>   select the current run
  help           show this message
  clear          clear command history
  quit / exit    leave the REPL
`)
}

// Run drives the read-eval-print loop until EOF or a `quit`/`exit`
// meta-command.
func (r *REPL) Run() {
	r.running = true
	for r.running {
		line, eof := r.shell.ReadCommand()
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			r.ExecuteStatement(trimmed)
		}
		if eof {
			return
		}
	}
}
