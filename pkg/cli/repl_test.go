// pkg/cli/repl_test.go
package cli

import (
	"bytes"
	"strings"
	"testing"
)

func TestREPL_RunCreateAndKVRoundTrip(t *testing.T) {
	output := &bytes.Buffer{}
	errOutput := &bytes.Buffer{}

	repl, err := NewREPL(":memory:", output, errOutput)
	if err != nil {
		t.Fatalf("NewREPL failed: %v", err)
	}
	defer repl.Close()

	if err := repl.ExecuteStatement("run create agent-a"); err != nil {
		t.Fatalf("run create failed: %v, stderr=%s", err, errOutput.String())
	}
	lines := strings.Split(strings.TrimSpace(output.String()), "\n")
	runID := lines[len(lines)-1]

	output.Reset()
	if err := repl.ExecuteStatement("use " + runID); err != nil {
		t.Fatalf("use failed: %v", err)
	}

	output.Reset()
	if err := repl.ExecuteStatement(`kv put ns name 42`); err != nil {
		t.Fatalf("kv put failed: %v, stderr=%s", err, errOutput.String())
	}

	output.Reset()
	if err := repl.ExecuteStatement("kv get ns name"); err != nil {
		t.Fatalf("kv get failed: %v, stderr=%s", err, errOutput.String())
	}
	if got := strings.TrimSpace(output.String()); got != "42" {
		t.Errorf("kv get output = %q, want 42", got)
	}
}

func TestREPL_UnknownCommandReportsError(t *testing.T) {
	output := &bytes.Buffer{}
	errOutput := &bytes.Buffer{}

	repl, err := NewREPL(":memory:", output, errOutput)
	if err != nil {
		t.Fatalf("NewREPL failed: %v", err)
	}
	defer repl.Close()

	if err := repl.ExecuteStatement("frobnicate foo"); err == nil {
		t.Fatal("expected an error for an unknown command")
	}
	if !strings.Contains(errOutput.String(), "(error)") {
		t.Errorf("expected error output, got %q", errOutput.String())
	}
}

func TestREPL_DotCommandsRenamedToMeta(t *testing.T) {
	input := strings.NewReader("help\nquit\n")
	output := &bytes.Buffer{}
	errOutput := &bytes.Buffer{}

	repl, err := NewREPLWithInput(":memory:", input, output, errOutput)
	if err != nil {
		t.Fatalf("NewREPLWithInput failed: %v", err)
	}

	repl.Run()

	if !strings.Contains(output.String(), "Strata commands:") {
		t.Errorf("expected help text, got: %s", output.String())
	}
	if errOutput.Len() > 0 {
		t.Errorf("unexpected error output: %s", errOutput.String())
	}
}

func TestREPL_JSONOutputMode(t *testing.T) {
	output := &bytes.Buffer{}
	errOutput := &bytes.Buffer{}

	repl, err := NewREPL(":memory:", output, errOutput)
	if err != nil {
		t.Fatalf("NewREPL failed: %v", err)
	}
	defer repl.Close()
	repl.SetOutputMode(ModeJSON)

	if err := repl.ExecuteStatement("run create"); err != nil {
		t.Fatalf("run create failed: %v", err)
	}
	runID := strings.TrimSpace(output.String())
	output.Reset()

	if err := repl.ExecuteStatement("use " + runID); err != nil {
		t.Fatalf("use failed: %v", err)
	}
	output.Reset()

	if err := repl.ExecuteStatement(`kv put ns name "hello"`); err != nil {
		t.Fatalf("kv put failed: %v, stderr=%s", err, errOutput.String())
	}
	output.Reset()

	if err := repl.ExecuteStatement("kv get ns name"); err != nil {
		t.Fatalf("kv get failed: %v, stderr=%s", err, errOutput.String())
	}
	if got := strings.TrimSpace(output.String()); got != `"hello"` {
		t.Errorf("JSON output = %q, want %q", got, `"hello"`)
	}
}

func TestREPL_OpenInMemory(t *testing.T) {
	output := &bytes.Buffer{}
	errOutput := &bytes.Buffer{}

	repl, err := NewREPL(":memory:", output, errOutput)
	if err != nil {
		t.Fatalf("NewREPL with :memory: failed: %v", err)
	}
	defer repl.Close()

	if err := repl.ExecuteStatement("run create"); err != nil {
		t.Fatalf("run create failed: %v", err)
	}
}
