// pkg/cli/dispatch.go
package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"strata/internal/errs"
	"strata/internal/gc"
	"strata/internal/key"
	"strata/internal/run"
	"strata/internal/txn"
	"strata/internal/value"
	"strata/pkg/eventlog"
	"strata/pkg/jsondoc"
	"strata/pkg/kvstore"
	"strata/pkg/runindex"
	"strata/pkg/statecell"
	"strata/pkg/strata"
	"strata/pkg/trace"
	"strata/pkg/vectorindex"
	"strata/pkg/wire"
)

// OutputMode selects how Dispatch renders a result: --json
// machine-readable, --raw value-only, default human-readable.
type OutputMode int

const (
	ModeHuman OutputMode = iota
	ModeJSON
	ModeRaw
)

// Session holds the state one CLI invocation (or one REPL) carries
// across commands: the open database handle, the output mode, and the
// "current run" a `use` meta-command or the --branch flag selects.
type Session struct {
	DB     *strata.DB
	Mode   OutputMode
	RunID  key.RunID
	HasRun bool

	// Space is the --space flag's default namespace. A bare "." in any
	// command's namespace position is substituted with it.
	Space string
}

// Dispatch executes one already-tokenized command line (e.g. from
// SplitArgs) against sess, writing results to out and errors to
// errOut. It returns the process exit code: 0 on success, 1 on error.
func Dispatch(sess *Session, args []string, out, errOut io.Writer) int {
	if len(args) == 0 {
		return 0
	}
	primitive := strings.ToLower(args[0])
	rest := applyDefaultSpace(sess, args[1:])

	var err error
	switch primitive {
	case "kv":
		err = dispatchKV(sess, rest, out)
	case "json":
		err = dispatchJSON(sess, rest, out)
	case "event":
		err = dispatchEvent(sess, rest, out)
	case "cell":
		err = dispatchCell(sess, rest, out)
	case "trace":
		err = dispatchTrace(sess, rest, out)
	case "vector":
		err = dispatchVector(sess, rest, out)
	case "run":
		err = dispatchRun(sess, rest, out)
	case "bundle":
		err = dispatchBundle(sess, rest, out)
	default:
		err = errs.Newf(errs.KindInvalidPath, "unknown command %q", primitive)
	}

	if err != nil {
		printError(sess, err, errOut)
		return 1
	}
	return 0
}

// applyDefaultSpace substitutes a bare "." argument with sess.Space, so
// invocations like `kv get . name` pick up the --space flag's default
// namespace instead of repeating it on every command. Arguments are
// otherwise passed through unchanged.
func applyDefaultSpace(sess *Session, args []string) []string {
	if sess.Space == "" {
		return args
	}
	out := make([]string, len(args))
	for i, a := range args {
		if a == "." {
			out[i] = sess.Space
		} else {
			out[i] = a
		}
	}
	return out
}

func printError(sess *Session, err error, errOut io.Writer) {
	if sess.Mode == ModeJSON {
		data, encErr := wire.EncodeError(err)
		if encErr == nil {
			fmt.Fprintln(errOut, string(data))
			return
		}
	}
	fmt.Fprintf(errOut, "(error) %s\n", err.Error())
}

func (s *Session) currentRun(explicit string) (key.RunID, error) {
	if explicit != "" {
		return key.ParseRunID(explicit)
	}
	if s.HasRun {
		return s.RunID, nil
	}
	return key.RunID{}, errs.New(errs.KindInvalidPath, "no run selected: pass a run id or use 'use <run>' / --branch")
}

func printValue(sess *Session, out io.Writer, v value.Value) error {
	switch sess.Mode {
	case ModeJSON:
		data, err := wire.EncodeValue(v)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
	case ModeRaw:
		fmt.Fprintln(out, rawString(v))
	default:
		fmt.Fprintln(out, v.String())
	}
	return nil
}

func rawString(v value.Value) string {
	switch v.Type() {
	case value.TypeString:
		return v.Text()
	case value.TypeNull:
		return ""
	default:
		return v.String()
	}
}

func printLine(sess *Session, out io.Writer, humanJSONRaw string) {
	fmt.Fprintln(out, humanJSONRaw)
}

// parseValue turns one CLI argument into a Value, trying JSON first
// (so object/array/number/bool/null literals and wire-format escape
// wrappers all work) and treating anything unparseable as a bareword
// string literal.
func parseValue(arg string) (value.Value, error) {
	if v, err := wire.DecodeValue([]byte(arg)); err == nil {
		return v, nil
	}
	return value.String(arg), nil
}

// --- kv ---

func dispatchKV(sess *Session, args []string, out io.Writer) error {
	if len(args) < 1 {
		return errs.New(errs.KindInvalidPath, "usage: kv get|put|del|cas|history|getat <ns> <name> [args...]")
	}
	op := args[0]
	r, err := sess.currentRun("")
	if err != nil {
		return err
	}
	kv := kvstore.Open(sess.DB, r)
	switch op {
	case "get":
		if len(args) != 3 {
			return errs.New(errs.KindInvalidPath, "usage: kv get <ns> <name>")
		}
		v, ok, err := kv.Get(args[1], args[2])
		if err != nil {
			return err
		}
		if !ok {
			return errs.Newf(errs.KindNotFound, "kv: %s/%s not found", args[1], args[2])
		}
		return printValue(sess, out, v)
	case "put":
		if len(args) != 4 {
			return errs.New(errs.KindInvalidPath, "usage: kv put <ns> <name> <value>")
		}
		v, err := parseValue(args[3])
		if err != nil {
			return err
		}
		if err := kv.Put(args[1], args[2], v); err != nil {
			return err
		}
		printLine(sess, out, "OK")
		return nil
	case "del":
		if len(args) != 3 {
			return errs.New(errs.KindInvalidPath, "usage: kv del <ns> <name>")
		}
		if err := kv.Delete(args[1], args[2]); err != nil {
			return err
		}
		printLine(sess, out, "OK")
		return nil
	case "cas":
		if len(args) != 5 {
			return errs.New(errs.KindInvalidPath, "usage: kv cas <ns> <name> <expected|absent> <value>")
		}
		exp, err := parseExpectation(args[3])
		if err != nil {
			return err
		}
		v, err := parseValue(args[4])
		if err != nil {
			return err
		}
		if err := kv.CompareAndSwap(args[1], args[2], exp, v); err != nil {
			return err
		}
		printLine(sess, out, "OK")
		return nil
	case "history":
		if len(args) < 3 || len(args) > 4 {
			return errs.New(errs.KindInvalidPath, "usage: kv history <ns> <name> [limit]")
		}
		limit := 0
		if len(args) == 4 {
			n, err := strconv.Atoi(args[3])
			if err != nil {
				return errs.Newf(errs.KindInvalidPath, "invalid limit: %v", err)
			}
			limit = n
		}
		versions, err := kv.History(args[1], args[2], limit, 0)
		if err != nil {
			return err
		}
		for _, vv := range versions {
			printVersionedValue(sess, out, vv)
		}
		return nil
	case "getat":
		if len(args) != 4 {
			return errs.New(errs.KindInvalidPath, "usage: kv getat <ns> <name> <version>")
		}
		ver, err := strconv.ParseUint(args[3], 10, 64)
		if err != nil {
			return errs.Newf(errs.KindInvalidPath, "invalid version: %v", err)
		}
		v, err := kv.GetAt(args[1], args[2], ver)
		if err != nil {
			return err
		}
		return printValue(sess, out, v)
	default:
		return errs.Newf(errs.KindInvalidPath, "unknown kv op %q", op)
	}
}

func printVersionedValue(sess *Session, out io.Writer, vv strata.VersionedValue) {
	if sess.Mode == ModeJSON {
		data, err := wire.EncodeValue(vv.Value)
		if err != nil {
			fmt.Fprintf(out, "{\"version\":%d,\"timestamp\":%d,\"error\":%q}\n", vv.Version, vv.Timestamp, err.Error())
			return
		}
		fmt.Fprintf(out, "{\"version\":%d,\"timestamp\":%d,\"value\":%s}\n", vv.Version, vv.Timestamp, data)
		return
	}
	fmt.Fprintf(out, "%d\t%d\t%s\n", vv.Version, vv.Timestamp, vv.Value.String())
}

func parseExpectation(s string) (txn.CasExpectation, error) {
	if s == "absent" {
		return txn.CasExpectation{Absent: true}, nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return txn.CasExpectation{}, errs.Newf(errs.KindInvalidPath, "expected version must be a number or \"absent\": %v", err)
	}
	return txn.CasExpectation{Version: n}, nil
}

// --- json ---

func dispatchJSON(sess *Session, args []string, out io.Writer) error {
	if len(args) < 1 {
		return errs.New(errs.KindInvalidPath, "usage: json get|put|patch|del <ns> <name> [doc]")
	}
	op := args[0]
	r, err := sess.currentRun("")
	if err != nil {
		return err
	}
	jd := jsondoc.Open(sess.DB, r)
	switch op {
	case "get":
		if len(args) != 3 {
			return errs.New(errs.KindInvalidPath, "usage: json get <ns> <name>")
		}
		v, ok, err := jd.Get(args[1], args[2])
		if err != nil {
			return err
		}
		if !ok {
			return errs.Newf(errs.KindNotFound, "json: %s/%s not found", args[1], args[2])
		}
		return printValue(sess, out, v)
	case "put":
		if len(args) != 4 {
			return errs.New(errs.KindInvalidPath, "usage: json put <ns> <name> <doc>")
		}
		v, err := wire.DecodeValue([]byte(args[3]))
		if err != nil {
			return err
		}
		if err := jd.Put(args[1], args[2], v); err != nil {
			return err
		}
		printLine(sess, out, "OK")
		return nil
	case "patch":
		if len(args) != 4 {
			return errs.New(errs.KindInvalidPath, "usage: json patch <ns> <name> <patch>")
		}
		patch, err := wire.DecodeValue([]byte(args[3]))
		if err != nil {
			return err
		}
		merged, err := jd.Patch(args[1], args[2], patch)
		if err != nil {
			return err
		}
		return printValue(sess, out, merged)
	case "del":
		if len(args) != 3 {
			return errs.New(errs.KindInvalidPath, "usage: json del <ns> <name>")
		}
		if err := jd.Delete(args[1], args[2]); err != nil {
			return err
		}
		printLine(sess, out, "OK")
		return nil
	default:
		return errs.Newf(errs.KindInvalidPath, "unknown json op %q", op)
	}
}

// --- event ---

func dispatchEvent(sess *Session, args []string, out io.Writer) error {
	if len(args) < 1 {
		return errs.New(errs.KindInvalidPath, "usage: event append|read|range|tail <topic> [args...]")
	}
	op := args[0]
	r, err := sess.currentRun("")
	if err != nil {
		return err
	}
	switch op {
	case "append":
		if len(args) != 3 {
			return errs.New(errs.KindInvalidPath, "usage: event append <topic> <payload>")
		}
		v, err := parseValue(args[2])
		if err != nil {
			return err
		}
		seq, err := eventlog.Open(sess.DB, r, args[1]).Append(v)
		if err != nil {
			return err
		}
		printLine(sess, out, fmt.Sprintf("seq=%d", seq))
		return nil
	case "read":
		if len(args) != 3 {
			return errs.New(errs.KindInvalidPath, "usage: event read <topic> <seq>")
		}
		seq, err := strconv.ParseUint(args[2], 10, 64)
		if err != nil {
			return errs.Newf(errs.KindInvalidPath, "invalid sequence number: %v", err)
		}
		v, ok, err := eventlog.Open(sess.DB, r, args[1]).Read(seq)
		if err != nil {
			return err
		}
		if !ok {
			return errs.Newf(errs.KindNotFound, "event: %s#%d not found", args[1], seq)
		}
		return printValue(sess, out, v)
	case "range":
		if len(args) != 4 {
			return errs.New(errs.KindInvalidPath, "usage: event range <topic> <after-seq> <limit>")
		}
		after, err := strconv.ParseUint(args[2], 10, 64)
		if err != nil {
			return errs.Newf(errs.KindInvalidPath, "invalid after-seq: %v", err)
		}
		limit, err := strconv.Atoi(args[3])
		if err != nil {
			return errs.Newf(errs.KindInvalidPath, "invalid limit: %v", err)
		}
		vs, _, err := eventlog.Open(sess.DB, r, args[1]).Range(after, limit)
		if err != nil {
			return err
		}
		for _, v := range vs {
			if err := printValue(sess, out, v); err != nil {
				return err
			}
		}
		return nil
	case "tail":
		if len(args) != 2 {
			return errs.New(errs.KindInvalidPath, "usage: event tail <topic>")
		}
		seq, err := eventlog.Open(sess.DB, r, args[1]).Tail()
		if err != nil {
			return err
		}
		printLine(sess, out, fmt.Sprintf("%d", seq))
		return nil
	default:
		return errs.Newf(errs.KindInvalidPath, "unknown event op %q", op)
	}
}

// --- cell ---

func dispatchCell(sess *Session, args []string, out io.Writer) error {
	if len(args) < 1 {
		return errs.New(errs.KindInvalidPath, "usage: cell get|cas|incr <ns> <name> [args...]")
	}
	op := args[0]
	r, err := sess.currentRun("")
	if err != nil {
		return err
	}
	cell := statecell.Open(sess.DB, r)
	switch op {
	case "get":
		if len(args) != 3 {
			return errs.New(errs.KindInvalidPath, "usage: cell get <ns> <name>")
		}
		v, ok, err := cell.Get(args[1], args[2])
		if err != nil {
			return err
		}
		if !ok {
			return errs.Newf(errs.KindNotFound, "cell: %s/%s not found", args[1], args[2])
		}
		return printValue(sess, out, v)
	case "cas":
		if len(args) != 5 {
			return errs.New(errs.KindInvalidPath, "usage: cell cas <ns> <name> <expected|absent> <value>")
		}
		exp, err := parseExpectation(args[3])
		if err != nil {
			return err
		}
		v, err := parseValue(args[4])
		if err != nil {
			return err
		}
		if err := cell.CAS(args[1], args[2], exp, v); err != nil {
			return err
		}
		printLine(sess, out, "OK")
		return nil
	case "incr":
		if len(args) != 4 {
			return errs.New(errs.KindInvalidPath, "usage: cell incr <ns> <name> <delta>")
		}
		delta, err := strconv.ParseInt(args[3], 10, 64)
		if err != nil {
			return errs.Newf(errs.KindInvalidPath, "invalid delta: %v", err)
		}
		next, err := cell.Increment(args[1], args[2], delta)
		if err != nil {
			return err
		}
		printLine(sess, out, fmt.Sprintf("%d", next))
		return nil
	default:
		return errs.Newf(errs.KindInvalidPath, "unknown cell op %q", op)
	}
}

// --- trace ---

func dispatchTrace(sess *Session, args []string, out io.Writer) error {
	if len(args) < 2 {
		return errs.New(errs.KindInvalidPath, "usage: trace record|step|steps|del <trace-id> <args...>")
	}
	op, traceID := args[0], args[1]
	rest := args[2:]
	r, err := sess.currentRun("")
	if err != nil {
		return err
	}
	tr := trace.Open(sess.DB, r, traceID)
	switch op {
	case "record":
		if len(rest) != 2 {
			return errs.New(errs.KindInvalidPath, "usage: trace record <trace-id> <step> <payload>")
		}
		step, err := strconv.ParseUint(rest[0], 10, 64)
		if err != nil {
			return errs.Newf(errs.KindInvalidPath, "invalid step: %v", err)
		}
		v, err := parseValue(rest[1])
		if err != nil {
			return err
		}
		if err := tr.Record(step, v); err != nil {
			return err
		}
		printLine(sess, out, "OK")
		return nil
	case "step":
		if len(rest) != 1 {
			return errs.New(errs.KindInvalidPath, "usage: trace step <trace-id> <step>")
		}
		step, err := strconv.ParseUint(rest[0], 10, 64)
		if err != nil {
			return errs.Newf(errs.KindInvalidPath, "invalid step: %v", err)
		}
		v, ok, err := tr.Step(step)
		if err != nil {
			return err
		}
		if !ok {
			return errs.Newf(errs.KindNotFound, "trace: %s#%d not found", traceID, step)
		}
		return printValue(sess, out, v)
	case "steps":
		after, limit := uint64(0), 1000
		if len(rest) >= 1 {
			n, err := strconv.ParseUint(rest[0], 10, 64)
			if err != nil {
				return errs.Newf(errs.KindInvalidPath, "invalid after-step: %v", err)
			}
			after = n
		}
		if len(rest) >= 2 {
			n, err := strconv.Atoi(rest[1])
			if err != nil {
				return errs.Newf(errs.KindInvalidPath, "invalid limit: %v", err)
			}
			limit = n
		}
		vs, err := tr.Steps(after, limit)
		if err != nil {
			return err
		}
		for _, v := range vs {
			if err := printValue(sess, out, v); err != nil {
				return err
			}
		}
		return nil
	case "del":
		if len(rest) != 1 {
			return errs.New(errs.KindInvalidPath, "usage: trace del <trace-id> <step>")
		}
		step, err := strconv.ParseUint(rest[0], 10, 64)
		if err != nil {
			return errs.Newf(errs.KindInvalidPath, "invalid step: %v", err)
		}
		if err := tr.Delete(step); err != nil {
			return err
		}
		printLine(sess, out, "OK")
		return nil
	default:
		return errs.Newf(errs.KindInvalidPath, "unknown trace op %q", op)
	}
}

// --- vector ---

func dispatchVector(sess *Session, args []string, out io.Writer) error {
	if len(args) < 1 {
		return errs.New(errs.KindInvalidPath, "usage: vector upsert|del|search <args...>")
	}
	op := args[0]
	r, err := sess.currentRun("")
	if err != nil {
		return err
	}
	vi := vectorindex.Open(sess.DB, r)
	switch op {
	case "upsert":
		if len(args) != 4 {
			return errs.New(errs.KindInvalidPath, "usage: vector upsert <ns> <name> <comma-separated-floats>")
		}
		vec, err := parseFloatVector(args[3])
		if err != nil {
			return err
		}
		if err := vi.Upsert(args[1], args[2], vec); err != nil {
			return err
		}
		printLine(sess, out, "OK")
		return nil
	case "del":
		if len(args) != 3 {
			return errs.New(errs.KindInvalidPath, "usage: vector del <ns> <name>")
		}
		if err := vi.Delete(args[1], args[2]); err != nil {
			return err
		}
		printLine(sess, out, "OK")
		return nil
	case "search":
		if len(args) != 3 {
			return errs.New(errs.KindInvalidPath, "usage: vector search <k> <comma-separated-floats>")
		}
		k, err := strconv.Atoi(args[1])
		if err != nil {
			return errs.Newf(errs.KindInvalidPath, "invalid k: %v", err)
		}
		vec, err := parseFloatVector(args[2])
		if err != nil {
			return err
		}
		results, err := vi.Search(vec, k)
		if err != nil {
			return err
		}
		for _, res := range results {
			printLine(sess, out, fmt.Sprintf("%s\t%f", res.Target.String(), res.Distance))
		}
		return nil
	default:
		return errs.Newf(errs.KindInvalidPath, "unknown vector op %q", op)
	}
}

func parseFloatVector(s string) (*value.Vector, error) {
	parts := strings.Split(s, ",")
	data := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, errs.Newf(errs.KindInvalidPath, "invalid vector component %q: %v", p, err)
		}
		data[i] = float32(f)
	}
	return value.NewVector(data), nil
}

// --- run ---

func dispatchRun(sess *Session, args []string, out io.Writer) error {
	if len(args) < 1 {
		return errs.New(errs.KindInvalidPath, "usage: run create|get|transition|delete|list|bystate|bytag [args...]")
	}
	op := args[0]
	rest := args[1:]
	ix := runindex.Open(sess.DB)
	switch op {
	case "create":
		var tags []string
		if len(rest) >= 1 {
			tags = strings.Split(rest[0], ",")
		}
		r, err := ix.Create(tags)
		if err != nil {
			return err
		}
		printLine(sess, out, r.String())
		sess.RunID, sess.HasRun = r, true
		return nil
	case "get":
		if len(rest) != 1 {
			return errs.New(errs.KindInvalidPath, "usage: run get <run-id>")
		}
		r, err := key.ParseRunID(rest[0])
		if err != nil {
			return errs.Newf(errs.KindInvalidPath, "invalid run id: %v", err)
		}
		meta, err := ix.Get(r)
		if err != nil {
			return err
		}
		printRunMeta(sess, out, meta)
		return nil
	case "transition":
		if len(rest) != 2 {
			return errs.New(errs.KindInvalidPath, "usage: run transition <run-id> <state>")
		}
		r, err := key.ParseRunID(rest[0])
		if err != nil {
			return errs.Newf(errs.KindInvalidPath, "invalid run id: %v", err)
		}
		meta, err := ix.Transition(r, run.State(rest[1]))
		if err != nil {
			return err
		}
		printRunMeta(sess, out, meta)
		return nil
	case "delete":
		if len(rest) != 1 {
			return errs.New(errs.KindInvalidPath, "usage: run delete <run-id>")
		}
		r, err := key.ParseRunID(rest[0])
		if err != nil {
			return errs.Newf(errs.KindInvalidPath, "invalid run id: %v", err)
		}
		if err := ix.Delete(r); err != nil {
			return err
		}
		printLine(sess, out, "OK")
		return nil
	case "list":
		for _, meta := range ix.List() {
			printRunMeta(sess, out, meta)
		}
		return nil
	case "bystate":
		if len(rest) != 1 {
			return errs.New(errs.KindInvalidPath, "usage: run bystate <state>")
		}
		for _, r := range ix.ByState(run.State(rest[0])) {
			printLine(sess, out, r.String())
		}
		return nil
	case "bytag":
		if len(rest) != 1 {
			return errs.New(errs.KindInvalidPath, "usage: run bytag <tag>")
		}
		for _, r := range ix.ByTag(rest[0]) {
			printLine(sess, out, r.String())
		}
		return nil
	case "gc":
		now := time.Now().UnixNano()
		n := sess.DB.RunGC(now)
		printLine(sess, out, fmt.Sprintf("reclaimed %d entries", n))
		return nil
	case "retention":
		if len(rest) < 2 {
			return errs.New(errs.KindInvalidPath, "usage: run retention <run-id> keepall|keeplast:N|keepfor:DURATION")
		}
		r, err := key.ParseRunID(rest[0])
		if err != nil {
			return errs.Newf(errs.KindInvalidPath, "invalid run id: %v", err)
		}
		policy, err := parsePolicy(rest[1])
		if err != nil {
			return err
		}
		sess.DB.SetRetentionPolicy(r, policy)
		printLine(sess, out, "OK")
		return nil
	default:
		return errs.Newf(errs.KindInvalidPath, "unknown run op %q", op)
	}
}

func parsePolicy(s string) (gc.Policy, error) {
	parts := strings.SplitN(s, ":", 2)
	switch parts[0] {
	case "keepall":
		return gc.KeepAllPolicy{}, nil
	case "keeplast":
		if len(parts) != 2 {
			return nil, errs.New(errs.KindInvalidPath, "usage: keeplast:N")
		}
		n, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, errs.Newf(errs.KindInvalidPath, "invalid count: %v", err)
		}
		return gc.KeepLastPolicy{N: n}, nil
	case "keepfor":
		if len(parts) != 2 {
			return nil, errs.New(errs.KindInvalidPath, "usage: keepfor:DURATION")
		}
		d, err := time.ParseDuration(parts[1])
		if err != nil {
			return nil, errs.Newf(errs.KindInvalidPath, "invalid duration: %v", err)
		}
		return gc.KeepForPolicy{Duration: d}, nil
	default:
		return nil, errs.Newf(errs.KindInvalidPath, "unknown retention policy %q", parts[0])
	}
}

func printRunMeta(sess *Session, out io.Writer, meta run.Meta) {
	if sess.Mode == ModeJSON {
		fmt.Fprintf(out, "{\"run_id\":%q,\"state\":%q,\"tags\":%q}\n", meta.RunID.String(), meta.State, meta.Tags)
		return
	}
	fmt.Fprintf(out, "%s\t%s\t%v\n", meta.RunID.String(), meta.State, meta.Tags)
}

// --- bundle ---

func dispatchBundle(sess *Session, args []string, out io.Writer) error {
	if len(args) < 1 {
		return errs.New(errs.KindInvalidPath, "usage: bundle export|import <args...>")
	}
	op := args[0]
	rest := args[1:]
	switch op {
	case "export":
		if len(rest) != 2 {
			return errs.New(errs.KindInvalidPath, "usage: bundle export <run-id> <dest-dir>")
		}
		r, err := key.ParseRunID(rest[0])
		if err != nil {
			return errs.Newf(errs.KindInvalidPath, "invalid run id: %v", err)
		}
		path, err := sess.DB.BundleExport(r, rest[1])
		if err != nil {
			return err
		}
		printLine(sess, out, path)
		return nil
	case "import":
		if len(rest) != 1 {
			return errs.New(errs.KindInvalidPath, "usage: bundle import <path>")
		}
		if err := sess.DB.BundleImport(rest[0]); err != nil {
			return err
		}
		printLine(sess, out, "OK")
		return nil
	default:
		return errs.Newf(errs.KindInvalidPath, "unknown bundle op %q", op)
	}
}
