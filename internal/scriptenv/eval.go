package scriptenv

import (
	"fmt"
	"strings"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

const (
	// defaultMaxSteps bounds interpreter work independently of wall time.
	defaultMaxSteps = uint64(10_000_000)
)

// Logs collects output from the log() builtin during an evaluation.
type Logs struct {
	entries []interface{}
}

// Append records one log line.
func (l *Logs) Append(entry interface{}) {
	l.entries = append(l.entries, entry)
}

// Entries returns the collected log lines.
func (l *Logs) Entries() []interface{} {
	return l.entries
}

// LogBuiltin returns a log(...) builtin that appends its arguments to logs.
// A single argument is recorded as-is; multiple arguments are joined with
// spaces into one line.
func LogBuiltin(logs *Logs) *starlark.Builtin {
	return starlark.NewBuiltin("log", func(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if len(kwargs) > 0 {
			return nil, fmt.Errorf("log: unexpected keyword arguments")
		}
		if len(args) == 1 {
			v, err := FromStarlark(args[0])
			if err != nil {
				v = args[0].String()
			}
			logs.Append(v)
			return starlark.None, nil
		}
		parts := make([]string, 0, len(args))
		for _, arg := range args {
			if s, ok := starlark.AsString(arg); ok {
				parts = append(parts, s)
			} else {
				parts = append(parts, arg.String())
			}
		}
		logs.Append(strings.Join(parts, " "))
		return starlark.None, nil
	})
}

// EvalExpression evaluates a single expression against the given globals,
// racing it against the timeout. On expiry the thread is cancelled and the
// evaluation error is returned; whichever settles first wins.
//
// Trailing semicolons are stripped before parsing since expressions reject
// them.
func EvalExpression(expr string, globals starlark.StringDict, timeout time.Duration) (starlark.Value, error) {
	expr = strings.TrimSpace(expr)
	for strings.HasSuffix(expr, ";") {
		expr = strings.TrimSpace(strings.TrimSuffix(expr, ";"))
	}
	if expr == "" {
		return nil, fmt.Errorf("empty expression")
	}

	thread := &starlark.Thread{Name: "query-expression"}
	thread.SetMaxExecutionSteps(defaultMaxSteps)

	var result starlark.Value
	err := runWithTimeout(thread, timeout, func() error {
		value, err := starlark.EvalOptions(&syntax.FileOptions{}, thread, "<query>", expr, globals)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ExecScript executes a multi-statement script against the given globals. If
// the script assigns a top-level `result` variable, its converted value is
// returned; otherwise the result is nil.
func ExecScript(src string, globals starlark.StringDict, timeout time.Duration) (interface{}, error) {
	thread := &starlark.Thread{Name: "script"}
	thread.SetMaxExecutionSteps(defaultMaxSteps)

	var out starlark.StringDict
	err := runWithTimeout(thread, timeout, func() error {
		executed, err := starlark.ExecFileOptions(&syntax.FileOptions{}, thread, "script.star", src, globals)
		if err != nil {
			return err
		}
		out = executed
		return nil
	})
	if err != nil {
		return nil, err
	}

	resultValue, ok := out["result"]
	if !ok {
		return nil, nil
	}
	return FromStarlark(resultValue)
}

func runWithTimeout(thread *starlark.Thread, timeout time.Duration, fn func() error) error {
	if timeout <= 0 {
		return fn()
	}

	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		thread.Cancel("execution timed out")
		<-done
		return fmt.Errorf("execution timed out after %d seconds", int(timeout.Seconds()))
	}
}
