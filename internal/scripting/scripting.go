// Package scripting executes operator-supplied scripts in a Starlark sandbox.
// Scripts get no host I/O, no module loading and no blocking primitives; a
// step budget bounds how much work a single script may do.
package scripting

import (
	"errors"
	"fmt"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// DefaultOpBudget is the abstract operation budget applied when the caller
// does not supply one.
const DefaultOpBudget uint64 = 10_000

// ErrTooManyOps is returned when a script exhausts its operation budget.
var ErrTooManyOps = errors.New("script exceeded its operation budget")

// reservedNames are callables rejected before execution. Starlark has no
// sleep builtin, but a config-supplied script may still try to call one and
// must be refused statically rather than at runtime.
var reservedNames = map[string]struct{}{
	"sleep": {},
}

const sourceName = "script"

// Engine runs scripts. It holds no state between executions; each run gets a
// fresh thread and a fresh, empty global environment.
type Engine struct{}

// New creates an Engine.
func New() *Engine {
	return &Engine{}
}

// Execute runs source with the given operation budget and returns the
// captured print output, newline-joined, with the script's own value appended
// last. Every failure mode is reduced to an error whose message is safe to
// show to an end user verbatim.
func (e *Engine) Execute(source string, opBudget uint64) (string, error) {
	if opBudget == 0 {
		opBudget = DefaultOpBudget
	}

	// Scripts are plain imperative snippets, not modules: loops and
	// reassignment at top level must work, and the step budget is what
	// bounds recursion.
	opts := &syntax.FileOptions{
		While:           true,
		TopLevelControl: true,
		GlobalReassign:  true,
		Recursion:       true,
	}

	parsed, err := opts.Parse(sourceName, source, 0)
	if err != nil {
		return "", fmt.Errorf("script failed to parse: %v", err)
	}
	if name, found := findReservedCall(parsed); found {
		return "", fmt.Errorf("script calls the forbidden builtin %q", name)
	}

	var printed []string
	thread := &starlark.Thread{
		Name: sourceName,
		Print: func(_ *starlark.Thread, msg string) {
			printed = append(printed, msg)
		},
	}
	thread.SetMaxExecutionSteps(opBudget)

	value, err := run(opts, thread, source)
	if err != nil {
		if strings.Contains(err.Error(), "too many steps") {
			return "", ErrTooManyOps
		}
		var evalErr *starlark.EvalError
		if errors.As(err, &evalErr) {
			return "", fmt.Errorf("script failed: %v", evalErr)
		}
		return "", fmt.Errorf("script failed: %v", err)
	}

	printed = append(printed, value.String())
	return strings.Join(printed, "\n"), nil
}

// run evaluates the script. A single expression evaluates to its value;
// anything else executes as a module and reports None, since a Starlark
// module has no top-level value of its own.
func run(opts *syntax.FileOptions, thread *starlark.Thread, source string) (starlark.Value, error) {
	if _, err := opts.ParseExpr(sourceName, source, 0); err == nil {
		return starlark.EvalOptions(opts, thread, sourceName, source, starlark.StringDict{})
	}

	_, err := starlark.ExecFileOptions(opts, thread, sourceName, source, starlark.StringDict{})
	if err != nil {
		return nil, err
	}
	return starlark.None, nil
}

// findReservedCall walks the parsed program, including every function body,
// and reports the first call to a reserved name.
func findReservedCall(file *syntax.File) (string, bool) {
	var found string

	var walk func(n syntax.Node) bool
	walk = func(n syntax.Node) bool {
		if found != "" {
			return false
		}
		call, ok := n.(*syntax.CallExpr)
		if !ok {
			return true
		}
		if ident, ok := call.Fn.(*syntax.Ident); ok {
			if _, reserved := reservedNames[ident.Name]; reserved {
				found = ident.Name
				return false
			}
		}
		return true
	}

	for _, stmt := range file.Stmts {
		syntax.Walk(stmt, walk)
	}

	return found, found != ""
}
