// Package script runs node scripts in a restricted Go interpreter.
//
// A script is the body of
//
//	func Run(env *tasktree.Env) error
//
// or a complete "package main" source defining that function. Only a small
// subset of the standard library can be imported; os, net, unsafe and
// syscall are never available. The Env is the only channel to the traversal.
package script

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"reflect"
	"strings"
	"sync"

	"github.com/aretw0/tasktree/pkg/domain"
	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// EntryPoint is the function every script defines.
const EntryPoint = "Run"

// ImportPath is the package scripts import to name the Env type.
const ImportPath = "tasktree"

// DefaultAllowed lists the importable standard packages.
var DefaultAllowed = []string{
	"bytes", "encoding/json", "errors", "fmt", "math", "regexp",
	"sort", "strconv", "strings", "time", "unicode", "unicode/utf8",
}

// Env is the binding injected into a script.
type Env struct {
	lookup func(ref string) (any, error)
	store  func(name string, value any)
	out    io.Writer
}

// NewEnv builds an Env. lookup resolves input references; store writes the variable environment.
func NewEnv(lookup func(string) (any, error), store func(string, any)) *Env {
	return &Env{lookup: lookup, store: store, out: io.Discard}
}

// Input resolves a reference: a variable name, asset://path or node_output://path.
func (e *Env) Input(ref string) (any, error) {
	if e.lookup == nil {
		return nil, fmt.Errorf("%w: input %q", domain.ErrNotFound, ref)
	}
	return e.lookup(ref)
}

// Set stores a variable owned by the running node.
func (e *Env) Set(name string, value any) {
	if e.store != nil {
		e.store(name, value)
	}
}

// Print writes to the captured output.
func (e *Env) Print(args ...any) { fmt.Fprint(e.out, args...) }

// Printf writes formatted text to the captured output.
func (e *Env) Printf(format string, args ...any) { fmt.Fprintf(e.out, format, args...) }

// Errorf builds an error to return from Run.
func (e *Env) Errorf(format string, args ...any) error { return fmt.Errorf(format, args...) }

// Error wraps a script failure. It unwraps to domain.ErrExecution.
type Error struct {
	Stage string // compile, run or panic
	Err   error
}

func (e *Error) Error() string { return fmt.Sprintf("script %s: %v", e.Stage, e.Err) }

func (e *Error) Is(target error) bool { return target == domain.ErrExecution }

func (e *Error) Unwrap() error { return e.Err }

// Interpreter evaluates scripts against a fixed symbol table. It is safe for concurrent use;
// every Run gets a fresh interpreter.
type Interpreter struct {
	symbols interp.Exports
}

// New creates an interpreter allowing the given standard packages, or DefaultAllowed when none are given.
func New(allowed ...string) *Interpreter {
	if len(allowed) == 0 {
		allowed = DefaultAllowed
	}
	return &Interpreter{symbols: restrict(stdlib.Symbols, allowed)}
}

var forbidden = map[string]bool{"os": true, "net": true, "unsafe": true, "syscall": true, "os/exec": true}

func restrict(all interp.Exports, allowed []string) interp.Exports {
	keep := make(map[string]bool, len(allowed))
	for _, p := range allowed {
		if !forbidden[p] && !strings.HasPrefix(p, "net/") {
			keep[p] = true
		}
	}
	out := make(interp.Exports)
	for key, syms := range all {
		if keep[path.Dir(key)] {
			out[key] = syms
		}
	}
	out[ImportPath+"/"+ImportPath] = map[string]reflect.Value{
		"Env": reflect.ValueOf((*Env)(nil)),
	}
	return out
}

// Source turns a script body into a complete program. Complete programs are returned unchanged.
func Source(body string) string {
	if strings.HasPrefix(strings.TrimSpace(body), "package ") {
		return body
	}
	var sb strings.Builder
	sb.WriteString("package main\n\nimport \"" + ImportPath + "\"\n\n")
	sb.WriteString("func " + EntryPoint + "(env *" + ImportPath + ".Env) error {\n")
	sb.WriteString(body)
	sb.WriteString("\n\treturn nil\n}\n")
	return sb.String()
}

// Run executes the script and returns everything it printed.
func (in *Interpreter) Run(ctx context.Context, body string, env *Env) (string, error) {
	var (
		mu  sync.Mutex
		buf bytes.Buffer
	)
	out := writerFunc(func(p []byte) (int, error) {
		mu.Lock()
		defer mu.Unlock()
		return buf.Write(p)
	})
	output := func() string {
		mu.Lock()
		defer mu.Unlock()
		return buf.String()
	}
	env.out = out

	i := interp.New(interp.Options{Stdout: out, Stderr: out})
	if err := i.Use(in.symbols); err != nil {
		return "", &Error{Stage: "compile", Err: err}
	}
	if _, err := i.EvalWithContext(ctx, Source(body)); err != nil {
		return output(), &Error{Stage: "compile", Err: err}
	}
	fn, err := i.Eval(EntryPoint)
	if err != nil {
		return output(), &Error{Stage: "compile", Err: fmt.Errorf("missing %s(env *%s.Env) error: %w", EntryPoint, ImportPath, err)}
	}
	if fn.Kind() != reflect.Func {
		return output(), &Error{Stage: "compile", Err: fmt.Errorf("%s is not a function", EntryPoint)}
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- &Error{Stage: "panic", Err: fmt.Errorf("%v", r)}
			}
		}()
		done <- call(fn, env)
	}()

	select {
	case err := <-done:
		return output(), err
	case <-ctx.Done():
		return output(), &Error{Stage: "run", Err: ctx.Err()}
	}
}

func call(fn reflect.Value, env *Env) error {
	results := fn.Call([]reflect.Value{reflect.ValueOf(env)})
	if len(results) != 1 {
		return &Error{Stage: "compile", Err: fmt.Errorf("%s must return exactly one error", EntryPoint)}
	}
	if results[0].IsNil() {
		return nil
	}
	if e, ok := results[0].Interface().(error); ok {
		return &Error{Stage: "run", Err: e}
	}
	return &Error{Stage: "run", Err: fmt.Errorf("%s returned a non-error value", EntryPoint)}
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }
