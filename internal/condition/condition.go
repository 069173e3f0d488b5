// Package condition evaluates per-task guard expressions in a sandboxed
// embedded Lua interpreter.
//
// A guard is a single Lua expression. A falsy result skips the task without
// failing the run; an evaluation error fails the run, since an unreadable
// guard means the manifest author's intent is unknown.
package condition

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"

	"flexrun/internal/task"
)

// DefaultTimeout bounds a single guard evaluation. Guards are meant to be
// tiny predicates; anything long-running is a manifest bug.
const DefaultTimeout = 5 * time.Second

// ErrGuard marks a guard expression that could not be evaluated. Callers use
// it to classify the failure as a manifest problem rather than a runner bug.
var ErrGuard = errors.New("guard evaluation failed")

// Evaluator runs guard expressions with access to a small, read-only view of
// the invocation: the task name, the working directory, and a file existence
// probe.
type Evaluator struct {
	// WorkDir anchors relative paths passed to file_exists.
	WorkDir string

	// Timeout bounds one evaluation. Zero means DefaultTimeout.
	Timeout time.Duration
}

// NewEvaluator creates an Evaluator bound to workDir.
func NewEvaluator(workDir string) *Evaluator {
	return &Evaluator{WorkDir: workDir}
}

// ShouldRun evaluates the task's guard expression.
//
// Tasks without a guard always run.
func (e *Evaluator) ShouldRun(t *task.Task) (bool, error) {
	if t == nil {
		return false, fmt.Errorf("task is nil")
	}
	expr := strings.TrimSpace(t.When)
	if expr == "" {
		return true, nil
	}

	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()
	L.SetContext(ctx)

	openSafeLibraries(L)
	removeUnsafeGlobals(L)

	L.SetGlobal("task", lua.LString(t.Name))
	L.SetGlobal("workdir", lua.LString(e.WorkDir))
	L.SetGlobal("file_exists", L.NewFunction(e.luaFileExists))

	if err := L.DoString("return (" + expr + ")"); err != nil {
		return false, fmt.Errorf("%w: %q: %v", ErrGuard, expr, err)
	}
	val := L.Get(-1)
	L.Pop(1)
	return lua.LVAsBool(val), nil
}

// luaFileExists reports whether a path exists, resolving relative paths under
// the working directory.
func (e *Evaluator) luaFileExists(L *lua.LState) int {
	p := L.CheckString(1)
	if !filepath.IsAbs(p) {
		p = filepath.Join(e.WorkDir, p)
	}
	_, err := os.Stat(filepath.Clean(p))
	L.Push(lua.LBool(err == nil))
	return 1
}

// openSafeLibraries loads only the whitelisted Lua standard libraries.
func openSafeLibraries(L *lua.LState) {
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.LoadLibName, lua.OpenPackage},
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.fn))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
}

// removeUnsafeGlobals strips functions that could load code from disk or a
// string, escaping the guard's expression-only contract.
func removeUnsafeGlobals(L *lua.LState) {
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require"} {
		L.SetGlobal(name, lua.LNil)
	}
	pkg := L.GetGlobal("package")
	if pkgTable, ok := pkg.(*lua.LTable); ok {
		L.SetField(pkgTable, "path", lua.LString(""))
		L.SetField(pkgTable, "cpath", lua.LString(""))
	}
}
