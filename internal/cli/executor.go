package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"flexrun/internal/condition"
	"flexrun/internal/envfile"
	"flexrun/internal/history"
	"flexrun/internal/registry"
	"flexrun/internal/report"
	"flexrun/internal/task"
	"flexrun/internal/taskfile"
)

// Stdio carries the streams task commands and runner output are wired to.
// The zero value falls back to the process's own streams.
type Stdio struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

func (s Stdio) orDefaults() Stdio {
	if s.In == nil {
		s.In = os.Stdin
	}
	if s.Out == nil {
		s.Out = os.Stdout
	}
	if s.Err == nil {
		s.Err = os.Stderr
	}
	return s
}

// Result is the outcome of one invocation.
type Result struct {
	ExitCode  int
	RunResult *registry.RunResult
}

// Execute maps a canonical Invocation to registry execution.
//
// Exit-code policy:
//   - A failing task command surfaces its own exit code verbatim.
//   - Unknown task names are invalid invocations (ExitInvalidInvocation).
//   - Manifest, env-file, and guard problems are ExitConfigError.
//   - Everything else (including panics) is ExitInternalError.
func Execute(ctx context.Context, inv Invocation, stdio Stdio) (res Result, execErr error) {
	res.ExitCode = ExitInternalError
	stdio = stdio.orDefaults()

	defer func() {
		if r := recover(); r != nil {
			res.ExitCode = ExitInternalError
			res.RunResult = nil
			execErr = fmt.Errorf("panic: %v", r)
		}
	}()

	tasks, err := loadTasks(inv)
	if err != nil {
		res.ExitCode = ExitConfigError
		return res, err
	}

	reg, err := registry.New(tasks)
	if err != nil {
		res.ExitCode = ExitConfigError
		return res, err
	}

	if inv.List {
		listTasks(stdio.Out, reg)
		res.ExitCode = ExitSuccess
		return res, nil
	}

	if inv.DryRun {
		code, err := printPlan(stdio.Out, reg, inv.Target)
		res.ExitCode = code
		return res, err
	}

	baseEnv := map[string]string{}
	if inv.EnvFilePath != "" {
		baseEnv, err = envfile.Load(inv.EnvFilePath)
		if err != nil {
			res.ExitCode = ExitConfigError
			return res, err
		}
	}

	runner := task.NewCommandRunner(inv.WorkDir)
	runner.BaseEnv = baseEnv
	runner.Stdin = stdio.In
	runner.Stdout = stdio.Out
	runner.Stderr = stdio.Err

	exec, err := registry.NewExecutor(reg, runner, condition.NewEvaluator(inv.WorkDir))
	if err != nil {
		res.ExitCode = ExitInternalError
		return res, err
	}

	startTime := time.Now()
	runRes, err := exec.RunPlan(ctx, inv.Target)
	if err != nil {
		if errors.Is(err, registry.ErrUnknownTask) {
			res.ExitCode = ExitInvalidInvocation
			return res, err
		}
		if errors.Is(err, condition.ErrGuard) {
			res.ExitCode = ExitConfigError
			return res, err
		}
		res.ExitCode = ExitInternalError
		return res, err
	}
	res.RunResult = runRes
	res.ExitCode = runRes.ExitCode()

	rep, repErr := report.Build(runRes, startTime)
	if repErr != nil {
		// The run itself finished; reporting problems must not change its
		// exit code. Surface them on stderr only.
		fmt.Fprintf(stdio.Err, "flexrun: build run report: %v\n", repErr)
		return res, nil
	}
	if inv.ReportPath != "" {
		if err := rep.WriteFile(inv.ReportPath); err != nil {
			fmt.Fprintf(stdio.Err, "flexrun: write run report: %v\n", err)
		}
	}
	saveHistory(stdio.Err, inv.WorkDir, rep)

	return res, nil
}

func loadTasks(inv Invocation) ([]task.Task, error) {
	if inv.TaskfilePath != "" {
		return taskfile.Load(inv.TaskfilePath)
	}
	return taskfile.Builtin(), nil
}

func listTasks(w io.Writer, reg *registry.Registry) {
	for _, n := range reg.Nodes() {
		line := n.Name
		if n.Task.Description != "" {
			line += "\t" + n.Task.Description
		}
		if len(n.Task.Needs) > 0 {
			line += "\t(needs: " + strings.Join(n.Task.Needs, " ") + ")"
		}
		fmt.Fprintln(w, line)
	}
}

func printPlan(w io.Writer, reg *registry.Registry, target string) (int, error) {
	plan, err := reg.Plan(target)
	if err != nil {
		if errors.Is(err, registry.ErrUnknownTask) {
			return ExitInvalidInvocation, err
		}
		return ExitInternalError, err
	}
	for _, name := range plan {
		n, _ := reg.Node(name)
		fmt.Fprintf(w, "%s:\n", name)
		for _, c := range n.Task.Commands {
			fmt.Fprintf(w, "  %s\n", c)
		}
	}
	return ExitSuccess, nil
}

// saveHistory persists the run report best-effort; failures are reported on
// stderr and never change the run's exit code.
func saveHistory(errW io.Writer, workDir string, rep *report.RunReport) {
	st, err := history.NewStore(workDir)
	if err != nil {
		fmt.Fprintf(errW, "flexrun: history: %v\n", err)
		return
	}
	id, err := history.NewRunID()
	if err != nil {
		fmt.Fprintf(errW, "flexrun: history: %v\n", err)
		return
	}
	if err := st.Save(id, rep); err != nil {
		fmt.Fprintf(errW, "flexrun: history: %v\n", err)
	}
}
