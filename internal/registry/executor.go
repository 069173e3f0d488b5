package registry

import (
	"context"
	"fmt"
	"sync"

	"flexrun/internal/task"
)

// TaskRunner executes a single task's command sequence.
//
// A non-zero exit code is reported through the result, not the error. A
// non-nil error indicates an infrastructure failure (e.g. inability to start
// a process).
type TaskRunner interface {
	Run(ctx context.Context, t *task.Task) (*task.TaskResult, error)
}

// Gate decides whether a task should run at all. A false result marks the
// task SKIPPED without failing the run.
type Gate interface {
	ShouldRun(t *task.Task) (bool, error)
}

// runAlways is the Gate used when no guard evaluation is configured.
type runAlways struct{}

func (runAlways) ShouldRun(*task.Task) (bool, error) { return true, nil }

// Executor runs a plan against a Registry strictly sequentially.
//
// The automation layer is fully synchronous: each task's commands execute in
// sequence and the executor blocks on each task until it reaches a terminal
// state before starting the next.
type Executor struct {
	Registry *Registry
	Runner   TaskRunner
	Gate     Gate

	mu    sync.Mutex
	state ExecutionState
}

// NewExecutor creates an executor. A nil gate means every task runs.
func NewExecutor(r *Registry, runner TaskRunner, gate Gate) (*Executor, error) {
	if r == nil {
		return nil, fmt.Errorf("nil registry")
	}
	if runner == nil {
		return nil, fmt.Errorf("nil runner")
	}
	if gate == nil {
		gate = runAlways{}
	}
	return &Executor{Registry: r, Runner: runner, Gate: gate}, nil
}

// RunResult is the deterministic summary of one plan execution.
type RunResult struct {
	// Target is the task name the plan was built for.
	Target string

	// Plan is the executed plan in order (target plus transitive needs).
	Plan []string

	// FinalState is the terminal state of each planned task by name.
	FinalState ExecutionState

	// ExecutionOrder lists the tasks that actually started, in order.
	ExecutionOrder []string

	// Results holds per-task command outcomes for tasks that started.
	Results map[string]*task.TaskResult

	// FailedTask is the name of the task whose command failed, or empty.
	FailedTask string
}

// ExitCode returns the exit code the invoking shell should observe: the
// failing command's own code, surfaced verbatim, or zero.
func (r *RunResult) ExitCode() int {
	if r == nil || r.FailedTask == "" {
		return 0
	}
	if res, ok := r.Results[r.FailedTask]; ok {
		return res.ExitCode
	}
	return 1
}

// StateSnapshot returns a copy of the current execution state.
func (e *Executor) StateSnapshot() ExecutionState {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp := make(ExecutionState, len(e.state))
	for k, v := range e.state {
		cp[k] = v
	}
	return cp
}

// RunPlan builds the plan for target and executes it serially.
//
// Semantics:
//   - Tasks run in plan order (deterministic topological order).
//   - A guard returning false marks the task SKIPPED; dependents still run.
//   - A failing command marks the task FAILED, aborts its remaining commands,
//     and transitively marks dependents ABORTED; they are never started.
//   - Guard evaluation errors and infrastructure errors abort the run with a
//     non-nil error.
func (e *Executor) RunPlan(ctx context.Context, target string) (*RunResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	plan, err := e.Registry.Plan(target)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.state = make(ExecutionState, len(plan))
	for _, name := range plan {
		e.state[name] = TaskPending
	}
	e.mu.Unlock()

	res := &RunResult{
		Target:  target,
		Plan:    plan,
		Results: make(map[string]*task.TaskResult, len(plan)),
	}

	for _, name := range plan {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("execution cancelled: %w", err)
		}

		node, ok := e.Registry.Node(name)
		if !ok {
			return nil, fmt.Errorf("planned task %q missing from registry", name)
		}

		e.mu.Lock()
		st := e.state[name]
		if st == TaskAborted {
			// An upstream failure already ruled this task out.
			e.mu.Unlock()
			continue
		}
		if st != TaskPending {
			e.mu.Unlock()
			return nil, fmt.Errorf("unexpected state for %q before start: %s", name, st)
		}
		for _, dep := range node.Task.Needs {
			if dst, ok := e.state[dep]; ok && !IsSuccessful(dst) {
				e.mu.Unlock()
				return nil, fmt.Errorf("task %q is pending but dependency %q is %s", name, dep, dst)
			}
		}
		e.mu.Unlock()

		shouldRun, gateErr := e.Gate.ShouldRun(&node.Task)
		if gateErr != nil {
			return nil, fmt.Errorf("evaluating guard for %q: %w", name, gateErr)
		}
		if !shouldRun {
			e.mu.Lock()
			if err := Transition(e.state, name, TaskPending, TaskSkipped); err != nil {
				e.mu.Unlock()
				return nil, err
			}
			e.mu.Unlock()
			continue
		}

		e.mu.Lock()
		if err := Transition(e.state, name, TaskPending, TaskRunning); err != nil {
			e.mu.Unlock()
			return nil, err
		}
		e.mu.Unlock()

		// Execute outside the lock.
		taskRes, runErr := e.Runner.Run(ctx, &node.Task)
		if runErr != nil {
			return nil, fmt.Errorf("executing %q: %w", name, runErr)
		}
		if taskRes == nil {
			return nil, fmt.Errorf("executing %q: nil result", name)
		}

		e.mu.Lock()
		res.ExecutionOrder = append(res.ExecutionOrder, name)
		res.Results[name] = taskRes

		if taskRes.ExitCode == 0 {
			if err := Transition(e.state, name, TaskRunning, TaskCompleted); err != nil {
				e.mu.Unlock()
				return nil, err
			}
			e.mu.Unlock()
			continue
		}

		if res.FailedTask == "" {
			res.FailedTask = name
		}
		if err := FailAndPropagate(e.Registry, e.state, name); err != nil {
			e.mu.Unlock()
			return nil, err
		}
		e.mu.Unlock()
	}

	res.FinalState = e.StateSnapshot()
	return res, nil
}
