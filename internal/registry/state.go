package registry

import (
	"container/heap"
	"fmt"
)

// TaskState is the runtime execution state of a registry entry.
//
// This is intentionally separated from Registry, which is immutable.
type TaskState string

const (
	// TaskPending means the task has not started.
	TaskPending TaskState = "PENDING"
	// TaskRunning means the task's commands are currently executing.
	TaskRunning TaskState = "RUNNING"
	// TaskCompleted means all commands exited zero.
	TaskCompleted TaskState = "COMPLETED"
	// TaskFailed means a command exited non-zero.
	TaskFailed TaskState = "FAILED"
	// TaskSkipped means the task's guard evaluated falsy. A guard skip is
	// not a failure: dependents still run.
	TaskSkipped TaskState = "SKIPPED"
	// TaskAborted means an upstream dependency failed, so the task was
	// never started.
	TaskAborted TaskState = "ABORTED"
)

// ExecutionState maps task name to its current TaskState.
//
// It is intentionally a plain map so scheduling decisions can remain pure
// functions without coupling to an executor implementation.
type ExecutionState map[string]TaskState

// IsTerminal reports whether the state is terminal (finished).
func IsTerminal(s TaskState) bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskSkipped, TaskAborted:
		return true
	default:
		return false
	}
}

// IsSuccessful reports whether the state satisfies dependents.
func IsSuccessful(s TaskState) bool {
	switch s {
	case TaskCompleted, TaskSkipped:
		return true
	default:
		return false
	}
}

// Transition performs an atomic validated transition for a single task.
//
// The caller supplies the expected prior state (from) to make inconsistent
// sequencing observable. The state map is mutated if and only if the
// transition is valid.
func Transition(state ExecutionState, taskName string, from, to TaskState) error {
	cur, ok := state[taskName]
	if !ok {
		return fmt.Errorf("unknown task in state: %q", taskName)
	}
	if cur != from {
		return fmt.Errorf("invalid transition for %q: expected %s, got %s", taskName, from, cur)
	}
	if !isAllowedTransition(from, to) {
		return fmt.Errorf("disallowed transition for %q: %s -> %s", taskName, from, to)
	}
	state[taskName] = to
	return nil
}

func isAllowedTransition(from, to TaskState) bool {
	switch from {
	case TaskPending:
		return to == TaskRunning || to == TaskSkipped || to == TaskAborted
	case TaskRunning:
		return to == TaskCompleted || to == TaskFailed
	default:
		return false
	}
}

// FailAndPropagate transitions taskName from RUNNING to FAILED and
// transitively marks all downstream dependents as ABORTED.
//
// Determinism:
//   - The set of nodes marked ABORTED is defined purely by reachability.
//   - Traversal is in deterministic canonical index order.
//
// Safety:
//   - If a downstream node is already RUNNING, this is treated as an
//     invariant violation (a serial executor never runs a dependent before
//     its dependency finished).
func FailAndPropagate(r *Registry, state ExecutionState, taskName string) error {
	if r == nil {
		return fmt.Errorf("nil registry")
	}
	node, ok := r.nodesByName[taskName]
	if !ok {
		return fmt.Errorf("unknown task: %q", taskName)
	}

	cur, ok := state[taskName]
	if !ok {
		return fmt.Errorf("unknown task in state: %q", taskName)
	}
	if cur != TaskRunning && cur != TaskFailed {
		return fmt.Errorf("cannot fail %q from state %s", taskName, cur)
	}
	if cur == TaskRunning {
		state[taskName] = TaskFailed
	}

	start := node.canonicalIndex
	visited := make([]bool, len(r.nodes))
	visited[start] = true

	hq := &intMinHeap{}
	heap.Init(hq)
	for _, d := range r.outgoing[start] {
		heap.Push(hq, d)
	}

	for hq.Len() > 0 {
		u := heap.Pop(hq).(int)
		if visited[u] {
			continue
		}
		visited[u] = true

		name := r.nodes[u].Name
		st, ok := state[name]
		if !ok {
			// Dependents outside the current plan carry no state; they were
			// never going to run in this invocation.
			continue
		}

		switch st {
		case TaskPending:
			state[name] = TaskAborted
		case TaskRunning:
			return fmt.Errorf("invariant violation: downstream task %q is RUNNING during failure propagation", name)
		default:
			// Terminal. Leave unchanged.
		}

		for _, v := range r.outgoing[u] {
			if !visited[v] {
				heap.Push(hq, v)
			}
		}
	}

	return nil
}
