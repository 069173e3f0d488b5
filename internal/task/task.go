// Package task defines the domain model for workflow task execution.
//
// A Task is a named, ordered sequence of shell commands plus the metadata the
// registry needs to place it in the dependency structure: declared
// dependencies, environment overlay, and an optional guard expression.
package task

import "fmt"

// Task is a declarative definition of one named workflow step.
//
// Tasks are defined statically (in the built-in registry or a task manifest),
// invoked on demand by name, and never mutated at runtime.
type Task struct {
	// Name is the unique identifier used to invoke the task and to address
	// dependency edges.
	Name string `json:"name" yaml:"name"`

	// Description is a one-line summary shown by the list output.
	// Optional field.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Commands is the ordered list of shell command strings.
	// Commands run strictly in sequence; the first non-zero exit aborts the
	// remaining commands.
	Commands []string `json:"commands" yaml:"commands"`

	// Needs lists the names of tasks that must have succeeded before this
	// task may run. The registry turns these into dependency edges.
	// Optional field.
	Needs []string `json:"needs,omitempty" yaml:"needs,omitempty"`

	// Env is a map of environment variables overlaid on top of the host
	// environment and the env-file set for this task's commands.
	// Optional field.
	Env map[string]string `json:"env,omitempty" yaml:"env,omitempty"`

	// When is an optional Lua guard expression. A falsy result skips the
	// task without failing it.
	When string `json:"when,omitempty" yaml:"when,omitempty"`

	// Interactive attaches the caller's stdin to the task's commands so a
	// foreground process (the dashboard app) can be driven interactively.
	Interactive bool `json:"interactive,omitempty" yaml:"interactive,omitempty"`
}

// Validate checks the structural invariants of a single task definition.
//
// Cross-task invariants (unique names, known dependency targets, acyclicity)
// are enforced by the registry, not here.
func (t *Task) Validate() error {
	if t == nil {
		return fmt.Errorf("task is nil")
	}
	if t.Name == "" {
		return fmt.Errorf("task name is required")
	}
	if len(t.Commands) == 0 {
		return fmt.Errorf("task %q: at least one command is required", t.Name)
	}
	for i, c := range t.Commands {
		if c == "" {
			return fmt.Errorf("task %q: command %d is empty", t.Name, i)
		}
	}
	for _, n := range t.Needs {
		if n == "" {
			return fmt.Errorf("task %q: empty dependency name", t.Name)
		}
		if n == t.Name {
			return fmt.Errorf("task %q: depends on itself", t.Name)
		}
	}
	return nil
}
