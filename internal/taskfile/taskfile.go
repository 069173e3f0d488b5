// Package taskfile loads task definitions from a YAML manifest and carries
// the compiled-in default registry for the dashboard developer workflow.
package taskfile

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"flexrun/internal/task"
)

// DefaultName is the manifest filename looked up when none is given.
const DefaultName = "flexrun.yaml"

type manifest struct {
	Tasks []task.Task `yaml:"tasks"`
}

// Load reads and parses the task manifest at path.
//
// The loader is deterministic:
//   - Unknown fields are rejected (to avoid silent divergence).
//   - No environment variables are consulted.
//
// Cross-task validation (unique names, known dependencies, acyclicity) is
// left to the registry.
func Load(path string) ([]task.Task, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read taskfile: %w", err)
	}

	var m manifest
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("parse taskfile yaml: %w", err)
	}
	// Ensure there is no second YAML document.
	var trailing any
	if err := dec.Decode(&trailing); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("parse taskfile yaml: trailing document")
		}
		return nil, fmt.Errorf("parse taskfile yaml: %w", err)
	}

	if len(m.Tasks) == 0 {
		return nil, fmt.Errorf("parse taskfile yaml: no tasks")
	}
	return m.Tasks, nil
}

// Builtin returns the default workflow tasks, used when no manifest exists.
//
// These encode the dashboard project's developer workflow: dependency and
// hook installation, the interactive app launch, and the lock export. The
// dependency of dfs-app on setup is declared explicitly rather than assumed.
func Builtin() []task.Task {
	return []task.Task{
		{
			Name:        "setup",
			Description: "Install dependencies and the commit-time validation hook",
			Commands: []string{
				"poetry install",
				"poetry run pre-commit install",
			},
		},
		{
			Name:        "dfs-app",
			Description: "Launch the demand flexibility dashboard",
			Needs:       []string{"setup"},
			Interactive: true,
			Commands: []string{
				"poetry run streamlit run consumer_flex_app/demand_flexibility_service/app.py",
			},
		},
		{
			Name:        "requirements",
			Description: "Export the resolved dependency set to requirements.txt",
			Commands: []string{
				"poetry export --format requirements.txt --without-hashes --output requirements.txt",
			},
		},
	}
}
