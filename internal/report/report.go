// Package report builds the JSON record of one runner invocation: the target,
// the plan, and each planned task's terminal state and command outcomes.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"flexrun/internal/registry"
)

// CommandReport records one attempted command.
type CommandReport struct {
	Command    string `json:"command"`
	ExitCode   int    `json:"exit_code"`
	DurationMS int64  `json:"duration_ms"`
}

// TaskReport records one planned task's terminal outcome.
type TaskReport struct {
	Name     string          `json:"name"`
	State    string          `json:"state"`
	ExitCode int             `json:"exit_code"`
	Commands []CommandReport `json:"commands,omitempty"`
}

// RunReport is the full record of one invocation.
//
// Tasks appear in plan order, so two reports for the same registry and target
// are directly comparable.
type RunReport struct {
	Target    string       `json:"target"`
	StartTime time.Time    `json:"start_time"`
	Plan      []string     `json:"plan"`
	Tasks     []TaskReport `json:"tasks"`
	ExitCode  int          `json:"exit_code"`
}

// Build assembles a RunReport from an execution result.
func Build(res *registry.RunResult, startTime time.Time) (*RunReport, error) {
	if res == nil {
		return nil, fmt.Errorf("nil run result")
	}

	rep := &RunReport{
		Target:    res.Target,
		StartTime: startTime.UTC(),
		Plan:      append([]string(nil), res.Plan...),
		ExitCode:  res.ExitCode(),
	}

	for _, name := range res.Plan {
		tr := TaskReport{Name: name, State: string(res.FinalState[name])}
		if taskRes, ok := res.Results[name]; ok {
			tr.ExitCode = taskRes.ExitCode
			for _, c := range taskRes.Commands {
				tr.Commands = append(tr.Commands, CommandReport{
					Command:    c.Command,
					ExitCode:   c.ExitCode,
					DurationMS: c.Duration.Milliseconds(),
				})
			}
		}
		rep.Tasks = append(rep.Tasks, tr)
	}
	return rep, nil
}

// MarshalJSONStable renders the report with fixed field order and trailing
// newline, suitable for byte comparison across reads.
func (r *RunReport) MarshalJSONStable() ([]byte, error) {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// WriteFile writes the report atomically (temp file + rename) so a crashed
// run never leaves a truncated report behind.
func (r *RunReport) WriteFile(path string) error {
	b, err := r.MarshalJSONStable()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	return writeFileAtomic(path, b, 0o644)
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	tmp, err := os.CreateTemp(dir, base+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	_ = tmp.Sync() // best-effort durability
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}
