package task

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"syscall"
	"time"
)

// CommandResult records the outcome of a single attempted command.
type CommandResult struct {
	// Command is the shell command string as declared.
	Command string

	// ExitCode is the process exit code. 0 indicates success.
	ExitCode int

	// Duration is the wall-clock time the command ran.
	Duration time.Duration
}

// TaskResult is the outcome of running one task's command sequence.
//
// Commands holds one entry per attempted command, in declaration order.
// Commands after the first failure are never attempted and therefore never
// appear here.
type TaskResult struct {
	// ExitCode is the exit code of the last attempted command. Non-zero
	// means the task failed and remaining commands were not attempted.
	ExitCode int

	// Commands are the attempted commands in order.
	Commands []CommandResult
}

// CommandRunner executes a task's commands strictly in sequence via "sh -c".
//
// The runner is a pass-through to OS-level exit codes: it performs no retries,
// no rollback, and no output rewriting. Commands inherit the host environment
// overlaid with BaseEnv (the env-file set) and the task's own Env, with the
// task's Env taking highest precedence.
type CommandRunner struct {
	// WorkDir is the directory commands execute in. Must be absolute.
	WorkDir string

	// BaseEnv is overlaid on the host environment for every task.
	BaseEnv map[string]string

	// Stdout and Stderr receive command output unmodified.
	Stdout io.Writer
	Stderr io.Writer

	// Stdin is attached to commands of tasks marked Interactive, so a
	// foreground process can be driven by the caller.
	Stdin io.Reader
}

// NewCommandRunner creates a CommandRunner bound to workDir with output wired
// to the process's own stdout/stderr.
func NewCommandRunner(workDir string) *CommandRunner {
	return &CommandRunner{
		WorkDir: workDir,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		Stdin:   os.Stdin,
	}
}

// Run executes the task's commands in order, stopping at the first non-zero
// exit and reporting that exit code in the result.
//
// A non-zero exit is not an error: it is recorded in TaskResult.ExitCode.
// A non-nil error indicates an infrastructure failure (shell missing, context
// cancelled) rather than a failing tool.
func (r *CommandRunner) Run(ctx context.Context, t *Task) (*TaskResult, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if r.WorkDir == "" {
		return nil, fmt.Errorf("command runner: work dir is required")
	}

	env := r.mergedEnv(t.Env)
	res := &TaskResult{}

	for _, command := range t.Commands {
		cr, err := r.runCommand(ctx, t, command, env)
		if err != nil {
			return nil, err
		}
		res.Commands = append(res.Commands, cr)
		res.ExitCode = cr.ExitCode
		if cr.ExitCode != 0 {
			// First failure aborts the remaining commands.
			break
		}
	}
	return res, nil
}

func (r *CommandRunner) runCommand(ctx context.Context, t *Task, command string, env []string) (CommandResult, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = r.WorkDir
	cmd.Env = env
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	if t.Interactive {
		cmd.Stdin = r.Stdin
	}

	// Own process group so cancellation can kill the entire process tree.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return CommandResult{}, fmt.Errorf("starting command %q: %w", command, err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	var waitErr error
	select {
	case <-ctx.Done():
		if cmd.Process != nil {
			// Negative PID targets the whole process group.
			_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
		<-done
		return CommandResult{}, fmt.Errorf("execution cancelled: %w", ctx.Err())
	case waitErr = <-done:
	}

	exitCode := 0
	if waitErr != nil {
		exitErr, ok := waitErr.(*exec.ExitError)
		if !ok {
			return CommandResult{}, fmt.Errorf("running command %q: %w", command, waitErr)
		}
		exitCode = exitErr.ExitCode()
	}

	return CommandResult{
		Command:  command,
		ExitCode: exitCode,
		Duration: time.Since(start),
	}, nil
}

// mergedEnv builds the command environment with precedence
// task env > base env > host environment.
//
// The result is sorted so the environment passed to the process does not
// depend on map iteration order.
func (r *CommandRunner) mergedEnv(taskEnv map[string]string) []string {
	merged := make(map[string]string)
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				merged[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	for k, v := range r.BaseEnv {
		merged[k] = v
	}
	for k, v := range taskEnv {
		merged[k] = v
	}

	out := make([]string, 0, len(merged))
	for k, v := range merged {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
