package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

const (
	ExitSuccess           = 0
	ExitInvalidInvocation = 2
	ExitConfigError       = 3
	ExitInternalError     = 4
)

// Invocation is the fully canonicalized description of one runner call.
//
// All relative paths are resolved under WorkDir.
//
// NOTE: WorkDir is required and must be absolute; this prevents any
// dependency on the process current working directory.
type Invocation struct {
	// Target is the task name to run. Empty only when List is set.
	Target string

	WorkDir      string
	TaskfilePath string // empty means: use the built-in registry
	EnvFilePath  string
	ReportPath   string // empty means: no report file

	List   bool
	DryRun bool

	OriginalTaskfile string
	OriginalEnvFile  string
	OriginalReport   string
}

type InvocationError struct {
	ExitCode int
	Message  string
}

func (e *InvocationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func invalidInvocationf(format string, args ...any) error {
	return &InvocationError{ExitCode: ExitInvalidInvocation, Message: fmt.Sprintf(format, args...)}
}

// ParseInvocation parses CLI arguments into a canonical Invocation.
//
// Determinism goals:
//   - Does not read env vars (the env layer handles .env files explicitly).
//   - Does not read/assume the process CWD.
//   - Requires WorkDir to be explicit and absolute.
func ParseInvocation(args []string) (Invocation, error) {
	fs := flag.NewFlagSet("flexrun", flag.ContinueOnError)
	fs.SetOutput(io.Discard) // parsing errors are returned, not printed

	var workDir string
	var taskfilePath string
	var envFilePath string
	var reportPath string
	var list bool
	var dryRun bool

	fs.StringVar(&workDir, "workdir", "", "Absolute working directory. Required.")
	fs.StringVar(&taskfilePath, "file", "", "Task manifest path (optional; built-in tasks when omitted).")
	fs.StringVar(&envFilePath, "env-file", ".env", "Dotenv file overlaid on task environments.")
	fs.StringVar(&reportPath, "report", "", "Run report output path (optional).")
	fs.BoolVar(&list, "list", false, "List tasks without executing.")
	fs.BoolVar(&dryRun, "dry-run", false, "Print the plan and commands without executing.")

	if err := fs.Parse(args); err != nil {
		return Invocation{}, invalidInvocationf("%v", err)
	}

	workDir = filepath.Clean(workDir)
	if workDir == "" || workDir == "." {
		return Invocation{}, invalidInvocationf("--workdir is required")
	}
	if !filepath.IsAbs(workDir) {
		return Invocation{}, invalidInvocationf("--workdir must be an absolute path (got %q)", workDir)
	}

	inv := Invocation{
		WorkDir:          workDir,
		List:             list,
		DryRun:           dryRun,
		OriginalTaskfile: taskfilePath,
		OriginalEnvFile:  envFilePath,
		OriginalReport:   reportPath,
	}

	switch fs.NArg() {
	case 0:
		if !list {
			return Invocation{}, invalidInvocationf("a task name is required (or --list)")
		}
	case 1:
		inv.Target = fs.Arg(0)
		if inv.Target == "" {
			return Invocation{}, invalidInvocationf("task name must not be empty")
		}
	default:
		return Invocation{}, invalidInvocationf("expected one task name, got: %q", strings.Join(fs.Args(), " "))
	}

	if taskfilePath != "" {
		resolved, err := resolveUnderWorkDir(workDir, taskfilePath)
		if err != nil {
			return Invocation{}, err
		}
		inv.TaskfilePath = resolved
	}
	if envFilePath != "" {
		resolved, err := resolveUnderWorkDir(workDir, envFilePath)
		if err != nil {
			return Invocation{}, err
		}
		inv.EnvFilePath = resolved
	}
	if strings.TrimSpace(reportPath) != "" {
		resolved, err := resolveUnderWorkDir(workDir, reportPath)
		if err != nil {
			return Invocation{}, err
		}
		inv.ReportPath = resolved
	}

	return inv, nil
}

func resolveUnderWorkDir(workDir, p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", invalidInvocationf("path must not be empty")
	}
	clean := filepath.Clean(p)
	if clean == "." {
		return "", invalidInvocationf("path must not be '.'")
	}

	// If absolute, accept as-is. If relative, resolve under WorkDir; WorkDir
	// is required to be absolute, so Join does not consult the process CWD.
	if filepath.IsAbs(clean) {
		return clean, nil
	}
	return filepath.Clean(filepath.Join(workDir, clean)), nil
}

// ParseExitCode extracts a semantic exit code from a ParseInvocation error.
// If the error is not a known invocation error, it returns ExitInternalError.
func ParseExitCode(err error) int {
	var invErr *InvocationError
	if errors.As(err, &invErr) && invErr != nil {
		if invErr.ExitCode != 0 {
			return invErr.ExitCode
		}
		return ExitInvalidInvocation
	}
	if err == nil {
		return ExitSuccess
	}
	return ExitInternalError
}
