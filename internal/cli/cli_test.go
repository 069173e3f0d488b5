package cli_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	icl "flexrun/internal/cli"
	"flexrun/internal/lockfile"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func run(t *testing.T, args []string) (icl.Result, string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	res, err := icl.Run(context.Background(), args, icl.Stdio{Out: &stdout, Err: &stderr})
	return res, stdout.String(), stderr.String(), err
}

// workflowTaskfile mirrors the real developer workflow with commands that
// leave observable marks instead of calling the actual external tools.
const workflowTaskfile = `
tasks:
  - name: setup
    description: install dependencies and commit hook
    commands:
      - "echo pandas==1.5.3 > installed.txt && echo streamlit==1.19.0 >> installed.txt"
      - "mkdir -p .git/hooks && echo '#!/bin/sh' > .git/hooks/pre-commit"
  - name: dfs-app
    needs: [setup]
    interactive: true
    commands:
      - "sh consumer_flex_app/app.sh"
  - name: requirements
    commands:
      - "cp installed.txt requirements.txt"
`

func TestUnknownTaskExecutesNothing(t *testing.T) {
	workDir := t.TempDir()
	writeFile(t, filepath.Join(workDir, "flexrun.yaml"), workflowTaskfile)

	res, _, _, err := run(t, []string{"--workdir", workDir, "--file", "flexrun.yaml", "deploy"})
	if err == nil {
		t.Fatalf("expected no-such-task error")
	}
	if !strings.Contains(err.Error(), "no such task") {
		t.Fatalf("error should say no such task: %v", err)
	}
	if res.ExitCode != icl.ExitInvalidInvocation {
		t.Fatalf("exit code mismatch: %d", res.ExitCode)
	}
	if _, serr := os.Stat(filepath.Join(workDir, "installed.txt")); !os.IsNotExist(serr) {
		t.Fatalf("no command may have executed")
	}
}

func TestSetupShortCircuitsOnDependencyInstallFailure(t *testing.T) {
	workDir := t.TempDir()
	writeFile(t, filepath.Join(workDir, "flexrun.yaml"), `
tasks:
  - name: setup
    commands:
      - "exit 9"
      - "touch hook-installed"
`)

	res, _, _, err := run(t, []string{"--workdir", workDir, "--file", "flexrun.yaml", "setup"})
	if err != nil {
		t.Fatalf("command failure is not a runner error: %v", err)
	}
	if res.ExitCode != 9 {
		t.Fatalf("failing tool's exit code must surface verbatim: %d", res.ExitCode)
	}
	if _, serr := os.Stat(filepath.Join(workDir, "hook-installed")); !os.IsNotExist(serr) {
		t.Fatalf("hook install must not run after dependency install failed")
	}
}

func TestAppLaunchWithMissingEntryPointFailsFast(t *testing.T) {
	workDir := t.TempDir()
	writeFile(t, filepath.Join(workDir, "flexrun.yaml"), `
tasks:
  - name: dfs-app
    interactive: true
    commands:
      - "sh consumer_flex_app/app.sh"
`)

	done := make(chan struct{})
	var res icl.Result
	go func() {
		res, _, _, _ = run(t, []string{"--workdir", workDir, "--file", "flexrun.yaml", "dfs-app"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(15 * time.Second):
		t.Fatalf("launch with missing entry point hung")
	}
	if res.ExitCode == 0 {
		t.Fatalf("missing entry point must exit non-zero")
	}
}

func TestEndToEndWorkflow(t *testing.T) {
	workDir := t.TempDir()
	writeFile(t, filepath.Join(workDir, "flexrun.yaml"), workflowTaskfile)

	// Clean checkout -> setup.
	res, _, _, err := run(t, []string{"--workdir", workDir, "--file", "flexrun.yaml", "setup"})
	if err != nil || res.ExitCode != 0 {
		t.Fatalf("setup failed: exit=%d err=%v", res.ExitCode, err)
	}
	if _, serr := os.Stat(filepath.Join(workDir, ".git", "hooks", "pre-commit")); serr != nil {
		t.Fatalf("hook file missing: %v", serr)
	}

	// Export the lock, twice; both must validate and be byte-identical.
	res, _, _, err = run(t, []string{"--workdir", workDir, "--file", "flexrun.yaml", "requirements"})
	if err != nil || res.ExitCode != 0 {
		t.Fatalf("requirements failed: exit=%d err=%v", res.ExitCode, err)
	}
	first, err := os.ReadFile(filepath.Join(workDir, "requirements.txt"))
	if err != nil {
		t.Fatalf("read lock: %v", err)
	}
	entries, err := lockfile.Parse(first)
	if err != nil {
		t.Fatalf("lock must match the pin grammar: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 pinned packages, got %d", len(entries))
	}

	res, _, _, err = run(t, []string{"--workdir", workDir, "--file", "flexrun.yaml", "requirements"})
	if err != nil || res.ExitCode != 0 {
		t.Fatalf("second export failed: exit=%d err=%v", res.ExitCode, err)
	}
	second, err := os.ReadFile(filepath.Join(workDir, "requirements.txt"))
	if err != nil {
		t.Fatalf("read lock: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("export is not idempotent")
	}

	// History recorded all three runs.
	historyDir := filepath.Join(workDir, ".flexrun", "history")
	dirEntries, err := os.ReadDir(historyDir)
	if err != nil {
		t.Fatalf("history dir: %v", err)
	}
	if len(dirEntries) != 3 {
		t.Fatalf("expected 3 history records, got %d", len(dirEntries))
	}
}

func TestPlanRunsDeclaredDependencyFirst(t *testing.T) {
	workDir := t.TempDir()
	writeFile(t, filepath.Join(workDir, "flexrun.yaml"), `
tasks:
  - name: setup
    commands:
      - "echo setup >> order.txt"
  - name: dfs-app
    needs: [setup]
    commands:
      - "echo dfs-app >> order.txt"
`)

	res, _, _, err := run(t, []string{"--workdir", workDir, "--file", "flexrun.yaml", "dfs-app"})
	if err != nil || res.ExitCode != 0 {
		t.Fatalf("run failed: exit=%d err=%v", res.ExitCode, err)
	}
	b, err := os.ReadFile(filepath.Join(workDir, "order.txt"))
	if err != nil {
		t.Fatalf("read order: %v", err)
	}
	if string(b) != "setup\ndfs-app\n" {
		t.Fatalf("dependency order mismatch: %q", b)
	}
}

func TestGuardedTaskSkipsWhenPredicateFalsy(t *testing.T) {
	workDir := t.TempDir()
	writeFile(t, filepath.Join(workDir, "flexrun.yaml"), `
tasks:
  - name: setup
    when: 'not file_exists("installed.txt")'
    commands:
      - "touch installed.txt"
  - name: dfs-app
    needs: [setup]
    commands:
      - "echo launched >> launches.txt"
`)

	for i := 0; i < 2; i++ {
		res, _, _, err := run(t, []string{"--workdir", workDir, "--file", "flexrun.yaml", "dfs-app"})
		if err != nil || res.ExitCode != 0 {
			t.Fatalf("run %d failed: exit=%d err=%v", i, res.ExitCode, err)
		}
	}

	b, err := os.ReadFile(filepath.Join(workDir, "launches.txt"))
	if err != nil {
		t.Fatalf("read launches: %v", err)
	}
	if got := strings.Count(string(b), "launched"); got != 2 {
		t.Fatalf("dependent must run on both invocations, got %d", got)
	}
}

func TestEnvFileReachesCommands(t *testing.T) {
	workDir := t.TempDir()
	writeFile(t, filepath.Join(workDir, ".env"), "DFS_REGION=london\n")
	writeFile(t, filepath.Join(workDir, "flexrun.yaml"), `
tasks:
  - name: show-region
    commands:
      - "echo $DFS_REGION"
`)

	res, stdout, _, err := run(t, []string{"--workdir", workDir, "--file", "flexrun.yaml", "show-region"})
	if err != nil || res.ExitCode != 0 {
		t.Fatalf("run failed: exit=%d err=%v", res.ExitCode, err)
	}
	if strings.TrimSpace(stdout) != "london" {
		t.Fatalf("env file value missing from command env: %q", stdout)
	}
}

func TestListPrintsTasksWithoutExecuting(t *testing.T) {
	workDir := t.TempDir()
	writeFile(t, filepath.Join(workDir, "flexrun.yaml"), workflowTaskfile)

	res, stdout, _, err := run(t, []string{"--workdir", workDir, "--file", "flexrun.yaml", "--list"})
	if err != nil || res.ExitCode != 0 {
		t.Fatalf("list failed: exit=%d err=%v", res.ExitCode, err)
	}
	for _, name := range []string{"setup", "dfs-app", "requirements"} {
		if !strings.Contains(stdout, name) {
			t.Fatalf("list output missing %q: %q", name, stdout)
		}
	}
	if _, serr := os.Stat(filepath.Join(workDir, "installed.txt")); !os.IsNotExist(serr) {
		t.Fatalf("list must not execute commands")
	}
}

func TestDryRunPrintsPlanWithoutExecuting(t *testing.T) {
	workDir := t.TempDir()
	writeFile(t, filepath.Join(workDir, "flexrun.yaml"), workflowTaskfile)

	res, stdout, _, err := run(t, []string{"--workdir", workDir, "--file", "flexrun.yaml", "--dry-run", "dfs-app"})
	if err != nil || res.ExitCode != 0 {
		t.Fatalf("dry-run failed: exit=%d err=%v", res.ExitCode, err)
	}
	setupIdx := strings.Index(stdout, "setup:")
	appIdx := strings.Index(stdout, "dfs-app:")
	if setupIdx < 0 || appIdx < 0 || setupIdx > appIdx {
		t.Fatalf("dry-run should print the plan in order: %q", stdout)
	}
	if _, serr := os.Stat(filepath.Join(workDir, "installed.txt")); !os.IsNotExist(serr) {
		t.Fatalf("dry-run must not execute commands")
	}
}

func TestReportWrittenForFailedRun(t *testing.T) {
	workDir := t.TempDir()
	writeFile(t, filepath.Join(workDir, "flexrun.yaml"), `
tasks:
  - name: setup
    commands:
      - "exit 5"
  - name: dfs-app
    needs: [setup]
    commands:
      - "echo unreachable"
`)

	res, _, _, err := run(t, []string{
		"--workdir", workDir,
		"--file", "flexrun.yaml",
		"--report", "report.json",
		"dfs-app",
	})
	if err != nil {
		t.Fatalf("command failure is not a runner error: %v", err)
	}
	if res.ExitCode != 5 {
		t.Fatalf("exit code mismatch: %d", res.ExitCode)
	}

	b, err := os.ReadFile(filepath.Join(workDir, "report.json"))
	if err != nil {
		t.Fatalf("report must be written for failed runs: %v", err)
	}
	content := string(b)
	if !strings.Contains(content, `"FAILED"`) || !strings.Contains(content, `"ABORTED"`) {
		t.Fatalf("report should carry terminal states: %s", content)
	}
}

func TestMalformedTaskfileIsConfigError(t *testing.T) {
	workDir := t.TempDir()
	writeFile(t, filepath.Join(workDir, "flexrun.yaml"), "tasks: [\n")

	res, _, _, err := run(t, []string{"--workdir", workDir, "--file", "flexrun.yaml", "setup"})
	if err == nil {
		t.Fatalf("expected parse error")
	}
	if res.ExitCode != icl.ExitConfigError {
		t.Fatalf("exit code mismatch: %d", res.ExitCode)
	}
}

func TestBuiltinRegistryIsListable(t *testing.T) {
	res, stdout, _, err := run(t, []string{"--workdir", t.TempDir(), "--list"})
	if err != nil || res.ExitCode != 0 {
		t.Fatalf("list failed: exit=%d err=%v", res.ExitCode, err)
	}
	for _, name := range []string{"setup", "dfs-app", "requirements"} {
		if !strings.Contains(stdout, name) {
			t.Fatalf("builtin registry missing %q: %q", name, stdout)
		}
	}
}
