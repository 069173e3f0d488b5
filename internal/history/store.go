// Package history persists run reports under the working copy so past
// invocations can be inspected after the fact.
//
// Layout:
//
//	<workDir>/.flexrun/history/<run-id>.json
//
// History is best-effort from the caller's point of view: a failed history
// write must never change a run's exit code.
package history

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"flexrun/internal/report"
)

// Store provides persistent storage for run reports.
//
// All writes are atomic (temp file + rename).
type Store struct {
	baseDir string
}

// NewStore creates a Store rooted at the working directory.
func NewStore(baseDir string) (*Store, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, errors.New("baseDir is required")
	}
	return &Store{baseDir: baseDir}, nil
}

func (s *Store) historyDir() string {
	return filepath.Join(s.baseDir, ".flexrun", "history")
}

func (s *Store) runPath(runID string) string {
	return filepath.Join(s.historyDir(), runID+".json")
}

// NewRunID returns a fresh run identifier.
//
// IDs start with a UTC timestamp so lexicographic order is chronological,
// followed by random bytes to keep concurrent invocations from colliding.
func NewRunID() (string, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return time.Now().UTC().Format("20060102T150405") + "-" + hex.EncodeToString(b[:]), nil
}

// Save persists the report under the given run ID.
func (s *Store) Save(runID string, rep *report.RunReport) error {
	if s == nil {
		return errors.New("nil Store")
	}
	if strings.TrimSpace(runID) == "" {
		return errors.New("runID is required")
	}
	if rep == nil {
		return errors.New("nil report")
	}
	if err := os.MkdirAll(s.historyDir(), 0o755); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}
	b, err := rep.MarshalJSONStable()
	if err != nil {
		return err
	}
	return writeFileAtomic(s.runPath(runID), b, 0o644)
}

// ListRunIDs returns all run IDs currently present on disk.
//
// Determinism: the returned slice is sorted lexicographically, which for
// these IDs is also chronological.
func (s *Store) ListRunIDs() ([]string, error) {
	if s == nil {
		return nil, errors.New("nil Store")
	}
	entries, err := os.ReadDir(s.historyDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		id := strings.TrimSuffix(name, ".json")
		if strings.TrimSpace(id) == "" {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// LoadRun reads one persisted report back, rejecting unknown fields and
// trailing content.
func (s *Store) LoadRun(runID string) (*report.RunReport, error) {
	if s == nil {
		return nil, errors.New("nil Store")
	}
	if strings.TrimSpace(runID) == "" {
		return nil, errors.New("runID is required")
	}

	f, err := os.Open(s.runPath(runID))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rep report.RunReport
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&rep); err != nil {
		return nil, fmt.Errorf("decode run %s: %w", runID, err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("decode run %s: trailing content", runID)
	}
	return &rep, nil
}

// Latest returns the most recent run's ID and report, or empty values when no
// history exists.
func (s *Store) Latest() (string, *report.RunReport, error) {
	ids, err := s.ListRunIDs()
	if err != nil {
		return "", nil, err
	}
	if len(ids) == 0 {
		return "", nil, nil
	}
	id := ids[len(ids)-1]
	rep, err := s.LoadRun(id)
	if err != nil {
		return "", nil, err
	}
	return id, rep, nil
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
	_ = tmp.Sync()
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}
