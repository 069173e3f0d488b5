package history

import (
	"reflect"
	"testing"
	"time"

	"flexrun/internal/report"
)

func sampleReport(target string) *report.RunReport {
	return &report.RunReport{
		Target:    target,
		StartTime: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
		Plan:      []string{target},
		Tasks:     []report.TaskReport{{Name: target, State: "COMPLETED"}},
	}
}

func TestStore_SaveAndLoadRoundTrip(t *testing.T) {
	st, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	if err := st.Save("20260830T120000-aaaa0000", sampleReport("setup")); err != nil {
		t.Fatalf("save: %v", err)
	}

	rep, err := st.LoadRun("20260830T120000-aaaa0000")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if rep.Target != "setup" || rep.Tasks[0].State != "COMPLETED" {
		t.Fatalf("round-trip mismatch: %+v", rep)
	}
}

func TestStore_ListRunIDsSorted(t *testing.T) {
	st, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	for _, id := range []string{"20260830T120001-bb", "20260830T120000-aa", "20260830T120002-cc"} {
		if err := st.Save(id, sampleReport("setup")); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}

	ids, err := st.ListRunIDs()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"20260830T120000-aa", "20260830T120001-bb", "20260830T120002-cc"}
	if !reflect.DeepEqual(ids, want) {
		t.Fatalf("ids not sorted: %v", ids)
	}
}

func TestStore_EmptyHistory(t *testing.T) {
	st, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	ids, err := st.ListRunIDs()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected no ids, got %v", ids)
	}

	id, rep, err := st.Latest()
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if id != "" || rep != nil {
		t.Fatalf("latest on empty history must be empty")
	}
}

func TestStore_LatestPicksNewestByID(t *testing.T) {
	st, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	if err := st.Save("20260830T120000-aa", sampleReport("setup")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := st.Save("20260830T120001-bb", sampleReport("requirements")); err != nil {
		t.Fatalf("save: %v", err)
	}

	id, rep, err := st.Latest()
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if id != "20260830T120001-bb" || rep.Target != "requirements" {
		t.Fatalf("latest mismatch: id=%s rep=%+v", id, rep)
	}
}

func TestNewRunID_ChronologicallySortable(t *testing.T) {
	a, err := NewRunID()
	if err != nil {
		t.Fatalf("new id: %v", err)
	}
	b, err := NewRunID()
	if err != nil {
		t.Fatalf("new id: %v", err)
	}
	if a == b {
		t.Fatalf("ids must be unique: %s", a)
	}
	if len(a) < len("20060102T150405-") {
		t.Fatalf("id too short: %s", a)
	}
}
