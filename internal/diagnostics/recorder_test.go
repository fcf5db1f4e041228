package diagnostics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRecorderCountsBalance(t *testing.T) {
	r := NewRecorder("run-1", 0)
	r.StartCycle()
	r.Ineligible("invalid_data", "a", "no price")
	r.Ineligible("blocked_terms", "b", "lot")
	r.Hit()
	r.Pros()
	r.Miss("insufficient_margin", "c", "margin 8.0% < 15.0% threshold")
	r.Miss("insufficient_margin", "d", "margin 2.0% < 15.0% threshold")

	s := r.Snapshot()
	if s.TotalSeen != 6 || s.IneligibleCount != 2 || s.EligibleCount != 4 {
		t.Fatalf("unexpected totals: %+v", s)
	}
	if s.TotalSeen != s.IneligibleCount+s.EligibleCount {
		t.Fatal("seen must equal ineligible + eligible")
	}
	if s.EligibleCount != s.HitCount+s.ProsCount+s.MissCount {
		t.Fatal("eligible must equal hit + pros + miss")
	}
	if s.Cycles != 1 || s.RunID != "run-1" {
		t.Fatalf("unexpected run metadata: %+v", s)
	}
}

func TestSamplesFirstSeenFirstKept(t *testing.T) {
	r := NewRecorder("", 2)
	for i := 0; i < 5; i++ {
		r.Ineligible("blocked_terms", fmt.Sprintf("title-%d", i), "lot")
	}
	s := r.Snapshot()
	got := s.Samples["blocked_terms"]
	if len(got) != 2 || got[0].Title != "title-0" || got[1].Title != "title-1" {
		t.Fatalf("unexpected samples: %+v", got)
	}
	if s.Buckets["blocked_terms"] != 5 {
		t.Fatalf("bucket count = %d, want 5", s.Buckets["blocked_terms"])
	}
}

func TestTopBucketsCappedAndOrdered(t *testing.T) {
	r := NewRecorder("", 0)
	counts := map[string]int{"a": 1, "b": 7, "c": 3, "d": 3, "e": 9, "f": 2, "g": 1}
	for reason, n := range counts {
		for i := 0; i < n; i++ {
			r.Miss(reason, "t", "")
		}
	}
	top := r.Snapshot().TopBuckets
	want := []string{"e", "b", "c", "d", "f"}
	if len(top) != len(want) {
		t.Fatalf("top buckets = %d, want %d", len(top), len(want))
	}
	for i, w := range want {
		if top[i].Reason != w {
			t.Fatalf("top[%d] = %s, want %s (%+v)", i, top[i].Reason, w, top)
		}
	}
}

func TestSnapshotIsIsolatedFromLaterWrites(t *testing.T) {
	r := NewRecorder("", 0)
	r.Miss("x", "first", "")
	snap := r.Snapshot()
	r.Miss("x", "second", "")
	if snap.Buckets["x"] != 1 || len(snap.Samples["x"]) != 1 {
		t.Fatalf("snapshot mutated by later writes: %+v", snap)
	}
}

func TestWriterResetAndWrite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "diag")
	w := NewWriter(dir)
	if err := w.Reset("run-9"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	summary, err := os.ReadFile(filepath.Join(dir, SummaryFile))
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	if !strings.Contains(string(summary), "(none)") {
		t.Fatalf("reset summary should list no reasons:\n%s", summary)
	}

	r := NewRecorder("run-9", 0)
	r.Ineligible("invalid_data", "Morgan 1921", "missing end time")
	if err := w.Write(r.Snapshot()); err != nil {
		t.Fatalf("write: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, JSONFile))
	if err != nil {
		t.Fatalf("read json: %v", err)
	}
	var decoded Snapshot
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if decoded.IneligibleCount != 1 || decoded.Buckets["invalid_data"] != 1 {
		t.Fatalf("unexpected decoded snapshot: %+v", decoded)
	}
	summary, _ = os.ReadFile(filepath.Join(dir, SummaryFile))
	if !strings.Contains(string(summary), `"Morgan 1921"`) {
		t.Fatalf("summary should include the sample title:\n%s", summary)
	}
}
