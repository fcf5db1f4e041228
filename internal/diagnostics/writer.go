package diagnostics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// File names written under the diagnostics directory.
const (
	JSONFile    = "run_diagnostics.json"
	SummaryFile = "run_diagnostics_summary.txt"
)

// Writer persists snapshots. Each write overwrites the previous files.
type Writer struct {
	dir string
}

// NewWriter returns a Writer rooted at dir.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// Reset clears both files at process start.
func (w *Writer) Reset(runID string) error {
	return w.Write(Snapshot{
		RunID:     runID,
		Timestamp: time.Now().UTC(),
		Buckets:   map[string]int{},
		Samples:   map[string][]Sample{},
	})
}

// Write overwrites the JSON and summary files with snap.
func (w *Writer) Write(snap Snapshot) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create diagnostics dir: %w", err)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal diagnostics: %w", err)
	}
	if err := os.WriteFile(filepath.Join(w.dir, JSONFile), append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write diagnostics json: %w", err)
	}
	if err := os.WriteFile(filepath.Join(w.dir, SummaryFile), []byte(Summary(snap)), 0o644); err != nil {
		return fmt.Errorf("write diagnostics summary: %w", err)
	}
	return nil
}

// Summary renders the human-readable summary text.
func Summary(snap Snapshot) string {
	var b strings.Builder
	b.WriteString("=== DIAGNOSTICS SUMMARY ===\n")
	fmt.Fprintf(&b, "Run: %s", snap.Timestamp.Format("2006-01-02 15:04:05"))
	if snap.RunID != "" {
		fmt.Fprintf(&b, " (%s)", snap.RunID)
	}
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "Cycles: %d\n", snap.Cycles)
	fmt.Fprintf(&b, "Total Listings Seen: %d\n", snap.TotalSeen)
	fmt.Fprintf(&b, "  Eligible: %d\n", snap.EligibleCount)
	fmt.Fprintf(&b, "  Ineligible: %d\n\n", snap.IneligibleCount)

	b.WriteString("Classification Results:\n")
	fmt.Fprintf(&b, "  HIT: %d\n", snap.HitCount)
	fmt.Fprintf(&b, "  PROS: %d\n", snap.ProsCount)
	fmt.Fprintf(&b, "  MISS: %d\n\n", snap.MissCount)

	b.WriteString("Top Rejection Reasons:\n")
	if len(snap.TopBuckets) == 0 {
		b.WriteString("  (none)\n")
	}
	for i, row := range snap.TopBuckets {
		fmt.Fprintf(&b, "  %d. %s: %d\n", i+1, row.Reason, row.Count)
	}

	if len(snap.TopBuckets) > 0 {
		top := snap.TopBuckets[0].Reason
		if samples := snap.Samples[top]; len(samples) > 0 {
			fmt.Fprintf(&b, "\nSample Titles (%s):\n", top)
			for _, s := range samples {
				fmt.Fprintf(&b, "  - %q (%s)\n", s.Title, s.Detail)
			}
		}
	}

	b.WriteString("===========================\n")
	return b.String()
}
