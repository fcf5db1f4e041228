// Package diagnostics accumulates classification outcome counts and rejection samples for
// one process run.
package diagnostics

import (
	"sort"
	"time"
)

// Defaults for bucket reporting.
const (
	DefaultSampleLimit = 3
	TopBuckets         = 5
)

// Sample is one listing title kept as an example of a rejection bucket.
type Sample struct {
	Title  string `json:"title"`
	Detail string `json:"reason_detail"`
}

// BucketCount is one histogram row.
type BucketCount struct {
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

// Snapshot is an immutable view of the recorder.
type Snapshot struct {
	RunID           string              `json:"run_id,omitempty"`
	Timestamp       time.Time           `json:"timestamp"`
	Cycles          int                 `json:"cycles"`
	TotalSeen       int                 `json:"total_listings_seen"`
	EligibleCount   int                 `json:"eligible_count"`
	IneligibleCount int                 `json:"ineligible_count"`
	HitCount        int                 `json:"hit_count"`
	ProsCount       int                 `json:"pros_count"`
	MissCount       int                 `json:"miss_count"`
	Buckets         map[string]int      `json:"rejection_buckets"`
	TopBuckets      []BucketCount       `json:"top_rejection_buckets"`
	Samples         map[string][]Sample `json:"samples_by_reason"`
}

// Recorder counts outcomes and keeps the first few titles per rejection bucket.
// It is owned by a single scan loop and is not safe for concurrent use.
type Recorder struct {
	runID       string
	sampleLimit int
	now         func() time.Time

	cycles     int
	seen       int
	ineligible int
	hit        int
	pros       int
	miss       int
	buckets    map[string]int
	samples    map[string][]Sample
}

// NewRecorder constructs a Recorder. sampleLimit <= 0 selects DefaultSampleLimit.
func NewRecorder(runID string, sampleLimit int) *Recorder {
	if sampleLimit <= 0 {
		sampleLimit = DefaultSampleLimit
	}
	return &Recorder{
		runID:       runID,
		sampleLimit: sampleLimit,
		now:         time.Now,
		buckets:     make(map[string]int),
		samples:     make(map[string][]Sample),
	}
}

// StartCycle marks the beginning of a scan cycle.
func (r *Recorder) StartCycle() {
	r.cycles++
}

// Ineligible records a listing rejected before valuation.
func (r *Recorder) Ineligible(reason, title, detail string) {
	r.seen++
	r.ineligible++
	r.reject(reason, title, detail)
}

// Hit records a melt opportunity.
func (r *Recorder) Hit() {
	r.seen++
	r.hit++
}

// Pros records a numismatic prospect.
func (r *Recorder) Pros() {
	r.seen++
	r.pros++
}

// Miss records an evaluated listing that failed every gate.
func (r *Recorder) Miss(reason, title, detail string) {
	r.seen++
	r.miss++
	r.reject(reason, title, detail)
}

func (r *Recorder) reject(reason, title, detail string) {
	r.buckets[reason]++
	if len(r.samples[reason]) < r.sampleLimit {
		r.samples[reason] = append(r.samples[reason], Sample{Title: title, Detail: detail})
	}
}

// Snapshot copies the accumulated state.
func (r *Recorder) Snapshot() Snapshot {
	snap := Snapshot{
		RunID:           r.runID,
		Timestamp:       r.now().UTC(),
		Cycles:          r.cycles,
		TotalSeen:       r.seen,
		EligibleCount:   r.seen - r.ineligible,
		IneligibleCount: r.ineligible,
		HitCount:        r.hit,
		ProsCount:       r.pros,
		MissCount:       r.miss,
		Buckets:         make(map[string]int, len(r.buckets)),
		Samples:         make(map[string][]Sample, len(r.samples)),
	}
	for k, v := range r.buckets {
		snap.Buckets[k] = v
	}
	for k, v := range r.samples {
		snap.Samples[k] = append([]Sample(nil), v...)
	}
	snap.TopBuckets = topBuckets(r.buckets, TopBuckets)
	return snap
}

// topBuckets orders by count descending, then reason ascending, and keeps n.
func topBuckets(buckets map[string]int, n int) []BucketCount {
	rows := make([]BucketCount, 0, len(buckets))
	for reason, count := range buckets {
		rows = append(rows, BucketCount{Reason: reason, Count: count})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count != rows[j].Count {
			return rows[i].Count > rows[j].Count
		}
		return rows[i].Reason < rows[j].Reason
	})
	if len(rows) > n {
		rows = rows[:n]
	}
	return rows
}
