package storage

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Scan run statuses.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// ScanRun is the audit row of one scan cycle.
type ScanRun struct {
	ID         uuid.UUID
	StartedAt  time.Time
	FinishedAt *time.Time
	Files      int
	Seen       int
	Ineligible int
	Hits       int
	Pros       int
	Misses     int
	Captured   int
	Notified   int
	Status     string
	Error      *string
}

// AlertRecord captures an emitted notification for auditing.
type AlertRecord struct {
	ID         int64
	DedupeKey  string
	ScanRunID  *uuid.UUID
	Outcome    string
	Title      string
	TotalPrice decimal.NullDecimal
	Channels   []string
	CreatedAt  time.Time
}
