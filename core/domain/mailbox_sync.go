package domain

import "time"

// =============================================================================
// Sync Pass
// =============================================================================

// DefaultSyncInterval is the fixed refresh interval between scheduled passes.
const DefaultSyncInterval = 30 * time.Second

type ConfirmOutcome string

const (
	OutcomeIgnored          ConfirmOutcome = "ignored"
	OutcomeAlreadyConfirmed ConfirmOutcome = "already_confirmed"
	OutcomeAutoReplied      ConfirmOutcome = "auto_replied"
	OutcomeFailed           ConfirmOutcome = "failed"
)

// StatusLog is the append-only list of human-readable entries of one pass.
type StatusLog struct {
	entries []string
}

func (l *StatusLog) Add(entry string) {
	l.entries = append(l.entries, entry)
}

func (l *StatusLog) Reset() {
	l.entries = nil
}

// Entries returns a copy of the entries in insertion order.
func (l *StatusLog) Entries() []string {
	out := make([]string, len(l.entries))
	copy(out, l.entries)
	return out
}

// SyncResult is the outcome of one sync pass.
type SyncResult struct {
	Received   []*MessageDetail `json:"received"`
	Sent       []*MessageDetail `json:"sent"`
	Logs       []string         `json:"logs"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	NextRunAt  time.Time        `json:"next_run_at"`
}
