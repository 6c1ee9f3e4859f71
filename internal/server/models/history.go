package models

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultNote is shown for history entries stored without a note.
const DefaultNote = "Update"

// HistoryEntry is one immutable change to a project's current amount.
// Amount may be negative; NewTotal is the current amount after the change.
type HistoryEntry struct {
	ID        string
	ProjectID string
	// Seq is the per-project insertion order, starting at 1.
	Seq       int64
	Amount    decimal.Decimal
	NewTotal  decimal.Decimal
	Timestamp time.Time
	Note      string
}

// DisplayNote returns Note, or DefaultNote when it is empty.
func (e *HistoryEntry) DisplayNote() string {
	if e.Note == "" {
		return DefaultNote
	}
	return e.Note
}

// SortNewestFirst orders entries by timestamp descending. Entries with equal
// timestamps keep insertion order (Seq ascending).
func SortNewestFirst(entries []*HistoryEntry) {
	slices.SortStableFunc(entries, func(a, b *HistoryEntry) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		switch {
		case a.Seq < b.Seq:
			return -1
		case a.Seq > b.Seq:
			return 1
		}
		return 0
	})
}
