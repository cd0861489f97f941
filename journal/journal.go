// Package journal remembers submitted deploys so that outcomes which were not
// confirmed within the polling budget can be re-checked later.
package journal

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("journal: entry not found")

// Status values mirror ledger outcomes plus "unconfirmed" for exhausted polls.
const (
	StatusPending        = "pending"
	StatusSuccess        = "success"
	StatusExecutionError = "execution_error"
	StatusUnconfirmed    = "unconfirmed"
)

// Entry is one submitted deploy.
type Entry struct {
	Deploy      string    `json:"deploy"`
	Item        string    `json:"item"`
	Step        string    `json:"step"`
	Status      string    `json:"status"`
	Message     string    `json:"message,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Final reports whether the entry's outcome is known.
func (e Entry) Final() bool {
	return e.Status == StatusSuccess || e.Status == StatusExecutionError
}

// Store persists entries keyed by deploy hash. Put replaces any earlier entry
// for the same deploy.
type Store interface {
	Put(ctx context.Context, e Entry) error
	Get(ctx context.Context, deploy string) (Entry, error)
	// List returns the latest state of every deploy, oldest submission first.
	List(ctx context.Context) ([]Entry, error)
	Close() error
}

// Unresolved filters entries whose outcome is still unknown.
func Unresolved(entries []Entry) []Entry {
	var out []Entry
	for _, e := range entries {
		if !e.Final() {
			out = append(out, e)
		}
	}
	return out
}
