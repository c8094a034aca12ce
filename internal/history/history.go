// Package history keeps the composer's list of recent captures.
package history

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/xerrors"
)

const DefaultCapacity = 10

// Entry is never mutated once added.
type Entry struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	CapturedAt  time.Time `json:"capturedAt"`
	ArtifactRef string    `json:"artifactRef"`
}

func NewEntry(url string, artifactRef string, capturedAt time.Time) Entry {
	return Entry{
		ID:          uuid.NewString(),
		URL:         url,
		CapturedAt:  capturedAt,
		ArtifactRef: artifactRef,
	}
}

type Store interface {
	// Add records entry and returns the entries the policy evicted to make
	// room for it.
	Add(ctx context.Context, entry Entry) ([]Entry, error)
	// List returns entries most recent first.
	List(ctx context.Context) ([]Entry, error)
	Close() error
}

// Policy splits a most-recent-first list into entries to keep and entries to
// evict.
type Policy interface {
	Retain(entries []Entry) (kept []Entry, evicted []Entry)
}

type mostRecent struct {
	n int
}

// MostRecent keeps the n newest entries. n must be at least 1 so the entry
// being added always survives.
func MostRecent(n int) (Policy, error) {
	if n < 1 {
		return nil, xerrors.Errorf("history capacity must be at least 1, got %d", n)
	}
	return &mostRecent{n: n}, nil
}

func (p *mostRecent) Retain(entries []Entry) ([]Entry, []Entry) {
	if len(entries) <= p.n {
		return entries, nil
	}
	return entries[:p.n], entries[p.n:]
}

func DefaultPolicy() Policy {
	return &mostRecent{n: DefaultCapacity}
}
