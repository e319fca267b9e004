package notesdb

import (
	"context"
	"time"

	"github.com/mrshanahan/notes-sync/pkg/notes"
)

// Store is the persistence contract used by the API. Every note operation
// takes the owner's principal ID and filters on it explicitly; a note that
// exists but belongs to someone else is indistinguishable from a missing one.
type Store interface {
	CreatePrincipal(ctx context.Context, email string, passwordHash string) (*notes.Principal, error)
	GetPrincipal(ctx context.Context, id string) (*notes.Principal, error)
	GetPrincipalByEmail(ctx context.Context, email string) (*PrincipalRecord, error)

	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	DeleteSession(ctx context.Context, id string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)

	ListNotes(ctx context.Context, ownerID string) ([]*notes.Note, error)
	GetNote(ctx context.Context, ownerID string, id string) (*notes.Note, error)
	CreateNote(ctx context.Context, ownerID string, input notes.NoteInput) (*notes.Note, error)
	UpdateNote(ctx context.Context, ownerID string, id string, update notes.NoteUpdate) (*notes.Note, error)
	DeleteNote(ctx context.Context, ownerID string, id string) (bool, error)

	Close() error
}

type PrincipalRecord struct {
	notes.Principal
	PasswordHash string
}

type Session struct {
	ID          string
	PrincipalID string
	CreatedOn   time.Time
	ExpiresOn   time.Time
}

func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresOn)
}

type Option func(*storeOptions)

type storeOptions struct {
	now func() time.Time
}

// WithClock overrides the source of server-assigned timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *storeOptions) {
		o.now = now
	}
}

func buildOptions(opts []Option) *storeOptions {
	o := &storeOptions{now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// nextUpdatedOn returns the timestamp to record for an update so that
// updated_on strictly advances even when the clock has not moved (or moved
// backwards) at the store's resolution.
func nextUpdatedOn(prev time.Time, now time.Time, resolution time.Duration) time.Time {
	now = now.UTC().Truncate(resolution)
	if !now.After(prev) {
		return prev.Add(resolution)
	}
	return now
}
