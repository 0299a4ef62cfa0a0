package domain

import (
	"context"
	"io"
	"time"
)

// SubmissionStore persists the audit trail of submitted transactions.
type SubmissionStore interface {
	Record(ctx context.Context, s Submission) error
	ListSince(ctx context.Context, since time.Time, limit int) ([]Submission, error)
}

// LockManager provides a distributed mutual-exclusion lock so that at most one
// bridge instance answers choices on a network at a time. Acquire returns an
// unlock function, or ErrLockHeld when another instance holds the lock.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// BlobWriter uploads opaque objects (cycle reports) to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}
