// Package session stores approval-gate state between analyze and execute.
// A session is born when SQL synthesis succeeds and dies on the first
// execute attempt or at expiry, whichever comes first. Stores are
// single-consumer: Take is an atomic read-and-delete, so concurrent execute
// attempts on one ID resolve to exactly one winner.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/askql/askql/pkg/models"
)

// ErrNotFound indicates the session does not exist, was already consumed,
// or expired.
var ErrNotFound = errors.New("session not found or expired")

// Session is one approval-gate entry: everything the execute path needs to
// debug and interpret without re-running the analyze pipeline.
type Session struct {
	ID        string              `json:"id"`
	Utterance string              `json:"utterance"`
	Intent    models.Intent       `json:"intent"`
	Plan      models.Plan         `json:"plan"`
	SQL       string              `json:"sql"`
	Warnings  []models.SQLWarning `json:"warnings,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
}

// NewID generates an opaque session identifier.
func NewID() string {
	return uuid.NewString()
}

// Store is the approval-session persistence surface.
type Store interface {
	// Put inserts or replaces the session under its ID. A retried analyze
	// replaces the prior entry rather than appending.
	Put(ctx context.Context, s *Session) error

	// Take atomically reads and deletes the session. Returns ErrNotFound
	// for unknown, consumed, or expired IDs.
	Take(ctx context.Context, id string) (*Session, error)

	// Close releases the store's resources.
	Close() error
}
