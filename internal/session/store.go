package session

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrEnded    = errors.New("session already ended")
	ErrExists   = errors.New("room already has a live session")
)

// Store persists session records. Implementations must enforce that at most
// one non-ended session exists per room identifier.
type Store interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, idOrCode string) (*Session, error)
	SetStatus(ctx context.Context, id, status string) error
	List(ctx context.Context) ([]*Session, error)
}
