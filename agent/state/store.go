package state

import (
	"context"
	"errors"
)

var (
	ErrStateNotFound   = errors.New("session state not found")
	ErrNilSessionState = errors.New("session state is nil")
	ErrInvalidSession  = errors.New("session id is empty")
	ErrSessionBusy     = errors.New("session is busy in another process")
)

// Store holds ConversationState across turns. Implementations must be safe
// for concurrent use across distinct sessions; turns on one session are
// serialized by the caller (see SessionLocks and SessionLocker).
type Store interface {
	Load(ctx context.Context, sessionID string) (*ConversationState, error)
	Save(ctx context.Context, st *ConversationState) error
	Delete(ctx context.Context, sessionID string) error
}

// SessionLocker is implemented by stores shared between processes. The
// returned release func must be called once the turn's writes are done.
type SessionLocker interface {
	LockSession(ctx context.Context, sessionID string) (release func(context.Context) error, err error)
}
