package storage

import (
	"context"
)

// Well-known keys of the persisted client state.
const (
	KeyCart    = "cart"
	KeySession = "session"
)

// Store is the durable key/value port the cart and the session write through to.
// A missing key is not an error: Get reports ok=false. Errors are backend
// failures only and carry domain.KindPersistence.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}
