// Package rowstore is the typed CRUD contract the sync subsystem uses to
// reach its relational backend. Every error crossing it is a *syncerr.Error.
package rowstore

import (
	"context"

	"github.com/google/uuid"
)

const module = "rowstore"

// Row is a table record addressed by a generated id. Implementations are
// pointers to gorm models.
type Row interface {
	GetID() uuid.UUID
	SetID(uuid.UUID)
}

// Patch maps column names to new values.
type Patch map[string]any

type Table[T Row] interface {
	Name() string
	Select(ctx context.Context, q Query) ([]T, error)
	// SelectSingle returns syncerr.ErrNotFound when nothing matches.
	SelectSingle(ctx context.Context, q Query) (T, error)
	Insert(ctx context.Context, rows []T) ([]T, error)
	// Update replaces every column of the row except id and created_at.
	Update(ctx context.Context, id uuid.UUID, row T) (T, error)
	// Patch updates only the given columns and returns the updated row.
	Patch(ctx context.Context, id uuid.UUID, patch Patch) (T, error)
	Delete(ctx context.Context, ids []uuid.UUID) error
}

// Store runs server-side procedures. dest must be a pointer to a slice.
type Store interface {
	RPC(ctx context.Context, fn string, dest any, args ...any) error
}

type authorizationKey struct{}

// WithAuthorization attaches the caller's Authorization header so the
// backend can scope the call with row level security.
func WithAuthorization(ctx context.Context, header string) context.Context {
	return context.WithValue(ctx, authorizationKey{}, header)
}

func Authorization(ctx context.Context) string {
	v, _ := ctx.Value(authorizationKey{}).(string)
	return v
}
