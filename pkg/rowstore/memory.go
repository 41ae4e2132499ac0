package rowstore

import (
	"context"
	"sync"

	"github.com/Mythidas/MSPByte-sub000/pkg/syncerr"
)

// Procedure is a Go stand-in for a server-side function. dest is the
// pointer passed to RPC.
type Procedure func(ctx context.Context, dest any, args ...any) error

// MemoryStore dispatches RPC calls to registered procedures. It lets a
// database without stored procedures stand in for postgres.
type MemoryStore struct {
	mu    sync.RWMutex
	procs map[string]Procedure
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{procs: map[string]Procedure{}}
}

func (s *MemoryStore) Register(fn string, proc Procedure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.procs[fn] = proc
}

func (s *MemoryStore) RPC(ctx context.Context, fn string, dest any, args ...any) error {
	s.mu.RLock()
	proc, ok := s.procs[fn]
	s.mu.RUnlock()
	if !ok {
		return syncerr.Newf(module, "rpc "+fn, "function not found")
	}
	return syncerr.New(module, "rpc "+fn, proc(ctx, dest, args...))
}
