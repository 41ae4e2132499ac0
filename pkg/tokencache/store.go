package tokencache

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Mythidas/MSPByte-sub000/pkg/rowstore"
	"github.com/Mythidas/MSPByte-sub000/pkg/source/model"
	"github.com/Mythidas/MSPByte-sub000/pkg/syncerr"
	"github.com/google/uuid"
)

// IntegrationStore caches tokens on the source_integrations row whose id is
// Key.ID.
type IntegrationStore struct {
	table rowstore.Table[*model.SourceIntegration]
}

func NewIntegrationStore(table rowstore.Table[*model.SourceIntegration]) *IntegrationStore {
	return &IntegrationStore{table: table}
}

func (s *IntegrationStore) Load(ctx context.Context, key Key) (Token, bool, error) {
	id, err := uuid.Parse(key.ID)
	if err != nil {
		return Token{}, false, fmt.Errorf("integration id: %w", err)
	}
	integration, err := s.table.SelectSingle(ctx, rowstore.Where("id", id))
	if errors.Is(err, syncerr.ErrNotFound) {
		return Token{}, false, nil
	}
	if err != nil {
		return Token{}, false, err
	}
	if integration.Token == "" || integration.TokenExpiration == nil || integration.TokenScope != key.Scope {
		return Token{}, false, nil
	}
	return Token{Value: integration.Token, ExpiresAt: *integration.TokenExpiration}, true, nil
}

func (s *IntegrationStore) Save(ctx context.Context, key Key, tok Token) error {
	id, err := uuid.Parse(key.ID)
	if err != nil {
		return fmt.Errorf("integration id: %w", err)
	}
	expires := tok.ExpiresAt.UTC()
	_, err = s.table.Patch(ctx, id, rowstore.Patch{
		"token":            tok.Value,
		"token_expiration": expires,
		"token_scope":      key.Scope,
	})
	return err
}

type MemoryStore struct {
	mu     sync.Mutex
	tokens map[Key]Token
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: map[Key]Token{}}
}

func (s *MemoryStore) Load(_ context.Context, key Key) (Token, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[key]
	return tok, ok, nil
}

func (s *MemoryStore) Save(_ context.Context, key Key, tok Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[key] = tok
	return nil
}
