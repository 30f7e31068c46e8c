// Package credstore persists the per-exchange credential mapping as a single
// JSON document under one fixed key.
package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"marketdesk/pkg/market"

	"go.uber.org/zap"
)

// DefaultKey is the storage key the dashboard has always used.
const DefaultKey = "trading-bot-api-configs"

var ErrUnknownExchange = errors.New("unknown exchange")

type Store struct {
	backend Backend
	key     string
	log     *zap.Logger

	// serializes read-modify-write in this process; across processes the
	// last write wins
	mu sync.Mutex
}

func New(backend Backend, key string, log *zap.Logger) *Store {
	if key == "" {
		key = DefaultKey
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{backend: backend, key: key, log: log}
}

// Load returns the stored mapping exactly as saved. An absent or unparsable
// value yields the defaults.
func (s *Store) Load(ctx context.Context) (Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

func (s *Store) load(ctx context.Context) (Credentials, error) {
	raw, ok, err := s.backend.Get(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	if !ok {
		return Defaults(), nil
	}

	var stored Credentials
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		s.log.Warn("stored credentials unreadable, using defaults", zap.String("key", s.key), zap.Error(err))
		return Defaults(), nil
	}
	// a stored JSON null
	if stored == nil {
		return Defaults(), nil
	}
	return stored, nil
}

// Save replaces the whole mapping.
func (s *Store) Save(ctx context.Context, creds Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(ctx, creds)
}

func (s *Store) save(ctx context.Context, creds Credentials) error {
	data, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	if err := s.backend.Put(ctx, s.key, string(data)); err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	return nil
}

// Update applies fn to one exchange's credential and saves the mapping.
func (s *Store) Update(ctx context.Context, id market.ID, fn func(*Credential)) (Credential, error) {
	if !id.IsKnown() {
		return Credential{}, fmt.Errorf("%w: %s", ErrUnknownExchange, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	creds, err := s.load(ctx)
	if err != nil {
		return Credential{}, err
	}
	cred := creds.Lookup(id)
	fn(&cred)
	creds[id] = cred

	if err := s.save(ctx, creds); err != nil {
		return Credential{}, err
	}
	return cred, nil
}

// Get returns one exchange's credential.
func (s *Store) Get(ctx context.Context, id market.ID) (Credential, error) {
	if !id.IsKnown() {
		return Credential{}, fmt.Errorf("%w: %s", ErrUnknownExchange, id)
	}
	creds, err := s.Load(ctx)
	if err != nil {
		return Credential{}, err
	}
	return creds.Lookup(id), nil
}
