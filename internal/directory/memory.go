package directory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps the directory in process memory. Messages appended at
// runtime are lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts []Account
	index    map[string]int
	messages map[string][]Message
	nowFunc  func() time.Time
}

func NewMemoryStore(seed Seed) *MemoryStore {
	s := &MemoryStore{
		accounts: append([]Account(nil), seed.Accounts...),
		index:    make(map[string]int, len(seed.Accounts)),
		messages: make(map[string][]Message, len(seed.Messages)),
		nowFunc:  time.Now,
	}
	for i, a := range s.accounts {
		s.index[a.ID] = i
	}
	for id, msgs := range seed.Messages {
		s.messages[id] = append([]Message(nil), msgs...)
	}
	return s
}

func (s *MemoryStore) ListAccounts(context.Context) ([]Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Account(nil), s.accounts...), nil
}

func (s *MemoryStore) GetAccount(_ context.Context, id string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	return s.accounts[i], nil
}

func (s *MemoryStore) ListMessages(_ context.Context, accountID string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.index[accountID]; !ok {
		return nil, ErrNotFound
	}
	return append([]Message(nil), s.messages[accountID]...), nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, accountID string, from Sender, text string) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, ErrEmptyMessage
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.index[accountID]; !ok {
		return Message{}, ErrNotFound
	}
	m := Message{
		ID:        uuid.NewString(),
		AccountID: accountID,
		From:      from,
		Text:      text,
		At:        s.nowFunc().UTC(),
	}
	s.messages[accountID] = append(s.messages[accountID], m)
	return m, nil
}
