package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps episodes in process. Contents are lost on restart.
// Like the other stores, saving without audio keeps the audio already stored.
type MemoryStore struct {
	mu       sync.RWMutex
	episodes map[string]*Episode
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{episodes: make(map[string]*Episode)}
}

func (s *MemoryStore) Save(ctx context.Context, episode *Episode) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c := episode.Clone()
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.episodes[c.ID]; ok {
		c.CreatedAt = prev.CreatedAt
		if !c.HasAudio() {
			c.Audio = prev.Audio
		}
	} else if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	s.episodes[c.ID] = c
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Episode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.episodes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return e.Clone(), nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) Close(ctx context.Context) error {
	return nil
}
