// Package store persists episodes: the artifacts of each run and the
// cached script used for voice swaps.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/podcast-studio/internal/config"
	"github.com/lexiqai/podcast-studio/internal/podcast"
)

// ErrNotFound is returned when no episode has the requested id
var ErrNotFound = errors.New("episode not found")

// Status is the lifecycle state of an episode
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Episode is one podcast run and everything it produced
type Episode struct {
	ID         string                  `json:"id" bson:"id"`
	URL        string                  `json:"url" bson:"url"`
	Voices     podcast.VoiceAssignment `json:"voices" bson:"voices"`
	Status     Status                  `json:"status" bson:"status"`
	Stage      string                  `json:"stage,omitempty" bson:"stage,omitempty"`
	Narrative  string                  `json:"narrative,omitempty" bson:"narrative,omitempty"`
	Transcript string                  `json:"transcript,omitempty" bson:"transcript,omitempty"`
	Script     *podcast.Script         `json:"script,omitempty" bson:"script,omitempty"`
	Audio      []byte                  `json:"-" bson:"-"`
	Error      string                  `json:"error,omitempty" bson:"error,omitempty"`
	Elapsed    time.Duration           `json:"elapsed_ns,omitempty" bson:"elapsed_ns,omitempty"`
	CreatedAt  time.Time               `json:"created_at" bson:"created_at"`
	UpdatedAt  time.Time               `json:"updated_at" bson:"updated_at"`
}

// HasAudio reports whether the episode carries rendered audio
func (e *Episode) HasAudio() bool {
	return len(e.Audio) > 0
}

// Clone returns a deep copy so callers never share buffers with the store
func (e *Episode) Clone() *Episode {
	c := *e
	if e.Script != nil {
		turns := make([]podcast.Turn, len(e.Script.Turns))
		copy(turns, e.Script.Turns)
		c.Script = &podcast.Script{Turns: turns}
	}
	if e.Audio != nil {
		c.Audio = append([]byte(nil), e.Audio...)
	}
	return &c
}

// Store persists episodes. Save is an upsert keyed by ID.
type Store interface {
	Save(ctx context.Context, episode *Episode) error
	Get(ctx context.Context, id string) (*Episode, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Open creates the store selected by configuration and verifies it is reachable
func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (Store, error) {
	switch cfg.StoreBackend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "mongo":
		s := NewMongoStore(cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection, logger)
		if err := s.Connect(ctx); err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		s := NewPostgresStore(PostgresConfig{DSN: cfg.PostgresDSN}, logger)
		if err := s.Connect(ctx); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
