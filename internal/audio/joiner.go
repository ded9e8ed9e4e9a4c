package audio

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// LocalJoiner concatenates segments in process instead of asking the
// speech engine to do it
type LocalJoiner struct {
	logger zerolog.Logger
}

// NewLocalJoiner creates a LocalJoiner
func NewLocalJoiner(logger zerolog.Logger) *LocalJoiner {
	return &LocalJoiner{logger: logger.With().Str("component", "local_joiner").Logger()}
}

// Join concatenates segments in the given order
func (j *LocalJoiner) Join(ctx context.Context, segments [][]byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	out, err := Concat(segments)
	if err != nil {
		return nil, err
	}

	j.logger.Debug().
		Int("segments", len(segments)).
		Int("bytes", len(out)).
		Dur("elapsed", time.Since(start)).
		Msg("Segments joined")

	return out, nil
}
