// Package stages holds the three text stages that turn a source document
// into a structured two-host conversation.
package stages

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/podcast-studio/internal/generation"
	"github.com/lexiqai/podcast-studio/internal/observability"
	"github.com/lexiqai/podcast-studio/internal/podcast"
)

// Stage names used in errors, logs and metrics
const (
	StageSummary   = "summary"
	StageScript    = "script"
	StageStructure = "structure"
)

// generate runs one generation call and wraps failures as GenerationError.
// Blank output counts as a failure.
func generate(ctx context.Context, backend generation.Backend, logger zerolog.Logger, stage string, req generation.Request) (string, error) {
	start := time.Now()
	defer observability.ObserveStage(stage, start)

	logger.Debug().Str("stage", stage).Str("model", req.Options.Model).Msg("Generation started")

	text, err := backend.Generate(ctx, req)
	if err == nil && strings.TrimSpace(text) == "" {
		err = generation.ErrEmptyResponse
	}

	observability.RecordGeneration(stage, err == nil)
	if err != nil {
		logger.Error().Err(err).Str("stage", stage).Msg("Generation failed")
		return "", &podcast.GenerationError{Stage: stage, Err: err}
	}

	logger.Info().
		Str("stage", stage).
		Int("chars", len(text)).
		Dur("elapsed", time.Since(start)).
		Msg("Generation completed")

	return text, nil
}
