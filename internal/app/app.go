// Package app assembles the pipeline from configuration. The server and
// the CLI share it so both run the same stack.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/lexiqai/podcast-studio/internal/audio"
	"github.com/lexiqai/podcast-studio/internal/config"
	"github.com/lexiqai/podcast-studio/internal/document"
	"github.com/lexiqai/podcast-studio/internal/generation"
	"github.com/lexiqai/podcast-studio/internal/pipeline"
	"github.com/lexiqai/podcast-studio/internal/speech"
	"github.com/lexiqai/podcast-studio/internal/stages"
	"github.com/lexiqai/podcast-studio/internal/synthesis"
)

// App holds the assembled pipeline and the clients it owns
type App struct {
	Pipeline *pipeline.Pipeline
	Speech   *speech.VoicevoxClient
	backend  *generation.Gemini
}

// Build wires every collaborator of the pipeline from cfg
func Build(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	backend, err := generation.NewGemini(ctx, cfg.GeminiAPIKey, logger)
	if err != nil {
		return nil, fmt.Errorf("create generation backend: %w", err)
	}

	engine := speech.NewVoicevoxClient(cfg, logger)

	return &App{
		Pipeline: pipeline.New(pipeline.Deps{
			Source:      document.NewHTTPSource(cfg, logger),
			Summarizer:  stages.NewSummarizer(backend, StageOptions(cfg.Summary, cfg.SafetyPermissive), logger),
			Writer:      stages.NewDialogueWriter(backend, StageOptions(cfg.Script, cfg.SafetyPermissive), logger),
			Structurer:  stages.NewStructurer(backend, StageOptions(cfg.Structure, cfg.SafetyPermissive), logger),
			Synthesizer: NewCoordinator(cfg, engine, logger),
		}, logger),
		Speech:  engine,
		backend: backend,
	}, nil
}

// NewCoordinator creates the synthesis coordinator with the joiner selected
// by JoinMode
func NewCoordinator(cfg *config.Config, engine *speech.VoicevoxClient, logger zerolog.Logger) *synthesis.Coordinator {
	var joiner speech.Joiner = engine
	if cfg.JoinMode == "local" {
		joiner = audio.NewLocalJoiner(logger)
	}

	return synthesis.NewCoordinator(engine, joiner, synthesis.Options{
		SpeedScale:        cfg.SpeechSpeedScale,
		MaxConcurrent:     cfg.SynthesisMaxConcurrent,
		RequestsPerSecond: cfg.SynthesisRateLimit,
	}, logger)
}

// StageOptions converts stage configuration into generation options
func StageOptions(sc config.StageConfig, permissive bool) generation.Options {
	return generation.Options{
		Model:           sc.Model,
		Temperature:     sc.Temperature,
		MaxOutputTokens: sc.MaxOutputTokens,
		ReasoningBudget: sc.ReasoningBudget,
		Permissive:      permissive,
	}
}

// Close releases the generation client
func (a *App) Close() error {
	if a.backend == nil {
		return nil
	}
	return a.backend.Close()
}
