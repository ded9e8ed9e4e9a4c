// Package pipeline chains extraction, the text stages and synthesis into a
// single run.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/podcast-studio/internal/document"
	"github.com/lexiqai/podcast-studio/internal/observability"
	"github.com/lexiqai/podcast-studio/internal/podcast"
	"github.com/lexiqai/podcast-studio/internal/stages"
	"github.com/lexiqai/podcast-studio/internal/synthesis"
)

// Stage names reported through Hooks.OnStage
const (
	StageExtract   = "extract"
	StageSummary   = stages.StageSummary
	StageScript    = stages.StageScript
	StageStructure = stages.StageStructure
	StageSynthesis = "synthesis"
)

// Summarizer produces a narrative from source text
type Summarizer interface {
	Summarize(ctx context.Context, sourceText string) (string, error)
}

// DialogueWriter produces a free-form two-host transcript
type DialogueWriter interface {
	WriteDialogue(ctx context.Context, sourceText, narrative string) (string, error)
}

// Structurer converts a transcript into an ordered script
type Structurer interface {
	Structure(ctx context.Context, transcript string) (podcast.Script, error)
}

// Synthesizer renders a script to joined audio
type Synthesizer interface {
	SynthesizeWithProgress(ctx context.Context, script podcast.Script, voices podcast.VoiceAssignment, onProgress synthesis.ProgressFunc) (podcast.PodcastAudio, error)
}

// StageFunc is told when a stage starts
type StageFunc func(stage string)

// Hooks receive optional progress notifications during a run
type Hooks struct {
	OnStage    StageFunc
	OnProgress synthesis.ProgressFunc
}

func (h Hooks) stage(name string) {
	if h.OnStage != nil {
		h.OnStage(name)
	}
}

// Result holds every artifact of a full run
type Result struct {
	Narrative  string
	Transcript string
	Script     podcast.Script
	Audio      podcast.PodcastAudio
	Elapsed    time.Duration
}

// Deps are the collaborators of a Pipeline
type Deps struct {
	Source      document.Source
	Summarizer  Summarizer
	Writer      DialogueWriter
	Structurer  Structurer
	Synthesizer Synthesizer
}

// Pipeline runs the stages strictly in sequence and stops at the first error.
// Errors are returned as the stage produced them.
type Pipeline struct {
	deps   Deps
	logger zerolog.Logger
}

// New creates a Pipeline
func New(deps Deps, logger zerolog.Logger) *Pipeline {
	return &Pipeline{deps: deps, logger: logger.With().Str("component", "pipeline").Logger()}
}

// Run converts the document at url into a podcast
func (p *Pipeline) Run(ctx context.Context, url string, voices podcast.VoiceAssignment) (Result, error) {
	return p.RunWithHooks(ctx, url, voices, Hooks{})
}

// RunWithHooks is Run with stage and per-turn progress notifications
func (p *Pipeline) RunWithHooks(ctx context.Context, url string, voices podcast.VoiceAssignment, hooks Hooks) (result Result, err error) {
	if err := voices.Validate(); err != nil {
		return Result{}, err
	}

	start := time.Now()
	logger := p.logger.With().Str("url", url).Logger()
	observability.RunStarted()
	defer func() {
		observability.RunFinished("full", err == nil)
		if err != nil {
			logger.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("Run failed")
		}
	}()

	hooks.stage(StageExtract)
	extractStart := time.Now()
	sourceText, err := p.deps.Source.Fetch(ctx, url)
	observability.ObserveStage(StageExtract, extractStart)
	if err != nil {
		return Result{}, err
	}
	logger.Info().Int("chars", len(sourceText)).Msg("Source extracted")

	hooks.stage(StageSummary)
	narrative, err := p.deps.Summarizer.Summarize(ctx, sourceText)
	if err != nil {
		return Result{}, err
	}

	hooks.stage(StageScript)
	transcript, err := p.deps.Writer.WriteDialogue(ctx, sourceText, narrative)
	if err != nil {
		return Result{}, err
	}

	hooks.stage(StageStructure)
	script, err := p.deps.Structurer.Structure(ctx, transcript)
	if err != nil {
		return Result{}, err
	}

	hooks.stage(StageSynthesis)
	audio, err := p.deps.Synthesizer.SynthesizeWithProgress(ctx, script, voices, hooks.OnProgress)
	if err != nil {
		return Result{}, err
	}

	result = Result{
		Narrative:  narrative,
		Transcript: transcript,
		Script:     script,
		Audio:      audio,
		Elapsed:    time.Since(start),
	}
	logger.Info().
		Int("turns", script.Len()).
		Int("audio_bytes", len(audio)).
		Dur("elapsed", result.Elapsed).
		Msg("Run completed")

	return result, nil
}

// Resynthesize renders an existing script with new voices, skipping every
// text stage
func (p *Pipeline) Resynthesize(ctx context.Context, script podcast.Script, voices podcast.VoiceAssignment) (podcast.PodcastAudio, error) {
	return p.ResynthesizeWithHooks(ctx, script, voices, Hooks{})
}

// ResynthesizeWithHooks is Resynthesize with progress notifications
func (p *Pipeline) ResynthesizeWithHooks(ctx context.Context, script podcast.Script, voices podcast.VoiceAssignment, hooks Hooks) (audio podcast.PodcastAudio, err error) {
	if err := voices.Validate(); err != nil {
		return nil, err
	}
	if err := script.Validate(); err != nil {
		return nil, fmt.Errorf("cached script is invalid: %w", err)
	}

	start := time.Now()
	observability.RunStarted()
	defer func() { observability.RunFinished("resynthesize", err == nil) }()

	hooks.stage(StageSynthesis)
	audio, err = p.deps.Synthesizer.SynthesizeWithProgress(ctx, script, voices, hooks.OnProgress)
	if err != nil {
		p.logger.Error().Err(err).Msg("Resynthesis failed")
		return nil, err
	}

	p.logger.Info().
		Int("turns", script.Len()).
		Str("lead_voice", voices.Lead).
		Str("support_voice", voices.Support).
		Dur("elapsed", time.Since(start)).
		Msg("Resynthesis completed")

	return audio, nil
}
