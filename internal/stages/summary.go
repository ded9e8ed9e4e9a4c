package stages

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lexiqai/podcast-studio/internal/generation"
	"github.com/lexiqai/podcast-studio/internal/podcast"
)

// ErrEmptySource is returned when a stage is given no source text
var ErrEmptySource = errors.New("source text is empty")

const summaryInstruction = "Write an article that explains and introduces the given material in plain language, covering its key points."

// Summarizer turns source text into an explanatory narrative
type Summarizer struct {
	backend generation.Backend
	options generation.Options
	logger  zerolog.Logger
}

// NewSummarizer creates a Summarizer
func NewSummarizer(backend generation.Backend, options generation.Options, logger zerolog.Logger) *Summarizer {
	return &Summarizer{backend: backend, options: options, logger: logger}
}

// Summarize produces the narrative for sourceText
func (s *Summarizer) Summarize(ctx context.Context, sourceText string) (string, error) {
	if strings.TrimSpace(sourceText) == "" {
		return "", &podcast.GenerationError{Stage: StageSummary, Err: ErrEmptySource}
	}

	return generate(ctx, s.backend, s.logger, StageSummary, generation.Request{
		Messages: []generation.Message{
			generation.User(summaryInstruction),
			generation.User(sourceText),
		},
		Options: s.options,
	})
}
