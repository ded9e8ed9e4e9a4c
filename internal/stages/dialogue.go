package stages

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lexiqai/podcast-studio/internal/generation"
	"github.com/lexiqai/podcast-studio/internal/podcast"
)

// Section labels that separate the two inputs of the dialogue request
const (
	SourceLabel      = "# Source"
	ExplanationLabel = "# Explanation"
)

const dialogueInstruction = `Using the source material and its explanatory article, write the script of a podcast that introduces the content.
Two people take turns speaking.

# Hosts
- Lead: drives the introduction and does most of the explaining.
- Support: listens to the lead, reacts, and asks follow-up questions that help listeners understand.

# Structure
1. Intro: the hosts greet listeners and say what they will talk about. Skip self-introductions.
2. Explanation: walk through the content, checking background knowledge along the way.
3. Closing: wrap up with a look at what comes next.`

// DialogueWriter turns source text and narrative into a two-host transcript
type DialogueWriter struct {
	backend generation.Backend
	options generation.Options
	logger  zerolog.Logger
}

// NewDialogueWriter creates a DialogueWriter
func NewDialogueWriter(backend generation.Backend, options generation.Options, logger zerolog.Logger) *DialogueWriter {
	return &DialogueWriter{backend: backend, options: options, logger: logger}
}

// WriteDialogue produces a free-form transcript with intro, body and closing
func (w *DialogueWriter) WriteDialogue(ctx context.Context, sourceText, narrative string) (string, error) {
	if strings.TrimSpace(sourceText) == "" {
		return "", &podcast.GenerationError{Stage: StageScript, Err: ErrEmptySource}
	}
	if strings.TrimSpace(narrative) == "" {
		return "", &podcast.GenerationError{Stage: StageScript, Err: errors.New("narrative is empty")}
	}

	return generate(ctx, w.backend, w.logger, StageScript, generation.Request{
		Messages: []generation.Message{
			generation.User(dialogueInstruction),
			generation.User(DialogueInput(sourceText, narrative)),
		},
		Options: w.options,
	})
}

// DialogueInput joins both artifacts into one labeled message
func DialogueInput(sourceText, narrative string) string {
	var b strings.Builder
	b.WriteString(SourceLabel)
	b.WriteByte('\n')
	b.WriteString(sourceText)
	b.WriteString("\n\n")
	b.WriteString(ExplanationLabel)
	b.WriteByte('\n')
	b.WriteString(narrative)
	return b.String()
}
