package stages

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/lexiqai/podcast-studio/internal/generation"
	"github.com/lexiqai/podcast-studio/internal/podcast"
)

const structureInstruction = "Convert this conversation into the given schema. The lead host's role is `lead` and the supporting host's role is `support`."

// ConversationSchema is the response shape requested from the model
func ConversationSchema() *generation.Schema {
	roles := make([]string, 0, len(podcast.Roles))
	for _, r := range podcast.Roles {
		roles = append(roles, r.String())
	}

	return &generation.Schema{
		Type:     generation.TypeObject,
		Required: []string{"conversation"},
		Properties: map[string]*generation.Schema{
			"conversation": {
				Type: generation.TypeArray,
				Items: &generation.Schema{
					Type:     generation.TypeObject,
					Required: []string{"role", "content"},
					Properties: map[string]*generation.Schema{
						"role":    {Type: generation.TypeString, Enum: roles},
						"content": {Type: generation.TypeString},
					},
				},
			},
		},
	}
}

// Structurer converts a free-form transcript into an ordered Script
type Structurer struct {
	backend generation.Backend
	options generation.Options
	logger  zerolog.Logger
}

// NewStructurer creates a Structurer
func NewStructurer(backend generation.Backend, options generation.Options, logger zerolog.Logger) *Structurer {
	return &Structurer{backend: backend, options: options, logger: logger}
}

// Structure asks for schema-constrained output and validates it. Turn order
// is kept exactly as returned. An empty transcript is still sent; a
// schema-valid empty conversation is an empty Script.
func (s *Structurer) Structure(ctx context.Context, transcript string) (podcast.Script, error) {
	payload, err := generate(ctx, s.backend, s.logger, StageStructure, generation.Request{
		Messages: []generation.Message{
			generation.User(structureInstruction),
			generation.User(transcript),
		},
		Options: s.options,
		Schema:  ConversationSchema(),
	})
	if err != nil {
		return podcast.Script{}, err
	}

	script, err := DecodeScript([]byte(payload))
	if err != nil {
		s.logger.Error().Err(err).Str("stage", StageStructure).Msg("Structured payload rejected")
		return podcast.Script{}, err
	}

	s.logger.Info().Int("turns", script.Len()).Msg("Conversation structured")
	return script, nil
}

type rawTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type rawConversation struct {
	Conversation *[]rawTurn `json:"conversation"`
}

// DecodeScript strictly decodes a conversation payload. Unknown fields,
// unknown roles, empty content and trailing data are all rejected.
func DecodeScript(payload []byte) (podcast.Script, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()

	var raw rawConversation
	if err := dec.Decode(&raw); err != nil {
		return podcast.Script{}, &podcast.SchemaValidationError{Index: -1, Reason: "unparseable payload", Err: err}
	}
	if dec.More() {
		return podcast.Script{}, &podcast.SchemaValidationError{Index: -1, Reason: "trailing data after payload"}
	}
	if raw.Conversation == nil {
		return podcast.Script{}, &podcast.SchemaValidationError{Index: -1, Field: "conversation", Reason: "missing"}
	}

	turns := make([]podcast.Turn, 0, len(*raw.Conversation))
	for _, t := range *raw.Conversation {
		turns = append(turns, podcast.Turn{Role: podcast.Role(t.Role), Content: t.Content})
	}

	script := podcast.Script{Turns: turns}
	if err := script.Validate(); err != nil {
		return podcast.Script{}, err
	}
	return script, nil
}
