package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

// ErrEmptyResponse is returned when the model answers with no usable text
var ErrEmptyResponse = errors.New("model returned no text content")

var harmCategories = []genai.HarmCategory{
	genai.HarmCategoryHarassment,
	genai.HarmCategoryHateSpeech,
	genai.HarmCategorySexuallyExplicit,
	genai.HarmCategoryDangerousContent,
}

// Gemini implements Backend on the Gemini API
type Gemini struct {
	client *genai.Client
	logger zerolog.Logger
}

// NewGemini creates a Gemini backend authenticated with apiKey
func NewGemini(ctx context.Context, apiKey string, logger zerolog.Logger) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &Gemini{
		client: client,
		logger: logger.With().Str("component", "gemini").Logger(),
	}, nil
}

// Close is a no-op; the client holds no connections of its own
func (g *Gemini) Close() error {
	return nil
}

// Generate runs a single, non-streaming generation call
func (g *Gemini) Generate(ctx context.Context, req Request) (string, error) {
	contents := buildContents(req.Messages)
	if len(contents) == 0 {
		return "", fmt.Errorf("request has no user messages")
	}

	g.logger.Debug().
		Str("model", req.Options.Model).
		Int("messages", len(contents)).
		Int32("reasoning_budget", req.Options.ReasoningBudget).
		Bool("structured", req.Schema != nil).
		Msg("Generating content")

	resp, err := g.client.Models.GenerateContent(ctx, req.Options.Model, contents, buildConfig(req))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	return responseText(resp)
}

// buildConfig maps sampling, reasoning, safety and schema settings onto a
// request config. The reasoning budget is always sent so that 0 switches
// thinking off instead of falling back to the model default.
func buildConfig(req Request) *genai.GenerateContentConfig {
	temperature := req.Options.Temperature
	budget := req.Options.ReasoningBudget

	config := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: req.Options.MaxOutputTokens,
		ThinkingConfig:  &genai.ThinkingConfig{ThinkingBudget: &budget},
	}

	if req.Options.Permissive {
		config.SafetySettings = make([]*genai.SafetySetting, 0, len(harmCategories))
		for _, category := range harmCategories {
			config.SafetySettings = append(config.SafetySettings, &genai.SafetySetting{
				Category:  category,
				Threshold: genai.HarmBlockThresholdBlockNone,
			})
		}
	}

	if system := systemText(req.Messages); system != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}

	if req.Schema != nil {
		config.ResponseMIMEType = "application/json"
		config.ResponseSchema = toGenaiSchema(req.Schema)
	}

	return config
}

func systemText(messages []Message) string {
	var texts []string
	for _, m := range messages {
		if m.Role == RoleSystem {
			texts = append(texts, m.Content)
		}
	}
	return strings.Join(texts, "\n\n")
}

// buildContents sends every non-system message as its own user turn
func buildContents(messages []Message) []*genai.Content {
	var contents []*genai.Content
	for _, m := range messages {
		if m.Role == RoleSystem {
			continue
		}
		contents = append(contents, &genai.Content{
			Role:  string(genai.RoleUser),
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}
	return contents
}

func toGenaiSchema(s *Schema) *genai.Schema {
	if s == nil {
		return nil
	}

	out := &genai.Schema{
		Description: s.Description,
		Required:    s.Required,
		Enum:        s.Enum,
		Items:       toGenaiSchema(s.Items),
	}

	switch s.Type {
	case TypeObject:
		out.Type = genai.TypeObject
	case TypeArray:
		out.Type = genai.TypeArray
	default:
		out.Type = genai.TypeString
	}

	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = toGenaiSchema(prop)
		}
	}

	return out
}

// responseText concatenates the answer parts of the first candidate.
// Thought summaries are skipped.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return "", fmt.Errorf("prompt blocked: %s: %w", resp.PromptFeedback.BlockReason, ErrEmptyResponse)
		}
		return "", ErrEmptyResponse
	}

	candidate := resp.Candidates[0]
	if candidate == nil || candidate.Content == nil {
		reason := genai.FinishReason("")
		if candidate != nil {
			reason = candidate.FinishReason
		}
		return "", fmt.Errorf("finish reason %s: %w", reason, ErrEmptyResponse)
	}

	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		b.WriteString(part.Text)
	}

	if strings.TrimSpace(b.String()) == "" {
		return "", ErrEmptyResponse
	}
	return b.String(), nil
}
