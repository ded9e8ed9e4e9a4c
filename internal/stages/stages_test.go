package stages

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/lexiqai/podcast-studio/internal/generation"
	"github.com/lexiqai/podcast-studio/internal/podcast"
)

// fakeBackend answers every request with respond and records the requests
type fakeBackend struct {
	mu       sync.Mutex
	requests []generation.Request
	respond  func(req generation.Request) (string, error)
}

func (f *fakeBackend) Generate(ctx context.Context, req generation.Request) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.respond(req)
}

func constant(text string, err error) *fakeBackend {
	return &fakeBackend{respond: func(generation.Request) (string, error) { return text, err }}
}

// structuringBackend parses "role: content" lines, standing in for a model
// that follows the schema faithfully.
func structuringBackend() *fakeBackend {
	return &fakeBackend{respond: func(req generation.Request) (string, error) {
		transcript := req.Messages[len(req.Messages)-1].Content
		var turns []rawTurn
		for _, line := range strings.Split(transcript, "\n") {
			role, content, ok := strings.Cut(line, ": ")
			if !ok {
				continue
			}
			turns = append(turns, rawTurn{Role: role, Content: content})
		}
		if turns == nil {
			turns = []rawTurn{}
		}
		out, err := json.Marshal(map[string]any{"conversation": turns})
		return string(out), err
	}}
}

var testOptions = generation.Options{Model: "test-model", Temperature: 1.0, MaxOutputTokens: 4096}

func TestSummarize_Success(t *testing.T) {
	backend := constant("A plain explanation.", nil)
	s := NewSummarizer(backend, testOptions, zerolog.Nop())

	got, err := s.Summarize(context.Background(), "paper body")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got != "A plain explanation." {
		t.Errorf("Expected narrative, got %q", got)
	}

	req := backend.requests[0]
	if req.Schema != nil {
		t.Error("Expected free text request")
	}
	if req.Options.Model != "test-model" {
		t.Errorf("Expected options to pass through, got %+v", req.Options)
	}
	if last := req.Messages[len(req.Messages)-1]; last.Content != "paper body" {
		t.Errorf("Expected source as last message, got %q", last.Content)
	}
}

func TestSummarize_Failures(t *testing.T) {
	tests := []struct {
		name        string
		source      string
		backend     *fakeBackend
		wantCalls   int
		wantWrapped error
	}{
		{"empty source", "   ", constant("unused", nil), 0, ErrEmptySource},
		{"backend error", "text", constant("", errors.New("quota exceeded")), 1, nil},
		{"blank output", "text", constant(" \n ", nil), 1, generation.ErrEmptyResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSummarizer(tt.backend, testOptions, zerolog.Nop())
			_, err := s.Summarize(context.Background(), tt.source)

			var genErr *podcast.GenerationError
			if !errors.As(err, &genErr) {
				t.Fatalf("Expected GenerationError, got %v", err)
			}
			if genErr.Stage != StageSummary {
				t.Errorf("Expected stage %q, got %q", StageSummary, genErr.Stage)
			}
			if tt.wantWrapped != nil && !errors.Is(err, tt.wantWrapped) {
				t.Errorf("Expected %v to be wrapped, got %v", tt.wantWrapped, err)
			}
			if len(tt.backend.requests) != tt.wantCalls {
				t.Errorf("Expected %d backend calls, got %d", tt.wantCalls, len(tt.backend.requests))
			}
		})
	}
}

func TestWriteDialogue_LabelsSections(t *testing.T) {
	backend := constant("lead: hello\nsupport: hi", nil)
	w := NewDialogueWriter(backend, testOptions, zerolog.Nop())

	if _, err := w.WriteDialogue(context.Background(), "SOURCE TEXT", "NARRATIVE TEXT"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	input := backend.requests[0].Messages[len(backend.requests[0].Messages)-1].Content
	src := strings.Index(input, SourceLabel)
	expl := strings.Index(input, ExplanationLabel)
	if src < 0 || expl < 0 || src > expl {
		t.Fatalf("Expected labeled sections in order, got %q", input)
	}
	if !strings.Contains(input[src:expl], "SOURCE TEXT") || !strings.Contains(input[expl:], "NARRATIVE TEXT") {
		t.Errorf("Expected each artifact under its label, got %q", input)
	}
}

func TestWriteDialogue_BackendFailure(t *testing.T) {
	w := NewDialogueWriter(constant("", errors.New("unavailable")), testOptions, zerolog.Nop())

	_, err := w.WriteDialogue(context.Background(), "src", "narrative")
	var genErr *podcast.GenerationError
	if !errors.As(err, &genErr) || genErr.Stage != StageScript {
		t.Errorf("Expected script GenerationError, got %v", err)
	}
}

func TestStructure_RequestsSchema(t *testing.T) {
	backend := constant(`{"conversation":[{"role":"lead","content":"hi"}]}`, nil)
	s := NewStructurer(backend, generation.Options{Temperature: 0.1}, zerolog.Nop())

	script, err := s.Structure(context.Background(), "lead: hi")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if script.Len() != 1 {
		t.Errorf("Expected 1 turn, got %d", script.Len())
	}

	schema := backend.requests[0].Schema
	if schema == nil {
		t.Fatal("Expected schema on structuring request")
	}
	role := schema.Properties["conversation"].Items.Properties["role"]
	if len(role.Enum) != 2 || role.Enum[0] != "lead" || role.Enum[1] != "support" {
		t.Errorf("Expected role enum [lead support], got %v", role.Enum)
	}
}

func TestStructure_PreservesOrder(t *testing.T) {
	payload := `{"conversation":[
		{"role":"support","content":"C"},
		{"role":"lead","content":"A"},
		{"role":"lead","content":"A"},
		{"role":"support","content":"B"}]}`
	s := NewStructurer(constant(payload, nil), testOptions, zerolog.Nop())

	script, err := s.Structure(context.Background(), "transcript")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	want := []string{"C", "A", "A", "B"}
	for i, turn := range script.Turns {
		if turn.Content != want[i] {
			t.Errorf("Turn %d: expected %q, got %q", i, want[i], turn.Content)
		}
	}
}

func TestStructure_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		wantIndex int
		wantField string
	}{
		{"not json", "lead: hello", -1, ""},
		{"unknown role", `{"conversation":[{"role":"lead","content":"a"},{"role":"narrator","content":"b"}]}`, 1, "role"},
		{"empty content", `{"conversation":[{"role":"lead","content":"  "}]}`, 0, "content"},
		{"missing conversation", `{}`, -1, "conversation"},
		{"unknown field", `{"conversation":[],"extra":1}`, -1, ""},
		{"trailing data", `{"conversation":[]} {}`, -1, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStructurer(constant(tt.payload, nil), testOptions, zerolog.Nop())
			_, err := s.Structure(context.Background(), "transcript")

			var schemaErr *podcast.SchemaValidationError
			if !errors.As(err, &schemaErr) {
				t.Fatalf("Expected SchemaValidationError, got %v", err)
			}
			if schemaErr.Index != tt.wantIndex {
				t.Errorf("Expected index %d, got %d", tt.wantIndex, schemaErr.Index)
			}
			if schemaErr.Field != tt.wantField {
				t.Errorf("Expected field %q, got %q", tt.wantField, schemaErr.Field)
			}
		})
	}
}

func TestStructure_EmptyAndSingleTurn(t *testing.T) {
	tests := []struct {
		transcript string
		payload    string
		want       int
	}{
		{"transcript", `{"conversation":[]}`, 0},
		{"transcript", `{"conversation":[{"role":"support","content":"only me"}]}`, 1},
		{"", `{"conversation":[]}`, 0},
		{"  \n", `{"conversation":[]}`, 0},
	}

	for _, tt := range tests {
		backend := constant(tt.payload, nil)
		s := NewStructurer(backend, testOptions, zerolog.Nop())
		script, err := s.Structure(context.Background(), tt.transcript)
		if err != nil {
			t.Errorf("Unexpected error for %q -> %s: %v", tt.transcript, tt.payload, err)
			continue
		}
		if script.Len() != tt.want {
			t.Errorf("Expected %d turns, got %d", tt.want, script.Len())
		}
		if len(backend.requests) != 1 {
			t.Errorf("Expected the backend to be asked once for %q, got %d calls", tt.transcript, len(backend.requests))
		}
	}
}

func TestStructure_BackendFailureIsGenerationError(t *testing.T) {
	s := NewStructurer(constant("", errors.New("timeout")), testOptions, zerolog.Nop())

	_, err := s.Structure(context.Background(), "transcript")
	var genErr *podcast.GenerationError
	if !errors.As(err, &genErr) || genErr.Stage != StageStructure {
		t.Errorf("Expected structure GenerationError, got %v", err)
	}
}

func TestStructure_RoundTripsRenderedScript(t *testing.T) {
	original := podcast.Script{Turns: []podcast.Turn{
		{Role: podcast.RoleLead, Content: "Welcome to the show."},
		{Role: podcast.RoleSupport, Content: "What are we reading today?"},
		{Role: podcast.RoleLead, Content: "A paper on retrieval."},
		{Role: podcast.RoleSupport, Content: "Sounds fun."},
	}}

	s := NewStructurer(structuringBackend(), testOptions, zerolog.Nop())
	got, err := s.Structure(context.Background(), podcast.Render(original))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if got.Len() != original.Len() {
		t.Fatalf("Expected %d turns, got %d", original.Len(), got.Len())
	}
	for i := range original.Turns {
		if got.Turns[i].Role != original.Turns[i].Role {
			t.Errorf("Turn %d: expected role %s, got %s", i, original.Turns[i].Role, got.Turns[i].Role)
		}
		if strings.TrimSpace(got.Turns[i].Content) == "" {
			t.Errorf("Turn %d: expected content", i)
		}
	}
}
