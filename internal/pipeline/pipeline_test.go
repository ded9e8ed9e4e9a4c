package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/lexiqai/podcast-studio/internal/podcast"
	"github.com/lexiqai/podcast-studio/internal/synthesis"
)

// recorder collects the order in which fakes are called
type recorder struct {
	calls []string
}

func (r *recorder) add(name string) { r.calls = append(r.calls, name) }

type fakeSource struct {
	rec  *recorder
	text string
	err  error
}

func (f *fakeSource) Fetch(ctx context.Context, url string) (string, error) {
	f.rec.add("fetch")
	return f.text, f.err
}

type fakeSummarizer struct {
	rec *recorder
	err error
}

func (f *fakeSummarizer) Summarize(ctx context.Context, source string) (string, error) {
	f.rec.add("summarize")
	if f.err != nil {
		return "", f.err
	}
	return "narrative of " + source, nil
}

type fakeWriter struct {
	rec       *recorder
	gotSource string
	gotNarr   string
}

func (f *fakeWriter) WriteDialogue(ctx context.Context, source, narrative string) (string, error) {
	f.rec.add("write")
	f.gotSource, f.gotNarr = source, narrative
	return "lead: A\nsupport: B", nil
}

type fakeStructurer struct {
	rec *recorder
	err error
}

func (f *fakeStructurer) Structure(ctx context.Context, transcript string) (podcast.Script, error) {
	f.rec.add("structure")
	if f.err != nil {
		return podcast.Script{}, f.err
	}
	return podcast.Script{Turns: []podcast.Turn{
		{Role: podcast.RoleLead, Content: "A"},
		{Role: podcast.RoleSupport, Content: "B"},
	}}, nil
}

type fakeSynthesizer struct {
	rec       *recorder
	gotVoices []podcast.VoiceAssignment
	err       error
}

func (f *fakeSynthesizer) SynthesizeWithProgress(ctx context.Context, script podcast.Script, voices podcast.VoiceAssignment, onProgress synthesis.ProgressFunc) (podcast.PodcastAudio, error) {
	f.rec.add("synthesize")
	f.gotVoices = append(f.gotVoices, voices)
	if f.err != nil {
		return nil, f.err
	}
	var parts []string
	for i, turn := range script.Turns {
		v, _ := voices.VoiceFor(turn.Role)
		parts = append(parts, turn.Content+"/"+v)
		if onProgress != nil {
			onProgress(synthesis.Progress{Completed: i + 1, Total: script.Len(), Index: i})
		}
	}
	return podcast.PodcastAudio(strings.Join(parts, "|")), nil
}

type fixture struct {
	rec        *recorder
	source     *fakeSource
	summarizer *fakeSummarizer
	writer     *fakeWriter
	structurer *fakeStructurer
	synth      *fakeSynthesizer
}

func newFixture() *fixture {
	rec := &recorder{}
	return &fixture{
		rec:        rec,
		source:     &fakeSource{rec: rec, text: "paper"},
		summarizer: &fakeSummarizer{rec: rec},
		writer:     &fakeWriter{rec: rec},
		structurer: &fakeStructurer{rec: rec},
		synth:      &fakeSynthesizer{rec: rec},
	}
}

func (f *fixture) pipeline() *Pipeline {
	return New(Deps{
		Source:      f.source,
		Summarizer:  f.summarizer,
		Writer:      f.writer,
		Structurer:  f.structurer,
		Synthesizer: f.synth,
	}, zerolog.Nop())
}

var voices = podcast.VoiceAssignment{Lead: "v1", Support: "v2"}

func TestRun_Success(t *testing.T) {
	f := newFixture()

	var stages []string
	var progress int
	result, err := f.pipeline().RunWithHooks(context.Background(), "https://example.com/paper.pdf", voices, Hooks{
		OnStage:    func(s string) { stages = append(stages, s) },
		OnProgress: func(synthesis.Progress) { progress++ },
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if strings.Join(f.rec.calls, ",") != "fetch,summarize,write,structure,synthesize" {
		t.Errorf("Unexpected call order %v", f.rec.calls)
	}
	if strings.Join(stages, ",") != "extract,summary,script,structure,synthesis" {
		t.Errorf("Unexpected stage notifications %v", stages)
	}
	if progress != 2 {
		t.Errorf("Expected 2 progress notifications, got %d", progress)
	}

	if f.writer.gotSource != "paper" || f.writer.gotNarr != "narrative of paper" {
		t.Errorf("Expected writer to receive source and narrative, got %q / %q", f.writer.gotSource, f.writer.gotNarr)
	}
	if result.Narrative != "narrative of paper" || result.Transcript == "" || result.Script.Len() != 2 {
		t.Errorf("Unexpected result %+v", result)
	}
	if string(result.Audio) != "A/v1|B/v2" {
		t.Errorf("Expected synthesized audio, got %q", result.Audio)
	}
}

func TestRun_FailsFastWithUnwrappedErrors(t *testing.T) {
	genErr := &podcast.GenerationError{Stage: "summary", Err: errors.New("quota")}
	schemaErr := &podcast.SchemaValidationError{Index: 1, Field: "role", Reason: "unknown"}
	synthErr := &podcast.SynthesisError{Index: 2, Stage: "render", Err: errors.New("500")}
	fetchErr := &podcast.TransportError{Service: "document", Op: "fetch", StatusCode: 404}

	tests := []struct {
		name      string
		setup     func(f *fixture)
		wantErr   error
		wantCalls string
	}{
		{"fetch", func(f *fixture) { f.source.err = fetchErr }, fetchErr, "fetch"},
		{"summary", func(f *fixture) { f.summarizer.err = genErr }, genErr, "fetch,summarize"},
		{"structure", func(f *fixture) { f.structurer.err = schemaErr }, schemaErr, "fetch,summarize,write,structure"},
		{"synthesis", func(f *fixture) { f.synth.err = synthErr }, synthErr, "fetch,summarize,write,structure,synthesize"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			tt.setup(f)

			_, err := f.pipeline().Run(context.Background(), "https://example.com", voices)
			if err != tt.wantErr {
				t.Errorf("Expected the stage error itself, got %v", err)
			}
			if got := strings.Join(f.rec.calls, ","); got != tt.wantCalls {
				t.Errorf("Expected calls %q, got %q", tt.wantCalls, got)
			}
		})
	}
}

func TestRun_InvalidVoices(t *testing.T) {
	f := newFixture()

	_, err := f.pipeline().Run(context.Background(), "https://example.com", podcast.VoiceAssignment{Lead: "v1"})
	if !errors.Is(err, podcast.ErrInvalidVoices) {
		t.Fatalf("Expected ErrInvalidVoices for missing support voice, got %v", err)
	}
	if len(f.rec.calls) != 0 {
		t.Errorf("Expected no stage to run, got %v", f.rec.calls)
	}

	script := podcast.Script{Turns: []podcast.Turn{{Role: podcast.RoleLead, Content: "Hello"}}}
	if _, err := f.pipeline().Resynthesize(context.Background(), script, podcast.VoiceAssignment{Support: "v2"}); !errors.Is(err, podcast.ErrInvalidVoices) {
		t.Errorf("Expected ErrInvalidVoices from Resynthesize, got %v", err)
	}
}

func TestResynthesize_SkipsTextStages(t *testing.T) {
	f := newFixture()
	script := podcast.Script{Turns: []podcast.Turn{
		{Role: podcast.RoleLead, Content: "A"},
		{Role: podcast.RoleSupport, Content: "B"},
	}}

	first, err := f.pipeline().Resynthesize(context.Background(), script, voices)
	if err != nil {
		t.Fatalf("Resynthesize failed: %v", err)
	}
	swapped := podcast.VoiceAssignment{Lead: "v2", Support: "v1"}
	second, err := f.pipeline().Resynthesize(context.Background(), script, swapped)
	if err != nil {
		t.Fatalf("Resynthesize failed: %v", err)
	}

	if strings.Join(f.rec.calls, ",") != "synthesize,synthesize" {
		t.Errorf("Expected only synthesis calls, got %v", f.rec.calls)
	}
	if string(first) != "A/v1|B/v2" || string(second) != "A/v2|B/v1" {
		t.Errorf("Unexpected audio %q and %q", first, second)
	}
}

func TestResynthesize_RejectsInvalidScript(t *testing.T) {
	f := newFixture()
	script := podcast.Script{Turns: []podcast.Turn{{Role: "narrator", Content: "A"}}}

	_, err := f.pipeline().Resynthesize(context.Background(), script, voices)

	var schemaErr *podcast.SchemaValidationError
	if !errors.As(err, &schemaErr) || schemaErr.Index != 0 {
		t.Errorf("Expected SchemaValidationError at 0, got %v", err)
	}
	if len(f.rec.calls) != 0 {
		t.Error("Expected synthesis not to run")
	}
}
