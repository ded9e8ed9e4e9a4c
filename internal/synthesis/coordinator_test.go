package synthesis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/podcast-studio/internal/audio"
	"github.com/lexiqai/podcast-studio/internal/podcast"
	"github.com/lexiqai/podcast-studio/internal/speech"
)

// fakeEngine renders "text/voice" as the audio payload. delay and fail let
// tests shape completion order and inject failures per text.
type fakeEngine struct {
	mu          sync.Mutex
	descriptors []string
	speeds      []float64
	delay       func(text string) time.Duration
	fail        func(text string) error
	cancelled   int32
}

func (f *fakeEngine) CreateDescriptor(ctx context.Context, text, voiceID string) (*speech.Descriptor, error) {
	f.mu.Lock()
	f.descriptors = append(f.descriptors, text+"/"+voiceID)
	f.mu.Unlock()

	if f.delay != nil {
		select {
		case <-time.After(f.delay(text)):
		case <-ctx.Done():
			atomic.AddInt32(&f.cancelled, 1)
			return nil, ctx.Err()
		}
	}
	if f.fail != nil {
		if err := f.fail(text); err != nil {
			return nil, err
		}
	}
	return speech.NewDescriptor([]byte(fmt.Sprintf(`{"text":%q,"speedScale":1.0}`, text)))
}

func (f *fakeEngine) Render(ctx context.Context, voiceID string, d *speech.Descriptor) ([]byte, error) {
	speed, _ := d.SpeedScale()
	f.mu.Lock()
	f.speeds = append(f.speeds, speed)
	f.mu.Unlock()

	body, err := d.MarshalJSON()
	if err != nil {
		return nil, err
	}
	text := string(body)
	start := strings.Index(text, `"text":"`) + len(`"text":"`)
	end := strings.Index(text[start:], `"`) + start
	return []byte(text[start:end] + "/" + voiceID), nil
}

// recordingJoiner captures what it was asked to join
type recordingJoiner struct {
	calls    int
	segments [][]byte
	err      error
}

func (j *recordingJoiner) Join(ctx context.Context, segments [][]byte) ([]byte, error) {
	j.calls++
	j.segments = segments
	if j.err != nil {
		return nil, j.err
	}
	return bytes.Join(segments, []byte("|")), nil
}

var voices = podcast.VoiceAssignment{Lead: "v1", Support: "v2"}

func alternating(texts ...string) podcast.Script {
	turns := make([]podcast.Turn, len(texts))
	for i, text := range texts {
		role := podcast.RoleLead
		if i%2 == 1 {
			role = podcast.RoleSupport
		}
		turns[i] = podcast.Turn{Role: role, Content: text}
	}
	return podcast.Script{Turns: turns}
}

func TestSynthesize_FourTurnScenario(t *testing.T) {
	engine := &fakeEngine{}
	joiner := &recordingJoiner{}
	c := NewCoordinator(engine, joiner, Options{}, zerolog.Nop())

	out, err := c.Synthesize(context.Background(), alternating("A", "B", "C", "D"), voices)
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}

	want := []string{"A/v1", "B/v2", "C/v1", "D/v2"}
	if joiner.calls != 1 {
		t.Fatalf("Expected 1 join call, got %d", joiner.calls)
	}
	for i, seg := range joiner.segments {
		if string(seg) != want[i] {
			t.Errorf("Segment %d: expected %q, got %q", i, want[i], seg)
		}
	}
	if string(out) != "A/v1|B/v2|C/v1|D/v2" {
		t.Errorf("Expected joiner output to be returned, got %q", out)
	}
	for _, s := range engine.speeds {
		if s != DefaultSpeedScale {
			t.Errorf("Expected speed scale %v, got %v", DefaultSpeedScale, s)
		}
	}
}

func TestSynthesize_OrderIndependentOfCompletion(t *testing.T) {
	for _, n := range []int{1, 2, 5, 12} {
		for trial := 0; trial < 3; trial++ {
			t.Run(fmt.Sprintf("n=%d/trial=%d", n, trial), func(t *testing.T) {
				texts := make([]string, n)
				delays := make(map[string]time.Duration, n)
				perm := rand.Perm(n)
				for i := range texts {
					texts[i] = fmt.Sprintf("turn-%02d", i)
					delays[texts[i]] = time.Duration(perm[i]) * 3 * time.Millisecond
				}

				engine := &fakeEngine{delay: func(text string) time.Duration { return delays[text] }}
				joiner := &recordingJoiner{}
				c := NewCoordinator(engine, joiner, Options{}, zerolog.Nop())

				if _, err := c.Synthesize(context.Background(), alternating(texts...), voices); err != nil {
					t.Fatalf("Synthesize failed: %v", err)
				}

				for i, seg := range joiner.segments {
					if !strings.HasPrefix(string(seg), texts[i]+"/") {
						t.Errorf("Position %d: expected %s, got %s", i, texts[i], seg)
					}
				}
			})
		}
	}
}

func TestSynthesize_ZeroTurns(t *testing.T) {
	joiner := &recordingJoiner{}
	c := NewCoordinator(&fakeEngine{}, joiner, Options{}, zerolog.Nop())

	_, err := c.Synthesize(context.Background(), podcast.Script{}, voices)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if joiner.calls != 1 || len(joiner.segments) != 0 {
		t.Errorf("Expected one join with an empty list, got %d calls with %d segments", joiner.calls, len(joiner.segments))
	}
}

func TestSynthesize_FailingTurnCancelsAndSkipsJoin(t *testing.T) {
	engine := &fakeEngine{
		delay: func(text string) time.Duration {
			if text == "T2" {
				return 0
			}
			return time.Second
		},
		fail: func(text string) error {
			if text == "T2" {
				return errors.New("engine rejected text")
			}
			return nil
		},
	}
	joiner := &recordingJoiner{}
	c := NewCoordinator(engine, joiner, Options{}, zerolog.Nop())

	start := time.Now()
	_, err := c.Synthesize(context.Background(), alternating("T0", "T1", "T2", "T3", "T4"), voices)

	var synthErr *podcast.SynthesisError
	if !errors.As(err, &synthErr) {
		t.Fatalf("Expected SynthesisError, got %v", err)
	}
	if synthErr.Index != 2 || synthErr.Stage != StageDescriptor {
		t.Errorf("Expected failure at turn 2 descriptor, got %+v", synthErr)
	}
	if joiner.calls != 0 {
		t.Error("Expected join not to be called")
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("Expected outstanding turns to be cancelled")
	}
	if atomic.LoadInt32(&engine.cancelled) != 4 {
		t.Errorf("Expected 4 cancelled requests, got %d", engine.cancelled)
	}
}

func TestSynthesize_CallerCancellation(t *testing.T) {
	engine := &fakeEngine{delay: func(string) time.Duration { return time.Second }}
	joiner := &recordingJoiner{}
	c := NewCoordinator(engine, joiner, Options{}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Synthesize(ctx, alternating("A", "B", "C"), voices)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
	if joiner.calls != 0 {
		t.Error("Expected join not to be called")
	}
}

func TestSynthesize_JoinFailure(t *testing.T) {
	joiner := &recordingJoiner{err: errors.New("connect_waves failed")}
	c := NewCoordinator(&fakeEngine{}, joiner, Options{}, zerolog.Nop())

	_, err := c.Synthesize(context.Background(), alternating("A"), voices)

	var synthErr *podcast.SynthesisError
	if !errors.As(err, &synthErr) || synthErr.Stage != StageJoin {
		t.Errorf("Expected join SynthesisError, got %v", err)
	}
}

func TestSynthesize_MissingVoice(t *testing.T) {
	joiner := &recordingJoiner{}
	c := NewCoordinator(&fakeEngine{}, joiner, Options{}, zerolog.Nop())

	_, err := c.Synthesize(context.Background(), alternating("A", "B"), podcast.VoiceAssignment{Lead: "v1"})

	var synthErr *podcast.SynthesisError
	if !errors.As(err, &synthErr) || synthErr.Index != 1 || synthErr.Stage != StageVoice {
		t.Errorf("Expected voice SynthesisError at 1, got %v", err)
	}
}

func TestSynthesize_Progress(t *testing.T) {
	c := NewCoordinator(&fakeEngine{}, &recordingJoiner{}, Options{}, zerolog.Nop())

	long := "This sentence is definitely longer than twenty runes."
	var updates []Progress
	_, err := c.SynthesizeWithProgress(context.Background(), alternating(long, "short", "mid"), voices, func(p Progress) {
		updates = append(updates, p)
	})
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}

	if len(updates) != 3 {
		t.Fatalf("Expected 3 progress updates, got %d", len(updates))
	}
	seen := map[int]bool{}
	for i, p := range updates {
		if p.Completed != i+1 || p.Total != 3 {
			t.Errorf("Update %d: expected %d/3, got %d/%d", i, i+1, p.Completed, p.Total)
		}
		seen[p.Index] = true
		if p.Index == 0 && p.Preview != "This sentence is def…" {
			t.Errorf("Expected truncated preview, got %q", p.Preview)
		}
	}
	if len(seen) != 3 {
		t.Errorf("Expected every index reported once, got %v", seen)
	}
}

func TestSynthesize_BoundedAndPaced(t *testing.T) {
	var inFlight, peak int32
	engine := &fakeEngine{delay: func(string) time.Duration {
		cur := atomic.AddInt32(&inFlight, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if cur <= old || atomic.CompareAndSwapInt32(&peak, old, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return 0
	}}
	joiner := &recordingJoiner{}
	c := NewCoordinator(engine, joiner, Options{MaxConcurrent: 2, RequestsPerSecond: 1000, SpeedScale: 1.3}, zerolog.Nop())

	if _, err := c.Synthesize(context.Background(), alternating("A", "B", "C", "D", "E", "F"), voices); err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if atomic.LoadInt32(&peak) > 2 {
		t.Errorf("Expected at most 2 turns in flight, saw %d", peak)
	}
	for _, s := range engine.speeds {
		if s != 1.3 {
			t.Errorf("Expected speed scale 1.3, got %v", s)
		}
	}
}

func TestSynthesize_ResynthesisIsIdempotent(t *testing.T) {
	// Each segment is a short WAV whose length depends on the text
	engine := &wavEngine{}
	c := NewCoordinator(engine, audio.NewLocalJoiner(zerolog.Nop()), Options{}, zerolog.Nop())
	script := alternating("Hello there", "Hi", "Today we read a paper", "Great")

	first, err := c.Synthesize(context.Background(), script, voices)
	if err != nil {
		t.Fatalf("First run failed: %v", err)
	}
	firstInputs := engine.snapshot()

	second, err := c.Synthesize(context.Background(), script, voices)
	if err != nil {
		t.Fatalf("Second run failed: %v", err)
	}
	secondInputs := engine.snapshot()[len(firstInputs):]

	d1, _ := audio.Duration(first)
	d2, _ := audio.Duration(second)
	if d1 != d2 || d1 == 0 {
		t.Errorf("Expected equal non-zero durations, got %v and %v", d1, d2)
	}

	sort.Strings(firstInputs)
	sort.Strings(secondInputs)
	if strings.Join(firstInputs, ",") != strings.Join(secondInputs, ",") {
		t.Errorf("Expected identical engine inputs, got %v and %v", firstInputs, secondInputs)
	}
}

func TestOrderSegments(t *testing.T) {
	seg := func(i int) podcast.Segment { return podcast.Segment{Index: i, Audio: []byte{byte(i)}} }

	tests := []struct {
		name    string
		results map[int]podcast.Segment
		n       int
		wantErr bool
	}{
		{"empty", map[int]podcast.Segment{}, 0, false},
		{"complete", map[int]podcast.Segment{2: seg(2), 0: seg(0), 1: seg(1)}, 3, false},
		{"missing index", map[int]podcast.Segment{0: seg(0), 2: seg(2)}, 2, true},
		{"too few", map[int]podcast.Segment{0: seg(0)}, 2, true},
		{"mismatched key", map[int]podcast.Segment{0: seg(1), 1: seg(0)}, 2, true},
		{"out of range", map[int]podcast.Segment{0: seg(0), 5: seg(5)}, 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := OrderSegments(tt.results, tt.n)
			if tt.wantErr {
				if err == nil {
					t.Error("Expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			for i, buf := range got {
				if buf[0] != byte(i) {
					t.Errorf("Position %d holds segment %d", i, buf[0])
				}
			}
		})
	}
}

// wavEngine renders a silent WAV with one sample per byte of text
type wavEngine struct {
	mu     sync.Mutex
	inputs []string
}

func (e *wavEngine) CreateDescriptor(ctx context.Context, text, voiceID string) (*speech.Descriptor, error) {
	e.mu.Lock()
	e.inputs = append(e.inputs, text+"/"+voiceID)
	e.mu.Unlock()
	return speech.NewDescriptor([]byte(fmt.Sprintf(`{"length":%d}`, len(text))))
}

func (e *wavEngine) Render(ctx context.Context, voiceID string, d *speech.Descriptor) ([]byte, error) {
	body, _ := d.MarshalJSON()
	var n int
	fmt.Sscanf(string(body[strings.Index(string(body), `"length":`)+len(`"length":`):]), "%d", &n)
	return audio.Encode(audio.DefaultFormat, make([]byte, n*2)), nil
}

func (e *wavEngine) snapshot() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.inputs...)
}
