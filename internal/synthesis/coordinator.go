// Package synthesis renders a script to audio with one concurrent request
// per turn and joins the results back in conversational order.
package synthesis

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/lexiqai/podcast-studio/internal/observability"
	"github.com/lexiqai/podcast-studio/internal/podcast"
	"github.com/lexiqai/podcast-studio/internal/speech"
)

// Failure stages reported in SynthesisError
const (
	StageVoice      = "voice"
	StageDescriptor = "descriptor"
	StageRender     = "render"
	StageJoin       = "join"
)

// DefaultSpeedScale is applied to every descriptor unless overridden
const DefaultSpeedScale = 1.1

const previewRunes = 20

// Renderer is the per-turn half of a speech engine
type Renderer interface {
	CreateDescriptor(ctx context.Context, text, voiceID string) (*speech.Descriptor, error)
	Render(ctx context.Context, voiceID string, descriptor *speech.Descriptor) ([]byte, error)
}

// Progress is reported once per completed turn
type Progress struct {
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Index     int    `json:"index"`
	Preview   string `json:"preview"`
}

// ProgressFunc receives progress notifications. Calls are serialized.
type ProgressFunc func(Progress)

// Options tunes the fan-out
type Options struct {
	SpeedScale        float64 // 0 means DefaultSpeedScale
	MaxConcurrent     int     // 0 means one in-flight turn per script turn
	RequestsPerSecond float64 // 0 disables pacing
}

// Coordinator fans turns out to the speech engine and joins the results
type Coordinator struct {
	renderer Renderer
	joiner   speech.Joiner
	opts     Options
	logger   zerolog.Logger
}

// NewCoordinator creates a Coordinator. The renderer is shared by every
// turn, so it must be safe for concurrent use.
func NewCoordinator(renderer Renderer, joiner speech.Joiner, opts Options, logger zerolog.Logger) *Coordinator {
	if opts.SpeedScale <= 0 {
		opts.SpeedScale = DefaultSpeedScale
	}
	return &Coordinator{
		renderer: renderer,
		joiner:   joiner,
		opts:     opts,
		logger:   logger.With().Str("component", "synthesis").Logger(),
	}
}

// Synthesize renders every turn of script and joins them in order
func (c *Coordinator) Synthesize(ctx context.Context, script podcast.Script, voices podcast.VoiceAssignment) (podcast.PodcastAudio, error) {
	return c.SynthesizeWithProgress(ctx, script, voices, nil)
}

// SynthesizeWithProgress is Synthesize with a per-turn progress callback.
// The first failing turn cancels the others and Join is never called.
func (c *Coordinator) SynthesizeWithProgress(ctx context.Context, script podcast.Script, voices podcast.VoiceAssignment, onProgress ProgressFunc) (podcast.PodcastAudio, error) {
	start := time.Now()
	defer observability.ObserveStage("synthesis", start)

	total := script.Len()

	voiceIDs := make([]string, total)
	for i, turn := range script.Turns {
		voiceID, err := voices.VoiceFor(turn.Role)
		if err == nil && voiceID == "" {
			err = fmt.Errorf("no voice assigned to %s", turn.Role)
		}
		if err != nil {
			return nil, &podcast.SynthesisError{Index: i, Stage: StageVoice, Err: err}
		}
		voiceIDs[i] = voiceID
	}

	c.logger.Info().
		Int("turns", total).
		Int("max_concurrent", c.opts.MaxConcurrent).
		Float64("speed_scale", c.opts.SpeedScale).
		Msg("Starting synthesis")

	var limiter *rate.Limiter
	if c.opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(c.opts.RequestsPerSecond), 1)
	}

	var (
		mu        sync.Mutex
		results   = make(map[int]podcast.Segment, total)
		completed int
	)

	g, gctx := errgroup.WithContext(ctx)
	if c.opts.MaxConcurrent > 0 {
		g.SetLimit(c.opts.MaxConcurrent)
	}

	for i, turn := range script.Turns {
		g.Go(func() error {
			turnStart := time.Now()

			wav, err := c.renderTurn(gctx, limiter, i, turn.Content, voiceIDs[i])
			observability.RecordTurn(turnStart, err == nil)
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()

			results[i] = podcast.Segment{Index: i, Audio: wav}
			completed++

			p := Progress{
				Completed: completed,
				Total:     total,
				Index:     i,
				Preview:   podcast.Preview(turn.Content, previewRunes),
			}
			c.logger.Info().
				Int("completed", p.Completed).
				Int("total", p.Total).
				Int("index", p.Index).
				Str("preview", p.Preview).
				Msg("Turn synthesized")
			if onProgress != nil {
				onProgress(p)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		c.logger.Error().Err(err).Msg("Synthesis failed")
		return nil, err
	}

	ordered, err := OrderSegments(results, total)
	if err != nil {
		return nil, &podcast.SynthesisError{Index: -1, Stage: StageJoin, Err: err}
	}

	joined, err := c.joiner.Join(ctx, ordered)
	if err != nil {
		c.logger.Error().Err(err).Msg("Join failed")
		return nil, &podcast.SynthesisError{Index: -1, Stage: StageJoin, Err: err}
	}

	observability.RecordAudioBytes(len(joined))
	c.logger.Info().
		Int("turns", total).
		Int("bytes", len(joined)).
		Dur("elapsed", time.Since(start)).
		Msg("Synthesis completed")

	return podcast.PodcastAudio(joined), nil
}

// renderTurn runs descriptor creation and rendering for one turn
func (c *Coordinator) renderTurn(ctx context.Context, limiter *rate.Limiter, index int, text, voiceID string) ([]byte, error) {
	wait := func(stage string) error {
		if limiter == nil {
			return nil
		}
		if err := limiter.Wait(ctx); err != nil {
			return &podcast.SynthesisError{Index: index, Stage: stage, Err: err}
		}
		return nil
	}

	if err := wait(StageDescriptor); err != nil {
		return nil, err
	}
	descriptor, err := c.renderer.CreateDescriptor(ctx, text, voiceID)
	if err == nil && descriptor == nil {
		err = fmt.Errorf("engine returned no descriptor")
	}
	if err != nil {
		return nil, &podcast.SynthesisError{Index: index, Stage: StageDescriptor, Err: err}
	}
	descriptor.SetSpeedScale(c.opts.SpeedScale)

	if err := wait(StageRender); err != nil {
		return nil, err
	}
	wav, err := c.renderer.Render(ctx, voiceID, descriptor)
	if err != nil {
		return nil, &podcast.SynthesisError{Index: index, Stage: StageRender, Err: err}
	}
	return wav, nil
}

// OrderSegments returns segment audio sorted by index. The keys of results
// must be exactly 0..n-1, each holding the segment with that index.
func OrderSegments(results map[int]podcast.Segment, n int) ([][]byte, error) {
	if len(results) != n {
		return nil, fmt.Errorf("expected %d segments, got %d", n, len(results))
	}

	segments := make([]podcast.Segment, 0, n)
	for key, seg := range results {
		if key != seg.Index {
			return nil, fmt.Errorf("segment stored under %d has index %d", key, seg.Index)
		}
		segments = append(segments, seg)
	}

	sort.Slice(segments, func(i, j int) bool {
		return segments[i].Index < segments[j].Index
	})

	ordered := make([][]byte, n)
	for i, seg := range segments {
		if seg.Index != i {
			return nil, fmt.Errorf("missing segment %d", i)
		}
		ordered[i] = seg.Audio
	}
	return ordered, nil
}
