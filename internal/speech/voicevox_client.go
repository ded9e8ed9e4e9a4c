package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/podcast-studio/internal/audio"
	"github.com/lexiqai/podcast-studio/internal/config"
	"github.com/lexiqai/podcast-studio/internal/observability"
	"github.com/lexiqai/podcast-studio/internal/podcast"
	"github.com/lexiqai/podcast-studio/internal/resilience"
)

const serviceName = "speech_engine"

// VoicevoxClient implements Engine over the VOICEVOX HTTP API. A single
// client is shared by every synthesis request so connections are pooled.
type VoicevoxClient struct {
	baseURL    string
	httpClient *http.Client
	retry      *resilience.RetryConfig
	breaker    *resilience.CircuitBreaker
	logger     zerolog.Logger
}

// NewVoicevoxClient creates a speech engine client from configuration
func NewVoicevoxClient(cfg *config.Config, logger zerolog.Logger) *VoicevoxClient {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 64

	breaker := resilience.NewCircuitBreaker(serviceName, cfg.CircuitBreakerMaxFailures, time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second)
	breaker.OnStateChange(func(name string, state resilience.CircuitState) {
		observability.UpdateCircuitBreakerState(name, int(state))
		logger.Warn().Str("service", name).Str("state", state.String()).Msg("Circuit breaker state changed")
	})

	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = cfg.RetryMaxAttempts
	retry.InitialBackoff = time.Duration(cfg.RetryInitialBackoff) * time.Millisecond

	return &VoicevoxClient{
		baseURL: strings.TrimRight(cfg.SpeechEngineURL, "/"),
		httpClient: &http.Client{
			Timeout:   cfg.SpeechTimeout,
			Transport: transport,
		},
		retry:   retry,
		breaker: breaker,
		logger:  logger.With().Str("component", "voicevox").Logger(),
	}
}

// CreateDescriptor calls POST /audio_query
func (c *VoicevoxClient) CreateDescriptor(ctx context.Context, text, voiceID string) (*Descriptor, error) {
	query := url.Values{}
	query.Set("text", text)
	query.Set("speaker", voiceID)

	body, err := c.do(ctx, "audio_query", http.MethodPost, "/audio_query", query, nil)
	if err != nil {
		return nil, err
	}

	descriptor, err := NewDescriptor(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode audio query: %w", err)
	}
	return descriptor, nil
}

// Render calls POST /synthesis with the descriptor as body
func (c *VoicevoxClient) Render(ctx context.Context, voiceID string, descriptor *Descriptor) ([]byte, error) {
	if descriptor == nil {
		return nil, fmt.Errorf("descriptor is required")
	}

	payload, err := json.Marshal(descriptor)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal descriptor: %w", err)
	}

	query := url.Values{}
	query.Set("speaker", voiceID)
	query.Set("enable_interrogative_upspeak", "true")

	wav, err := c.do(ctx, "synthesis", http.MethodPost, "/synthesis", query, payload)
	if err != nil {
		return nil, err
	}
	if len(wav) == 0 {
		return nil, fmt.Errorf("speech engine returned empty audio")
	}
	return wav, nil
}

// Join calls POST /connect_waves with base64 encoded segments. The engine
// rejects an empty list, so no segments yields an empty WAV locally.
func (c *VoicevoxClient) Join(ctx context.Context, segments [][]byte) ([]byte, error) {
	if len(segments) == 0 {
		return audio.Encode(audio.DefaultFormat, nil), nil
	}

	encoded := make([]string, len(segments))
	for i, seg := range segments {
		encoded[i] = base64.StdEncoding.EncodeToString(seg)
	}

	payload, err := json.Marshal(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal segments: %w", err)
	}

	return c.do(ctx, "connect_waves", http.MethodPost, "/connect_waves", nil, payload)
}

// Speakers calls GET /speakers
func (c *VoicevoxClient) Speakers(ctx context.Context) ([]Speaker, error) {
	body, err := c.do(ctx, "speakers", http.MethodGet, "/speakers", nil, nil)
	if err != nil {
		return nil, err
	}

	var speakers []Speaker
	if err := json.Unmarshal(body, &speakers); err != nil {
		return nil, fmt.Errorf("failed to decode speakers: %w", err)
	}
	return speakers, nil
}

// CoreVersions calls GET /core_versions
func (c *VoicevoxClient) CoreVersions(ctx context.Context) ([]string, error) {
	body, err := c.do(ctx, "core_versions", http.MethodGet, "/core_versions", nil, nil)
	if err != nil {
		return nil, err
	}

	var versions []string
	if err := json.Unmarshal(body, &versions); err != nil {
		return nil, fmt.Errorf("failed to decode core versions: %w", err)
	}
	return versions, nil
}

// Check reports whether the engine answers and has at least one core loaded
func (c *VoicevoxClient) Check(ctx context.Context) (bool, error) {
	versions, err := c.CoreVersions(ctx)
	if err != nil {
		return false, err
	}
	if len(versions) == 0 {
		return false, fmt.Errorf("speech engine has no cores loaded")
	}
	return true, nil
}

// do sends one request with transport level retries behind the breaker
func (c *VoicevoxClient) do(ctx context.Context, op, method, path string, query url.Values, payload []byte) ([]byte, error) {
	var (
		body      []byte
		rejectErr error
	)

	err := resilience.Retry(ctx, func(ctx context.Context) error {
		rejectErr = nil
		return c.breaker.Execute(ctx, func(ctx context.Context) error {
			var err error
			body, err = c.once(ctx, op, method, path, query, payload)
			if err == nil || ctx.Err() != nil {
				return err
			}
			// A rejected request still means the engine is up
			if !podcast.IsTemporaryTransport(err) {
				rejectErr = err
				return nil
			}
			observability.IncrementCircuitBreakerFailures(serviceName)
			return err
		})
	}, c.retry, resilience.IsRetryable)
	if err == nil {
		err = rejectErr
	}

	observability.RecordSpeechRequest(op, err == nil)
	if err != nil {
		c.logger.Debug().Err(err).Str("op", op).Msg("Speech engine request failed")
		return nil, err
	}
	return body, nil
}

func (c *VoicevoxClient) once(ctx context.Context, op, method, path string, query url.Values, payload []byte) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &podcast.TransportError{Service: serviceName, Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &podcast.TransportError{Service: serviceName, Op: op, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &podcast.TransportError{Service: serviceName, Op: op, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	return data, nil
}
