// Package api exposes the podcast pipeline over HTTP. Runs are started
// asynchronously and their progress is streamed over a websocket.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lexiqai/podcast-studio/internal/observability"
	"github.com/lexiqai/podcast-studio/internal/pipeline"
	"github.com/lexiqai/podcast-studio/internal/podcast"
	"github.com/lexiqai/podcast-studio/internal/store"
	"github.com/lexiqai/podcast-studio/internal/synthesis"
)

const maxRequestBytes = 64 << 10

// Runner is the part of the pipeline the API drives
type Runner interface {
	RunWithHooks(ctx context.Context, url string, voices podcast.VoiceAssignment, hooks pipeline.Hooks) (pipeline.Result, error)
	ResynthesizeWithHooks(ctx context.Context, script podcast.Script, voices podcast.VoiceAssignment, hooks pipeline.Hooks) (podcast.PodcastAudio, error)
}

// Server serves the podcast endpoints
type Server struct {
	ctx    context.Context
	runner Runner
	store  store.Store
	hub    *Hub
	logger zerolog.Logger
	runs   sync.WaitGroup
	newID  func() string
}

// NewServer creates a Server. Background runs live as long as ctx.
func NewServer(ctx context.Context, runner Runner, st store.Store, logger zerolog.Logger) *Server {
	logger = logger.With().Str("component", "api").Logger()
	return &Server{
		ctx:    ctx,
		runner: runner,
		store:  st,
		hub:    NewHub(logger),
		logger: logger,
		newID:  func() string { return uuid.New().String() },
	}
}

// Register adds the podcast routes to mux
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /podcasts", s.handleCreate)
	mux.HandleFunc("GET /podcasts/{id}", s.handleGet)
	mux.HandleFunc("GET /podcasts/{id}/audio", s.handleAudio)
	mux.HandleFunc("POST /podcasts/{id}/voices", s.handleVoices)
	mux.HandleFunc("GET /podcasts/{id}/events", s.handleEvents)
}

// Wait blocks until every background run has finished
func (s *Server) Wait() {
	s.runs.Wait()
}

type createRequest struct {
	URL          string `json:"url"`
	LeadVoice    string `json:"lead_voice"`
	SupportVoice string `json:"support_voice"`
}

type createResponse struct {
	ID string `json:"id"`
}

type voicesRequest struct {
	LeadVoice    string `json:"lead_voice"`
	SupportVoice string `json:"support_voice"`
}

type errorResponse struct {
	Error string `json:"error"`
	Index *int   `json:"index,omitempty"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	url := strings.TrimSpace(req.URL)
	if url == "" {
		writeError(w, http.StatusBadRequest, errors.New("url is required"))
		return
	}
	voices := podcast.VoiceAssignment{Lead: req.LeadVoice, Support: req.SupportVoice}
	if err := voices.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	episode := &store.Episode{
		ID:     s.newID(),
		URL:    url,
		Voices: voices,
		Status: store.StatusPending,
	}
	if err := s.store.Save(r.Context(), episode); err != nil {
		s.logger.Error().Err(err).Msg("Failed to save episode")
		writeError(w, http.StatusInternalServerError, errors.New("failed to save episode"))
		return
	}

	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		s.run(episode)
	}()

	writeJSON(w, http.StatusAccepted, createResponse{ID: episode.ID})
}

// run executes a full pipeline run for episode and records the outcome
func (s *Server) run(episode *store.Episode) {
	correlationID := observability.NewCorrelationID()
	logger := observability.WithCorrelationID(correlationID).With().
		Str("episode_id", episode.ID).
		Logger()
	ctx := logger.WithContext(s.ctx)

	episode.Status = store.StatusRunning
	hooks := pipeline.Hooks{
		OnStage: func(stage string) {
			episode.Stage = stage
			if err := s.store.Save(ctx, episode); err != nil {
				logger.Warn().Err(err).Str("stage", stage).Msg("Failed to record stage")
			}
			s.hub.Publish(Event{Type: EventStage, EpisodeID: episode.ID, Stage: stage})
		},
		OnProgress: s.progressPublisher(episode.ID),
	}

	logger.Info().Str("url", episode.URL).Msg("Run started")
	result, err := s.runner.RunWithHooks(ctx, episode.URL, episode.Voices, hooks)

	// Record the outcome even if the service is shutting down
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if err != nil {
		episode.Status = store.StatusFailed
		episode.Error = err.Error()
		if saveErr := s.store.Save(saveCtx, episode); saveErr != nil {
			logger.Error().Err(saveErr).Msg("Failed to record run failure")
		}
		s.hub.Publish(Event{Type: EventError, EpisodeID: episode.ID, Stage: episode.Stage, Error: err.Error()})
		return
	}

	episode.Status = store.StatusSucceeded
	episode.Narrative = result.Narrative
	episode.Transcript = result.Transcript
	episode.Script = &result.Script
	episode.Audio = result.Audio
	episode.Elapsed = result.Elapsed
	episode.Error = ""
	if err := s.store.Save(saveCtx, episode); err != nil {
		logger.Error().Err(err).Msg("Failed to record run result")
		s.hub.Publish(Event{Type: EventError, EpisodeID: episode.ID, Error: "failed to save result"})
		return
	}

	logger.Info().Dur("elapsed", result.Elapsed).Msg("Run finished")
	s.hub.Publish(Event{Type: EventDone, EpisodeID: episode.ID})
}

func (s *Server) progressPublisher(episodeID string) synthesis.ProgressFunc {
	return func(p synthesis.Progress) {
		s.hub.Publish(Event{
			Type:      EventProgress,
			EpisodeID: episodeID,
			Stage:     pipeline.StageSynthesis,
			Completed: p.Completed,
			Total:     p.Total,
			Index:     p.Index,
			Preview:   p.Preview,
		})
	}
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	episode, err := s.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, episode)
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	episode, err := s.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if !episode.HasAudio() {
		writeError(w, http.StatusNotFound, errors.New("episode has no audio yet"))
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", `attachment; filename="`+episode.ID+`.wav"`)
	w.WriteHeader(http.StatusOK)
	w.Write(episode.Audio)
}

// handleVoices re-renders the cached script of an episode with new voices
func (s *Server) handleVoices(w http.ResponseWriter, r *http.Request) {
	var req voicesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	voices := podcast.VoiceAssignment{Lead: req.LeadVoice, Support: req.SupportVoice}
	if err := voices.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	episode, err := s.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if episode.Script == nil {
		writeError(w, http.StatusConflict, errors.New("episode has no script yet"))
		return
	}

	start := time.Now()
	audio, err := s.runner.ResynthesizeWithHooks(r.Context(), *episode.Script, voices, pipeline.Hooks{
		OnProgress: s.progressPublisher(episode.ID),
	})
	if err != nil {
		s.logger.Error().Err(err).Str("episode_id", episode.ID).Msg("Voice swap failed")
		writePipelineError(w, err)
		return
	}

	episode.Voices = voices
	episode.Audio = audio
	episode.Elapsed = time.Since(start)
	if err := s.store.Save(r.Context(), episode); err != nil {
		s.logger.Error().Err(err).Str("episode_id", episode.ID).Msg("Failed to save swapped audio")
		writeError(w, http.StatusInternalServerError, errors.New("failed to save episode"))
		return
	}

	writeJSON(w, http.StatusOK, episode)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid JSON body: " + err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeError(w, http.StatusInternalServerError, err)
}

// writePipelineError maps the pipeline error kinds to status codes
func writePipelineError(w http.ResponseWriter, err error) {
	var (
		schemaErr    *podcast.SchemaValidationError
		synthesisErr *podcast.SynthesisError
		transportErr *podcast.TransportError
	)
	switch {
	case errors.Is(err, podcast.ErrInvalidVoices):
		writeError(w, http.StatusBadRequest, err)
	case errors.As(err, &schemaErr):
		resp := errorResponse{Error: err.Error()}
		if schemaErr.Index >= 0 {
			resp.Index = &schemaErr.Index
		}
		writeJSON(w, http.StatusUnprocessableEntity, resp)
	case errors.As(err, &synthesisErr):
		resp := errorResponse{Error: err.Error()}
		if synthesisErr.Index >= 0 {
			resp.Index = &synthesisErr.Index
		}
		writeJSON(w, http.StatusBadGateway, resp)
	case errors.As(err, &transportErr):
		writeError(w, http.StatusBadGateway, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}
