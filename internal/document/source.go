// Package document fetches a source document over HTTP and reduces it to
// plain text.
package document

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/podcast-studio/internal/config"
	"github.com/lexiqai/podcast-studio/internal/observability"
	"github.com/lexiqai/podcast-studio/internal/podcast"
	"github.com/lexiqai/podcast-studio/internal/resilience"
)

const serviceName = "document"

// ErrTooLarge is returned when a document exceeds the configured size limit
var ErrTooLarge = errors.New("document exceeds size limit")

// Source turns a URL into plain text
type Source interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}

// HTTPSource fetches documents with a browser-like client
type HTTPSource struct {
	client   *http.Client
	maxBytes int64
	retry    *resilience.RetryConfig
	logger   zerolog.Logger
}

// NewHTTPSource creates an HTTPSource from configuration
func NewHTTPSource(cfg *config.Config, logger zerolog.Logger) *HTTPSource {
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = cfg.RetryMaxAttempts
	retry.InitialBackoff = time.Duration(cfg.RetryInitialBackoff) * time.Millisecond

	return &HTTPSource{
		client:   &http.Client{Timeout: cfg.DocumentTimeout},
		maxBytes: cfg.DocumentMaxBytes,
		retry:    retry,
		logger:   logger.With().Str("component", "document").Logger(),
	}
}

// Fetch downloads rawURL and extracts its text based on Content-Type
func (s *HTTPSource) Fetch(ctx context.Context, rawURL string) (string, error) {
	pageURL, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (pageURL.Scheme != "http" && pageURL.Scheme != "https") || pageURL.Host == "" {
		return "", fmt.Errorf("invalid document url %q", rawURL)
	}

	var (
		body        []byte
		contentType string
	)
	err = resilience.Retry(ctx, func(ctx context.Context) error {
		var err error
		body, contentType, err = s.fetchURL(ctx, pageURL.String())
		return err
	}, s.retry, resilience.IsRetryable)
	if err != nil {
		observability.RecordDocumentFetch("unknown", false)
		return "", err
	}

	kind := DetectKind(contentType)
	text, err := Extract(kind, body, pageURL)
	if err == nil && text == "" {
		err = fmt.Errorf("document has no text")
	}
	observability.RecordDocumentFetch(string(kind), err == nil)
	if err != nil {
		return "", fmt.Errorf("failed to extract %s document: %w", kind, err)
	}

	s.logger.Info().
		Str("url", pageURL.String()).
		Str("kind", string(kind)).
		Int("bytes", len(body)).
		Int("chars", len(text)).
		Msg("Document fetched")

	return text, nil
}

func (s *HTTPSource) fetchURL(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", err
	}

	// Basic "browser-like" headers to avoid 406/blocks.
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, "", &podcast.TransportError{Service: serviceName, Op: "fetch", Err: err}
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, "", &podcast.TransportError{Service: serviceName, Op: "fetch", StatusCode: resp.StatusCode}
	}

	reader := io.Reader(resp.Body)
	if s.maxBytes > 0 {
		reader = io.LimitReader(resp.Body, s.maxBytes+1)
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, "", &podcast.TransportError{Service: serviceName, Op: "fetch", Err: err}
	}
	if s.maxBytes > 0 && int64(len(body)) > s.maxBytes {
		return nil, "", ErrTooLarge
	}

	return body, resp.Header.Get("Content-Type"), nil
}

func drainAndClose(rc io.ReadCloser) {
	if rc == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, 64<<10))
	_ = rc.Close()
}
