package document

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"github.com/ledongthuc/pdf"
)

// Kind is the detected document type
type Kind string

const (
	KindPDF   Kind = "pdf"
	KindHTML  Kind = "html"
	KindPlain Kind = "plain"
)

var errEmptyPDFContent = errors.New("pdf content is empty")

// DetectKind maps a Content-Type header to a document kind. A missing or
// unknown type is treated as plain text.
func DetectKind(contentType string) Kind {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}

	switch {
	case strings.Contains(mediaType, "application/pdf"):
		return KindPDF
	case strings.Contains(mediaType, "text/html"), strings.Contains(mediaType, "application/xhtml"):
		return KindHTML
	default:
		return KindPlain
	}
}

// Extract turns a fetched body into plain text according to its kind
func Extract(kind Kind, body []byte, pageURL *url.URL) (string, error) {
	switch kind {
	case KindPDF:
		return ExtractPDF(body)
	case KindHTML:
		return ExtractHTML(body, pageURL)
	default:
		return strings.TrimSpace(string(body)), nil
	}
}

// ExtractPDF extracts the plain text of every page
func ExtractPDF(data []byte) (text string, err error) {
	if len(data) == 0 {
		return "", errEmptyPDFContent
	}

	// The pdf package panics on some malformed streams
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}

	textReader, err := doc.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to extract pdf text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, textReader); err != nil {
		return "", fmt.Errorf("failed to read pdf text: %w", err)
	}

	return JoinPages(buf.String()), nil
}

// JoinPages replaces form-feed page breaks with newlines and trims the result
func JoinPages(text string) string {
	return strings.TrimSpace(strings.Join(strings.Split(text, "\f"), "\n"))
}

// ExtractHTML returns the main article text, falling back to the body text
// when readability finds nothing
func ExtractHTML(data []byte, pageURL *url.URL) (string, error) {
	article, err := readability.FromReader(bytes.NewReader(data), pageURL)
	if err == nil {
		if text := strings.TrimSpace(article.TextContent); text != "" {
			return text, nil
		}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	doc.Find("script, style, noscript").Remove()
	text := strings.Join(strings.Fields(doc.Find("body").Text()), " ")
	if text == "" {
		return "", fmt.Errorf("no text found in HTML")
	}
	return text, nil
}
