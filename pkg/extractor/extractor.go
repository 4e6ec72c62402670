// Package extractor defines the boundary contract with the external
// extraction backend. The core never parses documents or calls a model
// itself; it hands content to a Client and receives a raw candidate payload
// whose shape is enforced by structural validation downstream.
package extractor

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/coursedesk/deadline-cli/internal/model"
)

// ErrTimeout is surfaced when an extraction round-trip exceeds the
// caller-supplied deadline. The core never retries on it.
var ErrTimeout = eris.New("extractor: extraction timed out")

// Config parameterizes a single extraction or refinement request. It is
// immutable per request; the service holds a process-wide default and
// allows per-call overrides.
type Config struct {
	Model       string        `json:"model"`
	MaxTokens   int64         `json:"max_tokens"`
	Temperature *float64      `json:"temperature,omitempty"`
	Timezone    string        `json:"timezone"`
	Timeout     time.Duration `json:"timeout"`
}

// Document is one unit of source content handed to the backend.
type Document struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// RefineRequest asks the backend to re-extract a single suggestion given
// free-text reviewer feedback. The current fields travel with the request
// so the model revises rather than starts over.
type RefineRequest struct {
	Suggestion model.Suggestion `json:"suggestion"`
	Feedback   string           `json:"feedback"`
}

// Response carries the backend's raw candidate payload. Payload must decode
// as {"candidates": [{title, due, confidence, provenance}, ...]}; any other
// shape is a structural error at intake.
type Response struct {
	Payload []byte `json:"payload"`
}

// Client is the extraction backend seen from the core.
type Client interface {
	// ExtractDocument extracts deadline candidates from one document.
	ExtractDocument(ctx context.Context, doc Document, cfg Config) (*Response, error)
	// ExtractDocuments extracts candidates across several documents in one
	// request, enabling cross-document correlation.
	ExtractDocuments(ctx context.Context, docs []Document, cfg Config) (*Response, error)
	// ExtractURL extracts candidates from already-fetched website content.
	ExtractURL(ctx context.Context, url, content string, cfg Config) (*Response, error)
	// Refine re-extracts one suggestion using reviewer feedback.
	Refine(ctx context.Context, req RefineRequest, cfg Config) (*Response, error)
}
