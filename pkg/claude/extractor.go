package claude

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/coursedesk/deadline-cli/pkg/extractor"
)

// extractSystemText instructs the model to emit the exact boundary payload
// shape. Intake re-validates every field; the schema here is a request, not
// a guarantee.
const extractSystemText = `You are an assistant that extracts assignment deadlines from academic course material. Return a valid JSON object of the form:
{"candidates": [{"title": "<assignment name>", "due": "<RFC3339 date-time, e.g. 2026-03-14T23:59:00-05:00>", "confidence": <0.0-1.0>, "provenance": "<where in the source this came from>"}]}
Only include deadlines actually stated in the source. If the source states no concrete date for an item, omit that item. Return {"candidates": []} when nothing is found.`

const documentPrompt = `Extract all assignment deadlines from this document.

Document name: %s
Timezone for dates without an offset: %s

Document content:
%s`

const multiDocumentPrompt = `Extract all assignment deadlines from these documents. Correlate entries that appear in more than one document and emit each deadline once, with provenance naming every document that mentions it.

Timezone for dates without an offset: %s

%s`

const urlPrompt = `Extract all assignment deadlines from this web page.

Page URL: %s
Timezone for dates without an offset: %s

Page content:
%s`

const refinePrompt = `A reviewer rejected this extracted deadline and left feedback. Re-extract a corrected candidate.

Current candidate:
%s

Reviewer feedback: %s

Timezone for dates without an offset: %s

Return the corrected candidate in the usual JSON shape, as a single-element candidates list.`

// Extractor implements extractor.Client on the Anthropic messages API.
type Extractor struct {
	client Client
	system []SystemBlock
}

// NewExtractor wraps a Client as the extraction backend.
func NewExtractor(client Client) *Extractor {
	return &Extractor{
		client: client,
		system: BuildCachedSystemBlocks(extractSystemText),
	}
}

// ExtractDocument extracts deadline candidates from one document.
func (e *Extractor) ExtractDocument(ctx context.Context, doc extractor.Document, cfg extractor.Config) (*extractor.Response, error) {
	prompt := fmt.Sprintf(documentPrompt, doc.Name, cfg.Timezone, doc.Content)
	return e.roundTrip(ctx, prompt, cfg, "extract document")
}

// ExtractDocuments extracts candidates across several documents in one
// request so the model can correlate duplicate mentions.
func (e *Extractor) ExtractDocuments(ctx context.Context, docs []extractor.Document, cfg extractor.Config) (*extractor.Response, error) {
	if len(docs) == 0 {
		return nil, eris.New("claude: no documents to extract from")
	}
	var b strings.Builder
	for _, doc := range docs {
		fmt.Fprintf(&b, "--- Document: %s ---\n%s\n\n", doc.Name, doc.Content)
	}
	prompt := fmt.Sprintf(multiDocumentPrompt, cfg.Timezone, b.String())
	return e.roundTrip(ctx, prompt, cfg, "extract documents")
}

// ExtractURL extracts candidates from already-fetched website content.
func (e *Extractor) ExtractURL(ctx context.Context, url, content string, cfg extractor.Config) (*extractor.Response, error) {
	prompt := fmt.Sprintf(urlPrompt, url, cfg.Timezone, content)
	return e.roundTrip(ctx, prompt, cfg, "extract url")
}

// Refine re-extracts one suggestion using reviewer feedback. The current
// fields travel in the prompt so the model revises in place.
func (e *Extractor) Refine(ctx context.Context, req extractor.RefineRequest, cfg extractor.Config) (*extractor.Response, error) {
	current, err := json.Marshal(req.Suggestion)
	if err != nil {
		return nil, eris.Wrap(err, "claude: marshal refine suggestion")
	}
	prompt := fmt.Sprintf(refinePrompt, string(current), req.Feedback, cfg.Timezone)
	return e.roundTrip(ctx, prompt, cfg, "refine")
}

// roundTrip performs one timed model call and normalizes the response text
// into the boundary payload.
func (e *Extractor) roundTrip(ctx context.Context, prompt string, cfg extractor.Config, phase string) (*extractor.Response, error) {
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	resp, err := e.client.CreateMessage(ctx, MessageRequest{
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		System:      e.system,
		Messages:    []Message{{Role: "user", Content: prompt}},
		Temperature: cfg.Temperature,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, eris.Wrap(extractor.ErrTimeout, phase)
		}
		return nil, eris.Wrap(err, "claude: "+phase)
	}

	resp.Usage.LogCost(cfg.Model, phase)

	text := cleanJSON(extractText(resp))
	if text == "" {
		return nil, eris.Errorf("claude: %s returned no text content", phase)
	}

	zap.L().Debug("claude: extraction response",
		zap.String("phase", phase),
		zap.Int("payload_bytes", len(text)),
	)
	return &extractor.Response{Payload: []byte(text)}, nil
}

// extractText concatenates the text blocks of a response.
func extractText(resp *MessageResponse) string {
	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

// cleanJSON strips markdown code fences and surrounding chatter, keeping
// the outermost JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
