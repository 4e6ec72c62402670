// Package validate converts untrusted extraction payloads into trustworthy
// suggestions and polices the living collection for plausibility.
//
// It has two tiers with different failure severity: structural validation
// rejects unusable payloads before any Suggestion exists, while domain
// validation only annotates already-constructed suggestions with warnings.
package validate

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/coursedesk/deadline-cli/internal/model"
)

// StructuralError reports an extraction payload whose overall shape is
// unusable: not an object, no candidate list, or the list field holding
// something that is not a list. Intake aborts entirely on this error.
type StructuralError struct {
	Reason string
	Issues []string
}

func (e *StructuralError) Error() string {
	if len(e.Issues) == 0 {
		return "structural: " + e.Reason
	}
	return fmt.Sprintf("structural: %s (%d issues)", e.Reason, len(e.Issues))
}

// Candidate is a structurally valid entry: title non-empty, due parsed to a
// concrete instant, confidence (when present) inside [0,1].
type Candidate struct {
	Title      string
	Due        time.Time
	Confidence *float64
	Provenance string
}

// dueFormats are the timestamp layouts accepted from extraction sources,
// tried in order. Layouts without an explicit zone are interpreted in the
// location passed to DecodeCandidates.
var dueFormats = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseDue parses an extraction-source due string into a concrete instant.
// A bare date resolves to midnight in loc.
func ParseDue(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty due value")
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range dueFormats {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable due value %q", s)
}

// rawEntry mirrors one candidate entry loosely enough to report per-field
// shape problems instead of failing the whole payload.
type rawEntry struct {
	Title      any      `json:"title"`
	Due        any      `json:"due"`
	Confidence *float64 `json:"confidence"`
	Provenance string   `json:"provenance"`
}

// DecodeCandidates validates the raw extraction payload and converts it into
// structurally sound candidates in one step.
//
// Payload-shape violations return a *StructuralError and no candidates.
// Per-entry field failures are softer: the entry is skipped, an ordered
// human-readable issue is recorded, and valid siblings survive. An entry is
// never converted with a guessed title or due value.
func DecodeCandidates(raw []byte, loc *time.Location) ([]Candidate, []string, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, nil, &StructuralError{Reason: "payload is not a JSON object"}
	}

	listRaw, ok := envelope["candidates"]
	if !ok {
		return nil, nil, &StructuralError{Reason: `payload has no "candidates" field`}
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(listRaw, &entries); err != nil {
		return nil, nil, &StructuralError{Reason: `"candidates" is not a list`}
	}

	var (
		candidates []Candidate
		issues     []string
	)
	for i, entryRaw := range entries {
		var entry rawEntry
		if err := json.Unmarshal(entryRaw, &entry); err != nil {
			issues = append(issues, fmt.Sprintf("entry %d: malformed object", i))
			continue
		}

		title, isText := entry.Title.(string)
		title = strings.TrimSpace(title)
		if !isText || title == "" {
			issues = append(issues, fmt.Sprintf("entry %d: missing or non-text title", i))
			continue
		}

		dueText, isText := entry.Due.(string)
		if !isText {
			issues = append(issues, fmt.Sprintf("entry %d (%s): missing due value", i, title))
			continue
		}
		due, err := ParseDue(dueText, loc)
		if err != nil {
			issues = append(issues, fmt.Sprintf("entry %d (%s): %v", i, title, err))
			continue
		}

		if entry.Confidence != nil && (*entry.Confidence < 0.0 || *entry.Confidence > 1.0) {
			issues = append(issues, fmt.Sprintf("entry %d (%s): confidence %.2f outside [0,1]", i, title, *entry.Confidence))
			continue
		}

		candidates = append(candidates, Candidate{
			Title:      title,
			Due:        due,
			Confidence: entry.Confidence,
			Provenance: strings.TrimSpace(entry.Provenance),
		})
	}

	for _, issue := range issues {
		zap.L().Warn("validate: candidate entry dropped", zap.String("issue", issue))
	}

	return candidates, issues, nil
}

// ToRawPayload encodes candidates into the boundary payload shape, the same
// contract the extractor honors.
func ToRawPayload(candidates []model.RawCandidate) ([]byte, error) {
	return json.Marshal(map[string][]model.RawCandidate{"candidates": candidates})
}
