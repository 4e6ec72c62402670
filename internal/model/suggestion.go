package model

import "time"

// SourceType categorizes where a suggestion's raw data originated.
type SourceType string

const (
	SourceSyllabus SourceType = "syllabus"
	SourceImage    SourceType = "image"
	SourceWebsite  SourceType = "website"
	SourceCanvas   SourceType = "canvas"
)

// ExtractionMethod distinguishes deterministic feeds from model output.
type ExtractionMethod string

const (
	// MethodDirect marks data from a structured source (e.g. a Canvas
	// assignment feed) that never passed through a language model.
	MethodDirect ExtractionMethod = "direct"
	// MethodModel marks data derived from a language-model extraction.
	MethodModel ExtractionMethod = "model"
)

// Suggestion is an unconfirmed deadline candidate under review.
//
// Warnings is an append-only audit trail: validation and editing append
// diagnostics, nothing ever removes or dedupes them. A warning that fired
// twice across two passes appears twice, and that is the record we want.
type Suggestion struct {
	ID         string           `json:"id"`
	Title      string           `json:"title"`
	Due        time.Time        `json:"due"`
	Source     SourceType       `json:"source"`
	Method     ExtractionMethod `json:"method"`
	Confidence *float64         `json:"confidence,omitempty"`
	Confirmed  bool             `json:"confirmed"`
	Provenance string           `json:"provenance,omitempty"`
	Warnings   []string         `json:"warnings,omitempty"`

	// Display-only back-references to the originating input. Validation
	// never reads these beyond presence checks.
	DocumentName string `json:"document_name,omitempty"`
	SourceURL    string `json:"source_url,omitempty"`
	CourseHint   string `json:"course_hint,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// AddWarning appends one diagnostic to the audit trail.
func (s *Suggestion) AddWarning(w string) {
	s.Warnings = append(s.Warnings, w)
}

// HasWarning reports whether the audit trail contains w at least once.
func (s *Suggestion) HasWarning(w string) bool {
	for _, existing := range s.Warnings {
		if existing == w {
			return true
		}
	}
	return false
}

// ConfidenceValue returns the confidence score, or 1.0 when absent
// (DIRECT-sourced suggestions carry no model confidence).
func (s *Suggestion) ConfidenceValue() float64 {
	if s.Confidence == nil {
		return 1.0
	}
	return *s.Confidence
}

// Clone returns a copy with its own Warnings slice, so store reads never
// hand out a mutable view of the canonical record.
func (s Suggestion) Clone() Suggestion {
	out := s
	if s.Warnings != nil {
		out.Warnings = make([]string, len(s.Warnings))
		copy(out.Warnings, s.Warnings)
	}
	return out
}

// CanonicalDeadline is the tuple emitted to the output sink on confirmation.
type CanonicalDeadline struct {
	Course      string     `json:"course"`
	Title       string     `json:"title"`
	Due         time.Time  `json:"due"`
	Source      SourceType `json:"source"`
	ConfirmedBy string     `json:"confirmed_by"`
}

// RawCandidate is the wire shape of one extractor candidate, prior to any
// validation. Due stays a string here: parsing it is the structural
// validator's job, and an unparsable value must reject the entry rather
// than store a zero time.
type RawCandidate struct {
	Title      string   `json:"title"`
	Due        string   `json:"due"`
	Confidence *float64 `json:"confidence,omitempty"`
	Provenance string   `json:"provenance,omitempty"`
}
