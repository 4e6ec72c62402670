package validate

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/coursedesk/deadline-cli/internal/model"
)

// Warning texts appended by the domain tier. Stable: downstream review UIs
// and the audit trail key off these exact strings.
const (
	WarnPastDate       = "due date is in the past"
	WarnFarFuture      = "due date is more than a year away"
	WarnDuplicateTitle = "duplicate of another suggestion title"
	WarnLowConfidence  = "extraction confidence below 0.3"
	WarnWeekend        = "due date falls on a weekend"
	WarnEarlyMorning   = "due time is before 06:00"
	WarnLateNight      = "due time is after 23:00"
	WarnVagueTitle     = "vague title with high confidence"
	WarnImminentDue    = "due within 24 hours of extraction"
	WarnRoundNumber    = "round-number due day with high confidence"
)

// lowConfidenceThreshold flags suggestions the model itself doubts.
const lowConfidenceThreshold = 0.3

// farFutureHorizon is how far out a deadline starts looking implausible
// for a single academic term.
const farFutureHorizon = 365 * 24 * time.Hour

// vagueMarkers are title fragments that indicate the source never stated a
// concrete deadline. A model that is highly confident about one of these is
// the classic hallucination signature.
var vagueMarkers = []string{"tbd", "soon", "later", "eventually", "sometime"}

// Annotate runs every domain check against s and appends one warning per
// triggered check. existing is the full stored collection, consulted for
// cross-suggestion duplicate detection.
//
// This tier never fails: plausibility is for a human (or another refinement
// round) to adjudicate, so the checks are strictly additive annotation.
// No check suppresses another; one pass may append several warnings.
func Annotate(s *model.Suggestion, existing []model.Suggestion, now time.Time) {
	var fired []string
	note := func(w string) {
		s.AddWarning(w)
		fired = append(fired, w)
	}

	if s.Due.Before(now) {
		note(WarnPastDate)
	}
	if s.Due.After(now.Add(farFutureHorizon)) {
		note(WarnFarFuture)
	}

	for _, other := range existing {
		if other.ID != s.ID && strings.EqualFold(other.Title, s.Title) {
			note(WarnDuplicateTitle)
			break
		}
	}

	if s.Confidence != nil && *s.Confidence < lowConfidenceThreshold {
		note(WarnLowConfidence)
	}

	// Calendar-convention anomalies. Statistical flags for academic
	// deadlines, not errors: a Saturday 03:00 deadline is legal, just rare.
	switch s.Due.Weekday() {
	case time.Saturday, time.Sunday:
		note(WarnWeekend)
	}
	if s.Due.Hour() < 6 {
		note(WarnEarlyMorning)
	}
	if s.Due.Hour() >= 23 {
		note(WarnLateNight)
	}

	annotateHallucination(s, now, note)

	for _, w := range fired {
		zap.L().Info("validate: domain warning",
			zap.String("suggestion_id", s.ID),
			zap.String("title", s.Title),
			zap.String("warning", w),
		)
	}
}

// annotateHallucination applies the fabrication heuristics: confident
// vagueness, suspiciously imminent discoveries, and round-number bias.
// Each is a proxy for likely fabrication, not proof.
func annotateHallucination(s *model.Suggestion, now time.Time, note func(string)) {
	conf := s.ConfidenceValue()

	if conf > 0.7 {
		lower := strings.ToLower(s.Title)
		for _, marker := range vagueMarkers {
			if strings.Contains(lower, marker) {
				note(WarnVagueTitle)
				break
			}
		}
	}

	// A deadline "discovered" to be within the next day is suspicious:
	// real syllabi rarely schedule work due tomorrow.
	untilDue := s.Due.Sub(now)
	if untilDue > 0 && untilDue < 24*time.Hour {
		note(WarnImminentDue)
	}

	switch s.Due.Day() {
	case 1, 15, 30, 31:
		if conf > 0.8 {
			note(WarnRoundNumber)
		}
	}
}

// AnnotateAll runs Annotate over a batch in order. Each suggestion is
// checked against the existing collection plus the batch members processed
// before it, so when a batch contains two same-titled entries the duplicate
// warning lands on the later one.
func AnnotateAll(batch []*model.Suggestion, existing []model.Suggestion, now time.Time) {
	pool := make([]model.Suggestion, 0, len(existing)+len(batch))
	pool = append(pool, existing...)
	for _, s := range batch {
		Annotate(s, pool, now)
		pool = append(pool, *s)
	}
}
