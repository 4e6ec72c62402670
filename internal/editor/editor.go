// Package editor applies direct manual corrections to suggestions. This is
// the correction path that never touches the extraction source; every edit
// leaves a fixed marker in the warnings audit trail so reviewers can tell
// human-corrected values from model output.
package editor

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/coursedesk/deadline-cli/internal/model"
	"github.com/coursedesk/deadline-cli/internal/store"
)

// WarnManualEdit is appended to a suggestion every time a manual correction
// touches it.
const WarnManualEdit = "manually edited"

// Sentinel errors.
var (
	ErrBadClock      = eris.New("editor: unparsable time of day")
	ErrEmptyTitle    = eris.New("editor: title must not be empty")
	ErrBadConfidence = eris.New("editor: confidence outside [0,1]")
	ErrConfirmed     = eris.New("editor: suggestion already confirmed")
)

// FieldPatch carries the fields a manual edit may set. Nil fields are left
// untouched.
type FieldPatch struct {
	Title      *string    `json:"title,omitempty"`
	Due        *time.Time `json:"due,omitempty"`
	Confidence *float64   `json:"confidence,omitempty"`
	Provenance *string    `json:"provenance,omitempty"`
}

// ApplyPatch sets the provided fields on s and appends the manual-edit
// marker. Confirmed suggestions are immutable; a patch that would blank the
// title or push confidence outside [0,1] is rejected before any field is
// written.
func ApplyPatch(s *model.Suggestion, patch FieldPatch) error {
	if s.Confirmed {
		return eris.Wrap(ErrConfirmed, s.ID)
	}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return eris.Wrap(ErrEmptyTitle, s.ID)
	}
	if patch.Confidence != nil && (*patch.Confidence < 0.0 || *patch.Confidence > 1.0) {
		return eris.Wrap(ErrBadConfidence, s.ID)
	}

	if patch.Title != nil {
		s.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Due != nil {
		s.Due = *patch.Due
	}
	if patch.Confidence != nil {
		c := *patch.Confidence
		s.Confidence = &c
	}
	if patch.Provenance != nil {
		s.Provenance = *patch.Provenance
	}
	s.AddWarning(WarnManualEdit)

	zap.L().Info("editor: fields patched",
		zap.String("suggestion_id", s.ID),
		zap.String("title", s.Title),
	)
	return nil
}

// clockLayouts are the accepted free-text clock formats, tried in order
// against the upper-cased input.
var clockLayouts = []string{"15:04", "3:04 PM", "3:04PM", "3 PM", "3PM"}

// ParseClock parses a free-text clock time ("23:59", "11:59 PM", "11:59pm",
// "9am") into an hour and minute. Unparsable input is an error, never a
// guess.
func ParseClock(text string) (hour, minute int, err error) {
	normalized := strings.ToUpper(strings.TrimSpace(text))
	if normalized == "" {
		return 0, 0, eris.Wrap(ErrBadClock, "empty input")
	}
	for _, layout := range clockLayouts {
		if t, parseErr := time.Parse(layout, normalized); parseErr == nil {
			return t.Hour(), t.Minute(), nil
		}
	}
	return 0, 0, eris.Wrap(ErrBadClock, text)
}

// SetTimeOfDay replaces only the clock component of the suggestion's due
// value, preserving the date and zone. A time correction must never perturb
// the date.
func SetTimeOfDay(s *model.Suggestion, timeText string) error {
	if s.Confirmed {
		return eris.Wrap(ErrConfirmed, s.ID)
	}
	hour, minute, err := ParseClock(timeText)
	if err != nil {
		return err
	}

	due := s.Due
	s.Due = time.Date(due.Year(), due.Month(), due.Day(), hour, minute, 0, 0, due.Location())
	s.AddWarning(WarnManualEdit)
	return nil
}

// BatchResult tallies the outcome of a best-effort batch edit.
type BatchResult struct {
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Failures  []string `json:"failures,omitempty"`
}

// BatchApplyTime applies the same time-of-day to many suggestions by id in
// one call. It is deliberately not a transaction: a missing id or a
// confirmed suggestion fails that item and the loop moves on; earlier
// successes stay applied. An unparsable time text fails fast since no item
// could succeed.
func BatchApplyTime(st *store.Store, ids []string, timeText string) (BatchResult, error) {
	if _, _, err := ParseClock(timeText); err != nil {
		return BatchResult{}, err
	}

	var result BatchResult
	for _, id := range ids {
		s, err := st.Get(id)
		if err == nil {
			if applyErr := SetTimeOfDay(&s, timeText); applyErr == nil {
				err = st.Update(id, s)
			} else {
				err = applyErr
			}
		}
		if err != nil {
			result.Failed++
			result.Failures = append(result.Failures, id+": "+eris.Cause(err).Error())
			zap.L().Warn("editor: batch time apply failed",
				zap.String("suggestion_id", id),
				zap.Error(err),
			)
			continue
		}
		result.Succeeded++
	}

	zap.L().Info("editor: batch time apply complete",
		zap.String("time", timeText),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}
