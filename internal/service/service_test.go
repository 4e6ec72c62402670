package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/coursedesk/deadline-cli/internal/editor"
	"github.com/coursedesk/deadline-cli/internal/model"
	"github.com/coursedesk/deadline-cli/internal/registry"
	"github.com/coursedesk/deadline-cli/internal/store"
	"github.com/coursedesk/deadline-cli/internal/validate"
	"github.com/coursedesk/deadline-cli/pkg/extractor"
)

var testNow = time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

// capturingSink records emitted deadlines for assertions.
type capturingSink struct {
	emitted []model.CanonicalDeadline
	err     error
}

func (s *capturingSink) Emit(_ context.Context, d model.CanonicalDeadline) error {
	s.emitted = append(s.emitted, d)
	return s.err
}

type testEnv struct {
	svc  *Service
	st   *store.Store
	ext  *mockExtractor
	sink *capturingSink
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := store.New()
	ext := &mockExtractor{}
	snk := &capturingSink{}
	courses := registry.NewCourseRegistry([]registry.Course{
		{ID: "CS2110", Name: "Computer Organization", Aliases: []string{"comp org"}},
	})
	defaults := extractor.Config{
		Model:     "claude-haiku-4-5-20251001",
		MaxTokens: 4096,
		Timezone:  "UTC",
		Timeout:   30 * time.Second,
	}
	svc := New(st, ext, courses, snk, defaults, WithClock(func() time.Time { return testNow }))
	return &testEnv{svc: svc, st: st, ext: ext, sink: snk}
}

func meta() IntakeMeta {
	return IntakeMeta{Source: model.SourceSyllabus, DocumentName: "cs2110_syllabus.pdf"}
}

func TestIngestPayload(t *testing.T) {
	t.Parallel()

	t.Run("stores survivors with fresh ids and defaults", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		raw := []byte(`{"candidates": [
			{"title": "Problem Set 1", "due": "2026-10-06T23:00:00Z", "confidence": 0.85, "provenance": "page 2"},
			{"title": "Midterm", "due": "2026-11-03T14:00:00Z"}
		]}`)

		stored, err := env.svc.IngestPayload(context.Background(), raw, meta())
		require.NoError(t, err)
		require.Len(t, stored, 2)

		assert.NotEmpty(t, stored[0].ID)
		assert.NotEqual(t, stored[0].ID, stored[1].ID)
		assert.Equal(t, model.MethodModel, stored[0].Method)
		assert.Equal(t, model.SourceSyllabus, stored[0].Source)
		assert.False(t, stored[0].Confirmed)
		assert.InDelta(t, 0.85, *stored[0].Confidence, 0.001)

		// Confidence omitted by the source defaults to 0.5.
		require.NotNil(t, stored[1].Confidence)
		assert.InDelta(t, 0.5, *stored[1].Confidence, 0.001)

		assert.Equal(t, 2, env.st.Len())
	})

	t.Run("structural failure leaves store unchanged", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		_, err := env.svc.IngestPayload(context.Background(), []byte(`{"wrong": true}`), meta())

		var structural *validate.StructuralError
		require.ErrorAs(t, err, &structural)
		assert.Equal(t, 0, env.st.Len())
	})

	t.Run("field failures drop that entry only", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		raw := []byte(`{"candidates": [
			{"title": "Broken", "due": "whenever"},
			{"title": "Fine", "due": "2026-10-06T23:00:00Z", "confidence": 0.9}
		]}`)

		stored, err := env.svc.IngestPayload(context.Background(), raw, meta())
		require.NoError(t, err)
		require.Len(t, stored, 1)
		assert.Equal(t, "Fine", stored[0].Title)
	})

	t.Run("duplicate against stored collection is annotated", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		first := []byte(`{"candidates": [{"title": "Problem Set 1", "due": "2026-10-06T14:00:00Z", "confidence": 0.9}]}`)
		_, err := env.svc.IngestPayload(context.Background(), first, meta())
		require.NoError(t, err)

		conf := 0.9
		second, err := validate.ToRawPayload([]model.RawCandidate{
			{Title: "problem set 1", Due: "2026-10-13T14:00:00Z", Confidence: &conf},
		})
		require.NoError(t, err)

		stored, err := env.svc.IngestPayload(context.Background(), second, meta())
		require.NoError(t, err)
		require.Len(t, stored, 1)
		assert.True(t, stored[0].HasWarning(validate.WarnDuplicateTitle))
	})
}

func TestIngestDirect(t *testing.T) {
	t.Parallel()

	t.Run("skips structural tier but keeps domain tier", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		entries := []DirectEntry{
			// Saturday due date: the domain tier must still flag it.
			{Title: "Lab 4", Due: time.Date(2026, 10, 10, 14, 0, 0, 0, time.UTC), Course: "CS2110", Provenance: "canvas feed"},
		}

		stored, err := env.svc.IngestDirect(context.Background(), entries, IntakeMeta{Source: model.SourceCanvas})
		require.NoError(t, err)
		require.Len(t, stored, 1)

		assert.Equal(t, model.MethodDirect, stored[0].Method)
		assert.Nil(t, stored[0].Confidence)
		assert.True(t, stored[0].HasWarning(validate.WarnWeekend))
	})

	t.Run("drops incomplete entries", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		entries := []DirectEntry{
			{Title: "", Due: time.Date(2026, 10, 6, 14, 0, 0, 0, time.UTC)},
			{Title: "No Due"},
			{Title: "Fine", Due: time.Date(2026, 10, 6, 14, 0, 0, 0, time.UTC)},
		}
		stored, err := env.svc.IngestDirect(context.Background(), entries, IntakeMeta{Source: model.SourceCanvas})
		require.NoError(t, err)
		require.Len(t, stored, 1)
		assert.Equal(t, "Fine", stored[0].Title)
	})
}

func TestIngestDocument(t *testing.T) {
	t.Parallel()

	t.Run("extracts then ingests", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		doc := extractor.Document{Name: "syllabus.pdf", Content: "..."}
		payload := `{"candidates": [{"title": "Essay", "due": "2026-10-06T14:00:00Z", "confidence": 0.8}]}`
		env.ext.On("ExtractDocument", mock.Anything, doc, mock.Anything).
			Return(&extractor.Response{Payload: []byte(payload)}, nil)

		stored, err := env.svc.IngestDocument(context.Background(), doc, IntakeMeta{Source: model.SourceSyllabus}, nil)
		require.NoError(t, err)
		require.Len(t, stored, 1)
		assert.Equal(t, "syllabus.pdf", stored[0].DocumentName)
		env.ext.AssertExpectations(t)
	})

	t.Run("timeout surfaces without store mutation", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		env.ext.On("ExtractDocument", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, extractor.ErrTimeout)

		_, err := env.svc.IngestDocument(context.Background(), extractor.Document{Name: "x", Content: "y"}, meta(), nil)
		assert.ErrorIs(t, err, extractor.ErrTimeout)
		assert.Equal(t, 0, env.st.Len())
	})

	t.Run("per-call override reaches the extractor", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		doc := extractor.Document{Name: "syllabus.pdf", Content: "..."}
		payload := `{"candidates": []}`
		env.ext.On("ExtractDocument", mock.Anything, doc, mock.MatchedBy(func(cfg extractor.Config) bool {
			return cfg.Model == "claude-sonnet-4-5-20250929" && cfg.MaxTokens == 4096
		})).Return(&extractor.Response{Payload: []byte(payload)}, nil)

		_, err := env.svc.IngestDocument(context.Background(), doc, meta(), &extractor.Config{Model: "claude-sonnet-4-5-20250929"})
		require.NoError(t, err)
		env.ext.AssertExpectations(t)
	})
}

func TestIngestPerDocument(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	good := extractor.Document{Name: "good.pdf", Content: "a"}
	bad := extractor.Document{Name: "bad.pdf", Content: "b"}

	payload := `{"candidates": [{"title": "Essay", "due": "2026-10-06T14:00:00Z", "confidence": 0.8}]}`
	env.ext.On("ExtractDocument", mock.Anything, good, mock.Anything).
		Return(&extractor.Response{Payload: []byte(payload)}, nil)
	env.ext.On("ExtractDocument", mock.Anything, bad, mock.Anything).
		Return(nil, extractor.ErrTimeout)

	stored, err := env.svc.IngestPerDocument(context.Background(), []extractor.Document{good, bad}, IntakeMeta{Source: model.SourceSyllabus}, nil)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "good.pdf", stored[0].DocumentName)
	assert.Equal(t, 1, env.st.Len())
}

func TestRefine(t *testing.T) {
	t.Parallel()

	seed := func(t *testing.T, env *testEnv) model.Suggestion {
		t.Helper()
		raw := []byte(`{"candidates": [{"title": "Problim Set 1", "due": "2026-10-06T14:00:00Z", "confidence": 0.4, "provenance": "page 2"}]}`)
		stored, err := env.svc.IngestPayload(context.Background(), raw, meta())
		require.NoError(t, err)
		require.Len(t, stored, 1)
		return stored[0]
	}

	t.Run("overwrites fields, preserves id, grows warnings", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		original := seed(t, env)
		priorWarnings := len(original.Warnings)

		refined := `{"candidates": [{"title": "Problem Set 1", "due": "2026-10-07T23:59:00Z", "confidence": 0.9, "provenance": "page 2, corrected"}]}`
		env.ext.On("Refine", mock.Anything, mock.MatchedBy(func(req extractor.RefineRequest) bool {
			return req.Suggestion.ID == original.ID && req.Feedback == "the title is misspelled"
		}), mock.Anything).Return(&extractor.Response{Payload: []byte(refined)}, nil)

		got, err := env.svc.Refine(context.Background(), original.ID, "the title is misspelled", nil)
		require.NoError(t, err)

		assert.Equal(t, original.ID, got.ID)
		assert.Equal(t, "Problem Set 1", got.Title)
		assert.Equal(t, time.Date(2026, 10, 7, 23, 59, 0, 0, time.UTC), got.Due)
		assert.InDelta(t, 0.9, *got.Confidence, 0.001)
		assert.Equal(t, "page 2, corrected", got.Provenance)

		// Prior warnings survive and the refinement marker is appended.
		assert.GreaterOrEqual(t, len(got.Warnings), priorWarnings+1)
		assert.True(t, got.HasWarning(WarnRefined))
		for _, w := range original.Warnings {
			assert.True(t, got.HasWarning(w))
		}

		persisted, err := env.st.Get(original.ID)
		require.NoError(t, err)
		assert.Equal(t, "Problem Set 1", persisted.Title)
	})

	t.Run("zero candidates is an error", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		original := seed(t, env)

		env.ext.On("Refine", mock.Anything, mock.Anything, mock.Anything).
			Return(&extractor.Response{Payload: []byte(`{"candidates": []}`)}, nil)

		_, err := env.svc.Refine(context.Background(), original.ID, "try again", nil)
		assert.ErrorIs(t, err, ErrNoCandidates)

		// Store untouched by the failed refinement.
		persisted, gerr := env.st.Get(original.ID)
		require.NoError(t, gerr)
		assert.Equal(t, "Problim Set 1", persisted.Title)
	})

	t.Run("confirmed suggestion cannot be refined", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		original := seed(t, env)
		_, err := env.svc.Confirm(context.Background(), original.ID, "reviewer")
		require.NoError(t, err)

		_, err = env.svc.Refine(context.Background(), original.ID, "feedback", nil)
		assert.ErrorIs(t, err, ErrConfirmedImmutable)
	})

	t.Run("unknown id", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		_, err := env.svc.Refine(context.Background(), "ghost", "feedback", nil)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestConfirm(t *testing.T) {
	t.Parallel()

	seed := func(t *testing.T, env *testEnv, provenance string) model.Suggestion {
		t.Helper()
		stored, err := env.svc.IngestDirect(context.Background(), []DirectEntry{
			{Title: "Problem Set 1", Due: time.Date(2026, 10, 6, 23, 59, 0, 0, time.UTC), Provenance: provenance},
		}, IntakeMeta{Source: model.SourceCanvas})
		require.NoError(t, err)
		require.Len(t, stored, 1)
		return stored[0]
	}

	t.Run("emits canonical deadline with derived course", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		s := seed(t, env, "CS2110 assignment feed")

		deadline, err := env.svc.Confirm(context.Background(), s.ID, "reviewer@example.edu")
		require.NoError(t, err)

		assert.Equal(t, "Computer Organization", deadline.Course)
		assert.Equal(t, "Problem Set 1", deadline.Title)
		assert.Equal(t, model.SourceCanvas, deadline.Source)
		assert.Equal(t, "reviewer@example.edu", deadline.ConfirmedBy)

		require.Len(t, env.sink.emitted, 1)
		assert.Equal(t, deadline, env.sink.emitted[0])

		persisted, err := env.st.Get(s.ID)
		require.NoError(t, err)
		assert.True(t, persisted.Confirmed)
	})

	t.Run("unknown course sentinel", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		s := seed(t, env, "no course mentioned")

		deadline, err := env.svc.Confirm(context.Background(), s.ID, "reviewer")
		require.NoError(t, err)
		assert.Equal(t, registry.CourseUnknown, deadline.Course)
	})

	t.Run("double confirmation fails, flag untouched", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		s := seed(t, env, "CS2110")

		_, err := env.svc.Confirm(context.Background(), s.ID, "reviewer")
		require.NoError(t, err)

		_, err = env.svc.Confirm(context.Background(), s.ID, "reviewer")
		assert.ErrorIs(t, err, ErrAlreadyConfirmed)

		persisted, gerr := env.st.Get(s.ID)
		require.NoError(t, gerr)
		assert.True(t, persisted.Confirmed)
		assert.Len(t, env.sink.emitted, 1)
	})

	t.Run("unknown id", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		_, err := env.svc.Confirm(context.Background(), "ghost", "reviewer")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("sink failure reported, confirmation stands", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		env.sink.err = assert.AnError
		s := seed(t, env, "CS2110")

		_, err := env.svc.Confirm(context.Background(), s.ID, "reviewer")
		assert.Error(t, err)

		persisted, gerr := env.st.Get(s.ID)
		require.NoError(t, gerr)
		assert.True(t, persisted.Confirmed)
	})
}

func TestEditOperations(t *testing.T) {
	t.Parallel()

	seed := func(t *testing.T, env *testEnv) model.Suggestion {
		t.Helper()
		stored, err := env.svc.IngestDirect(context.Background(), []DirectEntry{
			{Title: "Problem Set 1", Due: time.Date(2025, 10, 1, 10, 0, 0, 0, time.UTC)},
		}, IntakeMeta{Source: model.SourceCanvas})
		require.NoError(t, err)
		return stored[0]
	}

	t.Run("edit fields persists", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		s := seed(t, env)

		title := "Problem Set One"
		got, err := env.svc.EditFields(s.ID, editor.FieldPatch{Title: &title})
		require.NoError(t, err)
		assert.Equal(t, "Problem Set One", got.Title)
		assert.True(t, got.HasWarning(editor.WarnManualEdit))

		persisted, err := env.st.Get(s.ID)
		require.NoError(t, err)
		assert.Equal(t, "Problem Set One", persisted.Title)
	})

	t.Run("set time of day persists and keeps the date", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		s := seed(t, env)

		got, err := env.svc.SetTimeOfDay(s.ID, "11:59 PM")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2025, 10, 1, 23, 59, 0, 0, time.UTC), got.Due)
	})

	t.Run("edit after confirm is rejected", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		s := seed(t, env)
		_, err := env.svc.Confirm(context.Background(), s.ID, "reviewer")
		require.NoError(t, err)

		title := "New"
		_, err = env.svc.EditFields(s.ID, editor.FieldPatch{Title: &title})
		assert.ErrorIs(t, err, editor.ErrConfirmed)
	})
}

func TestClearAll(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	_, err := env.svc.IngestDirect(context.Background(), []DirectEntry{
		{Title: "PS1", Due: time.Date(2026, 10, 6, 14, 0, 0, 0, time.UTC)},
		{Title: "PS2", Due: time.Date(2026, 10, 13, 14, 0, 0, 0, time.UTC)},
	}, IntakeMeta{Source: model.SourceCanvas})
	require.NoError(t, err)
	require.Equal(t, 2, env.st.Len())

	env.svc.ClearAll()
	assert.Equal(t, 0, env.st.Len())
}
