// Package service orchestrates the suggestion lifecycle: extraction intake,
// review-time editing, feedback refinement, and confirmation into canonical
// deadlines.
package service

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/coursedesk/deadline-cli/internal/editor"
	"github.com/coursedesk/deadline-cli/internal/model"
	"github.com/coursedesk/deadline-cli/internal/registry"
	"github.com/coursedesk/deadline-cli/internal/sink"
	"github.com/coursedesk/deadline-cli/internal/store"
	"github.com/coursedesk/deadline-cli/internal/validate"
	"github.com/coursedesk/deadline-cli/pkg/extractor"
)

// WarnRefined is appended to a suggestion each time feedback refinement
// replaces its fields. Refinement never clears prior warnings.
const WarnRefined = "refined with feedback"

// defaultConfidence is assigned to model-derived candidates whose payload
// omitted a confidence score.
const defaultConfidence = 0.5

// maxIntakeConcurrency caps concurrent extraction calls during per-document
// intake. Extraction is the only suspension point; store mutation stays
// sequential.
const maxIntakeConcurrency = 4

// Sentinel errors.
var (
	ErrAlreadyConfirmed   = eris.New("service: suggestion already confirmed")
	ErrConfirmedImmutable = eris.New("service: confirmed suggestion cannot be modified")
	ErrNoCandidates       = eris.New("service: refinement returned no candidates")
	ErrIncomplete         = eris.New("service: suggestion missing title or due value")
)

// IntakeMeta carries provenance metadata for an intake batch.
type IntakeMeta struct {
	Source       model.SourceType `json:"source"`
	DocumentName string           `json:"document_name,omitempty"`
	SourceURL    string           `json:"source_url,omitempty"`
	CourseHint   string           `json:"course_hint,omitempty"`
}

// DirectEntry is one already-structured deadline from a DIRECT source
// adapter (e.g. a Canvas assignment feed). It bypasses structural
// validation but still passes through domain annotation.
type DirectEntry struct {
	Title      string    `json:"title"`
	Due        time.Time `json:"due"`
	Course     string    `json:"course,omitempty"`
	Provenance string    `json:"provenance,omitempty"`
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source. Test seam.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service owns the suggestion lifecycle. Single logical writer: the only
// suspension points are extractor round-trips, and no other step for a
// suggestion runs concurrently with its pending extraction.
type Service struct {
	store     *store.Store
	extractor extractor.Client
	courses   *registry.CourseRegistry
	sink      sink.Sink
	defaults  extractor.Config
	loc       *time.Location
	now       func() time.Time
}

// New creates a Service. defaults is the process-wide extraction config;
// per-call overrides are accepted by the intake and refine operations.
func New(st *store.Store, ext extractor.Client, courses *registry.CourseRegistry, snk sink.Sink, defaults extractor.Config, opts ...Option) *Service {
	loc, err := time.LoadLocation(defaults.Timezone)
	if err != nil || defaults.Timezone == "" {
		loc = time.Local
	}
	s := &Service{
		store:     st,
		extractor: ext,
		courses:   courses,
		sink:      snk,
		defaults:  defaults,
		loc:       loc,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// resolveConfig merges a per-call override onto the process defaults.
func (s *Service) resolveConfig(override *extractor.Config) extractor.Config {
	if override == nil {
		return s.defaults
	}
	cfg := s.defaults
	if override.Model != "" {
		cfg.Model = override.Model
	}
	if override.MaxTokens > 0 {
		cfg.MaxTokens = override.MaxTokens
	}
	if override.Temperature != nil {
		cfg.Temperature = override.Temperature
	}
	if override.Timezone != "" {
		cfg.Timezone = override.Timezone
	}
	if override.Timeout > 0 {
		cfg.Timeout = override.Timeout
	}
	return cfg
}

// IngestPayload converts a raw extraction payload into stored suggestions.
//
// Structural validation runs first: a payload-shape failure aborts the whole
// intake with no store mutation. Entries that fail per-field checks are
// dropped (logged by the validator); survivors become suggestions with fresh
// ids, get domain-annotated against the full existing collection, and are
// persisted in one Add.
func (s *Service) IngestPayload(ctx context.Context, raw []byte, meta IntakeMeta) ([]model.Suggestion, error) {
	candidates, issues, err := validate.DecodeCandidates(raw, s.loc)
	if err != nil {
		return nil, eris.Wrap(err, "service: intake")
	}

	batch := make([]*model.Suggestion, 0, len(candidates))
	for _, c := range candidates {
		conf := c.Confidence
		if conf == nil {
			v := defaultConfidence
			conf = &v
		}
		batch = append(batch, &model.Suggestion{
			ID:           store.NewID(),
			Title:        c.Title,
			Due:          c.Due,
			Source:       meta.Source,
			Method:       model.MethodModel,
			Confidence:   conf,
			Provenance:   c.Provenance,
			DocumentName: meta.DocumentName,
			SourceURL:    meta.SourceURL,
			CourseHint:   meta.CourseHint,
			CreatedAt:    s.now(),
		})
	}

	validate.AnnotateAll(batch, s.store.List(), s.now())

	out := make([]model.Suggestion, 0, len(batch))
	for _, sg := range batch {
		out = append(out, *sg)
	}
	if err := s.store.Add(out...); err != nil {
		return nil, eris.Wrap(err, "service: intake store")
	}

	zap.L().Info("service: intake complete",
		zap.String("source", string(meta.Source)),
		zap.Int("stored", len(out)),
		zap.Int("dropped", len(issues)),
	)
	return out, nil
}

// IngestDirect stores already-structured entries from a DIRECT source
// adapter. No structural tier (the adapter supplies typed values), but the
// domain tier still runs: a Canvas feed can carry implausible dates too.
func (s *Service) IngestDirect(ctx context.Context, entries []DirectEntry, meta IntakeMeta) ([]model.Suggestion, error) {
	batch := make([]*model.Suggestion, 0, len(entries))
	for _, e := range entries {
		if e.Title == "" || e.Due.IsZero() {
			zap.L().Warn("service: direct entry dropped",
				zap.String("title", e.Title),
				zap.String("course", e.Course),
			)
			continue
		}
		batch = append(batch, &model.Suggestion{
			ID:         store.NewID(),
			Title:      e.Title,
			Due:        e.Due,
			Source:     meta.Source,
			Method:     model.MethodDirect,
			Provenance: e.Provenance,
			CourseHint: e.Course,
			SourceURL:  meta.SourceURL,
			CreatedAt:  s.now(),
		})
	}

	validate.AnnotateAll(batch, s.store.List(), s.now())

	out := make([]model.Suggestion, 0, len(batch))
	for _, sg := range batch {
		out = append(out, *sg)
	}
	if err := s.store.Add(out...); err != nil {
		return nil, eris.Wrap(err, "service: direct intake store")
	}

	zap.L().Info("service: direct intake complete",
		zap.String("source", string(meta.Source)),
		zap.Int("stored", len(out)),
	)
	return out, nil
}

// IngestDocument extracts candidates from one document and stores the
// survivors.
func (s *Service) IngestDocument(ctx context.Context, doc extractor.Document, meta IntakeMeta, override *extractor.Config) ([]model.Suggestion, error) {
	cfg := s.resolveConfig(override)
	resp, err := s.extractor.ExtractDocument(ctx, doc, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "service: extract document")
	}
	if meta.DocumentName == "" {
		meta.DocumentName = doc.Name
	}
	return s.IngestPayload(ctx, resp.Payload, meta)
}

// IngestDocuments extracts candidates across several documents in a single
// correlated request and stores the survivors.
func (s *Service) IngestDocuments(ctx context.Context, docs []extractor.Document, meta IntakeMeta, override *extractor.Config) ([]model.Suggestion, error) {
	cfg := s.resolveConfig(override)
	resp, err := s.extractor.ExtractDocuments(ctx, docs, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "service: extract documents")
	}
	return s.IngestPayload(ctx, resp.Payload, meta)
}

// IngestPerDocument extracts each document independently, with bounded
// concurrency across the extraction round-trips, then ingests the payloads
// sequentially so domain annotation always sees the suggestions stored
// before it. Best-effort batch: a failed document is logged and skipped,
// earlier documents' suggestions stay stored.
func (s *Service) IngestPerDocument(ctx context.Context, docs []extractor.Document, meta IntakeMeta, override *extractor.Config) ([]model.Suggestion, error) {
	cfg := s.resolveConfig(override)

	payloads := make([][]byte, len(docs))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxIntakeConcurrency)
	for i, doc := range docs {
		g.Go(func() error {
			resp, err := s.extractor.ExtractDocument(gCtx, doc, cfg)
			if err != nil {
				zap.L().Warn("service: document extraction failed",
					zap.String("document", doc.Name),
					zap.Error(err),
				)
				return nil // best effort, siblings continue
			}
			payloads[i] = resp.Payload
			return nil
		})
	}
	_ = g.Wait()

	var out []model.Suggestion
	for i, payload := range payloads {
		if payload == nil {
			continue
		}
		docMeta := meta
		docMeta.DocumentName = docs[i].Name
		stored, err := s.IngestPayload(ctx, payload, docMeta)
		if err != nil {
			zap.L().Warn("service: document intake failed",
				zap.String("document", docs[i].Name),
				zap.Error(err),
			)
			continue
		}
		out = append(out, stored...)
	}
	return out, nil
}

// IngestURL extracts candidates from fetched website content and stores the
// survivors.
func (s *Service) IngestURL(ctx context.Context, url, content string, meta IntakeMeta, override *extractor.Config) ([]model.Suggestion, error) {
	cfg := s.resolveConfig(override)
	resp, err := s.extractor.ExtractURL(ctx, url, content, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "service: extract url")
	}
	if meta.SourceURL == "" {
		meta.SourceURL = url
	}
	return s.IngestPayload(ctx, resp.Payload, meta)
}

// Refine re-extracts one unconfirmed suggestion using reviewer feedback.
// The first returned candidate overwrites title, due, confidence, and
// provenance in place; id, source, method, and the accumulated warnings all
// survive. The refined values then pass through domain annotation again, so
// the audit trail records any plausibility concerns the new values raise.
func (s *Service) Refine(ctx context.Context, id, feedback string, override *extractor.Config) (model.Suggestion, error) {
	current, err := s.store.Get(id)
	if err != nil {
		return model.Suggestion{}, err
	}
	if current.Confirmed {
		return model.Suggestion{}, eris.Wrap(ErrConfirmedImmutable, id)
	}

	cfg := s.resolveConfig(override)
	resp, err := s.extractor.Refine(ctx, extractor.RefineRequest{Suggestion: current, Feedback: feedback}, cfg)
	if err != nil {
		return model.Suggestion{}, eris.Wrap(err, "service: refine")
	}

	candidates, _, err := validate.DecodeCandidates(resp.Payload, s.loc)
	if err != nil {
		return model.Suggestion{}, eris.Wrap(err, "service: refine payload")
	}
	if len(candidates) == 0 {
		return model.Suggestion{}, eris.Wrap(ErrNoCandidates, id)
	}

	first := candidates[0]
	current.Title = first.Title
	current.Due = first.Due
	current.Provenance = first.Provenance
	conf := first.Confidence
	if conf == nil {
		v := defaultConfidence
		conf = &v
	}
	current.Confidence = conf
	current.AddWarning(WarnRefined)

	validate.Annotate(&current, s.store.List(), s.now())

	if err := s.store.Update(id, current); err != nil {
		return model.Suggestion{}, eris.Wrap(err, "service: refine store")
	}

	zap.L().Info("service: suggestion refined",
		zap.String("suggestion_id", id),
		zap.String("title", current.Title),
	)
	return current, nil
}

// Confirm promotes an unconfirmed suggestion into a canonical deadline and
// emits it to the output sink. Confirmation is one-way and exactly-once:
// a second attempt is an error and leaves the record untouched.
func (s *Service) Confirm(ctx context.Context, id, confirmedBy string) (model.CanonicalDeadline, error) {
	current, err := s.store.Get(id)
	if err != nil {
		return model.CanonicalDeadline{}, err
	}
	if current.Confirmed {
		return model.CanonicalDeadline{}, eris.Wrap(ErrAlreadyConfirmed, id)
	}
	if current.Title == "" || current.Due.IsZero() {
		return model.CanonicalDeadline{}, eris.Wrap(ErrIncomplete, id)
	}

	current.Confirmed = true
	if err := s.store.Update(id, current); err != nil {
		return model.CanonicalDeadline{}, eris.Wrap(err, "service: confirm store")
	}

	deadline := model.CanonicalDeadline{
		Course:      s.courses.Derive(current.CourseHint, current.Provenance, current.DocumentName),
		Title:       current.Title,
		Due:         current.Due,
		Source:      current.Source,
		ConfirmedBy: confirmedBy,
	}

	if err := s.sink.Emit(ctx, deadline); err != nil {
		// The confirmation stands; delivery is the sink's contract.
		zap.L().Error("service: sink emit failed",
			zap.String("suggestion_id", id),
			zap.Error(err),
		)
		return deadline, eris.Wrap(err, "service: emit deadline")
	}

	return deadline, nil
}

// EditFields applies a manual field patch to an unconfirmed suggestion.
func (s *Service) EditFields(id string, patch editor.FieldPatch) (model.Suggestion, error) {
	current, err := s.store.Get(id)
	if err != nil {
		return model.Suggestion{}, err
	}
	if err := editor.ApplyPatch(&current, patch); err != nil {
		return model.Suggestion{}, err
	}
	if err := s.store.Update(id, current); err != nil {
		return model.Suggestion{}, err
	}
	return current, nil
}

// SetTimeOfDay replaces only the clock component of one suggestion's due
// value.
func (s *Service) SetTimeOfDay(id, timeText string) (model.Suggestion, error) {
	current, err := s.store.Get(id)
	if err != nil {
		return model.Suggestion{}, err
	}
	if err := editor.SetTimeOfDay(&current, timeText); err != nil {
		return model.Suggestion{}, err
	}
	if err := s.store.Update(id, current); err != nil {
		return model.Suggestion{}, err
	}
	return current, nil
}

// BatchApplyTime applies the same time-of-day to many suggestions,
// best-effort.
func (s *Service) BatchApplyTime(ids []string, timeText string) (editor.BatchResult, error) {
	return editor.BatchApplyTime(s.store, ids, timeText)
}

// Get returns one suggestion by id.
func (s *Service) Get(id string) (model.Suggestion, error) {
	return s.store.Get(id)
}

// List returns all suggestions in insertion order.
func (s *Service) List() []model.Suggestion {
	return s.store.List()
}

// Store exposes the underlying store for filter queries.
func (s *Service) Store() *store.Store {
	return s.store
}

// ClearAll discards every suggestion. Restart-style workflow support.
func (s *Service) ClearAll() {
	s.store.ClearAll()
	zap.L().Info("service: store cleared")
}
