package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/coursedesk/deadline-cli/internal/editor"
	"github.com/coursedesk/deadline-cli/internal/model"
	"github.com/coursedesk/deadline-cli/internal/service"
	"github.com/coursedesk/deadline-cli/internal/store"
	"github.com/coursedesk/deadline-cli/internal/validate"
	"github.com/coursedesk/deadline-cli/pkg/extractor"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the review API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		svc, err := buildService()
		if err != nil {
			return err
		}

		port := cfg.Server.Port
		if servePort != 0 {
			port = servePort
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(svc),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			zap.L().Info("review api listening", zap.Int("port", port))
			errCh <- srv.ListenAndServe()
		}()

		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		}
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "override listen port")
	rootCmd.AddCommand(serveCmd)
}

// newRouter builds the review API surface over the suggestion service.
func newRouter(svc *service.Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/suggestions", func(r chi.Router) {
		r.Get("/", handleList(svc))
		r.Delete("/", func(w http.ResponseWriter, _ *http.Request) {
			svc.ClearAll()
			w.WriteHeader(http.StatusNoContent)
		})

		r.Post("/extract", handleExtractPayload(svc))
		r.Post("/extract/document", handleExtractDocument(svc))
		r.Post("/extract/documents", handleExtractDocuments(svc))
		r.Post("/extract/url", handleExtractURL(svc))
		r.Post("/direct", handleDirect(svc))
		r.Post("/time", handleBatchTime(svc))

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", handleGet(svc))
			r.Patch("/", handleEdit(svc))
			r.Post("/time", handleSetTime(svc))
			r.Post("/refine", handleRefine(svc))
			r.Post("/confirm", handleConfirm(svc))
		})
	})

	return r
}

func handleList(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := svc.Store()
		q := r.URL.Query()

		var out []model.Suggestion
		switch {
		case q.Get("source") != "":
			out = st.BySource(model.SourceType(q.Get("source")))
		case q.Get("method") != "":
			out = st.ByMethod(model.ExtractionMethod(q.Get("method")))
		case q.Get("confirmed") != "":
			confirmed, err := strconv.ParseBool(q.Get("confirmed"))
			if err != nil {
				writeError(w, http.StatusBadRequest, "confirmed must be a boolean")
				return
			}
			out = st.ByConfirmed(confirmed)
		default:
			out = svc.List()
		}

		writeJSON(w, http.StatusOK, map[string]any{"suggestions": out})
	}
}

func handleGet(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := svc.Get(chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

type intakeMetaBody struct {
	Source       model.SourceType `json:"source"`
	DocumentName string           `json:"document_name,omitempty"`
	SourceURL    string           `json:"source_url,omitempty"`
	CourseHint   string           `json:"course_hint,omitempty"`
}

func (b intakeMetaBody) meta() service.IntakeMeta {
	return service.IntakeMeta{
		Source:       b.Source,
		DocumentName: b.DocumentName,
		SourceURL:    b.SourceURL,
		CourseHint:   b.CourseHint,
	}
}

func handleExtractPayload(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			intakeMetaBody
			Payload json.RawMessage `json:"payload"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		stored, err := svc.IngestPayload(r.Context(), req.Payload, req.meta())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"suggestions": stored})
	}
}

func handleExtractDocument(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			intakeMetaBody
			Name    string `json:"name"`
			Content string `json:"content"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Content == "" {
			writeError(w, http.StatusBadRequest, "name and content are required")
			return
		}
		doc := extractor.Document{Name: req.Name, Content: req.Content}
		stored, err := svc.IngestDocument(r.Context(), doc, req.meta(), nil)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"suggestions": stored})
	}
}

func handleExtractDocuments(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			intakeMetaBody
			Documents []extractor.Document `json:"documents"`
			Correlate bool                 `json:"correlate"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Documents) == 0 {
			writeError(w, http.StatusBadRequest, "documents are required")
			return
		}

		var (
			stored []model.Suggestion
			err    error
		)
		if req.Correlate {
			stored, err = svc.IngestDocuments(r.Context(), req.Documents, req.meta(), nil)
		} else {
			stored, err = svc.IngestPerDocument(r.Context(), req.Documents, req.meta(), nil)
		}
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"suggestions": stored})
	}
}

func handleExtractURL(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			intakeMetaBody
			URL     string `json:"url"`
			Content string `json:"content"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
			writeError(w, http.StatusBadRequest, "url is required")
			return
		}
		stored, err := svc.IngestURL(r.Context(), req.URL, req.Content, req.meta(), nil)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"suggestions": stored})
	}
}

func handleDirect(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			intakeMetaBody
			Entries []service.DirectEntry `json:"entries"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		stored, err := svc.IngestDirect(r.Context(), req.Entries, req.meta())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"suggestions": stored})
	}
}

func handleEdit(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var patch editor.FieldPatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		s, err := svc.EditFields(chi.URLParam(r, "id"), patch)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

func handleSetTime(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Time string `json:"time"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		s, err := svc.SetTimeOfDay(chi.URLParam(r, "id"), req.Time)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

func handleBatchTime(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			IDs  []string `json:"ids"`
			Time string   `json:"time"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		result, err := svc.BatchApplyTime(req.IDs, req.Time)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func handleRefine(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Feedback string `json:"feedback"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Feedback == "" {
			writeError(w, http.StatusBadRequest, "feedback is required")
			return
		}
		s, err := svc.Refine(r.Context(), chi.URLParam(r, "id"), req.Feedback, nil)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

func handleConfirm(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ConfirmedBy string `json:"confirmed_by"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		deadline, err := svc.Confirm(r.Context(), chi.URLParam(r, "id"), req.ConfirmedBy)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, deadline)
	}
}

// writeServiceError maps the service error taxonomy onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	var structural *validate.StructuralError
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "suggestion not found")
	case errors.Is(err, service.ErrAlreadyConfirmed),
		errors.Is(err, service.ErrConfirmedImmutable),
		errors.Is(err, editor.ErrConfirmed):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &structural):
		writeError(w, http.StatusBadRequest, structural.Error())
	case errors.Is(err, editor.ErrBadClock),
		errors.Is(err, editor.ErrEmptyTitle),
		errors.Is(err, editor.ErrBadConfidence):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNoCandidates):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, extractor.ErrTimeout):
		writeError(w, http.StatusGatewayTimeout, "extraction timed out")
	default:
		zap.L().Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
