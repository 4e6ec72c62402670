package main

import (
	"os"

	"go.uber.org/zap"

	"github.com/coursedesk/deadline-cli/internal/registry"
	"github.com/coursedesk/deadline-cli/internal/service"
	"github.com/coursedesk/deadline-cli/internal/sink"
	"github.com/coursedesk/deadline-cli/internal/store"
	"github.com/coursedesk/deadline-cli/pkg/claude"
)

// buildService wires the store, extractor, course registry, and sink into a
// suggestion service from the loaded config.
func buildService() (*service.Service, error) {
	client := claude.NewClient(cfg.Anthropic.Key, claude.WithRateLimit(cfg.Anthropic.RateLimit))
	ext := claude.NewExtractor(client)

	courses := registry.NewCourseRegistry(nil)
	if cfg.Courses.Path != "" {
		if _, err := os.Stat(cfg.Courses.Path); err == nil {
			loaded, err := registry.LoadCoursesFromFile(cfg.Courses.Path)
			if err != nil {
				return nil, err
			}
			courses = loaded
		} else {
			zap.L().Warn("courses fixture not found, course derivation disabled",
				zap.String("path", cfg.Courses.Path),
			)
		}
	}

	var out sink.Sink = sink.LogSink{}
	if cfg.Sink.WebhookURL != "" {
		out = sink.WebhookSink{URL: cfg.Sink.WebhookURL}
	}

	return service.New(store.New(), ext, courses, out, cfg.Extract.ExtractorConfig()), nil
}
