package service

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/coursedesk/deadline-cli/pkg/extractor"
)

// --- Extractor Mock ---

type mockExtractor struct {
	mock.Mock
}

func (m *mockExtractor) ExtractDocument(ctx context.Context, doc extractor.Document, cfg extractor.Config) (*extractor.Response, error) {
	args := m.Called(ctx, doc, cfg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*extractor.Response), args.Error(1)
}

func (m *mockExtractor) ExtractDocuments(ctx context.Context, docs []extractor.Document, cfg extractor.Config) (*extractor.Response, error) {
	args := m.Called(ctx, docs, cfg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*extractor.Response), args.Error(1)
}

func (m *mockExtractor) ExtractURL(ctx context.Context, url, content string, cfg extractor.Config) (*extractor.Response, error) {
	args := m.Called(ctx, url, content, cfg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*extractor.Response), args.Error(1)
}

func (m *mockExtractor) Refine(ctx context.Context, req extractor.RefineRequest, cfg extractor.Config) (*extractor.Response, error) {
	args := m.Called(ctx, req, cfg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*extractor.Response), args.Error(1)
}
