package core

import (
	"context"
	"time"

	"epserver/metrics"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	DefaultSPAURL          = "https://engineeringpaper.xyz"
	DefaultMaxDocumentSize = 2000000
	DefaultTestTitle       = "Title for testing purposes only, will be deleted from database automatically"
)

type (
	CreateRequest struct {
		Title    string
		Document string
		History  History
		ClientIP string
	}

	CreateResult struct {
		URL     string
		Hash    string
		History History
	}

	ReadResult struct {
		Data    string
		History History
	}

	ServiceOptions struct {
		SPAURL          string
		MaxDocumentSize int
		TestTitle       string
		Now             func() time.Time
	}

	// DocumentService holds the create, read and purge rules on top of a DocumentStore.
	DocumentService struct {
		store DocumentStore
		opts  ServiceOptions
	}
)

func NewDocumentService(store DocumentStore, opts ServiceOptions) *DocumentService {
	if opts.SPAURL == "" {
		opts.SPAURL = DefaultSPAURL
	}
	if opts.MaxDocumentSize <= 0 {
		opts.MaxDocumentSize = DefaultMaxDocumentSize
	}
	if opts.TestTitle == "" {
		opts.TestTitle = DefaultTestTitle
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &DocumentService{store: store, opts: opts}
}

// URL is the front-end address of the document with the given id.
func (s *DocumentService) URL(id string) string {
	return s.opts.SPAURL + "/#" + id
}

func (s *DocumentService) Create(ctx context.Context, digest string, req CreateRequest) (*CreateResult, error) {
	if !VerifyDigest([]byte(req.Document), digest) {
		return nil, errors.Wrapf(ErrIntegrityMismatch, "digest %s", digest)
	}

	if len(req.History) > 0 {
		existing, err := s.findExisting(ctx, digest, req)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			logrus.WithField("document_id", existing.ID).Info("Create matched an existing document")
			metrics.DocumentsDeduplicated.Inc()
			return &CreateResult{URL: s.URL(existing.ID), Hash: existing.ID, History: existing.History}, nil
		}
	}

	if len(req.Document) > s.opts.MaxDocumentSize {
		return nil, errors.Wrapf(ErrPayloadTooLarge, "%d bytes exceeds the %d byte limit", len(req.Document), s.opts.MaxDocumentSize)
	}

	now := s.opts.Now()
	document := &Document{
		Title:      req.Title,
		Data:       req.Document,
		DataHash:   digest,
		Creation:   now,
		CreationIP: req.ClientIP,
		Access:     now,
		History:    req.History.Clone(),
	}
	id, err := s.store.Create(ctx, document)
	if err != nil {
		return nil, err
	}

	history := document.History.Prepend(HistoryEntry{
		HistoryURL:      s.URL(id),
		HistoryHash:     id,
		HistoryCreation: now.Format(time.RFC3339),
	})
	if err := s.store.UpdateHistory(ctx, id, history); err != nil {
		return nil, err
	}
	metrics.DocumentsCreated.Inc()

	return &CreateResult{URL: s.URL(id), Hash: id, History: history}, nil
}

// findExisting returns the stored document the caller's history head points at, provided it holds
// exactly the submitted data. A digest match alone is never enough.
func (s *DocumentService) findExisting(ctx context.Context, digest string, req CreateRequest) (*Document, error) {
	headID := req.History.Head()[HistoryHash]
	if headID == "" {
		return nil, nil
	}
	candidates, err := s.store.FindHash(ctx, digest)
	if err != nil {
		return nil, err
	}
	for _, candidate := range candidates {
		if candidate.ID == headID && candidate.Data == req.Document {
			return candidate, nil
		}
	}
	return nil, nil
}

func (s *DocumentService) Get(ctx context.Context, id string) (*ReadResult, error) {
	document, err := s.store.RecordRead(ctx, id, s.opts.Now())
	if err != nil {
		return nil, err
	}
	metrics.DocumentsRead.Inc()
	return &ReadResult{Data: document.Data, History: document.History}, nil
}

// PurgeTestDocuments deletes every document titled with the test sentinel.
func (s *DocumentService) PurgeTestDocuments(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteTitle(ctx, s.opts.TestTitle)
	if err != nil {
		return 0, err
	}
	metrics.DocumentsPurged.Add(float64(n))
	logrus.WithField("deleted", n).Info("Purged test documents")
	return n, nil
}

func (s *DocumentService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
