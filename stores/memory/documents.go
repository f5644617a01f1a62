package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"epserver/core"

	"github.com/pkg/errors"
)

type documentStore struct {
	mu        sync.RWMutex
	documents map[string]*core.Document
}

func NewDocumentStore() core.DocumentStore {
	return &documentStore{documents: make(map[string]*core.Document)}
}

func (s *documentStore) FindID(ctx context.Context, id string) (*core.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if val, ok := s.documents[id]; ok {
		return val.Clone(), nil
	}
	return nil, errors.Wrapf(core.ErrNotFound, "document with id %s", id)
}

func (s *documentStore) FindHash(ctx context.Context, hash string) ([]*core.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found []*core.Document
	for _, document := range s.documents {
		if document.DataHash == hash {
			found = append(found, document.Clone())
		}
	}
	sort.Slice(found, func(i, j int) bool {
		return found[i].Creation.Before(found[j].Creation)
	})
	return found, nil
}

func (s *documentStore) Create(ctx context.Context, document *core.Document) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if document.ID == "" {
		document.ID = core.NewID()
	}
	if _, ok := s.documents[document.ID]; ok {
		return "", errors.Errorf("document with id %s already exists", document.ID)
	}
	if document.Creation.IsZero() {
		document.Creation = time.Now().UTC()
		document.Access = document.Creation
	}
	s.documents[document.ID] = document.Clone()
	return document.ID, nil
}

func (s *documentStore) UpdateHistory(ctx context.Context, id string, history core.History) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	document, ok := s.documents[id]
	if !ok {
		return errors.Wrapf(core.ErrNotFound, "document with id %s", id)
	}
	document.History = history.Clone()
	return nil
}

func (s *documentStore) RecordRead(ctx context.Context, id string, at time.Time) (*core.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	document, ok := s.documents[id]
	if !ok {
		return nil, errors.Wrapf(core.ErrNotFound, "document with id %s", id)
	}
	document.NumReads++
	if at.After(document.Access) {
		document.Access = at
	}
	return document.Clone(), nil
}

func (s *documentStore) DeleteTitle(ctx context.Context, title string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, document := range s.documents {
		if document.Title == title {
			delete(s.documents, id)
			n++
		}
	}
	return n, nil
}

func (s *documentStore) Ping(ctx context.Context) error {
	return nil
}

func (s *documentStore) Close() error {
	return nil
}
