package filesystem

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"epserver/core"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const fileExt = ".json"

type (
	record struct {
		ID         string       `json:"id"`
		Title      string       `json:"title"`
		Data       string       `json:"data"`
		DataHash   string       `json:"data_hash"`
		Creation   time.Time    `json:"creation"`
		CreationIP string       `json:"creation_ip"`
		Access     time.Time    `json:"access"`
		NumReads   int64        `json:"num_reads"`
		History    core.History `json:"history"`
	}

	documentStore struct {
		mu       sync.RWMutex
		basePath string // Directory where documents are stored.
	}
)

func NewDocumentStore(basePath string) (core.DocumentStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create base directory")
	}
	return &documentStore{basePath: basePath}, nil
}

func (s *documentStore) path(id string) string {
	return filepath.Join(s.basePath, id+fileExt)
}

func (s *documentStore) read(id string) (*core.Document, error) {
	// ids never contain separators; anything else cannot name a stored document
	if id == "" || strings.ContainsAny(id, `/\.`) {
		return nil, errors.Wrapf(core.ErrNotFound, "document with id %s", id)
	}
	raw, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(core.ErrNotFound, "document with id %s", id)
		}
		return nil, errors.Wrapf(err, "read document %s", id)
	}
	var r record
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, errors.Wrapf(err, "decode document %s", id)
	}
	return &core.Document{
		ID:         r.ID,
		Title:      r.Title,
		Data:       r.Data,
		DataHash:   r.DataHash,
		Creation:   r.Creation,
		CreationIP: r.CreationIP,
		Access:     r.Access,
		NumReads:   r.NumReads,
		History:    r.History.Clone(),
	}, nil
}

// write replaces the document file through a rename so readers never see a partial file.
func (s *documentStore) write(d *core.Document) error {
	raw, err := json.Marshal(record{
		ID:         d.ID,
		Title:      d.Title,
		Data:       d.Data,
		DataHash:   d.DataHash,
		Creation:   d.Creation,
		CreationIP: d.CreationIP,
		Access:     d.Access,
		NumReads:   d.NumReads,
		History:    d.History.Clone(),
	})
	if err != nil {
		return errors.Wrapf(err, "encode document %s", d.ID)
	}
	tmp, err := os.CreateTemp(s.basePath, d.ID+".tmp-*")
	if err != nil {
		return errors.Wrapf(err, "write document %s", d.ID)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "write document %s", d.ID)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "write document %s", d.ID)
	}
	return errors.Wrapf(os.Rename(tmp.Name(), s.path(d.ID)), "write document %s", d.ID)
}

func (s *documentStore) all() ([]*core.Document, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, errors.Wrap(err, "list documents")
	}
	var documents []*core.Document
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}
		document, err := s.read(strings.TrimSuffix(name, fileExt))
		if err != nil {
			return nil, err
		}
		documents = append(documents, document)
	}
	return documents, nil
}

func (s *documentStore) FindID(ctx context.Context, id string) (*core.Document, error) {
	log := logrus.WithField("document_id", id)
	log.WithField("file_path", s.path(id)).Debug("Retrieving document by ID")

	s.mu.RLock()
	defer s.mu.RUnlock()
	document, err := s.read(id)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			log.Warn("Document with specified ID not found")
		} else {
			log.WithField("error", err).Error("Failed to retrieve document")
		}
		return nil, err
	}
	return document, nil
}

func (s *documentStore) FindHash(ctx context.Context, hash string) ([]*core.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	documents, err := s.all()
	if err != nil {
		return nil, err
	}
	var found []*core.Document
	for _, document := range documents {
		if document.DataHash == hash {
			found = append(found, document)
		}
	}
	sort.Slice(found, func(i, j int) bool {
		return found[i].Creation.Before(found[j].Creation)
	})
	return found, nil
}

func (s *documentStore) Create(ctx context.Context, document *core.Document) (string, error) {
	if document.ID == "" {
		document.ID = core.NewID()
	}
	if document.Creation.IsZero() {
		document.Creation = time.Now().UTC()
		document.Access = document.Creation
	}
	log := logrus.WithFields(logrus.Fields{
		"document_id": document.ID,
		"file_path":   s.path(document.ID),
	})
	log.Debug("Creating new document")

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := os.Stat(s.path(document.ID)); err == nil {
		return "", errors.Errorf("document with id %s already exists", document.ID)
	}
	if err := s.write(document); err != nil {
		log.WithField("error", err).Error("Failed to create document")
		return "", err
	}

	log.Info("Document created successfully")
	return document.ID, nil
}

func (s *documentStore) UpdateHistory(ctx context.Context, id string, history core.History) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	document, err := s.read(id)
	if err != nil {
		return err
	}
	document.History = history
	return s.write(document)
}

func (s *documentStore) RecordRead(ctx context.Context, id string, at time.Time) (*core.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	document, err := s.read(id)
	if err != nil {
		return nil, err
	}
	document.NumReads++
	if at.After(document.Access) {
		document.Access = at
	}
	if err := s.write(document); err != nil {
		return nil, err
	}
	return document, nil
}

func (s *documentStore) DeleteTitle(ctx context.Context, title string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	documents, err := s.all()
	if err != nil {
		return 0, err
	}
	var n int64
	for _, document := range documents {
		if document.Title != title {
			continue
		}
		if err := os.Remove(s.path(document.ID)); err != nil {
			return n, errors.Wrapf(err, "delete document %s", document.ID)
		}
		n++
	}
	return n, nil
}

func (s *documentStore) Ping(ctx context.Context) error {
	_, err := os.Stat(s.basePath)
	return errors.Wrap(err, "stat storage directory")
}

func (s *documentStore) Close() error {
	return nil
}
