package core

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrNotFound          = errors.New("document not found")
	ErrIntegrityMismatch = errors.New("document digest mismatch")
	ErrPayloadTooLarge   = errors.New("document too large")
	ErrInvalidRequest    = errors.New("invalid request")
)

type (
	// HistoryEntry describes one saved revision: url, hash (the document id) and creation time.
	HistoryEntry map[string]string

	History []HistoryEntry

	Document struct {
		ID         string
		Title      string
		Data       string
		DataHash   string
		Creation   time.Time
		CreationIP string
		Access     time.Time
		NumReads   int64
		History    History
	}

	DocumentStore interface {
		FindID(ctx context.Context, id string) (*Document, error)
		// FindHash returns every document stored under hash, oldest first.
		FindHash(ctx context.Context, hash string) ([]*Document, error)
		Create(ctx context.Context, document *Document) (string, error)
		UpdateHistory(ctx context.Context, id string, history History) error
		// RecordRead increments num_reads and sets access, returning the updated document.
		RecordRead(ctx context.Context, id string, at time.Time) (*Document, error)
		DeleteTitle(ctx context.Context, title string) (int64, error)
		Ping(ctx context.Context) error
		Close() error
	}
)

const (
	HistoryURL      = "url"
	HistoryHash     = "hash"
	HistoryCreation = "creation"
)

// Head returns the most recent history entry, or nil for an empty history.
func (h History) Head() HistoryEntry {
	if len(h) == 0 {
		return nil
	}
	return h[0]
}

// Prepend returns a new history with entry in front; h is left untouched.
func (h History) Prepend(entry HistoryEntry) History {
	out := make(History, 0, len(h)+1)
	out = append(out, entry)
	return append(out, h...)
}

// Clone deep-copies the history so stores never share maps with callers.
func (h History) Clone() History {
	if h == nil {
		return History{}
	}
	out := make(History, len(h))
	for i, entry := range h {
		c := make(HistoryEntry, len(entry))
		for k, v := range entry {
			c[k] = v
		}
		out[i] = c
	}
	return out
}

func (d *Document) Clone() *Document {
	c := *d
	c.History = d.History.Clone()
	return &c
}
