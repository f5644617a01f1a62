package aws

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sort"
	"strings"
	"time"

	"epserver/core"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	documentPrefix = "documents/"
	hashPrefix     = "hashes/"
)

type (
	objectAPI interface {
		GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
		PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
		DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
		HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
		ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	}

	object struct {
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

	// documentStore keeps one JSON object per document and an empty marker object per
	// (hash, id) pair so hash lookups are a prefix listing. Updates are read-modify-write
	// without conditional puts.
	documentStore struct {
		s3Client objectAPI
		bucket   string // Name of the S3 bucket
	}
)

func NewDocumentStore(ctx context.Context, bucketName string) (core.DocumentStore, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "unable to load SDK config")
	}
	return &documentStore{
		s3Client: s3.NewFromConfig(cfg),
		bucket:   bucketName,
	}, nil
}

func documentKey(id string) string {
	return documentPrefix + id + ".json"
}

func hashKey(hash, id string) string {
	return hashPrefix + hash + "/" + id
}

func (s *documentStore) get(ctx context.Context, id string) (*core.Document, error) {
	resp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(documentKey(id)),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, errors.Wrapf(core.ErrNotFound, "document with id %s", id)
		}
		return nil, errors.Wrapf(err, "failed to get document with id %s", id)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read document data")
	}
	var o object
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, errors.Wrapf(err, "decode document %s", id)
	}
	return &core.Document{
		ID:         o.ID,
		Title:      o.Title,
		Data:       o.Data,
		DataHash:   o.DataHash,
		Creation:   o.Creation,
		CreationIP: o.CreationIP,
		Access:     o.Access,
		NumReads:   o.NumReads,
		History:    o.History.Clone(),
	}, nil
}

func (s *documentStore) put(ctx context.Context, d *core.Document) error {
	raw, err := json.Marshal(object{
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
	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(documentKey(d.ID)),
		Body:        bytes.NewReader(raw),
		ContentType: aws.String("application/json"),
	})
	return errors.Wrap(err, "failed to upload document")
}

// keys lists every object key under prefix.
func (s *documentStore) keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.s3Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "list %s", prefix)
		}
		for _, o := range page.Contents {
			keys = append(keys, aws.ToString(o.Key))
		}
	}
	return keys, nil
}

func (s *documentStore) FindID(ctx context.Context, id string) (*core.Document, error) {
	log := logrus.WithField("document_id", id)
	log.Debug("Retrieving document by ID")
	document, err := s.get(ctx, id)
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
	keys, err := s.keys(ctx, hashPrefix+hash+"/")
	if err != nil {
		return nil, err
	}
	var found []*core.Document
	for _, key := range keys {
		document, err := s.get(ctx, strings.TrimPrefix(key, hashPrefix+hash+"/"))
		if errors.Is(err, core.ErrNotFound) {
			// index marker left behind by a concurrent purge
			continue
		}
		if err != nil {
			return nil, err
		}
		found = append(found, document)
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
		"bucket":      s.bucket,
	})

	if err := s.put(ctx, document); err != nil {
		log.WithField("error", err).Error("Failed to create document")
		return "", err
	}
	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(hashKey(document.DataHash, document.ID)),
		Body:   bytes.NewReader(nil),
	})
	if err != nil {
		log.WithField("error", err).Error("Failed to index document hash")
		return "", errors.Wrap(err, "failed to index document hash")
	}
	log.Info("Document created successfully")
	return document.ID, nil
}

func (s *documentStore) UpdateHistory(ctx context.Context, id string, history core.History) error {
	document, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	document.History = history
	return s.put(ctx, document)
}

func (s *documentStore) RecordRead(ctx context.Context, id string, at time.Time) (*core.Document, error) {
	document, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	document.NumReads++
	if at.After(document.Access) {
		document.Access = at
	}
	if err := s.put(ctx, document); err != nil {
		return nil, err
	}
	return document, nil
}

func (s *documentStore) DeleteTitle(ctx context.Context, title string) (int64, error) {
	keys, err := s.keys(ctx, documentPrefix)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, key := range keys {
		id := strings.TrimSuffix(strings.TrimPrefix(key, documentPrefix), ".json")
		document, err := s.get(ctx, id)
		if errors.Is(err, core.ErrNotFound) {
			continue
		}
		if err != nil {
			return n, err
		}
		if document.Title != title {
			continue
		}
		for _, k := range []string{documentKey(id), hashKey(document.DataHash, id)} {
			if _, err := s.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(s.bucket),
				Key:    aws.String(k),
			}); err != nil {
				return n, errors.Wrapf(err, "delete %s", k)
			}
		}
		n++
	}
	return n, nil
}

func (s *documentStore) Ping(ctx context.Context) error {
	_, err := s.s3Client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	return errors.Wrapf(err, "head bucket %s", s.bucket)
}

func (s *documentStore) Close() error {
	return nil
}
