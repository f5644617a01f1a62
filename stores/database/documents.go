package database

import (
	"context"
	"time"

	"epserver/core"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type (
	PoolOptions struct {
		MaxIdleConns int
		MaxOpenConns int
	}

	document struct {
		ID         string                           `gorm:"column:id;type:varchar(22);primaryKey"`
		Title      string                           `gorm:"column:title;size:1000;not null"`
		Data       string                           `gorm:"column:data;size:2000000;not null"`
		DataHash   string                           `gorm:"column:data_hash;size:128;not null;index"`
		Creation   time.Time                        `gorm:"column:creation;not null"`
		CreationIP string                           `gorm:"column:creation_ip;size:50;not null"`
		Access     time.Time                        `gorm:"column:access;not null"`
		NumReads   int64                            `gorm:"column:num_reads;not null"`
		History    datatypes.JSONType[core.History] `gorm:"column:history;not null"`
	}

	// DocumentStore keeps documents in the relational `documents` table.
	DocumentStore struct {
		db *gorm.DB
	}
)

func (document) TableName() string { return "documents" }

func (d *document) toCore() *core.Document {
	return &core.Document{
		ID:         d.ID,
		Title:      d.Title,
		Data:       d.Data,
		DataHash:   d.DataHash,
		Creation:   d.Creation,
		CreationIP: d.CreationIP,
		Access:     d.Access,
		NumReads:   d.NumReads,
		History:    d.History.Data().Clone(),
	}
}

// NewDocumentStore opens the connection pool for databaseURL. The pool lives until Close.
func NewDocumentStore(databaseURL string, pool PoolOptions) (*DocumentStore, error) {
	dial, isSQLite, err := dialector(databaseURL)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dial, &gorm.Config{
		Logger: logger.New(logrus.StandardLogger(), logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "database pool")
	}
	if isSQLite {
		// a single writer keeps sqlite free of lock errors and makes :memory: a single database
		sqlDB.SetMaxOpenConns(1)
	} else {
		if pool.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
		}
		if pool.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
		}
	}
	return &DocumentStore{db: db}, nil
}

// Migrate creates or updates the documents table.
func (s *DocumentStore) Migrate(ctx context.Context) error {
	return errors.Wrap(s.db.WithContext(ctx).AutoMigrate(&document{}), "migrate documents")
}

// DropAll drops the documents table and every row in it.
func (s *DocumentStore) DropAll(ctx context.Context) error {
	return errors.Wrap(s.db.WithContext(ctx).Migrator().DropTable(&document{}), "drop documents")
}

func (s *DocumentStore) FindID(ctx context.Context, id string) (*core.Document, error) {
	log := logrus.WithField("document_id", id)
	log.Debug("Retrieving document by ID")
	var row document
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn("Document with specified ID not found")
			return nil, errors.Wrapf(core.ErrNotFound, "document with id %s", id)
		}
		log.WithField("error", err).Error("Failed to retrieve document")
		return nil, errors.Wrapf(err, "find document %s", id)
	}
	return row.toCore(), nil
}

func (s *DocumentStore) FindHash(ctx context.Context, hash string) ([]*core.Document, error) {
	var rows []document
	err := s.db.WithContext(ctx).Where("data_hash = ?", hash).Order("creation").Find(&rows).Error
	if err != nil {
		logrus.WithField("error", err).Error("Failed to look up documents by hash")
		return nil, errors.Wrap(err, "find documents by hash")
	}
	found := make([]*core.Document, 0, len(rows))
	for i := range rows {
		found = append(found, rows[i].toCore())
	}
	return found, nil
}

func (s *DocumentStore) Create(ctx context.Context, d *core.Document) (string, error) {
	if d.ID == "" {
		d.ID = core.NewID()
	}
	if d.Creation.IsZero() {
		d.Creation = time.Now().UTC()
		d.Access = d.Creation
	}
	log := logrus.WithFields(logrus.Fields{
		"document_id": d.ID,
		"data_length": len(d.Data),
	})

	row := document{
		ID:         d.ID,
		Title:      d.Title,
		Data:       d.Data,
		DataHash:   d.DataHash,
		Creation:   d.Creation,
		CreationIP: d.CreationIP,
		Access:     d.Access,
		NumReads:   d.NumReads,
		History:    datatypes.NewJSONType(d.History.Clone()),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		log.WithField("error", err).Error("Failed to create document")
		return "", errors.Wrap(err, "create document")
	}
	log.Info("Document created successfully")
	return d.ID, nil
}

func (s *DocumentStore) UpdateHistory(ctx context.Context, id string, history core.History) error {
	res := s.db.WithContext(ctx).Model(&document{}).Where("id = ?", id).
		Update("history", datatypes.NewJSONType(history.Clone()))
	if res.Error != nil {
		return errors.Wrapf(res.Error, "update history of %s", id)
	}
	if res.RowsAffected == 0 {
		return errors.Wrapf(core.ErrNotFound, "document with id %s", id)
	}
	return nil
}

func (s *DocumentStore) RecordRead(ctx context.Context, id string, at time.Time) (*core.Document, error) {
	var row document
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&row).Error; err != nil {
			return err
		}
		// access never moves backwards, even when the clock does
		if row.Access.After(at) {
			at = row.Access
		}
		res := tx.Model(&document{}).Where("id = ?", id).Updates(map[string]any{
			"num_reads": gorm.Expr("num_reads + ?", 1),
			"access":    at,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Where("id = ?", id).First(&row).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logrus.WithField("document_id", id).Warn("Document with specified ID not found")
			return nil, errors.Wrapf(core.ErrNotFound, "document with id %s", id)
		}
		return nil, errors.Wrapf(err, "record read of %s", id)
	}
	return row.toCore(), nil
}

func (s *DocumentStore) DeleteTitle(ctx context.Context, title string) (int64, error) {
	res := s.db.WithContext(ctx).Where("title = ?", title).Delete(&document{})
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "delete documents by title")
	}
	return res.RowsAffected, nil
}

func (s *DocumentStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.Wrap(err, "database pool")
	}
	return errors.Wrap(sqlDB.PingContext(ctx), "ping database")
}

// Close drains the connection pool.
func (s *DocumentStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.Wrap(err, "database pool")
	}
	return sqlDB.Close()
}
