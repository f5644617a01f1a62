package stores

import (
	"context"
	"strings"

	"epserver/config"
	"epserver/core"
	"epserver/stores/aws"
	"epserver/stores/database"
	"epserver/stores/filesystem"
	"epserver/stores/memory"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// GetStore opens the store selected by cfg. The caller owns it and must Close it.
func GetStore(ctx context.Context, cfg *config.Config) (core.DocumentStore, error) {
	var store core.DocumentStore
	var err error

	storageField := logrus.Fields{
		"storageType": cfg.Storage.Type,
	}

	switch cfg.Storage.Type {
	case config.StorageFilesystem:
		storageField["basePath"] = cfg.Storage.LocalStoragePath
		store, err = filesystem.NewDocumentStore(cfg.Storage.LocalStoragePath)
	case config.StorageS3:
		storageField["bucketName"] = cfg.Storage.S3BucketName
		store, err = aws.NewDocumentStore(ctx, cfg.Storage.S3BucketName)
	case config.StorageMemory:
		store = memory.NewDocumentStore()
		storageField["storageType"] = "in-memory"
	default:
		storageField["databaseScheme"] = scheme(cfg.Database.URL)
		store, err = openDatabase(ctx, cfg.Database)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "open %s storage", cfg.Storage.Type)
	}
	logrus.WithFields(storageField).Info("Use storage")
	return store, nil
}

// OpenDatabase opens the relational store without selecting on STORAGE_TYPE.
func OpenDatabase(cfg config.DatabaseConfig) (*database.DocumentStore, error) {
	return database.NewDocumentStore(cfg.URL, database.PoolOptions{
		MaxIdleConns: cfg.MaxIdleConns,
		MaxOpenConns: cfg.MaxOpenConns,
	})
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (core.DocumentStore, error) {
	store, err := OpenDatabase(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, err
		}
	}
	return store, nil
}

// scheme keeps credentials in the url out of the logs.
func scheme(databaseURL string) string {
	s, _, ok := strings.Cut(databaseURL, "://")
	if !ok {
		return ""
	}
	return s
}
