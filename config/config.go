package config

import (
	"strings"
	"time"

	"epserver/core"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	StorageDatabase   = "database"
	StorageMemory     = "memory"
	StorageFilesystem = "filesystem"
	StorageS3         = "s3"
)

var defaultAllowedOrigins = []string{
	"https://engineeringpaper.xyz",
	"https://www.engineeringpaper.xyz",
	"http://localhost:8788",
	"http://127.0.0.1:8788",
	"https://*.engineeringpaper.pages.dev",
}

type (
	Config struct {
		Server   ServerConfig
		Storage  StorageConfig
		Database DatabaseConfig
		Document DocumentConfig
		Log      LogConfig
	}

	ServerConfig struct {
		Port            string
		AllowedOrigins  []string
		ShutdownTimeout time.Duration
	}

	StorageConfig struct {
		Type             string
		LocalStoragePath string
		S3BucketName     string
	}

	DatabaseConfig struct {
		URL          string
		MaxIdleConns int
		MaxOpenConns int
		AutoMigrate  bool
	}

	DocumentConfig struct {
		SPAURL          string
		MaxDocumentSize int
		TestSheetTitle  string
	}

	LogConfig struct {
		Level  string
		Format string
	}
)

// Load reads an optional .env file and then the process environment.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// a missing .env is the normal production case
		_ = godotenv.Load(f)
	}

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "3002")
	v.SetDefault("CORS_ALLOWED_ORIGINS", strings.Join(defaultAllowedOrigins, ","))
	v.SetDefault("SHUTDOWN_TIMEOUT", "10s")
	v.SetDefault("STORAGE_TYPE", StorageDatabase)
	v.SetDefault("LOCAL_STORAGE_PATH", "./data")
	v.SetDefault("DATABASE_URL", "sqlite:///test.db")
	v.SetDefault("DB_MAX_IDLE_CONNS", 10)
	v.SetDefault("DB_MAX_OPEN_CONNS", 50)
	v.SetDefault("DB_AUTO_MIGRATE", true)
	v.SetDefault("SPA_URL", core.DefaultSPAURL)
	v.SetDefault("MAX_DOCUMENT_SIZE", core.DefaultMaxDocumentSize)
	v.SetDefault("TEST_SHEET_TITLE", core.DefaultTestTitle)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")

	cfg := &Config{
		Server: ServerConfig{
			Port:            v.GetString("PORT"),
			AllowedOrigins:  splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
			ShutdownTimeout: v.GetDuration("SHUTDOWN_TIMEOUT"),
		},
		Storage: StorageConfig{
			Type:             strings.ToLower(v.GetString("STORAGE_TYPE")),
			LocalStoragePath: v.GetString("LOCAL_STORAGE_PATH"),
			S3BucketName:     v.GetString("S3_BUCKET_NAME"),
		},
		Database: DatabaseConfig{
			URL:          v.GetString("DATABASE_URL"),
			MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
			MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
			AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
		},
		Document: DocumentConfig{
			SPAURL:          strings.TrimRight(v.GetString("SPA_URL"), "/"),
			MaxDocumentSize: v.GetInt("MAX_DOCUMENT_SIZE"),
			TestSheetTitle:  v.GetString("TEST_SHEET_TITLE"),
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: strings.ToLower(v.GetString("LOG_FORMAT")),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Storage.Type {
	case StorageDatabase, StorageMemory, StorageFilesystem:
	case StorageS3:
		if c.Storage.S3BucketName == "" {
			return errors.New("S3_BUCKET_NAME is required for s3 storage")
		}
	default:
		return errors.Errorf("unknown STORAGE_TYPE %q", c.Storage.Type)
	}
	if c.Document.MaxDocumentSize <= 0 {
		return errors.Errorf("MAX_DOCUMENT_SIZE must be positive, got %d", c.Document.MaxDocumentSize)
	}
	if c.Document.TestSheetTitle == "" {
		return errors.New("TEST_SHEET_TITLE must not be empty")
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return errors.Errorf("unknown LOG_FORMAT %q", c.Log.Format)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
