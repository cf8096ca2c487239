package storage

import (
	"fmt"
	"strings"

	"github.com/timmy/slidewise/internal/config"
)

// NewStorage creates an ObjectStorage instance based on the configuration.
// Parameters:
//   - cfg: storage configuration including type, endpoint, credentials, and bucket.
// Returns:
//   - ObjectStorage: initialized storage client implementation.
//   - error: non-nil if the storage client cannot be created.
func NewStorage(cfg *config.StorageConfig) (ObjectStorage, error) {
	switch strings.ToLower(cfg.Type) {
	case "local":
		return NewLocalStorage(cfg.LocalDir, cfg.PublicURL)
	case "", string(StorageTypeS3), string(StorageTypeR2), string(StorageTypeS3Compatible):
		s3cfg := &S3Config{
			Type:      StorageType(strings.ToLower(cfg.Type)),
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			UseSSL:    cfg.UseSSL,
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			PublicURL: cfg.PublicURL,
		}
		// Auto-detect storage type if not specified
		if s3cfg.Type == "" {
			s3cfg.Type = detectStorageType(cfg.Endpoint)
		}
		return NewS3Storage(s3cfg)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// detectStorageType attempts to detect the storage type from the endpoint
func detectStorageType(endpoint string) StorageType {
	endpoint = strings.ToLower(endpoint)

	switch {
	case strings.Contains(endpoint, "r2.cloudflarestorage.com"):
		return StorageTypeR2
	case strings.Contains(endpoint, "amazonaws.com"):
		return StorageTypeS3
	default:
		return StorageTypeS3Compatible
	}
}
