package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/quka-ai/kbcore/pkg/object-storage/local"
	"github.com/quka-ai/kbcore/pkg/object-storage/s3"
	"github.com/quka-ai/kbcore/pkg/types"
)

// FileStorage interface defines methods for file operations.
type FileStorage interface {
	SaveFile(ctx context.Context, key string, content []byte) error
	DownloadFile(ctx context.Context, key string) (*types.StoredObject, error)
	DeleteFile(ctx context.Context, key string) error
}

// SetupObjectStorage returns nil when no driver is configured.
func SetupObjectStorage(cfg ObjectStorageDriver) (FileStorage, error) {
	switch strings.ToLower(cfg.Driver) {
	case "":
		return nil, nil
	case "s3":
		if cfg.S3 == nil {
			return nil, fmt.Errorf("object_storage.s3 is required for the s3 driver")
		}
		cli, err := s3.NewS3Client(cfg.S3.Endpoint, cfg.S3.Region, cfg.S3.Bucket, cfg.S3.AccessKey, cfg.S3.SecretKey, s3.WithPathStyle(cfg.S3.UsePathStyle))
		if err != nil {
			return nil, err
		}
		return cli, nil
	case "local":
		if cfg.Local.Root == "" {
			return nil, fmt.Errorf("object_storage.local.root is required for the local driver")
		}
		return local.New(cfg.Local.Root), nil
	}
	return nil, fmt.Errorf("unknown object storage driver %q", cfg.Driver)
}
