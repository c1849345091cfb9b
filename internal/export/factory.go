package export

import (
	"context"
	"fmt"

	"drive-go/internal/config"
	"drive-go/internal/drive"
)

// NewSinkFromConfig creates an ExportSink implementation based on the config type.
func NewSinkFromConfig(ctx context.Context, cfg config.ExportConfig) (drive.ExportSink, error) {
	switch cfg.Type {
	case "memory":
		return NewMemorySink(cfg.Name), nil
	case "s3":
		return NewS3Sink(ctx, cfg)
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem export requires fs_root to be set")
		}
		return NewFileSystemSink(cfg.Name, cfg.FSRoot)
	default:
		return nil, fmt.Errorf("unknown export type: %s", cfg.Type)
	}
}
