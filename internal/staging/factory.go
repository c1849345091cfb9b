package staging

import (
	"fmt"

	"drive-go/internal/config"
	"drive-go/internal/drive"
)

// DefaultMaxSize is the default maximum staging area size (256MB).
const DefaultMaxSize int64 = 256 * 1024 * 1024

// NewStagingAreaFromConfig creates a StagingArea implementation based on the config type.
func NewStagingAreaFromConfig(cfg config.StagingConfig, ids drive.IDGenerator) (drive.StagingArea, error) {
	maxSize := cfg.MaxSize
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}

	switch cfg.Type {
	case "memory":
		return NewMemoryStagingArea(ids, maxSize), nil
	case "filesystem", "":
		if cfg.StagingDir == "" {
			return nil, fmt.Errorf("filesystem staging area requires staging_dir to be set")
		}
		return NewFileSystemStagingArea(cfg.StagingDir, ids, maxSize)
	default:
		return nil, fmt.Errorf("unknown staging area type: %s", cfg.Type)
	}
}
