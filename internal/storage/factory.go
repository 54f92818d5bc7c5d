package storage

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/openmotion/omlt/internal/config"
	gormstorage "github.com/openmotion/omlt/internal/storage/gorm"
	"github.com/openmotion/omlt/internal/storage/memory"
)

// NewBackend creates a storage backend based on configuration
func NewBackend(cfg config.StorageConfig, log zerolog.Logger) (Backend, error) {
	switch cfg.Type {
	case "gorm":
		return gormstorage.New(cfg.Gorm, log), nil
	case "memory":
		return memory.New(cfg.Memory), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
