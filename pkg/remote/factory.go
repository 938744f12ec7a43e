package remote

import (
	"fmt"

	"photobackup/pkg/config"
	"photobackup/pkg/logger"
)

type ToolFactory struct{}

func NewToolFactory() *ToolFactory {
	return &ToolFactory{}
}

func (f *ToolFactory) CreateRcloneBackend(cfg *config.RemoteConfig, log *logger.Logger) (Tool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("remote configuration is required")
	}
	if cfg.Binary == "" || cfg.Name == "" {
		return nil, fmt.Errorf("remote binary and name are required")
	}

	return NewRcloneBackend(&RcloneConfig{
		Binary:     cfg.Binary,
		Remote:     cfg.Name,
		ExtraFlags: append([]string(nil), cfg.ExtraFlags...),
	}, log), nil
}
