package injector

import (
	"github.com/zeusync/salvo/internal/config"
	"github.com/zeusync/salvo/internal/core/observability/log"
)

// ProvideLogger builds the process logger at the configured level.
func ProvideLogger(cfg config.LogConfig) *log.Logger {
	return log.New(log.ParseLevel(cfg.Level))
}
