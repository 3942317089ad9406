package kurrentdb

import (
	"fmt"

	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/shared/config"
)

// ConnectionString returns the esdb:// connection string for EventStore client.
func ConnectionString(cfg config.KurrentDBConfig) string {
	var auth string
	if cfg.Username != "" && cfg.Password != "" {
		auth = fmt.Sprintf("%s:%s@", cfg.Username, cfg.Password)
	}

	var tls string
	if cfg.Insecure {
		tls = "?tls=false"
	}

	return fmt.Sprintf("esdb://%s%s:%d%s", auth, cfg.Host, cfg.Port, tls)
}
