package api

import "time"

type Config struct {
	HTTPAddr        string        `envconfig:"NUFFI_HTTP_ADDR" default:"0.0.0.0:8080"`
	DBDSN           string        `envconfig:"NUFFI_DB_DSN"`
	DBMaxConns      int32         `envconfig:"NUFFI_DB_MAX_CONNS" default:"10"`
	MetricsAddr     string        `envconfig:"NUFFI_METRICS_ADDR" default:"0.0.0.0:9090"`
	LogLevel        string        `envconfig:"NUFFI_LOG_LEVEL" default:"info"`
	ShutdownTimeout time.Duration `envconfig:"NUFFI_SHUTDOWN_TIMEOUT" default:"30s"`
	CatalogDir      string        `envconfig:"NUFFI_CATALOG_DIR"`
	TemplatesDir    string        `envconfig:"NUFFI_TEMPLATES_DIR"`
	// ExecutorAddrs empty means items are installed in-process.
	ExecutorAddrs []string      `envconfig:"NUFFI_EXECUTOR_ADDRS"`
	Platform      string        `envconfig:"NUFFI_PLATFORM"`
	RunTimeout    time.Duration `envconfig:"NUFFI_RUN_TIMEOUT" default:"30m"`
	ItemTimeout   time.Duration `envconfig:"NUFFI_ITEM_TIMEOUT" default:"10m"`
}
