package config

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr              string   `yaml:"addr"`
	MaxConcurrentRuns int      `yaml:"max_concurrent_runs"`
	CORSOrigins       []string `yaml:"cors_origins"`
	ShutdownTimeout   string   `yaml:"shutdown_timeout"`
}
