package config

// KnowledgeConfig configures the embedded knowledge store.
type KnowledgeConfig struct {
	Driver     string  `yaml:"driver"` // sqlite (pure Go) or sqlite3 (cgo)
	Path       string  `yaml:"path"`
	Collection string  `yaml:"collection"`
	Limit      int     `yaml:"limit"`
	Alpha      float64 `yaml:"alpha"`
	Timeout    string  `yaml:"timeout"`
}
