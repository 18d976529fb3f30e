package config

// SearchConfig configures the web search connector.
type SearchConfig struct {
	Provider string `yaml:"provider"` // brightdata, duckduckgo, news

	BrightDataEndpoint string `yaml:"brightdata_endpoint"`
	BrightDataToken    string `yaml:"brightdata_token"`
	BrightDataZone     string `yaml:"brightdata_zone"`

	// Country code passed to the search engine (gl)
	Country string `yaml:"country"`
	Timeout string `yaml:"timeout"`
}

// FetchConfig configures event page retrieval.
type FetchConfig struct {
	// auto tries the unlocker (when a token exists), then direct HTTP, then the browser
	Mode         string `yaml:"mode"`
	UnlockerZone string `yaml:"unlocker_zone"`

	Headless    bool   `yaml:"headless"`
	DebuggerURL string `yaml:"debugger_url"` // attach to a running Chrome instead of launching one
	NavTimeout  string `yaml:"nav_timeout"`

	Timeout         string `yaml:"timeout"`
	CacheTTL        string `yaml:"cache_ttl"`
	MaxContentChars int    `yaml:"max_content_chars"`
}
