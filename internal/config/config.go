package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"sportfeeds/internal/domain"
)

const (
	configPathEnv = "SPORTFEEDS_CONFIG"
	databaseEnv   = "DATABASE_PATH"
	listenEnv     = "LISTEN_ADDR"
	adminKeyEnv   = "ADMIN_KEY"
	userAgentEnv  = "USER_AGENT"

	defaultUserAgent = "Mozilla/5.0 (compatible; SportFeedsBot/1.0; +https://sportfeeds.example.org/)"

	// DefaultFeedLimit and MaxFeedLimit bound the number of items served per
	// feed request.
	DefaultFeedLimit = 30
	MaxFeedLimit     = 100
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging   LoggingConfig  `yaml:"logging"`
	Database  DatabaseConfig `yaml:"database"`
	Server    ServerConfig   `yaml:"server"`
	Refresh   RefreshConfig  `yaml:"refresh"`
	UserAgent string         `yaml:"userAgent"`
	Sources   []SourceConfig `yaml:"sources"`
}

// LoggingConfig controls the slog level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DatabaseConfig describes the SQLite database location.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig describes the HTTP serving surface.
type ServerConfig struct {
	Addr     string `yaml:"addr"`
	AdminKey string `yaml:"adminKey"`
}

// RefreshConfig defines scheduling and the per-section defaults applied when
// a section leaves a field unset.
type RefreshConfig struct {
	IntervalMinutes int `yaml:"intervalMinutes"`
	MaxPages        int `yaml:"maxPages"`
	MaxArticles     int `yaml:"maxArticles"`
	RequestDelayMS  int `yaml:"requestDelayMs"`
	SectionDelayMS  int `yaml:"sectionDelayMs"`
	RetentionDays   int `yaml:"retentionDays"`
}

// Retention is how long articles are kept after their last successful
// fetch; zero disables cleanup.
func (r RefreshConfig) Retention() time.Duration {
	return time.Duration(r.RetentionDays) * 24 * time.Hour
}

// Interval returns the scheduler interval.
func (r RefreshConfig) Interval() time.Duration {
	return time.Duration(r.IntervalMinutes) * time.Minute
}

// SectionDelay is the pause between sections within one refresh run.
func (r RefreshConfig) SectionDelay() time.Duration {
	return time.Duration(r.SectionDelayMS) * time.Millisecond
}

// SourceConfig describes one publisher family and how its listing pages link
// to articles.
type SourceConfig struct {
	Key      string `yaml:"key"`
	Name     string `yaml:"name"`
	Site     string `yaml:"site"`
	BaseURL  string `yaml:"baseUrl"`
	Language string `yaml:"language"`
	// Strategy names the registered link-extraction strategy; empty means
	// the selector-driven default.
	Strategy          string          `yaml:"strategy"`
	LinkSelectors     []string        `yaml:"linkSelectors"`
	LinkPatterns      []string        `yaml:"linkPatterns"`
	LinkExcludes      []string        `yaml:"linkExcludes"`
	NextPageSelectors []string        `yaml:"nextPageSelectors"`
	Sections          []SectionConfig `yaml:"sections"`
}

// Section looks up a section by key.
func (s SourceConfig) Section(key string) (SectionConfig, bool) {
	for _, sec := range s.Sections {
		if sec.Key == key {
			return sec, true
		}
	}
	return SectionConfig{}, false
}

// SectionConfig describes one logical feed of a source. Zero values for
// MaxPages, MaxArticles and RequestDelayMS fall back to the refresh defaults.
type SectionConfig struct {
	Key            string         `yaml:"key"`
	Name           string         `yaml:"name"`
	Description    string         `yaml:"description"`
	StartURLs      []string       `yaml:"startUrls"`
	MaxPages       int            `yaml:"maxPages"`
	MaxArticles    int            `yaml:"maxArticles"`
	RequestDelayMS int            `yaml:"requestDelayMs"`
	Filters        domain.Filters `yaml:"filters"`
}

// RequestDelay is the pause between article fetches within a section.
func (s SectionConfig) RequestDelay() time.Duration {
	return time.Duration(s.RequestDelayMS) * time.Millisecond
}

// Source looks up a source by key.
func (c Config) Source(key string) (SourceConfig, bool) {
	for _, src := range c.Sources {
		if src.Key == key {
			return src, true
		}
	}
	return SourceConfig{}, false
}

// Load reads YAML configuration (if present) and applies environment
// overrides. An optional .env file is honored first. A config file that is
// named but unreadable or unparsable is an error: silently scraping the
// built-in catalogue instead of the operator's would go unnoticed.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		var fileCfg Config
		if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg = mergeConfig(cfg, fileCfg)
	}

	cfg.applyEnvOverrides()
	cfg.applySectionDefaults()

	if len(cfg.Sources) == 0 {
		cfg.Sources = defaultConfig().Sources
	}

	return cfg, nil
}

// Validate fails fast on configuration errors, before the scheduler is armed.
func (c Config) Validate() error {
	if c.Refresh.IntervalMinutes < 1 {
		return fmt.Errorf("config: refresh interval must be at least 1 minute, got %d", c.Refresh.IntervalMinutes)
	}

	seen := map[string]bool{}
	for _, src := range c.Sources {
		if src.Key == "" {
			return fmt.Errorf("config: source with empty key")
		}
		if seen[src.Key] {
			return fmt.Errorf("config: duplicate source key %q", src.Key)
		}
		seen[src.Key] = true

		if src.Site == "" {
			return fmt.Errorf("config: source %s: site is required", src.Key)
		}
		if len(src.Sections) == 0 {
			return fmt.Errorf("config: source %s: at least one section is required", src.Key)
		}
		for _, pattern := range src.LinkPatterns {
			if _, err := regexp.Compile(pattern); err != nil {
				return fmt.Errorf("config: source %s: invalid link pattern %q: %w", src.Key, pattern, err)
			}
		}
		for _, sec := range src.Sections {
			if sec.Key == "" {
				return fmt.Errorf("config: source %s: section with empty key", src.Key)
			}
			if len(sec.StartURLs) == 0 {
				return fmt.Errorf("config: source %s/%s: at least one start URL is required", src.Key, sec.Key)
			}
		}
	}

	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseEnv); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv(listenEnv); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv(adminKeyEnv); v != "" {
		c.Server.AdminKey = v
	}
	if v := os.Getenv(userAgentEnv); v != "" {
		c.UserAgent = v
	}
}

// applySectionDefaults copies refresh defaults into sections that left the
// corresponding field unset, so the scraper never re-derives them.
func (c *Config) applySectionDefaults() {
	for si := range c.Sources {
		for gi := range c.Sources[si].Sections {
			sec := &c.Sources[si].Sections[gi]
			if sec.MaxPages <= 0 {
				sec.MaxPages = c.Refresh.MaxPages
			}
			if sec.MaxArticles <= 0 {
				sec.MaxArticles = c.Refresh.MaxArticles
			}
			if sec.RequestDelayMS <= 0 {
				sec.RequestDelayMS = c.Refresh.RequestDelayMS
			}
		}
	}
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging = override.Logging
	}
	if override.Database.Path != "" {
		base.Database = override.Database
	}
	if override.Server.Addr != "" {
		base.Server.Addr = override.Server.Addr
	}
	if override.Server.AdminKey != "" {
		base.Server.AdminKey = override.Server.AdminKey
	}

	if override.Refresh.IntervalMinutes > 0 {
		base.Refresh.IntervalMinutes = override.Refresh.IntervalMinutes
	}
	if override.Refresh.MaxPages > 0 {
		base.Refresh.MaxPages = override.Refresh.MaxPages
	}
	if override.Refresh.MaxArticles > 0 {
		base.Refresh.MaxArticles = override.Refresh.MaxArticles
	}
	if override.Refresh.RequestDelayMS > 0 {
		base.Refresh.RequestDelayMS = override.Refresh.RequestDelayMS
	}
	if override.Refresh.SectionDelayMS > 0 {
		base.Refresh.SectionDelayMS = override.Refresh.SectionDelayMS
	}
	if override.Refresh.RetentionDays > 0 {
		base.Refresh.RetentionDays = override.Refresh.RetentionDays
	}

	if override.UserAgent != "" {
		base.UserAgent = override.UserAgent
	}
	if len(override.Sources) > 0 {
		base.Sources = override.Sources
	}

	return base
}

func defaultConfig() Config {
	return Config{
		Logging:  LoggingConfig{Level: "info"},
		Database: DatabaseConfig{Path: "articles.db"},
		Server:   ServerConfig{Addr: ":8080"},
		Refresh: RefreshConfig{
			IntervalMinutes: 10,
			MaxPages:        2,
			MaxArticles:     15,
			RequestDelayMS:  500,
			SectionDelayMS:  2000,
			RetentionDays:   30,
		},
		UserAgent: defaultUserAgent,
		Sources: []SourceConfig{
			{
				Key:      "lance",
				Name:     "LANCE!",
				Site:     "lance.com.br",
				BaseURL:  "https://www.lance.com.br",
				Language: "pt-BR",
				LinkSelectors: []string{
					"div.item-noticia a",
					"a.d-block.chapeu-title-container",
					"h2.title a",
					"div.list-posts-item a",
				},
				LinkPatterns: []string{`lance\.com\.br/.+\.html?`},
				LinkExcludes: []string{"/galerias/", "/videos/"},
				Sections: []SectionConfig{
					{
						Key:         "futebol-nacional",
						Name:        "Futebol Nacional",
						Description: "Notícias do futebol brasileiro",
						StartURLs:   []string{"https://www.lance.com.br/mais-noticias"},
					},
				},
			},
			{
				Key:           "as_es",
				Name:          "AS España",
				Site:          "as.com",
				BaseURL:       "https://as.com",
				Language:      "es-ES",
				LinkSelectors: []string{"h2.s__tl a"},
				LinkExcludes:  []string{"/videos/", "/album/"},
				Sections: []SectionConfig{
					{
						Key:         "primera",
						Name:        "LaLiga EA Sports",
						Description: "Noticias de la primera división de España",
						StartURLs:   []string{"https://as.com/futbol/primera/"},
					},
				},
			},
			{
				Key:           "marca",
				Name:          "Marca",
				Site:          "marca.com",
				BaseURL:       "https://www.marca.com",
				Language:      "es-ES",
				LinkSelectors: []string{"article.ui-story h2 a"},
				LinkPatterns:  []string{`marca\.com`},
				Sections: []SectionConfig{
					{
						Key:         "futbol",
						Name:        "Fútbol",
						Description: "Noticias de fútbol de Marca",
						StartURLs:   []string{"https://www.marca.com/futbol.html"},
					},
				},
			},
			{
				Key:           "theguardian",
				Name:          "The Guardian Football",
				Site:          "theguardian.com",
				BaseURL:       "https://www.theguardian.com",
				Language:      "en-GB",
				LinkSelectors: []string{`a[data-link-name="article"]`},
				LinkPatterns:  []string{`theguardian\.com/football/`},
				Sections: []SectionConfig{
					{
						Key:         "football",
						Name:        "Football",
						Description: "Football news, results, fixtures, blogs and comments",
						StartURLs:   []string{"https://www.theguardian.com/football"},
					},
				},
			},
		},
	}
}
