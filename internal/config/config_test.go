package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SPORTFEEDS_CONFIG", "")
	t.Setenv("LISTEN_ADDR", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 10, cfg.Refresh.IntervalMinutes)
	assert.NotEmpty(t, cfg.UserAgent)
	require.NotEmpty(t, cfg.Sources)
	require.NoError(t, cfg.Validate())
}

func TestLoadAppliesSectionDefaults(t *testing.T) {
	t.Setenv("SPORTFEEDS_CONFIG", "")

	cfg, err := Load()
	require.NoError(t, err)

	for _, src := range cfg.Sources {
		for _, sec := range src.Sections {
			assert.Positive(t, sec.MaxPages, "%s/%s", src.Key, sec.Key)
			assert.Positive(t, sec.MaxArticles, "%s/%s", src.Key, sec.Key)
			assert.Positive(t, sec.RequestDelayMS, "%s/%s", src.Key, sec.Key)
		}
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SPORTFEEDS_CONFIG", "")
	t.Setenv("DATABASE_PATH", "/tmp/override.db")
	t.Setenv("LISTEN_ADDR", ":9999")
	t.Setenv("USER_AGENT", "TestBot/1.0")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/override.db", cfg.Database.Path)
	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, "TestBot/1.0", cfg.UserAgent)
}

func TestLoadMergesYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
logging:
  level: debug
refresh:
  intervalMinutes: 30
  maxArticles: 5
sources:
  - key: example
    name: Example Sports
    site: example.com
    baseUrl: https://example.com
    sections:
      - key: football
        name: Football
        startUrls:
          - https://example.com/football
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))
	t.Setenv("SPORTFEEDS_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 30, cfg.Refresh.IntervalMinutes)

	src, ok := cfg.Source("example")
	require.True(t, ok)
	require.Len(t, src.Sections, 1)
	// Unset section fields inherit the merged refresh defaults.
	assert.Equal(t, 5, src.Sections[0].MaxArticles)
	assert.Equal(t, 2, src.Sections[0].MaxPages)

	require.NoError(t, cfg.Validate())
}

func TestLoadFailsOnBadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte(":::not yaml"), 0o600))
	t.Setenv("SPORTFEEDS_CONFIG", path)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse")
}

func TestLoadFailsOnMissingConfigFile(t *testing.T) {
	t.Setenv("SPORTFEEDS_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() Config {
		return Config{
			Refresh: RefreshConfig{IntervalMinutes: 10},
			Sources: []SourceConfig{{
				Key:  "one",
				Site: "one.example.com",
				Sections: []SectionConfig{{
					Key:       "main",
					StartURLs: []string{"https://one.example.com/news"},
				}},
			}},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"zero interval", func(c *Config) { c.Refresh.IntervalMinutes = 0 }, "interval"},
		{"empty source key", func(c *Config) { c.Sources[0].Key = "" }, "empty key"},
		{"duplicate source key", func(c *Config) { c.Sources = append(c.Sources, c.Sources[0]) }, "duplicate"},
		{"missing site", func(c *Config) { c.Sources[0].Site = "" }, "site is required"},
		{"no sections", func(c *Config) { c.Sources[0].Sections = nil }, "at least one section"},
		{"bad link pattern", func(c *Config) { c.Sources[0].LinkPatterns = []string{"("} }, "invalid link pattern"},
		{"empty section key", func(c *Config) { c.Sources[0].Sections[0].Key = "" }, "section with empty key"},
		{"no start urls", func(c *Config) { c.Sources[0].Sections[0].StartURLs = nil }, "start URL"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestSourceAndSectionLookup(t *testing.T) {
	t.Parallel()

	cfg := Config{Sources: []SourceConfig{{
		Key:      "lance",
		Sections: []SectionConfig{{Key: "futebol"}},
	}}}

	src, ok := cfg.Source("lance")
	require.True(t, ok)

	_, ok = src.Section("futebol")
	assert.True(t, ok)
	_, ok = src.Section("missing")
	assert.False(t, ok)

	_, ok = cfg.Source("missing")
	assert.False(t, ok)
}
