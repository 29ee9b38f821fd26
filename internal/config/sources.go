package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// PlatformSource describes one merchant platform the aggregator can query.
// Field mappings are JSONPath expressions applied to the platform's response.
type PlatformSource struct {
	Name      string        `yaml:"name"`
	SearchURL string        `yaml:"search_url"` // %s is replaced with the url-escaped query
	Hosts     []string      `yaml:"hosts"`      // product URL hosts that identify this platform
	Fields    FieldMappings `yaml:"fields"`
}

// FieldMappings locates product attributes inside a platform payload.
type FieldMappings struct {
	Items    string `yaml:"items"`
	Title    string `yaml:"title"`
	Price    string `yaml:"price"`
	Currency string `yaml:"currency"`
	URL      string `yaml:"url"`
	Image    string `yaml:"image"`
}

// SourcesConfig is the on-disk shape of the platform sources file.
type SourcesConfig struct {
	Sources []PlatformSource `yaml:"sources"`
}

// LoadSources loads platform source definitions from a YAML file. A missing
// path yields an empty configuration so the matching service can run with no
// platforms wired.
func LoadSources(path string) (*SourcesConfig, error) {
	if strings.TrimSpace(path) == "" {
		return &SourcesConfig{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read platform sources: %w", err)
	}

	var cfg SourcesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse platform sources: %w", err)
	}

	for i, src := range cfg.Sources {
		if src.Name == "" {
			return nil, fmt.Errorf("source %d: name is required", i)
		}
		if src.SearchURL == "" {
			return nil, fmt.Errorf("source %s: search_url is required", src.Name)
		}
	}

	return &cfg, nil
}

// SourceForHost returns the platform source whose hosts include the given
// hostname, if any.
func (c *SourcesConfig) SourceForHost(host string) (PlatformSource, bool) {
	host = strings.ToLower(strings.TrimPrefix(host, "www."))
	for _, src := range c.Sources {
		for _, h := range src.Hosts {
			if strings.ToLower(strings.TrimPrefix(h, "www.")) == host {
				return src, true
			}
		}
	}
	return PlatformSource{}, false
}

// SourceByName returns the platform source with the given name, if any.
func (c *SourcesConfig) SourceByName(name string) (PlatformSource, bool) {
	for _, src := range c.Sources {
		if strings.EqualFold(src.Name, name) {
			return src, true
		}
	}
	return PlatformSource{}, false
}
