package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SourcesFile is the optional YAML file describing which adapters run and
// which extra HTML boards to scrape.
type SourcesFile struct {
	Enabled     []string      `yaml:"enabled"`
	Skills      []string      `yaml:"skills"`
	EntryFilter []string      `yaml:"entry_filters"`
	Boards      []BoardConfig `yaml:"boards"`
}

// BoardConfig describes one HTML job board by CSS selectors.
type BoardConfig struct {
	Name        string `yaml:"name"`
	URL         string `yaml:"url"`
	Item        string `yaml:"item"`
	Title       string `yaml:"title"`
	Company     string `yaml:"company"`
	Location    string `yaml:"location"`
	Description string `yaml:"description"`
	Link        string `yaml:"link"`
}

// LoadSources reads and validates the YAML file at path. An empty path
// returns an empty SourcesFile.
func LoadSources(path string) (*SourcesFile, error) {
	sf := &SourcesFile{}
	if strings.TrimSpace(path) == "" {
		return sf, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}
	if err := yaml.Unmarshal(data, sf); err != nil {
		return nil, fmt.Errorf("parse sources file: %w", err)
	}

	for i, b := range sf.Boards {
		if b.Name == "" || b.URL == "" || b.Item == "" || b.Title == "" || b.Link == "" {
			return nil, fmt.Errorf("board #%d: name, url, item, title and link are required", i+1)
		}
	}
	return sf, nil
}

// Apply overlays non-empty file values onto cfg.
func (sf *SourcesFile) Apply(cfg *Config) {
	if len(sf.Skills) > 0 {
		cfg.Skills = sf.Skills
	}
}
