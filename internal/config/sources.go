package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"feedsnap/internal/domain"
)

var ErrNoSources = errors.New("config: source list is empty")

// tomlSources is the TOML layout of a source list: one [[feed]] table per source.
type tomlSources struct {
	Feeds []domain.Source `toml:"feed"`
}

// LoadSources reads and validates the source list at path. Files ending in
// .toml are decoded as TOML, everything else as a JSON array of
// {"name", "url", "regex"} objects. An empty list is returned together with
// ErrNoSources.
func LoadSources(path string) ([]domain.Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}

	sources, err := DecodeSources(data, strings.EqualFold(filepath.Ext(path), ".toml"))
	if err != nil {
		return nil, fmt.Errorf("decode sources file %s: %w", path, err)
	}

	if err := ValidateSources(sources); err != nil {
		return nil, err
	}

	if len(sources) == 0 {
		return sources, ErrNoSources
	}
	return sources, nil
}

// DecodeSources parses a source list without validating it.
func DecodeSources(data []byte, isTOML bool) ([]domain.Source, error) {
	if isTOML {
		var doc tomlSources
		if err := toml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		return doc.Feeds, nil
	}

	var sources []domain.Source
	if err := json.Unmarshal(data, &sources); err != nil {
		return nil, err
	}
	return sources, nil
}
