package structure

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// HeuristicsVersion is the schema version this build understands.
const HeuristicsVersion = 1

//go:embed heuristics.yaml
var defaultHeuristicsYAML []byte

// ErrHeuristicsVersion is returned for heuristics files of an unknown schema version.
var ErrHeuristicsVersion = errors.New("unsupported heuristics version")

// Limits caps each priority bucket.
type Limits struct {
	Primary int `yaml:"primary"`
	Config  int `yaml:"config"`
	Other   int `yaml:"other"`
}

// Heuristics is the versioned table set driving structure analysis.
type Heuristics struct {
	Version          int      `yaml:"version"`
	IgnoredPaths     []string `yaml:"ignored_paths"`
	SourceDirs       []string `yaml:"source_dirs"`
	TestDirs         []string `yaml:"test_dirs"`
	ConfigFiles      []string `yaml:"config_files"`
	SourceExtensions []string `yaml:"source_extensions"`
	Limits           Limits   `yaml:"limits"`
}

// DefaultHeuristics returns the embedded tables.
func DefaultHeuristics() Heuristics {
	h, err := parseHeuristics(defaultHeuristicsYAML, Heuristics{})
	if err != nil {
		panic(fmt.Sprintf("embedded heuristics: %v", err))
	}
	return h
}

// LoadHeuristics returns the embedded defaults, overlaid with the YAML file at path
// when path is non-empty. Keys absent from the file keep their default values.
func LoadHeuristics(path string) (Heuristics, error) {
	defaults := DefaultHeuristics()
	if path == "" {
		return defaults, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Heuristics{}, fmt.Errorf("read heuristics: %w", err)
	}
	return parseHeuristics(raw, defaults)
}

func parseHeuristics(raw []byte, base Heuristics) (Heuristics, error) {
	h := base
	if err := yaml.Unmarshal(raw, &h); err != nil {
		return Heuristics{}, fmt.Errorf("parse heuristics: %w", err)
	}
	if h.Version != HeuristicsVersion {
		return Heuristics{}, fmt.Errorf("%w: %d", ErrHeuristicsVersion, h.Version)
	}
	if h.Limits.Primary < 0 || h.Limits.Config < 0 || h.Limits.Other < 0 {
		return Heuristics{}, errors.New("parse heuristics: limits must not be negative")
	}
	return h, nil
}
