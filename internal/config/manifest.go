package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// PluginManifest lists the additional (non-core) stages a worker's
// engine should register, standing in for the source's filesystem scan
// of the plugins directory (skipping dotfile-prefixed entries).
type PluginManifest struct {
	Enabled []string `yaml:"enabled"`
}

// IsEnabled reports whether name is listed, applying the same
// dot-prefix skip the source's scan_plugins used for directory names.
func (m *PluginManifest) IsEnabled(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	for _, n := range m.Enabled {
		if n == name {
			return true
		}
	}
	return false
}

// LoadPluginManifest reads the YAML plugin manifest. A missing file is
// not an error: it means no optional plugins are enabled.
func LoadPluginManifest(path string) (*PluginManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &PluginManifest{}, nil
		}
		return nil, fmt.Errorf("config: read plugin manifest %s: %w", path, err)
	}
	var m PluginManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("config: parse plugin manifest %s: %w", path, err)
	}
	return &m, nil
}
