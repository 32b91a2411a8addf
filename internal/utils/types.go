package utils

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DownloadEntry is one item of a batch file.
type DownloadEntry struct {
	OutputPath string `yaml:"op"`
	URL        string `yaml:"link"`
	At         string `yaml:"at,omitempty"`
}

// ReadBatchFile accepts either a bare list of entries or a map with a
// "downloads" key.
func ReadBatchFile(path string) ([]DownloadEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading batch file: %w", err)
	}
	var entries []DownloadEntry
	if err := yaml.Unmarshal(data, &entries); err == nil {
		return entries, nil
	}
	var wrapped struct {
		Downloads []DownloadEntry `yaml:"downloads"`
	}
	if err := yaml.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("error parsing batch file: %w", err)
	}
	return wrapped.Downloads, nil
}
