package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Loader handles loading and validating an Inventory from a file.
type Loader struct {
	filePath string
}

// NewLoader creates a loader for the given inventory file path.
func NewLoader(filePath string) *Loader {
	return &Loader{filePath: filePath}
}

// Load reads the inventory file, unmarshals it, and performs structural
// validation. Defaulting happens at Lookup time, not here.
func (l *Loader) Load() (*Inventory, error) {
	if l.filePath == "" {
		return nil, fmt.Errorf("inventory file path is empty")
	}
	content, err := os.ReadFile(l.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read inventory file '%s': %w", l.filePath, err)
	}
	if len(content) == 0 {
		return nil, fmt.Errorf("inventory file '%s' is empty", l.filePath)
	}

	var inv Inventory
	if err := yaml.Unmarshal(content, &inv); err != nil {
		return nil, fmt.Errorf("failed to unmarshal inventory YAML from '%s': %w", l.filePath, err)
	}

	if inv.Kind != "" && inv.Kind != "Inventory" {
		return nil, fmt.Errorf("inventory validation failed: kind must be 'Inventory' in '%s', got '%s'", l.filePath, inv.Kind)
	}
	for i, h := range inv.Hosts {
		if h.Name == "" && h.Address == "" {
			return nil, fmt.Errorf("inventory validation failed: hosts[%d] has neither name nor address in '%s'", i, l.filePath)
		}
	}
	return &inv, nil
}
