package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/plantmesh/plantmesh/core"
)

// File is the on-disk shape of the agent definition document.
type File struct {
	Agents []core.AgentSpec `yaml:"agents"`
}

// Load reads and validates agent definitions from a YAML file.
func Load(path string) ([]core.AgentSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read agent config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates agent definitions from YAML bytes.
func Parse(data []byte) ([]core.AgentSpec, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse agent config: %w", err)
	}

	seen := make(map[string]struct{}, len(f.Agents))
	for idx, agent := range f.Agents {
		if agent.ID == "" {
			return nil, fmt.Errorf("agent config: entry %d has no id", idx)
		}
		if _, dup := seen[agent.ID]; dup {
			return nil, fmt.Errorf("agent config: duplicate agent id %q", agent.ID)
		}
		seen[agent.ID] = struct{}{}
	}

	return f.Agents, nil
}
