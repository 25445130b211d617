// ABOUTME: Loads workflow definitions from YAML files.
// ABOUTME: Parses per-step timeout strings the same way the config package does.

package workflow

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadDefinition reads one workflow definition from a YAML file and
// parses its step timeout strings.
func LoadDefinition(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading workflow file: %w", err)
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parsing workflow file %s: %w", path, err)
	}

	for i := range def.Steps {
		raw := def.Steps[i].TimeoutRaw
		if raw == "" {
			continue
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing timeout for step %q: %w", def.Steps[i].Name, err)
		}
		def.Steps[i].Timeout = d
	}

	return &def, nil
}
