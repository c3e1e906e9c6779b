package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/KevinKickass/PumpFleet/internal/types"
	"gopkg.in/yaml.v3"
)

//go:embed seed/pumps.yaml
var defaultSeed []byte

type seedDocument struct {
	Pumps []types.Pump `json:"pumps"`
}

// SeedLoader reads pump seed collections from YAML and validates them
// before they are served.
type SeedLoader struct {
	validator *Validator
}

func NewSeedLoader() (*SeedLoader, error) {
	validator, err := NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create validator: %w", err)
	}
	return &SeedLoader{validator: validator}, nil
}

// LoadFile loads a seed file. An empty path selects the embedded seed.
func (l *SeedLoader) LoadFile(path string) ([]types.Pump, error) {
	if path == "" {
		return l.Parse(defaultSeed)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file %s: %w", path, err)
	}

	pumps, err := l.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("seed file %s: %w", path, err)
	}
	return pumps, nil
}

// Parse decodes a YAML seed document. The document is re-encoded as JSON so
// the schema sees the same shape the API serves.
func (l *SeedLoader) Parse(data []byte) ([]types.Pump, error) {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}

	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode seed: %w", err)
	}

	if err := l.validator.ValidateJSON(encoded); err != nil {
		return nil, err
	}

	var doc seedDocument
	if err := json.Unmarshal(encoded, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal seed: %w", err)
	}

	seen := make(map[string]struct{}, len(doc.Pumps))
	for i, p := range doc.Pumps {
		if _, dup := seen[p.ID]; dup {
			return nil, fmt.Errorf("duplicate pump id %q", p.ID)
		}
		seen[p.ID] = struct{}{}
		if p.UpdatedAt.Before(p.CreatedAt) {
			return nil, fmt.Errorf("pump %q: updated_at before created_at", p.ID)
		}
		if doc.Pumps[i].Pressure == nil {
			doc.Pumps[i].Pressure = []types.PressureReading{}
		}
	}

	return doc.Pumps, nil
}
