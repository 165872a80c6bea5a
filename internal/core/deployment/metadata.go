package deployment

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FunctionMetadata is the per-function sizing read from its metadata file.
// MemorySize is preferred over Memory when both are present.
type FunctionMetadata struct {
	Timeout    int32  `json:"timeout" yaml:"timeout"`
	MemorySize *int32 `json:"memorySize,omitempty" yaml:"memorySize,omitempty"`
	Memory     *int32 `json:"memory,omitempty" yaml:"memory,omitempty"`
}

// EffectiveMemorySize returns MemorySize when set and non-zero, else Memory,
// else 0.
func (m FunctionMetadata) EffectiveMemorySize() int32 {
	if m.MemorySize != nil && *m.MemorySize != 0 {
		return *m.MemorySize
	}
	if m.Memory != nil {
		return *m.Memory
	}
	return 0
}

// Validate checks the required fields.
func (m FunctionMetadata) Validate() error {
	if m.Timeout <= 0 {
		return ErrMissingTimeout
	}
	if m.EffectiveMemorySize() <= 0 {
		return ErrMissingMemory
	}
	return nil
}

// ParseFunctionMetadata decodes metadata from data. Files ending in .yaml or
// .yml are decoded as YAML, anything else as JSON.
func ParseFunctionMetadata(path string, data []byte) (FunctionMetadata, error) {
	var meta FunctionMetadata

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &meta); err != nil {
			return FunctionMetadata{}, fmt.Errorf("parse yaml: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &meta); err != nil {
			return FunctionMetadata{}, fmt.Errorf("parse json: %w", err)
		}
	}

	if err := meta.Validate(); err != nil {
		return FunctionMetadata{}, err
	}
	return meta, nil
}
