package tuning

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"civforge.ai/internal/sim/world/terrain"
	"civforge.ai/internal/sim/world/terrain/fields"
	"civforge.ai/internal/sim/world/terrain/hydro"
	"civforge.ai/internal/sim/world/terrain/store"
)

//go:embed terrain.schema.json
var schemaJSON string

type Tuning struct {
	WorldSeed      string         `yaml:"world_seed" json:"world_seed"`
	WorldSize      int            `yaml:"world_size" json:"world_size"`
	ChunkCacheSize int            `yaml:"chunk_cache_size" json:"chunk_cache_size"`
	Limits         terrain.Limits `yaml:"limits" json:"limits"`
	Hydrology      hydro.Params   `yaml:"hydrology" json:"hydrology"`
}

func Defaults() Tuning {
	return Tuning{
		WorldSeed:      "civforge",
		WorldSize:      fields.DefaultWorldSize,
		ChunkCacheSize: store.DefaultCapacity,
		Limits:         terrain.DefaultLimits(),
		Hydrology:      hydro.DefaultParams(),
	}
}

// Load reads a terrain.yaml. Keys missing from the file keep their defaults;
// an empty path returns the defaults.
func Load(path string) (Tuning, error) {
	if strings.TrimSpace(path) == "" {
		return Defaults(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Defaults(), err
	}
	return Parse(raw)
}

func Parse(raw []byte) (Tuning, error) {
	t := Defaults()
	if err := validateSchema(raw); err != nil {
		return t, fmt.Errorf("terrain.yaml: %w", err)
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("terrain.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("terrain.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if strings.TrimSpace(t.WorldSeed) == "" {
		return fmt.Errorf("world_seed must not be empty")
	}
	if t.WorldSize <= 0 {
		return fmt.Errorf("world_size must be > 0")
	}
	if t.ChunkCacheSize <= 0 {
		return fmt.Errorf("chunk_cache_size must be > 0")
	}
	if t.Limits.MaxChunksPerRequest <= 0 || t.Limits.MaxViewportCells <= 0 || t.Limits.MaxPayloadBytes <= 0 {
		return fmt.Errorf("limits must all be > 0")
	}
	return t.Hydrology.Validate()
}

// TerrainConfig maps the file onto a generator config.
func (t Tuning) TerrainConfig() terrain.Config {
	return terrain.Config{
		Seed:      t.WorldSeed,
		WorldSize: t.WorldSize,
		CacheSize: t.ChunkCacheSize,
		Limits:    t.Limits,
		Hydrology: t.Hydrology,
	}
}

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString("terrain.schema.json", schemaJSON)
	})
	return schema, schemaErr
}

// validateSchema checks the raw document, so unknown keys are caught before
// they are silently dropped by yaml.Unmarshal.
func validateSchema(raw []byte) error {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}
	if doc == nil {
		return nil
	}
	// Round-trip through JSON so the validator sees JSON-native types.
	js, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(js, &v); err != nil {
		return err
	}
	s, err := compiledSchema()
	if err != nil {
		return err
	}
	return s.Validate(v)
}
