package tuning

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadShippedConfigMatchesDefaults(t *testing.T) {
	got, err := Load(filepath.Join("..", "..", "..", "configs", "terrain.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != Defaults() {
		t.Fatalf("shipped config drifted from defaults:\n got %+v\nwant %+v", got, Defaults())
	}
}

func TestLoadEmptyPath(t *testing.T) {
	got, err := Load("  ")
	if err != nil || got != Defaults() {
		t.Fatalf("empty path: %+v %v", got, err)
	}
}

func TestParsePartialOverride(t *testing.T) {
	got, err := Parse([]byte("world_seed: alpha\nhydrology:\n  source_acceptance: 0.9\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.WorldSeed != "alpha" || got.Hydrology.SourceAcceptance != 0.9 {
		t.Fatalf("override not applied: %+v", got)
	}
	def := Defaults()
	if got.WorldSize != def.WorldSize || got.Hydrology.MaxTraceSteps != def.Hydrology.MaxTraceSteps {
		t.Fatalf("defaults lost: %+v", got)
	}
	cfg := got.TerrainConfig()
	if cfg.Seed != "alpha" || cfg.CacheSize != def.ChunkCacheSize || cfg.Hydrology != got.Hydrology {
		t.Fatalf("terrain config: %+v", cfg)
	}
}

func TestParseRejects(t *testing.T) {
	cases := map[string]string{
		"unknown key":       "world_seed: a\nworld_sise: 10\n",
		"wrong type":        "world_size: big\n",
		"negative size":     "world_size: -4\n",
		"acceptance > 1":    "hydrology:\n  lake_acceptance: 2\n",
		"unknown limit key": "limits:\n  max_cells: 3\n",
		"empty seed":        "world_seed: \"\"\n",
		"bad yaml":          "world_seed: [\n",
	}
	for name, doc := range cases {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		} else if !strings.HasPrefix(err.Error(), "terrain.yaml: ") {
			t.Fatalf("%s: error not wrapped with file name: %v", name, err)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}
