package fields

import (
	"encoding/json"
	"math"
	"testing"
)

func TestFieldsDeterministic(t *testing.T) {
	a := New("test-seed-12345", 0).Fields(100, 200)
	b := New("test-seed-12345", 0).Fields(100, 200)
	if a != b {
		t.Fatalf("fields differ across samplers: %+v vs %+v", a, b)
	}
	c := New("test-seed-12345", 0).Fields(100, 200)
	if a != c {
		t.Fatalf("fields differ on repeat: %+v vs %+v", a, c)
	}
}

func TestFieldsInUnitRange(t *testing.T) {
	s := New("range-seed", 1024)
	for y := -300; y < 1400; y += 37 {
		for x := -300; x < 1400; x += 41 {
			v := s.Fields(x, y)
			for name, f := range map[string]float64{
				"elevation":   v.Elevation,
				"temperature": v.Temperature,
				"moisture":    v.Moisture,
				"ruggedness":  v.Ruggedness,
			} {
				if f < 0 || f > 1 {
					t.Fatalf("%s out of range at (%d,%d): %v", name, x, y, f)
				}
			}
		}
	}
}

func TestContinentShape(t *testing.T) {
	s := New("shape", 2048)
	if e := s.Elevation(1024, 1024); e < SeaLevel {
		t.Fatalf("expected land at world center, got elevation %v", e)
	}
	ocean := 0
	total := 0
	for i := 0; i < 200; i++ {
		total++
		if s.Elevation(-20000+i*13, -20000-i*7) < SeaLevel {
			ocean++
		}
	}
	if ocean*2 < total {
		t.Fatalf("expected mostly ocean far from the continent, got %d/%d", ocean, total)
	}
}

func TestFieldsFromMatchesFields(t *testing.T) {
	s := New("memo", 0)
	memo := map[[2]int]float64{}
	elev := func(x, y int) float64 {
		k := [2]int{x, y}
		if v, ok := memo[k]; ok {
			return v
		}
		v := s.Elevation(x, y)
		memo[k] = v
		return v
	}
	for _, p := range [][2]int{{0, 0}, {512, 700}, {-40, 90}} {
		if got, want := s.FieldsFrom(elev, p[0], p[1]), s.Fields(p[0], p[1]); got != want {
			t.Fatalf("FieldsFrom differs at %v: %+v vs %+v", p, got, want)
		}
	}
}

func TestDrainageDropsOnlyDetail(t *testing.T) {
	s := New("drainage", 0)
	for i := 0; i < 200; i++ {
		x, y := 300+i*7, 1700-i*5
		e, d := s.Surface(x, y)
		if e != s.Elevation(x, y) || d != s.Drainage(x, y) {
			t.Fatalf("Surface disagrees with Elevation/Drainage at (%d,%d)", x, y)
		}
		if d < 0 || d > 1 || math.Abs(e-d) > 0.06+1e-12 {
			t.Fatalf("drainage %v too far from elevation %v at (%d,%d)", d, e, x, y)
		}
	}
}

// High ground must be able to satisfy the river source thresholds
// (elevation > 0.6, moisture > 0.55) on a real world.
func TestHighlandsAreWetEnoughForSources(t *testing.T) {
	s := New("test-seed-12345", 2048)
	high, wet := 0, 0
	for y := 0; y < 2048; y += 32 {
		for x := 0; x < 2048; x += 32 {
			v := s.Fields(x, y)
			if v.Elevation <= 0.6 {
				continue
			}
			high++
			if v.Moisture > 0.55 {
				wet++
			}
		}
	}
	if high == 0 {
		t.Fatalf("no high ground sampled")
	}
	if wet*4 < high {
		t.Fatalf("only %d of %d high cells are wet enough to be river sources", wet, high)
	}
}

func TestClassifyDecisionTree(t *testing.T) {
	cases := []struct {
		name string
		v    Values
		want Biome
	}{
		{"deep water", Values{Elevation: 0.1, Temperature: 0.9, Moisture: 0.9}, BiomeOcean},
		{"sea level is coast", Values{Elevation: SeaLevel, Temperature: 0.5, Moisture: 0.5}, BiomeCoast},
		{"coast edge is land", Values{Elevation: CoastLevel, Temperature: 0.5, Moisture: 0.4}, BiomePlains},
		{"rugged peak", Values{Elevation: 0.8, Temperature: 0.5, Moisture: 0.5, Ruggedness: 0.6}, BiomeMountain},
		{"cold rugged peak", Values{Elevation: 0.8, Temperature: 0.2, Moisture: 0.1, Ruggedness: 0.6}, BiomeSnow},
		{"smooth high plateau", Values{Elevation: 0.8, Temperature: 0.5, Moisture: 0.4, Ruggedness: 0.1}, BiomePlains},
		{"cold wet", Values{Elevation: 0.5, Temperature: 0.1, Moisture: 0.7}, BiomeSnow},
		{"cold dry", Values{Elevation: 0.5, Temperature: 0.1, Moisture: 0.3}, BiomeTundra},
		{"dry lowland", Values{Elevation: 0.45, Temperature: 0.7, Moisture: 0.1}, BiomeDesert},
		{"dry highland", Values{Elevation: 0.62, Temperature: 0.7, Moisture: 0.1}, BiomePlains},
		{"wet warm", Values{Elevation: 0.5, Temperature: 0.6, Moisture: 0.7}, BiomeForest},
		{"wet but cool", Values{Elevation: 0.5, Temperature: 0.32, Moisture: 0.7}, BiomePlains},
		{"moisture threshold is strict", Values{Elevation: 0.5, Temperature: 0.6, Moisture: 0.55}, BiomePlains},
	}
	for _, c := range cases {
		if got := Classify(c.v); got != c.want {
			t.Fatalf("%s: got %s want %s", c.name, got, c.want)
		}
	}
}

func TestClassifyNeverReturnsRiver(t *testing.T) {
	s := New("no-river", 512)
	for y := 0; y < 512; y += 17 {
		for x := 0; x < 512; x += 19 {
			if _, b := s.Sample(x, y); b == BiomeRiver || !b.Valid() {
				t.Fatalf("unexpected biome %s at (%d,%d)", b, x, y)
			}
		}
	}
}

func TestProfiles(t *testing.T) {
	if got := ProfileOf(BiomeOcean).MovementCost; got != 3 {
		t.Fatalf("ocean movement cost: got %v want 3", got)
	}
	if got := ProfileOf(BiomePlains).MovementCost; got != 1 {
		t.Fatalf("plains movement cost: got %v want 1", got)
	}
	forest := ProfileOf(BiomeForest)
	if forest.Resources[ResourceWood] != 0.8 || forest.Resources[ResourceFood] != 0.4 {
		t.Fatalf("unexpected forest resources: %+v", forest.Resources)
	}
	mountain := ProfileOf(BiomeMountain)
	if mountain.Resources[ResourceStone] != 0.9 || mountain.Resources[ResourceIron] != 0.5 {
		t.Fatalf("unexpected mountain resources: %+v", mountain.Resources)
	}
	// Profiles are copies.
	forest.Resources[ResourceWood] = 0
	if ProfileOf(BiomeForest).Resources[ResourceWood] != 0.8 {
		t.Fatalf("profile table was mutated through a copy")
	}
}

func TestBiomeTextRoundTrip(t *testing.T) {
	for b := Biome(0); b < BiomeCount; b++ {
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal %d: %v", b, err)
		}
		var got Biome
		if err := json.Unmarshal(raw, &got); err != nil {
			t.Fatalf("unmarshal %s: %v", raw, err)
		}
		if got != b {
			t.Fatalf("round trip: got %s want %s", got, b)
		}
	}
	if _, err := ParseBiome("swamp"); err == nil {
		t.Fatalf("expected unknown biome error")
	}
}
