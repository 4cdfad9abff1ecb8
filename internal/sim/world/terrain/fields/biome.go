package fields

import "fmt"

// Biome is the closed set of terrain classes. The numeric values are wire ids.
type Biome uint8

const (
	BiomeOcean Biome = iota
	BiomeCoast
	BiomePlains
	BiomeForest
	BiomeDesert
	BiomeTundra
	BiomeSnow
	BiomeMountain
	BiomeRiver

	BiomeCount = 9
)

const (
	SeaLevel   = 0.32
	CoastLevel = 0.36
)

var biomeNames = [BiomeCount]string{
	"ocean", "coast", "plains", "forest", "desert", "tundra", "snow", "mountain", "river",
}

func (b Biome) String() string {
	if b.Valid() {
		return biomeNames[b]
	}
	return fmt.Sprintf("biome(%d)", uint8(b))
}

func (b Biome) Valid() bool { return b < BiomeCount }

func ParseBiome(s string) (Biome, error) {
	for i, n := range biomeNames {
		if n == s {
			return Biome(i), nil
		}
	}
	return 0, fmt.Errorf("unknown biome %q", s)
}

func (b Biome) MarshalText() ([]byte, error) {
	if !b.Valid() {
		return nil, fmt.Errorf("invalid biome id %d", uint8(b))
	}
	return []byte(biomeNames[b]), nil
}

func (b *Biome) UnmarshalText(text []byte) error {
	v, err := ParseBiome(string(text))
	if err != nil {
		return err
	}
	*b = v
	return nil
}

// Classify maps field values onto a biome. Branches are evaluated top to bottom
// and the first match wins; every threshold is a strict inequality. Classify
// never yields BiomeRiver: rivers come from hydrology, not from the fields.
func Classify(v Values) Biome {
	e, t, m, r := v.Elevation, v.Temperature, v.Moisture, v.Ruggedness
	switch {
	case e < SeaLevel:
		return BiomeOcean
	case e < CoastLevel:
		return BiomeCoast
	case e > 0.7 && r > 0.35:
		if t < 0.3 {
			return BiomeSnow
		}
		return BiomeMountain
	case t < 0.3:
		if m > 0.5 {
			return BiomeSnow
		}
		return BiomeTundra
	case m < 0.25 && e < 0.6:
		return BiomeDesert
	case m > 0.55 && t > 0.35 && e < 0.65:
		return BiomeForest
	default:
		return BiomePlains
	}
}
