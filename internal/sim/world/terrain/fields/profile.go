package fields

type Resource string

const (
	ResourceWood  Resource = "wood"
	ResourceFood  Resource = "food"
	ResourceStone Resource = "stone"
	ResourceIron  Resource = "iron"
	ResourceFish  Resource = "fish"
	ResourceWater Resource = "water"
)

// Resources maps a channel to its potential in [0,1].
type Resources map[Resource]float64

func (r Resources) Clone() Resources {
	out := make(Resources, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Profile is the static gameplay data attached to a biome.
type Profile struct {
	// MovementCost is a multiplier on traversal time; ocean needs a boat.
	MovementCost float64
	Resources    Resources
}

// profiles is the static table:
//
//	biome     move  resources
//	ocean     3.0   fish .6
//	coast     1.2   fish .5 food .3
//	plains    1.0   food .7 wood .2
//	forest    1.5   wood .8 food .4
//	desert    1.3   stone .3
//	tundra    1.4   food .2 stone .3
//	snow      2.0   stone .2
//	mountain  2.5   stone .9 iron .5
//	river     2.0   water 1 food .5 fish .4
var profiles = [BiomeCount]Profile{
	BiomeOcean:    {MovementCost: 3.0, Resources: Resources{ResourceFish: 0.6}},
	BiomeCoast:    {MovementCost: 1.2, Resources: Resources{ResourceFish: 0.5, ResourceFood: 0.3}},
	BiomePlains:   {MovementCost: 1.0, Resources: Resources{ResourceFood: 0.7, ResourceWood: 0.2}},
	BiomeForest:   {MovementCost: 1.5, Resources: Resources{ResourceWood: 0.8, ResourceFood: 0.4}},
	BiomeDesert:   {MovementCost: 1.3, Resources: Resources{ResourceStone: 0.3}},
	BiomeTundra:   {MovementCost: 1.4, Resources: Resources{ResourceFood: 0.2, ResourceStone: 0.3}},
	BiomeSnow:     {MovementCost: 2.0, Resources: Resources{ResourceStone: 0.2}},
	BiomeMountain: {MovementCost: 2.5, Resources: Resources{ResourceStone: 0.9, ResourceIron: 0.5}},
	BiomeRiver:    {MovementCost: 2.0, Resources: Resources{ResourceWater: 1.0, ResourceFood: 0.5, ResourceFish: 0.4}},
}

// ProfileOf returns a copy of the biome's profile; unknown biomes get the plains profile.
func ProfileOf(b Biome) Profile {
	if !b.Valid() {
		b = BiomePlains
	}
	p := profiles[b]
	p.Resources = p.Resources.Clone()
	return p
}
