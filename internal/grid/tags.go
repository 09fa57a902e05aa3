package grid

// Terrain is the surface type of a cell as reported by sensors and peers.
type Terrain string

const (
	TerrainNone   Terrain = "NONE"
	TerrainRock   Terrain = "ROCK"
	TerrainSoil   Terrain = "SOIL"
	TerrainGravel Terrain = "GRAVEL"
	TerrainSand   Terrain = "SAND"
)

// Impassable reports whether a rover can never enter a cell of this terrain.
func (t Terrain) Impassable() bool {
	return t == TerrainNone || t == TerrainRock
}

// ParseTerrain returns the terrain for a wire tag.
func ParseTerrain(s string) (Terrain, bool) {
	switch t := Terrain(s); t {
	case TerrainNone, TerrainRock, TerrainSoil, TerrainGravel, TerrainSand:
		return t, true
	}
	return "", false
}

// Science is the kind of collectable sample found on a cell.
type Science string

const (
	ScienceNone        Science = "NONE"
	ScienceRadioactive Science = "RADIOACTIVE"
	ScienceOrganic     Science = "ORGANIC"
	ScienceMineral     Science = "MINERAL"
	ScienceCrystal     Science = "CRYSTAL"
)

// ParseScience returns the science for a wire tag.
func ParseScience(s string) (Science, bool) {
	switch sc := Science(s); sc {
	case ScienceNone, ScienceRadioactive, ScienceOrganic, ScienceMineral, ScienceCrystal:
		return sc, true
	}
	return "", false
}
