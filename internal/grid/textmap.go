package grid

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Text map legend. Science glyphs sit on soil.
//
//	.  SOIL      #  ROCK     g  GRAVEL   s  SAND    x  NONE
//	C  CRYSTAL   M  MINERAL  O  ORGANIC  A  RADIOACTIVE
var glyphs = map[rune]struct {
	terrain Terrain
	science Science
}{
	'.': {TerrainSoil, ScienceNone},
	'#': {TerrainRock, ScienceNone},
	'g': {TerrainGravel, ScienceNone},
	's': {TerrainSand, ScienceNone},
	'x': {TerrainNone, ScienceNone},
	'C': {TerrainSoil, ScienceCrystal},
	'M': {TerrainSoil, ScienceMineral},
	'O': {TerrainSoil, ScienceOrganic},
	'A': {TerrainSoil, ScienceRadioactive},
}

// LoadTextMap parses a fully known world from the text legend above. Blank
// lines and lines starting with ';' are skipped. Short rows are padded with
// NONE. Impassable terrain is marked blocked.
func LoadTextMap(r io.Reader) (*World, error) {
	var rows []string
	width := 0
	scan := bufio.NewScanner(r)
	for scan.Scan() {
		line := strings.TrimRight(scan.Text(), "\r")
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}
		rows = append(rows, line)
		if n := len([]rune(line)); n > width {
			width = n
		}
	}
	if err := scan.Err(); err != nil {
		return nil, fmt.Errorf("failed to read map: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("map is empty")
	}

	w := NewWorld(width, len(rows))
	for y, row := range rows {
		runes := []rune(row)
		for x := 0; x < width; x++ {
			ch := 'x'
			if x < len(runes) {
				ch = runes[x]
			}
			g, ok := glyphs[ch]
			if !ok {
				return nil, fmt.Errorf("map row %d col %d: unknown glyph %q", y, x, ch)
			}
			cell := w.CellAt(x, y)
			cell.SetTile(g.terrain, g.science)
			cell.SetBlocked(g.terrain.Impassable())
		}
	}
	return w, nil
}

// Observe returns what a sensor centred on c with the given radius would see.
// Unknown cells read as NONE terrain.
func (w *World) Observe(c Coord, radius int) []Observation {
	var out []Observation
	for y := c.Y - radius; y <= c.Y+radius; y++ {
		for x := c.X - radius; x <= c.X+radius; x++ {
			cell := w.CellAt(x, y)
			if cell == nil {
				continue
			}
			o := Observation{Coord: cell.Coord, Terrain: TerrainNone, Science: ScienceNone}
			if cell.known {
				o.Terrain, o.Science = cell.Terrain, cell.Science
			}
			out = append(out, o)
		}
	}
	return out
}
