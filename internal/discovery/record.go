// Package discovery exchanges points of interest with peer rovers. Records
// travel as one text line each: TERRAIN SCIENCE X Y.
package discovery

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/banshee-data/rovernav/internal/grid"
)

// ErrMalformed is returned by Parse for lines that are not a valid record.
var ErrMalformed = errors.New("discovery: malformed record")

// Record is one reported cell.
type Record struct {
	Terrain grid.Terrain
	Science grid.Science
	X       int
	Y       int
}

// Coord returns the record's position.
func (r Record) Coord() grid.Coord { return grid.Coord{X: r.X, Y: r.Y} }

// String renders the canonical wire form without a trailing newline.
func (r Record) String() string {
	return fmt.Sprintf("%s %s %d %d", r.Terrain, r.Science, r.X, r.Y)
}

// FromCell builds the record describing a known cell.
func FromCell(c *grid.Cell) Record {
	return Record{Terrain: c.Terrain, Science: c.Science, X: c.X, Y: c.Y}
}

// Parse reads one wire line. Tokens may be separated by any run of
// whitespace; anything other than exactly four valid tokens is ErrMalformed.
func Parse(line string) (Record, error) {
	fields := strings.Fields(line)
	if len(fields) != 4 {
		return Record{}, fmt.Errorf("%w: want 4 fields, got %d in %q", ErrMalformed, len(fields), line)
	}

	terrain, ok := grid.ParseTerrain(fields[0])
	if !ok {
		return Record{}, fmt.Errorf("%w: unknown terrain %q", ErrMalformed, fields[0])
	}
	science, ok := grid.ParseScience(fields[1])
	if !ok {
		return Record{}, fmt.Errorf("%w: unknown science %q", ErrMalformed, fields[1])
	}
	x, err := strconv.Atoi(fields[2])
	if err != nil {
		return Record{}, fmt.Errorf("%w: x: %v", ErrMalformed, err)
	}
	y, err := strconv.Atoi(fields[3])
	if err != nil {
		return Record{}, fmt.Errorf("%w: y: %v", ErrMalformed, err)
	}

	return Record{Terrain: terrain, Science: science, X: x, Y: y}, nil
}
