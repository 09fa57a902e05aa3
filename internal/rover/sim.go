package rover

import (
	"context"
	"errors"
	"fmt"

	"github.com/banshee-data/rovernav/internal/grid"
)

// ErrBlockedMove is returned by SimSensor.Move when the destination cannot be
// entered.
var ErrBlockedMove = errors.New("move blocked")

// SimSensor drives a rover over a fully known truth map. It implements
// Sensor, Gatherer and Mover and is not safe for concurrent use.
type SimSensor struct {
	truth  *grid.World
	pos    grid.Coord
	radius int
	others map[grid.Coord]struct{}

	gathered []grid.Science
}

// NewSimSensor places a rover at start on truth.
func NewSimSensor(truth *grid.World, start grid.Coord, radius int) (*SimSensor, error) {
	if !truth.InBounds(start) {
		return nil, fmt.Errorf("start %s outside %dx%d map", start, truth.Width(), truth.Height())
	}
	return &SimSensor{
		truth:  truth,
		pos:    start,
		radius: radius,
		others: make(map[grid.Coord]struct{}),
	}, nil
}

// PlaceRover puts another rover at c.
func (s *SimSensor) PlaceRover(c grid.Coord) { s.others[c] = struct{}{} }

// RemoveRover takes the rover at c off the map.
func (s *SimSensor) RemoveRover(c grid.Coord) { delete(s.others, c) }

// Gathered returns the samples collected so far.
func (s *SimSensor) Gathered() []grid.Science { return append([]grid.Science(nil), s.gathered...) }

func (s *SimSensor) Location(ctx context.Context) (grid.Coord, error) {
	if err := ctx.Err(); err != nil {
		return grid.Coord{}, err
	}
	return s.pos, nil
}

func (s *SimSensor) Scan(ctx context.Context) ([]grid.Observation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	scan := s.truth.Observe(s.pos, s.radius)
	// past the east and south edges the map reads as NONE
	for y := max(s.pos.Y-s.radius, 0); y <= s.pos.Y+s.radius; y++ {
		for x := max(s.pos.X-s.radius, 0); x <= s.pos.X+s.radius; x++ {
			if x < s.truth.Width() && y < s.truth.Height() {
				continue
			}
			scan = append(scan, grid.Observation{
				Coord:   grid.Coord{X: x, Y: y},
				Terrain: grid.TerrainNone,
				Science: grid.ScienceNone,
			})
		}
	}
	for i := range scan {
		_, scan[i].HasRover = s.others[scan[i].Coord]
	}
	return scan, nil
}

// Gather collects science under the rover. Samples on rock or gravel cannot
// be picked up.
func (s *SimSensor) Gather(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cell := s.truth.Cell(s.pos)
	if cell.Science == grid.ScienceNone {
		return nil
	}
	if cell.Terrain == grid.TerrainRock || cell.Terrain == grid.TerrainGravel {
		return nil
	}
	s.gathered = append(s.gathered, cell.Science)
	cell.SetTile(cell.Terrain, grid.ScienceNone)
	return nil
}

func (s *SimSensor) Move(ctx context.Context, dir Direction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	to := s.pos
	switch dir {
	case East:
		to.X++
	case South:
		to.Y++
	case West:
		to.X--
	case North:
		to.Y--
	default:
		return fmt.Errorf("unknown direction %q", dir)
	}

	cell := s.truth.Cell(to)
	if cell == nil || cell.Terrain.Impassable() {
		return fmt.Errorf("%w: %s to %s", ErrBlockedMove, dir, to)
	}
	if _, ok := s.others[to]; ok {
		return fmt.Errorf("%w: rover at %s", ErrBlockedMove, to)
	}
	s.pos = to
	return nil
}
