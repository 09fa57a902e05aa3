// Package grid holds the rover's model of the map: a dense 2-D occupancy grid
// that is revealed incrementally by scans and peer reports.
//
// The World is owned by the control loop and is not safe for concurrent use.
// Planners query it through Width, Height, CellAt and Neighbors.
package grid

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Coord is a grid position. X grows east, Y grows south.
type Coord struct {
	X int
	Y int
}

func (c Coord) String() string {
	return fmt.Sprintf("(%d,%d)", c.X, c.Y)
}

// Manhattan returns |ax-bx| + |ay-by|.
func Manhattan(a, b Coord) int {
	return abs(a.X-b.X) + abs(a.Y-b.Y)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Cell is one square of the world. Terrain and Science are only meaningful
// once Known is true.
type Cell struct {
	Coord

	Terrain Terrain
	Science Science

	cost    int
	blocked bool
	known   bool
	updated time.Time
}

func newCell(x, y int) *Cell {
	return &Cell{Coord: Coord{X: x, Y: y}, cost: 1}
}

// Cost returns the positive traversal cost of leaving this cell.
func (c *Cell) Cost() int { return c.cost }

// SetCost sets the traversal cost; it must be positive.
func (c *Cell) SetCost(cost int) error {
	if cost <= 0 {
		return fmt.Errorf("cell %s: cost must be positive, got %d", c.Coord, cost)
	}
	c.cost = cost
	return nil
}

// IsBlocked reports whether the planner must route around this cell.
func (c *Cell) IsBlocked() bool { return c.blocked }

// SetBlocked marks or clears the blocked flag.
func (c *Cell) SetBlocked(blocked bool) { c.blocked = blocked }

// Known reports whether terrain has ever been observed for this cell.
func (c *Cell) Known() bool { return c.known }

// Updated returns when the cell was last observed.
func (c *Cell) Updated() time.Time { return c.updated }

// SetTile records an observation of terrain and science.
func (c *Cell) SetTile(t Terrain, s Science) {
	c.Terrain = t
	c.Science = s
	c.known = true
	c.Touch()
}

// Touch refreshes the observation time without changing contents.
func (c *Cell) Touch() {
	c.updated = time.Now()
}

// neighbour order: east, south, west, north
var deltas = [4]Coord{{1, 0}, {0, 1}, {-1, 0}, {0, -1}}

// World is a width × height grid of cells.
type World struct {
	width  int
	height int
	cells  []*Cell
}

// NewWorld creates a world with every cell unknown, unblocked and cost 1.
func NewWorld(width, height int) *World {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	w := &World{width: width, height: height, cells: make([]*Cell, width*height)}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			w.cells[y*width+x] = newCell(x, y)
		}
	}
	return w
}

// Width returns the number of columns.
func (w *World) Width() int { return w.width }

// Height returns the number of rows.
func (w *World) Height() int { return w.height }

// InBounds reports whether c lies inside the grid.
func (w *World) InBounds(c Coord) bool {
	return c.X >= 0 && c.X < w.width && c.Y >= 0 && c.Y < w.height
}

// CellAt returns the cell at (x, y), or nil when out of bounds.
func (w *World) CellAt(x, y int) *Cell {
	if x < 0 || x >= w.width || y < 0 || y >= w.height {
		return nil
	}
	return w.cells[y*w.width+x]
}

// Cell is CellAt for a Coord.
func (w *World) Cell(c Coord) *Cell {
	return w.CellAt(c.X, c.Y)
}

// Neighbors returns the in-bounds 4-connected neighbours of c, blocked or not.
func (w *World) Neighbors(c Coord) []*Cell {
	out := make([]*Cell, 0, 4)
	for _, d := range deltas {
		if n := w.CellAt(c.X+d.X, c.Y+d.Y); n != nil {
			out = append(out, n)
		}
	}
	return out
}

// Grow extends the world east by dx columns and south by dy rows. Existing
// cells keep their identity; planners built on the old dimensions must be
// rebuilt.
func (w *World) Grow(dx, dy int) {
	if dx <= 0 && dy <= 0 {
		return
	}
	if dx < 0 {
		dx = 0
	}
	if dy < 0 {
		dy = 0
	}
	nw, nh := w.width+dx, w.height+dy
	cells := make([]*Cell, nw*nh)
	for y := 0; y < nh; y++ {
		for x := 0; x < nw; x++ {
			if x < w.width && y < w.height {
				cells[y*nw+x] = w.cells[y*w.width+x]
			} else {
				cells[y*nw+x] = newCell(x, y)
			}
		}
	}
	w.width, w.height, w.cells = nw, nh, cells
}

// Observation is one sensed cell from a scan window.
type Observation struct {
	Coord    Coord
	Terrain  Terrain
	Science  Science
	HasRover bool
}

// MergeScan folds a scan into the world and returns the cells whose tile
// changed. A cell whose terrain is unchanged keeps its science unless it had
// none before and the scan reports some; re-observed cells are only touched.
// Observations outside the grid are ignored.
func (w *World) MergeScan(scan []Observation) []*Cell {
	var changed []*Cell
	for _, o := range scan {
		cell := w.Cell(o.Coord)
		if cell == nil {
			continue
		}
		if cell.known && cell.Terrain == o.Terrain {
			if cell.Science != ScienceNone || cell.Science == o.Science {
				cell.Touch()
				continue
			}
		}
		cell.SetTile(o.Terrain, o.Science)
		changed = append(changed, cell)
	}
	return changed
}

// ParseCoord reads a non-negative "x,y" pair.
func ParseCoord(s string) (Coord, error) {
	xs, ys, ok := strings.Cut(strings.TrimSpace(s), ",")
	if !ok {
		return Coord{}, fmt.Errorf("coordinate %q: expected x,y", s)
	}
	x, err := strconv.Atoi(strings.TrimSpace(xs))
	if err != nil {
		return Coord{}, fmt.Errorf("coordinate %q: %w", s, err)
	}
	y, err := strconv.Atoi(strings.TrimSpace(ys))
	if err != nil {
		return Coord{}, fmt.Errorf("coordinate %q: %w", s, err)
	}
	if x < 0 || y < 0 {
		return Coord{}, fmt.Errorf("coordinate %q: must be non-negative", s)
	}
	return Coord{X: x, Y: y}, nil
}
