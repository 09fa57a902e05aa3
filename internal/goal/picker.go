// Package goal chooses where the rover heads next: the nearest usable science
// site, or one of a few fallback corners when no site is closer.
package goal

import (
	"cmp"

	"github.com/dhconnelly/rtreego"

	"github.com/banshee-data/rovernav/internal/grid"
)

// entry stores a candidate cell in the R-tree as a tiny box around its centre.
type entry struct {
	cell *grid.Cell
	box  rtreego.Rect
}

func (e *entry) Bounds() rtreego.Rect { return e.box }

func newEntry(c *grid.Cell) *entry {
	p := rtreego.Point{float64(c.X), float64(c.Y)}
	return &entry{cell: c, box: p.ToRect(0.01)}
}

// Picker tracks candidate goals. Cells are read live, so a candidate whose
// tile changes after AddCell is judged by its current contents.
type Picker struct {
	tree     *rtreego.Rtree
	sites    map[grid.Coord]*entry
	defaults []*grid.Cell
}

// NewPicker returns an empty picker.
func NewPicker() *Picker {
	return &Picker{
		tree:  rtreego.NewTree(2, 25, 50),
		sites: make(map[grid.Coord]*entry),
	}
}

// AddCell offers a science site. Nil and repeated cells are ignored.
func (p *Picker) AddCell(c *grid.Cell) {
	if c == nil {
		return
	}
	if _, ok := p.sites[c.Coord]; ok {
		return
	}
	e := newEntry(c)
	p.sites[c.Coord] = e
	p.tree.Insert(e)
}

// AddDefault adds a fallback goal such as the target corner.
func (p *Picker) AddDefault(c *grid.Cell) {
	if c == nil {
		return
	}
	for _, d := range p.defaults {
		if d == c {
			return
		}
	}
	p.defaults = append(p.defaults, c)
}

// Remove forgets c as both a site and a default, typically after repeated
// failures to reach it.
func (p *Picker) Remove(c grid.Coord) {
	if e, ok := p.sites[c]; ok {
		p.drop(e)
	}
	kept := p.defaults[:0]
	for _, d := range p.defaults {
		if d.Coord != c {
			kept = append(kept, d)
		}
	}
	p.defaults = kept
}

// Sites returns the number of tracked science sites.
func (p *Picker) Sites() int { return len(p.sites) }

func (p *Picker) drop(e *entry) {
	p.tree.Delete(e)
	delete(p.sites, e.cell.Coord)
}

// usableSite reports whether a rover can collect from c.
func usableSite(c *grid.Cell) bool {
	if !c.Known() {
		return false
	}
	switch c.Terrain {
	case "", grid.TerrainNone, grid.TerrainRock, grid.TerrainGravel:
		return false
	}
	return c.Science != "" && c.Science != grid.ScienceNone
}

// reachableDefault allows unseen cells; seen ones must be passable terrain.
func reachableDefault(c *grid.Cell) bool {
	if !c.Known() {
		return true
	}
	return c.Terrain != "" && !c.Terrain.Impassable()
}

// ClosestScience returns the usable site nearest to from by Manhattan
// distance. Unusable sites and the site under the rover are dropped as they
// are encountered. Ties go to the smaller Y, then the smaller X.
func (p *Picker) ClosestScience(from grid.Coord) (grid.Coord, bool) {
	origin := rtreego.Point{float64(from.X), float64(from.Y)}

	for p.tree.Size() > 0 {
		nn, _ := p.tree.NearestNeighbor(origin).(*entry)
		if nn == nil {
			return grid.Coord{}, false
		}
		if !usableSite(nn.cell) || nn.cell.Coord == from {
			p.drop(nn)
			continue
		}

		// Every site within Manhattan distance m lies inside the square of
		// half-width m, so the box query finds the exact Manhattan minimum.
		m := grid.Manhattan(from, nn.cell.Coord)
		box, err := rtreego.NewRect(
			rtreego.Point{float64(from.X-m) - 0.5, float64(from.Y-m) - 0.5},
			[]float64{float64(2*m + 1), float64(2*m + 1)},
		)
		if err != nil {
			return nn.cell.Coord, true
		}

		best, bestDist := nn.cell.Coord, m
		for _, obj := range p.tree.SearchIntersect(box) {
			e := obj.(*entry)
			if !usableSite(e.cell) || e.cell.Coord == from {
				p.drop(e)
				continue
			}
			d := grid.Manhattan(from, e.cell.Coord)
			if d < bestDist || (d == bestDist && less(e.cell.Coord, best)) {
				best, bestDist = e.cell.Coord, d
			}
		}
		return best, true
	}
	return grid.Coord{}, false
}

// ClosestGoal returns the nearer of ClosestScience and the reachable
// defaults. Defaults that turn out impassable, or that the rover stands on,
// are dropped.
func (p *Picker) ClosestGoal(from grid.Coord) (grid.Coord, bool) {
	best, found := p.ClosestScience(from)
	bestDist := 0
	if found {
		bestDist = grid.Manhattan(from, best)
	}

	kept := p.defaults[:0]
	for _, d := range p.defaults {
		if !reachableDefault(d) || d.Coord == from {
			continue
		}
		kept = append(kept, d)
		dist := grid.Manhattan(from, d.Coord)
		if !found || dist < bestDist {
			best, bestDist, found = d.Coord, dist, true
		}
	}
	p.defaults = kept

	return best, found
}

func less(a, b grid.Coord) bool {
	return cmp.Or(cmp.Compare(a.Y, b.Y), cmp.Compare(a.X, b.X)) < 0
}
