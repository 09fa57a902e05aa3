package dstar

import (
	"container/heap"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/banshee-data/rovernav/internal/grid"
	"github.com/banshee-data/rovernav/internal/monitoring"
)

const infinity = math.MaxInt

const noParent = -1

var (
	// ErrIterationLimit is returned by Solve when ComputeShortestPath exceeds
	// its iteration bound. The previous path remains available from Path.
	ErrIterationLimit = errors.New("dstar: iteration limit exceeded")
	// ErrOutOfBounds is returned for coordinates outside the planner's grid.
	ErrOutOfBounds = errors.New("dstar: coordinate outside grid")
	// ErrPathBroken is returned when the parent chain from start does not
	// reach the goal.
	ErrPathBroken = errors.New("dstar: parent chain does not reach goal")
)

// Grid is the read view of the world the planner searches.
type Grid interface {
	Width() int
	Height() int
	CellAt(x, y int) *grid.Cell
	Neighbors(c grid.Coord) []*grid.Cell
}

// node is the search state shadowing one cell.
type node struct {
	g      int
	rhs    int
	parent int
}

// Stats describes the work done by the most recent Solve.
type Stats struct {
	Iterations int // queue pops
	Expansions int // pops that changed g
	Reinserts  int // pops whose key was stale
	KM         int
}

// Planner is a D* Lite planner over a grid. The search runs backward from the
// goal, so replanning after the start moves or cells change only reprocesses
// the affected nodes.
//
// A Planner is not safe for concurrent use; drive it from one goroutine.
type Planner struct {
	world  Grid
	width  int
	height int

	nodes []node
	open  *openList

	changed      map[grid.Coord]struct{}
	changedOrder []grid.Coord

	km    int
	start int
	last  int
	goal  int

	path  []grid.Coord
	stats Stats

	maxIterations int
	log           *slog.Logger
}

// New creates a planner for the path from start to goal over world. The
// planner captures the world's current dimensions; if the world grows a new
// planner must be built.
func New(world Grid, start, goal grid.Coord, options ...Option) (*Planner, error) {
	opts := Options{MaxIterations: DefaultMaxIterations}
	for _, o := range options {
		o(&opts)
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}

	p := &Planner{
		world:         world,
		width:         world.Width(),
		height:        world.Height(),
		changed:       make(map[grid.Coord]struct{}),
		maxIterations: opts.MaxIterations,
		log:           monitoring.Or(opts.Logger),
	}

	if !p.inBounds(start) {
		return nil, fmt.Errorf("start %s: %w", start, ErrOutOfBounds)
	}
	if !p.inBounds(goal) {
		return nil, fmt.Errorf("goal %s: %w", goal, ErrOutOfBounds)
	}

	size := p.width * p.height
	p.nodes = make([]node, size)
	for i := range p.nodes {
		p.nodes[i] = node{g: infinity, rhs: infinity, parent: noParent}
	}
	p.open = newOpenList(size)

	p.start = p.index(start)
	p.goal = p.index(goal)
	p.last = p.start
	p.initialize()

	return p, nil
}

func (p *Planner) initialize() {
	p.open.reset()
	p.km = 0
	p.nodes[p.goal].rhs = 0
	heap.Push(p.open, &queueItem{node: p.goal, key: p.calculateKey(p.goal)})
}

func (p *Planner) inBounds(c grid.Coord) bool {
	return c.X >= 0 && c.X < p.width && c.Y >= 0 && c.Y < p.height
}

func (p *Planner) index(c grid.Coord) int { return c.Y*p.width + c.X }

func (p *Planner) coord(i int) grid.Coord {
	return grid.Coord{X: i % p.width, Y: i / p.width}
}

func (p *Planner) cell(i int) *grid.Cell {
	c := p.coord(i)
	return p.world.CellAt(c.X, c.Y)
}

func (p *Planner) blocked(i int) bool {
	c := p.cell(i)
	return c == nil || c.IsBlocked()
}

func (p *Planner) cost(i int) int {
	if c := p.cell(i); c != nil {
		return c.Cost()
	}
	return infinity
}

// neighbors returns the indices of in-bounds, non-blocked neighbours of i.
func (p *Planner) neighbors(i int) []int {
	cells := p.world.Neighbors(p.coord(i))
	out := make([]int, 0, len(cells))
	for _, c := range cells {
		if !p.inBounds(c.Coord) || c.IsBlocked() {
			continue
		}
		out = append(out, p.index(c.Coord))
	}
	return out
}

func heuristic(a, b grid.Coord) int {
	return grid.Manhattan(a, b)
}

func add(a, b int) int {
	if a == infinity || b == infinity {
		return infinity
	}
	return a + b
}

func (p *Planner) calculateKey(i int) Key {
	n := p.nodes[i]
	m := min(n.g, n.rhs)
	if m == infinity {
		return Key{K1: infinity, K2: infinity}
	}
	return Key{K1: m + heuristic(p.coord(i), p.coord(p.start)) + p.km, K2: m}
}

func (p *Planner) dequeue(i int) {
	if p.open.contains(i) {
		heap.Remove(p.open, p.open.position[i])
	}
}

func (p *Planner) updateVertex(u int) {
	n := &p.nodes[u]
	if u != p.goal {
		n.rhs = infinity
		n.parent = noParent
		if !p.blocked(u) {
			c := p.cost(u)
			for _, v := range p.neighbors(u) {
				if aux := add(c, p.nodes[v].g); aux < n.rhs {
					n.rhs = aux
					n.parent = v
				}
			}
		}
	}

	p.dequeue(u)

	if n.g != n.rhs {
		heap.Push(p.open, &queueItem{node: u, key: p.calculateKey(u)})
	}
}

func (p *Planner) computeShortestPath() error {
	for iteration := 0; p.open.Len() > 0; iteration++ {
		top := p.open.top()
		s := p.nodes[p.start]
		if !top.key.Less(p.calculateKey(p.start)) && s.rhs == s.g {
			break
		}
		if iteration >= p.maxIterations {
			return ErrIterationLimit
		}
		p.stats.Iterations++

		item := heap.Pop(p.open).(*queueItem)
		u := item.node
		fresh := p.calculateKey(u)

		if item.key.Less(fresh) {
			// stale priority from an earlier km
			heap.Push(p.open, &queueItem{node: u, key: fresh})
			p.stats.Reinserts++
			continue
		}

		p.stats.Expansions++
		n := &p.nodes[u]
		if n.g > n.rhs {
			n.g = n.rhs
			for _, v := range p.neighbors(u) {
				p.updateVertex(v)
			}
		} else {
			n.g = infinity
			for _, v := range p.neighbors(u) {
				p.updateVertex(v)
			}
			p.updateVertex(u)
		}
	}
	return nil
}

// Solve repairs the search after start moves or marked cells change and
// returns the path from the start's successor to the goal. An unreachable
// goal yields an empty path and a nil error. On ErrIterationLimit the
// previous path is kept and can be read with Path.
func (p *Planner) Solve() ([]grid.Coord, error) {
	p.km += heuristic(p.coord(p.last), p.coord(p.start))
	p.last = p.start
	p.stats = Stats{KM: p.km}

	for _, c := range p.changedOrder {
		if !p.inBounds(c) {
			p.log.Debug("ignoring changed cell outside planner grid", "cell", c)
			continue
		}
		i := p.index(c)
		if p.blocked(i) && i != p.goal {
			n := &p.nodes[i]
			n.g, n.rhs, n.parent = infinity, infinity, noParent
			p.dequeue(i)
		} else {
			p.updateVertex(i)
		}
		for _, v := range p.neighbors(i) {
			p.updateVertex(v)
		}
	}
	clear(p.changed)
	p.changedOrder = p.changedOrder[:0]

	if err := p.computeShortestPath(); err != nil {
		p.log.Warn("replan failed",
			"start", p.coord(p.start), "goal", p.coord(p.goal),
			"iterations", p.stats.Iterations, "error", err)
		return nil, err
	}

	path, err := p.extractPath()
	if err != nil {
		return nil, err
	}
	p.path = path

	p.log.Debug("replanned",
		"start", p.coord(p.start), "goal", p.coord(p.goal),
		"path_len", len(path), "iterations", p.stats.Iterations,
		"expansions", p.stats.Expansions, "km", p.km)

	return p.Path(), nil
}

func (p *Planner) extractPath() ([]grid.Coord, error) {
	path := []grid.Coord{}
	if p.nodes[p.start].g == infinity {
		return path, nil
	}
	limit := len(p.nodes)
	for cur := p.nodes[p.start].parent; cur != noParent; cur = p.nodes[cur].parent {
		path = append(path, p.coord(cur))
		if len(path) > limit {
			return nil, ErrPathBroken
		}
	}
	if len(path) > 0 && path[len(path)-1] != p.coord(p.goal) {
		return nil, ErrPathBroken
	}
	return path, nil
}

// UpdateStart moves the start. Call it before Solve whenever the rover has
// moved; the distance travelled is folded into km on the next Solve.
func (p *Planner) UpdateStart(c grid.Coord) error {
	if !p.inBounds(c) {
		return fmt.Errorf("start %s: %w", c, ErrOutOfBounds)
	}
	p.last = p.start
	p.start = p.index(c)
	return nil
}

// MarkChangedCell queues cells whose cost or blocked flag changed. Nothing is
// recomputed until the next Solve.
func (p *Planner) MarkChangedCell(cells ...grid.Coord) {
	for _, c := range cells {
		if _, ok := p.changed[c]; ok {
			continue
		}
		p.changed[c] = struct{}{}
		p.changedOrder = append(p.changedOrder, c)
	}
}

// Path returns a copy of the last successfully computed path.
func (p *Planner) Path() []grid.Coord {
	if p.path == nil {
		return nil
	}
	out := make([]grid.Coord, len(p.path))
	copy(out, p.path)
	return out
}

// Start returns the current start.
func (p *Planner) Start() grid.Coord { return p.coord(p.start) }

// Goal returns the fixed goal.
func (p *Planner) Goal() grid.Coord { return p.coord(p.goal) }

// Stats returns counters for the most recent Solve.
func (p *Planner) Stats() Stats { return p.stats }

// Pending reports how many changed cells are waiting for the next Solve.
func (p *Planner) Pending() int { return len(p.changedOrder) }

// Values returns g and rhs for c; ok is false when c is out of bounds.
// Infinite values are reported as math.MaxInt.
func (p *Planner) Values(c grid.Coord) (g, rhs int, ok bool) {
	if !p.inBounds(c) {
		return 0, 0, false
	}
	n := p.nodes[p.index(c)]
	return n.g, n.rhs, true
}

// Consistent reports whether c is locally consistent (g == rhs).
func (p *Planner) Consistent(c grid.Coord) bool {
	g, rhs, ok := p.Values(c)
	return ok && g == rhs
}
