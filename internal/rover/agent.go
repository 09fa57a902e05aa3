// Package rover runs the control loop: sense, sync with peers, choose a goal,
// replan and step. Every failure degrades to "no move this tick"; the loop
// itself never stops until its context is cancelled.
package rover

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/banshee-data/rovernav/internal/db"
	"github.com/banshee-data/rovernav/internal/discovery"
	"github.com/banshee-data/rovernav/internal/dstar"
	"github.com/banshee-data/rovernav/internal/goal"
	"github.com/banshee-data/rovernav/internal/grid"
	"github.com/banshee-data/rovernav/internal/monitoring"
)

// Direction is a compass move.
type Direction string

const (
	East  Direction = "E"
	South Direction = "S"
	West  Direction = "W"
	North Direction = "N"
)

// Sensor reports where the rover is and what it can see.
type Sensor interface {
	Location(ctx context.Context) (grid.Coord, error)
	Scan(ctx context.Context) ([]grid.Observation, error)
}

// Gatherer collects whatever sample is under the rover.
type Gatherer interface {
	Gather(ctx context.Context) error
}

// Mover executes a step.
type Mover interface {
	Move(ctx context.Context, dir Direction) error
}

// RunRecorder stores planner runs.
type RunRecorder interface {
	RecordPlannerRun(run db.PlannerRun) error
}

// Config wires an Agent. World, Sensor and Target are required.
type Config struct {
	World  *grid.World
	Sensor Sensor
	// Start and Target seed the picker's fallback corners.
	Start  grid.Coord
	Target grid.Coord

	Sync *discovery.Sync
	Runs RunRecorder

	MaxIterations int
	GiveUpAfter   int
	Logger        *slog.Logger
}

// Step is the outcome of one tick.
type Step struct {
	From  grid.Coord
	To    grid.Coord
	Dir   Direction
	Goal  grid.Coord
	Moved bool
}

// Agent owns the world model, planner, discovery sync and goal picker. It is
// driven from a single goroutine.
type Agent struct {
	world  *grid.World
	sensor Sensor
	sync   *discovery.Sync
	runs   RunRecorder
	picker *goal.Picker
	log    *slog.Logger

	target        grid.Coord
	goal          grid.Coord
	planner       *dstar.Planner
	path          []grid.Coord
	replan        bool
	failures      int
	giveUpAfter   int
	maxIterations int

	roverCells map[grid.Coord]struct{}
}

// NewAgent builds an agent heading for cfg.Target.
func NewAgent(cfg Config) (*Agent, error) {
	if cfg.World == nil {
		return nil, errors.New("rover: world is required")
	}
	if cfg.Sensor == nil {
		return nil, errors.New("rover: sensor is required")
	}
	if cfg.GiveUpAfter <= 0 {
		cfg.GiveUpAfter = 5
	}

	a := &Agent{
		world:         cfg.World,
		sensor:        cfg.Sensor,
		sync:          cfg.Sync,
		runs:          cfg.Runs,
		picker:        goal.NewPicker(),
		log:           monitoring.Or(cfg.Logger).With("component", "rover"),
		target:        cfg.Target,
		goal:          cfg.Target,
		giveUpAfter:   cfg.GiveUpAfter,
		maxIterations: cfg.MaxIterations,
		roverCells:    make(map[grid.Coord]struct{}),
	}

	a.picker.AddDefault(a.world.Cell(cfg.Target))
	a.picker.AddDefault(a.world.CellAt(cfg.Start.X, cfg.Target.Y))
	a.picker.AddDefault(a.world.CellAt(cfg.Target.X, cfg.Start.Y))

	if a.sync != nil {
		a.sync.SetPlanner(a)
	}
	return a, nil
}

// MarkChangedCell forwards to the current planner and schedules a replan.
func (a *Agent) MarkChangedCell(cells ...grid.Coord) {
	if a.planner != nil {
		a.planner.MarkChangedCell(cells...)
	}
	a.replan = true
}

// Goal returns the current goal.
func (a *Agent) Goal() grid.Coord { return a.goal }

// Path returns the path being followed.
func (a *Agent) Path() []grid.Coord { return append([]grid.Coord(nil), a.path...) }

// Tick runs one sense-plan cycle and returns the step to take. Sensor errors
// are returned; planner errors fall back to the previous path.
func (a *Agent) Tick(ctx context.Context) (Step, error) {
	a.pollPeers()

	loc, err := a.sensor.Location(ctx)
	if err != nil {
		return Step{}, fmt.Errorf("location: %w", err)
	}
	scan, err := a.sensor.Scan(ctx)
	if err != nil {
		return Step{From: loc, Goal: a.goal}, fmt.Errorf("scan: %w", err)
	}

	a.growFor(scan)
	a.mergeScan(scan)
	a.blockRovers(loc, scan)
	a.gather(ctx, loc)

	if best, ok := a.picker.ClosestGoal(loc); ok && best != a.goal {
		a.log.Info("new goal", "goal", best, "previous", a.goal)
		a.goal = best
		a.failures = 0
		a.planner = nil
	} else if !ok && a.goal != a.target {
		a.goal = a.target
		a.failures = 0
		a.planner = nil
	}

	if a.planner == nil {
		p, err := dstar.New(a.world, loc, a.goal,
			dstar.WithMaxIterations(a.maxIterations), dstar.WithLogger(a.log))
		if err != nil {
			return Step{From: loc, Goal: a.goal}, fmt.Errorf("planner: %w", err)
		}
		a.planner = p
		a.replan = true
	}

	if a.replan {
		a.solve(loc)
	}

	return a.next(loc), nil
}

func (a *Agent) pollPeers() {
	if a.sync == nil {
		return
	}
	for _, rec := range a.sync.Poll() {
		if rec.Science != grid.ScienceNone {
			a.picker.AddCell(a.world.Cell(rec.Coord()))
		}
	}
}

// growFor extends the world when the scan reveals terrain past its edge.
func (a *Agent) growFor(scan []grid.Observation) {
	maxX, maxY := a.world.Width()-1, a.world.Height()-1
	for _, o := range scan {
		if o.Terrain == grid.TerrainNone || o.Coord.X < 0 || o.Coord.Y < 0 {
			continue
		}
		maxX = max(maxX, o.Coord.X)
		maxY = max(maxY, o.Coord.Y)
	}
	dx, dy := maxX+1-a.world.Width(), maxY+1-a.world.Height()
	if dx > 0 || dy > 0 {
		a.log.Info("growing world", "width", maxX+1, "height", maxY+1)
		a.world.Grow(dx, dy)
		a.planner = nil
	}
}

func (a *Agent) mergeScan(scan []grid.Observation) {
	for _, cell := range a.world.MergeScan(scan) {
		if _, isRover := a.roverCells[cell.Coord]; !isRover && cell.Terrain.Impassable() != cell.IsBlocked() {
			cell.SetBlocked(cell.Terrain.Impassable())
			a.MarkChangedCell(cell.Coord)
		}
		if cell.Science != grid.ScienceNone {
			a.picker.AddCell(cell)
			if a.sync != nil {
				a.sync.Publish(discovery.FromCell(cell))
			}
		}
	}
}

// blockRovers treats cells other rovers stand on as blocked until the next
// scan.
func (a *Agent) blockRovers(loc grid.Coord, scan []grid.Observation) {
	for c := range a.roverCells {
		cell := a.world.Cell(c)
		cell.SetBlocked(cell.Known() && cell.Terrain.Impassable())
		a.MarkChangedCell(c)
	}
	clear(a.roverCells)

	for _, o := range scan {
		if !o.HasRover || o.Coord == loc {
			continue
		}
		cell := a.world.Cell(o.Coord)
		if cell == nil || cell.IsBlocked() {
			continue
		}
		cell.SetBlocked(true)
		a.roverCells[o.Coord] = struct{}{}
		a.MarkChangedCell(o.Coord)
	}
}

func (a *Agent) gather(ctx context.Context, loc grid.Coord) {
	if g, ok := a.sensor.(Gatherer); ok {
		if err := g.Gather(ctx); err != nil {
			a.log.Warn("gather failed", "loc", loc, "error", err)
		}
	}
	cell := a.world.Cell(loc)
	if cell == nil || !cell.Known() {
		return
	}
	if cell.Terrain != grid.TerrainRock && cell.Terrain != grid.TerrainGravel && cell.Science != grid.ScienceNone {
		cell.SetTile(cell.Terrain, grid.ScienceNone)
	}
}

func (a *Agent) solve(loc grid.Coord) {
	a.replan = false
	if err := a.planner.UpdateStart(loc); err != nil {
		a.log.Warn("cannot move planner start", "loc", loc, "error", err)
		a.planner = nil
		return
	}

	path, err := a.planner.Solve()
	outcome := "ok"
	switch {
	case errors.Is(err, dstar.ErrIterationLimit):
		outcome = "iteration_limit"
		path = a.planner.Path()
	case err != nil:
		outcome = "error"
		path = a.planner.Path()
	case len(path) == 0:
		outcome = "unreachable"
	}
	if err != nil {
		a.log.Warn("replan failed, keeping previous path", "goal", a.goal, "error", err)
	}
	a.path = path

	st := a.planner.Stats()
	monitoring.ObservePlannerRun(outcome, st.Expansions)
	if a.runs != nil {
		run := db.PlannerRun{
			StartX: loc.X, StartY: loc.Y, GoalX: a.goal.X, GoalY: a.goal.Y,
			PathLen: len(path), Iterations: st.Iterations, Expansions: st.Expansions,
			Outcome: outcome,
		}
		if err := a.runs.RecordPlannerRun(run); err != nil {
			a.log.Warn("failed to record planner run", "error", err)
		}
	}
}

// next picks the first path cell that is not the current location.
func (a *Agent) next(loc grid.Coord) Step {
	step := Step{From: loc, Goal: a.goal}

	if len(a.path) == 0 {
		a.failures++
		if a.failures >= a.giveUpAfter {
			a.log.Info("giving up on goal", "goal", a.goal, "failures", a.failures)
			a.picker.Remove(a.goal)
			monitoring.CountGoalAbandoned()
		}
		return step
	}

	for len(a.path) > 0 && a.path[0] == loc {
		a.path = a.path[1:]
	}
	if len(a.path) == 0 {
		a.log.Debug("nowhere left to go", "loc", loc)
		return step
	}

	to := a.path[0]
	dir, ok := direction(loc, to)
	if !ok {
		a.log.Warn("path is not adjacent, rebuilding planner", "loc", loc, "next", to)
		a.planner = nil
		return step
	}
	a.failures = 0
	step.To, step.Dir, step.Moved = to, dir, true
	return step
}

func direction(from, to grid.Coord) (Direction, bool) {
	switch {
	case to.X == from.X+1 && to.Y == from.Y:
		return East, true
	case to.Y == from.Y+1 && to.X == from.X:
		return South, true
	case to.X == from.X-1 && to.Y == from.Y:
		return West, true
	case to.Y == from.Y-1 && to.X == from.X:
		return North, true
	}
	return "", false
}

// Run ticks every interval until ctx is cancelled, handing each step to mover.
// Errors are logged and the loop continues.
func (a *Agent) Run(ctx context.Context, interval time.Duration, mover Mover) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		step, err := a.Tick(ctx)
		if err != nil {
			a.log.Warn("tick failed", "error", err)
		} else if step.Moved {
			if err := mover.Move(ctx, step.Dir); err != nil {
				a.log.Warn("move failed", "dir", step.Dir, "error", err)
				a.replan = true
			} else {
				monitoring.CountMove()
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
