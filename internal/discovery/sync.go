package discovery

import (
	"errors"
	"log/slog"

	"github.com/banshee-data/rovernav/internal/grid"
	"github.com/banshee-data/rovernav/internal/monitoring"
)

// Link is the line transport discoveries travel over.
type Link interface {
	Broadcast(text string)
	DrainReceived() []string
}

// MarkChanger receives cells whose passability changed.
type MarkChanger interface {
	MarkChangedCell(cells ...grid.Coord)
}

// Ledger persists records. Source is "self" for published records and "peer"
// for applied ones.
type Ledger interface {
	RecordDiscovery(terrain, science string, x, y int, source string) error
}

const (
	SourceSelf = "self"
	SourcePeer = "peer"
)

// SyncConfig wires a Sync. World and Link are required.
type SyncConfig struct {
	World  *grid.World
	Link   Link
	Ledger Ledger
	Logger *slog.Logger
}

// Sync applies peer reports to the world and publishes local finds. It runs on
// the control goroutine alongside the world and planner it updates.
type Sync struct {
	world   *grid.World
	link    Link
	ledger  Ledger
	planner MarkChanger
	log     *slog.Logger

	malformed int
	ignored   int
}

// NewSync returns a Sync over cfg.
func NewSync(cfg SyncConfig) (*Sync, error) {
	if cfg.World == nil {
		return nil, errors.New("discovery: world is required")
	}
	if cfg.Link == nil {
		return nil, errors.New("discovery: link is required")
	}
	return &Sync{
		world:  cfg.World,
		link:   cfg.Link,
		ledger: cfg.Ledger,
		log:    monitoring.Or(cfg.Logger).With("component", "discovery"),
	}, nil
}

// SetPlanner replaces the planner notified of passability changes. Pass nil
// while no planner exists.
func (s *Sync) SetPlanner(p MarkChanger) { s.planner = p }

// Publish broadcasts rec to peers and writes it to the ledger.
func (s *Sync) Publish(rec Record) {
	s.link.Broadcast(rec.String())
	monitoring.CountDiscovery("published")
	s.record(rec, SourceSelf)
}

// Poll drains the link and applies every valid record. It returns the records
// that changed the world, in arrival order. Malformed lines are logged and
// dropped.
func (s *Sync) Poll() []Record {
	var applied []Record
	for _, line := range s.link.DrainReceived() {
		rec, err := Parse(line)
		if err != nil {
			s.malformed++
			monitoring.CountDiscovery("malformed")
			s.log.Warn("dropping malformed discovery", "line", line, "error", err)
			continue
		}
		if !s.apply(rec) {
			continue
		}
		applied = append(applied, rec)
		monitoring.CountDiscovery("applied")
		s.record(rec, SourcePeer)
	}
	return applied
}

// apply merges rec into the world and reports whether the cell changed.
func (s *Sync) apply(rec Record) bool {
	cell := s.world.Cell(rec.Coord())
	if cell == nil {
		s.ignored++
		monitoring.CountDiscovery("ignored")
		s.log.Debug("discovery outside known world", "record", rec.String())
		return false
	}
	if cell.Known() && cell.Terrain == rec.Terrain && cell.Science == rec.Science {
		cell.Touch()
		return false
	}

	cell.SetTile(rec.Terrain, rec.Science)
	if blocked := rec.Terrain.Impassable(); blocked != cell.IsBlocked() {
		cell.SetBlocked(blocked)
		if s.planner != nil {
			s.planner.MarkChangedCell(cell.Coord)
		}
	}
	s.log.Debug("applied discovery", "record", rec.String())
	return true
}

func (s *Sync) record(rec Record, source string) {
	if s.ledger == nil {
		return
	}
	if err := s.ledger.RecordDiscovery(string(rec.Terrain), string(rec.Science), rec.X, rec.Y, source); err != nil {
		s.log.Warn("failed to record discovery", "record", rec.String(), "error", err)
	}
}

// Malformed returns how many lines Poll has dropped.
func (s *Sync) Malformed() int { return s.malformed }

// Ignored returns how many records fell outside the world.
func (s *Sync) Ignored() int { return s.ignored }
