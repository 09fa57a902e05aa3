// Command plan-render plans a path over a text map and writes it as a PNG.
// Cells listed with -block are closed after the first solve and the path is
// repaired incrementally, which is handy for eyeballing replans.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/banshee-data/rovernav/internal/dstar"
	"github.com/banshee-data/rovernav/internal/grid"
	"github.com/banshee-data/rovernav/internal/render"
	"github.com/banshee-data/rovernav/internal/security"
)

// Config holds the tool's flags.
type Config struct {
	MapFile   string
	Start     string
	Goal      string
	Block     string
	Output    string
	StatsJSON bool
}

// Result is printed with -json.
type Result struct {
	Start      grid.Coord   `json:"start"`
	Goal       grid.Coord   `json:"goal"`
	Path       []grid.Coord `json:"path"`
	Iterations int          `json:"iterations"`
	Expansions int          `json:"expansions"`
	Reinserts  int          `json:"reinserts"`
	Replanned  bool         `json:"replanned"`
}

func parseFlags() Config {
	var cfg Config
	flag.StringVar(&cfg.MapFile, "map", "", "Text map to plan over (required)")
	flag.StringVar(&cfg.Start, "start", "0,0", "Start cell as x,y")
	flag.StringVar(&cfg.Goal, "goal", "", "Goal cell as x,y (required)")
	flag.StringVar(&cfg.Block, "block", "", "Cells to block after the first solve, as x,y;x,y")
	flag.StringVar(&cfg.Output, "out", "path.png", "Output PNG file")
	flag.BoolVar(&cfg.StatsJSON, "json", false, "Print planner stats as JSON")
	flag.Parse()
	return cfg
}

func main() {
	cfg := parseFlags()

	if cfg.MapFile == "" || cfg.Goal == "" {
		log.Fatal("-map and -goal are required")
	}

	f, err := os.Open(cfg.MapFile)
	if err != nil {
		log.Fatalf("Failed to open map: %v", err)
	}
	world, err := grid.LoadTextMap(f)
	f.Close()
	if err != nil {
		log.Fatalf("Failed to load map: %v", err)
	}

	start, err := grid.ParseCoord(cfg.Start)
	if err != nil {
		log.Fatalf("Invalid start: %v", err)
	}
	goal, err := grid.ParseCoord(cfg.Goal)
	if err != nil {
		log.Fatalf("Invalid goal: %v", err)
	}
	blocks, err := parseBlocks(cfg.Block)
	if err != nil {
		log.Fatalf("Invalid block list: %v", err)
	}

	res, err := plan(world, start, goal, blocks)
	if err != nil {
		log.Fatalf("Planning failed: %v", err)
	}

	if err := security.ValidateOutputPath(cfg.Output); err != nil {
		log.Fatalf("Invalid output path: %v", err)
	}
	out, err := os.Create(cfg.Output)
	if err != nil {
		log.Fatalf("Failed to create output: %v", err)
	}
	if err := render.PNG(out, world, res.Path, start, goal); err != nil {
		out.Close()
		log.Fatalf("Failed to render: %v", err)
	}
	if err := out.Close(); err != nil {
		log.Fatalf("Failed to write output: %v", err)
	}

	if cfg.StatsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			log.Fatalf("Failed to encode stats: %v", err)
		}
		return
	}
	fmt.Printf("%d steps from %s to %s, written to %s\n", len(res.Path), start, goal, cfg.Output)
}

func parseBlocks(s string) ([]grid.Coord, error) {
	var out []grid.Coord
	for _, part := range strings.Split(s, ";") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		c, err := grid.ParseCoord(part)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// plan solves once, then blocks cells and repairs if any are given.
func plan(world *grid.World, start, goal grid.Coord, blocks []grid.Coord) (Result, error) {
	p, err := dstar.New(world, start, goal)
	if err != nil {
		return Result{}, err
	}
	path, err := p.Solve()
	if err != nil {
		return Result{}, err
	}

	var marked []grid.Coord
	for _, c := range blocks {
		cell := world.Cell(c)
		if cell == nil {
			return Result{}, fmt.Errorf("block %s: %w", c, dstar.ErrOutOfBounds)
		}
		cell.SetBlocked(true)
		marked = append(marked, c)
	}
	if len(marked) > 0 {
		p.MarkChangedCell(marked...)
		if path, err = p.Solve(); err != nil {
			return Result{}, err
		}
	}

	st := p.Stats()
	return Result{
		Start:      start,
		Goal:       goal,
		Path:       path,
		Iterations: st.Iterations,
		Expansions: st.Expansions,
		Reinserts:  st.Reinserts,
		Replanned:  len(marked) > 0,
	}, nil
}
