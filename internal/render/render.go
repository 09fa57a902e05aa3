// Package render draws a world and a planned path as a PNG.
package render

import (
	"errors"
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/rovernav/internal/grid"
)

var (
	blockedColor = color.RGBA{R: 60, G: 60, B: 60, A: 255}
	scienceColor = color.RGBA{R: 46, G: 160, B: 67, A: 255}
	pathColor    = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	startColor   = color.RGBA{R: 255, G: 127, B: 14, A: 255}
	goalColor    = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

const cellSize = 0.25 * vg.Inch

// PNG writes world with path drawn from start to goal. Y grows downwards, as on
// the map.
func PNG(w io.Writer, world *grid.World, path []grid.Coord, start, goal grid.Coord) error {
	if world == nil || world.Width() == 0 || world.Height() == 0 {
		return errors.New("render: empty world")
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Path %s → %s (%d steps)", start, goal, len(path))
	p.X.Label.Text = "X"
	p.Y.Label.Text = "Y"
	p.X.Min, p.X.Max = -0.5, float64(world.Width())-0.5
	p.Y.Min, p.Y.Max = -0.5, float64(world.Height())-0.5
	p.Y.Scale = plot.InvertedScale{Normalizer: p.Y.Scale}

	var blocked, science plotter.XYs
	for y := 0; y < world.Height(); y++ {
		for x := 0; x < world.Width(); x++ {
			cell := world.CellAt(x, y)
			pt := plotter.XY{X: float64(x), Y: float64(y)}
			switch {
			case cell.IsBlocked():
				blocked = append(blocked, pt)
			case cell.Known() && cell.Science != grid.ScienceNone:
				science = append(science, pt)
			}
		}
	}

	if err := addCells(p, blocked, blockedColor, draw.BoxGlyph{}, "blocked"); err != nil {
		return err
	}
	if err := addCells(p, science, scienceColor, draw.TriangleGlyph{}, "science"); err != nil {
		return err
	}

	if len(path) > 0 {
		pts := make(plotter.XYs, 0, len(path)+1)
		pts = append(pts, plotter.XY{X: float64(start.X), Y: float64(start.Y)})
		for _, c := range path {
			pts = append(pts, plotter.XY{X: float64(c.X), Y: float64(c.Y)})
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.Color = pathColor
		line.Width = vg.Points(2)
		p.Add(line)
		p.Legend.Add("path", line)
	}

	endpoints := []struct {
		c     grid.Coord
		color color.Color
		name  string
	}{
		{start, startColor, "start"},
		{goal, goalColor, "goal"},
	}
	for _, e := range endpoints {
		pts := plotter.XYs{{X: float64(e.c.X), Y: float64(e.c.Y)}}
		if err := addCells(p, pts, e.color, draw.CircleGlyph{}, e.name); err != nil {
			return err
		}
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	width := max(4*vg.Inch, cellSize*vg.Length(world.Width())+vg.Inch)
	height := max(4*vg.Inch, cellSize*vg.Length(world.Height())+vg.Inch)
	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		return fmt.Errorf("create png writer: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write png: %w", err)
	}
	return nil
}

func addCells(p *plot.Plot, pts plotter.XYs, c color.Color, shape draw.GlyphDrawer, name string) error {
	if len(pts) == 0 {
		return nil
	}
	s, err := plotter.NewScatter(pts)
	if err != nil {
		return err
	}
	s.GlyphStyle.Color = c
	s.GlyphStyle.Shape = shape
	s.GlyphStyle.Radius = cellSize / 3
	p.Add(s)
	p.Legend.Add(name, s)
	return nil
}
