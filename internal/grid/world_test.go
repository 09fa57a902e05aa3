package grid

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWorld_Defaults(t *testing.T) {
	w := NewWorld(5, 4)
	assert.Equal(t, 5, w.Width())
	assert.Equal(t, 4, w.Height())

	c := w.CellAt(2, 3)
	require.NotNil(t, c)
	assert.Equal(t, Coord{X: 2, Y: 3}, c.Coord)
	assert.Equal(t, 1, c.Cost())
	assert.False(t, c.IsBlocked())
	assert.False(t, c.Known())

	assert.Nil(t, w.CellAt(-1, 0))
	assert.Nil(t, w.CellAt(5, 0))
	assert.Nil(t, w.CellAt(0, 4))
}

func TestNeighbors(t *testing.T) {
	w := NewWorld(3, 3)

	t.Run("centre has four in E S W N order", func(t *testing.T) {
		got := coords(w.Neighbors(Coord{1, 1}))
		assert.Equal(t, []Coord{{2, 1}, {1, 2}, {0, 1}, {1, 0}}, got)
	})

	t.Run("corner has two", func(t *testing.T) {
		got := coords(w.Neighbors(Coord{0, 0}))
		assert.Equal(t, []Coord{{1, 0}, {0, 1}}, got)
	})

	t.Run("blocked neighbours are still listed", func(t *testing.T) {
		w.CellAt(2, 1).SetBlocked(true)
		assert.Len(t, w.Neighbors(Coord{1, 1}), 4)
	})
}

func coords(cells []*Cell) []Coord {
	out := make([]Coord, len(cells))
	for i, c := range cells {
		out[i] = c.Coord
	}
	return out
}

func TestCell_SetCost(t *testing.T) {
	c := newCell(0, 0)
	require.NoError(t, c.SetCost(3))
	assert.Equal(t, 3, c.Cost())
	assert.Error(t, c.SetCost(0))
	assert.Equal(t, 3, c.Cost())
}

func TestManhattan(t *testing.T) {
	assert.Equal(t, 0, Manhattan(Coord{2, 2}, Coord{2, 2}))
	assert.Equal(t, 8, Manhattan(Coord{0, 0}, Coord{4, 4}))
	assert.Equal(t, 7, Manhattan(Coord{-2, 1}, Coord{3, -1}))
}

func TestGrow_PreservesCells(t *testing.T) {
	w := NewWorld(2, 2)
	orig := w.CellAt(1, 1)
	orig.SetTile(TerrainSand, ScienceMineral)
	orig.SetBlocked(true)

	w.Grow(2, 1)

	assert.Equal(t, 4, w.Width())
	assert.Equal(t, 3, w.Height())
	assert.Same(t, orig, w.CellAt(1, 1))
	assert.Equal(t, Coord{3, 2}, w.CellAt(3, 2).Coord)
	assert.False(t, w.CellAt(3, 2).Known())

	w.Grow(0, 0)
	assert.Equal(t, 4, w.Width())
}

func TestMergeScan(t *testing.T) {
	w := NewWorld(3, 3)

	changed := w.MergeScan([]Observation{
		{Coord: Coord{0, 0}, Terrain: TerrainSoil, Science: ScienceNone},
		{Coord: Coord{1, 0}, Terrain: TerrainRock, Science: ScienceNone},
		{Coord: Coord{9, 9}, Terrain: TerrainSoil, Science: ScienceNone},
	})
	assert.Len(t, changed, 2)
	assert.True(t, w.CellAt(1, 0).Known())

	t.Run("unchanged observation is not reported", func(t *testing.T) {
		changed := w.MergeScan([]Observation{{Coord: Coord{0, 0}, Terrain: TerrainSoil, Science: ScienceNone}})
		assert.Empty(t, changed)
	})

	t.Run("new science on known terrain is reported", func(t *testing.T) {
		changed := w.MergeScan([]Observation{{Coord: Coord{0, 0}, Terrain: TerrainSoil, Science: ScienceCrystal}})
		require.Len(t, changed, 1)
		assert.Equal(t, ScienceCrystal, changed[0].Science)
	})

	t.Run("existing science is kept when scan reports none", func(t *testing.T) {
		changed := w.MergeScan([]Observation{{Coord: Coord{0, 0}, Terrain: TerrainSoil, Science: ScienceNone}})
		assert.Empty(t, changed)
		assert.Equal(t, ScienceCrystal, w.CellAt(0, 0).Science)
	})

	t.Run("terrain change is reported", func(t *testing.T) {
		changed := w.MergeScan([]Observation{{Coord: Coord{0, 0}, Terrain: TerrainGravel, Science: ScienceNone}})
		assert.Len(t, changed, 1)
	})
}

func TestLoadTextMap(t *testing.T) {
	src := `; test map
..#
.C
`
	w, err := LoadTextMap(strings.NewReader(src))
	require.NoError(t, err)

	assert.Equal(t, 3, w.Width())
	assert.Equal(t, 2, w.Height())
	assert.True(t, w.CellAt(2, 0).IsBlocked())
	assert.Equal(t, ScienceCrystal, w.CellAt(1, 1).Science)
	// padded with NONE
	assert.Equal(t, TerrainNone, w.CellAt(2, 1).Terrain)
	assert.True(t, w.CellAt(2, 1).IsBlocked())
}

func TestLoadTextMap_Errors(t *testing.T) {
	_, err := LoadTextMap(strings.NewReader(""))
	assert.Error(t, err)

	_, err = LoadTextMap(strings.NewReader("..?"))
	assert.ErrorContains(t, err, "unknown glyph")
}

func TestObserve(t *testing.T) {
	w, err := LoadTextMap(strings.NewReader("...\n.#.\n..M\n"))
	require.NoError(t, err)

	obs := w.Observe(Coord{0, 0}, 1)
	assert.Len(t, obs, 4)

	all := w.Observe(Coord{1, 1}, 1)
	require.Len(t, all, 9)
	assert.Equal(t, TerrainRock, all[4].Terrain)
	assert.Equal(t, ScienceMineral, all[8].Science)
}

func TestParseTags(t *testing.T) {
	tr, ok := ParseTerrain("GRAVEL")
	assert.True(t, ok)
	assert.Equal(t, TerrainGravel, tr)
	_, ok = ParseTerrain("gravel")
	assert.False(t, ok)

	sc, ok := ParseScience("CRYSTAL")
	assert.True(t, ok)
	assert.Equal(t, ScienceCrystal, sc)
	_, ok = ParseScience("GOLD")
	assert.False(t, ok)

	assert.True(t, TerrainRock.Impassable())
	assert.True(t, TerrainNone.Impassable())
	assert.False(t, TerrainSand.Impassable())
}

func TestParseCoord(t *testing.T) {
	tests := []struct {
		in      string
		want    Coord
		wantErr bool
	}{
		{"0,0", Coord{}, false},
		{"12,7", Coord{X: 12, Y: 7}, false},
		{" 3 , 4 ", Coord{X: 3, Y: 4}, false},
		{"3", Coord{}, true},
		{"a,4", Coord{}, true},
		{"3,b", Coord{}, true},
		{"-1,2", Coord{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCoord(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
