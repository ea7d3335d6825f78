package grid

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/harmony/internal/game/dice"
)

func TestParseDirection(t *testing.T) {
	for _, d := range Directions {
		got, err := ParseDirection(string(d))
		require.NoError(t, err)
		assert.Equal(t, d, got)
	}
	_, err := ParseDirection("north")
	assert.Error(t, err)
}

func TestStep(t *testing.T) {
	tests := []struct {
		name string
		from Position
		dir  Direction
		want Position
	}{
		{"up decreases y", Position{4, 4}, Up, Position{4, 3}},
		{"down increases y", Position{4, 4}, Down, Position{4, 5}},
		{"left decreases x", Position{4, 4}, Left, Position{3, 4}},
		{"right increases x", Position{4, 4}, Right, Position{5, 4}},
		{"up blocked at top", Position{4, 0}, Up, Position{4, 0}},
		{"down blocked at bottom", Position{4, 9}, Down, Position{4, 9}},
		{"left blocked at edge", Position{0, 4}, Left, Position{0, 4}},
		{"right blocked at edge", Position{9, 4}, Right, Position{9, 4}},
		{"invalid direction is a no-op", Position{4, 4}, Direction("sideways"), Position{4, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.Step(tt.dir, 10))
		})
	}
}

func TestPositionJSON(t *testing.T) {
	data, err := json.Marshal(Position{3, 7})
	require.NoError(t, err)
	assert.JSONEq(t, `[3,7]`, string(data))

	var p Position
	require.NoError(t, json.Unmarshal([]byte(`[1,2]`), &p))
	assert.Equal(t, 1, p.X())
	assert.Equal(t, 2, p.Y())
}

func TestManhattan(t *testing.T) {
	assert.Equal(t, 0, Manhattan(Position{2, 2}, Position{2, 2}))
	assert.Equal(t, 7, Manhattan(Position{0, 9}, Position{3, 5}))
}

func TestSamplePairResamples(t *testing.T) {
	// First draw is start == target, second is distance 1, third is valid.
	src := dice.NewSequenceSource(
		2, 2, 2, 2,
		2, 2, 2, 3,
		0, 0, 5, 5,
	)
	start, target := SamplePair(src, 10, 3)
	assert.Equal(t, Position{0, 0}, start)
	assert.Equal(t, Position{5, 5}, target)
}

// Property: Step never leaves the grid and moves at most one cell.
func TestPropertyStepStaysInBounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		size := rapid.IntRange(2, 20).Draw(t, "size")
		p := Position{
			rapid.IntRange(0, size-1).Draw(t, "x"),
			rapid.IntRange(0, size-1).Draw(t, "y"),
		}
		d := rapid.SampledFrom(Directions).Draw(t, "dir")
		next := p.Step(d, size)
		if !next.InBounds(size) {
			t.Fatalf("step %v from %v left the %dx%d grid: %v", d, p, size, size, next)
		}
		if Manhattan(p, next) > 1 {
			t.Fatalf("step %v from %v moved more than one cell: %v", d, p, next)
		}
	})
}

// Property: sampled pairs always satisfy the separation invariant.
func TestPropertySamplePairSeparation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		size := rapid.IntRange(3, 20).Draw(t, "size")
		minDist := rapid.IntRange(1, size).Draw(t, "min_distance")
		src := dice.NewSeededSource(rapid.Uint64().Draw(t, "seed"))
		start, target := SamplePair(src, size, minDist)
		if start == target {
			t.Fatalf("start == target == %v", start)
		}
		if Manhattan(start, target) < minDist {
			t.Fatalf("distance %d < %d for %v -> %v", Manhattan(start, target), minDist, start, target)
		}
		if !start.InBounds(size) || !target.InBounds(size) {
			t.Fatalf("out of bounds: %v %v", start, target)
		}
	})
}
