package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/harmony/internal/game/grid"
)

func TestPositionArray_Nil(t *testing.T) {
	assert.Nil(t, positionArray(nil))
	assert.Nil(t, positionFrom(nil))
	assert.Nil(t, positionFrom([]int32{1}))
}

func TestPropertyPositionColumnRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		p := grid.Position{rapid.IntRange(0, 99).Draw(t, "x"), rapid.IntRange(0, 99).Draw(t, "y")}
		got := positionFrom(positionArray(&p))
		if got == nil || *got != p {
			t.Fatalf("round trip of %v gave %v", p, got)
		}
	})
}
