package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/carolinacraus/market-state-api/internal/domain/models"
)

func TestRangeBoundaries(t *testing.T) {
	tests := []struct {
		name string
		r    Range
		x    float64
		want bool
	}{
		{"gt excludes bound", Gt(2), 2, false},
		{"gt above", Gt(2), 2.0001, true},
		{"ge includes bound", Ge(4), 4, true},
		{"lt excludes bound", Lt(16), 16, false},
		{"le includes bound", Le(20), 20, true},
		{"closed low", Closed(0.5, 2), 0.5, true},
		{"closed high", Closed(0.5, 2), 2, true},
		{"open-closed low", OpenClosed(20, 25), 20, false},
		{"open-closed high", OpenClosed(20, 25), 25, true},
		{"closed-open high", ClosedOpen(-0.5, 0.5), 0.5, false},
		{"closed-open low", ClosedOpen(-0.5, 0.5), -0.5, true},
		{"any", Any(), -1e300, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.r.Contains(tt.x))
		})
	}
}

func TestLadderFirstMatchAndMissing(t *testing.T) {
	l := Ladder{{Gt(1.5), 4}, {OpenClosed(0.5, 1.5), 2}}
	assert.Equal(t, 4, l.Score(models.Some(3)))
	assert.Equal(t, 2, l.Score(models.Some(1.5)))
	assert.Equal(t, 0, l.Score(models.Some(0.5)))
	assert.Equal(t, 0, l.Score(models.None))
}

func TestLadderMax(t *testing.T) {
	assert.Equal(t, 4, Ladder{{Lt(-3.5), 4}, {Closed(-3.5, -2), 2}}.Max())
	assert.Equal(t, 2, Ladder{{Closed(45, 55), 2}}.Max())
	assert.Equal(t, 1, vixLadder.Max())
	// a tier fully shadowed by an earlier one can never score
	assert.Equal(t, 2, Ladder{{Ge(0), 2}, {Gt(10), 4}}.Max())
	// negative-only ladders top out at zero
	assert.Equal(t, 0, Ladder{{Any(), -2}}.Max())
}
