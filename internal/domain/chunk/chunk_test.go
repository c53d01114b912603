package chunk

import "testing"

func TestPositionWeight(t *testing.T) {
	tests := []struct {
		position int
		want     float64
	}{
		{0, 1.0},
		{1, 0.9},
		{5, 0.5},
		{7, 0.3},
		{12, 0.3}, // floored
	}
	for _, tc := range tests {
		c := Chunk{Position: tc.position}
		if got := c.PositionWeight(); got != tc.want {
			t.Errorf("PositionWeight(pos=%d) = %v, want %v", tc.position, got, tc.want)
		}
	}
}
