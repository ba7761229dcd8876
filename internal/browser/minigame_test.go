package browser

import (
	"math"
	"testing"
)

func TestDragDistance(t *testing.T) {
	tests := []struct {
		name     string
		rotation float64
		want     float64
	}{
		{name: "already straight", rotation: 0, want: 0},
		{name: "quarter turn", rotation: math.Pi / 2, want: -math.Pi / 2 * pixelsPerRadian},
		{name: "negative quarter", rotation: -math.Pi / 2, want: math.Pi / 2 * pixelsPerRadian},
		{name: "past pi unwinds backwards", rotation: 3 * math.Pi / 2, want: math.Pi / 2 * pixelsPerRadian},
		{name: "full turn is straight", rotation: 2 * math.Pi, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := dragDistance(tt.rotation)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("dragDistance(%v) = %v, want %v", tt.rotation, got, tt.want)
			}
		})
	}
}
