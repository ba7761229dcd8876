package workflow

import (
	"context"
	"testing"

	"github.com/go-rod/rod"
	"github.com/stretchr/testify/require"

	"bookpilot/internal/siteconfig"
)

type fakeMiniGame struct {
	present      bool
	solved       bool
	mode         string
	gotDistances []float64
}

func (f *fakeMiniGame) Present(_ *rod.Page) bool { return f.present }

func (f *fakeMiniGame) Solve(_ *rod.Page) bool {
	f.mode = "rotation"
	return f.solved
}

func (f *fakeMiniGame) SolvePresets(_ *rod.Page, distances []float64) bool {
	f.mode = "presets"
	f.gotDistances = distances
	return f.solved
}

func TestMiniGameDispatch(t *testing.T) {
	tests := []struct {
		name          string
		challenge     siteconfig.Challenge
		wantMode      string
		wantDistances []float64
	}{
		{
			name:      "rotation variant by default",
			challenge: siteconfig.Challenge{Canvas: "canvas.game"},
			wantMode:  "rotation",
		},
		{
			name: "preset variant when distances configured",
			challenge: siteconfig.Challenge{
				Canvas:          "canvas.bar",
				PresetDistances: []float64{40, 80, -40},
			},
			wantMode:      "presets",
			wantDistances: []float64{40, 80, -40},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := New(Config{Site: &siteconfig.Site{Challenge: tt.challenge}})
			fake := &fakeMiniGame{present: true, solved: true}
			w.miniGame = fake

			require.NoError(t, w.optionalMiniGame(context.Background()))
			require.Equal(t, tt.wantMode, fake.mode)
			require.Equal(t, tt.wantDistances, fake.gotDistances)
		})
	}
}

func TestMiniGameSkippedWhenAbsent(t *testing.T) {
	w := New(Config{Site: &siteconfig.Site{Challenge: siteconfig.Challenge{Canvas: "canvas.game"}}})
	fake := &fakeMiniGame{present: false}
	w.miniGame = fake

	require.NoError(t, w.optionalMiniGame(context.Background()))
	require.Empty(t, fake.mode, "no canvas means no solve call")
}

func TestMiniGameFailureIsNotFatal(t *testing.T) {
	w := New(Config{Site: &siteconfig.Site{Challenge: siteconfig.Challenge{Canvas: "canvas.game"}}})
	fake := &fakeMiniGame{present: true, solved: false}
	w.miniGame = fake

	require.NoError(t, w.optionalMiniGame(context.Background()),
		"an unsolved puzzle continues the run; the slot waits gate it")
}
