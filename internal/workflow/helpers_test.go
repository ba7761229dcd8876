package workflow

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClampRoundIndex(t *testing.T) {
	tests := []struct {
		name  string
		idx   int
		count int
		want  int
	}{
		{name: "third of five", idx: 2, count: 5, want: 2},
		{name: "way past end clamps to last", idx: 99, count: 5, want: 4},
		{name: "first", idx: 0, count: 5, want: 0},
		{name: "negative clamps to first", idx: -3, count: 5, want: 0},
		{name: "exactly count clamps to last", idx: 5, count: 5, want: 4},
		{name: "single option", idx: 10, count: 1, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := clampRoundIndex(tt.idx, tt.count); got != tt.want {
				t.Errorf("clampRoundIndex(%d, %d) = %d, want %d", tt.idx, tt.count, got, tt.want)
			}
		})
	}
}

func TestButtonEnabled(t *testing.T) {
	attr := ""
	tests := []struct {
		name          string
		disabledAttr  *string
		class         string
		disabledClass string
		want          bool
	}{
		{name: "plain button", class: "slot", disabledClass: "btn-disabled", want: true},
		{name: "disabled attribute", disabledAttr: &attr, class: "slot", disabledClass: "btn-disabled", want: false},
		{name: "disabled class", class: "slot btn-disabled", disabledClass: "btn-disabled", want: false},
		{name: "no disabled class configured", class: "slot btn-disabled", want: true},
		{name: "unrelated class", class: "slot active", disabledClass: "btn-disabled", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buttonEnabled(tt.disabledAttr, tt.class, tt.disabledClass)
			if got != tt.want {
				t.Errorf("buttonEnabled(%v, %q, %q) = %v, want %v",
					tt.disabledAttr, tt.class, tt.disabledClass, got, tt.want)
			}
		})
	}
}

// TestRoundIndexSelection walks the whole positional path on a mixed slot
// list: filter to enabled buttons, then clamp the index into them.
func TestRoundIndexSelection(t *testing.T) {
	attr := ""
	slots := []struct {
		disabledAttr *string
		class        string
	}{
		{nil, "slot"},               // enabled 0
		{&attr, "slot"},             // disabled attribute
		{nil, "slot"},               // enabled 1
		{nil, "slot btn-disabled"},  // disabled class
		{nil, "slot"},               // enabled 2
		{nil, "slot"},               // enabled 3
		{nil, "slot"},               // enabled 4
	}

	var enabled []int
	for pos, s := range slots {
		if buttonEnabled(s.disabledAttr, s.class, "btn-disabled") {
			enabled = append(enabled, pos)
		}
	}
	require.Len(t, enabled, 5)

	// Index 2 of the enabled list is the third enabled button overall.
	require.Equal(t, 4, enabled[clampRoundIndex(2, len(enabled))])
	// A wildly large index clamps to the last enabled button.
	require.Equal(t, 6, enabled[clampRoundIndex(99, len(enabled))])
	// Negative clamps to the first.
	require.Equal(t, 0, enabled[clampRoundIndex(-1, len(enabled))])
}

func TestParseOpenDate(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    time.Time
		wantErr bool
	}{
		{
			name: "labelled full timestamp",
			text: "Open: 2026-03-01 09:00:00",
			want: time.Date(2026, 3, 1, 9, 0, 0, 0, time.Local),
		},
		{
			name: "no seconds",
			text: "Opens 2026-03-01 09:00",
			want: time.Date(2026, 3, 1, 9, 0, 0, 0, time.Local),
		},
		{
			name: "date only",
			text: "2026-03-01",
			want: time.Date(2026, 3, 1, 0, 0, 0, 0, time.Local),
		},
		{
			name: "dotted european date",
			text: "Start: 01.03.2026 09:00",
			want: time.Date(2026, 3, 1, 9, 0, 0, 0, time.Local),
		},
		{name: "no digits at all", text: "coming soon", wantErr: true},
		{name: "digits but no timestamp", text: "room 4", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseOpenDate(tt.text)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.True(t, got.Equal(tt.want), "got %v, want %v", got, tt.want)
		})
	}
}

func TestCheckBookingWindow(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.Local)

	t.Run("past open date is a precondition failure", func(t *testing.T) {
		err := checkBookingWindow("Open: 2020-01-01 00:00:00", now)
		require.Error(t, err)
		var pre *PreconditionError
		require.ErrorAs(t, err, &pre)
		require.Equal(t, "not booking day", pre.Reason)
	})

	t.Run("future open date passes", func(t *testing.T) {
		require.NoError(t, checkBookingWindow("Open: 2030-01-01 00:00:00", now))
	})

	t.Run("unreadable announcement passes", func(t *testing.T) {
		require.NoError(t, checkBookingWindow("coming soon", now))
	})
}

func TestOutcomeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Outcome
	}{
		{name: "cancelled flag", err: ErrCancelled, want: OutcomeCancelled},
		{name: "context cancel", err: context.Canceled, want: OutcomeCancelled},
		{name: "deadline exceeded", err: context.DeadlineExceeded, want: OutcomeTimedOut},
		{name: "wrapped deadline", err: fmt.Errorf("run: %w", context.DeadlineExceeded), want: OutcomeTimedOut},
		{name: "plain failure", err: errors.New("wrapped"), want: OutcomeFailed},
		{name: "precondition", err: &PreconditionError{Reason: "not booking day"}, want: OutcomeFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := outcomeFor(tt.err); got != tt.want {
				t.Errorf("outcomeFor(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestOutcomeString(t *testing.T) {
	require.Equal(t, "completed", OutcomeCompleted.String())
	require.Equal(t, "timed out", OutcomeTimedOut.String())
	require.Equal(t, "cancelled", OutcomeCancelled.String())
	require.Equal(t, "failed", OutcomeFailed.String())
}
