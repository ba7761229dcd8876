package siteconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sampleConfig = `
sites:
  visa-center:
    name: Visa Center
    url: https://example.test/booking
    selectors:
      logo: "img.site-logo"
      register: "#register"
      disabled_class: "btn-disabled"
      branch_container: ".branches"
      branch_button: "button[data-branch='%s']"
      date_button: "td[data-day='%s']"
      time_container: ".slots"
      time_button: "button[data-slot='%s']"
      confirm_selection: "#confirm-dt"
      checkbox: "#agree"
      confirm_booking: "#confirm-final"
    challenge:
      begin_button: "#challenge-begin"
      canvas: "canvas.game"
      status_text: ".game-status"
      success_phrase: "straightened"
`

func TestParse(t *testing.T) {
	sites, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)
	require.Len(t, sites, 1)

	site := sites["visa-center"]
	require.NotNil(t, site)
	require.Equal(t, "Visa Center", site.Name)
	require.Equal(t, "https://example.test/booking", site.URL)
	require.Equal(t, "#register", site.Selectors.Register)
	require.Equal(t, "button[data-branch='%s']", site.Selectors.BranchButton)
	require.Equal(t, "canvas.game", site.Challenge.Canvas)
	require.Equal(t, "straightened", site.Challenge.SuccessPhrase)
}

func TestParseAliasPrecedence(t *testing.T) {
	tests := []struct {
		name      string
		selectors string
		want      string
	}{
		{
			name:      "canonical key wins over alias",
			selectors: "      register: \"#canonical\"\n      register_btn: \"#legacy\"\n",
			want:      "#canonical",
		},
		{
			name:      "first alias used when canonical absent",
			selectors: "      register_btn: \"#legacy\"\n      register_button: \"#older\"\n",
			want:      "#legacy",
		},
		{
			name:      "second alias as last resort",
			selectors: "      register_button: \"#older\"\n",
			want:      "#older",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := "sites:\n  s:\n    url: https://example.test\n    selectors:\n" + tt.selectors
			sites, err := Parse([]byte(cfg))
			require.NoError(t, err)
			require.Equal(t, tt.want, sites["s"].Selectors.Register)
		})
	}
}

func TestParsePresetDistances(t *testing.T) {
	cfg := `
sites:
  other-center:
    url: https://example.test
    challenge:
      canvas: "canvas.bar"
      status_text: ".progress"
      success_phrase: "done"
      preset_distances: [40, 80, -40]
`
	sites, err := Parse([]byte(cfg))
	require.NoError(t, err)
	require.Equal(t, []float64{40, 80, -40}, sites["other-center"].Challenge.PresetDistances)

	// Sites without the field keep the rotation variant.
	sites, err = Parse([]byte(sampleConfig))
	require.NoError(t, err)
	require.Empty(t, sites["visa-center"].Challenge.PresetDistances)
}

func TestParseEmpty(t *testing.T) {
	_, err := Parse([]byte("sites: {}\n"))
	require.Error(t, err)
}

func TestParseDefaultsNameToKey(t *testing.T) {
	sites, err := Parse([]byte("sites:\n  embassy:\n    url: https://example.test\n"))
	require.NoError(t, err)
	require.Equal(t, "embassy", sites["embassy"].Name)
}

func TestRequire(t *testing.T) {
	got, err := Require("register", "#register")
	require.NoError(t, err)
	require.Equal(t, "#register", got)

	_, err = Require("checkbox", "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "checkbox")
}

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "sites.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRegistry(t *testing.T) {
	path := writeConfig(t, t.TempDir(), sampleConfig)

	reg, err := NewRegistry(path)
	require.NoError(t, err)

	site, ok := reg.Get("visa-center")
	require.True(t, ok)
	require.Equal(t, "https://example.test/booking", site.URL)

	_, ok = reg.Get("nope")
	require.False(t, ok)
	require.Equal(t, []string{"visa-center"}, reg.Keys())
}

func TestRegistryReload(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, sampleConfig)

	reg, err := NewRegistry(path)
	require.NoError(t, err)
	require.NoError(t, reg.Watch())
	defer reg.Close()

	updated := "sites:\n  visa-center:\n    url: https://updated.test\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	require.Eventually(t, func() bool {
		site, ok := reg.Get("visa-center")
		return ok && site.URL == "https://updated.test"
	}, 5*time.Second, 50*time.Millisecond)
}

func TestRegistryKeepsPreviousOnBadReload(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, sampleConfig)

	reg, err := NewRegistry(path)
	require.NoError(t, err)
	require.NoError(t, reg.Watch())
	defer reg.Close()

	require.NoError(t, os.WriteFile(path, []byte(":: not yaml ::"), 0o644))

	// The bad rewrite must never evict the loaded maps.
	time.Sleep(300 * time.Millisecond)
	site, ok := reg.Get("visa-center")
	require.True(t, ok)
	require.Equal(t, "https://example.test/booking", site.URL)
}
