package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/slotcar.sim/internal/cu"
)

func writeConfig(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestEmptyRaceConfigDefaults(t *testing.T) {
	cfg := EmptyRaceConfig()

	assert.Equal(t, cu.DefaultRedInterval, cfg.GetRedInterval())
	assert.Equal(t, cu.DefaultGreenDuration, cfg.GetGreenDuration())
	assert.Equal(t, cu.DefaultBaseLapTime, cfg.GetBaseLapTime())
	assert.Equal(t, cu.DefaultVariation, cfg.GetVariation())
	assert.Equal(t, cu.DefaultResolution, cfg.GetResolution())
	assert.Equal(t, []int{0, 1}, cfg.GetCars())
	assert.Equal(t, int64(0), cfg.GetSeed())
	assert.Equal(t, 8, cfg.GetDisplay())
	assert.Equal(t, cu.DefaultVersion, cfg.GetVersion())
}

func TestLoadRaceConfig(t *testing.T) {
	path := writeConfig(t, "race.json", `{
		"red_interval": "250ms",
		"green_duration": "100ms",
		"base_lap_time": 3.5,
		"variation": 0.2,
		"resolution": "5ms",
		"cars": [0, 2, 5],
		"seed": 42,
		"display": 6,
		"version": "1234"
	}`)

	cfg, err := LoadRaceConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, cfg.GetRedInterval())
	assert.Equal(t, 100*time.Millisecond, cfg.GetGreenDuration())
	assert.Equal(t, 3.5, cfg.GetBaseLapTime())
	assert.Equal(t, 0.2, cfg.GetVariation())
	assert.Equal(t, 5*time.Millisecond, cfg.GetResolution())
	assert.Equal(t, []int{0, 2, 5}, cfg.GetCars())
	assert.Equal(t, int64(42), cfg.GetSeed())
	assert.Equal(t, 6, cfg.GetDisplay())
	assert.Equal(t, "1234", cfg.GetVersion())
}

func TestLoadRaceConfigPartial(t *testing.T) {
	path := writeConfig(t, "race.json", `{"base_lap_time": 2.0}`)

	cfg, err := LoadRaceConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 2.0, cfg.GetBaseLapTime())
	assert.Equal(t, cu.DefaultRedInterval, cfg.GetRedInterval())
	assert.Equal(t, cu.DefaultVersion, cfg.GetVersion())
}

func TestLoadRaceConfigRejectsNonJSONExtension(t *testing.T) {
	path := writeConfig(t, "race.yaml", `{}`)

	_, err := LoadRaceConfig(path)
	assert.ErrorContains(t, err, ".json extension")
}

func TestLoadRaceConfigMissingFile(t *testing.T) {
	_, err := LoadRaceConfig(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestLoadRaceConfigBadJSON(t *testing.T) {
	path := writeConfig(t, "race.json", `{"cars": [`)

	_, err := LoadRaceConfig(path)
	assert.ErrorContains(t, err, "parse")
}

func TestValidateRejectsBadValues(t *testing.T) {
	str := func(s string) *string { return &s }
	f64 := func(f float64) *float64 { return &f }
	i := func(n int) *int { return &n }

	cases := []struct {
		name string
		cfg  RaceConfig
	}{
		{"bad red_interval", RaceConfig{RedInterval: str("fast")}},
		{"bad green_duration", RaceConfig{GreenDuration: str("1 parsec")}},
		{"bad resolution", RaceConfig{Resolution: str("x")}},
		{"zero base_lap_time", RaceConfig{BaseLapTime: f64(0)}},
		{"negative base_lap_time", RaceConfig{BaseLapTime: f64(-1)}},
		{"negative variation", RaceConfig{Variation: f64(-0.1)}},
		{"excessive variation", RaceConfig{Variation: f64(1.5)}},
		{"negative car", RaceConfig{Cars: []int{-1}}},
		{"car out of range", RaceConfig{Cars: []int{8}}},
		{"odd display", RaceConfig{Display: i(7)}},
		{"short version", RaceConfig{Version: str("123")}},
		{"long version", RaceConfig{Version: str("12345")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, tc.cfg.Validate())
		})
	}
}

func TestValidateAcceptsGoodValues(t *testing.T) {
	str := func(s string) *string { return &s }
	f64 := func(f float64) *float64 { return &f }

	cfg := RaceConfig{
		RedInterval: str("1s"),
		BaseLapTime: f64(5),
		Variation:   f64(0),
		Cars:        []int{0, 7},
	}
	assert.NoError(t, cfg.Validate())
}
