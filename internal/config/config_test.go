package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_CreatesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultTimezone, cfg.Timezone)
	assert.Equal(t, "Abercrombie Building", cfg.BuildingOverrides["Belinda Hutchinson Building"])

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoad_NormalizesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "year: 2025\nbuilding_overrides:\n  Old Hall: New Hall\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2025, cfg.Year)
	assert.Equal(t, map[string]string{"Old Hall": "New Hall"}, cfg.BuildingOverrides)
	assert.Equal(t, DefaultUIDDomain, cfg.UIDDomain)
	assert.Equal(t, DefaultSkipRows, cfg.SkipRows)
	assert.Equal(t, []string{".xls", ".xlsx", ".csv"}, cfg.Extensions)
	assert.Equal(t, 1, cfg.Parallelism)
}

func TestLoad_SkipRows(t *testing.T) {
	cases := []struct {
		name string
		body string
		want int
	}{
		{"missing", "year: 2025\n", DefaultSkipRows},
		{"explicit zero", "skip_rows: 0\n", 0},
		{"explicit", "skip_rows: 5\n", 5},
		{"negative", "skip_rows: -1\n", DefaultSkipRows},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tc.body), 0o600))

			cfg, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, tc.want, cfg.SkipRows)
		})
	}
}

func TestLoad_EmptyOverridesDisable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("building_overrides: {}\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.BuildingOverrides)
	assert.NotNil(t, cfg.BuildingOverrides)
}

func TestLoad_RejectsEmptyPath(t *testing.T) {
	_, err := Load("")
	assert.Error(t, err)
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.CalendarName = "Semester 1"
	cfg.BasicAuth = &BasicAuthConfig{Username: "u", Password: "p"}

	require.NoError(t, cfg.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestEffectiveYear(t *testing.T) {
	cfg := DefaultConfig()
	now := time.Date(2024, 12, 31, 20, 0, 0, 0, time.UTC)

	// 2024-12-31T20:00Z is already 2025 in Sydney.
	assert.Equal(t, 2025, cfg.EffectiveYear(now))

	cfg.Year = 2023
	assert.Equal(t, 2023, cfg.EffectiveYear(now))
}
