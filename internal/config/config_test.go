package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setCredentials(t *testing.T) {
	t.Helper()
	t.Setenv("BYD_USERNAME", "user@example.com")
	t.Setenv("BYD_PASSWORD", "secret")
}

func TestLoadDefaults(t *testing.T) {
	setCredentials(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "4000", cfg.ServerPort)
	assert.Equal(t, 300*time.Second, cfg.PollInterval)
	assert.Equal(t, 60*time.Second, cfg.ActiveInterval)
	assert.Equal(t, 1, cfg.VehicleOnState)
	assert.Equal(t, "https://dilinkappoversea-eu.byd.auto", cfg.BydBaseURL)
	assert.False(t, cfg.SmartGpsPolling)
}

func TestLoadClampsIntervals(t *testing.T) {
	setCredentials(t)
	t.Setenv("POLL_INTERVAL", "5s")
	t.Setenv("GPS_ACTIVE_INTERVAL", "3600s")
	t.Setenv("GPS_INACTIVE_INTERVAL", "10s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, MinPollInterval, cfg.PollInterval)
	assert.Equal(t, MaxGpsActiveInterval, cfg.GpsActiveInterval)
	assert.Equal(t, MinGpsInactiveInterval, cfg.GpsInactiveInterval)
}

func TestLoadAcceptsPlainSeconds(t *testing.T) {
	setCredentials(t)
	t.Setenv("POLL_INTERVAL", "120")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 120*time.Second, cfg.PollInterval)
}

func TestLoadResolvesRegion(t *testing.T) {
	setCredentials(t)
	t.Setenv("BYD_REGION", "au")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://dilinkappoversea-au.byd.auto", cfg.BydBaseURL)
}

func TestLoadRejectsUnknownRegion(t *testing.T) {
	setCredentials(t)
	t.Setenv("BYD_REGION", "atlantis")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadBaseURLOverridesRegion(t *testing.T) {
	setCredentials(t)
	t.Setenv("BYD_REGION", "atlantis")
	t.Setenv("BYD_BASE_URL", "https://byd.example.com")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://byd.example.com", cfg.BydBaseURL)
}

func TestLoadRequiresCredentials(t *testing.T) {
	t.Setenv("BYD_USERNAME", "")
	t.Setenv("BYD_PASSWORD", "")

	_, err := Load()
	assert.Error(t, err)
}
