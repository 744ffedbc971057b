package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
local_db_path: /var/lib/flysto-sync/local.json
flysto_db_path: /var/lib/flysto-sync/flysto.json
flashair_wifi_ssid: PeripheralNet
flashair_wifi_password: cardpw
flashair_ip: 192.168.0.1
local_repo_path: /var/lib/flysto-sync/logs
flysto_email: pilot@example.com
flysto_password: secret
internet_networks:
  - ssid: Home
    password: pw
  - ssid: Hangar
    password: pw2
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, cfg.SyncInterval())
	assert.Equal(t, ".igc", cfg.LogFileExt)
	assert.Equal(t, "https://www.flysto.net", cfg.FlystoBaseURL)
	assert.Equal(t, "/DATALOG", cfg.FlashAirDataLogDir)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadNetworkOrderPreserved(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	require.Len(t, cfg.InternetNetworks, 2)
	assert.Equal(t, "Home", cfg.InternetNetworks[0].SSID)
	assert.Equal(t, "Hangar", cfg.InternetNetworks[1].SSID)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML+`
sync_interval_seconds: 60
log_file_ext: ".log"
metrics_addr: ":9090"
`))
	require.NoError(t, err)

	assert.Equal(t, time.Minute, cfg.SyncInterval())
	assert.Equal(t, ".log", cfg.LogFileExt)
	assert.Equal(t, ":9090", cfg.MetricsAddr)
}

func TestValidation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"missing local_db_path", "flysto_db_path: x\nflashair_wifi_ssid: s\nflashair_ip: i\nlocal_repo_path: p\n"},
		{"missing flashair ssid", "local_db_path: x\nflysto_db_path: y\nflashair_ip: i\nlocal_repo_path: p\n"},
		{"bad interval", minimalYAML + "sync_interval_seconds: -1\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestReloadPicksUpEdits(t *testing.T) {
	path := writeConfig(t, minimalYAML)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 900, cfg.SyncIntervalSeconds)

	require.NoError(t, os.WriteFile(path, []byte(minimalYAML+"sync_interval_seconds: 120\n"), 0644))
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, 120, cfg.SyncIntervalSeconds)
}

func TestIsInternetSSID(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.True(t, cfg.IsInternetSSID("Home"))
	assert.True(t, cfg.IsInternetSSID("Hangar"))
	assert.False(t, cfg.IsInternetSSID("PeripheralNet"))
}
