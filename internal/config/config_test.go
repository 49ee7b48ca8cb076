package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
app:
  name: "test-sync"
database:
  path: "test.db"
remote:
  endpoint: "https://backend.example.com"
  token: "tkn"
sync:
  upload_limit: 25
  poll_interval_seconds: 3
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "test-sync", cfg.App.Name)
	assert.Equal(t, "test.db", cfg.Database.Path)
	assert.Equal(t, 25, cfg.Sync.UploadLimit)
	assert.Equal(t, 3*time.Second, cfg.Sync.PollInterval())
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_SYNC_TOKEN", "from-env")
	path := writeConfig(t, `
database:
  path: "test.db"
remote:
  endpoint: "https://backend.example.com"
  token: "${TEST_SYNC_TOKEN}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Remote.Token)
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
database:
  path: "test.db"
remote:
  endpoint: "https://backend.example.com"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Sync.UploadLimit)
	assert.Equal(t, 500, cfg.Sync.DownloadLimit)
	assert.Equal(t, 5*time.Second, cfg.Sync.PollInterval())
	assert.Equal(t, time.Second, cfg.Sync.BackoffMin())
	assert.Equal(t, time.Minute, cfg.Sync.BackoffMax())
	assert.Equal(t, 2.0, cfg.Sync.BackoffFactor)
	assert.Equal(t, 30, cfg.Remote.TimeoutSeconds)
	assert.Equal(t, "x-api-key", cfg.API.HeaderAPIKey)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid",
			cfg: Config{
				Database: DatabaseConfig{Path: "db"},
				Remote:   RemoteConfig{Endpoint: "https://x"},
			},
		},
		{
			name: "credentials url alone is enough",
			cfg: Config{
				Database: DatabaseConfig{Path: "db"},
				Remote:   RemoteConfig{CredentialsURL: "https://x/creds"},
			},
		},
		{
			name:    "database path required",
			cfg:     Config{Remote: RemoteConfig{Endpoint: "https://x"}},
			wantErr: true,
		},
		{
			name:    "remote required",
			cfg:     Config{Database: DatabaseConfig{Path: "db"}},
			wantErr: true,
		},
		{
			name: "api enabled without keys",
			cfg: Config{
				Database: DatabaseConfig{Path: "db"},
				Remote:   RemoteConfig{Endpoint: "https://x"},
				API:      APIConfig{Enabled: true},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
