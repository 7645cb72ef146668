package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/beam-cloud/bucketmount/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigManager_Defaults(t *testing.T) {
	t.Setenv(ConfigPathEnv, "")

	cm, err := NewConfigManager[types.AppConfig]()
	require.NoError(t, err)
	cfg := cm.GetConfig()

	assert.Equal(t, "rclone", cfg.Rclone.Binary)
	assert.Equal(t, "Ceph", cfg.Rclone.Provider)
	assert.Equal(t, types.RemoteModePersistent, cfg.Rclone.RemoteMode)
	assert.Equal(t, 2500*time.Millisecond, cfg.Supervisor.ConfirmDelay)
	assert.Equal(t, 3*time.Second, cfg.Supervisor.GracePeriod)
	assert.Equal(t, 5*time.Second, cfg.Supervisor.KillTimeout)
	assert.Equal(t, 65536, cfg.Supervisor.OutputLimit)
	assert.Equal(t, types.ListerRclone, cfg.Buckets.Lister)
	assert.Equal(t, 30*time.Second, cfg.Buckets.CacheTTL)
	assert.Equal(t, 7780, cfg.API.Port)
	assert.Equal(t, "bucketmount:events", cfg.Events.Redis.Channel)
	assert.False(t, cfg.Events.Redis.Enabled())
}

func TestConfigManager_YAMLOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
debugMode: true
rclone:
  binary: /opt/rclone/rclone
  remoteMode: ephemeral
supervisor:
  confirmDelay: 1s
api:
  port: 9000
`), 0644))
	t.Setenv(ConfigPathEnv, path)

	cm, err := NewConfigManager[types.AppConfig]()
	require.NoError(t, err)
	cfg := cm.GetConfig()

	assert.True(t, cfg.DebugMode)
	assert.Equal(t, "/opt/rclone/rclone", cfg.Rclone.Binary)
	assert.Equal(t, types.RemoteModeEphemeral, cfg.Rclone.RemoteMode)
	assert.Equal(t, time.Second, cfg.Supervisor.ConfirmDelay)
	assert.Equal(t, 9000, cfg.API.Port)

	// untouched keys keep their defaults
	assert.Equal(t, "Ceph", cfg.Rclone.Provider)
	assert.Equal(t, 3*time.Second, cfg.Supervisor.GracePeriod)
}

func TestConfigManager_JSONOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"events": {"redis": {"addr": "localhost:6379"}}}`), 0644))
	t.Setenv(ConfigPathEnv, path)

	cm, err := NewConfigManager[types.AppConfig]()
	require.NoError(t, err)
	cfg := cm.GetConfig()

	assert.True(t, cfg.Events.Redis.Enabled())
	assert.Equal(t, "localhost:6379", cfg.Events.Redis.Addr)
	assert.Equal(t, "bucketmount:events", cfg.Events.Redis.Channel)
}

func TestConfigManager_Errors(t *testing.T) {
	t.Setenv(ConfigPathEnv, filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := NewConfigManager[types.AppConfig]()
	assert.Error(t, err)

	t.Setenv(ConfigPathEnv, filepath.Join(t.TempDir(), "config.toml"))
	_, err = NewConfigManager[types.AppConfig]()
	assert.ErrorContains(t, err, "unsupported config format")
}
