package configloader

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	require.NoError(t, err)

	assert.Equal(t, "xdapp.config.json", cfg.Registry.Path)
	assert.Equal(t, BackendJSON, cfg.Registry.Backend)
	assert.Equal(t, "WALLET_PRIVATE_KEY", cfg.Signer.EnvVar)
	assert.Equal(t, int64(5000), cfg.Attestation.InitialDelayMs)
	assert.Equal(t, "main", cfg.Relay.MainNetwork)
	assert.Equal(t, "side", cfg.Relay.SideNetwork)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestLoad_OverridesAndNormalizes(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: debug
registry:
  path: /tmp/reg.json
  backend: Pebble
attestation:
  initialDelayMs: 10
  pollIntervalMs: 500
  maxIntervalMs: 100
relay:
  mainNetwork: goerli
  sideNetwork: fuji
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "/tmp/reg.json", cfg.Registry.Path)
	assert.Equal(t, BackendPebble, cfg.Registry.Backend)
	assert.Equal(t, int64(10), cfg.Attestation.InitialDelayMs)
	assert.Equal(t, int64(500), cfg.Attestation.MaxIntervalMs, "max interval is raised to the poll interval")
	assert.Equal(t, "goerli", cfg.Relay.MainNetwork)
}

func TestLoad_RejectsBadValues(t *testing.T) {
	_, err := Load(writeConfig(t, "registry:\n  backend: sqlite\n"))
	require.ErrorContains(t, err, "unknown registry backend")

	_, err = Load(writeConfig(t, "relay:\n  mainNetwork: a\n  sideNetwork: a\n"))
	require.ErrorContains(t, err, "must differ")

	_, err = Load(writeConfig(t, "registry: [\n"))
	require.ErrorContains(t, err, "failed to unmarshal")
}

func TestMillis(t *testing.T) {
	assert.Equal(t, 1500*time.Millisecond, Millis(1500))
}
