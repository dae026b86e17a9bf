package params

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadFromEnv(noEnvFile(t))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("LISTEN", "/ip4/127.0.0.1/tcp/9000")
	t.Setenv("BOOTSTRAP_PEERS", "/ip4/10.0.0.1/tcp/9000/p2p/a, /ip4/10.0.0.2/tcp/9000/p2p/b")
	t.Setenv("SERVICE_TOPIC", "test_exchange")
	t.Setenv("ANNOUNCE_INTERVAL_MS", "250")
	t.Setenv("BROADCAST_TIMEOUT_MS", "1500")
	t.Setenv("ENABLE_ORDERGEN", "false")
	t.Setenv("SYMBOLS", "SOL")
	t.Setenv("API_ADDR", ":9090")

	cfg, err := LoadFromEnv(noEnvFile(t))
	require.NoError(t, err)
	assert.Equal(t, "/ip4/127.0.0.1/tcp/9000", cfg.Network.ListenAddr)
	assert.Equal(t, []string{"/ip4/10.0.0.1/tcp/9000/p2p/a", "/ip4/10.0.0.2/tcp/9000/p2p/b"}, cfg.Network.BootstrapPeers)
	assert.Equal(t, "test_exchange", cfg.Network.Topic)
	assert.Equal(t, 250*time.Millisecond, cfg.Sync.AnnounceInterval)
	assert.Equal(t, 1500*time.Millisecond, cfg.Sync.BroadcastTimeout)
	assert.Equal(t, 10*time.Second, cfg.Sync.BootstrapTimeout)
	assert.False(t, cfg.Sync.GenerateOrders)
	assert.Equal(t, []string{"SOL"}, cfg.Sync.Symbols)
	assert.Equal(t, ":9090", cfg.Node.APIAddr)
}

func TestLoadFromEnv_InvalidValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"ORDER_INTERVAL_MS", "soon"},
		{"BOOTSTRAP_TIMEOUT_MS", "-1"},
		{"ENABLE_ORDERGEN", "maybe"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := LoadFromEnv(noEnvFile(t))
			assert.Error(t, err)
		})
	}
}

func TestLoadFromEnv_DotEnvAndYAML(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "node.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
network:
  topic: yaml_exchange
sync:
  order_interval: 2s
  symbols: [BTC]
node:
  journal_path: /tmp/journal
`), 0o644))

	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("NODE_CONFIG="+yamlPath+"\nSERVICE_TOPIC=env_exchange\n"), 0o644))

	// godotenv never overrides variables that are already set
	t.Setenv("NODE_CONFIG", "")
	os.Unsetenv("NODE_CONFIG")
	t.Setenv("SERVICE_TOPIC", "")
	os.Unsetenv("SERVICE_TOPIC")

	cfg, err := LoadFromEnv(envPath)
	require.NoError(t, err)
	assert.Equal(t, "env_exchange", cfg.Network.Topic)
	assert.Equal(t, 2*time.Second, cfg.Sync.OrderInterval)
	assert.Equal(t, []string{"BTC"}, cfg.Sync.Symbols)
	assert.Equal(t, "/tmp/journal", cfg.Node.JournalPath)
	assert.Equal(t, time.Second, cfg.Sync.AnnounceInterval)
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(Default(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
