package infra

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_DefaultsAndEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ROUTER_CHAIN", "base")
	t.Setenv("TRANSPORT_QUOTE_ATTEMPTS", "5")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 8081, cfg.Console.Port)
	assert.Equal(t, "base", cfg.Router.Chain)
	assert.Equal(t, "memory", cfg.Router.Ledger)
	assert.Equal(t, 50, cfg.Router.MaxBatchSize)
	assert.Equal(t, uint(5), cfg.Transport.QuoteAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Router.JournalFlushInterval)
}

func TestLoadConfig_File(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(`
router:
  chain: arbitrum
  admin_address: "0x000000000000000000000000000000000000ad01"
transport:
  mode: loopback
targets:
  - address: "0x00000000000000000000000000000000000000a1"
    endpoint: "localhost:7001"
auth:
  public_key_path: pub.pem
`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pub.pem"), []byte("PEM"), 0o600))

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "arbitrum", cfg.Router.Chain)
	assert.Equal(t, "loopback", cfg.Transport.Mode)
	require.Len(t, cfg.Targets, 1)
	assert.Equal(t, "localhost:7001", cfg.Targets[0].Endpoint)
	assert.Equal(t, []byte("PEM"), cfg.Auth.PublicKey)
}

func TestNewLogger(t *testing.T) {
	_, err := NewLogger(LoggerConfig{Level: "debug", Format: "console"})
	assert.NoError(t, err)
	_, err = NewLogger(LoggerConfig{Level: "loud"})
	assert.Error(t, err)
	_, err = NewLogger(LoggerConfig{Level: "info", Format: "xml"})
	assert.Error(t, err)
}
