package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":8645", cfg.RPCAddress)
	require.Equal(t, uint32(1_000), cfg.MaxFeeBps)
	require.Equal(t, 120, cfg.RateLimitPerMinute)

	// The default file must be persisted and reloadable.
	_, err = os.Stat(path)
	require.NoError(t, err)
	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.RPCAddress, reloaded.RPCAddress)
}

func TestLoadExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
RPCAddress = ":9000"
MaxFeeBps = 500
PlatformAccount = "0x00000000000000000000000000000000000000fe"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.RPCAddress)
	require.Equal(t, uint32(500), cfg.MaxFeeBps)

	platform, err := cfg.Platform()
	require.NoError(t, err)
	require.Equal(t, byte(0xFE), platform[19])
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := &Config{MaxFeeBps: 10_001}
	cfg.applyDefaults()
	require.Error(t, cfg.Validate())

	cfg = &Config{PlatformAccount: "not-hex"}
	cfg.applyDefaults()
	require.Error(t, cfg.Validate())
}

func TestParseAddress(t *testing.T) {
	addr, err := ParseAddress("0x0102030405060708090a0b0c0d0e0f1011121314")
	require.NoError(t, err)
	require.Equal(t, byte(0x01), addr[0])
	require.Equal(t, byte(0x14), addr[19])

	_, err = ParseAddress("0xdead")
	require.Error(t, err)
}
