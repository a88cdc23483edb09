package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := load(viper.New(), false)
	require.NoError(t, err)

	assert.Equal(t, DefaultBackendURL, cfg.BackendURL)
	assert.Equal(t, int64(DefaultChainID), cfg.ChainID)
	assert.True(t, cfg.Slippage.Equal(decimal.RequireFromString("0.02")))
	assert.Equal(t, 500*time.Millisecond, cfg.QuoteDebounce)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, 60, cfg.PollMaxAttempts)
	assert.Equal(t, "IDRX", cfg.TokenAliases["IDR"])
	assert.Equal(t, filepath.Join(home, ".trustbridge-session.json"), cfg.SessionPath)
	assert.False(t, cfg.WalletEnabled())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("TRUSTBRIDGE_SLIPPAGE", "0.005")
	t.Setenv("TRUSTBRIDGE_POLL_INTERVAL", "2s")
	t.Setenv("TRUSTBRIDGE_NOTIFY_TELEGRAM_CHAT_ID", "-1001")
	t.Setenv("TRUSTBRIDGE_BACKEND_URL", "http://localhost:8080/")

	cfg, err := load(viper.New(), false)
	require.NoError(t, err)

	assert.True(t, cfg.Slippage.Equal(decimal.RequireFromString("0.005")))
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, int64(-1001), cfg.Notify.TelegramChatID)
	assert.Equal(t, "http://localhost:8080", cfg.BackendURL)
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"TRUSTBRIDGE_SLIPPAGE":      "1.5",
		"TRUSTBRIDGE_SWAP_CONTRACT": "not-an-address",
		"TRUSTBRIDGE_CHAIN_ID":      "0",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := load(viper.New(), false)
			assert.Error(t, err)
		})
	}
}

func TestLoadReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Chdir(dir)

	yml := []byte("swap_contract: \"0x00000000000000000000000000000000000000aa\"\n" +
		"private_key: \"abc\"\n" +
		"token_aliases:\n  php: phpc\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".trustbridge.yaml"), yml, 0o600))

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.WalletEnabled())
	assert.Equal(t, "PHPC", cfg.TokenAliases["PHP"])
}

func TestMasked(t *testing.T) {
	cfg, err := load(viper.New(), false)
	require.NoError(t, err)
	cfg.PrivateKey = "0123456789abcdef0123456789abcdef"
	cfg.Notify.TelegramToken = "short"

	out, err := cfg.Masked()
	require.NoError(t, err)
	assert.Contains(t, string(out), "0123****cdef")
	assert.NotContains(t, string(out), cfg.PrivateKey)
	assert.NotContains(t, string(out), "short")
	assert.Contains(t, string(out), "0.02")
}

func TestTxURL(t *testing.T) {
	cfg := &Config{ExplorerURL: DefaultExplorerURL}
	assert.Equal(t, "https://sepolia.basescan.org/tx/0xabc", cfg.TxURL("0xabc"))
	assert.Empty(t, cfg.TxURL(""))
}

func TestNewLogger(t *testing.T) {
	assert.True(t, NewLogger("debug").Core().Enabled(-1))
	assert.False(t, NewLogger("nonsense").Core().Enabled(0))
}
