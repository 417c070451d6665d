package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadValidConfigWithDryRunSkipsCredentialChecks(t *testing.T) {
	path := writeTempConfig(t, `
assets: ["a1", "a2"]
exchange_host: "https://clob.example"
market_stream_url: "wss://clob.example/ws/market"
user_stream_url: "wss://clob.example/ws/user"
dry_run: true
`)
	cfg, err := Load(path, "")
	require.NoError(t, err)
	require.Equal(t, []string{"a1", "a2"}, cfg.Assets)
	require.True(t, cfg.DryRun)
	require.Equal(t, 100.0, cfg.OrderSizeUSDC, "defaults should fill unset fields")
}

func TestLoadMissingRequiredFieldsCollectsAllErrors(t *testing.T) {
	path := writeTempConfig(t, `dry_run: true`)
	_, err := Load(path, "")
	require.Error(t, err)

	verrs, ok := err.(ValidationErrors)
	require.True(t, ok)
	require.GreaterOrEqual(t, len(verrs), 3, "assets, exchange_host, market_stream_url, user_stream_url should all fail")
}

func TestLoadWithoutDryRunRequiresCredentials(t *testing.T) {
	path := writeTempConfig(t, `
assets: ["a1"]
exchange_host: "https://clob.example"
market_stream_url: "wss://clob.example/ws/market"
user_stream_url: "wss://clob.example/ws/user"
`)
	_, err := Load(path, "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "api_key")
}

func TestApplyFlagsOverridesDryRunAndAssets(t *testing.T) {
	cfg := Default()
	dryRun := true
	assets := "x,y,z"
	cfg = cfg.ApplyFlags(&dryRun, nil, &assets, nil)
	require.True(t, cfg.DryRun)
	require.Equal(t, []string{"x", "y", "z"}, cfg.Assets)
}
