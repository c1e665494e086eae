package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, "dev", cfg.Environment)
	require.Equal(t, ":8085", cfg.HTTPAddress)
	require.Equal(t, 30*time.Minute, cfg.AccessTokenTTL)
	require.Equal(t, 200, cfg.HistoryLimit)
	require.Equal(t, []ModelInfo{{ID: "loopback", Name: "Loopback"}}, cfg.Models)
}

func TestLoadEnvironmentFileOverridesDefaults(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "config/setting.ini", "environment = prod\nhttp_address = :9000\n")
	writeConfig(t, root, "config/prod/skillhub.ini", `
http_address = :9100
ai_models = GPT Test|gpt-test, Loopback|loopback
access_token_ttl = 15m
history_limit = 50
`)

	cfg, err := Load(root)
	require.NoError(t, err)
	require.Equal(t, "prod", cfg.Environment)
	require.Equal(t, ":9100", cfg.HTTPAddress)
	require.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	require.Equal(t, 50, cfg.HistoryLimit)
	require.Len(t, cfg.Models, 2)
	require.True(t, cfg.ModelAllowed("gpt-test"))
	require.False(t, cfg.ModelAllowed("gpt-unknown"))
}

func TestEnvVariablesWin(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "config/setting.ini", "environment = dev\nhttp_address = :9000\n")
	t.Setenv("SKILLHUB_HTTP_ADDRESS", ":7777")
	t.Setenv("SKILLHUB_AI_MODELS", "Only|only-model")

	cfg, err := Load(root)
	require.NoError(t, err)
	require.Equal(t, ":7777", cfg.HTTPAddress)
	require.Equal(t, []ModelInfo{{ID: "only-model", Name: "Only"}}, cfg.Models)
}

func TestParseModelsSkipsMalformedEntries(t *testing.T) {
	models := ParseModels("Good|good-id, missing-separator, |no-name, NoID|, Other|other-id")
	require.Equal(t, []ModelInfo{{ID: "good-id", Name: "Good"}, {ID: "other-id", Name: "Other"}}, models)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "config/setting.ini", "environment = dev\naccess_token_ttl = soon\n")

	_, err := Load(root)
	require.Error(t, err)
}
