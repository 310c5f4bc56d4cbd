package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lherron/partymerge/internal/domain"
)

// isolate points HOME and cwd at fresh temp dirs and clears PARTYMERGE_*.
func isolate(t *testing.T) (home, cwd string) {
	t.Helper()
	home = t.TempDir()
	cwd = t.TempDir()
	t.Setenv("HOME", home)
	for _, key := range []string{
		"PARTYMERGE_DB_PATH", "PARTYMERGE_DB_PATH_FILE", "PARTYMERGE_LOG_LEVEL",
		"PARTYMERGE_OUTPUT", "PARTYMERGE_ACTOR", "PARTYMERGE_MERGE_POLICY",
		"PARTYMERGE_SCHEMA_OVERLAY", "PARTYMERGE_DAEMON_ADDR",
		"PARTYMERGE_DAEMON_TOKEN", "PARTYMERGE_DAEMON_TOKEN_FILE",
		"PARTYMERGE_WEBHOOK_URLS",
	} {
		t.Setenv(key, "")
	}
	chdir(t, cwd)
	return home, cwd
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	oldCwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(oldCwd) })
}

func TestLoad_Defaults(t *testing.T) {
	home, _ := isolate(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "table", cfg.Output)
	assert.Equal(t, domain.MergePolicySoft, cfg.Policy())
	assert.Equal(t, filepath.Join(home, ".local", "share", "partymerge", "partymerge.db"), cfg.DBPath)
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	home, _ := isolate(t)

	configDir := filepath.Join(home, ".config", "partymerge")
	require.NoError(t, os.MkdirAll(configDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "config.yaml"), []byte(`
db_path: /srv/parties.db
merge_policy: hard
default_actor: ops
log_level: debug
webhook_urls:
  - https://hooks.example.com/merged
`), 0644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/srv/parties.db", cfg.DBPath)
	assert.Equal(t, domain.MergePolicyHard, cfg.Policy())
	assert.Equal(t, "ops", cfg.GetActor())
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, []string{"https://hooks.example.com/merged"}, cfg.WebhookURLs)

	t.Setenv("PARTYMERGE_MERGE_POLICY", "soft")
	t.Setenv("PARTYMERGE_WEBHOOK_URLS", "http://a.test/hook,http://b.test/hook")
	t.Setenv("PARTYMERGE_ACTOR", "alice")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, domain.MergePolicySoft, cfg.Policy())
	assert.Equal(t, "alice", cfg.GetActor())
	assert.Equal(t, []string{"http://a.test/hook", "http://b.test/hook"}, cfg.WebhookURLs)
}

func TestLoad_InvalidPolicy(t *testing.T) {
	isolate(t)
	t.Setenv("PARTYMERGE_MERGE_POLICY", "shred")

	_, err := Load()
	assert.ErrorContains(t, err, "invalid merge policy")
}

func TestLoad_TokenFromFile(t *testing.T) {
	_, cwd := isolate(t)
	tokenPath := filepath.Join(cwd, "token")
	require.NoError(t, os.WriteFile(tokenPath, []byte("s3cret\n"), 0600))
	t.Setenv("PARTYMERGE_DAEMON_TOKEN_FILE", tokenPath)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.DaemonToken)
}

func TestLoad_ProjectLocalDB(t *testing.T) {
	isolate(t)
	require.NoError(t, os.MkdirAll(".partymerge", 0755))
	require.NoError(t, os.WriteFile(".partymerge/partymerge.db", nil, 0644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ".partymerge/partymerge.db", cfg.DBPath)
}

func TestFindEnvLocal_InParentDir(t *testing.T) {
	tmpDir := t.TempDir()
	childDir := filepath.Join(tmpDir, "parent", "child")
	require.NoError(t, os.MkdirAll(childDir, 0755))
	envPath := filepath.Join(tmpDir, ".env.local")
	require.NoError(t, os.WriteFile(envPath, []byte("PARTYMERGE_OUTPUT=json"), 0644))

	chdir(t, childDir)

	result := findEnvLocal()
	require.NotEmpty(t, result)
	// Resolve symlinks for comparison (macOS /var -> /private/var)
	expected, _ := filepath.EvalSymlinks(envPath)
	got, _ := filepath.EvalSymlinks(result)
	assert.Equal(t, expected, got)
}

func TestFindEnvLocal_ClosestWins(t *testing.T) {
	tmpDir := t.TempDir()
	childDir := filepath.Join(tmpDir, "child")
	require.NoError(t, os.Mkdir(childDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".env.local"), []byte("A=parent"), 0644))
	childEnv := filepath.Join(childDir, ".env.local")
	require.NoError(t, os.WriteFile(childEnv, []byte("A=child"), 0644))

	chdir(t, childDir)

	expected, _ := filepath.EvalSymlinks(childEnv)
	got, _ := filepath.EvalSymlinks(findEnvLocal())
	assert.Equal(t, expected, got)
}

func TestFindEnvLocal_StopsAtHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	child := filepath.Join(home, "work")
	require.NoError(t, os.Mkdir(child, 0755))

	chdir(t, child)
	assert.Empty(t, findEnvLocal())
}
