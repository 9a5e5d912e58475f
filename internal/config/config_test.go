package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigPrecedenceFlagOverEnv(t *testing.T) {
	t.Parallel()

	cfgPath := writeConfigFile(t, `
[storage]
backend = "blob"
`)

	flagBackend := "sqlite"
	cfg, err := Load(LoadOptions{
		ConfigPath: cfgPath,
		Env:        testEnv(t, map[string]string{"AGROTECH_BACKEND": "auto"}),
		Flags:      FlagOverrides{Backend: &flagBackend},
	})
	require.NoError(t, err)
	require.Equal(t, "sqlite", cfg.Storage.Backend)
}

func TestLoadConfigPrecedenceEnvOverFile(t *testing.T) {
	t.Parallel()

	cfgPath := writeConfigFile(t, `
[storage]
backend = "blob"
strict_versions = true
`)

	cfg, err := Load(LoadOptions{
		ConfigPath: cfgPath,
		Env: testEnv(t, map[string]string{
			"AGROTECH_BACKEND":         "sqlite",
			"AGROTECH_STRICT_VERSIONS": "false",
		}),
	})
	require.NoError(t, err)
	require.Equal(t, "sqlite", cfg.Storage.Backend)
	require.False(t, cfg.Storage.StrictVersions)
}

func TestLoadConfigDefaultsLiveUnderHome(t *testing.T) {
	t.Parallel()

	home := t.TempDir()
	cfg, err := Load(LoadOptions{
		ConfigPath: filepath.Join(home, "missing.toml"),
		Env:        map[string]string{"AGROTECH_HOME": home},
	})
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(home), cfg)
	require.Equal(t, filepath.Join(home, "herd.db"), cfg.Storage.SQLitePath)
	require.Equal(t, filepath.Join(home, "herd.bolt"), cfg.Storage.BlobPath)
	require.True(t, cfg.Storage.StrictVersions)
	require.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)
}

func TestLoadConfigFromTOMLParsesAllSupportedFields(t *testing.T) {
	t.Parallel()

	cfgPath := writeConfigFile(t, `
[storage]
backend = "blob"
sqlite_path = "/data/herd.db"
blob_path = ":memory:"
strict_versions = false
fail_on_blob_write_error = true

[logging]
level = "debug"
file = "/var/log/agrotech.log"
max_size_mb = 50
max_files = 9

[server]
addr = "0.0.0.0:9090"
read_timeout = "2s"
write_timeout = "3s"
`)

	cfg, err := Load(LoadOptions{ConfigPath: cfgPath, Env: testEnv(t, nil)})
	require.NoError(t, err)

	require.Equal(t, StorageConfig{
		Backend:              "blob",
		SQLitePath:           "/data/herd.db",
		BlobPath:             ":memory:",
		StrictVersions:       false,
		FailOnBlobWriteError: true,
	}, cfg.Storage)
	require.Equal(t, LoggingConfig{
		Level:     "debug",
		File:      "/var/log/agrotech.log",
		MaxSizeMB: 50,
		MaxFiles:  9,
	}, cfg.Logging)
	require.Equal(t, ServerConfig{
		Addr:         "0.0.0.0:9090",
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 3 * time.Second,
	}, cfg.Server)
}

func TestLoadConfigUsesConfigPathFromEnv(t *testing.T) {
	t.Parallel()

	cfgPath := writeConfigFile(t, `
[logging]
level = "warn"
`)

	cfg, err := Load(LoadOptions{Env: testEnv(t, map[string]string{"AGROTECH_CONFIG_PATH": cfgPath})})
	require.NoError(t, err)
	require.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"bad toml":      "[storage\nbackend = ",
		"bad backend":   "[storage]\nbackend = \"mongo\"\n",
		"bad level":     "[logging]\nlevel = \"loud\"\n",
		"bad duration":  "[server]\nread_timeout = \"soon\"\n",
		"zero timeout":  "[server]\nwrite_timeout = \"0s\"\n",
		"empty addr":    "[server]\naddr = \"\"\n",
		"empty sqlite":  "[storage]\nsqlite_path = \"\"\n",
		"zero log size": "[logging]\nmax_size_mb = 0\n",
	}
	for name, body := range cases {
		_, err := Load(LoadOptions{ConfigPath: writeConfigFile(t, body), Env: testEnv(t, nil)})
		require.ErrorIsf(t, err, ErrInvalidConfig, "case %s", name)
	}
}

func TestLoadConfigRejectsMalformedEnv(t *testing.T) {
	t.Parallel()

	for _, key := range []string{"AGROTECH_STRICT_VERSIONS", "AGROTECH_FAIL_ON_BLOB_WRITE_ERROR", "AGROTECH_LOG_MAX_FILES"} {
		_, err := Load(LoadOptions{
			ConfigPath: filepath.Join(t.TempDir(), "missing.toml"),
			Env:        testEnv(t, map[string]string{key: "maybe"}),
		})
		require.ErrorIsf(t, err, ErrInvalidConfig, "key %s", key)
	}
}

func TestLoadConfigReportsUnreadableFile(t *testing.T) {
	t.Parallel()

	_, err := Load(LoadOptions{ConfigPath: t.TempDir(), Env: testEnv(t, nil)})
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrInvalidConfig)
}

func TestHomeFollowsXDGDataHome(t *testing.T) {
	t.Parallel()

	explicit, err := Home(map[string]string{"AGROTECH_HOME": "/srv/herd"})
	require.NoError(t, err)
	require.Equal(t, "/srv/herd", explicit)

	if runtime.GOOS == "darwin" {
		t.Skip("darwin uses Application Support")
	}
	xdg := t.TempDir()
	got, err := Home(map[string]string{"AGROTECH_HOME": "", "XDG_DATA_HOME": xdg})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(xdg, "agrotech"), got)
}

func testEnv(t *testing.T, extra map[string]string) map[string]string {
	t.Helper()
	env := map[string]string{"AGROTECH_HOME": t.TempDir()}
	for k, v := range extra {
		env[k] = v
	}
	return env
}

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}
