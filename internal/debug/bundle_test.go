package debug

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteBundleWritesJSONFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "bundle.json")
	bundle := NewBundle()
	bundle.Version = map[string]any{"version": "1.2.3"}
	bundle.Storage = map[string]any{"backend": "sqlite", "animals": 3}
	bundle.Checks = []Check{{Name: "storage", OK: true, Message: "3 animals"}}

	require.NoError(t, WriteBundle(path, bundle))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded Bundle
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, bundle.GOOS, decoded.GOOS)
	require.Equal(t, "1.2.3", decoded.Version["version"])
	require.Equal(t, "sqlite", decoded.Storage["backend"])
	require.Equal(t, bundle.Checks, decoded.Checks)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestWriteBundleRequiresOutputPath(t *testing.T) {
	t.Parallel()

	err := WriteBundle("", NewBundle())
	require.Error(t, err)
	require.Contains(t, err.Error(), "output path is required")
}

func TestBundleFailed(t *testing.T) {
	t.Parallel()

	bundle := NewBundle()
	require.False(t, bundle.Failed())
	bundle.Checks = append(bundle.Checks, Check{Name: "config", OK: true}, Check{Name: "storage", OK: false})
	require.True(t, bundle.Failed())
}
