package storage

import (
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPlatformBackend(t *testing.T) {
	t.Parallel()

	require.Equal(t, BackendBlob, PlatformBackend("js", "wasm"))
	require.Equal(t, BackendBlob, PlatformBackend("wasip1", "wasm"))
	require.Equal(t, BackendSQLite, PlatformBackend("linux", "amd64"))
	require.Equal(t, BackendSQLite, PlatformBackend("darwin", "arm64"))
	require.Equal(t, BackendSQLite, PlatformBackend("windows", "amd64"))
}

func TestResolveBackendKind(t *testing.T) {
	t.Parallel()

	platform := PlatformBackend(runtime.GOOS, runtime.GOARCH)
	require.Equal(t, platform, ResolveBackendKind(BackendAuto))
	require.Equal(t, platform, ResolveBackendKind(""))
	require.Equal(t, BackendBlob, ResolveBackendKind(BackendBlob))
	require.Equal(t, BackendSQLite, ResolveBackendKind(BackendSQLite))
}

func TestParseBackendKind(t *testing.T) {
	t.Parallel()

	cases := map[string]BackendKind{
		"":         BackendAuto,
		"auto":     BackendAuto,
		" SQLite ": BackendSQLite,
		"blob":     BackendBlob,
	}
	for raw, want := range cases {
		got, err := ParseBackendKind(raw)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	_, err := ParseBackendKind("mongo")
	require.ErrorContains(t, err, "unknown storage backend")
}

func TestOpenBackendBuildsRequestedKind(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	sqliteBackend, err := OpenBackend(BackendOptions{Kind: BackendSQLite, SQLitePath: filepath.Join(dir, "herd.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqliteBackend.Close() })
	require.IsType(t, &SQLiteBackend{}, sqliteBackend)
	require.Equal(t, BackendSQLite, sqliteBackend.Kind())

	boltBackend, err := OpenBackend(BackendOptions{Kind: BackendBlob, BlobPath: filepath.Join(dir, "herd.bolt")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = boltBackend.Close() })
	require.IsType(t, &BlobBackend{}, boltBackend)
	require.FileExists(t, filepath.Join(dir, "herd.bolt"))

	memoryBackend, err := OpenBackend(BackendOptions{Kind: BackendBlob, BlobPath: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = memoryBackend.Close() })
	require.Equal(t, BackendBlob, memoryBackend.Kind())

	_, err = OpenBackend(BackendOptions{Kind: "mongo"})
	require.Error(t, err)
}

func TestOpenBackendWiresBlobWriteErrorPolicy(t *testing.T) {
	t.Parallel()

	backend, err := OpenBackend(BackendOptions{
		Kind:                 BackendBlob,
		BlobPath:             ":memory:",
		FailOnBlobWriteError: true,
		OnBlobWriteError:     func(error) {},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	blob := backend.(*BlobBackend)
	require.True(t, blob.failOnWriteError)
	require.NotNil(t, blob.onWriteError)
}
