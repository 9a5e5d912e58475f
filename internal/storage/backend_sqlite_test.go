package storage

import (
	"database/sql"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSQLiteOpensOnceForConcurrentFirstUse(t *testing.T) {
	t.Parallel()

	backend := newTestSQLiteBackend(t)

	const callers = 16
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := backend.List(bg)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	backend.mu.Lock()
	opens := backend.opens
	backend.mu.Unlock()
	require.Equal(t, 1, opens)
}

func TestSQLiteOpenEnablesWriteAheadLog(t *testing.T) {
	t.Parallel()

	backend := newTestSQLiteBackend(t)
	db, err := backend.handle(bg)
	require.NoError(t, err)

	var mode string
	require.NoError(t, db.QueryRow(`PRAGMA journal_mode`).Scan(&mode))
	require.Equal(t, "wal", mode)
}

func TestSQLiteOpenFailureIsSchemaError(t *testing.T) {
	t.Parallel()

	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	backend, err := NewSQLiteBackend(filepath.Join(blocker, "herd.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	_, err = backend.List(bg)
	require.ErrorIs(t, err, ErrSchema)

	// A failed open is retried on the next call rather than cached.
	_, err = backend.List(bg)
	require.ErrorIs(t, err, ErrSchema)
	require.Zero(t, backend.opens)
}

func TestSQLiteClosedBackendRejectsCalls(t *testing.T) {
	t.Parallel()

	backend := newTestSQLiteBackend(t)
	_, err := backend.List(bg)
	require.NoError(t, err)
	require.NoError(t, backend.Close())

	_, err = backend.List(bg)
	require.ErrorIs(t, err, ErrBackendClosed)
	_, _, err = backend.Get(bg, "x")
	require.ErrorIs(t, err, ErrBackendClosed)
	require.ErrorIs(t, backend.Put(bg, calf("A"), Precondition{}), ErrBackendClosed)
}

func TestSQLiteStoresNullForAbsentOptionals(t *testing.T) {
	t.Parallel()

	backend := newTestSQLiteBackend(t)
	repo := newTestRepo(t, backend)
	saved, err := repo.UpsertAnimal(bg, calf("N-1"))
	require.NoError(t, err)

	db, err := backend.handle(bg)
	require.NoError(t, err)

	var (
		breed, birth, updated sql.NullString
		weight                sql.NullFloat64
	)
	require.NoError(t, db.QueryRow(`SELECT breed, birthDate, weightKg, updatedAt FROM animals WHERE id = ?`, saved.ID).
		Scan(&breed, &birth, &weight, &updated))
	require.False(t, breed.Valid)
	require.False(t, birth.Valid)
	require.False(t, weight.Valid)
	require.Equal(t, FormatTimestamp(saved.UpdatedAt), updated.String)
	require.Len(t, updated.String, len("2006-01-02T15:04:05.000Z"))
}

func TestSQLiteInMemoryDatabase(t *testing.T) {
	t.Parallel()

	backend, err := NewSQLiteBackend(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	repo := newTestRepo(t, backend)
	saved, err := repo.UpsertAnimal(bg, calf("M-1"))
	require.NoError(t, err)

	items, err := repo.ListAnimals(bg)
	require.NoError(t, err)
	require.Equal(t, []Animal{saved}, items)
}

func TestSQLiteDatabaseFileIsPrivate(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("file modes are not enforced on windows")
	}

	backend := newTestSQLiteBackend(t)
	_, err := backend.List(bg)
	require.NoError(t, err)

	info, err := os.Stat(backend.Path())
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestNewSQLiteBackendRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := NewSQLiteBackend("  ", nil)
	require.Error(t, err)
}
