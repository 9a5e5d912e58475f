package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// brokenKV reads like an empty store and refuses every write.
type brokenKV struct {
	err error
}

func (k brokenKV) Get(context.Context, string) ([]byte, error) { return nil, nil }

func (k brokenKV) Update(_ context.Context, _ string, fn func([]byte) ([]byte, error)) error {
	if _, err := fn(nil); err != nil {
		return err
	}
	return k.err
}

func (k brokenKV) Close() error { return nil }

func seedBlob(t *testing.T, kv KV, payload string) {
	t.Helper()
	require.NoError(t, kv.Update(bg, AnimalsKey, func([]byte) ([]byte, error) {
		return []byte(payload), nil
	}))
}

func storedRecords(t *testing.T, kv KV) []AnimalRecord {
	t.Helper()
	raw, err := kv.Get(bg, AnimalsKey)
	require.NoError(t, err)
	var records []AnimalRecord
	require.NoError(t, json.Unmarshal(raw, &records))
	return records
}

func TestBlobCorruptPayloadReadsAsEmpty(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	kv := NewMemoryKV()
	seedBlob(t, kv, `{not json`)
	backend := newTestMemoryBlobBackend(t, kv, WithBlobLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	repo := newTestRepo(t, backend)

	items, err := repo.ListAnimals(bg)
	require.NoError(t, err)
	require.Empty(t, items)
	_, ok, err := repo.GetAnimalByID(bg, "anything")
	require.NoError(t, err)
	require.False(t, ok)
	require.Contains(t, logs.String(), "not a valid animal array")

	// The next write replaces the corrupt payload.
	saved, err := repo.UpsertAnimal(bg, calf("A-001"))
	require.NoError(t, err)
	items, err = repo.ListAnimals(bg)
	require.NoError(t, err)
	require.Equal(t, []Animal{saved}, items)
}

func TestBlobUnreadableRecordReadsAsEmpty(t *testing.T) {
	t.Parallel()

	kv := NewMemoryKV()
	seedBlob(t, kv, `[{"id":"x","tag":"T","type":"CALF","sex":"MALE","birthDate":"03/01/2024","version":1}]`)
	repo := newTestRepo(t, newTestMemoryBlobBackend(t, kv))

	items, err := repo.ListAnimals(bg)
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestBlobPrependsNewRecordsAndReplacesInPlace(t *testing.T) {
	t.Parallel()

	kv := NewMemoryKV()
	clock := newStepClock(time.Second)
	repo := newTestRepo(t, newTestMemoryBlobBackend(t, kv), WithClock(clock.Now))

	first, err := repo.UpsertAnimal(bg, calf("FIRST"))
	require.NoError(t, err)
	second, err := repo.UpsertAnimal(bg, calf("SECOND"))
	require.NoError(t, err)

	records := storedRecords(t, kv)
	require.Len(t, records, 2)
	require.Equal(t, second.ID, records[0].ID)
	require.Equal(t, first.ID, records[1].ID)

	_, err = repo.UpsertAnimal(bg, first)
	require.NoError(t, err)

	records = storedRecords(t, kv)
	require.Len(t, records, 2)
	require.Equal(t, first.ID, records[1].ID)
	require.Equal(t, int64(2), records[1].Version)

	// List still orders by updatedAt regardless of array position.
	items, err := repo.ListAnimals(bg)
	require.NoError(t, err)
	require.Equal(t, []string{"FIRST", "SECOND"}, tags(items))
}

func TestBlobPersistsCamelCaseJSON(t *testing.T) {
	t.Parallel()

	kv := NewMemoryKV()
	repo := newTestRepo(t, newTestMemoryBlobBackend(t, kv))

	in := calf("J-1")
	in.SireTag = "S-1"
	in.BirthDate = dateRef(2023, 5, 4)
	in.WeightKg = floatRef(88.25)
	_, err := repo.UpsertAnimal(bg, in)
	require.NoError(t, err)

	raw, err := kv.Get(bg, AnimalsKey)
	require.NoError(t, err)
	payload := string(raw)
	require.Contains(t, payload, `"sireTag":"S-1"`)
	require.Contains(t, payload, `"birthDate":"2023-05-04"`)
	require.Contains(t, payload, `"weightKg":88.25`)
	require.Contains(t, payload, `"updatedAt":"`)
	require.Contains(t, payload, `"version":1`)
	require.NotContains(t, payload, `"breed"`)
}

func TestBlobWriteFailureIsReportedAndSwallowed(t *testing.T) {
	t.Parallel()

	var (
		mu       sync.Mutex
		reported []error
	)
	writeErr := errors.New("quota exceeded")
	backend := newTestMemoryBlobBackend(t, brokenKV{err: writeErr}, WithWriteErrorHook(func(err error) {
		mu.Lock()
		defer mu.Unlock()
		reported = append(reported, err)
	}))
	repo := newTestRepo(t, backend)

	saved, err := repo.UpsertAnimal(bg, calf("Q-1"))
	require.NoError(t, err)
	require.Equal(t, int64(1), saved.Version)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, reported, 1)
	require.ErrorIs(t, reported[0], writeErr)
}

func TestBlobWriteFailureFailsWhenConfigured(t *testing.T) {
	t.Parallel()

	writeErr := errors.New("quota exceeded")
	backend := newTestMemoryBlobBackend(t, brokenKV{err: writeErr}, WithFailOnWriteError(true))
	repo := newTestRepo(t, backend)

	_, err := repo.UpsertAnimal(bg, calf("Q-1"))
	require.ErrorIs(t, err, writeErr)
}

func TestBlobConflictIsNeverSwallowed(t *testing.T) {
	t.Parallel()

	hookCalled := false
	backend := newTestMemoryBlobBackend(t, NewMemoryKV(), WithWriteErrorHook(func(error) { hookCalled = true }))
	repo := newTestRepo(t, backend)

	saved, err := repo.UpsertAnimal(bg, calf("C-1"))
	require.NoError(t, err)
	_, err = repo.UpsertAnimal(bg, saved)
	require.NoError(t, err)

	_, err = repo.UpsertAnimal(bg, saved)
	require.ErrorIs(t, err, ErrVersionConflict)
	require.False(t, hookCalled)
}

func TestBlobCanceledContextPropagates(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t, newTestMemoryBlobBackend(t, NewMemoryKV()))
	ctx, cancel := context.WithCancel(bg)
	cancel()

	_, err := repo.UpsertAnimal(ctx, calf("X-1"))
	require.ErrorIs(t, err, context.Canceled)
	_, err = repo.ListAnimals(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestBoltBlobSurvivesReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "herd.bolt")

	kv, err := OpenBoltKV(path)
	require.NoError(t, err)
	backend, err := NewBlobBackend(kv)
	require.NoError(t, err)
	saved, err := newTestRepo(t, backend).UpsertAnimal(bg, calf("P-1"))
	require.NoError(t, err)
	require.NoError(t, backend.Close())

	kv, err = OpenBoltKV(path)
	require.NoError(t, err)
	backend, err = NewBlobBackend(kv)
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	loaded, ok, err := newTestRepo(t, backend).GetAnimalByID(bg, saved.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, saved, loaded)
}

func TestFromRecordRejectsMalformedDates(t *testing.T) {
	t.Parallel()

	_, err := FromRecord(AnimalRecord{ID: "x", Tag: "T", Type: "CALF", Sex: "MALE", SaleDate: "2024-13-40"})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = FromRecord(AnimalRecord{ID: "x", Tag: "T", Type: "CALF", Sex: "MALE", UpdatedAt: "yesterday"})
	require.ErrorIs(t, err, ErrInvalidInput)
}
