package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// AnimalsKey is the single KV entry holding the serialized collection.
const AnimalsKey = "animals"

// BlobBackend keeps the whole collection as one JSON array under AnimalsKey.
// Every read decodes the full array and every write re-encodes it, which is
// only reasonable for single-herd record counts.
type BlobBackend struct {
	kv     KV
	logger *slog.Logger

	failOnWriteError bool
	onWriteError     func(error)
}

type BlobOption func(*BlobBackend)

func WithBlobLogger(logger *slog.Logger) BlobOption {
	return func(b *BlobBackend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithFailOnWriteError makes KV write failures fatal to Put. By default they
// are logged, reported to the write error hook and swallowed.
func WithFailOnWriteError(fail bool) BlobOption {
	return func(b *BlobBackend) { b.failOnWriteError = fail }
}

// WithWriteErrorHook receives every swallowed write failure.
func WithWriteErrorHook(fn func(error)) BlobOption {
	return func(b *BlobBackend) { b.onWriteError = fn }
}

func NewBlobBackend(kv KV, opts ...BlobOption) (*BlobBackend, error) {
	if kv == nil {
		return nil, fmt.Errorf("new blob backend: kv is nil")
	}
	b := &BlobBackend{
		kv:     kv,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

func (b *BlobBackend) Kind() BackendKind {
	return BackendBlob
}

func (b *BlobBackend) List(ctx context.Context) ([]Animal, error) {
	items, err := b.load(ctx)
	if err != nil {
		return nil, err
	}
	sortAnimals(items)
	return items, nil
}

func (b *BlobBackend) Get(ctx context.Context, id string) (Animal, bool, error) {
	items, err := b.load(ctx)
	if err != nil {
		return Animal{}, false, err
	}
	for _, a := range items {
		if a.ID == id {
			return a, true, nil
		}
	}
	return Animal{}, false, nil
}

func (b *BlobBackend) Put(ctx context.Context, animal Animal, pre Precondition) error {
	var rejected error
	err := b.kv.Update(ctx, AnimalsKey, func(current []byte) ([]byte, error) {
		items := b.decode(current)

		idx := -1
		for i := range items {
			if items[i].ID == animal.ID {
				idx = i
				break
			}
		}

		if pre.Enforce {
			var stored int64
			if idx >= 0 {
				stored = items[idx].Version
			}
			if stored != pre.ExpectedVersion {
				rejected = fmt.Errorf("%w: animal %s is not at version %d", ErrVersionConflict, animal.ID, pre.ExpectedVersion)
				return nil, rejected
			}
		}

		if idx >= 0 {
			items[idx] = animal
		} else {
			items = append([]Animal{animal}, items...)
		}
		return encodeAnimals(items)
	})
	if rejected != nil {
		return rejected
	}
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || b.failOnWriteError {
		return fmt.Errorf("put animal: %w", err)
	}

	b.logger.Warn("blob write failed, keeping in-memory result", "key", AnimalsKey, "id", animal.ID, "err", err)
	if b.onWriteError != nil {
		b.onWriteError(err)
	}
	return nil
}

func (b *BlobBackend) Close() error {
	return b.kv.Close()
}

func (b *BlobBackend) load(ctx context.Context) ([]Animal, error) {
	raw, err := b.kv.Get(ctx, AnimalsKey)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		b.logger.Warn("blob read failed, treating collection as empty", "key", AnimalsKey, "err", err)
		return []Animal{}, nil
	}
	return b.decode(raw), nil
}

// decode never fails: an absent or unreadable blob is an empty collection.
func (b *BlobBackend) decode(raw []byte) []Animal {
	if len(raw) == 0 {
		return []Animal{}
	}

	var records []AnimalRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		b.logger.Warn("blob is not a valid animal array, treating collection as empty", "key", AnimalsKey, "err", err)
		return []Animal{}
	}

	items := make([]Animal, 0, len(records))
	for _, r := range records {
		a, err := FromRecord(r)
		if err != nil {
			b.logger.Warn("blob holds an unreadable record, treating collection as empty", "key", AnimalsKey, "id", r.ID, "err", err)
			return []Animal{}
		}
		items = append(items, a)
	}
	return items
}

func encodeAnimals(items []Animal) ([]byte, error) {
	records := make([]AnimalRecord, 0, len(items))
	for _, a := range items {
		records = append(records, ToRecord(a))
	}
	payload, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("encode animals: %w", err)
	}
	return payload, nil
}
