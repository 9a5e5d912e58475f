package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/Arthur-Meier/AgroTech/internal/storage"

// AnimalRepository is the persistence API for herd records. It owns the
// translation between Animal and whichever Backend it was built with.
type AnimalRepository struct {
	backend Backend
	now     func() time.Time
	newID   func() string
	strict  bool
	logger  *slog.Logger
	tracer  trace.Tracer
}

type RepositoryOption func(*AnimalRepository)

func WithClock(now func() time.Time) RepositoryOption {
	return func(r *AnimalRepository) {
		if now != nil {
			r.now = now
		}
	}
}

func WithIDGenerator(fn func() string) RepositoryOption {
	return func(r *AnimalRepository) {
		if fn != nil {
			r.newID = fn
		}
	}
}

// WithStrictVersions toggles the compare-and-swap on version. When disabled,
// upserts replace the stored record unconditionally.
func WithStrictVersions(strict bool) RepositoryOption {
	return func(r *AnimalRepository) { r.strict = strict }
}

func WithLogger(logger *slog.Logger) RepositoryOption {
	return func(r *AnimalRepository) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithTracer(tracer trace.Tracer) RepositoryOption {
	return func(r *AnimalRepository) {
		if tracer != nil {
			r.tracer = tracer
		}
	}
}

func NewAnimalRepository(backend Backend, opts ...RepositoryOption) (*AnimalRepository, error) {
	if backend == nil {
		return nil, fmt.Errorf("new animal repository: backend is nil")
	}
	r := &AnimalRepository{
		backend: backend,
		now:     nowUTC,
		newID:   func() string { return ensureID("") },
		strict:  true,
		logger:  slog.New(slog.DiscardHandler),
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *AnimalRepository) Backend() Backend {
	return r.backend
}

func (r *AnimalRepository) Close() error {
	return r.backend.Close()
}

// ListAnimals returns every record, most recently written first, ties broken
// by tag.
func (r *AnimalRepository) ListAnimals(ctx context.Context) ([]Animal, error) {
	ctx, span := r.startSpan(ctx, "storage.list_animals")
	defer span.End()

	items, err := r.backend.List(ctx)
	if err != nil {
		return nil, r.fail(span, fmt.Errorf("list animals: %w", err))
	}
	span.SetAttributes(attribute.Int("animal.count", len(items)))
	return items, nil
}

// GetAnimalByID reports false when no record has the id.
func (r *AnimalRepository) GetAnimalByID(ctx context.Context, id string) (Animal, bool, error) {
	ctx, span := r.startSpan(ctx, "storage.get_animal", attribute.String("animal.id", id))
	defer span.End()

	id = strings.TrimSpace(id)
	if id == "" {
		span.SetAttributes(attribute.Bool("animal.found", false))
		return Animal{}, false, nil
	}

	a, ok, err := r.backend.Get(ctx, id)
	if err != nil {
		return Animal{}, false, r.fail(span, fmt.Errorf("get animal: %w", err))
	}
	span.SetAttributes(attribute.Bool("animal.found", ok))
	return a, ok, nil
}

// UpsertAnimal writes in as a full replacement of the record with its id, or
// creates a record with a fresh id when in.ID is empty. in.Version must be the
// version last read (0 for a new record); the persisted record carries
// in.Version+1 and the current time.
func (r *AnimalRepository) UpsertAnimal(ctx context.Context, in Animal) (Animal, error) {
	ctx, span := r.startSpan(ctx, "storage.upsert_animal",
		attribute.String("animal.id", in.ID),
		attribute.Int64("expected.version", in.Version),
	)
	defer span.End()

	if err := in.Validate(); err != nil {
		return Animal{}, r.fail(span, err)
	}

	a := in
	a.ID = strings.TrimSpace(in.ID)
	created := a.ID == ""
	if created {
		a.ID = r.newID()
		span.SetAttributes(attribute.String("animal.id", a.ID))
	}
	a.UpdatedAt = r.now()
	a.Version = in.Version + 1
	a = a.normalized()

	pre := Precondition{Enforce: r.strict, ExpectedVersion: in.Version}
	if err := r.backend.Put(ctx, a, pre); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			span.SetAttributes(attribute.Bool("conflict.detected", true))
			r.logger.Info("animal upsert rejected", "id", a.ID, "expected_version", in.Version)
		}
		return Animal{}, r.fail(span, fmt.Errorf("upsert animal: %w", err))
	}

	span.SetAttributes(attribute.Int64("animal.version", a.Version), attribute.Bool("animal.created", created))
	r.logger.Debug("animal upserted", "id", a.ID, "version", a.Version, "created", created)
	return a, nil
}

func (r *AnimalRepository) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("storage.backend", string(r.backend.Kind())))
	return r.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (r *AnimalRepository) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
