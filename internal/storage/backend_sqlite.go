package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	_ "modernc.org/sqlite"
)

// MemoryPath selects an in-process store instead of a file on either backend.
const MemoryPath = ":memory:"

// SQLiteBackend stores one row per animal. The database handle is opened on
// first use; concurrent first callers share a single in-flight open.
type SQLiteBackend struct {
	path   string
	logger *slog.Logger

	group singleflight.Group

	mu     sync.Mutex
	db     *sql.DB
	closed bool
	opens  int
}

func NewSQLiteBackend(path string, logger *slog.Logger) (*SQLiteBackend, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("new sqlite backend: empty path")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SQLiteBackend{path: path, logger: logger}, nil
}

func (b *SQLiteBackend) Kind() BackendKind {
	return BackendSQLite
}

func (b *SQLiteBackend) Path() string {
	return b.path
}

func (b *SQLiteBackend) handle(ctx context.Context) (*sql.DB, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBackendClosed
	}
	if b.db != nil {
		db := b.db
		b.mu.Unlock()
		return db, nil
	}
	b.mu.Unlock()

	// The open outlives the first caller's cancellation since other callers
	// may be waiting on it.
	openCtx := context.WithoutCancel(ctx)
	v, err, _ := b.group.Do("open", func() (any, error) {
		b.mu.Lock()
		if b.db != nil {
			db := b.db
			b.mu.Unlock()
			return db, nil
		}
		b.mu.Unlock()

		db, err := b.open(openCtx)
		if err != nil {
			return nil, err
		}

		b.mu.Lock()
		defer b.mu.Unlock()
		if b.closed {
			_ = db.Close()
			return nil, ErrBackendClosed
		}
		b.db = db
		b.opens++
		return db, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*sql.DB), nil
}

func (b *SQLiteBackend) open(ctx context.Context) (*sql.DB, error) {
	if b.path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(b.path), 0o700); err != nil {
			return nil, fmt.Errorf("%w: open sqlite: create parent dir: %v", ErrSchema, err)
		}
	}

	// busy_timeout is per connection, so it rides on the DSN for every
	// pooled connection; journal_mode is persistent and set once below.
	db, err := sql.Open("sqlite", b.path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite: %v", ErrSchema, err)
	}
	if b.path == MemoryPath {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(8)
		db.SetMaxIdleConns(4)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: open sqlite: %v", ErrSchema, err)
	}
	if err := configureSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := ensureDBPermissions(b.path); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}

	b.logger.Debug("sqlite backend opened", "path", b.path)
	return db, nil
}

// EnsureSchema runs the schema check again against the open handle.
func (b *SQLiteBackend) EnsureSchema(ctx context.Context) error {
	db, err := b.handle(ctx)
	if err != nil {
		return err
	}
	return EnsureSchema(ctx, db)
}

func (b *SQLiteBackend) Columns(ctx context.Context) ([]string, error) {
	db, err := b.handle(ctx)
	if err != nil {
		return nil, err
	}
	return Columns(ctx, db)
}

var (
	selectAnimalColumns = strings.Join(AnimalColumns(), ", ")
	animalPlaceholders  = strings.TrimSuffix(strings.Repeat("?, ", len(animalColumns)), ", ")
	excludedAssignments = assignNonKeyColumns(func(name string) string { return `excluded.` + name })
	updateAssignments   = assignNonKeyColumns(func(string) string { return `?` })
)

func assignNonKeyColumns(value func(name string) string) string {
	out := make([]string, 0, len(animalColumns)-1)
	for _, column := range animalColumns[1:] {
		out = append(out, column.name+` = `+value(column.name))
	}
	return strings.Join(out, ", ")
}

func (b *SQLiteBackend) List(ctx context.Context) ([]Animal, error) {
	db, err := b.handle(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT `+selectAnimalColumns+`
		FROM animals
		ORDER BY updatedAt DESC, tag ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list animals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	items := []Animal{}
	for rows.Next() {
		a, err := scanAnimal(rows)
		if err != nil {
			return nil, fmt.Errorf("list animals: %w", err)
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list animals: iterate: %w", err)
	}
	return items, nil
}

func (b *SQLiteBackend) Get(ctx context.Context, id string) (Animal, bool, error) {
	db, err := b.handle(ctx)
	if err != nil {
		return Animal{}, false, err
	}

	a, err := scanAnimal(db.QueryRowContext(ctx, `
		SELECT `+selectAnimalColumns+`
		FROM animals
		WHERE id = ?
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Animal{}, false, nil
		}
		return Animal{}, false, fmt.Errorf("get animal: %w", err)
	}
	return a, true, nil
}

func (b *SQLiteBackend) Put(ctx context.Context, animal Animal, pre Precondition) error {
	db, err := b.handle(ctx)
	if err != nil {
		return err
	}

	args := animalArgs(animal)
	if !pre.Enforce {
		if _, err := db.ExecContext(ctx, `INSERT OR REPLACE INTO animals(`+selectAnimalColumns+`) VALUES(`+animalPlaceholders+`)`, args...); err != nil {
			return fmt.Errorf("put animal: %w", err)
		}
		return nil
	}

	// A caller at version 0 may create the row, or take over a legacy row
	// still at 0. Any other expected version must match an existing row.
	var result sql.Result
	if pre.ExpectedVersion == 0 {
		result, err = db.ExecContext(ctx, `
			INSERT INTO animals(`+selectAnimalColumns+`) VALUES(`+animalPlaceholders+`)
			ON CONFLICT(id) DO UPDATE SET `+excludedAssignments+`
			WHERE animals.version = 0
		`, args...)
	} else {
		result, err = db.ExecContext(ctx, `
			UPDATE animals SET `+updateAssignments+`
			WHERE id = ? AND version = ?
		`, append(args[1:], animal.ID, pre.ExpectedVersion)...)
	}
	if err != nil {
		return fmt.Errorf("put animal: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("put animal: rows affected: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("%w: animal %s is not at version %d", ErrVersionConflict, animal.ID, pre.ExpectedVersion)
	}
	return nil
}

func (b *SQLiteBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	if b.db == nil {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	return err
}

// animalArgs binds an animal to the placeholders in animalColumns order.
func animalArgs(a Animal) []any {
	return []any{
		a.ID,
		a.Tag,
		string(a.Type),
		string(a.Sex),
		nullString(a.Breed),
		nullString(a.Origin),
		nullString(a.Lot),
		nullString(a.Pasture),
		nullString(a.Supplier),
		nullString(a.Buyer),
		nullString(a.SireTag),
		nullString(a.DamTag),
		nullString(a.CauseMortis),
		nullString(a.Notes),
		nullDate(a.PurchaseDate),
		nullDate(a.BirthDate),
		nullDate(a.WeaningDate),
		nullDate(a.SaleDate),
		nullDate(a.PastureStartDate),
		nullDate(a.ConfinementStartDate),
		nullFloat(a.WeightKg),
		nullFloat(a.PriceValue),
		fmtTimestamp(a.UpdatedAt),
		a.Version,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnimal(row rowScanner) (Animal, error) {
	var (
		a                                                              Animal
		animalType, sex, updated                                       string
		breed, origin, lot, pasture, supplier, buyer                   sql.NullString
		sireTag, damTag, causeMortis, notes                            sql.NullString
		purchase, birth, weaning, sale, pastureStart, confinementStart sql.NullString
		weight, price                                                  sql.NullFloat64
	)
	if err := row.Scan(
		&a.ID, &a.Tag, &animalType, &sex,
		&breed, &origin, &lot, &pasture, &supplier, &buyer,
		&sireTag, &damTag, &causeMortis, &notes,
		&purchase, &birth, &weaning, &sale, &pastureStart, &confinementStart,
		&weight, &price,
		&updated, &a.Version,
	); err != nil {
		return Animal{}, err
	}

	a.Type = AnimalType(animalType)
	a.Sex = Sex(sex)
	a.Breed = breed.String
	a.Origin = origin.String
	a.Lot = lot.String
	a.Pasture = pasture.String
	a.Supplier = supplier.String
	a.Buyer = buyer.String
	a.SireTag = sireTag.String
	a.DamTag = damTag.String
	a.CauseMortis = causeMortis.String
	a.Notes = notes.String
	a.WeightKg = floatPtr(weight)
	a.PriceValue = floatPtr(price)

	dates := []struct {
		raw    sql.NullString
		target **time.Time
	}{
		{purchase, &a.PurchaseDate},
		{birth, &a.BirthDate},
		{weaning, &a.WeaningDate},
		{sale, &a.SaleDate},
		{pastureStart, &a.PastureStartDate},
		{confinementStart, &a.ConfinementStartDate},
	}
	for _, d := range dates {
		t, err := parseDate(d.raw.String)
		if err != nil {
			return Animal{}, err
		}
		*d.target = t
	}

	// Rows that predate the updatedAt column carry an empty default.
	if updated != "" {
		t, err := parseTimestamp(updated)
		if err != nil {
			return Animal{}, err
		}
		a.UpdatedAt = t
	}
	return a, nil
}

func ensureDBPermissions(path string) error {
	if path == MemoryPath {
		return nil
	}
	for _, p := range []string{path, path + "-wal"} {
		if err := os.Chmod(p, 0o600); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("set db file permissions: %w", err)
		}
	}
	return nil
}
