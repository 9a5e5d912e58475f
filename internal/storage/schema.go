package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

const (
	animalsTable = "animals"

	pragmaJournalModeWAL = `PRAGMA journal_mode=WAL`
)

type columnSpec struct {
	name       string
	definition string
	// addDefinition is used when the column is appended to an existing table.
	// SQLite refuses NOT NULL without a default there.
	addDefinition string
}

var animalColumns = []columnSpec{
	{name: "id", definition: `TEXT PRIMARY KEY`},
	{name: "tag", definition: `TEXT NOT NULL`, addDefinition: `TEXT NOT NULL DEFAULT ''`},
	{name: "type", definition: `TEXT NOT NULL`, addDefinition: `TEXT NOT NULL DEFAULT ''`},
	{name: "sex", definition: `TEXT NOT NULL`, addDefinition: `TEXT NOT NULL DEFAULT ''`},
	{name: "breed", definition: `TEXT`},
	{name: "origin", definition: `TEXT`},
	{name: "lot", definition: `TEXT`},
	{name: "pasture", definition: `TEXT`},
	{name: "supplier", definition: `TEXT`},
	{name: "buyer", definition: `TEXT`},
	{name: "sireTag", definition: `TEXT`},
	{name: "damTag", definition: `TEXT`},
	{name: "causeMortis", definition: `TEXT`},
	{name: "notes", definition: `TEXT`},
	{name: "purchaseDate", definition: `TEXT`},
	{name: "birthDate", definition: `TEXT`},
	{name: "weaningDate", definition: `TEXT`},
	{name: "saleDate", definition: `TEXT`},
	{name: "pastureStartDate", definition: `TEXT`},
	{name: "confinementStartDate", definition: `TEXT`},
	{name: "weightKg", definition: `REAL`},
	{name: "priceValue", definition: `REAL`},
	{name: "updatedAt", definition: `TEXT NOT NULL`, addDefinition: `TEXT NOT NULL DEFAULT ''`},
	{name: "version", definition: `INTEGER NOT NULL`, addDefinition: `INTEGER NOT NULL DEFAULT 0`},
}

// AnimalColumns lists the columns the current Animal shape requires, in
// table order.
func AnimalColumns() []string {
	out := make([]string, 0, len(animalColumns))
	for _, column := range animalColumns {
		out = append(out, column.name)
	}
	return out
}

func configureSQLite(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, pragmaJournalModeWAL); err != nil {
		return fmt.Errorf("%w: configure sqlite %q: %v", ErrSchema, pragmaJournalModeWAL, err)
	}
	return nil
}

// EnsureSchema creates the animals table or appends the columns an older
// table lacks. Existing columns and rows are never touched, so it is safe to
// call before every operation.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("%w: ensure schema: db is nil", ErrSchema)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: ensure schema: begin: %v", ErrSchema, err)
	}

	if err := ensureAnimalsTable(ctx, tx); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: ensure schema: commit: %v", ErrSchema, err)
	}
	return nil
}

func ensureAnimalsTable(ctx context.Context, tx *sql.Tx) error {
	defs := make([]string, 0, len(animalColumns))
	for _, column := range animalColumns {
		defs = append(defs, column.name+` `+column.definition)
	}
	create := `CREATE TABLE IF NOT EXISTS ` + animalsTable + ` (` + strings.Join(defs, `, `) + `)`
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("create %s: %w", animalsTable, err)
	}

	existing, err := columnSet(ctx, tx, animalsTable)
	if err != nil {
		return err
	}
	if !existing["id"] {
		return fmt.Errorf("table %s has no id column", animalsTable)
	}

	for _, column := range animalColumns {
		if existing[strings.ToLower(column.name)] {
			continue
		}
		definition := column.addDefinition
		if definition == "" {
			definition = column.definition
		}
		if _, err := tx.ExecContext(ctx, `ALTER TABLE `+animalsTable+` ADD COLUMN `+column.name+` `+definition); err != nil {
			return fmt.Errorf("add %s.%s: %w", animalsTable, column.name, err)
		}
	}
	return nil
}

// Columns returns the column names of the animals table as stored.
func Columns(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, `PRAGMA table_info(`+animalsTable+`)`)
	if err != nil {
		return nil, fmt.Errorf("query table info %s: %w", animalsTable, err)
	}
	defer func() { _ = rows.Close() }()

	names := []string{}
	for rows.Next() {
		name, err := scanTableInfo(rows)
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table info %s: %w", animalsTable, err)
	}
	return names, nil
}

func columnSet(ctx context.Context, tx *sql.Tx, table string) (map[string]bool, error) {
	rows, err := tx.QueryContext(ctx, `PRAGMA table_info(`+table+`)`)
	if err != nil {
		return nil, fmt.Errorf("query table info %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	out := map[string]bool{}
	for rows.Next() {
		name, err := scanTableInfo(rows)
		if err != nil {
			return nil, err
		}
		out[strings.ToLower(name)] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table info %s: %w", table, err)
	}
	return out, nil
}

func scanTableInfo(rows *sql.Rows) (string, error) {
	var (
		cid     int
		name    string
		typeStr string
		notNull int
		dfltVal sql.NullString
		pk      int
	)
	if err := rows.Scan(&cid, &name, &typeStr, &notNull, &dfltVal, &pk); err != nil {
		return "", fmt.Errorf("scan table info: %w", err)
	}
	return name, nil
}
