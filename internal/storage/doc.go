// Package storage persists herd records. A single AnimalRepository sits on top
// of either an embedded SQLite database with additive schema migration or a
// key-value store holding the whole collection as one JSON blob.
package storage
