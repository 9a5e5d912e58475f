package cli

import (
	"path/filepath"
	"strings"

	"github.com/Arthur-Meier/AgroTech/internal/config"
	"github.com/Arthur-Meier/AgroTech/internal/storage"
)

func configLoadOptions(globals *GlobalOptions) config.LoadOptions {
	opts := config.LoadOptions{}
	if globals == nil {
		return opts
	}
	if configPath := strings.TrimSpace(globals.ConfigPath); configPath != "" {
		opts.ConfigPath = filepath.Clean(configPath)
	}
	if backend := strings.TrimSpace(globals.Backend); backend != "" {
		opts.Flags.Backend = &backend
	}
	return opts
}

// applyDBPath points --db at whichever file the resolved backend uses.
func applyDBPath(cfg *config.Config, kind storage.BackendKind, globals *GlobalOptions) {
	if globals == nil {
		return
	}
	path := strings.TrimSpace(globals.DBPath)
	if path == "" {
		return
	}
	if path != storage.MemoryPath {
		path = filepath.Clean(path)
	}
	switch kind {
	case storage.BackendSQLite:
		cfg.Storage.SQLitePath = path
	case storage.BackendBlob:
		cfg.Storage.BlobPath = path
	}
}

// storagePath is the data file the resolved backend reads and writes.
func storagePath(cfg config.Config, kind storage.BackendKind) string {
	if kind == storage.BackendBlob {
		return cfg.Storage.BlobPath
	}
	return cfg.Storage.SQLitePath
}
