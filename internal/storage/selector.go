package storage

import (
	"fmt"
	"log/slog"
	"runtime"
	"strings"
)

type BackendOptions struct {
	Kind       BackendKind
	SQLitePath string
	// BlobPath is the BoltDB file behind the blob backend; ":memory:" keeps
	// the blob in process memory.
	BlobPath string

	FailOnBlobWriteError bool
	OnBlobWriteError     func(error)
	Logger               *slog.Logger
}

// ParseBackendKind accepts auto, sqlite or blob. An empty value means auto.
func ParseBackendKind(raw string) (BackendKind, error) {
	switch kind := BackendKind(strings.ToLower(strings.TrimSpace(raw))); kind {
	case "":
		return BackendAuto, nil
	case BackendAuto, BackendSQLite, BackendBlob:
		return kind, nil
	default:
		return "", fmt.Errorf("unknown storage backend %q", raw)
	}
}

// PlatformBackend is the backend a build target uses when none is chosen:
// the browser (js/wasm) target has no embedded SQL engine and gets the blob
// backend, every other target gets SQLite.
func PlatformBackend(goos, goarch string) BackendKind {
	if goos == "js" || goarch == "wasm" {
		return BackendBlob
	}
	return BackendSQLite
}

// ResolveBackendKind turns auto into the platform choice for this process.
func ResolveBackendKind(kind BackendKind) BackendKind {
	if kind == "" || kind == BackendAuto {
		return PlatformBackend(runtime.GOOS, runtime.GOARCH)
	}
	return kind
}

// OpenBackend constructs the backend once for the caller to inject into an
// AnimalRepository. The SQLite handle itself is opened lazily on first use.
func OpenBackend(opts BackendOptions) (Backend, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	switch kind := ResolveBackendKind(opts.Kind); kind {
	case BackendSQLite:
		return NewSQLiteBackend(opts.SQLitePath, logger.With("backend", string(BackendSQLite)))
	case BackendBlob:
		var kv KV
		if opts.BlobPath == MemoryPath {
			kv = NewMemoryKV()
		} else {
			bolt, err := OpenBoltKV(opts.BlobPath)
			if err != nil {
				return nil, fmt.Errorf("open blob backend: %w", err)
			}
			kv = bolt
		}
		return NewBlobBackend(kv,
			WithBlobLogger(logger.With("backend", string(BackendBlob))),
			WithFailOnWriteError(opts.FailOnBlobWriteError),
			WithWriteErrorHook(opts.OnBlobWriteError),
		)
	default:
		return nil, fmt.Errorf("open backend: unknown storage backend %q", kind)
	}
}
