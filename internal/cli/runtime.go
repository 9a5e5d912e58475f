package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/Arthur-Meier/AgroTech/internal/config"
	logpkg "github.com/Arthur-Meier/AgroTech/internal/log"
	"github.com/Arthur-Meier/AgroTech/internal/storage"
)

var (
	loadConfigFn            = config.Load
	logFallback   io.Writer = os.Stderr
)

// session is the storage stack one command runs against.
type session struct {
	cfg    config.Config
	kind   storage.BackendKind
	path   string
	logger *slog.Logger
	repo   *storage.AnimalRepository

	logCloser io.Closer
}

func (s *session) Close() error {
	var err error
	if s.repo != nil {
		err = s.repo.Close()
	}
	if s.logCloser != nil {
		if closeErr := s.logCloser.Close(); err == nil {
			err = closeErr
		}
	}
	return err
}

func loadSessionConfig(deps commandDeps) (config.Config, storage.BackendKind, error) {
	cfg, err := loadConfigFn(configLoadOptions(deps.globals))
	if err != nil {
		return config.Config{}, "", fmt.Errorf("load config: %w", err)
	}
	kind, err := storage.ParseBackendKind(cfg.Storage.Backend)
	if err != nil {
		return config.Config{}, "", fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	kind = storage.ResolveBackendKind(kind)
	applyDBPath(&cfg, kind, deps.globals)
	return cfg, kind, nil
}

func openSession(deps commandDeps) (*session, error) {
	cfg, kind, err := loadSessionConfig(deps)
	if err != nil {
		return nil, err
	}

	fallback := logFallback
	if deps.globals != nil && deps.globals.Quiet {
		fallback = nil
	}
	logger, logCloser, err := logpkg.New(logpkg.Options{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		MaxSizeMB: cfg.Logging.MaxSizeMB,
		MaxFiles:  cfg.Logging.MaxFiles,
		Fallback:  fallback,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: logging: %v", config.ErrInvalidConfig, err)
	}

	backend, err := storage.OpenBackend(storage.BackendOptions{
		Kind:                 kind,
		SQLitePath:           cfg.Storage.SQLitePath,
		BlobPath:             cfg.Storage.BlobPath,
		FailOnBlobWriteError: cfg.Storage.FailOnBlobWriteError,
		Logger:               logger,
	})
	if err != nil {
		_ = logCloser.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	repo, err := storage.NewAnimalRepository(backend,
		storage.WithStrictVersions(cfg.Storage.StrictVersions),
		storage.WithLogger(logger),
	)
	if err != nil {
		_ = backend.Close()
		_ = logCloser.Close()
		return nil, err
	}

	logger.Debug("storage session opened", "backend", string(kind), "path", storagePath(cfg, kind))
	return &session{
		cfg:       cfg,
		kind:      kind,
		path:      storagePath(cfg, kind),
		logger:    logger,
		repo:      repo,
		logCloser: logCloser,
	}, nil
}

func withSession(ctx context.Context, deps commandDeps, fn func(context.Context, *session) error) (err error) {
	s, err := openSession(deps)
	if err != nil {
		return mapCommandError(err)
	}
	defer func() {
		if closeErr := s.Close(); err == nil && closeErr != nil {
			err = mapCommandError(fmt.Errorf("close storage: %w", closeErr))
		}
	}()
	return mapCommandError(fn(ctx, s))
}

func printJSON(w io.Writer, value any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}
