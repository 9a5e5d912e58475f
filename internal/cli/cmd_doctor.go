package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	debugpkg "github.com/Arthur-Meier/AgroTech/internal/debug"
	"github.com/Arthur-Meier/AgroTech/internal/storage"
	"github.com/spf13/cobra"
)

const doctorTimeout = 10 * time.Second

func newDoctorCommand(deps commandDeps) *cobra.Command {
	var bundlePath string
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and storage health",
		Example: "  agrotech doctor\n" +
			"  agrotech doctor --bundle ./agrotech-debug.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return usageErrorf("doctor does not accept positional arguments")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), doctorTimeout)
			defer cancel()
			bundle := runDoctorChecks(ctx, deps)

			if strings.TrimSpace(bundlePath) != "" {
				if err := debugpkg.WriteBundle(bundlePath, bundle); err != nil {
					return mapCommandError(err)
				}
			}

			if deps.globals.JSON {
				payload := map[string]any{"checks": bundle.Checks}
				if bundlePath != "" {
					payload["bundle"] = bundlePath
				}
				if err := printJSON(deps.out, payload); err != nil {
					return mapCommandError(err)
				}
			} else if !deps.globals.Quiet {
				for _, check := range bundle.Checks {
					state := "ok"
					if !check.OK {
						state = "fail"
					}
					if _, err := fmt.Fprintf(deps.out, "%s: %s (%s)\n", check.Name, state, check.Message); err != nil {
						return mapCommandError(err)
					}
				}
				if bundlePath != "" {
					if _, err := fmt.Fprintf(deps.out, "debug bundle written: %s\n", bundlePath); err != nil {
						return mapCommandError(err)
					}
				}
			}

			if bundle.Failed() {
				return asExitError(ExitCodeGeneric, fmt.Errorf("doctor: one or more checks failed"))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&bundlePath, "bundle", "", "Also write the results to a JSON debug bundle")
	return cmd
}

func runDoctorChecks(ctx context.Context, deps commandDeps) debugpkg.Bundle {
	bundle := debugpkg.NewBundle()
	bundle.Version = map[string]any{
		"version":    deps.build.Version,
		"commit":     deps.build.Commit,
		"build_time": deps.build.BuildTime,
	}

	cfg, kind, err := loadSessionConfig(deps)
	if err != nil {
		bundle.Checks = append(bundle.Checks, debugpkg.Check{Name: "config", OK: false, Message: err.Error()})
		return bundle
	}
	bundle.Checks = append(bundle.Checks, debugpkg.Check{Name: "config", OK: true, Message: "loaded"})
	bundle.Storage = map[string]any{
		"backend":          string(kind),
		"platform_backend": string(storage.ResolveBackendKind(storage.BackendAuto)),
		"path":             storagePath(cfg, kind),
		"strict_versions":  cfg.Storage.StrictVersions,
	}

	s, err := openSession(deps)
	if err != nil {
		bundle.Checks = append(bundle.Checks, debugpkg.Check{Name: "storage", OK: false, Message: err.Error()})
		return bundle
	}
	defer func() { _ = s.Close() }()

	items, err := s.repo.ListAnimals(ctx)
	if err != nil {
		bundle.Checks = append(bundle.Checks, debugpkg.Check{Name: "storage", OK: false, Message: err.Error()})
		return bundle
	}
	bundle.Storage["animals"] = len(items)
	bundle.Checks = append(bundle.Checks, debugpkg.Check{
		Name:    "storage",
		OK:      true,
		Message: fmt.Sprintf("%s backend, %d animals", kind, len(items)),
	})

	if backend, ok := s.repo.Backend().(*storage.SQLiteBackend); ok {
		columns, err := backend.Columns(ctx)
		if err != nil {
			bundle.Checks = append(bundle.Checks, debugpkg.Check{Name: "schema", OK: false, Message: err.Error()})
			return bundle
		}
		bundle.Storage["columns"] = len(columns)
		bundle.Checks = append(bundle.Checks, debugpkg.Check{
			Name:    "schema",
			OK:      len(columns) >= len(storage.AnimalColumns()),
			Message: fmt.Sprintf("%d columns", len(columns)),
		})
	}
	if kind == storage.BackendBlob && storagePath(cfg, kind) == storage.MemoryPath {
		bundle.Notes = append(bundle.Notes, "blob backend is in memory; records do not survive the process")
	}
	return bundle
}
