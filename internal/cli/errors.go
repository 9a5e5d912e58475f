package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/Arthur-Meier/AgroTech/internal/config"
	"github.com/Arthur-Meier/AgroTech/internal/storage"
)

const (
	ExitCodeSuccess  = 0
	ExitCodeGeneric  = 1
	ExitCodeUsage    = 2
	ExitCodeNotFound = 3
	ExitCodeIO       = 7
	ExitCodeConflict = 8
)

type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *ExitError) ExitCode() int {
	if e == nil {
		return ExitCodeGeneric
	}
	return e.Code
}

func asExitError(code int, err error) error {
	if err == nil {
		return nil
	}
	var withExit interface{ ExitCode() int }
	if errors.As(err, &withExit) {
		return err
	}
	return &ExitError{Code: code, Err: err}
}

func mapCommandError(err error) error {
	if err == nil {
		return nil
	}
	var withExit interface{ ExitCode() int }
	if errors.As(err, &withExit) {
		return err
	}

	switch {
	case errors.Is(err, storage.ErrInvalidInput), errors.Is(err, config.ErrInvalidConfig):
		return asExitError(ExitCodeUsage, err)
	case errors.Is(err, storage.ErrVersionConflict):
		return asExitError(ExitCodeConflict, err)
	case errors.Is(err, storage.ErrSchema):
		return asExitError(ExitCodeIO, err)
	}

	var pathErr *fs.PathError
	if errors.As(err, &pathErr) || errors.Is(err, os.ErrNotExist) {
		return asExitError(ExitCodeIO, err)
	}
	return asExitError(ExitCodeGeneric, err)
}

func usageErrorf(format string, args ...any) error {
	return &ExitError{
		Code: ExitCodeUsage,
		Err:  fmt.Errorf(format, args...),
	}
}

func notFoundErrorf(format string, args ...any) error {
	return &ExitError{
		Code: ExitCodeNotFound,
		Err:  fmt.Errorf(format, args...),
	}
}
