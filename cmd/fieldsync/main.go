// Package main provides the fieldsync CLI: offline-first capture of field
// records with a durable sync queue against a remote CRUD backend.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/openchw/fieldsync/internal/remote"
	"github.com/openchw/fieldsync/pkg/types"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
	os.Exit(exitSuccess)
}

// exitCode classifies a command error: bad input from the operator exits
// exitUserError, store and transport faults exit exitSysError.
func exitCode(err error) int {
	switch {
	case errors.Is(err, types.ErrTableUnknown),
		errors.Is(err, types.ErrNotFound),
		errors.Is(err, types.ErrInvalidKey),
		errors.Is(err, types.ErrInvalidFields),
		errors.Is(err, types.ErrInvalidAction),
		remote.IsValidation(err):
		return exitUserError
	}
	return exitSysError
}
