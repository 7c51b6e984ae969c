// Package db pkg/db/errors.go provides the persistence error taxonomy.
package db

import (
	"context"
	"errors"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrTransient marks retryable I/O faults: busy database, pool
	// exhaustion, operation timeout.
	ErrTransient = errors.New("transient database error")

	// ErrFatal marks schema and constraint violations that retries cannot
	// fix.
	ErrFatal = errors.New("fatal database error")

	errFailedToBeginTx = errors.New("failed to begin transaction")
	errFailedToInsert  = errors.New("failed to insert")
	errFailedToUpsert  = errors.New("failed to upsert")
	errFailedToQuery   = errors.New("failed to query")
	errFailedToScan    = errors.New("failed to scan")
	errFailedToDelete  = errors.New("failed to delete")
	errFailedToInit    = errors.New("failed to initialize schema")
	errFailedOpenDB    = errors.New("failed to open database")
	errUnknownTable    = errors.New("table not eligible for retention")
)

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsFatal reports whether err must shut the service down.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}

// classify wraps a driver error with the taxonomy sentinel it belongs to.
// Unrecognized faults default to transient so the caller retries them.
func classify(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errors.Join(ErrTransient, err)
	}

	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrIoErr, sqlite3.ErrFull:
			return errors.Join(ErrTransient, err)
		case sqlite3.ErrError, sqlite3.ErrConstraint, sqlite3.ErrSchema,
			sqlite3.ErrNotADB, sqlite3.ErrAuth, sqlite3.ErrPerm, sqlite3.ErrReadonly:
			return errors.Join(ErrFatal, err)
		}
	}

	return errors.Join(ErrTransient, err)
}
