// Package shared provides common utilities used across the codebase.
//
//nolint:revive // "shared" is an intentional package name for cross-cutting helpers.
package shared

import "strings"

// IsSQLiteConflictError checks if the error is a SQLITE_BUSY or
// "database is locked" error. Both are concurrency errors that
// typically warrant retry logic.
func IsSQLiteConflictError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "SQLITE_BUSY") ||
		strings.Contains(err.Error(), "database is locked")
}

// IsSQLiteConstraintError checks if the error is a UNIQUE constraint
// violation, used to detect duplicate-key inserts.
func IsSQLiteConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "constraint failed")
}
