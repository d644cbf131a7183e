package db

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// IsDuplicateKeyErr reports whether err is a unique-constraint violation.
// The alert upsert relies on this to treat a lost insert race as "slot
// already taken" rather than a failure. Drivers that do not translate to
// gorm.ErrDuplicatedKey are matched on their error text.
func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	// postgres, SQLSTATE 23505
	if strings.Contains(err.Error(), "duplicate key value violates unique constraint") {
		return true
	}

	// sqlite, SQLITE_CONSTRAINT_UNIQUE
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return true
	}

	return false
}
