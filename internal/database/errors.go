package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"strings"

	"gorm.io/gorm"
)

// transientMarkers are driver messages for failures that clear on their own:
// sqlite lock contention and mysql lock waits, deadlocks and dropped connections
var transientMarkers = []string{
	"database is locked",
	"database table is locked",
	"sqlite_busy",
	"deadlock",
	"lock wait timeout",
	"connection refused",
	"connection reset",
	"broken pipe",
	"invalid connection",
	"too many connections",
	"i/o timeout",
}

// IsTransient reports whether a metadata store error may succeed on retry
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
