package db

import "gorm.io/gorm"

// ForUpdate returns the row-locking clause for the connected dialect.
// SQLite serializes writers at the database level, so the clause is omitted there.
func ForUpdate(conn *gorm.DB) string {
	if conn == nil || conn.Dialector == nil {
		return " FOR UPDATE"
	}
	if conn.Dialector.Name() == "sqlite" {
		return ""
	}
	return " FOR UPDATE"
}

// ForUpdateSkipLocked returns the claim clause used by batch workers.
func ForUpdateSkipLocked(conn *gorm.DB) string {
	if conn == nil || conn.Dialector == nil {
		return " FOR UPDATE SKIP LOCKED"
	}
	if conn.Dialector.Name() == "sqlite" {
		return ""
	}
	return " FOR UPDATE SKIP LOCKED"
}
