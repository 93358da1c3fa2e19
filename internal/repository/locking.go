package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// forUpdate applies row locking on dialects that support it. SQLite has no
// FOR UPDATE syntax; there a single-connection pool serializes writers, which
// preserves the same isolation within each transaction.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}
