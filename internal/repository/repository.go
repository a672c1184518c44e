// Package repository holds the persistence layer for the reservation
// engine: one small repository type per entity family, each composable
// with a transaction via WithTx so that multi-entity operations (booking a
// reservation, approving it, sweeping expirations) can share one DB
// transaction end to end.
package repository

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned by Get-style lookups when no row matches.
var ErrNotFound = errors.New("repository: record not found")

// ErrDomainConflict is returned when a write would violate a domain
// invariant observed under lock (e.g. a slot already reserved by a
// concurrent transaction). Callers classify it as a conflict, not a bug.
var ErrDomainConflict = errors.New("repository: domain conflict")

// wrapNotFound normalizes gorm.ErrRecordNotFound to the package-level
// ErrNotFound so callers never need to import gorm to check for it.
func wrapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// lockForUpdate applies SELECT ... FOR UPDATE row locking. sqlite (used by
// the test suites) has no row locks and serializes writes on the whole
// database, so the clause is omitted there.
func lockForUpdate(db *gorm.DB) *gorm.DB {
	if db.Dialector.Name() == "sqlite" {
		return db
	}
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}
