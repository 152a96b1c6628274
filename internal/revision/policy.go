package revision

import (
	"reflect"

	"gorm.io/gorm"
)

// Policy decides whether saving rec warrants a new snapshot. It runs once per
// record per save, before the write, and must not perform I/O. A returned
// error aborts the save.
type Policy func(tx *gorm.DB, rec Record) (bool, error)

// VersionWanter lets a model answer the question itself. DefaultPolicy uses it
// when the model implements it.
type VersionWanter interface {
	WantsNewVersion(tx *gorm.DB) (bool, error)
}

// DefaultPolicy defers to the record's WantsNewVersion when present and falls
// back to RevisionChanged.
func DefaultPolicy(tx *gorm.DB, rec Record) (bool, error) {
	if w, ok := rec.(VersionWanter); ok {
		return w.WantsNewVersion(tx)
	}
	return RevisionChanged(tx, rec), nil
}

// Always versions every save.
func Always(*gorm.DB, Record) (bool, error) { return true, nil }

// Never disables snapshots, including the one taken on create.
func Never(*gorm.DB, Record) (bool, error) { return false, nil }

// RevisionChanged reports whether the revision field of rec is dirty. A
// revision field maintained by gorm (autoUpdateTime) changes on every update
// that runs hooks, so it counts as changed for those too.
func RevisionChanged(tx *gorm.DB, rec Record) bool {
	p, ok := FromDB(tx)
	if !ok {
		return false
	}
	entry, ok := p.lookupType(reflect.Indirect(reflect.ValueOf(rec)).Type())
	if !ok {
		return false
	}
	if op, _ := tx.InstanceGet(operationKey); op == opUpdate && !tx.Statement.SkipHooks {
		if f := entry.primary.LookUpField(entry.config.RevisionField); f != nil && f.AutoUpdateTime > 0 {
			return true
		}
	}
	for _, col := range DirtyAttributes(tx, rec) {
		if col == entry.config.RevisionColumn {
			return true
		}
	}
	return false
}
