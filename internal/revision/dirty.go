package revision

import (
	"context"
	"reflect"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
	"gorm.io/gorm/utils"
)

// Versioned carries the per-instance state the plugin needs. Embed it in every
// revisioned model:
//
//	type Story struct {
//		ID        uint
//		UpdatedAt time.Time
//		revision.Versioned `gorm:"-" json:"-"`
//	}
type Versioned struct {
	// column values as of the last load or successful save; nil for new records
	baseline map[string]interface{}
	// latch set by the decide callback and consumed by the snapshot callback
	wantsVersion bool
}

func (v *Versioned) revisionState() *Versioned { return v }

// Record is implemented by any model embedding Versioned.
type Record interface {
	revisionState() *Versioned
}

// Tracked reports whether rec was loaded from or saved to the database.
func Tracked(rec Record) bool {
	return rec.revisionState().baseline != nil
}

// Dirty reports whether any persisted attribute of rec changed since it was
// loaded or last saved. New records are always dirty.
func Dirty(tx *gorm.DB, rec Record) bool {
	return len(DirtyAttributes(tx, rec)) > 0
}

// DirtyAttributes returns the columns of rec whose in-memory value differs
// from the last loaded or committed value, in declaration order. Every column
// of a new record is dirty. Inside Update/Updates calls the pending
// assignments are included.
func DirtyAttributes(tx *gorm.DB, rec Record) []string {
	s := recordSchema(tx, rec)
	if s == nil {
		return nil
	}
	ctx := statementContext(tx)
	rv := reflect.Indirect(reflect.ValueOf(rec))
	state := rec.revisionState()
	pending := pendingAssignments(tx, rec)

	out := make([]string, 0, 4)
	for _, f := range s.Fields {
		if f.DBName == "" {
			continue
		}
		if state.baseline == nil || pending[f.DBName] {
			out = append(out, f.DBName)
			continue
		}
		cur, _ := f.ValueOf(ctx, rv)
		if !sameValue(state.baseline[f.DBName], normalize(cur)) {
			out = append(out, f.DBName)
		}
	}
	return out
}

func (v *Versioned) remember(ctx context.Context, s *schema.Schema, rv reflect.Value) {
	baseline := make(map[string]interface{}, len(s.Fields))
	for _, f := range s.Fields {
		if f.DBName == "" {
			continue
		}
		cur, _ := f.ValueOf(ctx, rv)
		baseline[f.DBName] = normalize(cur)
	}
	v.baseline = baseline
}

// pendingAssignments collects columns changed by Update/Updates, where the
// new values travel in Statement.Dest rather than in the record itself.
func pendingAssignments(tx *gorm.DB, rec Record) map[string]bool {
	stmt := tx.Statement
	if stmt == nil || stmt.Schema == nil || stmt.Dest == nil || stmt.Model == nil {
		return nil
	}
	if samePointer(stmt.Dest, stmt.Model) || !samePointer(stmt.Model, rec) {
		return nil
	}
	if stmt.Schema.ModelType != reflect.Indirect(reflect.ValueOf(rec)).Type() {
		return nil
	}
	out := map[string]bool{}
	for _, f := range stmt.Schema.Fields {
		if f.DBName != "" && stmt.Changed(f.Name) {
			out[f.DBName] = true
		}
	}
	return out
}

func recordSchema(tx *gorm.DB, rec Record) *schema.Schema {
	typ := reflect.Indirect(reflect.ValueOf(rec)).Type()
	if tx.Statement != nil && tx.Statement.Schema != nil && tx.Statement.Schema.ModelType == typ {
		return tx.Statement.Schema
	}
	stmt := &gorm.Statement{DB: tx}
	if err := stmt.Parse(rec); err != nil {
		return nil
	}
	return stmt.Schema
}

func statementContext(tx *gorm.DB) context.Context {
	if tx.Statement != nil && tx.Statement.Context != nil {
		return tx.Statement.Context
	}
	return context.Background()
}

func samePointer(a, b interface{}) bool {
	av, bv := reflect.ValueOf(a), reflect.ValueOf(b)
	if av.Kind() != reflect.Ptr || bv.Kind() != reflect.Ptr {
		return false
	}
	return av.Pointer() == bv.Pointer()
}

// normalize copies a field value so later in-place mutation of the record
// (through a pointer or a byte slice) is still detected.
func normalize(v interface{}) interface{} {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return nil
	}
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Slice:
		if rv.IsNil() {
			return nil
		}
		cp := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		reflect.Copy(cp, rv)
		return cp.Interface()
	case reflect.Map:
		if rv.IsNil() {
			return nil
		}
		cp := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			cp.SetMapIndex(iter.Key(), iter.Value())
		}
		return cp.Interface()
	}
	return rv.Interface()
}

func sameValue(a, b interface{}) bool {
	if at, ok := a.(time.Time); ok {
		bt, ok := b.(time.Time)
		return ok && at.Equal(bt)
	}
	return utils.AssertEqual(a, b)
}
