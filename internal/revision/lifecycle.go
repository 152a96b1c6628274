package revision

import (
	"fmt"
	"reflect"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const (
	operationKey = "revisioned:operation"
	decidedKey   = "revisioned:decided"
	opCreate     = "create"
	opUpdate     = "update"
)

// Initialize registers the callbacks. gorm calls it from db.Use.
//
// decide runs after the model's Before* hooks and before the write; snapshot
// runs once the write's transaction is committed or rolled back; track
// records the baseline of every loaded record.
func (p *Plugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	if err := cb.Create().After("gorm:before_create").Before("gorm:create").
		Register("revisioned:decide_create", p.decide(opCreate)); err != nil {
		return err
	}
	if err := cb.Create().After("gorm:commit_or_rollback_transaction").
		Register("revisioned:snapshot_create", p.snapshot); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:before_update").Before("gorm:update").
		Register("revisioned:decide_update", p.decide(opUpdate)); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:commit_or_rollback_transaction").
		Register("revisioned:snapshot_update", p.snapshot); err != nil {
		return err
	}
	return cb.Query().After("gorm:after_query").Register("revisioned:track", p.track)
}

func (p *Plugin) decide(op string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		if db.Error != nil || db.Statement.Schema == nil {
			return
		}
		entry, ok := p.lookupType(db.Statement.Schema.ModelType)
		if !ok {
			return
		}
		db.InstanceSet(operationKey, op)

		// Save retries a no-op update as a create on a clone of the same
		// statement. That create reuses the update's decisions.
		var carried map[*Versioned]bool
		if op == opCreate {
			if v, ok := db.Statement.Settings.LoadAndDelete(decidedKey); ok {
				carried, _ = v.(map[*Versioned]bool)
			}
		}
		decided := make(map[*Versioned]bool)

		policy := entry.Policy()
		eachRecord(db.Statement.ReflectValue, func(rec Record, rv reflect.Value) bool {
			state := rec.revisionState()
			state.wantsVersion = false
			if op == opUpdate && hasZeroKey(db, entry, rv) {
				return true
			}
			if want, ok := carried[state]; ok {
				state.wantsVersion = want
				return true
			}
			want, err := policy(db, rec)
			if err != nil {
				db.AddError(fmt.Errorf("revision: decide %s: %w", entry.primary.Name, err))
				return false
			}
			state.wantsVersion = want
			decided[state] = want
			return true
		})
		if op == opUpdate {
			db.Statement.Settings.Store(decidedKey, decided)
		}
	}
}

func (p *Plugin) snapshot(db *gorm.DB) {
	if db.Statement.Schema == nil {
		return
	}
	entry, ok := p.lookupType(db.Statement.Schema.ModelType)
	if !ok {
		return
	}
	committed := db.Error == nil && db.RowsAffected > 0
	if db.Error != nil || committed {
		db.Statement.Settings.Delete(decidedKey)
	}

	var latched []reflect.Value
	var all []*Versioned
	eachRecord(db.Statement.ReflectValue, func(rec Record, rv reflect.Value) bool {
		state := rec.revisionState()
		all = append(all, state)
		if !committed {
			return true
		}
		if hasZeroKey(db, entry, rv) {
			return true
		}
		state.remember(db.Statement.Context, db.Statement.Schema, rv)
		if state.wantsVersion {
			latched = append(latched, rv)
		}
		return true
	})
	defer func() {
		for _, s := range all {
			s.wantsVersion = false
		}
	}()
	if len(latched) == 0 {
		return
	}

	if err := p.writeSnapshots(db, entry, latched); err != nil {
		p.log.Error("Snapshot insert failed",
			"model", entry.primary.Name,
			"history_table", entry.config.HistoryTable,
			"count", len(latched),
			"error", err,
		)
		db.AddError(&SnapshotPersistenceError{Model: entry.primary.Name, Table: entry.config.HistoryTable, Err: err})
	}
}

// writeSnapshots inserts one history row per record with a single Create on
// the connection the save ran on.
func (p *Plugin) writeSnapshots(db *gorm.DB, entry *Entry, records []reflect.Value) error {
	ctx, span := p.tracer.Start(db.Statement.Context, "revision.snapshot",
		trace.WithAttributes(
			attribute.String("revision.model", entry.primary.Name),
			attribute.String("revision.history_table", entry.config.HistoryTable),
			attribute.Int("revision.count", len(records)),
		),
	)
	defer span.End()

	vt, err := entry.Version()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "history type")
		return err
	}
	rows := reflect.MakeSlice(reflect.SliceOf(vt.Type), len(records), len(records))
	for i, rv := range records {
		if err := vt.copyFrom(ctx, entry.primary, rv, rows.Index(i)); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "copy")
			return err
		}
	}
	dest := reflect.New(rows.Type())
	dest.Elem().Set(rows)

	tx := db.Session(&gorm.Session{NewDB: true, Context: ctx, SkipHooks: true})
	if err := tx.Table(vt.Table).Create(dest.Interface()).Error; err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert")
		return err
	}
	p.log.Debug("Snapshot written",
		"model", entry.primary.Name,
		"history_table", vt.Table,
		"count", len(records),
	)
	return nil
}

func (p *Plugin) track(db *gorm.DB) {
	if db.Error != nil || db.Statement.Schema == nil {
		return
	}
	s := db.Statement.Schema
	eachRecord(db.Statement.ReflectValue, func(rec Record, rv reflect.Value) bool {
		rec.revisionState().remember(db.Statement.Context, s, rv)
		return true
	})
}

// eachRecord visits every addressable Record in rv, which is either a struct
// or a slice/array of structs or struct pointers. fn returns false to stop.
func eachRecord(rv reflect.Value, fn func(rec Record, rv reflect.Value) bool) {
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			elem := reflect.Indirect(rv.Index(i))
			if !visit(elem, fn) {
				return
			}
		}
	case reflect.Struct:
		visit(rv, fn)
	case reflect.Ptr:
		if !rv.IsNil() {
			eachRecord(rv.Elem(), fn)
		}
	}
}

func visit(rv reflect.Value, fn func(rec Record, rv reflect.Value) bool) bool {
	if rv.Kind() != reflect.Struct || !rv.CanAddr() {
		return true
	}
	rec, ok := rv.Addr().Interface().(Record)
	if !ok {
		return true
	}
	return fn(rec, rv)
}

func hasZeroKey(db *gorm.DB, entry *Entry, rv reflect.Value) bool {
	for _, f := range entry.primary.PrimaryFields {
		if _, zero := f.ValueOf(db.Statement.Context, rv); zero {
			return true
		}
	}
	return false
}
