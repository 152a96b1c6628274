package revision

import (
	"fmt"
	"reflect"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Versions returns the snapshots of rec, most recent first.
//
// Rows are matched on every primary key column of rec and ordered by the
// history key columns, descending. includeCurrent is reserved and does not
// change the result yet. No snapshots is an empty slice, not an error.
func Versions(tx *gorm.DB, rec Record, includeCurrent bool) ([]Snapshot, error) {
	p, ok := FromDB(tx)
	if !ok {
		return nil, ErrPluginNotRegistered
	}
	rv := reflect.Indirect(reflect.ValueOf(rec))
	entry, ok := p.lookupType(rv.Type())
	if !ok {
		return nil, fmt.Errorf("versions of %s: %w", rv.Type(), ErrNotRevisioned)
	}
	vt, err := entry.Version()
	if err != nil {
		return nil, err
	}

	ctx, span := p.tracer.Start(statementContext(tx), "revision.versions",
		trace.WithAttributes(
			attribute.String("revision.model", entry.primary.Name),
			attribute.String("revision.history_table", vt.Table),
		),
	)
	defer span.End()

	q := tx.Session(&gorm.Session{NewDB: true, Context: ctx}).Table(vt.Table)
	for _, f := range entry.primary.PrimaryFields {
		val, _ := f.ValueOf(ctx, rv)
		q = q.Where(clause.Eq{Column: clause.Column{Name: f.DBName}, Value: val})
	}
	for _, k := range entry.history.Keys() {
		q = q.Order(clause.OrderByColumn{Column: clause.Column{Name: k.Column}, Desc: true})
	}

	dest := vt.NewSlice()
	if err := q.Find(dest).Error; err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query")
		return nil, fmt.Errorf("versions of %s: %w", entry.primary.Name, err)
	}
	rows := reflect.ValueOf(dest).Elem()
	out := make([]Snapshot, 0, rows.Len())
	for i := 0; i < rows.Len(); i++ {
		out = append(out, Snapshot{vt: vt, row: rows.Index(i)})
	}
	span.SetAttributes(attribute.Int("revision.count", len(out)))
	return out, nil
}

// CountVersions returns the number of snapshots stored for rec.
func CountVersions(tx *gorm.DB, rec Record) (int64, error) {
	p, ok := FromDB(tx)
	if !ok {
		return 0, ErrPluginNotRegistered
	}
	rv := reflect.Indirect(reflect.ValueOf(rec))
	entry, ok := p.lookupType(rv.Type())
	if !ok {
		return 0, fmt.Errorf("count versions of %s: %w", rv.Type(), ErrNotRevisioned)
	}
	ctx := statementContext(tx)
	q := tx.Session(&gorm.Session{NewDB: true}).Table(entry.config.HistoryTable)
	for _, f := range entry.primary.PrimaryFields {
		val, _ := f.ValueOf(ctx, rv)
		q = q.Where(clause.Eq{Column: clause.Column{Name: f.DBName}, Value: val})
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count versions of %s: %w", entry.primary.Name, err)
	}
	return n, nil
}
