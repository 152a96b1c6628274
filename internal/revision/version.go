package revision

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"gorm.io/gorm/schema"
)

// VersionType is the runtime struct type backing a history table. Its fields
// mirror the primary model's columns with the derived key settings.
type VersionType struct {
	Table   string
	Type    reflect.Type
	Schema  *schema.Schema
	History *HistorySchema
}

func newVersionType(h *HistorySchema, cache *sync.Map, namer schema.Namer) (*VersionType, error) {
	fields := make([]reflect.StructField, 0, len(h.Properties))
	for _, p := range h.Properties {
		fields = append(fields, reflect.StructField{
			Name: p.Name,
			Type: p.Type,
			Tag:  structTag(p),
		})
	}
	typ := reflect.StructOf(fields)
	s, err := schema.Parse(reflect.New(typ).Interface(), cache, namer)
	if err != nil {
		return nil, &SchemaDerivationError{Model: h.Name, Reason: fmt.Sprintf("parse history type: %v", err)}
	}
	return &VersionType{Table: h.Table, Type: typ, Schema: s, History: h}, nil
}

// New returns a pointer to a zero history row.
func (v *VersionType) New() interface{} {
	return reflect.New(v.Type).Interface()
}

// NewSlice returns a pointer to an empty slice of history rows.
func (v *VersionType) NewSlice() interface{} {
	return reflect.New(reflect.SliceOf(v.Type)).Interface()
}

// copyFrom fills row with every column value of the primary record rv.
func (v *VersionType) copyFrom(ctx context.Context, primary *schema.Schema, rv, row reflect.Value) error {
	for _, p := range v.History.Properties {
		src := primary.LookUpField(p.Column)
		dst := v.Schema.LookUpField(p.Column)
		if src == nil || dst == nil {
			return fmt.Errorf("column %s missing from %s", p.Column, v.Table)
		}
		val, _ := src.ValueOf(ctx, rv)
		if err := dst.Set(ctx, row, val); err != nil {
			return fmt.Errorf("copy %s: %w", p.Column, err)
		}
	}
	return nil
}

// Snapshot is one history row.
type Snapshot struct {
	vt  *VersionType
	row reflect.Value
}

// Get returns the value of a column, looked up by Go field name or column name.
func (s Snapshot) Get(name string) (interface{}, bool) {
	f := s.vt.Schema.LookUpField(name)
	if f == nil {
		return nil, false
	}
	val, _ := f.ValueOf(context.Background(), s.row)
	return val, true
}

// Values returns every column of the row keyed by column name.
func (s Snapshot) Values() map[string]interface{} {
	out := make(map[string]interface{}, len(s.vt.History.Properties))
	for _, p := range s.vt.History.Properties {
		if val, ok := s.Get(p.Column); ok {
			out[p.Column] = val
		}
	}
	return out
}

// Interface returns a pointer to a copy of the underlying history struct.
func (s Snapshot) Interface() interface{} {
	cp := reflect.New(s.vt.Type)
	cp.Elem().Set(s.row)
	return cp.Interface()
}

// Decode copies the row into dest, a pointer to a struct with fields named
// like the primary model's. Fields without a counterpart are left untouched.
func (s Snapshot) Decode(dest interface{}) error {
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Ptr || dv.IsNil() || dv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("decode snapshot: dest must be a non-nil struct pointer, got %T", dest)
	}
	dv = dv.Elem()
	for i := 0; i < s.row.NumField(); i++ {
		name := s.vt.Type.Field(i).Name
		df := dv.FieldByName(name)
		if !df.IsValid() || !df.CanSet() {
			continue
		}
		sf := s.row.Field(i)
		switch {
		case sf.Type().AssignableTo(df.Type()):
			df.Set(sf)
		case sf.Type().ConvertibleTo(df.Type()):
			df.Set(sf.Convert(df.Type()))
		default:
			return fmt.Errorf("decode snapshot: field %s: cannot assign %s to %s", name, sf.Type(), df.Type())
		}
	}
	return nil
}

// DecodeAll decodes snapshots into freshly allocated values of T.
func DecodeAll[T any](snapshots []Snapshot) ([]*T, error) {
	out := make([]*T, 0, len(snapshots))
	for _, s := range snapshots {
		v := new(T)
		if err := s.Decode(v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
