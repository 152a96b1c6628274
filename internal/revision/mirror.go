package revision

import (
	"fmt"
	"go/token"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"gorm.io/gorm/schema"
)

// Property describes one persisted column of a model.
type Property struct {
	Name          string
	Column        string
	Type          reflect.Type
	DataType      schema.DataType
	Key           bool
	AutoGenerated bool
	// Options holds the field's gorm tag settings, keyed by upper-cased setting name.
	Options map[string]string
}

// PrimarySchema is the property set of a revisioned model.
type PrimarySchema struct {
	Name       string
	Table      string
	Properties []Property
}

// HistorySchema is the derived property set of a model's history table.
type HistorySchema struct {
	Name          string
	Table         string
	RevisionField string
	Properties    []Property
}

// Namer derives storage names. schema.Namer satisfies it.
type Namer interface {
	TableName(table string) string
}

// Keys returns the key properties in declaration order.
func (h *HistorySchema) Keys() []Property {
	out := make([]Property, 0, 2)
	for _, p := range h.Properties {
		if p.Key {
			out = append(out, p)
		}
	}
	return out
}

// Lookup finds a property by Go name or column name.
func (h *HistorySchema) Lookup(name string) (Property, bool) {
	for _, p := range h.Properties {
		if p.Name == name || p.Column == name {
			return p, true
		}
	}
	return Property{}, false
}

// Properties returns the column-backed properties of a parsed gorm schema.
// Relations and ignored fields have no column and are left out.
func Properties(s *schema.Schema) []Property {
	out := make([]Property, 0, len(s.Fields))
	for _, f := range s.Fields {
		if f.DBName == "" {
			continue
		}
		out = append(out, Property{
			Name:          f.Name,
			Column:        f.DBName,
			Type:          f.FieldType,
			DataType:      f.DataType,
			Key:           f.PrimaryKey,
			AutoGenerated: isAutoGenerated(f),
			Options:       cloneOptions(f.TagSettings),
		})
	}
	return out
}

// isAutoGenerated reports serial columns and keys filled by a database default.
func isAutoGenerated(f *schema.Field) bool {
	if f.AutoIncrement {
		return true
	}
	return f.PrimaryKey && f.HasDefaultValue && f.DefaultValueInterface == nil && strings.TrimSpace(f.DefaultValue) != ""
}

// HistoryStorageName is the table that stores the history of entityName.
func HistoryStorageName(namer Namer, entityName string) string {
	return namer.TableName(entityName + "Version")
}

// Settings that are not carried over: history rows repeat values, index and
// constraint names are schema-global, and every column must be writable.
// Defaults are dropped so a committed zero value is stored as zero.
var strippedOptions = map[string]struct{}{
	"PRIMARYKEY":             {},
	"PRIMARY_KEY":            {},
	"AUTOINCREMENT":          {},
	"AUTOINCREMENTINCREMENT": {},
	"UNIQUE":                 {},
	"UNIQUEINDEX":            {},
	"INDEX":                  {},
	"CHECK":                  {},
	"DEFAULT":                {},
	"COLUMN":                 {},
	"EMBEDDED":               {},
	"EMBEDDEDPREFIX":         {},
	"AUTOCREATETIME":         {},
	"AUTOUPDATETIME":         {},
	"FOREIGNKEY":             {},
	"REFERENCES":             {},
	"CONSTRAINT":             {},
	"-":                      {},
	"<-":                     {},
	"->":                     {},
}

// DeriveHistorySchema mirrors primary into the schema of its history table.
//
// Every property is copied. The revision field and every auto-generated
// property form the composite key; no history property is auto-generated.
// primary is not modified.
func DeriveHistorySchema(primary PrimarySchema, revisionField string, namer Namer) (*HistorySchema, error) {
	if revisionField == "" {
		return nil, &ConfigurationError{Model: primary.Name, Err: ErrRevisionFieldRequired}
	}
	rev := -1
	for i, p := range primary.Properties {
		if p.Name == revisionField || p.Column == revisionField {
			rev = i
			break
		}
	}
	if rev < 0 {
		return nil, &ConfigurationError{Model: primary.Name, Field: revisionField, Err: ErrUnknownRevisionField}
	}
	if primary.Properties[rev].Type != nil && primary.Properties[rev].Type.Kind() == reflect.Ptr {
		return nil, &SchemaDerivationError{
			Model:  primary.Name,
			Field:  primary.Properties[rev].Name,
			Reason: "revision field is nullable and cannot key history rows",
		}
	}

	names := make(map[string]struct{}, len(primary.Properties))
	columns := make(map[string]struct{}, len(primary.Properties))
	props := make([]Property, 0, len(primary.Properties))
	for i, p := range primary.Properties {
		if !token.IsExported(p.Name) {
			return nil, &SchemaDerivationError{Model: primary.Name, Field: p.Name, Reason: "not an exported Go identifier"}
		}
		if p.Type == nil {
			return nil, &SchemaDerivationError{Model: primary.Name, Field: p.Name, Reason: "no Go type"}
		}
		if _, dup := names[p.Name]; dup {
			return nil, &SchemaDerivationError{Model: primary.Name, Field: p.Name, Reason: "field name declared twice"}
		}
		if _, dup := columns[p.Column]; dup {
			return nil, &SchemaDerivationError{
				Model:  primary.Name,
				Field:  p.Name,
				Reason: fmt.Sprintf("column %q declared twice", p.Column),
			}
		}
		names[p.Name] = struct{}{}
		columns[p.Column] = struct{}{}

		key := i == rev || p.AutoGenerated
		if key && p.DataType == "" && p.Options["TYPE"] == "" {
			return nil, &SchemaDerivationError{Model: primary.Name, Field: p.Name, Reason: "key has no storage data type"}
		}
		props = append(props, Property{
			Name:          p.Name,
			Column:        p.Column,
			Type:          p.Type,
			DataType:      p.DataType,
			Key:           key,
			AutoGenerated: false,
			Options:       historyOptions(p, key),
		})
	}

	return &HistorySchema{
		Name:          primary.Name + "Version",
		Table:         HistoryStorageName(namer, primary.Name),
		RevisionField: primary.Properties[rev].Name,
		Properties:    props,
	}, nil
}

func historyOptions(p Property, key bool) map[string]string {
	out := make(map[string]string, len(p.Options)+3)
	for k, v := range p.Options {
		if _, skip := strippedOptions[k]; skip {
			continue
		}
		out[k] = v
	}
	out["COLUMN"] = p.Column
	if key {
		out["PRIMARYKEY"] = "PRIMARYKEY"
		out["AUTOINCREMENT"] = "false"
	}
	_, hadCreate := p.Options["AUTOCREATETIME"]
	_, hadUpdate := p.Options["AUTOUPDATETIME"]
	if hadCreate || hadUpdate || p.Name == "CreatedAt" || p.Name == "UpdatedAt" {
		out["AUTOCREATETIME"] = "false"
		out["AUTOUPDATETIME"] = "false"
	}
	return out
}

func cloneOptions(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// structTag renders a property's options as a gorm struct tag. Keys are sorted
// so equal properties always render the same tag.
func structTag(p Property) reflect.StructTag {
	keys := make([]string, 0, len(p.Options))
	for k := range p.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := strings.ReplaceAll(p.Options[k], ";", `\;`)
		if v == k {
			parts = append(parts, k)
			continue
		}
		parts = append(parts, k+":"+v)
	}
	return reflect.StructTag(`gorm:` + strconv.Quote(strings.Join(parts, ";")) + ` json:` + strconv.Quote(p.Column))
}
