package revision

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	// ErrRevisionFieldRequired is returned by Enable when Options.On is empty.
	ErrRevisionFieldRequired = errors.New("revision field is required")
	// ErrUnknownRevisionField is returned when the revision field is not a property of the model.
	ErrUnknownRevisionField = errors.New("revision field is not a property of the model")
	// ErrNoPrimaryKey is returned for models without a primary key; their versions cannot be scoped.
	ErrNoPrimaryKey = errors.New("model has no primary key")
	// ErrNotRevisioned is returned when a model was never passed to Enable.
	ErrNotRevisioned = errors.New("model is not revisioned")
	// ErrPluginNotRegistered is returned when the plugin was not installed with db.Use.
	ErrPluginNotRegistered = errors.New("revisioned plugin is not registered on this gorm.DB")
)

// ConfigurationError reports a setup-time failure. It is never retried.
type ConfigurationError struct {
	Model string
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString("revision: configure")
	if e.Model != "" {
		b.WriteString(" ")
		b.WriteString(e.Model)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, " (on %q)", e.Field)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// SchemaDerivationError reports a primary schema that cannot be mirrored into a
// history schema. Derivation is all-or-nothing: no partial result is returned.
type SchemaDerivationError struct {
	Model  string
	Field  string
	Reason string
}

func (e *SchemaDerivationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Field != "" {
		return fmt.Sprintf("revision: derive history for %s: field %s: %s", e.Model, e.Field, e.Reason)
	}
	return fmt.Sprintf("revision: derive history for %s: %s", e.Model, e.Reason)
}

// SnapshotPersistenceError is returned from a save whose primary write already
// committed but whose history insert failed. The primary change is durable.
type SnapshotPersistenceError struct {
	Model string
	Table string
	Err   error
}

func (e *SnapshotPersistenceError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("revision: %s saved but snapshot into %s failed: %v", e.Model, e.Table, e.Err)
}

func (e *SnapshotPersistenceError) Unwrap() error { return e.Err }

// DuplicateSnapshot reports whether err is a snapshot that collided with an
// existing history row. That happens when a policy asks for a version while
// the revision value is unchanged and no auto-generated key disambiguates it.
func DuplicateSnapshot(err error) bool {
	var snapErr *SnapshotPersistenceError
	if !errors.As(err, &snapErr) || snapErr.Err == nil {
		return false
	}
	cause := snapErr.Err
	if errors.Is(cause, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(cause, &pgErr) {
		return strings.TrimSpace(pgErr.Code) == "23505" // unique_violation
	}
	msg := strings.ToLower(cause.Error())
	return strings.Contains(msg, "unique constraint failed") || strings.Contains(msg, "duplicate key")
}
