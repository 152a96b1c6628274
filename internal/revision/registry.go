package revision

import (
	"fmt"
	"reflect"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"github.com/yungbote/revisioned/internal/platform/logger"
)

// PluginName is the key the plugin is registered under in gorm.Config.Plugins.
const PluginName = "revisioned"

const tracerName = "github.com/yungbote/revisioned/internal/revision"

// Options configures revisioning for one model.
type Options struct {
	// On names the revision field, by Go field name or column name.
	On string
	// Table overrides the derived history table name.
	Table string
	// Policy replaces DefaultPolicy for this model.
	Policy Policy
}

// Config is the resolved configuration of one revisioned model.
type Config struct {
	Model          reflect.Type
	RevisionField  string
	RevisionColumn string
	HistoryTable   string
}

// Plugin installs the revisioning callbacks. Register it once per *gorm.DB
// with db.Use, then call Enable for every model that keeps history.
type Plugin struct {
	log    *logger.Logger
	tracer trace.Tracer

	schemas sync.Map

	mu      sync.RWMutex
	entries map[reflect.Type]*Entry
}

// Entry is the registry record of one revisioned model.
type Entry struct {
	config  Config
	primary *schema.Schema
	history *HistorySchema
	namer   schema.Namer
	cache   *sync.Map

	policyMu sync.RWMutex
	policy   Policy

	versionOnce sync.Once
	version     *VersionType
	versionErr  error
}

func New(log *logger.Logger) *Plugin {
	if log == nil {
		log = logger.Nop()
	}
	return &Plugin{
		log:     log.With("plugin", PluginName),
		tracer:  otel.Tracer(tracerName),
		entries: map[reflect.Type]*Entry{},
	}
}

func (p *Plugin) Name() string { return PluginName }

// FromDB returns the plugin installed on db.
func FromDB(db *gorm.DB) (*Plugin, bool) {
	if db == nil || db.Config == nil {
		return nil, false
	}
	p, ok := db.Config.Plugins[PluginName].(*Plugin)
	return p, ok && p != nil
}

// Enable turns on revisioning for model using the plugin installed on db.
func Enable(db *gorm.DB, model interface{}, opts Options) (*Entry, error) {
	p, ok := FromDB(db)
	if !ok {
		return nil, &ConfigurationError{Model: fmt.Sprintf("%T", model), Field: opts.On, Err: ErrPluginNotRegistered}
	}
	return p.Enable(db, model, opts)
}

// Enable validates opts against model, derives the history schema and
// registers the pair. Enabling a model again replaces its entry.
func (p *Plugin) Enable(db *gorm.DB, model interface{}, opts Options) (*Entry, error) {
	s, err := schema.Parse(model, &p.schemas, db.NamingStrategy)
	if err != nil {
		return nil, &ConfigurationError{Model: fmt.Sprintf("%T", model), Field: opts.On, Err: err}
	}
	if opts.On == "" {
		return nil, &ConfigurationError{Model: s.Name, Err: ErrRevisionFieldRequired}
	}
	field := s.LookUpField(opts.On)
	if field == nil || field.DBName == "" {
		return nil, &ConfigurationError{Model: s.Name, Field: opts.On, Err: ErrUnknownRevisionField}
	}
	if len(s.PrimaryFields) == 0 {
		return nil, &ConfigurationError{Model: s.Name, Field: opts.On, Err: ErrNoPrimaryKey}
	}

	history, err := DeriveHistorySchema(PrimarySchema{
		Name:       s.Name,
		Table:      s.Table,
		Properties: Properties(s),
	}, field.Name, db.NamingStrategy)
	if err != nil {
		return nil, err
	}
	if opts.Table != "" {
		history.Table = opts.Table
	}

	policy := opts.Policy
	if policy == nil {
		policy = DefaultPolicy
	}
	entry := &Entry{
		config: Config{
			Model:          s.ModelType,
			RevisionField:  field.Name,
			RevisionColumn: field.DBName,
			HistoryTable:   history.Table,
		},
		primary: s,
		history: history,
		namer:   db.NamingStrategy,
		cache:   &p.schemas,
		policy:  policy,
	}

	p.mu.Lock()
	p.entries[s.ModelType] = entry
	p.mu.Unlock()

	keys := make([]string, 0, 2)
	for _, k := range history.Keys() {
		keys = append(keys, k.Column)
	}
	p.log.Info("Revisioning enabled",
		"model", s.Name,
		"revision_field", field.Name,
		"history_table", history.Table,
		"history_keys", keys,
	)
	return entry, nil
}

// Lookup returns the entry of a previously enabled model.
func (p *Plugin) Lookup(model interface{}) (*Entry, bool) {
	typ := reflect.TypeOf(model)
	for typ != nil && (typ.Kind() == reflect.Ptr || typ.Kind() == reflect.Slice) {
		typ = typ.Elem()
	}
	return p.lookupType(typ)
}

func (p *Plugin) lookupType(typ reflect.Type) (*Entry, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.entries[typ]
	return e, ok
}

// BindPolicy swaps the policy of an enabled model. nil restores DefaultPolicy.
func (p *Plugin) BindPolicy(model interface{}, policy Policy) error {
	e, ok := p.Lookup(model)
	if !ok {
		return fmt.Errorf("bind policy for %T: %w", model, ErrNotRevisioned)
	}
	e.SetPolicy(policy)
	return nil
}

func (e *Entry) Config() Config { return e.config }

func (e *Entry) History() *HistorySchema { return e.history }

func (e *Entry) Primary() *schema.Schema { return e.primary }

func (e *Entry) Policy() Policy {
	e.policyMu.RLock()
	defer e.policyMu.RUnlock()
	return e.policy
}

func (e *Entry) SetPolicy(policy Policy) {
	if policy == nil {
		policy = DefaultPolicy
	}
	e.policyMu.Lock()
	e.policy = policy
	e.policyMu.Unlock()
}

// Version returns the materialised history type, building it on first use.
// Concurrent first calls build it once; the result never changes afterwards.
func (e *Entry) Version() (*VersionType, error) {
	e.versionOnce.Do(func() {
		e.version, e.versionErr = newVersionType(e.history, e.cache, e.namer)
	})
	return e.version, e.versionErr
}
