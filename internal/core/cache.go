package core

// cache.go holds the converter and validator caches.
//
// Each distinct (type, parameter set) pair is constructed and initialized
// once, then shared by every column and every schema that declares it. The
// configuration space is bounded by the columns a program declares, so
// entries are never evicted.

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Param is one named parameter of a converter or validator declaration.
type Param struct {
	Name  string
	Value string
}

// Params is an ordered parameter list as declared on a column.
type Params []Param

// Get returns the value of the first parameter called name.
func (p Params) Get(name string) (string, bool) {
	for _, kv := range p {
		if kv.Name == name {
			return kv.Value, true
		}
	}
	return "", false
}

// Key identifies a converter or validator configuration.
type Key struct {
	Type   string
	Params Params
}

// K is shorthand for building a Key from name/value pairs.
//
//	core.K("date", "format", "yyyy-MM-dd")
func K(typ string, kv ...string) Key {
	k := Key{Type: typ}
	for i := 0; i+1 < len(kv); i += 2 {
		k.Params = append(k.Params, Param{Name: kv[i], Value: kv[i+1]})
	}
	return k
}

// cacheKey is the structural identity of k: parameter order is irrelevant.
func (k Key) cacheKey() string {
	sorted := make(Params, len(k.Params))
	copy(sorted, k.Params)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	var b strings.Builder
	b.WriteString(k.Type)
	for _, p := range sorted {
		b.WriteByte(0)
		b.WriteString(p.Name)
		b.WriteByte('=')
		b.WriteString(p.Value)
	}
	return b.String()
}

func (k Key) String() string {
	if len(k.Params) == 0 {
		return k.Type
	}
	parts := make([]string, len(k.Params))
	for i, p := range k.Params {
		parts[i] = p.Name + "=" + p.Value
	}
	return k.Type + "(" + strings.Join(parts, ", ") + ")"
}

// Initializer is implemented by converters and validators that take parameters.
type Initializer interface {
	Init(params Params) error
}

// ErrMissingParam is wrapped by Init implementations when a required parameter is absent.
var ErrMissingParam = errors.New("missing required parameter")

// Registry caches one instance of I per distinct Key.
// It is safe for concurrent use.
type Registry[I any] struct {
	kind string

	mu        sync.RWMutex
	factories map[string]func() I
	instances map[string]I
}

// NewRegistry creates an empty registry. kind names the instances in errors.
func NewRegistry[I any](kind string) *Registry[I] {
	return &Registry[I]{
		kind:      kind,
		factories: make(map[string]func() I),
		instances: make(map[string]I),
	}
}

// Define registers the factory for a type name.
// Panics if the type is already defined.
func (r *Registry[I]) Define(typ string, factory func() I) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[typ]; exists {
		panic(fmt.Sprintf("%s already defined: %s", r.kind, typ))
	}
	r.factories[typ] = factory
}

// Types returns the defined type names, sorted.
func (r *Registry[I]) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.factories))
	for t := range r.factories {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of cached instances.
func (r *Registry[I]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.instances)
}

// GetOrCreate returns the shared instance for key, constructing and
// initializing it on first use. Failures are returned as *ConfigurationError.
func (r *Registry[I]) GetOrCreate(key Key) (I, error) {
	ck := key.cacheKey()

	r.mu.RLock()
	inst, ok := r.instances[ck]
	factory := r.factories[key.Type]
	r.mu.RUnlock()
	if ok {
		return inst, nil
	}

	var zero I
	if factory == nil {
		return zero, &ConfigurationError{Op: r.kind, Err: fmt.Errorf("unknown %s type %q", r.kind, key.Type)}
	}

	inst, err := construct(factory, key.Params)
	if err != nil {
		return zero, &ConfigurationError{Op: r.kind, Err: fmt.Errorf("%s: %w", key, err)}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// First writer wins; a concurrent builder produced an equivalent value.
	if existing, ok := r.instances[ck]; ok {
		return existing, nil
	}
	r.instances[ck] = inst
	return inst, nil
}

// construct runs the factory and the Init hook, turning panics into errors.
func construct[I any](factory func() I, params Params) (inst I, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("construction panicked: %v", p)
		}
	}()

	inst = factory()
	if in, ok := any(inst).(Initializer); ok {
		if err := in.Init(params); err != nil {
			return inst, err
		}
	} else if len(params) > 0 {
		return inst, fmt.Errorf("takes no parameters, got %d", len(params))
	}
	return inst, nil
}

// Registries bundles the converter and validator caches shared by every
// schema built in a process.
type Registries struct {
	Converters *Registry[Converter]
	Validators *Registry[Validator]
}

// NewRegistries returns registries preloaded with the built-in converters
// and validators.
func NewRegistries() *Registries {
	r := &Registries{
		Converters: NewRegistry[Converter]("converter"),
		Validators: NewRegistry[Validator]("validator"),
	}
	registerBuiltinConverters(r.Converters)
	registerBuiltinValidators(r.Validators)
	return r
}
