package core

import (
	"sort"
	"sync"
)

// Catalog holds the schemas known to a process, keyed by name.
// Engines share one Catalog; it is safe for concurrent use.
type Catalog struct {
	regs *Registries

	mu      sync.RWMutex
	schemas map[string]*Schema
}

// NewCatalog creates an empty catalog whose schemas resolve converters and
// validators through regs. A nil regs gets the built-in registries.
func NewCatalog(regs *Registries) *Catalog {
	if regs == nil {
		regs = NewRegistries()
	}
	return &Catalog{
		regs:    regs,
		schemas: make(map[string]*Schema),
	}
}

// Registries returns the converter and validator caches of the catalog.
func (c *Catalog) Registries() *Registries { return c.regs }

// Register builds def and stores it under def.Name.
// Registering a name that is already present is a no-op returning the
// cached schema.
func (c *Catalog) Register(def SchemaDef) (*Schema, error) {
	if s, ok := c.Get(def.Name); ok {
		return s, nil
	}

	s, err := BuildSchema(def, c.regs)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.schemas[s.name]; ok {
		return existing, nil
	}
	c.schemas[s.name] = s
	return s, nil
}

// MustRegister is Register for package-level declarations. Panics on error.
func (c *Catalog) MustRegister(def SchemaDef) *Schema {
	s, err := c.Register(def)
	if err != nil {
		panic(err)
	}
	return s
}

// Get returns a schema by name.
func (c *Catalog) Get(name string) (*Schema, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.schemas[name]
	return s, ok
}

// All returns every registered schema, sorted by name.
func (c *Catalog) All() []*Schema {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]*Schema, 0, len(c.schemas))
	for _, s := range c.schemas {
		result = append(result, s)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].name < result[j].name
	})
	return result
}

// Names returns the registered schema names, sorted.
func (c *Catalog) Names() []string {
	all := c.All()
	names := make([]string, len(all))
	for i, s := range all {
		names[i] = s.name
	}
	return names
}

// Count returns the number of registered schemas.
func (c *Catalog) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.schemas)
}
