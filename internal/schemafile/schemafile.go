// Package schemafile loads schema declarations from YAML files.
//
// A file declares one schema whose records are core.Record maps:
//
//	name: people
//	separator: "|"
//	columns:
//	  - name: id
//	    order: 1
//	    mandatory: true
//	    converter: integer
//	  - name: born
//	    order: 2
//	    converter: {type: date, params: {format: yyyy-MM-dd}}
//	    validators:
//	      - {type: regex, params: {pattern: "[0-9-]+"}}
package schemafile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/csvbind/internal/core"
)

// DefaultSeparator applies when a file declares none.
const DefaultSeparator = ","

// File is the on-disk form of a schema.
type File struct {
	Name      string       `yaml:"name"`
	Separator string       `yaml:"separator"`
	Columns   []ColumnFile `yaml:"columns"`
}

// ColumnFile is the on-disk form of a column.
type ColumnFile struct {
	Name       string    `yaml:"name"`
	Order      int       `yaml:"order"`
	Mandatory  bool      `yaml:"mandatory"`
	Converter  KeyFile   `yaml:"converter"`
	Validators []KeyFile `yaml:"validators"`
}

// KeyFile declares a converter or validator. It is written either as a bare
// type name or as a mapping with type and params.
type KeyFile struct {
	Type   string            `yaml:"type"`
	Params map[string]string `yaml:"params"`
}

// UnmarshalYAML accepts the scalar shorthand.
func (k *KeyFile) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		k.Type = node.Value
		return nil
	}
	type plain KeyFile
	return node.Decode((*plain)(k))
}

// Key converts the declaration to a core.Key. Params are sorted by name.
func (k KeyFile) Key() core.Key {
	key := core.Key{Type: k.Type}
	names := make([]string, 0, len(k.Params))
	for name := range k.Params {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		key.Params = append(key.Params, core.Param{Name: name, Value: k.Params[name]})
	}
	return key
}

// Decode reads one schema declaration from r. Unknown keys are rejected.
func Decode(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty schema file")
		}
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if f.Separator == "" {
		f.Separator = DefaultSeparator
	}
	return &f, nil
}

// Def converts the file into a SchemaDef over core.Record.
func (f *File) Def() core.SchemaDef {
	def := core.SchemaDef{
		Name:      f.Name,
		Separator: f.Separator,
		New:       core.NewRecord,
		Columns:   make([]core.ColumnDef, 0, len(f.Columns)),
	}
	for _, c := range f.Columns {
		cd := core.ColumnDef{
			Name:      c.Name,
			Mandatory: c.Mandatory,
			Order:     c.Order,
			Converter: c.Converter.Key(),
			Accessor:  core.MapField(c.Name),
		}
		for _, v := range c.Validators {
			cd.Validators = append(cd.Validators, v.Key())
		}
		def.Columns = append(def.Columns, cd)
	}
	return def
}

// Load reads the schema declared in path.
func Load(path string) (core.SchemaDef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return core.SchemaDef{}, fmt.Errorf("failed to read file: %w", err)
	}
	f, err := Decode(bytes.NewReader(data))
	if err != nil {
		return core.SchemaDef{}, fmt.Errorf("%s: %w", path, err)
	}
	return f.Def(), nil
}

// LoadDir reads every *.yaml and *.yml file of dir, in name order.
func LoadDir(dir string) ([]core.SchemaDef, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema dir: %w", err)
	}

	var defs []core.SchemaDef
	for _, e := range entries {
		if e.IsDir() || !isYAML(e.Name()) {
			continue
		}
		def, err := Load(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// RegisterDir loads dir and registers each schema in catalog. It returns the
// names registered. A missing dir registers nothing.
func RegisterDir(catalog *core.Catalog, dir string) ([]string, error) {
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	defs, err := LoadDir(dir)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(defs))
	for _, def := range defs {
		s, err := catalog.Register(def)
		if err != nil {
			return names, err
		}
		names = append(names, s.Name())
	}
	return names, nil
}

func isYAML(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
