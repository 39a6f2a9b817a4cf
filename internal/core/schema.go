package core

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Accessor reads and writes one column's slot on a record.
// Get reports ok=false when the slot holds no value (written as an absent field).
type Accessor struct {
	Set func(rec any, v any) error
	Get func(rec any) (v any, ok bool, err error)
}

// ColumnDef declares one column of a SchemaDef.
type ColumnDef struct {
	Name       string
	Mandatory  bool
	Order      int // Serialization order only; ties keep declaration order
	Converter  Key // Defaults to "string" when Type is empty
	Validators []Key
	Accessor   Accessor
}

// SchemaDef is the static description of one record type.
type SchemaDef struct {
	Name      string
	Separator string     // Single character, possibly escaped ("\t", "\\|")
	New       func() any // Returns a fresh, writable record
	Columns   []ColumnDef
}

// ColumnSpec is a resolved, immutable column.
type ColumnSpec struct {
	Name          string
	Mandatory     bool
	Order         int
	ConverterKey  Key
	ValidatorKeys []Key

	accessor   Accessor
	converter  Converter
	validators []Validator
}

// Converter returns the shared converter instance of the column.
func (c *ColumnSpec) Converter() Converter { return c.converter }

// Value reads the column from rec. ok is false for an empty slot.
func (c *ColumnSpec) Value(rec any) (v any, ok bool, err error) {
	return c.accessor.Get(rec)
}

// FormatValue reads the column from rec and formats it.
// ok is false for an empty slot.
func (c *ColumnSpec) FormatValue(rec any) (text string, ok bool, err error) {
	v, ok, err := c.accessor.Get(rec)
	if err != nil || !ok {
		return "", false, err
	}
	text, err = c.converter.Format(v)
	if err != nil {
		return "", false, err
	}
	return text, true, nil
}

// Schema is the resolved column layout of one record type.
// It is immutable once built and safe to share between engines.
type Schema struct {
	name      string
	sep       rune
	newRecord func() any
	columns   []*ColumnSpec
	ordered   []*ColumnSpec
	byName    map[string]*ColumnSpec
}

// BuildSchema validates def and resolves every converter and validator
// through regs. All problems are reported as *ConfigurationError.
func BuildSchema(def SchemaDef, regs *Registries) (*Schema, error) {
	cfgErr := func(column, op string, err error) error {
		return &ConfigurationError{Schema: def.Name, Column: column, Op: op, Err: err}
	}

	if def.Name == "" {
		return nil, cfgErr("", "name", errors.New("schema name is required"))
	}
	sep, err := ParseSeparator(def.Separator)
	if err != nil {
		return nil, cfgErr("", "separator", err)
	}
	if def.New == nil {
		return nil, cfgErr("", "new", errors.New("no record constructor"))
	}
	if len(def.Columns) == 0 {
		return nil, cfgErr("", "columns", errors.New("no columns declared"))
	}

	s := &Schema{
		name:      def.Name,
		sep:       sep,
		newRecord: def.New,
		columns:   make([]*ColumnSpec, 0, len(def.Columns)),
		byName:    make(map[string]*ColumnSpec, len(def.Columns)),
	}

	if _, err := s.New(); err != nil {
		return nil, err
	}

	for _, cd := range def.Columns {
		if cd.Name == "" {
			return nil, cfgErr("", "columns", errors.New("column name is required"))
		}
		if _, dup := s.byName[cd.Name]; dup {
			return nil, cfgErr(cd.Name, "columns", errors.New("duplicate column name"))
		}
		if cd.Accessor.Set == nil || cd.Accessor.Get == nil {
			return nil, cfgErr(cd.Name, "accessor", errors.New("column has no accessor"))
		}

		convKey := cd.Converter
		if convKey.Type == "" {
			convKey.Type = "string"
		}
		conv, err := regs.Converters.GetOrCreate(convKey)
		if err != nil {
			return nil, cfgErr(cd.Name, "converter", errors.Unwrap(err))
		}

		col := &ColumnSpec{
			Name:          cd.Name,
			Mandatory:     cd.Mandatory,
			Order:         cd.Order,
			ConverterKey:  convKey,
			ValidatorKeys: cd.Validators,
			accessor:      cd.Accessor,
			converter:     conv,
		}
		for _, vk := range cd.Validators {
			v, err := regs.Validators.GetOrCreate(vk)
			if err != nil {
				return nil, cfgErr(cd.Name, "validator", errors.Unwrap(err))
			}
			col.validators = append(col.validators, v)
		}

		s.columns = append(s.columns, col)
		s.byName[col.Name] = col
	}

	s.ordered = make([]*ColumnSpec, len(s.columns))
	copy(s.ordered, s.columns)
	sort.SliceStable(s.ordered, func(i, j int) bool { return s.ordered[i].Order < s.ordered[j].Order })

	return s, nil
}

// Name returns the schema name.
func (s *Schema) Name() string { return s.name }

// Separator returns the field separator.
func (s *Schema) Separator() rune { return s.sep }

// Columns returns the columns in declaration order.
func (s *Schema) Columns() []*ColumnSpec { return s.columns }

// OrderedColumns returns the columns in serialization order.
func (s *Schema) OrderedColumns() []*ColumnSpec { return s.ordered }

// Column looks up a column by its header name.
func (s *Schema) Column(name string) (*ColumnSpec, bool) {
	c, ok := s.byName[name]
	return c, ok
}

// ColumnNames returns the header written for this schema.
func (s *Schema) ColumnNames() []string {
	names := make([]string, len(s.ordered))
	for i, c := range s.ordered {
		names[i] = c.Name
	}
	return names
}

// New returns a fresh record. A constructor that panics or returns nil
// makes the schema unusable.
func (s *Schema) New() (rec any, err error) {
	defer func() {
		if p := recover(); p != nil {
			rec = nil
			err = &ConfigurationError{Schema: s.name, Op: "new", Err: fmt.Errorf("constructor panicked: %v", p)}
		}
	}()

	rec = s.newRecord()
	if rec == nil {
		return nil, &ConfigurationError{Schema: s.name, Op: "new", Err: errors.New("constructor returned nil")}
	}
	return rec, nil
}

// ParseSeparator reduces a possibly escaped separator declaration to one rune.
// Go escapes ("\t", "\u0009") and backslash-escaped punctuation ("\\|") are
// accepted.
func ParseSeparator(s string) (rune, error) {
	raw := s
	if strings.ContainsRune(s, '\\') {
		if u, err := strconv.Unquote(`"` + s + `"`); err == nil {
			s = u
		} else {
			s = stripEscapes(s)
		}
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("separator %q must be exactly one character", raw)
	}
	r, _ := utf8.DecodeRuneInString(s)
	if r == '"' || r == '\n' || r == '\r' || r == utf8.RuneError {
		return 0, fmt.Errorf("separator %q is not allowed", raw)
	}
	return r, nil
}

// stripEscapes drops the backslash in front of each escaped character.
func stripEscapes(s string) string {
	var b strings.Builder
	escaped := false
	for _, r := range s {
		if r == '\\' && !escaped {
			escaped = true
			continue
		}
		escaped = false
		b.WriteRune(r)
	}
	return b.String()
}

// Record is the record type of schemas declared without a Go struct.
type Record map[string]any

// NewRecord is a SchemaDef.New for Record-based schemas.
func NewRecord() any { return Record{} }

// MapField stores a column under key in a Record.
func MapField(key string) Accessor {
	return Accessor{
		Set: func(rec any, v any) error {
			r, ok := rec.(Record)
			if !ok {
				return fmt.Errorf("record is %T, want core.Record", rec)
			}
			r[key] = v
			return nil
		},
		Get: func(rec any) (any, bool, error) {
			r, ok := rec.(Record)
			if !ok {
				return nil, false, fmt.Errorf("record is %T, want core.Record", rec)
			}
			v, ok := r[key]
			if !ok || v == nil {
				return nil, false, nil
			}
			return v, true, nil
		},
	}
}
