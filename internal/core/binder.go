package core

import "fmt"

// binder turns tokenized rows into records for one schema and one header.
type binder struct {
	schema   *Schema
	validate bool
	columns  []*ColumnSpec // header position -> column, nil for unmapped headers
}

func newBinder(schema *Schema, header []string, validate bool) *binder {
	b := &binder{
		schema:   schema,
		validate: validate,
		columns:  make([]*ColumnSpec, len(header)),
	}
	for i, name := range header {
		if col, ok := schema.Column(name); ok {
			b.columns[i] = col
		}
	}
	return b
}

// bindRow builds one record from fields. A row with failing columns yields a
// *RowError and a nil record; the error return is reserved for problems that
// make the schema unusable.
func (b *binder) bindRow(fields []string, lineNumber int) (any, *RowError, error) {
	rec, err := b.schema.New()
	if err != nil {
		return nil, nil, err
	}

	var msgs []ValidationError
	for i, text := range fields {
		if i >= len(b.columns) || b.columns[i] == nil {
			continue
		}
		col := b.columns[i]

		if text == "" {
			if b.validate && col.Mandatory {
				msgs = append(msgs, ValidationError{Field: col.Name, Message: MandatoryMessage})
			}
			continue
		}

		if b.validate {
			if msg, failed := runValidators(col, text); failed {
				msgs = append(msgs, ValidationError{Field: col.Name, Value: text, Message: msg})
				continue
			}
		}

		v, err := col.converter.Parse(text)
		if err != nil {
			msgs = append(msgs, ValidationError{
				Field:   col.Name,
				Value:   text,
				Message: fmt.Sprintf("invalid value %q (%v)", text, err),
			})
			continue
		}

		if err := col.accessor.Set(rec, v); err != nil {
			return nil, nil, &ConfigurationError{Schema: b.schema.name, Column: col.Name, Op: "assign", Err: err}
		}
	}

	if len(msgs) > 0 {
		return nil, &RowError{
			LineNumber: lineNumber,
			Line:       Join(fields, b.schema.sep),
			Errors:     msgs,
		}, nil
	}
	return rec, nil, nil
}

// runValidators returns the message of the first failing validator.
func runValidators(col *ColumnSpec, text string) (string, bool) {
	for _, v := range col.validators {
		if err := v.Validate(text); err != nil {
			return err.Error(), true
		}
	}
	return "", false
}
