// Package sink writes batches of bound records to a database.
//
// A Sink's Write method has the shape of core.BatchHandler, so it can be
// handed straight to Engine.ParseBatches:
//
//	s, err := opener(ctx, schema)
//	rowErrs, err := engine.ParseBatches(ctx, src, schema.Name(), 0, s.Write)
package sink

import (
	"context"
	"errors"

	"github.com/JonMunkholm/csvbind/internal/core"
)

// ErrNoSink is returned when a sink is needed but none is configured.
var ErrNoSink = errors.New("no sink configured")

// Sink receives batches of records of one schema.
type Sink interface {
	Write(ctx context.Context, batch []any) error
	Rows() int64
}

// Opener returns a Sink for the records of schema.
type Opener func(ctx context.Context, schema *core.Schema) (Sink, error)

// None is the Opener of a process without a database.
func None(context.Context, *core.Schema) (Sink, error) {
	return nil, ErrNoSink
}

// rowValues reads the ordered columns of rec. Empty slots become nil.
func rowValues(columns []*core.ColumnSpec, rec any) ([]any, error) {
	row := make([]any, len(columns))
	for i, col := range columns {
		v, ok, err := col.Value(rec)
		if err != nil {
			return nil, &core.ConfigurationError{Column: col.Name, Op: "read", Err: err}
		}
		if ok {
			row[i] = v
		}
	}
	return row, nil
}
