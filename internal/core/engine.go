package core

// engine.go orchestrates parsing and writing for registered schemas.
//
// A parse moves through Idle -> HeaderRead -> Streaming -> Closed:
//
//  1. NewFile resolves the schema, decodes the input and reads the header
//  2. each data line is tokenized and bound to a fresh record
//  3. bound records go to the RowHandler; row errors accumulate until the
//     error threshold trips
//  4. the line reader and the underlying source are closed on every path
//
// Callers need only one Engine per goroutine, but this implementation is
// stricter than that: per-parse state lives in a File owned by the call, so
// one Engine may also serve several goroutines. The schemas and converter
// caches are shared through the Catalog.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// ContextCheckInterval is how many rows are processed between checks of the
// caller's context.
const ContextCheckInterval = 1000

// Options configures an Engine.
type Options struct {
	ValidationEnabled bool    // Run validators and mandatory checks
	MaxErrors         int     // Row errors tolerated before aborting; negative = unbounded
	AddQuotes         bool    // Wrap written fields in double quotes
	Backend           Backend // Line tokenizer
	Charset           string  // Default input charset
	BatchSize         int     // Default size for ParseBatches
}

// DefaultOptions returns the engine defaults: validation on, stop at the
// first row error, quoted output, builtin tokenizer, UTF-8 input.
func DefaultOptions() Options {
	return Options{
		ValidationEnabled: true,
		MaxErrors:         0,
		AddQuotes:         true,
		Backend:           BackendBuiltin,
		Charset:           DefaultCharset,
		BatchSize:         1000,
	}
}

// Control tells the parse loop what to do after a record was handled.
type Control int

const (
	Continue Control = iota // Keep reading
	Stop                    // End the parse normally after this record
)

// RowHandler receives each bound record in input order.
// A non-nil error aborts the parse.
type RowHandler func(rec any) (Control, error)

// BatchHandler receives bound records in fixed-size groups.
type BatchHandler func(ctx context.Context, batch []any) error

// Result holds the outcome of a full parse.
type Result struct {
	Records []any
	Errors  []*RowError
}

// Engine parses and writes CSV for the schemas of a Catalog.
type Engine struct {
	opts    Options
	catalog *Catalog
	logger  *slog.Logger
}

// NewEngine creates an engine. A nil logger uses slog.Default().
func NewEngine(opts Options, catalog *Catalog, logger *slog.Logger) *Engine {
	if catalog == nil {
		catalog = NewCatalog(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Charset == "" {
		opts.Charset = DefaultCharset
	}
	if opts.Backend == "" {
		opts.Backend = BackendBuiltin
	}
	return &Engine{opts: opts, catalog: catalog, logger: logger}
}

// Options returns the engine configuration.
func (e *Engine) Options() Options { return e.opts }

// Catalog returns the schema catalog the engine resolves names against.
func (e *Engine) Catalog() *Catalog { return e.catalog }

func (e *Engine) schema(name string) (*Schema, error) {
	s, ok := e.catalog.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSchema, name)
	}
	return s, nil
}

// File is an open input whose header has been read.
type File struct {
	schema *Schema
	header []string
	source *CountingReader
	reader LineReader
	binder *binder
}

// NewFile opens src for the schema called name and reads its header.
// An empty charset uses the engine default. On error src has been closed
// if it is an io.Closer.
func (e *Engine) NewFile(src io.Reader, name, charset string) (*File, error) {
	schema, err := e.schema(name)
	if err != nil {
		closeQuietly(src)
		return nil, err
	}
	if charset == "" {
		charset = e.opts.Charset
	}

	source, err := DecodeReader(src, charset)
	if err != nil {
		closeQuietly(src)
		return nil, &ConfigurationError{Schema: name, Op: "charset", Err: err}
	}

	reader, err := NewLineReader(newLeadingSkipper(source), schema.sep, e.opts.Backend)
	if err != nil {
		source.Close()
		return nil, &ConfigurationError{Schema: name, Op: "backend", Err: err}
	}

	header, err := reader.ReadLine()
	if err != nil {
		reader.Close()
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyInput
		}
		return nil, &IOError{Op: "read header", Err: err}
	}

	return &File{
		schema: schema,
		header: header,
		source: source,
		reader: reader,
		binder: newBinder(schema, header, e.opts.ValidationEnabled),
	}, nil
}

// Schema returns the schema the file is bound with.
func (f *File) Schema() *Schema { return f.schema }

// Header returns the header fields, BOM stripped.
func (f *File) Header() []string { return f.header }

// BytesRead returns the number of decoded bytes consumed so far.
func (f *File) BytesRead() int64 { return f.source.BytesRead }

// Next reads and binds the next data line. It returns io.EOF after the last
// line. Exactly one of rec and rowErr is non-nil when err is nil.
func (f *File) Next() (rec any, rowErr *RowError, err error) {
	fields, err := f.reader.ReadLine()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, io.EOF
		}
		return nil, nil, &IOError{Op: "read", Err: err}
	}
	return f.binder.bindRow(fields, f.reader.Line())
}

// Close releases the line reader and the source.
func (f *File) Close() error {
	if err := f.reader.Close(); err != nil {
		return &IOError{Op: "close", Err: err}
	}
	return nil
}

// ParseAndInsert parses src with the schema called name and hands every
// bound record to handler. It returns the row errors collected.
//
// When more than MaxErrors rows fail (MaxErrors >= 0) the parse stops with an
// *ErrorsExceededError holding MaxErrors+1 row errors. A handler returning
// Stop ends the parse without error.
func (e *Engine) ParseAndInsert(ctx context.Context, src io.Reader, name string, handler RowHandler) (rowErrs []*RowError, err error) {
	f, err := e.NewFile(src, name, "")
	if err != nil {
		return nil, err
	}
	return e.run(ctx, f, handler)
}

// ParseFile is ParseAndInsert for an input opened with NewFile, for callers
// that need a per-call charset or want to inspect the header first.
// The file is closed when ParseFile returns.
func (e *Engine) ParseFile(ctx context.Context, f *File, handler RowHandler) ([]*RowError, error) {
	return e.run(ctx, f, handler)
}

func (e *Engine) run(ctx context.Context, f *File, handler RowHandler) (rowErrs []*RowError, err error) {
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	log := e.logger.With("parse_id", uuid.NewString(), "schema", f.schema.name)
	log.Debug("parse started", "header", f.header, "max_errors", e.opts.MaxErrors)
	start := time.Now()

	rows := 0
	for {
		if rows%ContextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return rowErrs, err
			}
		}

		rec, rowErr, err := f.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Error("parse failed", "line", f.reader.Line(), "error", err)
			return rowErrs, err
		}
		rows++

		if rowErr != nil {
			rowErrs = append(rowErrs, rowErr)
			if e.opts.MaxErrors >= 0 && len(rowErrs) > e.opts.MaxErrors {
				log.Warn("error threshold exceeded",
					"line", rowErr.LineNumber,
					"errors", len(rowErrs),
					"max_errors", e.opts.MaxErrors,
				)
				return rowErrs, &ErrorsExceededError{Max: e.opts.MaxErrors, Errors: rowErrs}
			}
			continue
		}

		ctl, err := handler(rec)
		if err != nil {
			return rowErrs, fmt.Errorf("handle line %d: %w", f.reader.Line(), err)
		}
		if ctl == Stop {
			log.Debug("stop requested", "line", f.reader.Line())
			break
		}
	}

	log.Info("parse complete",
		"rows", rows,
		"errors", len(rowErrs),
		"bytes", f.BytesRead(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return rowErrs, nil
}

// Parse collects every bound record and row error of src.
// On error the partial result is returned alongside it.
func (e *Engine) Parse(ctx context.Context, src io.Reader, name string) (*Result, error) {
	return e.ParseFirst(ctx, src, name, 0)
}

// ParseFirst is Parse limited to the first n bound records. n <= 0 means
// no limit.
func (e *Engine) ParseFirst(ctx context.Context, src io.Reader, name string, n int) (*Result, error) {
	res := &Result{}
	errs, err := e.ParseAndInsert(ctx, src, name, func(rec any) (Control, error) {
		res.Records = append(res.Records, rec)
		if n > 0 && len(res.Records) >= n {
			return Stop, nil
		}
		return Continue, nil
	})
	res.Errors = errs
	return res, err
}

// ParseBatches parses src and delivers bound records to handler in groups
// of size (the engine BatchSize when size <= 0). The last partial batch is
// delivered after the input ends or a Stop; a failed parse delivers nothing
// further.
func (e *Engine) ParseBatches(ctx context.Context, src io.Reader, name string, size int, handler BatchHandler) ([]*RowError, error) {
	if size <= 0 {
		size = e.opts.BatchSize
	}
	d, err := NewBatchDispatcher(size, handler)
	if err != nil {
		closeQuietly(src)
		return nil, err
	}

	errs, err := e.ParseAndInsert(ctx, src, name, func(rec any) (Control, error) {
		return Continue, d.Handle(ctx, rec)
	})
	if err != nil {
		return errs, err
	}
	if err := d.Flush(ctx); err != nil {
		return errs, fmt.Errorf("flush final batch: %w", err)
	}
	return errs, nil
}

// WriteFile writes records as CSV to dst using the schema called name.
// Columns appear in serialization order. Any failure aborts the write; dst
// is flushed and, if it is an io.Closer, closed on every path.
func (e *Engine) WriteFile(ctx context.Context, dst io.Writer, records []any, name string) (err error) {
	schema, err := e.schema(name)
	if err != nil {
		closeQuietly(dst)
		return err
	}

	w := NewLineWriter(dst, schema.sep, e.opts.AddQuotes)
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = &IOError{Op: "close", Err: cerr}
		}
	}()

	columns := schema.OrderedColumns()
	line := make([]*string, len(columns))

	names := schema.ColumnNames()
	for i := range names {
		line[i] = &names[i]
	}
	if err := w.WriteLine(line); err != nil {
		return &IOError{Op: "write", Err: err}
	}

	for i, rec := range records {
		if i%ContextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if rec == nil {
			return fmt.Errorf("write record %d: nil record", i+1)
		}

		for j, col := range columns {
			text, ok, err := col.FormatValue(rec)
			if err != nil {
				return fmt.Errorf("write record %d column %s: %w", i+1, col.Name, err)
			}
			if ok {
				line[j] = &text
			} else {
				line[j] = nil
			}
		}
		if err := w.WriteLine(line); err != nil {
			return &IOError{Op: "write", Err: err}
		}
	}

	e.logger.Debug("write complete", "schema", name, "records", len(records))
	return nil
}

// BindValues binds rows given as column name to text, as if each row were a
// data line under a header of the schema's column names. Keys that name no
// column are ignored; a missing key is an empty field. Row numbers in the
// returned errors count from 1.
func (e *Engine) BindValues(name string, rows []map[string]string) ([]any, []*RowError, error) {
	schema, err := e.schema(name)
	if err != nil {
		return nil, nil, err
	}

	header := schema.ColumnNames()
	b := newBinder(schema, header, e.opts.ValidationEnabled)
	fields := make([]string, len(header))

	var (
		records []any
		rowErrs []*RowError
	)
	for i, row := range rows {
		for j, col := range header {
			fields[j] = row[col]
		}
		rec, rowErr, err := b.bindRow(fields, i+1)
		if err != nil {
			return records, rowErrs, err
		}
		if rowErr != nil {
			rowErrs = append(rowErrs, rowErr)
			continue
		}
		records = append(records, rec)
	}
	return records, rowErrs, nil
}

// ParseAll parses src and returns the bound records as *T.
func ParseAll[T any](ctx context.Context, e *Engine, src io.Reader, name string) ([]*T, []*RowError, error) {
	res, err := e.Parse(ctx, src, name)
	if res == nil {
		return nil, nil, err
	}
	return Records[T](res.Records), res.Errors, err
}

func closeQuietly(v any) {
	if c, ok := v.(io.Closer); ok {
		c.Close()
	}
}
