package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/csvbind/internal/core"
	"github.com/JonMunkholm/csvbind/internal/logging"
)

var (
	errNoFile     = errors.New("no file provided")
	errBadRequest = errors.New("invalid parameter")
)

// SchemaJSON describes a registered schema.
type SchemaJSON struct {
	Name      string       `json:"name"`
	Separator string       `json:"separator"`
	Columns   []ColumnJSON `json:"columns"`
}

// ColumnJSON describes one column, in serialization order.
type ColumnJSON struct {
	Name       string   `json:"name"`
	Order      int      `json:"order"`
	Mandatory  bool     `json:"mandatory"`
	Converter  string   `json:"converter"`
	Validators []string `json:"validators,omitempty"`
}

// FieldErrorJSON is one failing column of a row.
type FieldErrorJSON struct {
	Field   string `json:"field"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
}

// RowErrorJSON is one failed row.
type RowErrorJSON struct {
	Line   int              `json:"line"`
	Raw    string           `json:"raw"`
	Errors []FieldErrorJSON `json:"errors"`
}

// ParseStats summarizes a parse.
type ParseStats struct {
	Records    int   `json:"records"`
	Failed     int   `json:"failed"`
	Bytes      int64 `json:"bytes"`
	DurationMs int64 `json:"duration_ms"`
	Truncated  bool  `json:"truncated"`
}

// ParseResponse is the result of POST /api/parse/{schema}. Records hold the
// formatted value of each non-empty column.
type ParseResponse struct {
	Schema  string              `json:"schema"`
	Header  []string            `json:"header"`
	Columns []string            `json:"columns"`
	Records []map[string]string `json:"records"`
	Errors  []RowErrorJSON      `json:"errors"`
	Stats   ParseStats          `json:"stats"`
}

// ImportResponse is the result of POST /api/import/{schema}.
type ImportResponse struct {
	Schema     string         `json:"schema"`
	Rows       int64          `json:"rows"`
	Failed     int            `json:"failed"`
	Errors     []RowErrorJSON `json:"errors"`
	DurationMs int64          `json:"duration_ms"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"schemas": s.catalog.Count(),
		"parses":  s.limiter.Status(),
	})
}

func (s *Server) handleListSchemas(w http.ResponseWriter, r *http.Request) {
	all := s.catalog.All()
	out := make([]SchemaJSON, len(all))
	for i, schema := range all {
		out[i] = schemaJSON(schema)
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetSchema(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "schema")
	schema, ok := s.catalog.Get(name)
	if !ok {
		s.respondError(w, r, fmt.Errorf("%w: %q", core.ErrUnknownSchema, name))
		return
	}
	s.writeJSON(w, http.StatusOK, schemaJSON(schema))
}

// handleTemplate downloads an empty CSV holding only the header line.
func (s *Server) handleTemplate(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "schema")
	opts, err := s.requestOptions(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.writeCSV(w, r, name, opts, nil)
}

// handleParse binds an uploaded CSV file and returns records and row errors
// without storing anything.
//
// Query parameters: charset, limit (records to return), max_errors,
// validate, backend.
func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "schema")
	opts, err := s.requestOptions(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if err := s.limiter.Acquire(r.Context()); err != nil {
		s.respondError(w, r, err)
		return
	}
	defer s.limiter.Release()

	src, err := s.readUpload(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	start := time.Now()
	engine := core.NewEngine(opts, s.catalog, logging.ForEngine(r.Context(), s.logger, name))
	f, err := engine.NewFile(src, name, "")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	resp := &ParseResponse{
		Schema:  name,
		Header:  f.Header(),
		Columns: f.Schema().ColumnNames(),
		Records: []map[string]string{},
	}
	var records []any
	rowErrs, err := engine.ParseFile(r.Context(), f, func(rec any) (core.Control, error) {
		records = append(records, rec)
		if limit > 0 && len(records) >= limit {
			resp.Stats.Truncated = true
			return core.Stop, nil
		}
		return core.Continue, nil
	})
	if err != nil {
		s.respondError(w, r, err, rowErrs...)
		return
	}

	for _, rec := range records {
		m, err := formatRecord(f.Schema(), rec)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		resp.Records = append(resp.Records, m)
	}
	resp.Errors = rowErrorsJSON(rowErrs)
	resp.Stats.Records = len(records)
	resp.Stats.Failed = len(rowErrs)
	resp.Stats.Bytes = f.BytesRead()
	resp.Stats.DurationMs = time.Since(start).Milliseconds()

	if wantsHTML(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := ParseReport(resp).Render(r.Context(), w); err != nil {
			s.logger.Error("render parse report", "error", err)
		}
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleImport binds an uploaded CSV file and stores the records through the
// configured sink in batches.
//
// Query parameters: charset, batch_size, max_errors, validate, backend.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "schema")
	opts, err := s.requestOptions(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	batchSize, err := intParam(r, "batch_size", 0)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	schema, ok := s.catalog.Get(name)
	if !ok {
		s.respondError(w, r, fmt.Errorf("%w: %q", core.ErrUnknownSchema, name))
		return
	}

	if err := s.limiter.Acquire(r.Context()); err != nil {
		s.respondError(w, r, err)
		return
	}
	defer s.limiter.Release()

	snk, err := s.open(r.Context(), schema)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	src, err := s.readUpload(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	start := time.Now()
	engine := core.NewEngine(opts, s.catalog, logging.ForEngine(r.Context(), s.logger, name))
	rowErrs, err := engine.ParseBatches(r.Context(), src, name, batchSize, snk.Write)
	if err != nil {
		s.respondError(w, r, err, rowErrs...)
		return
	}

	s.writeJSON(w, http.StatusOK, ImportResponse{
		Schema:     name,
		Rows:       snk.Rows(),
		Failed:     len(rowErrs),
		Errors:     rowErrorsJSON(rowErrs),
		DurationMs: time.Since(start).Milliseconds(),
	})
}

// handleFormat converts a JSON array of {column: text} objects into a CSV
// download. Every row must bind; otherwise the row errors are returned.
//
// Query parameters: quotes, validate.
func (s *Server) handleFormat(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "schema")
	opts, err := s.requestOptions(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFileSize)
	var rows []map[string]string
	if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, r, err)
			return
		}
		s.respondError(w, r, fmt.Errorf("%w: body: %v", errBadRequest, err))
		return
	}

	engine := core.NewEngine(opts, s.catalog, logging.ForEngine(r.Context(), s.logger, name))
	records, rowErrs, err := engine.BindValues(name, rows)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if len(rowErrs) > 0 {
		s.respondError(w, r, rowErrs[0], rowErrs...)
		return
	}
	s.writeCSV(w, r, name, opts, records)
}

func (s *Server) writeCSV(w http.ResponseWriter, r *http.Request, name string, opts core.Options, records []any) {
	if _, ok := s.catalog.Get(name); !ok {
		s.respondError(w, r, fmt.Errorf("%w: %q", core.ErrUnknownSchema, name))
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.csv"`, name))

	engine := core.NewEngine(opts, s.catalog, logging.ForEngine(r.Context(), s.logger, name))
	if err := engine.WriteFile(r.Context(), w, records, name); err != nil {
		// Headers are sent; the truncated body is all the client gets.
		logging.FromContext(r.Context()).Error("write csv", "schema", name, "error", err)
	}
}

// readUpload returns the CSV payload: the "file" part of a multipart form,
// or the raw request body otherwise.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (io.ReadCloser, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFileSize)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		mr, err := r.MultipartReader()
		if err != nil {
			return nil, fmt.Errorf("%w: multipart: %v", errBadRequest, err)
		}
		for {
			part, err := mr.NextPart()
			if errors.Is(err, io.EOF) {
				return nil, errNoFile
			}
			if err != nil {
				return nil, fmt.Errorf("%w: multipart: %v", errBadRequest, err)
			}
			if part.FormName() == "file" {
				return part, nil
			}
			part.Close()
		}
	}

	if r.ContentLength == 0 {
		return nil, errNoFile
	}
	return r.Body, nil
}

// requestOptions applies the per-request overrides to the engine options.
func (s *Server) requestOptions(r *http.Request) (core.Options, error) {
	opts := s.opts
	q := r.URL.Query()

	if v := q.Get("charset"); v != "" {
		opts.Charset = v
	}
	if v := q.Get("backend"); v != "" {
		b, err := core.ParseBackend(v)
		if err != nil {
			return opts, fmt.Errorf("%w: backend: %v", errBadRequest, err)
		}
		opts.Backend = b
	}
	if v := q.Get("max_errors"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return opts, fmt.Errorf("%w: max_errors %q", errBadRequest, v)
		}
		opts.MaxErrors = n
	}
	for _, flag := range []struct {
		name string
		dst  *bool
	}{
		{"validate", &opts.ValidationEnabled},
		{"quotes", &opts.AddQuotes},
	} {
		if v := q.Get(flag.name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return opts, fmt.Errorf("%w: %s %q", errBadRequest, flag.name, v)
			}
			*flag.dst = b
		}
	}
	return opts, nil
}

// intParam parses a non-negative integer query parameter.
func intParam(r *http.Request, name string, defaultVal int) (int, error) {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s %q", errBadRequest, name, val)
	}
	return n, nil
}

func schemaJSON(s *core.Schema) SchemaJSON {
	out := SchemaJSON{Name: s.Name(), Separator: string(s.Separator())}
	for _, col := range s.OrderedColumns() {
		cj := ColumnJSON{
			Name:      col.Name,
			Order:     col.Order,
			Mandatory: col.Mandatory,
			Converter: col.ConverterKey.String(),
		}
		for _, vk := range col.ValidatorKeys {
			cj.Validators = append(cj.Validators, vk.String())
		}
		out.Columns = append(out.Columns, cj)
	}
	return out
}

func formatRecord(s *core.Schema, rec any) (map[string]string, error) {
	m := make(map[string]string, len(s.Columns()))
	for _, col := range s.OrderedColumns() {
		text, ok, err := col.FormatValue(rec)
		if err != nil {
			return nil, fmt.Errorf("format column %s: %w", col.Name, err)
		}
		if ok {
			m[col.Name] = text
		}
	}
	return m, nil
}

func rowErrorsJSON(rowErrs []*core.RowError) []RowErrorJSON {
	out := make([]RowErrorJSON, 0, len(rowErrs))
	for _, re := range rowErrs {
		rj := RowErrorJSON{Line: re.LineNumber, Raw: re.Line}
		for _, ve := range re.Errors {
			rj.Errors = append(rj.Errors, FieldErrorJSON{Field: ve.Field, Value: ve.Value, Message: ve.Message})
		}
		out = append(out, rj)
	}
	return out
}
