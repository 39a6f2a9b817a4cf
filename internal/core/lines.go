package core

// lines.go is the line-oriented I/O boundary of the engine.
//
// A LineReader yields one tokenized line at a time and skips blank lines
// (lines that tokenize to exactly one empty field). Two backends exist and
// must agree on every balanced, non-escaped input:
//
//   - BackendBuiltin: bufio line reads + Split
//   - BackendStdlib:  encoding/csv with lazy quotes
//
// A LineWriter writes one row at a time; nil fields are written absent and
// present fields are optionally wrapped in quotes.

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Backend selects the tokenizer behind a LineReader.
type Backend string

const (
	BackendBuiltin Backend = "builtin"
	BackendStdlib  Backend = "stdlib"
)

// ParseBackend validates a backend name. Empty means BackendBuiltin.
func ParseBackend(s string) (Backend, error) {
	switch Backend(strings.ToLower(strings.TrimSpace(s))) {
	case "", BackendBuiltin:
		return BackendBuiltin, nil
	case BackendStdlib:
		return BackendStdlib, nil
	default:
		return "", fmt.Errorf("unknown backend %q (want builtin or stdlib)", s)
	}
}

// LineReader reads tokenized lines. ReadLine returns io.EOF after the last line.
type LineReader interface {
	ReadLine() ([]string, error)
	// Line returns the 1-based physical line of the last record returned.
	Line() int
	Close() error
}

// LineWriter writes one row per call.
type LineWriter interface {
	WriteLine(fields []*string) error
	Close() error
}

// NewLineReader opens a reader over src. If src is an io.Closer it is closed
// by Close.
func NewLineReader(src io.Reader, sep rune, backend Backend) (LineReader, error) {
	closer, _ := src.(io.Closer)

	switch backend {
	case "", BackendBuiltin:
		return &tokenReader{br: bufio.NewReader(src), sep: sep, closer: closer}, nil
	case BackendStdlib:
		cr := csv.NewReader(src)
		cr.Comma = sep
		cr.LazyQuotes = true
		cr.FieldsPerRecord = -1
		return &stdlibReader{cr: cr, closer: closer}, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", backend)
	}
}

func isBlank(fields []string) bool {
	return len(fields) == 1 && fields[0] == ""
}

type tokenReader struct {
	br     *bufio.Reader
	sep    rune
	line   int
	closer io.Closer
}

func (r *tokenReader) ReadLine() ([]string, error) {
	for {
		text, err := r.br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		if text == "" && err != nil {
			return nil, io.EOF
		}
		r.line++

		text = strings.TrimSuffix(text, "\n")
		text = strings.TrimSuffix(text, "\r")

		fields := Split(text, r.sep)
		if isBlank(fields) {
			continue
		}
		return fields, nil
	}
}

func (r *tokenReader) Line() int { return r.line }

func (r *tokenReader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

type stdlibReader struct {
	cr     *csv.Reader
	line   int
	closer io.Closer
}

func (r *stdlibReader) ReadLine() ([]string, error) {
	for {
		fields, err := r.cr.Read()
		if err != nil {
			return nil, err
		}
		r.line, _ = r.cr.FieldPos(0)
		if isBlank(fields) {
			continue
		}
		return fields, nil
	}
}

func (r *stdlibReader) Line() int { return r.line }

func (r *stdlibReader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// NewLineWriter opens a writer over dst. If dst is an io.Closer it is closed
// by Close after flushing.
func NewLineWriter(dst io.Writer, sep rune, addQuotes bool) LineWriter {
	closer, _ := dst.(io.Closer)
	return &lineWriter{bw: bufio.NewWriter(dst), sep: sep, quote: addQuotes, closer: closer}
}

type lineWriter struct {
	bw     *bufio.Writer
	sep    rune
	quote  bool
	closer io.Closer
}

func (w *lineWriter) WriteLine(fields []*string) error {
	for i, f := range fields {
		if i > 0 {
			w.bw.WriteRune(w.sep)
		}
		if f == nil {
			continue
		}
		if w.quote {
			w.bw.WriteByte('"')
			w.bw.WriteString(*f)
			w.bw.WriteByte('"')
		} else {
			w.bw.WriteString(*f)
		}
	}
	// bufio errors are sticky, so the last write reports any earlier failure.
	_, err := w.bw.WriteString("\n")
	return err
}

func (w *lineWriter) Close() error {
	err := w.bw.Flush()
	if w.closer != nil {
		if cerr := w.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
