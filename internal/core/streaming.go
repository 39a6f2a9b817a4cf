package core

// streaming.go prepares raw input for the line reader.
//
// Input bytes are decoded from the caller's charset to UTF-8 on the fly
// (invalid sequences become U+FFFD) and counted so a parse can report how
// much it consumed. Memory use stays O(buffer size) whatever the file size.

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"unicode"

	"golang.org/x/text/encoding/htmlindex"
)

// DefaultCharset is used when a parse call names no charset.
const DefaultCharset = "utf-8"

// CountingReader wraps an io.Reader to track bytes read.
type CountingReader struct {
	reader    io.Reader
	closer    io.Closer
	BytesRead int64
}

// NewCountingReader creates a counting reader. If r is an io.Closer, Close
// closes it.
func NewCountingReader(r io.Reader) *CountingReader {
	closer, _ := r.(io.Closer)
	return &CountingReader{reader: r, closer: closer}
}

// Read implements io.Reader.
func (r *CountingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.BytesRead += int64(n)
	return n, err
}

// Close closes the wrapped source if it can be closed.
func (r *CountingReader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// DecodeReader returns a reader producing UTF-8 from src encoded in charset.
// Charset names follow the WHATWG encoding labels ("utf-8", "latin1",
// "windows-1252", "utf-16le", ...). The returned reader closes src.
func DecodeReader(src io.Reader, charset string) (*CountingReader, error) {
	if strings.TrimSpace(charset) == "" {
		charset = DefaultCharset
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, fmt.Errorf("charset %q: %w", charset, err)
	}

	decoded := enc.NewDecoder().Reader(src)
	cr := NewCountingReader(decoded)
	cr.closer, _ = src.(io.Closer)
	return cr, nil
}

// leadingSkipper drops one ignorable rune (typically a byte order mark)
// from the start of a decoded stream, before the first line is tokenized.
type leadingSkipper struct {
	br      *bufio.Reader
	closer  io.Closer
	checked bool
	err     error
}

func newLeadingSkipper(r io.Reader) *leadingSkipper {
	closer, _ := r.(io.Closer)
	return &leadingSkipper{br: bufio.NewReader(r), closer: closer}
}

// Read implements io.Reader.
func (s *leadingSkipper) Read(p []byte) (int, error) {
	if !s.checked {
		s.checked = true
		r, _, err := s.br.ReadRune()
		switch {
		case err != nil:
			s.err = err
		case !isIdentifierIgnorable(r):
			s.br.UnreadRune()
		}
	}
	if s.err != nil {
		return 0, s.err
	}
	return s.br.Read(p)
}

// Close closes the wrapped source if it can be closed.
func (s *leadingSkipper) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// isIdentifierIgnorable reports control and format characters that may
// lead a file without being content (U+FEFF, U+200B, C0/C1 controls).
func isIdentifierIgnorable(r rune) bool {
	switch {
	case r <= 0x08:
		return true
	case r >= 0x0E && r <= 0x1B:
		return true
	case r >= 0x7F && r <= 0x9F:
		return true
	}
	return unicode.Is(unicode.Cf, r)
}
