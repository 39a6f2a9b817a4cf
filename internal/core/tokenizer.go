package core

// tokenizer.go splits a single CSV line into fields.
//
// The scanner is deliberately small: quotes protect separators, and the
// closing quote of a field is dropped. Doubled quotes are not unescaped and
// fields never span lines. Any library backend plugged in behind LineReader
// must produce the same fields for balanced, non-escaped input.

import "unicode/utf8"

// Split tokenizes line using the single-rune separator sep.
// An empty line yields one empty field.
func Split(line string, sep rune) []string {
	fields := make([]string, 0, 8)

	var (
		inField     bool
		inQuote     bool
		quoteClosed bool
		fieldStart  int
		separators  int
	)

	emit := func(end int) {
		text := line[fieldStart:end]
		if quoteClosed && len(text) > 0 {
			_, size := utf8.DecodeLastRuneInString(text)
			text = text[:len(text)-size]
		}
		fields = append(fields, text)
		inField, inQuote, quoteClosed = false, false, false
	}

	for i, c := range line {
		switch {
		case !inField:
			switch {
			case c == sep && !inQuote:
				separators++
				fields = append(fields, "")
				inQuote, quoteClosed = false, false
			case c == '"' && !inQuote:
				inQuote = true
			case c == '"' && inQuote:
				// Empty quoted field: nothing to start.
				inQuote = false
				quoteClosed = true
			default:
				inField = true
				fieldStart = i
				quoteClosed = false
			}

		case inQuote:
			if c == '"' {
				inQuote = false
				quoteClosed = true
			}

		case c == sep:
			separators++
			emit(i)
		}
	}

	if inField {
		emit(len(line))
	}
	for len(fields) < separators+1 {
		fields = append(fields, "")
	}
	return fields
}

// SplitLine is Split for an optional line: nil in, nil out.
func SplitLine(line *string, sep rune) []string {
	if line == nil {
		return nil
	}
	return Split(*line, sep)
}

// Join rebuilds a line from fields with sep, without quoting.
func Join(fields []string, sep rune) string {
	if len(fields) == 0 {
		return ""
	}
	var sepBuf [utf8.UTFMax]byte
	s := string(sepBuf[:utf8.EncodeRune(sepBuf[:], sep)])

	n := len(s) * (len(fields) - 1)
	for _, f := range fields {
		n += len(f)
	}
	b := make([]byte, 0, n)
	for i, f := range fields {
		if i > 0 {
			b = append(b, s...)
		}
		b = append(b, f...)
	}
	return string(b)
}
