package core

// convert.go provides the built-in converters between CSV text and typed values.
//
// A converter is constructed once per distinct parameter set (see cache.go)
// and shared by every column declaring it, so implementations must not keep
// per-call state after Init.
//
//	string   identity
//	integer  int, base 10
//	double   float64
//	boolean  "1" / "0"
//	date     time.Time, "format" (yyyy-MM-dd style) or "layout" (Go layout)
//	time     minutes since midnight from "HH:MM[:SS]", formatted "HH:MM:00"
//	numeric  pgtype.Numeric with currency/thousands/accounting clean-up
//	uuid     uuid.UUID
//	enum     canonical spelling from "values", optional "ignoreCase"

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// Converter turns one column's text into a typed value and back.
type Converter interface {
	Parse(text string) (any, error)
	Format(v any) (string, error)
}

// numericRegex validates that a string is a valid numeric format after cleanup.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)

func registerBuiltinConverters(r *Registry[Converter]) {
	r.Define("string", func() Converter { return stringConverter{} })
	r.Define("integer", func() Converter { return integerConverter{} })
	r.Define("double", func() Converter { return doubleConverter{} })
	r.Define("boolean", func() Converter { return booleanConverter{} })
	r.Define("date", func() Converter { return &dateConverter{} })
	r.Define("time", func() Converter { return timeConverter{} })
	r.Define("numeric", func() Converter { return numericConverter{} })
	r.Define("uuid", func() Converter { return uuidConverter{} })
	r.Define("enum", func() Converter { return &enumConverter{} })
}

func unexpectedType(want string, v any) error {
	return fmt.Errorf("expected %s, got %T", want, v)
}

type stringConverter struct{}

func (stringConverter) Parse(text string) (any, error) { return text, nil }

func (stringConverter) Format(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", unexpectedType("string", v)
	}
	return s, nil
}

type integerConverter struct{}

func (integerConverter) Parse(text string) (any, error) {
	i, err := strconv.Atoi(text)
	if err != nil {
		return nil, fmt.Errorf("not an integer")
	}
	return i, nil
}

func (integerConverter) Format(v any) (string, error) {
	switch n := v.(type) {
	case int:
		return strconv.Itoa(n), nil
	case int64:
		return strconv.FormatInt(n, 10), nil
	default:
		return "", unexpectedType("int", v)
	}
}

type doubleConverter struct{}

func (doubleConverter) Parse(text string) (any, error) {
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, fmt.Errorf("not a number")
	}
	return f, nil
}

func (doubleConverter) Format(v any) (string, error) {
	f, ok := v.(float64)
	if !ok {
		return "", unexpectedType("float64", v)
	}
	return strconv.FormatFloat(f, 'g', -1, 64), nil
}

type booleanConverter struct{}

func (booleanConverter) Parse(text string) (any, error) {
	switch text {
	case "1":
		return true, nil
	case "0":
		return false, nil
	default:
		return nil, fmt.Errorf("must be 1 or 0")
	}
}

func (booleanConverter) Format(v any) (string, error) {
	b, ok := v.(bool)
	if !ok {
		return "", unexpectedType("bool", v)
	}
	if b {
		return "1", nil
	}
	return "0", nil
}

// dateConverter parses with a fixed layout resolved at Init.
type dateConverter struct {
	layout string
}

func (c *dateConverter) Init(params Params) error {
	if layout, ok := params.Get("layout"); ok && layout != "" {
		c.layout = layout
		return nil
	}
	format, ok := params.Get("format")
	if !ok || format == "" {
		return fmt.Errorf("%w: format", ErrMissingParam)
	}
	layout, err := DateLayout(format)
	if err != nil {
		return fmt.Errorf("format %q: %w", format, err)
	}
	c.layout = layout
	return nil
}

func (c *dateConverter) Parse(text string) (any, error) {
	t, err := time.Parse(c.layout, text)
	if err != nil {
		return nil, fmt.Errorf("expected date layout %s", c.layout)
	}
	return t, nil
}

func (c *dateConverter) Format(v any) (string, error) {
	t, ok := v.(time.Time)
	if !ok {
		return "", unexpectedType("time.Time", v)
	}
	return t.Format(c.layout), nil
}

// DateLayout translates a yyyy-MM-dd style date pattern into a Go layout.
// Text between single quotes is copied literally and two single quotes
// stand for one.
func DateLayout(pattern string) (string, error) {
	var b strings.Builder
	runes := []rune(pattern)

	for i := 0; i < len(runes); {
		c := runes[i]

		if c == '\'' {
			if i+1 < len(runes) && runes[i+1] == '\'' {
				b.WriteRune('\'')
				i += 2
				continue
			}
			j := i + 1
			for j < len(runes) && runes[j] != '\'' {
				j++
			}
			if j >= len(runes) {
				return "", fmt.Errorf("unterminated quote")
			}
			b.WriteString(string(runes[i+1 : j]))
			i = j + 1
			continue
		}

		if !isASCIILetter(c) {
			b.WriteRune(c)
			i++
			continue
		}

		n := 1
		for i+n < len(runes) && runes[i+n] == c {
			n++
		}
		i += n

		switch c {
		case 'y':
			if n == 2 {
				b.WriteString("06")
			} else {
				b.WriteString("2006")
			}
		case 'M':
			switch {
			case n == 1:
				b.WriteString("1")
			case n == 2:
				b.WriteString("01")
			case n == 3:
				b.WriteString("Jan")
			default:
				b.WriteString("January")
			}
		case 'd':
			if n == 1 {
				b.WriteString("2")
			} else {
				b.WriteString("02")
			}
		case 'H':
			b.WriteString("15")
		case 'h':
			if n == 1 {
				b.WriteString("3")
			} else {
				b.WriteString("03")
			}
		case 'm':
			if n == 1 {
				b.WriteString("4")
			} else {
				b.WriteString("04")
			}
		case 's':
			if n == 1 {
				b.WriteString("5")
			} else {
				b.WriteString("05")
			}
		case 'S':
			b.WriteString(strings.Repeat("0", n))
		case 'E':
			if n <= 3 {
				b.WriteString("Mon")
			} else {
				b.WriteString("Monday")
			}
		case 'a':
			b.WriteString("PM")
		case 'z':
			b.WriteString("MST")
		case 'Z':
			b.WriteString("-0700")
		case 'X':
			switch n {
			case 1:
				b.WriteString("Z07")
			case 2:
				b.WriteString("Z0700")
			default:
				b.WriteString("Z07:00")
			}
		default:
			return "", fmt.Errorf("unsupported pattern letter %q", c)
		}
	}

	return b.String(), nil
}

func isASCIILetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// timeConverter maps a time of day to minutes since midnight. Seconds are
// accepted on input and dropped.
type timeConverter struct{}

func (timeConverter) Parse(text string) (any, error) {
	parts := strings.Split(text, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return nil, fmt.Errorf("expected HH:MM or HH:MM:SS")
	}

	limits := []int{23, 59, 59}
	vals := make([]int, len(parts))
	for i, p := range parts {
		if len(p) == 0 || len(p) > 2 {
			return nil, fmt.Errorf("expected HH:MM or HH:MM:SS")
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > limits[i] {
			return nil, fmt.Errorf("expected HH:MM or HH:MM:SS")
		}
		vals[i] = n
	}
	return vals[0]*60 + vals[1], nil
}

func (timeConverter) Format(v any) (string, error) {
	m, ok := v.(int)
	if !ok {
		return "", unexpectedType("int", v)
	}
	if m < 0 || m >= 24*60 {
		return "", fmt.Errorf("minutes out of range: %d", m)
	}
	return fmt.Sprintf("%02d:%02d:00", m/60, m%60), nil
}

// numericConverter handles the messy reality of spreadsheet numbers:
// currency symbols, thousands separators and accounting negatives "(1.00)".
type numericConverter struct{}

func (numericConverter) Parse(text string) (any, error) {
	n := ToPgNumeric(text)
	if !n.Valid {
		return nil, fmt.Errorf("invalid number format")
	}
	return n, nil
}

func (numericConverter) Format(v any) (string, error) {
	n, ok := v.(pgtype.Numeric)
	if !ok {
		return "", unexpectedType("pgtype.Numeric", v)
	}
	if !n.Valid {
		return "", nil
	}
	val, err := n.Value()
	if err != nil {
		return "", err
	}
	s, ok := val.(string)
	if !ok {
		return "", unexpectedType("numeric text", val)
	}
	return s, nil
}

// ToPgNumeric converts a string to pgtype.Numeric.
// Returns invalid for empty or unparseable input.
func ToPgNumeric(s string) pgtype.Numeric {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Numeric{Valid: false}
	}

	// Detect negative accounting format "(123.45)"
	isNegative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		isNegative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, "€", "") // Euro
	s = strings.ReplaceAll(s, "£", "") // Pound
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	if isNegative {
		s = "-" + s
	}

	if !numericRegex.MatchString(s) {
		return pgtype.Numeric{Valid: false}
	}

	var n pgtype.Numeric
	if err := n.Scan(s); err != nil {
		return pgtype.Numeric{Valid: false}
	}
	return n
}

type uuidConverter struct{}

func (uuidConverter) Parse(text string) (any, error) {
	id, err := uuid.Parse(text)
	if err != nil {
		return nil, fmt.Errorf("invalid UUID")
	}
	return id, nil
}

func (uuidConverter) Format(v any) (string, error) {
	id, ok := v.(uuid.UUID)
	if !ok {
		return "", unexpectedType("uuid.UUID", v)
	}
	return id.String(), nil
}

// enumConverter accepts one of a fixed set of values and returns its
// canonical spelling.
type enumConverter struct {
	values     []string
	ignoreCase bool
}

func (c *enumConverter) Init(params Params) error {
	values, ignoreCase, err := enumParams(params)
	if err != nil {
		return err
	}
	c.values, c.ignoreCase = values, ignoreCase
	return nil
}

func (c *enumConverter) Parse(text string) (any, error) {
	if v, ok := matchEnum(c.values, c.ignoreCase, text); ok {
		return v, nil
	}
	return nil, fmt.Errorf("value must be one of: %s", strings.Join(c.values, ", "))
}

func (c *enumConverter) Format(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", unexpectedType("string", v)
	}
	return s, nil
}

func enumParams(params Params) ([]string, bool, error) {
	raw, ok := params.Get("values")
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, false, fmt.Errorf("%w: values", ErrMissingParam)
	}
	var values []string
	for _, v := range strings.Split(raw, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}

	ignoreCase := false
	if s, ok := params.Get("ignoreCase"); ok {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, false, fmt.Errorf("ignoreCase %q: not a boolean", s)
		}
		ignoreCase = b
	}
	return values, ignoreCase, nil
}

func matchEnum(values []string, ignoreCase bool, text string) (string, bool) {
	for _, v := range values {
		if v == text || (ignoreCase && strings.EqualFold(v, text)) {
			return v, true
		}
	}
	return "", false
}
