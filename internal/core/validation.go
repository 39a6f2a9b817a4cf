package core

// validation.go provides field-level validators and the per-column failure type.
//
// Validators run on the raw text before conversion and only when validation
// is enabled on the engine. Like converters they are cached per parameter set,
// so they hold no state beyond what Init resolves.

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// MandatoryMessage is recorded for an empty mandatory column.
const MandatoryMessage = "field is mandatory"

// ValidationError represents a single validation error for a field.
type ValidationError struct {
	Field   string // Column name
	Value   string // The rejected text (empty for missing values)
	Message string // Human-readable error message
}

func (e ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// Validator checks one column's raw text.
type Validator interface {
	Validate(text string) error
}

func registerBuiltinValidators(r *Registry[Validator]) {
	r.Define("regex", func() Validator { return &regexValidator{} })
	r.Define("size", func() Validator { return &sizeValidator{min: -1, max: -1} })
	r.Define("enum", func() Validator { return &enumValidator{} })
}

// regexValidator requires the whole text to match "pattern".
type regexValidator struct {
	pattern string
	re      *regexp.Regexp
}

func (v *regexValidator) Init(params Params) error {
	pattern, ok := params.Get("pattern")
	if !ok {
		return fmt.Errorf("%w: pattern", ErrMissingParam)
	}
	re, err := regexp.Compile(`^(?:` + pattern + `)$`)
	if err != nil {
		return fmt.Errorf("pattern %q: %w", pattern, err)
	}
	v.pattern, v.re = pattern, re
	return nil
}

func (v *regexValidator) Validate(text string) error {
	if !v.re.MatchString(text) {
		return fmt.Errorf("does not match pattern %s", v.pattern)
	}
	return nil
}

// sizeValidator bounds the text length in characters, both ends inclusive.
// A negative bound is unset.
type sizeValidator struct {
	min, max int
}

func (v *sizeValidator) Init(params Params) error {
	minRaw, hasMin := params.Get("minSize")
	maxRaw, hasMax := params.Get("maxSize")
	if !hasMin && !hasMax {
		return fmt.Errorf("%w: minSize or maxSize", ErrMissingParam)
	}

	if hasMin {
		n, err := strconv.Atoi(strings.TrimSpace(minRaw))
		if err != nil || n < 0 {
			return fmt.Errorf("minSize %q: not a non-negative integer", minRaw)
		}
		v.min = n
	}
	if hasMax {
		n, err := strconv.Atoi(strings.TrimSpace(maxRaw))
		if err != nil || n < 0 {
			return fmt.Errorf("maxSize %q: not a non-negative integer", maxRaw)
		}
		v.max = n
	}
	if v.min >= 0 && v.max >= 0 && v.min > v.max {
		return fmt.Errorf("minSize %d greater than maxSize %d", v.min, v.max)
	}
	return nil
}

func (v *sizeValidator) Validate(text string) error {
	n := utf8.RuneCountInString(text)
	switch {
	case v.min >= 0 && v.max >= 0 && (n < v.min || n > v.max):
		return fmt.Errorf("size must be between %d and %d, got %d", v.min, v.max, n)
	case v.min >= 0 && n < v.min:
		return fmt.Errorf("size must be at least %d, got %d", v.min, n)
	case v.max >= 0 && n > v.max:
		return fmt.Errorf("size must be at most %d, got %d", v.max, n)
	}
	return nil
}

// enumValidator accepts only the listed values.
type enumValidator struct {
	values     []string
	ignoreCase bool
}

func (v *enumValidator) Init(params Params) error {
	values, ignoreCase, err := enumParams(params)
	if err != nil {
		return err
	}
	v.values, v.ignoreCase = values, ignoreCase
	return nil
}

func (v *enumValidator) Validate(text string) error {
	if _, ok := matchEnum(v.values, v.ignoreCase, text); !ok {
		return fmt.Errorf("value must be one of: %s", strings.Join(v.values, ", "))
	}
	return nil
}
