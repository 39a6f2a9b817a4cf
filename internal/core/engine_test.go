package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T, opts Options, defs ...SchemaDef) *Engine {
	t.Helper()
	catalog := NewCatalog(nil)
	for _, def := range defs {
		if _, err := catalog.Register(def); err != nil {
			t.Fatalf("Register(%s) error: %v", def.Name, err)
		}
	}
	return NewEngine(opts, catalog, testLogger())
}

func attrsDef(mandatory bool) SchemaDef {
	return SchemaDef{
		Name:      "attrs",
		Separator: "|",
		New:       NewRecord,
		Columns: []ColumnDef{
			{Name: "att_1", Mandatory: mandatory, Accessor: MapField("att_1")},
			{Name: "att_2", Accessor: MapField("att_2")},
		},
	}
}

func TestEngine_AbsentLeadingField(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxErrors = -1

	t.Run("optional column stays unset", func(t *testing.T) {
		e := newTestEngine(t, opts, attrsDef(false))
		res, err := e.Parse(context.Background(), strings.NewReader("att_1|att_2\n|value2\n"), "attrs")
		if err != nil {
			t.Fatalf("Parse error: %v", err)
		}
		if len(res.Records) != 1 || len(res.Errors) != 0 {
			t.Fatalf("records=%d errors=%d, want 1/0", len(res.Records), len(res.Errors))
		}
		rec := res.Records[0].(Record)
		if _, ok := rec["att_1"]; ok {
			t.Error("att_1 should be absent")
		}
		if rec["att_2"] != "value2" {
			t.Errorf("att_2 = %v, want value2", rec["att_2"])
		}
	})

	t.Run("mandatory column reports one error", func(t *testing.T) {
		e := newTestEngine(t, opts, attrsDef(true))
		res, err := e.Parse(context.Background(), strings.NewReader("att_1|att_2\n|value2\n"), "attrs")
		if err != nil {
			t.Fatalf("Parse error: %v", err)
		}
		if len(res.Records) != 0 || len(res.Errors) != 1 {
			t.Fatalf("records=%d errors=%d, want 0/1", len(res.Records), len(res.Errors))
		}
		re := res.Errors[0]
		if re.Line != "|value2" {
			t.Errorf("Line = %q, want %q", re.Line, "|value2")
		}
		if re.LineNumber != 2 {
			t.Errorf("LineNumber = %d, want 2", re.LineNumber)
		}
		msgs := re.Messages()
		if len(msgs) != 1 || !strings.Contains(msgs[0], "att_1") || !strings.Contains(msgs[0], "mandatory") {
			t.Errorf("messages = %q", msgs)
		}
	})
}

func TestEngine_ParseStructs(t *testing.T) {
	e := newTestEngine(t, DefaultOptions(), personDef())

	input := "\ufeffactive|id|name|born|email|ignored\n" +
		"1|1|Ann|1990-05-01|ann@example.com|x\n" +
		"\n" +
		"0|2|Bob|1985-12-24||y\n"

	people, rowErrs, err := ParseAll[person](context.Background(), e, strings.NewReader(input), "people")
	if err != nil {
		t.Fatalf("ParseAll error: %v", err)
	}
	if len(rowErrs) != 0 {
		t.Fatalf("unexpected row errors: %v", rowErrs)
	}
	if len(people) != 2 {
		t.Fatalf("got %d people, want 2", len(people))
	}

	ann := people[0]
	if ann.ID != 1 || ann.Name != "Ann" || !ann.Active || ann.Email == nil || *ann.Email != "ann@example.com" {
		t.Errorf("ann = %+v", ann)
	}
	if !ann.Born.Equal(time.Date(1990, 5, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("ann.Born = %v", ann.Born)
	}
	if bob := people[1]; bob.Email != nil || bob.Active {
		t.Errorf("bob = %+v", bob)
	}
}

func TestEngine_RowErrorsCollectAllColumns(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxErrors = -1
	e := newTestEngine(t, opts, personDef())

	input := "id|name|born|email\n" +
		"x|Alexander|1990-05-01|nobody\n" +
		"3||19900501|\n"

	res, err := e.Parse(context.Background(), strings.NewReader(input), "people")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if len(res.Errors) != 2 {
		t.Fatalf("got %d row errors, want 2", len(res.Errors))
	}

	first := res.Errors[0]
	wantFirst := []string{
		`id: invalid value "x" (not an integer)`,
		"name: size must be at most 5, got 9",
		"email: does not match pattern [^@]+@[^@]+",
	}
	if !reflect.DeepEqual(first.Messages(), wantFirst) {
		t.Errorf("first messages = %q, want %q", first.Messages(), wantFirst)
	}
	if first.Line != "x|Alexander|1990-05-01|nobody" {
		t.Errorf("first line = %q", first.Line)
	}

	second := res.Errors[1]
	wantSecond := []string{
		"name: field is mandatory",
		`born: invalid value "19900501" (expected date layout 2006-01-02)`,
	}
	if !reflect.DeepEqual(second.Messages(), wantSecond) {
		t.Errorf("second messages = %q, want %q", second.Messages(), wantSecond)
	}
}

func TestEngine_ValidationDisabled(t *testing.T) {
	opts := DefaultOptions()
	opts.ValidationEnabled = false
	opts.MaxErrors = -1
	e := newTestEngine(t, opts, personDef())

	input := "id|name|email\n|Alexander|nobody\nx|A|\n"
	res, err := e.Parse(context.Background(), strings.NewReader(input), "people")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if len(res.Records) != 1 {
		t.Fatalf("records = %d, want 1", len(res.Records))
	}
	p := res.Records[0].(*person)
	if p.Name != "Alexander" || p.Email == nil || *p.Email != "nobody" {
		t.Errorf("record = %+v", p)
	}
	// Conversion still fails without validation.
	if len(res.Errors) != 1 || res.Errors[0].Errors[0].Field != "id" {
		t.Errorf("errors = %v", res.Errors)
	}
}

func TestEngine_WhitespaceCountsAsFilled(t *testing.T) {
	e := newTestEngine(t, DefaultOptions(), attrsDef(true))
	res, err := e.Parse(context.Background(), strings.NewReader("att_1|att_2\n  |b\n"), "attrs")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if len(res.Records) != 1 || res.Records[0].(Record)["att_1"] != "  " {
		t.Errorf("records = %v, errors = %v", res.Records, res.Errors)
	}
}

func TestEngine_ErrorThreshold(t *testing.T) {
	const badRows = 5

	var b strings.Builder
	b.WriteString("att_1|att_2\n")
	for i := 0; i < badRows; i++ {
		fmt.Fprintf(&b, "|bad%d\n", i)
		b.WriteString("ok|fine\n")
	}
	input := b.String()

	for _, max := range []int{-1, 0, 1, 3, 4, 5, 10} {
		t.Run(fmt.Sprintf("max=%d", max), func(t *testing.T) {
			opts := DefaultOptions()
			opts.MaxErrors = max
			e := newTestEngine(t, opts, attrsDef(true))

			src := &closeTracker{Reader: strings.NewReader(input)}
			errs, err := e.ParseAndInsert(context.Background(), src, "attrs", func(any) (Control, error) {
				return Continue, nil
			})

			if !src.closed {
				t.Error("source not closed")
			}

			shouldTrip := max >= 0 && badRows > max
			var exceeded *ErrorsExceededError
			if got := errors.As(err, &exceeded); got != shouldTrip {
				t.Fatalf("tripped = %v, want %v (err %v)", got, shouldTrip, err)
			}
			if shouldTrip {
				if len(exceeded.Errors) != max+1 || len(errs) != max+1 {
					t.Errorf("errors carried = %d/%d, want %d", len(exceeded.Errors), len(errs), max+1)
				}
				if !strings.Contains(exceeded.Error(), "mandatory") {
					t.Errorf("message = %q", exceeded.Error())
				}
				return
			}
			if len(errs) != badRows {
				t.Errorf("row errors = %d, want %d", len(errs), badRows)
			}
		})
	}
}

func TestErrorsExceededError_MessageCapped(t *testing.T) {
	var rowErrs []*RowError
	for i := 0; i < 500; i++ {
		rowErrs = append(rowErrs, &RowError{
			LineNumber: i + 2,
			Line:       strings.Repeat("x", 40),
			Errors:     []ValidationError{{Field: "a", Message: MandatoryMessage}},
		})
	}
	msg := (&ErrorsExceededError{Max: 499, Errors: rowErrs}).Error()
	if len(msg) > MaxErrorMessageLength+len("; ...") {
		t.Errorf("message length %d exceeds cap", len(msg))
	}
	if !strings.HasSuffix(msg, "; ...") {
		t.Errorf("truncated message should end with ellipsis: %q", msg[len(msg)-20:])
	}
}

func TestEngine_StopAndParseFirst(t *testing.T) {
	e := newTestEngine(t, DefaultOptions(), attrsDef(false))
	input := "att_1|att_2\na|1\nb|2\nc|3\nd|4\n"

	src := &closeTracker{Reader: strings.NewReader(input)}
	res, err := e.ParseFirst(context.Background(), src, "attrs", 2)
	if err != nil {
		t.Fatalf("ParseFirst error: %v", err)
	}
	if len(res.Records) != 2 {
		t.Fatalf("records = %d, want 2", len(res.Records))
	}
	if got := res.Records[1].(Record)["att_1"]; got != "b" {
		t.Errorf("second record att_1 = %v, want b", got)
	}
	if !src.closed {
		t.Error("source not closed after stop")
	}
}

func TestEngine_HandlerErrorAborts(t *testing.T) {
	e := newTestEngine(t, DefaultOptions(), attrsDef(false))
	sentinel := errors.New("sink down")

	src := &closeTracker{Reader: strings.NewReader("att_1|att_2\na|1\nb|2\n")}
	calls := 0
	_, err := e.ParseAndInsert(context.Background(), src, "attrs", func(any) (Control, error) {
		calls++
		return Continue, sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("error = %v, want sink failure", err)
	}
	if calls != 1 {
		t.Errorf("handler calls = %d, want 1", calls)
	}
	if !src.closed {
		t.Error("source not closed after handler failure")
	}
}

func TestEngine_FatalErrors(t *testing.T) {
	e := newTestEngine(t, DefaultOptions(), attrsDef(false))

	t.Run("unknown schema", func(t *testing.T) {
		src := &closeTracker{Reader: strings.NewReader("a\n")}
		_, err := e.Parse(context.Background(), src, "nope")
		if !errors.Is(err, ErrUnknownSchema) {
			t.Errorf("error = %v, want ErrUnknownSchema", err)
		}
		if !src.closed {
			t.Error("source not closed")
		}
	})

	t.Run("empty input", func(t *testing.T) {
		_, err := e.Parse(context.Background(), strings.NewReader(""), "attrs")
		if !errors.Is(err, ErrEmptyInput) {
			t.Errorf("error = %v, want ErrEmptyInput", err)
		}
	})

	t.Run("only blank lines", func(t *testing.T) {
		_, err := e.Parse(context.Background(), strings.NewReader("\n\n"), "attrs")
		if !errors.Is(err, ErrEmptyInput) {
			t.Errorf("error = %v, want ErrEmptyInput", err)
		}
	})

	t.Run("unknown charset", func(t *testing.T) {
		_, err := e.NewFile(strings.NewReader("a\n"), "attrs", "klingon")
		if !IsConfigurationError(err) {
			t.Errorf("error = %v, want ConfigurationError", err)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := e.Parse(ctx, strings.NewReader("att_1\na\n"), "attrs")
		if !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v, want context.Canceled", err)
		}
	})

	t.Run("setter type mismatch", func(t *testing.T) {
		def := SchemaDef{
			Name: "broken", Separator: ",", New: New[person](),
			Columns: []ColumnDef{{
				Name:      "id",
				Converter: K("integer"),
				Accessor:  Field(func(p *person) *string { return &p.Name }),
			}},
		}
		e := newTestEngine(t, DefaultOptions(), def)
		_, err := e.Parse(context.Background(), strings.NewReader("id\n1\n"), "broken")
		var ce *ConfigurationError
		if !errors.As(err, &ce) || ce.Op != "assign" || ce.Column != "id" {
			t.Errorf("error = %v, want assign ConfigurationError", err)
		}
	})
}

func TestEngine_NewFileHeader(t *testing.T) {
	e := newTestEngine(t, DefaultOptions(), attrsDef(false))

	f, err := e.NewFile(strings.NewReader("\ufeffatt_2|att_1\nx|y\n"), "attrs", "utf-8")
	if err != nil {
		t.Fatalf("NewFile error: %v", err)
	}
	if !reflect.DeepEqual(f.Header(), []string{"att_2", "att_1"}) {
		t.Errorf("Header = %q", f.Header())
	}

	res := &Result{}
	errs, err := e.ParseFile(context.Background(), f, func(rec any) (Control, error) {
		res.Records = append(res.Records, rec)
		return Continue, nil
	})
	if err != nil || len(errs) != 0 {
		t.Fatalf("ParseFile = %v, %v", errs, err)
	}
	if rec := res.Records[0].(Record); rec["att_1"] != "y" || rec["att_2"] != "x" {
		t.Errorf("record = %v", rec)
	}
}

func TestEngine_BOMBeforeQuotedHeader(t *testing.T) {
	e := newTestEngine(t, DefaultOptions(), attrsDef(true))

	var out bytes.Buffer
	out.WriteString("\ufeff")
	recs := []any{Record{"att_1": "x", "att_2": "y"}}
	if err := e.WriteFile(context.Background(), &out, recs, "attrs"); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}
	out.WriteString("|z\n")

	for _, backend := range []Backend{BackendBuiltin, BackendStdlib} {
		t.Run(string(backend), func(t *testing.T) {
			opts := DefaultOptions()
			opts.Backend = backend
			opts.MaxErrors = -1
			e := newTestEngine(t, opts, attrsDef(true))

			f, err := e.NewFile(bytes.NewReader(out.Bytes()), "attrs", "")
			if err != nil {
				t.Fatalf("NewFile error: %v", err)
			}
			if !reflect.DeepEqual(f.Header(), []string{"att_1", "att_2"}) {
				t.Fatalf("Header = %q", f.Header())
			}
			f.Close()

			res, err := e.Parse(context.Background(), bytes.NewReader(out.Bytes()), "attrs")
			if err != nil {
				t.Fatalf("Parse error: %v", err)
			}
			if len(res.Records) != 1 || res.Records[0].(Record)["att_1"] != "x" {
				t.Errorf("records = %v", res.Records)
			}
			if len(res.Errors) != 1 || res.Errors[0].Errors[0].Field != "att_1" {
				t.Errorf("errors = %v, want one mandatory att_1 failure", res.Errors)
			}
		})
	}
}

func TestEngine_Latin1Input(t *testing.T) {
	e := newTestEngine(t, DefaultOptions(), attrsDef(false))

	input := []byte("att_1|att_2\ncaf\xe9|x\n")
	f, err := e.NewFile(bytes.NewReader(input), "attrs", "latin1")
	if err != nil {
		t.Fatalf("NewFile error: %v", err)
	}
	var got []any
	if _, err := e.ParseFile(context.Background(), f, func(rec any) (Control, error) {
		got = append(got, rec)
		return Continue, nil
	}); err != nil {
		t.Fatalf("ParseFile error: %v", err)
	}
	if got[0].(Record)["att_1"] != "café" {
		t.Errorf("att_1 = %q", got[0].(Record)["att_1"])
	}
}

func TestEngine_BackendsProduceSameRecords(t *testing.T) {
	input := "id|name|born|email|active\n" +
		"1|\"Ann\"|1990-05-01|\"a|b@c\"|1\n" +
		"2|Bob||x@y|0\n"

	var results [][]*person
	for _, backend := range []Backend{BackendBuiltin, BackendStdlib} {
		opts := DefaultOptions()
		opts.Backend = backend
		e := newTestEngine(t, opts, personDef())

		people, errs, err := ParseAll[person](context.Background(), e, strings.NewReader(input), "people")
		if err != nil || len(errs) != 0 {
			t.Fatalf("%s: ParseAll = %v, %v", backend, errs, err)
		}
		results = append(results, people)
	}
	if !reflect.DeepEqual(results[0], results[1]) {
		t.Errorf("backends disagree: %+v vs %+v", results[0], results[1])
	}
}

func TestEngine_WriteFile(t *testing.T) {
	email := "ann@example.com"
	people := []any{
		&person{ID: 1, Name: "Ann", Born: time.Date(1990, 5, 1, 0, 0, 0, 0, time.UTC), Email: &email, Active: true},
		&person{ID: 2, Name: "Bob", Born: time.Date(1985, 12, 24, 0, 0, 0, 0, time.UTC)},
	}

	t.Run("quoted", func(t *testing.T) {
		e := newTestEngine(t, DefaultOptions(), personDef())
		var buf bytes.Buffer
		if err := e.WriteFile(context.Background(), &buf, people, "people"); err != nil {
			t.Fatalf("WriteFile error: %v", err)
		}
		want := `"id"|"name"|"born"|"email"|"active"` + "\n" +
			`"1"|"Ann"|"1990-05-01"|"ann@example.com"|"1"` + "\n" +
			`"2"|"Bob"|"1985-12-24"||"0"` + "\n"
		if buf.String() != want {
			t.Errorf("got:\n%s\nwant:\n%s", buf.String(), want)
		}
	})

	t.Run("unquoted", func(t *testing.T) {
		opts := DefaultOptions()
		opts.AddQuotes = false
		e := newTestEngine(t, opts, personDef())
		var buf bytes.Buffer
		if err := e.WriteFile(context.Background(), &buf, people[1:], "people"); err != nil {
			t.Fatalf("WriteFile error: %v", err)
		}
		want := "id|name|born|email|active\n2|Bob|1985-12-24||0\n"
		if buf.String() != want {
			t.Errorf("got %q, want %q", buf.String(), want)
		}
	})

	t.Run("round trip", func(t *testing.T) {
		e := newTestEngine(t, DefaultOptions(), personDef())
		var buf bytes.Buffer
		if err := e.WriteFile(context.Background(), &buf, people, "people"); err != nil {
			t.Fatalf("WriteFile error: %v", err)
		}
		got, errs, err := ParseAll[person](context.Background(), e, &buf, "people")
		if err != nil || len(errs) != 0 {
			t.Fatalf("ParseAll = %v, %v", errs, err)
		}
		want := Records[person](people)
		if !reflect.DeepEqual(got, want) {
			t.Errorf("round trip = %+v, want %+v", got, want)
		}
	})

	t.Run("wrong record type aborts", func(t *testing.T) {
		e := newTestEngine(t, DefaultOptions(), personDef())
		var buf bytes.Buffer
		err := e.WriteFile(context.Background(), &buf, []any{Record{"id": 1}}, "people")
		if err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("nil record aborts", func(t *testing.T) {
		e := newTestEngine(t, DefaultOptions(), personDef())
		if err := e.WriteFile(context.Background(), io.Discard, []any{nil}, "people"); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("sink failure", func(t *testing.T) {
		e := newTestEngine(t, DefaultOptions(), personDef())
		err := e.WriteFile(context.Background(), failingWriter{}, people, "people")
		var ioErr *IOError
		if !errors.As(err, &ioErr) {
			t.Errorf("error = %v, want IOError", err)
		}
	})

	t.Run("unknown schema", func(t *testing.T) {
		e := newTestEngine(t, DefaultOptions())
		if err := e.WriteFile(context.Background(), io.Discard, people, "people"); !errors.Is(err, ErrUnknownSchema) {
			t.Errorf("error = %v, want ErrUnknownSchema", err)
		}
	})
}

func TestEngine_ParseBatches(t *testing.T) {
	e := newTestEngine(t, DefaultOptions(), attrsDef(false))
	input := "att_1|att_2\na|1\nb|2\nc|3\nd|4\n"

	var sizes []int
	var order []string
	_, err := e.ParseBatches(context.Background(), strings.NewReader(input), "attrs", 3, func(_ context.Context, batch []any) error {
		sizes = append(sizes, len(batch))
		for _, rec := range batch {
			order = append(order, rec.(Record)["att_1"].(string))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ParseBatches error: %v", err)
	}
	if !reflect.DeepEqual(sizes, []int{3, 1}) {
		t.Errorf("batch sizes = %v, want [3 1]", sizes)
	}
	if strings.Join(order, "") != "abcd" {
		t.Errorf("order = %v", order)
	}
}

func TestEngine_ParseBatchesNoFlushAfterThreshold(t *testing.T) {
	e := newTestEngine(t, DefaultOptions(), attrsDef(true))
	input := "att_1|att_2\na|1\n|2\n"

	delivered := 0
	_, err := e.ParseBatches(context.Background(), strings.NewReader(input), "attrs", 10, func(_ context.Context, batch []any) error {
		delivered += len(batch)
		return nil
	})
	var exceeded *ErrorsExceededError
	if !errors.As(err, &exceeded) {
		t.Fatalf("error = %v, want ErrorsExceededError", err)
	}
	if delivered != 0 {
		t.Errorf("delivered %d records after threshold", delivered)
	}
}

func TestEngine_BindValues(t *testing.T) {
	e := newTestEngine(t, DefaultOptions(), personDef())

	rows := []map[string]string{
		{"id": "1", "name": "Ann", "born": "1990-05-01", "active": "1", "extra": "ignored"},
		{"id": "2", "name": "Alexander"},
		{"name": "Cy", "born": "2001-01-01"},
	}
	recs, rowErrs, err := e.BindValues("people", rows)
	if err != nil {
		t.Fatalf("BindValues error: %v", err)
	}

	people := Records[person](recs)
	if len(people) != 1 || people[0].Name != "Ann" || !people[0].Active {
		t.Errorf("records = %+v", people)
	}

	if len(rowErrs) != 2 {
		t.Fatalf("got %d row errors, want 2", len(rowErrs))
	}
	if rowErrs[0].LineNumber != 2 || rowErrs[0].Errors[0].Field != "name" {
		t.Errorf("first row error = %v", rowErrs[0])
	}
	if rowErrs[1].LineNumber != 3 || rowErrs[1].Errors[0].Message != MandatoryMessage {
		t.Errorf("second row error = %v", rowErrs[1])
	}
}

func TestEngine_BindValuesUnknownSchema(t *testing.T) {
	e := newTestEngine(t, DefaultOptions())
	if _, _, err := e.BindValues("nope", nil); !errors.Is(err, ErrUnknownSchema) {
		t.Errorf("error = %v, want ErrUnknownSchema", err)
	}
}
