package core

import (
	"bytes"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"
)

func readAllLines(t *testing.T, r LineReader) ([][]string, []int) {
	t.Helper()
	var lines [][]string
	var numbers []int
	for {
		fields, err := r.ReadLine()
		if errors.Is(err, io.EOF) {
			return lines, numbers
		}
		if err != nil {
			t.Fatalf("ReadLine error: %v", err)
		}
		lines = append(lines, fields)
		numbers = append(numbers, r.Line())
	}
}

func TestLineReader_BackendsAgree(t *testing.T) {
	inputs := []struct {
		name string
		text string
		sep  rune
	}{
		{"plain", "a,b,c\n1,2,3\n", ','},
		{"quoted separators", "\"a,b\",c\n\"x\",\"y,z\"\n", ','},
		{"empty fields", ",a,\n,,\n", ','},
		{"empty quoted", "\"\",x\na,\"\",b\n", ','},
		{"blank lines skipped", "h1|h2\n\n|value2\n\n\nv|w\n", '|'},
		{"crlf", "a;b\r\nc;d\r\n", ';'},
		{"no trailing newline", "a\tb\nc\td", '\t'},
		{"spaces kept", " a , b \n", ','},
		{"bom before quoted header", "\ufeff\"a\"|\"b\"\n\"1\"|2\n", '|'},
		{"bom before plain header", "\ufeffa;b\n1;2\n", ';'},
	}

	for _, tt := range inputs {
		t.Run(tt.name, func(t *testing.T) {
			builtin, err := NewLineReader(newLeadingSkipper(strings.NewReader(tt.text)), tt.sep, BackendBuiltin)
			if err != nil {
				t.Fatalf("builtin: %v", err)
			}
			stdlib, err := NewLineReader(newLeadingSkipper(strings.NewReader(tt.text)), tt.sep, BackendStdlib)
			if err != nil {
				t.Fatalf("stdlib: %v", err)
			}

			gotB, numsB := readAllLines(t, builtin)
			gotS, numsS := readAllLines(t, stdlib)
			if !reflect.DeepEqual(gotB, gotS) {
				t.Errorf("backends disagree:\nbuiltin %q\nstdlib  %q", gotB, gotS)
			}
			if len(gotB) > 0 && strings.HasPrefix(gotB[0][0], "\ufeff") {
				t.Errorf("byte order mark left in first field %q", gotB[0][0])
			}
			if !reflect.DeepEqual(numsB, numsS) {
				t.Errorf("line numbers disagree: builtin %v, stdlib %v", numsB, numsS)
			}
		})
	}
}

func TestLineReader_LineNumbers(t *testing.T) {
	r, err := NewLineReader(strings.NewReader("h\n\nx\n\ny\n"), ',', BackendBuiltin)
	if err != nil {
		t.Fatal(err)
	}
	lines, numbers := readAllLines(t, r)
	if !reflect.DeepEqual(lines, [][]string{{"h"}, {"x"}, {"y"}}) {
		t.Errorf("lines = %q", lines)
	}
	if !reflect.DeepEqual(numbers, []int{1, 3, 5}) {
		t.Errorf("numbers = %v, want [1 3 5]", numbers)
	}
}

func TestLineReader_ClosesSource(t *testing.T) {
	for _, backend := range []Backend{BackendBuiltin, BackendStdlib} {
		src := &closeTracker{Reader: strings.NewReader("a\n")}
		r, err := NewLineReader(src, ',', backend)
		if err != nil {
			t.Fatal(err)
		}
		if err := r.Close(); err != nil {
			t.Fatalf("%s: Close error: %v", backend, err)
		}
		if !src.closed {
			t.Errorf("%s: source not closed", backend)
		}
	}
}

func TestLineWriter(t *testing.T) {
	s := func(v string) *string { return &v }

	tests := []struct {
		name   string
		quote  bool
		sep    rune
		fields []*string
		want   string
	}{
		{"quoted", true, ',', []*string{s("a"), nil, s("c")}, "\"a\",,\"c\"\n"},
		{"unquoted", false, '|', []*string{s("a"), nil, s("c")}, "a||c\n"},
		{"empty string is present", true, ',', []*string{s(""), nil}, "\"\",\n"},
		{"single nil", false, ',', []*string{nil}, "\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			w := NewLineWriter(&buf, tt.sep, tt.quote)
			if err := w.WriteLine(tt.fields); err != nil {
				t.Fatalf("WriteLine error: %v", err)
			}
			if err := w.Close(); err != nil {
				t.Fatalf("Close error: %v", err)
			}
			if buf.String() != tt.want {
				t.Errorf("got %q, want %q", buf.String(), tt.want)
			}
		})
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestLineWriter_ReportsSinkFailure(t *testing.T) {
	w := NewLineWriter(failingWriter{}, ',', true)
	v := "x"
	w.WriteLine([]*string{&v})
	if err := w.Close(); err == nil {
		t.Fatal("Close should report the failed flush")
	}
}

func TestParseBackend(t *testing.T) {
	tests := []struct {
		in      string
		want    Backend
		wantErr bool
	}{
		{"", BackendBuiltin, false},
		{"builtin", BackendBuiltin, false},
		{" STDLIB ", BackendStdlib, false},
		{"opencsv", "", true},
	}
	for _, tt := range tests {
		got, err := ParseBackend(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseBackend(%q) = %q, %v", tt.in, got, err)
		}
	}
}
