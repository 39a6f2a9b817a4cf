package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
)

// ============================================================================
// Converter Benchmarks
// ============================================================================

func BenchmarkConverters_Parse(b *testing.B) {
	regs := NewRegistries()
	tests := []struct {
		key  Key
		text string
	}{
		{K("integer"), "12345"},
		{K("numeric"), "$1,234,567.89"},
		{K("numeric"), "(123.45)"},
		{K("date", "format", "yyyy-MM-dd"), "2024-01-15"},
		{K("time"), "13:45"},
	}

	for _, tt := range tests {
		c, err := regs.Converters.GetOrCreate(tt.key)
		if err != nil {
			b.Fatal(err)
		}
		b.Run(tt.key.String()+"/"+tt.text, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := c.Parse(tt.text); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// ============================================================================
// Tokenizer Benchmarks
// ============================================================================

func BenchmarkSplit(b *testing.B) {
	tests := []struct {
		name string
		line string
	}{
		{"plain", "1001|John Doe|john@example.com|2024-01-15|1"},
		{"quoted", `"1001"|"John Doe"|"john@example.com"|"2024-01-15"|"1"`},
		{"wide", string(bytes.Repeat([]byte("field|"), 50))},
	}

	for _, tt := range tests {
		b.Run(tt.name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				Split(tt.line, '|')
			}
		})
	}
}

// BenchmarkLineReader_Backends compares the builtin tokenizer with encoding/csv.
func BenchmarkLineReader_Backends(b *testing.B) {
	data := generateTestCSV(500)

	for _, backend := range []Backend{BackendBuiltin, BackendStdlib} {
		b.Run(string(backend), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				r, _ := NewLineReader(bytes.NewReader(data), '|', backend)
				for {
					if _, err := r.ReadLine(); errors.Is(err, io.EOF) {
						break
					}
				}
			}
		})
	}
}

// ============================================================================
// Engine Benchmarks
// ============================================================================

func BenchmarkEngine_Parse(b *testing.B) {
	catalog := NewCatalog(nil)
	catalog.MustRegister(personDef())
	e := NewEngine(DefaultOptions(), catalog, testLogger())
	data := generateTestCSV(1000)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := e.Parse(context.Background(), bytes.NewReader(data), "people"); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkEngine_WriteFile(b *testing.B) {
	catalog := NewCatalog(nil)
	catalog.MustRegister(personDef())
	e := NewEngine(DefaultOptions(), catalog, testLogger())

	res, err := e.Parse(context.Background(), bytes.NewReader(generateTestCSV(1000)), "people")
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if err := e.WriteFile(context.Background(), io.Discard, res.Records, "people"); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkRegistry_GetOrCreate(b *testing.B) {
	regs := NewRegistries()
	key := K("date", "format", "yyyy-MM-dd")

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			regs.Converters.GetOrCreate(key)
		}
	})
}

// ============================================================================
// Helper Functions
// ============================================================================

// generateTestCSV generates people rows separated by '|'.
func generateTestCSV(rows int) []byte {
	var buf bytes.Buffer
	buf.WriteString("id|name|born|email|active\n")
	for i := 0; i < rows; i++ {
		fmt.Fprintf(&buf, "%d|John|2024-01-15|john%d@example.com|%d\n", i+1, i, i%2)
	}
	return buf.Bytes()
}
