package core

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestBatchDispatcher(t *testing.T) {
	tests := []struct {
		name      string
		size      int
		records   int
		wantSizes []int
	}{
		{"partial tail", 3, 4, []int{3, 1}},
		{"exact multiple", 2, 4, []int{2, 2}},
		{"smaller than batch", 5, 2, []int{2}},
		{"nothing", 3, 0, nil},
		{"size one", 1, 3, []int{1, 1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sizes []int
			var seen []any
			d, err := NewBatchDispatcher(tt.size, func(_ context.Context, batch []any) error {
				sizes = append(sizes, len(batch))
				seen = append(seen, batch...)
				return nil
			})
			if err != nil {
				t.Fatalf("NewBatchDispatcher error: %v", err)
			}

			ctx := context.Background()
			for i := 0; i < tt.records; i++ {
				if err := d.Handle(ctx, i); err != nil {
					t.Fatalf("Handle error: %v", err)
				}
			}
			if err := d.Flush(ctx); err != nil {
				t.Fatalf("Flush error: %v", err)
			}

			if !reflect.DeepEqual(sizes, tt.wantSizes) {
				t.Errorf("sizes = %v, want %v", sizes, tt.wantSizes)
			}
			for i, v := range seen {
				if v != i {
					t.Fatalf("record %d delivered out of order: %v", i, v)
				}
			}
			if d.Pending() != 0 || d.Batches() != len(tt.wantSizes) {
				t.Errorf("Pending=%d Batches=%d", d.Pending(), d.Batches())
			}
		})
	}
}

func TestBatchDispatcher_NoAutomaticFlush(t *testing.T) {
	calls := 0
	d, _ := NewBatchDispatcher(3, func(context.Context, []any) error {
		calls++
		return nil
	})
	d.Handle(context.Background(), 1)
	d.Handle(context.Background(), 2)

	if calls != 0 || d.Pending() != 2 {
		t.Errorf("calls=%d pending=%d, want 0/2", calls, d.Pending())
	}
}

func TestBatchDispatcher_HandlerError(t *testing.T) {
	sentinel := errors.New("insert failed")
	d, _ := NewBatchDispatcher(1, func(context.Context, []any) error { return sentinel })

	if err := d.Handle(context.Background(), 1); !errors.Is(err, sentinel) {
		t.Errorf("Handle error = %v, want %v", err, sentinel)
	}
}

func TestNewBatchDispatcher_Invalid(t *testing.T) {
	h := func(context.Context, []any) error { return nil }
	for _, size := range []int{0, -1} {
		if _, err := NewBatchDispatcher(size, h); !IsConfigurationError(err) {
			t.Errorf("size %d: error = %v, want ConfigurationError", size, err)
		}
	}
	if _, err := NewBatchDispatcher(1, nil); !IsConfigurationError(err) {
		t.Errorf("nil handler: error = %v, want ConfigurationError", err)
	}
}
