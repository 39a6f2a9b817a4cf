package core

import (
	"context"
	"errors"
	"fmt"
)

// BatchDispatcher regroups records into fixed-size batches.
// The trailing partial batch is only delivered by an explicit Flush.
type BatchDispatcher struct {
	size    int
	handler BatchHandler
	pending []any
	batches int
}

// NewBatchDispatcher creates a dispatcher delivering batches of size records.
func NewBatchDispatcher(size int, handler BatchHandler) (*BatchDispatcher, error) {
	if size <= 0 {
		return nil, &ConfigurationError{Op: "batch", Err: fmt.Errorf("batch size must be positive, got %d", size)}
	}
	if handler == nil {
		return nil, &ConfigurationError{Op: "batch", Err: errors.New("no batch handler")}
	}
	return &BatchDispatcher{
		size:    size,
		handler: handler,
		pending: make([]any, 0, size),
	}, nil
}

// Handle adds rec and delivers the batch once it is full.
func (d *BatchDispatcher) Handle(ctx context.Context, rec any) error {
	d.pending = append(d.pending, rec)
	if len(d.pending) < d.size {
		return nil
	}
	return d.deliver(ctx)
}

// Flush delivers the pending records, if any.
func (d *BatchDispatcher) Flush(ctx context.Context) error {
	if len(d.pending) == 0 {
		return nil
	}
	return d.deliver(ctx)
}

// Pending returns the number of records not yet delivered.
func (d *BatchDispatcher) Pending() int { return len(d.pending) }

// Batches returns the number of batches delivered.
func (d *BatchDispatcher) Batches() int { return d.batches }

func (d *BatchDispatcher) deliver(ctx context.Context) error {
	batch := d.pending
	d.pending = make([]any, 0, d.size)
	d.batches++
	return d.handler(ctx, batch)
}
