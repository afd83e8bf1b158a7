// Package batch fans grading requests out in bounded waves and streams each
// result as soon as it is ready.
package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultChunkSize   = 45
	DefaultConcurrency = 3
)

var (
	ErrEmptyBatch    = errors.New("batch has no items")
	ErrBatchTooLarge = errors.New("batch exceeds the maximum number of items")
)

// Item is one submission of a batch.
type Item struct {
	GroupID string          `json:"groupId"`
	Payload json.RawMessage `json:"payload"`
}

// RecordType tags each streamed record.
type RecordType string

const (
	RecordMeta   RecordType = "meta"
	RecordResult RecordType = "result"
	RecordDone   RecordType = "done"
)

// Record is one line of the batch stream. Exactly one of Meta, Result and
// Done is set, matching Type; its fields are inlined in the JSON.
type Record struct {
	Type RecordType `json:"type"`
	*Meta
	*Result
	*Done
}

// Meta opens the stream.
type Meta struct {
	Total       int `json:"total"`
	ChunkSize   int `json:"chunkSize"`
	Concurrency int `json:"concurrency"`
}

// Result is the outcome of one item.
type Result struct {
	GroupID string `json:"groupId"`
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Done closes the stream after every wave finished.
type Done struct {
	Processed int   `json:"processed"`
	Succeeded int   `json:"succeeded"`
	Failed    int   `json:"failed"`
	ElapsedMS int64 `json:"elapsedMs"`
}

// WorkFunc grades one item. A returned error fails only that item.
type WorkFunc func(ctx context.Context, item Item) (any, error)

// Orchestrator runs batches of at most ChunkSize*Concurrency items.
type Orchestrator struct {
	work        WorkFunc
	chunkSize   int
	concurrency int
}

// New creates an Orchestrator. Non-positive sizes select the defaults (45 items, 3 chunks).
func New(work WorkFunc, chunkSize, concurrency int) *Orchestrator {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Orchestrator{work: work, chunkSize: chunkSize, concurrency: concurrency}
}

// MaxItems is the largest batch Run accepts.
func (o *Orchestrator) MaxItems() int {
	return o.chunkSize * o.concurrency
}

// Validate reports whether a batch of n items can run.
func (o *Orchestrator) Validate(n int) error {
	if n == 0 {
		return ErrEmptyBatch
	}
	if n > o.MaxItems() {
		return fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, n, o.MaxItems())
	}
	return nil
}

// Run processes items in waves of up to concurrency chunks. Every item of a
// wave runs at once and its result is emitted when it completes; the next
// wave starts after the whole wave is done. emit is never called
// concurrently.
//
// When ctx ends, items that have not resolved are not reported, no done
// record is emitted and ctx.Err() is returned.
func (o *Orchestrator) Run(ctx context.Context, items []Item, emit func(Record)) error {
	if err := o.Validate(len(items)); err != nil {
		return err
	}
	start := time.Now()

	var mu sync.Mutex
	send := func(r Record) {
		mu.Lock()
		defer mu.Unlock()
		emit(r)
	}
	send(Record{Type: RecordMeta, Meta: &Meta{Total: len(items), ChunkSize: o.chunkSize, Concurrency: o.concurrency}})

	chunks := chunk(items, o.chunkSize)
	var succeeded, failed int
	for w := 0; w < len(chunks); w += o.concurrency {
		if err := ctx.Err(); err != nil {
			return err
		}
		wave := chunks[w:min(w+o.concurrency, len(chunks))]
		slog.Debug("batch wave started", "wave", w/o.concurrency+1, "chunks", len(wave))

		var g errgroup.Group
		for _, c := range wave {
			for _, it := range c {
				g.Go(func() error {
					data, err := o.runItem(ctx, it)
					if err != nil && ctx.Err() != nil {
						return nil
					}
					res := &Result{GroupID: it.GroupID, Success: err == nil, Data: data}
					mu.Lock()
					if res.Success {
						succeeded++
					} else {
						failed++
						res.Error = err.Error()
						res.Data = nil
						slog.Warn("batch item failed", "group", it.GroupID, "error", err)
					}
					emit(Record{Type: RecordResult, Result: res})
					mu.Unlock()
					return nil
				})
			}
		}
		g.Wait()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	send(Record{Type: RecordDone, Done: &Done{
		Processed: succeeded + failed,
		Succeeded: succeeded,
		Failed:    failed,
		ElapsedMS: time.Since(start).Milliseconds(),
	}})
	return nil
}

func (o *Orchestrator) runItem(ctx context.Context, it Item) (data any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic grading item: %v", r)
		}
	}()
	return o.work(ctx, it)
}

func chunk(items []Item, size int) [][]Item {
	var out [][]Item
	for len(items) > 0 {
		n := min(size, len(items))
		out = append(out, items[:n])
		items = items[n:]
	}
	return out
}
