// Package webdataset implements a streaming pipeline over sharded tar
// archives: shard enumeration and sizing, deterministic shuffling,
// node/worker partitioning, and sequential record extraction.
//
// The pipeline is built from composable pull-based stages. Each stage is a
// Source that produces the next item or signals exhaustion with io.EOF.
package webdataset

import (
	"context"
	"io"
)

// Source is an interface for a pipeline stage that can generate T values.
// Next returns io.EOF once the stage is exhausted.
type Source[T any] interface {
	Next(context.Context) (T, error)
}

// SourceFunc is a trivial implementation of a Source that generates T
// values based on some generator function.
type SourceFunc[T any] func(context.Context) (T, error)

func (f SourceFunc[T]) Next(ctx context.Context) (T, error) {
	return f(ctx)
}

// SliceSource yields the elements of a slice in order.
type SliceSource[T any] struct {
	items []T
	pos   int
}

func NewSliceSource[T any](items []T) *SliceSource[T] {
	return &SliceSource[T]{items: items}
}

func (s *SliceSource[T]) Next(ctx context.Context) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if s.pos >= len(s.items) {
		return zero, io.EOF
	}
	v := s.items[s.pos]
	s.pos++
	return v, nil
}

// Map transforms each upstream item with fn. Errors from fn propagate to
// the caller as-is; io.EOF from upstream terminates the stage.
func Map[T, U any](src Source[T], fn func(context.Context, T) (U, error)) Source[U] {
	return SourceFunc[U](func(ctx context.Context) (U, error) {
		var zero U
		v, err := src.Next(ctx)
		if err != nil {
			return zero, err
		}
		return fn(ctx, v)
	})
}

// Filter drops upstream items for which keep returns false.
func Filter[T any](src Source[T], keep func(T) bool) Source[T] {
	return SourceFunc[T](func(ctx context.Context) (T, error) {
		for {
			v, err := src.Next(ctx)
			if err != nil {
				return v, err
			}
			if keep(v) {
				return v, nil
			}
		}
	})
}

// Head passes through at most n upstream items.
func Head[T any](src Source[T], n int) Source[T] {
	seen := 0
	return SourceFunc[T](func(ctx context.Context) (T, error) {
		var zero T
		if seen >= n {
			return zero, io.EOF
		}
		v, err := src.Next(ctx)
		if err != nil {
			return zero, err
		}
		seen++
		return v, nil
	})
}

// Collect drains a source into a slice. Intended for tests and for small
// finite streams like shard lists.
func Collect[T any](ctx context.Context, src Source[T]) ([]T, error) {
	var out []T
	for {
		v, err := src.Next(ctx)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
}
