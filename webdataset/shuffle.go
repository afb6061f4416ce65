package webdataset

import (
	"context"
	"io"
	"math/rand/v2"
)

// Default buffer sizes for the two shuffle instances, shard-level and
// sample-level.
const (
	ShardShuffleSize    = 2000
	ShardShuffleInitial = 500

	SampleShuffleSize    = 5000
	SampleShuffleInitial = 1000
)

// Shuffle is a bounded-buffer randomized reordering stage. The buffer is
// primed with up to initial items before anything is emitted; each emit
// picks a uniformly random occupied slot, yields it, and pulls up to two
// replacements from upstream while below capacity, so occupancy converges
// on size rather than staying at the initial fill. Once upstream is exhausted the remaining
// buffer drains in the same random-slot fashion.
//
// The generator is seeded from (seed, epoch), so shuffling is reproducible
// for a run while still differing between epochs. Output is a permutation
// of the input whenever the input fits in the buffer; longer streams are
// reordered within a sliding window of the buffer size.
func Shuffle[T any](src Source[T], size, initial int, seed, epoch uint64) Source[T] {
	if initial > size {
		initial = size
	}
	return &shuffleSource[T]{
		src:     src,
		size:    size,
		initial: initial,
		rng:     rand.New(rand.NewPCG(seed, epoch)),
		buf:     make([]T, 0, size),
	}
}

type shuffleSource[T any] struct {
	src     Source[T]
	size    int
	initial int
	rng     *rand.Rand
	buf     []T
	primed  bool
	done    bool
}

func (s *shuffleSource[T]) Next(ctx context.Context) (T, error) {
	var zero T
	if !s.primed {
		for !s.done && len(s.buf) < s.initial {
			if err := s.fill(ctx); err != nil {
				return zero, err
			}
		}
		s.primed = true
	} else {
		// Two pulls per emit until the buffer reaches full capacity.
		for i := 0; i < 2 && !s.done && len(s.buf) < s.size; i++ {
			if err := s.fill(ctx); err != nil {
				return zero, err
			}
		}
	}

	if len(s.buf) == 0 {
		return zero, io.EOF
	}

	i := s.rng.IntN(len(s.buf))
	v := s.buf[i]
	last := len(s.buf) - 1
	s.buf[i] = s.buf[last]
	var gone T
	s.buf[last] = gone // release the reference
	s.buf = s.buf[:last]
	return v, nil
}

func (s *shuffleSource[T]) fill(ctx context.Context) error {
	v, err := s.src.Next(ctx)
	if err == io.EOF {
		s.done = true
		return nil
	}
	if err != nil {
		return err
	}
	s.buf = append(s.buf, v)
	return nil
}
