package webdataset

import (
	"context"
	"reflect"
	"slices"
	"testing"
)

func shuffled(t *testing.T, n, size, initial int, seed, epoch uint64) []int {
	t.Helper()
	items := make([]int, n)
	for i := range items {
		items[i] = i
	}
	out, err := Collect(context.Background(),
		Shuffle[int](NewSliceSource(items), size, initial, seed, epoch))
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	return out
}

func TestShuffleIsPermutation(t *testing.T) {
	// Holds both when the stream fits in the buffer and when it does not.
	for _, size := range []int{200, 8} {
		out := shuffled(t, 100, size, size/2, 1, 0)
		sorted := slices.Clone(out)
		slices.Sort(sorted)
		for i, v := range sorted {
			if v != i {
				t.Fatalf("size %d: output is not a permutation: %v", size, out)
			}
		}
	}
}

func TestShuffleDeterministic(t *testing.T) {
	a := shuffled(t, 100, 200, 50, 7, 3)
	b := shuffled(t, 100, 200, 50, 7, 3)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("same (seed, epoch) produced different orders")
	}
}

func TestShuffleEpochVariation(t *testing.T) {
	a := shuffled(t, 100, 200, 50, 7, 0)
	b := shuffled(t, 100, 200, 50, 7, 1)
	if reflect.DeepEqual(a, b) {
		t.Fatalf("different epochs produced identical orders")
	}
}

func TestShuffleGrowsTowardCapacity(t *testing.T) {
	items := make([]int, 1000)
	for i := range items {
		items[i] = i
	}
	var (
		upstream = NewSliceSource(items)
		pulled   int
	)
	counting := SourceFunc[int](func(ctx context.Context) (int, error) {
		pulled++
		return upstream.Next(ctx)
	})

	sh := Shuffle[int](counting, 100, 10, 1, 0)
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		if _, err := sh.Next(ctx); err != nil {
			t.Fatalf("next: %v", err)
		}
	}
	// Priming pulls 10, then two pulls per emit: occupancy must climb past
	// the initial fill toward the configured capacity.
	if pulled < 100 {
		t.Fatalf("buffer stalled at the initial fill: pulled %d items after 50 emits", pulled)
	}
}

func TestShuffleActuallyReorders(t *testing.T) {
	out := shuffled(t, 100, 200, 50, 7, 0)
	inOrder := true
	for i, v := range out {
		if v != i {
			inOrder = false
			break
		}
	}
	if inOrder {
		t.Fatalf("shuffle left 100 items in input order")
	}
}
