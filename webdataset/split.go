package webdataset

// SplitByNode keeps the shards assigned to one training node: upstream
// index i is kept when i mod worldSize == rank. Composed with
// SplitByWorker this yields a disjoint cover of the shard list across all
// (node, worker) pairs.
func SplitByNode[T any](src Source[T], rank, worldSize int) Source[T] {
	return splitByIndex(src, rank, worldSize)
}

// SplitByWorker keeps the shards assigned to one data-loading worker
// within a node.
func SplitByWorker[T any](src Source[T], worker, numWorkers int) Source[T] {
	return splitByIndex(src, worker, numWorkers)
}

func splitByIndex[T any](src Source[T], index, count int) Source[T] {
	if count <= 1 {
		return src
	}
	i := -1
	return Filter(src, func(T) bool {
		i++
		return i%count == index
	})
}
