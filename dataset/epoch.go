package dataset

// EpochPlan reconciles epoch length across distributed workers. It is
// computed once before iteration starts and never mutated: every worker in
// every node emits exactly PerWorkerBatches batches per training epoch, so
// distributed gradient synchronization never stalls on a short worker.
type EpochPlan struct {
	// GlobalBatchSize is the per-process batch size times the node count:
	// the effective batch consumed by one optimization step.
	GlobalBatchSize int

	// PerWorkerBatches is how many batches each data-loading worker stops
	// after.
	PerWorkerBatches int

	// NumBatches is the total batches per node per epoch,
	// PerWorkerBatches rounded up across the worker pool.
	NumBatches int

	// NumSamples is the effective sample count after rounding,
	// NumBatches × GlobalBatchSize. May exceed the raw corpus size; the
	// excess is satisfied by controlled repetition of already-seen
	// samples, never by fabricating data.
	NumSamples int
}

// PlanEpoch computes the training epoch plan. Rounding is always up: a
// worker never emits a partial batch, and the total is padded to a whole
// number of per-worker quotas.
func PlanEpoch(totalSamples, batchSize, worldSize, workers int) EpochPlan {
	if worldSize < 1 {
		worldSize = 1
	}
	if workers < 1 {
		workers = 1
	}
	global := batchSize * worldSize
	batches := ceilDiv(totalSamples, global)
	perWorker := ceilDiv(batches, workers)
	batches = perWorker * workers
	return EpochPlan{
		GlobalBatchSize:  global,
		PerWorkerBatches: perWorker,
		NumBatches:       batches,
		NumSamples:       batches * global,
	}
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
