package dataset

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"math/rand/v2"
	"path"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Ngomntu1q/CLAP/webdataset"
)

// Loader streams batches from sharded tar archives. Each epoch runs a
// fixed pool of workers; every worker owns a disjoint shard subset and
// runs the full read→shuffle→preprocess→batch pipeline independently,
// with no shared mutable state beyond the batch handoff channel. The
// loader owns its epoch counter; shuffling is reseeded from (run seed,
// epoch) so epochs differ but the run stays reproducible.
type Loader struct {
	cfg    Config
	train  bool
	shards []webdataset.Shard
	plan   EpochPlan // zero value for the evaluation split

	numBatches int
	numSamples int

	epoch   atomic.Int64
	decoded atomic.Int64
	skipped atomic.Int64
	logger  *slog.Logger
}

func newLoader(cfg Config, train bool) (*Loader, error) {
	patterns := cfg.TrainShards
	split := "train"
	if !train {
		patterns = cfg.ValShards
		split = "val"
	}
	logger := cfg.Logger.With(
		slog.String("split", split),
		slog.String("loader", uuid.NewString()[:8]),
	)

	info, err := webdataset.Resolve(patterns, webdataset.ResolveOptions{
		ManifestPath: cfg.ManifestPath,
		Remote:       cfg.Remote,
		CacheDir:     cfg.CacheDir,
	})
	if err != nil {
		var mfe *webdataset.ManifestFetchError
		if !train && errors.As(err, &mfe) {
			// Evaluation tolerates a missing manifest: unknown count,
			// exhaust the stream lazily.
			logger.Warn("manifest unavailable, exhausting evaluation split lazily",
				slog.String("error", err.Error()))
			info = webdataset.SizeInfo{}
		} else {
			return nil, err
		}
	}

	var shards []webdataset.Shard
	for _, pattern := range patterns {
		urls, err := webdataset.BraceExpand(pattern)
		if err != nil {
			return nil, err
		}
		for _, u := range urls {
			shards = append(shards, webdataset.Shard{URL: u})
		}
	}

	total := info.Total
	known := info.Known

	if cfg.Proportion > 0 && cfg.Proportion < 1 {
		if info.PerShard == nil {
			return nil, configErrorf("proportional sampling needs per-shard manifest entries for %q", patterns)
		}
		selected, aggregate, _, err := webdataset.SampleProp(
			webdataset.Manifest(info.PerShard), cfg.Proportion, cfg.Seed)
		if err != nil {
			return nil, configErrorf("proportional sampling: %v", err)
		}
		keep := make(map[string]bool, len(selected))
		for _, name := range selected {
			keep[name] = true
		}
		kept := shards[:0]
		for _, s := range shards {
			if keep[path.Base(s.URL)] {
				kept = append(kept, s)
			}
		}
		shards = kept
		total = aggregate
		known = true
		logger.Debug("restricted shards by proportion",
			slog.Float64("proportion", cfg.Proportion),
			slog.Int("shards", len(shards)))
	}

	// Every (node, worker) pair must own at least one shard, or a training
	// worker would come up empty and break the per-worker batch quota.
	if train && len(shards) < cfg.Workers*cfg.WorldSize {
		return nil, configErrorf(
			"training needs at least one shard per worker: %d shards for %d workers across %d nodes",
			len(shards), cfg.Workers, cfg.WorldSize)
	}

	numSamples := int(total)
	if !known {
		if train {
			if cfg.TrainNumSamples <= 0 {
				return nil, configErrorf(
					"the number of samples must be known for the training split: provide a sizes.json manifest, a __len__ file, or set TrainNumSamples")
			}
			numSamples = cfg.TrainNumSamples
		} else {
			numSamples = cfg.ValNumSamples // 0 is fine: exhaust lazily
		}
	}

	l := &Loader{
		cfg:        cfg,
		train:      train,
		shards:     shards,
		numSamples: numSamples,
		logger:     logger,
	}
	if train {
		l.plan = PlanEpoch(numSamples, cfg.BatchSize, cfg.WorldSize, cfg.Workers)
		l.numBatches = l.plan.NumBatches
		l.numSamples = l.plan.NumSamples
	} else if numSamples > 0 {
		l.numBatches = ceilDiv(numSamples, cfg.BatchSize)
	}

	logger.Debug("constructed loader",
		slog.Int("shards", len(shards)),
		slog.Int("samples", l.numSamples),
		slog.Int("batches", l.numBatches))
	return l, nil
}

// NumBatches is the precomputed batch count per epoch (per node), or zero
// when the evaluation split's size is unknown. For the evaluation split
// with more than one worker the actual count can exceed this estimate:
// batches form per worker, so each worker may emit its own partial final
// batch.
func (l *Loader) NumBatches() int { return l.numBatches }

// NumSamples is the effective per-epoch sample count after training
// reconciliation, or the raw corpus size for evaluation.
func (l *Loader) NumSamples() int { return l.numSamples }

// Plan returns the epoch reconciliation record. Meaningful for the
// training split only.
func (l *Loader) Plan() EpochPlan { return l.plan }

// Stats returns how many records decoded successfully and how many were
// dropped by the skip-and-continue handler, across all epochs so far.
func (l *Loader) Stats() (decoded, skipped int64) {
	return l.decoded.Load(), l.skipped.Load()
}

// Batches runs one epoch and yields its batches in completion order
// across the worker pool. Breaking out of the loop cancels the workers
// and releases all open shard handles; the epoch counter still advances.
func (l *Loader) Batches(ctx context.Context) iter.Seq2[*Batch, error] {
	epoch := uint64(l.epoch.Add(1) - 1)
	return func(yield func(*Batch, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		ch := make(chan *Batch, l.cfg.Workers)
		eg, wctx := errgroup.WithContext(ctx)
		for w := 0; w < l.cfg.Workers; w++ {
			eg.Go(func() error {
				return l.runWorker(wctx, epoch, w, ch)
			})
		}

		errc := make(chan error, 1)
		go func() {
			errc <- eg.Wait()
			close(ch)
		}()

		stopped := false
		for b := range ch {
			if stopped {
				continue // drain so workers can exit
			}
			if !yield(b, nil) {
				stopped = true
				cancel()
			}
		}
		err := <-errc
		if !stopped && err != nil && !errors.Is(err, context.Canceled) {
			yield(nil, err)
			return
		}
		l.logger.Debug("epoch complete",
			slog.Uint64("epoch", epoch),
			slog.Int64("decoded", l.decoded.Load()),
			slog.Int64("skipped", l.skipped.Load()))
	}
}

// runWorker drives one worker's pipeline. Training workers stop after
// exactly the per-worker batch quota, rebuilding the pipeline when the
// stream runs out early so the shortfall is covered by repeating
// already-seen samples. Evaluation workers run to natural exhaustion.
func (l *Loader) runWorker(ctx context.Context, epoch uint64, worker int, ch chan<- *Batch) error {
	emitted := 0
	for {
		batches, records := l.buildPipeline(epoch, worker)
		produced := 0
		for {
			if l.train && emitted >= l.plan.PerWorkerBatches {
				records.Close()
				return nil
			}
			b, err := batches.Next(ctx)
			if err == io.EOF {
				break
			}
			if err != nil {
				records.Close()
				return err
			}
			select {
			case ch <- b:
			case <-ctx.Done():
				records.Close()
				return ctx.Err()
			}
			emitted++
			produced++
		}
		records.Close()
		if !l.train {
			return nil
		}
		if produced == 0 {
			// An empty pass means this worker's shard subset yields
			// nothing; repeating it would spin forever.
			l.logger.Warn("worker stream empty, stopping before quota",
				slog.Int("worker", worker),
				slog.Int("emitted", emitted),
				slog.Int("quota", l.plan.PerWorkerBatches))
			return nil
		}
	}
}

// buildPipeline assembles one worker's stage chain for one epoch:
// shards → (train) shard shuffle → node split → worker split → records →
// preprocess → (train) sample shuffle → batches.
func (l *Loader) buildPipeline(epoch uint64, worker int) (webdataset.Source[*Batch], *webdataset.RecordSource) {
	var shards webdataset.Source[webdataset.Shard] = webdataset.NewSliceSource(l.shards)
	if l.train {
		shards = webdataset.Shuffle(shards,
			webdataset.ShardShuffleSize, webdataset.ShardShuffleInitial,
			l.cfg.Seed, epoch)
		shards = webdataset.SplitByNode(shards, l.cfg.Rank, l.cfg.WorldSize)
	}
	shards = webdataset.SplitByWorker(shards, worker, l.cfg.Workers)

	records := webdataset.OpenRecords(shards, webdataset.ReaderConfig{Logger: l.logger})

	rng := rand.New(rand.NewPCG(l.cfg.Seed+uint64(worker)+1, epoch))
	pp := newPreprocessor(l.cfg, rng)

	var samples webdataset.Source[*Sample] = webdataset.SourceFunc[*Sample](
		func(ctx context.Context) (*Sample, error) {
			for {
				rec, err := records.Next(ctx)
				if err != nil {
					return nil, err
				}
				s, perr := pp.Sample(rec)
				if perr != nil {
					l.skipped.Add(1)
					derr := &webdataset.RecordDecodeError{URL: rec.URL, Key: rec.Key, Err: perr}
					l.logger.Warn("handling webdataset error, ignoring",
						slog.String("error", derr.Error()))
					continue
				}
				l.decoded.Add(1)
				return s, nil
			}
		})
	if l.train {
		samples = webdataset.Shuffle(samples,
			webdataset.SampleShuffleSize, webdataset.SampleShuffleInitial,
			l.cfg.Seed, epoch)
	}

	return batchStage(samples, l.cfg.BatchSize, !l.train), records
}
