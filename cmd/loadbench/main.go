// Command loadbench drives the data-loading pipeline without a model
// attached: it iterates the configured splits for a number of epochs,
// reports batch latency and sample throughput, and can record the run in
// MySQL for comparison across revisions.
package main

import (
	"context"
	"flag"
	"fmt"
	"hash/fnv"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"

	"github.com/Ngomntu1q/CLAP/audio"
	"github.com/Ngomntu1q/CLAP/dataset"
)

func main() {
	flag.Parse()

	logger := newLogger()

	rctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	var exitCode int
	if err := run(rctx, logger); err != nil {
		logger.Error("encountered top-level error", slog.String("error", err.Error()))
		exitCode = 1
	}

	os.Exit(exitCode)
}

func run(ctx context.Context, logger *slog.Logger) error {
	if *trainData == "" && *valData == "" {
		logger.Error("at least one of -train-data or -val-data is required")
		flag.Usage()
		return nil
	}

	cfg := dataset.Config{
		TrainShards:     splitPatterns(*trainData),
		ValShards:       splitPatterns(*valData),
		Kind:            dataset.Kind(*datasetType),
		BatchSize:       *batchSize,
		Workers:         *workers,
		WorldSize:       *worldSize,
		Rank:            *rank,
		Seed:            *seed,
		SampleRate:      *sampleRate,
		Mono:            *mono,
		MaxSamples:      *maxSamples,
		Resample:        audio.Quality(*resampleAlgo),
		Proportion:      *proportion,
		ManifestPath:    *manifestPath,
		Remote:          *remote,
		TrainNumSamples: *trainNumSamples,
		ValNumSamples:   *valNumSamples,
		Tokenizer:       hashTokenizer(*contextLength),
		Logger:          logger,
	}

	data, err := dataset.Get(cfg)
	if err != nil {
		return fmt.Errorf("building dataset: %w", err)
	}

	var (
		runID = uuid.New()
		rep   = newReport(*reportInterval)
	)
	logger.Info("starting load benchmark",
		slog.String("run", runID.String()),
		slog.Int("epochs", *epochs))

	for epoch := 0; epoch < *epochs; epoch++ {
		if data.Train != nil {
			if err := iterate(ctx, "train", epoch, data.Train, rep); err != nil {
				return fmt.Errorf("train epoch %d: %w", epoch, err)
			}
		}
		if data.Val != nil {
			if err := iterate(ctx, "val", epoch, data.Val, rep); err != nil {
				return fmt.Errorf("val epoch %d: %w", epoch, err)
			}
		}
	}

	summary := rep.finish()
	if *mysqlDsn != "" {
		if err := recordResults(ctx, logger, *mysqlDsn, runID, configFingerprint(), summary); err != nil {
			logger.Warn("failed to record results", slog.String("error", err.Error()))
		}
	}

	return nil
}

func iterate(ctx context.Context, split string, epoch int, it dataset.Iterator, rep *report) error {
	total := int64(it.NumBatches())
	if total == 0 {
		total = -1 // unknown size: spinner
	}
	var (
		bar  = progressbar.Default(total, fmt.Sprintf("%s epoch %d", split, epoch))
		last = time.Now()
	)
	for b, err := range it.Batches(ctx) {
		if err != nil {
			return err
		}
		now := time.Now()
		rep.record(split, b.Len(), now.Sub(last))
		last = now
		bar.Add(1)
	}
	return bar.Finish()
}

func splitPatterns(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// hashTokenizer is a stand-in for the real tokenizer collaborator: it
// hashes whitespace-separated words into a fixed-length id sequence so
// the pipeline exercises the tokenize step with realistic shapes.
func hashTokenizer(contextLen int) dataset.Tokenizer {
	return func(text string) []int64 {
		out := make([]int64, contextLen)
		for i, word := range strings.Fields(text) {
			if i >= contextLen {
				break
			}
			h := fnv.New32a()
			h.Write([]byte(strings.ToLower(word)))
			out[i] = int64(h.Sum32()%65535) + 1
		}
		return out
	}
}

// configFingerprint identifies runs with comparable settings so recorded
// results are diffed against the right baseline.
func configFingerprint() string {
	return fmt.Sprintf("train=%s val=%s kind=%s bs=%d workers=%d world=%d sr=%d mono=%t len=%d resample=%s prop=%g",
		*trainData, *valData, *datasetType, *batchSize, *workers, *worldSize,
		*sampleRate, *mono, *maxSamples, *resampleAlgo, *proportion)
}
