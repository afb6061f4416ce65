// Package dataset feeds a distributed audio-text training loop with
// batches of paired waveforms and captions, streamed from sharded tar
// archives (webdataset layout) or loaded from a small tabular file.
package dataset

import (
	"context"
	"iter"
	"log/slog"
	"path"
	"strings"

	"github.com/Ngomntu1q/CLAP/audio"
)

// Kind selects the loading path.
type Kind string

const (
	// KindWebdataset streams records from sharded tar archives.
	KindWebdataset Kind = "webdataset"
	// KindTabular loads an in-memory table of (audio path, caption) rows.
	KindTabular Kind = "tabular"
	// KindAuto detects the kind from the shard path extension.
	KindAuto Kind = "auto"
)

// Tokenizer turns raw text into a fixed-length integer sequence. Its
// vocabulary and truncation/padding policy are opaque to this pipeline;
// it is invoked once per sample.
type Tokenizer func(text string) []int64

// Config is the full configuration surface of the data pipeline. One
// Config builds both splits; per-split knobs are suffixed Train/Val.
type Config struct {
	TrainShards []string // shard patterns or explicit shard paths
	ValShards   []string

	Kind      Kind // webdataset | tabular | auto (default auto)
	BatchSize int  // per-process batch size (default 32)
	Workers   int  // data-loading workers per node (default 1)
	WorldSize int  // training node count (default 1)
	Rank      int  // this node's index in [0, WorldSize)
	Seed      uint64

	// Audio normalization.
	AudioKey   string        // canonical audio field key (default "flac")
	TextKey    string        // canonical text field key (default "json")
	SampleRate int           // target rate; 0 keeps the native rate
	Mono       bool          // collapse to one channel
	MaxSamples int           // fixed output length L (default 1_000_000)
	Resample   audio.Quality // resampling algorithm (default Fourier)

	// Size resolution.
	Proportion      float64 // unweighted shard sub-selection, (0, 1]
	ManifestPath    string  // explicit sizes.json location
	Remote          bool    // shard paths are http(s) URLs
	CacheDir        string  // manifest cache; default DATASET_CACHE_DIR
	TrainNumSamples int     // explicit override when no manifest exists
	ValNumSamples   int

	// Tabular path.
	AudioColumn string // default "audio"
	TextColumn  string // default "caption"
	Separator   rune   // CSV separator (default '\t')

	Tokenizer Tokenizer
	Logger    *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.Kind == "" {
		c.Kind = KindAuto
	}
	if c.BatchSize == 0 {
		c.BatchSize = 32
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.WorldSize < 1 {
		c.WorldSize = 1
	}
	if c.AudioKey == "" {
		c.AudioKey = "flac"
	}
	if c.TextKey == "" {
		c.TextKey = "json"
	}
	if c.MaxSamples == 0 {
		c.MaxSamples = 1_000_000
	}
	if c.Resample == "" {
		c.Resample = audio.Fourier
	}
	if c.AudioColumn == "" {
		c.AudioColumn = "audio"
	}
	if c.TextColumn == "" {
		c.TextColumn = "caption"
	}
	if c.Separator == 0 {
		c.Separator = '\t'
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Iterator is the surface the training loop consumes: a per-epoch batch
// stream plus the precomputed counts for progress reporting. NumBatches
// and NumSamples are zero when the evaluation split's size is unknown and
// the stream is simply exhausted lazily.
type Iterator interface {
	Batches(ctx context.Context) iter.Seq2[*Batch, error]
	NumBatches() int
	NumSamples() int
}

// Data holds the constructed splits. A split is nil when no shards were
// configured for it.
type Data struct {
	Train Iterator
	Val   Iterator
}

// Get builds the configured splits. Configuration problems (missing size
// information for training, unsupported extensions) fail here, before any
// iteration starts.
func Get(cfg Config) (*Data, error) {
	cfg = cfg.withDefaults()
	var data Data
	if len(cfg.TrainShards) > 0 {
		it, err := getSplit(cfg, true)
		if err != nil {
			return nil, err
		}
		data.Train = it
	}
	if len(cfg.ValShards) > 0 {
		it, err := getSplit(cfg, false)
		if err != nil {
			return nil, err
		}
		data.Val = it
	}
	return &data, nil
}

func getSplit(cfg Config, train bool) (Iterator, error) {
	patterns := cfg.TrainShards
	if !train {
		patterns = cfg.ValShards
	}
	kind := cfg.Kind
	if kind == KindAuto {
		detected, err := detectKind(patterns[0])
		if err != nil {
			return nil, err
		}
		kind = detected
	}
	switch kind {
	case KindWebdataset:
		return newLoader(cfg, train)
	case KindTabular:
		return newTable(cfg, train)
	default:
		return nil, configErrorf("unsupported dataset kind %q", kind)
	}
}

func detectKind(pattern string) (Kind, error) {
	ext := strings.TrimPrefix(path.Ext(pattern), ".")
	switch ext {
	case "tar":
		return KindWebdataset, nil
	case "csv", "tsv", "parquet":
		return KindTabular, nil
	default:
		return "", configErrorf("cannot detect dataset kind for extension %q", ext)
	}
}
