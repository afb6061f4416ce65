package dataset

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/common"
	"github.com/xitongsys/parquet-go/reader"

	"github.com/Ngomntu1q/CLAP/audio"
)

// Table is the in-memory loading path for small datasets: a table of
// (audio path, caption) rows read from CSV/TSV or Parquet. Rows are kept
// as paths; audio is read and normalized lazily at batch time.
type Table struct {
	cfg   Config
	train bool
	rows  []tableRow

	numBatches int
	numSamples int

	epoch   atomic.Int64
	skipped atomic.Int64
	logger  *slog.Logger
}

type tableRow struct {
	audioPath string
	caption   string
}

func newTable(cfg Config, train bool) (*Table, error) {
	paths := cfg.TrainShards
	split := "train"
	if !train {
		paths = cfg.ValShards
		split = "val"
	}

	var rows []tableRow
	for _, p := range paths {
		var (
			loaded []tableRow
			err    error
		)
		switch strings.TrimPrefix(filepath.Ext(p), ".") {
		case "csv", "tsv":
			loaded, err = readDelimitedRows(p, cfg)
		case "parquet":
			loaded, err = readParquetRows(p, cfg)
		default:
			return nil, configErrorf("unsupported tabular file %q", p)
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, loaded...)
	}
	if len(rows) == 0 {
		return nil, configErrorf("tabular dataset %q has no rows", paths)
	}

	t := &Table{
		cfg:        cfg,
		train:      train,
		rows:       rows,
		numSamples: len(rows),
		logger:     cfg.Logger.With(slog.String("split", split), slog.String("kind", "tabular")),
	}
	if train {
		// Partial batches are dropped for training.
		t.numBatches = len(rows) / cfg.BatchSize
	} else {
		t.numBatches = ceilDiv(len(rows), cfg.BatchSize)
	}
	return t, nil
}

func (t *Table) NumBatches() int { return t.numBatches }
func (t *Table) NumSamples() int { return t.numSamples }

// Batches yields one epoch. The training split visits rows in a fresh
// seeded permutation each epoch; evaluation runs in file order with a
// partial final batch.
func (t *Table) Batches(ctx context.Context) iter.Seq2[*Batch, error] {
	epoch := uint64(t.epoch.Add(1) - 1)
	return func(yield func(*Batch, error) bool) {
		order := make([]int, len(t.rows))
		for i := range order {
			order[i] = i
		}
		rng := rand.New(rand.NewPCG(t.cfg.Seed, epoch))
		if t.train {
			rng.Shuffle(len(order), func(i, j int) {
				order[i], order[j] = order[j], order[i]
			})
		}

		b := newBatch(t.cfg.BatchSize)
		for _, i := range order {
			if err := ctx.Err(); err != nil {
				return
			}
			s, err := t.loadRow(t.rows[i], rng)
			if err != nil {
				t.skipped.Add(1)
				t.logger.Warn("handling row error, ignoring", slog.String("error", err.Error()))
				continue
			}
			b.append(s)
			if b.Len() == t.cfg.BatchSize {
				if !yield(b, nil) {
					return
				}
				b = newBatch(t.cfg.BatchSize)
			}
		}
		if !t.train && b.Len() > 0 {
			yield(b, nil)
		}
	}
}

func (t *Table) loadRow(row tableRow, rng *rand.Rand) (*Sample, error) {
	raw, err := os.ReadFile(row.audioPath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", row.audioPath, err)
	}
	pcm, err := audio.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", row.audioPath, err)
	}
	pcm, err = audio.Resample(pcm, t.cfg.SampleRate, t.cfg.Resample)
	if err != nil {
		return nil, err
	}
	pcm = audio.FitLength(pcm, t.cfg.MaxSamples, rng)
	if t.cfg.Mono {
		pcm = audio.ToMono(pcm)
	}

	base := filepath.Base(row.audioPath)
	key := strings.TrimSuffix(base, filepath.Ext(base))
	s := &Sample{
		URL:       row.audioPath,
		Key:       key,
		Waveform:  pcm.Samples,
		Channels:  pcm.Channels,
		Rate:      pcm.Rate,
		Text:      row.caption,
		AudioName: base,
		TextName:  key + ".txt",
	}
	if t.cfg.Tokenizer != nil {
		s.Tokens = t.cfg.Tokenizer(row.caption)
	}
	return s, nil
}

// readDelimitedRows loads a CSV/TSV file with a header row naming the
// configured audio and caption columns.
func readDelimitedRows(path string, cfg Config) ([]tableRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = cfg.Separator

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header of %s: %w", path, err)
	}
	audioCol, textCol := -1, -1
	for i, col := range header {
		switch strings.TrimSpace(strings.ToLower(col)) {
		case strings.ToLower(cfg.AudioColumn):
			audioCol = i
		case strings.ToLower(cfg.TextColumn):
			textCol = i
		}
	}
	if audioCol < 0 || textCol < 0 {
		return nil, configErrorf("%s is missing column %q or %q", path, cfg.AudioColumn, cfg.TextColumn)
	}

	var rows []tableRow
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		rows = append(rows, tableRow{
			audioPath: rec[audioCol],
			caption:   rec[textCol],
		})
	}
}

// readParquetRows loads the configured columns from a Parquet file.
func readParquetRows(path string, cfg Config) ([]tableRow, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	bf := buffer.NewBufferFileFromBytesNoAlloc(contents)
	pr, err := reader.NewParquetColumnReader(bf, 1)
	if err != nil {
		return nil, fmt.Errorf("creating parquet reader for %s: %w", path, err)
	}
	defer pr.ReadStop()

	var (
		n    = pr.GetNumRows()
		root = pr.SchemaHandler.GetRootInName()
	)
	audioVals, err := readStringColumn(pr, root, cfg.AudioColumn, n)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	textVals, err := readStringColumn(pr, root, cfg.TextColumn, n)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	rows := make([]tableRow, 0, n)
	for i := int64(0); i < n; i++ {
		rows = append(rows, tableRow{audioPath: audioVals[i], caption: textVals[i]})
	}
	return rows, nil
}

func readStringColumn(pr *reader.ParquetReader, root, col string, n int64) ([]string, error) {
	vals, _, _, err := pr.ReadColumnByPath(common.ReformPathStr(root+"."+col), n)
	if err != nil {
		return nil, fmt.Errorf("reading column %q: %w", col, err)
	}
	out := make([]string, 0, n)
	for _, v := range vals {
		switch s := v.(type) {
		case string:
			out = append(out, s)
		case []byte:
			out = append(out, string(s))
		default:
			return nil, fmt.Errorf("column %q has %T values, expected strings", col, v)
		}
	}
	return out, nil
}
