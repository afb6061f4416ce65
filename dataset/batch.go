package dataset

import (
	"context"
	"io"

	"github.com/gomlx/gomlx/pkg/core/tensors"

	"github.com/Ngomntu1q/CLAP/webdataset"
)

// Batch is a column-major collection of samples: same-length slices per
// field. The training loop consumes (URL, key, waveform, tokens, text,
// audio name, text name) tuples by column.
type Batch struct {
	URLs       []string
	Keys       []string
	Waveforms  [][]float32
	Channels   int
	Texts      []string
	Tokens     [][]int64
	AudioNames []string
	TextNames  []string
}

func newBatch(capacity int) *Batch {
	return &Batch{
		URLs:       make([]string, 0, capacity),
		Keys:       make([]string, 0, capacity),
		Waveforms:  make([][]float32, 0, capacity),
		Texts:      make([]string, 0, capacity),
		Tokens:     make([][]int64, 0, capacity),
		AudioNames: make([]string, 0, capacity),
		TextNames:  make([]string, 0, capacity),
	}
}

func (b *Batch) append(s *Sample) {
	b.URLs = append(b.URLs, s.URL)
	b.Keys = append(b.Keys, s.Key)
	b.Waveforms = append(b.Waveforms, s.Waveform)
	b.Channels = s.Channels
	b.Texts = append(b.Texts, s.Text)
	b.Tokens = append(b.Tokens, s.Tokens)
	b.AudioNames = append(b.AudioNames, s.AudioName)
	b.TextNames = append(b.TextNames, s.TextName)
}

// Len returns the number of samples in the batch.
func (b *Batch) Len() int { return len(b.Keys) }

// Tensors converts the batch into gomlx tensors: waveforms as
// [batch, frames×channels] float32 and tokens as [batch, contextLen]
// int64. Token rows must have a uniform length (the tokenizer contract).
func (b *Batch) Tensors() (waveforms, tokens *tensors.Tensor) {
	waveforms = tensors.FromAnyValue(b.Waveforms)
	if len(b.Tokens) > 0 && b.Tokens[0] != nil {
		tokens = tensors.FromAnyValue(b.Tokens)
	}
	return waveforms, tokens
}

// batchStage groups the sample stream into fixed-size batches. The final
// short group is emitted only when partial is true (evaluation); training
// drops it and relies on the epoch plan's repetition instead.
func batchStage(src webdataset.Source[*Sample], size int, partial bool) webdataset.Source[*Batch] {
	done := false
	return webdataset.SourceFunc[*Batch](func(ctx context.Context) (*Batch, error) {
		if done {
			return nil, io.EOF
		}
		b := newBatch(size)
		for b.Len() < size {
			s, err := src.Next(ctx)
			if err == io.EOF {
				done = true
				if partial && b.Len() > 0 {
					return b, nil
				}
				return nil, io.EOF
			}
			if err != nil {
				return nil, err
			}
			b.append(s)
		}
		return b, nil
	})
}
