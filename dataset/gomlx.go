package dataset

import (
	"context"
	"io"
	"iter"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// GomlxDataset adapts an Iterator to the gomlx train.Dataset shape: Yield
// returns the next batch as tensors, io.EOF at epoch end, and Reset
// starts the next epoch.
type GomlxDataset struct {
	it   Iterator
	next func() (*Batch, error, bool)
	stop func()
}

func NewGomlxDataset(it Iterator) *GomlxDataset {
	return &GomlxDataset{it: it}
}

// Reset starts a fresh epoch, releasing any batches still pending from
// the previous one.
func (d *GomlxDataset) Reset() {
	if d.stop != nil {
		d.stop()
	}
	d.next, d.stop = iter.Pull2(d.it.Batches(context.Background()))
}

// Yield returns the next batch as (waveforms, tokens) input tensors. The
// tokens tensor is omitted when no tokenizer is configured. There are no
// label tensors; the text tower's targets come from the token inputs.
func (d *GomlxDataset) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	if d.next == nil {
		d.Reset()
	}
	b, berr, ok := d.next()
	if !ok {
		return nil, nil, nil, io.EOF
	}
	if berr != nil {
		return nil, nil, nil, berr
	}
	waveforms, tokens := b.Tensors()
	inputs = []*tensors.Tensor{waveforms}
	if tokens != nil {
		inputs = append(inputs, tokens)
	}
	return d.it, inputs, nil, nil
}

// Done releases the underlying epoch iterator. Call when abandoning the
// dataset mid-epoch.
func (d *GomlxDataset) Done() {
	if d.stop != nil {
		d.stop()
		d.stop = nil
		d.next = nil
	}
}
