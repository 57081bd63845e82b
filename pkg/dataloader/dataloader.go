// Copyright 2023-2026 The Material Classification Authors. SPDX-License-Identifier: Apache-2.0

// Package dataloader turns a random access collection of samples into batches, implementing
// train.Dataset.
//
// Each epoch visits every sample exactly once, optionally in a shuffled order. Samples of a batch
// are loaded concurrently (bounded by Options.NumWorkers), and batches can be produced ahead of
// time in a background goroutine (Options.Prefetch). Batches are always yielded in order, and for
// a fixed Options.Seed the sequence of batches is always the same, regardless of the parallelism.
//
// Example:
//
//	loader := dataloader.New("train", source, dataloader.Options{BatchSize: 64, Shuffle: true, NumWorkers: 8, Prefetch: 2})
//	defer loader.Close()
//	for {
//		_, inputs, labels, err := loader.Yield()
//		if err == io.EOF {
//			break
//		}
//		...
//	}
package dataloader

import (
	"io"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// Sample is one loaded example: an image tensor shaped `[height, width, channels]` and its label.
type Sample struct {
	Image *tensors.Tensor
	Label int32

	// Index of the sample in its source.
	Index int
}

// RandomAccess is a collection of samples that can be loaded by index.
//
// GetSeeded must be safe for concurrent use, and must be deterministic given the index and seed.
type RandomAccess interface {
	Len() int
	GetSeeded(index int, seed uint64) (Sample, error)
}

// ErrShapeMismatch is returned when the samples of a batch have different shapes or dtypes.
var ErrShapeMismatch = errors.New("samples of a batch have different shapes")

// Options configures a Loader.
type Options struct {
	// BatchSize is the number of samples per batch. Required.
	BatchSize int

	// Shuffle the order of the samples at every epoch.
	Shuffle bool

	// NumWorkers is the maximum number of samples loaded concurrently. If 0 samples are loaded
	// sequentially in the goroutine producing the batch.
	NumWorkers int

	// Prefetch is the number of batches produced ahead of time in a background goroutine.
	// If 0 batches are produced on demand, in the goroutine calling Yield.
	Prefetch int

	// Seed for the shuffling and the per-sample seeds.
	Seed uint64

	// DropIncomplete drops the last batch of an epoch if it has fewer than BatchSize samples.
	DropIncomplete bool
}

// Loader yields batches of samples from a RandomAccess source. It implements train.Dataset.
//
// Yield inputs are the images, shaped `[batch_size, height, width, channels]`, and labels are
// shaped `[batch_size]` with dtype Int32.
type Loader struct {
	name, shortName string
	src             RandomAccess
	opts            Options

	// mu protects the sample selection state below.
	mu       sync.Mutex
	rng      *rand.Rand
	order    []int
	position int
	epoch    int

	// muAhead protects the read-ahead state.
	muAhead sync.Mutex
	ahead   *readAhead
	err     error
}

var (
	_ train.Dataset      = (*Loader)(nil)
	_ train.HasShortName = (*Loader)(nil)
)

// New creates a Loader for src. It panics if opts.BatchSize <= 0, or if NumWorkers or
// Prefetch are negative.
func New(name string, src RandomAccess, opts Options) *Loader {
	if opts.BatchSize <= 0 {
		exceptions.Panicf("dataloader.New(%q): invalid BatchSize=%d", name, opts.BatchSize)
	}
	if opts.NumWorkers < 0 || opts.Prefetch < 0 {
		exceptions.Panicf("dataloader.New(%q): invalid NumWorkers=%d or Prefetch=%d", name, opts.NumWorkers, opts.Prefetch)
	}
	shortName := name
	if len(shortName) > 3 {
		shortName = shortName[:3]
	}
	l := &Loader{
		name:      name,
		shortName: shortName,
		src:       src,
		opts:      opts,
		rng:       rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x5DEECE66D)),
		order:     make([]int, src.Len()),
	}
	for ii := range l.order {
		l.order[ii] = ii
	}
	l.shuffle()
	return l
}

// WithShortName sets the short name of the loader, used for metric names.
// It defaults to the first 3 letters of the name.
//
// It returns the Loader, so configuration calls can be cascaded.
func (l *Loader) WithShortName(shortName string) *Loader {
	l.shortName = shortName
	return l
}

// Name implements train.Dataset.
func (l *Loader) Name() string { return l.name }

// ShortName implements train.HasShortName.
func (l *Loader) ShortName() string { return l.shortName }

// Options returns the options the Loader was created with.
func (l *Loader) Options() Options { return l.opts }

// Len returns the number of samples per epoch.
func (l *Loader) Len() int { return len(l.order) }

// NumBatches returns the number of batches per epoch.
func (l *Loader) NumBatches() int {
	n := len(l.order) / l.opts.BatchSize
	if !l.opts.DropIncomplete && len(l.order)%l.opts.BatchSize != 0 {
		n++
	}
	return n
}

// Epoch returns the number of times Reset was called.
func (l *Loader) Epoch() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.epoch
}

// shuffle must be called with mu locked.
func (l *Loader) shuffle() {
	if !l.opts.Shuffle {
		return
	}
	l.rng.Shuffle(len(l.order), func(i, j int) {
		l.order[i], l.order[j] = l.order[j], l.order[i]
	})
}

// Reset implements train.Dataset. It restarts the epoch, reshuffling the samples if configured to.
//
// It must not be called concurrently with Yield.
func (l *Loader) Reset() {
	l.stopReadAhead()
	l.muAhead.Lock()
	l.err = nil
	l.muAhead.Unlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.position = 0
	l.epoch++
	l.shuffle()
}

// Close stops the read-ahead goroutine, if one is running. Batches already produced are discarded,
// so call Reset before using the Loader again.
func (l *Loader) Close() {
	l.stopReadAhead()
}

// nextBatch selects the indices of the next batch and the seeds to load them with.
func (l *Loader) nextBatch() (indices []int, seeds []uint64, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	remaining := len(l.order) - l.position
	if remaining <= 0 || (l.opts.DropIncomplete && remaining < l.opts.BatchSize) {
		return nil, nil, io.EOF
	}
	n := min(remaining, l.opts.BatchSize)
	indices = slices.Clone(l.order[l.position : l.position+n])
	l.position += n
	seeds = make([]uint64, n)
	for ii := range seeds {
		seeds[ii] = l.rng.Uint64()
	}
	return
}

// Yield implements train.Dataset. It returns io.EOF at the end of the epoch.
//
// Any error loading a sample is returned, and the samples are never skipped. Once a batch fails,
// the same error is returned until Reset is called.
func (l *Loader) Yield() (spec any, inputs, labels []*tensors.Tensor, err error) {
	spec = l
	l.muAhead.Lock()
	if l.err != nil {
		err = l.err
		l.muAhead.Unlock()
		return
	}
	if l.opts.Prefetch == 0 {
		l.muAhead.Unlock()
		inputs, labels, err = l.produce()
		if err != nil && err != io.EOF {
			l.muAhead.Lock()
			l.err = err
			l.muAhead.Unlock()
		}
		return
	}
	if l.ahead == nil {
		l.ahead = l.startReadAhead()
	}
	ra := l.ahead
	l.muAhead.Unlock()

	unit, ok := <-ra.buffer
	if !ok {
		// Read-ahead was stopped or the epoch ended.
		err = io.EOF
		return
	}
	if unit.err != nil {
		l.muAhead.Lock()
		l.err = unit.err
		l.muAhead.Unlock()
	}
	return spec, unit.inputs, unit.labels, unit.err
}

// produce loads the next batch.
func (l *Loader) produce() (inputs, labels []*tensors.Tensor, err error) {
	indices, seeds, err := l.nextBatch()
	if err != nil {
		return nil, nil, err
	}
	samples := make([]Sample, len(indices))
	load := func(ii int) error {
		sample, err := l.src.GetSeeded(indices[ii], seeds[ii])
		if err != nil {
			return errors.WithMessagef(err, "dataloader %q failed to load sample %d", l.name, indices[ii])
		}
		samples[ii] = sample
		return nil
	}
	if l.opts.NumWorkers == 0 {
		for ii := range indices {
			if err = load(ii); err != nil {
				break
			}
		}
	} else {
		var g errgroup.Group
		g.SetLimit(l.opts.NumWorkers)
		for ii := range indices {
			g.Go(func() error { return load(ii) })
		}
		err = g.Wait()
	}
	if err == nil {
		inputs, labels, err = Collate(samples)
	}
	for _, sample := range samples {
		if sample.Image != nil {
			sample.Image.MustFinalizeAll()
		}
	}
	if err != nil {
		return nil, nil, err
	}
	return inputs, labels, nil
}

// Collate stacks the samples into a batch: an images tensor shaped `[batch_size, <image dims>...]` and
// an Int32 labels tensor shaped `[batch_size]`.
//
// All images must have the same shape and dtype. The samples are not modified.
func Collate(samples []Sample) (inputs, labels []*tensors.Tensor, err error) {
	if len(samples) == 0 {
		return nil, nil, errors.New("cannot collate an empty batch")
	}
	first := samples[0].Image.Shape()
	for ii, sample := range samples[1:] {
		if !sample.Image.Shape().Equal(first) {
			return nil, nil, errors.Wrapf(ErrShapeMismatch, "sample #%d (index %d) has shape %s, sample #0 (index %d) has shape %s",
				ii+1, sample.Index, sample.Image.Shape(), samples[0].Index, first)
		}
	}
	if first.DType != dtypes.Float32 {
		return nil, nil, errors.Errorf("images must be Float32 to be collated, got %s", first.DType)
	}

	dims := append([]int{len(samples)}, first.Dimensions...)
	images := tensors.FromShape(shapes.Make(dtypes.Float32, dims...))
	sampleSize := first.Size()
	err = tensors.MutableFlatData[float32](images, func(flat []float32) {
		for ii, sample := range samples {
			tensors.MustConstFlatData[float32](sample.Image, func(imgFlat []float32) {
				copy(flat[ii*sampleSize:(ii+1)*sampleSize], imgFlat)
			})
		}
	})
	if err != nil {
		images.MustFinalizeAll()
		return nil, nil, errors.WithMessage(err, "failed to collate images")
	}

	labelsFlat := make([]int32, len(samples))
	for ii, sample := range samples {
		labelsFlat[ii] = sample.Label
	}
	return []*tensors.Tensor{images}, []*tensors.Tensor{tensors.FromFlatDataAndDimensions(labelsFlat, len(samples))}, nil
}

// yieldUnit is one batch produced by the read-ahead goroutine.
type yieldUnit struct {
	inputs, labels []*tensors.Tensor
	err            error
}

// readAhead produces the batches of one epoch in a background goroutine, in order.
type readAhead struct {
	buffer chan yieldUnit
	stop   chan struct{}
	done   chan struct{}
}

// startReadAhead must be called with muAhead locked.
func (l *Loader) startReadAhead() *readAhead {
	ra := &readAhead{
		buffer: make(chan yieldUnit, l.opts.Prefetch),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go func() {
		defer close(ra.done)
		defer close(ra.buffer)
		for {
			select {
			case <-ra.stop:
				return
			default:
				// Move forward and produce the next batch.
			}
			var unit yieldUnit
			unit.inputs, unit.labels, unit.err = l.produce()
			if unit.err != nil && unit.err != io.EOF {
				klog.Errorf("dataloader %q: %v", l.name, unit.err)
				klog.V(1).Infof("dataloader %q: %+v", l.name, unit.err)
			}
			select {
			case <-ra.stop:
				finalizeAll(unit.inputs, unit.labels)
				return
			case ra.buffer <- unit:
			}
			if unit.err != nil {
				return
			}
		}
	}()
	return ra
}

// stopReadAhead stops the read-ahead goroutine and discards the batches already produced.
func (l *Loader) stopReadAhead() {
	l.muAhead.Lock()
	ra := l.ahead
	l.ahead = nil
	l.muAhead.Unlock()
	if ra == nil {
		return
	}
	close(ra.stop)
	for unit := range ra.buffer {
		finalizeAll(unit.inputs, unit.labels)
	}
	<-ra.done
}

func finalizeAll(tensorsLists ...[]*tensors.Tensor) {
	for _, list := range tensorsLists {
		for _, t := range list {
			if t != nil {
				t.MustFinalizeAll()
			}
		}
	}
}
