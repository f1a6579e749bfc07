// 1x1 (pointwise) convolution stage: a per-position linear map across
// channels. Used twice per bottleneck block, once to expand the channel
// count and once to project it back down.

package layers

import (
	"fmt"

	"github.com/elsadiq7/chestnet/internal/fixed"
	"github.com/elsadiq7/chestnet/internal/stream"
	"github.com/elsadiq7/chestnet/internal/weights"
)

// EmitDepth is how many completed positions the serializer can hold while
// earlier ones drain. Border flush cycles upstream can complete a few
// positions in one cycle; a position completing with the queue full is
// dropped, never stalled.
const EmitDepth = 16

// PointwiseConv accumulates one dot product per output channel for every
// spatial position. A completed position enters the emit queue and is
// serialized out across output channels, lanes channels per cycle, while
// the next position accumulates behind it. The lane count is a pure
// performance knob; the emitted values are bit-identical at any setting.
type PointwiseConv struct {
	in    int
	out   int
	lanes int
	cat   weights.Category

	// weight[o*in+i] maps input channel i to output channel o
	weight []fixed.Q88

	acc  []fixed.Acc // accumulators for the position being collected
	seen int         // input channels collected for the current position

	queue    [][]fixed.Acc // completed positions waiting to serialize
	emitNext int           // next output channel of queue[0]

	gotIn   int
	emitted int
	dropped int

	expectIn  int
	expectOut int
	closed    bool

	state stream.State
}

// NewPointwiseConv builds a pointwise stage for one spatial shape. The
// spatial extent of shape fixes the completion counters.
func NewPointwiseConv(inCh, outCh int, shape stream.Shape, lanes int, cat weights.Category) *PointwiseConv {
	if lanes < 1 {
		lanes = 1
	}
	positions := shape.Width * shape.Height
	return &PointwiseConv{
		in:        inCh,
		out:       outCh,
		lanes:     lanes,
		cat:       cat,
		weight:    make([]fixed.Q88, outCh*inCh),
		acc:       make([]fixed.Acc, outCh),
		expectIn:  positions * inCh,
		expectOut: positions * outCh,
		state:     stream.Idle,
	}
}

// LoadParameters pulls this stage's weight rows from the loader.
// Must complete before the first activation arrives.
func (p *PointwiseConv) LoadParameters(l weights.Loader) error {
	if err := weights.Fill(l, p.cat, p.weight); err != nil {
		return fmt.Errorf("pointwise %v: %w", p.cat, err)
	}
	return nil
}

// SetWeights installs a weight matrix directly, bypassing the loader
// handshake. Used by tests and the viewer's demo mode.
func (p *PointwiseConv) SetWeights(w []fixed.Q88) error {
	if len(w) != p.out*p.in {
		return fmt.Errorf("pointwise weights: want %d values, got %d", p.out*p.in, len(w))
	}
	copy(p.weight, w)
	return nil
}

// Tick advances one cycle: serializes up to lanes outputs of the oldest
// queued position, then folds this cycle's input samples into the
// accumulators.
func (p *PointwiseConv) Tick(in []stream.Sample) []stream.Sample {
	var out []stream.Sample

	if len(p.queue) > 0 {
		head := p.queue[0]
		n := p.lanes
		if rem := p.out - p.emitNext; n > rem {
			n = rem
		}
		for i := 0; i < n; i++ {
			o := p.emitNext + i
			out = append(out, stream.Sample{
				Value:   fixed.Saturate(fixed.Round(head[o])),
				Channel: o,
			})
		}
		p.emitNext += n
		p.emitted += n
		if p.emitNext == p.out {
			p.queue = p.queue[1:]
			p.emitNext = 0
		}
	}

	for _, s := range in {
		if p.state == stream.Idle {
			p.state = stream.Processing
		}
		ch := stream.ClampChannel(s.Channel, p.in)
		for o := 0; o < p.out; o++ {
			p.acc[o] = fixed.MAC(s.Value, p.weight[o*p.in+ch], p.acc[o])
		}
		p.gotIn++
		p.seen++
		if p.seen == p.in {
			p.finishPosition()
		}
	}

	p.advance()
	return out
}

// finishPosition moves the completed accumulators into the emit queue, or
// drops the position when the queue is full.
func (p *PointwiseConv) finishPosition() {
	if len(p.queue) >= EmitDepth {
		p.dropped += p.out
		p.emitted += p.out // lost outputs still count toward completion
	} else {
		done := make([]fixed.Acc, p.out)
		copy(done, p.acc)
		p.queue = append(p.queue, done)
	}
	for o := range p.acc {
		p.acc[o] = 0
	}
	p.seen = 0
}

func (p *PointwiseConv) advance() {
	switch p.state {
	case stream.Idle:
		if p.closed {
			p.state = stream.Done
		}
	case stream.Processing:
		if p.gotIn >= p.expectIn || p.closed {
			p.state = stream.Completing
		}
	case stream.Completing:
		if len(p.queue) == 0 && (p.emitted >= p.expectOut || p.closed) {
			p.state = stream.Done
		}
	}
}

func (p *PointwiseConv) State() stream.State { return p.state }
func (p *PointwiseConv) Done() bool          { return p.state == stream.Done }

// Dropped reports output samples lost because emission could not keep up
// with completed positions.
func (p *PointwiseConv) Dropped() int { return p.dropped }

// Finish closes the input side; queued positions still drain, then the
// stage reports Done. A partially accumulated position is discarded.
func (p *PointwiseConv) Finish() {
	p.closed = true
	p.advance()
}

// Reset clears all transient state. Weights survive; they are written once
// by the loader and are read-only afterwards.
func (p *PointwiseConv) Reset() {
	for i := range p.acc {
		p.acc[i] = 0
	}
	p.seen = 0
	p.queue = nil
	p.emitNext = 0
	p.gotIn = 0
	p.emitted = 0
	p.dropped = 0
	p.closed = false
	p.state = stream.Idle
}
