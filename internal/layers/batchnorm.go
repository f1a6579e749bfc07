// Inference-mode batch normalization: a per-channel affine transform using
// scale/shift pairs precomputed offline from the trained model. The
// training-time accumulator that derives those pairs lives in the
// quantization tooling, not here.

package layers

import (
	"fmt"

	"github.com/elsadiq7/chestnet/internal/fixed"
	"github.com/elsadiq7/chestnet/internal/stream"
	"github.com/elsadiq7/chestnet/internal/weights"
)

// BatchNorm computes y = saturate(round(x*scale) + shift) per channel.
type BatchNorm struct {
	channels int
	cat      weights.Category

	scale []fixed.Q88
	shift []fixed.Q88

	gotIn  int
	expect int
	closed bool
	state  stream.State
}

// NewBatchNorm builds a batchnorm stage for one feature-map shape.
func NewBatchNorm(shape stream.Shape, cat weights.Category) *BatchNorm {
	return &BatchNorm{
		channels: shape.Channels,
		cat:      cat,
		scale:    make([]fixed.Q88, shape.Channels),
		shift:    make([]fixed.Q88, shape.Channels),
		expect:   shape.Samples(),
		state:    stream.Idle,
	}
}

// LoadParameters pulls the scale/shift bank: all scales, then all shifts.
func (b *BatchNorm) LoadParameters(l weights.Loader) error {
	bank := make([]fixed.Q88, 2*b.channels)
	if err := weights.Fill(l, b.cat, bank); err != nil {
		return fmt.Errorf("batchnorm %v: %w", b.cat, err)
	}
	copy(b.scale, bank[:b.channels])
	copy(b.shift, bank[b.channels:])
	return nil
}

// SetParams installs scale/shift pairs directly.
func (b *BatchNorm) SetParams(scale, shift []fixed.Q88) error {
	if len(scale) != b.channels || len(shift) != b.channels {
		return fmt.Errorf("batchnorm params: want %d channels, got %d/%d", b.channels, len(scale), len(shift))
	}
	copy(b.scale, scale)
	copy(b.shift, shift)
	return nil
}

// Tick applies the affine transform to each sample in place of one cycle.
func (b *BatchNorm) Tick(in []stream.Sample) []stream.Sample {
	if len(in) == 0 {
		b.advance()
		return nil
	}
	out := make([]stream.Sample, 0, len(in))
	for _, s := range in {
		if b.state == stream.Idle {
			b.state = stream.Processing
		}
		c := stream.ClampChannel(s.Channel, b.channels)
		scaled := fixed.Round(fixed.MAC(s.Value, b.scale[c], 0))
		out = append(out, stream.Sample{
			Value:   fixed.Saturate(scaled + fixed.Acc(b.shift[c])),
			Channel: s.Channel,
		})
		b.gotIn++
	}
	b.advance()
	return out
}

func (b *BatchNorm) advance() {
	switch b.state {
	case stream.Idle:
		if b.closed {
			b.state = stream.Done
		}
	case stream.Processing:
		if b.gotIn >= b.expect || b.closed {
			b.state = stream.Completing
		}
	case stream.Completing:
		b.state = stream.Done
	}
}

func (b *BatchNorm) State() stream.State { return b.state }
func (b *BatchNorm) Done() bool          { return b.state == stream.Done }

func (b *BatchNorm) Finish() {
	b.closed = true
	b.advance()
}

func (b *BatchNorm) Reset() {
	b.gotIn = 0
	b.closed = false
	b.state = stream.Idle
}
