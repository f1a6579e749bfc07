// Squeeze-and-excite channel attention. The only stage whose latency
// scales with frame size: it buffers the entire incoming frame, pools a
// per-channel average, runs the pooled vector through a reduce/ReLU/expand
// transform, gates each channel with a hard-sigmoid, and replays the
// buffered frame scaled by its channel's gate, in the original order.

package layers

import (
	"fmt"

	"github.com/elsadiq7/chestnet/internal/fixed"
	"github.com/elsadiq7/chestnet/internal/stream"
	"github.com/elsadiq7/chestnet/internal/weights"
)

type sePhase int

const (
	seCollecting sePhase = iota
	sePooling
	seReducing
	seExpanding
	seGating
	seReplaying
	seDone
)

// SqueezeExcite gates a whole frame by per-channel attention weights
// derived from that same frame. The gate applied during replay always
// comes from the frame being replayed; the buffer is never shared across
// frames or stage instances.
type SqueezeExcite struct {
	shape   stream.Shape
	reduced int
	lanes   int

	// redW[r*C+c]: pooled channel c -> reduced channel r
	// expW[c*R+r]: reduced channel r -> gate channel c
	redW []fixed.Q88
	expW []fixed.Q88

	frame  []stream.Sample
	sums   []fixed.Acc
	pooled []fixed.Q88
	redVec []fixed.Q88
	raw    []fixed.Q88
	gates  []fixed.Q88

	phase     sePhase
	idx       int
	replay    int
	collected int
	dropped   int
	started   bool
	closed    bool
}

// NewSqueezeExcite builds an SE stage over the expanded feature map. The
// reduction ratio fixes the bottleneck width, at least one channel wide.
func NewSqueezeExcite(shape stream.Shape, ratio, lanes int) *SqueezeExcite {
	if lanes < 1 {
		lanes = 1
	}
	reduced := shape.Channels / ratio
	if reduced < 1 {
		reduced = 1
	}
	c := shape.Channels
	return &SqueezeExcite{
		shape:   shape,
		reduced: reduced,
		lanes:   lanes,
		redW:    make([]fixed.Q88, reduced*c),
		expW:    make([]fixed.Q88, c*reduced),
		frame:   make([]stream.Sample, 0, shape.Samples()),
		sums:    make([]fixed.Acc, c),
		pooled:  make([]fixed.Q88, c),
		redVec:  make([]fixed.Q88, reduced),
		raw:     make([]fixed.Q88, c),
		gates:   make([]fixed.Q88, c),
	}
}

// Reduced returns the bottleneck channel count.
func (se *SqueezeExcite) Reduced() int { return se.reduced }

// LoadParameters pulls the reduce and expand weight banks.
func (se *SqueezeExcite) LoadParameters(l weights.Loader) error {
	if err := weights.Fill(l, weights.CatSEReduce, se.redW); err != nil {
		return fmt.Errorf("se reduce: %w", err)
	}
	if err := weights.Fill(l, weights.CatSEExpand, se.expW); err != nil {
		return fmt.Errorf("se expand: %w", err)
	}
	return nil
}

// SetWeights installs reduce/expand weights directly.
func (se *SqueezeExcite) SetWeights(reduce, expand []fixed.Q88) error {
	if len(reduce) != len(se.redW) || len(expand) != len(se.expW) {
		return fmt.Errorf("se weights: want %d/%d values, got %d/%d",
			len(se.redW), len(se.expW), len(reduce), len(expand))
	}
	copy(se.redW, reduce)
	copy(se.expW, expand)
	return nil
}

// Tick advances the FSM one cycle. Samples arriving outside the collecting
// phase are lost silently.
func (se *SqueezeExcite) Tick(in []stream.Sample) []stream.Sample {
	if se.phase != seCollecting && len(in) > 0 {
		se.dropped += len(in)
	}

	switch se.phase {
	case seCollecting:
		se.collect(in)
		if se.closed && se.phase == seCollecting {
			se.enter(sePooling)
		}
		return nil
	case sePooling:
		se.pooled[se.idx] = fixed.Saturate(roundDiv(se.sums[se.idx], se.shape.Width*se.shape.Height))
		se.step(len(se.pooled), seReducing)
		return nil
	case seReducing:
		var acc fixed.Acc
		for c := 0; c < se.shape.Channels; c++ {
			acc = fixed.MAC(se.pooled[c], se.redW[se.idx*se.shape.Channels+c], acc)
		}
		se.redVec[se.idx] = ReLU(fixed.Saturate(fixed.Round(acc)))
		se.step(len(se.redVec), seExpanding)
		return nil
	case seExpanding:
		var acc fixed.Acc
		for r := 0; r < se.reduced; r++ {
			acc = fixed.MAC(se.redVec[r], se.expW[se.idx*se.reduced+r], acc)
		}
		se.raw[se.idx] = fixed.Saturate(fixed.Round(acc))
		se.step(len(se.raw), seGating)
		return nil
	case seGating:
		se.gates[se.idx] = HardSigmoid(se.raw[se.idx])
		se.step(len(se.gates), seReplaying)
		return nil
	case seReplaying:
		return se.replayStep()
	}
	return nil
}

func (se *SqueezeExcite) collect(in []stream.Sample) {
	for _, s := range in {
		se.started = true
		if se.collected >= se.shape.Samples() {
			se.dropped++
			continue
		}
		c := stream.ClampChannel(s.Channel, se.shape.Channels)
		se.frame = append(se.frame, stream.Sample{Value: s.Value, Channel: c})
		se.sums[c] += fixed.Acc(s.Value)
		se.collected++
	}
	if se.collected == se.shape.Samples() {
		se.enter(sePooling)
	}
}

// step advances the per-phase counter and moves to next when exhausted.
func (se *SqueezeExcite) step(total int, next sePhase) {
	se.idx++
	if se.idx >= total {
		se.enter(next)
	}
}

func (se *SqueezeExcite) enter(p sePhase) {
	se.phase = p
	se.idx = 0
	if p == seReplaying && len(se.frame) == 0 {
		se.phase = seDone
	}
}

// replayStep emits up to lanes buffered samples scaled by their channel
// gates, preserving the collected (position, channel) order exactly.
func (se *SqueezeExcite) replayStep() []stream.Sample {
	n := se.lanes
	if rem := len(se.frame) - se.replay; n > rem {
		n = rem
	}
	out := make([]stream.Sample, 0, n)
	for i := 0; i < n; i++ {
		s := se.frame[se.replay+i]
		wide := fixed.Acc(s.Value) * fixed.Acc(se.gates[s.Channel])
		out = append(out, stream.Sample{
			Value:   fixed.Saturate(fixed.Round(wide)),
			Channel: s.Channel,
		})
	}
	se.replay += n
	if se.replay == len(se.frame) {
		se.phase = seDone
	}
	return out
}

// roundDiv divides with rounding half away from zero.
func roundDiv(a fixed.Acc, n int) fixed.Acc {
	d := fixed.Acc(n)
	if a >= 0 {
		return (a + d/2) / d
	}
	return (a - d/2) / d
}

// Dropped reports samples lost outside the collecting phase.
func (se *SqueezeExcite) Dropped() int { return se.dropped }

func (se *SqueezeExcite) State() stream.State {
	switch se.phase {
	case seCollecting:
		if !se.started {
			return stream.Idle
		}
		return stream.Processing
	case seDone:
		return stream.Done
	default:
		return stream.Completing
	}
}

func (se *SqueezeExcite) Done() bool { return se.phase == seDone }

// Finish closes the input side. A partial frame still pools over the full
// spatial extent and replays only what was collected.
func (se *SqueezeExcite) Finish() {
	se.closed = true
	if se.phase == seCollecting && !se.started {
		se.phase = seDone
	}
}

// Reset discards the frame buffer and gates for the next frame.
func (se *SqueezeExcite) Reset() {
	se.frame = se.frame[:0]
	for i := range se.sums {
		se.sums[i] = 0
		se.pooled[i] = 0
		se.raw[i] = 0
		se.gates[i] = 0
	}
	for i := range se.redVec {
		se.redVec[i] = 0
	}
	se.phase = seCollecting
	se.idx = 0
	se.replay = 0
	se.collected = 0
	se.dropped = 0
	se.started = false
	se.closed = false
}
