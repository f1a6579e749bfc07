// Pointwise nonlinearities. Two families: a clipped ramp (ReLU) and the
// clipped-ramp-weighted hard-swish, whose add -> clip(0,6) -> multiply ->
// divide-by-6 datapath also yields the hard-sigmoid gate used by
// squeeze-excite when the final multiply is skipped.

package layers

import (
	"github.com/elsadiq7/chestnet/internal/fixed"
	"github.com/elsadiq7/chestnet/internal/stream"
)

// ActKind selects the activation variant.
type ActKind int

const (
	ActReLU ActKind = iota
	ActHardSwish
	ActHardSigmoid
)

func (k ActKind) String() string {
	switch k {
	case ActReLU:
		return "relu"
	case ActHardSwish:
		return "hswish"
	case ActHardSigmoid:
		return "hsigmoid"
	}
	return "unknown"
}

// ReLU clamps negative values to zero.
func ReLU(x fixed.Q88) fixed.Q88 {
	if x < 0 {
		return 0
	}
	return x
}

// ramp computes clip(x+3, 0, 6) in the widened domain.
func ramp(x fixed.Q88) fixed.Acc {
	r := fixed.Acc(x) + fixed.Acc(fixed.Three)
	if r < 0 {
		return 0
	}
	if r > fixed.Acc(fixed.Six) {
		return fixed.Acc(fixed.Six)
	}
	return r
}

// HardSwish computes saturate(round(x * clip(x+3,0,6) / 6)).
func HardSwish(x fixed.Q88) fixed.Q88 {
	wide := fixed.Acc(x) * ramp(x) / 6
	return fixed.Saturate(fixed.Round(wide))
}

// HardSigmoid computes clip(x+3,0,6)/6, a gate in [0, 1.0].
func HardSigmoid(x fixed.Q88) fixed.Q88 {
	wide := (ramp(x) << fixed.FracBits) / 6
	return fixed.Saturate(fixed.Round(wide))
}

// Apply dispatches one value through the selected variant.
func (k ActKind) Apply(x fixed.Q88) fixed.Q88 {
	switch k {
	case ActHardSwish:
		return HardSwish(x)
	case ActHardSigmoid:
		return HardSigmoid(x)
	default:
		return ReLU(x)
	}
}

// Activation is the pointwise nonlinearity stage. It owns no parameters.
type Activation struct {
	kind   ActKind
	gotIn  int
	expect int
	closed bool
	state  stream.State
}

// NewActivation builds an activation stage for one feature-map shape.
func NewActivation(kind ActKind, shape stream.Shape) *Activation {
	return &Activation{kind: kind, expect: shape.Samples(), state: stream.Idle}
}

// Tick maps each sample through the nonlinearity.
func (a *Activation) Tick(in []stream.Sample) []stream.Sample {
	if len(in) == 0 {
		a.advance()
		return nil
	}
	out := make([]stream.Sample, 0, len(in))
	for _, s := range in {
		if a.state == stream.Idle {
			a.state = stream.Processing
		}
		out = append(out, stream.Sample{Value: a.kind.Apply(s.Value), Channel: s.Channel})
		a.gotIn++
	}
	a.advance()
	return out
}

func (a *Activation) advance() {
	switch a.state {
	case stream.Idle:
		if a.closed {
			a.state = stream.Done
		}
	case stream.Processing:
		if a.gotIn >= a.expect || a.closed {
			a.state = stream.Completing
		}
	case stream.Completing:
		a.state = stream.Done
	}
}

func (a *Activation) State() stream.State { return a.state }
func (a *Activation) Done() bool          { return a.state == stream.Done }

func (a *Activation) Finish() {
	a.closed = true
	a.advance()
}

func (a *Activation) Reset() {
	a.gotIn = 0
	a.closed = false
	a.state = stream.Idle
}
