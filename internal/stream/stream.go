// Package stream defines the sample format and stage contract shared by all
// pipeline stages. Execution is fully synchronous: the block clocks every
// stage once per tick, and a stage that has nothing to say that cycle simply
// emits no samples. There is no backward ready line; a stage that cannot
// consume a sample on the cycle it arrives loses it.
package stream

import "github.com/elsadiq7/chestnet/internal/fixed"

// Sample is one fixed-point activation tagged with its channel index.
// Validity is modeled by presence: an empty lane slice is an idle cycle.
type Sample struct {
	Value   fixed.Q88
	Channel int
}

// State is the per-stage lifecycle. A stage asserts Done only after its last
// output has been emitted and internal registers have drained.
type State int

const (
	Idle State = iota
	Processing
	Completing
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Processing:
		return "processing"
	case Completing:
		return "completing"
	case Done:
		return "done"
	}
	return "unknown"
}

// Stage is one clocked pipeline stage. Tick advances the stage one cycle,
// consuming this cycle's input lanes and returning this cycle's output
// lanes. Tick must be called exactly once per cycle even when in is empty,
// so that internal drains and timeouts advance.
//
// Finish tells the stage no further input will arrive. The block asserts it
// when its own input target is reached or its idle timeout fires; the stage
// then drains whatever it holds and reports Done, even if its own input
// counters never reached their targets.
type Stage interface {
	Tick(in []Sample) []Sample
	State() State
	Done() bool
	Finish()
	Reset()
}

// Shape describes one feature map: spatial extent and channel count.
// Samples stream row-major by position with the channel index innermost.
type Shape struct {
	Width    int
	Height   int
	Channels int
}

// Samples returns the total number of samples in one frame of this shape.
func (s Shape) Samples() int {
	return s.Width * s.Height * s.Channels
}

// ConvOutSize computes the spatial output extent of a convolution. Every
// completion counter in the pipeline derives its expected totals from this
// one formula.
func ConvOutSize(in, pad, kernel, stride int) int {
	return (in+2*pad-kernel)/stride + 1
}

// ClampChannel forces an out-of-range channel index to 0. Bad indices are
// never an error.
func ClampChannel(c, channels int) int {
	if c < 0 || c >= channels {
		return 0
	}
	return c
}
