package block

import (
	"fmt"

	"github.com/elsadiq7/chestnet/internal/stream"
)

// Runner is the frame-level test bench: it enables a block (or chain),
// feeds one frame at the producer cadence, then keeps the clock running
// until done. The pipeline has no backward stall line, so pacing lives
// entirely on the producer side: the runner spaces input samples far
// enough apart that the serializing stages never fall behind.
type Runner struct {
	MaxCycles int // hard cap on total clocks per frame; 0 picks a default

	// PadCycles idles the producer after each position's channel group.
	// Negative disables padding entirely; zero derives the safe minimum
	// from the configuration.
	PadCycles int
}

// Result summarizes one processed frame.
type Result struct {
	Outputs []stream.Sample
	Cycles  uint64
	Forced  bool
	Dropped int
}

// element is anything the runner can clock: a single block or a chain.
type element interface {
	stream.Stage
	Enable()
	Cycles() uint64
	Forced() bool
	Dropped() int
}

// RunFrame drives one frame through a single block.
func (r Runner) RunFrame(b *Block, frame []stream.Sample) (*Result, error) {
	pad := r.PadCycles
	if pad == 0 {
		pad = SafePad(b.cfg)
	}
	return r.run(b, frame, b.cfg.InChannels, pad)
}

// SafePad computes producer idle cycles per position so that serialized
// emission inside the block keeps up with the input rate.
func SafePad(cfg Config) int {
	lanes := cfg.Lanes
	if lanes < 1 {
		lanes = 1
	}
	emit := (cfg.ExpandChannels + lanes - 1) / lanes
	pad := emit - cfg.InChannels
	if pad < 0 {
		pad = 0
	}
	return pad
}

func (r Runner) run(el element, frame []stream.Sample, channels, pad int) (*Result, error) {
	maxCycles := r.MaxCycles
	if maxCycles == 0 {
		maxCycles = 64*len(frame) + 1<<18
	}
	if pad < 0 {
		pad = 0
	}

	el.Enable()
	res := &Result{}
	cycles := 0
	tick := func(in []stream.Sample) {
		out := el.Tick(in)
		res.Outputs = append(res.Outputs, out...)
		cycles++
	}

	for i, s := range frame {
		tick([]stream.Sample{s})
		if cycles > maxCycles {
			return res, fmt.Errorf("runner: cycle budget %d exhausted while feeding", maxCycles)
		}
		// Idle the producer between channel groups.
		if pad > 0 && (i+1)%channels == 0 {
			for p := 0; p < pad; p++ {
				tick(nil)
			}
		}
	}

	for !el.Done() {
		tick(nil)
		if cycles > maxCycles {
			return res, fmt.Errorf("runner: cycle budget %d exhausted while draining (state %v)", maxCycles, el.State())
		}
	}

	res.Cycles = el.Cycles()
	res.Forced = el.Forced()
	res.Dropped = el.Dropped()
	return res, nil
}
