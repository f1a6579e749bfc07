package block

import (
	"fmt"

	"github.com/elsadiq7/chestnet/internal/stream"
	"github.com/elsadiq7/chestnet/internal/weights"
)

// Chain is an ordered sequence of bottleneck blocks built from per-block
// configuration records. Adjacent shapes are validated once at build time,
// which replaces hand-duplicated per-block instantiations with a single
// parameterized path. The chain presents the same stream interface as a
// block, so the full-network assembly stays external.
type Chain struct {
	blocks []*Block
}

// NewChain instantiates blocks from the ordered configuration list and
// checks that each block's output shape feeds the next block's input.
func NewChain(cfgs []Config) (*Chain, error) {
	if len(cfgs) == 0 {
		return nil, fmt.Errorf("chain: no block configurations")
	}
	c := &Chain{blocks: make([]*Block, 0, len(cfgs))}
	for i, cfg := range cfgs {
		b, err := New(cfg)
		if err != nil {
			return nil, fmt.Errorf("chain block %d: %w", i, err)
		}
		if i > 0 {
			prev := c.blocks[i-1].cfg.OutShape()
			next := cfg.InShape()
			if prev != next {
				return nil, fmt.Errorf("chain block %d: input shape %+v does not match previous output %+v",
					i, next, prev)
			}
		}
		c.blocks = append(c.blocks, b)
	}
	return c, nil
}

// Blocks exposes the instantiated blocks in order.
func (c *Chain) Blocks() []*Block { return c.blocks }

// Len returns the number of blocks.
func (c *Chain) Len() int { return len(c.blocks) }

// OutShape returns the final feature-map shape.
func (c *Chain) OutShape() stream.Shape {
	return c.blocks[len(c.blocks)-1].cfg.OutShape()
}

// LoadParams loads one parameter set per block, in order.
func (c *Chain) LoadParams(params []*weights.BlockParams) error {
	if len(params) != len(c.blocks) {
		return fmt.Errorf("chain: %d parameter sets for %d blocks", len(params), len(c.blocks))
	}
	for i, b := range c.blocks {
		if err := b.LoadParams(params[i]); err != nil {
			return fmt.Errorf("chain block %d: %w", i, err)
		}
	}
	return nil
}

// Enable enables every block.
func (c *Chain) Enable() {
	for _, b := range c.blocks {
		b.Enable()
	}
}

// Tick clocks the whole chain once, cascading outputs downstream within
// the same cycle.
func (c *Chain) Tick(in []stream.Sample) []stream.Sample {
	v := in
	for _, b := range c.blocks {
		v = b.Tick(v)
	}
	return v
}

// State reports the least-advanced block state, so the chain only appears
// done when everything is.
func (c *Chain) State() stream.State {
	least := stream.Done
	for _, b := range c.blocks {
		if s := b.State(); s < least {
			least = s
		}
	}
	return least
}

// Done reports whether every block has completed its frame.
func (c *Chain) Done() bool {
	for _, b := range c.blocks {
		if !b.Done() {
			return false
		}
	}
	return true
}

// Finish closes the input side of every block.
func (c *Chain) Finish() {
	for _, b := range c.blocks {
		b.Finish()
	}
}

// Cycles returns the clock count of the first block, which sees every
// cycle of the frame.
func (c *Chain) Cycles() uint64 { return c.blocks[0].Cycles() }

// Forced reports whether any block completed through its timeout path.
func (c *Chain) Forced() bool {
	for _, b := range c.blocks {
		if b.Forced() {
			return true
		}
	}
	return false
}

// Dropped sums samples lost across all blocks.
func (c *Chain) Dropped() int {
	n := 0
	for _, b := range c.blocks {
		n += b.Dropped()
	}
	return n
}

// Reset re-initializes every block for the next frame.
func (c *Chain) Reset() {
	for _, b := range c.blocks {
		b.Reset()
	}
}

// RunChain drives one frame through a chain, pacing the producer for the
// most demanding block.
func (r Runner) RunChain(c *Chain, frame []stream.Sample) (*Result, error) {
	pad := r.PadCycles
	if pad == 0 {
		for _, b := range c.blocks {
			if p := SafePad(b.cfg); p > pad {
				pad = p
			}
		}
	}
	return r.run(c, frame, c.blocks[0].cfg.InChannels, pad)
}
