package block

import (
	"testing"

	"github.com/elsadiq7/chestnet/internal/layers"
	"github.com/elsadiq7/chestnet/internal/weights"
)

func TestChainShapeMismatchRejected(t *testing.T) {
	a := identityConfig()
	b := identityConfig()
	b.InChannels = 3
	if _, err := NewChain([]Config{a, b}); err == nil {
		t.Error("mismatched adjacent shapes should fail at build time")
	}
	if _, err := NewChain(nil); err == nil {
		t.Error("empty chain should fail")
	}
}

func TestChainOfIdentityBlocksQuadruples(t *testing.T) {
	// Two residual identity blocks in series: each doubles, so the chain
	// multiplies by four.
	cfg := identityConfig()
	c, err := NewChain([]Config{cfg, cfg})
	if err != nil {
		t.Fatal(err)
	}
	params := []*weights.BlockParams{
		weights.NewBlockParams(cfg.Dims()).Identity(),
		weights.NewBlockParams(cfg.Dims()).Identity(),
	}
	if err := c.LoadParams(params); err != nil {
		t.Fatal(err)
	}

	frame := rampFrame(cfg.InShape())
	res, err := Runner{}.RunChain(c, frame)
	if err != nil {
		t.Fatal(err)
	}
	if res.Forced {
		t.Error("chain should complete from input counts")
	}
	if len(res.Outputs) != cfg.OutShape().Samples() {
		t.Fatalf("got %d outputs, want %d", len(res.Outputs), cfg.OutShape().Samples())
	}
	for i, s := range res.Outputs {
		want := frame[i].Value * 4
		if s.Value != want {
			t.Errorf("out[%d] = %#04x, want %#04x (4x input)", i, uint16(s.Value), uint16(want))
		}
	}
}

func TestChainDownsampleFeedsNarrowerBlock(t *testing.T) {
	// A stride-2 block halves the spatial extent; the next block is built
	// on the reduced shape and the chain validates the hand-off.
	first := Config{
		Width: 4, Height: 4,
		InChannels: 2, ExpandChannels: 4, OutChannels: 2,
		Kernel: 3, Stride: 2, Pad: 1,
		Activation: layers.ActReLU,
	}
	second := identityConfig() // 2x2, matching first.OutShape()
	c, err := NewChain([]Config{first, second})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.LoadParams([]*weights.BlockParams{
		weights.NewBlockParams(first.Dims()).Identity(),
		weights.NewBlockParams(second.Dims()).Identity(),
	}); err != nil {
		t.Fatal(err)
	}

	res, err := Runner{}.RunChain(c, rampFrame(first.InShape()))
	if err != nil {
		t.Fatal(err)
	}
	if got, want := len(res.Outputs), c.OutShape().Samples(); got != want {
		t.Errorf("got %d outputs, want %d", got, want)
	}
	if res.Dropped != 0 {
		t.Errorf("chain pacing should prevent drops, lost %d", res.Dropped)
	}
}

func TestChainForcedPropagates(t *testing.T) {
	cfg := identityConfig()
	cfg.IdleTimeout = 8
	c, err := NewChain([]Config{cfg})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.LoadParams([]*weights.BlockParams{
		weights.NewBlockParams(cfg.Dims()).Identity(),
	}); err != nil {
		t.Fatal(err)
	}

	c.Enable()
	for i := 0; i < 1000 && !c.Done(); i++ {
		c.Tick(nil)
	}
	if !c.Done() {
		t.Fatal("starved chain never timed out")
	}
	if !c.Forced() {
		t.Error("chain should report the forced completion of its block")
	}
}
