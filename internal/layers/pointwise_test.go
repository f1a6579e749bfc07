package layers

import (
	"testing"

	"github.com/elsadiq7/chestnet/internal/fixed"
	"github.com/elsadiq7/chestnet/internal/stream"
	"github.com/elsadiq7/chestnet/internal/weights"
)

func TestPointwiseIdentity(t *testing.T) {
	// 1x1 identity matrix: 0.5 in, 0.5 out.
	shape := stream.Shape{Width: 1, Height: 1, Channels: 1}
	pw := NewPointwiseConv(1, 1, shape, 1, weights.CatExpand)
	if err := pw.SetWeights(weights.IdentityMatrix(1, 1)); err != nil {
		t.Fatal(err)
	}

	out := drive(t, pw, []stream.Sample{{Value: 0x0080, Channel: 0}}, 1, 1)
	if len(out) != 1 {
		t.Fatalf("got %d outputs, want 1", len(out))
	}
	if out[0].Value != 0x0080 {
		t.Errorf("identity output = %#04x, want 0x0080", uint16(out[0].Value))
	}
}

func TestPointwiseExpand(t *testing.T) {
	// One input channel fans out to two output channels with known rows.
	shape := stream.Shape{Width: 2, Height: 1, Channels: 1}
	pw := NewPointwiseConv(1, 2, shape, 1, weights.CatExpand)
	w := []fixed.Q88{fixed.One, 2 * fixed.One} // out0 = x, out1 = 2x
	if err := pw.SetWeights(w); err != nil {
		t.Fatal(err)
	}

	frame := []stream.Sample{
		{Value: fixed.FromFloat(0.5), Channel: 0},
		{Value: fixed.FromFloat(-1.0), Channel: 0},
	}
	out := drive(t, pw, frame, 1, 2)
	want := []fixed.Q88{
		fixed.FromFloat(0.5), fixed.FromFloat(1.0),
		fixed.FromFloat(-1.0), fixed.FromFloat(-2.0),
	}
	got := values(out)
	if len(got) != len(want) {
		t.Fatalf("got %d outputs, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("out[%d] = %#04x, want %#04x", i, uint16(got[i]), uint16(want[i]))
		}
		if out[i].Channel != i%2 {
			t.Errorf("out[%d] channel = %d, want %d", i, out[i].Channel, i%2)
		}
	}
}

func TestPointwiseLaneCountBitIdentical(t *testing.T) {
	// Parallelism is a performance knob only: every lane count must emit
	// the same values in the same order.
	shape := stream.Shape{Width: 3, Height: 2, Channels: 4}
	w := make([]fixed.Q88, 8*4)
	for i := range w {
		w[i] = fixed.Q88(37*i - 200)
	}
	frame := stream.BuildFrame(shape, func(x, y, c int) fixed.Q88 {
		return fixed.Q88(91*x - 53*y + 17*c)
	})

	var baseline []stream.Sample
	for _, lanes := range []int{1, 2, 3, 8} {
		pw := NewPointwiseConv(4, 8, shape, lanes, weights.CatExpand)
		if err := pw.SetWeights(w); err != nil {
			t.Fatal(err)
		}
		// Pad generously so slow lane counts never drop.
		out := drive(t, pw, frame, 4, 8)
		if baseline == nil {
			baseline = out
			continue
		}
		if !sameSamples(baseline, out) {
			t.Errorf("lanes=%d output differs from lanes=1", lanes)
		}
	}
}

func TestPointwiseChannelClamp(t *testing.T) {
	// An out-of-range input channel behaves as channel 0.
	shape := stream.Shape{Width: 1, Height: 1, Channels: 2}
	pw := NewPointwiseConv(2, 1, shape, 1, weights.CatProject)
	if err := pw.SetWeights([]fixed.Q88{fixed.One, 0}); err != nil {
		t.Fatal(err)
	}
	frame := []stream.Sample{
		{Value: fixed.FromFloat(1.0), Channel: 99}, // clamps to 0
		{Value: fixed.FromFloat(1.0), Channel: 1},
	}
	out := drive(t, pw, frame, 2, 1)
	if len(out) != 1 || out[0].Value != fixed.FromFloat(1.0) {
		t.Errorf("clamped channel not folded into channel 0: %v", out)
	}
}

func TestPointwiseDropsWhenEmitFallsBehind(t *testing.T) {
	// 1 -> 8 expansion fed every cycle can never keep up at one lane;
	// once the emit queue fills, whole positions vanish silently.
	shape := stream.Shape{Width: 8, Height: 8, Channels: 1}
	pw := NewPointwiseConv(1, 8, shape, 1, weights.CatExpand)
	if err := pw.SetWeights(weights.IdentityMatrix(8, 1)); err != nil {
		t.Fatal(err)
	}
	out := drive(t, pw, stream.BuildFrame(shape, func(x, y, c int) fixed.Q88 {
		return fixed.One
	}), 1, 0)

	if pw.Dropped() == 0 {
		t.Fatal("expected dropped samples with no producer pacing")
	}
	if len(out)+pw.Dropped() != 8*8*8 {
		t.Errorf("emitted %d + dropped %d should cover %d outputs",
			len(out), pw.Dropped(), 8*8*8)
	}
	if !pw.Done() {
		t.Error("stage must still complete after drops")
	}
}

func TestPointwiseFinishDrains(t *testing.T) {
	shape := stream.Shape{Width: 2, Height: 2, Channels: 2}
	pw := NewPointwiseConv(2, 2, shape, 1, weights.CatExpand)
	if err := pw.SetWeights(weights.IdentityMatrix(2, 2)); err != nil {
		t.Fatal(err)
	}

	// Feed one complete position, then cut the stream short.
	pw.Tick([]stream.Sample{{Value: fixed.One, Channel: 0}})
	pw.Tick([]stream.Sample{{Value: fixed.One, Channel: 1}})
	pw.Finish()

	var out []stream.Sample
	for i := 0; i < 100 && !pw.Done(); i++ {
		out = append(out, pw.Tick(nil)...)
	}
	if !pw.Done() {
		t.Fatal("stage did not finish after Finish")
	}
	if len(out) != 2 {
		t.Errorf("expected the completed position to drain, got %d samples", len(out))
	}
}
