package pattern

import (
	"testing"

	"github.com/elsadiq7/chestnet/internal/fixed"
	"github.com/elsadiq7/chestnet/internal/stream"
)

func TestFrameDeterministic(t *testing.T) {
	shape := stream.Shape{Width: 8, Height: 8, Channels: 4}
	a := Frame(shape)
	b := Frame(shape)
	if len(a) != shape.Samples() {
		t.Fatalf("frame has %d samples, want %d", len(a), shape.Samples())
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("frames differ at sample %d despite the fixed seed", i)
		}
	}

	c := FrameSeeded(shape, Seed+1)
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different seeds produced identical noise channels")
	}
}

func TestCheckerboardChannel(t *testing.T) {
	// Channel 0 alternates +-0.5 plus the small channel bias (zero for c=0).
	shape := stream.Shape{Width: 4, Height: 4, Channels: 1}
	frame := Frame(shape)
	for i, s := range frame {
		x, y := i%4, i/4
		want := fixed.FromFloat(0.5)
		if (x+y)%2 != 0 {
			want = fixed.FromFloat(-0.5)
		}
		if s.Value != want {
			t.Errorf("(%d,%d) = %#04x, want %#04x", x, y, uint16(s.Value), uint16(want))
		}
	}
}

func TestUniform(t *testing.T) {
	shape := stream.Shape{Width: 3, Height: 2, Channels: 2}
	for _, s := range Uniform(shape, fixed.One) {
		if s.Value != fixed.One {
			t.Fatalf("uniform frame has value %#04x", uint16(s.Value))
		}
	}
}
