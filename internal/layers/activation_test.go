package layers

import (
	"testing"

	"github.com/elsadiq7/chestnet/internal/fixed"
	"github.com/elsadiq7/chestnet/internal/stream"
)

func TestReLU(t *testing.T) {
	tests := []struct {
		in, want fixed.Q88
	}{
		{fixed.FromFloat(-1.0), 0},
		{fixed.FromFloat(-0.004), 0},
		{0, 0},
		{fixed.FromFloat(5.0), fixed.FromFloat(5.0)},
		{fixed.Max, fixed.Max},
		{fixed.Min, 0},
	}
	for _, tt := range tests {
		if got := ReLU(tt.in); got != tt.want {
			t.Errorf("ReLU(%#04x) = %#04x, want %#04x",
				uint16(tt.in), uint16(got), uint16(tt.want))
		}
	}
}

func TestHardSwish(t *testing.T) {
	tests := []struct {
		name     string
		in, want fixed.Q88
	}{
		{"zero", 0, 0},
		{"saturated ramp acts linear", fixed.FromFloat(4.0), fixed.FromFloat(4.0)},
		{"deep negative cut off", fixed.FromFloat(-4.0), 0},
		{"at ramp knee", fixed.FromFloat(3.0), fixed.FromFloat(3.0)},
		{"at lower knee", fixed.FromFloat(-3.0), 0},
		// x=1: 1 * clip(4,0,6)/6 = 2/3; raw (256*1024/6 + 128) >> 8 = 171.
		{"one", fixed.One, 171},
		// x=-1: -1 * 2/6 = -1/3; raw product -256*512/6 = -21845 (floor
		// division toward zero), then (-21845+128)>>8 floors to -85.
		{"minus one", -fixed.One, -85},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HardSwish(tt.in); got != tt.want {
				t.Errorf("HardSwish(%#04x) = %d, want %d", uint16(tt.in), got, tt.want)
			}
		})
	}
}

func TestHardSigmoid(t *testing.T) {
	tests := []struct {
		name     string
		in, want fixed.Q88
	}{
		{"zero gates half", 0, fixed.Half},
		{"above upper knee gates one", fixed.FromFloat(3.0), fixed.One},
		{"way above gates one", fixed.FromFloat(100.0), fixed.One},
		{"below lower knee gates zero", fixed.FromFloat(-3.0), 0},
		{"way below gates zero", fixed.FromFloat(-100.0), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HardSigmoid(tt.in); got != tt.want {
				t.Errorf("HardSigmoid(%#04x) = %#04x, want %#04x",
					uint16(tt.in), uint16(got), uint16(tt.want))
			}
		})
	}
}

func TestActivationStage(t *testing.T) {
	shape := stream.Shape{Width: 2, Height: 1, Channels: 2}
	act := NewActivation(ActReLU, shape)
	frame := []stream.Sample{
		{Value: fixed.FromFloat(-2.0), Channel: 0},
		{Value: fixed.FromFloat(1.5), Channel: 1},
		{Value: 0, Channel: 0},
		{Value: fixed.FromFloat(-0.5), Channel: 1},
	}
	out := drive(t, act, frame, 2, 0)
	want := []fixed.Q88{0, fixed.FromFloat(1.5), 0, 0}
	got := values(out)
	if len(got) != len(want) {
		t.Fatalf("got %d outputs, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("out[%d] = %#04x, want %#04x", i, uint16(got[i]), uint16(want[i]))
		}
		if out[i].Channel != frame[i].Channel {
			t.Errorf("out[%d] channel = %d, want %d", i, out[i].Channel, frame[i].Channel)
		}
	}
}

func TestActivationFinishWithoutInput(t *testing.T) {
	act := NewActivation(ActHardSwish, stream.Shape{Width: 4, Height: 4, Channels: 8})
	act.Finish()
	if !act.Done() {
		t.Error("an idle activation should finish immediately")
	}
}
