package fixed

import "testing"

func TestSaturateIdentityInRange(t *testing.T) {
	// Every representable Q8.8 value passes through untouched.
	for x := int32(-32768); x <= 32767; x++ {
		if got := Saturate(Acc(x)); int32(got) != x {
			t.Fatalf("Saturate(%d) = %d, want identity", x, got)
		}
	}
}

func TestSaturateClipsAtBoundaries(t *testing.T) {
	tests := []struct {
		in   Acc
		want Q88
	}{
		{32767, 32767},
		{32768, 32767},
		{1 << 20, 32767},
		{-32768, -32768},
		{-32769, -32768},
		{-(1 << 20), -32768},
	}
	for _, tt := range tests {
		if got := Saturate(tt.in); got != tt.want {
			t.Errorf("Saturate(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestMACWidening(t *testing.T) {
	// 127.99... * 127.99... overflows Q8.8 but not the accumulator.
	acc := MAC(Max, Max, 0)
	if acc != Acc(Max)*Acc(Max) {
		t.Errorf("MAC(Max, Max, 0) = %d", acc)
	}
	if got := Saturate(Round(acc)); got != Max {
		t.Errorf("rounded product should saturate to %d, got %d", Max, got)
	}
}

func TestRound(t *testing.T) {
	tests := []struct {
		in   Acc
		want Acc
	}{
		{0, 0},
		{127, 0},     // below half LSB rounds down
		{128, 1},     // half LSB rounds up
		{256, 1},     // exactly 1.0 in the raw domain
		{-256, -1},
		{-128, 0},    // exactly -half rounds toward zero
		{-129, -1},   // arithmetic shift floors the remainder
	}
	for _, tt := range tests {
		if got := Round(tt.in); got != tt.want {
			t.Errorf("Round(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestMulIdentity(t *testing.T) {
	if got := Mul(Half, One); got != Half {
		t.Errorf("0.5 * 1.0 = %#04x, want %#04x", uint16(got), uint16(Half))
	}
	if got := Mul(Half, Half); got != 1<<(FracBits-2) {
		t.Errorf("0.5 * 0.5 = %#04x, want 0.25", uint16(got))
	}
}

func TestFromFloatRoundTrip(t *testing.T) {
	tests := []struct {
		f    float64
		want Q88
	}{
		{0.5, 0x0080},
		{1.0, One},
		{-1.0, -One},
		{200.0, Max},  // clamps
		{-200.0, Min}, // clamps
	}
	for _, tt := range tests {
		if got := FromFloat(tt.f); got != tt.want {
			t.Errorf("FromFloat(%v) = %#04x, want %#04x", tt.f, uint16(got), uint16(tt.want))
		}
	}
}
