package layers

import (
	"testing"

	"github.com/elsadiq7/chestnet/internal/fixed"
	"github.com/elsadiq7/chestnet/internal/stream"
)

// drive clocks a stage through one frame: one input sample per cycle with
// pad idle cycles after every channels-sized group, then empty cycles
// until the stage reports done.
func drive(t *testing.T, s stream.Stage, frame []stream.Sample, channels, pad int) []stream.Sample {
	t.Helper()
	var out []stream.Sample
	cycles := 0
	tick := func(in []stream.Sample) {
		out = append(out, s.Tick(in)...)
		cycles++
		if cycles > 1_000_000 {
			t.Fatalf("stage stuck in state %v after %d cycles", s.State(), cycles)
		}
	}
	for i, smp := range frame {
		tick([]stream.Sample{smp})
		if pad > 0 && (i+1)%channels == 0 {
			for p := 0; p < pad; p++ {
				tick(nil)
			}
		}
	}
	for !s.Done() {
		tick(nil)
	}
	return out
}

// values extracts the sample values in emission order.
func values(samples []stream.Sample) []fixed.Q88 {
	vs := make([]fixed.Q88, len(samples))
	for i, s := range samples {
		vs[i] = s.Value
	}
	return vs
}

func sameSamples(a, b []stream.Sample) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
