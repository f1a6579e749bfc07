// Package pattern generates deterministic Q8.8 test feature maps: the
// per-channel checkerboard / gradient / sine / noise mix the accelerator's
// original memory-image generator used for its testbenches. Tests and the
// viewer's demo mode feed on these when no real image is supplied.
package pattern

import (
	"math"
	"math/rand"

	"github.com/elsadiq7/chestnet/internal/fixed"
	"github.com/elsadiq7/chestnet/internal/stream"
)

// Seed fixes the noise channels so every run produces the same frame.
const Seed = 42

// At returns the test-pattern value at (x, y, c). Channels rotate through
// four patterns, each offset by a small channel-dependent bias.
func At(x, y, c int, shape stream.Shape, rng *rand.Rand) fixed.Q88 {
	var value float64
	switch c % 4 {
	case 0:
		// Checkerboard
		if (x+y)%2 == 0 {
			value = 0.5
		} else {
			value = -0.5
		}
	case 1:
		// Gradient
		value = float64(x+y)/float64(shape.Width+shape.Height) - 0.5
	case 2:
		// Sine wave
		value = 0.5 * math.Sin(2*math.Pi*float64(x)/32) * math.Cos(2*math.Pi*float64(y)/32)
	default:
		// Noise
		value = rng.NormFloat64() * 0.3
	}
	value += 0.1 * float64(c) / float64(shape.Channels)
	return fixed.FromFloat(value)
}

// Frame builds a full test frame in stream order.
func Frame(shape stream.Shape) []stream.Sample {
	return FrameSeeded(shape, Seed)
}

// FrameSeeded builds a test frame with an explicit noise seed.
func FrameSeeded(shape stream.Shape, seed int64) []stream.Sample {
	rng := rand.New(rand.NewSource(seed))
	return stream.BuildFrame(shape, func(x, y, c int) fixed.Q88 {
		return At(x, y, c, shape, rng)
	})
}

// Uniform builds a frame with every sample equal to v.
func Uniform(shape stream.Shape, v fixed.Q88) []stream.Sample {
	return stream.BuildFrame(shape, func(x, y, c int) fixed.Q88 { return v })
}
