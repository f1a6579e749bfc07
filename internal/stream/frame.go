package stream

import "github.com/elsadiq7/chestnet/internal/fixed"

// BuildFrame lays out one frame in stream order: row-major positions with
// the channel index innermost.
func BuildFrame(shape Shape, at func(x, y, c int) fixed.Q88) []Sample {
	frame := make([]Sample, 0, shape.Samples())
	for y := 0; y < shape.Height; y++ {
		for x := 0; x < shape.Width; x++ {
			for c := 0; c < shape.Channels; c++ {
				frame = append(frame, Sample{Value: at(x, y, c), Channel: c})
			}
		}
	}
	return frame
}

// Planes splits an ordered sample stream back into per-channel planes of
// shape.Width*shape.Height values each, in raster order. Samples beyond a
// full plane are ignored.
func Planes(shape Shape, samples []Sample) [][]fixed.Q88 {
	planes := make([][]fixed.Q88, shape.Channels)
	for c := range planes {
		planes[c] = make([]fixed.Q88, shape.Width*shape.Height)
	}
	cursor := make([]int, shape.Channels)
	for _, s := range samples {
		c := ClampChannel(s.Channel, shape.Channels)
		if cursor[c] < len(planes[c]) {
			planes[c][cursor[c]] = s.Value
			cursor[c]++
		}
	}
	return planes
}
