// KxK depthwise convolution stage. Each channel filters independently
// against its own KxK kernel, fed by a line buffer holding the last K-1
// rows of that channel. Out-of-frame window positions read as zero.

package layers

import (
	"fmt"

	"github.com/elsadiq7/chestnet/internal/fixed"
	"github.com/elsadiq7/chestnet/internal/stream"
	"github.com/elsadiq7/chestnet/internal/weights"
)

// DepthwiseConv evaluates one window per stride step as soon as the last
// input sample that window needs has arrived. Windows clipped by the
// bottom or right frame edge all fire on the final real sample of their
// row or frame, so edge cycles release several windows at once; a small
// reorder buffer holds results so emission stays in raster order with the
// channel index innermost, matching the order every downstream stage
// expects.
type DepthwiseConv struct {
	shape  stream.Shape
	kernel int
	stride int
	pad    int

	outW int
	outH int

	// weight[c*K*K + ky*K + kx]
	weight []fixed.Q88
	chans  []dwChannel

	// reorder buffer over the output frame, indexed (oy*outW+ox)*C + c
	vals    []fixed.Q88
	ready   []bool
	nextOut int

	gotIn     int
	expectIn  int
	expectOut int
	closed    bool

	state stream.State
}

// dwChannel is the per-channel sliding state: the row currently streaming
// in plus the K-1 rows before it, addressed modulo K-1.
type dwChannel struct {
	cur  []fixed.Q88
	prev [][]fixed.Q88
	x    int
	y    int
}

// NewDepthwiseConv builds a depthwise stage over the given input shape.
func NewDepthwiseConv(shape stream.Shape, kernel, stride, pad int) *DepthwiseConv {
	outW := stream.ConvOutSize(shape.Width, pad, kernel, stride)
	outH := stream.ConvOutSize(shape.Height, pad, kernel, stride)
	total := outW * outH * shape.Channels
	d := &DepthwiseConv{
		shape:     shape,
		kernel:    kernel,
		stride:    stride,
		pad:       pad,
		outW:      outW,
		outH:      outH,
		weight:    make([]fixed.Q88, shape.Channels*kernel*kernel),
		chans:     make([]dwChannel, shape.Channels),
		vals:      make([]fixed.Q88, total),
		ready:     make([]bool, total),
		expectIn:  shape.Samples(),
		expectOut: total,
		state:     stream.Idle,
	}
	for c := range d.chans {
		d.chans[c].cur = make([]fixed.Q88, shape.Width)
		d.chans[c].prev = make([][]fixed.Q88, kernel-1)
		for r := range d.chans[c].prev {
			d.chans[c].prev[r] = make([]fixed.Q88, shape.Width)
		}
	}
	return d
}

// OutShape returns the spatial shape this stage emits.
func (d *DepthwiseConv) OutShape() stream.Shape {
	return stream.Shape{Width: d.outW, Height: d.outH, Channels: d.shape.Channels}
}

// LoadParameters pulls the per-channel kernels from the loader.
func (d *DepthwiseConv) LoadParameters(l weights.Loader) error {
	if err := weights.Fill(l, weights.CatDepthwise, d.weight); err != nil {
		return fmt.Errorf("depthwise: %w", err)
	}
	return nil
}

// SetWeights installs per-channel kernels directly.
func (d *DepthwiseConv) SetWeights(w []fixed.Q88) error {
	if len(w) != len(d.weight) {
		return fmt.Errorf("depthwise weights: want %d values, got %d", len(d.weight), len(w))
	}
	copy(d.weight, w)
	return nil
}

// Tick shifts this cycle's samples into their channel line buffers,
// evaluates every window whose last required sample just arrived, and
// flushes the in-order run of finished results.
func (d *DepthwiseConv) Tick(in []stream.Sample) []stream.Sample {
	for _, s := range in {
		if d.state == stream.Idle {
			d.state = stream.Processing
		}
		c := stream.ClampChannel(s.Channel, d.shape.Channels)
		ch := &d.chans[c]
		if ch.y >= d.shape.Height {
			// Extra samples past the frame are lost silently.
			d.gotIn++
			continue
		}
		ch.cur[ch.x] = s.Value

		for _, oy := range d.triggered(ch.y, d.shape.Height, d.outH) {
			for _, ox := range d.triggered(ch.x, d.shape.Width, d.outW) {
				idx := (oy*d.outW+ox)*d.shape.Channels + c
				d.vals[idx] = d.window(ch, c, oy, ox)
				d.ready[idx] = true
			}
		}

		d.gotIn++
		ch.x++
		if ch.x == d.shape.Width {
			ch.x = 0
			if d.kernel > 1 {
				copy(ch.prev[ch.y%(d.kernel-1)], ch.cur)
			}
			ch.y++
		}
	}

	var out []stream.Sample
	for d.nextOut < d.expectOut && d.ready[d.nextOut] {
		out = append(out, stream.Sample{
			Value:   d.vals[d.nextOut],
			Channel: d.nextOut % d.shape.Channels,
		})
		d.nextOut++
	}

	d.advance()
	return out
}

// triggered returns the output coordinates along one axis whose last needed
// input coordinate is exactly pos. At the final real coordinate this also
// includes every edge-clipped window still outstanding.
func (d *DepthwiseConv) triggered(pos, inSize, outSize int) []int {
	var coords []int
	if pos == inSize-1 {
		for o := 0; o < outSize; o++ {
			if o*d.stride-d.pad+d.kernel-1 >= pos {
				coords = append(coords, o)
			}
		}
		return coords
	}
	need := pos + d.pad - d.kernel + 1
	if need >= 0 && need%d.stride == 0 {
		o := need / d.stride
		if o >= 0 && o < outSize {
			coords = append(coords, o)
		}
	}
	return coords
}

// window evaluates one KxK window for channel c at output position (oy, ox),
// reading buffered rows and zero for padded positions.
func (d *DepthwiseConv) window(ch *dwChannel, c, oy, ox int) fixed.Q88 {
	var acc fixed.Acc
	base := c * d.kernel * d.kernel
	for ky := 0; ky < d.kernel; ky++ {
		iy := oy*d.stride - d.pad + ky
		if iy < 0 || iy >= d.shape.Height {
			continue
		}
		var row []fixed.Q88
		if iy == ch.y {
			row = ch.cur
		} else {
			row = ch.prev[iy%(d.kernel-1)]
		}
		for kx := 0; kx < d.kernel; kx++ {
			ix := ox*d.stride - d.pad + kx
			if ix < 0 || ix >= d.shape.Width {
				continue
			}
			acc = fixed.MAC(row[ix], d.weight[base+ky*d.kernel+kx], acc)
		}
	}
	return fixed.Saturate(fixed.Round(acc))
}

func (d *DepthwiseConv) advance() {
	switch d.state {
	case stream.Idle:
		if d.closed {
			d.state = stream.Done
		}
	case stream.Processing:
		if d.gotIn >= d.expectIn || d.closed {
			d.state = stream.Completing
		}
	case stream.Completing:
		if d.nextOut >= d.expectOut || d.closed {
			d.state = stream.Done
		}
	}
}

func (d *DepthwiseConv) State() stream.State { return d.state }
func (d *DepthwiseConv) Done() bool          { return d.state == stream.Done }

// Finish closes the input side; windows still waiting for samples that
// will never arrive are abandoned and never emitted.
func (d *DepthwiseConv) Finish() {
	d.closed = true
	d.advance()
}

// Reset zeroes the line buffers, reorder buffer, and counters.
func (d *DepthwiseConv) Reset() {
	for c := range d.chans {
		ch := &d.chans[c]
		for i := range ch.cur {
			ch.cur[i] = 0
		}
		for _, row := range ch.prev {
			for i := range row {
				row[i] = 0
			}
		}
		ch.x = 0
		ch.y = 0
	}
	for i := range d.ready {
		d.ready[i] = false
		d.vals[i] = 0
	}
	d.nextOut = 0
	d.gotIn = 0
	d.closed = false
	d.state = stream.Idle
}
