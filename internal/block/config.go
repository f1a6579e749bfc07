// Package block composes the pipeline stages into a bottleneck
// (inverted-residual) unit: expand 1x1 -> batchnorm -> activation ->
// depthwise KxK -> batchnorm -> activation -> optional squeeze-excite ->
// project 1x1 -> batchnorm -> optional residual add. Blocks expose the
// same stream interface as their stages so they chain.
package block

import (
	"fmt"

	"github.com/elsadiq7/chestnet/internal/layers"
	"github.com/elsadiq7/chestnet/internal/stream"
	"github.com/elsadiq7/chestnet/internal/weights"
)

// Defaults
const (
	// DefaultIdleTimeout is the number of consecutive cycles without valid
	// input (or without forward progress while draining) after which the
	// block forces completion. Carried over from the accelerator defaults;
	// it is a heuristic, not a value derived per configuration.
	DefaultIdleTimeout = 1024

	// DefaultSERatio is the squeeze-excite channel reduction ratio.
	DefaultSERatio = 4
)

// Config fixes one block at instantiation time. The fields mirror hardware
// generics; nothing here is runtime-mutable once the block is built.
type Config struct {
	Width  int
	Height int

	InChannels     int
	ExpandChannels int
	OutChannels    int

	Kernel int
	Stride int
	Pad    int

	Activation layers.ActKind

	SEEnable bool
	SERatio  int

	// Lanes replicates the serialized emit paths. Zero picks a lane count
	// that keeps the expand stage rate-matched to its input.
	Lanes int

	IdleTimeout int
}

// Residual reports whether the identity shortcut is instantiated. It is
// derived, never set: shapes must match end to end.
func (c Config) Residual() bool {
	return c.Stride == 1 && c.InChannels == c.OutChannels &&
		stream.ConvOutSize(c.Width, c.Pad, c.Kernel, c.Stride) == c.Width &&
		stream.ConvOutSize(c.Height, c.Pad, c.Kernel, c.Stride) == c.Height
}

// InShape returns the feature-map shape entering the block.
func (c Config) InShape() stream.Shape {
	return stream.Shape{Width: c.Width, Height: c.Height, Channels: c.InChannels}
}

// ExpandShape returns the shape between the expand stage and the depthwise.
func (c Config) ExpandShape() stream.Shape {
	return stream.Shape{Width: c.Width, Height: c.Height, Channels: c.ExpandChannels}
}

// OutShape returns the feature-map shape leaving the block.
func (c Config) OutShape() stream.Shape {
	return stream.Shape{
		Width:    stream.ConvOutSize(c.Width, c.Pad, c.Kernel, c.Stride),
		Height:   stream.ConvOutSize(c.Height, c.Pad, c.Kernel, c.Stride),
		Channels: c.OutChannels,
	}
}

// Dims returns the parameter bank dimensions this configuration consumes.
func (c Config) Dims() weights.Dims {
	d := weights.Dims{
		In:     c.InChannels,
		Expand: c.ExpandChannels,
		Out:    c.OutChannels,
		Kernel: c.Kernel,
	}
	if c.SEEnable {
		ratio := c.SERatio
		if ratio <= 0 {
			ratio = DefaultSERatio
		}
		d.SEReduced = c.ExpandChannels / ratio
		if d.SEReduced < 1 {
			d.SEReduced = 1
		}
	}
	return d
}

// withDefaults fills the optional knobs.
func (c Config) withDefaults() Config {
	if c.SERatio <= 0 {
		c.SERatio = DefaultSERatio
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.Lanes <= 0 {
		// One expanded position serializes out over ceil(Expand/Lanes)
		// cycles while the next position's InChannels samples stream in;
		// pick the smallest lane count that never falls behind.
		c.Lanes = (c.ExpandChannels + c.InChannels - 1) / c.InChannels
		if c.Lanes < 1 {
			c.Lanes = 1
		}
	}
	return c
}

// Validate rejects configurations that cannot be instantiated.
func (c Config) Validate() error {
	switch {
	case c.Width < 1 || c.Height < 1:
		return fmt.Errorf("block config: bad spatial size %dx%d", c.Width, c.Height)
	case c.InChannels < 1 || c.ExpandChannels < 1 || c.OutChannels < 1:
		return fmt.Errorf("block config: bad channel counts in=%d expand=%d out=%d",
			c.InChannels, c.ExpandChannels, c.OutChannels)
	case c.Kernel < 1 || c.Kernel%2 == 0:
		return fmt.Errorf("block config: kernel size %d must be odd and positive", c.Kernel)
	case c.Stride < 1:
		return fmt.Errorf("block config: bad stride %d", c.Stride)
	case c.Pad < 0 || c.Pad >= c.Kernel:
		return fmt.Errorf("block config: bad padding %d for kernel %d", c.Pad, c.Kernel)
	case c.Width+2*c.Pad < c.Kernel || c.Height+2*c.Pad < c.Kernel:
		return fmt.Errorf("block config: %dx%d too small for kernel %d pad %d",
			c.Width, c.Height, c.Kernel, c.Pad)
	}
	return nil
}
