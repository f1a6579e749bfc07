package block

import (
	"fmt"

	"github.com/elsadiq7/chestnet/internal/layers"
	"github.com/elsadiq7/chestnet/internal/stream"
	"github.com/elsadiq7/chestnet/internal/weights"
)

// Block is one bottleneck unit. It clocks every instantiated stage once per
// Tick, moves idle -> processing on Enable, processing -> completing when
// the expected input count arrives or the idle-input timeout fires, and
// done only when every instantiated stage reports completion - never from
// the first stage alone.
type Block struct {
	cfg Config

	expand  *layers.PointwiseConv
	bnExp   *layers.BatchNorm
	actExp  *layers.Activation
	dw      *layers.DepthwiseConv
	bnDW    *layers.BatchNorm
	actDW   *layers.Activation
	se      *layers.SqueezeExcite
	project *layers.PointwiseConv
	bnProj  *layers.BatchNorm
	res     *shortcut

	stages []stream.Stage

	state  stream.State
	loaded bool

	gotIn    int
	expectIn int

	idleCycles  int
	drainCycles int
	forced      bool

	cycles  uint64
	emitted int
}

// New instantiates a block from its configuration. Weights must be loaded
// and the block enabled before the first activation is accepted.
func New(cfg Config) (*Block, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	inShape := cfg.InShape()
	expShape := cfg.ExpandShape()
	dwShape := stream.Shape{
		Width:    stream.ConvOutSize(cfg.Width, cfg.Pad, cfg.Kernel, cfg.Stride),
		Height:   stream.ConvOutSize(cfg.Height, cfg.Pad, cfg.Kernel, cfg.Stride),
		Channels: cfg.ExpandChannels,
	}
	outShape := cfg.OutShape()

	b := &Block{
		cfg:      cfg,
		expand:   layers.NewPointwiseConv(cfg.InChannels, cfg.ExpandChannels, inShape, cfg.Lanes, weights.CatExpand),
		bnExp:    layers.NewBatchNorm(expShape, weights.CatBNExpand),
		actExp:   layers.NewActivation(cfg.Activation, expShape),
		dw:       layers.NewDepthwiseConv(expShape, cfg.Kernel, cfg.Stride, cfg.Pad),
		bnDW:     layers.NewBatchNorm(dwShape, weights.CatBNDepthwise),
		actDW:    layers.NewActivation(cfg.Activation, dwShape),
		project:  layers.NewPointwiseConv(cfg.ExpandChannels, cfg.OutChannels, dwShape, cfg.Lanes, weights.CatProject),
		bnProj:   layers.NewBatchNorm(outShape, weights.CatBNProject),
		expectIn: inShape.Samples(),
		state:    stream.Idle,
	}
	if cfg.SEEnable {
		b.se = layers.NewSqueezeExcite(dwShape, cfg.SERatio, cfg.Lanes)
	}
	if cfg.Residual() {
		b.res = newShortcut(inShape)
	}

	b.stages = []stream.Stage{b.expand, b.bnExp, b.actExp, b.dw, b.bnDW, b.actDW}
	if b.se != nil {
		b.stages = append(b.stages, b.se)
	}
	b.stages = append(b.stages, b.project, b.bnProj)
	if b.res != nil {
		b.stages = append(b.stages, b.res)
	}
	return b, nil
}

// Config returns the instantiation-time configuration.
func (b *Block) Config() Config { return b.cfg }

// LoadWeights drives the loader handshake for every parameter category the
// block consumes. It must complete before Enable; re-loading while
// processing is undefined and is not checked here.
func (b *Block) LoadWeights(l weights.Loader) error {
	if err := b.expand.LoadParameters(l); err != nil {
		return fmt.Errorf("block: %w", err)
	}
	if err := b.dw.LoadParameters(l); err != nil {
		return fmt.Errorf("block: %w", err)
	}
	if err := b.project.LoadParameters(l); err != nil {
		return fmt.Errorf("block: %w", err)
	}
	if err := b.bnExp.LoadParameters(l); err != nil {
		return fmt.Errorf("block: %w", err)
	}
	if err := b.bnDW.LoadParameters(l); err != nil {
		return fmt.Errorf("block: %w", err)
	}
	if err := b.bnProj.LoadParameters(l); err != nil {
		return fmt.Errorf("block: %w", err)
	}
	if b.se != nil {
		if err := b.se.LoadParameters(l); err != nil {
			return fmt.Errorf("block: %w", err)
		}
	}
	b.loaded = true
	return nil
}

// LoadParams is a convenience wrapper running the handshake against an
// in-memory parameter set.
func (b *Block) LoadParams(p *weights.BlockParams) error {
	return b.LoadWeights(p.Loader())
}

// Loaded reports whether the parameter banks have been written.
func (b *Block) Loaded() bool { return b.loaded }

// Enable moves the block from idle to processing. Enabling before weights
// are loaded is a usage error with undefined numerical results.
func (b *Block) Enable() {
	if b.state == stream.Idle {
		b.state = stream.Processing
	}
}

// Disable re-initializes everything to idle, discarding in-flight data.
func (b *Block) Disable() { b.Reset() }

// Tick advances the whole block one clock. Input samples offered while the
// block is not processing are lost.
func (b *Block) Tick(in []stream.Sample) []stream.Sample {
	if b.state == stream.Idle || b.state == stream.Done {
		return nil
	}
	b.cycles++

	if b.state == stream.Processing {
		if len(in) == 0 {
			b.idleCycles++
			if b.idleCycles >= b.cfg.IdleTimeout {
				b.forceCompletion()
			}
		} else {
			b.idleCycles = 0
			b.gotIn += len(in)
		}
	} else {
		// Input after the accept window closes is lost.
		in = nil
	}

	v := make([]stream.Sample, 0, len(in))
	for _, s := range in {
		s.Channel = stream.ClampChannel(s.Channel, b.cfg.InChannels)
		v = append(v, s)
		if b.res != nil {
			b.res.Push(s)
		}
	}

	v = b.expand.Tick(v)
	v = b.bnExp.Tick(v)
	v = b.actExp.Tick(v)
	v = b.dw.Tick(v)
	v = b.bnDW.Tick(v)
	v = b.actDW.Tick(v)
	if b.se != nil {
		v = b.se.Tick(v)
	}
	v = b.project.Tick(v)
	v = b.bnProj.Tick(v)
	if b.res != nil {
		v = b.res.Tick(v)
	}
	b.emitted += len(v)

	if b.state == stream.Processing && b.gotIn >= b.expectIn {
		b.state = stream.Completing
		b.drainCycles = 0
	}
	if b.state == stream.Completing {
		if len(v) == 0 {
			b.drainCycles++
			if b.drainCycles >= b.cfg.IdleTimeout && !b.forced {
				b.finishStages()
			}
		} else {
			b.drainCycles = 0
		}
		if b.allStagesDone() {
			b.state = stream.Done
		}
	}
	return v
}

// forceCompletion is the idle-input timeout path: stop expecting input and
// tell every stage to drain what it has.
func (b *Block) forceCompletion() {
	b.state = stream.Completing
	b.drainCycles = 0
	b.finishStages()
}

func (b *Block) finishStages() {
	b.forced = true
	for _, s := range b.stages {
		s.Finish()
	}
}

// allStagesDone aggregates completion across every instantiated stage.
func (b *Block) allStagesDone() bool {
	for _, s := range b.stages {
		if !s.Done() {
			return false
		}
	}
	return true
}

func (b *Block) State() stream.State { return b.state }

// Done holds once per frame until Disable or Reset.
func (b *Block) Done() bool { return b.state == stream.Done }

// Finish closes the input side, as if the idle timeout had fired.
func (b *Block) Finish() {
	if b.state == stream.Processing {
		b.forceCompletion()
	}
}

// Cycles returns the clock count since enable.
func (b *Block) Cycles() uint64 { return b.cycles }

// Emitted returns the output sample count this frame.
func (b *Block) Emitted() int { return b.emitted }

// Forced reports whether completion was reached through the timeout path
// rather than the input-count target.
func (b *Block) Forced() bool { return b.forced }

// Dropped sums the samples the serializing stages lost to rate mismatch.
func (b *Block) Dropped() int {
	n := b.expand.Dropped() + b.project.Dropped()
	if b.se != nil {
		n += b.se.Dropped()
	}
	return n
}

// Reset re-initializes the block and all stages to idle for the next
// frame. Loaded weights survive.
func (b *Block) Reset() {
	for _, s := range b.stages {
		s.Reset()
	}
	b.state = stream.Idle
	b.gotIn = 0
	b.idleCycles = 0
	b.drainCycles = 0
	b.forced = false
	b.cycles = 0
	b.emitted = 0
}
