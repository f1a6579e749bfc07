package ui

import (
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/hajimehoshi/ebiten/v2"

	"github.com/elsadiq7/chestnet/internal/block"
	"github.com/elsadiq7/chestnet/internal/fixed"
	"github.com/elsadiq7/chestnet/internal/layers"
	"github.com/elsadiq7/chestnet/internal/pattern"
	"github.com/elsadiq7/chestnet/internal/storage"
	"github.com/elsadiq7/chestnet/internal/stream"
	"github.com/elsadiq7/chestnet/internal/weights"
)

// UI Constants
const (
	ScreenWidth  = 960
	ScreenHeight = 560

	tileSize = 96
	tileGap  = 12
	marginX  = 24
)

// demoConfigs is the chain the viewer animates: a residual block followed by
// a stride-2 squeeze-excite block, small enough to watch cycle by cycle.
func demoConfigs() []block.Config {
	return []block.Config{
		{
			Width: 28, Height: 28,
			InChannels: 4, ExpandChannels: 8, OutChannels: 4,
			Kernel: 3, Stride: 1, Pad: 1,
			Activation: layers.ActReLU,
		},
		{
			Width: 28, Height: 28,
			InChannels: 4, ExpandChannels: 8, OutChannels: 8,
			Kernel: 3, Stride: 2, Pad: 1,
			Activation: layers.ActHardSwish,
			SEEnable:   true,
		},
	}
}

// Game implements ebiten.Game: it clocks a demo chain a few cycles per
// display frame and paints the input and output planes as they fill.
type Game struct {
	chain    *block.Chain
	inShape  stream.Shape
	outShape stream.Shape

	// Producer side: the frame being fed, one sample per clock with pad
	// idles between channel groups.
	frame   []stream.Sample
	feedPos int
	padLeft int
	pad     int
	seed    int64

	// Display planes, filled as samples enter and leave.
	inPlanes  [][]fixed.Q88
	outPlanes [][]fixed.Q88
	outCursor []int

	inView  *Renderer
	outView *Renderer

	paused   bool
	speed    int // clocks per display frame
	started  time.Time
	recorded bool

	storage *storage.Storage
	stats   *storage.RunStats
}

// NewGame builds the viewer and its demo chain.
func NewGame() *Game {
	cfgs := demoConfigs()
	chain, err := block.NewChain(cfgs)
	if err != nil {
		log.Fatalf("demo chain: %v", err)
	}
	params := make([]*weights.BlockParams, len(cfgs))
	for i, cfg := range cfgs {
		params[i] = randomBlockParams(cfg.Dims(), int64(i)+1)
	}
	if err := chain.LoadParams(params); err != nil {
		log.Fatalf("demo weights: %v", err)
	}

	pad := 0
	for _, b := range chain.Blocks() {
		if p := block.SafePad(b.Config()); p > pad {
			pad = p
		}
	}

	g := &Game{
		chain:    chain,
		inShape:  cfgs[0].InShape(),
		outShape: chain.OutShape(),
		pad:      pad,
		seed:     pattern.Seed,
		speed:    64,
		inView:   NewRenderer(),
		outView:  NewRenderer(),
	}

	g.storage, err = storage.NewStorage()
	if err != nil {
		log.Printf("Warning: Failed to initialize storage: %v", err)
	} else if g.stats, err = g.storage.LoadStats(); err != nil {
		log.Printf("Warning: Failed to load stats: %v", err)
	}

	g.restart()
	return g
}

// randomBlockParams fills every bank with small random weights so the demo
// planes show structure instead of a fixed point.
func randomBlockParams(d weights.Dims, seed int64) *weights.BlockParams {
	rng := rand.New(rand.NewSource(seed))
	p := weights.NewBlockParams(d)
	for _, cat := range d.Categories() {
		bank := p.Banks[cat]
		for i := range bank {
			bank[i] = fixed.FromFloat(rng.NormFloat64() * 0.3)
		}
	}
	// Identity batchnorm keeps the dynamic range watchable.
	copy(p.Banks[weights.CatBNExpand], weights.IdentityBatchNorm(d.Expand))
	copy(p.Banks[weights.CatBNDepthwise], weights.IdentityBatchNorm(d.Expand))
	copy(p.Banks[weights.CatBNProject], weights.IdentityBatchNorm(d.Out))
	return p
}

// restart resets the chain and begins a new frame from the pattern source.
func (g *Game) restart() {
	g.chain.Reset()
	g.chain.Enable()
	g.frame = pattern.FrameSeeded(g.inShape, g.seed)
	g.feedPos = 0
	g.padLeft = 0
	g.recorded = false
	g.started = time.Now()

	g.inPlanes = make([][]fixed.Q88, g.inShape.Channels)
	for c := range g.inPlanes {
		g.inPlanes[c] = make([]fixed.Q88, 0, g.inShape.Width*g.inShape.Height)
	}
	g.outPlanes = make([][]fixed.Q88, g.outShape.Channels)
	g.outCursor = make([]int, g.outShape.Channels)
	for c := range g.outPlanes {
		g.outPlanes[c] = make([]fixed.Q88, g.outShape.Width*g.outShape.Height)
	}
}

// Update advances the pipeline clock.
func (g *Game) Update() error {
	g.handleInput()
	if g.paused || g.chain.Done() {
		if g.chain.Done() && !g.recorded {
			g.record()
		}
		return nil
	}
	for i := 0; i < g.speed && !g.chain.Done(); i++ {
		g.clock()
	}
	return nil
}

// clock runs one cycle: feed the next sample (or a pad idle) and collect
// whatever falls out of the chain.
func (g *Game) clock() {
	var in []stream.Sample
	if g.padLeft > 0 {
		g.padLeft--
	} else if g.feedPos < len(g.frame) {
		s := g.frame[g.feedPos]
		in = []stream.Sample{s}
		g.inPlanes[s.Channel] = append(g.inPlanes[s.Channel], s.Value)
		g.feedPos++
		if g.feedPos%g.inShape.Channels == 0 {
			g.padLeft = g.pad
		}
	}
	for _, s := range g.chain.Tick(in) {
		c := stream.ClampChannel(s.Channel, g.outShape.Channels)
		if g.outCursor[c] < len(g.outPlanes[c]) {
			g.outPlanes[c][g.outCursor[c]] = s.Value
			g.outCursor[c]++
		}
	}
}

// record folds the finished frame into the persistent statistics.
func (g *Game) record() {
	g.recorded = true
	if g.storage == nil {
		return
	}
	result := storage.RunResult{
		Frames:   1,
		Cycles:   g.chain.Cycles(),
		Dropped:  uint64(g.chain.Dropped()),
		Duration: time.Since(g.started),
	}
	if g.chain.Forced() {
		result.Forced = 1
	}
	if err := g.storage.RecordRun(result); err != nil {
		log.Printf("Warning: Failed to record run: %v", err)
		return
	}
	if stats, err := g.storage.LoadStats(); err == nil {
		g.stats = stats
	}
}

// Draw paints both plane grids and the status line.
func (g *Game) Draw(screen *ebiten.Image) {
	theme := g.inView.Theme()
	screen.Fill(theme.Background)

	g.inView.DrawTitle(screen, "Input", marginX, 20)
	g.inView.DrawPlanes(screen, g.inShape, g.inPlanes, marginX, 48, tileSize, tileGap)

	g.outView.DrawTitle(screen, "Output", marginX, 180)
	g.outView.DrawPlanes(screen, g.outShape, g.outPlanes, marginX, 208, tileSize, tileGap)

	g.drawStatus(screen)
}

func (g *Game) drawStatus(screen *ebiten.Image) {
	theme := g.inView.Theme()

	state := fmt.Sprintf("state %v   cycle %d   fed %d/%d   clocks/frame %d",
		g.chain.State(), g.chain.Cycles(), g.feedPos, len(g.frame), g.speed)
	g.inView.DrawLabel(screen, state, marginX, ScreenHeight-110, theme.TextColor)

	if g.chain.Done() {
		c := theme.DoneColor
		msg := "frame complete"
		if g.chain.Forced() {
			c = theme.ForcedColor
			msg = fmt.Sprintf("frame forced (dropped %d)", g.chain.Dropped())
		}
		g.inView.DrawLabel(screen, msg, marginX, ScreenHeight-88, c)
	} else if g.paused {
		g.inView.DrawLabel(screen, "paused", marginX, ScreenHeight-88, theme.ForcedColor)
	}

	if g.stats != nil && g.stats.FramesProcessed > 0 {
		hist := fmt.Sprintf("history: %d frames, %.0f cycles/frame, %d forced, %d dropped",
			g.stats.FramesProcessed, g.stats.CyclesPerFrame(),
			g.stats.ForcedFrames, g.stats.DroppedSamples)
		g.inView.DrawLabel(screen, hist, marginX, ScreenHeight-66, theme.TextColor)
	}

	g.inView.DrawLabel(screen,
		"space pause   n next frame   up/down clock rate",
		marginX, ScreenHeight-36, theme.TileBorder)
}

// Layout implements ebiten.Game.
func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return ScreenWidth, ScreenHeight
}

// Close releases the persistent store.
func (g *Game) Close() {
	if g.storage != nil {
		if err := g.storage.Close(); err != nil {
			log.Printf("Warning: Failed to close storage: %v", err)
		}
	}
}
