package main

import (
	"flag"
	"fmt"
	"image"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"runtime/pprof"
	"time"

	_ "image/jpeg"
	_ "image/png"

	xdraw "golang.org/x/image/draw"

	"github.com/elsadiq7/chestnet/internal/block"
	"github.com/elsadiq7/chestnet/internal/fixed"
	"github.com/elsadiq7/chestnet/internal/layers"
	"github.com/elsadiq7/chestnet/internal/pattern"
	"github.com/elsadiq7/chestnet/internal/storage"
	"github.com/elsadiq7/chestnet/internal/stream"
	"github.com/elsadiq7/chestnet/internal/weights"
)

var (
	cpuprofile = flag.String("cpuprofile", "", "write cpu profile to file")
	imagePath  = flag.String("image", "", "chest X-ray image (PNG or JPEG); test pattern if empty")
	weightsDir = flag.String("weights", "", "directory holding blockN.cxb or blockN/ .mem banks")
	statsOnly  = flag.Bool("stats", false, "print cumulative statistics and exit")
	maxCycles  = flag.Int("max-cycles", 0, "hard cycle cap per frame (0 = derived)")
)

// netConfigs is the bottleneck stack the CLI runs: an entry residual block
// and a downsampling squeeze-excite block.
func netConfigs() []block.Config {
	return []block.Config{
		{
			Width: 28, Height: 28,
			InChannels: 4, ExpandChannels: 16, OutChannels: 4,
			Kernel: 3, Stride: 1, Pad: 1,
			Activation: layers.ActReLU,
		},
		{
			Width: 28, Height: 28,
			InChannels: 4, ExpandChannels: 16, OutChannels: 8,
			Kernel: 3, Stride: 2, Pad: 1,
			Activation: layers.ActHardSwish,
			SEEnable:   true,
		},
	}
}

func main() {
	flag.Parse()

	// Start CPU profiling if requested (via flag or environment variable)
	profilePath := *cpuprofile
	if profilePath == "" {
		profilePath = os.Getenv("CPUPROFILE")
	}
	if profilePath != "" {
		f, err := os.Create(profilePath)
		if err != nil {
			log.Fatal("could not create CPU profile: ", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal("could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
		log.Printf("CPU profiling enabled, writing to %s", profilePath)
	}

	store, err := storage.NewStorage()
	if err != nil {
		log.Printf("Warning: Failed to open storage: %v (stats will not persist)", err)
	} else {
		defer store.Close()
	}

	if *statsOnly {
		printStats(store)
		return
	}

	cfgs := netConfigs()
	chain, err := block.NewChain(cfgs)
	if err != nil {
		log.Fatalf("build chain: %v", err)
	}
	if err := chain.LoadParams(loadAllParams(cfgs, store)); err != nil {
		log.Fatalf("load weights: %v", err)
	}

	inShape := cfgs[0].InShape()
	frame, err := inputFrame(inShape)
	if err != nil {
		log.Fatalf("input: %v", err)
	}

	start := time.Now()
	runner := block.Runner{MaxCycles: *maxCycles}
	res, err := runner.RunChain(chain, frame)
	if err != nil {
		log.Fatalf("run: %v", err)
	}
	elapsed := time.Since(start)

	out := chain.OutShape()
	fmt.Printf("frame %dx%dx%d -> %dx%dx%d\n",
		inShape.Width, inShape.Height, inShape.Channels,
		out.Width, out.Height, out.Channels)
	fmt.Printf("cycles %d, outputs %d/%d, dropped %d, forced %v, wall %v\n",
		res.Cycles, len(res.Outputs), out.Samples(), res.Dropped, res.Forced, elapsed)
	printSummary(out, res.Outputs)

	if store != nil {
		result := storage.RunResult{
			Frames:   1,
			Cycles:   res.Cycles,
			Dropped:  uint64(res.Dropped),
			Duration: elapsed,
		}
		if res.Forced {
			result.Forced = 1
		}
		if err := store.RecordRun(result); err != nil {
			log.Printf("Warning: Failed to record run: %v", err)
		}
	}
}

// inputFrame loads and preprocesses the X-ray image, or falls back to the
// deterministic test pattern.
func inputFrame(shape stream.Shape) ([]stream.Sample, error) {
	if *imagePath == "" {
		log.Printf("no image given, using the built-in test pattern")
		return pattern.Frame(shape), nil
	}
	f, err := os.Open(*imagePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", *imagePath, err)
	}

	// Resize to the network's spatial extent, then map luma into Q8.8
	// centered on zero: [0, 255] -> [-1.0, 1.0). Every input channel sees
	// the same grayscale plane.
	small := image.NewGray(image.Rect(0, 0, shape.Width, shape.Height))
	xdraw.CatmullRom.Scale(small, small.Bounds(), img, img.Bounds(), xdraw.Src, nil)

	return stream.BuildFrame(shape, func(x, y, c int) fixed.Q88 {
		luma := small.GrayAt(x, y).Y
		return fixed.Q88((int(luma) - 128) * 2)
	}), nil
}

// loadAllParams resolves one parameter set per block: the badger cache
// first, then blockN.cxb, then a blockN/ directory of .mem banks, finally
// seeded random weights (cached for the next run).
func loadAllParams(cfgs []block.Config, store *storage.Storage) []*weights.BlockParams {
	params := make([]*weights.BlockParams, len(cfgs))
	for i, cfg := range cfgs {
		params[i] = loadBlockParams(i, cfg.Dims(), store)
	}
	return params
}

func loadBlockParams(i int, d weights.Dims, store *storage.Storage) *weights.BlockParams {
	name := fmt.Sprintf("block%d", i)

	if store != nil {
		if p, found, err := store.GetWeightSet(name, d); err != nil {
			log.Printf("Warning: weight cache read for %s: %v", name, err)
		} else if found {
			log.Printf("%s: weights from cache", name)
			return p
		}
	}

	if dir := *weightsDir; dir != "" {
		binPath := filepath.Join(dir, name+".cxb")
		if fileExists(binPath) {
			p, err := weights.Load(binPath, d)
			if err != nil {
				log.Fatalf("%s: %v", binPath, err)
			}
			log.Printf("%s: weights from %s", name, binPath)
			cacheParams(store, name, p)
			return p
		}
		memDir := filepath.Join(dir, name)
		if fileExists(memDir) {
			p, err := weights.LoadMemDir(memDir, d)
			if err != nil {
				log.Fatalf("%s: %v", memDir, err)
			}
			log.Printf("%s: weights from %s", name, memDir)
			cacheParams(store, name, p)
			return p
		}
		log.Printf("Warning: no weights for %s under %s, using random", name, dir)
	}

	p := randomParams(d, int64(i)+1)
	cacheParams(store, name, p)
	return p
}

func cacheParams(store *storage.Storage, name string, p *weights.BlockParams) {
	if store == nil {
		return
	}
	if err := store.PutWeightSet(name, p); err != nil {
		log.Printf("Warning: weight cache write for %s: %v", name, err)
	}
}

// randomParams builds a seeded random parameter set with identity batchnorm,
// enough to exercise the full pipeline without a trained model.
func randomParams(d weights.Dims, seed int64) *weights.BlockParams {
	rng := rand.New(rand.NewSource(seed))
	p := weights.NewBlockParams(d)
	for _, cat := range d.Categories() {
		bank := p.Banks[cat]
		for i := range bank {
			bank[i] = fixed.FromFloat(rng.NormFloat64() * 0.3)
		}
	}
	copy(p.Banks[weights.CatBNExpand], weights.IdentityBatchNorm(d.Expand))
	copy(p.Banks[weights.CatBNDepthwise], weights.IdentityBatchNorm(d.Expand))
	copy(p.Banks[weights.CatBNProject], weights.IdentityBatchNorm(d.Out))
	return p
}

// printSummary reports per-channel output statistics.
func printSummary(shape stream.Shape, outputs []stream.Sample) {
	planes := stream.Planes(shape, outputs)
	for c, plane := range planes {
		var sum float64
		min, max := fixed.Max, fixed.Min
		for _, v := range plane {
			sum += v.Float()
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}
		n := len(plane)
		if n == 0 {
			n = 1
		}
		fmt.Printf("  channel %2d: mean %+.4f  min %+.4f  max %+.4f\n",
			c, sum/float64(n), min.Float(), max.Float())
	}
}

func printStats(store *storage.Storage) {
	if store == nil {
		log.Fatal("statistics unavailable without storage")
	}
	stats, err := store.LoadStats()
	if err != nil {
		log.Fatalf("load stats: %v", err)
	}
	if stats.FramesProcessed == 0 {
		fmt.Println("no frames recorded yet")
		return
	}
	fmt.Printf("frames processed: %d\n", stats.FramesProcessed)
	fmt.Printf("mean cycles/frame: %.1f\n", stats.CyclesPerFrame())
	fmt.Printf("forced frames: %d\n", stats.ForcedFrames)
	fmt.Printf("dropped samples: %d\n", stats.DroppedSamples)
	fmt.Printf("total run time: %v\n", stats.TotalRunTime)
	fmt.Printf("last run: %v\n", stats.LastRun.Format(time.RFC3339))
}

// fileExists checks if a path exists.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
