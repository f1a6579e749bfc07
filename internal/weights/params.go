package weights

import "github.com/elsadiq7/chestnet/internal/fixed"

// Dims fixes the parameter bank sizes for one block. SEReduced is zero when
// squeeze-excite is absent.
type Dims struct {
	In        int
	Expand    int
	Out       int
	Kernel    int
	SEReduced int
}

// Count returns how many Q8.8 values the given category holds under d.
func (d Dims) Count(cat Category) int {
	switch cat {
	case CatExpand:
		return d.Expand * d.In
	case CatDepthwise:
		return d.Expand * d.Kernel * d.Kernel
	case CatProject:
		return d.Out * d.Expand
	case CatBNExpand, CatBNDepthwise:
		return 2 * d.Expand
	case CatBNProject:
		return 2 * d.Out
	case CatSEReduce, CatSEExpand:
		return d.SEReduced * d.Expand
	}
	return 0
}

// Categories lists the categories present under d, in file order.
func (d Dims) Categories() []Category {
	cats := []Category{
		CatExpand, CatDepthwise, CatProject,
		CatBNExpand, CatBNDepthwise, CatBNProject,
	}
	if d.SEReduced > 0 {
		cats = append(cats, CatSEReduce, CatSEExpand)
	}
	return cats
}

// BlockParams holds every parameter bank of one block, keyed by category.
type BlockParams struct {
	Dims  Dims
	Banks map[Category][]fixed.Q88
}

// NewBlockParams allocates zeroed banks for every category present under d.
func NewBlockParams(d Dims) *BlockParams {
	p := &BlockParams{Dims: d, Banks: make(map[Category][]fixed.Q88)}
	for _, cat := range d.Categories() {
		p.Banks[cat] = make([]fixed.Q88, d.Count(cat))
	}
	return p
}

// Loader wraps the banks in a MemLoader serving one value per cycle.
func (p *BlockParams) Loader() *MemLoader {
	l := NewMemLoader()
	for cat, bank := range p.Banks {
		l.SetBank(cat, bank)
	}
	return l
}

// Identity fills every bank so the block computes the identity transform:
// 1x1 convolutions become identity matrices, the depthwise kernel keeps
// only a 1.0 center tap, and batchnorm gets scale=1.0, shift=0.
func (p *BlockParams) Identity() *BlockParams {
	d := p.Dims
	copy(p.Banks[CatExpand], IdentityMatrix(d.Expand, d.In))
	copy(p.Banks[CatDepthwise], DeltaKernels(d.Expand, d.Kernel))
	copy(p.Banks[CatProject], IdentityMatrix(d.Out, d.Expand))
	copy(p.Banks[CatBNExpand], IdentityBatchNorm(d.Expand))
	copy(p.Banks[CatBNDepthwise], IdentityBatchNorm(d.Expand))
	copy(p.Banks[CatBNProject], IdentityBatchNorm(d.Out))
	return p
}

// IdentityMatrix returns a rows x cols weight matrix with 1.0 on the
// diagonal, row-major.
func IdentityMatrix(rows, cols int) []fixed.Q88 {
	w := make([]fixed.Q88, rows*cols)
	n := rows
	if cols < n {
		n = cols
	}
	for i := 0; i < n; i++ {
		w[i*cols+i] = fixed.One
	}
	return w
}

// DeltaKernels returns per-channel KxK kernels with only the center tap set
// to 1.0, so a stride-1 depthwise convolution reproduces its input away
// from the padded border.
func DeltaKernels(channels, kernel int) []fixed.Q88 {
	w := make([]fixed.Q88, channels*kernel*kernel)
	center := (kernel/2)*kernel + kernel/2
	for c := 0; c < channels; c++ {
		w[c*kernel*kernel+center] = fixed.One
	}
	return w
}

// IdentityBatchNorm returns scale=1.0, shift=0 for every channel, laid out
// scales first then shifts.
func IdentityBatchNorm(channels int) []fixed.Q88 {
	w := make([]fixed.Q88, 2*channels)
	for c := 0; c < channels; c++ {
		w[c] = fixed.One
	}
	return w
}
