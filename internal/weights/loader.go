// Package weights defines the parameter categories a bottleneck block
// consumes, the loader handshake that delivers them one value per cycle,
// and the file formats they are stored in. Parameters are written once,
// before the first activation, and are read-only afterwards.
package weights

import (
	"fmt"

	"github.com/elsadiq7/chestnet/internal/fixed"
)

// Category identifies one parameter block of a bottleneck block.
type Category int

const (
	CatExpand      Category = iota // expand 1x1 weights, out-channel major
	CatDepthwise                   // per-channel KxK kernels
	CatProject                     // project 1x1 weights, out-channel major
	CatBNExpand                    // batchnorm after expand: scales, then shifts
	CatBNDepthwise                 // batchnorm after depthwise: scales, then shifts
	CatBNProject                   // batchnorm after project: scales, then shifts
	CatSEReduce                    // squeeze-excite reduction weights
	CatSEExpand                    // squeeze-excite expansion weights
)

var categoryNames = map[Category]string{
	CatExpand:      "expand",
	CatDepthwise:   "depthwise",
	CatProject:     "project",
	CatBNExpand:    "bn_expand",
	CatBNDepthwise: "bn_depthwise",
	CatBNProject:   "bn_project",
	CatSEReduce:    "se_reduce",
	CatSEExpand:    "se_expand",
}

func (c Category) String() string {
	if n, ok := categoryNames[c]; ok {
		return n
	}
	return fmt.Sprintf("category(%d)", int(c))
}

// Loader is the weight-memory collaborator. A consumer requests one
// category at a time, then calls Next once per cycle; valid=false models a
// wait state on the memory side, not an error.
type Loader interface {
	Request(cat Category, count int) error
	Next() (value fixed.Q88, valid bool)
}

// stallBudget bounds how many consecutive invalid cycles Fill tolerates
// before declaring the loader wedged.
const stallBudget = 4096

// Fill requests cat and pulls exactly len(dst) values from the loader.
func Fill(l Loader, cat Category, dst []fixed.Q88) error {
	if err := l.Request(cat, len(dst)); err != nil {
		return fmt.Errorf("request %v: %w", cat, err)
	}
	stalls := 0
	for i := 0; i < len(dst); {
		v, ok := l.Next()
		if !ok {
			stalls++
			if stalls > stallBudget {
				return fmt.Errorf("load %v: loader stalled after %d of %d values", cat, i, len(dst))
			}
			continue
		}
		stalls = 0
		dst[i] = v
		i++
	}
	return nil
}

// MemLoader serves categories from in-memory banks, one value per cycle.
type MemLoader struct {
	banks map[Category][]fixed.Q88
	cur   []fixed.Q88
	pos   int
}

// NewMemLoader creates an empty loader; banks are added with SetBank.
func NewMemLoader() *MemLoader {
	return &MemLoader{banks: make(map[Category][]fixed.Q88)}
}

// SetBank installs the values served for one category.
func (m *MemLoader) SetBank(cat Category, values []fixed.Q88) {
	m.banks[cat] = values
}

// Request selects the category to stream next.
func (m *MemLoader) Request(cat Category, count int) error {
	bank, ok := m.banks[cat]
	if !ok {
		return fmt.Errorf("no %v bank loaded", cat)
	}
	if len(bank) != count {
		return fmt.Errorf("%v bank holds %d values, consumer wants %d", cat, len(bank), count)
	}
	m.cur = bank
	m.pos = 0
	return nil
}

// Next returns the next value of the requested category.
func (m *MemLoader) Next() (fixed.Q88, bool) {
	if m.pos >= len(m.cur) {
		return 0, false
	}
	v := m.cur[m.pos]
	m.pos++
	return v, true
}
