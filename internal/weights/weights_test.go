package weights

import (
	"bytes"
	"encoding/binary"
	"math/rand"
	"path/filepath"
	"strings"
	"testing"

	"github.com/elsadiq7/chestnet/internal/fixed"
)

func testDims() Dims {
	return Dims{In: 2, Expand: 4, Out: 2, Kernel: 3, SEReduced: 1}
}

func randomParams(d Dims, seed int64) *BlockParams {
	rng := rand.New(rand.NewSource(seed))
	p := NewBlockParams(d)
	for _, cat := range d.Categories() {
		bank := p.Banks[cat]
		for i := range bank {
			bank[i] = fixed.Q88(rng.Intn(1 << 16) - 1<<15)
		}
	}
	return p
}

func sameParams(a, b *BlockParams) bool {
	if a.Dims != b.Dims {
		return false
	}
	for cat, bank := range a.Banks {
		other := b.Banks[cat]
		if len(bank) != len(other) {
			return false
		}
		for i := range bank {
			if bank[i] != other[i] {
				return false
			}
		}
	}
	return true
}

func TestDimsCount(t *testing.T) {
	d := testDims()
	tests := []struct {
		cat  Category
		want int
	}{
		{CatExpand, 8},       // 4x2
		{CatDepthwise, 36},   // 4 channels x 3x3
		{CatProject, 8},      // 2x4
		{CatBNExpand, 8},     // 2x4 scale+shift
		{CatBNDepthwise, 8},  // 2x4
		{CatBNProject, 4},    // 2x2
		{CatSEReduce, 4},     // 1x4
		{CatSEExpand, 4},     // 4x1
	}
	for _, tt := range tests {
		if got := d.Count(tt.cat); got != tt.want {
			t.Errorf("Count(%v) = %d, want %d", tt.cat, got, tt.want)
		}
	}
	if got := len(d.Categories()); got != 8 {
		t.Errorf("Categories() has %d entries, want 8", got)
	}
	d.SEReduced = 0
	if got := len(d.Categories()); got != 6 {
		t.Errorf("Categories() without SE has %d entries, want 6", got)
	}
}

func TestFileRoundTrip(t *testing.T) {
	d := testDims()
	p := randomParams(d, 1)
	path := filepath.Join(t.TempDir(), "block.cxb")
	if err := p.Save(path); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path, d)
	if err != nil {
		t.Fatal(err)
	}
	if !sameParams(p, got) {
		t.Error("loaded parameters differ from saved")
	}
}

func TestReadRejectsBadHeader(t *testing.T) {
	d := testDims()
	good := func() *bytes.Buffer {
		var buf bytes.Buffer
		if err := randomParams(d, 2).Write(&buf); err != nil {
			t.Fatal(err)
		}
		return &buf
	}

	t.Run("bad magic", func(t *testing.T) {
		buf := good()
		b := buf.Bytes()
		binary.LittleEndian.PutUint32(b[0:], 0xdeadbeef)
		if _, err := Read(bytes.NewReader(b), d); err == nil ||
			!strings.Contains(err.Error(), "magic") {
			t.Errorf("want magic error, got %v", err)
		}
	})
	t.Run("bad version", func(t *testing.T) {
		buf := good()
		b := buf.Bytes()
		binary.LittleEndian.PutUint32(b[4:], 99)
		if _, err := Read(bytes.NewReader(b), d); err == nil ||
			!strings.Contains(err.Error(), "version") {
			t.Errorf("want version error, got %v", err)
		}
	})
	t.Run("dimension mismatch", func(t *testing.T) {
		buf := good()
		wrong := d
		wrong.Expand = 8
		if _, err := Read(buf, wrong); err == nil ||
			!strings.Contains(err.Error(), "dimension") {
			t.Errorf("want dimension error, got %v", err)
		}
	})
	t.Run("truncated banks", func(t *testing.T) {
		buf := good()
		b := buf.Bytes()
		if _, err := Read(bytes.NewReader(b[:len(b)-10]), d); err == nil {
			t.Error("want read error on truncated file")
		}
	})
}

func TestMemRoundTrip(t *testing.T) {
	values := []fixed.Q88{0, fixed.One, -fixed.One, fixed.Max, fixed.Min, 0x0080}
	var buf bytes.Buffer
	if err := WriteMem(&buf, values, "test bank"); err != nil {
		t.Fatal(err)
	}
	got, err := ReadMem(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(values) {
		t.Fatalf("got %d values, want %d", len(got), len(values))
	}
	for i := range values {
		if got[i] != values[i] {
			t.Errorf("value %d: got %#04x, want %#04x", i, uint16(got[i]), uint16(values[i]))
		}
	}
}

func TestReadMemCommentsAndErrors(t *testing.T) {
	src := strings.Join([]string{
		"// header comment",
		"",
		"0100",
		"ff00 // trailing comment",
		"0080",
	}, "\n")
	got, err := ReadMem(strings.NewReader(src))
	if err != nil {
		t.Fatal(err)
	}
	want := []fixed.Q88{fixed.One, -fixed.One, 0x0080}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("value %d: got %#04x, want %#04x", i, uint16(got[i]), uint16(want[i]))
		}
	}

	if _, err := ReadMem(strings.NewReader("zzzz\n")); err == nil {
		t.Error("want parse error for non-hex line")
	}
	if _, err := ReadMem(strings.NewReader("12345\n")); err == nil {
		t.Error("want parse error for oversized word")
	}
}

func TestMemDirRoundTrip(t *testing.T) {
	d := testDims()
	p := randomParams(d, 3)
	dir := t.TempDir()
	if err := p.SaveMemDir(dir); err != nil {
		t.Fatal(err)
	}
	got, err := LoadMemDir(dir, d)
	if err != nil {
		t.Fatal(err)
	}
	if !sameParams(p, got) {
		t.Error("loaded .mem banks differ from saved")
	}

	// A count mismatch is detected per bank.
	small := d
	small.Kernel = 5
	if _, err := LoadMemDir(dir, small); err == nil {
		t.Error("want count mismatch error")
	}
}

func TestFillAgainstMemLoader(t *testing.T) {
	l := NewMemLoader()
	bank := []fixed.Q88{1, 2, 3, 4}
	l.SetBank(CatExpand, bank)

	dst := make([]fixed.Q88, 4)
	if err := Fill(l, CatExpand, dst); err != nil {
		t.Fatal(err)
	}
	for i := range bank {
		if dst[i] != bank[i] {
			t.Errorf("dst[%d] = %d, want %d", i, dst[i], bank[i])
		}
	}

	if err := Fill(l, CatProject, dst); err == nil {
		t.Error("want error for missing bank")
	}
	if err := Fill(l, CatExpand, make([]fixed.Q88, 5)); err == nil {
		t.Error("want error for count mismatch")
	}
}

// stutterLoader serves valid data only every third cycle, modeling a weight
// memory with wait states.
type stutterLoader struct {
	inner *MemLoader
	calls int
}

func (s *stutterLoader) Request(cat Category, count int) error {
	return s.inner.Request(cat, count)
}

func (s *stutterLoader) Next() (fixed.Q88, bool) {
	s.calls++
	if s.calls%3 != 0 {
		return 0, false
	}
	return s.inner.Next()
}

func TestFillToleratesWaitStates(t *testing.T) {
	inner := NewMemLoader()
	bank := []fixed.Q88{10, 20, 30}
	inner.SetBank(CatDepthwise, bank)

	dst := make([]fixed.Q88, 3)
	if err := Fill(&stutterLoader{inner: inner}, CatDepthwise, dst); err != nil {
		t.Fatal(err)
	}
	for i := range bank {
		if dst[i] != bank[i] {
			t.Errorf("dst[%d] = %d, want %d", i, dst[i], bank[i])
		}
	}
}

// deadLoader accepts requests but never produces a valid value.
type deadLoader struct{}

func (deadLoader) Request(Category, int) error { return nil }
func (deadLoader) Next() (fixed.Q88, bool)     { return 0, false }

func TestFillDetectsWedgedLoader(t *testing.T) {
	if err := Fill(deadLoader{}, CatExpand, make([]fixed.Q88, 1)); err == nil {
		t.Error("want stall error from a loader that never validates")
	}
}

func TestIdentityHelpers(t *testing.T) {
	m := IdentityMatrix(2, 3)
	if m[0] != fixed.One || m[4] != fixed.One {
		t.Errorf("diagonal not set: %v", m)
	}
	if m[1] != 0 || m[3] != 0 {
		t.Errorf("off-diagonal not zero: %v", m)
	}

	k := DeltaKernels(2, 3)
	for c := 0; c < 2; c++ {
		for i := 0; i < 9; i++ {
			want := fixed.Q88(0)
			if i == 4 {
				want = fixed.One
			}
			if k[c*9+i] != want {
				t.Errorf("channel %d tap %d = %d, want %d", c, i, k[c*9+i], want)
			}
		}
	}

	bn := IdentityBatchNorm(3)
	for c := 0; c < 3; c++ {
		if bn[c] != fixed.One || bn[3+c] != 0 {
			t.Errorf("channel %d scale/shift = %d/%d", c, bn[c], bn[3+c])
		}
	}
}
