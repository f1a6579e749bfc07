package weights

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/elsadiq7/chestnet/internal/fixed"
)

// The .mem format carries one 16-bit hex word per line with // comment
// lines, the layout the original accelerator's memory images use.

// ReadMem parses a .mem hex stream into Q8.8 values.
func ReadMem(r io.Reader) ([]fixed.Q88, error) {
	var values []fixed.Q88
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "//") {
			continue
		}
		// Allow trailing comments after the word.
		if i := strings.Index(text, "//"); i >= 0 {
			text = strings.TrimSpace(text[:i])
		}
		word, err := strconv.ParseUint(text, 16, 16)
		if err != nil {
			return nil, fmt.Errorf("mem line %d: %q: %w", line, text, err)
		}
		values = append(values, fixed.Q88(int16(uint16(word))))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("mem scan: %w", err)
	}
	return values, nil
}

// WriteMem writes Q8.8 values as a .mem hex file with a descriptive header.
func WriteMem(w io.Writer, values []fixed.Q88, description string) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "// %s\n", description)
	fmt.Fprintf(bw, "// Format: 16-bit signed fixed-point (Q8.8)\n")
	fmt.Fprintf(bw, "// Total entries: %d\n", len(values))
	fmt.Fprintf(bw, "//\n")
	for _, v := range values {
		fmt.Fprintf(bw, "%04x\n", uint16(v))
	}
	return bw.Flush()
}

// LoadMemDir reads one .mem file per category from dir, using the category
// name as the file name (expand.mem, depthwise.mem, ...), and validates the
// value counts against d.
func LoadMemDir(dir string, d Dims) (*BlockParams, error) {
	p := NewBlockParams(d)
	for _, cat := range d.Categories() {
		path := filepath.Join(dir, cat.String()+".mem")
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %v bank: %w", cat, err)
		}
		values, err := ReadMem(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		want := d.Count(cat)
		if len(values) != want {
			return nil, fmt.Errorf("%s: expected %d values, got %d", path, want, len(values))
		}
		copy(p.Banks[cat], values)
	}
	return p, nil
}

// SaveMemDir writes one .mem file per category into dir.
func (p *BlockParams) SaveMemDir(dir string) error {
	for _, cat := range p.Dims.Categories() {
		path := filepath.Join(dir, cat.String()+".mem")
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create %v bank: %w", cat, err)
		}
		err = WriteMem(f, p.Banks[cat], fmt.Sprintf("%v parameter bank", cat))
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	return nil
}
