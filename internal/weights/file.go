package weights

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// Binary weight file format constants
const (
	MagicNumber = 0x31425843 // "CXB1" - chest x-ray block weights, version 1
	Version     = 1
)

// FileHeader is the header of a block weight file.
type FileHeader struct {
	Magic     uint32
	Version   uint32
	In        uint32
	Expand    uint32
	Out       uint32
	Kernel    uint32
	SEReduced uint32
}

// Load reads block parameters from a binary weight file.
// File format:
//   - Header: Magic, Version, In, Expand, Out, Kernel, SEReduced (uint32 each)
//   - One int16 bank per category in Dims.Categories() order, little-endian
func Load(filename string, d Dims) (*BlockParams, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open weights file: %w", err)
	}
	defer f.Close()
	return Read(f, d)
}

// Read reads block parameters from a stream, validating the header against
// the expected dimensions.
func Read(r io.Reader, d Dims) (*BlockParams, error) {
	var header FileHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	if header.Magic != MagicNumber {
		return nil, fmt.Errorf("invalid magic number: expected %x, got %x", MagicNumber, header.Magic)
	}
	if header.Version != Version {
		return nil, fmt.Errorf("unsupported version: expected %d, got %d", Version, header.Version)
	}
	got := Dims{
		In:        int(header.In),
		Expand:    int(header.Expand),
		Out:       int(header.Out),
		Kernel:    int(header.Kernel),
		SEReduced: int(header.SEReduced),
	}
	if got != d {
		return nil, fmt.Errorf("dimension mismatch: expected %+v, got %+v", d, got)
	}

	p := NewBlockParams(d)
	for _, cat := range d.Categories() {
		if err := binary.Read(r, binary.LittleEndian, p.Banks[cat]); err != nil {
			return nil, fmt.Errorf("failed to read %v bank: %w", cat, err)
		}
	}
	return p, nil
}

// Write serializes block parameters in the binary file format.
func (p *BlockParams) Write(w io.Writer) error {
	header := FileHeader{
		Magic:     MagicNumber,
		Version:   Version,
		In:        uint32(p.Dims.In),
		Expand:    uint32(p.Dims.Expand),
		Out:       uint32(p.Dims.Out),
		Kernel:    uint32(p.Dims.Kernel),
		SEReduced: uint32(p.Dims.SEReduced),
	}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, cat := range p.Dims.Categories() {
		if err := binary.Write(w, binary.LittleEndian, p.Banks[cat]); err != nil {
			return fmt.Errorf("failed to write %v bank: %w", cat, err)
		}
	}
	return nil
}

// Save writes block parameters to a binary weight file.
func (p *BlockParams) Save(filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create weights file: %w", err)
	}
	defer f.Close()
	return p.Write(f)
}
