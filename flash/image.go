// Package flash loads firmware images and programs them into an ECU over
// the diagnostic client's segmented transfer services.
package flash

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/marcinbor85/gohex"
)

// Segment is one contiguous run of firmware bytes at an absolute address.
type Segment struct {
	Address uint32
	Data    []byte
}

// Image is a firmware image as a list of segments sorted by address.
type Image struct {
	Segments []Segment
}

// TotalBytes sums the payload across all segments.
func (img *Image) TotalBytes() int {
	n := 0
	for _, s := range img.Segments {
		n += len(s.Data)
	}
	return n
}

// LoadIntelHex parses an Intel HEX stream into an image.
func LoadIntelHex(r io.Reader) (*Image, error) {
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(r); err != nil {
		return nil, fmt.Errorf("parse intel hex: %w", err)
	}
	img := &Image{}
	for _, seg := range mem.GetDataSegments() {
		img.Segments = append(img.Segments, Segment{
			Address: seg.Address,
			Data:    append([]byte(nil), seg.Data...),
		})
	}
	sort.Slice(img.Segments, func(i, j int) bool {
		return img.Segments[i].Address < img.Segments[j].Address
	})
	if len(img.Segments) == 0 {
		return nil, fmt.Errorf("intel hex stream contains no data records")
	}
	return img, nil
}

// LoadIntelHexFile parses an Intel HEX file into an image.
func LoadIntelHexFile(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open firmware: %w", err)
	}
	defer f.Close()
	return LoadIntelHex(f)
}

// FromBinary wraps a flat binary blob at a base address into an image.
func FromBinary(base uint32, data []byte) *Image {
	return &Image{Segments: []Segment{{Address: base, Data: append([]byte(nil), data...)}}}
}
