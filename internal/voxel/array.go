// Package voxel provides bit-packed 3-D arrays for per-block chunk channels.
//
// Representations:
//   - dense: every cell stored at 4, 8 or 16 bits
//   - sparse: each y-layer is either a single fill value or a dense layer
//   - palette: a value palette plus packed indices that widen 4→8→16 bits on demand
//
// All representations decode identically; Deflate re-encodes an array into the
// smallest representation without changing any value. Cells are laid out
// y-major so that sparse layers line up with horizontal slices of a chunk.
package voxel

import (
	"errors"
	"fmt"
)

// ErrMalformed is returned when encoded array data cannot be decoded.
var ErrMalformed = errors.New("voxel: malformed array data")

// ErrUnknownFactory is returned when a factory name is not registered.
var ErrUnknownFactory = errors.New("voxel: unknown array factory")

// Kind identifies an array representation.
type Kind uint8

const (
	KindDense4 Kind = iota + 1
	KindDense8
	KindDense16
	KindSparse4
	KindSparse8
	KindSparse16
	KindPalette16
)

var kindNames = map[Kind]string{
	KindDense4:    "dense-4bit",
	KindDense8:    "dense-8bit",
	KindDense16:   "dense-16bit",
	KindSparse4:   "sparse-4bit",
	KindSparse8:   "sparse-8bit",
	KindSparse16:  "sparse-16bit",
	KindPalette16: "palette-16bit",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Array is a packed 3-D grid of unsigned values.
//
// Get and Set panic on out-of-bounds coordinates and Set panics on values that
// do not fit in Bits(). Arrays are not safe for concurrent mutation.
type Array interface {
	SizeX() int
	SizeY() int
	SizeZ() int
	Bits() int
	Kind() Kind
	Get(x, y, z int) int
	// Set stores v and returns the previous value.
	Set(x, y, z, v int) int
	EstimatedMemoryBytes() int
	Copy() Array
}

type dims struct {
	sx, sy, sz int
}

func (d dims) SizeX() int { return d.sx }
func (d dims) SizeY() int { return d.sy }
func (d dims) SizeZ() int { return d.sz }

func (d dims) volume() int { return d.sx * d.sy * d.sz }

func (d dims) layerSize() int { return d.sx * d.sz }

func (d dims) index(x, y, z int) int {
	if x < 0 || x >= d.sx || y < 0 || y >= d.sy || z < 0 || z >= d.sz {
		panic(fmt.Sprintf("voxel: index (%d,%d,%d) out of bounds %dx%dx%d", x, y, z, d.sx, d.sy, d.sz))
	}
	return y*d.sx*d.sz + z*d.sx + x
}

func checkDims(sx, sy, sz int) dims {
	if sx <= 0 || sy <= 0 || sz <= 0 || sx > 0xffff || sy > 0xffff || sz > 0xffff {
		panic(fmt.Sprintf("voxel: invalid dimensions %dx%dx%d", sx, sy, sz))
	}
	return dims{sx, sy, sz}
}

func checkValue(v, bits int) {
	if v < 0 || v >= 1<<bits {
		panic(fmt.Sprintf("voxel: value %d does not fit in %d bits", v, bits))
	}
}

// Fill sets every cell of a to v.
func Fill(a Array, v int) {
	for y := 0; y < a.SizeY(); y++ {
		for z := 0; z < a.SizeZ(); z++ {
			for x := 0; x < a.SizeX(); x++ {
				a.Set(x, y, z, v)
			}
		}
	}
}

// Equal reports whether a and b have the same dimensions and decoded values.
func Equal(a, b Array) bool {
	if a.SizeX() != b.SizeX() || a.SizeY() != b.SizeY() || a.SizeZ() != b.SizeZ() {
		return false
	}
	for y := 0; y < a.SizeY(); y++ {
		for z := 0; z < a.SizeZ(); z++ {
			for x := 0; x < a.SizeX(); x++ {
				if a.Get(x, y, z) != b.Get(x, y, z) {
					return false
				}
			}
		}
	}
	return true
}

// copyInto writes every value of src into dst.
func copyInto(dst, src Array) {
	for y := 0; y < src.SizeY(); y++ {
		for z := 0; z < src.SizeZ(); z++ {
			for x := 0; x < src.SizeX(); x++ {
				if v := src.Get(x, y, z); v != 0 {
					dst.Set(x, y, z, v)
				}
			}
		}
	}
}
