package voxel

import "github.com/brentp/intintmap"

// Palette stores 16-bit values as indices into a palette of distinct values.
// The index array starts at 4 bits and widens to 8 and 16 bits as the palette grows.
type Palette struct {
	dims
	values  []uint16
	lookup  *intintmap.Map
	indices Array
}

// NewPalette returns a palette array whose every cell is 0.
func NewPalette(sx, sy, sz int) *Palette {
	d := checkDims(sx, sy, sz)
	p := &Palette{
		dims:    d,
		values:  []uint16{0},
		lookup:  intintmap.New(16, 0.6),
		indices: NewDense4(sx, sy, sz),
	}
	p.lookup.Put(0, 0)
	return p
}

func (a *Palette) Bits() int  { return 16 }
func (a *Palette) Kind() Kind { return KindPalette16 }

// PaletteSize returns the number of distinct values the palette holds.
func (a *Palette) PaletteSize() int { return len(a.values) }

// IndexBits returns the current width of the packed indices.
func (a *Palette) IndexBits() int { return a.indices.Bits() }

func (a *Palette) Get(x, y, z int) int {
	return int(a.values[a.indices.Get(x, y, z)])
}

func (a *Palette) Set(x, y, z, v int) int {
	checkValue(v, 16)
	a.index(x, y, z)
	idx := a.indexOf(v)
	prev := a.indices.Set(x, y, z, idx)
	return int(a.values[prev])
}

func (a *Palette) indexOf(v int) int {
	if idx, ok := a.lookup.Get(int64(v)); ok {
		return int(idx)
	}
	idx := len(a.values)
	if idx >= 1<<a.indices.Bits() {
		a.widen()
	}
	a.values = append(a.values, uint16(v))
	a.lookup.Put(int64(v), int64(idx))
	return idx
}

func (a *Palette) widen() {
	wider := newDense(a.indices.Bits()*2, a.sx, a.sy, a.sz)
	copyInto(wider, a.indices)
	a.indices = wider
}

func (a *Palette) EstimatedMemoryBytes() int {
	return a.indices.EstimatedMemoryBytes() + 2*len(a.values) + 16*a.lookup.Size() + 64
}

func (a *Palette) Copy() Array {
	c := &Palette{
		dims:    a.dims,
		values:  append([]uint16(nil), a.values...),
		indices: a.indices.Copy(),
	}
	c.rebuildLookup()
	return c
}

func (a *Palette) rebuildLookup() {
	a.lookup = intintmap.New(len(a.values)+1, 0.6)
	for i, v := range a.values {
		if _, ok := a.lookup.Get(int64(v)); !ok {
			a.lookup.Put(int64(v), int64(i))
		}
	}
}

// compactPalette builds a palette copy of src holding only the values in use.
// It returns nil when src has more distinct values than a palette can index.
func compactPalette(src Array) *Palette {
	seen := intintmap.New(64, 0.6)
	var values []uint16
	for y := 0; y < src.SizeY(); y++ {
		for z := 0; z < src.SizeZ(); z++ {
			for x := 0; x < src.SizeX(); x++ {
				v := int64(src.Get(x, y, z))
				if _, ok := seen.Get(v); !ok {
					seen.Put(v, int64(len(values)))
					values = append(values, uint16(v))
				}
			}
		}
	}
	if len(values) > 1<<16 {
		return nil
	}
	bits := 4
	for len(values) > 1<<bits {
		bits *= 2
	}
	p := &Palette{
		dims:    dims{src.SizeX(), src.SizeY(), src.SizeZ()},
		values:  values,
		lookup:  seen,
		indices: newDense(bits, src.SizeX(), src.SizeY(), src.SizeZ()),
	}
	for y := 0; y < src.SizeY(); y++ {
		for z := 0; z < src.SizeZ(); z++ {
			for x := 0; x < src.SizeX(); x++ {
				idx, _ := seen.Get(int64(src.Get(x, y, z)))
				if idx != 0 {
					p.indices.Set(x, y, z, int(idx))
				}
			}
		}
	}
	return p
}
