package voxel

// Sparse stores each y-layer either as a single fill value or as a dense layer.
// Mostly-uniform chunks (open air above ground, solid rock below) collapse to a
// few bytes per layer.
type Sparse struct {
	dims
	bits   int
	fill   []uint16
	layers []Array // nil entry = uniform layer
}

// NewSparse returns a zeroed sparse array holding values of the given width (4, 8 or 16).
func NewSparse(bits, sx, sy, sz int) *Sparse {
	d := checkDims(sx, sy, sz)
	switch bits {
	case 4, 8, 16:
	default:
		panic("voxel: sparse arrays support 4, 8 or 16 bits")
	}
	return &Sparse{
		dims:   d,
		bits:   bits,
		fill:   make([]uint16, sy),
		layers: make([]Array, sy),
	}
}

func (a *Sparse) Bits() int { return a.bits }

func (a *Sparse) Kind() Kind {
	switch a.bits {
	case 4:
		return KindSparse4
	case 8:
		return KindSparse8
	default:
		return KindSparse16
	}
}

func (a *Sparse) Get(x, y, z int) int {
	a.index(x, y, z)
	if l := a.layers[y]; l != nil {
		return l.Get(x, 0, z)
	}
	return int(a.fill[y])
}

func (a *Sparse) Set(x, y, z, v int) int {
	checkValue(v, a.bits)
	a.index(x, y, z)
	l := a.layers[y]
	if l == nil {
		prev := int(a.fill[y])
		if prev == v {
			return prev
		}
		l = newDense(a.bits, a.sx, 1, a.sz)
		if prev != 0 {
			Fill(l, prev)
		}
		a.layers[y] = l
	}
	return l.Set(x, 0, z, v)
}

// UniformLayers returns how many layers are stored as a single value.
func (a *Sparse) UniformLayers() int {
	n := 0
	for _, l := range a.layers {
		if l == nil {
			n++
		}
	}
	return n
}

func (a *Sparse) EstimatedMemoryBytes() int {
	n := 2*len(a.fill) + 8*len(a.layers) + 64
	for _, l := range a.layers {
		if l != nil {
			n += l.EstimatedMemoryBytes()
		}
	}
	return n
}

func (a *Sparse) Copy() Array {
	c := &Sparse{
		dims:   a.dims,
		bits:   a.bits,
		fill:   append([]uint16(nil), a.fill...),
		layers: make([]Array, len(a.layers)),
	}
	for i, l := range a.layers {
		if l != nil {
			c.layers[i] = l.Copy()
		}
	}
	return c
}

// compactSparse builds a sparse copy of src with every uniform layer collapsed.
func compactSparse(bits int, src Array) *Sparse {
	out := NewSparse(bits, src.SizeX(), src.SizeY(), src.SizeZ())
	for y := 0; y < src.SizeY(); y++ {
		first := src.Get(0, y, 0)
		uniform := true
		for z := 0; z < src.SizeZ() && uniform; z++ {
			for x := 0; x < src.SizeX(); x++ {
				if src.Get(x, y, z) != first {
					uniform = false
					break
				}
			}
		}
		if uniform {
			out.fill[y] = uint16(first)
			continue
		}
		l := newDense(bits, src.SizeX(), 1, src.SizeZ())
		for z := 0; z < src.SizeZ(); z++ {
			for x := 0; x < src.SizeX(); x++ {
				if v := src.Get(x, y, z); v != 0 {
					l.Set(x, 0, z, v)
				}
			}
		}
		out.layers[y] = l
	}
	return out
}
