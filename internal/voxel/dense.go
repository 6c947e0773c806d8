package voxel

// Dense4 packs two 4-bit values per byte, low nibble first.
type Dense4 struct {
	dims
	data []byte
}

// NewDense4 returns a zeroed 4-bit array.
func NewDense4(sx, sy, sz int) *Dense4 {
	d := checkDims(sx, sy, sz)
	return &Dense4{dims: d, data: make([]byte, (d.volume()+1)/2)}
}

func (a *Dense4) Bits() int  { return 4 }
func (a *Dense4) Kind() Kind { return KindDense4 }

func (a *Dense4) Get(x, y, z int) int {
	i := a.index(x, y, z)
	b := a.data[i>>1]
	if i&1 == 0 {
		return int(b & 0x0f)
	}
	return int(b >> 4)
}

func (a *Dense4) Set(x, y, z, v int) int {
	checkValue(v, 4)
	i := a.index(x, y, z)
	b := a.data[i>>1]
	var prev int
	if i&1 == 0 {
		prev = int(b & 0x0f)
		a.data[i>>1] = (b & 0xf0) | byte(v)
	} else {
		prev = int(b >> 4)
		a.data[i>>1] = (b & 0x0f) | byte(v)<<4
	}
	return prev
}

func (a *Dense4) EstimatedMemoryBytes() int { return len(a.data) + 48 }

func (a *Dense4) Copy() Array {
	return &Dense4{dims: a.dims, data: append([]byte(nil), a.data...)}
}

// Dense8 stores one byte per value.
type Dense8 struct {
	dims
	data []byte
}

// NewDense8 returns a zeroed 8-bit array.
func NewDense8(sx, sy, sz int) *Dense8 {
	d := checkDims(sx, sy, sz)
	return &Dense8{dims: d, data: make([]byte, d.volume())}
}

func (a *Dense8) Bits() int  { return 8 }
func (a *Dense8) Kind() Kind { return KindDense8 }

func (a *Dense8) Get(x, y, z int) int {
	return int(a.data[a.index(x, y, z)])
}

func (a *Dense8) Set(x, y, z, v int) int {
	checkValue(v, 8)
	i := a.index(x, y, z)
	prev := int(a.data[i])
	a.data[i] = byte(v)
	return prev
}

func (a *Dense8) EstimatedMemoryBytes() int { return len(a.data) + 48 }

func (a *Dense8) Copy() Array {
	return &Dense8{dims: a.dims, data: append([]byte(nil), a.data...)}
}

// Dense16 stores one uint16 per value.
type Dense16 struct {
	dims
	data []uint16
}

// NewDense16 returns a zeroed 16-bit array.
func NewDense16(sx, sy, sz int) *Dense16 {
	d := checkDims(sx, sy, sz)
	return &Dense16{dims: d, data: make([]uint16, d.volume())}
}

func (a *Dense16) Bits() int  { return 16 }
func (a *Dense16) Kind() Kind { return KindDense16 }

func (a *Dense16) Get(x, y, z int) int {
	return int(a.data[a.index(x, y, z)])
}

func (a *Dense16) Set(x, y, z, v int) int {
	checkValue(v, 16)
	i := a.index(x, y, z)
	prev := int(a.data[i])
	a.data[i] = uint16(v)
	return prev
}

func (a *Dense16) EstimatedMemoryBytes() int { return 2*len(a.data) + 48 }

func (a *Dense16) Copy() Array {
	return &Dense16{dims: a.dims, data: append([]uint16(nil), a.data...)}
}

// newDense returns a zeroed dense array wide enough for bits.
func newDense(bits, sx, sy, sz int) Array {
	switch {
	case bits <= 4:
		return NewDense4(sx, sy, sz)
	case bits <= 8:
		return NewDense8(sx, sy, sz)
	default:
		return NewDense16(sx, sy, sz)
	}
}
