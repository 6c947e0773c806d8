package voxel

import (
	"encoding/binary"
	"fmt"
)

// Encoded layout:
//   - kind (1 byte)
//   - sx, sy, sz (uint16 each, big-endian)
//   - payload, depending on kind:
//     dense: raw packed cells (4-bit: (n+1)/2 bytes, 8-bit: n bytes, 16-bit: 2n bytes)
//     sparse: per layer a flag byte, then a uint16 fill (flag 0) or a dense layer payload (flag 1)
//     palette: uint16 count, count uint16 values, index width byte, dense index payload

const headerSize = 7

// Encode serializes a into a self-describing byte slice.
func Encode(a Array) []byte {
	buf := make([]byte, headerSize, headerSize+a.EstimatedMemoryBytes())
	buf[0] = byte(a.Kind())
	binary.BigEndian.PutUint16(buf[1:3], uint16(a.SizeX()))
	binary.BigEndian.PutUint16(buf[3:5], uint16(a.SizeY()))
	binary.BigEndian.PutUint16(buf[5:7], uint16(a.SizeZ()))
	return appendPayload(buf, a)
}

func appendPayload(buf []byte, a Array) []byte {
	switch t := a.(type) {
	case *Dense4:
		return append(buf, t.data...)
	case *Dense8:
		return append(buf, t.data...)
	case *Dense16:
		for _, v := range t.data {
			buf = binary.BigEndian.AppendUint16(buf, v)
		}
		return buf
	case *Sparse:
		for y, l := range t.layers {
			if l == nil {
				buf = append(buf, 0)
				buf = binary.BigEndian.AppendUint16(buf, t.fill[y])
				continue
			}
			buf = append(buf, 1)
			buf = appendPayload(buf, l)
		}
		return buf
	case *Palette:
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(t.values)-1))
		for _, v := range t.values {
			buf = binary.BigEndian.AppendUint16(buf, v)
		}
		buf = append(buf, byte(t.indices.Bits()))
		return appendPayload(buf, t.indices)
	default:
		// Foreign implementations are stored densely at their own width.
		d := newDense(a.Bits(), a.SizeX(), a.SizeY(), a.SizeZ())
		copyInto(d, a)
		return appendPayload(buf, d)
	}
}

// Decode parses data produced by Encode.
func Decode(data []byte) (Array, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: %d byte header", ErrMalformed, len(data))
	}
	kind := Kind(data[0])
	sx := int(binary.BigEndian.Uint16(data[1:3]))
	sy := int(binary.BigEndian.Uint16(data[3:5]))
	sz := int(binary.BigEndian.Uint16(data[5:7]))
	if sx == 0 || sy == 0 || sz == 0 {
		return nil, fmt.Errorf("%w: zero dimension %dx%dx%d", ErrMalformed, sx, sy, sz)
	}
	a, rest, err := decodePayload(kind, sx, sy, sz, data[headerSize:])
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(rest))
	}
	return a, nil
}

func decodePayload(kind Kind, sx, sy, sz int, data []byte) (Array, []byte, error) {
	n := sx * sy * sz
	switch kind {
	case KindDense4:
		size := (n + 1) / 2
		if len(data) < size {
			return nil, nil, fmt.Errorf("%w: dense-4bit needs %d bytes, have %d", ErrMalformed, size, len(data))
		}
		a := NewDense4(sx, sy, sz)
		copy(a.data, data[:size])
		return a, data[size:], nil
	case KindDense8:
		if len(data) < n {
			return nil, nil, fmt.Errorf("%w: dense-8bit needs %d bytes, have %d", ErrMalformed, n, len(data))
		}
		a := NewDense8(sx, sy, sz)
		copy(a.data, data[:n])
		return a, data[n:], nil
	case KindDense16:
		if len(data) < 2*n {
			return nil, nil, fmt.Errorf("%w: dense-16bit needs %d bytes, have %d", ErrMalformed, 2*n, len(data))
		}
		a := NewDense16(sx, sy, sz)
		for i := range a.data {
			a.data[i] = binary.BigEndian.Uint16(data[2*i:])
		}
		return a, data[2*n:], nil
	case KindSparse4, KindSparse8, KindSparse16:
		bits := map[Kind]int{KindSparse4: 4, KindSparse8: 8, KindSparse16: 16}[kind]
		a := NewSparse(bits, sx, sy, sz)
		for y := 0; y < sy; y++ {
			if len(data) < 1 {
				return nil, nil, fmt.Errorf("%w: sparse layer %d truncated", ErrMalformed, y)
			}
			flag := data[0]
			data = data[1:]
			switch flag {
			case 0:
				if len(data) < 2 {
					return nil, nil, fmt.Errorf("%w: sparse fill %d truncated", ErrMalformed, y)
				}
				fill := binary.BigEndian.Uint16(data)
				if int(fill) >= 1<<bits {
					return nil, nil, fmt.Errorf("%w: fill %d exceeds %d bits", ErrMalformed, fill, bits)
				}
				a.fill[y] = fill
				data = data[2:]
			case 1:
				l, rest, err := decodePayload(denseKind(bits), sx, 1, sz, data)
				if err != nil {
					return nil, nil, err
				}
				a.layers[y] = l
				data = rest
			default:
				return nil, nil, fmt.Errorf("%w: sparse layer flag %d", ErrMalformed, flag)
			}
		}
		return a, data, nil
	case KindPalette16:
		if len(data) < 2 {
			return nil, nil, fmt.Errorf("%w: palette count truncated", ErrMalformed)
		}
		count := int(binary.BigEndian.Uint16(data)) + 1
		data = data[2:]
		if len(data) < 2*count+1 {
			return nil, nil, fmt.Errorf("%w: palette of %d values truncated", ErrMalformed, count)
		}
		p := &Palette{dims: dims{sx, sy, sz}, values: make([]uint16, count)}
		for i := range p.values {
			p.values[i] = binary.BigEndian.Uint16(data[2*i:])
		}
		data = data[2*count:]
		bits := int(data[0])
		data = data[1:]
		if bits != 4 && bits != 8 && bits != 16 {
			return nil, nil, fmt.Errorf("%w: palette index width %d", ErrMalformed, bits)
		}
		idx, rest, err := decodePayload(denseKind(bits), sx, sy, sz, data)
		if err != nil {
			return nil, nil, err
		}
		p.indices = idx
		for y := 0; y < sy; y++ {
			for z := 0; z < sz; z++ {
				for x := 0; x < sx; x++ {
					if idx.Get(x, y, z) >= count {
						return nil, nil, fmt.Errorf("%w: palette index out of range", ErrMalformed)
					}
				}
			}
		}
		p.rebuildLookup()
		return p, rest, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown kind %d", ErrMalformed, uint8(kind))
	}
}
