package voxel

// Deflate returns the smallest representation of a that holds the same values at
// the same bit width. It returns a itself when no candidate is strictly smaller,
// so deflating twice is a no-op.
func Deflate(a Array) Array {
	best := a
	bestBytes := a.EstimatedMemoryBytes()
	for _, c := range candidates(a) {
		if n := c.EstimatedMemoryBytes(); n < bestBytes {
			best, bestBytes = c, n
		}
	}
	return best
}

func candidates(a Array) []Array {
	bits := a.Bits()
	out := []Array{compactSparse(bits, a)}
	if a.Kind() != denseKind(bits) {
		d := newDense(bits, a.SizeX(), a.SizeY(), a.SizeZ())
		copyInto(d, a)
		out = append(out, d)
	}
	if bits == 16 {
		if p := compactPalette(a); p != nil {
			out = append(out, p)
		}
	}
	return out
}

func denseKind(bits int) Kind {
	switch {
	case bits <= 4:
		return KindDense4
	case bits <= 8:
		return KindDense8
	default:
		return KindDense16
	}
}
