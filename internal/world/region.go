package world

import "fmt"

// Region is an inclusive box of chunk positions.
type Region struct {
	Min ChunkPos `json:"min"`
	Max ChunkPos `json:"max"`
}

// Extent is the half-size of a region box around its center.
type Extent struct {
	X int32 `json:"x"`
	Y int32 `json:"y"`
	Z int32 `json:"z"`
}

// Box returns the region center ± extent.
func Box(center ChunkPos, e Extent) Region {
	return Region{
		Min: ChunkPos{center.X - e.X, center.Y - e.Y, center.Z - e.Z},
		Max: ChunkPos{center.X + e.X, center.Y + e.Y, center.Z + e.Z},
	}
}

// Single returns the one-chunk region at p.
func Single(p ChunkPos) Region {
	return Region{Min: p, Max: p}
}

// Around returns the 3x3x3 neighborhood of p.
func Around(p ChunkPos) Region {
	return Single(p).Expand(1)
}

func (r Region) String() string {
	return fmt.Sprintf("%v..%v", r.Min, r.Max)
}

// Empty reports whether the region contains no positions.
func (r Region) Empty() bool {
	return r.Min.X > r.Max.X || r.Min.Y > r.Max.Y || r.Min.Z > r.Max.Z
}

// Expand grows the region by n chunks on every side.
func (r Region) Expand(n int32) Region {
	return Region{
		Min: ChunkPos{r.Min.X - n, r.Min.Y - n, r.Min.Z - n},
		Max: ChunkPos{r.Max.X + n, r.Max.Y + n, r.Max.Z + n},
	}
}

// Center returns the center position, rounded toward Min.
func (r Region) Center() ChunkPos {
	return ChunkPos{
		X: r.Min.X + (r.Max.X-r.Min.X)/2,
		Y: r.Min.Y + (r.Max.Y-r.Min.Y)/2,
		Z: r.Min.Z + (r.Max.Z-r.Min.Z)/2,
	}
}

// Contains reports whether p lies inside the region.
func (r Region) Contains(p ChunkPos) bool {
	return p.X >= r.Min.X && p.X <= r.Max.X &&
		p.Y >= r.Min.Y && p.Y <= r.Max.Y &&
		p.Z >= r.Min.Z && p.Z <= r.Max.Z
}

// Volume returns the number of positions in the region.
func (r Region) Volume() int {
	if r.Empty() {
		return 0
	}
	return int(r.Max.X-r.Min.X+1) * int(r.Max.Y-r.Min.Y+1) * int(r.Max.Z-r.Min.Z+1)
}

// Intersect returns the overlap of two regions, which may be empty.
func (r Region) Intersect(o Region) Region {
	return Region{
		Min: ChunkPos{max(r.Min.X, o.Min.X), max(r.Min.Y, o.Min.Y), max(r.Min.Z, o.Min.Z)},
		Max: ChunkPos{min(r.Max.X, o.Max.X), min(r.Max.Y, o.Max.Y), min(r.Max.Z, o.Max.Z)},
	}
}

// Each calls fn for every position in x, y, z order.
func (r Region) Each(fn func(ChunkPos)) {
	for x := r.Min.X; x <= r.Max.X; x++ {
		for y := r.Min.Y; y <= r.Max.Y; y++ {
			for z := r.Min.Z; z <= r.Max.Z; z++ {
				fn(ChunkPos{x, y, z})
			}
		}
	}
}

// Positions returns every position in the region.
func (r Region) Positions() []ChunkPos {
	out := make([]ChunkPos, 0, r.Volume())
	r.Each(func(p ChunkPos) { out = append(out, p) })
	return out
}

// Subtract returns disjoint boxes covering the positions of r that are not in o.
func (r Region) Subtract(o Region) []Region {
	if r.Empty() {
		return nil
	}
	in := r.Intersect(o)
	if in.Empty() {
		return []Region{r}
	}
	var out []Region
	rest := r
	// Peel slabs off x, then y, then z.
	if rest.Min.X < in.Min.X {
		out = append(out, Region{rest.Min, ChunkPos{in.Min.X - 1, rest.Max.Y, rest.Max.Z}})
		rest.Min.X = in.Min.X
	}
	if rest.Max.X > in.Max.X {
		out = append(out, Region{ChunkPos{in.Max.X + 1, rest.Min.Y, rest.Min.Z}, rest.Max})
		rest.Max.X = in.Max.X
	}
	if rest.Min.Y < in.Min.Y {
		out = append(out, Region{rest.Min, ChunkPos{rest.Max.X, in.Min.Y - 1, rest.Max.Z}})
		rest.Min.Y = in.Min.Y
	}
	if rest.Max.Y > in.Max.Y {
		out = append(out, Region{ChunkPos{rest.Min.X, in.Max.Y + 1, rest.Min.Z}, rest.Max})
		rest.Max.Y = in.Max.Y
	}
	if rest.Min.Z < in.Min.Z {
		out = append(out, Region{rest.Min, ChunkPos{rest.Max.X, rest.Max.Y, in.Min.Z - 1}})
		rest.Min.Z = in.Min.Z
	}
	if rest.Max.Z > in.Max.Z {
		out = append(out, Region{ChunkPos{rest.Min.X, rest.Min.Y, in.Max.Z + 1}, rest.Max})
	}
	return out
}
