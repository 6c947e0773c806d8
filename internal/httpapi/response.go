package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"github.com/freeeve/chunkworld/internal/chunk"
	"github.com/freeeve/chunkworld/internal/world"
)

// ChunkResponse is the JSON-friendly summary of a resident chunk.
type ChunkResponse struct {
	Position    world.ChunkPos    `json:"position"`
	State       string            `json:"state"`
	Ready       bool              `json:"ready"`
	Dirty       bool              `json:"dirty"`
	MemoryBytes int               `json:"memory_bytes"`
	Arrays      map[string]string `json:"arrays"` // channel -> live array kind
}

// ToChunkResponse summarizes c under its borrow: a worker deflating the
// chunk swaps its arrays. A disposed chunk returns chunk.ErrDisposed.
func ToChunkResponse(c *chunk.Chunk, ready bool) (*ChunkResponse, error) {
	var resp *ChunkResponse
	err := c.Edit(func(*chunk.Editor) error {
		if c.Disposed() {
			return chunk.ErrDisposed
		}
		resp = &ChunkResponse{
			Position:    c.Position(),
			State:       c.State().String(),
			Ready:       ready,
			Dirty:       c.Dirty(),
			MemoryBytes: c.EstimatedMemoryBytes(),
			Arrays:      make(map[string]string),
		}
		for _, ch := range c.Channels() {
			resp.Arrays[ch] = c.ArrayKind(ch).String()
		}
		return nil
	})
	return resp, err
}

// LodResponse is a downsampled chunk. Cells are listed x fastest, then z,
// then y; each covers Scale^3 blocks.
type LodResponse struct {
	Position world.ChunkPos `json:"position"`
	Scale    int            `json:"scale"`
	Size     [3]int         `json:"size"`
	Blocks   []uint16       `json:"blocks"`
	Light    []int          `json:"light"`
	Sunlight []int          `json:"sunlight"`
}

// ToLodResponse downsamples c by scale under its borrow.
func ToLodResponse(c *chunk.Chunk, scale int) (*LodResponse, error) {
	var lod *chunk.LodChunk
	err := c.Edit(func(*chunk.Editor) error {
		if c.Disposed() {
			return chunk.ErrDisposed
		}
		lod = chunk.NewLod(c, scale)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lodResponse(lod), nil
}

func lodResponse(v *chunk.LodChunk) *LodResponse {
	s := v.Scale()
	sx, sy, sz := world.SizeX/s, world.SizeY/s, world.SizeZ/s
	resp := &LodResponse{
		Position: v.Position(),
		Scale:    s,
		Size:     [3]int{sx, sy, sz},
		Blocks:   make([]uint16, 0, sx*sy*sz),
		Light:    make([]int, 0, sx*sy*sz),
		Sunlight: make([]int, 0, sx*sy*sz),
	}
	for y := 0; y < sy; y++ {
		for z := 0; z < sz; z++ {
			for x := 0; x < sx; x++ {
				bx, by, bz := x*s, y*s, z*s
				resp.Blocks = append(resp.Blocks, v.Block(bx, by, bz))
				resp.Light = append(resp.Light, int(v.Light(bx, by, bz)))
				resp.Sunlight = append(resp.Sunlight, int(v.Sunlight(bx, by, bz)))
			}
		}
	}
	return resp
}

// BlockRequest replaces the block at a chunk-local position.
type BlockRequest struct {
	X  int    `json:"x"`
	Y  int    `json:"y"`
	Z  int    `json:"z"`
	ID uint16 `json:"id"`
}

func (b BlockRequest) local() world.BlockPos { return world.BlockPos{X: b.X, Y: b.Y, Z: b.Z} }

// BlockEditResponse reports a block replacement.
type BlockEditResponse struct {
	Chunk    world.ChunkPos `json:"chunk"`
	Local    world.BlockPos `json:"local"`
	Previous uint16         `json:"previous"`
	Block    uint16         `json:"block"`
}

// ObserverRequest registers or moves an observer. Position is in world
// block units. ID and Extent are only read on registration; a missing ID is
// generated.
type ObserverRequest struct {
	ID       uuid.UUID     `json:"id,omitempty"`
	Position [3]float64    `json:"position"`
	Extent   *world.Extent `json:"extent,omitempty"`
}

func (o ObserverRequest) vec() mgl64.Vec3 {
	return mgl64.Vec3{o.Position[0], o.Position[1], o.Position[2]}
}

// EventMessage is one websocket frame of the event stream.
type EventMessage struct {
	Kind string         `json:"kind"`
	Pos  world.ChunkPos `json:"pos"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
	// Don't call http.Error after setting headers - it causes "superfluous WriteHeader"
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// splitPath splits a URL path into parts
func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
