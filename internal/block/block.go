package block

import (
	"fmt"
	"sort"
	"sync"
)

// Air is the reserved id for empty (and unloaded) cells.
const Air uint16 = 0

// MaxLuminance is the brightest block light value.
const MaxLuminance = 15

// Block describes how a block type interacts with light.
type Block struct {
	ID        uint16 `json:"id" yaml:"id" toml:"id"`
	Name      string `json:"name" yaml:"name" toml:"name"`
	Opaque    bool   `json:"opaque" yaml:"opaque" toml:"opaque"`
	Luminance uint8  `json:"luminance" yaml:"luminance" toml:"luminance"`
}

// Built-in block ids.
const (
	Stone uint16 = iota + 1
	Dirt
	Grass
	Glass
	Lamp
	Torch
	Leaves
	Sand
)

// Defaults returns the built-in block set.
func Defaults() []Block {
	return []Block{
		{ID: Air, Name: "air"},
		{ID: Stone, Name: "stone", Opaque: true},
		{ID: Dirt, Name: "dirt", Opaque: true},
		{ID: Grass, Name: "grass", Opaque: true},
		{ID: Glass, Name: "glass"},
		{ID: Lamp, Name: "lamp", Opaque: true, Luminance: 15},
		{ID: Torch, Name: "torch", Luminance: 14},
		{ID: Leaves, Name: "leaves"},
		{ID: Sand, Name: "sand", Opaque: true},
	}
}

// Registry resolves block ids. Lookups are safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byID   map[uint16]Block
	byName map[string]uint16
}

// NewRegistry returns a registry holding the given blocks. Air is always present.
func NewRegistry(blocks ...Block) (*Registry, error) {
	r := &Registry{
		byID:   make(map[uint16]Block),
		byName: make(map[string]uint16),
	}
	r.byID[Air] = Block{ID: Air, Name: "air"}
	r.byName["air"] = Air
	for _, b := range blocks {
		if err := r.Register(b); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a block. Re-registering an id replaces it.
func (r *Registry) Register(b Block) error {
	if b.Luminance > MaxLuminance {
		return fmt.Errorf("block %q: luminance %d exceeds %d", b.Name, b.Luminance, MaxLuminance)
	}
	if b.ID == Air && (b.Opaque || b.Luminance != 0) {
		return fmt.Errorf("block %q: id 0 is reserved for transparent air", b.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byName[b.Name]; ok && id != b.ID {
		return fmt.Errorf("block name %q already used by id %d", b.Name, id)
	}
	r.byID[b.ID] = b
	r.byName[b.Name] = b.ID
	return nil
}

// Get returns the block for id. Unknown ids resolve to an opaque, dark placeholder.
func (r *Registry) Get(id uint16) Block {
	r.mu.RLock()
	b, ok := r.byID[id]
	r.mu.RUnlock()
	if !ok {
		return Block{ID: id, Name: "unknown", Opaque: true}
	}
	return b
}

// ID returns the id registered under name.
func (r *Registry) ID(name string) (uint16, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[name]
	return id, ok
}

// All returns every registered block ordered by id.
func (r *Registry) All() []Block {
	r.mu.RLock()
	out := make([]Block, 0, len(r.byID))
	for _, b := range r.byID {
		out = append(out, b)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
