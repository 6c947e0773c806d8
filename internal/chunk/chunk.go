package chunk

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/freeeve/chunkworld/internal/voxel"
	"github.com/freeeve/chunkworld/internal/world"
)

var (
	// ErrUnsupported is returned by chunk variants that cannot perform an operation.
	ErrUnsupported = errors.New("chunk: operation not supported by this chunk variant")
	// ErrDisposed is returned when mutating a chunk whose resources were released.
	ErrDisposed = errors.New("chunk: disposed")
	// ErrMalformed is returned when an encoded chunk record cannot be decoded.
	ErrMalformed = errors.New("chunk: malformed record")
)

// Built-in channel names.
const (
	ChannelBlock         = "block"
	ChannelSunlight      = "sunlight"
	ChannelLight         = "light"
	ChannelSunlightRegen = "sunlight-regen"
)

// Value limits per channel.
const (
	MaxLight               = 15
	MaxSunlight            = 15
	MaxSunlightRegen       = 63
	SunlightRegenThreshold = 48
)

// builtinLimits holds the narrowest array each built-in channel may use and
// the largest value it may hold. A zero max leaves the bit width as the
// only bound.
var builtinLimits = map[string]struct{ minBits, max int }{
	ChannelBlock:         {16, 0},
	ChannelSunlight:      {4, MaxSunlight},
	ChannelLight:         {4, MaxLight},
	ChannelSunlightRegen: {6, MaxSunlightRegen},
}

// Layout names the array factory used for each channel.
type Layout struct {
	Block         string            `json:"block" yaml:"block" toml:"block"`
	Sunlight      string            `json:"sunlight" yaml:"sunlight" toml:"sunlight"`
	Light         string            `json:"light" yaml:"light" toml:"light"`
	SunlightRegen string            `json:"sunlight_regen" yaml:"sunlight_regen" toml:"sunlight_regen"`
	Extra         map[string]string `json:"extra,omitempty" yaml:"extra,omitempty" toml:"extra,omitempty"`
}

// DefaultLayout returns the representation choice used when none is configured.
func DefaultLayout() Layout {
	return Layout{
		Block:         "dense-16bit",
		Sunlight:      "dense-8bit",
		Light:         "dense-8bit",
		SunlightRegen: "dense-8bit",
	}
}

type channelSpec struct {
	name    string
	factory voxel.Factory
}

// Factory creates chunks with a fixed channel layout.
type Factory struct {
	layout   Layout
	channels []channelSpec
}

// NewFactory resolves every channel of layout against reg and checks bit widths.
func NewFactory(reg *voxel.Registry, layout Layout) (*Factory, error) {
	f := &Factory{layout: layout}
	required := []struct {
		name    string
		factory string
	}{
		{ChannelBlock, layout.Block},
		{ChannelSunlight, layout.Sunlight},
		{ChannelLight, layout.Light},
		{ChannelSunlightRegen, layout.SunlightRegen},
	}
	for _, r := range required {
		fac, err := reg.Lookup(r.factory)
		if err != nil {
			return nil, fmt.Errorf("channel %s: %w", r.name, err)
		}
		need := builtinLimits[r.name].minBits
		if bits := fac(1, 1, 1).Bits(); bits < need {
			return nil, fmt.Errorf("channel %s: %s holds %d bits, need %d", r.name, r.factory, bits, need)
		}
		f.channels = append(f.channels, channelSpec{name: r.name, factory: fac})
	}
	extra := make([]string, 0, len(layout.Extra))
	for name := range layout.Extra {
		extra = append(extra, name)
	}
	sort.Strings(extra)
	for _, name := range extra {
		if isBuiltin(name) {
			return nil, fmt.Errorf("extra channel %q shadows a built-in channel", name)
		}
		if name == "" || len(name) > 255 {
			return nil, fmt.Errorf("extra channel name %q must be 1-255 bytes", name)
		}
		fac, err := reg.Lookup(layout.Extra[name])
		if err != nil {
			return nil, fmt.Errorf("channel %s: %w", name, err)
		}
		f.channels = append(f.channels, channelSpec{name: name, factory: fac})
	}
	return f, nil
}

// Layout returns the layout the factory was built from.
func (f *Factory) Layout() Layout { return f.layout }

// New returns an empty chunk at pos in AdjacencyPending.
func (f *Factory) New(pos world.ChunkPos) *Chunk {
	c := &Chunk{pos: pos, channels: make(map[string]voxel.Array, len(f.channels))}
	for _, spec := range f.channels {
		c.channels[spec.name] = f.newArray(spec)
	}
	c.bindBuiltins()
	c.dirty.Store(true)
	return c
}

func (f *Factory) newArray(spec channelSpec) voxel.Array {
	return spec.factory(world.SizeX, world.SizeY, world.SizeZ)
}

func isBuiltin(name string) bool {
	switch name {
	case ChannelBlock, ChannelSunlight, ChannelLight, ChannelSunlightRegen:
		return true
	}
	return false
}

// Chunk is a fixed-size box of voxel data with one packed array per channel.
//
// Reads (Block, Light, ...) are not synchronized: callers must not read a chunk
// while a worker holds its borrow. All mutation goes through an Editor obtained
// from Edit, TryEdit or EditAll.
type Chunk struct {
	pos world.ChunkPos

	mu       sync.Mutex
	borrowed atomic.Bool

	state    atomic.Uint32
	dirty    atomic.Bool
	ready    atomic.Bool
	disposed atomic.Bool

	channels map[string]voxel.Array
	blocks   voxel.Array
	sunlight voxel.Array
	light    voxel.Array
	regen    voxel.Array
}

func (c *Chunk) bindBuiltins() {
	c.blocks = c.channels[ChannelBlock]
	c.sunlight = c.channels[ChannelSunlight]
	c.light = c.channels[ChannelLight]
	c.regen = c.channels[ChannelSunlightRegen]
}

// Position returns the chunk's position in chunk coordinates.
func (c *Chunk) Position() world.ChunkPos { return c.pos }

// State returns the current lifecycle state.
func (c *Chunk) State() State { return State(c.state.Load()) }

// Dirty reports whether the chunk changed since it was last meshed.
func (c *Chunk) Dirty() bool { return c.dirty.Load() }

// ClearDirty resets the dirty flag, returning its previous value.
func (c *Chunk) ClearDirty() bool { return c.dirty.Swap(false) }

// Ready reports whether the chunk was announced as externally ready.
func (c *Chunk) Ready() bool { return c.ready.Load() }

// Disposed reports whether the chunk's resources were released.
func (c *Chunk) Disposed() bool { return c.disposed.Load() }

// Locked reports whether a borrow is currently held.
func (c *Chunk) Locked() bool { return c.borrowed.Load() }

func (c *Chunk) Block(x, y, z int) uint16 { return uint16(c.blocks.Get(x, y, z)) }

func (c *Chunk) Sunlight(x, y, z int) uint8 { return uint8(c.sunlight.Get(x, y, z)) }

func (c *Chunk) Light(x, y, z int) uint8 { return uint8(c.light.Get(x, y, z)) }

func (c *Chunk) SunlightRegen(x, y, z int) uint8 { return uint8(c.regen.Get(x, y, z)) }

// Extra reads a named extra-data channel.
func (c *Chunk) Extra(name string, x, y, z int) (int, bool) {
	a, ok := c.channels[name]
	if !ok || isBuiltin(name) {
		return 0, false
	}
	return a.Get(x, y, z), true
}

// Get reads any channel by name. Unknown channels panic.
func (c *Chunk) Get(channel string, x, y, z int) int {
	return c.array(channel).Get(x, y, z)
}

// Channels returns the channel names in a stable order.
func (c *Chunk) Channels() []string {
	names := make([]string, 0, len(c.channels))
	for n := range c.channels {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ArrayKind reports the live representation of a channel.
func (c *Chunk) ArrayKind(channel string) voxel.Kind {
	return c.array(channel).Kind()
}

// EstimatedMemoryBytes sums the estimated size of every channel array.
func (c *Chunk) EstimatedMemoryBytes() int {
	n := 0
	for _, a := range c.channels {
		n += a.EstimatedMemoryBytes()
	}
	return n
}

// SetBlock performs a single-block edit under the chunk's own borrow.
func (c *Chunk) SetBlock(x, y, z int, id uint16) (uint16, error) {
	var prev uint16
	err := c.Edit(func(e *Editor) error {
		if c.Disposed() {
			return ErrDisposed
		}
		prev = e.SetBlock(x, y, z, id)
		return nil
	})
	return prev, err
}

func (c *Chunk) array(channel string) voxel.Array {
	switch channel {
	case ChannelBlock:
		return c.blocks
	case ChannelSunlight:
		return c.sunlight
	case ChannelLight:
		return c.light
	case ChannelSunlightRegen:
		return c.regen
	}
	a, ok := c.channels[channel]
	if !ok {
		panic(fmt.Sprintf("chunk: unknown channel %q", channel))
	}
	return a
}
