// Package config loads the chunkworld configuration from YAML or TOML files.
// Documents are checked against an embedded JSON schema, decoded, filled
// with defaults and validated against the voxel and block registries.
package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/freeeve/chunkworld/internal/block"
	"github.com/freeeve/chunkworld/internal/chunk"
	"github.com/freeeve/chunkworld/internal/gen"
	"github.com/freeeve/chunkworld/internal/store"
	"github.com/freeeve/chunkworld/internal/voxel"
	"github.com/freeeve/chunkworld/internal/world"
)

//go:embed schema.json
var schemaJSON string

var schema = jsonschema.MustCompileString("config.schema.json", schemaJSON)

// Config is the full server configuration.
type Config struct {
	Log      LogConfig      `json:"log"`
	Server   ServerConfig   `json:"server"`
	Store    StoreConfig    `json:"store"`
	World    WorldConfig    `json:"world"`
	Arrays   chunk.Layout   `json:"arrays"`
	Pipeline PipelineConfig `json:"pipeline"`
	Cache    CacheConfig    `json:"cache"`
	Blocks   []block.Block  `json:"blocks,omitempty"`
}

type LogConfig struct {
	Level  string `json:"level"`  // trace, debug, info, warn or error
	Format string `json:"format"` // console or json
}

type ServerConfig struct {
	Addr              string   `json:"addr"`
	ReadHeaderTimeout Duration `json:"read_header_timeout"`
	EventBuffer       int      `json:"event_buffer"` // per websocket subscriber
}

type StoreConfig struct {
	Backend     string `json:"backend"`
	Path        string `json:"path"`
	Compression string `json:"compression"`
}

type WorldConfig struct {
	Generator string `json:"generator"`
	Seed      int64  `json:"seed"`
	Ground    int    `json:"ground"`    // base terrain height in blocks
	SkyLevel  int    `json:"sky_level"` // world block y with open sky
}

type PipelineConfig struct {
	ReviewWorkers   int      `json:"review_workers"`
	ProcessWorkers  int      `json:"process_workers"`
	FlushWorkers    int      `json:"flush_workers"`
	TickInterval    Duration `json:"tick_interval"`
	ShutdownTimeout Duration `json:"shutdown_timeout"`
	Deflate         *bool    `json:"deflate,omitempty"`
	LogDeflation    bool     `json:"log_deflation"`
}

// DeflateEnabled reports whether completed chunks are deflated (default on).
func (p PipelineConfig) DeflateEnabled() bool {
	return p.Deflate == nil || *p.Deflate
}

type CacheConfig struct {
	Limit         int   `json:"limit"`
	ProduceMargin int32 `json:"produce_margin"`
	EvictMargin   int32 `json:"evict_margin"`
}

// Duration is a time.Duration written as a string such as "5s".
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Default returns the configuration used when no file is given.
func Default() Config {
	var c Config
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadHeaderTimeout == 0 {
		c.Server.ReadHeaderTimeout = Duration(10 * time.Second)
	}
	if c.Server.EventBuffer == 0 {
		c.Server.EventBuffer = 256
	}
	if c.Store.Backend == "" {
		c.Store.Backend = store.BackendMemory
	}
	if c.Store.Compression == "" {
		c.Store.Compression = store.CompressionFast
	}
	if c.World.Generator == "" {
		c.World.Generator = "noise"
	}
	if c.World.Ground == 0 {
		c.World.Ground = world.SizeY / 2
	}
	if c.World.SkyLevel == 0 {
		c.World.SkyLevel = 2 * world.SizeY
	}
	def := chunk.DefaultLayout()
	if c.Arrays.Block == "" {
		c.Arrays.Block = def.Block
	}
	if c.Arrays.Sunlight == "" {
		c.Arrays.Sunlight = def.Sunlight
	}
	if c.Arrays.Light == "" {
		c.Arrays.Light = def.Light
	}
	if c.Arrays.SunlightRegen == "" {
		c.Arrays.SunlightRegen = def.SunlightRegen
	}
	if c.Pipeline.ReviewWorkers == 0 {
		c.Pipeline.ReviewWorkers = 1
	}
	if c.Pipeline.TickInterval == 0 {
		c.Pipeline.TickInterval = Duration(250 * time.Millisecond)
	}
	if c.Pipeline.ShutdownTimeout == 0 {
		c.Pipeline.ShutdownTimeout = Duration(10 * time.Second)
	}
	if c.Cache.Limit == 0 {
		c.Cache.Limit = 4096
	}
	if c.Cache.ProduceMargin == 0 {
		c.Cache.ProduceMargin = 2
	}
	if c.Cache.EvictMargin == 0 {
		c.Cache.EvictMargin = 4
	}
}

// Load reads a configuration file. The format follows the extension:
// .yaml, .yml or .toml. An empty path returns Default.
func Load(path string) (Config, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var format string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = "yaml"
	case ".toml":
		format = "toml"
	default:
		return Config{}, fmt.Errorf("%s: unsupported config extension", path)
	}
	c, err := Parse(data, format)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return c, nil
}

// Parse decodes a yaml or toml document, validates it against the schema
// and applies defaults. Cross-field checks are left to Validate.
func Parse(data []byte, format string) (Config, error) {
	var doc any
	switch format {
	case "yaml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return Config{}, fmt.Errorf("parse yaml: %w", err)
		}
	case "toml":
		tree, err := toml.LoadBytes(data)
		if err != nil {
			return Config{}, fmt.Errorf("parse toml: %w", err)
		}
		doc = tree.ToMap()
	default:
		return Config{}, fmt.Errorf("unknown config format %q", format)
	}
	if doc == nil {
		doc = map[string]any{}
	}

	// Round-trip through JSON so the schema sees plain JSON values and both
	// formats decode through the same struct tags.
	raw, err := json.Marshal(doc)
	if err != nil {
		return Config{}, fmt.Errorf("normalize: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return Config{}, fmt.Errorf("normalize: %w", err)
	}
	if err := schema.Validate(generic); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	var c Config
	if err := json.Unmarshal(raw, &c); err != nil {
		return Config{}, fmt.Errorf("decode: %w", err)
	}
	c.applyDefaults()
	return c, nil
}

// Validate checks the rules the schema cannot express: array kinds must
// exist in reg and be wide enough, the generator must exist, on-disk
// backends need a path and the produce margin must stay inside the evict
// margin.
func (c Config) Validate(reg *voxel.Registry) error {
	if _, err := chunk.NewFactory(reg, c.Arrays); err != nil {
		return fmt.Errorf("arrays: %w", err)
	}
	if _, err := gen.New(c.World.Generator, c.World.Seed, c.World.Ground); err != nil {
		return fmt.Errorf("world: %w", err)
	}
	if c.Store.Backend != store.BackendMemory && c.Store.Path == "" {
		return fmt.Errorf("store: %s backend needs a path", c.Store.Backend)
	}
	if c.Cache.ProduceMargin >= c.Cache.EvictMargin {
		return fmt.Errorf("cache: produce_margin %d must be below evict_margin %d",
			c.Cache.ProduceMargin, c.Cache.EvictMargin)
	}
	if _, err := c.BlockRegistry(); err != nil {
		return fmt.Errorf("blocks: %w", err)
	}
	return nil
}

// BlockRegistry returns the built-in blocks plus the configured ones.
// Configured blocks replace built-ins with the same id.
func (c Config) BlockRegistry() (*block.Registry, error) {
	return block.NewRegistry(append(block.Defaults(), c.Blocks...)...)
}
