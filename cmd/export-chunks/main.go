package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/freeeve/chunkworld/internal/block"
	"github.com/freeeve/chunkworld/internal/chunk"
	"github.com/freeeve/chunkworld/internal/config"
	"github.com/freeeve/chunkworld/internal/world"
)

func main() {
	var (
		configPath = flag.String("config", os.Getenv("CHUNKWORLD_CONFIG"), "path to a .yaml or .toml config file")
		outputPath = flag.String("output", "chunks.csv", "Output CSV file")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Opening %s chunk store: %s\n", cfg.Store.Backend, cfg.Store.Path)

	rt, err := cfg.Build(zerolog.Nop())
	if err != nil {
		fmt.Fprintf(os.Stderr, "open store: %v\n", err)
		os.Exit(1)
	}
	defer rt.Store.Close()

	n, size, err := rt.Store.Count()
	if err != nil {
		fmt.Fprintf(os.Stderr, "count: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Store stats: %d chunks, %s stored\n", n, humanize.Bytes(uint64(size)))

	// Create output file
	outFile, err := os.Create(*outputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create output file: %v\n", err)
		os.Exit(1)
	}
	defer outFile.Close()

	writer := csv.NewWriter(outFile)
	defer writer.Flush()

	// Write header
	if err := writer.Write([]string{"x", "y", "z", "state", "solid", "emissive", "memory_bytes", "arrays"}); err != nil {
		fmt.Fprintf(os.Stderr, "write header: %v\n", err)
		os.Exit(1)
	}

	var exported, malformed uint64
	err = rt.Store.ForEach(func(c *chunk.Chunk) error {
		solid, emissive := census(c, rt.Blocks)
		pos := c.Position()
		row := []string{
			strconv.Itoa(int(pos.X)),
			strconv.Itoa(int(pos.Y)),
			strconv.Itoa(int(pos.Z)),
			c.State().String(),
			strconv.Itoa(solid),
			strconv.Itoa(emissive),
			strconv.Itoa(c.EstimatedMemoryBytes()),
			arrayKinds(c),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
		exported++
		if exported%10000 == 0 {
			fmt.Printf("Exported %d chunks\n", exported)
		}
		return nil
	}, func(pos world.ChunkPos, err error) {
		malformed++
		fmt.Fprintf(os.Stderr, "skip %v: %v\n", pos, err)
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "iterate error: %v\n", err)
		os.Exit(1)
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		fmt.Fprintf(os.Stderr, "csv writer error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nDone! Exported %d chunks (%d malformed skipped) to %s\n",
		exported, malformed, *outputPath)
}

// census counts opaque and light-emitting cells.
func census(c *chunk.Chunk, blocks *block.Registry) (solid, emissive int) {
	for y := 0; y < world.SizeY; y++ {
		for z := 0; z < world.SizeZ; z++ {
			for x := 0; x < world.SizeX; x++ {
				id := c.Block(x, y, z)
				if id == block.Air {
					continue
				}
				b := blocks.Get(id)
				if b.Opaque {
					solid++
				}
				if b.Luminance > 0 {
					emissive++
				}
			}
		}
	}
	return solid, emissive
}

// arrayKinds renders channel=kind pairs separated by semicolons.
func arrayKinds(c *chunk.Chunk) string {
	var sb strings.Builder
	for i, ch := range c.Channels() {
		if i > 0 {
			sb.WriteByte(';')
		}
		sb.WriteString(ch)
		sb.WriteByte('=')
		sb.WriteString(c.ArrayKind(ch).String())
	}
	return sb.String()
}
