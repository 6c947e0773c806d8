// Package pipeline schedules chunk work: typed tasks, a priority queue
// ordered by distance to the nearest observer, and worker pools that stop on
// Shutdown sentinels.
package pipeline

import (
	"fmt"
	"math"

	"github.com/freeeve/chunkworld/internal/world"
)

// Kind identifies what a task does.
type Kind uint8

const (
	// KindReview re-checks lifecycle eligibility for every resident chunk in Region.
	KindReview Kind = iota
	// KindProduce requests every position in Region that is neither resident nor in flight.
	KindProduce
	// KindLoad fetches Pos from the far store or generates it.
	KindLoad
	KindAdjacencyPass
	KindInternalLightPass
	KindLightPass
	KindDeflate
	// KindShutdown stops the worker that takes it.
	KindShutdown
)

var kindNames = [...]string{
	KindReview:            "review",
	KindProduce:           "produce",
	KindLoad:              "load",
	KindAdjacencyPass:     "adjacency-pass",
	KindInternalLightPass: "internal-light-pass",
	KindLightPass:         "light-pass",
	KindDeflate:           "deflate",
	KindShutdown:          "shutdown",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// Positional reports whether the task targets a single chunk.
func (k Kind) Positional() bool {
	switch k {
	case KindLoad, KindAdjacencyPass, KindInternalLightPass, KindLightPass, KindDeflate:
		return true
	}
	return false
}

// Task is one unit of pipeline work. Lower Priority runs first.
type Task struct {
	Kind     Kind
	Pos      world.ChunkPos
	Region   world.Region
	Priority int

	seq uint64
}

// ShutdownPriority sorts ahead of any real work.
const ShutdownPriority = math.MinInt

func (t Task) String() string {
	if t.Kind.Positional() {
		return fmt.Sprintf("%s%v", t.Kind, t.Pos)
	}
	if t.Kind == KindShutdown {
		return t.Kind.String()
	}
	return fmt.Sprintf("%s%v", t.Kind, t.Region)
}

func Review(r world.Region) Task  { return Task{Kind: KindReview, Region: r} }
func Produce(r world.Region) Task { return Task{Kind: KindProduce, Region: r} }

// At returns a positional task of kind k.
func At(k Kind, pos world.ChunkPos) Task {
	if !k.Positional() {
		panic(fmt.Sprintf("pipeline: %v is not a positional task", k))
	}
	return Task{Kind: k, Pos: pos}
}

func Shutdown() Task { return Task{Kind: KindShutdown, Priority: ShutdownPriority} }
