package chunk

import "fmt"

// State is a chunk's position in the lifecycle. States only move forward, one
// step at a time, except when a chunk is reloaded or regenerated.
type State uint32

const (
	// AdjacencyPending: block data exists, the generator's second pass has not run.
	AdjacencyPending State = iota
	// InternalLightPending: second pass done, light sources not yet seeded.
	InternalLightPending
	// LightPropagationPending: seeded in isolation, cross-chunk propagation not run.
	LightPropagationPending
	// FullConnectivityPending: propagated, but neighbors may not all have been.
	FullConnectivityPending
	// Complete: this chunk and its 26 neighbors have finished propagation.
	Complete
)

var stateNames = [...]string{
	"adjacency-pending",
	"internal-light-pending",
	"light-propagation-pending",
	"full-connectivity-pending",
	"complete",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", uint32(s))
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	return s <= Complete
}
