package world

// Side is one of the six faces of a block or chunk.
type Side uint8

const (
	Up Side = iota
	Down
	Left  // -x
	Right // +x
	Front // -z
	Back  // +z
)

// Sides lists every face in a fixed order.
var Sides = [6]Side{Up, Down, Left, Right, Front, Back}

var sideOffsets = [6]ChunkPos{
	Up:    {0, 1, 0},
	Down:  {0, -1, 0},
	Left:  {-1, 0, 0},
	Right: {1, 0, 0},
	Front: {0, 0, -1},
	Back:  {0, 0, 1},
}

var sideNames = [6]string{"up", "down", "left", "right", "front", "back"}

// Offset returns the unit vector pointing out of the face.
func (s Side) Offset() ChunkPos {
	return sideOffsets[s]
}

// Reverse returns the opposite face.
func (s Side) Reverse() Side {
	return s ^ 1
}

func (s Side) String() string {
	if int(s) < len(sideNames) {
		return sideNames[s]
	}
	return "unknown"
}
