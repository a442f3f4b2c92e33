// Package soil provides the environmental grid the colony lives in.
// Coordinates are (x, y) with y = 0 at the top row; rows grow downward.
package soil

import "fmt"

// Pos is a grid coordinate.
type Pos struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p Pos) String() string { return fmt.Sprintf("(%d,%d)", p.X, p.Y) }

// Add returns p offset by d.
func (p Pos) Add(d Pos) Pos { return Pos{p.X + d.X, p.Y + d.Y} }

// Dist returns the 4-connected (Manhattan) distance between two positions.
func Dist(a, b Pos) int {
	return abs(a.X-b.X) + abs(a.Y-b.Y)
}

// Directions lists the 4-connected neighbor offsets in a fixed order.
var Directions = [4]Pos{{0, -1}, {1, 0}, {0, 1}, {-1, 0}}

// Neighbors returns the four 4-connected neighbors (some may be out of bounds).
func (p Pos) Neighbors() [4]Pos {
	return [4]Pos{p.Add(Directions[0]), p.Add(Directions[1]), p.Add(Directions[2]), p.Add(Directions[3])}
}

// Kind classifies a cell.
type Kind uint8

const (
	Air         Kind = iota // open surface
	Soil                    // solid, diggable
	Tunnel                  // dug passage
	WasteDump               // accumulates colony waste
	FoodDeposit             // regenerating food source
)

var kindNames = [...]string{"Air", "Soil", "Tunnel", "WasteDump", "FoodDeposit"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Traversable reports whether an ant may stand on a cell of this kind.
func (k Kind) Traversable() bool { return k == Air || k == Tunnel }

// Cell is one grid coordinate's environmental state.
type Cell struct {
	Moisture    float32 `json:"moisture"`        // [0,1]
	Temperature float32 `json:"temperature"`     // degrees
	Nutrition   float32 `json:"nutrition"`       // [0,1]
	Food        float32 `json:"food,omitempty"`  // [0,1], FoodDeposit only
	Waste       float32 `json:"waste,omitempty"` // [0,cap], WasteDump only
	Kind        Kind    `json:"kind"`
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clamp01(v float32) float32 { return clamp(v, 0, 1) }

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
