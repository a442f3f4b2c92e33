// Package colony provides the ant population: fixed-field ant and egg
// records stored in an index-stable arena, the per-ant state machine, and
// the per-tick population update with deferred spawn and despawn.
package colony

import (
	"errors"
	"fmt"

	"github.com/talgya/antnest/internal/soil"
)

var (
	// ErrInvariant marks a population state that only a core bug can produce.
	ErrInvariant = errors.New("population invariant violated")
	// ErrOccupied is returned when spawning onto a cell that already holds an ant.
	ErrOccupied = errors.New("cell occupied")
	// ErrBlocked is returned when spawning onto a cell an ant cannot stand on.
	ErrBlocked = errors.New("cell not traversable")
)

// AntID identifies an ant. The low 32 bits are the arena slot and the high
// 32 bits the slot generation, so an id is never reused.
type AntID uint64

func makeID(slot int, gen uint32) AntID { return AntID(uint64(gen)<<32 | uint64(uint32(slot))) }

// Slot returns the arena slot index.
func (id AntID) Slot() int { return int(uint32(id)) }

// Gen returns the slot generation.
func (id AntID) Gen() uint32 { return uint32(id >> 32) }

// Role is an ant's labor category.
type Role uint8

const (
	Larva Role = iota
	JuniorWorker
	SeniorWorker
	Queen
)

var roleNames = [...]string{"Larva", "JuniorWorker", "SeniorWorker", "Queen"}

func (r Role) String() string {
	if int(r) < len(roleNames) {
		return roleNames[r]
	}
	return fmt.Sprintf("Role(%d)", r)
}

// MarshalText encodes the role by name.
func (r Role) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// UnmarshalText decodes a role name.
func (r *Role) UnmarshalText(b []byte) error {
	for i, n := range roleNames {
		if n == string(b) {
			*r = Role(i)
			return nil
		}
	}
	return fmt.Errorf("unknown role %q", b)
}

// Worker reports whether the role does colony work.
func (r Role) Worker() bool { return r == JuniorWorker || r == SeniorWorker }

// State is an ant's current behavior.
type State uint8

const (
	Resting State = iota
	Dormant
	Foraging
	Returning
	Digging
	Dumping
	Tending
	Dying
)

var stateNames = [...]string{"Resting", "Dormant", "Foraging", "Returning", "Digging", "Dumping", "Tending", "Dying"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", s)
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(b []byte) error {
	for i, n := range stateNames {
		if n == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", b)
}

// Resource is what an ant carries.
type Resource uint8

const (
	Nothing Resource = iota
	Food
	Waste
)

var resourceNames = [...]string{"Nothing", "Food", "Waste"}

func (r Resource) String() string {
	if int(r) < len(resourceNames) {
		return resourceNames[r]
	}
	return fmt.Sprintf("Resource(%d)", r)
}

// MarshalText encodes the resource by name.
func (r Resource) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// UnmarshalText decodes a resource name.
func (r *Resource) UnmarshalText(b []byte) error {
	for i, n := range resourceNames {
		if n == string(b) {
			*r = Resource(i)
			return nil
		}
	}
	return fmt.Errorf("unknown resource %q", b)
}

// DeathCause records why an ant was removed.
type DeathCause uint8

const (
	Alive DeathCause = iota
	Starvation
	OldAge
	Drowned
	Crushed // its cell stopped being traversable
	numCauses
)

var causeNames = [...]string{"Alive", "Starvation", "OldAge", "Drowned", "Crushed"}

func (c DeathCause) String() string {
	if int(c) < len(causeNames) {
		return causeNames[c]
	}
	return fmt.Sprintf("DeathCause(%d)", c)
}

// Ant is one agent's full state.
type Ant struct {
	ID         AntID    `json:"id"`
	Pos        soil.Pos `json:"pos"`
	Age        uint64   `json:"age_ticks"`
	Role       Role     `json:"role"`
	State      State    `json:"state"`
	Energy     float32  `json:"energy"`
	Carrying   Resource `json:"carrying"`
	Load       float32  `json:"load,omitempty"`
	StateTicks uint32   `json:"state_ticks"` // ticks spent in the current state
	Dug        uint16   `json:"dug,omitempty"`
	Submerged  uint16   `json:"submerged,omitempty"` // consecutive ticks on a flooded cell
	LastLay    uint64   `json:"last_lay,omitempty"`  // tick of the queen's last egg

	cause DeathCause
}

// Egg incubates at a fixed position until it hatches into a Larva.
type Egg struct {
	ID        uint64   `json:"id"`
	Pos       soil.Pos `json:"pos"`
	Remaining uint64   `json:"incubation_remaining"`
	LaidAt    uint64   `json:"laid_at"`
}

// Totals are cumulative counters since world creation.
type Totals struct {
	Hatched       uint64            `json:"hatched"`
	EggsLaid      uint64            `json:"eggs_laid"`
	EggsLost      uint64            `json:"eggs_lost"`
	Deliveries    uint64            `json:"deliveries"`
	FoodDelivered float64           `json:"food_delivered"`
	Dug           uint64            `json:"dug"`
	WasteDumped   float64           `json:"waste_dumped"`
	Promotions    uint64            `json:"promotions"`
	Deaths        [numCauses]uint64 `json:"deaths"`
}

// TickReport summarizes one population update.
type TickReport struct {
	Tick          uint64
	LiveBefore    int
	LiveAfter     int
	Hatched       int
	EggsLaid      int
	EggsLost      int
	Deliveries    int
	FoodDelivered float32
	Dug           int
	WasteDumped   float32
	Promotions    int
	Deaths        [numCauses]int
	QueenDied     bool
}

// DeathCount returns the number of ants that died this tick.
func (r TickReport) DeathCount() int {
	n := 0
	for _, d := range r.Deaths[Starvation:] {
		n += d
	}
	return n
}

// DeathsBy returns the deaths this tick with the given cause.
func (r TickReport) DeathsBy(c DeathCause) int {
	if c >= numCauses {
		return 0
	}
	return r.Deaths[c]
}

// DeathCauses lists every cause an ant can die of.
var DeathCauses = []DeathCause{Starvation, OldAge, Drowned, Crushed}
