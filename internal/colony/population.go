package colony

import (
	"fmt"
	"slices"

	"github.com/talgya/antnest/internal/config"
	"github.com/talgya/antnest/internal/soil"
)

// Population owns every live ant and egg, the queen reference, the colony
// food reserve and nest waste, and the per-cell occupancy index. It is
// owned by the simulation loop.
type Population struct {
	cfg          config.ColonyConfig
	width, depth int
	surfaceRows  int

	arena   Arena
	occ     []int32 // slot+1 of the ant standing on each cell, 0 = empty
	eggs    []Egg
	nextEgg uint64
	queen   AntID // 0 = no queen

	nest    soil.Pos
	reserve float32
	waste   float32

	season         int
	preferredDepth int
	winter         bool

	totals Totals

	// per-tick scratch
	intents []intent
	bonus   []float32
	dying   []int
}

// NewPopulation creates an empty population for a grid of the given shape.
func NewPopulation(cfg config.ColonyConfig, width, depth, surfaceRows int, nest soil.Pos) *Population {
	return &Population{
		cfg:         cfg,
		width:       width,
		depth:       depth,
		surfaceRows: surfaceRows,
		occ:         make([]int32, width*depth),
		nest:        nest,
		nextEgg:     1,
	}
}

// MaxEnergy returns the energy cap for a role.
func (p *Population) MaxEnergy(r Role) float32 {
	switch r {
	case Queen:
		return p.cfg.QueenMaxEnergy
	case Larva:
		return p.cfg.LarvaMaxEnergy
	default:
		return p.cfg.WorkerMaxEnergy
	}
}

func (p *Population) index(pos soil.Pos) int { return pos.Y*p.width + pos.X }

func (p *Population) inBounds(pos soil.Pos) bool {
	return pos.X >= 0 && pos.X < p.width && pos.Y >= 0 && pos.Y < p.depth
}

// Spawn places a new ant. The ant's ID field is ignored and assigned.
// Energy above the role's cap is clamped.
func (p *Population) Spawn(a Ant, grid *soil.Grid) (AntID, error) {
	if !p.inBounds(a.Pos) || !grid.Traversable(a.Pos) {
		return 0, fmt.Errorf("spawn %s at %v: %w", a.Role, a.Pos, ErrBlocked)
	}
	if p.occ[p.index(a.Pos)] != 0 {
		return 0, fmt.Errorf("spawn %s at %v: %w", a.Role, a.Pos, ErrOccupied)
	}
	if a.Role == Queen && p.queen != 0 {
		return 0, fmt.Errorf("spawn second queen: %w", ErrInvariant)
	}
	a.Energy = min(a.Energy, p.MaxEnergy(a.Role))
	a.cause = Alive
	id := p.arena.Insert(a)
	p.occ[p.index(a.Pos)] = int32(id.Slot() + 1)
	if a.Role == Queen {
		p.queen = id
	}
	return id, nil
}

// AddEgg places an egg with the given incubation. Used for seeding and tests.
func (p *Population) AddEgg(pos soil.Pos, incubation uint64, tick uint64) (uint64, error) {
	if !p.inBounds(pos) {
		return 0, fmt.Errorf("egg at %v: %w", pos, soil.ErrOutOfBounds)
	}
	e := Egg{ID: p.nextEgg, Pos: pos, Remaining: incubation, LaidAt: tick}
	p.nextEgg++
	p.eggs = append(p.eggs, e)
	return e.ID, nil
}

// Ant returns a copy of the live ant with id.
func (p *Population) Ant(id AntID) (Ant, bool) {
	a, ok := p.arena.Get(id)
	if !ok {
		return Ant{}, false
	}
	return *a, true
}

// AntAt returns the ant standing on pos.
func (p *Population) AntAt(pos soil.Pos) (Ant, bool) {
	if !p.inBounds(pos) {
		return Ant{}, false
	}
	s := p.occ[p.index(pos)]
	if s == 0 {
		return Ant{}, false
	}
	a, ok := p.arena.At(int(s - 1))
	if !ok {
		return Ant{}, false
	}
	return *a, true
}

// Ants returns copies of every live ant in slot order.
func (p *Population) Ants() []Ant {
	return p.AppendAnts(make([]Ant, 0, p.arena.Len()))
}

// AppendAnts appends copies of every live ant in slot order to dst.
func (p *Population) AppendAnts(dst []Ant) []Ant {
	for i := range p.arena.slots {
		if a, ok := p.arena.At(i); ok {
			dst = append(dst, *a)
		}
	}
	return dst
}

// Eggs returns a copy of every egg.
func (p *Population) Eggs() []Egg { return slices.Clone(p.eggs) }

// Live returns the number of live ants (eggs excluded).
func (p *Population) Live() int { return p.arena.Len() }

// Queen returns the queen's id, or false if the colony has none.
func (p *Population) Queen() (AntID, bool) { return p.queen, p.queen != 0 }

// Reserve returns the colony food reserve.
func (p *Population) Reserve() float32 { return p.reserve }

// SetReserve overwrites the food reserve. Negative values clamp to zero.
func (p *Population) SetReserve(v float32) { p.reserve = max(v, 0) }

// Waste returns the nest waste awaiting removal.
func (p *Population) Waste() float32 { return p.waste }

// Nest returns the nest center.
func (p *Population) Nest() soil.Pos { return p.nest }

// PreferredDepth returns the row workers currently migrate toward.
func (p *Population) PreferredDepth() int { return p.preferredDepth }

// Season returns the season index of the last update.
func (p *Population) Season() int { return p.season }

// Totals returns the cumulative counters.
func (p *Population) Totals() Totals { return p.totals }

// Counts tallies live ants by role and state.
type Counts struct {
	ByRole  map[string]int `json:"by_role"`
	ByState map[string]int `json:"by_state"`
	Eggs    int            `json:"eggs"`
}

// Count returns the current role and state tallies.
func (p *Population) Count() Counts {
	c := Counts{ByRole: make(map[string]int), ByState: make(map[string]int), Eggs: len(p.eggs)}
	for i := range p.arena.slots {
		if a, ok := p.arena.At(i); ok {
			c.ByRole[a.Role.String()]++
			c.ByState[a.State.String()]++
		}
	}
	return c
}

func (p *Population) inNest(pos soil.Pos) bool {
	return soil.Dist(pos, p.nest) <= p.cfg.NestRadius
}

// PopulationState is the persisted form of a population.
type PopulationState struct {
	Slots   []SlotState `json:"slots"`
	Free    []int       `json:"free"`
	Eggs    []Egg       `json:"eggs"`
	NextEgg uint64      `json:"next_egg"`
	Reserve float32     `json:"reserve"`
	Waste   float32     `json:"waste"`
	Nest    soil.Pos    `json:"nest"`
	Totals  Totals      `json:"totals"`
}

// State captures everything needed to reproduce future updates.
func (p *Population) State() PopulationState {
	slots, free := p.arena.export()
	return PopulationState{
		Slots:   slots,
		Free:    free,
		Eggs:    slices.Clone(p.eggs),
		NextEgg: p.nextEgg,
		Reserve: p.reserve,
		Waste:   p.waste,
		Nest:    p.nest,
		Totals:  p.totals,
	}
}

// Restore rebuilds a population from saved state, including slot
// generations and the free list so ids and iteration order match.
func Restore(cfg config.ColonyConfig, width, depth, surfaceRows int, st PopulationState) (*Population, error) {
	p := NewPopulation(cfg, width, depth, surfaceRows, st.Nest)
	p.arena.restore(st.Slots, st.Free)
	p.eggs = slices.Clone(st.Eggs)
	p.nextEgg = st.NextEgg
	p.reserve = st.Reserve
	p.waste = st.Waste
	p.totals = st.Totals

	for i := range p.arena.slots {
		a, ok := p.arena.At(i)
		if !ok {
			continue
		}
		if !p.inBounds(a.Pos) {
			return nil, fmt.Errorf("restore ant %d at %v: %w", a.ID, a.Pos, soil.ErrOutOfBounds)
		}
		idx := p.index(a.Pos)
		if p.occ[idx] != 0 {
			return nil, fmt.Errorf("restore ant %d at %v: %w", a.ID, a.Pos, ErrOccupied)
		}
		p.occ[idx] = int32(i + 1)
		if a.Role == Queen {
			if p.queen != 0 {
				return nil, fmt.Errorf("restore second queen: %w", ErrInvariant)
			}
			p.queen = a.ID
		}
	}
	return p, nil
}
