package engine

import (
	"fmt"
	"log/slog"

	"github.com/talgya/antnest/internal/colony"
	"github.com/talgya/antnest/internal/config"
	"github.com/talgya/antnest/internal/disaster"
	"github.com/talgya/antnest/internal/entropy"
	"github.com/talgya/antnest/internal/soil"
)

// State is everything needed to rebuild a Simulation that produces the
// same future ticks as the one it was captured from.
type State struct {
	Tick         uint64                 `json:"tick"`
	Seed         int64                  `json:"seed"`
	RunID        string                 `json:"run_id"`
	RNG          []byte                 `json:"rng"`
	Clock        ClockState             `json:"clock"`
	Width        int                    `json:"width"`
	Depth        int                    `json:"depth"`
	Cells        []soil.Cell            `json:"cells"`
	Colony       colony.PopulationState `json:"colony"`
	Disasters    []disaster.Event       `json:"disasters"`
	NextDisaster uint64                 `json:"next_disaster"`
	Events       []Event                `json:"events"`
}

// Capture copies the full state between ticks.
func (s *Simulation) Capture() (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rng, err := s.rng.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("capture rng: %w", err)
	}
	return &State{
		Tick:         s.tick,
		Seed:         s.seed,
		RunID:        s.runID,
		RNG:          rng,
		Clock:        s.Clock.State(),
		Width:        s.Grid.Width(),
		Depth:        s.Grid.Depth(),
		Cells:        s.Grid.Cells(),
		Colony:       s.Colony.State(),
		Disasters:    s.Disasters.Active(),
		NextDisaster: s.Disasters.NextID(),
		Events:       s.events.recent(0),
	}, nil
}

// Restore rebuilds a simulation from a captured state. The grid shape in
// st wins over cfg.World, so a save stays loadable after the config
// changes; cfg supplies every tunable.
func Restore(cfg *config.Config, st *State) (*Simulation, error) {
	if st.Width*st.Depth != len(st.Cells) {
		return nil, fmt.Errorf("restore: %d cells for a %dx%d grid: %w", len(st.Cells), st.Width, st.Depth, soil.ErrOutOfBounds)
	}
	world := cfg.World
	world.Width, world.Depth = st.Width, st.Depth
	c := *cfg
	c.World = world

	grid := soil.New(st.Width, st.Depth, c.Soil)
	if err := grid.Load(st.Cells); err != nil {
		return nil, fmt.Errorf("restore grid: %w", err)
	}
	pop, err := colony.Restore(c.Colony, st.Width, st.Depth, world.SurfaceRows, st.Colony)
	if err != nil {
		return nil, fmt.Errorf("restore colony: %w", err)
	}
	if err := pop.CheckInvariants(grid); err != nil {
		return nil, fmt.Errorf("restore colony: %w", err)
	}

	rng := entropy.New(0)
	if err := rng.UnmarshalBinary(st.RNG); err != nil {
		return nil, err
	}

	dis := disaster.NewSystem(c.Disasters)
	dis.Restore(st.Disasters, st.NextDisaster)

	s := newSimulation(&c, grid, pop, dis, rng)
	s.tick = st.Tick
	s.seed = st.Seed
	s.runID = st.RunID
	s.Clock.Restore(st.Clock)
	s.events.restore(st.Events)
	s.extinct = pop.Live() == 0 && len(pop.Eggs()) == 0
	s.lastMod = dis.Modifier()
	s.publish()

	slog.Info("world restored", "tick", st.Tick, "ants", pop.Live(), "eggs", len(pop.Eggs()), "disasters", len(st.Disasters), "run_id", st.RunID)
	return s, nil
}
