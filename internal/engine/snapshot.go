package engine

import (
	"github.com/talgya/antnest/internal/colony"
	"github.com/talgya/antnest/internal/disaster"
	"github.com/talgya/antnest/internal/soil"
)

// View is an immutable copy of the world as of the end of one tick.
// Readers may hold it as long as they like; it is never mutated after
// publication.
type View struct {
	Generation uint64 `json:"generation"`
	Tick       uint64 `json:"tick"`
	Time       string `json:"time"`
	Season     string `json:"season"`
	RunID      string `json:"run_id"`

	Width  int         `json:"width"`
	Depth  int         `json:"depth"`
	Cells  []soil.Cell `json:"cells,omitempty"` // row-major, y*width+x

	Ants      []colony.Ant      `json:"ants"`
	Eggs      []colony.Egg      `json:"eggs"`
	Counts    colony.Counts     `json:"counts"`
	Totals    colony.Totals     `json:"totals"`
	Reserve   float32           `json:"reserve"`
	Waste     float32           `json:"waste"`
	Nest      soil.Pos          `json:"nest"`
	Disasters []disaster.Event  `json:"disasters"`
	Modifier  disaster.Modifier `json:"modifier"`

	Scale  int  `json:"scale"`
	Paused bool `json:"paused"`
}

// Cell returns the cell at (x, y) in the view.
func (v *View) Cell(x, y int) (soil.Cell, error) {
	if x < 0 || x >= v.Width || y < 0 || y >= v.Depth || len(v.Cells) != v.Width*v.Depth {
		return soil.Cell{}, soil.ErrOutOfBounds
	}
	return v.Cells[y*v.Width+x], nil
}

// Live returns the number of ants in the view.
func (v *View) Live() int { return len(v.Ants) }

// publish rebuilds the view from the current state and swaps it in.
// Called with s.mu held.
func (s *Simulation) publish() {
	v := &View{
		Generation: s.gen.Add(1),
		Tick:       s.tick,
		Time:       s.Calendar.SimTime(s.tick),
		Season:     s.Calendar.Season(s.tick).Name,
		RunID:      s.runID,
		Width:      s.Grid.Width(),
		Depth:      s.Grid.Depth(),
		Cells:      s.Grid.Cells(),
		Ants:       s.Colony.Ants(),
		Eggs:       s.Colony.Eggs(),
		Counts:     s.Colony.Count(),
		Totals:     s.Colony.Totals(),
		Reserve:    s.Colony.Reserve(),
		Waste:      s.Colony.Waste(),
		Nest:       s.Colony.Nest(),
		Disasters:  s.Disasters.Active(),
		Modifier:   s.lastMod,
		Scale:      s.Clock.Scale(),
		Paused:     s.Clock.Paused(),
	}
	s.view.Store(v)
}

// Snapshot returns the latest published view. It never blocks the loop.
func (s *Simulation) Snapshot() *View { return s.view.Load() }

// Generation returns the number of views published so far.
func (s *Simulation) Generation() uint64 { return s.gen.Load() }
