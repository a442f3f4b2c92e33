package colony

import (
	"errors"
	"fmt"

	"github.com/talgya/antnest/internal/soil"
)

// CheckInvariants verifies the population against grid. It is run by tests
// after every tick and by the loader after a restore; a failure here means
// the update logic is wrong, not the input.
func (p *Population) CheckInvariants(grid *soil.Grid) error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format+": %w", append(args, ErrInvariant)...))
	}

	queens, occupied := 0, 0
	for i := range p.arena.slots {
		a, ok := p.arena.At(i)
		if !ok {
			continue
		}
		if a.ID.Slot() != i {
			fail("ant %d stored in slot %d", a.ID, i)
		}
		if a.Role == Queen {
			queens++
			if a.ID != p.queen {
				fail("queen %d not tracked (tracked %d)", a.ID, p.queen)
			}
		}
		if !p.inBounds(a.Pos) {
			fail("ant %d out of bounds at %v", a.ID, a.Pos)
			continue
		}
		if !grid.Traversable(a.Pos) {
			fail("ant %d on %s at %v", a.ID, grid.At(a.Pos).Kind, a.Pos)
		}
		if got := p.occ[p.index(a.Pos)]; got != int32(i+1) {
			fail("occupancy at %v is %d, want slot %d", a.Pos, got-1, i)
		}
		if maxE := p.MaxEnergy(a.Role); a.Energy < 0 || a.Energy > maxE {
			fail("ant %d energy %v outside [0, %v]", a.ID, a.Energy, maxE)
		}
		if a.State == Dying {
			fail("ant %d survived the tick in Dying state", a.ID)
		}
		if a.Carrying == Nothing && a.Load != 0 {
			fail("ant %d carries nothing with load %v", a.ID, a.Load)
		}
	}
	for _, s := range p.occ {
		if s != 0 {
			occupied++
		}
	}
	if occupied != p.arena.Len() {
		fail("%d occupied cells for %d live ants", occupied, p.arena.Len())
	}
	if queens > 1 {
		fail("%d queens", queens)
	}
	if queens == 0 && p.queen != 0 {
		fail("queen %d tracked but not alive", p.queen)
	}
	laid := make(map[soil.Pos]uint64, len(p.eggs))
	for _, e := range p.eggs {
		if !p.inBounds(e.Pos) {
			fail("egg %d out of bounds at %v", e.ID, e.Pos)
		}
		if other, ok := laid[e.Pos]; ok {
			fail("eggs %d and %d share %v", other, e.ID, e.Pos)
		}
		laid[e.Pos] = e.ID
	}
	if p.reserve < 0 {
		fail("reserve %v", p.reserve)
	}
	if p.waste < 0 {
		fail("waste %v", p.waste)
	}
	return errors.Join(errs...)
}
