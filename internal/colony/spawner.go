package colony

import (
	"fmt"
	"log/slog"

	"github.com/talgya/antnest/internal/config"
	"github.com/talgya/antnest/internal/entropy"
	"github.com/talgya/antnest/internal/soil"
)

// Seed places the founding colony: the queen at the nest center, then
// larvae, juniors and seniors on random free chamber cells. Ants that do
// not fit are skipped with a warning.
func (p *Population) Seed(w config.WorldConfig, grid *soil.Grid, rng *entropy.Source) error {
	maxE := p.MaxEnergy(Queen)
	if _, err := p.Spawn(Ant{Pos: p.nest, Role: Queen, State: Resting, Energy: maxE}, grid); err != nil {
		return fmt.Errorf("seed queen: %w", err)
	}

	free := p.chamberCells(grid, w.ChamberRadius)
	rng.Shuffle(len(free), func(i, j int) { free[i], free[j] = free[j], free[i] })

	place := func(role Role, n int) {
		for k := 0; k < n; k++ {
			if len(free) == 0 {
				slog.Warn("nest chamber full, colony seeded short", "role", role, "placed", k, "wanted", n)
				return
			}
			pos := free[len(free)-1]
			free = free[:len(free)-1]
			a := Ant{
				Pos:    pos,
				Role:   role,
				State:  Resting,
				Energy: p.MaxEnergy(role) * (0.8 + 0.2*rng.Float32()),
				Age:    p.startAge(role, rng),
			}
			if _, err := p.Spawn(a, grid); err != nil {
				slog.Warn("seed ant skipped", "role", role, "pos", pos, "error", err)
			}
		}
	}
	place(Larva, w.InitialLarvae)
	place(JuniorWorker, w.InitialJuniors)
	place(SeniorWorker, w.InitialSeniors)

	p.reserve = max(w.InitialReserve, 0)
	return nil
}

// startAge staggers founding ants across their role's age band so
// promotions and old-age deaths do not all land on the same tick.
func (p *Population) startAge(r Role, rng *entropy.Source) uint64 {
	switch r {
	case Larva:
		return uint64(rng.IntN(int(p.cfg.LarvaAge/2) + 1))
	case JuniorWorker:
		span := p.cfg.SeniorAge - p.cfg.LarvaAge
		return p.cfg.LarvaAge + uint64(rng.IntN(int(span/2)+1))
	case SeniorWorker:
		return p.cfg.SeniorAge + uint64(rng.IntN(int(p.cfg.SeniorAge/2)+1))
	}
	return 0
}

// chamberCells lists the unoccupied traversable cells around the nest
// center in row-major order.
func (p *Population) chamberCells(grid *soil.Grid, radius int) []soil.Pos {
	r := max(radius, 1)
	var out []soil.Pos
	for dy := -r; dy <= r; dy++ {
		for dx := -2 * r; dx <= 2*r; dx++ {
			pos := soil.Pos{X: p.nest.X + dx, Y: p.nest.Y + dy}
			if !p.inBounds(pos) || !grid.Traversable(pos) || p.occ[p.index(pos)] != 0 {
				continue
			}
			out = append(out, pos)
		}
	}
	return out
}
