package colony

import (
	"log/slog"

	"github.com/talgya/antnest/internal/disaster"
	"github.com/talgya/antnest/internal/entropy"
	"github.com/talgya/antnest/internal/parallel"
	"github.com/talgya/antnest/internal/soil"
)

// Advance runs one population update against grid.
//
// Every ant decides from the same pre-tick snapshot, possibly in parallel.
// Intents are then committed serially in slot order, so two ants racing
// for one cell resolve the same way on every run. Deaths and hatchings
// are applied after the commit loop; newly laid eggs join the brood at
// the very end so they never move within the tick they were laid.
func (p *Population) Advance(grid *soil.Grid, ctx TickContext) TickReport {
	if ctx.Modifier == (disaster.Modifier{}) {
		ctx.Modifier = disaster.Neutral()
	}
	p.season = ctx.Season
	p.preferredDepth = ctx.PreferredDepth
	p.winter = ctx.Winter

	rep := TickReport{Tick: ctx.Tick, LiveBefore: p.arena.Len()}

	n := p.arena.Slots()
	p.intents = resize(p.intents, n)
	p.bonus = resize(p.bonus, n)
	clear(p.bonus)
	p.dying = p.dying[:0]

	v := &view{p: p, grid: grid, ctx: ctx, brood: p.hasBrood()}
	parallel.For(n, p.cfg.ParallelMinAnts, func(lo, hi int) {
		var rng entropy.Local
		for i := lo; i < hi; i++ {
			a, ok := p.arena.At(i)
			if !ok {
				p.intents[i] = intent{skip: true}
				continue
			}
			rng.Reseed(ctx.Seed, uint64(a.ID))
			p.intents[i] = v.decide(*a, &rng)
		}
	})

	var pending []Egg
	for i := range p.intents {
		it := &p.intents[i]
		if it.skip {
			continue
		}
		a, _ := p.arena.At(i)
		prev := a.Role
		*a = it.next
		if it.die != Alive {
			a.cause = it.die
			a.State = Dying
			p.dying = append(p.dying, i)
			continue
		}
		if a.Role != prev {
			rep.Promotions++
		}
		if egg, ok := p.apply(grid, i, a, it, &rep, ctx.Tick); ok {
			pending = append(pending, egg)
		}
	}

	for i, b := range p.bonus {
		if b == 0 {
			continue
		}
		if a, ok := p.arena.At(i); ok && a.State != Dying {
			a.Energy = min(a.Energy+b, p.MaxEnergy(a.Role))
		}
	}

	for i := range p.eggs {
		if p.eggs[i].Remaining > 0 {
			p.eggs[i].Remaining--
		}
	}

	p.removeDying(&rep)
	p.hatch(grid, &rep)
	p.eggs = append(p.eggs, pending...)

	rep.LiveAfter = p.arena.Len()
	p.record(&rep)
	return rep
}

func resize[T any](s []T, n int) []T {
	if cap(s) < n {
		return make([]T, n)
	}
	return s[:n]
}

func (p *Population) hasBrood() bool {
	if len(p.eggs) > 0 {
		return true
	}
	for i := range p.arena.slots {
		if a, ok := p.arena.At(i); ok && a.Role == Larva {
			return true
		}
	}
	return false
}

// apply validates one intent against the live state and commits it.
// A stale action fails quietly and the ant keeps its new record.
func (p *Population) apply(grid *soil.Grid, slot int, a *Ant, it *intent, rep *TickReport, tick uint64) (Egg, bool) {
	cfg := &p.cfg
	switch it.act {
	case actMove:
		p.moveTo(grid, slot, a, it.at, p.cfg.MoveDrain)

	case actDig:
		if !p.inBounds(it.at) || grid.At(it.at).Kind != soil.Soil {
			return Egg{}, false
		}
		if _, err := grid.ApplyLocalChange(it.at, soil.Dig()); err != nil {
			slog.Debug("dig rejected", "ant", a.ID, "at", it.at, "error", err)
			return Egg{}, false
		}
		a.Dug++
		rep.Dug++

	case actTakeFood:
		c := grid.At(it.at)
		if c.Kind != soil.FoodDeposit || c.Food <= 0 || a.Carrying != Nothing {
			return Egg{}, false
		}
		take := min(cfg.FoodBite, c.Food)
		if _, err := grid.ApplyLocalChange(it.at, soil.TakeFood(take)); err != nil {
			slog.Debug("take food rejected", "ant", a.ID, "at", it.at, "error", err)
			return Egg{}, false
		}
		a.Carrying, a.Load = Food, take
		a.State, a.StateTicks = Returning, 0

	case actDeliver:
		if a.Carrying != Food {
			return Egg{}, false
		}
		p.reserve += a.Load * cfg.ReservePerFood
		p.waste += cfg.WastePerDelivery
		rep.Deliveries++
		rep.FoodDelivered += a.Load
		a.Carrying, a.Load = Nothing, 0
		a.State, a.StateTicks = Resting, 0

	case actEat:
		take := min(it.amount, p.reserve)
		if take <= 0 {
			return Egg{}, false
		}
		p.reserve -= take
		a.Energy = min(a.Energy+take*cfg.FoodEnergy, p.MaxEnergy(a.Role))

	case actPickWaste:
		if p.waste < 1 || a.Carrying != Nothing {
			return Egg{}, false
		}
		p.waste--
		a.Carrying, a.Load = Waste, 1
		a.State, a.StateTicks = Dumping, 0

	case actReturnWaste:
		if a.Carrying == Waste {
			p.waste += a.Load
			a.Carrying, a.Load = Nothing, 0
		}

	case actDump, actNewDump:
		if a.Carrying != Waste {
			return Egg{}, false
		}
		c := grid.At(it.at)
		ch := soil.DepositWaste(a.Load)
		if it.act == actNewDump {
			if c.Kind != soil.Soil {
				return Egg{}, false
			}
			ch = soil.NewDump(a.Load)
		} else if c.Kind != soil.WasteDump || c.Waste >= grid.Config().WasteCap {
			return Egg{}, false
		}
		if _, err := grid.ApplyLocalChange(it.at, ch); err != nil {
			slog.Debug("dump rejected", "ant", a.ID, "at", it.at, "error", err)
			return Egg{}, false
		}
		rep.WasteDumped += a.Load
		a.Carrying, a.Load = Nothing, 0
		a.State, a.StateTicks = Resting, 0

	case actTend:
		l, ok := p.arena.Get(it.target)
		if !ok || l.Role != Larva || p.reserve < cfg.TendCost {
			return Egg{}, false
		}
		p.reserve -= cfg.TendCost
		p.bonus[it.target.Slot()] += cfg.TendEnergy

	case actLay:
		if !p.layAllowed(*a, tick) || p.eggAt(a.Pos) {
			return Egg{}, false
		}
		// The queen must step off the egg onto a cell without one, or
		// neither could hatch.
		at := a.Pos
		moved := false
		for k := range soil.Directions {
			to := at.Add(soil.Directions[(it.aside+k)%len(soil.Directions)])
			if !p.eggAt(to) && p.moveTo(grid, slot, a, to, 0) {
				moved = true
				break
			}
		}
		if !moved {
			return Egg{}, false
		}
		p.reserve -= cfg.EggLayCost
		a.Energy = max(a.Energy-cfg.EggEnergyCost, 0)
		a.LastLay = tick
		egg := Egg{ID: p.nextEgg, Pos: at, Remaining: cfg.IncubationTicks, LaidAt: tick}
		p.nextEgg++
		rep.EggsLaid++
		return egg, true
	}
	return Egg{}, false
}

// layAllowed rechecks the laying conditions against the live reserve,
// which earlier commits this tick may have drawn down.
func (p *Population) layAllowed(q Ant, tick uint64) bool {
	cfg := &p.cfg
	if q.Energy <= cfg.LayEnergyThreshold || p.reserve < cfg.LayReserveThreshold || p.reserve < cfg.EggLayCost {
		return false
	}
	if q.LastLay != 0 && tick-q.LastLay < cfg.LayInterval {
		return false
	}
	return cfg.PopulationCap <= 0 || p.arena.Len()+len(p.eggs) < cfg.PopulationCap
}

func (p *Population) eggAt(pos soil.Pos) bool {
	for _, e := range p.eggs {
		if e.Pos == pos {
			return true
		}
	}
	return false
}

// moveTo steps a to an adjacent free traversable cell and updates the
// occupancy index.
func (p *Population) moveTo(grid *soil.Grid, slot int, a *Ant, to soil.Pos, cost float32) bool {
	if soil.Dist(a.Pos, to) != 1 || !grid.Traversable(to) {
		return false
	}
	ti := p.index(to)
	if p.occ[ti] != 0 {
		return false
	}
	p.occ[p.index(a.Pos)] = 0
	p.occ[ti] = int32(slot + 1)
	a.Pos = to
	a.Energy = max(a.Energy-cost, 0)
	return true
}

func (p *Population) removeDying(rep *TickReport) {
	for _, i := range p.dying {
		a, ok := p.arena.At(i)
		if !ok {
			continue
		}
		cause := a.cause
		if cause == Alive || cause >= numCauses {
			cause = Starvation
		}
		rep.Deaths[cause]++
		if a.ID == p.queen {
			p.queen = 0
			rep.QueenDied = true
		}
		oi := p.index(a.Pos)
		if p.occ[oi] == int32(i+1) {
			p.occ[oi] = 0
		}
		p.arena.Remove(a.ID)
	}
}

// hatch turns eggs that finished incubating into larvae. An egg whose cell
// has collapsed is lost; one whose cell is occupied waits a tick.
func (p *Population) hatch(grid *soil.Grid, rep *TickReport) {
	kept := p.eggs[:0]
	for _, e := range p.eggs {
		if e.Remaining > 0 {
			kept = append(kept, e)
			continue
		}
		if !grid.Traversable(e.Pos) {
			rep.EggsLost++
			continue
		}
		if p.occ[p.index(e.Pos)] != 0 {
			kept = append(kept, e)
			continue
		}
		larva := Ant{
			Pos:    e.Pos,
			Role:   Larva,
			State:  Resting,
			Energy: p.cfg.HatchEnergy * p.cfg.LarvaMaxEnergy,
		}
		id := p.arena.Insert(larva)
		p.occ[p.index(e.Pos)] = int32(id.Slot() + 1)
		rep.Hatched++
	}
	p.eggs = kept
}

func (p *Population) record(rep *TickReport) {
	t := &p.totals
	t.Hatched += uint64(rep.Hatched)
	t.EggsLaid += uint64(rep.EggsLaid)
	t.EggsLost += uint64(rep.EggsLost)
	t.Deliveries += uint64(rep.Deliveries)
	t.FoodDelivered += float64(rep.FoodDelivered)
	t.Dug += uint64(rep.Dug)
	t.WasteDumped += float64(rep.WasteDumped)
	t.Promotions += uint64(rep.Promotions)
	for c, n := range rep.Deaths {
		t.Deaths[c] += uint64(n)
	}
}
