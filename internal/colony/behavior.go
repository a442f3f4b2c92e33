package colony

import (
	"github.com/talgya/antnest/internal/disaster"
	"github.com/talgya/antnest/internal/entropy"
	"github.com/talgya/antnest/internal/soil"
)

// action is the single grid or colony effect an ant requests in a tick.
type action uint8

const (
	actNone action = iota
	actMove
	actDig
	actTakeFood
	actDeliver
	actEat
	actPickWaste
	actReturnWaste
	actDump
	actNewDump
	actTend
	actLay
)

// intent is one ant's buffered decision. next replaces the ant record at
// commit; the action is validated against live state at commit.
type intent struct {
	skip   bool
	next   Ant
	act    action
	at     soil.Pos
	target AntID
	amount float32
	aside  int // first direction tried when the queen steps off a new egg
	die    DeathCause
}

// TickContext carries the per-tick inputs shared by every ant.
type TickContext struct {
	Tick           uint64
	Seed           uint64 // seeds each ant's local random stream
	Modifier       disaster.Modifier
	Season         int
	PreferredDepth int
	Winter         bool
}

// view is the frozen pre-tick state an ant decides from.
type view struct {
	p     *Population
	grid  *soil.Grid
	ctx   TickContext
	brood bool
}

// decide computes one ant's intent. It only reads shared state.
func (v *view) decide(a Ant, rng *entropy.Local) intent {
	cfg := &v.p.cfg
	n := a
	n.Age++
	n.StateTicks++
	it := intent{next: n}

	if !v.grid.Traversable(a.Pos) {
		it.die = Crushed
		return it
	}
	if a.Energy <= 0 {
		it.die = Starvation
		return it
	}
	if v.grid.Flooded(a.Pos) {
		it.next.Submerged++
		if int(it.next.Submerged) > cfg.SubmergeTolerance {
			it.die = Drowned
			return it
		}
	} else {
		it.next.Submerged = 0
	}

	switch a.Role {
	case Queen:
		if cfg.QueenMaxAge > 0 && n.Age >= cfg.QueenMaxAge {
			it.die = OldAge
			return it
		}
	case Larva:
		if n.Age >= cfg.LarvaAge {
			it.next.Role = JuniorWorker
			it.next.State = Resting
			it.next.StateTicks = 0
		}
	case JuniorWorker:
		if n.Age >= cfg.SeniorAge {
			it.next.Role = SeniorWorker
		}
		fallthrough
	case SeniorWorker:
		if cfg.WorkerMaxAge > 0 && n.Age >= cfg.WorkerMaxAge {
			it.die = OldAge
			return it
		}
	}

	v.drain(&it)
	if it.next.Energy <= 0 {
		it.next.Energy = 0
		it.die = Starvation
		return it
	}

	switch it.next.Role {
	case Queen:
		v.decideQueen(&it, rng)
	case Larva:
		it.next.State = Resting
	default:
		v.decideWorker(&it, rng)
	}
	return it
}

func (v *view) drain(it *intent) {
	cfg := &v.p.cfg
	a := &it.next
	var d float32
	switch a.Role {
	case Queen:
		d = cfg.QueenDrain
	case Larva:
		d = cfg.LarvaDrain
	default:
		d = cfg.BaseDrain
	}
	if a.State == Dormant {
		d *= cfg.DormantDrain
	}
	d *= v.ctx.Modifier.EnergyDrain
	if a.Carrying != Nothing {
		d += cfg.CarryDrain
	}
	a.Energy -= d
}

func (v *view) decideQueen(it *intent, rng *entropy.Local) {
	cfg := &v.p.cfg
	q := &it.next
	q.State = Resting
	if q.Energy < cfg.QueenHunger*cfg.QueenMaxEnergy && v.p.reserve > 0 {
		it.act = actEat
		it.amount = cfg.EatRate
		return
	}
	if v.canLay(*q) {
		it.act = actLay
		it.at = q.Pos
		it.aside = rng.IntN(len(soil.Directions))
	}
}

// canLay checks the laying conditions against the pre-tick state.
// Commit checks them again against the live reserve.
func (v *view) canLay(q Ant) bool {
	cfg := &v.p.cfg
	if q.Energy <= cfg.LayEnergyThreshold || v.p.reserve < cfg.LayReserveThreshold {
		return false
	}
	if q.LastLay != 0 && v.ctx.Tick-q.LastLay < cfg.LayInterval {
		return false
	}
	if cfg.PopulationCap > 0 && v.p.arena.Len()+len(v.p.eggs) >= cfg.PopulationCap {
		return false
	}
	return v.freeNeighbor(q.Pos)
}

// freeNeighbor reports whether some adjacent cell is traversable, empty
// and free of eggs.
func (v *view) freeNeighbor(pos soil.Pos) bool {
	for _, d := range soil.Directions {
		to := pos.Add(d)
		if v.grid.Traversable(to) && v.p.occ[v.p.index(to)] == 0 && !v.p.eggAt(to) {
			return true
		}
	}
	return false
}

func (v *view) setState(it *intent, s State) {
	if it.next.State != s {
		it.next.State = s
		it.next.StateTicks = 0
	}
}

func (v *view) decideWorker(it *intent, rng *entropy.Local) {
	cfg := &v.p.cfg
	a := &it.next
	maxE := v.p.MaxEnergy(a.Role)

	if v.ctx.Winter {
		if a.State != Dormant && a.Carrying == Nothing && a.Energy >= cfg.RestThreshold*maxE && v.atWinterDepth(a.Pos) {
			v.setState(it, Dormant)
			return
		}
	} else if a.State == Dormant {
		v.setState(it, Resting)
	}

	if a.Energy < cfg.RestThreshold*maxE && v.p.reserve > 0 && a.State != Resting && a.State != Dormant {
		v.setState(it, Resting)
	}

	switch a.State {
	case Dormant:
		if a.Energy < cfg.RestThreshold*maxE {
			v.setState(it, Resting)
		}
	case Resting:
		v.rest(it, rng, maxE)
	case Foraging:
		v.forage(it, rng)
	case Returning:
		v.returnHome(it, rng)
	case Digging:
		v.dig(it, rng)
	case Dumping:
		v.dump(it, rng)
	case Tending:
		v.tend(it, rng)
	}
}

// atWinterDepth reports whether pos is at or below the preferred depth, or
// at the bottom of its tunnel with nowhere deeper to go.
func (v *view) atWinterDepth(pos soil.Pos) bool {
	if pos.Y < v.p.surfaceRows {
		return false
	}
	if pos.Y >= v.ctx.PreferredDepth {
		return true
	}
	return !v.grid.Traversable(pos.Add(soil.Pos{Y: 1}))
}

func (v *view) rest(it *intent, rng *entropy.Local, maxE float32) {
	cfg := &v.p.cfg
	a := &it.next
	home := v.p.inNest(a.Pos)

	switch {
	case a.Carrying == Food && home:
		it.act = actDeliver
		return
	case a.Carrying == Waste && home:
		it.act = actReturnWaste
		return
	case !home:
		v.stepToward(it, v.p.nest, rng, true)
		return
	}

	if a.Energy < cfg.RestResume*maxE && v.p.reserve > 0 {
		it.act = actEat
		it.amount = cfg.EatRate
		return
	}
	if v.ctx.Winter {
		v.stepToward(it, soil.Pos{X: a.Pos.X, Y: v.ctx.PreferredDepth}, rng, false)
		return
	}
	v.chooseTask(it, rng)
}

// chooseTask picks the next job by role: seniors lean toward foraging and
// digging, juniors toward brood care and waste removal.
func (v *view) chooseTask(it *intent, rng *entropy.Local) {
	cfg := &v.p.cfg
	a := &it.next
	r := rng.Float32()

	if a.Role == SeniorWorker {
		if r < cfg.SeniorForageBias {
			v.setState(it, Foraging)
		} else {
			v.setState(it, Digging)
			a.Dug = 0
		}
		return
	}

	switch {
	case v.brood && r < cfg.JuniorTendBias:
		v.setState(it, Tending)
	case v.p.waste >= 1:
		it.act = actPickWaste
	case rng.Float32() < cfg.JuniorIdleChance && v.p.reserve > 0:
		// idle in the nest
	default:
		v.setState(it, Foraging)
	}
}

func (v *view) forage(it *intent, rng *entropy.Local) {
	cfg := &v.p.cfg
	a := &it.next
	if int(a.StateTicks) > cfg.TaskTimeout {
		v.setState(it, Resting)
		return
	}

	for _, nb := range a.Pos.Neighbors() {
		if c := v.grid.At(nb); v.grid.InBounds(nb) && c.Kind == soil.FoodDeposit && c.Food > 0 {
			it.act = actTakeFood
			it.at = nb
			return
		}
	}

	if target, ok := v.nearest(a.Pos, func(c soil.Cell) bool { return c.Kind == soil.FoodDeposit && c.Food > 0 }); ok {
		v.stepToward(it, target, rng, true)
		return
	}

	if a.Role == SeniorWorker && v.adjacentSoil(a.Pos) && rng.Float32() < cfg.DigChance {
		v.setState(it, Digging)
		a.Dug = 0
		return
	}
	v.explore(it, rng)
}

// explore heads for the surface, then wanders along it.
func (v *view) explore(it *intent, rng *entropy.Local) {
	a := &it.next
	ground := v.p.surfaceRows - 1
	if ground < 0 {
		ground = 0
	}
	if a.Pos.Y > ground {
		v.stepToward(it, soil.Pos{X: a.Pos.X, Y: ground}, rng, false)
		if it.act == actNone {
			v.wander(it, rng)
		}
		return
	}
	dx := rng.IntN(2)*2 - 1
	v.stepToward(it, soil.Pos{X: a.Pos.X + dx*4, Y: ground}, rng, false)
	if it.act == actNone {
		v.wander(it, rng)
	}
}

func (v *view) returnHome(it *intent, rng *entropy.Local) {
	a := &it.next
	if a.Carrying != Food {
		v.setState(it, Resting)
		return
	}
	if v.p.inNest(a.Pos) {
		it.act = actDeliver
		return
	}
	v.stepToward(it, v.p.nest, rng, true)
}

func (v *view) dig(it *intent, rng *entropy.Local) {
	cfg := &v.p.cfg
	a := &it.next
	if int(a.Dug) >= cfg.DigQuota || int(a.StateTicks) > cfg.TaskTimeout {
		v.setState(it, Resting)
		return
	}

	var dirs [3]soil.Pos
	side := soil.Pos{X: rng.IntN(2)*2 - 1}
	switch target := v.ctx.PreferredDepth; {
	case a.Pos.Y < target:
		dirs = [3]soil.Pos{{Y: 1}, side, {X: -side.X}}
	case a.Pos.Y > target:
		dirs = [3]soil.Pos{{Y: -1}, side, {X: -side.X}}
	default:
		dirs = [3]soil.Pos{side, {X: -side.X}, {Y: 1}}
	}

	for _, d := range dirs {
		nb := a.Pos.Add(d)
		if v.diggable(nb) {
			it.act = actDig
			it.at = nb
			return
		}
		if v.free(nb) {
			v.move(it, nb, rng)
			return
		}
	}
	v.wander(it, rng)
}

func (v *view) dump(it *intent, rng *entropy.Local) {
	cfg := &v.p.cfg
	a := &it.next
	if a.Carrying != Waste {
		v.setState(it, Resting)
		return
	}
	if int(a.StateTicks) > cfg.TaskTimeout {
		v.setState(it, Resting)
		return
	}

	wasteCap := v.grid.Config().WasteCap
	open := func(c soil.Cell) bool { return c.Kind == soil.WasteDump && c.Waste < wasteCap }

	for _, nb := range a.Pos.Neighbors() {
		if v.grid.InBounds(nb) && open(v.grid.At(nb)) {
			it.act = actDump
			it.at = nb
			return
		}
	}
	if target, ok := v.nearest(a.Pos, open); ok {
		v.stepToward(it, target, rng, false)
		return
	}

	if soil.Dist(a.Pos, v.p.nest) >= cfg.WasteDumpDistance {
		for _, nb := range a.Pos.Neighbors() {
			if v.diggable(nb) {
				it.act = actNewDump
				it.at = nb
				return
			}
		}
	}

	// Head away from the nest along the current side.
	dx := 1
	if a.Pos.X < v.p.nest.X || (a.Pos.X == v.p.nest.X && rng.IntN(2) == 0) {
		dx = -1
	}
	away := soil.Pos{X: a.Pos.X + dx*cfg.WasteDumpDistance, Y: max(a.Pos.Y, v.p.surfaceRows)}
	v.stepToward(it, away, rng, true)
}

func (v *view) tend(it *intent, rng *entropy.Local) {
	cfg := &v.p.cfg
	a := &it.next
	if !v.brood || int(a.StateTicks) > cfg.TaskTimeout {
		v.setState(it, Resting)
		return
	}

	for _, nb := range a.Pos.Neighbors() {
		if l, ok := v.p.AntAt(nb); ok && l.Role == Larva && l.Energy < 0.9*cfg.LarvaMaxEnergy && v.p.reserve >= cfg.TendCost {
			it.act = actTend
			it.target = l.ID
			return
		}
	}

	if target, ok := v.nearestBrood(a.Pos); ok {
		if soil.Dist(target, a.Pos) > 1 {
			v.stepToward(it, target, rng, false)
		}
		return
	}
	if !v.p.inNest(a.Pos) {
		v.stepToward(it, v.p.nest, rng, true)
	}
}

// nearest scans the sense radius for the closest cell matching want.
// Ties go to the first cell in row-major order.
func (v *view) nearest(from soil.Pos, want func(soil.Cell) bool) (soil.Pos, bool) {
	r := v.p.cfg.SenseRadius
	best, bestD := soil.Pos{}, r+1
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			p := soil.Pos{X: from.X + dx, Y: from.Y + dy}
			d := soil.Dist(p, from)
			if d > r || d >= bestD || d == 0 || !v.grid.InBounds(p) {
				continue
			}
			if want(v.grid.At(p)) {
				best, bestD = p, d
			}
		}
	}
	return best, bestD <= r
}

// nearestBrood finds the closest larva or egg within the sense radius.
func (v *view) nearestBrood(from soil.Pos) (soil.Pos, bool) {
	r := v.p.cfg.SenseRadius
	best, bestD := soil.Pos{}, r+1
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			p := soil.Pos{X: from.X + dx, Y: from.Y + dy}
			d := soil.Dist(p, from)
			if d > r || d >= bestD || d == 0 {
				continue
			}
			if l, ok := v.p.AntAt(p); ok && l.Role == Larva {
				best, bestD = p, d
			}
		}
	}
	for _, e := range v.p.eggs {
		if d := soil.Dist(e.Pos, from); d > 0 && d < bestD {
			best, bestD = e.Pos, d
		}
	}
	return best, bestD <= r
}

func (v *view) adjacentSoil(pos soil.Pos) bool {
	for _, nb := range pos.Neighbors() {
		if v.diggable(nb) {
			return true
		}
	}
	return false
}

// diggable reports whether nb is plain soil below the surface.
func (v *view) diggable(nb soil.Pos) bool {
	return v.grid.InBounds(nb) && nb.Y >= v.p.surfaceRows && v.grid.At(nb).Kind == soil.Soil
}

// free reports whether nb is traversable and unoccupied in the pre-tick state.
func (v *view) free(nb soil.Pos) bool {
	return v.grid.Traversable(nb) && v.p.occ[v.p.index(nb)] == 0
}

// move requests a step, subject to the movement probability.
func (v *view) move(it *intent, to soil.Pos, rng *entropy.Local) {
	if rng.Float32() >= v.ctx.Modifier.Movement {
		return
	}
	it.act = actMove
	it.at = to
}

// stepToward takes one greedy step that reduces the distance to target,
// breaking ties at random. When no open cell gets closer it may dig
// through soil that does, and otherwise sidesteps.
func (v *view) stepToward(it *intent, target soil.Pos, rng *entropy.Local, allowDig bool) {
	pos := it.next.Pos
	cur := soil.Dist(pos, target)
	if cur == 0 {
		return
	}

	var best [4]soil.Pos
	nBest, bestD := 0, cur
	var digs [4]soil.Pos
	nDig := 0
	var sides [4]soil.Pos
	nSide := 0

	for _, nb := range pos.Neighbors() {
		d := soil.Dist(nb, target)
		switch {
		case v.free(nb):
			if d < bestD {
				bestD, nBest = d, 0
			}
			if d == bestD && d < cur {
				best[nBest] = nb
				nBest++
			} else if d >= cur {
				sides[nSide] = nb
				nSide++
			}
		case allowDig && d < cur && v.diggable(nb):
			digs[nDig] = nb
			nDig++
		}
	}

	switch {
	case nBest > 0:
		v.move(it, best[rng.IntN(nBest)], rng)
	case nDig > 0:
		it.act = actDig
		it.at = digs[rng.IntN(nDig)]
	case nSide > 0 && rng.Float32() < 0.5:
		v.move(it, sides[rng.IntN(nSide)], rng)
	}
}

// wander steps to a random open neighbor.
func (v *view) wander(it *intent, rng *entropy.Local) {
	var open [4]soil.Pos
	n := 0
	for _, nb := range it.next.Pos.Neighbors() {
		if v.free(nb) {
			open[n] = nb
			n++
		}
	}
	if n > 0 {
		v.move(it, open[rng.IntN(n)], rng)
	}
}
