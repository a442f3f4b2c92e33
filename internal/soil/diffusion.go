package soil

import (
	"github.com/talgya/antnest/internal/entropy"
	"github.com/talgya/antnest/internal/parallel"
)

// Forcing is the net external perturbation applied during one AdvanceTick.
// The zero value is a calm tick with a 0 degree ambient.
type Forcing struct {
	AmbientTemperature float32 // Air cells relax toward this
	MoistureDelta      float32 // added to every cell
	NutritionDelta     float32 // added to every cell
	DiffusionDelta     float32 // added to both diffusion constants
	SuppressFoodRegen  bool
	FoodConsumption    float32 // removed from every deposit
}

// TickResult summarizes the changes made by one AdvanceTick.
type TickResult struct {
	Eroded    int     // tunnels collapsed to soil
	FoodAdded float32 // total regeneration across deposits
	FoodEaten float32 // total competing consumption
}

// AdvanceTick moves the grid forward one tick. Every new value is computed
// from the previous tick's cells, so the result does not depend on the
// order rows are processed in. Erosion runs afterwards as a serial pass in
// index order, drawing from rng.
func (g *Grid) AdvanceTick(f Forcing, rng *entropy.Source) TickResult {
	kM := clamp01(g.cfg.MoistureDiffusion + f.DiffusionDelta)
	kT := clamp01(g.cfg.TemperatureDiffusion + f.DiffusionDelta)

	regen := make([]float32, g.depth)
	eaten := make([]float32, g.depth)

	parallel.For(g.depth, g.cfg.ParallelMinRows, func(lo, hi int) {
		for y := lo; y < hi; y++ {
			for x := 0; x < g.width; x++ {
				added, ate := g.stepCell(x, y, kM, kT, f)
				regen[y] += added
				eaten[y] += ate
			}
		}
	})
	g.curr, g.next = g.next, g.curr

	var res TickResult
	for y := range regen {
		res.FoodAdded += regen[y]
		res.FoodEaten += eaten[y]
	}
	res.Eroded = g.erode(rng)
	return res
}

// stepCell writes next[x,y] from curr. Returns food regenerated and eaten.
func (g *Grid) stepCell(x, y int, kM, kT float32, f Forcing) (float32, float32) {
	i := y*g.width + x
	c := g.curr[i]
	n := c

	var sumM, sumT float32
	cnt := 0
	if y > 0 {
		sumM, sumT, cnt = sumM+g.curr[i-g.width].Moisture, sumT+g.curr[i-g.width].Temperature, cnt+1
	}
	if y < g.depth-1 {
		sumM, sumT, cnt = sumM+g.curr[i+g.width].Moisture, sumT+g.curr[i+g.width].Temperature, cnt+1
	}
	if x > 0 {
		sumM, sumT, cnt = sumM+g.curr[i-1].Moisture, sumT+g.curr[i-1].Temperature, cnt+1
	}
	if x < g.width-1 {
		sumM, sumT, cnt = sumM+g.curr[i+1].Moisture, sumT+g.curr[i+1].Temperature, cnt+1
	}
	if cnt > 0 {
		inv := 1 / float32(cnt)
		n.Moisture += kM * (sumM*inv - c.Moisture)
		n.Temperature += kT * (sumT*inv - c.Temperature)
	}

	if c.Kind == Air {
		n.Moisture += g.cfg.AmbientRelax * (g.cfg.AirHumidity - n.Moisture)
		n.Temperature += g.cfg.AmbientRelax * (f.AmbientTemperature - n.Temperature)
	}

	n.Nutrition += g.cfg.NutritionDecay * (g.cfg.NutritionBaseline - c.Nutrition)
	n.Moisture += f.MoistureDelta
	n.Nutrition += f.NutritionDelta

	var added, ate float32
	if c.Kind == FoodDeposit {
		before := clamp01(n.Food)
		if !f.SuppressFoodRegen && before < 1 {
			n.Food = clamp01(before + g.cfg.FoodRegen*(0.5+c.Nutrition))
			added = n.Food - before
		}
		if f.FoodConsumption > 0 {
			prev := n.Food
			n.Food = clamp01(n.Food - f.FoodConsumption)
			ate = prev - n.Food
		}
	}

	g.next[i] = g.clampCell(n)
	return added, ate
}

// erode collapses saturated tunnels back into soil.
func (g *Grid) erode(rng *entropy.Source) int {
	if g.cfg.ErosionChance <= 0 || rng == nil {
		return 0
	}
	n := 0
	for i := range g.curr {
		c := &g.curr[i]
		if c.Kind != Tunnel || c.Moisture < g.cfg.ErosionMoisture {
			continue
		}
		if rng.Float32() < g.cfg.ErosionChance {
			c.Kind = Soil
			n++
		}
	}
	return n
}
