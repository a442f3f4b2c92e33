package telemetry

import (
	"sync"

	"github.com/talgya/antnest/internal/colony"
	"github.com/talgya/antnest/internal/soil"
)

// Collector accumulates tick reports within windows and produces WindowStats.
// Record and Flush run on the simulation goroutine; History is safe from any
// goroutine.
type Collector struct {
	windowTicks     uint64
	windowStartTick uint64

	// Event counters for the current window
	hatched    int
	eggsLaid   int
	eggsLost   int
	promotions int
	deaths     [4]int // indexed like colony.DeathCauses
	deliveries int
	food       float64
	dug        int
	waste      float64
	eroded     int
	regrown    float64
	eaten      float64

	energy []float64 // scratch

	mu      sync.RWMutex
	history []WindowStats
	keep    int
}

// NewCollector creates a collector flushing every windowTicks ticks and
// remembering the last keep windows.
func NewCollector(windowTicks uint64, keep int) *Collector {
	return &Collector{
		windowTicks: max(windowTicks, 1),
		keep:        max(keep, 1),
	}
}

// Record adds one tick's reports to the current window.
func (c *Collector) Record(rep colony.TickReport, res soil.TickResult) {
	c.hatched += rep.Hatched
	c.eggsLaid += rep.EggsLaid
	c.eggsLost += rep.EggsLost
	c.promotions += rep.Promotions
	for i, cause := range colony.DeathCauses {
		c.deaths[i] += rep.DeathsBy(cause)
	}
	c.deliveries += rep.Deliveries
	c.food += float64(rep.FoodDelivered)
	c.dug += rep.Dug
	c.waste += float64(rep.WasteDumped)
	c.eroded += res.Eroded
	c.regrown += float64(res.FoodAdded)
	c.eaten += float64(res.FoodEaten)
}

// ShouldFlush returns true if enough ticks have passed to flush the window.
func (c *Collector) ShouldFlush(tick uint64) bool {
	return tick-c.windowStartTick >= c.windowTicks
}

// Sample is the end-of-window context a flush needs.
type Sample struct {
	Tick       uint64
	SimTime    string
	Season     string
	Population *colony.Population
	Grid       *soil.Grid
	Disasters  int
}

// Flush produces a WindowStats from the counters and the sampled state,
// then resets the counters for the next window.
func (c *Collector) Flush(s Sample) WindowStats {
	w := WindowStats{
		WindowStartTick:  c.windowStartTick,
		WindowEndTick:    s.Tick,
		SimTime:          s.SimTime,
		Season:           s.Season,
		Hatched:          c.hatched,
		EggsLaid:         c.eggsLaid,
		EggsLost:         c.eggsLost,
		Promotions:       c.promotions,
		DeathsStarvation: c.deaths[0],
		DeathsOldAge:     c.deaths[1],
		DeathsDrowned:    c.deaths[2],
		DeathsCrushed:    c.deaths[3],
		Deliveries:       c.deliveries,
		FoodDelivered:    c.food,
		Dug:              c.dug,
		WasteDumped:      c.waste,
		Eroded:           c.eroded,
		FoodRegrown:      c.regrown,
		FoodEaten:        c.eaten,
		ActiveDisasters:  s.Disasters,
	}
	if s.Population != nil {
		c.samplePopulation(&w, s.Population)
	}
	if s.Grid != nil {
		sampleGrid(&w, s.Grid)
	}

	c.windowStartTick = s.Tick
	c.hatched, c.eggsLaid, c.eggsLost, c.promotions = 0, 0, 0, 0
	c.deaths = [4]int{}
	c.deliveries, c.food, c.dug, c.waste = 0, 0, 0, 0
	c.eroded, c.regrown, c.eaten = 0, 0, 0

	c.mu.Lock()
	c.history = append(c.history, w)
	if len(c.history) > c.keep {
		c.history = c.history[len(c.history)-c.keep:]
	}
	c.mu.Unlock()
	return w
}

func (c *Collector) samplePopulation(w *WindowStats, p *colony.Population) {
	counts := p.Count()
	w.Live = p.Live()
	w.Eggs = counts.Eggs
	w.Queens = counts.ByRole[colony.Queen.String()]
	w.Juniors = counts.ByRole[colony.JuniorWorker.String()]
	w.Seniors = counts.ByRole[colony.SeniorWorker.String()]
	w.Larvae = counts.ByRole[colony.Larva.String()]
	w.Foraging = counts.ByState[colony.Foraging.String()] + counts.ByState[colony.Returning.String()]
	w.Digging = counts.ByState[colony.Digging.String()]
	w.Tending = counts.ByState[colony.Tending.String()]
	w.Dumping = counts.ByState[colony.Dumping.String()]
	w.Resting = counts.ByState[colony.Resting.String()]
	w.Dormant = counts.ByState[colony.Dormant.String()]
	w.Reserve = float64(p.Reserve())
	w.Waste = float64(p.Waste())

	c.energy = c.energy[:0]
	for _, a := range p.Ants() {
		if a.Role.Worker() {
			c.energy = append(c.energy, float64(a.Energy/p.MaxEnergy(a.Role)))
		}
	}
	e := Summarize(c.energy)
	w.EnergyMean, w.EnergyStd = e.Mean, e.Std
	w.EnergyP10, w.EnergyP50, w.EnergyP90 = e.P10, e.P50, e.P90
}

func sampleGrid(w *WindowStats, g *soil.Grid) {
	cells := g.Cells()
	moisture := make([]float64, 0, len(cells))
	var temp, nut float64
	for _, cell := range cells {
		switch cell.Kind {
		case soil.Tunnel:
			w.Tunnels++
		case soil.WasteDump:
			w.Dumps++
		case soil.FoodDeposit:
			w.Deposits++
			w.FoodStanding += float64(cell.Food)
		}
		if cell.Kind == soil.Air {
			continue
		}
		moisture = append(moisture, float64(cell.Moisture))
		temp += float64(cell.Temperature)
		nut += float64(cell.Nutrition)
	}
	if n := len(moisture); n > 0 {
		w.TemperatureMean = temp / float64(n)
		w.NutritionMean = nut / float64(n)
		m := Summarize(moisture)
		w.MoistureMean, w.MoistureStd = m.Mean, m.Std
	}
}

// History returns up to n of the most recent windows, oldest first.
// n <= 0 returns all that are kept.
func (c *Collector) History(n int) []WindowStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h := c.history
	if n > 0 && n < len(h) {
		h = h[len(h)-n:]
	}
	return append([]WindowStats(nil), h...)
}

// Latest returns the most recent window.
func (c *Collector) Latest() (WindowStats, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.history) == 0 {
		return WindowStats{}, false
	}
	return c.history[len(c.history)-1], true
}

// WindowTicks returns the number of ticks per window.
func (c *Collector) WindowTicks() uint64 { return c.windowTicks }
