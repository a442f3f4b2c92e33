// Simulation ties together soil, disasters and colony and runs them each tick.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/antnest/internal/colony"
	"github.com/talgya/antnest/internal/config"
	"github.com/talgya/antnest/internal/disaster"
	"github.com/talgya/antnest/internal/entropy"
	"github.com/talgya/antnest/internal/soil"
)

// Simulation is the single owner of the world state. Only the goroutine
// driving Step, Frame or Run mutates it; every other goroutine talks to it
// through the command methods and reads it through Snapshot.
type Simulation struct {
	cfg *config.Config

	Grid      *soil.Grid
	Colony    *colony.Population
	Disasters *disaster.System
	Clock     *Clock
	Calendar  Calendar

	mu      sync.Mutex // held for every tick and for Capture
	rng     *entropy.Source
	seed    int64
	tick    uint64
	runID   string
	extinct bool

	lastMod    disaster.Modifier
	lastReport colony.TickReport
	lastSoil   soil.TickResult

	cmdMu sync.Mutex
	cmds  []func()

	events *eventLog
	view   atomic.Pointer[View]
	gen    atomic.Uint64

	// Callbacks, run on the simulation goroutine after the tick settles.
	// They run with the loop lock held and must not call Capture or Tick.
	OnTick   func(info TickInfo)
	OnDay    func(tick uint64)
	OnSeason func(tick uint64, season config.SeasonConfig)
}

// TickInfo is what OnTick receives about the tick that just settled.
// The population and grid may be read, not modified, inside the callback.
type TickInfo struct {
	Tick     uint64
	Colony   colony.TickReport
	Soil     soil.TickResult
	Modifier disaster.Modifier
	Season   config.SeasonConfig

	Population *colony.Population
	Grid       *soil.Grid
	Disasters  int
}

// New generates a fresh world from cfg. A zero seed is replaced by one
// from crypto/rand.
func New(cfg *config.Config) (*Simulation, error) {
	seed := entropy.SeedOrCrypto(cfg.World.Seed)
	cal := NewCalendar(cfg.Seasons, cfg.World)
	grid := soil.Generate(cfg.Soil, cfg.World, cal.Season(0).SurfaceTemperature, seed)

	pop := colony.NewPopulation(cfg.Colony, cfg.World.Width, cfg.World.Depth, cfg.World.SurfaceRows, soil.NestCenter(cfg.World))
	rng := entropy.New(uint64(seed))
	if err := pop.Seed(cfg.World, grid, rng.Split()); err != nil {
		return nil, fmt.Errorf("seeding colony: %w", err)
	}

	s := newSimulation(cfg, grid, pop, disaster.NewSystem(cfg.Disasters), rng)
	s.seed = seed
	s.runID = uuid.NewString()
	s.publish()

	slog.Info("world generated",
		"seed", seed,
		"width", cfg.World.Width,
		"depth", cfg.World.Depth,
		"ants", pop.Live(),
		"food_deposits", grid.CountKind(soil.FoodDeposit),
		"run_id", s.runID,
	)
	return s, nil
}

func newSimulation(cfg *config.Config, grid *soil.Grid, pop *colony.Population, dis *disaster.System, rng *entropy.Source) *Simulation {
	return &Simulation{
		cfg:       cfg,
		Grid:      grid,
		Colony:    pop,
		Disasters: dis,
		Clock:     NewClock(cfg.Clock.TicksPerSecond, cfg.Clock.InitialScale, cfg.Clock.MaxTicksPerFrame),
		Calendar:  NewCalendar(cfg.Seasons, cfg.World),
		rng:       rng,
		lastMod:   disaster.Neutral(),
		events:    newEventLog(cfg.Telemetry.EventBuffer),
	}
}

// Config returns the configuration the simulation was built with.
func (s *Simulation) Config() *config.Config { return s.cfg }

// Tick returns the number of ticks applied so far.
func (s *Simulation) Tick() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tick
}

// RunID identifies this world across saves.
func (s *Simulation) RunID() string { return s.runID }

// Seed returns the world seed.
func (s *Simulation) Seed() int64 { return s.seed }

// LastReport returns the colony report of the most recent tick.
func (s *Simulation) LastReport() colony.TickReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReport
}

// ── Commands ──────────────────────────────────────────────────────────

// SetTimeScale sets the tick multiplier. 0 pauses.
func (s *Simulation) SetTimeScale(scale int) error {
	if err := s.Clock.SetScale(scale); err != nil {
		return err
	}
	s.Emit(Event{Category: "command", Description: fmt.Sprintf("time scale set to %dx", scale), Meta: map[string]any{"scale": scale}})
	return nil
}

// Pause stops the clock.
func (s *Simulation) Pause() {
	s.Clock.Pause()
	s.Emit(Event{Category: "command", Description: "simulation paused"})
}

// Resume restarts the clock at its current scale.
func (s *Simulation) Resume() {
	s.Clock.Resume()
	s.Emit(Event{Category: "command", Description: fmt.Sprintf("simulation resumed at %dx", s.Clock.Scale())})
}

// TriggerDisaster queues a disaster to start before the next tick.
// Invalid parameters are dropped by the disaster system with a warning.
func (s *Simulation) TriggerDisaster(kind disaster.Kind, intensity float32, durationTicks uint32) {
	s.enqueue(func() {
		if !s.Disasters.Trigger(kind, intensity, durationTicks) {
			return
		}
		slog.Info("disaster started", "kind", kind, "intensity", intensity, "duration", durationTicks, "tick", s.tick)
		s.emitLocked(Event{
			Category:    "disaster",
			Description: fmt.Sprintf("%s begins (intensity %.2f, %d ticks)", kind, intensity, durationTicks),
			Meta:        map[string]any{"kind": kind.String(), "intensity": intensity, "duration": durationTicks},
		})
	})
}

func (s *Simulation) enqueue(cmd func()) {
	s.cmdMu.Lock()
	s.cmds = append(s.cmds, cmd)
	s.cmdMu.Unlock()
}

// drainCommands runs queued commands in arrival order. Called with s.mu held.
func (s *Simulation) drainCommands() int {
	s.cmdMu.Lock()
	cmds := s.cmds
	s.cmds = nil
	s.cmdMu.Unlock()
	for _, cmd := range cmds {
		cmd()
	}
	return len(cmds)
}

// ── Loop ──────────────────────────────────────────────────────────────

// Step applies pending commands and exactly one tick, then publishes a
// new snapshot. It ignores the clock.
func (s *Simulation) Step() colony.TickReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drainCommands()
	rep := s.step()
	s.publish()
	return rep
}

// Frame accounts for elapsed real time and runs the ticks the clock
// allows. The snapshot is published once, after the last tick.
func (s *Simulation) Frame(elapsed time.Duration) int {
	n := s.Clock.Advance(elapsed)
	s.mu.Lock()
	defer s.mu.Unlock()
	cmds := s.drainCommands()
	for i := 0; i < n; i++ {
		s.step()
	}
	if n > 0 || cmds > 0 {
		s.publish()
	}
	return n
}

// Run drives Frame from a real-time ticker until ctx is cancelled.
func (s *Simulation) Run(ctx context.Context) {
	interval := time.Duration(max(s.cfg.Clock.FrameMillis, 1)) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("simulation loop started", "tick", s.Tick(), "scale", s.Clock.Scale(), "frame", interval)
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			slog.Info("simulation loop stopped", "tick", s.Tick())
			return
		case now := <-ticker.C:
			s.Frame(now.Sub(last))
			last = now
		}
	}
}

// step advances the world by one tick. Called with s.mu held.
func (s *Simulation) step() colony.TickReport {
	s.tick++
	tick := s.tick

	mod, expired := s.Disasters.AdvanceTick()
	for _, e := range expired {
		slog.Info("disaster ended", "kind", e.Kind, "id", e.ID, "tick", tick)
		s.emitLocked(Event{
			Category:    "disaster",
			Description: fmt.Sprintf("%s has passed", e.Kind),
			Meta:        map[string]any{"kind": e.Kind.String(), "id": e.ID},
		})
	}

	season := s.Calendar.Season(tick)
	s.lastSoil = s.Grid.AdvanceTick(mod.Forcing(season.SurfaceTemperature), s.rng)

	rep := s.Colony.Advance(s.Grid, colony.TickContext{
		Tick:           tick,
		Seed:           s.rng.Uint64(),
		Modifier:       mod,
		Season:         s.Calendar.SeasonIndex(tick),
		PreferredDepth: s.Calendar.PreferredDepth(tick),
		Winter:         season.Winter,
	})
	s.lastMod = mod
	s.lastReport = rep
	s.colonyEvents(rep)

	if s.OnTick != nil {
		s.OnTick(TickInfo{
			Tick:       tick,
			Colony:     rep,
			Soil:       s.lastSoil,
			Modifier:   mod,
			Season:     season,
			Population: s.Colony,
			Grid:       s.Grid,
			Disasters:  len(s.Disasters.Active()),
		})
	}
	if s.Calendar.DayStart(tick) {
		s.dailyReport(tick)
		if s.OnDay != nil {
			s.OnDay(tick)
		}
	}
	if s.Calendar.SeasonStart(tick) {
		slog.Info("season change", "tick", tick, "time", s.Calendar.SimTime(tick), "season", season.Name, "preferred_depth", s.Calendar.PreferredDepth(tick))
		s.emitLocked(Event{Category: "season", Description: fmt.Sprintf("%s arrives", season.Name), Meta: map[string]any{"season": season.Name}})
		if s.OnSeason != nil {
			s.OnSeason(tick, season)
		}
	}
	return rep
}

func (s *Simulation) colonyEvents(rep colony.TickReport) {
	if rep.QueenDied {
		slog.Warn("queen died", "tick", rep.Tick, "live", rep.LiveAfter)
		s.emitLocked(Event{Category: "colony", Description: "the queen has died"})
	}
	if n := rep.DeathsBy(colony.Drowned); n > 0 {
		s.emitLocked(Event{Category: "colony", Description: fmt.Sprintf("%d ants drowned", n), Meta: map[string]any{"cause": "Drowned", "count": n}})
	}
	if n := rep.DeathsBy(colony.Crushed); n > 0 {
		s.emitLocked(Event{Category: "colony", Description: fmt.Sprintf("%d ants crushed by collapsing tunnels", n), Meta: map[string]any{"cause": "Crushed", "count": n}})
	}
	extinct := rep.LiveAfter == 0 && len(s.Colony.Eggs()) == 0
	if extinct && !s.extinct {
		slog.Warn("colony extinct", "tick", rep.Tick)
		s.emitLocked(Event{Category: "colony", Description: "the colony has died out"})
	}
	s.extinct = extinct
}

func (s *Simulation) dailyReport(tick uint64) {
	c := s.Colony.Count()
	t := s.Colony.Totals()
	slog.Info("daily report",
		"tick", tick,
		"time", s.Calendar.SimTime(tick),
		"alive", s.Colony.Live(),
		"eggs", c.Eggs,
		"queen", c.ByRole[colony.Queen.String()],
		"juniors", c.ByRole[colony.JuniorWorker.String()],
		"seniors", c.ByRole[colony.SeniorWorker.String()],
		"larvae", c.ByRole[colony.Larva.String()],
		"reserve", fmt.Sprintf("%.2f", s.Colony.Reserve()),
		"waste", fmt.Sprintf("%.2f", s.Colony.Waste()),
		"hatched", t.Hatched,
		"deliveries", t.Deliveries,
		"dug", t.Dug,
		"disasters", len(s.Disasters.Active()),
	)
}

// ── Events ────────────────────────────────────────────────────────────

// Emit records an event from outside the loop.
func (s *Simulation) Emit(e Event) Event {
	if e.Tick == 0 {
		e.Tick = s.Tick()
	}
	e.Time = s.Calendar.SimTime(e.Tick)
	return s.events.emit(e)
}

// emitLocked records an event from inside the loop. Called with s.mu held.
func (s *Simulation) emitLocked(e Event) {
	e.Tick = s.tick
	e.Time = s.Calendar.SimTime(s.tick)
	s.events.emit(e)
}

// Events returns up to limit recent events, oldest first.
func (s *Simulation) Events(limit int) []Event { return s.events.recent(limit) }

// Subscribe registers for new events. Call Unsubscribe with the returned id.
func (s *Simulation) Subscribe() (int, <-chan Event) { return s.events.subscribe(64) }

// Unsubscribe stops delivery and closes the channel.
func (s *Simulation) Unsubscribe(id int) { s.events.unsubscribe(id) }
