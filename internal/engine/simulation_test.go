package engine

import (
	"slices"
	"testing"
	"time"

	"github.com/talgya/antnest/internal/colony"
	"github.com/talgya/antnest/internal/config"
	"github.com/talgya/antnest/internal/disaster"
	"github.com/talgya/antnest/internal/entropy"
	"github.com/talgya/antnest/internal/soil"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.World.Width, cfg.World.Depth = 40, 28
	cfg.World.NestDepth = 8
	cfg.World.ChamberRadius = 2
	cfg.World.Seed = 17
	cfg.Telemetry.EventBuffer = 64
	return cfg
}

func newSim(t *testing.T, cfg *config.Config) *Simulation {
	t.Helper()
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestStepDeterministic(t *testing.T) {
	cfg := testConfig()
	a, b := newSim(t, cfg), newSim(t, cfg)
	a.TriggerDisaster(disaster.Rain, 1, 40)
	b.TriggerDisaster(disaster.Rain, 1, 40)
	for i := 0; i < 250; i++ {
		a.Step()
		b.Step()
	}
	va, vb := a.Snapshot(), b.Snapshot()
	if !slices.Equal(va.Ants, vb.Ants) {
		t.Error("ants differ for the same seed")
	}
	if !slices.Equal(va.Cells, vb.Cells) {
		t.Error("cells differ for the same seed")
	}
	if va.Reserve != vb.Reserve {
		t.Errorf("reserve %v != %v", va.Reserve, vb.Reserve)
	}
}

func TestDroughtStopsFoodRegeneration(t *testing.T) {
	cfg := testConfig()
	grid := soil.New(10, 10, cfg.Soil)
	at := soil.Pos{X: 5, Y: 5}
	c := grid.At(at)
	c.Kind = soil.FoodDeposit
	c.Food = 0.5
	if err := grid.Set(at, c); err != nil {
		t.Fatal(err)
	}
	pop := colony.NewPopulation(cfg.Colony, 10, 10, 0, at)
	s := newSimulation(cfg, grid, pop, disaster.NewSystem(cfg.Disasters), entropy.New(1))

	const d = 50
	s.TriggerDisaster(disaster.Drought, 1.0, d)
	food := grid.At(at).Food
	for tick := 1; tick <= d; tick++ {
		s.Step()
		if got := grid.At(at).Food; got != food {
			t.Fatalf("tick %d: food %v changed from %v during drought", tick, got, food)
		}
	}
	s.Step()
	if got := grid.At(at).Food; got <= food {
		t.Errorf("tick %d: food %v did not regenerate past %v", d+1, got, food)
	}
}

func TestInvasiveSpeciesDrainsDeposit(t *testing.T) {
	tests := []struct {
		name      string
		intensity float32
		falls     bool
	}{
		{"no disaster", 0, false},
		{"light, regrowth keeps up", 0.2, false},
		{"full", 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			grid := soil.New(10, 10, cfg.Soil)
			at := soil.Pos{X: 5, Y: 5}
			if err := grid.Set(at, soil.Cell{Kind: soil.FoodDeposit, Food: 0.5}); err != nil {
				t.Fatal(err)
			}
			pop := colony.NewPopulation(cfg.Colony, 10, 10, 0, at)
			s := newSimulation(cfg, grid, pop, disaster.NewSystem(cfg.Disasters), entropy.New(1))
			var eaten float32
			s.OnTick = func(info TickInfo) { eaten += info.Soil.FoodEaten }

			if tt.intensity > 0 {
				s.TriggerDisaster(disaster.InvasiveSpecies, tt.intensity, 40)
			}
			for i := 0; i < 40; i++ {
				s.Step()
			}
			food := grid.At(at).Food
			if tt.falls && food >= 0.5 {
				t.Errorf("food %v did not fall under a full infestation", food)
			}
			if !tt.falls && food < 0.5 {
				t.Errorf("food %v fell", food)
			}
			if (tt.intensity > 0) != (eaten > 0) {
				t.Errorf("food eaten = %v with intensity %v", eaten, tt.intensity)
			}
		})
	}
}

func TestFrameHonorsPauseAndScale(t *testing.T) {
	cfg := testConfig()
	s := newSim(t, cfg)

	if err := s.SetTimeScale(0); err != nil {
		t.Fatal(err)
	}
	if n := s.Frame(time.Minute); n != 0 {
		t.Errorf("paused frame ran %d ticks", n)
	}
	if s.Tick() != 0 {
		t.Errorf("tick = %d after paused frame", s.Tick())
	}

	if err := s.SetTimeScale(10); err != nil {
		t.Fatal(err)
	}
	want := cfg.Clock.TicksPerSecond * 10
	gen := s.Generation()
	if n := s.Frame(time.Second); n != want {
		t.Errorf("frame at 10x ran %d ticks, want %d", n, want)
	}
	if got := s.Generation(); got != gen+1 {
		t.Errorf("generation %d after one frame, want %d", got, gen+1)
	}
	if got := s.Snapshot().Tick; got != uint64(want) {
		t.Errorf("snapshot tick = %d, want %d", got, want)
	}

	s.Pause()
	if n := s.Frame(time.Second); n != 0 {
		t.Errorf("frame after Pause ran %d ticks", n)
	}
	s.Resume()
	if n := s.Frame(time.Second); n != want {
		t.Errorf("frame after Resume ran %d ticks, want %d", n, want)
	}

	if err := s.SetTimeScale(101); err == nil {
		t.Error("scale 101 accepted")
	}
}

func TestSnapshotIsStableAcrossTicks(t *testing.T) {
	s := newSim(t, testConfig())
	before := s.Snapshot()
	gen := before.Generation
	ants := slices.Clone(before.Ants)

	for i := 0; i < 20; i++ {
		s.Step()
	}
	if !slices.Equal(before.Ants, ants) {
		t.Error("published view was mutated by later ticks")
	}
	after := s.Snapshot()
	if after.Generation != gen+20 || s.Generation() != after.Generation {
		t.Errorf("generation %d, want %d", after.Generation, gen+20)
	}
	if after.Tick != 20 {
		t.Errorf("tick = %d, want 20", after.Tick)
	}
	if _, err := after.Cell(after.Width, 0); err == nil {
		t.Error("out-of-range cell lookup succeeded")
	}
}

func TestCaptureRestoreReplays(t *testing.T) {
	cfg := testConfig()
	s := newSim(t, cfg)
	s.TriggerDisaster(disaster.ColdSnap, 0.8, 150)
	for i := 0; i < 120; i++ {
		s.Step()
	}

	st, err := s.Capture()
	if err != nil {
		t.Fatal(err)
	}
	r, err := Restore(cfg, st)
	if err != nil {
		t.Fatal(err)
	}
	if r.Tick() != s.Tick() || r.RunID() != s.RunID() {
		t.Fatalf("restored tick %d run %s, want %d %s", r.Tick(), r.RunID(), s.Tick(), s.RunID())
	}
	if got, want := r.Snapshot().Modifier, s.Snapshot().Modifier; got != want {
		t.Errorf("restored modifier %+v, want %+v", got, want)
	}
	if r.Snapshot().Modifier == disaster.Neutral() {
		t.Error("restored view lost the active cold snap")
	}

	for i := 0; i < 100; i++ {
		s.Step()
		r.Step()
	}
	vs, vr := s.Snapshot(), r.Snapshot()
	if !slices.Equal(vs.Ants, vr.Ants) {
		t.Error("restored ants diverged")
	}
	if !slices.Equal(vs.Cells, vr.Cells) {
		t.Error("restored cells diverged")
	}
	if !slices.Equal(vs.Disasters, vr.Disasters) {
		t.Error("restored disasters diverged")
	}
}

func TestEventsReachSubscribers(t *testing.T) {
	s := newSim(t, testConfig())
	id, ch := s.Subscribe()
	defer s.Unsubscribe(id)

	s.TriggerDisaster(disaster.InvasiveSpecies, 0.5, 3)
	s.Step()

	select {
	case e := <-ch:
		if e.Category != "disaster" {
			t.Errorf("first event category %q, want disaster", e.Category)
		}
	default:
		t.Fatal("no event delivered")
	}

	for i := 0; i < 3; i++ {
		s.Step()
	}
	events := s.Events(0)
	if len(events) < 2 {
		t.Fatalf("events = %d, want start and end", len(events))
	}
	for i := 1; i < len(events); i++ {
		if events[i].Seq <= events[i-1].Seq {
			t.Fatalf("events out of order: %d after %d", events[i].Seq, events[i-1].Seq)
		}
	}
}

func TestEventLogKeepsMostRecent(t *testing.T) {
	l := newEventLog(3)
	for i := 0; i < 5; i++ {
		l.emit(Event{Tick: uint64(i)})
	}
	got := l.recent(0)
	if len(got) != 3 || got[0].Tick != 2 || got[2].Tick != 4 {
		t.Errorf("recent = %+v", got)
	}
	if got := l.recent(1); len(got) != 1 || got[0].Tick != 4 {
		t.Errorf("recent(1) = %+v", got)
	}
}

func TestCalendar(t *testing.T) {
	cfg := testConfig()
	cal := NewCalendar(cfg.Seasons, cfg.World)
	perSeason := cfg.Derived.TicksPerSeason

	if cal.Season(0).Name != cfg.Seasons.Table[0].Name {
		t.Errorf("season at 0 = %s", cal.Season(0).Name)
	}
	if got := cal.SeasonIndex(perSeason * 3); got != 3 {
		t.Errorf("season index = %d, want 3", got)
	}
	if !cal.Season(perSeason * 3).Winter {
		t.Error("fourth season should be winter")
	}
	if cal.Year(perSeason*4) != 2 {
		t.Errorf("year = %d, want 2", cal.Year(perSeason*4))
	}
	summer := cal.PreferredDepth(perSeason)
	winter := cal.PreferredDepth(perSeason * 3)
	if summer >= winter {
		t.Errorf("summer depth %d should be shallower than winter %d", summer, winter)
	}
	if summer < cfg.World.SurfaceRows || winter >= cfg.World.Depth {
		t.Errorf("depths %d/%d outside underground rows", summer, winter)
	}
}
