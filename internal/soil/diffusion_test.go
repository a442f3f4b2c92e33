package soil

import (
	"slices"
	"testing"

	"github.com/talgya/antnest/internal/config"
	"github.com/talgya/antnest/internal/entropy"
)

func worldConfig() config.WorldConfig {
	w := config.Default().World
	w.Width, w.Depth = 48, 32
	w.NestDepth = 8
	w.ChamberRadius = 2
	return w
}

func TestAdvanceTickClampInvariant(t *testing.T) {
	cfg := testConfig()
	g := Generate(cfg, worldConfig(), 15, 7)
	rng := entropy.New(1)
	forcings := []Forcing{
		{AmbientTemperature: 20},
		{AmbientTemperature: 20, MoistureDelta: 0.02, DiffusionDelta: 0.5},
		{AmbientTemperature: -30, MoistureDelta: -0.02, NutritionDelta: -0.01, SuppressFoodRegen: true},
		{AmbientTemperature: 5, FoodConsumption: 0.02},
	}
	for tick := 0; tick < 400; tick++ {
		g.AdvanceTick(forcings[tick%len(forcings)], rng)
		for i, c := range g.curr {
			if c.Moisture < 0 || c.Moisture > 1 || c.Nutrition < 0 || c.Nutrition > 1 {
				t.Fatalf("tick %d cell %v: moisture %v nutrition %v out of [0,1]", tick, g.PosOf(i), c.Moisture, c.Nutrition)
			}
			if c.Food < 0 || c.Food > 1 {
				t.Fatalf("tick %d cell %v: food %v", tick, g.PosOf(i), c.Food)
			}
		}
	}
}

func TestAdvanceTickDeterministic(t *testing.T) {
	cfg := testConfig()
	cfg.ErosionChance = 0.5
	cfg.ErosionMoisture = 0.3
	base := Generate(cfg, worldConfig(), 15, 3)

	run := func(minRows int) []Cell {
		c := cfg
		c.ParallelMinRows = minRows
		g := New(base.Width(), base.Depth(), c)
		if err := g.Load(base.Cells()); err != nil {
			t.Fatal(err)
		}
		rng := entropy.New(99)
		for i := 0; i < 25; i++ {
			g.AdvanceTick(Forcing{AmbientTemperature: 18, MoistureDelta: 0.01}, rng)
		}
		return g.Cells()
	}

	serial := run(1 << 20)
	if again := run(1 << 20); !slices.Equal(serial, again) {
		t.Fatal("two runs from the same snapshot diverged")
	}
	if split := run(1); !slices.Equal(serial, split) {
		t.Fatal("row-parallel run differs from serial run")
	}
}

func TestDiffusionMovesTowardNeighbors(t *testing.T) {
	cfg := testConfig()
	g := New(3, 3, cfg)
	for i := range g.curr {
		g.curr[i].Moisture = 0.2
	}
	center := Pos{1, 1}
	g.Set(center, Cell{Kind: Soil, Moisture: 1, Nutrition: cfg.NutritionBaseline})

	g.AdvanceTick(Forcing{}, nil)

	c := g.At(center)
	want := 1 + cfg.MoistureDiffusion*(0.2-1)
	if diff := c.Moisture - want; diff > 1e-5 || diff < -1e-5 {
		t.Errorf("center moisture = %v, want %v", c.Moisture, want)
	}
	if n := g.At(Pos{1, 0}); n.Moisture <= 0.2 {
		t.Errorf("neighbor moisture = %v, want above 0.2", n.Moisture)
	}
	if corner := g.At(Pos{0, 0}); corner.Moisture != 0.2 {
		t.Errorf("corner moisture = %v, want unchanged 0.2", corner.Moisture)
	}
}

func TestFoodRegenSuppressed(t *testing.T) {
	g := New(3, 3, testConfig())
	p := Pos{1, 1}
	g.Set(p, Cell{Kind: FoodDeposit, Food: 0.5, Nutrition: 0.5})

	res := g.AdvanceTick(Forcing{SuppressFoodRegen: true}, nil)
	if got := g.At(p).Food; got != 0.5 || res.FoodAdded != 0 {
		t.Errorf("suppressed tick: food %v added %v", got, res.FoodAdded)
	}

	res = g.AdvanceTick(Forcing{}, nil)
	if got := g.At(p).Food; got <= 0.5 || res.FoodAdded <= 0 {
		t.Errorf("calm tick: food %v added %v, want growth", got, res.FoodAdded)
	}

	before := g.At(p).Food
	res = g.AdvanceTick(Forcing{SuppressFoodRegen: true, FoodConsumption: 0.1}, nil)
	if got := g.At(p).Food; got >= before || res.FoodEaten <= 0 {
		t.Errorf("consumed tick: food %v (was %v) eaten %v", got, before, res.FoodEaten)
	}
}

func TestErosionCollapsesWetTunnels(t *testing.T) {
	cfg := testConfig()
	cfg.ErosionChance = 1
	cfg.ErosionMoisture = 0.5
	cfg.MoistureDiffusion = 0
	g := New(3, 1, cfg)
	g.Set(Pos{0, 0}, Cell{Kind: Tunnel, Moisture: 0.9})
	g.Set(Pos{1, 0}, Cell{Kind: Tunnel, Moisture: 0.1})
	g.Set(Pos{2, 0}, Cell{Kind: Soil, Moisture: 0.9})

	res := g.AdvanceTick(Forcing{}, entropy.New(1))
	if res.Eroded != 1 {
		t.Errorf("eroded = %d, want 1", res.Eroded)
	}
	if g.At(Pos{0, 0}).Kind != Soil {
		t.Error("wet tunnel should collapse")
	}
	if g.At(Pos{1, 0}).Kind != Tunnel {
		t.Error("dry tunnel should survive")
	}
}

func TestGenerateLayout(t *testing.T) {
	w := worldConfig()
	g := Generate(testConfig(), w, 15, 42)
	for x := 0; x < w.Width; x++ {
		for y := 0; y < w.SurfaceRows; y++ {
			if k := g.At(Pos{x, y}).Kind; k != Air && k != FoodDeposit {
				t.Fatalf("surface cell (%d,%d) is %s", x, y, k)
			}
		}
	}
	nest := NestCenter(w)
	if !g.Traversable(nest) {
		t.Fatalf("nest center %v is %s", nest, g.At(nest).Kind)
	}
	for y := w.SurfaceRows; y <= nest.Y; y++ {
		if g.At(Pos{nest.X, y}).Kind != Tunnel {
			t.Fatalf("shaft broken at row %d", y)
		}
	}
	if n := g.CountKind(FoodDeposit); n != w.SurfaceFood+w.BuriedFood {
		t.Errorf("food deposits = %d, want %d", n, w.SurfaceFood+w.BuriedFood)
	}

	again := Generate(testConfig(), w, 15, 42)
	if !slices.Equal(g.Cells(), again.Cells()) {
		t.Error("same seed produced different worlds")
	}
}
