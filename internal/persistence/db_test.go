package persistence

import (
	"errors"
	"path/filepath"
	"slices"
	"testing"

	"github.com/talgya/antnest/internal/config"
	"github.com/talgya/antnest/internal/disaster"
	"github.com/talgya/antnest/internal/engine"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.World.Width, cfg.World.Depth = 40, 28
	cfg.World.NestDepth = 8
	cfg.World.ChamberRadius = 2
	cfg.World.Seed = 99
	cfg.Telemetry.EventBuffer = 32
	return cfg
}

func openTemp(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nest.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestEmptyDatabase(t *testing.T) {
	db := openTemp(t)
	if db.HasWorldState() {
		t.Error("fresh database reports a saved world")
	}
	if _, err := db.LoadWorldState(testConfig()); !errors.Is(err, ErrNoWorld) {
		t.Errorf("LoadWorldState = %v, want ErrNoWorld", err)
	}
}

func TestSaveLoadReplays(t *testing.T) {
	cfg := testConfig()
	sim, err := engine.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	sim.TriggerDisaster(disaster.Rain, 0.7, 200)
	for i := 0; i < 150; i++ {
		sim.Step()
	}

	db := openTemp(t)
	if err := db.SaveWorldState(sim); err != nil {
		t.Fatalf("SaveWorldState: %v", err)
	}
	if !db.HasWorldState() {
		t.Fatal("saved world not found")
	}

	loaded, err := db.LoadWorldState(cfg)
	if err != nil {
		t.Fatalf("LoadWorldState: %v", err)
	}
	if loaded.Tick() != sim.Tick() || loaded.RunID() != sim.RunID() || loaded.Seed() != sim.Seed() {
		t.Fatalf("loaded tick %d run %s, want %d %s", loaded.Tick(), loaded.RunID(), sim.Tick(), sim.RunID())
	}
	if got, want := loaded.Snapshot().Reserve, sim.Snapshot().Reserve; got != want {
		t.Errorf("reserve %v, want %v", got, want)
	}

	for i := 0; i < 100; i++ {
		sim.Step()
		loaded.Step()
	}
	a, b := sim.Snapshot(), loaded.Snapshot()
	if !slices.Equal(a.Ants, b.Ants) {
		t.Error("ants diverged after load")
	}
	if !slices.Equal(a.Cells, b.Cells) {
		t.Error("cells diverged after load")
	}
	if !slices.Equal(a.Eggs, b.Eggs) {
		t.Error("eggs diverged after load")
	}
	if !slices.Equal(a.Disasters, b.Disasters) {
		t.Error("disasters diverged after load")
	}
	if a.Totals != b.Totals {
		t.Errorf("totals %+v, want %+v", b.Totals, a.Totals)
	}
}

func TestEventsAccumulateAcrossSaves(t *testing.T) {
	cfg := testConfig()
	sim, err := engine.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	db := openTemp(t)

	sim.TriggerDisaster(disaster.Rain, 0.5, 2)
	sim.Step()
	if err := db.SaveWorldState(sim); err != nil {
		t.Fatal(err)
	}
	first, err := db.RecentEvents(sim.RunID(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) == 0 {
		t.Fatal("no events saved")
	}

	for i := 0; i < 3; i++ {
		sim.Step()
	}
	if err := db.SaveWorldState(sim); err != nil {
		t.Fatal(err)
	}
	all, err := db.RecentEvents(sim.RunID(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) <= len(first) {
		t.Errorf("events = %d after second save, want more than %d", len(all), len(first))
	}
	for i := 1; i < len(all); i++ {
		if all[i].Seq <= all[i-1].Seq {
			t.Fatalf("events out of order at %d", i)
		}
	}

	last, err := db.RecentEvents(sim.RunID(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(last) != 1 || last[0].Seq != all[len(all)-1].Seq {
		t.Errorf("RecentEvents(1) = %+v", last)
	}
	if other, _ := db.RecentEvents("another-run", 0); len(other) != 0 {
		t.Errorf("events leaked across runs: %d", len(other))
	}
}

func TestMeta(t *testing.T) {
	db := openTemp(t)
	if err := db.SaveMeta("note", "first"); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveMeta("note", "second"); err != nil {
		t.Fatal(err)
	}
	got, err := db.GetMeta("note")
	if err != nil || got != "second" {
		t.Errorf("GetMeta = %q, %v", got, err)
	}
	if _, err := db.GetMeta("missing"); err == nil {
		t.Error("missing key returned no error")
	}
}
