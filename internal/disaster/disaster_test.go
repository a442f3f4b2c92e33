package disaster

import (
	"testing"

	"github.com/talgya/antnest/internal/config"
)

func newSystem() *System {
	return NewSystem(config.Default().Disasters)
}

func TestTriggerRejectsInvalidParameters(t *testing.T) {
	tests := []struct {
		name      string
		intensity float32
		duration  uint32
	}{
		{"zero intensity", 0, 10},
		{"negative intensity", -1, 10},
		{"zero duration", 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSystem()
			if s.Trigger(Rain, tt.intensity, tt.duration) {
				t.Error("Trigger returned true")
			}
			if len(s.Active()) != 0 {
				t.Error("invalid trigger should not add an event")
			}
		})
	}
}

func TestExpiry(t *testing.T) {
	const d = 5
	s := newSystem()
	if !s.Trigger(Drought, 1, d) {
		t.Fatal("trigger rejected")
	}

	for tick := 1; tick <= d; tick++ {
		mod, expired := s.AdvanceTick()
		if !mod.SuppressFoodRegen {
			t.Fatalf("tick %d: drought should be in effect", tick)
		}
		if tick < d && len(expired) != 0 {
			t.Fatalf("tick %d: expired early", tick)
		}
		if tick == d && len(expired) != 1 {
			t.Fatalf("tick %d: want one expiry, got %d", tick, len(expired))
		}
	}
	for tick := d + 1; tick <= d+3; tick++ {
		mod, _ := s.AdvanceTick()
		if mod != Neutral() {
			t.Fatalf("tick %d: modifier %+v, want neutral", tick, mod)
		}
	}
	if len(s.Active()) != 0 {
		t.Error("expired event still active")
	}
}

func TestSameKindTimedIndependently(t *testing.T) {
	s := newSystem()
	s.Trigger(Rain, 1, 2)
	s.Trigger(Rain, 1, 4)

	s.AdvanceTick()
	_, expired := s.AdvanceTick()
	if len(expired) != 1 || expired[0].Duration != 2 {
		t.Fatalf("after 2 ticks expired = %+v", expired)
	}
	if got := len(s.Active()); got != 1 {
		t.Fatalf("active = %d, want 1", got)
	}
	mod, _ := s.AdvanceTick()
	if mod.MoistureDelta <= 0 {
		t.Error("remaining rain should still add moisture")
	}
}

func TestColdSnapHalvesMovement(t *testing.T) {
	cfg := config.Default().Disasters
	s := NewSystem(cfg)
	s.Trigger(ColdSnap, 1, 3)
	mod, _ := s.AdvanceTick()
	if mod.Movement != 0.5 {
		t.Errorf("movement = %v, want 0.5", mod.Movement)
	}
	if mod.EnergyDrain != 1+cfg.ColdSnapDrain {
		t.Errorf("drain = %v, want %v", mod.EnergyDrain, 1+cfg.ColdSnapDrain)
	}
	if mod.TemperatureDelta >= 0 {
		t.Errorf("temperature delta = %v, want negative", mod.TemperatureDelta)
	}
}

func TestInvasiveSpeciesStressesColony(t *testing.T) {
	cfg := config.Default().Disasters
	tests := []struct {
		name      string
		intensity float32
	}{
		{"half", 0.5},
		{"full", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSystem(cfg)
			s.Trigger(InvasiveSpecies, tt.intensity, 5)
			mod, _ := s.AdvanceTick()
			if want := cfg.InvasiveConsumption * tt.intensity; mod.FoodConsumption != want {
				t.Errorf("food consumption = %v, want %v", mod.FoodConsumption, want)
			}
			if want := 1 + float32(cfg.InvasiveDrain*tt.intensity); mod.EnergyDrain != want {
				t.Errorf("drain = %v, want %v", mod.EnergyDrain, want)
			}
			if want := 1 + float32(cfg.InvasiveMovement*tt.intensity); mod.Movement != want {
				t.Errorf("movement = %v, want %v", mod.Movement, want)
			}
		})
	}
}

func TestCompositionSaturates(t *testing.T) {
	cfg := config.Default().Disasters
	s := NewSystem(cfg)
	for i := 0; i < 50; i++ {
		s.Trigger(Rain, 2, 10)
		s.Trigger(ColdSnap, 2, 10)
		s.Trigger(InvasiveSpecies, 3, 10)
		s.Trigger(Drought, 2, 10)
	}
	mod, _ := s.AdvanceTick()

	if mod.Movement != cfg.MinMovement {
		t.Errorf("movement = %v, want floor %v", mod.Movement, cfg.MinMovement)
	}
	if mod.EnergyDrain != cfg.MaxDrainMultiplier {
		t.Errorf("drain = %v, want cap %v", mod.EnergyDrain, cfg.MaxDrainMultiplier)
	}
	if mod.FoodConsumption != cfg.MaxFoodConsumption {
		t.Errorf("food consumption = %v, want cap %v", mod.FoodConsumption, cfg.MaxFoodConsumption)
	}
	if mod.DiffusionDelta != cfg.MaxDiffusionDelta {
		t.Errorf("diffusion = %v, want cap %v", mod.DiffusionDelta, cfg.MaxDiffusionDelta)
	}
	if mod.TemperatureDelta != -cfg.MaxTemperatureDelta {
		t.Errorf("temperature = %v, want floor %v", mod.TemperatureDelta, -cfg.MaxTemperatureDelta)
	}
	if mod.MoistureDelta < -cfg.MaxMoistureDelta || mod.MoistureDelta > cfg.MaxMoistureDelta {
		t.Errorf("moisture = %v outside ±%v", mod.MoistureDelta, cfg.MaxMoistureDelta)
	}
}

func TestForcingCarriesAmbient(t *testing.T) {
	s := newSystem()
	s.Trigger(ColdSnap, 1, 1)
	mod, _ := s.AdvanceTick()
	f := mod.Forcing(20)
	if f.AmbientTemperature != 20+mod.TemperatureDelta {
		t.Errorf("ambient = %v", f.AmbientTemperature)
	}
}

func TestRestore(t *testing.T) {
	s := newSystem()
	s.Trigger(Rain, 1, 9)
	s.Trigger(Drought, 0.5, 3)
	s.AdvanceTick()

	r := newSystem()
	r.Restore(s.Active(), s.NextID())
	for i := 0; i < 10; i++ {
		a, _ := s.AdvanceTick()
		b, _ := r.AdvanceTick()
		if a != b {
			t.Fatalf("tick %d: restored modifier %+v != %+v", i, b, a)
		}
	}
	want := s.NextID()
	r.Trigger(ColdSnap, 1, 1)
	active := r.Active()
	if got := active[len(active)-1].ID; got != want {
		t.Errorf("new event id = %d, want %d", got, want)
	}
}

func TestKindText(t *testing.T) {
	for _, k := range Kinds {
		b, _ := k.MarshalText()
		var back Kind
		if err := back.UnmarshalText(b); err != nil || back != k {
			t.Errorf("%s: round trip gave %v, %v", k, back, err)
		}
	}
	var k Kind
	if err := k.UnmarshalText([]byte("Meteor")); err == nil {
		t.Error("expected error for unknown kind")
	}
}
