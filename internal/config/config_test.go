package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.World.Width != 120 || cfg.World.Depth != 80 {
		t.Errorf("world = %dx%d, want 120x80", cfg.World.Width, cfg.World.Depth)
	}
	if len(cfg.Seasons.Table) != 4 {
		t.Fatalf("seasons = %d, want 4", len(cfg.Seasons.Table))
	}
	if !cfg.Seasons.Table[3].Winter {
		t.Error("fourth season should be winter")
	}
	if got, want := cfg.Derived.TicksPerSeason, cfg.Seasons.TicksPerDay*cfg.Seasons.DaysPerSeason; got != want {
		t.Errorf("TicksPerSeason = %d, want %d", got, want)
	}
	if cfg.Derived.Underground != cfg.World.Depth-cfg.World.SurfaceRows {
		t.Errorf("Underground = %d", cfg.Derived.Underground)
	}
	if cfg.Steward.DurationSeconds["Drought"] != 45 {
		t.Errorf("drought duration = %v, want 45", cfg.Steward.DurationSeconds["Drought"])
	}
}

func TestLoadOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nest.yaml")
	body := "world:\n  width: 40\ncolony:\n  incubation_ticks: 7\n"
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.World.Width != 40 {
		t.Errorf("width = %d, want 40", cfg.World.Width)
	}
	if cfg.World.Depth != 80 {
		t.Errorf("depth = %d, want default 80", cfg.World.Depth)
	}
	if cfg.Colony.IncubationTicks != 7 {
		t.Errorf("incubation = %d, want 7", cfg.Colony.IncubationTicks)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"tiny world", func(c *Config) { c.World.Width = 2 }},
		{"all air", func(c *Config) { c.World.SurfaceRows = c.World.Depth }},
		{"diffusion above one", func(c *Config) { c.Soil.MoistureDiffusion = 1.5 }},
		{"inverted temperatures", func(c *Config) { c.Soil.MinTemperature = c.Soil.MaxTemperature }},
		{"zero drain", func(c *Config) { c.Colony.BaseDrain = 0 }},
		{"zero incubation", func(c *Config) { c.Colony.IncubationTicks = 0 }},
		{"scale too high", func(c *Config) { c.Clock.InitialScale = 101 }},
		{"no seasons", func(c *Config) { c.Seasons.Table = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate() = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.World.Seed = 99
	path := filepath.Join(t.TempDir(), "out.yaml")
	if err := cfg.WriteYAML(path); err != nil {
		t.Fatalf("WriteYAML: %v", err)
	}
	back, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if back.World.Seed != 99 {
		t.Errorf("seed = %d, want 99", back.World.Seed)
	}
}
