package telemetry

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/talgya/antnest/internal/colony"
	"github.com/talgya/antnest/internal/config"
	"github.com/talgya/antnest/internal/engine"
	"github.com/talgya/antnest/internal/soil"
)

func TestSummarize(t *testing.T) {
	tests := []struct {
		name     string
		values   []float64
		mean     float64
		p50      float64
		positive bool // std should be > 0
	}{
		{"empty", nil, 0, 0, false},
		{"single", []float64{4}, 4, 4, false},
		{"odd", []float64{5, 1, 3, 2, 4}, 3, 3, true},
		{"constant", []float64{2, 2, 2, 2}, 2, 2, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Summarize(tt.values)
			if math.Abs(s.Mean-tt.mean) > 1e-9 {
				t.Errorf("mean = %v, want %v", s.Mean, tt.mean)
			}
			if s.P50 != tt.p50 {
				t.Errorf("p50 = %v, want %v", s.P50, tt.p50)
			}
			if got := s.Std > 0; got != tt.positive {
				t.Errorf("std = %v", s.Std)
			}
			if s.P10 > s.P50 || s.P50 > s.P90 {
				t.Errorf("quantiles out of order: %v %v %v", s.P10, s.P50, s.P90)
			}
		})
	}
}

func TestCollectorFlushResets(t *testing.T) {
	c := NewCollector(10, 3)
	rep := colony.TickReport{Hatched: 2, Deliveries: 1, FoodDelivered: 0.25}
	rep.Deaths[colony.Drowned] = 3
	for tick := uint64(1); tick <= 10; tick++ {
		c.Record(rep, soil.TickResult{Eroded: 1})
	}
	if !c.ShouldFlush(10) {
		t.Fatal("window of 10 ticks should flush at tick 10")
	}
	w := c.Flush(Sample{Tick: 10})
	if w.Hatched != 20 || w.Deliveries != 10 || w.DeathsDrowned != 30 || w.Eroded != 10 {
		t.Errorf("window = %+v", w)
	}
	if w.Deaths() != 30 {
		t.Errorf("deaths = %d, want 30", w.Deaths())
	}
	if c.ShouldFlush(11) {
		t.Error("new window should not flush after one tick")
	}
	if w2 := c.Flush(Sample{Tick: 20}); w2.Hatched != 0 || w2.WindowStartTick != 10 {
		t.Errorf("counters not reset: %+v", w2)
	}

	for tick := uint64(30); tick <= 50; tick += 10 {
		c.Flush(Sample{Tick: tick})
	}
	if got := len(c.History(0)); got != 3 {
		t.Errorf("history keeps %d windows, want 3", got)
	}
	if latest, ok := c.Latest(); !ok || latest.WindowEndTick != 50 {
		t.Errorf("latest = %+v, %v", latest, ok)
	}
}

func TestOutputManagerWritesHeaderOnce(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run")
	om, err := NewOutputManager(dir)
	if err != nil {
		t.Fatal(err)
	}
	for i := uint64(1); i <= 3; i++ {
		if err := om.WriteTelemetry(WindowStats{WindowEndTick: i * 100, Live: int(i)}); err != nil {
			t.Fatal(err)
		}
	}
	if err := om.WriteConfig(config.Default()); err != nil {
		t.Fatal(err)
	}
	if err := om.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "telemetry.csv"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want header + 3", len(lines))
	}
	if !strings.HasPrefix(lines[0], "window_end,") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.HasPrefix(lines[3], "300,") {
		t.Errorf("last row = %q", lines[3])
	}
	if _, err := os.Stat(filepath.Join(dir, "config.yaml")); err != nil {
		t.Errorf("config.yaml: %v", err)
	}
}

func TestNilOutputManagerDiscards(t *testing.T) {
	om, err := NewOutputManager("")
	if err != nil || om != nil {
		t.Fatalf("NewOutputManager(\"\") = %v, %v", om, err)
	}
	if err := om.WriteTelemetry(WindowStats{}); err != nil {
		t.Error(err)
	}
	if err := om.Close(); err != nil {
		t.Error(err)
	}
}

func TestAttachFlushesWindows(t *testing.T) {
	cfg := config.Default()
	cfg.World.Width, cfg.World.Depth = 40, 28
	cfg.World.NestDepth = 8
	cfg.World.ChamberRadius = 2
	sim, err := engine.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	c := NewCollector(25, 10)
	Attach(sim, c, nil, false)
	for i := 0; i < 60; i++ {
		sim.Step()
	}

	h := c.History(0)
	if len(h) != 2 {
		t.Fatalf("windows = %d, want 2", len(h))
	}
	w := h[1]
	if w.WindowEndTick != 50 || w.WindowStartTick != 25 {
		t.Errorf("window bounds %d..%d", w.WindowStartTick, w.WindowEndTick)
	}
	if w.Live == 0 || w.Queens != 1 {
		t.Errorf("population sample: live %d queens %d", w.Live, w.Queens)
	}
	if w.Tunnels == 0 || w.MoistureMean <= 0 {
		t.Errorf("grid sample: tunnels %d moisture %v", w.Tunnels, w.MoistureMean)
	}
	if w.EnergyMean <= 0 || w.EnergyMean > 1 {
		t.Errorf("energy mean %v outside (0,1]", w.EnergyMean)
	}
}
