package telemetry

import (
	"log/slog"

	"github.com/talgya/antnest/internal/engine"
)

// Attach records every tick of sim into c and flushes at window ends,
// logging each window when logStats is set and writing it to out. Any
// OnTick already installed keeps running first.
func Attach(sim *engine.Simulation, c *Collector, out *OutputManager, logStats bool) {
	prev := sim.OnTick
	sim.OnTick = func(info engine.TickInfo) {
		if prev != nil {
			prev(info)
		}
		c.Record(info.Colony, info.Soil)
		if !c.ShouldFlush(info.Tick) {
			return
		}

		stats := c.Flush(Sample{
			Tick:       info.Tick,
			SimTime:    sim.Calendar.SimTime(info.Tick),
			Season:     info.Season.Name,
			Population: info.Population,
			Grid:       info.Grid,
			Disasters:  info.Disasters,
		})
		if logStats {
			stats.LogStats()
		}
		if err := out.WriteTelemetry(stats); err != nil {
			slog.Error("failed to write telemetry", "error", err)
		}
	}
}
