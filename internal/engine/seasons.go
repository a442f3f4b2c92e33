// Seasonal calendar and depth preference.
package engine

import (
	"fmt"

	"github.com/talgya/antnest/internal/config"
)

// Calendar maps ticks onto days, seasons and years.
type Calendar struct {
	ticksPerDay    uint64
	ticksPerSeason uint64
	seasons        []config.SeasonConfig
	surfaceRows    int
	depth          int
}

// NewCalendar builds a calendar for the configured seasons and grid depth.
func NewCalendar(s config.SeasonsConfig, w config.WorldConfig) Calendar {
	return Calendar{
		ticksPerDay:    max(s.TicksPerDay, 1),
		ticksPerSeason: max(s.TicksPerDay*s.DaysPerSeason, 1),
		seasons:        s.Table,
		surfaceRows:    w.SurfaceRows,
		depth:          w.Depth,
	}
}

// Day returns the zero-based day number.
func (c Calendar) Day(tick uint64) uint64 { return tick / c.ticksPerDay }

// SeasonIndex returns the position of tick in the season table.
func (c Calendar) SeasonIndex(tick uint64) int {
	if len(c.seasons) == 0 {
		return 0
	}
	return int((tick / c.ticksPerSeason) % uint64(len(c.seasons)))
}

// Season returns the season in effect at tick.
func (c Calendar) Season(tick uint64) config.SeasonConfig {
	if len(c.seasons) == 0 {
		return config.SeasonConfig{Name: "Always"}
	}
	return c.seasons[c.SeasonIndex(tick)]
}

// Year returns the one-based year.
func (c Calendar) Year(tick uint64) uint64 {
	n := uint64(max(len(c.seasons), 1))
	return tick/(c.ticksPerSeason*n) + 1
}

// SeasonStart reports whether tick is the first tick of a season.
func (c Calendar) SeasonStart(tick uint64) bool { return tick%c.ticksPerSeason == 0 }

// DayStart reports whether tick is the first tick of a day.
func (c Calendar) DayStart(tick uint64) bool { return tick%c.ticksPerDay == 0 }

// PreferredDepth returns the row workers drift toward in the season at tick:
// shallow in summer, deep in winter.
func (c Calendar) PreferredDepth(tick uint64) int {
	s := c.Season(tick)
	span := max(c.depth-c.surfaceRows-1, 0)
	frac := min(max(s.DepthFraction, 0), 1)
	return c.surfaceRows + int(frac*float32(span))
}

// SimTime returns a human-readable simulation time string from a tick number.
func (c Calendar) SimTime(tick uint64) string {
	daysPerSeason := c.ticksPerSeason / c.ticksPerDay
	day := c.Day(tick)%max(daysPerSeason, 1) + 1
	return fmt.Sprintf("%s Day %d, Year %d", c.Season(tick).Name, day, c.Year(tick))
}
