package steward

// Crisis levels, most severe first.
const (
	LevelCritical = "CRITICAL"
	LevelWarning  = "WARNING"
	LevelWatch    = "WATCH"
	LevelHealthy  = "HEALTHY"
)

// Health holds diagnostic signals derived from an Observation.
type Health struct {
	PopulationTrend float64 // fractional change across the history windows
	Hatched         int     // summed over the history windows
	Deaths          int
	EnergyMean      float64 // newest window, fraction of max
	Level           string
}

// Triage computes the colony's Health. minPopulation is the floor below
// which the colony is considered in crisis.
func Triage(obs *Observation, minPopulation int) Health {
	h := Health{Level: LevelHealthy}
	st := obs.Status

	if n := len(obs.History); n > 0 {
		oldest, newest := obs.History[0], obs.History[n-1]
		if oldest.Live > 0 {
			h.PopulationTrend = float64(newest.Live-oldest.Live) / float64(oldest.Live)
		}
		for _, w := range obs.History {
			h.Hatched += w.Hatched
			h.Deaths += w.Deaths()
		}
		h.EnergyMean = newest.EnergyMean
	}

	low := len(obs.History) > 0 && h.EnergyMean < 0.25
	switch {
	case !st.Queen, st.Population < minPopulation, h.PopulationTrend < -0.25, low:
		h.Level = LevelCritical
	case h.PopulationTrend < -0.10, h.Deaths > 2*h.Hatched && h.Deaths > 0, st.Reserve <= 0:
		h.Level = LevelWarning
	case h.Deaths > h.Hatched:
		h.Level = LevelWatch
	}
	return h
}
