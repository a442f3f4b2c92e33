package steward

import (
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/talgya/antnest/internal/config"
	"github.com/talgya/antnest/internal/disaster"
	"github.com/talgya/antnest/internal/entropy"
)

// Decision actions.
const (
	ActionNone     = "none"
	ActionDisaster = "disaster"
)

// Policy is the steward configuration with durations in ticks.
type Policy struct {
	config.StewardConfig
	TicksPerSecond int
}

// NewPolicy builds a Policy from the loaded configuration.
func NewPolicy(cfg *config.Config) Policy {
	return Policy{StewardConfig: cfg.Steward, TicksPerSecond: cfg.Clock.TicksPerSecond}
}

func (p Policy) ticks(seconds float64) uint64 {
	return uint64(math.Ceil(seconds * float64(p.TicksPerSecond)))
}

// DurationTicks returns the configured default duration of kind.
func (p Policy) DurationTicks(kind string) uint32 {
	return uint32(min(p.ticks(p.DurationSeconds[kind]), math.MaxUint32))
}

// CooldownTicks returns how long kind rests after it ends.
func (p Policy) CooldownTicks(kind string) uint64 {
	return p.ticks(p.CooldownSeconds[kind])
}

// Decision is the steward's choice for one cycle.
type Decision struct {
	Action    string           `json:"action"`
	Rationale string           `json:"rationale"`
	Level     string           `json:"level"`
	Disaster  *DisasterRequest `json:"disaster,omitempty"`
}

func hold(level, format string, args ...any) Decision {
	return Decision{Action: ActionNone, Level: level, Rationale: fmt.Sprintf(format, args...)}
}

// Decide chooses zero or one disaster. A kind is eligible when it is not
// already active and its last trigger in this run ended at least its
// cooldown ago. A struggling colony is left alone.
func Decide(p Policy, obs *Observation, mem *Memory, rng *entropy.Source) Decision {
	st := obs.Status
	h := Triage(obs, p.MinPopulation)

	switch {
	case st.Paused:
		return hold(h.Level, "simulation paused")
	case h.Level == LevelCritical:
		return hold(h.Level, "colony in crisis (population %d, trend %+.0f%%)", st.Population, h.PopulationTrend*100)
	case len(st.Disasters) >= p.MaxConcurrent:
		return hold(h.Level, "%d disasters already active", len(st.Disasters))
	}

	if roll := rng.Float64(); roll >= p.TriggerChance {
		return hold(h.Level, "roll %.2f above trigger chance %.2f", roll, p.TriggerChance)
	}

	var eligible []string
	for _, k := range disaster.Kinds {
		kind := k.String()
		if p.DurationTicks(kind) == 0 {
			continue
		}
		if slices.ContainsFunc(st.Disasters, func(d ActiveDisaster) bool { return d.Kind == kind }) {
			continue
		}
		if last, ok := mem.LastDisaster(st.RunID, kind); ok && st.Tick < last.ends()+p.CooldownTicks(kind) {
			continue
		}
		eligible = append(eligible, kind)
	}
	if len(eligible) == 0 {
		return hold(h.Level, "every kind active or cooling down")
	}

	kind := eligible[rng.IntN(len(eligible))]
	hi := p.MaxIntensity
	if h.Level == LevelWarning {
		hi = p.MinIntensity + (p.MaxIntensity-p.MinIntensity)/2
	}
	intensity := p.MinIntensity + rng.Float32()*(hi-p.MinIntensity)

	d := Decision{
		Action: ActionDisaster,
		Level:  h.Level,
		Disaster: &DisasterRequest{
			Kind:          kind,
			Intensity:     intensity,
			DurationTicks: p.DurationTicks(kind),
		},
		Rationale: fmt.Sprintf("colony %s with %d ants, %d eligible kinds", h.Level, st.Population, len(eligible)),
	}
	slog.Debug("steward decision", "kind", kind, "intensity", intensity, "level", h.Level)
	return d
}

// RecordDecision adds the outcome of a cycle to memory.
func (m *Memory) RecordDecision(obs *Observation, d Decision) {
	r := CycleRecord{
		RunID:      obs.Status.RunID,
		Tick:       obs.Status.Tick,
		Action:     d.Action,
		Level:      d.Level,
		Population: obs.Status.Population,
		Rationale:  d.Rationale,
	}
	if d.Disaster != nil {
		r.Kind = d.Disaster.Kind
		r.Intensity = d.Disaster.Intensity
		r.DurationTicks = d.Disaster.DurationTicks
	}
	m.Record(r)
}
