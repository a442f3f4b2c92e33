// Package disaster tracks externally triggered perturbations and composes
// the net modifier they exert on the soil and the colony each tick.
package disaster

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/talgya/antnest/internal/config"
	"github.com/talgya/antnest/internal/soil"
)

// Kind identifies a disaster type.
type Kind uint8

const (
	Rain Kind = iota
	Drought
	ColdSnap
	InvasiveSpecies
)

// Kinds lists every disaster kind in declaration order.
var Kinds = []Kind{Rain, Drought, ColdSnap, InvasiveSpecies}

var kindNames = [...]string{"Rain", "Drought", "ColdSnap", "InvasiveSpecies"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// ParseKind maps a name such as "Drought" to its Kind.
func ParseKind(name string) (Kind, bool) {
	for i, n := range kindNames {
		if n == name {
			return Kind(i), true
		}
	}
	return 0, false
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText decodes a kind name.
func (k *Kind) UnmarshalText(b []byte) error {
	v, ok := ParseKind(string(b))
	if !ok {
		return fmt.Errorf("unknown disaster kind %q", b)
	}
	*k = v
	return nil
}

// Event is one active disaster.
type Event struct {
	ID        uint64  `json:"id"`
	Kind      Kind    `json:"kind"`
	Intensity float32 `json:"intensity"`
	Remaining uint32  `json:"remaining_ticks"`
	Duration  uint32  `json:"duration_ticks"`
}

// Modifier is the net perturbation of all active events for one tick.
// The zero value is not neutral; use Neutral.
type Modifier struct {
	MoistureDelta     float32 `json:"moisture_delta"`
	NutritionDelta    float32 `json:"nutrition_delta"`
	TemperatureDelta  float32 `json:"temperature_delta"`
	DiffusionDelta    float32 `json:"diffusion_delta"`
	Movement          float32 `json:"movement"`     // probability multiplier, (0,1]
	EnergyDrain       float32 `json:"energy_drain"` // multiplier, >= 1
	SuppressFoodRegen bool    `json:"suppress_food_regen"`
	FoodConsumption   float32 `json:"food_consumption"`
}

// Neutral returns the modifier of a tick with no active events.
func Neutral() Modifier {
	return Modifier{Movement: 1, EnergyDrain: 1}
}

// Forcing converts the modifier into the soil grid's perturbation.
func (m Modifier) Forcing(ambient float32) soil.Forcing {
	return soil.Forcing{
		AmbientTemperature: ambient + m.TemperatureDelta,
		MoistureDelta:      m.MoistureDelta,
		NutritionDelta:     m.NutritionDelta,
		DiffusionDelta:     m.DiffusionDelta,
		SuppressFoodRegen:  m.SuppressFoodRegen,
		FoodConsumption:    m.FoodConsumption,
	}
}

// System owns the active events.
type System struct {
	cfg    config.DisasterConfig
	active []Event
	nextID uint64
	mod    Modifier
}

// NewSystem creates an empty disaster system.
func NewSystem(cfg config.DisasterConfig) *System {
	return &System{cfg: cfg, nextID: 1, mod: Neutral()}
}

// Trigger appends a new event. Events of the same kind may overlap and are
// timed independently. Non-positive intensity or duration is a caller
// contract violation: the call is ignored and Trigger returns false.
// An event triggered now affects the next duration ticks.
func (s *System) Trigger(kind Kind, intensity float32, duration uint32) bool {
	if intensity <= 0 || duration == 0 || int(kind) >= len(kindNames) {
		slog.Warn("disaster trigger ignored", "kind", kind, "intensity", intensity, "duration", duration)
		return false
	}
	s.active = append(s.active, Event{
		ID:        s.nextID,
		Kind:      kind,
		Intensity: intensity,
		Remaining: duration,
		Duration:  duration,
	})
	s.nextID++
	return true
}

// AdvanceTick computes this tick's modifier from every active event, then
// counts each event down and drops the ones that reached zero. It returns
// the events that expired.
func (s *System) AdvanceTick() (Modifier, []Event) {
	s.mod = s.compose()

	var expired []Event
	kept := s.active[:0]
	for _, e := range s.active {
		e.Remaining--
		if e.Remaining == 0 {
			expired = append(expired, e)
			continue
		}
		kept = append(kept, e)
	}
	s.active = kept
	return s.mod, expired
}

// compose sums each event's contribution and saturates every field at its
// configured bound. Saturation means extra overlapping events stop adding
// effect once a bound is hit, never wrap or overflow.
func (s *System) compose() Modifier {
	var moist, nut, temp, diff, move, drain, food float32
	suppress := false

	for _, e := range s.active {
		i := e.Intensity
		switch e.Kind {
		case Rain:
			moist += s.cfg.RainMoisture * i
			diff += s.cfg.RainDiffusion * i
			move += s.cfg.RainMovement * i
		case Drought:
			moist += s.cfg.DroughtMoisture * i
			nut += s.cfg.DroughtNutrition * i
			drain += s.cfg.DroughtDrain * i
			suppress = true
		case ColdSnap:
			temp += s.cfg.ColdSnapTemperature * i
			move += s.cfg.ColdSnapMovement * i
			drain += s.cfg.ColdSnapDrain * i
		case InvasiveSpecies:
			food += s.cfg.InvasiveConsumption * i
			drain += s.cfg.InvasiveDrain * i
			move += s.cfg.InvasiveMovement * i
		}
	}

	return Modifier{
		MoistureDelta:     saturate(moist, s.cfg.MaxMoistureDelta),
		NutritionDelta:    saturate(nut, s.cfg.MaxNutritionDelta),
		TemperatureDelta:  saturate(temp, s.cfg.MaxTemperatureDelta),
		DiffusionDelta:    saturate(diff, s.cfg.MaxDiffusionDelta),
		Movement:          clamp(1+move, s.cfg.MinMovement, 1),
		EnergyDrain:       clamp(1+drain, 1, s.cfg.MaxDrainMultiplier),
		SuppressFoodRegen: suppress,
		FoodConsumption:   clamp(food, 0, s.cfg.MaxFoodConsumption),
	}
}

// Modifier returns the modifier computed by the last AdvanceTick.
func (s *System) Modifier() Modifier { return s.mod }

// Active returns a copy of the active events.
func (s *System) Active() []Event { return slices.Clone(s.active) }

// NextID returns the id the next triggered event will receive.
func (s *System) NextID() uint64 { return s.nextID }

// Restore replaces the active events and the id counter from saved state.
func (s *System) Restore(events []Event, nextID uint64) {
	s.active = slices.Clone(events)
	s.nextID = nextID
	s.mod = s.compose()
}

// saturate bounds v to [-limit, limit].
func saturate(v, limit float32) float32 {
	return clamp(v, -limit, limit)
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
