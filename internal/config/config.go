// Package config provides configuration loading for the nest simulation.
// Every tunable threshold lives here; defaults.yaml is embedded and a user
// file only needs to override the fields it cares about.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config holds all simulation configuration parameters.
type Config struct {
	World       WorldConfig       `yaml:"world"`
	Soil        SoilConfig        `yaml:"soil"`
	Colony      ColonyConfig      `yaml:"colony"`
	Seasons     SeasonsConfig     `yaml:"seasons"`
	Disasters   DisasterConfig    `yaml:"disasters"`
	Clock       ClockConfig       `yaml:"clock"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Persistence PersistenceConfig `yaml:"persistence"`
	API         APIConfig         `yaml:"api"`
	Steward     StewardConfig     `yaml:"steward"`
	Log         LogConfig         `yaml:"log"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// WorldConfig sets the grid shape and the initial colony layout.
type WorldConfig struct {
	Width          int     `yaml:"width"`
	Depth          int     `yaml:"depth"`
	SurfaceRows    int     `yaml:"surface_rows"` // rows of Air at the top of the grid
	Seed           int64   `yaml:"seed"`         // 0 = pick one from crypto/rand
	InitialJuniors int     `yaml:"initial_juniors"`
	InitialSeniors int     `yaml:"initial_seniors"`
	InitialLarvae  int     `yaml:"initial_larvae"`
	NestX          int     `yaml:"nest_x"`     // 0 = centered
	NestDepth      int     `yaml:"nest_depth"` // chamber rows below the surface
	ChamberRadius  int     `yaml:"chamber_radius"`
	SurfaceFood    int     `yaml:"surface_food"`
	BuriedFood     int     `yaml:"buried_food"`
	InitialReserve float32 `yaml:"initial_reserve"`
}

// SoilConfig holds the environmental constants of the soil grid.
type SoilConfig struct {
	MoistureDiffusion    float32 `yaml:"moisture_diffusion"`    // fraction moved toward neighbor mean per tick
	TemperatureDiffusion float32 `yaml:"temperature_diffusion"` // same, for temperature
	NutritionBaseline    float32 `yaml:"nutrition_baseline"`
	NutritionDecay       float32 `yaml:"nutrition_decay"`  // fraction moved toward baseline per tick
	AirHumidity          float32 `yaml:"air_humidity"`     // Air cells relax toward this moisture
	AmbientRelax         float32 `yaml:"ambient_relax"`    // Air cell relaxation rate toward ambient
	MinTemperature       float32 `yaml:"min_temperature"`
	MaxTemperature       float32 `yaml:"max_temperature"`
	DepthWarming         float32 `yaml:"depth_warming"`    // initial degrees per row below surface
	FoodRegen            float32 `yaml:"food_regen"`       // per tick, scaled by cell nutrition
	WasteCap             float32 `yaml:"waste_cap"`
	ErosionMoisture      float32 `yaml:"erosion_moisture"` // tunnels wetter than this may collapse
	ErosionChance        float32 `yaml:"erosion_chance"`   // per eligible tunnel per tick
	FloodThreshold       float32 `yaml:"flood_threshold"`  // tunnel moisture at or above this is flooded
	NoiseScale           float64 `yaml:"noise_scale"`
	NoiseOctaves         int     `yaml:"noise_octaves"`
	ParallelMinRows      int     `yaml:"parallel_min_rows"` // rows per worker before fanning out
}

// ColonyConfig holds the ant lifecycle and behavior thresholds.
type ColonyConfig struct {
	QueenMaxEnergy  float32 `yaml:"queen_max_energy"`
	WorkerMaxEnergy float32 `yaml:"worker_max_energy"`
	LarvaMaxEnergy  float32 `yaml:"larva_max_energy"`

	BaseDrain    float32 `yaml:"base_drain"`    // energy per tick for every ant
	MoveDrain    float32 `yaml:"move_drain"`    // extra energy per step taken
	CarryDrain   float32 `yaml:"carry_drain"`   // extra energy per tick while carrying
	QueenDrain   float32 `yaml:"queen_drain"`   // queen drain replaces base drain
	LarvaDrain   float32 `yaml:"larva_drain"`   // larva drain replaces base drain
	DormantDrain float32 `yaml:"dormant_drain"` // multiplier applied while Dormant

	RestThreshold float32 `yaml:"rest_threshold"` // fraction of max; below forces Resting
	RestResume    float32 `yaml:"rest_resume"`    // fraction of max needed to leave Resting
	EatRate       float32 `yaml:"eat_rate"`       // reserve units eaten per tick while resting hungry
	FoodEnergy    float32 `yaml:"food_energy"`    // energy per reserve unit

	LarvaAge     uint64  `yaml:"larva_age"`  // ticks before Larva becomes JuniorWorker
	SeniorAge    uint64  `yaml:"senior_age"` // ticks before JuniorWorker becomes SeniorWorker
	WorkerMaxAge uint64  `yaml:"worker_max_age"`
	QueenMaxAge  uint64  `yaml:"queen_max_age"` // 0 = never dies of age
	HatchEnergy  float32 `yaml:"hatch_energy"`  // fraction of larva max at hatch

	LayEnergyThreshold  float32 `yaml:"lay_energy_threshold"`
	LayReserveThreshold float32 `yaml:"lay_reserve_threshold"`
	EggLayCost          float32 `yaml:"egg_lay_cost"`    // reserve deducted per egg
	EggEnergyCost       float32 `yaml:"egg_energy_cost"` // queen energy deducted per egg
	IncubationTicks     uint64  `yaml:"incubation_ticks"`
	LayInterval         uint64  `yaml:"lay_interval"`
	PopulationCap       int     `yaml:"population_cap"`
	QueenHunger         float32 `yaml:"queen_hunger"` // queen eats below this fraction of max

	SenseRadius       int     `yaml:"sense_radius"`
	NestRadius        int     `yaml:"nest_radius"`
	FoodBite          float32 `yaml:"food_bite"`          // food taken from a deposit per trip
	ReservePerFood    float32 `yaml:"reserve_per_food"`   // reserve units per unit of food delivered
	WastePerDelivery  float32 `yaml:"waste_per_delivery"` // nest waste produced per food delivery
	WasteDumpDistance int     `yaml:"waste_dump_distance"`
	DigQuota          int     `yaml:"dig_quota"`
	DigChance         float32 `yaml:"dig_chance"` // foragers beside soil with nothing sensed may start digging
	TendCost          float32 `yaml:"tend_cost"`
	TendEnergy        float32 `yaml:"tend_energy"`
	TaskTimeout       int     `yaml:"task_timeout"` // ticks without progress before heading home
	SubmergeTolerance int     `yaml:"submerge_tolerance"`

	SeniorForageBias float32 `yaml:"senior_forage_bias"` // P(Foraging) vs Digging for seniors
	JuniorTendBias   float32 `yaml:"junior_tend_bias"`   // P(Tending) when brood exists
	JuniorIdleChance float32 `yaml:"junior_idle_chance"` // P(stay Resting) when nothing needs doing

	ParallelMinAnts int `yaml:"parallel_min_ants"`
}

// SeasonConfig describes one season.
type SeasonConfig struct {
	Name               string  `yaml:"name"`
	DepthFraction      float32 `yaml:"depth_fraction"` // 0 = just below surface, 1 = bottom row
	SurfaceTemperature float32 `yaml:"surface_temperature"`
	Winter             bool    `yaml:"winter"`
}

// SeasonsConfig holds the simulated calendar.
type SeasonsConfig struct {
	TicksPerDay   uint64         `yaml:"ticks_per_day"`
	DaysPerSeason uint64         `yaml:"days_per_season"`
	Table         []SeasonConfig `yaml:"table"`
}

// DisasterConfig holds per-kind effect strengths (at intensity 1) and the
// saturation bounds applied after composing concurrent events.
type DisasterConfig struct {
	RainMoisture        float32 `yaml:"rain_moisture"`
	RainDiffusion       float32 `yaml:"rain_diffusion"`
	RainMovement        float32 `yaml:"rain_movement"`
	DroughtMoisture     float32 `yaml:"drought_moisture"`
	DroughtNutrition    float32 `yaml:"drought_nutrition"`
	DroughtDrain        float32 `yaml:"drought_drain"`
	ColdSnapTemperature float32 `yaml:"cold_snap_temperature"`
	ColdSnapMovement    float32 `yaml:"cold_snap_movement"`
	ColdSnapDrain       float32 `yaml:"cold_snap_drain"`
	InvasiveConsumption float32 `yaml:"invasive_consumption"`
	InvasiveDrain       float32 `yaml:"invasive_drain"`    // stress drain while competitors roam
	InvasiveMovement    float32 `yaml:"invasive_movement"` // ants hold close to the nest

	MaxMoistureDelta    float32 `yaml:"max_moisture_delta"`
	MaxNutritionDelta   float32 `yaml:"max_nutrition_delta"`
	MaxTemperatureDelta float32 `yaml:"max_temperature_delta"`
	MaxDiffusionDelta   float32 `yaml:"max_diffusion_delta"`
	MinMovement         float32 `yaml:"min_movement"`
	MaxDrainMultiplier  float32 `yaml:"max_drain_multiplier"`
	MaxFoodConsumption  float32 `yaml:"max_food_consumption"`
}

// ClockConfig holds the time-advance parameters.
type ClockConfig struct {
	TicksPerSecond   int `yaml:"ticks_per_second"` // ticks per real second at scale 1
	InitialScale     int `yaml:"initial_scale"`
	MaxTicksPerFrame int `yaml:"max_ticks_per_frame"` // 0 = unlimited
	FrameMillis      int `yaml:"frame_millis"`
}

// TelemetryConfig controls windowed statistics.
type TelemetryConfig struct {
	WindowTicks uint64 `yaml:"window_ticks"`
	OutputDir   string `yaml:"output_dir"` // empty = no CSV output
	EventBuffer int    `yaml:"event_buffer"`
}

// PersistenceConfig controls the SQLite store.
type PersistenceConfig struct {
	Path         string `yaml:"path"`
	AutosaveDays uint64 `yaml:"autosave_days"` // 0 = only on shutdown
}

// APIConfig controls the HTTP server.
type APIConfig struct {
	Port             int `yaml:"port"`
	DisasterPerMin   int `yaml:"disaster_per_min"`
	MaxStreamClients int `yaml:"max_stream_clients"`
}

// StewardConfig holds the disaster director's policy.
type StewardConfig struct {
	IntervalSeconds int                `yaml:"interval_seconds"`
	TriggerChance   float64            `yaml:"trigger_chance"`
	MinPopulation   int                `yaml:"min_population"`
	MaxConcurrent   int                `yaml:"max_concurrent"`
	MinIntensity    float32            `yaml:"min_intensity"`
	MaxIntensity    float32            `yaml:"max_intensity"`
	DurationSeconds map[string]float64 `yaml:"duration_seconds"`
	CooldownSeconds map[string]float64 `yaml:"cooldown_seconds"`
	MemoryFile      string             `yaml:"memory_file"`
}

// LogConfig controls the log handler installed by the commands.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	JSON  bool   `yaml:"json"`
}

// DerivedConfig holds values computed from other fields.
type DerivedConfig struct {
	TicksPerSeason uint64
	TicksPerYear   uint64
	Underground    int // rows below the surface
}

// Load reads configuration from a YAML file over the embedded defaults.
// An empty path loads the defaults alone.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Only overwrites fields present in the file.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.computeDerived()
	return cfg, nil
}

// Default returns the embedded defaults. It panics if they fail to parse,
// which only happens when defaults.yaml itself is broken.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults: %v", err))
	}
	return cfg
}

// Validate checks ranges that would otherwise break the simulation.
func (c *Config) Validate() error {
	w := c.World
	switch {
	case w.Width < 3 || w.Depth < 3:
		return fmt.Errorf("%w: world must be at least 3x3, got %dx%d", ErrInvalid, w.Width, w.Depth)
	case w.SurfaceRows < 0 || w.SurfaceRows >= w.Depth:
		return fmt.Errorf("%w: surface_rows %d outside [0,%d)", ErrInvalid, w.SurfaceRows, w.Depth)
	case w.SurfaceRows+w.NestDepth >= w.Depth:
		return fmt.Errorf("%w: nest_depth %d leaves no room below surface", ErrInvalid, w.NestDepth)
	}

	s := c.Soil
	if !unit(s.MoistureDiffusion) || !unit(s.TemperatureDiffusion) || !unit(s.NutritionDecay) || !unit(s.AmbientRelax) {
		return fmt.Errorf("%w: soil rates must be within [0,1]", ErrInvalid)
	}
	if s.MinTemperature >= s.MaxTemperature {
		return fmt.Errorf("%w: min_temperature must be below max_temperature", ErrInvalid)
	}
	if s.WasteCap <= 0 {
		return fmt.Errorf("%w: waste_cap must be positive", ErrInvalid)
	}

	col := c.Colony
	if col.QueenMaxEnergy <= 0 || col.WorkerMaxEnergy <= 0 || col.LarvaMaxEnergy <= 0 {
		return fmt.Errorf("%w: max energies must be positive", ErrInvalid)
	}
	if col.BaseDrain <= 0 || col.QueenDrain <= 0 || col.LarvaDrain <= 0 {
		return fmt.Errorf("%w: drains must be positive", ErrInvalid)
	}
	if col.IncubationTicks == 0 {
		return fmt.Errorf("%w: incubation_ticks must be positive", ErrInvalid)
	}
	if col.SeniorAge <= col.LarvaAge {
		return fmt.Errorf("%w: senior_age must exceed larva_age", ErrInvalid)
	}

	if len(c.Seasons.Table) == 0 || c.Seasons.TicksPerDay == 0 || c.Seasons.DaysPerSeason == 0 {
		return fmt.Errorf("%w: seasons need a table and a positive calendar", ErrInvalid)
	}
	if c.Clock.TicksPerSecond <= 0 {
		return fmt.Errorf("%w: ticks_per_second must be positive", ErrInvalid)
	}
	if c.Clock.InitialScale < 0 || c.Clock.InitialScale > 100 {
		return fmt.Errorf("%w: initial_scale %d outside [0,100]", ErrInvalid, c.Clock.InitialScale)
	}
	return nil
}

func unit(v float32) bool { return v >= 0 && v <= 1 }

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived.TicksPerSeason = c.Seasons.TicksPerDay * c.Seasons.DaysPerSeason
	c.Derived.TicksPerYear = c.Derived.TicksPerSeason * uint64(len(c.Seasons.Table))
	c.Derived.Underground = c.World.Depth - c.World.SurfaceRows
}

// LogLevel maps the configured level name to a slog level.
func (c *Config) LogLevel() slog.Level {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
