// Package telemetry aggregates per-tick colony reports into fixed windows
// of statistics and writes them to slog and CSV.
package telemetry

import (
	"log/slog"
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// WindowStats holds aggregated statistics for a window of ticks.
type WindowStats struct {
	WindowStartTick uint64 `csv:"-"`
	WindowEndTick   uint64 `csv:"window_end"`
	SimTime         string `csv:"sim_time"`
	Season          string `csv:"season"`

	// Population at window end
	Live    int `csv:"live"`
	Queens  int `csv:"queens"`
	Juniors int `csv:"juniors"`
	Seniors int `csv:"seniors"`
	Larvae  int `csv:"larvae"`
	Eggs    int `csv:"eggs"`

	Foraging int `csv:"foraging"`
	Digging  int `csv:"digging"`
	Tending  int `csv:"tending"`
	Dumping  int `csv:"dumping"`
	Resting  int `csv:"resting"`
	Dormant  int `csv:"dormant"`

	// Events during window
	Hatched          int `csv:"hatched"`
	EggsLaid         int `csv:"eggs_laid"`
	EggsLost         int `csv:"eggs_lost"`
	Promotions       int `csv:"promotions"`
	DeathsStarvation int `csv:"deaths_starvation"`
	DeathsOldAge     int `csv:"deaths_old_age"`
	DeathsDrowned    int `csv:"deaths_drowned"`
	DeathsCrushed    int `csv:"deaths_crushed"`

	// Work during window
	Deliveries    int     `csv:"deliveries"`
	FoodDelivered float64 `csv:"food_delivered"`
	Dug           int     `csv:"dug"`
	WasteDumped   float64 `csv:"waste_dumped"`
	Eroded        int     `csv:"eroded"`
	FoodRegrown   float64 `csv:"food_regrown"`
	FoodEaten     float64 `csv:"food_eaten"` // by invasive competitors

	// Colony stores (sampled at window end)
	Reserve float64 `csv:"reserve"`
	Waste   float64 `csv:"waste"`

	// Worker energy as a fraction of max (sampled at window end)
	EnergyMean float64 `csv:"energy_mean"`
	EnergyStd  float64 `csv:"energy_std"`
	EnergyP10  float64 `csv:"energy_p10"`
	EnergyP50  float64 `csv:"energy_p50"`
	EnergyP90  float64 `csv:"energy_p90"`

	// Soil (sampled at window end, underground cells only)
	MoistureMean    float64 `csv:"moisture_mean"`
	MoistureStd     float64 `csv:"moisture_std"`
	TemperatureMean float64 `csv:"temperature_mean"`
	NutritionMean   float64 `csv:"nutrition_mean"`
	FoodStanding    float64 `csv:"food_standing"`
	Tunnels         int     `csv:"tunnels"`
	Dumps           int     `csv:"dumps"`
	Deposits        int     `csv:"deposits"`

	ActiveDisasters int `csv:"active_disasters"`
}

// Summary is a mean, spread and quantiles of one sample.
type Summary struct {
	Mean, Std     float64
	P10, P50, P90 float64
}

// Summarize computes a Summary. Values are sorted in place.
// An empty sample summarizes to zeros.
func Summarize(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}
	slices.Sort(values)
	s := Summary{
		P10: stat.Quantile(0.10, stat.Empirical, values, nil),
		P50: stat.Quantile(0.50, stat.Empirical, values, nil),
		P90: stat.Quantile(0.90, stat.Empirical, values, nil),
	}
	if len(values) < 2 {
		s.Mean = values[0]
		return s
	}
	s.Mean, s.Std = stat.MeanStdDev(values, nil)
	if math.IsNaN(s.Std) {
		s.Std = 0
	}
	return s
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("window_start", s.WindowStartTick),
		slog.Uint64("window_end", s.WindowEndTick),
		slog.String("sim_time", s.SimTime),
		slog.Int("live", s.Live),
		slog.Int("juniors", s.Juniors),
		slog.Int("seniors", s.Seniors),
		slog.Int("larvae", s.Larvae),
		slog.Int("eggs", s.Eggs),
		slog.Int("hatched", s.Hatched),
		slog.Int("deaths", s.Deaths()),
		slog.Int("deliveries", s.Deliveries),
		slog.Int("dug", s.Dug),
		slog.Float64("reserve", s.Reserve),
		slog.Float64("energy_mean", s.EnergyMean),
		slog.Float64("energy_p10", s.EnergyP10),
		slog.Float64("moisture_mean", s.MoistureMean),
		slog.Int("tunnels", s.Tunnels),
		slog.Int("active_disasters", s.ActiveDisasters),
	)
}

// Deaths returns the total deaths in the window.
func (s WindowStats) Deaths() int {
	return s.DeathsStarvation + s.DeathsOldAge + s.DeathsDrowned + s.DeathsCrushed
}

// LogStats logs the window stats using slog.
func (s WindowStats) LogStats() {
	slog.Info("stats", "window", s)
}
