package soil

import (
	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/antnest/internal/config"
	"github.com/talgya/antnest/internal/entropy"
)

// NestCenter returns the chamber center for a world layout.
func NestCenter(w config.WorldConfig) Pos {
	x := w.NestX
	if x <= 0 || x >= w.Width {
		x = w.Width / 2
	}
	return Pos{X: x, Y: w.SurfaceRows + w.NestDepth}
}

// Generate creates a world: Air rows on top, noise-varied soil below that
// gets wetter and warmer with depth, a vertical shaft down to the nest
// chamber, and food deposits on the surface and buried underground.
func Generate(cfg config.SoilConfig, w config.WorldConfig, ambient float32, seed int64) *Grid {
	g := New(w.Width, w.Depth, cfg)

	// Three noise generators for independent layers.
	moistNoise := opensimplex.NewNormalized(seed)
	nutNoise := opensimplex.NewNormalized(seed + 1)
	tempNoise := opensimplex.NewNormalized(seed + 2)

	octaves := max(cfg.NoiseOctaves, 1)
	under := max(w.Depth-w.SurfaceRows-1, 1)

	for y := 0; y < w.Depth; y++ {
		for x := 0; x < w.Width; x++ {
			p := Pos{x, y}
			if y < w.SurfaceRows {
				g.curr[g.Index(p)] = g.clampCell(Cell{
					Kind:        Air,
					Moisture:    cfg.AirHumidity,
					Temperature: ambient,
				})
				continue
			}

			fx, fy := float64(x), float64(y)
			depthFrac := float32(y-w.SurfaceRows) / float32(under)
			m := float32(octaveNoise(moistNoise, fx, fy, octaves, cfg.NoiseScale, 0.5))
			n := float32(octaveNoise(nutNoise, fx, fy, octaves, cfg.NoiseScale, 0.5))
			t := float32(octaveNoise(tempNoise, fx, fy, octaves, cfg.NoiseScale, 0.5))

			g.curr[g.Index(p)] = g.clampCell(Cell{
				Kind:        Soil,
				Moisture:    0.15 + 0.45*depthFrac + 0.2*(m-0.5),
				Nutrition:   cfg.NutritionBaseline + 0.4*(n-0.5),
				Temperature: ambient + cfg.DepthWarming*float32(y-w.SurfaceRows) + 2*(t-0.5),
			})
		}
	}

	carveNest(g, w)

	rng := entropy.New(uint64(seed + 400))
	placeSurfaceFood(g, w, rng)
	placeBuriedFood(g, w, rng)
	return g
}

// carveNest digs the entrance shaft and the chamber around NestCenter.
func carveNest(g *Grid, w config.WorldConfig) {
	center := NestCenter(w)
	for y := w.SurfaceRows; y <= center.Y; y++ {
		g.curr[g.Index(Pos{center.X, y})].Kind = Tunnel
	}
	r := w.ChamberRadius
	for dy := -r; dy <= r; dy++ {
		for dx := -2 * r; dx <= 2*r; dx++ {
			p := Pos{center.X + dx, center.Y + dy}
			if !g.InBounds(p) || p.Y < w.SurfaceRows {
				continue
			}
			// Flattened ellipse, twice as wide as tall.
			if dx*dx+4*dy*dy <= 4*r*r {
				g.curr[g.Index(p)].Kind = Tunnel
			}
		}
	}
}

func placeSurfaceFood(g *Grid, w config.WorldConfig, rng *entropy.Source) {
	if w.SurfaceRows == 0 {
		return
	}
	y := w.SurfaceRows - 1
	shaft := NestCenter(w).X
	for placed, tries := 0, 0; placed < w.SurfaceFood && tries < w.SurfaceFood*20; tries++ {
		x := rng.IntN(w.Width)
		if abs(x-shaft) < 3 {
			continue
		}
		c := &g.curr[g.Index(Pos{x, y})]
		if c.Kind != Air {
			continue
		}
		c.Kind = FoodDeposit
		c.Food = 0.5 + 0.5*rng.Float32()
		placed++
	}
}

func placeBuriedFood(g *Grid, w config.WorldConfig, rng *entropy.Source) {
	under := w.Depth - w.SurfaceRows
	if under <= 0 {
		return
	}
	nest := NestCenter(w)
	keepOut := 2*w.ChamberRadius + 2
	for placed, tries := 0, 0; placed < w.BuriedFood && tries < w.BuriedFood*20; tries++ {
		p := Pos{rng.IntN(w.Width), w.SurfaceRows + rng.IntN(under)}
		if Dist(p, nest) <= keepOut {
			continue
		}
		c := &g.curr[g.Index(p)]
		if c.Kind != Soil {
			continue
		}
		c.Kind = FoodDeposit
		c.Food = 1
		placed++
	}
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}
