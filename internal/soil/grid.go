package soil

import (
	"errors"
	"fmt"

	"github.com/talgya/antnest/internal/config"
)

var (
	// ErrOutOfBounds is returned for positions outside the grid extents.
	// Inside the simulation it always indicates a targeting bug.
	ErrOutOfBounds = errors.New("position out of bounds")
	// ErrInvalidChange is returned when a local change is not permitted
	// for the cell's kind.
	ErrInvalidChange = errors.New("invalid local change")
)

// Grid is a fixed-size width x depth array of cells. The shape never
// changes after creation. It is owned by the simulation loop and is not
// safe for concurrent mutation.
type Grid struct {
	width, depth int
	cfg          config.SoilConfig

	curr []Cell
	next []Cell // scratch for AdvanceTick, swapped with curr
}

// New creates a grid filled with uniform Soil at the configured baseline.
func New(width, depth int, cfg config.SoilConfig) *Grid {
	g := &Grid{
		width: width,
		depth: depth,
		cfg:   cfg,
		curr:  make([]Cell, width*depth),
		next:  make([]Cell, width*depth),
	}
	for i := range g.curr {
		g.curr[i] = Cell{Kind: Soil, Nutrition: cfg.NutritionBaseline}
	}
	return g
}

// Width returns the number of columns.
func (g *Grid) Width() int { return g.width }

// Depth returns the number of rows.
func (g *Grid) Depth() int { return g.depth }

// Len returns the number of cells.
func (g *Grid) Len() int { return len(g.curr) }

// InBounds reports whether p lies inside the grid.
func (g *Grid) InBounds(p Pos) bool {
	return p.X >= 0 && p.X < g.width && p.Y >= 0 && p.Y < g.depth
}

// Index returns the flat index of p. The caller must check bounds.
func (g *Grid) Index(p Pos) int { return p.Y*g.width + p.X }

// PosOf returns the position of a flat index.
func (g *Grid) PosOf(i int) Pos { return Pos{X: i % g.width, Y: i / g.width} }

// Sample returns the cell at p.
func (g *Grid) Sample(p Pos) (Cell, error) {
	if !g.InBounds(p) {
		return Cell{}, fmt.Errorf("sample %v in %dx%d grid: %w", p, g.width, g.depth, ErrOutOfBounds)
	}
	return g.curr[g.Index(p)], nil
}

// At returns the cell at p, or a zero Soil cell when p is out of bounds.
// Used by hot paths that have already filtered positions.
func (g *Grid) At(p Pos) Cell {
	if !g.InBounds(p) {
		return Cell{Kind: Soil}
	}
	return g.curr[g.Index(p)]
}

// Set overwrites a cell. Values are clamped. Used for world seeding and
// restoring saved state, not by the running simulation.
func (g *Grid) Set(p Pos, c Cell) error {
	if !g.InBounds(p) {
		return fmt.Errorf("set %v: %w", p, ErrOutOfBounds)
	}
	g.curr[g.Index(p)] = g.clampCell(c)
	return nil
}

// Cells returns a copy of every cell in row-major order.
func (g *Grid) Cells() []Cell {
	out := make([]Cell, len(g.curr))
	copy(out, g.curr)
	return out
}

// CopyCells copies the cells into dst, growing it if needed, and returns it.
func (g *Grid) CopyCells(dst []Cell) []Cell {
	if cap(dst) < len(g.curr) {
		dst = make([]Cell, len(g.curr))
	}
	dst = dst[:len(g.curr)]
	copy(dst, g.curr)
	return dst
}

// Load replaces every cell from a row-major slice of the same size.
func (g *Grid) Load(cells []Cell) error {
	if len(cells) != len(g.curr) {
		return fmt.Errorf("load %d cells into %dx%d grid: %w", len(cells), g.width, g.depth, ErrOutOfBounds)
	}
	for i, c := range cells {
		g.curr[i] = g.clampCell(c)
	}
	return nil
}

// Traversable reports whether an ant may stand at p.
func (g *Grid) Traversable(p Pos) bool {
	return g.InBounds(p) && g.curr[g.Index(p)].Kind.Traversable()
}

// Flooded reports whether p is a tunnel saturated past the flood threshold.
func (g *Grid) Flooded(p Pos) bool {
	if !g.InBounds(p) {
		return false
	}
	c := g.curr[g.Index(p)]
	return c.Kind == Tunnel && c.Moisture >= g.cfg.FloodThreshold
}

// Config returns the grid's soil constants.
func (g *Grid) Config() config.SoilConfig { return g.cfg }

// Change is a localized edit requested by an ant or a disaster.
// Deltas are added, then the cell re-clamps. Convert is applied first.
type Change struct {
	Moisture  float32
	Nutrition float32
	Food      float32 // FoodDeposit only
	Waste     float32 // WasteDump only; must not be negative
	Convert   bool
	Kind      Kind // target kind when Convert is set
}

// Dig converts Soil to Tunnel.
func Dig() Change { return Change{Convert: true, Kind: Tunnel} }

// TakeFood removes up to amount food from a deposit.
func TakeFood(amount float32) Change { return Change{Food: -amount} }

// DepositWaste adds waste to a dump.
func DepositWaste(amount float32) Change { return Change{Waste: amount} }

// NewDump converts Soil into a WasteDump holding amount waste.
func NewDump(amount float32) Change { return Change{Convert: true, Kind: WasteDump, Waste: amount} }

// conversions lists the kind changes ants and disasters may request.
// Tunnel reverts to Soil only through erosion inside AdvanceTick.
var conversions = map[[2]Kind]bool{
	{Soil, Tunnel}:      true,
	{Soil, WasteDump}:   true,
	{Soil, FoodDeposit}: true,
	{Air, FoodDeposit}:  true,
}

// ApplyLocalChange edits the cell at p and returns its new value.
func (g *Grid) ApplyLocalChange(p Pos, ch Change) (Cell, error) {
	if !g.InBounds(p) {
		return Cell{}, fmt.Errorf("change %v: %w", p, ErrOutOfBounds)
	}
	i := g.Index(p)
	c := g.curr[i]

	if ch.Convert && ch.Kind != c.Kind {
		if !conversions[[2]Kind{c.Kind, ch.Kind}] {
			return c, fmt.Errorf("convert %v %s to %s: %w", p, c.Kind, ch.Kind, ErrInvalidChange)
		}
		c.Kind = ch.Kind
	}
	if ch.Food != 0 && c.Kind != FoodDeposit {
		return g.curr[i], fmt.Errorf("food change on %s at %v: %w", c.Kind, p, ErrInvalidChange)
	}
	if ch.Waste != 0 && (c.Kind != WasteDump || ch.Waste < 0) {
		return g.curr[i], fmt.Errorf("waste change %v on %s at %v: %w", ch.Waste, c.Kind, p, ErrInvalidChange)
	}

	c.Moisture += ch.Moisture
	c.Nutrition += ch.Nutrition
	c.Food += ch.Food
	c.Waste += ch.Waste
	c = g.clampCell(c)
	g.curr[i] = c
	return c, nil
}

func (g *Grid) clampCell(c Cell) Cell {
	c.Moisture = clamp01(c.Moisture)
	c.Nutrition = clamp01(c.Nutrition)
	c.Temperature = clamp(c.Temperature, g.cfg.MinTemperature, g.cfg.MaxTemperature)
	c.Food = clamp01(c.Food)
	c.Waste = clamp(c.Waste, 0, g.cfg.WasteCap)
	if c.Kind != FoodDeposit {
		c.Food = 0
	}
	if c.Kind != WasteDump {
		c.Waste = 0
	}
	return c
}

// CountKind returns how many cells have kind k.
func (g *Grid) CountKind(k Kind) int {
	n := 0
	for _, c := range g.curr {
		if c.Kind == k {
			n++
		}
	}
	return n
}
