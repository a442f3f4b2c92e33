// Package persistence provides SQLite-based world state storage.
package persistence

import (
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/antnest/internal/colony"
	"github.com/talgya/antnest/internal/config"
	"github.com/talgya/antnest/internal/disaster"
	"github.com/talgya/antnest/internal/engine"
	"github.com/talgya/antnest/internal/soil"
)

// ErrNoWorld is returned by LoadWorldState when nothing has been saved.
var ErrNoWorld = errors.New("persistence: no saved world")

// DB wraps a SQLite connection for world state persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS cells (
		idx INTEGER PRIMARY KEY,
		kind INTEGER NOT NULL,
		moisture REAL NOT NULL,
		temperature REAL NOT NULL,
		nutrition REAL NOT NULL,
		food REAL NOT NULL,
		waste REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS ants (
		slot INTEGER PRIMARY KEY,
		gen INTEGER NOT NULL,
		alive INTEGER NOT NULL,
		pos_x INTEGER NOT NULL,
		pos_y INTEGER NOT NULL,
		age INTEGER NOT NULL,
		role INTEGER NOT NULL,
		state INTEGER NOT NULL,
		energy REAL NOT NULL,
		carrying INTEGER NOT NULL,
		load REAL NOT NULL,
		state_ticks INTEGER NOT NULL,
		dug INTEGER NOT NULL,
		submerged INTEGER NOT NULL,
		last_lay INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS arena_free (
		ord INTEGER PRIMARY KEY,
		slot INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS eggs (
		ord INTEGER PRIMARY KEY,
		id INTEGER NOT NULL,
		pos_x INTEGER NOT NULL,
		pos_y INTEGER NOT NULL,
		remaining INTEGER NOT NULL,
		laid_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS disasters (
		ord INTEGER PRIMARY KEY,
		id INTEGER NOT NULL,
		kind INTEGER NOT NULL,
		intensity REAL NOT NULL,
		remaining INTEGER NOT NULL,
		duration INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		tick INTEGER NOT NULL,
		time TEXT NOT NULL,
		description TEXT NOT NULL,
		category TEXT NOT NULL,
		meta_json TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (run_id, seq)
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_tick ON events(run_id, tick);
	`
	_, err := db.conn.Exec(schema)
	return err
}

type cellRow struct {
	Idx         int     `db:"idx"`
	Kind        int     `db:"kind"`
	Moisture    float32 `db:"moisture"`
	Temperature float32 `db:"temperature"`
	Nutrition   float32 `db:"nutrition"`
	Food        float32 `db:"food"`
	Waste       float32 `db:"waste"`
}

type antRow struct {
	Slot       int     `db:"slot"`
	Gen        uint32  `db:"gen"`
	Alive      bool    `db:"alive"`
	PosX       int     `db:"pos_x"`
	PosY       int     `db:"pos_y"`
	Age        int64   `db:"age"`
	Role       int     `db:"role"`
	State      int     `db:"state"`
	Energy     float32 `db:"energy"`
	Carrying   int     `db:"carrying"`
	Load       float32 `db:"load"`
	StateTicks uint32  `db:"state_ticks"`
	Dug        uint16  `db:"dug"`
	Submerged  uint16  `db:"submerged"`
	LastLay    int64   `db:"last_lay"`
}

type eggRow struct {
	Ord       int   `db:"ord"`
	ID        int64 `db:"id"`
	PosX      int   `db:"pos_x"`
	PosY      int   `db:"pos_y"`
	Remaining int64 `db:"remaining"`
	LaidAt    int64 `db:"laid_at"`
}

type disasterRow struct {
	Ord       int     `db:"ord"`
	ID        int64   `db:"id"`
	Kind      int     `db:"kind"`
	Intensity float32 `db:"intensity"`
	Remaining uint32  `db:"remaining"`
	Duration  uint32  `db:"duration"`
}

type eventRow struct {
	Seq         int64  `db:"seq"`
	Tick        int64  `db:"tick"`
	Time        string `db:"time"`
	Description string `db:"description"`
	Category    string `db:"category"`
	MetaJSON    string `db:"meta_json"`
}

func (r eventRow) event() engine.Event {
	e := engine.Event{
		Seq:         uint64(r.Seq),
		Tick:        uint64(r.Tick),
		Time:        r.Time,
		Description: r.Description,
		Category:    r.Category,
	}
	if r.MetaJSON != "" {
		if err := json.Unmarshal([]byte(r.MetaJSON), &e.Meta); err != nil {
			slog.Warn("dropping unreadable event meta", "seq", r.Seq, "error", err)
		}
	}
	return e
}

// SaveWorldState performs a full save of all world state. Grid, arena,
// eggs and disasters are replaced; events are appended to the run's log.
func (db *DB) SaveWorldState(sim *engine.Simulation) error {
	st, err := sim.Capture()
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	slog.Info("saving world state", "tick", st.Tick, "ants", len(st.Colony.Slots), "eggs", len(st.Colony.Eggs))

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := saveCells(tx, st.Cells); err != nil {
		return fmt.Errorf("save cells: %w", err)
	}
	if err := saveAnts(tx, st.Colony); err != nil {
		return fmt.Errorf("save ants: %w", err)
	}
	if err := saveEggs(tx, st.Colony.Eggs); err != nil {
		return fmt.Errorf("save eggs: %w", err)
	}
	if err := saveDisasters(tx, st.Disasters); err != nil {
		return fmt.Errorf("save disasters: %w", err)
	}
	if err := saveEvents(tx, st.RunID, st.Events); err != nil {
		return fmt.Errorf("save events: %w", err)
	}
	if err := saveMeta(tx, st); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("world state saved", "tick", st.Tick)
	return nil
}

func saveCells(tx *sqlx.Tx, cells []soil.Cell) error {
	if _, err := tx.Exec("DELETE FROM cells"); err != nil {
		return err
	}
	stmt, err := tx.Preparex(`INSERT INTO cells
		(idx, kind, moisture, temperature, nutrition, food, waste)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, c := range cells {
		if _, err := stmt.Exec(i, int(c.Kind), c.Moisture, c.Temperature, c.Nutrition, c.Food, c.Waste); err != nil {
			return fmt.Errorf("insert cell %d: %w", i, err)
		}
	}
	return nil
}

func saveAnts(tx *sqlx.Tx, st colony.PopulationState) error {
	if _, err := tx.Exec("DELETE FROM ants"); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM arena_free"); err != nil {
		return err
	}

	stmt, err := tx.Preparex(`INSERT INTO ants
		(slot, gen, alive, pos_x, pos_y, age, role, state, energy,
		 carrying, load, state_ticks, dug, submerged, last_lay)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, s := range st.Slots {
		a := s.Ant
		alive := 0
		if s.Alive {
			alive = 1
		}
		_, err := stmt.Exec(
			i, s.Gen, alive, a.Pos.X, a.Pos.Y, int64(a.Age),
			int(a.Role), int(a.State), a.Energy, int(a.Carrying), a.Load,
			a.StateTicks, a.Dug, a.Submerged, int64(a.LastLay),
		)
		if err != nil {
			return fmt.Errorf("insert ant slot %d: %w", i, err)
		}
	}

	for ord, slot := range st.Free {
		if _, err := tx.Exec("INSERT INTO arena_free (ord, slot) VALUES (?, ?)", ord, slot); err != nil {
			return err
		}
	}
	return nil
}

func saveEggs(tx *sqlx.Tx, eggs []colony.Egg) error {
	if _, err := tx.Exec("DELETE FROM eggs"); err != nil {
		return err
	}
	for ord, e := range eggs {
		_, err := tx.Exec(
			"INSERT INTO eggs (ord, id, pos_x, pos_y, remaining, laid_at) VALUES (?, ?, ?, ?, ?, ?)",
			ord, int64(e.ID), e.Pos.X, e.Pos.Y, int64(e.Remaining), int64(e.LaidAt),
		)
		if err != nil {
			return fmt.Errorf("insert egg %d: %w", e.ID, err)
		}
	}
	return nil
}

func saveDisasters(tx *sqlx.Tx, events []disaster.Event) error {
	if _, err := tx.Exec("DELETE FROM disasters"); err != nil {
		return err
	}
	for ord, e := range events {
		_, err := tx.Exec(
			"INSERT INTO disasters (ord, id, kind, intensity, remaining, duration) VALUES (?, ?, ?, ?, ?, ?)",
			ord, int64(e.ID), int(e.Kind), e.Intensity, e.Remaining, e.Duration,
		)
		if err != nil {
			return fmt.Errorf("insert disaster %d: %w", e.ID, err)
		}
	}
	return nil
}

func saveEvents(tx *sqlx.Tx, runID string, events []engine.Event) error {
	for _, e := range events {
		meta := ""
		if len(e.Meta) > 0 {
			b, err := json.Marshal(e.Meta)
			if err != nil {
				return fmt.Errorf("encode event %d meta: %w", e.Seq, err)
			}
			meta = string(b)
		}
		_, err := tx.Exec(`INSERT OR IGNORE INTO events
			(run_id, seq, tick, time, description, category, meta_json)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			runID, int64(e.Seq), int64(e.Tick), e.Time, e.Description, e.Category, meta,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func saveMeta(tx *sqlx.Tx, st *engine.State) error {
	clock, err := json.Marshal(st.Clock)
	if err != nil {
		return err
	}
	totals, err := json.Marshal(st.Colony.Totals)
	if err != nil {
		return err
	}
	nest, err := json.Marshal(st.Colony.Nest)
	if err != nil {
		return err
	}

	meta := [][2]string{
		{"tick", strconv.FormatUint(st.Tick, 10)},
		{"seed", strconv.FormatInt(st.Seed, 10)},
		{"run_id", st.RunID},
		{"rng", hex.EncodeToString(st.RNG)},
		{"clock", string(clock)},
		{"width", strconv.Itoa(st.Width)},
		{"depth", strconv.Itoa(st.Depth)},
		{"reserve", strconv.FormatFloat(float64(st.Colony.Reserve), 'g', -1, 32)},
		{"waste", strconv.FormatFloat(float64(st.Colony.Waste), 'g', -1, 32)},
		{"nest", string(nest)},
		{"totals", string(totals)},
		{"next_egg", strconv.FormatUint(st.Colony.NextEgg, 10)},
		{"next_disaster", strconv.FormatUint(st.NextDisaster, 10)},
	}
	for _, kv := range meta {
		if _, err := tx.Exec("INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)", kv[0], kv[1]); err != nil {
			return fmt.Errorf("meta %s: %w", kv[0], err)
		}
	}
	return nil
}

// HasWorldState reports whether a world has been saved.
func (db *DB) HasWorldState() bool {
	_, err := db.GetMeta("tick")
	return err == nil
}

// LoadWorldState rebuilds the saved simulation. cfg supplies the tunables;
// the grid shape comes from the save.
func (db *DB) LoadWorldState(cfg *config.Config) (*engine.Simulation, error) {
	st, err := db.loadState(cfg.Telemetry.EventBuffer)
	if err != nil {
		return nil, err
	}
	return engine.Restore(cfg, st)
}

func (db *DB) loadState(eventLimit int) (*engine.State, error) {
	meta, err := db.allMeta()
	if err != nil {
		return nil, err
	}
	if _, ok := meta["tick"]; !ok {
		return nil, ErrNoWorld
	}

	var st engine.State
	p := metaParser{m: meta}
	st.Tick = p.parseUint("tick")
	st.Seed = p.parseInt("seed")
	st.RunID = meta["run_id"]
	st.Width = int(p.parseInt("width"))
	st.Depth = int(p.parseInt("depth"))
	st.NextDisaster = p.parseUint("next_disaster")
	st.Colony.NextEgg = p.parseUint("next_egg")
	st.Colony.Reserve = p.parseFloat("reserve")
	st.Colony.Waste = p.parseFloat("waste")
	p.parseJSON("clock", &st.Clock)
	p.parseJSON("nest", &st.Colony.Nest)
	p.parseJSON("totals", &st.Colony.Totals)
	if p.err == nil {
		st.RNG, p.err = hex.DecodeString(meta["rng"])
	}
	if p.err != nil {
		return nil, fmt.Errorf("load meta: %w", p.err)
	}

	if st.Cells, err = db.loadCells(); err != nil {
		return nil, fmt.Errorf("load cells: %w", err)
	}
	if st.Colony.Slots, st.Colony.Free, err = db.loadArena(); err != nil {
		return nil, fmt.Errorf("load ants: %w", err)
	}
	if st.Colony.Eggs, err = db.loadEggs(); err != nil {
		return nil, fmt.Errorf("load eggs: %w", err)
	}
	if st.Disasters, err = db.loadDisasters(); err != nil {
		return nil, fmt.Errorf("load disasters: %w", err)
	}
	if st.Events, err = db.RecentEvents(st.RunID, eventLimit); err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	return &st, nil
}

func (db *DB) allMeta() (map[string]string, error) {
	var rows []struct {
		Key   string `db:"key"`
		Value string `db:"value"`
	}
	if err := db.conn.Select(&rows, "SELECT key, value FROM world_meta"); err != nil {
		return nil, err
	}
	m := make(map[string]string, len(rows))
	for _, r := range rows {
		m[r.Key] = r.Value
	}
	return m, nil
}

func (db *DB) loadCells() ([]soil.Cell, error) {
	var rows []cellRow
	if err := db.conn.Select(&rows, "SELECT * FROM cells ORDER BY idx"); err != nil {
		return nil, err
	}
	cells := make([]soil.Cell, len(rows))
	for i, r := range rows {
		if r.Idx != i {
			return nil, fmt.Errorf("cell index %d missing", i)
		}
		cells[i] = soil.Cell{
			Kind:        soil.Kind(r.Kind),
			Moisture:    r.Moisture,
			Temperature: r.Temperature,
			Nutrition:   r.Nutrition,
			Food:        r.Food,
			Waste:       r.Waste,
		}
	}
	return cells, nil
}

func (db *DB) loadArena() ([]colony.SlotState, []int, error) {
	var rows []antRow
	if err := db.conn.Select(&rows, "SELECT * FROM ants ORDER BY slot"); err != nil {
		return nil, nil, err
	}
	slots := make([]colony.SlotState, len(rows))
	for i, r := range rows {
		if r.Slot != i {
			return nil, nil, fmt.Errorf("ant slot %d missing", i)
		}
		slots[i] = colony.SlotState{
			Gen:   r.Gen,
			Alive: r.Alive,
			Ant: colony.Ant{
				Pos:        soil.Pos{X: r.PosX, Y: r.PosY},
				Age:        uint64(r.Age),
				Role:       colony.Role(r.Role),
				State:      colony.State(r.State),
				Energy:     r.Energy,
				Carrying:   colony.Resource(r.Carrying),
				Load:       r.Load,
				StateTicks: r.StateTicks,
				Dug:        r.Dug,
				Submerged:  r.Submerged,
				LastLay:    uint64(r.LastLay),
			},
		}
	}

	var free []int
	if err := db.conn.Select(&free, "SELECT slot FROM arena_free ORDER BY ord"); err != nil {
		return nil, nil, err
	}
	return slots, free, nil
}

func (db *DB) loadEggs() ([]colony.Egg, error) {
	var rows []eggRow
	if err := db.conn.Select(&rows, "SELECT * FROM eggs ORDER BY ord"); err != nil {
		return nil, err
	}
	eggs := make([]colony.Egg, len(rows))
	for i, r := range rows {
		eggs[i] = colony.Egg{
			ID:        uint64(r.ID),
			Pos:       soil.Pos{X: r.PosX, Y: r.PosY},
			Remaining: uint64(r.Remaining),
			LaidAt:    uint64(r.LaidAt),
		}
	}
	return eggs, nil
}

func (db *DB) loadDisasters() ([]disaster.Event, error) {
	var rows []disasterRow
	if err := db.conn.Select(&rows, "SELECT * FROM disasters ORDER BY ord"); err != nil {
		return nil, err
	}
	events := make([]disaster.Event, len(rows))
	for i, r := range rows {
		events[i] = disaster.Event{
			ID:        uint64(r.ID),
			Kind:      disaster.Kind(r.Kind),
			Intensity: r.Intensity,
			Remaining: r.Remaining,
			Duration:  r.Duration,
		}
	}
	return events, nil
}

// SaveMeta stores a key-value pair in world metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM world_meta WHERE key = ?", key)
	return value, err
}

// RecentEvents returns up to limit of the run's most recent events, oldest
// first. limit <= 0 returns them all.
func (db *DB) RecentEvents(runID string, limit int) ([]engine.Event, error) {
	if limit <= 0 {
		limit = -1
	}
	var rows []eventRow
	err := db.conn.Select(&rows,
		`SELECT seq, tick, time, description, category, meta_json FROM events
		 WHERE run_id = ? ORDER BY seq DESC LIMIT ?`,
		runID, limit,
	)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	slices.Reverse(rows)
	events := make([]engine.Event, len(rows))
	for i, r := range rows {
		events[i] = r.event()
	}
	return events, nil
}

// metaParser decodes world_meta values, keeping the first error.
type metaParser struct {
	m   map[string]string
	err error
}

func (p *metaParser) parseUint(key string) uint64 {
	if p.err != nil {
		return 0
	}
	v, err := strconv.ParseUint(p.m[key], 10, 64)
	if err != nil {
		p.err = fmt.Errorf("%s: %w", key, err)
	}
	return v
}

func (p *metaParser) parseInt(key string) int64 {
	if p.err != nil {
		return 0
	}
	v, err := strconv.ParseInt(p.m[key], 10, 64)
	if err != nil {
		p.err = fmt.Errorf("%s: %w", key, err)
	}
	return v
}

func (p *metaParser) parseFloat(key string) float32 {
	if p.err != nil {
		return 0
	}
	v, err := strconv.ParseFloat(p.m[key], 32)
	if err != nil {
		p.err = fmt.Errorf("%s: %w", key, err)
	}
	return float32(v)
}

func (p *metaParser) parseJSON(key string, dst any) {
	if p.err != nil {
		return
	}
	if err := json.Unmarshal([]byte(p.m[key]), dst); err != nil {
		p.err = fmt.Errorf("%s: %w", key, err)
	}
}
