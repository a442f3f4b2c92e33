// Command nestsim runs the ant colony simulation as a headless daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/talgya/antnest/internal/api"
	"github.com/talgya/antnest/internal/config"
	"github.com/talgya/antnest/internal/engine"
	"github.com/talgya/antnest/internal/persistence"
	"github.com/talgya/antnest/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (defaults are embedded)")
	seed := flag.Int64("seed", 0, "world seed override (0 = config value)")
	dbPath := flag.String("db", "", "SQLite path override")
	port := flag.Int("port", 0, "API port override")
	outputDir := flag.String("output", "", "telemetry output directory override")
	fresh := flag.Bool("new", false, "generate a new world even if one is saved")
	ticks := flag.Uint64("ticks", 0, "run this many ticks as fast as possible, save and exit")
	logJSON := flag.Bool("log-json", false, "log as JSON")
	logStats := flag.Bool("log-stats", true, "log each telemetry window")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *seed != 0 {
		cfg.World.Seed = *seed
	}
	if *dbPath != "" {
		cfg.Persistence.Path = *dbPath
	}
	if *port != 0 {
		cfg.API.Port = *port
	}
	if *outputDir != "" {
		cfg.Telemetry.OutputDir = *outputDir
	}
	cfg.Log.JSON = cfg.Log.JSON || *logJSON

	opts := &slog.HandlerOptions{Level: cfg.LogLevel()}
	var handler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if cfg.Log.JSON {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))

	// ── Database ──────────────────────────────────────────────────────
	if dir := filepath.Dir(cfg.Persistence.Path); dir != "" {
		os.MkdirAll(dir, 0755)
	}
	db, err := persistence.Open(cfg.Persistence.Path)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.Persistence.Path)

	// ── Load or Generate World ────────────────────────────────────────
	var sim *engine.Simulation
	if db.HasWorldState() && !*fresh {
		slog.Info("found saved world state, loading...")
		sim, err = db.LoadWorldState(cfg)
		if err != nil {
			slog.Error("failed to load world", "error", err)
			os.Exit(1)
		}
	} else {
		slog.Info("no saved state used, generating new world...")
		sim, err = engine.New(cfg)
		if err != nil {
			slog.Error("failed to generate world", "error", err)
			os.Exit(1)
		}
		if err := db.SaveWorldState(sim); err != nil {
			slog.Error("initial save failed", "error", err)
		}
	}

	// ── Telemetry ─────────────────────────────────────────────────────
	var out *telemetry.OutputManager
	if cfg.Telemetry.OutputDir != "" {
		out, err = telemetry.NewOutputManager(filepath.Join(cfg.Telemetry.OutputDir, sim.RunID()))
		if err != nil {
			slog.Error("failed to create telemetry output", "error", err)
			os.Exit(1)
		}
		defer out.Close()
		if err := out.WriteConfig(sim.Config()); err != nil {
			slog.Warn("failed to write config copy", "error", err)
		}
	}
	collector := telemetry.NewCollector(cfg.Telemetry.WindowTicks, 240)
	telemetry.Attach(sim, collector, out, *logStats)

	// ── Autosave ──────────────────────────────────────────────────────
	// OnDay runs under the loop lock, so saves happen on their own goroutine.
	saves := make(chan uint64, 1)
	if cfg.Persistence.AutosaveDays > 0 {
		sim.OnDay = func(tick uint64) {
			if sim.Calendar.Day(tick)%cfg.Persistence.AutosaveDays != 0 {
				return
			}
			select {
			case saves <- tick:
			default:
			}
		}
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for tick := range saves {
			if err := db.SaveWorldState(sim); err != nil {
				slog.Error("autosave failed", "tick", tick, "error", err)
			}
		}
	}()

	v := sim.Snapshot()
	fmt.Printf("\nantnest is alive: %s ants and %s eggs in a %dx%d nest (run %s).\n",
		humanize.Comma(int64(v.Live())), humanize.Comma(int64(len(v.Eggs))), v.Width, v.Depth, v.RunID)
	if v.Tick > 0 {
		fmt.Printf("Resuming from tick %s (%s)\n", humanize.Comma(int64(v.Tick)), v.Time)
	}

	if *ticks > 0 {
		runHeadless(sim, *ticks)
	} else {
		runDaemon(sim, cfg, db, collector)
	}

	close(saves)
	<-done

	slog.Info("final save...")
	if err := db.SaveWorldState(sim); err != nil {
		slog.Error("final save failed", "error", err)
	}
	v = sim.Snapshot()
	fmt.Printf("Simulation stopped at %s with %s ants. World state saved.\n", v.Time, humanize.Comma(int64(v.Live())))
}

// runHeadless steps n ticks back to back, ignoring the clock.
func runHeadless(sim *engine.Simulation, n uint64) {
	start := time.Now()
	for i := uint64(0); i < n; i++ {
		sim.Step()
	}
	elapsed := time.Since(start)
	slog.Info("headless run complete",
		"ticks", humanize.Comma(int64(n)),
		"elapsed", elapsed.Round(time.Millisecond),
		"ticks_per_sec", humanize.CommafWithDigits(float64(n)/max(elapsed.Seconds(), 1e-9), 0),
	)
}

// runDaemon serves the API and runs the real-time loop until a signal.
func runDaemon(sim *engine.Simulation, cfg *config.Config, db *persistence.DB, stats *telemetry.Collector) {
	adminKey := os.Getenv("NESTSIM_ADMIN_KEY")
	if adminKey == "" {
		slog.Warn("NESTSIM_ADMIN_KEY not set, admin POST endpoints will be disabled")
	}
	apiServer := &api.Server{
		Sim:              sim,
		Stats:            stats,
		Store:            db,
		Port:             cfg.API.Port,
		AdminKey:         adminKey,
		DisasterPerMin:   cfg.API.DisasterPerMin,
		MaxStreamClients: cfg.API.MaxStreamClients,
	}
	httpServer := apiServer.Start()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("API: http://localhost:%d/api/v1/status\n", cfg.API.Port)
	fmt.Println("Starting simulation... (Ctrl+C to stop)")
	sim.Run(ctx)
	slog.Info("received signal, shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		slog.Warn("HTTP shutdown", "error", err)
	}
}
