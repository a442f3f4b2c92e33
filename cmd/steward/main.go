// Command steward runs the autonomous disaster director against a running
// nestsim. It observes the colony, decides whether to trigger a disaster
// under its cooldown policy, and acts via the admin disaster API.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/talgya/antnest/internal/config"
	"github.com/talgya/antnest/internal/entropy"
	"github.com/talgya/antnest/internal/steward"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (defaults are embedded)")
	once := flag.Bool("once", false, "run a single cycle and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel(),
	}))
	slog.SetDefault(logger)

	// Configuration from environment.
	apiURL := envOrDefault("NESTSIM_API_URL", fmt.Sprintf("http://localhost:%d", cfg.API.Port))
	adminKey := os.Getenv("NESTSIM_ADMIN_KEY")
	if adminKey == "" {
		slog.Error("NESTSIM_ADMIN_KEY is required")
		os.Exit(1)
	}

	interval := time.Duration(max(cfg.Steward.IntervalSeconds, 1)) * time.Second
	policy := steward.NewPolicy(cfg)
	memPath := cfg.Steward.MemoryFile

	slog.Info("steward starting",
		"api_url", apiURL,
		"interval", interval,
		"trigger_chance", policy.TriggerChance,
		"max_concurrent", policy.MaxConcurrent,
	)

	observer := steward.NewObserver(apiURL)
	actor := steward.NewActor(apiURL, adminKey)
	mem := steward.LoadMemory(memPath)
	rng := entropy.New(uint64(entropy.CryptoSeed()))

	slog.Info("waiting for nestsim API...")
	if !waitForAPI(apiURL, 5*time.Minute) {
		slog.Error("nestsim API did not become ready within 5 minutes")
		os.Exit(1)
	}

	runCycle(observer, actor, policy, mem, memPath, rng)
	if *once {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			runCycle(observer, actor, policy, mem, memPath, rng)
		case sig := <-sigCh:
			slog.Info("received signal, shutting down", "signal", sig)
			fmt.Println("Steward stopped.")
			return
		}
	}
}

// runCycle executes one observe → decide → act cycle.
func runCycle(observer *steward.Observer, actor *steward.Actor, policy steward.Policy, mem *steward.Memory, memPath string, rng *entropy.Source) {
	obs, err := observer.Observe()
	if err != nil {
		slog.Error("observation failed", "error", err)
		return
	}
	slog.Info("observation complete",
		"tick", obs.Status.Tick,
		"sim_time", obs.Status.SimTime,
		"population", obs.Status.Population,
		"active_disasters", len(obs.Status.Disasters),
	)

	decision := steward.Decide(policy, obs, mem, rng)
	slog.Info("decision made", "action", decision.Action, "level", decision.Level, "rationale", decision.Rationale)

	if decision.Disaster != nil {
		result, err := actor.Act(decision)
		if err != nil {
			slog.Error("disaster trigger failed", "error", err)
			return
		}
		slog.Info("disaster triggered",
			"kind", result.Kind,
			"intensity", fmt.Sprintf("%.2f", result.Intensity),
			"duration_ticks", result.DurationTicks,
		)
	}

	mem.RecordDecision(obs, decision)
	if err := mem.Save(memPath); err != nil {
		slog.Error("failed to write steward memory", "error", err)
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// waitForAPI polls the status endpoint with exponential backoff until it
// responds or the timeout passes.
func waitForAPI(apiURL string, timeout time.Duration) bool {
	backoff := 2 * time.Second
	maxBackoff := 30 * time.Second
	deadline := time.Now().Add(timeout)

	for {
		resp, err := http.Get(apiURL + "/api/v1/status")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				slog.Info("nestsim API is ready")
				return true
			}
		}
		if time.Now().After(deadline) {
			return false
		}
		slog.Info("nestsim not ready, retrying...", "backoff", backoff)
		time.Sleep(backoff)
		backoff = min(backoff*2, maxBackoff)
	}
}
