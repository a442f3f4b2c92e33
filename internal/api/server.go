// Package api provides the HTTP API for observing and steering a running
// simulation. GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/talgya/antnest/internal/colony"
	"github.com/talgya/antnest/internal/disaster"
	"github.com/talgya/antnest/internal/engine"
	"github.com/talgya/antnest/internal/soil"
	"github.com/talgya/antnest/internal/telemetry"
)

// Saver persists the full simulation state.
type Saver interface {
	SaveWorldState(sim *engine.Simulation) error
}

// Server serves the simulation over HTTP.
type Server struct {
	Sim      *engine.Simulation
	Stats    *telemetry.Collector // nil = no windowed stats
	Store    Saver                // nil = save disabled
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.

	DisasterPerMin   int // disaster triggers per client per minute
	MaxStreamClients int

	// Active SSE connection count (atomic).
	streamConns int32
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	disasterLimiter := NewRateLimiter(s.DisasterPerMin, time.Minute)

	mux := http.NewServeMux()

	// Public endpoints.
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/snapshot", s.handleSnapshot)
	mux.HandleFunc("/api/v1/ants", s.handleAnts)
	mux.HandleFunc("/api/v1/cell/", s.handleCell)
	mux.HandleFunc("/api/v1/events", s.handleEvents)
	mux.HandleFunc("/api/v1/stats", s.handleStats)
	mux.HandleFunc("/api/v1/stats/history", s.handleStatsHistory)
	mux.HandleFunc("/api/v1/stream", s.handleStream)

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/speed", s.adminOnly(s.handleSpeed))
	mux.HandleFunc("/api/v1/pause", s.adminOnly(postOnly(s.handlePause)))
	mux.HandleFunc("/api/v1/resume", s.adminOnly(postOnly(s.handleResume)))
	mux.HandleFunc("/api/v1/disaster", s.adminOnly(postOnly(RateLimitMiddleware(disasterLimiter, s.handleDisaster))))
	mux.HandleFunc("/api/v1/save", s.adminOnly(postOnly(s.handleSave)))

	return corsMiddleware(mux)
}

// Start begins serving the HTTP API in a goroutine and returns the server
// so the caller can shut it down.
func (s *Server) Start() *http.Server {
	addr := fmt.Sprintf(":%d", s.Port)
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
	return srv
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS env var to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth on POST requests.
// GET requests pass through (for endpoints that support both GET and POST).
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no NESTSIM_ADMIN_KEY set)", http.StatusForbidden)
				return
			}
			if !s.checkBearerToken(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

func postOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	v := s.Sim.Snapshot()
	_, queen := s.queen(v)
	cal := s.Sim.Calendar

	status := map[string]any{
		"name":       "antnest",
		"run_id":     v.RunID,
		"seed":       s.Sim.Seed(),
		"tick":       v.Tick,
		"generation": v.Generation,
		"sim_time":   v.Time,
		"season":     v.Season,
		"year":       cal.Year(v.Tick),
		"scale":      v.Scale,
		"paused":     v.Paused,
		"population": v.Live(),
		"eggs":       len(v.Eggs),
		"queen":      queen,
		"reserve":    v.Reserve,
		"waste":      v.Waste,
		"disasters":  v.Disasters,
		"width":      v.Width,
		"depth":      v.Depth,
	}
	writeJSON(w, status)
}

func (s *Server) queen(v *engine.View) (colony.Ant, bool) {
	for _, a := range v.Ants {
		if a.Role == colony.Queen {
			return a, true
		}
	}
	return colony.Ant{}, false
}

// handleSnapshot returns the latest view. ?cells=false drops the grid.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	v := s.Sim.Snapshot()
	if r.URL.Query().Get("cells") == "false" {
		trimmed := *v
		trimmed.Cells = nil
		writeJSON(w, &trimmed)
		return
	}
	writeJSON(w, v)
}

func (s *Server) handleAnts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var role colony.Role
	var state colony.State
	filterRole, filterState := q.Get("role") != "", q.Get("state") != ""
	if filterRole {
		if err := role.UnmarshalText([]byte(q.Get("role"))); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	if filterState {
		if err := state.UnmarshalText([]byte(q.Get("state"))); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	limit := 0
	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}

	v := s.Sim.Snapshot()
	out := make([]colony.Ant, 0, len(v.Ants))
	for _, a := range v.Ants {
		if filterRole && a.Role != role {
			continue
		}
		if filterState && a.State != state {
			continue
		}
		out = append(out, a)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	writeJSON(w, map[string]any{
		"tick":  v.Tick,
		"count": len(out),
		"ants":  out,
	})
}

// handleCell serves GET /api/v1/cell/:x/:y with the ant standing there.
func (s *Server) handleCell(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	// api/v1/cell/:x/:y → parts[3]=x [4]=y
	if len(parts) != 5 {
		http.Error(w, "usage: /api/v1/cell/:x/:y", http.StatusBadRequest)
		return
	}
	x, err1 := strconv.Atoi(parts[3])
	y, err2 := strconv.Atoi(parts[4])
	if err1 != nil || err2 != nil {
		http.Error(w, "invalid coordinates", http.StatusBadRequest)
		return
	}

	v := s.Sim.Snapshot()
	cell, err := v.Cell(x, y)
	if errors.Is(err, soil.ErrOutOfBounds) {
		http.Error(w, "cell out of bounds", http.StatusNotFound)
		return
	}

	resp := map[string]any{
		"tick":    v.Tick,
		"pos":     soil.Pos{X: x, Y: y},
		"cell":    cell,
		"kind":    cell.Kind.String(),
		"flooded": cell.Kind == soil.Tunnel && cell.Moisture >= s.Sim.Config().Soil.FloodThreshold,
	}
	at := soil.Pos{X: x, Y: y}
	for _, a := range v.Ants {
		if a.Pos == at {
			resp["ant"] = a
			break
		}
	}
	writeJSON(w, resp)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	events := s.Sim.Events(0)

	// Optional category filter.
	if category := r.URL.Query().Get("category"); category != "" {
		var filtered []engine.Event
		for _, e := range events {
			if e.Category == category {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}

	start := 0
	if len(events) > limit {
		start = len(events) - limit
	}
	writeJSON(w, events[start:])
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	v := s.Sim.Snapshot()

	var energy []float64
	for _, a := range v.Ants {
		if a.Role.Worker() {
			energy = append(energy, float64(a.Energy))
		}
	}
	e := telemetry.Summarize(energy)

	resp := map[string]any{
		"tick":   v.Tick,
		"counts": v.Counts,
		"totals": v.Totals,
		"energy": map[string]float64{
			"mean": round2(e.Mean),
			"std":  round2(e.Std),
			"p10":  round2(e.P10),
			"p50":  round2(e.P50),
			"p90":  round2(e.P90),
		},
		"reserve": v.Reserve,
		"waste":   v.Waste,
	}
	if s.Stats != nil {
		if latest, ok := s.Stats.Latest(); ok {
			resp["window"] = latest
		}
	}
	writeJSON(w, resp)
}

func (s *Server) handleStatsHistory(w http.ResponseWriter, r *http.Request) {
	if s.Stats == nil {
		writeJSON(w, []telemetry.WindowStats{})
		return
	}
	n := 0
	if l := r.URL.Query().Get("n"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 {
			n = v
		}
	}
	writeJSON(w, s.Stats.History(n))
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var req struct {
			Scale *int `json:"scale"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Scale == nil {
			http.Error(w, "invalid json: want {\"scale\": n}", http.StatusBadRequest)
			return
		}
		if err := s.Sim.SetTimeScale(*req.Scale); err != nil {
			slog.Warn("speed change rejected", "scale", *req.Scale, "error", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	} else if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, map[string]any{
		"scale":   s.Sim.Clock.Scale(),
		"paused":  s.Sim.Clock.Paused(),
		"presets": engine.SpeedPresets,
	})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.Sim.Pause()
	writeJSON(w, map[string]any{"paused": true, "scale": s.Sim.Clock.Scale()})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.Sim.Resume()
	writeJSON(w, map[string]any{"paused": s.Sim.Clock.Paused(), "scale": s.Sim.Clock.Scale()})
}

// DisasterRequest is the body of POST /api/v1/disaster. Duration may be
// given in ticks or in real seconds at scale 1.
type DisasterRequest struct {
	Kind            string  `json:"kind"`
	Intensity       float32 `json:"intensity"`
	DurationTicks   uint32  `json:"duration_ticks,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
}

// handleDisaster queues a disaster for the next tick. The API accepts
// intensities in (0, 1] only; the engine itself takes any positive value
// and saturates the composed effect.
func (s *Server) handleDisaster(w http.ResponseWriter, r *http.Request) {
	var req DisasterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	kind, ok := disaster.ParseKind(req.Kind)
	if !ok {
		http.Error(w, fmt.Sprintf("unknown disaster kind %q", req.Kind), http.StatusBadRequest)
		return
	}
	if req.Intensity <= 0 || req.Intensity > 1 {
		http.Error(w, "intensity must be in (0, 1]", http.StatusBadRequest)
		return
	}
	ticks := req.DurationTicks
	if ticks == 0 && req.DurationSeconds > 0 {
		tps := float64(s.Sim.Config().Clock.TicksPerSecond)
		ticks = uint32(min(math.Ceil(req.DurationSeconds*tps), math.MaxUint32))
	}
	if ticks == 0 {
		http.Error(w, "duration required", http.StatusBadRequest)
		return
	}

	s.Sim.TriggerDisaster(kind, req.Intensity, ticks)
	slog.Info("disaster queued via API", "kind", kind, "intensity", req.Intensity, "duration", ticks)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"queued":         true,
		"kind":           kind.String(),
		"intensity":      req.Intensity,
		"duration_ticks": ticks,
	})
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	if s.Store == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}
	if err := s.Store.SaveWorldState(s.Sim); err != nil {
		slog.Error("save failed", "error", err)
		http.Error(w, "save failed", http.StatusInternalServerError)
		return
	}
	tick := s.Sim.Tick()
	s.Sim.Emit(engine.Event{Category: "save", Description: "world saved on request"})
	writeJSON(w, map[string]any{
		"tick":    tick,
		"message": "world saved",
	})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	// Connection limit.
	current := atomic.AddInt32(&s.streamConns, 1)
	if int(current) > max(s.MaxStreamClients, 1) {
		atomic.AddInt32(&s.streamConns, -1)
		http.Error(w, "too many SSE connections", http.StatusServiceUnavailable)
		return
	}
	defer atomic.AddInt32(&s.streamConns, -1)

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	// SSE headers.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	subID, ch := s.Sim.Subscribe()
	defer s.Sim.Unsubscribe(subID)

	// Catch-up, then live events newer than the catch-up.
	var last uint64
	for _, e := range s.Sim.Events(50) {
		writeSSEEvent(w, e)
		last = e.Seq
	}
	flusher.Flush()

	slog.Info("SSE client connected", "sub_id", subID)

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return
			}
			if e.Seq <= last {
				continue
			}
			writeSSEEvent(w, e)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			slog.Info("SSE client disconnected", "sub_id", subID)
			return
		}
	}
}

// writeSSEEvent writes a single event in SSE format.
func writeSSEEvent(w http.ResponseWriter, e engine.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", e.Seq, e.Category, data)
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
