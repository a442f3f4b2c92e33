package steward

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/talgya/antnest/internal/config"
	"github.com/talgya/antnest/internal/entropy"
	"github.com/talgya/antnest/internal/telemetry"
)

func testPolicy() Policy {
	p := NewPolicy(config.Default())
	p.TriggerChance = 1
	p.MinPopulation = 10
	p.MaxConcurrent = 2
	return p
}

func healthy(tick uint64) *Observation {
	return &Observation{
		Status: ColonyStatus{RunID: "run", Tick: tick, Population: 40, Queen: true, Reserve: 20},
		History: []telemetry.WindowStats{
			{Live: 38, Hatched: 3, EnergyMean: 0.7},
			{Live: 40, Hatched: 2, EnergyMean: 0.7},
		},
	}
}

func TestTriage(t *testing.T) {
	tests := []struct {
		name string
		edit func(*Observation)
		want string
	}{
		{"healthy", func(*Observation) {}, LevelHealthy},
		{"no queen", func(o *Observation) { o.Status.Queen = false }, LevelCritical},
		{"too few", func(o *Observation) { o.Status.Population = 5 }, LevelCritical},
		{"crash", func(o *Observation) { o.History[1].Live = 20 }, LevelCritical},
		{"starving", func(o *Observation) { o.History[1].EnergyMean = 0.1 }, LevelCritical},
		{"decline", func(o *Observation) { o.History[1].Live = 33 }, LevelWarning},
		{"empty reserve", func(o *Observation) { o.Status.Reserve = 0 }, LevelWarning},
		{"more deaths", func(o *Observation) { o.History[1].DeathsOldAge = 6 }, LevelWatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := healthy(1000)
			tt.edit(obs)
			if got := Triage(obs, 10).Level; got != tt.want {
				t.Errorf("level = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDecideHolds(t *testing.T) {
	tests := []struct {
		name string
		edit func(*Observation, *Policy)
	}{
		{"paused", func(o *Observation, _ *Policy) { o.Status.Paused = true }},
		{"crisis", func(o *Observation, _ *Policy) { o.Status.Queen = false }},
		{"saturated", func(o *Observation, _ *Policy) {
			o.Status.Disasters = []ActiveDisaster{{Kind: "Rain"}, {Kind: "Drought"}}
		}},
		{"unlucky", func(_ *Observation, p *Policy) { p.TriggerChance = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs, p := healthy(1000), testPolicy()
			tt.edit(obs, &p)
			d := Decide(p, obs, &Memory{}, entropy.New(1))
			if d.Action != ActionNone || d.Disaster != nil {
				t.Errorf("decision = %+v, want none", d)
			}
		})
	}
}

func TestDecideRespectsCooldowns(t *testing.T) {
	p := testPolicy()
	obs := healthy(1000)
	mem := &Memory{}

	seen := map[string]bool{}
	for i := 0; i < 4; i++ {
		d := Decide(p, obs, mem, entropy.New(uint64(i)))
		if d.Action != ActionDisaster {
			t.Fatalf("cycle %d: %+v", i, d)
		}
		k := d.Disaster.Kind
		if seen[k] {
			t.Fatalf("cycle %d: %s chosen again during cooldown", i, k)
		}
		seen[k] = true
		if d.Disaster.DurationTicks != p.DurationTicks(k) {
			t.Errorf("%s duration %d, want %d", k, d.Disaster.DurationTicks, p.DurationTicks(k))
		}
		if d.Disaster.Intensity < p.MinIntensity || d.Disaster.Intensity > p.MaxIntensity {
			t.Errorf("%s intensity %v outside policy", k, d.Disaster.Intensity)
		}
		mem.RecordDecision(obs, d)
	}

	if d := Decide(p, obs, mem, entropy.New(9)); d.Action != ActionNone {
		t.Errorf("all kinds cooling down but got %+v", d)
	}

	rain, _ := mem.LastDisaster("run", "Rain")
	obs.Status.Tick = rain.ends() + p.CooldownTicks("Rain")
	if d := Decide(p, obs, mem, entropy.New(3)); d.Action != ActionDisaster {
		t.Errorf("cooled kind not eligible: %+v", d)
	}

	obs.Status.Tick = 1000
	obs.Status.RunID = "fresh"
	if d := Decide(p, obs, mem, entropy.New(3)); d.Action != ActionDisaster {
		t.Errorf("new run should not inherit cooldowns: %+v", d)
	}
}

func TestMemoryPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.json")
	if got := LoadMemory(path); len(got.Records) != 0 {
		t.Fatalf("missing file loaded %d records", len(got.Records))
	}
	m := &Memory{}
	for i := 0; i < maxRecords+5; i++ {
		m.Record(CycleRecord{Tick: uint64(i), Action: ActionNone})
	}
	if err := m.Save(path); err != nil {
		t.Fatal(err)
	}
	got := LoadMemory(path)
	if len(got.Records) != maxRecords || got.Records[0].Tick != 5 {
		t.Errorf("loaded %d records starting at %d", len(got.Records), got.Records[0].Tick)
	}
}

func TestObserveAndAct(t *testing.T) {
	var posted DisasterRequest
	var auth string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/status", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"run_id": "abc", "tick": 420, "population": 33, "queen": true,
			"disasters": []map[string]any{{"id": 1, "kind": "Rain", "intensity": 0.5, "remaining_ticks": 10}},
		})
	})
	mux.HandleFunc("/api/v1/stats/history", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]telemetry.WindowStats{{Live: 30}, {Live: 33}})
	})
	mux.HandleFunc("/api/v1/disaster", func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&posted)
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(Result{Queued: true, Kind: posted.Kind, DurationTicks: posted.DurationTicks})
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	obs, err := NewObserver(ts.URL).Observe()
	if err != nil {
		t.Fatal(err)
	}
	if obs.Status.Tick != 420 || obs.Status.RunID != "abc" || len(obs.Status.Disasters) != 1 {
		t.Errorf("status = %+v", obs.Status)
	}
	if len(obs.History) != 2 || obs.History[1].Live != 33 {
		t.Errorf("history = %+v", obs.History)
	}

	actor := NewActor(ts.URL, "k")
	if res, err := actor.Act(Decision{Action: ActionNone}); res != nil || err != nil {
		t.Errorf("none decision acted: %v, %v", res, err)
	}
	res, err := actor.Act(Decision{Action: ActionDisaster, Disaster: &DisasterRequest{Kind: "Drought", Intensity: 0.5, DurationTicks: 90}})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Queued || posted.Kind != "Drought" || posted.DurationTicks != 90 {
		t.Errorf("result %+v, posted %+v", res, posted)
	}
	if auth != "Bearer k" {
		t.Errorf("authorization = %q", auth)
	}
}

func TestObserveReportsErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer ts.Close()
	if _, err := NewObserver(ts.URL).Observe(); err == nil {
		t.Error("Observe succeeded against a failing API")
	}
	if _, err := NewActor(ts.URL, "k").Act(Decision{Disaster: &DisasterRequest{Kind: "Rain"}}); err == nil {
		t.Error("Act succeeded against a failing API")
	}
}
