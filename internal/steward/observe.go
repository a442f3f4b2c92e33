// Package steward implements the autonomous disaster director.
// It observes the colony via the API, decides whether to perturb it with a
// disaster under a cooldown policy, and acts via the admin disaster endpoint.
package steward

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/talgya/antnest/internal/telemetry"
)

// Observation holds all data collected during an observation cycle.
type Observation struct {
	Status  ColonyStatus            `json:"status"`
	History []telemetry.WindowStats `json:"history"`
}

// ColonyStatus mirrors GET /api/v1/status.
type ColonyStatus struct {
	RunID      string           `json:"run_id"`
	Tick       uint64           `json:"tick"`
	SimTime    string           `json:"sim_time"`
	Season     string           `json:"season"`
	Year       uint64           `json:"year"`
	Scale      int              `json:"scale"`
	Paused     bool             `json:"paused"`
	Population int              `json:"population"`
	Eggs       int              `json:"eggs"`
	Queen      bool             `json:"queen"`
	Reserve    float64          `json:"reserve"`
	Waste      float64          `json:"waste"`
	Disasters  []ActiveDisaster `json:"disasters"`
}

// ActiveDisaster mirrors one entry of the status disasters list.
type ActiveDisaster struct {
	ID        uint64  `json:"id"`
	Kind      string  `json:"kind"`
	Intensity float64 `json:"intensity"`
	Remaining uint32  `json:"remaining_ticks"`
	Duration  uint32  `json:"duration_ticks"`
}

// Observer fetches colony state from the API.
type Observer struct {
	BaseURL    string
	HTTPClient *http.Client
	HistoryN   int // stats windows to fetch for trends
}

// NewObserver creates an Observer targeting the given API base URL.
func NewObserver(baseURL string) *Observer {
	return &Observer{
		BaseURL:  baseURL,
		HistoryN: 6,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Observe fetches status and recent stats windows.
func (o *Observer) Observe() (*Observation, error) {
	obs := &Observation{}

	if err := o.fetchJSON("/api/v1/status", &obs.Status); err != nil {
		return nil, fmt.Errorf("fetch status: %w", err)
	}
	if err := o.fetchJSON(fmt.Sprintf("/api/v1/stats/history?n=%d", o.HistoryN), &obs.History); err != nil {
		return nil, fmt.Errorf("fetch stats history: %w", err)
	}
	return obs, nil
}

// fetchJSON GETs a path and decodes the JSON response into target.
func (o *Observer) fetchJSON(path string, target any) error {
	resp, err := o.HTTPClient.Get(o.BaseURL + path)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET %s returned %d: %s", path, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
