package steward

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DisasterRequest is the payload for POST /api/v1/disaster.
type DisasterRequest struct {
	Kind          string  `json:"kind"`
	Intensity     float32 `json:"intensity"`
	DurationTicks uint32  `json:"duration_ticks"`
}

// Result is the response from POST /api/v1/disaster.
type Result struct {
	Queued        bool    `json:"queued"`
	Kind          string  `json:"kind"`
	Intensity     float32 `json:"intensity"`
	DurationTicks uint32  `json:"duration_ticks"`
}

// Actor triggers disasters via the admin API.
type Actor struct {
	BaseURL    string
	AdminKey   string
	HTTPClient *http.Client
}

// NewActor creates an Actor targeting the given API base URL with admin auth.
func NewActor(baseURL, adminKey string) *Actor {
	return &Actor{
		BaseURL:  baseURL,
		AdminKey: adminKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Act sends the decision's disaster to POST /api/v1/disaster. A decision
// with no disaster is a no-op and returns nil, nil.
func (a *Actor) Act(d Decision) (*Result, error) {
	if d.Disaster == nil {
		return nil, nil
	}
	body, err := json.Marshal(d.Disaster)
	if err != nil {
		return nil, fmt.Errorf("marshal disaster: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, a.BaseURL+"/api/v1/disaster", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.AdminKey)

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST disaster: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		return nil, fmt.Errorf("disaster rejected (%d): %s", resp.StatusCode, string(respBody))
	}

	var result Result
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &result, nil
}
