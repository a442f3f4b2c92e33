package steward

import (
	"encoding/json"
	"log/slog"
	"os"
)

const maxRecords = 50

// CycleRecord captures what happened in a single steward cycle.
type CycleRecord struct {
	RunID         string  `json:"run_id"`
	Tick          uint64  `json:"tick"`
	Action        string  `json:"action"`
	Kind          string  `json:"kind,omitempty"`
	Intensity     float32 `json:"intensity,omitempty"`
	DurationTicks uint32  `json:"duration_ticks,omitempty"`
	Level         string  `json:"level"`
	Population    int     `json:"population"`
	Rationale     string  `json:"rationale,omitempty"`
}

// ends returns the tick the recorded disaster stops acting.
func (r CycleRecord) ends() uint64 { return r.Tick + uint64(r.DurationTicks) }

// Memory keeps recent steward cycles so cooldowns survive restarts.
type Memory struct {
	Records []CycleRecord `json:"records"`
}

// LoadMemory reads the memory file from disk. Returns empty memory if not
// found or unreadable.
func LoadMemory(path string) *Memory {
	data, err := os.ReadFile(path)
	if err != nil {
		return &Memory{}
	}
	var mem Memory
	if err := json.Unmarshal(data, &mem); err != nil {
		slog.Warn("steward memory corrupted, starting fresh", "error", err)
		return &Memory{}
	}
	return &mem
}

// Save writes the memory to disk.
func (m *Memory) Save(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Record adds a cycle record, trimming to maxRecords.
func (m *Memory) Record(r CycleRecord) {
	m.Records = append(m.Records, r)
	if len(m.Records) > maxRecords {
		m.Records = m.Records[len(m.Records)-maxRecords:]
	}
}

// LastDisaster returns the most recent disaster of kind triggered in run.
func (m *Memory) LastDisaster(runID, kind string) (CycleRecord, bool) {
	for i := len(m.Records) - 1; i >= 0; i-- {
		r := m.Records[i]
		if r.Action == ActionDisaster && r.Kind == kind && r.RunID == runID {
			return r, true
		}
	}
	return CycleRecord{}, false
}
