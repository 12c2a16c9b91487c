package models

import "time"

// StageStatus is the lifecycle state of one pipeline stage.
type StageStatus string

const (
	StagePending   StageStatus = "pending"
	StageRunning   StageStatus = "running"
	StageSucceeded StageStatus = "succeeded"
	StageFailed    StageStatus = "failed"
)

// StageReport records the outcome of a single pipeline stage.
type StageReport struct {
	Stage      int         `json:"stage"`
	Name       string      `json:"name"`
	Status     StageStatus `json:"status"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
	Error      string      `json:"error,omitempty"`
}

// Duration returns how long the stage ran.
func (s *StageReport) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// RunReport is the automation-status artifact written after every pipeline
// invocation, one StageReport per selected stage in execution order.
type RunReport struct {
	RunID      string        `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Stages     []StageReport `json:"stages"`
	Success    bool          `json:"success"`
}
