package models

import "time"

// RunStatus is the outcome of one upload-and-scrape sequence.
type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusError   RunStatus = "error"
)

// RunStage names the step a run is in, or the step it failed in.
type RunStage string

const (
	RunStageUpload RunStage = "upload"
	RunStageScrape RunStage = "scrape"
	RunStageDone   RunStage = "done"
)

// Run records one upload-and-scrape sequence.
type Run struct {
	ID         string     `json:"id"`
	SessionID  string     `json:"sessionId,omitempty"`
	FileName   string     `json:"fileName"`
	Filepath   string     `json:"filepath,omitempty"`   // upload reference returned by the service
	OutputFile string     `json:"outputFile,omitempty"` // artifact name returned by the scrape
	Status     RunStatus  `json:"status"`
	Stage      RunStage   `json:"stage"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// Duration returns how long the run took, or zero while it is still running.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
