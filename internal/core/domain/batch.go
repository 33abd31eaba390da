package domain

import "time"

type BatchPhase string

const (
	PhaseIdle        BatchPhase = "idle"
	PhaseScanning    BatchPhase = "scanning"
	PhaseAnalyzing   BatchPhase = "analyzing"
	PhaseReconciling BatchPhase = "reconciling"
	PhaseCompleted   BatchPhase = "completed"
)

type BatchProgress struct {
	Phase       BatchPhase `json:"phase"`
	Root        string     `json:"root,omitempty"`
	Current     int        `json:"current"`
	Total       int        `json:"total"`
	CurrentFile string     `json:"currentFile,omitempty"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
}

type ItemFailure struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

type BatchReport struct {
	Root       string        `json:"root"`
	Added      int           `json:"added"`
	Modified   int           `json:"modified"`
	Deleted    int           `json:"deleted"`
	Degraded   int           `json:"degraded"`
	Failed     []ItemFailure `json:"failed,omitempty"`
	NoChanges  bool          `json:"noChanges"`
	Cancelled  bool          `json:"cancelled,omitempty"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
}
