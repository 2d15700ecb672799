package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a run id is unknown.
var ErrNotFound = errors.New("run not found")

// Status is the lifecycle state of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Kind distinguishes system runs from single-FMU runs.
type Kind string

const (
	KindRun       Kind = "run"
	KindRunSingle Kind = "run-single"
)

// Run is one recorded simulation.
type Run struct {
	ID            string       `json:"id"`
	Kind          Kind         `json:"kind"`
	StructurePath string       `json:"structure_path,omitempty"`
	WorkDir       string       `json:"work_dir"`
	Scenario      string       `json:"scenario,omitempty"`
	Duration      float64      `json:"duration"`
	LogLevel      string       `json:"log_level"`
	Status        Status       `json:"status"`
	ErrorKind     string       `json:"error_kind,omitempty"`
	ErrorMessage  string       `json:"error_message,omitempty"`
	ExitCode      int          `json:"exit_code"`
	StartedAt     time.Time    `json:"started_at"`
	FinishedAt    *time.Time   `json:"finished_at,omitempty"`
	Results       []ResultFile `json:"results,omitempty"`
}

// ResultFile is one component table produced by a run.
type ResultFile struct {
	Component string `json:"component"`
	Path      string `json:"path"`
	Rows      int    `json:"rows"`
	Columns   int    `json:"columns"`
}

// Finish is the outcome of a run.
type Finish struct {
	Status       Status
	ErrorKind    string
	ErrorMessage string
	ExitCode     int
	FinishedAt   time.Time
	Results      []ResultFile
}
