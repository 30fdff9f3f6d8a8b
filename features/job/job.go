package job

import (
	"encoding/json"
	"errors"
	"time"
)

var ErrJobNotFound = errors.New("failed job not found")

// Job is an ingestion run that exhausted its retries, kept for manual replay.
type Job struct {
	ID        string          `json:"id"`
	FileID    string          `json:"fileId"`
	Handler   string          `json:"handler"`
	Payload   json.RawMessage `json:"payload"`
	Error     string          `json:"error"`
	ErrorKind string          `json:"errorKind,omitempty"`
	Retries   int             `json:"retries"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Filter narrows a failed-job listing. Empty fields match everything.
type Filter struct {
	FileID string
	Kind   string
}

func (f Filter) match(j Job) bool {
	return (f.FileID == "" || j.FileID == f.FileID) && (f.Kind == "" || j.ErrorKind == f.Kind)
}
