package model

import "time"

// RunKind identifies what triggered an ingestion pass.
type RunKind string

const (
	RunPrimary    RunKind = "primary"
	RunEntryLevel RunKind = "entry_level"
	RunManual     RunKind = "manual"
)

// RunCounts are the per-pass outcome counters.
type RunCounts struct {
	Scraped              int `json:"scraped"`
	Stored               int `json:"stored"`
	Duplicates           int `json:"duplicates"`
	SkippedNoURL         int `json:"skippedNoUrl"`
	ClassificationFailed int `json:"classificationFailed"`
	Approved             int `json:"approved"`
}

// Add accumulates other into c.
func (c *RunCounts) Add(other RunCounts) {
	c.Scraped += other.Scraped
	c.Stored += other.Stored
	c.Duplicates += other.Duplicates
	c.SkippedNoURL += other.SkippedNoURL
	c.ClassificationFailed += other.ClassificationFailed
	c.Approved += other.Approved
}

// ScrapeRun is one append-only entry of the ingestion log.
type ScrapeRun struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	Kind       RunKind   `json:"kind"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Counts     RunCounts `json:"counts"`
	Errors     []string  `json:"errors,omitempty"`
}
