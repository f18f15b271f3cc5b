package domain

import "time"

// RunInfo identifies one extraction run.
type RunInfo struct {
	ID        string
	Input     string
	Variable  string
	Country   string
	AdmLevel  int // effective level after any ADM0 fallback
	StartedAt time.Time
}

// OutputPaths names the two output files of a run.
type OutputPaths struct {
	TimeSeries string // Parquet
	Stats      string // CSV
}
