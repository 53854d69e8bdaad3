package domain

import "time"

// ReportEntry joins organisational identity to one detected change. It only
// lives for the duration of a single detection cycle.
type ReportEntry struct {
	ProjectName    string   `json:"project_name"`
	CompetitorName string   `json:"competitor_name"`
	URL            string   `json:"url"`
	PageType       PageType `json:"page_type"`
	DiffContent    string   `json:"diff_content"`
}

// RunResult summarises one detection cycle
type RunResult struct {
	StartedAt       time.Time     `json:"started_at"`
	FinishedAt      time.Time     `json:"finished_at"`
	Targets         int           `json:"targets"`
	Succeeded       int           `json:"succeeded"`
	Failed          int           `json:"failed"`
	PersistFailures int           `json:"persist_failures"`
	Changes         int           `json:"changes"`
	Notified        bool          `json:"notified"`
	Entries         []ReportEntry `json:"entries"`
}

// Duration is the wall time of the run.
func (r *RunResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
