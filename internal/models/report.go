package models

// Issue is a single entry of EmailThreadReport.IssuesNeedingAttention.
// Priority 1 is the highest.
type Issue struct {
	Issue    string `json:"issue" yaml:"issue"`
	Priority int    `json:"priority" yaml:"priority"`
}

// EmailThreadReport is the structured risk analysis of one origin file.
type EmailThreadReport struct {
	Project                string   `json:"project" yaml:"project"`
	ShortSummary           string   `json:"short_summary" yaml:"short_summary"`
	UnresolvedProblems     []string `json:"unresolved_problems" yaml:"unresolved_problems"`
	EmergingRisksBlockers  []string `json:"emerging_risks_blockers" yaml:"emerging_risks_blockers"`
	IssuesNeedingAttention []Issue  `json:"issues_needing_attention" yaml:"issues_needing_attention"`
}

// RunResult is the outward shape of a pipeline run.
type RunResult struct {
	Success bool   `json:"success"`
	Report  string `json:"report,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ReportRequest triggers a pipeline run from the message bus.
type ReportRequest struct {
	RequestID string `json:"request_id"`
}

// ReportResponse is published once a ReportRequest has been handled.
type ReportResponse struct {
	RequestID string `json:"request_id"`
	RunResult
}
