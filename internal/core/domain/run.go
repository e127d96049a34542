package domain

import "time"

type RunStatus string

const (
	RunSucceeded RunStatus = "success"
	RunAborted   RunStatus = "aborted"
)

// RunRequest triggers one pipeline run.
type RunRequest struct {
	RequestID string `json:"request_id,omitempty"`
}

type RunSummary struct {
	RunID            string            `json:"run_id"`
	StartedAt        time.Time         `json:"started_at"`
	FinishedAt       time.Time         `json:"finished_at"`
	Status           RunStatus         `json:"status"`
	Organized        int               `json:"organized"`
	SkippedDuplicate int               `json:"skipped_duplicate"`
	SkippedIdentity  int               `json:"skipped_identity"`
	Failed           int               `json:"failed"`
	ByLabel          map[Label]int     `json:"by_label"`
	Documents        []DocumentOutcome `json:"documents"`
	Error            string            `json:"error,omitempty"`
}

func NewRunSummary(runID string, startedAt time.Time) *RunSummary {
	return &RunSummary{
		RunID:     runID,
		StartedAt: startedAt,
		Status:    RunSucceeded,
		ByLabel:   map[Label]int{},
		Documents: []DocumentOutcome{},
	}
}

// Record appends a terminal outcome and updates the counters.
func (s *RunSummary) Record(outcome DocumentOutcome) {
	switch outcome.State {
	case StateOrganized:
		s.Organized++
		s.ByLabel[outcome.Label]++
	case StateSkippedDuplicate:
		s.SkippedDuplicate++
	case StateSkippedIdentity:
		s.SkippedIdentity++
	default:
		outcome.State = StateFailed
		s.Failed++
	}
	s.Documents = append(s.Documents, outcome)
}

func (s *RunSummary) Abort(err error, finishedAt time.Time) {
	s.Status = RunAborted
	if err != nil {
		s.Error = err.Error()
	}
	s.FinishedAt = finishedAt
}

func (s *RunSummary) Finish(finishedAt time.Time) {
	s.FinishedAt = finishedAt
}

func (s *RunSummary) Total() int {
	return s.Organized + s.SkippedDuplicate + s.SkippedIdentity + s.Failed
}
