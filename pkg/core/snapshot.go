package core

import "time"

// ErrorRecord is one entry of the user-visible error log.
type ErrorRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Code      string    `json:"code,omitempty"`
	Message   string    `json:"message"`
}

// Snapshot is the read model exposed to the presentation layer. It is a
// copy; mutating it has no effect on the runtime.
type Snapshot struct {
	RunID           string        `json:"run_id,omitempty"`
	Request         string        `json:"request,omitempty"`
	Phase           Phase         `json:"phase"`
	Status          Status        `json:"status"`
	Cycle           int           `json:"cycle"`
	MaxCycles       int           `json:"max_cycles"`
	Thinking        []string      `json:"thinking,omitempty"`
	Team            []string      `json:"team,omitempty"`
	PendingQuestion string        `json:"pending_question,omitempty"`
	Deliverable     string        `json:"deliverable,omitempty"`
	Errors          []ErrorRecord `json:"errors,omitempty"`
	Graph           []GraphEvent  `json:"graph,omitempty"`
}
