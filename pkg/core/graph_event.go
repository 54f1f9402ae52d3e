package core

import "time"

// EdgeType classifies why one actor addressed another.
type EdgeType string

const (
	EdgeInvoke      EdgeType = "invoke"
	EdgeConsult     EdgeType = "consult"
	EdgeReview      EdgeType = "review"
	EdgeReport      EdgeType = "report"
	EdgeInstruction EdgeType = "instruction"
	EdgeAddMember   EdgeType = "add_member"
)

// GraphEvent records who addressed whom. Events are append-only.
type GraphEvent struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Type      EdgeType  `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Label     string    `json:"label,omitempty"`
}
