package core

import (
	"time"

	"github.com/google/uuid"
)

// AgentTask pairs a role with a fully formed query. Tasks are created by the
// dispatcher and consumed by the executor; they are never persisted.
type AgentTask struct {
	ID        string
	Role      Role
	Query     string
	CreatedAt time.Time
}

// NewAgentTask creates a task with a generated ID.
func NewAgentTask(role Role, query string) AgentTask {
	return AgentTask{
		ID:        uuid.NewString(),
		Role:      role,
		Query:     query,
		CreatedAt: time.Now().UTC(),
	}
}
