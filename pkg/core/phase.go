package core

// Phase is the lifecycle stage of one user request.
type Phase string

const (
	PhaseStrategy   Phase = "strategy"
	PhaseExecution  Phase = "execution"
	PhaseReporting  Phase = "reporting"
	PhaseRefinement Phase = "refinement"
	PhaseCompleted  Phase = "completed"
)

// Status is the coarse system state exposed to the presentation layer.
type Status string

const (
	StatusIdle            Status = "idle"
	StatusRunning         Status = "running"
	StatusWaitingForHuman Status = "waiting_for_human"
	StatusCompleted       Status = "completed"
	StatusError           Status = "error"
)
