package guard

import (
	"github.com/fieldops/OpenFieldAgent/internal/workflow"
	"go.uber.org/zap"
)

// StateSource exposes the workflow state the guard decides on.
type StateSource interface {
	State() workflow.State
}

// Guard converts the platform's back/dismiss signal into an explanatory
// refusal while a job is actively running, so the technician cannot abandon
// it through accidental navigation. The guard lifts on pause or completion.
type Guard struct {
	workflow StateSource
	logger   *zap.Logger
}

func New(workflow StateSource, logger *zap.Logger) *Guard {
	return &Guard{workflow: workflow, logger: logger}
}

// BackAllowed is the gating predicate for whatever back signal the platform
// delivers.
func (g *Guard) BackAllowed() bool {
	return g.workflow.State() != workflow.StateRunning
}

// Intercept evaluates one back press. When blocked, the returned message is
// shown instead of navigating away.
func (g *Guard) Intercept() (bool, string) {
	if g.BackAllowed() {
		return true, ""
	}

	g.logger.Info("Back navigation blocked while job is running")
	return false, "A maintenance is in progress. Pause or finalize it before leaving."
}
