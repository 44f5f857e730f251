package guard

import (
	"testing"

	"github.com/fieldops/OpenFieldAgent/internal/workflow"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type staticState workflow.State

func (s staticState) State() workflow.State { return workflow.State(s) }

func TestBackAllowed(t *testing.T) {
	cases := []struct {
		state   workflow.State
		allowed bool
	}{
		{workflow.StateAssigned, true},
		{workflow.StateRunning, false},
		{workflow.StatePaused, true},
		{workflow.StateCompleted, true},
	}

	for _, tc := range cases {
		g := New(staticState(tc.state), zap.NewNop())
		assert.Equal(t, tc.allowed, g.BackAllowed(), "state %s", tc.state)
	}
}

func TestIntercept_BlockedWithMessage(t *testing.T) {
	g := New(staticState(workflow.StateRunning), zap.NewNop())

	allowed, message := g.Intercept()
	assert.False(t, allowed)
	assert.NotEmpty(t, message)
}

func TestIntercept_AllowedWithoutMessage(t *testing.T) {
	g := New(staticState(workflow.StatePaused), zap.NewNop())

	allowed, message := g.Intercept()
	assert.True(t, allowed)
	assert.Empty(t, message)
}
