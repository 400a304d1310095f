package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusTransitions(t *testing.T) {
	allowed := []struct{ from, to DeploymentStatus }{
		{StatusPending, StatusInProgress},
		{StatusPending, StatusFailed},
		{StatusInProgress, StatusSuccess},
		{StatusInProgress, StatusFailed},
		{StatusFailed, StatusRollingBack},
		{StatusFailed, StatusManualIntervention},
		{StatusRollingBack, StatusRolledBack},
		{StatusRollingBack, StatusManualIntervention},
	}
	for _, tc := range allowed {
		assert.True(t, tc.from.CanTransition(tc.to), "%s -> %s", tc.from, tc.to)
	}

	denied := []struct{ from, to DeploymentStatus }{
		{StatusPending, StatusSuccess},
		{StatusSuccess, StatusFailed},
		{StatusSuccess, StatusRollingBack},
		{StatusRolledBack, StatusInProgress},
		{StatusManualIntervention, StatusRollingBack},
		{StatusFailed, StatusSuccess},
	}
	for _, tc := range denied {
		assert.False(t, tc.from.CanTransition(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestTerminalStatuses(t *testing.T) {
	assert.True(t, StatusSuccess.Terminal())
	assert.True(t, StatusRolledBack.Terminal())
	assert.True(t, StatusManualIntervention.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusFailed.Terminal())
	assert.False(t, StatusRollingBack.Terminal())
}

func TestParseStatus(t *testing.T) {
	status, err := ParseStatus("rolling_back")
	require.NoError(t, err)
	assert.Equal(t, StatusRollingBack, status)

	_, err = ParseStatus("finished")
	require.Error(t, err)
}

func TestFindingSeverityBlocking(t *testing.T) {
	assert.True(t, SeverityHigh.Blocking())
	assert.True(t, SeverityCritical.Blocking())
	assert.False(t, SeverityLow.Blocking())
	assert.False(t, SeverityMedium.Blocking())
}
