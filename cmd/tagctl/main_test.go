package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The documented surface accepts bare invocations of validate, push and
// status; scripts rely on the arity, so it is pinned here.
func TestCommandArities(t *testing.T) {
	assert.NoError(t, validateCmd.Args(validateCmd, nil))
	assert.NoError(t, validateCmd.Args(validateCmd, []string{"env/staging"}))
	assert.Error(t, validateCmd.Args(validateCmd, []string{"a", "b"}))

	assert.NoError(t, pushCmd.Args(pushCmd, nil))
	assert.NoError(t, pushCmd.Args(pushCmd, []string{"backup/*"}))

	assert.NoError(t, statusCmd.Args(statusCmd, nil))
	assert.NoError(t, statusCmd.Args(statusCmd, []string{"run-1"}))
	assert.NoError(t, statusCmd.Args(statusCmd, []string{"run-1", "in_progress"}))
	assert.Error(t, statusCmd.Args(statusCmd, []string{"run-1", "in_progress", "x"}))
}

func TestCommandTree(t *testing.T) {
	names := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}
	for _, expected := range []string{
		"create-version", "move-environment", "create-state", "get-environment",
		"history", "validate", "push", "create-deployment", "status",
		"rollback", "can-promote",
	} {
		require.True(t, names[expected], "missing command %s", expected)
	}
}
