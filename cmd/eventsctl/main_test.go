package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunVersionCommand(t *testing.T) {
	assert.Equal(t, 0, run([]string{"version"}))
}

func TestRunUnknownCommand(t *testing.T) {
	assert.NotEqual(t, 0, run([]string{"unknown-command"}))
}

func TestRunMissingConfig(t *testing.T) {
	t.Setenv("EVENTSCTL_CONFIG", t.TempDir()+"/missing.yaml")
	assert.Equal(t, 1, run([]string{"events", "list"}))
}
