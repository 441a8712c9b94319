package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBatteryRatioClampedToUnitInterval(t *testing.T) {
	assert.Equal(t, 0.5, Capabilities{BatteryCapacity: 100, CurrentBattery: 50}.BatteryRatio())
	assert.Equal(t, 0.0, Capabilities{BatteryCapacity: 0, CurrentBattery: 50}.BatteryRatio())
	assert.Equal(t, 0.0, Capabilities{BatteryCapacity: 100, CurrentBattery: -10}.BatteryRatio())
	assert.Equal(t, 1.0, Capabilities{BatteryCapacity: 100, CurrentBattery: 150}.BatteryRatio())
}

func TestMissionStateTerminal(t *testing.T) {
	terminal := []MissionState{MissionSucceeded, MissionFailed, MissionCancelled}
	for _, s := range terminal {
		assert.True(t, s.Terminal(), "%s should be terminal", s)
	}

	nonTerminal := []MissionState{MissionPending, MissionRunning, MissionPaused}
	for _, s := range nonTerminal {
		assert.False(t, s.Terminal(), "%s should not be terminal", s)
	}
}
