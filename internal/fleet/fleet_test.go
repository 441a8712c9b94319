package fleet

import (
	"testing"

	"github.com/falconmind/clustercenter/pkg/events"
	"github.com/falconmind/clustercenter/pkg/models"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// newTestInventory builds an Inventory with its sync.Map seeded directly,
// bypassing Register (and therefore the repository) entirely — Get/
// Available/All never touch the repository.
func newTestInventory(uavs ...*models.UAV) *Inventory {
	inv := New(nil, events.NewBus(zap.NewNop()), zap.NewNop(), "node-1")
	for _, u := range uavs {
		inv.uavs.Store(u.ID, u)
	}
	return inv
}

func TestGetReturnsStoredUAV(t *testing.T) {
	u := &models.UAV{ID: "uav-1", Status: models.UAVOnline}
	inv := newTestInventory(u)

	got, ok := inv.Get("uav-1")
	assert.True(t, ok)
	assert.Equal(t, u, got)
}

func TestGetUnknownUAVReturnsFalse(t *testing.T) {
	inv := newTestInventory()
	_, ok := inv.Get("missing")
	assert.False(t, ok)
}

func TestAvailableFiltersByStatusAndCurrentMission(t *testing.T) {
	online := &models.UAV{ID: "online", Status: models.UAVOnline}
	idle := &models.UAV{ID: "idle", Status: models.UAVIdle}
	busy := &models.UAV{ID: "busy", Status: models.UAVIdle, CurrentMission: "m-1"}
	offline := &models.UAV{ID: "offline", Status: models.UAVOffline}

	inv := newTestInventory(online, idle, busy, offline)
	available := inv.Available()

	ids := make(map[string]bool)
	for _, u := range available {
		ids[u.ID] = true
	}
	assert.True(t, ids["online"])
	assert.True(t, ids["idle"])
	assert.False(t, ids["busy"])
	assert.False(t, ids["offline"])
}

func TestAllReturnsEveryKnownUAV(t *testing.T) {
	a := &models.UAV{ID: "a"}
	b := &models.UAV{ID: "b"}
	inv := newTestInventory(a, b)

	all := inv.All()
	assert.Len(t, all, 2)
}
