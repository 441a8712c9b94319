package mission

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/falconmind/clustercenter/internal/assigner"
	"github.com/falconmind/clustercenter/internal/config"
	"github.com/falconmind/clustercenter/internal/fleet"
	"github.com/falconmind/clustercenter/internal/repository"
	"github.com/falconmind/clustercenter/internal/retry"
	"github.com/falconmind/clustercenter/pkg/clock"
	"github.com/falconmind/clustercenter/pkg/database"
	"github.com/falconmind/clustercenter/pkg/events"
	"github.com/falconmind/clustercenter/pkg/models"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newIntegrationScheduler skips unless INTEGRATION_TEST is set, then wires a
// Scheduler and backing Inventory against a real Postgres database.
func newIntegrationScheduler(t *testing.T) (*Scheduler, *fleet.Inventory) {
	t.Helper()
	if os.Getenv("INTEGRATION_TEST") == "" {
		t.Skip("Skipping integration test; set INTEGRATION_TEST=1 to run")
	}

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	db, err := database.NewDatabase(cfg.Database)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	repo := repository.New(db)
	require.NoError(t, repo.Migrate(context.Background()))

	bus := events.NewBus(zap.NewNop())
	inv := fleet.New(repo, bus, zap.NewNop(), "node-1")
	sched := New(repo, inv, assigner.GreedyStrategy{}, retry.NewManager(), nil, bus, clock.New(), zap.NewNop(), "node-1")
	return sched, inv
}

func registerUAV(t *testing.T, inv *fleet.Inventory, id string) *models.UAV {
	t.Helper()
	u := &models.UAV{
		ID:     id,
		Status: models.UAVOnline,
		Capabilities: models.Capabilities{
			MaxAltitudeM:   500,
			BatteryCapacity: 100,
			CurrentBattery: 100,
		},
	}
	require.NoError(t, inv.Register(context.Background(), u))
	return u
}

// TestIntegrationSingleUAVMissionDispatchesAndCompletes covers S1: creating
// a SINGLE_UAV mission, dispatching it onto an available UAV, advancing its
// progress, and completing it, all persisted through the repository.
func TestIntegrationSingleUAVMissionDispatchesAndCompletes(t *testing.T) {
	sched, inv := newIntegrationScheduler(t)
	ctx := context.Background()

	uavID := "uav-s1-" + time.Now().Format(time.RFC3339Nano)
	registerUAV(t, inv, uavID)

	m := &models.Mission{Name: "single-uav-mission", Type: models.MissionSingleUAV, PreferredUAV: uavID}
	require.NoError(t, sched.Create(ctx, m))
	require.Equal(t, models.MissionPending, m.State)

	require.NoError(t, sched.Dispatch(ctx, m.ID))

	dispatched, err := sched.Get(m.ID)
	require.NoError(t, err)
	require.Equal(t, models.MissionRunning, dispatched.State)
	require.Equal(t, []string{uavID}, dispatched.AssignedUAVs)

	bound, ok := inv.Get(uavID)
	require.True(t, ok)
	require.Equal(t, models.UAVBusy, bound.Status)
	require.Equal(t, m.ID, bound.CurrentMission)

	require.NoError(t, sched.UpdateProgress(ctx, m.ID, 0.5))
	require.Error(t, sched.UpdateProgress(ctx, m.ID, 0.2), "progress must be non-decreasing")

	require.NoError(t, sched.Complete(ctx, m.ID, true))
	done, err := sched.Get(m.ID)
	require.NoError(t, err)
	require.Equal(t, models.MissionSucceeded, done.State)
	require.Equal(t, 1.0, done.Progress)

	released, ok := inv.Get(uavID)
	require.True(t, ok)
	require.Equal(t, models.UAVIdle, released.Status)
	require.Equal(t, "", released.CurrentMission)
}

// TestIntegrationPriorityDispatchPrefersHigherPriorityMissionFirst covers
// S2: when capacity can satisfy only one of two competing PENDING missions,
// the dispatch pass picks the higher-priority one.
func TestIntegrationPriorityDispatchPrefersHigherPriorityMissionFirst(t *testing.T) {
	sched, inv := newIntegrationScheduler(t)
	ctx := context.Background()

	uavID := "uav-s2-" + time.Now().Format(time.RFC3339Nano)
	registerUAV(t, inv, uavID)

	low := &models.Mission{Name: "low-priority", Type: models.MissionMultiUAV, RequestedUAVs: 1, Priority: 1, DispatchPolicy: models.DispatchDowngradeOnShortfall}
	high := &models.Mission{Name: "high-priority", Type: models.MissionMultiUAV, RequestedUAVs: 1, Priority: 10, DispatchPolicy: models.DispatchDowngradeOnShortfall}
	require.NoError(t, sched.Create(ctx, low))
	require.NoError(t, sched.Create(ctx, high))

	sched.runDispatchPass(ctx)

	gotHigh, err := sched.Get(high.ID)
	require.NoError(t, err)
	require.Equal(t, models.MissionRunning, gotHigh.State, "the higher-priority mission should win the only available UAV")

	gotLow, err := sched.Get(low.ID)
	require.NoError(t, err)
	require.Equal(t, models.MissionPending, gotLow.State, "the lower-priority mission should remain pending for lack of capacity")
}
