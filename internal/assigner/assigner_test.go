package assigner

import (
	"context"
	"testing"

	"github.com/falconmind/clustercenter/pkg/clock"
	"github.com/falconmind/clustercenter/pkg/geo"
	"github.com/falconmind/clustercenter/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uavWithBattery(id string, battery float64, maxAlt float64) *models.UAV {
	return &models.UAV{
		ID:     id,
		Status: models.UAVIdle,
		Capabilities: models.Capabilities{
			MaxAltitudeM:    maxAlt,
			BatteryCapacity: 100,
			CurrentBattery:  battery,
		},
	}
}

func candidatesAt(uavs []*models.UAV, positions []geo.Point) []Candidate {
	out := make([]Candidate, len(uavs))
	for i := range uavs {
		out[i] = Candidate{UAV: uavs[i], Position: positions[i]}
	}
	return out
}

func TestGreedyStrategyPicksHighestBatteryFirst(t *testing.T) {
	low := uavWithBattery("low", 20, 1000)
	high := uavWithBattery("high", 90, 1000)
	mid := uavWithBattery("mid", 50, 1000)

	candidates := candidatesAt([]*models.UAV{low, high, mid}, []geo.Point{{}, {}, {}})
	selected, err := GreedyStrategy{}.Select(context.Background(), candidates, Requirements{Count: 2})
	require.NoError(t, err)
	require.Len(t, selected, 2)
	assert.Equal(t, "high", selected[0].ID)
	assert.Equal(t, "mid", selected[1].ID)
}

func TestGreedyStrategyFiltersByAltitude(t *testing.T) {
	low := uavWithBattery("low-alt", 90, 50)
	high := uavWithBattery("high-alt", 10, 500)

	candidates := candidatesAt([]*models.UAV{low, high}, []geo.Point{{}, {}})
	selected, err := GreedyStrategy{}.Select(context.Background(), candidates, Requirements{Count: 1, MinAltitudeM: 200})
	require.NoError(t, err)
	require.Len(t, selected, 1)
	assert.Equal(t, "high-alt", selected[0].ID)
}

func TestGreedyStrategyInsufficientCandidatesReturnsError(t *testing.T) {
	one := uavWithBattery("one", 90, 1000)
	candidates := candidatesAt([]*models.UAV{one}, []geo.Point{{}})
	selected, err := GreedyStrategy{}.Select(context.Background(), candidates, Requirements{Count: 3})
	require.Error(t, err)
	var noCand *ErrNoCandidates
	require.ErrorAs(t, err, &noCand)
	assert.Equal(t, 3, noCand.Requested)
	assert.Equal(t, 1, noCand.Available)
	assert.Len(t, selected, 1)
}

func TestProximityStrategyPicksNearestToTarget(t *testing.T) {
	near := uavWithBattery("near", 50, 1000)
	far := uavWithBattery("far", 50, 1000)

	candidates := candidatesAt(
		[]*models.UAV{near, far},
		[]geo.Point{{Lat: 0.01, Lon: 0}, {Lat: 5, Lon: 5}},
	)
	selected, err := ProximityStrategy{}.Select(context.Background(), candidates, Requirements{Count: 1, Target: geo.Point{Lat: 0, Lon: 0}})
	require.NoError(t, err)
	require.Len(t, selected, 1)
	assert.Equal(t, "near", selected[0].ID)
}

func TestGeneticStrategyReturnsRequestedCountDeterministically(t *testing.T) {
	uavs := make([]*models.UAV, 6)
	positions := make([]geo.Point, 6)
	for i := range uavs {
		uavs[i] = uavWithBattery(string(rune('a'+i)), float64(10*(i+1)), 1000)
		positions[i] = geo.Point{Lat: float64(i), Lon: float64(i)}
	}
	candidates := candidatesAt(uavs, positions)
	req := Requirements{Count: 3, Target: geo.Point{Lat: 0, Lon: 0}}

	strategy := GeneticStrategy{Clock: clock.NewSeeded(1), Generations: 20, PopulationSize: 10}
	first, err := strategy.Select(context.Background(), candidates, req)
	require.NoError(t, err)
	require.Len(t, first, 3)

	strategy2 := GeneticStrategy{Clock: clock.NewSeeded(1), Generations: 20, PopulationSize: 10}
	second, err := strategy2.Select(context.Background(), candidates, req)
	require.NoError(t, err)

	ids1 := idsOf(first)
	ids2 := idsOf(second)
	assert.Equal(t, ids1, ids2, "same seed must produce the same selection")
}

func TestGeneticStrategyWhenPoolEqualsCountReturnsAll(t *testing.T) {
	uavs := []*models.UAV{uavWithBattery("a", 50, 1000), uavWithBattery("b", 60, 1000)}
	candidates := candidatesAt(uavs, []geo.Point{{}, {}})
	strategy := GeneticStrategy{Clock: clock.NewSeeded(1)}
	selected, err := strategy.Select(context.Background(), candidates, Requirements{Count: 2})
	require.NoError(t, err)
	assert.Len(t, selected, 2)
}

func TestPSOStrategyReturnsRequestedCountDeterministically(t *testing.T) {
	uavs := make([]*models.UAV, 6)
	positions := make([]geo.Point, 6)
	for i := range uavs {
		uavs[i] = uavWithBattery(string(rune('a'+i)), float64(10*(i+1)), 1000)
		positions[i] = geo.Point{Lat: float64(i), Lon: float64(i)}
	}
	candidates := candidatesAt(uavs, positions)
	req := Requirements{Count: 3, Target: geo.Point{Lat: 0, Lon: 0}}

	strategy := PSOStrategy{Clock: clock.NewSeeded(5), Iterations: 10, Particles: 8}
	selected, err := strategy.Select(context.Background(), candidates, req)
	require.NoError(t, err)
	require.Len(t, selected, 3)

	seen := make(map[string]bool)
	for _, u := range selected {
		assert.False(t, seen[u.ID], "duplicate UAV in PSO selection")
		seen[u.ID] = true
	}
}

func TestNSGA2StrategySelectsRequestedCount(t *testing.T) {
	uavs := make([]*models.UAV, 5)
	positions := make([]geo.Point, 5)
	for i := range uavs {
		uavs[i] = uavWithBattery(string(rune('a'+i)), float64(20*(i+1)), 1000)
		positions[i] = geo.Point{Lat: float64(i), Lon: 0}
	}
	candidates := candidatesAt(uavs, positions)
	strategy := NSGA2Strategy{Objectives: []ObjectiveWeight{
		{Objective: ObjectiveMaximizeBattery, Weight: 1},
		{Objective: ObjectiveMinimizeTime, Weight: 1},
	}}
	selected, err := strategy.Select(context.Background(), candidates, Requirements{Count: 2, Target: geo.Point{Lat: 0, Lon: 0}})
	require.NoError(t, err)
	assert.Len(t, selected, 2)
}

func TestNSGA2StrategyDefaultsObjectivesWhenUnset(t *testing.T) {
	uavs := []*models.UAV{uavWithBattery("a", 80, 1000), uavWithBattery("b", 20, 1000)}
	candidates := candidatesAt(uavs, []geo.Point{{}, {}})
	strategy := NSGA2Strategy{}
	selected, err := strategy.Select(context.Background(), candidates, Requirements{Count: 1})
	require.NoError(t, err)
	require.Len(t, selected, 1)
}

func idsOf(uavs []*models.UAV) []string {
	ids := make([]string, len(uavs))
	for i, u := range uavs {
		ids[i] = u.ID
	}
	return ids
}
