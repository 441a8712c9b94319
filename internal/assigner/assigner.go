// Package assigner implements C6: selecting which UAVs get assigned to a
// mission. Every algorithm is a Strategy, selected by configuration, the
// way the teacher's scheduler picks a SchedulingStrategy.
package assigner

import (
	"context"
	"fmt"
	"sort"

	"github.com/falconmind/clustercenter/pkg/clock"
	"github.com/falconmind/clustercenter/pkg/geo"
	"github.com/falconmind/clustercenter/pkg/models"
)

// Candidate is a UAV being considered for assignment, with its position
// flattened out for scoring and its current workload (fraction of
// capacity already committed, in [0,1]) carried alongside.
type Candidate struct {
	UAV      *models.UAV
	Position geo.Point
	Workload float64
}

// Requirements describes what a mission needs from the UAVs assigned to
// it; strategies that don't use a given field simply ignore it.
type Requirements struct {
	Target       geo.Point
	Count        int
	MinAltitudeM float64 // 0 means no altitude requirement
}

// Strategy selects UAVs from candidates to satisfy req. Implementations
// must be safe to call concurrently as long as they don't mutate shared
// state outside of what they're given.
type Strategy interface {
	Select(ctx context.Context, candidates []Candidate, req Requirements) ([]*models.UAV, error)
}

// ErrNoCandidates is returned when fewer eligible candidates exist than
// requested and the caller must decide to downgrade or fail (see mission
// dispatch policy).
type ErrNoCandidates struct {
	Requested int
	Available int
}

func (e *ErrNoCandidates) Error() string {
	return fmt.Sprintf("requested %d UAVs, only %d eligible", e.Requested, e.Available)
}

// eligible filters out candidates that can't meet req.MinAltitudeM.
func eligible(candidates []Candidate, req Requirements) []Candidate {
	if req.MinAltitudeM <= 0 {
		return candidates
	}
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.UAV.Capabilities.MaxAltitudeM >= req.MinAltitudeM {
			out = append(out, c)
		}
	}
	return out
}

func clampCount(count, available int) (int, error) {
	if available == 0 {
		return 0, &ErrNoCandidates{Requested: count, Available: available}
	}
	if count > available {
		return available, &ErrNoCandidates{Requested: count, Available: available}
	}
	return count, nil
}

// greedyScore implements §4.4's greedy formula: battery weighted more
// than altitude headroom, since altitude eligibility is already a hard
// filter by the time this runs.
func greedyScore(c Candidate, req Requirements) float64 {
	battery := c.UAV.Capabilities.BatteryRatio()
	altitudeFit := 1.0
	if req.MinAltitudeM > 0 {
		altitudeFit = c.UAV.Capabilities.MaxAltitudeM / req.MinAltitudeM
		if altitudeFit > 1 {
			altitudeFit = 1
		}
	}
	return 0.7*battery + 0.3*altitudeFit
}

// proximityScore folds distance-to-target and workload into one figure
// of merit for strategies that need a single scalar rather than a pure
// distance sort (genetic/PSO fitness).
func proximityScore(c Candidate, target geo.Point) float64 {
	dist := geo.HaversineMeters(c.Position, target)
	proximity := 1.0 / (1.0 + dist/50000.0)
	battery := c.UAV.Capabilities.BatteryRatio()
	return 0.6*battery + 0.4*proximity*(1-0.5*c.Workload)
}

// GreedyStrategy rejects UAVs whose max altitude can't meet the
// requirement, sorts the remainder by descending greedyScore, and takes
// the top `count`.
type GreedyStrategy struct{}

func (GreedyStrategy) Select(_ context.Context, candidates []Candidate, req Requirements) ([]*models.UAV, error) {
	pool := eligible(candidates, req)
	n, err := clampCount(req.Count, len(pool))
	sorted := make([]Candidate, len(pool))
	copy(sorted, pool)
	sort.Slice(sorted, func(i, j int) bool {
		return greedyScore(sorted[i], req) > greedyScore(sorted[j], req)
	})
	out := make([]*models.UAV, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, sorted[i].UAV)
	}
	return out, err
}

// ProximityStrategy picks the `count` eligible candidates nearest the
// target, the polygon centroid in the area-splitter's usage.
type ProximityStrategy struct{}

func (ProximityStrategy) Select(_ context.Context, candidates []Candidate, req Requirements) ([]*models.UAV, error) {
	pool := eligible(candidates, req)
	n, err := clampCount(req.Count, len(pool))
	sorted := make([]Candidate, len(pool))
	copy(sorted, pool)
	sort.Slice(sorted, func(i, j int) bool {
		return geo.HaversineMeters(sorted[i].Position, req.Target) < geo.HaversineMeters(sorted[j].Position, req.Target)
	})
	out := make([]*models.UAV, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, sorted[i].UAV)
	}
	return out, err
}

// GeneticStrategy searches the space of size-`count` subsets with a
// standard generational GA: tournament selection, single-point crossover
// with dedup repair, and point mutation. Fitness is the summed
// proximityScore of the chosen subset, restricted to eligible UAVs.
type GeneticStrategy struct {
	Clock          *clock.Clock
	Generations    int
	PopulationSize int
}

func (g GeneticStrategy) Select(_ context.Context, candidates []Candidate, req Requirements) ([]*models.UAV, error) {
	pool := eligible(candidates, req)
	n, clampErr := clampCount(req.Count, len(pool))
	if n == 0 {
		return nil, clampErr
	}
	if n == len(pool) {
		out := make([]*models.UAV, len(pool))
		for i, c := range pool {
			out[i] = c.UAV
		}
		return out, clampErr
	}

	c := g.Clock
	if c == nil {
		c = clock.New()
	}
	generations := g.Generations
	if generations <= 0 {
		generations = 100
	}
	popSize := g.PopulationSize
	if popSize <= 0 {
		popSize = 30
	}

	scores := make([]float64, len(pool))
	for i, cand := range pool {
		scores[i] = proximityScore(cand, req.Target)
	}

	newGenome := func() []int {
		perm := c.Perm(len(pool))
		return append([]int(nil), perm[:n]...)
	}

	fitness := func(genome []int) float64 {
		var total float64
		for _, idx := range genome {
			total += scores[idx]
		}
		return total
	}

	population := make([][]int, popSize)
	for i := range population {
		population[i] = newGenome()
	}

	tournament := func() []int {
		best := population[c.Intn(popSize)]
		for i := 0; i < 2; i++ {
			challenger := population[c.Intn(popSize)]
			if fitness(challenger) > fitness(best) {
				best = challenger
			}
		}
		return best
	}

	crossover := func(a, b []int) []int {
		if n < 2 {
			return append([]int(nil), a...)
		}
		point := 1 + c.Intn(n-1)
		child := make([]int, 0, n)
		seen := make(map[int]bool, n)
		for _, idx := range a[:point] {
			child = append(child, idx)
			seen[idx] = true
		}
		for _, idx := range b {
			if len(child) >= n {
				break
			}
			if !seen[idx] {
				child = append(child, idx)
				seen[idx] = true
			}
		}
		for _, idx := range a {
			if len(child) >= n {
				break
			}
			if !seen[idx] {
				child = append(child, idx)
				seen[idx] = true
			}
		}
		return child
	}

	mutate := func(genome []int) {
		if c.Float64() > 0.1 {
			return
		}
		pos := c.Intn(len(genome))
		replacement := c.Intn(len(pool))
		genome[pos] = replacement
	}

	for gen := 0; gen < generations; gen++ {
		next := make([][]int, 0, popSize)
		for len(next) < popSize {
			parentA := tournament()
			parentB := tournament()
			child := crossover(parentA, parentB)
			mutate(child)
			next = append(next, child)
		}
		population = next
	}

	best := population[0]
	bestFit := fitness(best)
	for _, genome := range population[1:] {
		if f := fitness(genome); f > bestFit {
			best, bestFit = genome, f
		}
	}

	out := make([]*models.UAV, n)
	for i, idx := range best {
		out[i] = pool[idx].UAV
	}
	return out, clampErr
}

// PSOStrategy treats each particle as a discrete index vector over
// distinct eligible candidates, moving toward personal-best and
// global-best positions each iteration via integer-rounded velocity.
type PSOStrategy struct {
	Clock      *clock.Clock
	Iterations int
	Particles  int
}

func (p PSOStrategy) Select(_ context.Context, candidates []Candidate, req Requirements) ([]*models.UAV, error) {
	pool := eligible(candidates, req)
	n, clampErr := clampCount(req.Count, len(pool))
	if n == 0 {
		return nil, clampErr
	}
	if n == len(pool) {
		out := make([]*models.UAV, len(pool))
		for i, c := range pool {
			out[i] = c.UAV
		}
		return out, clampErr
	}

	c := p.Clock
	if c == nil {
		c = clock.New()
	}
	iterations := p.Iterations
	if iterations <= 0 {
		iterations = 50
	}
	numParticles := p.Particles
	if numParticles <= 0 {
		numParticles = 20
	}

	scores := make([]float64, len(pool))
	for i, cand := range pool {
		scores[i] = proximityScore(cand, req.Target)
	}
	fitnessOf := func(position []int) float64 {
		var total float64
		for _, idx := range position {
			total += scores[idx]
		}
		return total
	}

	type particle struct {
		position []int
		velocity []float64
		best     []int
		bestFit  float64
	}

	newPosition := func() []int {
		perm := c.Perm(len(pool))
		return append([]int(nil), perm[:n]...)
	}

	particles := make([]particle, numParticles)
	var globalBest []int
	globalBestFit := -1.0
	for i := range particles {
		pos := newPosition()
		vel := make([]float64, n)
		fit := fitnessOf(pos)
		particles[i] = particle{position: pos, velocity: vel, best: append([]int(nil), pos...), bestFit: fit}
		if fit > globalBestFit {
			globalBestFit = fit
			globalBest = append([]int(nil), pos...)
		}
	}

	const inertia, cognitive, social = 0.5, 1.5, 1.5

	for iter := 0; iter < iterations; iter++ {
		for i := range particles {
			pt := &particles[i]
			for d := 0; d < n; d++ {
				r1, r2 := c.Float64(), c.Float64()
				// velocity update is a discrete "difference" between
				// indices normalised by the candidate count (§4.4).
				pt.velocity[d] = inertia*pt.velocity[d] +
					cognitive*r1*float64(pt.best[d]-pt.position[d])/float64(len(pool)) +
					social*r2*float64(globalBest[d]-pt.position[d])/float64(len(pool))

				newIdx := pt.position[d] + int(pt.velocity[d]*float64(len(pool)))
				if newIdx < 0 {
					newIdx = 0
				}
				if newIdx >= len(pool) {
					newIdx = len(pool) - 1
				}
				pt.position[d] = newIdx
			}
			dedupe(pt.position, len(pool))

			fit := fitnessOf(pt.position)
			if fit > pt.bestFit {
				pt.bestFit = fit
				pt.best = append([]int(nil), pt.position...)
			}
			if fit > globalBestFit {
				globalBestFit = fit
				globalBest = append([]int(nil), pt.position...)
			}
		}
	}

	out := make([]*models.UAV, n)
	for i, idx := range globalBest {
		out[i] = pool[idx].UAV
	}
	return out, clampErr
}

// dedupe repairs an index vector that collapsed onto duplicate indices by
// reassigning duplicates to the first unused index.
func dedupe(position []int, universe int) {
	seen := make(map[int]bool, len(position))
	used := make(map[int]bool, len(position))
	for _, idx := range position {
		used[idx] = true
	}
	unused := make([]int, 0, universe)
	for i := 0; i < universe; i++ {
		if !used[i] {
			unused = append(unused, i)
		}
	}
	u := 0
	for i, idx := range position {
		if seen[idx] {
			if u < len(unused) {
				position[i] = unused[u]
				u++
			}
		}
		seen[position[i]] = true
	}
}

// Objective is one axis of an NSGA-II-style multi-objective optimisation
// (§4.4), each with a relative weight that scales its value in the
// candidate's objective vector.
type Objective string

const (
	ObjectiveMinimizeCost     Objective = "minimize_cost"
	ObjectiveMaximizeBattery  Objective = "maximize_battery"
	ObjectiveMinimizeTime     Objective = "minimize_time"
	ObjectiveMaximizeCoverage Objective = "maximize_coverage"
)

// ObjectiveWeight pairs an objective with its relative importance.
type ObjectiveWeight struct {
	Objective Objective
	Weight    float64
}

// NSGA2Strategy performs non-dominated sorting over the configured
// objectives, evaluated per-candidate, then breaks ties within the first
// front by crowding distance and returns the `count` best.
type NSGA2Strategy struct {
	Objectives []ObjectiveWeight
}

// objectiveVector computes one minimization-oriented value per
// objective for a candidate (lower is always better, so maximize_*
// objectives are negated).
func (s NSGA2Strategy) objectiveVector(c Candidate, req Requirements) []float64 {
	objectives := s.Objectives
	if len(objectives) == 0 {
		objectives = []ObjectiveWeight{
			{ObjectiveMaximizeBattery, 1},
			{ObjectiveMinimizeTime, 1},
		}
	}
	vec := make([]float64, len(objectives))
	dist := geo.HaversineMeters(c.Position, req.Target)
	for i, ow := range objectives {
		switch ow.Objective {
		case ObjectiveMinimizeCost:
			vec[i] = c.Workload
		case ObjectiveMaximizeBattery:
			vec[i] = 1 - c.UAV.Capabilities.BatteryRatio()
		case ObjectiveMinimizeTime:
			vec[i] = dist
		case ObjectiveMaximizeCoverage:
			vec[i] = -c.UAV.Capabilities.MaxPayloadKG
		}
		vec[i] *= ow.Weight
	}
	return vec
}

func dominates(a, b []float64) bool {
	betterOnAny := false
	for i := range a {
		if a[i] > b[i] {
			return false
		}
		if a[i] < b[i] {
			betterOnAny = true
		}
	}
	return betterOnAny
}

func (s NSGA2Strategy) Select(_ context.Context, candidates []Candidate, req Requirements) ([]*models.UAV, error) {
	pool := eligible(candidates, req)
	n, clampErr := clampCount(req.Count, len(pool))
	if n == 0 {
		return nil, clampErr
	}

	vectors := make([][]float64, len(pool))
	for i, c := range pool {
		vectors[i] = s.objectiveVector(c, req)
	}

	dominatedCount := make([]int, len(pool))
	dominates_ := make([][]int, len(pool))
	var front []int
	for i := range pool {
		for j := range pool {
			if i == j {
				continue
			}
			if dominates(vectors[i], vectors[j]) {
				dominates_[i] = append(dominates_[i], j)
			} else if dominates(vectors[j], vectors[i]) {
				dominatedCount[i]++
			}
		}
		if dominatedCount[i] == 0 {
			front = append(front, i)
		}
	}

	if len(front) < n {
		// not enough in the first front: fall back to the full pool
		// ranked by total dominated-by count, ascending.
		rest := make([]int, 0, len(pool))
		inFront := make(map[int]bool, len(front))
		for _, idx := range front {
			inFront[idx] = true
		}
		for i := range pool {
			if !inFront[i] {
				rest = append(rest, i)
			}
		}
		sort.Slice(rest, func(i, j int) bool { return dominatedCount[rest[i]] < dominatedCount[rest[j]] })
		front = append(front, rest...)
	}

	crowding := crowdingDistance(front, vectors)
	sort.Slice(front, func(i, j int) bool { return crowding[front[i]] > crowding[front[j]] })

	if n > len(front) {
		n = len(front)
	}
	out := make([]*models.UAV, n)
	for i := 0; i < n; i++ {
		out[i] = pool[front[i]].UAV
	}
	return out, clampErr
}

// crowdingDistance assigns each front member a measure of how isolated
// it is in objective space; boundary points get +Inf so they're always
// preferred, preserving spread across the front.
func crowdingDistance(front []int, vectors [][]float64) map[int]float64 {
	dist := make(map[int]float64, len(front))
	for _, idx := range front {
		dist[idx] = 0
	}
	if len(front) == 0 {
		return dist
	}
	numObjectives := len(vectors[front[0]])
	for o := 0; o < numObjectives; o++ {
		sorted := append([]int(nil), front...)
		sort.Slice(sorted, func(i, j int) bool { return vectors[sorted[i]][o] < vectors[sorted[j]][o] })
		lo, hi := vectors[sorted[0]][o], vectors[sorted[len(sorted)-1]][o]
		dist[sorted[0]] = posInf
		dist[sorted[len(sorted)-1]] = posInf
		if hi == lo {
			continue
		}
		for i := 1; i < len(sorted)-1; i++ {
			dist[sorted[i]] += (vectors[sorted[i+1]][o] - vectors[sorted[i-1]][o]) / (hi - lo)
		}
	}
	return dist
}

const posInf = 1e18
