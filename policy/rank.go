package policy

import "github.com/dcsim/simcore/simtask"

// rankCalculator computes HEFT/CPOP upward and downward ranks over a
// fixed Context, memoizing both within one invocation of a Sort call
// (spec.md §9: CPOP's downwardRank "does not memoize and is exponential
// in DAG depth; implementations should memoize but must produce the same
// numeric result"). It is never retained across ticks: machine speeds may
// change between Schedule ticks, so ranks are recomputed fresh every time.
type rankCalculator struct {
	avgSpeed    float64
	avgEthernet float64

	upward   map[simtask.ID]float64
	downward map[simtask.ID]float64
}

func newRankCalculator(machines []MachineView) *rankCalculator {
	rc := &rankCalculator{
		upward:   make(map[simtask.ID]float64),
		downward: make(map[simtask.ID]float64),
	}
	if len(machines) == 0 {
		return rc
	}
	var speedSum, ethernetSum float64
	for _, m := range machines {
		speedSum += float64(m.SpeedPerCore)
		ethernetSum += float64(m.EthernetSpeed)
	}
	rc.avgSpeed = speedSum / float64(len(machines))
	rc.avgEthernet = ethernetSum / float64(len(machines))
	return rc
}

// avgCompCost is the average execution time of t across the known
// machines: flops / average speed-per-core. Zero if there is no known
// machine speed.
func (rc *rankCalculator) avgCompCost(t *simtask.Task) float64 {
	if rc.avgSpeed <= 0 {
		return 0
	}
	return float64(t.Flops) / rc.avgSpeed
}

// avgCommCost is the average communication cost of delivering t's input
// to a consuming machine: dependent.outputSize / average ethernet speed.
// Per spec.md §9's documented literal interpretation, this is computed
// once (not per-machine), since the per-machine sum of an identical value
// divided by the machine count yields that same value.
func (rc *rankCalculator) avgCommCost(t *simtask.Task) float64 {
	if rc.avgEthernet <= 0 {
		return 0
	}
	return float64(t.OutputSize) / rc.avgEthernet
}

// upwardRank implements the GLOSSARY's HEFT upward rank:
// rank(t) = avgCompCost(t) + max_{s in dependents(t)} (avgCommCost(s) + rank(s)),
// with exit tasks (no dependents) scoring 0 for the max term.
func (rc *rankCalculator) upwardRank(t *simtask.Task) float64 {
	if v, ok := rc.upward[t.ID]; ok {
		return v
	}
	var best float64
	for _, s := range t.Dependents() {
		if v := rc.avgCommCost(s) + rc.upwardRank(s); v > best {
			best = v
		}
	}
	v := rc.avgCompCost(t) + best
	rc.upward[t.ID] = v
	return v
}

// downwardRank(t) = max_{p in dependencies(t)} (downwardRank(p) +
// avgCompCost(p) + avgCommCost(t)), with entry tasks (no dependencies)
// scoring 0.
func (rc *rankCalculator) downwardRank(t *simtask.Task) float64 {
	if v, ok := rc.downward[t.ID]; ok {
		return v
	}
	var best float64
	for _, p := range t.Dependencies() {
		if v := rc.downwardRank(p) + rc.avgCompCost(p) + rc.avgCommCost(t); v > best {
			best = v
		}
	}
	rc.downward[t.ID] = best
	return best
}
