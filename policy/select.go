package policy

import (
	"math/rand"

	"github.com/dcsim/simcore/simtask"
)

// FirstFit selects the first candidate machine, in filter order.
type FirstFit struct{}

func (FirstFit) Select(_ *simtask.Task, machines []MachineView, _ Context) (MachineView, bool) {
	if len(machines) == 0 {
		return MachineView{}, false
	}
	return machines[0], true
}

// BestFit selects the machine minimizing |availableCores - t.cores|.
type BestFit struct{}

func (BestFit) Select(t *simtask.Task, machines []MachineView, _ Context) (MachineView, bool) {
	return extremum(machines, func(m MachineView) float64 { return absInt(m.AvailableCores - t.Cores) }, false)
}

// WorstFit selects the machine maximizing |availableCores - t.cores|.
type WorstFit struct{}

func (WorstFit) Select(t *simtask.Task, machines []MachineView, _ Context) (MachineView, bool) {
	return extremum(machines, func(m MachineView) float64 { return absInt(m.AvailableCores - t.Cores) }, true)
}

// RandomSelect selects uniformly at random from the candidate set, via a
// seeded PRNG (spec.md §4.F).
type RandomSelect struct {
	Rng *rand.Rand
}

func (p *RandomSelect) Select(_ *simtask.Task, machines []MachineView, _ Context) (MachineView, bool) {
	if len(machines) == 0 {
		return MachineView{}, false
	}
	return machines[p.Rng.Intn(len(machines))], true
}

// RoundRobin advances a cursor over the candidate machine ids on every
// call, wrapping around (spec.md §4.F). cursor is the policy's own memo
// (spec.md §4.G) and is never reset between ticks.
type RoundRobin struct {
	cursor int
}

func (p *RoundRobin) Select(_ *simtask.Task, machines []MachineView, _ Context) (MachineView, bool) {
	if len(machines) == 0 {
		return MachineView{}, false
	}
	m := machines[p.cursor%len(machines)]
	p.cursor++
	return m, true
}

// heftScore is the scoring function shared by HEFT and CPOP selection
// (spec.md §4.F: "maximize ethernetSpeed/inputSize + (1-load)*speed").
func heftScore(t *simtask.Task, m MachineView) float64 {
	var commTerm float64
	if t.InputSize > 0 {
		commTerm = float64(m.EthernetSpeed) / float64(t.InputSize)
	}
	return commTerm + (1-m.Load)*float64(m.SpeedPerCore)
}

// HEFTSelect selects the machine maximizing heftScore.
type HEFTSelect struct{}

func (HEFTSelect) Select(t *simtask.Task, machines []MachineView, _ Context) (MachineView, bool) {
	return extremum(machines, func(m MachineView) float64 { return heftScore(t, m) }, true)
}

// CPOPSelect selects with the same scoring function as HEFT (spec.md
// §4.F: "machine score mirrors HEFT selection").
type CPOPSelect struct{}

func (CPOPSelect) Select(t *simtask.Task, machines []MachineView, _ Context) (MachineView, bool) {
	return extremum(machines, func(m MachineView) float64 { return heftScore(t, m) }, true)
}

// DefaultLotteryTickets is the number of tickets assigned to a machine
// the first time Lottery observes it.
const DefaultLotteryTickets = 100

// Lottery draws a weighted ticket at random and retries until the drawn
// ticket belongs to a machine present in the (already filtered) candidate
// set, per spec.md §4.F. tickets is the policy's own memo (spec.md §4.G):
// machines are assigned Tickets tickets (DefaultLotteryTickets when Tickets
// is not positive) the first time they are seen, and keep that weight for
// the lifetime of the policy value.
type Lottery struct {
	Rng     *rand.Rand
	Tickets int

	tickets map[MachineID]int
	order   []MachineID
}

func (p *Lottery) Select(_ *simtask.Task, machines []MachineView, _ Context) (MachineView, bool) {
	if len(machines) == 0 {
		return MachineView{}, false
	}
	weight := p.Tickets
	if weight <= 0 {
		weight = DefaultLotteryTickets
	}
	if p.tickets == nil {
		p.tickets = make(map[MachineID]int)
	}

	byID := make(map[MachineID]MachineView, len(machines))
	for _, m := range machines {
		byID[m.ID] = m
		if _, ok := p.tickets[m.ID]; !ok {
			p.tickets[m.ID] = weight
			p.order = append(p.order, m.ID)
		}
	}

	// Retry the draw until the winning ticket lands on a machine that is
	// actually in this call's candidate set (spec.md §4.F "weighted
	// ticket draw with retries until a ticket belongs to an eligible
	// machine").
	for attempts := 0; attempts < 10000; attempts++ {
		id := p.draw()
		if m, ok := byID[id]; ok {
			return m, true
		}
	}
	// Pathological: every known machine has been withdrawn from this
	// call's candidate set. Fall back to uniform choice rather than loop
	// forever.
	return machines[p.Rng.Intn(len(machines))], true
}

func (p *Lottery) draw() MachineID {
	var total int
	for _, id := range p.order {
		total += p.tickets[id]
	}
	if total <= 0 {
		return ""
	}
	r := p.Rng.Intn(total)
	for _, id := range p.order {
		r -= p.tickets[id]
		if r < 0 {
			return id
		}
	}
	return p.order[len(p.order)-1]
}

func absInt(v int) float64 {
	if v < 0 {
		return float64(-v)
	}
	return float64(v)
}

func extremum(machines []MachineView, score func(MachineView) float64, max bool) (MachineView, bool) {
	if len(machines) == 0 {
		return MachineView{}, false
	}
	best := machines[0]
	bestScore := score(best)
	for _, m := range machines[1:] {
		s := score(m)
		if (max && s > bestScore) || (!max && s < bestScore) {
			best, bestScore = m, s
		}
	}
	return best, true
}
