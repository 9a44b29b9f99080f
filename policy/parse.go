package policy

import (
	"errors"
	"strings"

	"github.com/dcsim/simcore/simrand"
)

// ErrUnknownPolicy is returned by ParseSchedulerName for a name that
// matches neither a known sort nor a known select algorithm.
var ErrUnknownPolicy = errors.New("policy: unknown scheduler name")

// ParseSchedulerName constructs a (Sorter, Selector) pair from a scheduler
// name of the form "SORT-SELECT" (e.g. "SRTF-BESTFIT"), or one of the
// bare names that name both stages at once (HEFT, CPOP, FCP, DS), per
// spec.md §9's "construction is by string name" design note. seed drives
// every seeded policy named by the string, via simrand.New/simrand.Derive
// so the sort stage and the select stage each get their own reproducible
// stream rather than sharing one *rand.Rand's call order; each call
// returns freshly constructed policy values with their own independent
// memo state (spec.md §4.G).
func ParseSchedulerName(name string, seed int64) (Sorter, Selector, error) {
	switch strings.ToUpper(name) {
	case "HEFT":
		return HEFTSort{}, HEFTSelect{}, nil
	case "CPOP":
		return CPOPSort{}, CPOPSelect{}, nil
	case "FCP":
		return FCP{}, FirstFit{}, nil
	case "DS":
		return &DS{}, FirstFit{}, nil
	}

	sortName, selectName, ok := strings.Cut(strings.ToUpper(name), "-")
	if !ok {
		return nil, nil, ErrUnknownPolicy
	}

	sorter, err := parseSorter(sortName, seed)
	if err != nil {
		return nil, nil, err
	}
	selector, err := parseSelector(selectName, seed)
	if err != nil {
		return nil, nil, err
	}
	return sorter, selector, nil
}

func parseSorter(name string, seed int64) (Sorter, error) {
	switch name {
	case "FIFO":
		return FIFO{}, nil
	case "SRTF":
		return SRTF{}, nil
	case "RANDOM":
		return &RandomSort{Rng: simrand.New(simrand.Derive(seed, "sort"))}, nil
	case "HEFT":
		return HEFTSort{}, nil
	case "CPOP":
		return CPOPSort{}, nil
	case "PISA":
		return &PISA{}, nil
	case "FCP":
		return FCP{}, nil
	case "DS":
		return &DS{}, nil
	default:
		return nil, ErrUnknownPolicy
	}
}

func parseSelector(name string, seed int64) (Selector, error) {
	switch name {
	case "FIRSTFIT":
		return FirstFit{}, nil
	case "BESTFIT":
		return BestFit{}, nil
	case "WORSTFIT":
		return WorstFit{}, nil
	case "RANDOM":
		return &RandomSelect{Rng: simrand.New(simrand.Derive(seed, "select"))}, nil
	case "ROUNDROBIN":
		return &RoundRobin{}, nil
	case "HEFT":
		return HEFTSelect{}, nil
	case "CPOP":
		return CPOPSelect{}, nil
	case "LOTTERY":
		return &Lottery{Rng: simrand.New(simrand.Derive(seed, "select"))}, nil
	default:
		return nil, ErrUnknownPolicy
	}
}
