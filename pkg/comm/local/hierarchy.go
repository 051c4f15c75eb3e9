package local

import (
	"fmt"

	"github.com/pmehnert/distributed-string-sorting/pkg/comm"
)

// NewHierarchies builds an in-process sub-communicator hierarchy for
// size PEs, splitting into groups of the given sizes at each level
// (coarsest first), mirroring how a real deployment nests sub-
// communicators from the root communicator down to single-PE groups
// (§3 "Sub-communicator level"). It returns one *comm.Hierarchy per PE,
// holding that PE's own view of every level, exactly as each process in
// a real MPI job only ever holds its own communicator handles.
//
// groupSizes[i] is the number of sub-groups the level splits the
// current group into; the product of all groupSizes must equal size.
func NewHierarchies(size int, groupSizes []int) ([]*comm.Hierarchy, error) {
	product := 1
	for _, g := range groupSizes {
		product *= g
	}
	if product != size {
		return nil, fmt.Errorf("local: group sizes %v do not multiply to PE count %d", groupSizes, size)
	}

	out := make([]*comm.Hierarchy, size)
	for r := range out {
		out[r] = &comm.Hierarchy{}
	}

	// curSizes holds, for every PE's current group at this level, the
	// size of that group; curBase the group's starting global rank.
	curBase := []int{0}
	curSizes := []int{size}

	for _, numGroups := range groupSizes {
		// The exchange communicator for this level spans each current
		// (pre-split) group in full.
		exchangeGroups := make([]comm.Communicator, size)
		for gi, base := range curBase {
			s := curSizes[gi]
			members := NewGroup(s)
			for i := 0; i < s; i++ {
				exchangeGroups[base+i] = members[i]
			}
		}

		var nextBase, nextSizes []int
		origGroups := make([]comm.Communicator, size)
		for gi, base := range curBase {
			s := curSizes[gi]
			if s%numGroups != 0 {
				return nil, fmt.Errorf("local: group of size %d does not split evenly into %d sub-groups", s, numGroups)
			}
			sub := s / numGroups
			for g := 0; g < numGroups; g++ {
				subBase := base + g*sub
				members := NewGroup(sub)
				for i := 0; i < sub; i++ {
					origGroups[subBase+i] = members[i]
				}
				nextBase = append(nextBase, subBase)
				nextSizes = append(nextSizes, sub)
			}
		}

		for r := 0; r < size; r++ {
			out[r].Levels = append(out[r].Levels, comm.Level{
				CommExchange: exchangeGroups[r],
				CommOrig:     origGroups[r],
				NumGroups:    numGroups,
				GroupSize:    nextSizes[0],
			})
		}

		curBase, curSizes = nextBase, nextSizes
	}

	return out, nil
}
