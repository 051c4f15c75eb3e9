// Package permutation implements the three permutation-tracking
// variants named in spec §4.4 — Simple, MultiLevel and NonUnique — that
// let a caller replay, on a side channel, the same reshuffling a sort
// applied to the strings themselves. This is what lets
// SpaceEfficientSort sort lightweight index permutations instead of
// full strings and then apply the result to the real data in one pass.
package permutation

import (
	"context"
	"fmt"

	"github.com/pmehnert/distributed-string-sorting/pkg/comm"
)

// Permutation maps each output position back to the (PE, local index)
// the string at that position originated from.
type Permutation interface {
	// Len is the number of entries this PE currently holds.
	Len() int

	// Apply fills out[i] with the (PE, index) pair the i-th locally
	// held output position came from, for every i in [0,Len()).
	Apply(out []Origin)
}

// Origin identifies one input string by its originating PE and that
// PE's local (pre-sort) index.
type Origin struct {
	PE    int
	Index int64
}

// Simple records one origin per local output position directly — the
// base case used by a single-level sort, or by the last level of a
// recursive one.
type Simple struct {
	Origins []Origin
}

func (s *Simple) Len() int { return len(s.Origins) }

func (s *Simple) Apply(out []Origin) {
	copy(out, s.Origins)
}

// NewSimple builds a Simple permutation recording origin[i] for every
// local output position i, exactly as produced by a local sort that
// carries (PE,Index) metadata on every View (§4.4).
func NewSimple(origins []Origin) *Simple { return &Simple{Origins: origins} }

// RemotePermutation is one level's contribution for a MultiLevel
// permutation: the finer-grained sub-permutation a single redistribute
// step produced, expressed as indices into the PREVIOUS level's local
// positions (§4.4 "multi-level: one array of ranks and counts per
// level, composed outermost-first").
type RemotePermutation struct {
	// PrevIndex[i] is the index, into the previous level's local
	// output, that the i-th string at this level came from.
	PrevIndex []int
}

// MultiLevel composes a chain of RemotePermutations — one per
// hierarchy level — on top of a base Simple permutation whose positions
// are the ones the first (coarsest) level's PrevIndex refers to
// (§4.4 "MultiLevelPermutation"). With no levels, the base alone maps
// every local output position to its origin. Apply resolves the chain
// locally without communication, so every PrevIndex must refer to
// positions held on this same PE.
type MultiLevel struct {
	Base   *Simple
	Levels []RemotePermutation // outermost (coarsest) level first
}

func (m *MultiLevel) Len() int {
	if len(m.Levels) == 0 {
		return m.Base.Len()
	}
	return len(m.Levels[len(m.Levels)-1].PrevIndex)
}

// Apply walks the composed permutation from the finest level back down
// to the base Simple permutation, resolving each output position to
// its ultimate (PE,Index) origin.
func (m *MultiLevel) Apply(out []Origin) {
	n := m.Len()
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	for l := len(m.Levels) - 1; l >= 0; l-- {
		next := make([]int, n)
		for i, cur := range idx {
			next[i] = m.Levels[l].PrevIndex[cur]
		}
		idx = next
	}
	base := make([]Origin, m.Base.Len())
	m.Base.Apply(base)
	for i, cur := range idx {
		out[i] = base[cur]
	}
}

// NonUnique tracks a permutation whose entries may repeat because the
// input contains duplicate strings redistributed independently of one
// another (§4.4 "NonUniquePermutation"). It stores the origins of the
// local output positions in order plus one GlobalOffset for this PE
// (see ComputeGlobalOffsets); the global rank of local position i is
// GlobalOffset + i. It keeps no per-position offsets.
type NonUnique struct {
	Origins      []Origin
	GlobalOffset int64 // this PE's exclusive prefix sum of counts before it
}

func (n *NonUnique) Len() int { return len(n.Origins) }

func (n *NonUnique) Apply(out []Origin) { copy(out, n.Origins) }

// ComputeGlobalOffsets runs the ExscanSingle named in §4.4 to turn each
// PE's local count into a global starting rank, letting NonUnique
// permutations be merged by absolute position rather than by a second
// communication round.
func ComputeGlobalOffsets(ctx context.Context, cm comm.Communicator, localCount int64) (int64, error) {
	return cm.ExscanSingle(ctx, localCount, func(a, b int64) int64 { return a + b })
}

// Validate reports an error if p's entries reference an origin index
// that could not possibly exist for the given per-PE input sizes — a
// precondition check consistent with §7's "assert and abort" model for
// a corrupted or mis-wired permutation.
func Validate(p Permutation, inputSizes map[int]int64) error {
	n := p.Len()
	origins := make([]Origin, n)
	p.Apply(origins)
	for i, o := range origins {
		size, ok := inputSizes[o.PE]
		if !ok {
			return fmt.Errorf("permutation: position %d references unknown PE %d", i, o.PE)
		}
		if o.Index < 0 || o.Index >= size {
			return fmt.Errorf("permutation: position %d references out-of-range index %d on PE %d (size %d)", i, o.Index, o.PE, size)
		}
	}
	return nil
}
