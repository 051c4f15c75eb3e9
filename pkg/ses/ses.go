// Package ses implements SpaceEfficientSort (§4.5): instead of
// recursively redistributing every byte of every string through the
// whole comm.Hierarchy at once, it carves the local input into
// quantile-sized batches, runs each batch through one value-partitioned
// exchange (reusing DistributedMergeSort's single-level primitive) on the
// hierarchy's top-level communicator only — the finer levels are not
// used — and concatenates the resulting fragment
// permutations — bounding the peak amount of string data any one PE
// ever holds mid-sort to roughly one quantile instead of its whole
// local share.
package ses

import (
	"context"
	"encoding/binary"

	"github.com/pmehnert/distributed-string-sorting/pkg/comm"
	"github.com/pmehnert/distributed-string-sorting/pkg/dms"
	"github.com/pmehnert/distributed-string-sorting/pkg/permutation"
	"github.com/pmehnert/distributed-string-sorting/pkg/radix"
	"github.com/pmehnert/distributed-string-sorting/pkg/strs"
)

// Options configures one SpaceEfficientSort run.
type Options struct {
	QuantileSize int // target number of strings per quantile batch
	DMS          dms.Options
}

// DefaultOptions mirrors dms.DefaultOptions with a 100k-string quantile,
// the config surface's default (§6 config "quantileSize").
func DefaultOptions() Options {
	return Options{QuantileSize: 100_000, DMS: dms.DefaultOptions()}
}

// Sort builds an indexed container from the caller's local strings,
// tagging every view with (pe, its pre-sort local index), then sorts it
// quantile by quantile. Each quantile's cross-PE exchange still moves
// real bytes — ExchangeLevel's Alltoallv and the loser-tree merge both
// need them to determine order — but that cost never exceeds one
// quantile's worth, and Sort discards the bytes the instant a quantile's
// merge finishes, keeping only the (PE,Index) origin of every resulting
// position. It never re-assembles the real sorted bytes of the whole
// local share (that would erase the memory bound the whole point of
// quantile batching is to establish); it returns only the permutation
// describing where every final local position originated, for the
// caller to apply against the original strings elsewhere (§4.5).
func Sort(ctx context.Context, localStrings [][]byte, pe int, h *comm.Hierarchy, opts Options) (*permutation.MultiLevel, error) {
	c := strs.NewIndexedContainer(localStrings, pe, 0)

	top := h.Levels[0].CommExchange
	numQuantiles, err := quantileCount(ctx, top, c.Len(), opts.QuantileSize)
	if err != nil {
		return nil, err
	}

	fragmentPerms := make([]*permutation.MultiLevel, 0, numQuantiles)

	quantileStart := 0
	for qi := 0; qi < numQuantiles; qi++ {
		quantileEnd := quantileStart
		if quantileStart < c.Len() {
			quantileEnd = quantileStart + opts.QuantileSize
			if quantileEnd > c.Len() {
				quantileEnd = c.Len()
			}
		}
		batch := strs.Slice(c, quantileStart, quantileEnd)
		quantileStart = quantileEnd
		radix.Sort(batch, 0, 0)

		merged, remote, err := dms.ExchangeLevel(ctx, batch, comm.Level{CommExchange: top, NumGroups: numQuantiles}, opts.DMS)
		if err != nil {
			return nil, err
		}

		// Reduce merged to the index-only tokens this quantile contributes
		// to the final permutation — zero owned bytes, only PE/Index — and
		// let merged's real byte buffer go out of scope here rather than
		// carrying it forward to the next iteration or the final result.
		base := make([]permutation.Origin, merged.Len())
		for i, v := range merged.Views {
			base[i] = permutation.Origin{PE: v.PE, Index: v.Index}
		}
		fragmentPerms = append(fragmentPerms, &permutation.MultiLevel{
			Base:   permutation.NewSimple(base),
			Levels: []permutation.RemotePermutation{remote},
		})
	}

	return concatPermutations(fragmentPerms), nil
}

// quantileCount computes how many quantile batches every PE in cm must
// iterate: the global input size divided (rounded up) by quantileSize,
// gathered via a fixed-size Alltoall so every PE agrees on the same
// loop count even though their local sizes differ (§5 "every PE calls
// the same sequence of collectives").
func quantileCount(ctx context.Context, cm comm.Communicator, localLen, quantileSize int) (int, error) {
	size := cm.Size()
	send := make([]byte, size*8)
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(localLen))
	for i := 0; i < size; i++ {
		copy(send[i*8:(i+1)*8], buf[:])
	}
	recv, err := cm.Alltoall(ctx, send, 8)
	if err != nil {
		return 0, err
	}
	total := int64(0)
	for i := 0; i < size; i++ {
		total += int64(binary.LittleEndian.Uint64(recv[i*8 : (i+1)*8]))
	}
	if quantileSize <= 0 {
		quantileSize = 1
	}
	n := int((total + int64(quantileSize) - 1) / int64(quantileSize))
	if n < 1 {
		n = 1
	}
	return n, nil
}

// concatPermutations stitches together one MultiLevel permutation per
// quantile fragment into a single Simple permutation over the final
// concatenated result (fragment order is preserved by Sort, so no
// further index translation is required between fragments).
func concatPermutations(fragments []*permutation.MultiLevel) *permutation.MultiLevel {
	var origins []permutation.Origin
	for _, f := range fragments {
		out := make([]permutation.Origin, f.Len())
		f.Apply(out)
		origins = append(origins, out...)
	}
	return &permutation.MultiLevel{Base: permutation.NewSimple(origins)}
}
