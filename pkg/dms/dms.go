// Package dms implements DistributedMergeSort, the top-level driver
// named in §6: per level of a comm.Hierarchy, every PE locally sorts,
// samples splitters, partitions against the group's agreed splitters,
// redistributes via an all-to-all exchange, and merges what it
// receives with the LCP-aware loser tree — repeating from the coarsest
// level down to the finest, where the final local merge yields the
// globally sorted, LCP-annotated result (§3 "Sub-communicator level").
package dms

import (
	"context"
	"strconv"

	"github.com/pmehnert/distributed-string-sorting/pkg/comm"
	"github.com/pmehnert/distributed-string-sorting/pkg/losertree"
	"github.com/pmehnert/distributed-string-sorting/pkg/permutation"
	"github.com/pmehnert/distributed-string-sorting/pkg/radix"
	"github.com/pmehnert/distributed-string-sorting/pkg/splitter"
	"github.com/pmehnert/distributed-string-sorting/pkg/strs"
	"github.com/pmehnert/distributed-string-sorting/pkg/telemetry"
)

// Options configures one DistributedMergeSort run.
type Options struct {
	Sampler        splitter.SamplePolicy
	Partitioner    splitter.PartitionPolicy
	Redistributor  splitter.RedistributionPolicy
	MaxSplitterLen int

	// CompressPrefixes, when set, has ExchangeLevel ship each
	// destination's Alltoallv chunk in the compressed-prefix wire format
	// (strs.EncodeViewsCompressed) instead of the plain one, trading a
	// decode-time reconstruction pass for a smaller payload whenever the
	// locally sorted run shares long prefixes (§4.2 "compressed-prefix
	// mode", §6 config "compressPrefixes"). The merged result is
	// identical either way (§9 testable property 6).
	CompressPrefixes bool

	// TrackPermutation, when set, has Sort also return a permutation
	// recording the (PE,Index) origin of every output position.
	TrackPermutation bool

	Sink telemetry.Sink
}

// DefaultOptions wires the repository's own reference splitter,
// partition and redistribution policies.
func DefaultOptions() Options {
	return Options{
		Sampler:        splitter.ReservoirSample{},
		Partitioner:    splitter.BinarySearchPartition{},
		Redistributor:  splitter.Naive{},
		MaxSplitterLen: 0,
		Sink:           telemetry.NoOp{},
	}
}

// Sort runs DistributedMergeSort over h and returns the fully sorted,
// LCP-annotated local result plus (if requested) the permutation that
// explains where each output position came from.
func Sort(ctx context.Context, c *strs.Container, h *comm.Hierarchy, opts Options) (*strs.Container, *permutation.MultiLevel, error) {
	sink := telemetry.Safe(opts.Sink)
	cur := c
	var levels []permutation.RemotePermutation

	for li, lvl := range h.Levels {
		radix.Sort(cur, 0, 0)

		if lvl.NumGroups > 1 && lvl.CommExchange.Size() > 1 {
			next, remote, err := ExchangeLevel(ctx, cur, lvl, opts)
			if err != nil {
				return nil, nil, err
			}
			cur = next
			levelLabel := strconv.Itoa(li)
			sink.Count("dms.level.exchanged", levelLabel)
			sink.Observe("dms.level.local_size", float64(cur.Len()), levelLabel)
			if opts.TrackPermutation {
				levels = append(levels, remote)
			}
		}
	}

	radix.Sort(cur, 0, 0)
	cur.LCPs = strs.RecomputeLCPs(cur)

	if !opts.TrackPermutation {
		return cur, nil, nil
	}

	base := basePermutation(cur)
	perm := &permutation.MultiLevel{Base: base, Levels: levels}
	return cur, perm, nil
}

// ExchangeLevel performs one level's sample -> partition -> redistribute
// -> merge cycle and always records the RemotePermutation
// mapping each merged output position back to its position in the
// pre-merge received data (the level's PrevIndex array).
func ExchangeLevel(ctx context.Context, c *strs.Container, lvl comm.Level, opts Options) (*strs.Container, permutation.RemotePermutation, error) {
	cm := lvl.CommExchange

	local, err := opts.Sampler.SampleSplitters(ctx, c, lvl.NumGroups, opts.MaxSplitterLen)
	if err != nil {
		return nil, permutation.RemotePermutation{}, err
	}
	splitters, err := splitter.GatherAndPick(ctx, cm, local, lvl.NumGroups)
	if err != nil {
		return nil, permutation.RemotePermutation{}, err
	}

	counts, err := opts.Partitioner.ComputePartition(ctx, c, splitters)
	if err != nil {
		return nil, permutation.RemotePermutation{}, err
	}
	if opts.Redistributor != nil {
		counts, err = opts.Redistributor.ComputeSendCounts(ctx, counts, lvl.NumGroups)
		if err != nil {
			return nil, permutation.RemotePermutation{}, err
		}
	}

	size := cm.Size()
	var sendBuf []byte
	var sendCounts, sendDispls []int
	if opts.CompressPrefixes {
		sendBuf, sendCounts, sendDispls = splitter.SpreadAndEncodeCompressed(c, counts, lvl.NumGroups, size)
	} else {
		sendBuf, sendCounts, sendDispls = splitter.SpreadAndEncode(c, counts, lvl.NumGroups, size)
	}
	recv, recvCounts, recvDispls, err := cm.Alltoallv(ctx, sendBuf, sendCounts, sendDispls)
	if err != nil {
		return nil, permutation.RemotePermutation{}, err
	}

	streams := make([]*losertree.Stream, 0, size)
	for r := 0; r < size; r++ {
		if recvCounts[r] == 0 {
			continue
		}
		chunk := recv[recvDispls[r] : recvDispls[r]+recvCounts[r]]
		var part *strs.Container
		if opts.CompressPrefixes {
			part = strs.DecodeViewsCompressed(chunk)
		} else {
			part = strs.DecodeViews(chunk)
			part.LCPs = strs.RecomputeLCPs(part)
		}
		streams = append(streams, &losertree.Stream{C: part, LCPs: part.LCPs, Pos: 0, End: part.Len()})
	}
	if len(streams) == 0 {
		return &strs.Container{}, permutation.RemotePermutation{}, nil
	}

	merged := losertree.MergeAll(streams, 0)

	prevIndex, err := prevIndexOf(merged, streams)
	if err != nil {
		return nil, permutation.RemotePermutation{}, err
	}
	return merged, permutation.RemotePermutation{PrevIndex: prevIndex}, nil
}

// prevIndexOf recovers, for each view in merged (which losertree.MergeAll
// built by copying views from streams in order), the flattened
// pre-merge index it came from, so MultiLevel.Apply can walk the
// permutation chain without re-running the merge.
func prevIndexOf(merged *strs.Container, streams []*losertree.Stream) ([]int, error) {
	// Every view merged carries its own (PE,Index); rebuild a lookup
	// from (PE,Index) to its flattened position across the concatenated
	// pre-merge streams.
	type key struct {
		pe  int
		idx int64
	}
	lookup := make(map[key]int, merged.Len())
	flat := 0
	for _, s := range streams {
		for i := 0; i < s.C.Len(); i++ {
			v := s.C.Views[i]
			lookup[key{v.PE, v.Index}] = flat
			flat++
		}
	}

	out := make([]int, merged.Len())
	for i, v := range merged.Views {
		out[i] = lookup[key{v.PE, v.Index}]
	}
	return out, nil
}

// basePermutation records the (PE,Index) origin of every locally held
// view after the finest level's merge — the Simple permutation a
// MultiLevel chain composes on top of.
func basePermutation(c *strs.Container) *permutation.Simple {
	origins := make([]permutation.Origin, c.Len())
	for i, v := range c.Views {
		origins[i] = permutation.Origin{PE: v.PE, Index: v.Index}
	}
	return permutation.NewSimple(origins)
}
