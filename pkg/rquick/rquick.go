// Package rquick implements RQuick, the robust distributed quicksort
// offered as an alternative global sorter to DistributedMergeSort
// (cmd/dsort's "-variant rquick"; pkg/dms and pkg/ses do not call it)
// (§4.3): a median-of-candidates pivot selection round followed by a partition
// and all-to-all exchange, iterated once per level of a sub-communicator
// hierarchy that halves (or k-ways-splits) the active group each round.
package rquick

import (
	"bytes"
	"context"
	"encoding/binary"
	"math/rand"
	"sort"

	"github.com/pmehnert/distributed-string-sorting/pkg/comm"
	"github.com/pmehnert/distributed-string-sorting/pkg/radix"
	"github.com/pmehnert/distributed-string-sorting/pkg/splitter"
	"github.com/pmehnert/distributed-string-sorting/pkg/strs"
)

// candidateSize is the fixed record length used for the Alltoall pivot
// round: a uint16 length prefix followed by up to 62 bytes of a
// candidate string, long enough to disambiguate almost any real
// splitter and short enough to keep the gather round cheap (§4.3 "pivot
// selection should cost O(1) rounds, not O(log P)").
const candidateSize = 64

// Sort runs RQuick over h: at each level, the PEs active in that
// level's CommExchange group jointly pick a pivot set, partition their
// local strings against it, and exchange the misplaced halves; the
// final level's result is locally radix-sorted to produce a fully
// ordered Container. It does not assume the hierarchy is binary — a
// level with NumGroups > 2 runs a one-shot k-way partition exactly like
// DistributedMergeSort's sampling step, reusing the same splitter
// policies (§9 Open Question: RQuick and DMS's partitioning share one
// implementation).
func Sort(ctx context.Context, c *strs.Container, h *comm.Hierarchy, seed int64) (*strs.Container, error) {
	cur := c
	for i, lvl := range h.Levels {
		next, err := partitionLevel(ctx, cur, lvl, seed+int64(i))
		if err != nil {
			return nil, err
		}
		cur = next
	}
	radix.Sort(cur, 0, 0)
	return cur, nil
}

func partitionLevel(ctx context.Context, c *strs.Container, lvl comm.Level, seed int64) (*strs.Container, error) {
	cm := lvl.CommExchange
	size := cm.Size()
	if lvl.NumGroups <= 1 || size <= 1 {
		return c, nil
	}

	// BinarySearchPartition and the local-median pivot candidate both
	// assume a locally sorted run.
	radix.Sort(c, 0, 0)

	splitters, err := pickSplitters(ctx, c, cm, lvl.NumGroups, seed)
	if err != nil {
		return nil, err
	}

	counts, err := splitter.BinarySearchPartition{}.ComputePartition(ctx, c, splitters)
	if err != nil {
		return nil, err
	}

	sendBuf, sendCounts, sendDispls := splitter.SpreadAndEncode(c, counts, lvl.NumGroups, size)

	recv, recvCounts, recvDispls, err := cm.Alltoallv(ctx, sendBuf, sendCounts, sendDispls)
	if err != nil {
		return nil, err
	}

	parts := make([]*strs.Container, 0, size)
	for r := 0; r < size; r++ {
		if recvCounts[r] == 0 {
			continue
		}
		parts = append(parts, strs.DecodeViews(recv[recvDispls[r]:recvDispls[r]+recvCounts[r]]))
	}
	return strs.Concat(parts...), nil
}

// pickSplitters gathers one candidate string per PE in cm (its local
// median) via a fixed-size Alltoall, then has every PE independently
// sort the full candidate set and pick numGroups-1 evenly spaced
// splitters — deterministic and identical on every PE without a second
// broadcast round. This is a flat-gather approximation of §4.3's
// hypercube ctz-indexed binary-tree reduction (see DESIGN.md); it keeps
// that algorithm's randomized tie-break on seed, applied locally here to
// which member of a run of equal candidates lands on a quantile cut,
// rather than to which half of an odd overlap a round keeps.
func pickSplitters(ctx context.Context, c *strs.Container, cm comm.Communicator, numGroups int, seed int64) ([][]byte, error) {
	size := cm.Size()
	mine := localMedian(c)

	send := make([]byte, size*candidateSize)
	rec := encodeCandidate(mine)
	for i := 0; i < size; i++ {
		copy(send[i*candidateSize:(i+1)*candidateSize], rec)
	}

	recv, err := cm.Alltoall(ctx, send, candidateSize)
	if err != nil {
		return nil, err
	}

	candidates := make([][]byte, size)
	for i := 0; i < size; i++ {
		candidates[i] = decodeCandidate(recv[i*candidateSize : (i+1)*candidateSize])
	}
	sort.Slice(candidates, func(i, j int) bool { return bytes.Compare(candidates[i], candidates[j]) < 0 })

	if numGroups > len(candidates) {
		numGroups = len(candidates)
	}
	if numGroups <= 1 {
		return nil, nil
	}

	rng := rand.New(rand.NewSource(seed))
	splitters := make([][]byte, numGroups-1)
	for i := range splitters {
		idx := (i + 1) * len(candidates) / numGroups
		if idx >= len(candidates) {
			idx = len(candidates) - 1
		}

		// When the cut lands inside a run of equal candidates, break the
		// tie with the seeded PRNG instead of always keeping the same
		// boundary copy, so repeated runs agree given a fixed seed but the
		// choice isn't an artifact of gather order.
		lo, hi := idx, idx
		for lo > 0 && bytes.Equal(candidates[lo-1], candidates[idx]) {
			lo--
		}
		for hi+1 < len(candidates) && bytes.Equal(candidates[hi+1], candidates[idx]) {
			hi++
		}
		if hi > lo {
			idx = lo + rng.Intn(hi-lo+1)
		}
		splitters[i] = candidates[idx]
	}
	return splitters, nil
}

func localMedian(c *strs.Container) []byte {
	if c.Len() == 0 {
		return nil
	}
	return c.BytesAt(c.Len() / 2)
}

func encodeCandidate(s []byte) []byte {
	buf := make([]byte, candidateSize)
	n := len(s)
	if n > candidateSize-2 {
		n = candidateSize - 2
	}
	binary.LittleEndian.PutUint16(buf[0:2], uint16(n))
	copy(buf[2:2+n], s[:n])
	return buf
}

func decodeCandidate(buf []byte) []byte {
	n := int(binary.LittleEndian.Uint16(buf[0:2]))
	return append([]byte(nil), buf[2:2+n]...)
}
