// Package splitter defines the sample/partition/redistribution policy
// interfaces consumed by DMS and RQuick (§6) and provides one concrete
// default implementation of each, since spec §1 excludes "the
// hash/sample splitter-generation policies" themselves from the core
// but the repository still needs a runnable instance behind each named
// interface.
package splitter

import (
	"bytes"
	"context"
	"sort"

	"github.com/pmehnert/distributed-string-sorting/pkg/comm"
	"github.com/pmehnert/distributed-string-sorting/pkg/strs"
)

// SamplePolicy produces splitter candidates from a local sorted run.
type SamplePolicy interface {
	SampleSplitters(ctx context.Context, c *strs.Container, k int, maxSplitterLen int) ([][]byte, error)
}

// PartitionPolicy computes, for a local sorted run, how many strings
// belong to each of k target groups defined by splitters.
type PartitionPolicy interface {
	ComputePartition(ctx context.Context, c *strs.Container, splitters [][]byte) ([]int, error)
}

// RedistributionPolicy computes per-destination send counts given the
// interval sizes produced by a PartitionPolicy, allowing a level to
// apply e.g. an equal-split or sequence strategy on top of the raw
// partition counts (§6 Config surface "redistribution strategies").
type RedistributionPolicy interface {
	ComputeSendCounts(ctx context.Context, intervalSizes []int, numGroups int) ([]int, error)
}

// ReservoirSample picks every (n/k)-th string of the local sorted run
// as a splitter candidate, truncated to maxSplitterLen bytes — a
// simple, deterministic stand-in for a real sampling policy.
type ReservoirSample struct{}

func (ReservoirSample) SampleSplitters(_ context.Context, c *strs.Container, k int, maxSplitterLen int) ([][]byte, error) {
	n := c.Len()
	if k <= 0 || n == 0 {
		return nil, nil
	}
	step := n / k
	if step == 0 {
		step = 1
	}
	out := make([][]byte, 0, k)
	for i := step - 1; i < n && len(out) < k-1; i += step {
		s := c.BytesAt(i)
		if maxSplitterLen > 0 && len(s) > maxSplitterLen {
			s = s[:maxSplitterLen]
		}
		out = append(out, append([]byte(nil), s...))
	}
	return out, nil
}

// BinarySearchPartition computes send counts by binary-searching the
// local sorted run against each splitter boundary (§4.2 step 2). It
// compares bytes only: every string equal to a splitter goes to the
// group that starts at that splitter, and (PE,Index) origins are not
// consulted, so equal strings are never split across groups.
type BinarySearchPartition struct{}

func (BinarySearchPartition) ComputePartition(_ context.Context, c *strs.Container, splitters [][]byte) ([]int, error) {
	numGroups := len(splitters) + 1
	counts := make([]int, numGroups)
	n := c.Len()

	// boundary[g] = number of local strings strictly less than
	// splitters[g] (the end of group g's interval, start of g+1's).
	boundary := make([]int, len(splitters)+1)
	boundary[len(splitters)] = n
	for g, sp := range splitters {
		boundary[g] = sort.Search(n, func(i int) bool {
			return bytes.Compare(c.BytesAt(i), sp) >= 0
		})
	}

	prev := 0
	for g := 0; g < numGroups; g++ {
		end := n
		if g < len(splitters) {
			end = boundary[g]
		}
		if end < prev {
			end = prev
		}
		counts[g] = end - prev
		prev = end
	}
	return counts, nil
}

// ComputePartitionWithSample implements the two-argument overload the
// spec's Open Question asks for (§9): SES's quantile computation needs
// to reuse a sample the caller already gathered instead of drawing a
// fresh one, so this treats `sample` as pre-computed splitters.
func (b BinarySearchPartition) ComputePartitionWithSample(ctx context.Context, c *strs.Container, sample [][]byte, numGroups int) ([]int, error) {
	if len(sample) != numGroups-1 {
		// The sample must already be exactly the splitters needed for
		// numGroups intervals; anything else is a caller precondition
		// violation (§7).
		panic("splitter: ComputePartitionWithSample: sample size does not match numGroups-1")
	}
	return b.ComputePartition(ctx, c, sample)
}

// EqualSplit is the "equalSplit" redistribution strategy named in the
// config surface (§6). It returns intervalSizes unchanged, exactly like
// Naive; spreading each group's strings evenly across that group's
// ranks is done by SpreadAndEncode for every strategy.
type EqualSplit struct{}

func (EqualSplit) ComputeSendCounts(_ context.Context, intervalSizes []int, numGroups int) ([]int, error) {
	out := make([]int, len(intervalSizes))
	copy(out, intervalSizes)
	return out, nil
}

// Naive passes interval sizes through unchanged — the default
// ("naive") redistribution strategy.
type Naive struct{}

func (Naive) ComputeSendCounts(_ context.Context, intervalSizes []int, _ int) ([]int, error) {
	out := make([]int, len(intervalSizes))
	copy(out, intervalSizes)
	return out, nil
}

// GatherAndPick runs the sampling half of §4.2 step 1 over cm: it
// exchanges every PE's local candidate set with every other PE (via an
// Alltoallv that sends the same encoded set to every destination, an
// Allgather emulated on top of the Communicator's narrower primitive
// set) and has every PE independently sort the union and pick
// numGroups-1 evenly spaced splitters, so no separate broadcast round
// is needed to agree on the result.
func GatherAndPick(ctx context.Context, cm comm.Communicator, local [][]byte, numGroups int) ([][]byte, error) {
	size := cm.Size()
	candContainer := strs.NewContainer(local)
	buf := strs.EncodeViews(candContainer, 0, candContainer.Len())

	sendCounts := make([]int, size)
	sendDispls := make([]int, size)
	send := make([]byte, 0, len(buf)*size)
	for r := 0; r < size; r++ {
		sendCounts[r] = len(buf)
		sendDispls[r] = len(send)
		send = append(send, buf...)
	}

	recv, recvCounts, recvDispls, err := cm.Alltoallv(ctx, send, sendCounts, sendDispls)
	if err != nil {
		return nil, err
	}

	var all [][]byte
	for r := 0; r < size; r++ {
		if recvCounts[r] == 0 {
			continue
		}
		part := strs.DecodeViews(recv[recvDispls[r] : recvDispls[r]+recvCounts[r]])
		for i := 0; i < part.Len(); i++ {
			all = append(all, append([]byte(nil), part.BytesAt(i)...))
		}
	}
	sort.Slice(all, func(i, j int) bool { return bytes.Compare(all[i], all[j]) < 0 })

	if numGroups > len(all)+1 {
		numGroups = len(all) + 1
	}
	if numGroups <= 1 || len(all) == 0 {
		return nil, nil
	}
	splitters := make([][]byte, numGroups-1)
	for i := range splitters {
		idx := (i + 1) * len(all) / numGroups
		if idx >= len(all) {
			idx = len(all) - 1
		}
		splitters[i] = all[idx]
	}
	return splitters, nil
}

// SpreadAndEncode assigns bucket g's views (the view-index range
// implied by counts) to destination ranks spread evenly across
// [0,destSize), encoding each destination rank's share with
// strs.EncodeViews — the common shape behind both DistributedMergeSort's
// and RQuick's redistribution step (§4.2, §4.3). It handles both
// directions of the destGroupCount:destSize ratio: when there are fewer
// buckets than ranks (the usual DMS/RQuick case), a single bucket's
// views fan out across several ranks; when there are more buckets than
// ranks (SpaceEfficientSort's quantile case, §4.5), several consecutive
// buckets fan into a single rank. Since the buckets already partition
// c's full (sorted) view range contiguously, both directions reduce to
// finding each rank's one contiguous slice of that range.
func SpreadAndEncode(c *strs.Container, counts []int, destGroupCount, destSize int) (send []byte, sendCounts, sendDispls []int) {
	return spreadAndEncode(c, counts, destGroupCount, destSize, strs.EncodeViews)
}

// SpreadAndEncodeCompressed is SpreadAndEncode's compressed-prefix
// counterpart (§4.2 "compressed-prefix mode"): each destination's chunk
// is encoded with strs.EncodeViewsCompressed instead of strs.EncodeViews,
// shrinking the Alltoallv payload when c's sorted run shares long
// prefixes. c.LCPs must be populated and aligned with c.Views.
func SpreadAndEncodeCompressed(c *strs.Container, counts []int, destGroupCount, destSize int) (send []byte, sendCounts, sendDispls []int) {
	return spreadAndEncode(c, counts, destGroupCount, destSize, strs.EncodeViewsCompressed)
}

func spreadAndEncode(c *strs.Container, counts []int, destGroupCount, destSize int, encode func(*strs.Container, int, int) []byte) (send []byte, sendCounts, sendDispls []int) {
	bucketStart := make([]int, destGroupCount+1)
	for g := 0; g < destGroupCount; g++ {
		bucketStart[g+1] = bucketStart[g] + counts[g]
	}

	rankStart := make([]int, destSize)
	rankEnd := make([]int, destSize)
	touched := make([]bool, destSize)

	for g := 0; g < destGroupCount; g++ {
		lo := g * destSize / destGroupCount
		hi := (g + 1) * destSize / destGroupCount
		if hi <= lo {
			hi = lo + 1
		}
		if hi > destSize {
			hi = destSize
		}
		destCount := hi - lo
		bucketLo, bucketHi := bucketStart[g], bucketStart[g+1]
		total := bucketHi - bucketLo
		start := bucketLo
		for i := 0; i < destCount; i++ {
			share := total / destCount
			if i < total%destCount {
				share++
			}
			r := lo + i
			if !touched[r] {
				rankStart[r] = start
				touched[r] = true
			}
			start += share
			rankEnd[r] = start
		}
	}

	sendCounts = make([]int, destSize)
	sendDispls = make([]int, destSize)
	send = make([]byte, 0)
	for r := 0; r < destSize; r++ {
		var chunk []byte
		if touched[r] && rankEnd[r] > rankStart[r] {
			chunk = encode(c, rankStart[r], rankEnd[r])
		} else {
			chunk = encode(c, 0, 0)
		}
		sendCounts[r] = len(chunk)
		sendDispls[r] = len(send)
		send = append(send, chunk...)
	}
	return send, sendCounts, sendDispls
}
