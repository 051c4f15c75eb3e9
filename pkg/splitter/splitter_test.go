package splitter_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pmehnert/distributed-string-sorting/pkg/splitter"
	"github.com/pmehnert/distributed-string-sorting/pkg/strs"
)

func TestReservoirSampleSplittersPicksKMinusOne(t *testing.T) {
	c := strs.NewContainer([][]byte{
		[]byte("a"), []byte("b"), []byte("c"), []byte("d"),
		[]byte("e"), []byte("f"), []byte("g"), []byte("h"),
	})
	out, err := splitter.ReservoirSample{}.SampleSplitters(context.Background(), c, 4, 0)
	require.NoError(t, err)
	require.Len(t, out, 3)
}

func TestBinarySearchPartitionCountsSumToContainerLength(t *testing.T) {
	c := strs.NewContainer([][]byte{
		[]byte("apple"), []byte("banana"), []byte("cherry"), []byte("date"), []byte("fig"),
	})
	counts, err := splitter.BinarySearchPartition{}.ComputePartition(context.Background(), c, [][]byte{[]byte("cherry")})
	require.NoError(t, err)
	require.Len(t, counts, 2)
	sum := 0
	for _, n := range counts {
		sum += n
	}
	require.Equal(t, c.Len(), sum)
	require.Equal(t, 2, counts[0]) // apple, banana < cherry
	require.Equal(t, 3, counts[1]) // cherry, date, fig >= cherry
}

// TestSpreadAndEncodeFanOut covers the usual DMS/RQuick direction: fewer
// buckets than destination ranks, so one bucket's views must spread
// across several ranks.
func TestSpreadAndEncodeFanOut(t *testing.T) {
	c := strs.NewContainer([][]byte{
		[]byte("a"), []byte("b"), []byte("c"), []byte("d"), []byte("e"), []byte("f"),
	})
	counts := []int{2, 4} // two buckets
	send, sendCounts, sendDispls := splitter.SpreadAndEncode(c, counts, 2, 4)
	require.Len(t, sendCounts, 4)
	require.Len(t, sendDispls, 4)

	total := 0
	for r := 0; r < 4; r++ {
		part := strs.DecodeViews(send[sendDispls[r] : sendDispls[r]+sendCounts[r]])
		total += part.Len()
	}
	require.Equal(t, c.Len(), total)
}

// TestSpreadAndEncodeFanIn covers SpaceEfficientSort's direction: more
// buckets (quantiles) than destination ranks, so several consecutive
// buckets must land on the same rank without overwriting each other.
func TestSpreadAndEncodeFanIn(t *testing.T) {
	c := strs.NewContainer([][]byte{
		[]byte("a"), []byte("b"), []byte("c"), []byte("d"),
		[]byte("e"), []byte("f"), []byte("g"), []byte("h"),
	})
	// 4 buckets of 2 views each, destined for 2 ranks: rank 0 gets
	// buckets 0-1, rank 1 gets buckets 2-3.
	counts := []int{2, 2, 2, 2}
	send, sendCounts, sendDispls := splitter.SpreadAndEncode(c, counts, 4, 2)
	require.Len(t, sendCounts, 2)

	part0 := strs.DecodeViews(send[sendDispls[0] : sendDispls[0]+sendCounts[0]])
	part1 := strs.DecodeViews(send[sendDispls[1] : sendDispls[1]+sendCounts[1]])

	// Every view must be accounted for exactly once: the original fan-in
	// bug silently dropped earlier buckets when a later bucket assigned
	// to the same rank overwrote them.
	require.Equal(t, 4, part0.Len())
	require.Equal(t, 4, part1.Len())
	require.Equal(t, "a", string(part0.BytesAt(0)))
	require.Equal(t, "d", string(part0.BytesAt(3)))
	require.Equal(t, "e", string(part1.BytesAt(0)))
	require.Equal(t, "h", string(part1.BytesAt(3)))
}

func TestSpreadAndEncodeEmptyBucketProducesEmptyChunk(t *testing.T) {
	c := strs.NewContainer([][]byte{[]byte("a"), []byte("b")})
	counts := []int{0, 2}
	send, sendCounts, sendDispls := splitter.SpreadAndEncode(c, counts, 2, 2)
	part0 := strs.DecodeViews(send[sendDispls[0] : sendDispls[0]+sendCounts[0]])
	require.Equal(t, 0, part0.Len())
	part1 := strs.DecodeViews(send[sendDispls[1] : sendDispls[1]+sendCounts[1]])
	require.Equal(t, 2, part1.Len())
}
