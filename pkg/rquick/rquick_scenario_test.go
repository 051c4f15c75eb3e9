package rquick_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pmehnert/distributed-string-sorting/pkg/comm/local"
	"github.com/pmehnert/distributed-string-sorting/pkg/rquick"
	"github.com/pmehnert/distributed-string-sorting/pkg/strs"
)

// TestSortKeepsDuplicatesOrderedByOriginScenarioS6 is spec scenario S6:
// four PEs each hold "a" ten times; every index 0..9 must appear exactly
// once among the duplicates, and within the single equal-value run the
// (PE,Index) origin order from §4.3's comparator must be strictly
// increasing, since RQuick's partition rounds are not stable sorts.
func TestSortKeepsDuplicatesOrderedByOriginScenarioS6(t *testing.T) {
	const numPEs = 4
	hierarchies, err := local.NewHierarchies(numPEs, []int{2, 2})
	require.NoError(t, err)

	inputs := make([]*strs.Container, numPEs)
	for pe := 0; pe < numPEs; pe++ {
		vals := make([][]byte, 10)
		for i := range vals {
			vals[i] = []byte("a")
		}
		inputs[pe] = strs.NewIndexedContainer(vals, pe, 0)
	}

	results := make([]*strs.Container, numPEs)
	var wg sync.WaitGroup
	wg.Add(numPEs)
	for pe := 0; pe < numPEs; pe++ {
		pe := pe
		go func() {
			defer wg.Done()
			out, err := rquick.Sort(context.Background(), inputs[pe], hierarchies[pe], int64(pe))
			require.NoError(t, err)
			results[pe] = out
		}()
	}
	wg.Wait()

	type origin struct {
		pe  int
		idx int64
	}
	var all []origin
	for pe, c := range results {
		require.True(t, c.Sorted(), "PE %d result not locally sorted", pe)
		for i := 0; i < c.Len(); i++ {
			require.Equal(t, "a", string(c.BytesAt(i)))
			all = append(all, origin{c.Views[i].PE, c.Views[i].Index})
		}
	}
	require.Len(t, all, numPEs*10)

	seen := map[origin]bool{}
	for _, o := range all {
		require.False(t, seen[o], "duplicate origin %+v", o)
		seen[o] = true
	}
	for pe := 0; pe < numPEs; pe++ {
		for idx := int64(0); idx < 10; idx++ {
			require.True(t, seen[origin{pe, idx}], "missing origin pe=%d idx=%d", pe, idx)
		}
	}

	for pe, c := range results {
		for i := 1; i < c.Len(); i++ {
			prev, cur := c.Views[i-1], c.Views[i]
			less := prev.PE < cur.PE || (prev.PE == cur.PE && prev.Index < cur.Index)
			require.True(t, less, "PE %d: origins out of order at %d: %+v -> %+v", pe, i, prev, cur)
		}
	}
}
