package ses_test

import (
	"bytes"
	"context"
	"math/rand"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pmehnert/distributed-string-sorting/pkg/comm/local"
	"github.com/pmehnert/distributed-string-sorting/pkg/permutation"
	"github.com/pmehnert/distributed-string-sorting/pkg/ses"
)

func randomStrings(r *rand.Rand, n int) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		l := 1 + r.Intn(10)
		s := make([]byte, l)
		for j := range s {
			s[j] = byte('a' + r.Intn(4))
		}
		out[i] = s
	}
	return out
}

func TestSortWithSmallQuantilesStillSortsGlobally(t *testing.T) {
	const numPEs = 3
	hierarchies, err := local.NewHierarchies(numPEs, []int{numPEs})
	require.NoError(t, err)

	r := rand.New(rand.NewSource(11))
	var all [][]byte
	inputs := make([][][]byte, numPEs)
	for pe := 0; pe < numPEs; pe++ {
		strings := randomStrings(r, 20+pe*5)
		all = append(all, strings...)
		inputs[pe] = strings
	}

	opts := ses.DefaultOptions()
	opts.QuantileSize = 7 // force several quantile batches

	perms := make([]*permutation.MultiLevel, numPEs)
	var wg sync.WaitGroup
	wg.Add(numPEs)
	for pe := 0; pe < numPEs; pe++ {
		pe := pe
		go func() {
			defer wg.Done()
			perm, err := ses.Sort(context.Background(), inputs[pe], pe, hierarchies[pe], opts)
			require.NoError(t, err)
			perms[pe] = perm
		}()
	}
	wg.Wait()

	sizes := map[int]int64{}
	for p := 0; p < numPEs; p++ {
		sizes[p] = int64(len(inputs[p]))
	}

	// Sort never hands back real sorted bytes, only the permutation
	// describing where each local output position originated; resolve the
	// actual strings ourselves from the inputs we already hold, exactly as
	// a caller applying the permutation elsewhere would.
	var got [][]byte
	for pe, perm := range perms {
		require.NoError(t, permutation.Validate(perm, sizes), "PE %d", pe)
		origins := make([]permutation.Origin, perm.Len())
		perm.Apply(origins)
		for _, o := range origins {
			got = append(got, append([]byte(nil), inputs[o.PE][o.Index]...))
		}
	}
	require.Equal(t, len(all), len(got))

	sort.Slice(all, func(i, j int) bool { return bytes.Compare(all[i], all[j]) < 0 })
	sort.Slice(got, func(i, j int) bool { return bytes.Compare(got[i], got[j]) < 0 })
	for i := range all {
		require.Equal(t, all[i], got[i])
	}
}
