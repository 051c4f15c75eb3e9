package dms_test

import (
	"bytes"
	"context"
	"math/rand"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pmehnert/distributed-string-sorting/pkg/comm/local"
	"github.com/pmehnert/distributed-string-sorting/pkg/dms"
	"github.com/pmehnert/distributed-string-sorting/pkg/permutation"
	"github.com/pmehnert/distributed-string-sorting/pkg/strs"
)

func randomStrings(r *rand.Rand, n int) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		l := 1 + r.Intn(15)
		s := make([]byte, l)
		for j := range s {
			s[j] = byte('a' + r.Intn(5))
		}
		out[i] = s
	}
	return out
}

func TestSortGloballyOrdersAndPreservesAllStrings(t *testing.T) {
	const numPEs = 4
	hierarchies, err := local.NewHierarchies(numPEs, []int{2, 2})
	require.NoError(t, err)

	r := rand.New(rand.NewSource(42))
	var all [][]byte
	inputs := make([]*strs.Container, numPEs)
	for pe := 0; pe < numPEs; pe++ {
		strings := randomStrings(r, 25+pe*3)
		all = append(all, strings...)
		inputs[pe] = strs.NewIndexedContainer(strings, pe, 0)
	}

	results := make([]*strs.Container, numPEs)
	perms := make([]*permutation.MultiLevel, numPEs)
	var wg sync.WaitGroup
	wg.Add(numPEs)
	for pe := 0; pe < numPEs; pe++ {
		pe := pe
		go func() {
			defer wg.Done()
			opts := dms.DefaultOptions()
			opts.TrackPermutation = true
			out, perm, err := dms.Sort(context.Background(), inputs[pe], hierarchies[pe], opts)
			require.NoError(t, err)
			results[pe] = out
			perms[pe] = perm
		}()
	}
	wg.Wait()

	for pe, c := range results {
		require.True(t, c.Sorted(), "PE %d not locally sorted", pe)
		require.Equal(t, 0, c.LCPs[0])
	}
	for pe := 0; pe < numPEs-1; pe++ {
		a, b := results[pe], results[pe+1]
		if a.Len() == 0 || b.Len() == 0 {
			continue
		}
		require.LessOrEqual(t, bytes.Compare(a.BytesAt(a.Len()-1), b.BytesAt(0)), 0)
	}

	var got [][]byte
	for _, c := range results {
		for i := 0; i < c.Len(); i++ {
			got = append(got, append([]byte(nil), c.BytesAt(i)...))
		}
	}
	require.Equal(t, len(all), len(got))
	sort.Slice(all, func(i, j int) bool { return bytes.Compare(all[i], all[j]) < 0 })
	sort.Slice(got, func(i, j int) bool { return bytes.Compare(got[i], got[j]) < 0 })
	for i := range all {
		require.Equal(t, all[i], got[i])
	}

	// The permutation should resolve back to in-range origins.
	for pe, perm := range perms {
		sizes := map[int]int64{}
		for p := 0; p < numPEs; p++ {
			sizes[p] = int64(inputs[p].Len())
		}
		require.NoError(t, permutation.Validate(perm, sizes), "PE %d", pe)
	}
}

// TestSortWithCompressPrefixesMatchesPlainResult is testable property 6
// (§9 "compressed-prefix equivalence"): turning CompressPrefixes on must
// only change what travels over the wire, never the sorted result.
func TestSortWithCompressPrefixesMatchesPlainResult(t *testing.T) {
	const numPEs = 4

	r := rand.New(rand.NewSource(99))
	inputs := make([][][]byte, numPEs)
	for pe := 0; pe < numPEs; pe++ {
		inputs[pe] = randomStrings(r, 20+pe*2)
	}

	run := func(compress bool) [][]byte {
		hierarchies, err := local.NewHierarchies(numPEs, []int{2, 2})
		require.NoError(t, err)

		results := make([]*strs.Container, numPEs)
		var wg sync.WaitGroup
		wg.Add(numPEs)
		for pe := 0; pe < numPEs; pe++ {
			pe := pe
			go func() {
				defer wg.Done()
				c := strs.NewIndexedContainer(inputs[pe], pe, 0)
				opts := dms.DefaultOptions()
				opts.CompressPrefixes = compress
				out, _, err := dms.Sort(context.Background(), c, hierarchies[pe], opts)
				require.NoError(t, err)
				results[pe] = out
			}()
		}
		wg.Wait()

		var got [][]byte
		for _, c := range results {
			for i := 0; i < c.Len(); i++ {
				got = append(got, append([]byte(nil), c.BytesAt(i)...))
			}
		}
		return got
	}

	plain := run(false)
	compressed := run(true)
	require.Equal(t, plain, compressed)
}
