// Package radix implements the local radix sorter consumed by DMS and
// SES per spec §6 ("Local radix sorter: sort(StringPtr, depth=0,
// common_lcp=0)"). It is an MSD (most-significant-byte-first) radix
// sort with an insertion-sort fallback for small buckets, operating
// in place on a Container's Views.
package radix

import (
	"sort"

	"github.com/pmehnert/distributed-string-sorting/pkg/strs"
)

// insertionThreshold is the bucket size below which a plain insertion
// sort (by full byte comparison starting at depth) beats further
// recursive bucketing.
const insertionThreshold = 20

// Sort reorders c.Views into non-decreasing byte-lexicographic order
// and fills c.LCPs with the recomputed LCP array. depth is the byte
// offset every string in c is already known to agree on (normally 0);
// commonLCP is a caller-supplied lower bound on the LCP shared by every
// pair of strings in c (normally 0) — the same knownCommonLcp concept
// consumed by pkg/losertree, here used only to skip the redundant
// leading comparison work during the initial bucketing pass.
func Sort(c *strs.Container, depth, commonLCP int) {
	if depth < commonLCP {
		depth = commonLCP
	}
	sortRange(c, 0, c.Len(), depth)
	c.LCPs = strs.RecomputeLCPs(c)
}

func byteAt(c *strs.Container, i, pos int) int {
	v := c.Views[i]
	if pos >= v.Length {
		return -1 // shorter strings sort first, like an implicit NUL terminator
	}
	return int(c.Data[v.Offset+pos])
}

func sortRange(c *strs.Container, lo, hi, depth int) {
	if hi-lo <= 1 {
		return
	}
	if hi-lo <= insertionThreshold {
		insertionSort(c, lo, hi, depth)
		return
	}

	// Three-way (Bentley-McIlroy) partition on the byte at `depth`,
	// so strings that are shorter than `depth` (the "-1" bucket) sort
	// before everything else, exactly like a NUL terminator would.
	pivot := byteAt(c, lo+(hi-lo)/2, depth)
	lt, gt := lo, hi-1
	i := lo
	for i <= gt {
		b := byteAt(c, i, depth)
		switch {
		case b < pivot:
			c.Views[lt], c.Views[i] = c.Views[i], c.Views[lt]
			lt++
			i++
		case b > pivot:
			c.Views[gt], c.Views[i] = c.Views[i], c.Views[gt]
			gt--
		default:
			i++
		}
	}

	sortRange(c, lo, lt, depth)
	if pivot != -1 {
		// The equal bucket still needs ordering on later bytes; the
		// "-1" (ran-out-of-characters) bucket is already fully equal
		// and done, since there is nothing left to compare.
		sortRange(c, lt, gt+1, depth+1)
	} else {
		// Every view here is byte-identical (all ran out of characters
		// at the same depth after agreeing on every byte before it);
		// the partition above does not preserve their relative order,
		// so indexed sets need an explicit (PE,Index) tie-break to get
		// the strict total order §4.3's comparator requires.
		breakDuplicateTies(c, lt, gt+1)
	}
	sortRange(c, gt+1, hi, depth)
}

func breakDuplicateTies(c *strs.Container, lo, hi int) {
	if hi-lo <= 1 {
		return
	}
	views := c.Views[lo:hi]
	sort.Slice(views, func(i, j int) bool {
		a, b := views[i], views[j]
		if a.PE != b.PE {
			return a.PE < b.PE
		}
		return a.Index < b.Index
	})
}

func insertionSort(c *strs.Container, lo, hi, depth int) {
	for i := lo + 1; i < hi; i++ {
		v := c.Views[i]
		j := i - 1
		for j >= lo && lessFrom(c, v, c.Views[j], depth) {
			c.Views[j+1] = c.Views[j]
			j--
		}
		c.Views[j+1] = v
	}
}

// lessFrom reports whether a sorts before b, starting the comparison
// from byte offset depth (bytes before depth are assumed already equal
// by construction of the recursive bucketing). Byte-identical strings
// fall back to the (PE,Index) origin order, matching strs.Compare.
func lessFrom(c *strs.Container, a, b strs.View, depth int) bool {
	ab, bb := c.Bytes(a), c.Bytes(b)
	i := depth
	for i < len(ab) && i < len(bb) {
		if ab[i] != bb[i] {
			return ab[i] < bb[i]
		}
		i++
	}
	if len(ab) != len(bb) {
		return len(ab) < len(bb)
	}
	if a.PE != b.PE {
		return a.PE < b.PE
	}
	return a.Index < b.Index
}

