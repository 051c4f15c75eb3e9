package strs

// CommonPrefix returns the length of the longest common prefix of a and b.
func CommonPrefix(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

// RecomputeLCPs recomputes, from scratch, the LCP array of a sorted
// Container: lcp[0] == 0 by convention, and for i>0, lcp[i] is the
// common-prefix length of strings i-1 and i (§3). It is the reference
// used by testable property 2 to check a merger's output LCPs.
func RecomputeLCPs(c *Container) []int {
	lcps := make([]int, c.Len())
	for i := 1; i < c.Len(); i++ {
		lcps[i] = CommonPrefix(c.BytesAt(i-1), c.BytesAt(i))
	}
	return lcps
}

// ZeroBoundaryLCPs zeroes the LCP at every offset in bounds, for a
// caller that concatenates sorted chunks into one LCP array before
// re-merging (§4.2 step 4): concatenation destroys whatever cross-chunk
// LCP guarantee the source runs carried. pkg/dms does not call it; it
// merges each received chunk as its own loser-tree stream instead.
func ZeroBoundaryLCPs(lcps []int, bounds []int) {
	for _, b := range bounds {
		if b >= 0 && b < len(lcps) {
			lcps[b] = 0
		}
	}
}
