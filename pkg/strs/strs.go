// Package strs provides the non-owning String/StringView representation
// and the StringContainer that owns the underlying byte storage, per
// spec §2-§3.
//
// A View never owns memory: it is a (container-relative offset, length)
// pair plus optional origin metadata. Its validity is tied to the
// Container's Data slice never being reallocated while the view is in
// use — callers that redistribute strings build a brand new Container
// instead of mutating one in place.
package strs

import "bytes"

// NoIndex and NoPE mark an absent optional side-channel on a View.
const (
	NoIndex int64 = -1
	NoPE    int   = -1
)

// View is a non-owning handle into a Container's byte buffer, optionally
// carrying the PE and local index the string originated from (used by
// indexed string sets and permutations). A View always covers a string's
// full bytes; LCPs live in Container.LCPs, and the compressed-prefix wire
// format re-materializes full strings on decode.
type View struct {
	Offset int
	Length int

	// PE and Index identify the originating processing element and its
	// local position, or (NoPE, NoIndex) if the set is not indexed.
	PE    int
	Index int64
}

func (v View) Indexed() bool { return v.PE != NoPE || v.Index != NoIndex }

// Container owns a contiguous byte buffer plus a parallel array of
// Views and an optional parallel LCP array. LCPs, when present, are
// authoritative only while the Container represents a single sorted
// run (§3): after concatenating runs produced elsewhere, the caller
// must zero the junction LCP before re-merging.
type Container struct {
	Data  []byte
	Views []View
	LCPs  []int // nil if this string set carries no LCP information
}

// NewContainer builds a Container from plain byte strings, concatenating
// them (without separators; Views carry exact offsets/lengths so no
// terminator is required in memory, and the wire encoding in wire.go
// likewise carries explicit per-view lengths instead of NUL separators).
func NewContainer(strings [][]byte) *Container {
	total := 0
	for _, s := range strings {
		total += len(s)
	}
	c := &Container{
		Data:  make([]byte, 0, total),
		Views: make([]View, len(strings)),
	}
	for i, s := range strings {
		off := len(c.Data)
		c.Data = append(c.Data, s...)
		c.Views[i] = View{Offset: off, Length: len(s), PE: NoPE, Index: NoIndex}
	}
	return c
}

// NewIndexedContainer builds a Container tagging every view with its
// origin PE and local index, the representation SpaceEfficientSort
// materializes for each quantile (§4.5): bytes plus (origin_PE,
// origin_index), no owned bytes beyond what's needed to sort.
func NewIndexedContainer(strings [][]byte, pe int, baseIndex int64) *Container {
	c := NewContainer(strings)
	for i := range c.Views {
		c.Views[i].PE = pe
		c.Views[i].Index = baseIndex + int64(i)
	}
	return c
}

func (c *Container) Len() int { return len(c.Views) }

// Slice returns a new Container covering views [lo:hi), sharing the
// same backing Data as c (no bytes copied) — used to carve a local
// batch out of a larger sorted run without touching the underlying
// buffer, e.g. SpaceEfficientSort's quantile batches.
func Slice(c *Container, lo, hi int) *Container {
	views := make([]View, hi-lo)
	copy(views, c.Views[lo:hi])
	return &Container{Data: c.Data, Views: views}
}

// Bytes returns the substring the given View refers to.
func (c *Container) Bytes(v View) []byte { return c.Data[v.Offset : v.Offset+v.Length] }

// BytesAt is a convenience for Bytes(c.Views[i]).
func (c *Container) BytesAt(i int) []byte { return c.Bytes(c.Views[i]) }

// Sorted reports whether the container's views are in non-decreasing
// byte-lexicographic order, the precondition the merger asserts on all
// of its input runs (§7 "Precondition violation").
func (c *Container) Sorted() bool {
	for i := 1; i < c.Len(); i++ {
		if bytes.Compare(c.BytesAt(i-1), c.BytesAt(i)) > 0 {
			return false
		}
	}
	return true
}

// Compare provides the strict total order required throughout the
// system: lexicographic on bytes, then by (origin PE, origin index) for
// indexed sets so that ties are broken deterministically (§4.3
// "Comparator").
func Compare(c *Container, i, j int) int {
	if cmp := bytes.Compare(c.BytesAt(i), c.BytesAt(j)); cmp != 0 {
		return cmp
	}
	vi, vj := c.Views[i], c.Views[j]
	switch {
	case vi.PE < vj.PE:
		return -1
	case vi.PE > vj.PE:
		return 1
	case vi.Index < vj.Index:
		return -1
	case vi.Index > vj.Index:
		return 1
	default:
		return 0
	}
}
