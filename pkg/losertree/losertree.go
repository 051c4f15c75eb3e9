// Package losertree implements the k-way LCP-aware loser tree (§4.1):
// given k non-empty sorted streams, each with its own LCP array, and a
// knownCommonLcp lower bound valid across the whole k-way set, it emits
// one globally sorted stream while skipping character comparisons
// whenever a node's stored LCP already proves the ordering.
package losertree

import (
	"fmt"

	"github.com/pmehnert/distributed-string-sorting/pkg/strs"
)

// Stream is one of the k sorted input runs. LCPs[0] is the head-LCP of
// the stream's first (current) string against whatever preceded it
// inside the run it came from; it is only meaningful once Pos advances.
type Stream struct {
	C    *strs.Container
	LCPs []int // aligned with C.Views; may be nil if the run carries no LCPs
	Pos  int
	End  int

	// Compressed marks a stream whose bytes have had each string's own
	// leading LCP bytes physically stripped (§4.2 "compressed-prefix
	// mode"): C.Bytes returns only the suffix after HeadLCP(). Merges
	// that mix compressed and plain streams are not supported; a Merger
	// is either all-compressed or all-plain.
	Compressed bool
}

func (s *Stream) Empty() bool { return s.Pos >= s.End }

func (s *Stream) headView() strs.View { return s.C.Views[s.Pos] }

// HeadBytes returns the current head string's bytes: the full string in
// plain mode, or just the suffix after HeadLCP() in compressed mode.
func (s *Stream) HeadBytes() []byte { return s.C.Bytes(s.headView()) }

// HeadLCP is the stream-local LCP of the current head against the
// previous string in the same run (0 if LCPs is nil or Pos==0).
func (s *Stream) HeadLCP() int {
	if s.LCPs == nil {
		return 0
	}
	return s.LCPs[s.Pos]
}

func (s *Stream) advance() { s.Pos++ }

// record is a (stream, lcp) pair climbing the tree, or an "empty" marker
// standing in for a stream that has been exhausted (treated as +∞, §4.1
// "Empty-stream handling").
type record struct {
	stream int
	lcp    int
	empty  bool
}

// Merger runs the LCP-aware k-way merge described in §4.1.
type Merger struct {
	streams []*Stream
	size    int // next power of two >= len(streams)
	nodes   []record
	winner  record

	knownCommonLcp int
}

// New builds a Merger over the given non-empty sorted streams using
// knownCommonLcp as the starting LCP for every stream (§4.1
// "Initialization"): the caller must supply the tightest valid lower
// bound, 0 being always safe but wasteful.
func New(streams []*Stream, knownCommonLcp int) *Merger {
	k := len(streams)
	if k == 0 {
		return &Merger{streams: streams, winner: record{empty: true}}
	}
	for i, s := range streams {
		if s.Empty() {
			panic(fmt.Sprintf("losertree: stream %d is empty; New requires non-empty input streams", i))
		}
	}

	size := 1
	for size < k {
		size *= 2
	}

	m := &Merger{streams: streams, size: size, nodes: make([]record, size), knownCommonLcp: knownCommonLcp}

	winnerAt := make([]record, 2*size)
	for i := 0; i < size; i++ {
		if i < k {
			winnerAt[size+i] = record{stream: i, lcp: knownCommonLcp}
		} else {
			winnerAt[size+i] = record{empty: true}
		}
	}
	for id := size - 1; id >= 1; id-- {
		w, l := m.match(winnerAt[2*id], winnerAt[2*id+1])
		m.nodes[id] = l
		winnerAt[id] = w
	}
	m.winner = winnerAt[1]
	return m
}

// match compares two climbing/parked records and returns (winner,
// loser) per the rules in §4.1.
func (m *Merger) match(a, b record) (winner, loser record) {
	switch {
	case a.empty && b.empty:
		return a, b
	case a.empty:
		return b, a
	case b.empty:
		return a, b
	}

	switch {
	case a.lcp > b.lcp:
		// a's string agrees longer with whatever it was last measured
		// against, hence a is strictly smaller. No character scan.
		return a, b
	case a.lcp < b.lcp:
		return b, a
	}

	// Equal LCPs: the two strings are only guaranteed to agree up to
	// lcp; scan from there to find the true divergence point.
	sa, sb := m.streams[a.stream], m.streams[b.stream]
	av, bv := sa.HeadBytes(), sb.HeadBytes()
	start := a.lcp
	if sa.Compressed {
		start -= sa.HeadLCP()
	}
	bstart := a.lcp
	if sb.Compressed {
		bstart -= sb.HeadLCP()
	}
	if start < 0 || bstart < 0 {
		panic("losertree: compressed-prefix comparison offset underflowed the stream's own head-LCP")
	}

	div, aSmaller := compareFrom(av, bv, start, bstart)
	trueLCP := a.lcp + div
	if div == -1 {
		// Byte-identical strings: break the tie deterministically by
		// origin (PE, index) so duplicates still produce a strict
		// total order for indexed sets (§4.3 comparator).
		aSmaller = tieBreak(sa.C.Views[sa.Pos], sb.C.Views[sb.Pos])
		trueLCP = a.lcp + len(av) - start
	}
	// The winner keeps its LCP against the previously emitted string; the
	// loser's LCP is now measured against the winner.
	if aSmaller {
		return record{stream: a.stream, lcp: a.lcp}, record{stream: b.stream, lcp: trueLCP}
	}
	return record{stream: b.stream, lcp: b.lcp}, record{stream: a.stream, lcp: trueLCP}
}

// compareFrom scans av from astart and bv from bstart, returning the
// number of additional bytes they agree on (div) and whether av is the
// smaller string. div == -1 signals the two are byte-identical over
// their full (accessible) lengths.
func compareFrom(av, bv []byte, astart, bstart int) (div int, aSmaller bool) {
	i, j, n := astart, bstart, 0
	for i < len(av) && j < len(bv) && av[i] == bv[j] {
		i++
		j++
		n++
	}
	switch {
	case i == len(av) && j == len(bv):
		return -1, false
	case i == len(av):
		return n, true // av ran out first: av is a prefix of bv, so av < bv
	case j == len(bv):
		return n, false
	default:
		return n, av[i] < bv[j]
	}
}

func tieBreak(a, b strs.View) bool {
	if a.Index != strs.NoIndex || b.Index != strs.NoIndex {
		if a.PE != b.PE {
			return a.PE < b.PE
		}
		return a.Index < b.Index
	}
	return true
}

// Winner reports whether the merge has any strings left and, if so,
// which stream the current overall winner belongs to and its LCP
// against the previously emitted string.
func (m *Merger) Winner() (stream, lcp int, ok bool) {
	if m.winner.empty {
		return 0, 0, false
	}
	return m.winner.stream, m.winner.lcp, true
}

// Emit appends the current winner's string (and its LCP against the
// previously emitted string) to out, advances that stream, and replays
// the tournament from that leaf to the root. It returns false once all
// streams are exhausted.
func (m *Merger) Emit(out *strs.Container) bool {
	stream, lcp, ok := m.Winner()
	if !ok {
		return false
	}

	s := m.streams[stream]
	src := s.headView()
	head := s.HeadBytes()
	off := len(out.Data)
	out.Data = append(out.Data, head...)
	out.Views = append(out.Views, strs.View{Offset: off, Length: len(head), PE: src.PE, Index: src.Index})
	out.LCPs = append(out.LCPs, lcp)

	s.advance()

	var next record
	if s.Empty() {
		next = record{stream: stream, empty: true}
	} else {
		next = record{stream: stream, lcp: s.HeadLCP()}
	}

	id := (m.size + stream) / 2
	climbing := next
	for id >= 1 {
		w, l := m.match(climbing, m.nodes[id])
		m.nodes[id] = l
		climbing = w
		id /= 2
	}
	m.winner = climbing
	return true
}

// MergeAll drains the merger into a fresh Container whose LCPs[0] is
// forced to 0, per the "lcp[0]==0 by convention" invariant for any
// standalone sorted run (§3) — knownCommonLcp is only a valid lower
// bound, not necessarily the true predecessor-less value.
func MergeAll(streams []*Stream, knownCommonLcp int) *strs.Container {
	total := 0
	for _, s := range streams {
		total += s.End - s.Pos
	}
	out := &strs.Container{
		Data:  make([]byte, 0, total),
		Views: make([]strs.View, 0, total),
		LCPs:  make([]int, 0, total),
	}
	m := New(streams, knownCommonLcp)
	for m.Emit(out) {
	}
	if len(out.LCPs) > 0 {
		out.LCPs[0] = 0
	}
	return out
}
