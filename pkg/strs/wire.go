package strs

import "encoding/binary"

// viewHeaderSize is the encoded size of one View's metadata: a uint32
// length, an int32 origin PE and an int64 origin index.
const viewHeaderSize = 4 + 4 + 8

// EncodeViews serializes the views c.Views[lo:hi] and their backing
// bytes into a single self-describing buffer suitable for an Alltoallv
// payload: a view count, one fixed-size header per view, then every
// view's bytes concatenated in order. Origin PE/Index travel with the
// data so a redistributed Container stays indexed (§4.4, §6 wire
// format for variable-length exchanges).
func EncodeViews(c *Container, lo, hi int) []byte {
	n := hi - lo
	size := 4 + n*viewHeaderSize
	for i := lo; i < hi; i++ {
		size += c.Views[i].Length
	}
	buf := make([]byte, size)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(n))
	pos := 4
	for i := lo; i < hi; i++ {
		v := c.Views[i]
		binary.LittleEndian.PutUint32(buf[pos:pos+4], uint32(v.Length))
		binary.LittleEndian.PutUint32(buf[pos+4:pos+8], uint32(int32(v.PE)))
		binary.LittleEndian.PutUint64(buf[pos+8:pos+16], uint64(v.Index))
		pos += viewHeaderSize
	}
	for i := lo; i < hi; i++ {
		v := c.Views[i]
		copy(buf[pos:pos+v.Length], c.Data[v.Offset:v.Offset+v.Length])
		pos += v.Length
	}
	return buf
}

// compressedHeaderSize is the encoded size of one View's metadata in the
// compressed-prefix wire format: a uint32 full length, a uint32 LCP
// against the previous view in the encoded range, an int32 origin PE
// and an int64 origin index.
const compressedHeaderSize = 4 + 4 + 4 + 8

// EncodeViewsCompressed serializes c.Views[lo:hi] like EncodeViews, but
// strips each view's leading bytes already shared with its immediate
// predecessor in the range, per c.LCPs, shipping only the suffix plus
// an explicit per-view LCP — the compressed-prefix wire format (§4.2)
// that shrinks an Alltoallv payload when a locally sorted run shares
// long prefixes. c.LCPs must be populated and aligned with c.Views
// (strs.RecomputeLCPs satisfies this). lo's own view is always encoded
// with LCP 0, since its actual predecessor (if any) lies outside the
// encoded range and was not transmitted.
func EncodeViewsCompressed(c *Container, lo, hi int) []byte {
	n := hi - lo
	lcpOf := func(i int) int {
		if i == lo {
			return 0
		}
		lcp := c.LCPs[i]
		if lcp > c.Views[i].Length {
			lcp = c.Views[i].Length
		}
		return lcp
	}

	size := 4 + n*compressedHeaderSize
	for i := lo; i < hi; i++ {
		size += c.Views[i].Length - lcpOf(i)
	}
	buf := make([]byte, size)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(n))
	pos := 4
	for i := lo; i < hi; i++ {
		v := c.Views[i]
		binary.LittleEndian.PutUint32(buf[pos:pos+4], uint32(v.Length))
		binary.LittleEndian.PutUint32(buf[pos+4:pos+8], uint32(lcpOf(i)))
		binary.LittleEndian.PutUint32(buf[pos+8:pos+12], uint32(int32(v.PE)))
		binary.LittleEndian.PutUint64(buf[pos+12:pos+20], uint64(v.Index))
		pos += compressedHeaderSize
	}
	for i := lo; i < hi; i++ {
		v := c.Views[i]
		lcp := lcpOf(i)
		copy(buf[pos:pos+v.Length-lcp], c.Data[v.Offset+lcp:v.Offset+v.Length])
		pos += v.Length - lcp
	}
	return buf
}

// DecodeViewsCompressed reverses EncodeViewsCompressed, re-materializing
// each view's full bytes by prefixing the previous view's bytes up to
// its recorded LCP. The returned Container carries plain (uncompressed)
// Views and an LCPs array, ready for radix.Sort or losertree.MergeAll
// exactly like a Container decoded from the uncompressed wire format —
// compression only ever affects what traveled over the wire, never the
// result (§9 testable property 6, "compressed-prefix equivalence").
func DecodeViewsCompressed(buf []byte) *Container {
	if len(buf) == 0 {
		return &Container{}
	}
	n := int(binary.LittleEndian.Uint32(buf[0:4]))
	lengths := make([]int, n)
	lcps := make([]int, n)
	pes := make([]int, n)
	idxs := make([]int64, n)
	pos := 4
	for i := 0; i < n; i++ {
		lengths[i] = int(binary.LittleEndian.Uint32(buf[pos : pos+4]))
		lcps[i] = int(binary.LittleEndian.Uint32(buf[pos+4 : pos+8]))
		pes[i] = int(int32(binary.LittleEndian.Uint32(buf[pos+8 : pos+12])))
		idxs[i] = int64(binary.LittleEndian.Uint64(buf[pos+12 : pos+20]))
		pos += compressedHeaderSize
	}

	c := &Container{Views: make([]View, n), LCPs: make([]int, n)}
	var prev []byte
	for i := 0; i < n; i++ {
		suffixLen := lengths[i] - lcps[i]
		suffix := buf[pos : pos+suffixLen]
		pos += suffixLen

		full := make([]byte, lengths[i])
		if lcps[i] > 0 {
			copy(full[:lcps[i]], prev[:lcps[i]])
		}
		copy(full[lcps[i]:], suffix)

		off := len(c.Data)
		c.Data = append(c.Data, full...)
		c.Views[i] = View{Offset: off, Length: lengths[i], PE: pes[i], Index: idxs[i]}
		c.LCPs[i] = lcps[i]
		prev = full
	}
	return c
}

// DecodeViews reverses EncodeViews into a freshly allocated Container.
func DecodeViews(buf []byte) *Container {
	if len(buf) == 0 {
		return &Container{}
	}
	n := int(binary.LittleEndian.Uint32(buf[0:4]))
	lengths := make([]int, n)
	pes := make([]int, n)
	idxs := make([]int64, n)
	pos := 4
	total := 0
	for i := 0; i < n; i++ {
		l := int(binary.LittleEndian.Uint32(buf[pos : pos+4]))
		pe := int(int32(binary.LittleEndian.Uint32(buf[pos+4 : pos+8])))
		idx := int64(binary.LittleEndian.Uint64(buf[pos+8 : pos+16]))
		lengths[i], pes[i], idxs[i] = l, pe, idx
		total += l
		pos += viewHeaderSize
	}

	c := &Container{Data: make([]byte, 0, total), Views: make([]View, n)}
	for i := 0; i < n; i++ {
		off := len(c.Data)
		c.Data = append(c.Data, buf[pos:pos+lengths[i]]...)
		c.Views[i] = View{Offset: off, Length: lengths[i], PE: pes[i], Index: idxs[i]}
		pos += lengths[i]
	}
	return c
}

// Concat concatenates several containers' views (and backing bytes)
// into one fresh Container, preserving each view's origin metadata.
// The result carries no LCP array: callers that need one must recompute
// it, since the inputs are not generally mutually sorted.
func Concat(parts ...*Container) *Container {
	total, n := 0, 0
	for _, p := range parts {
		for _, v := range p.Views {
			total += v.Length
		}
		n += p.Len()
	}
	out := &Container{Data: make([]byte, 0, total), Views: make([]View, 0, n)}
	for _, p := range parts {
		for i := range p.Views {
			v := p.Views[i]
			off := len(out.Data)
			out.Data = append(out.Data, p.Bytes(v)...)
			out.Views = append(out.Views, View{Offset: off, Length: v.Length, PE: v.PE, Index: v.Index})
		}
	}
	return out
}
