package natscomm

import "encoding/binary"

// alltoallvWire is the decoded form of one rank's Alltoallv contribution.
type alltoallvWire struct {
	send   []byte
	counts []int
	displs []int
}

// encodeAlltoallv packs send+counts+displs into one byte slice so a
// single NATS message carries an entire Alltoallv contribution or
// per-rank result: [n int32][counts...int32][displs...int32][send bytes].
func encodeAlltoallv(send []byte, counts, displs []int) []byte {
	n := len(counts)
	out := make([]byte, 4+4*n+4*n+len(send))
	binary.LittleEndian.PutUint32(out[0:4], uint32(n))
	off := 4
	for _, c := range counts {
		binary.LittleEndian.PutUint32(out[off:off+4], uint32(c))
		off += 4
	}
	for _, d := range displs {
		binary.LittleEndian.PutUint32(out[off:off+4], uint32(d))
		off += 4
	}
	copy(out[off:], send)
	return out
}

func decodeAlltoallv(buf []byte) alltoallvWire {
	n := int(binary.LittleEndian.Uint32(buf[0:4]))
	off := 4
	counts := make([]int, n)
	for i := 0; i < n; i++ {
		counts[i] = int(binary.LittleEndian.Uint32(buf[off : off+4]))
		off += 4
	}
	displs := make([]int, n)
	for i := 0; i < n; i++ {
		displs[i] = int(binary.LittleEndian.Uint32(buf[off : off+4]))
		off += 4
	}
	return alltoallvWire{send: buf[off:], counts: counts, displs: displs}
}
