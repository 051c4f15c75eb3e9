package natscomm

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nats-io/nats.go"
	"github.com/pmehnert/distributed-string-sorting/pkg/comm"
)

// Comm is one PE's NATS-backed view of a group. Rank 0 acts as the
// collective coordinator: every collective call funnels contributions
// through rank 0, which computes the per-rank results and fans them
// back out, mirroring the request/reply-gather shape used elsewhere in
// this transport's pub/sub style rather than a true peer-to-peer
// collective algorithm (acceptable here: collectives are not the hot
// path this transport is exercised for — pkg/comm/local is — and a
// star topology keeps the subject scheme simple).
type Comm struct {
	client  *Client
	group   string
	size    int
	rank    int
	roundSeq int64

	p2p *inbox

	collMu sync.Mutex
	waiters map[int64]chan []byte

	coordMu  sync.Mutex
	pending  map[int64]*coordState
}

type coordState struct {
	contributions [][]byte
	have          int
}

// New subscribes to this rank's subjects and returns a ready
// Communicator. group namespaces the subjects so multiple concurrent
// jobs (or sub-communicator levels) can share one NATS server.
func New(client *Client, group string, size, rank int) (*Comm, error) {
	c := &Comm{
		client:  client,
		group:   group,
		size:    size,
		rank:    rank,
		p2p:     newInbox(),
		waiters: make(map[int64]chan []byte),
		pending: make(map[int64]*coordState),
	}

	if _, err := client.subscribe(fmt.Sprintf("dsort.%s.p2p.%d.>", group, rank), c.onP2P); err != nil {
		return nil, err
	}
	if _, err := client.subscribe(fmt.Sprintf("dsort.%s.result.%d.>", group, rank), c.onResult); err != nil {
		return nil, err
	}
	if rank == 0 {
		if _, err := client.subscribe(fmt.Sprintf("dsort.%s.contrib.>", group), c.onContrib); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Comm) Size() int { return c.size }
func (c *Comm) Rank() int { return c.rank }

func (c *Comm) nextSeq() int64 { return atomic.AddInt64(&c.roundSeq, 1) }

// -- collective plumbing --

func (c *Comm) onContrib(msg *nats.Msg) {
	var seq int64
	var src int
	if _, err := fmt.Sscanf(msg.Subject, "dsort."+c.group+".contrib.%d.%d", &seq, &src); err != nil {
		return
	}
	c.coordMu.Lock()
	st, ok := c.pending[seq]
	if !ok {
		st = &coordState{contributions: make([][]byte, c.size)}
		c.pending[seq] = st
	}
	st.contributions[src] = append([]byte(nil), msg.Data...)
	st.have++
	ready := st.have == c.size
	if ready {
		delete(c.pending, seq)
	}
	c.coordMu.Unlock()

	if ready {
		c.computeAndPublish(seq, st.contributions)
	}
}

// computeFuncs holds the per-seq reducer registered by whichever
// collective call is in flight, looked up by computeAndPublish.
var computeFuncs sync.Map // seq int64 -> func([][]byte) [][]byte

func (c *Comm) computeAndPublish(seq int64, all [][]byte) {
	fv, ok := computeFuncs.Load(seq)
	if !ok {
		return
	}
	computeFuncs.Delete(seq)
	results := fv.(func([][]byte) [][]byte)(all)
	for r, data := range results {
		_ = c.client.conn.Publish(fmt.Sprintf("dsort.%s.result.%d.%d", c.group, r, seq), data)
	}
}

func (c *Comm) onResult(msg *nats.Msg) {
	var seq int64
	var dst int
	if _, err := fmt.Sscanf(msg.Subject, "dsort."+c.group+".result.%d.%d", &dst, &seq); err != nil {
		return
	}
	c.collMu.Lock()
	ch, ok := c.waiters[seq]
	c.collMu.Unlock()
	if ok {
		ch <- append([]byte(nil), msg.Data...)
	}
}

// collective sends contribution to the rank-0 coordinator, registers
// compute as the reducer for this seq, and blocks for this rank's
// result.
func (c *Comm) collective(ctx context.Context, contribution []byte, compute func([][]byte) [][]byte) ([]byte, error) {
	seq := c.nextSeq()
	ch := make(chan []byte, 1)
	c.collMu.Lock()
	c.waiters[seq] = ch
	c.collMu.Unlock()
	computeFuncs.Store(seq, compute)

	if err := c.client.conn.Publish(fmt.Sprintf("dsort.%s.contrib.%d.%d", c.group, seq, c.rank), contribution); err != nil {
		return nil, fmt.Errorf("natscomm: publishing contribution: %w", err)
	}

	select {
	case data := <-ch:
		c.collMu.Lock()
		delete(c.waiters, seq)
		c.collMu.Unlock()
		return data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Comm) Alltoall(ctx context.Context, send []byte, recordSize int) ([]byte, error) {
	return c.collective(ctx, send, func(all [][]byte) [][]byte {
		size := len(all)
		out := make([][]byte, size)
		for dst := 0; dst < size; dst++ {
			buf := make([]byte, 0, size*recordSize)
			for src := 0; src < size; src++ {
				buf = append(buf, all[src][dst*recordSize:(dst+1)*recordSize]...)
			}
			out[dst] = buf
		}
		return out
	})
}

func (c *Comm) Alltoallv(ctx context.Context, send []byte, sendCounts, sendDispls []int) ([]byte, []int, []int, error) {
	contrib := encodeAlltoallv(send, sendCounts, sendDispls)
	data, err := c.collective(ctx, contrib, func(all [][]byte) [][]byte {
		size := len(all)
		parsed := make([]alltoallvWire, size)
		for i, b := range all {
			parsed[i] = decodeAlltoallv(b)
		}
		out := make([][]byte, size)
		for dst := 0; dst < size; dst++ {
			var buf []byte
			counts := make([]int, size)
			displs := make([]int, size)
			for src := 0; src < size; src++ {
				a := parsed[src]
				n := a.counts[dst]
				displs[src] = len(buf)
				counts[src] = n
				if n > 0 {
					buf = append(buf, a.send[a.displs[dst]:a.displs[dst]+n]...)
				}
			}
			out[dst] = encodeAlltoallv(buf, counts, displs)
		}
		return out
	})
	if err != nil {
		return nil, nil, nil, err
	}
	w := decodeAlltoallv(data)
	return w.send, w.counts, w.displs, nil
}

func (c *Comm) ExscanSingle(ctx context.Context, value int64, op func(a, b int64) int64) (int64, error) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(value))
	data, err := c.collective(ctx, buf, func(all [][]byte) [][]byte {
		size := len(all)
		out := make([][]byte, size)
		var acc int64
		for r := 0; r < size; r++ {
			b := make([]byte, 8)
			binary.LittleEndian.PutUint64(b, uint64(acc))
			out[r] = b
			v := int64(binary.LittleEndian.Uint64(all[r]))
			acc = op(acc, v)
		}
		return out
	})
	if err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(data)), nil
}

func (c *Comm) Bcast(ctx context.Context, buf []byte, root int) ([]byte, error) {
	return c.collective(ctx, buf, func(all [][]byte) [][]byte {
		data := all[root]
		out := make([][]byte, len(all))
		for i := range out {
			out[i] = data
		}
		return out
	})
}

// -- point to point --

func (c *Comm) onP2P(msg *nats.Msg) {
	var src, tag int
	if _, err := fmt.Sscanf(msg.Subject, "dsort."+c.group+fmt.Sprintf(".p2p.%d.%%d.%%d", c.rank), &src, &tag); err != nil {
		return
	}
	c.p2p.push(src, tag, append([]byte(nil), msg.Data...))
}

func (c *Comm) Send(_ context.Context, dest int, tag int, data []byte) error {
	subject := fmt.Sprintf("dsort.%s.p2p.%d.%d.%d", c.group, dest, c.rank, tag)
	return c.client.conn.Publish(subject, data)
}

func (c *Comm) Recv(_ context.Context, source int, tag int) ([]byte, error) {
	return c.p2p.pop(source, tag), nil
}

func (c *Comm) Probe(_ context.Context, source int, tag int) (int, error) {
	return c.p2p.peekSize(source, tag), nil
}

type natsRequest struct {
	done chan struct{}
	data []byte
	err  error
}

func (r *natsRequest) Wait(ctx context.Context) ([]byte, error) {
	select {
	case <-r.done:
		return r.data, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Comm) Isend(ctx context.Context, dest int, tag int, data []byte) (comm.Request, error) {
	req := &natsRequest{done: make(chan struct{})}
	go func() {
		req.err = c.Send(ctx, dest, tag, data)
		close(req.done)
	}()
	return req, nil
}

func (c *Comm) Irecv(ctx context.Context, source int, tag int) (comm.Request, error) {
	req := &natsRequest{done: make(chan struct{})}
	go func() {
		req.data, req.err = c.Recv(ctx, source, tag)
		close(req.done)
	}()
	return req, nil
}
