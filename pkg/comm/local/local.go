// Package local provides an in-process comm.Communicator for PEs that
// run as goroutines, built on a mutex and condition variables shared by
// the group: the default transport for tests and for
// simulating a whole PE group inside one process. Collectives rely on
// the group-ordering guarantee from spec §5 — every PE in a group calls
// the same sequence of collectives in the same order — to pair up each
// PE's Nth collective call with every other PE's Nth call.
package local

import (
	"context"
	"fmt"
	"sync"

	"github.com/pmehnert/distributed-string-sorting/pkg/comm"
)

// NewGroup creates size Communicators that can all talk to one another,
// simulating one level's worth of PEs inside a single process.
func NewGroup(size int) []comm.Communicator {
	g := &group{size: size, rounds: make(map[int]*round)}
	g.cond = sync.NewCond(&g.mu)
	for r := 0; r < size; r++ {
		g.inboxes = append(g.inboxes, newInbox())
	}
	out := make([]comm.Communicator, size)
	for r := 0; r < size; r++ {
		out[r] = &Comm{g: g, rank: r}
	}
	return out
}

type group struct {
	size int

	mu     sync.Mutex
	cond   *sync.Cond
	rounds map[int]*round

	inboxes []*inbox
}

type round struct {
	arrived      int
	contribution []any
	result       []any
	ready        bool
}

func (g *group) enter(roundN int, rank int, contribution any, compute func([]any) []any) any {
	g.mu.Lock()
	r, ok := g.rounds[roundN]
	if !ok {
		r = &round{contribution: make([]any, g.size), result: make([]any, g.size)}
		g.rounds[roundN] = r
	}
	r.contribution[rank] = contribution
	r.arrived++
	if r.arrived == g.size {
		r.result = compute(r.contribution)
		r.ready = true
		delete(g.rounds, roundN)
		g.cond.Broadcast()
		out := r.result[rank]
		g.mu.Unlock()
		return out
	}
	for !r.ready {
		g.cond.Wait()
	}
	out := r.result[rank]
	g.mu.Unlock()
	return out
}

// Comm is one PE's view of a local in-process group.
type Comm struct {
	g        *group
	rank     int
	roundSeq int
}

func (c *Comm) Size() int { return c.g.size }
func (c *Comm) Rank() int { return c.rank }

func (c *Comm) nextRound() int {
	c.roundSeq++
	return c.roundSeq
}

func (c *Comm) Alltoall(_ context.Context, send []byte, recordSize int) ([]byte, error) {
	round := c.nextRound()
	res := c.g.enter(round, c.rank, send, func(contrib []any) []any {
		size := len(contrib)
		out := make([]any, size)
		for dst := 0; dst < size; dst++ {
			buf := make([]byte, 0, size*recordSize)
			for src := 0; src < size; src++ {
				s := contrib[src].([]byte)
				buf = append(buf, s[dst*recordSize:(dst+1)*recordSize]...)
			}
			out[dst] = buf
		}
		return out
	})
	return res.([]byte), nil
}

type alltoallvContribution struct {
	send    []byte
	counts  []int
	displs  []int
}

func (c *Comm) Alltoallv(_ context.Context, send []byte, sendCounts, sendDispls []int) ([]byte, []int, []int, error) {
	round := c.nextRound()
	type result struct {
		data    []byte
		counts  []int
		displs  []int
	}
	res := c.g.enter(round, c.rank, alltoallvContribution{send, sendCounts, sendDispls}, func(contrib []any) []any {
		size := len(contrib)
		out := make([]any, size)
		for dst := 0; dst < size; dst++ {
			var data []byte
			counts := make([]int, size)
			displs := make([]int, size)
			for src := 0; src < size; src++ {
				a := contrib[src].(alltoallvContribution)
				n := a.counts[dst]
				displs[src] = len(data)
				counts[src] = n
				if n > 0 {
					data = append(data, a.send[a.displs[dst]:a.displs[dst]+n]...)
				}
			}
			out[dst] = result{data, counts, displs}
		}
		return out
	})
	r := res.(result)
	return r.data, r.counts, r.displs, nil
}

func (c *Comm) ExscanSingle(_ context.Context, value int64, op func(a, b int64) int64) (int64, error) {
	round := c.nextRound()
	res := c.g.enter(round, c.rank, value, func(contrib []any) []any {
		size := len(contrib)
		out := make([]any, size)
		var acc int64
		for r := 0; r < size; r++ {
			out[r] = acc
			acc = op(acc, contrib[r].(int64))
		}
		return out
	})
	return res.(int64), nil
}

func (c *Comm) Bcast(_ context.Context, buf []byte, root int) ([]byte, error) {
	round := c.nextRound()
	res := c.g.enter(round, c.rank, buf, func(contrib []any) []any {
		data := contrib[root].([]byte)
		out := make([]any, len(contrib))
		for i := range out {
			out[i] = data
		}
		return out
	})
	return res.([]byte), nil
}

// -- point to point --

type msgKey struct {
	from, tag int
}

type inbox struct {
	mu    sync.Mutex
	cond  *sync.Cond
	queue map[msgKey][][]byte
}

func newInbox() *inbox {
	b := &inbox{queue: make(map[msgKey][][]byte)}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *inbox) push(from, tag int, data []byte) {
	b.mu.Lock()
	k := msgKey{from, tag}
	b.queue[k] = append(b.queue[k], data)
	b.cond.Broadcast()
	b.mu.Unlock()
}

func (b *inbox) pop(from, tag int) []byte {
	b.mu.Lock()
	k := msgKey{from, tag}
	for len(b.queue[k]) == 0 {
		b.cond.Wait()
	}
	data := b.queue[k][0]
	b.queue[k] = b.queue[k][1:]
	b.mu.Unlock()
	return data
}

func (b *inbox) peekSize(from, tag int) int {
	b.mu.Lock()
	k := msgKey{from, tag}
	for len(b.queue[k]) == 0 {
		b.cond.Wait()
	}
	n := len(b.queue[k][0])
	b.mu.Unlock()
	return n
}

func (c *Comm) Send(_ context.Context, dest int, tag int, data []byte) error {
	if dest < 0 || dest >= c.g.size {
		return fmt.Errorf("local: Send: destination %d out of range [0,%d)", dest, c.g.size)
	}
	cp := append([]byte(nil), data...)
	c.g.inboxes[dest].push(c.rank, tag, cp)
	return nil
}

func (c *Comm) Recv(_ context.Context, source int, tag int) ([]byte, error) {
	return c.g.inboxes[c.rank].pop(source, tag), nil
}

func (c *Comm) Probe(_ context.Context, source int, tag int) (int, error) {
	return c.g.inboxes[c.rank].peekSize(source, tag), nil
}

type localRequest struct {
	done chan struct{}
	data []byte
	err  error
}

func (r *localRequest) Wait(ctx context.Context) ([]byte, error) {
	select {
	case <-r.done:
		return r.data, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Comm) Isend(ctx context.Context, dest int, tag int, data []byte) (comm.Request, error) {
	req := &localRequest{done: make(chan struct{})}
	go func() {
		req.err = c.Send(ctx, dest, tag, data)
		close(req.done)
	}()
	return req, nil
}

func (c *Comm) Irecv(ctx context.Context, source int, tag int) (comm.Request, error) {
	req := &localRequest{done: make(chan struct{})}
	go func() {
		data, err := c.Recv(ctx, source, tag)
		req.data, req.err = data, err
		close(req.done)
	}()
	return req, nil
}
