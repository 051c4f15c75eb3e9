// Package comm defines the message-passing API consumed by the core
// algorithms (§6): a minimal set of collective and point-to-point
// operations plus a sub-communicator hierarchy. The core never imports
// a concrete transport; pkg/comm/local provides an in-process transport
// for tests and single-host simulation, pkg/comm/natscomm a real
// cross-process transport over NATS.
package comm

import "context"

// Communicator is the message-passing API named in spec §6. All
// operations are synchronization points (§5): they may block until
// every PE in the group has posted the matching call. A single
// Communicator always represents one fixed group of PEs; the group
// membership never changes over its lifetime (§1 "fail-stop" — a PE
// leaving is not a supported transition).
type Communicator interface {
	Size() int
	Rank() int

	// Alltoall exchanges one fixed-size record between every pair of
	// PEs: send[i] goes to PE i, and the returned slice's i-th element
	// came from PE i.
	Alltoall(ctx context.Context, send []byte, recordSize int) (recv []byte, err error)

	// Alltoallv exchanges variable-sized chunks: sendCounts[i] bytes of
	// send, starting at sendDispls[i], go to PE i. recvCounts/recvDispls
	// describe the returned buffer the same way.
	Alltoallv(ctx context.Context, send []byte, sendCounts, sendDispls []int) (recv []byte, recvCounts, recvDispls []int, err error)

	// ExscanSingle performs an exclusive prefix scan of value across
	// the group using op, used by NonUniquePermutation to turn
	// per-string byte offsets into global ranks (§4.4).
	ExscanSingle(ctx context.Context, value int64, op func(a, b int64) int64) (int64, error)

	// Bcast broadcasts buf (as owned by root) to every PE in the group.
	Bcast(ctx context.Context, buf []byte, root int) ([]byte, error)

	Send(ctx context.Context, dest int, tag int, data []byte) error
	Recv(ctx context.Context, source int, tag int) ([]byte, error)
	Probe(ctx context.Context, source int, tag int) (size int, err error)

	Isend(ctx context.Context, dest int, tag int, data []byte) (Request, error)
	Irecv(ctx context.Context, source int, tag int) (Request, error)
}

// Request is a handle to a non-blocking operation, completed by WaitAll.
type Request interface {
	// Wait blocks until the operation completes, returning the payload
	// for a receive (nil for a send).
	Wait(ctx context.Context) ([]byte, error)
}

// WaitAll completes a small fixed-size batch of outstanding requests
// (§5: "≤6 outstanding per sendrecv/recv op, one per array column"),
// using an errgroup so a failure on one request doesn't strand the
// caller waiting on the rest.
func WaitAll(ctx context.Context, reqs []Request) ([][]byte, error) {
	out := make([][]byte, len(reqs))
	g, gctx := errgroupWithContext(ctx)
	for i, r := range reqs {
		i, r := i, r
		g.Go(func() error {
			data, err := r.Wait(gctx)
			if err != nil {
				return err
			}
			out[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Level is one step of the sub-communicator hierarchy (§3, §6): a group
// of PEs partitioned into NumGroups sub-groups of GroupSize each.
// CommExchange spans the whole level's group (used for the level's
// all-to-all redistribution); CommOrig is the finer-grained sub-group a
// PE belongs to going into the next level.
type Level struct {
	CommExchange Communicator
	CommOrig     Communicator
	NumGroups    int
	GroupSize    int
}

// Hierarchy is iterable from coarsest (root) to finest (final level),
// per §6.
type Hierarchy struct {
	Levels []Level
}

func (h *Hierarchy) Len() int { return len(h.Levels) }

// Final reports the communicator a PE lands in after the last level
// has been applied — the group whose members hold the final sorted
// slices relative to one another.
func (h *Hierarchy) Final() Communicator {
	if len(h.Levels) == 0 {
		return nil
	}
	return h.Levels[len(h.Levels)-1].CommOrig
}
