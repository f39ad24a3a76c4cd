// Package comm provides the message-passing layer the pipeline stages use to cooperate.
//
// A World is a fixed set of ranks. World.Run starts one goroutine per rank and hands each a Comm,
// the communicator spanning every rank. Comms can be split into sub-groups (Split) the same way
// a rank decomposition is split into spatial partitions.
//
// # Operations
//
//   - Point-to-point: Isend / Irecv return a *Request; Wait, WaitAll join them.
//   - Collectives: Barrier, Bcast, Gather, Allgather, Alltoall.
//   - One-sided: NewWindow exposes per-rank buffers that other ranks Put into between two Fence
//     calls.
//
// Messages are matched by (communicator, source, destination, tag) and delivered in send order.
// Sends never block: the payload is copied into the destination's mailbox, so the sender may
// reuse its buffer as soon as Isend returns.
//
// # Failure model
//
// The first rank that returns an error from the Run callback cancels the shared context; every
// rank blocked in a receive, collective or fence then returns with ErrCommFailed. There is no
// partial-failure tolerance: Run reports the first error.
package comm

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/arloliu/hzvol/errs"
)

// World is a fixed group of ranks sharing one set of mailboxes.
type World struct {
	size int

	mu      sync.Mutex
	boxes   map[mailKey]*mailbox
	windows map[windowKey]*windowState
}

// NewWorld creates a world of size ranks.
func NewWorld(size int) *World {
	return &World{
		size:    size,
		boxes:   make(map[mailKey]*mailbox),
		windows: make(map[windowKey]*windowState),
	}
}

// Size returns the number of ranks.
func (w *World) Size() int {
	return w.size
}

// Run executes fn once per rank, each in its own goroutine, and waits for all of them.
//
// The context passed to fn is cancelled as soon as any rank fails; Run returns the first error.
func (w *World) Run(ctx context.Context, fn func(ctx context.Context, c *Comm) error) error {
	if w.size <= 0 {
		return fmt.Errorf("%w: world size %d", errs.ErrInvalidRank, w.size)
	}

	g, gctx := errgroup.WithContext(ctx)
	members := make([]int, w.size)
	for i := range members {
		members[i] = i
	}

	for rank := 0; rank < w.size; rank++ {
		c := &Comm{
			world:   w,
			id:      "world",
			rank:    rank,
			members: members,
		}
		g.Go(func() error {
			return fn(gctx, c)
		})
	}

	return g.Wait()
}

// mailKey identifies one ordered message stream.
type mailKey struct {
	comm string
	src  int
	dst  int
	tag  int
}

// mailbox is an unbounded FIFO of messages with blocking receive. A mailbox holding neither
// messages nor waiters is removed from the world; all access happens under World.mu.
type mailbox struct {
	queue   [][]byte
	waiters []chan []byte
}

func (mb *mailbox) empty() bool {
	return len(mb.queue) == 0 && len(mb.waiters) == 0
}

// put delivers msg to the oldest waiter of stream k, or queues it.
func (w *World) put(k mailKey, msg []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()

	mb, ok := w.boxes[k]
	if !ok {
		mb = &mailbox{}
		w.boxes[k] = mb
	}
	if len(mb.waiters) > 0 {
		ch := mb.waiters[0]
		mb.waiters[0] = nil
		mb.waiters = mb.waiters[1:]
		ch <- msg
	} else {
		mb.queue = append(mb.queue, msg)
	}
	if mb.empty() {
		delete(w.boxes, k)
	}
}

// take returns a channel that receives the next message of stream k.
func (w *World) take(k mailKey) chan []byte {
	ch := make(chan []byte, 1)

	w.mu.Lock()
	defer w.mu.Unlock()

	mb, ok := w.boxes[k]
	if !ok {
		mb = &mailbox{}
		w.boxes[k] = mb
	}
	if len(mb.queue) > 0 {
		ch <- mb.queue[0]
		mb.queue[0] = nil
		mb.queue = mb.queue[1:]
	} else {
		mb.waiters = append(mb.waiters, ch)
	}
	if mb.empty() {
		delete(w.boxes, k)
	}

	return ch
}

// mailboxes returns the number of streams holding undelivered messages or pending receives.
func (w *World) mailboxes() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	return len(w.boxes)
}
