package comm

import (
	"context"
	"encoding/binary"
	"fmt"
	"slices"
	"strconv"

	"github.com/arloliu/hzvol/errs"
)

// Comm is one rank's handle on a group of ranks.
//
// A Comm is owned by the goroutine of its rank and must not be shared. Collective operations
// must be called by every member in the same order.
type Comm struct {
	world   *World
	id      string
	rank    int
	members []int // world rank of each member, indexed by local rank
	seq     int   // collective sequence number
	splits  int
}

// Rank returns the rank of the caller inside this communicator.
func (c *Comm) Rank() int {
	return c.rank
}

// Size returns the number of ranks in this communicator.
func (c *Comm) Size() int {
	return len(c.members)
}

// WorldRank returns the world rank of a member.
func (c *Comm) WorldRank(rank int) int {
	return c.members[rank]
}

// ID returns the communicator identifier, unique inside its world.
func (c *Comm) ID() string {
	return c.id
}

// Request is a pending point-to-point operation.
type Request struct {
	ch   chan []byte
	src  int
	tag  int
	buf  []byte
	data []byte
	done bool
}

// Wait blocks until the operation completed.
//
// For a receive posted with a destination buffer, the message must have exactly the buffer's
// length; otherwise ErrMessageSize is returned.
func (r *Request) Wait(ctx context.Context) error {
	if r.done {
		return nil
	}

	select {
	case msg := <-r.ch:
		r.done = true
		if r.buf == nil {
			r.data = msg
			return nil
		}
		if len(msg) != len(r.buf) {
			return fmt.Errorf("%w: message from rank %d tag %d holds %d bytes, receive posted %d",
				errs.ErrMessageSize, r.src, r.tag, len(msg), len(r.buf))
		}
		copy(r.buf, msg)
		r.data = r.buf

		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: waiting on rank %d tag %d: %w", errs.ErrCommFailed, r.src, r.tag, ctx.Err())
	}
}

// Data returns the received message once Wait succeeded.
func (r *Request) Data() []byte {
	return r.data
}

// WaitAll waits for every request and returns the first error.
func WaitAll(ctx context.Context, reqs []*Request) error {
	for _, r := range reqs {
		if r == nil {
			continue
		}
		if err := r.Wait(ctx); err != nil {
			return err
		}
	}

	return nil
}

func (c *Comm) checkPeer(rank int) error {
	if rank < 0 || rank >= len(c.members) {
		return fmt.Errorf("%w: rank %d outside communicator %s of size %d", errs.ErrInvalidRank, rank, c.id, len(c.members))
	}

	return nil
}

func (c *Comm) send(dst, tag int, data []byte) {
	msg := make([]byte, len(data))
	copy(msg, data)
	c.world.put(mailKey{comm: c.id, src: c.rank, dst: dst, tag: tag}, msg)
}

func (c *Comm) recv(src, tag int, buf []byte) *Request {
	return &Request{
		ch:  c.world.take(mailKey{comm: c.id, src: src, dst: c.rank, tag: tag}),
		src: src,
		tag: tag,
		buf: buf,
	}
}

// Isend posts a message to rank dst. The payload is copied, so data may be reused immediately.
// Negative tags are reserved for collectives.
func (c *Comm) Isend(dst, tag int, data []byte) (*Request, error) {
	if err := c.checkPeer(dst); err != nil {
		return nil, err
	}
	if tag < 0 {
		return nil, fmt.Errorf("%w: tag %d is reserved", errs.ErrCommFailed, tag)
	}

	c.send(dst, tag, data)

	return &Request{done: true, src: c.rank, tag: tag}, nil
}

// Irecv posts a receive for the next message from rank src with tag.
//
// When buf is non-nil the message is copied into it; otherwise Request.Data returns the message.
func (c *Comm) Irecv(src, tag int, buf []byte) (*Request, error) {
	if err := c.checkPeer(src); err != nil {
		return nil, err
	}
	if tag < 0 {
		return nil, fmt.Errorf("%w: tag %d is reserved", errs.ErrCommFailed, tag)
	}

	return c.recv(src, tag, buf), nil
}

// nextTag returns the reserved tag of the next collective.
func (c *Comm) nextTag() int {
	c.seq++
	return -c.seq
}

// Barrier blocks until every member reached it.
func (c *Comm) Barrier(ctx context.Context) error {
	_, err := c.Allgather(ctx, nil)
	return err
}

// Bcast distributes root's data to every member and returns it.
func (c *Comm) Bcast(ctx context.Context, root int, data []byte) ([]byte, error) {
	if err := c.checkPeer(root); err != nil {
		return nil, err
	}

	tag := c.nextTag()
	if c.rank == root {
		for dst := range c.members {
			if dst != root {
				c.send(dst, tag, data)
			}
		}

		return data, nil
	}

	req := c.recv(root, tag, nil)
	if err := req.Wait(ctx); err != nil {
		return nil, err
	}

	return req.Data(), nil
}

// Gather collects every member's data at root, indexed by rank. Non-root members get nil.
func (c *Comm) Gather(ctx context.Context, root int, data []byte) ([][]byte, error) {
	if err := c.checkPeer(root); err != nil {
		return nil, err
	}

	tag := c.nextTag()
	if c.rank != root {
		c.send(root, tag, data)
		return nil, nil
	}

	out := make([][]byte, len(c.members))
	out[root] = data
	reqs := make([]*Request, len(c.members))
	for src := range c.members {
		if src != root {
			reqs[src] = c.recv(src, tag, nil)
		}
	}
	if err := WaitAll(ctx, reqs); err != nil {
		return nil, err
	}
	for src, r := range reqs {
		if r != nil {
			out[src] = r.Data()
		}
	}

	return out, nil
}

// Allgather collects every member's data at every member, indexed by rank.
func (c *Comm) Allgather(ctx context.Context, data []byte) ([][]byte, error) {
	parts := make([][]byte, len(c.members))
	for i := range parts {
		parts[i] = data
	}

	return c.Alltoall(ctx, parts)
}

// Alltoall sends parts[i] to member i and returns the part every member sent to the caller.
func (c *Comm) Alltoall(ctx context.Context, parts [][]byte) ([][]byte, error) {
	if len(parts) != len(c.members) {
		return nil, fmt.Errorf("%w: %d parts for %d ranks", errs.ErrMessageSize, len(parts), len(c.members))
	}

	tag := c.nextTag()
	for dst := range c.members {
		if dst != c.rank {
			c.send(dst, tag, parts[dst])
		}
	}

	out := make([][]byte, len(c.members))
	out[c.rank] = parts[c.rank]
	reqs := make([]*Request, len(c.members))
	for src := range c.members {
		if src != c.rank {
			reqs[src] = c.recv(src, tag, nil)
		}
	}
	if err := WaitAll(ctx, reqs); err != nil {
		return nil, err
	}
	for src, r := range reqs {
		if r != nil {
			out[src] = r.Data()
		}
	}

	return out, nil
}

// AllgatherInts gathers a slice of integers from every member.
func (c *Comm) AllgatherInts(ctx context.Context, vals []int) ([][]int, error) {
	parts, err := c.Allgather(ctx, EncodeInts(vals))
	if err != nil {
		return nil, err
	}

	out := make([][]int, len(parts))
	for i, p := range parts {
		if out[i], err = DecodeInts(p); err != nil {
			return nil, err
		}
	}

	return out, nil
}

// Split partitions the communicator by color. Members with the same color form a new
// communicator ordered by (key, rank). A negative color returns nil: the caller joins no group.
func (c *Comm) Split(ctx context.Context, color, key int) (*Comm, error) {
	all, err := c.AllgatherInts(ctx, []int{color, key})
	if err != nil {
		return nil, err
	}
	c.splits++

	if color < 0 {
		return nil, nil //nolint:nilnil
	}

	type member struct{ key, rank int }
	var group []member
	for r, ck := range all {
		if ck[0] == color {
			group = append(group, member{key: ck[1], rank: r})
		}
	}
	slices.SortFunc(group, func(a, b member) int {
		if a.key != b.key {
			return a.key - b.key
		}

		return a.rank - b.rank
	})

	sub := &Comm{
		world:   c.world,
		id:      c.id + "/" + strconv.Itoa(c.splits) + ":" + strconv.Itoa(color),
		members: make([]int, len(group)),
	}
	for i, m := range group {
		sub.members[i] = c.members[m.rank]
		if m.rank == c.rank {
			sub.rank = i
		}
	}

	return sub, nil
}

// EncodeInts serializes integers as big-endian int64 values.
func EncodeInts(vals []int) []byte {
	buf := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.BigEndian.PutUint64(buf[8*i:], uint64(int64(v)))
	}

	return buf
}

// DecodeInts parses a buffer produced by EncodeInts.
func DecodeInts(buf []byte) ([]int, error) {
	if len(buf)%8 != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of integers", errs.ErrMessageSize, len(buf))
	}

	vals := make([]int, len(buf)/8)
	for i := range vals {
		vals[i] = int(int64(binary.BigEndian.Uint64(buf[8*i:])))
	}

	return vals, nil
}
