package comm

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/hzvol/errs"
)

func TestWorld_Run(t *testing.T) {
	var calls atomic.Int32
	w := NewWorld(4)
	err := w.Run(context.Background(), func(_ context.Context, c *Comm) error {
		calls.Add(1)
		require.Equal(t, 4, c.Size())
		require.Equal(t, c.Rank(), c.WorldRank(c.Rank()))

		return nil
	})
	require.NoError(t, err)
	require.Equal(t, int32(4), calls.Load())

	require.ErrorIs(t, NewWorld(0).Run(context.Background(), nil), errs.ErrInvalidRank)
}

func TestPointToPoint(t *testing.T) {
	w := NewWorld(3)
	err := w.Run(context.Background(), func(ctx context.Context, c *Comm) error {
		if c.Rank() == 0 {
			buf := []byte{1, 2, 3}
			for dst := 1; dst < c.Size(); dst++ {
				if _, err := c.Isend(dst, 7, buf); err != nil {
					return err
				}
			}
			buf[0] = 99 // the sent copies are unaffected

			if _, err := c.Isend(1, 8, []byte{4}); err != nil {
				return err
			}

			return nil
		}

		buf := make([]byte, 3)
		req, err := c.Irecv(0, 7, buf)
		if err != nil {
			return err
		}
		if err := WaitAll(ctx, []*Request{req}); err != nil {
			return err
		}
		if buf[0] != 1 || buf[2] != 3 {
			return errors.New("unexpected payload")
		}

		if c.Rank() == 1 {
			msg, err := recv(ctx, c, 0, 8)
			if err != nil {
				return err
			}
			if len(msg) != 1 || msg[0] != 4 {
				return errors.New("unexpected payload on tag 8")
			}
		}

		return nil
	})
	require.NoError(t, err)
}

func TestPointToPoint_Ordering(t *testing.T) {
	w := NewWorld(2)
	err := w.Run(context.Background(), func(ctx context.Context, c *Comm) error {
		if c.Rank() == 0 {
			for i := range 100 {
				if _, err := c.Isend(1, 0, []byte{byte(i)}); err != nil {
					return err
				}
			}

			return nil
		}

		for i := range 100 {
			msg, err := recv(ctx, c, 0, 0)
			if err != nil {
				return err
			}
			if msg[0] != byte(i) {
				return errors.New("messages delivered out of order")
			}
		}

		return nil
	})
	require.NoError(t, err)
}

func TestPointToPoint_Errors(t *testing.T) {
	w := NewWorld(2)
	err := w.Run(context.Background(), func(ctx context.Context, c *Comm) error {
		if _, err := c.Isend(5, 0, nil); !errors.Is(err, errs.ErrInvalidRank) {
			return errors.New("expected invalid rank")
		}
		if _, err := c.Irecv(0, -1, nil); !errors.Is(err, errs.ErrCommFailed) {
			return errors.New("expected reserved tag error")
		}

		if c.Rank() == 0 {
			_, err := c.Isend(1, 3, []byte{1, 2})
			return err
		}

		req, err := c.Irecv(0, 3, make([]byte, 4))
		if err != nil {
			return err
		}
		if err := req.Wait(ctx); !errors.Is(err, errs.ErrMessageSize) {
			return errors.New("expected message size error")
		}

		return nil
	})
	require.NoError(t, err)
}

func TestRun_FailureCancelsPeers(t *testing.T) {
	boom := errors.New("boom")
	w := NewWorld(3)
	err := w.Run(context.Background(), func(ctx context.Context, c *Comm) error {
		if c.Rank() == 2 {
			return boom
		}

		// never satisfied: rank 2 fails instead of sending
		_, err := recv(ctx, c, 2, 0)

		return err
	})
	require.ErrorIs(t, err, boom)
}

func TestCollectives(t *testing.T) {
	w := NewWorld(5)
	err := w.Run(context.Background(), func(ctx context.Context, c *Comm) error {
		if err := c.Barrier(ctx); err != nil {
			return err
		}

		data, err := c.Bcast(ctx, 2, []byte{byte(c.Rank())})
		if err != nil {
			return err
		}
		if data[0] != 2 {
			return errors.New("bcast delivered wrong root data")
		}

		gathered, err := c.Gather(ctx, 0, []byte{byte(c.Rank() * 10)})
		if err != nil {
			return err
		}
		if c.Rank() == 0 {
			for r, g := range gathered {
				if g[0] != byte(r*10) {
					return errors.New("gather out of rank order")
				}
			}
		} else if gathered != nil {
			return errors.New("non-root received gather result")
		}

		ints, err := c.AllgatherInts(ctx, []int{c.Rank(), -c.Rank()})
		if err != nil {
			return err
		}
		for r, v := range ints {
			if v[0] != r || v[1] != -r {
				return errors.New("allgather mismatch")
			}
		}

		parts := make([][]byte, c.Size())
		for i := range parts {
			parts[i] = []byte{byte(c.Rank()), byte(i)}
		}
		got, err := c.Alltoall(ctx, parts)
		if err != nil {
			return err
		}
		for src, p := range got {
			if p[0] != byte(src) || p[1] != byte(c.Rank()) {
				return errors.New("alltoall mismatch")
			}
		}

		return nil
	})
	require.NoError(t, err)
}

func TestWorld_MailboxesReclaimed(t *testing.T) {
	w := NewWorld(4)
	rounds := func(n int) error {
		return w.Run(context.Background(), func(ctx context.Context, c *Comm) error {
			for i := 0; i < n; i++ {
				if err := c.Barrier(ctx); err != nil {
					return err
				}
				if _, err := c.Bcast(ctx, i%c.Size(), []byte{byte(i)}); err != nil {
					return err
				}
			}

			return nil
		})
	}

	require.NoError(t, rounds(100))
	require.Zero(t, w.mailboxes())
	require.NoError(t, rounds(1000))
	require.Zero(t, w.mailboxes())

	// a message nobody received yet keeps its stream
	err := w.Run(context.Background(), func(_ context.Context, c *Comm) error {
		if c.Rank() == 0 {
			_, err := c.Isend(1, 7, []byte("pending"))
			return err
		}

		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, w.mailboxes())

	err = w.Run(context.Background(), func(ctx context.Context, c *Comm) error {
		if c.Rank() != 1 {
			return nil
		}
		msg, err := recv(ctx, c, 0, 7)
		if err != nil {
			return err
		}
		if string(msg) != "pending" {
			return errors.New("wrong pending message")
		}

		return nil
	})
	require.NoError(t, err)
	require.Zero(t, w.mailboxes())
}

func TestSplit(t *testing.T) {
	w := NewWorld(6)
	err := w.Run(context.Background(), func(ctx context.Context, c *Comm) error {
		color := c.Rank() % 2
		if c.Rank() == 5 {
			color = -1
		}

		// reverse order inside each group
		sub, err := c.Split(ctx, color, -c.Rank())
		if err != nil {
			return err
		}
		if color < 0 {
			if sub != nil {
				return errors.New("undefined color joined a group")
			}

			return nil
		}

		want := map[int][]int{0: {4, 2, 0}, 1: {3, 1}}[color]
		if sub.Size() != len(want) {
			return errors.New("wrong group size")
		}
		for i, wr := range want {
			if sub.WorldRank(i) != wr {
				return errors.New("wrong group order")
			}
		}

		// traffic on the sub-communicator does not collide with the parent
		vals, err := sub.AllgatherInts(ctx, []int{c.Rank()})
		if err != nil {
			return err
		}
		for i, v := range vals {
			if v[0] != want[i] {
				return errors.New("sub allgather mismatch")
			}
		}

		return nil
	})
	require.NoError(t, err)
}

func TestWindow(t *testing.T) {
	w := NewWorld(4)
	err := w.Run(context.Background(), func(ctx context.Context, c *Comm) error {
		local := make([]byte, c.Size())
		win, err := c.NewWindow(ctx, local)
		if err != nil {
			return err
		}

		for target := 0; target < c.Size(); target++ {
			if err := win.Put(target, c.Rank(), []byte{byte(c.Rank() + 1)}); err != nil {
				return err
			}
		}
		if err := win.Put(9, 0, nil); !errors.Is(err, errs.ErrUnknownTarget) {
			return errors.New("expected unknown target")
		}
		if err := win.Put(0, 3, []byte{1, 2}); !errors.Is(err, errs.ErrOffsetOutOfRange) {
			return errors.New("expected out of range")
		}

		if err := win.Fence(ctx); err != nil {
			return err
		}
		for r, v := range win.Local() {
			if v != byte(r+1) {
				return errors.New("put not visible after fence")
			}
		}

		got := make([]byte, 2)
		peer := (c.Rank() + 1) % c.Size()
		if err := win.Get(peer, 1, got); err != nil {
			return err
		}
		if got[0] != 2 || got[1] != 3 {
			return errors.New("get returned wrong bytes")
		}
		if err := win.Get(peer, 3, got); !errors.Is(err, errs.ErrOffsetOutOfRange) {
			return errors.New("expected get out of range")
		}
		if err := win.Fence(ctx); err != nil {
			return err
		}

		if err := win.Close(ctx); err != nil {
			return err
		}
		if err := win.Put(0, 0, []byte{1}); !errors.Is(err, errs.ErrWindowClosed) {
			return errors.New("expected closed window")
		}

		return nil
	})
	require.NoError(t, err)
}

func TestEncodeInts(t *testing.T) {
	vals := []int{0, 1, -1, 1 << 40}
	got, err := DecodeInts(EncodeInts(vals))
	require.NoError(t, err)
	require.Equal(t, vals, got)

	_, err = DecodeInts([]byte{1, 2, 3})
	require.ErrorIs(t, err, errs.ErrMessageSize)
}

// recv blocks for the next message from src with tag.
func recv(ctx context.Context, c *Comm, src, tag int) ([]byte, error) {
	req, err := c.Irecv(src, tag, nil)
	if err != nil {
		return nil, err
	}
	if err := req.Wait(ctx); err != nil {
		return nil, err
	}

	return req.Data(), nil
}
