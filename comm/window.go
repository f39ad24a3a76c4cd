package comm

import (
	"context"
	"fmt"
	"sync"

	"github.com/arloliu/hzvol/errs"
)

type windowKey struct {
	comm string
	seq  int
}

type windowState struct {
	mu     sync.Mutex
	bufs   [][]byte
	locks  []sync.Mutex
	closed bool
}

// Window is a set of per-rank buffers that other members write into with Put.
//
// Puts issued between two Fence calls are visible to the target after the second Fence.
type Window struct {
	comm  *Comm
	key   windowKey
	state *windowState
}

// NewWindow exposes local as the caller's part of a new window. It is collective.
func (c *Comm) NewWindow(ctx context.Context, local []byte) (*Window, error) {
	key := windowKey{comm: c.id, seq: c.nextTag()}

	c.world.mu.Lock()
	st, ok := c.world.windows[key]
	if !ok {
		st = &windowState{
			bufs:  make([][]byte, len(c.members)),
			locks: make([]sync.Mutex, len(c.members)),
		}
		c.world.windows[key] = st
	}
	c.world.mu.Unlock()

	st.mu.Lock()
	st.bufs[c.rank] = local
	st.mu.Unlock()

	w := &Window{comm: c, key: key, state: st}
	if err := c.Barrier(ctx); err != nil {
		return nil, err
	}

	return w, nil
}

// Local returns the caller's exposed buffer.
func (w *Window) Local() []byte {
	return w.state.bufs[w.comm.rank]
}

// Put copies data into target's buffer at offset.
func (w *Window) Put(target, offset int, data []byte) error {
	buf, err := w.target(target, offset, len(data), "put")
	if err != nil {
		return err
	}

	w.state.locks[target].Lock()
	copy(buf[offset:], data)
	w.state.locks[target].Unlock()

	return nil
}

// Get copies len(dst) bytes from target's buffer at offset into dst.
//
// The source must not be modified by a Put in the same epoch.
func (w *Window) Get(target, offset int, dst []byte) error {
	buf, err := w.target(target, offset, len(dst), "get")
	if err != nil {
		return err
	}

	w.state.locks[target].Lock()
	copy(dst, buf[offset:offset+len(dst)])
	w.state.locks[target].Unlock()

	return nil
}

func (w *Window) target(target, offset, n int, op string) ([]byte, error) {
	st := w.state
	st.mu.Lock()
	closed := st.closed
	st.mu.Unlock()
	if closed {
		return nil, errs.ErrWindowClosed
	}
	if target < 0 || target >= len(st.bufs) {
		return nil, fmt.Errorf("%w: window target %d", errs.ErrUnknownTarget, target)
	}

	buf := st.bufs[target]
	if offset < 0 || offset+n > len(buf) {
		return nil, fmt.Errorf("%w: %s %d+%d in %d-byte window of rank %d",
			errs.ErrOffsetOutOfRange, op, offset, n, len(buf), target)
	}

	return buf, nil
}

// Fence completes every Put issued since the previous Fence. It is collective.
func (w *Window) Fence(ctx context.Context) error {
	return w.comm.Barrier(ctx)
}

// Close ends the access epoch and releases the window. It is collective.
func (w *Window) Close(ctx context.Context) error {
	if err := w.comm.Barrier(ctx); err != nil {
		return err
	}

	w.state.mu.Lock()
	w.state.closed = true
	w.state.mu.Unlock()

	w.comm.world.mu.Lock()
	delete(w.comm.world.windows, w.key)
	w.comm.world.mu.Unlock()

	return nil
}
