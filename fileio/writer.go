package fileio

import (
	"context"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/arloliu/hzvol/agg"
	"github.com/arloliu/hzvol/chunk"
	"github.com/arloliu/hzvol/compress"
	"github.com/arloliu/hzvol/config"
	"github.com/arloliu/hzvol/endian"
	"github.com/arloliu/hzvol/errs"
	"github.com/arloliu/hzvol/format"
	"github.com/arloliu/hzvol/internal/options"
	"github.com/arloliu/hzvol/internal/pool"
	"github.com/arloliu/hzvol/logging"
	"github.com/arloliu/hzvol/section"
)

// Future is the pending write of one buffer.
type Future struct {
	done chan struct{}
	err  error
}

// Wait blocks until the write finished and returns its error.
func (f *Future) Wait() error {
	<-f.done
	return f.err
}

// Writer writes the aggregated buffers of one time step.
//
// A Writer is safe for concurrent use. Buffers handed to WriteAsync must not be modified until
// their write completed.
type Writer struct {
	pipeline *config.Pipeline
	step     int
	codec    compress.Codec
	swap     bool
	settings *settings
	group    errgroup.Group

	mu    sync.Mutex
	stats compress.Stats
	files map[int]struct{}
}

// NewWriter creates a writer for time step step.
func NewWriter(p *config.Pipeline, step int, opts ...Option) (*Writer, error) {
	s := defaultSettings()
	if err := options.Apply(s, opts...); err != nil {
		return nil, err
	}

	cfg := p.Config()
	codec, err := compress.New(cfg.Compression, cfg.CompressionLevel)
	if err != nil {
		return nil, err
	}

	w := &Writer{
		pipeline: p,
		step:     step,
		codec:    codec,
		swap:     endian.NeedsSwap(cfg.Endianness),
		settings: s,
		stats:    compress.Stats{Algorithm: codec.Type()},
		files:    make(map[int]struct{}),
	}
	w.group.SetLimit(s.concurrency)

	return w, nil
}

// WriteAsync schedules the write of buf. It blocks while the writer is at its concurrency limit.
func (w *Writer) WriteAsync(ctx context.Context, buf *agg.Buffer) *Future {
	f := &Future{done: make(chan struct{})}
	w.group.Go(func() error {
		defer close(f.done)
		f.err = w.Write(ctx, buf)

		return f.err
	})

	return f
}

// Wait blocks until every scheduled write finished and returns the first error.
func (w *Writer) Wait() error {
	return w.group.Wait()
}

// Stats returns the compression statistics of the blocks written so far.
func (w *Writer) Stats() compress.Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.stats
}

// Files returns the number of distinct files written so far.
func (w *Writer) Files() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	return len(w.files)
}

// Write stores the blocks of buf and their block table entries.
func (w *Writer) Write(ctx context.Context, buf *agg.Buffer) error {
	seg := buf.Segment
	if len(seg.Blocks) == 0 {
		return nil
	}

	dir := w.pipeline.TimeDir(w.step)
	path := w.pipeline.FilePath(w.step, seg.File)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("%w: %s: %w", errs.ErrOpenFailed, dir, err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, filePerm)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", errs.ErrOpenFailed, path, err)
	}

	stored, werr := w.writeBlocks(ctx, f, buf)
	if cerr := f.Close(); werr == nil && cerr != nil {
		werr = fmt.Errorf("%w: close %s: %w", errs.ErrWriteFailed, path, cerr)
	}
	if werr != nil {
		return werr
	}

	raw := len(seg.Blocks) * buf.BlockBytes
	w.mu.Lock()
	w.stats.Add(raw, stored)
	w.files[seg.File] = struct{}{}
	w.mu.Unlock()

	w.settings.logger.Debugf("wrote %d blocks of %s to %s: %s on disk of %s",
		len(seg.Blocks), w.pipeline.Variable(seg.Variable).Name, path, logging.Bytes(stored), logging.Bytes(raw))

	return nil
}

func (w *Writer) writeBlocks(ctx context.Context, f *os.File, buf *agg.Buffer) (int, error) {
	seg := buf.Segment
	v := seg.Variable
	bpf := w.pipeline.BlocksPerFile()
	width := w.pipeline.Variable(v).BytesPerValue()
	table := section.NewHeader(len(w.pipeline.Variables()), bpf)

	scratch, release := pool.GetByteSlice(buf.BlockBytes)
	defer release()

	stored := 0
	for k, block := range seg.Blocks {
		if err := ctx.Err(); err != nil {
			return stored, err
		}

		payload := buf.Block(k)
		if w.swap {
			copy(scratch, payload)
			if err := endian.SwapInPlace(scratch, width); err != nil {
				return stored, fmt.Errorf("%w: %w", errs.ErrUnsupportedDataType, err)
			}
			payload = scratch
		}

		if block != 0 && w.codec.Type() != format.CompressionNone {
			frame, err := chunk.Compress(w.codec, payload, w.pipeline.ChunkBox())
			if err != nil {
				return stored, err
			}
			if frame != nil {
				payload = frame
			}
		}

		off := BlockOffset(w.pipeline, seg.File, v, seg.Slots[k])
		if err := writeAt(f, payload, off); err != nil {
			return stored, err
		}

		local := int(block) % bpf
		entry := section.BlockEntry{Offset: uint32(off), Length: uint32(len(payload))} //nolint: gosec
		if err := writeAt(f, entry.Bytes(), int64(table.EntryOffset(v, local))); err != nil {
			return stored, err
		}
		stored += len(payload)
	}

	return stored, nil
}

func writeAt(f *os.File, data []byte, off int64) error {
	n, err := f.WriteAt(data, off)
	if err != nil {
		return fmt.Errorf("%w: %s at %d: %w", errs.ErrWriteFailed, f.Name(), off, err)
	}
	if n != len(data) {
		return fmt.Errorf("%w: %s at %d: %d of %d bytes", errs.ErrShortWrite, f.Name(), off, n, len(data))
	}

	return nil
}
