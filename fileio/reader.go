package fileio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/arloliu/hzvol/agg"
	"github.com/arloliu/hzvol/chunk"
	"github.com/arloliu/hzvol/compress"
	"github.com/arloliu/hzvol/config"
	"github.com/arloliu/hzvol/endian"
	"github.com/arloliu/hzvol/errs"
	"github.com/arloliu/hzvol/internal/options"
	"github.com/arloliu/hzvol/internal/pool"
	"github.com/arloliu/hzvol/logging"
	"github.com/arloliu/hzvol/section"
)

// Reader reads the blocks of one time step into aggregator buffers. The block table of a file
// is read once per Reader.
type Reader struct {
	pipeline *config.Pipeline
	step     int
	codec    compress.Codec
	swap     bool
	settings *settings

	mu      sync.Mutex
	headers map[int]*section.Header
	loads   singleflight.Group
}

// NewReader creates a reader for time step step.
func NewReader(p *config.Pipeline, step int, opts ...Option) (*Reader, error) {
	s := defaultSettings()
	if err := options.Apply(s, opts...); err != nil {
		return nil, err
	}

	cfg := p.Config()
	codec, err := compress.Get(cfg.Compression)
	if err != nil {
		return nil, err
	}

	return &Reader{
		pipeline: p,
		step:     step,
		codec:    codec,
		swap:     endian.NeedsSwap(cfg.Endianness),
		settings: s,
		headers:  make(map[int]*section.Header),
	}, nil
}

// ReadHeader returns the block table of a file of the time step. The first call per file reads
// and decodes it; failures are not cached.
//
// Returns:
//   - *section.Header: the block table
//   - error: errs.KindIO when the file cannot be opened, errs.KindFormat when it is shorter than
//     its table or an entry points outside the file
func (r *Reader) ReadHeader(file int) (*section.Header, error) {
	r.mu.Lock()
	h, ok := r.headers[file]
	r.mu.Unlock()
	if ok {
		return h, nil
	}

	v, err, _ := r.loads.Do(strconv.Itoa(file), func() (any, error) {
		f, size, err := r.open(file)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		h, err := r.readHeader(f, size)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.headers[file] = h
		r.mu.Unlock()

		return h, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*section.Header), nil
}

func (r *Reader) open(file int) (*os.File, int64, error) {
	path := r.pipeline.FilePath(r.step, file)
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %s: %w", errs.ErrOpenFailed, path, err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("%w: stat %s: %w", errs.ErrReadFailed, path, err)
	}

	return f, st.Size(), nil
}

func (r *Reader) readHeader(f *os.File, size int64) (*section.Header, error) {
	n := r.pipeline.HeaderSize()
	if size < int64(n) {
		return nil, fmt.Errorf("%w: %s holds %d bytes, its table needs %d", errs.ErrInvalidHeaderSize, f.Name(), size, n)
	}

	data := make([]byte, n)
	if err := readAt(f, data, 0); err != nil {
		return nil, err
	}

	return section.ParseHeader(data, len(r.pipeline.Variables()), r.pipeline.BlocksPerFile(), size)
}

// Read fills buf with the blocks of its segment.
func (r *Reader) Read(ctx context.Context, buf *agg.Buffer) error {
	seg := buf.Segment
	if len(seg.Blocks) == 0 {
		return nil
	}

	table, err := r.ReadHeader(seg.File)
	if err != nil {
		return err
	}
	f, _, err := r.open(seg.File)
	if err != nil {
		return err
	}
	defer f.Close()

	v := seg.Variable
	bpf := r.pipeline.BlocksPerFile()
	width := r.pipeline.Variable(v).BytesPerValue()
	stored := 0
	for k, block := range seg.Blocks {
		if err := ctx.Err(); err != nil {
			return err
		}

		local := int(block) % bpf
		entry := table.Entry(v, local)
		if !entry.Present() || int(entry.Length) > buf.BlockBytes {
			return fmt.Errorf("%w: %s variable %d block %d: entry %+v for %d-byte blocks",
				errs.ErrInvalidBlockEntry, f.Name(), v, block, entry, buf.BlockBytes)
		}

		dst := buf.Block(k)
		if err := r.readBlock(f, entry, dst); err != nil {
			return err
		}
		if r.swap {
			if err := endian.SwapInPlace(dst, width); err != nil {
				return fmt.Errorf("%w: %w", errs.ErrUnsupportedDataType, err)
			}
		}
		stored += int(entry.Length)
	}

	r.settings.logger.Debugf("read %d blocks of %s from %s: %s on disk",
		len(seg.Blocks), r.pipeline.Variable(v).Name, f.Name(), logging.Bytes(stored))

	return nil
}

func (r *Reader) readBlock(f *os.File, entry section.BlockEntry, dst []byte) error {
	if int(entry.Length) == len(dst) {
		return readAt(f, dst, int64(entry.Offset))
	}

	frame, release := pool.GetByteSlice(int(entry.Length))
	defer release()
	if err := readAt(f, frame, int64(entry.Offset)); err != nil {
		return err
	}

	out, err := chunk.Decompress(r.codec, frame, r.pipeline.ChunkBox(), len(dst))
	if err != nil {
		return fmt.Errorf("%s at %d: %w", f.Name(), entry.Offset, err)
	}
	copy(dst, out)

	return nil
}

// ReadAll reads every buffer, at most the configured number of files at a time.
func (r *Reader) ReadAll(ctx context.Context, bufs []*agg.Buffer) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.settings.concurrency)
	for _, b := range bufs {
		g.Go(func() error { return r.Read(ctx, b) })
	}

	return g.Wait()
}

func readAt(f *os.File, data []byte, off int64) error {
	n, err := f.ReadAt(data, off)
	if n == len(data) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %s at %d: %d of %d bytes", errs.ErrShortRead, f.Name(), off, n, len(data))
	}

	return fmt.Errorf("%w: %s at %d: %w", errs.ErrReadFailed, f.Name(), off, err)
}
