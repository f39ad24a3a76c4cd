// Package verify generates a synthetic volume and checks data read back against it.
//
// The value of component c of the sample at p is 100 + LinearOffset(p) + c, converted to the
// variable's data type in host byte order. A check never fails the run: it returns a Report.
package verify

import (
	"context"
	"fmt"
	"math"

	"github.com/RoaringBitmap/roaring"

	"github.com/arloliu/hzvol/comm"
	"github.com/arloliu/hzvol/endian"
	"github.com/arloliu/hzvol/errs"
	"github.com/arloliu/hzvol/format"
	"github.com/arloliu/hzvol/grid"
	"github.com/arloliu/hzvol/internal/hash"
	"github.com/arloliu/hzvol/logging"
	"github.com/arloliu/hzvol/patch"
)

// Base is the value of the sample at the origin.
const Base = 100

var hostEngine = endian.EngineFor(endian.HostOrder())

// Value returns the expected value of component comp of the sample at p.
func Value(bounds grid.Box, p grid.Point3d, comp int) float64 {
	return float64(Base + bounds.LinearOffset(p) + comp)
}

// PutValue encodes x as one value of type typ into b.
func PutValue(b []byte, typ format.DataType, x float64) error {
	switch typ {
	case format.TypeUint8:
		b[0] = uint8(int64(x)) //nolint: gosec
	case format.TypeInt16, format.TypeUint16:
		hostEngine.PutUint16(b, uint16(int64(x))) //nolint: gosec
	case format.TypeInt32, format.TypeUint32:
		hostEngine.PutUint32(b, uint32(int64(x))) //nolint: gosec
	case format.TypeInt64, format.TypeUint64:
		hostEngine.PutUint64(b, uint64(int64(x))) //nolint: gosec
	case format.TypeFloat32:
		hostEngine.PutUint32(b, math.Float32bits(float32(x)))
	case format.TypeFloat64:
		hostEngine.PutUint64(b, math.Float64bits(x))
	default:
		return fmt.Errorf("%w: %s", errs.ErrUnsupportedDataType, typ)
	}

	return nil
}

// Fill writes the synthetic pattern into every sample of p, whose data is row-major.
func Fill(p *patch.Patch, bounds grid.Box, v patch.Variable) error {
	bps := v.BytesPerSample()
	bpv := v.BytesPerValue()
	if err := p.CheckSize(bps); err != nil {
		return err
	}

	for i := 0; i < p.Box.Volume(); i++ {
		pt := p.Box.PointAt(i)
		sample := p.Data[i*bps : (i+1)*bps]
		for c := 0; c < v.ValuesPerSample; c++ {
			if err := PutValue(sample[c*bpv:], v.Type, Value(bounds, pt, c)); err != nil {
				return err
			}
		}
	}

	return nil
}

// NewPatch allocates a row-major patch of box filled with the synthetic pattern.
func NewPatch(rank, index int, box, bounds grid.Box, v patch.Variable) (*patch.Patch, error) {
	p := patch.NewPatch(rank, index, box, v.BytesPerSample())
	if err := Fill(p, bounds, v); err != nil {
		return nil, err
	}

	return p, nil
}

// Report summarizes a consistency check.
type Report struct {
	Volume     int    // samples examined
	Expected   int    // samples the caller expected to examine
	Mismatches int    // examined samples differing from the pattern
	Checksum   uint64 // xxHash64 of the examined samples, in examination order
	Passed     bool
}

func (r Report) String() string {
	status := "PASS"
	if !r.Passed {
		status = "FAIL"
	}

	return fmt.Sprintf("%s: %s of %s samples checked, %s mismatches",
		status, logging.Count(r.Volume), logging.Count(r.Expected), logging.Count(r.Mismatches))
}

// Check compares the row-major samples of p with the pattern. When mask is non-nil only the
// samples whose index within p is in mask are examined.
func Check(p *patch.Patch, bounds grid.Box, v patch.Variable, mask *roaring.Bitmap, expected int) Report {
	bps := v.BytesPerSample()
	bpv := v.BytesPerValue()
	want := make([]byte, bps)
	digest := hash.NewDigest()
	r := Report{Expected: expected}

	check := func(i int) {
		if (i+1)*bps > len(p.Data) {
			r.Mismatches++
			return
		}
		pt := p.Box.PointAt(i)
		for c := 0; c < v.ValuesPerSample; c++ {
			if err := PutValue(want[c*bpv:], v.Type, Value(bounds, pt, c)); err != nil {
				r.Mismatches++
				return
			}
		}
		got := p.Data[i*bps : (i+1)*bps]
		_, _ = digest.Write(got)
		if string(got) != string(want) {
			r.Mismatches++
		}
	}

	if mask == nil {
		for i := 0; i < p.Box.Volume(); i++ {
			check(i)
			r.Volume++
		}
	} else {
		it := mask.Iterator()
		for it.HasNext() {
			check(int(it.Next()))
			r.Volume++
		}
	}

	r.Checksum = digest.Sum64()
	r.Passed = r.Mismatches == 0 && r.Volume == r.Expected

	return r
}

// Merge sums the reports of every rank of c and judges the totals against expected. The merged
// checksum covers the per-rank checksums in rank order. It is collective over c.
func Merge(ctx context.Context, c *comm.Comm, r Report, expected int) (Report, error) {
	all, err := c.AllgatherInts(ctx, []int{r.Volume, r.Mismatches, int(r.Checksum)}) //nolint: gosec
	if err != nil {
		return Report{}, err
	}

	out := Report{Expected: expected}
	sums := make([]int, 0, len(all))
	for _, vals := range all {
		out.Volume += vals[0]
		out.Mismatches += vals[1]
		sums = append(sums, vals[2])
	}
	out.Checksum = hash.Checksum(comm.EncodeInts(sums))
	out.Passed = out.Mismatches == 0 && out.Volume == expected

	return out, nil
}
