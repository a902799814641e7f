package objects

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Point3d is a voxel coordinate (x, y, z)
type Point3d [3]int32

// SetMinimum sets p to the component-wise minimum of p and p2
func (p *Point3d) SetMinimum(p2 Point3d) {
	for i := range p {
		if p2[i] < p[i] {
			p[i] = p2[i]
		}
	}
}

// SetMaximum sets p to the component-wise maximum of p and p2
func (p *Point3d) SetMaximum(p2 Point3d) {
	for i := range p {
		if p2[i] > p[i] {
			p[i] = p2[i]
		}
	}
}

func (p Point3d) String() string {
	return fmt.Sprintf("(%d,%d,%d)", p[0], p[1], p[2])
}

// less orders points by z, then y, then x
func (p Point3d) less(q Point3d) bool {
	if p[2] != q[2] {
		return p[2] < q[2]
	}
	if p[1] != q[1] {
		return p[1] < q[1]
	}
	return p[0] < q[0]
}

// RLE is a single run of voxels along x starting at Start
type RLE struct {
	Start  Point3d
	Length int32
}

// End returns the last voxel of the run
func (r RLE) End() Point3d {
	return Point3d{r.Start[0] + r.Length - 1, r.Start[1], r.Start[2]}
}

// RLEs is a list of runs ordered by (z, y, x)
type RLEs []RLE

// Stats returns the total number of voxels and runs
func (rles RLEs) Stats() (numVoxels, numRuns int32) {
	for _, rle := range rles {
		numVoxels += rle.Length
	}
	return numVoxels, int32(len(rles))
}

// MarshalBinary fulfills the encoding.BinaryMarshaler interface: 16 bytes per run,
// x, y, z, length as little-endian int32.
func (rles RLEs) MarshalBinary() ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Grow(16 * len(rles))
	for _, rle := range rles {
		if err := binary.Write(buf, binary.LittleEndian, rle.Start); err != nil {
			return nil, err
		}
		if err := binary.Write(buf, binary.LittleEndian, rle.Length); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary fulfills the encoding.BinaryUnmarshaler interface.
func (rles *RLEs) UnmarshalBinary(b []byte) error {
	if len(b)%16 != 0 {
		return fmt.Errorf("RLE encoding # bytes is not divisible by 16: %d", len(b))
	}
	numRLEs := len(b) / 16
	*rles = make(RLEs, numRLEs)
	for i := 0; i < numRLEs; i++ {
		off := 16 * i
		(*rles)[i] = RLE{
			Start: Point3d{
				int32(binary.LittleEndian.Uint32(b[off:])),
				int32(binary.LittleEndian.Uint32(b[off+4:])),
				int32(binary.LittleEndian.Uint32(b[off+8:])),
			},
			Length: int32(binary.LittleEndian.Uint32(b[off+12:])),
		}
	}
	return nil
}
