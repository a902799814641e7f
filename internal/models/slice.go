package models

import (
	"image"
)

// Slice represents a single decoded z-plane of one channel
type Slice struct {
	// Image is the actual plane image data
	Image image.Image

	// Index is the position of this plane in the stack
	Index int

	// Filename is the original filename of the plane
	Filename string
}

// Calibration holds the physical voxel spacing of a stack.
// Lateral spacing is assumed isotropic (PixelHeight == PixelWidth).
type Calibration struct {
	PixelWidth  float64 `yaml:"pixelWidth" toml:"pixel_width"`
	PixelHeight float64 `yaml:"pixelHeight" toml:"pixel_height"`
	PixelDepth  float64 `yaml:"pixelDepth" toml:"pixel_depth"`
	Unit        string  `yaml:"unit" toml:"unit"`
}

// DefaultCalibration returns a 1 micron isotropic calibration
func DefaultCalibration() Calibration {
	return Calibration{PixelWidth: 1, PixelHeight: 1, PixelDepth: 1, Unit: "microns"}
}

// VoxelVolume returns the physical volume of one voxel (pixel_width² × pixel_depth)
func (c Calibration) VoxelVolume() float64 {
	return c.PixelWidth * c.PixelWidth * c.PixelDepth
}

// PixelArea returns the physical area of one pixel in a plane
func (c Calibration) PixelArea() float64 {
	return c.PixelWidth * c.PixelWidth
}

// Valid reports whether all spacings are strictly positive
func (c Calibration) Valid() bool {
	return c.PixelWidth > 0 && c.PixelHeight > 0 && c.PixelDepth > 0
}

// Volume represents one channel of a 3D stack
type Volume struct {
	// Data is the 3D volume data as a 1D array in row-major order (z, y, x)
	Data []float32

	// Width is the width of the volume in voxels
	Width int

	// Height is the height of the volume in voxels
	Height int

	// Depth is the number of z-planes
	Depth int

	// Calibration is the physical spacing of the voxels
	Calibration Calibration
}

// NewVolume allocates a zero-filled volume
func NewVolume(width, height, depth int, cal Calibration) *Volume {
	return &Volume{
		Data:        make([]float32, width*height*depth),
		Width:       width,
		Height:      height,
		Depth:       depth,
		Calibration: cal,
	}
}

// Index returns the offset of voxel (x, y, z) in Data
func (v *Volume) Index(x, y, z int) int {
	return z*v.Width*v.Height + y*v.Width + x
}

// At returns the value of voxel (x, y, z)
func (v *Volume) At(x, y, z int) float32 {
	return v.Data[v.Index(x, y, z)]
}

// Set writes the value of voxel (x, y, z)
func (v *Volume) Set(x, y, z int, value float32) {
	v.Data[v.Index(x, y, z)] = value
}

// Plane returns the z-plane as a sub-slice sharing storage with the volume
func (v *Volume) Plane(z int) []float32 {
	n := v.Width * v.Height
	return v.Data[z*n : (z+1)*n]
}

// Empty reports whether the volume holds no voxels
func (v *Volume) Empty() bool {
	return v == nil || v.Width <= 0 || v.Height <= 0 || v.Depth <= 0 || len(v.Data) == 0
}

// Clone returns a deep copy of the volume
func (v *Volume) Clone() *Volume {
	out := &Volume{
		Data:        make([]float32, len(v.Data)),
		Width:       v.Width,
		Height:      v.Height,
		Depth:       v.Depth,
		Calibration: v.Calibration,
	}
	copy(out.Data, v.Data)
	return out
}

// PhysicalVolume returns the bounding volume of the stack in calibrated units³
func (v *Volume) PhysicalVolume() float64 {
	return float64(v.Width*v.Height*v.Depth) * v.Calibration.VoxelVolume()
}

// Foreground is the value stored in a Mask for foreground voxels
const Foreground uint8 = 255

// Mask is a binary volume produced by thresholding
type Mask struct {
	Data        []uint8
	Width       int
	Height      int
	Depth       int
	Calibration Calibration
}

// NewMask allocates an all-background mask
func NewMask(width, height, depth int, cal Calibration) *Mask {
	return &Mask{
		Data:        make([]uint8, width*height*depth),
		Width:       width,
		Height:      height,
		Depth:       depth,
		Calibration: cal,
	}
}

// Index returns the offset of voxel (x, y, z) in Data
func (m *Mask) Index(x, y, z int) int {
	return z*m.Width*m.Height + y*m.Width + x
}

// IsSet reports whether voxel (x, y, z) is foreground
func (m *Mask) IsSet(x, y, z int) bool {
	return m.Data[m.Index(x, y, z)] != 0
}

// Count returns the number of foreground voxels
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.Data {
		if v != 0 {
			n++
		}
	}
	return n
}
