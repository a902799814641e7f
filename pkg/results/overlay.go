package results

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"

	"golang.org/x/image/tiff"

	"vesseldots/internal/models"
	"vesseldots/pkg/objects"
)

// Overlay renders the three populations of an image as a colour composite:
// dots inside vessels in red, dots outside in green, vessels in blue.
type Overlay struct {
	vessels, inside, outside []int32

	width  int
	height int
	depth  int
}

// NewOverlay rasterizes the populations; all three must share the same size
func NewOverlay(vessels, inside, outside *objects.Population) (*Overlay, error) {
	for _, p := range []*objects.Population{inside, outside} {
		if p.Width != vessels.Width || p.Height != vessels.Height || p.Depth != vessels.Depth {
			return nil, fmt.Errorf("overlay populations differ in size: %w", models.ErrInvalidInput)
		}
	}
	return &Overlay{
		vessels: vessels.Rasterize(),
		inside:  inside.Rasterize(),
		outside: outside.Rasterize(),
		width:   vessels.Width,
		height:  vessels.Height,
		depth:   vessels.Depth,
	}, nil
}

func (o *Overlay) colorAt(idx int) color.RGBA {
	c := color.RGBA{A: 255}
	if o.inside[idx] != 0 {
		c.R = 255
	}
	if o.outside[idx] != 0 {
		c.G = 255
	}
	if o.vessels[idx] != 0 {
		c.B = 255
	}
	return c
}

// ExtractSlice renders one plane of the composite perpendicular to axis
func (o *Overlay) ExtractSlice(axis string, position int) (image.Image, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}
	plane := o.width * o.height

	switch axis {
	case "x", "X":
		if position >= o.width {
			return nil, fmt.Errorf("position %d exceeds width %d", position, o.width)
		}
		img := image.NewRGBA(image.Rect(0, 0, o.depth, o.height))
		for y := 0; y < o.height; y++ {
			for z := 0; z < o.depth; z++ {
				img.SetRGBA(z, y, o.colorAt(z*plane+y*o.width+position))
			}
		}
		return img, nil

	case "y", "Y":
		if position >= o.height {
			return nil, fmt.Errorf("position %d exceeds height %d", position, o.height)
		}
		img := image.NewRGBA(image.Rect(0, 0, o.width, o.depth))
		for z := 0; z < o.depth; z++ {
			for x := 0; x < o.width; x++ {
				img.SetRGBA(x, z, o.colorAt(z*plane+position*o.width+x))
			}
		}
		return img, nil

	case "z", "Z":
		if position >= o.depth {
			return nil, fmt.Errorf("position %d exceeds depth %d", position, o.depth)
		}
		img := image.NewRGBA(image.Rect(0, 0, o.width, o.height))
		for y := 0; y < o.height; y++ {
			for x := 0; x < o.width; x++ {
				img.SetRGBA(x, y, o.colorAt(position*plane+y*o.width+x))
			}
		}
		return img, nil

	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}
}

// SaveSlice writes img as a deflate-compressed TIFF
func SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := tiff.Encode(file, img, &tiff.Options{Compression: tiff.Deflate}); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// SaveSliceSequence writes every slice along axis to outputDir
func (o *Overlay) SaveSliceSequence(axis string, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("error creating overlay directory: %v: %w", err, models.ErrIO)
	}

	var maxPos int
	switch axis {
	case "x", "X":
		maxPos = o.width
	case "y", "Y":
		maxPos = o.height
	case "z", "Z":
		maxPos = o.depth
	default:
		return fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	for pos := 0; pos < maxPos; pos++ {
		img, err := o.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}
		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.tif", axis, pos))
		if err := SaveSlice(img, filename); err != nil {
			return fmt.Errorf("error writing %s: %v: %w", filename, err, models.ErrIO)
		}
	}
	return nil
}

// WriteOverlay saves the z-planes of the composite of one image under
// dir/<name>_objects/
func WriteOverlay(dir, name string, vessels, inside, outside *objects.Population) (string, error) {
	o, err := NewOverlay(vessels, inside, outside)
	if err != nil {
		return "", err
	}
	out := filepath.Join(dir, name+"_objects")
	return out, o.SaveSliceSequence("z", out)
}
