// Package imageio reads multichannel z-stacks from disk.
//
// An input directory holds one subdirectory per image. Each image directory
// holds one subdirectory per channel, whose files are the z-planes of that
// channel (.tif, .tiff, .png, .jpg), ordered by the number in their file name.
// An optional calibration.yaml in the image directory gives the voxel size.
package imageio

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/image/tiff"
	"gopkg.in/yaml.v3"

	"vesseldots/internal/models"
)

// CalibrationFile is the per-image calibration file name
const CalibrationFile = "calibration.yaml"

var planeExtensions = map[string]bool{
	".tif":  true,
	".tiff": true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

// FindImages returns the image directory names under dir in sorted order,
// skipping any directory named in exclude
func FindImages(dir string, exclude ...string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("error reading input directory %s: %v: %w", dir, err, models.ErrInput)
	}
	skip := map[string]bool{}
	for _, e := range exclude {
		skip[e] = true
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() || skip[e.Name()] || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no images found in %s: %w", dir, models.ErrInput)
	}
	sort.Strings(names)
	return names, nil
}

// Channels returns the channel names of an image directory in sorted order
func Channels(imageDir string) ([]string, error) {
	entries, err := os.ReadDir(imageDir)
	if err != nil {
		return nil, fmt.Errorf("error reading image directory %s: %v: %w", imageDir, err, models.ErrInput)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// LoadCalibration reads calibration.yaml from imageDir. A missing file yields
// the 1 micron default; a partial file keeps the default for missing fields
// and a missing pixelHeight follows pixelWidth.
func LoadCalibration(imageDir string) (models.Calibration, error) {
	cal := models.DefaultCalibration()
	data, err := os.ReadFile(filepath.Join(imageDir, CalibrationFile))
	if errors.Is(err, fs.ErrNotExist) {
		return cal, nil
	}
	if err != nil {
		return cal, fmt.Errorf("error reading calibration: %v: %w", err, models.ErrInput)
	}

	var file models.Calibration
	if err := yaml.Unmarshal(data, &file); err != nil {
		return cal, fmt.Errorf("error parsing calibration: %v: %w", err, models.ErrInput)
	}
	if file.PixelWidth > 0 {
		cal.PixelWidth = file.PixelWidth
		cal.PixelHeight = file.PixelWidth
	}
	if file.PixelHeight > 0 {
		cal.PixelHeight = file.PixelHeight
	}
	if file.PixelDepth > 0 {
		cal.PixelDepth = file.PixelDepth
	}
	if file.Unit != "" {
		cal.Unit = file.Unit
	}
	return cal, nil
}

// LoadSlices decodes the z-planes of one channel in stack order
func LoadSlices(channelDir string) ([]models.Slice, error) {
	entries, err := os.ReadDir(channelDir)
	if err != nil {
		return nil, fmt.Errorf("error reading channel directory %s: %v: %w", channelDir, err, models.ErrInput)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && planeExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			files = append(files, e.Name())
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no planes found in %s: %w", channelDir, models.ErrInput)
	}

	// Sort by the number in the file name so plane10 follows plane9
	sort.SliceStable(files, func(i, j int) bool {
		ni, nj := extractNumber(files[i]), extractNumber(files[j])
		if ni != nj {
			return ni < nj
		}
		return files[i] < files[j]
	})

	slices := make([]models.Slice, 0, len(files))
	for i, name := range files {
		img, err := loadImage(filepath.Join(channelDir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to load plane %s: %v: %w", name, err, models.ErrInput)
		}
		slices = append(slices, models.Slice{Image: img, Index: i, Filename: name})
	}
	return slices, nil
}

// LoadChannel reads one channel of an image directory as a volume
func LoadChannel(imageDir, channel string, cal models.Calibration) (*models.Volume, error) {
	slices, err := LoadSlices(filepath.Join(imageDir, channel))
	if err != nil {
		return nil, err
	}
	return Stack(slices, cal)
}

// Stack converts decoded planes into a volume. Every plane must have the
// size of the first one.
func Stack(slices []models.Slice, cal models.Calibration) (*models.Volume, error) {
	if len(slices) == 0 {
		return nil, fmt.Errorf("no planes to stack: %w", models.ErrInput)
	}
	b := slices[0].Image.Bounds()
	vol := models.NewVolume(b.Dx(), b.Dy(), len(slices), cal)
	for z, s := range slices {
		sb := s.Image.Bounds()
		if sb.Dx() != vol.Width || sb.Dy() != vol.Height {
			return nil, fmt.Errorf("plane %s is %dx%d, expected %dx%d: %w",
				s.Filename, sb.Dx(), sb.Dy(), vol.Width, vol.Height, models.ErrInput)
		}
		imageToPlane(s.Image, vol.Plane(z))
	}
	return vol, nil
}

// extractNumber extracts the numeric part from a filename
func extractNumber(filename string) int {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	numStr := ""
	for _, c := range base {
		if c >= '0' && c <= '9' {
			numStr += string(c)
		}
	}
	if numStr != "" {
		if num, err := strconv.Atoi(numStr); err == nil {
			return num
		}
	}
	return 0
}

// loadImage decodes a plane by file extension
func loadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff":
		return tiff.Decode(file)
	case ".png":
		return png.Decode(file)
	default:
		return jpeg.Decode(file)
	}
}

// imageToPlane writes raw intensities into plane. Gray images keep their
// stored values; other models are converted to 16-bit luminance.
func imageToPlane(img image.Image, plane []float32) {
	b := img.Bounds()
	w := b.Dx()
	switch im := img.(type) {
	case *image.Gray16:
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < w; x++ {
				plane[y*w+x] = float32(im.Gray16At(b.Min.X+x, b.Min.Y+y).Y)
			}
		}
	case *image.Gray:
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < w; x++ {
				plane[y*w+x] = float32(im.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
			}
		}
	default:
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < w; x++ {
				g := color.Gray16Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray16)
				plane[y*w+x] = float32(g.Y)
			}
		}
	}
}
