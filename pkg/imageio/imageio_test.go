package imageio

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/image/tiff"

	"vesseldots/internal/models"
)

// createTestImage creates a 16-bit grayscale image filled by pattern
func createTestImage(width, height int, pattern func(x, y int) uint16) *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetGray16(x, y, color.Gray16{Y: pattern(x, y)})
		}
	}
	return img
}

func writeTIFF(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create %s: %v", path, err)
	}
	defer f.Close()
	if err := tiff.Encode(f, img, nil); err != nil {
		t.Fatalf("Failed to encode %s: %v", path, err)
	}
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("Failed to encode %s: %v", path, err)
	}
}

func mkdir(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0755); err != nil {
		t.Fatalf("Failed to create %s: %v", path, err)
	}
}

func TestFindImages(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b", "a", "Results", ".hidden"} {
		mkdir(t, filepath.Join(dir, name))
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	names, err := FindImages(dir, "Results")
	if err != nil {
		t.Fatalf("FindImages failed: %v", err)
	}
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("Expected [a b], got %v", names)
	}

	if _, err := FindImages(t.TempDir()); !errors.Is(err, models.ErrInput) {
		t.Errorf("Expected ErrInput for an empty directory, got %v", err)
	}
}

func TestLoadChannelOrderAndValues(t *testing.T) {
	dir := t.TempDir()
	chDir := filepath.Join(dir, "dots")
	mkdir(t, chDir)
	// z10 must come after z9 and z2
	for _, z := range []int{10, 2, 9} {
		z := z
		writeTIFF(t, filepath.Join(chDir, fmt.Sprintf("z%d.tif", z)), createTestImage(5, 4, func(x, y int) uint16 {
			return uint16(1000*z + 10*y + x)
		}))
	}

	vol, err := LoadChannel(dir, "dots", models.DefaultCalibration())
	if err != nil {
		t.Fatalf("LoadChannel failed: %v", err)
	}
	if vol.Width != 5 || vol.Height != 4 || vol.Depth != 3 {
		t.Fatalf("Expected 5x4x3, got %dx%dx%d", vol.Width, vol.Height, vol.Depth)
	}
	for z, want := range []float32{2000, 9000, 10000} {
		if got := vol.At(0, 0, z); got != want {
			t.Errorf("Plane %d: expected %g, got %g", z, want, got)
		}
	}
	if got := vol.At(3, 2, 1); got != 9023 {
		t.Errorf("Expected raw 16-bit value 9023, got %g", got)
	}
}

func TestLoadChannelPNG(t *testing.T) {
	dir := t.TempDir()
	chDir := filepath.Join(dir, "vessels")
	mkdir(t, chDir)
	img := image.NewGray(image.Rect(0, 0, 3, 3))
	img.SetGray(1, 1, color.Gray{Y: 200})
	writePNG(t, filepath.Join(chDir, "plane_1.png"), img)

	vol, err := LoadChannel(dir, "vessels", models.DefaultCalibration())
	if err != nil {
		t.Fatalf("LoadChannel failed: %v", err)
	}
	if vol.Depth != 1 || vol.At(1, 1, 0) != 200 || vol.At(0, 0, 0) != 0 {
		t.Errorf("Unexpected volume contents")
	}
}

func TestLoadChannelErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadChannel(dir, "missing", models.DefaultCalibration()); !errors.Is(err, models.ErrInput) {
		t.Errorf("Expected ErrInput for a missing channel, got %v", err)
	}

	chDir := filepath.Join(dir, "mixed")
	mkdir(t, chDir)
	writeTIFF(t, filepath.Join(chDir, "z1.tif"), createTestImage(4, 4, func(x, y int) uint16 { return 0 }))
	writeTIFF(t, filepath.Join(chDir, "z2.tif"), createTestImage(5, 4, func(x, y int) uint16 { return 0 }))
	if _, err := LoadChannel(dir, "mixed", models.DefaultCalibration()); !errors.Is(err, models.ErrInput) {
		t.Errorf("Expected ErrInput for mismatched planes, got %v", err)
	}

	bad := filepath.Join(dir, "bad")
	mkdir(t, bad)
	if err := os.WriteFile(filepath.Join(bad, "z1.tif"), []byte("not a tiff"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadChannel(dir, "bad", models.DefaultCalibration()); !errors.Is(err, models.ErrInput) {
		t.Errorf("Expected ErrInput for an undecodable plane, got %v", err)
	}
}

func TestChannels(t *testing.T) {
	dir := t.TempDir()
	mkdir(t, filepath.Join(dir, "vessels"))
	mkdir(t, filepath.Join(dir, "dots"))
	names, err := Channels(dir)
	if err != nil {
		t.Fatalf("Channels failed: %v", err)
	}
	if len(names) != 2 || names[0] != "dots" || names[1] != "vessels" {
		t.Errorf("Expected [dots vessels], got %v", names)
	}
}

func TestLoadCalibration(t *testing.T) {
	dir := t.TempDir()
	cal, err := LoadCalibration(dir)
	if err != nil {
		t.Fatalf("LoadCalibration failed: %v", err)
	}
	if cal != models.DefaultCalibration() {
		t.Errorf("Expected default calibration, got %+v", cal)
	}

	content := "pixelWidth: 0.311\npixelDepth: 1.5\n"
	if err := os.WriteFile(filepath.Join(dir, CalibrationFile), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	cal, err = LoadCalibration(dir)
	if err != nil {
		t.Fatalf("LoadCalibration failed: %v", err)
	}
	if cal.PixelWidth != 0.311 || cal.PixelHeight != 0.311 || cal.PixelDepth != 1.5 || cal.Unit != "microns" {
		t.Errorf("Unexpected calibration %+v", cal)
	}

	if err := os.WriteFile(filepath.Join(dir, CalibrationFile), []byte("pixelWidth: [oops"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadCalibration(dir); !errors.Is(err, models.ErrInput) {
		t.Errorf("Expected ErrInput for malformed calibration, got %v", err)
	}
}

func TestExtractNumber(t *testing.T) {
	tests := map[string]int{
		"z0010.tif":     10,
		"plane_7.png":   7,
		"noNumber.tiff": 0,
		"c1_z3.tif":     13,
	}
	for name, want := range tests {
		if got := extractNumber(name); got != want {
			t.Errorf("extractNumber(%q) = %d, want %d", name, got, want)
		}
	}
}
