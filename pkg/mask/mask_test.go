package mask

import (
	"errors"
	"testing"

	"vesseldots/internal/models"
	"vesseldots/pkg/roi"
)

func blockVolume() *models.Volume {
	vol := models.NewVolume(10, 10, 5, models.DefaultCalibration())
	for z := 0; z < 5; z++ {
		for y := 3; y < 7; y++ {
			for x := 3; x < 7; x++ {
				vol.Set(x, y, z, 200)
			}
		}
	}
	return vol
}

func TestBuildAtLevelBlock(t *testing.T) {
	m, err := BuildAtLevel(blockVolume(), 199, Options{})
	if err != nil {
		t.Fatalf("BuildAtLevel failed: %v", err)
	}
	if m.Count() != 80 {
		t.Errorf("Expected 80 foreground voxels, got %d", m.Count())
	}
	if !m.IsSet(3, 3, 0) || m.IsSet(2, 3, 0) {
		t.Error("Foreground does not match the block")
	}
}

func TestBuild(t *testing.T) {
	m, err := Build(blockVolume(), Options{Method: "Otsu"})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if m.Count() != 80 {
		t.Errorf("Expected 80 foreground voxels, got %d", m.Count())
	}

	if _, err := Build(blockVolume(), Options{Method: "Nope"}); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for an unknown method, got %v", err)
	}
	empty := models.NewVolume(0, 0, 0, models.DefaultCalibration())
	if _, err := Build(empty, Options{Method: "Otsu"}); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for an empty volume, got %v", err)
	}
}

func TestFillHoles(t *testing.T) {
	// a 5x5 ring with a 3x3 hole on plane 0, and a U open to the border on plane 1
	m := models.NewMask(9, 9, 2, models.DefaultCalibration())
	for y := 2; y <= 6; y++ {
		for x := 2; x <= 6; x++ {
			if x == 2 || x == 6 || y == 2 || y == 6 {
				m.Data[m.Index(x, y, 0)] = models.Foreground
			}
		}
	}
	for y := 0; y <= 6; y++ {
		m.Data[m.Index(2, y, 1)] = models.Foreground
		m.Data[m.Index(6, y, 1)] = models.Foreground
	}
	for x := 2; x <= 6; x++ {
		m.Data[m.Index(x, 6, 1)] = models.Foreground
	}
	before := m.Count()

	FillHoles(m)
	if !m.IsSet(4, 4, 0) {
		t.Error("Expected the enclosed hole to be filled")
	}
	if m.IsSet(0, 0, 0) {
		t.Error("Background touching the border must stay background")
	}
	if m.IsSet(4, 3, 1) {
		t.Error("A region open to the border is not a hole")
	}
	if m.Count() != before+9 {
		t.Errorf("Expected 9 filled voxels, got %d", m.Count()-before)
	}
}

func TestClearROIs(t *testing.T) {
	rois := roi.Set{roi.Rectangle("artifact", 3, 3, 5, 5)}
	m, err := BuildAtLevel(blockVolume(), 100, Options{ROIs: rois})
	if err != nil {
		t.Fatalf("BuildAtLevel failed: %v", err)
	}
	if m.Count() != 80-4*5 {
		t.Errorf("Expected 60 voxels after clearing, got %d", m.Count())
	}
	if m.IsSet(4, 4, 2) {
		t.Error("Expected region voxels to be cleared on every plane")
	}
}
