package classify

import (
	"errors"
	"testing"

	"vesseldots/internal/models"
	"vesseldots/pkg/objects"
)

func population(w, h, d int, objs ...[]objects.Point3d) *objects.Population {
	pop := objects.NewPopulation(w, h, d, models.DefaultCalibration())
	for i, voxels := range objs {
		pop.Objects = append(pop.Objects, objects.NewObjectFromVoxels(i+1, voxels))
	}
	return pop
}

func box(x0, y0, z0, x1, y1, z1 int) []objects.Point3d {
	var pts []objects.Point3d
	for z := z0; z <= z1; z++ {
		for y := y0; y <= y1; y++ {
			for x := x0; x <= x1; x++ {
				pts = append(pts, objects.Point3d{int32(x), int32(y), int32(z)})
			}
		}
	}
	return pts
}

func TestDotFullyInside(t *testing.T) {
	dots := population(10, 10, 5, box(4, 4, 2, 6, 4, 2))
	vessels := population(10, 10, 5, box(2, 2, 1, 8, 8, 3))

	in, err := Classify(dots, vessels, Inside)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	out, err := Classify(dots, vessels, Outside)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if in.Len() != 1 || in.Objects[0].NumVoxels() != 3 {
		t.Errorf("Expected one 3-voxel dot inside, got %d objects", in.Len())
	}
	if out.Len() != 0 {
		t.Errorf("Expected no dot outside, got %d", out.Len())
	}
}

func TestStraddlingDotSplits(t *testing.T) {
	// a 6-voxel bar crossing the reference boundary at x = 5
	dots := population(12, 5, 3, box(2, 2, 1, 7, 2, 1), box(10, 0, 0, 10, 0, 0))
	vessels := population(12, 5, 3, box(5, 0, 0, 9, 4, 2))

	in, out, err := Partition(dots, vessels)
	if err != nil {
		t.Fatalf("Partition failed: %v", err)
	}
	if in.Len() != 1 || in.Objects[0].NumVoxels() != 3 {
		t.Errorf("Expected one 3-voxel fragment inside, got %d objects", in.Len())
	}
	if out.Len() != 2 {
		t.Fatalf("Expected the outer fragment and the far dot outside, got %d", out.Len())
	}
	if out.NumVoxels() != 4 {
		t.Errorf("Expected 4 voxels outside, got %d", out.NumVoxels())
	}
}

func TestPartitionComplementary(t *testing.T) {
	w, h, d := 16, 16, 4
	dots := population(w, h, d,
		box(0, 0, 0, 3, 3, 1),
		box(6, 6, 0, 9, 9, 3),
		box(12, 1, 2, 14, 2, 3),
		box(1, 12, 3, 1, 14, 3),
	)
	vessels := population(w, h, d, box(2, 2, 0, 7, 7, 3), box(13, 0, 0, 15, 15, 1))

	in, out, err := Partition(dots, vessels)
	if err != nil {
		t.Fatalf("Partition failed: %v", err)
	}
	if in.NumVoxels()+out.NumVoxels() != dots.NumVoxels() {
		t.Fatalf("Expected %d voxels in total, got %d + %d", dots.NumVoxels(), in.NumVoxels(), out.NumVoxels())
	}

	inRaster, outRaster, dotRaster := in.Rasterize(), out.Rasterize(), dots.Rasterize()
	vesselRaster := vessels.Rasterize()
	for i := range dotRaster {
		switch {
		case inRaster[i] != 0 && outRaster[i] != 0:
			t.Fatalf("Voxel %d is both inside and outside", i)
		case dotRaster[i] == 0 && (inRaster[i] != 0 || outRaster[i] != 0):
			t.Fatalf("Voxel %d is classified but is not a dot voxel", i)
		case inRaster[i] != 0 && vesselRaster[i] == 0:
			t.Fatalf("Voxel %d is inside but not in the reference", i)
		case outRaster[i] != 0 && vesselRaster[i] != 0:
			t.Fatalf("Voxel %d is outside but in the reference", i)
		}
	}
	for _, pop := range []*objects.Population{in, out} {
		for i, o := range pop.Objects {
			if o.Label != i+1 {
				t.Errorf("Expected label %d, got %d", i+1, o.Label)
			}
		}
	}
}

func TestPartitionEmpty(t *testing.T) {
	dots := population(4, 4, 2)
	vessels := population(4, 4, 2, box(0, 0, 0, 3, 3, 1))
	in, out, err := Partition(dots, vessels)
	if err != nil {
		t.Fatalf("Partition failed: %v", err)
	}
	if in.Len() != 0 || out.Len() != 0 {
		t.Error("Expected empty results for no dots")
	}

	dots = population(4, 4, 2, box(1, 1, 0, 1, 1, 0))
	in, out, err = Partition(dots, population(4, 4, 2))
	if err != nil {
		t.Fatalf("Partition failed: %v", err)
	}
	if in.Len() != 0 || out.Len() != 1 {
		t.Errorf("Expected every dot outside an empty reference, got %d in %d out", in.Len(), out.Len())
	}
}

func TestPartitionSizeMismatch(t *testing.T) {
	_, _, err := Partition(population(4, 4, 2), population(4, 4, 3))
	if !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
	if _, err := Classify(population(2, 2, 1), population(2, 2, 1), Membership(7)); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for unknown membership, got %v", err)
	}
}
