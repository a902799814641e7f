package objects

import (
	"math"
	"testing"

	"vesseldots/internal/models"
)

// newMask builds a mask with the given foreground voxels
func newMask(w, h, d int, voxels ...Point3d) *models.Mask {
	m := models.NewMask(w, h, d, models.DefaultCalibration())
	for _, p := range voxels {
		m.Data[m.Index(int(p[0]), int(p[1]), int(p[2]))] = models.Foreground
	}
	return m
}

// fillBox sets every voxel of the inclusive box [x0,x1]×[y0,y1]×[z0,z1]
func fillBox(m *models.Mask, x0, y0, z0, x1, y1, z1 int) {
	for z := z0; z <= z1; z++ {
		for y := y0; y <= y1; y++ {
			for x := x0; x <= x1; x++ {
				m.Data[m.Index(x, y, z)] = models.Foreground
			}
		}
	}
}

func TestRLEsMarshalRoundTrip(t *testing.T) {
	rles := RLEs{
		{Start: Point3d{1, 2, 3}, Length: 4},
		{Start: Point3d{-5, 0, 7}, Length: 1},
	}
	b, err := rles.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary failed: %v", err)
	}
	if len(b) != 32 {
		t.Fatalf("Expected 32 bytes, got %d", len(b))
	}
	var got RLEs
	if err := got.UnmarshalBinary(b); err != nil {
		t.Fatalf("UnmarshalBinary failed: %v", err)
	}
	for i := range rles {
		if got[i] != rles[i] {
			t.Errorf("Run %d: expected %v, got %v", i, rles[i], got[i])
		}
	}
	if err := got.UnmarshalBinary(b[:15]); err == nil {
		t.Error("Expected error for truncated encoding")
	}
}

func TestObjectFromVoxels(t *testing.T) {
	obj := NewObjectFromVoxels(3, []Point3d{
		{2, 0, 0}, {0, 0, 0}, {1, 0, 0}, {1, 0, 0}, {5, 0, 0}, {0, 1, 2},
	})
	if obj.NumVoxels() != 5 {
		t.Errorf("Expected 5 voxels, got %d", obj.NumVoxels())
	}
	if len(obj.RLEs()) != 3 {
		t.Errorf("Expected 3 runs, got %d: %v", len(obj.RLEs()), obj.RLEs())
	}
	lo, hi := obj.Bounds()
	if lo != (Point3d{0, 0, 0}) || hi != (Point3d{5, 1, 2}) {
		t.Errorf("Unexpected bounds %v %v", lo, hi)
	}
	for _, p := range []Point3d{{0, 0, 0}, {2, 0, 0}, {5, 0, 0}, {0, 1, 2}} {
		if !obj.Contains(int(p[0]), int(p[1]), int(p[2])) {
			t.Errorf("Expected object to contain %v", p)
		}
	}
	for _, p := range []Point3d{{3, 0, 0}, {1, 1, 2}, {0, 0, 1}} {
		if obj.Contains(int(p[0]), int(p[1]), int(p[2])) {
			t.Errorf("Object should not contain %v", p)
		}
	}
	x, y, z := NewObjectFromVoxels(1, []Point3d{{0, 0, 0}, {1, 0, 0}, {2, 0, 0}}).Centroid()
	if x != 1 || y != 0 || z != 0 {
		t.Errorf("Expected centroid (1,0,0), got (%g,%g,%g)", x, y, z)
	}
}

func TestLabelConnectivity(t *testing.T) {
	tests := []struct {
		name   string
		voxels []Point3d
		want   int
	}{
		{"empty", nil, 0},
		{"single", []Point3d{{1, 1, 1}}, 1},
		{"face neighbours", []Point3d{{1, 1, 1}, {2, 1, 1}}, 1},
		{"edge neighbours", []Point3d{{1, 1, 1}, {2, 2, 1}}, 1},
		{"corner neighbours", []Point3d{{1, 1, 1}, {2, 2, 2}}, 1},
		{"separated", []Point3d{{0, 0, 0}, {2, 0, 0}}, 2},
		{"separated in z", []Point3d{{0, 0, 0}, {0, 0, 2}}, 2},
		// a U shape whose arms only meet on a later row
		{"merge", []Point3d{{0, 0, 0}, {2, 0, 0}, {0, 1, 0}, {2, 1, 0}, {0, 2, 0}, {1, 2, 0}, {2, 2, 0}}, 1},
		// anti-diagonal corner touch across planes
		{"anti-diagonal", []Point3d{{2, 0, 0}, {1, 1, 1}, {0, 2, 2}}, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			pop := Label(newMask(4, 4, 4, tc.voxels...))
			if pop.Len() != tc.want {
				t.Fatalf("Expected %d objects, got %d", tc.want, pop.Len())
			}
			total := 0
			for i, o := range pop.Objects {
				if o.Label != i+1 {
					t.Errorf("Expected label %d, got %d", i+1, o.Label)
				}
				total += o.NumVoxels()
			}
			if total != len(tc.voxels) {
				t.Errorf("Expected %d voxels in total, got %d", len(tc.voxels), total)
			}
		})
	}
}

func TestLabelTransitiveMerge(t *testing.T) {
	// four teeth joined only by a bar below them, plus an isolated voxel at
	// the end of the first row
	m := newMask(10, 4, 1, Point3d{9, 0, 0})
	for x := 0; x <= 6; x += 2 {
		fillBox(m, x, 0, 0, x, 1, 0)
	}
	fillBox(m, 0, 2, 0, 6, 2, 0)

	pop := Label(m)
	if pop.Len() != 2 {
		t.Fatalf("Expected 2 objects, got %d", pop.Len())
	}
	if n := pop.Objects[0].NumVoxels(); n != 15 {
		t.Errorf("Expected the comb to hold 15 voxels, got %d", n)
	}
	if !pop.Objects[0].Contains(6, 0, 0) || !pop.Objects[0].Contains(0, 0, 0) {
		t.Error("Expected every tooth in object 1")
	}
	if pop.Objects[1].NumVoxels() != 1 || !pop.Objects[1].Contains(9, 0, 0) {
		t.Error("Expected object 2 to be the isolated voxel")
	}
}

func TestLabelScanOrder(t *testing.T) {
	// labels follow the scan position of each component's first voxel
	m := newMask(6, 3, 2, Point3d{4, 0, 0}, Point3d{0, 2, 1}, Point3d{4, 1, 1})
	pop := Label(m)
	if pop.Len() != 2 {
		t.Fatalf("Expected 2 objects, got %d", pop.Len())
	}
	if !pop.Objects[0].Contains(4, 0, 0) || !pop.Objects[0].Contains(4, 1, 1) {
		t.Errorf("Expected object 1 to hold the first scanned voxel and its neighbour")
	}
	if !pop.Objects[1].Contains(0, 2, 1) {
		t.Errorf("Expected object 2 to hold (0,2,1)")
	}
}

func TestLabelIdempotence(t *testing.T) {
	m := newMask(8, 8, 3)
	fillBox(m, 0, 0, 0, 2, 2, 1)
	fillBox(m, 5, 5, 0, 7, 7, 2)
	fillBox(m, 0, 6, 2, 1, 7, 2)

	first := Label(m)
	second := LabelNonZero(first.Width, first.Height, first.Depth, first.Calibration, first.Rasterize())
	if first.Len() != second.Len() {
		t.Fatalf("Expected %d objects after relabeling, got %d", first.Len(), second.Len())
	}
	for i := range first.Objects {
		a, b := first.Objects[i].Voxels(), second.Objects[i].Voxels()
		if len(a) != len(b) {
			t.Fatalf("Object %d changed size: %d vs %d", i+1, len(a), len(b))
		}
		for j := range a {
			if a[j] != b[j] {
				t.Fatalf("Object %d differs at voxel %d: %v vs %v", i+1, j, a[j], b[j])
			}
		}
	}

	f1, err := FilterSize(second, 4, 30)
	if err != nil {
		t.Fatalf("FilterSize failed: %v", err)
	}
	f2, err := FilterSize(f1, 4, 30)
	if err != nil {
		t.Fatalf("FilterSize failed: %v", err)
	}
	if f1.Len() != f2.Len() || f1.NumVoxels() != f2.NumVoxels() {
		t.Errorf("Filter is not a fixed point: %d/%d vs %d/%d", f1.Len(), f1.NumVoxels(), f2.Len(), f2.NumVoxels())
	}
}

func TestBlockFilterScenario(t *testing.T) {
	m := models.NewMask(10, 10, 5, models.DefaultCalibration())
	fillBox(m, 3, 3, 0, 6, 6, 4)
	pop := Label(m)
	if pop.Len() != 1 || pop.Objects[0].NumVoxels() != 80 {
		t.Fatalf("Expected one object of 80 voxels, got %d objects", pop.Len())
	}
	if v := pop.Volume(); v != 80 {
		t.Errorf("Expected volume 80, got %g", v)
	}

	kept, err := FilterSize(pop, 50, 100)
	if err != nil {
		t.Fatalf("FilterSize failed: %v", err)
	}
	if kept.Len() != 1 || kept.Objects[0].Label != 1 {
		t.Errorf("Expected the block to survive [50, 100] with label 1")
	}
	removed, err := FilterSize(pop, 90, 200)
	if err != nil {
		t.Fatalf("FilterSize failed: %v", err)
	}
	if removed.Len() != 0 {
		t.Errorf("Expected the block to be removed by [90, 200], got %d objects", removed.Len())
	}
}

func TestFilterSizeCalibrated(t *testing.T) {
	// pixel 0.2 µm, plane 2 µm: 200 voxels of 0.08 µm³
	cal := models.Calibration{PixelWidth: 0.2, PixelHeight: 0.2, PixelDepth: 2, Unit: "microns"}
	m := models.NewMask(20, 20, 5, cal)
	fillBox(m, 5, 5, 1, 14, 14, 2)
	pop := Label(m)
	if v := pop.Volume(); math.Abs(v-16) > 1e-9 {
		t.Errorf("Expected volume 16, got %g", v)
	}
	kept, err := FilterSize(pop, 15.9, 16.1)
	if err != nil {
		t.Fatalf("FilterSize failed: %v", err)
	}
	if kept.Len() != 1 {
		t.Errorf("Expected the block to survive [15.9, 16.1]")
	}
}

func TestFilterSizeBoundsAndContiguity(t *testing.T) {
	m := newMask(30, 3, 1)
	// objects of 1, 2, 3, 4 and 5 voxels separated by gaps
	x := 0
	for n := 1; n <= 5; n++ {
		fillBox(m, x, 0, 0, x+n-1, 0, 0)
		x += n + 1
	}
	pop := Label(m)
	if pop.Len() != 5 {
		t.Fatalf("Expected 5 objects, got %d", pop.Len())
	}

	tests := []struct {
		min, max float64
		sizes    []int
	}{
		{0, math.Inf(1), []int{1, 2, 3, 4, 5}},
		{2, 4, []int{2, 3, 4}},
		{5, 5, []int{5}},
		{6, 10, nil},
	}
	for _, tc := range tests {
		out, err := FilterSize(pop, tc.min, tc.max)
		if err != nil {
			t.Fatalf("FilterSize(%g, %g) failed: %v", tc.min, tc.max, err)
		}
		if out.Len() != len(tc.sizes) {
			t.Fatalf("FilterSize(%g, %g): expected %d objects, got %d", tc.min, tc.max, len(tc.sizes), out.Len())
		}
		for i, o := range out.Objects {
			if o.Label != i+1 {
				t.Errorf("Expected contiguous label %d, got %d", i+1, o.Label)
			}
			if o.NumVoxels() != tc.sizes[i] {
				t.Errorf("Expected object %d of %d voxels, got %d", i+1, tc.sizes[i], o.NumVoxels())
			}
			if v := o.Volume(out.Calibration); v < tc.min || v > tc.max {
				t.Errorf("Object volume %g outside [%g, %g]", v, tc.min, tc.max)
			}
		}
	}
	// input untouched
	if pop.Len() != 5 || pop.Objects[4].Label != 5 {
		t.Error("FilterSize modified its input")
	}

	if _, err := FilterSize(pop, 5, 1); err == nil {
		t.Error("Expected error for inverted range")
	}
}

func TestFromLabelImage(t *testing.T) {
	labels := make([]int32, 4*2*1)
	labels[0], labels[1] = 7, 7
	labels[3] = 2
	labels[7] = 7
	pop := FromLabelImage(labels, 4, 2, 1, models.DefaultCalibration())
	if pop.Len() != 2 {
		t.Fatalf("Expected 2 objects, got %d", pop.Len())
	}
	if pop.Objects[0].Label != 2 || pop.Objects[1].Label != 7 {
		t.Errorf("Expected labels [2 7], got %v", pop.Labels())
	}
	if pop.Objects[1].NumVoxels() != 3 {
		t.Errorf("Expected 3 voxels for label 7, got %d", pop.Objects[1].NumVoxels())
	}
	raster := pop.Rasterize()
	for i := range labels {
		if raster[i] != labels[i] {
			t.Errorf("Voxel %d: expected %d, got %d", i, labels[i], raster[i])
		}
	}
}

func TestDilateSphere(t *testing.T) {
	obj := NewObjectFromVoxels(1, []Point3d{{5, 5, 5}})
	got, err := Dilate(obj, 11, 11, 11, [3]float64{2, 2, 2})
	if err != nil {
		t.Fatalf("Dilate failed: %v", err)
	}
	// lattice points with x²+y²+z² <= 4
	want := 0
	for dz := -2; dz <= 2; dz++ {
		for dy := -2; dy <= 2; dy++ {
			for dx := -2; dx <= 2; dx++ {
				if dx*dx+dy*dy+dz*dz <= 4 {
					want++
					if !got.Contains(5+dx, 5+dy, 5+dz) {
						t.Errorf("Missing voxel at offset (%d,%d,%d)", dx, dy, dz)
					}
				}
			}
		}
	}
	if got.NumVoxels() != want {
		t.Errorf("Expected %d voxels, got %d", want, got.NumVoxels())
	}
	if got.Label != 1 {
		t.Errorf("Expected label 1, got %d", got.Label)
	}
}

func TestDilateAnisotropic(t *testing.T) {
	// pixel 0.5 µm, plane 2 µm: 1 µm grows 2 voxels laterally and 0 in z
	cal := models.Calibration{PixelWidth: 0.5, PixelHeight: 0.5, PixelDepth: 2}
	obj := NewObjectFromVoxels(1, []Point3d{{4, 4, 1}})
	got, err := Dilate(obj, 9, 9, 3, Radii(cal, 1))
	if err != nil {
		t.Fatalf("Dilate failed: %v", err)
	}
	if got.NumVoxels() != 13 {
		t.Errorf("Expected a 13-voxel disc, got %d voxels", got.NumVoxels())
	}
	lo, hi := got.Bounds()
	if lo[2] != 1 || hi[2] != 1 {
		t.Errorf("Expected dilation to stay in plane 1, got z range [%d, %d]", lo[2], hi[2])
	}
	if !got.Contains(6, 4, 1) || got.Contains(6, 5, 1) {
		t.Error("Unexpected disc shape")
	}
}

func TestDilateStaysInBounds(t *testing.T) {
	m := newMask(6, 5, 4, Point3d{0, 0, 0}, Point3d{5, 4, 3}, Point3d{1, 0, 0})
	pop := Label(m)
	dilated, err := DilatePopulation(pop, 3)
	if err != nil {
		t.Fatalf("DilatePopulation failed: %v", err)
	}
	if dilated.Len() != pop.Len() {
		t.Fatalf("Expected %d objects, got %d", pop.Len(), dilated.Len())
	}
	for i, o := range dilated.Objects {
		if o.Label != pop.Objects[i].Label {
			t.Errorf("Dilation changed label %d to %d", pop.Objects[i].Label, o.Label)
		}
		o.ForEachVoxel(func(x, y, z int) {
			if x < 0 || x >= 6 || y < 0 || y >= 5 || z < 0 || z >= 4 {
				t.Errorf("Voxel (%d,%d,%d) outside the volume", x, y, z)
			}
		})
		// dilation only adds voxels
		pop.Objects[i].ForEachVoxel(func(x, y, z int) {
			if !o.Contains(x, y, z) {
				t.Errorf("Dilated object lost voxel (%d,%d,%d)", x, y, z)
			}
		})
	}
	// a corner voxel grown by 3 clips to the octant of a radius-3 ball
	want := 0
	for z := 0; z <= 3; z++ {
		for y := 0; y <= 3; y++ {
			for x := 0; x <= 4; x++ {
				if x*x+y*y+z*z <= 9 || (x-1)*(x-1)+y*y+z*z <= 9 {
					want++
				}
			}
		}
	}
	if got := dilated.Objects[0].NumVoxels(); got != want {
		t.Errorf("Expected clipped corner object of %d voxels, got %d", want, got)
	}
}

func TestDilateZeroDistance(t *testing.T) {
	obj := NewObjectFromVoxels(4, []Point3d{{1, 1, 1}, {2, 1, 1}})
	got, err := Dilate(obj, 4, 4, 4, [3]float64{0, 0, 0})
	if err != nil {
		t.Fatalf("Dilate failed: %v", err)
	}
	if got.NumVoxels() != 2 {
		t.Errorf("Expected unchanged object, got %d voxels", got.NumVoxels())
	}
	if _, err := DilatePopulation(NewPopulation(4, 4, 4, models.DefaultCalibration()), -1); err == nil {
		t.Error("Expected error for negative distance")
	}
}
