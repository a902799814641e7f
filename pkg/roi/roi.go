// Package roi holds the 2D polygon regions used to blank out artifacts before
// objects are labeled. A region applies to every z-plane of a stack.
package roi

import (
	"image"
	"math"

	"golang.org/x/image/vector"

	"vesseldots/internal/models"
)

// Point is a polygon vertex in pixel coordinates
type Point struct {
	X, Y float64
}

// Polygon is a closed region of interest
type Polygon struct {
	Name   string
	Points []Point
}

// Bounds returns the integer bounding rectangle of the polygon
func (p Polygon) Bounds() image.Rectangle {
	if len(p.Points) == 0 {
		return image.Rectangle{}
	}
	minX, minY := p.Points[0].X, p.Points[0].Y
	maxX, maxY := minX, minY
	for _, pt := range p.Points[1:] {
		minX = math.Min(minX, pt.X)
		minY = math.Min(minY, pt.Y)
		maxX = math.Max(maxX, pt.X)
		maxY = math.Max(maxY, pt.Y)
	}
	return image.Rect(int(math.Floor(minX)), int(math.Floor(minY)), int(math.Ceil(maxX)), int(math.Ceil(maxY)))
}

// Rectangle builds a polygon covering the pixels in [x0,x1)×[y0,y1)
func Rectangle(name string, x0, y0, x1, y1 float64) Polygon {
	return Polygon{
		Name:   name,
		Points: []Point{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}},
	}
}

// Ellipse approximates the ellipse inscribed in [x0,x1)×[y0,y1) with a polygon
func Ellipse(name string, x0, y0, x1, y1 float64) Polygon {
	const segments = 72
	cx, cy := (x0+x1)/2, (y0+y1)/2
	rx, ry := (x1-x0)/2, (y1-y0)/2
	pts := make([]Point, segments)
	for i := range pts {
		a := 2 * math.Pi * float64(i) / segments
		pts[i] = Point{cx + rx*math.Cos(a), cy + ry*math.Sin(a)}
	}
	return Polygon{Name: name, Points: pts}
}

// Set is the collection of regions attached to one image
type Set []Polygon

// Empty reports whether the set holds no usable polygon
func (s Set) Empty() bool {
	for _, p := range s {
		if len(p.Points) >= 3 {
			return false
		}
	}
	return true
}

// Rasterize returns the union of all polygons as a width×height row-major
// mask. A pixel is covered when at least half of its area lies inside a polygon.
func (s Set) Rasterize(width, height int) []bool {
	covered := make([]bool, width*height)
	if width <= 0 || height <= 0 {
		return covered
	}
	for _, p := range s {
		if len(p.Points) < 3 {
			continue
		}
		z := vector.NewRasterizer(width, height)
		z.MoveTo(float32(p.Points[0].X), float32(p.Points[0].Y))
		for _, pt := range p.Points[1:] {
			z.LineTo(float32(pt.X), float32(pt.Y))
		}
		z.ClosePath()

		dst := image.NewAlpha(image.Rect(0, 0, width, height))
		z.Draw(dst, dst.Bounds(), image.Opaque, image.Point{})
		for i, a := range dst.Pix {
			if a >= 128 {
				covered[i] = true
			}
		}
	}
	return covered
}

// Area returns the physical area covered by the union of the polygons
// clipped to a width×height plane.
func (s Set) Area(width, height int, cal models.Calibration) float64 {
	n := 0
	for _, c := range s.Rasterize(width, height) {
		if c {
			n++
		}
	}
	return float64(n) * cal.PixelArea()
}
