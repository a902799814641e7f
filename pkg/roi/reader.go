package roi

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"

	"vesseldots/internal/models"
)

// ImageJ roi type codes
const (
	typePolygon  = 0
	typeRect     = 1
	typeOval     = 2
	typeLine     = 3
	typeFreeline = 4
	typePolyline = 5
	typeNoRoi    = 6
	typeFreehand = 7
	typeTraced   = 8
	typeAngle    = 9
	typePoint    = 10
)

const (
	headerSize       = 64
	optionSubPixel   = 128
	subPixelMinVer   = 222
	roiMagic         = "Iout"
	offsetVersion    = 4
	offsetType       = 6
	offsetTop        = 8
	offsetLeft       = 10
	offsetBottom     = 12
	offsetRight      = 14
	offsetNCoords    = 16
	offsetOptions    = 50
	offsetSubPixelX0 = 64
)

// Load reads the regions stored next to an image: <dir>/<base>.zip is preferred
// over <dir>/<base>.roi. Missing files yield an empty set and no error; any
// other failure to reach them is an input error.
func Load(dir, base string) (Set, error) {
	zipPath := filepath.Join(dir, base+".zip")
	_, err := os.Stat(zipPath)
	if err == nil {
		return ReadZip(zipPath)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error accessing roi archive %s: %v: %w", zipPath, err, models.ErrInput)
	}

	roiPath := filepath.Join(dir, base+".roi")
	data, err := os.ReadFile(roiPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading roi file %s: %v: %w", roiPath, err, models.ErrInput)
	}
	p, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", roiPath, err)
	}
	p.Name = base
	return Set{p}, nil
}

// ReadZip decodes every .roi entry of an ImageJ RoiSet archive
func ReadZip(path string) (Set, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("error opening roi archive %s: %v: %w", path, err, models.ErrInput)
	}
	defer r.Close()

	var set Set
	for _, f := range r.File {
		if !strings.EqualFold(filepath.Ext(f.Name), ".roi") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("error opening %s in %s: %v: %w", f.Name, path, err, models.ErrInput)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("error reading %s in %s: %v: %w", f.Name, path, err, models.ErrInput)
		}
		p, err := Decode(data)
		if err != nil {
			return nil, fmt.Errorf("%s in %s: %w", f.Name, path, err)
		}
		p.Name = strings.TrimSuffix(f.Name, filepath.Ext(f.Name))
		set = append(set, p)
	}
	return set, nil
}

// Decode parses a single ImageJ binary roi. Area types are returned as
// polygons; line, angle and point selections enclose no area and are rejected.
func Decode(data []byte) (Polygon, error) {
	if len(data) < headerSize || string(data[:4]) != roiMagic {
		return Polygon{}, fmt.Errorf("not an ImageJ roi: %w", models.ErrInput)
	}
	be := binary.BigEndian
	short := func(off int) int { return int(int16(be.Uint16(data[off:]))) }

	version := short(offsetVersion)
	kind := int(data[offsetType])
	top := float64(short(offsetTop))
	left := float64(short(offsetLeft))
	bottom := float64(short(offsetBottom))
	right := float64(short(offsetRight))
	n := int(be.Uint16(data[offsetNCoords:]))
	options := int(be.Uint16(data[offsetOptions:]))

	switch kind {
	case typeRect:
		return Rectangle("", left, top, right, bottom), nil
	case typeOval:
		return Ellipse("", left, top, right, bottom), nil
	case typePolygon, typeFreehand, typeTraced, typePolyline, typeFreeline:
	case typeLine, typeAngle, typePoint, typeNoRoi:
		return Polygon{}, fmt.Errorf("roi type %d encloses no area: %w", kind, models.ErrInput)
	default:
		return Polygon{}, fmt.Errorf("unsupported roi type %d: %w", kind, models.ErrInput)
	}

	if len(data) < headerSize+4*n {
		return Polygon{}, fmt.Errorf("truncated roi with %d coordinates: %w", n, models.ErrInput)
	}
	pts := make([]Point, n)
	subPixel := version >= subPixelMinVer && options&optionSubPixel != 0 && len(data) >= headerSize+12*n
	if subPixel {
		base := offsetSubPixelX0 + 4*n
		for i := 0; i < n; i++ {
			x := math.Float32frombits(be.Uint32(data[base+4*i:]))
			y := math.Float32frombits(be.Uint32(data[base+4*n+4*i:]))
			pts[i] = Point{float64(x), float64(y)}
		}
	} else {
		for i := 0; i < n; i++ {
			x := short(headerSize + 2*i)
			y := short(headerSize + 2*n + 2*i)
			pts[i] = Point{left + float64(x), top + float64(y)}
		}
	}
	return Polygon{Points: pts}, nil
}

// Encode writes p as an integer-coordinate ImageJ polygon roi
func Encode(p Polygon) []byte {
	b := p.Bounds()
	n := len(p.Points)
	data := make([]byte, headerSize+4*n)
	be := binary.BigEndian
	copy(data, roiMagic)
	be.PutUint16(data[offsetVersion:], 227)
	data[offsetType] = typePolygon
	be.PutUint16(data[offsetTop:], uint16(int16(b.Min.Y)))
	be.PutUint16(data[offsetLeft:], uint16(int16(b.Min.X)))
	be.PutUint16(data[offsetBottom:], uint16(int16(b.Max.Y)))
	be.PutUint16(data[offsetRight:], uint16(int16(b.Max.X)))
	be.PutUint16(data[offsetNCoords:], uint16(n))
	for i, pt := range p.Points {
		be.PutUint16(data[headerSize+2*i:], uint16(int16(int(math.Round(pt.X))-b.Min.X)))
		be.PutUint16(data[headerSize+2*n+2*i:], uint16(int16(int(math.Round(pt.Y))-b.Min.Y)))
	}
	return data
}
