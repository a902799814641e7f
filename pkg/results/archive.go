package results

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"

	"vesseldots/internal/models"
	"vesseldots/pkg/objects"
)

const (
	archiveMagic   = "VDOB"
	archiveVersion = uint16(1)
)

// NamedPopulation pairs a population with the name it is archived under
type NamedPopulation struct {
	Name       string
	Population *objects.Population
}

// WriteArchive stores populations as a zstd-compressed stream of run-length
// encoded objects. Layout, little endian: magic, version, population count,
// then per population its name, size, calibration and objects; each object
// is its label, run count and 16-byte runs.
func WriteArchive(path string, pops []NamedPopulation) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating archive: %v: %w", err, models.ErrIO)
	}
	enc, err := zstd.NewWriter(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("error creating zstd writer: %v: %w", err, models.ErrIO)
	}
	w := bufio.NewWriter(enc)
	if err := encodeArchive(w, pops); err != nil {
		enc.Close()
		f.Close()
		return fmt.Errorf("error writing archive: %v: %w", err, models.ErrIO)
	}
	if err := w.Flush(); err != nil {
		enc.Close()
		f.Close()
		return fmt.Errorf("error writing archive: %v: %w", err, models.ErrIO)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("error closing zstd writer: %v: %w", err, models.ErrIO)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("error closing archive: %v: %w", err, models.ErrIO)
	}
	return nil
}

func encodeArchive(w io.Writer, pops []NamedPopulation) error {
	le := binary.LittleEndian
	if _, err := io.WriteString(w, archiveMagic); err != nil {
		return err
	}
	if err := binary.Write(w, le, archiveVersion); err != nil {
		return err
	}
	if err := binary.Write(w, le, uint32(len(pops))); err != nil {
		return err
	}
	for _, np := range pops {
		p := np.Population
		if err := binary.Write(w, le, uint16(len(np.Name))); err != nil {
			return err
		}
		if _, err := io.WriteString(w, np.Name); err != nil {
			return err
		}
		header := []any{
			int32(p.Width), int32(p.Height), int32(p.Depth),
			p.Calibration.PixelWidth, p.Calibration.PixelHeight, p.Calibration.PixelDepth,
			uint32(p.Len()),
		}
		for _, v := range header {
			if err := binary.Write(w, le, v); err != nil {
				return err
			}
		}
		for _, o := range p.Objects {
			runs, err := o.RLEs().MarshalBinary()
			if err != nil {
				return err
			}
			if err := binary.Write(w, le, int32(o.Label)); err != nil {
				return err
			}
			if err := binary.Write(w, le, uint32(len(o.RLEs()))); err != nil {
				return err
			}
			if _, err := w.Write(runs); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReadArchive loads populations written by WriteArchive
func ReadArchive(path string) ([]NamedPopulation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening archive: %v: %w", err, models.ErrInput)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("error creating zstd reader: %v: %w", err, models.ErrInput)
	}
	defer dec.Close()

	pops, err := decodeArchive(bufio.NewReader(dec))
	if err != nil {
		return nil, fmt.Errorf("error reading archive %s: %v: %w", path, err, models.ErrInput)
	}
	return pops, nil
}

func decodeArchive(r io.Reader) ([]NamedPopulation, error) {
	le := binary.LittleEndian
	magic := make([]byte, len(archiveMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, err
	}
	if string(magic) != archiveMagic {
		return nil, fmt.Errorf("bad magic %q", magic)
	}
	var version uint16
	if err := binary.Read(r, le, &version); err != nil {
		return nil, err
	}
	if version != archiveVersion {
		return nil, fmt.Errorf("unsupported version %d", version)
	}
	var count uint32
	if err := binary.Read(r, le, &count); err != nil {
		return nil, err
	}

	pops := make([]NamedPopulation, 0, count)
	for i := uint32(0); i < count; i++ {
		var nameLen uint16
		if err := binary.Read(r, le, &nameLen); err != nil {
			return nil, err
		}
		name := make([]byte, nameLen)
		if _, err := io.ReadFull(r, name); err != nil {
			return nil, err
		}
		var hdr struct {
			Width, Height, Depth int32
			PixelWidth           float64
			PixelHeight          float64
			PixelDepth           float64
			NumObjects           uint32
		}
		if err := binary.Read(r, le, &hdr); err != nil {
			return nil, err
		}
		cal := models.DefaultCalibration()
		cal.PixelWidth, cal.PixelHeight, cal.PixelDepth = hdr.PixelWidth, hdr.PixelHeight, hdr.PixelDepth
		pop := objects.NewPopulation(int(hdr.Width), int(hdr.Height), int(hdr.Depth), cal)
		for j := uint32(0); j < hdr.NumObjects; j++ {
			var obj struct {
				Label   int32
				NumRuns uint32
			}
			if err := binary.Read(r, le, &obj); err != nil {
				return nil, err
			}
			buf := make([]byte, 16*int(obj.NumRuns))
			if _, err := io.ReadFull(r, buf); err != nil {
				return nil, err
			}
			var runs objects.RLEs
			if err := runs.UnmarshalBinary(buf); err != nil {
				return nil, err
			}
			pop.Objects = append(pop.Objects, objects.NewObject(int(obj.Label), runs))
		}
		pops = append(pops, NamedPopulation{Name: string(name), Population: pop})
	}
	return pops, nil
}
