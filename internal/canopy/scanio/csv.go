package scanio

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/banshee-data/canopy.report/internal/canopy"
	"github.com/banshee-data/canopy.report/internal/units"
)

// CSVReader reads the decoded pulse export format: one row per return,
// rows of the same shot adjacent, plus one row with target_count 0 for
// each pulse that produced no return. The header row names the columns;
// order does not matter. Angles are degrees in the file.
//
// Required columns: shot_id, zenith, azimuth, target_index,
// target_count, range, reflectance.
type CSVReader struct {
	r       *csv.Reader
	layout  csvLayout
	pending *canopy.Pulse
}

type csvLayout struct {
	shot, zenith, azimuth, index, count, rng, refl int
}

// NewCSVReader reads the header row and prepares a pulse reader.
func NewCSVReader(rd io.Reader) (*CSVReader, error) {
	cr := csv.NewReader(rd)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("pulse csv: read header: %w", err)
	}

	cols := map[string]int{}
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	var layout csvLayout
	for _, c := range []struct {
		name string
		dst  *int
	}{
		{"shot_id", &layout.shot},
		{"zenith", &layout.zenith},
		{"azimuth", &layout.azimuth},
		{"target_index", &layout.index},
		{"target_count", &layout.count},
		{"range", &layout.rng},
		{"reflectance", &layout.refl},
	} {
		i, ok := cols[c.name]
		if !ok {
			return nil, fmt.Errorf("pulse csv: missing column %q", c.name)
		}
		*c.dst = i
	}
	cr.FieldsPerRecord = len(header)
	return &CSVReader{r: cr, layout: layout}, nil
}

// Next returns the next fully assembled pulse, grouping adjacent rows
// that share a shot id. It implements PulseSource.
func (c *CSVReader) Next() (canopy.Pulse, error) {
	for {
		rec, err := c.r.Read()
		if err == io.EOF {
			if p := c.pending; p != nil {
				c.pending = nil
				return *p, nil
			}
			return canopy.Pulse{}, io.EOF
		}
		if err != nil {
			return canopy.Pulse{}, fmt.Errorf("pulse csv: %w", err)
		}

		row, err := c.parseRow(rec)
		if err != nil {
			line, _ := c.r.FieldPos(0)
			return canopy.Pulse{}, fmt.Errorf("pulse csv line %d: %w", line, err)
		}

		if c.pending != nil && c.pending.ShotID == row.pulse.ShotID {
			c.pending.Returns = append(c.pending.Returns, row.pulse.Returns...)
			continue
		}
		done := c.pending
		c.pending = &row.pulse
		if done != nil {
			return *done, nil
		}
	}
}

type csvRow struct {
	pulse canopy.Pulse
}

func (c *CSVReader) parseRow(rec []string) (csvRow, error) {
	shot, err := strconv.ParseUint(rec[c.layout.shot], 10, 64)
	if err != nil {
		return csvRow{}, fmt.Errorf("bad shot_id %q", rec[c.layout.shot])
	}
	zen, err := strconv.ParseFloat(rec[c.layout.zenith], 64)
	if err != nil {
		return csvRow{}, fmt.Errorf("bad zenith %q", rec[c.layout.zenith])
	}
	az, err := strconv.ParseFloat(rec[c.layout.azimuth], 64)
	if err != nil {
		return csvRow{}, fmt.Errorf("bad azimuth %q", rec[c.layout.azimuth])
	}
	count, err := strconv.Atoi(rec[c.layout.count])
	if err != nil {
		return csvRow{}, fmt.Errorf("bad target_count %q", rec[c.layout.count])
	}

	p := canopy.Pulse{
		ShotID:  shot,
		Zenith:  units.DegToRad(zen),
		Azimuth: units.NormalizeAzimuth(units.DegToRad(az)),
	}
	if count == 0 {
		return csvRow{pulse: p}, nil
	}

	index, err := strconv.Atoi(rec[c.layout.index])
	if err != nil {
		return csvRow{}, fmt.Errorf("bad target_index %q", rec[c.layout.index])
	}
	rng, err := strconv.ParseFloat(rec[c.layout.rng], 64)
	if err != nil {
		return csvRow{}, fmt.Errorf("bad range %q", rec[c.layout.rng])
	}
	refl, err := strconv.ParseFloat(rec[c.layout.refl], 64)
	if err != nil {
		return csvRow{}, fmt.Errorf("bad reflectance %q", rec[c.layout.refl])
	}
	p.Returns = []canopy.Return{{
		Index:       index,
		Count:       count,
		Range:       rng,
		Reflectance: refl,
	}}
	return csvRow{pulse: p}, nil
}

// File is a CSVReader over an on-disk pulse export.
type File struct {
	*CSVReader
	f *os.File
}

// Open opens a decoded pulse CSV for reading.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pulse csv: %w", err)
	}
	r, err := NewCSVReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &File{CSVReader: r, f: f}, nil
}

// Close closes the underlying file.
func (f *File) Close() error { return f.f.Close() }
