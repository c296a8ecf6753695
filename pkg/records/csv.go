package records

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"birdtracker/pkg/birdtracker"
)

var (
	detectionHeader = []string{"frame_index", "x", "y", "radius"}
	diskHeader      = []string{
		"frame_index", "center_x", "center_y", "width", "height", "area",
		"edge_top_pts", "edge_bot_pts", "edge_left_pts", "edge_right_pts",
	}
	metadataHeader = []string{"key", "value"}
)

// csvFile is one append-only stream guarded by its own mutex.
type csvFile struct {
	mu sync.Mutex
	f  *os.File
	w  *csv.Writer
}

func createCSV(path string, header []string) (*csvFile, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	cf := &csvFile{f: f, w: csv.NewWriter(f)}
	if err := cf.write([][]string{header}); err != nil {
		_ = f.Close()
		return nil, err
	}
	return cf, nil
}

func (c *csvFile) write(rows [][]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.w.WriteAll(rows); err != nil {
		return fmt.Errorf("write %s: %w", c.f.Name(), err)
	}
	return nil
}

func (c *csvFile) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.w.Flush()
	werr := c.w.Error()
	cerr := c.f.Close()
	if werr != nil {
		return werr
	}
	return cerr
}

// CSVSink writes data/Tier{1..4}.csv, data/disk.csv and data/metadata.csv.
type CSVSink struct {
	dir   string
	tiers map[birdtracker.Tier]*csvFile
	disk  *csvFile
}

// OpenCSV truncates and opens every stream under dir.
func OpenCSV(dir string) (*CSVSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	s := &CSVSink{dir: dir, tiers: make(map[birdtracker.Tier]*csvFile, len(birdtracker.AllTiers))}
	for _, tier := range birdtracker.AllTiers {
		f, err := createCSV(filepath.Join(dir, tier.String()+".csv"), detectionHeader)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		s.tiers[tier] = f
	}
	disk, err := createCSV(filepath.Join(dir, "disk.csv"), diskHeader)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.disk = disk
	return s, nil
}

// Dir returns the data directory.
func (s *CSVSink) Dir() string { return s.dir }

// WriteDetections implements birdtracker.RecordSink.
func (s *CSVSink) WriteDetections(tier birdtracker.Tier, recs []birdtracker.DetectionRecord) error {
	f, ok := s.tiers[tier]
	if !ok {
		return fmt.Errorf("no stream for %s", tier)
	}
	rows := make([][]string, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, []string{
			strconv.Itoa(r.Frame),
			formatFloat32(r.X),
			formatFloat32(r.Y),
			formatFloat32(r.Radius),
		})
	}
	return f.write(rows)
}

// WriteDisk implements birdtracker.RecordSink.
func (s *CSVSink) WriteDisk(r birdtracker.DiskRecord) error {
	return s.disk.write([][]string{{
		strconv.Itoa(r.Frame),
		formatFloat32(r.CenterX),
		formatFloat32(r.CenterY),
		strconv.Itoa(r.Width),
		strconv.Itoa(r.Height),
		strconv.FormatFloat(r.Area, 'f', -1, 64),
		strconv.Itoa(r.EdgeTop),
		strconv.Itoa(r.EdgeBottom),
		strconv.Itoa(r.EdgeLeft),
		strconv.Itoa(r.EdgeRight),
	}})
}

// WriteMetadata replaces data/metadata.csv.
func (s *CSVSink) WriteMetadata(meta Metadata) error {
	f, err := createCSV(filepath.Join(s.dir, "metadata.csv"), metadataHeader)
	if err != nil {
		return err
	}
	rows := make([][]string, 0, 8)
	for _, kv := range meta.pairs() {
		rows = append(rows, []string{kv[0], kv[1]})
	}
	if err := f.write(rows); err != nil {
		_ = f.close()
		return err
	}
	return f.close()
}

// Close flushes and closes every stream, returning the first error.
func (s *CSVSink) Close() error {
	var first error
	for _, tier := range birdtracker.AllTiers {
		if f := s.tiers[tier]; f != nil {
			if err := f.close(); err != nil && first == nil {
				first = err
			}
		}
	}
	if s.disk != nil {
		if err := s.disk.close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func formatFloat32(v float32) string {
	return strconv.FormatFloat(float64(v), 'f', -1, 32)
}
