package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/aluiziolira/go-scrape-discogs/models"
)

var csvHeader = []string{
	"listing_id", "release_id", "seller", "artist", "title", "label", "format",
	"genres", "styles", "condition", "sleeve_condition", "price", "currency",
	"normalized", "lowest_price", "for_sale", "have", "want", "link",
}

// fileSink owns an output file and serialises access to it. encode writes
// one listing to the buffered stream; flush pushes buffered bytes to disk.
type fileSink struct {
	mu     sync.Mutex
	kind   string
	file   *os.File
	encode func(*models.EnrichedListing) error
	flush  func() error
}

func createFile(kind, filename string) (*os.File, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create %s file: %w", kind, err)
	}
	return f, nil
}

func (s *fileSink) Write(listings []*models.EnrichedListing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, l := range listings {
		if err := s.encode(l); err != nil {
			return fmt.Errorf("encode %s record %d: %w", s.kind, l.ListingID, err)
		}
	}
	if err := s.flush(); err != nil {
		return fmt.Errorf("flush %s records: %w", s.kind, err)
	}
	return nil
}

// Close flushes and closes the file handle.
func (s *fileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.flush(); err != nil {
		s.file.Close()
		return fmt.Errorf("flush %s writer: %w", s.kind, err)
	}
	return s.file.Close()
}

// Validate fails when nothing reached the file.
func (s *fileSink) Validate() error {
	info, err := s.file.Stat()
	if err != nil {
		return fmt.Errorf("stat %s file: %w", s.kind, err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%s file is empty", s.kind)
	}
	return nil
}

// CSVWriter writes one row per recommendation under a fixed header.
type CSVWriter struct {
	fileSink
}

// NewCSVWriter creates filename and writes the header row.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	f, err := createFile("csv", filename)
	if err != nil {
		return nil, err
	}

	w := csv.NewWriter(f)
	flush := func() error {
		w.Flush()
		return w.Error()
	}
	if err := w.Write(csvHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	if err := flush(); err != nil {
		f.Close()
		return nil, fmt.Errorf("flush csv header: %w", err)
	}

	return &CSVWriter{fileSink{
		kind:   "csv",
		file:   f,
		encode: func(l *models.EnrichedListing) error { return w.Write(csvRecord(l)) },
		flush:  flush,
	}}, nil
}

func csvRecord(l *models.EnrichedListing) []string {
	lowest := ""
	if l.LowestPrice != nil {
		lowest = formatMoney(*l.LowestPrice)
	}
	return []string{
		strconv.FormatInt(l.ListingID, 10),
		strconv.FormatInt(l.ReleaseID, 10),
		l.Seller,
		l.Artist,
		l.Title,
		l.Label,
		l.Format,
		strings.Join(l.Genres, "|"),
		strings.Join(l.Styles, "|"),
		l.Condition,
		l.SleeveCondition,
		formatMoney(l.Price.Amount),
		l.Price.Currency,
		strconv.FormatBool(l.Price.Normalized),
		lowest,
		strconv.Itoa(l.ForSaleCount),
		strconv.Itoa(l.HaveCount),
		strconv.Itoa(l.WantCount),
		l.Link,
	}
}

func formatMoney(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// JSONWriter writes newline-delimited JSON, one listing per line.
type JSONWriter struct {
	fileSink
}

// NewJSONWriter creates filename for newline-delimited JSON output.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	f, err := createFile("json", filename)
	if err != nil {
		return nil, err
	}

	buf := bufio.NewWriter(f)
	enc := json.NewEncoder(buf)
	return &JSONWriter{fileSink{
		kind:   "json",
		file:   f,
		encode: func(l *models.EnrichedListing) error { return enc.Encode(l) },
		flush:  buf.Flush,
	}}, nil
}

// NewFileWriter opens the file output selected by format: csv, json or dual.
// Dual writes CSV to filename and JSONL beside it.
func NewFileWriter(format, filename string) (OutputWriter, error) {
	var (
		w   OutputWriter
		err error
	)
	switch format {
	case "", "csv":
		w, err = NewCSVWriter(filename)
	case "json", "jsonl":
		w, err = NewJSONWriter(filename)
	case "dual":
		w, err = NewDualWriter(filename, jsonSibling(filename))
	default:
		return nil, fmt.Errorf("unsupported output format %q", format)
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

func jsonSibling(filename string) string {
	return strings.TrimSuffix(filename, filepath.Ext(filename)) + ".jsonl"
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
