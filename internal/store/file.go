package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dyluth/rota/pkg/booking"
)

var csvHeader = []string{"date", "person"}

// csv.Reader folds \r\n to \n even inside quoted fields, so a person
// containing it would not read back unchanged.
const unreadableSequence = "\r\n"

// FileStore keeps the Map in a CSV file with a "date,person" header and one
// record per booking, sorted by date. Every Save rewrites the whole file.
type FileStore struct {
	path string
}

// NewFileStore returns a store backed by the CSV file at path.
// The file is created on first Save.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("csv path cannot be empty")
	}
	return &FileStore{path: path}, nil
}

// Path returns the CSV file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the CSV file. A missing file yields an empty Map.
func (s *FileStore) Load(ctx context.Context) (booking.Map, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return booking.Map{}, nil
		}
		return nil, fmt.Errorf("%w: failed to open %s: %v", ErrUnavailable, s.path, err)
	}
	defer f.Close()

	return decodeCSV(f)
}

func decodeCSV(r io.Reader) (booking.Map, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(csvHeader)

	m := booking.Map{}
	first := true
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}

		if first {
			first = false
			if record[0] == csvHeader[0] && record[1] == csvHeader[1] {
				continue
			}
		}

		m[record[0]] = record[1]
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	return m, nil
}

// Save writes the Map to a temporary file next to the target, syncs it and
// renames it over the target. A person containing "\r\n" is rejected with
// ErrUnrepresentable and nothing is written.
func (s *FileStore) Save(ctx context.Context, m booking.Map) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	for _, date := range m.Dates() {
		if strings.Contains(m[date], unreadableSequence) {
			return fmt.Errorf("%w: person for %s contains a CRLF line break", ErrUnrepresentable, date)
		}
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: failed to create temp file in %s: %v", ErrUnavailable, dir, err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if err := encodeCSV(tmp, m); err != nil {
		return fmt.Errorf("%w: failed to write %s: %v", ErrUnavailable, tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("%w: failed to sync %s: %v", ErrUnavailable, tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: failed to close %s: %v", ErrUnavailable, tmpPath, err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("%w: failed to replace %s: %v", ErrUnavailable, s.path, err)
	}
	committed = true

	return nil
}

func encodeCSV(w io.Writer, m booking.Map) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return err
	}
	for _, date := range m.Dates() {
		if err := writer.Write([]string{date, m[date]}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// Ping checks that the directory holding the CSV file is reachable.
func (s *FileStore) Ping(ctx context.Context) error {
	dir := filepath.Dir(s.path)
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrUnavailable, dir)
	}
	return nil
}

// Close is a no-op; the file is only open during Load and Save.
func (s *FileStore) Close() error {
	return nil
}
