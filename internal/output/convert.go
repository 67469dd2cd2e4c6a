package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/jmylchreest/carmat/internal/logger"
	"github.com/jmylchreest/carmat/pkg/record"
)

// LoadJSON reads a JSON array of records from path.
func LoadJSON(path string) ([]record.Record, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- CLI tool reads user-specified input file
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var records []record.Record
	if err := decodeJSON(data, &records); err != nil {
		return nil, fmt.Errorf("invalid JSON in file %s: %w", path, err)
	}
	return records, nil
}

// ConvertJSONToCSV writes the records of the JSON array at jsonPath to
// csvPath with a header covering every key of every record. No CSV is
// written for an empty array. It returns the number of rows written.
func ConvertJSONToCSV(jsonPath, csvPath string) (int, error) {
	records, err := LoadJSON(jsonPath)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		logger.Warn("no records to convert", "input", jsonPath)
		return 0, nil
	}

	f, err := createFile(csvPath)
	if err != nil {
		return 0, err
	}
	if err := WriteCSV(f, records); err != nil {
		_ = f.Close()
		return 0, fmt.Errorf("write %s: %w", csvPath, err)
	}
	if err := f.Close(); err != nil {
		return 0, err
	}

	logger.Info("converted JSON to CSV",
		"input", jsonPath,
		"output", csvPath,
		"records", len(records),
		"size", humanize.Bytes(uint64(fileSize(csvPath))))
	return len(records), nil
}

// MergeJSONFiles loads every *.json file in dir, in name order. Arrays are
// concatenated and single objects appended.
func MergeJSONFiles(dir string) ([]record.Record, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	merged := []record.Record{}
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path) //#nosec G304 -- files listed from user-specified directory
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		trimmed := bytes.TrimSpace(data)
		if len(trimmed) > 0 && trimmed[0] == '[' {
			var records []record.Record
			if err := decodeJSON(trimmed, &records); err != nil {
				return nil, fmt.Errorf("invalid JSON in file %s: %w", path, err)
			}
			merged = append(merged, records...)
		} else {
			var r record.Record
			if err := decodeJSON(trimmed, &r); err != nil {
				return nil, fmt.Errorf("invalid JSON in file %s: %w", path, err)
			}
			merged = append(merged, r)
		}
		logger.Debug("merged file", "file", path, "total", len(merged))
	}

	return merged, nil
}

// decodeJSON keeps numbers as json.Number so they round-trip unchanged.
func decodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("unexpected data after top-level value")
	}
	return nil
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
