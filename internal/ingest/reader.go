package ingest

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// ReadPath reads every record under path. A directory contributes each of
// its *.json and *.jsonl files in name order. Records that fail to decode are
// returned as RecordErrors alongside the ones that decoded.
func ReadPath(path string) ([]Record, []RecordError, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to access %s: %w", path, err)
	}

	if !info.IsDir() {
		return ReadFile(path)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read directory %s: %w", path, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch filepath.Ext(entry.Name()) {
		case ".json", ".jsonl":
			files = append(files, filepath.Join(path, entry.Name()))
		}
	}
	sort.Strings(files)

	var records []Record
	var failures []RecordError
	for _, file := range files {
		recs, errs, err := ReadFile(file)
		if err != nil {
			return nil, nil, err
		}
		records = append(records, recs...)
		failures = append(failures, errs...)
	}
	return records, failures, nil
}

// ReadFile reads one file holding a JSON array of records, JSON Lines, or a
// single JSON object.
func ReadFile(path string) ([]Record, []RecordError, error) {
	// #nosec G304 - path is supplied by the operator
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	return Read(f, filepath.Base(path))
}

// Read decodes records from r. name labels each record's Source.
func Read(r io.Reader, name string) ([]Record, []RecordError, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if errors.Is(err, io.EOF) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", name, err)
	}

	var raws []json.RawMessage
	if first == '[' {
		if err := json.NewDecoder(br).Decode(&raws); err != nil {
			return nil, nil, fmt.Errorf("failed to decode %s: %w", name, err)
		}
	} else {
		// One object, or one object per line.
		dec := json.NewDecoder(br)
		for {
			var raw json.RawMessage
			err := dec.Decode(&raw)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return nil, nil, fmt.Errorf("failed to decode %s record %d: %w", name, len(raws)+1, err)
			}
			raws = append(raws, raw)
		}
	}

	records := make([]Record, 0, len(raws))
	var failures []RecordError
	for i, raw := range raws {
		source := fmt.Sprintf("%s#%d", name, i+1)
		rec, err := DecodeRecord(raw)
		if err != nil {
			failures = append(failures, RecordError{Source: source, Err: err})
			continue
		}
		rec.Source = source
		records = append(records, rec)
	}
	return records, failures, nil
}

// peekNonSpace returns the first significant byte, skipping whitespace and a
// UTF-8 byte order mark.
func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n', 0xEF, 0xBB, 0xBF:
			continue
		}
		return b, br.UnreadByte()
	}
}
