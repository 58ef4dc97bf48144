package statefile

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/Iron-Ham/foreman/internal/errors"
)

// maxLineSize bounds a single JSONL record.
const maxLineSize = 1024 * 1024

// WriteAtomic replaces path with data. The data is written to a temporary
// file first, then renamed into place, so readers see either the old or the
// new contents.
func WriteAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "create directory")
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap(err, "write temp file")
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(err, "rename temp file")
	}
	return nil
}

// WriteJSONL atomically replaces path with one JSON document per item.
func WriteJSONL[T any](path string, items []T) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range items {
		if err := enc.Encode(items[i]); err != nil {
			return errors.Wrapf(err, "encode record %d", i)
		}
	}
	return WriteAtomic(path, buf.Bytes())
}

// AppendJSONL appends a single record to path, creating it if needed.
func AppendJSONL[T any](path string, item T) error {
	data, err := json.Marshal(item)
	if err != nil {
		return errors.Wrap(err, "encode record")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "create directory")
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, "open for append")
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		_ = f.Close()
		return errors.Wrap(err, "append record")
	}
	return f.Close()
}

// ReadJSONL decodes every record in path. A missing file yields no records.
// Unlike the mailbox, state files are written whole, so a malformed line is
// reported rather than skipped.
func ReadJSONL[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "open file")
	}
	defer func() { _ = f.Close() }()

	var items []T
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var item T
		if err := json.Unmarshal(line, &item); err != nil {
			return nil, errors.Wrapf(err, "parse line %d", lineNum)
		}
		items = append(items, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "scan file")
	}
	return items, nil
}
