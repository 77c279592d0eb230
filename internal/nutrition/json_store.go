package nutrition

import (
	"context"
	"encoding/json"
	"os"
	"sort"

	"github.com/pkg/errors"
)

// JSONStore keeps the whole database in memory. It is read-only after LoadJSON.
type JSONStore struct {
	records map[string]Record
}

// LoadJSON reads a file shaped {"<food name>": {"calories": n, ...}, ...}.
func LoadJSON(path string) (*JSONStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read nutrition database %s", path)
	}
	records, err := ParseJSON(data)
	if err != nil {
		return nil, errors.Wrapf(err, "parse nutrition database %s", path)
	}
	return &JSONStore{records: records}, nil
}

// ParseJSON decodes the database file format, keying records by normalized name. When several
// names share a key, a name already in normalized form wins, then the first in sorted order.
func ParseJSON(data []byte) (map[string]Record, error) {
	var raw map[string]Record
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	records := make(map[string]Record, len(raw))
	source := make(map[string]string, len(raw))
	for _, name := range names {
		key := Normalize(name)
		if key == "" {
			continue
		}
		if prev, ok := source[key]; ok && (prev == key || name != key) {
			continue
		}
		records[key] = raw[name]
		source[key] = name
	}
	return records, nil
}

func NewJSONStore(records map[string]Record) *JSONStore {
	return &JSONStore{records: records}
}

func (s *JSONStore) Records(_ context.Context, keys []string) (map[string]Record, error) {
	out := make(map[string]Record, len(keys))
	for _, key := range keys {
		if rec, ok := s.records[key]; ok {
			out[key] = rec
		}
	}
	return out, nil
}

func (s *JSONStore) All() map[string]Record {
	return s.records
}

func (s *JSONStore) Close() error {
	return nil
}
