// Package nutrition resolves detected food names to nutrition facts from a static database.
package nutrition

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Record holds the nutrient values of one food. A nil field is unknown.
type Record struct {
	Calories *float64 `json:"calories"`
	Protein  *float64 `json:"protein"`
	Fat      *float64 `json:"fat"`
	Carbs    *float64 `json:"carbs"`
	Fiber    *float64 `json:"fiber"`
}

// Facts is the per-field view of a lookup: every slice is aligned by index with the names that
// were looked up, and a nil entry marks a name without data.
type Facts struct {
	Calories []*float64
	Protein  []*float64
	Fat      []*float64
	Carbs    []*float64
	Fiber    []*float64
}

// Store returns the records it knows for the given normalized keys. Unknown keys are absent
// from the result.
type Store interface {
	Records(ctx context.Context, keys []string) (map[string]Record, error)
	Close() error
}

type Database struct {
	store Store
}

func New(store Store) *Database {
	return &Database{store: store}
}

// Open picks the SQLite store for .db/.sqlite/.sqlite3 files and the JSON store otherwise.
func Open(path string) (*Database, error) {
	var (
		store Store
		err   error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		store, err = OpenSQLite(path)
	default:
		store, err = LoadJSON(path)
	}
	if err != nil {
		return nil, err
	}
	return New(store), nil
}

func (d *Database) Close() error {
	return d.store.Close()
}

// Lookup returns facts aligned with names. Names missing from the store yield nil entries; the
// slices are never nil, so an empty names list gives empty slices.
func (d *Database) Lookup(ctx context.Context, names []string) (*Facts, error) {
	keys := make([]string, len(names))
	for i, name := range names {
		keys[i] = Normalize(name)
	}

	records, err := d.store.Records(ctx, unique(keys))
	if err != nil {
		return nil, errors.Wrap(err, "nutrition lookup")
	}

	facts := &Facts{
		Calories: make([]*float64, len(keys)),
		Protein:  make([]*float64, len(keys)),
		Fat:      make([]*float64, len(keys)),
		Carbs:    make([]*float64, len(keys)),
		Fiber:    make([]*float64, len(keys)),
	}
	for i, key := range keys {
		rec, ok := records[key]
		if !ok {
			continue
		}
		facts.Calories[i] = rec.Calories
		facts.Protein[i] = rec.Protein
		facts.Fat[i] = rec.Fat
		facts.Carbs[i] = rec.Carbs
		facts.Fiber[i] = rec.Fiber
	}
	return facts, nil
}

func Normalize(name string) string {
	name = strings.ToLower(name)
	name = strings.NewReplacer("-", " ", "_", " ").Replace(name)
	return strings.Join(strings.Fields(name), " ")
}

func unique(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}
