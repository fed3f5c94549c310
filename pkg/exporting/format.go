// Package exporting persists the samples of a monitoring session.
package exporting

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Record is a generic map representing a single exported row.
type Record = map[string]interface{}

// Format defines the interface for an output format.
type Format interface {
	Name() string
	Extension() string
	Writer() Writer
}

// Writer writes records to a file.
type Writer interface {
	Init(path string) error
	Write(record Record) error
	WriteBatch(records []Record) error
	Flush() error
	Close() error
	Path() string
}

var registry = make(map[string]Format)

// Register adds a format to the registry.
func Register(f Format) {
	registry[strings.ToLower(f.Name())] = f
}

// Get returns a format by name.
func Get(name string) (Format, bool) {
	f, ok := registry[strings.ToLower(name)]
	return f, ok
}

// Names lists the registered formats.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// SaveRecords writes records to dir/base<ext> in the named format and
// returns the written path.
func SaveRecords(dir, base, format string, records []Record) (string, error) {
	f, ok := Get(format)
	if !ok {
		return "", fmt.Errorf("unsupported format: %s", format)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(dir, base+f.Extension())
	writer := f.Writer()
	if err := writer.Init(path); err != nil {
		return "", fmt.Errorf("failed to initialize writer: %w", err)
	}

	if err := writer.WriteBatch(records); err != nil {
		writer.Close()
		return "", fmt.Errorf("failed to write records: %w", err)
	}

	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s: %w", path, err)
	}
	return path, nil
}
