// Package state persists pipeline descriptors as one JSON document per scan.
//
// Writes are atomic for readers: the document is written to a temporary file
// in the same directory, synced, then renamed over the target. A document is
// assumed to have a single writer; two invocations saving the same path
// concurrently can lose one another's progress. Callers that run stages in
// parallel must serialize them per document.
package state

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"csvload/internal/pipeline"
)

// Ext is the extension of state documents.
const Ext = ".json"

// PathFor returns the document path for descriptor id in dir.
func PathFor(dir, id string) string {
	return filepath.Join(dir, id+Ext)
}

// Load reads and validates the document at path.
//
// Errors:
//   - pipeline.ErrNotFound if the file does not exist.
//   - pipeline.ErrMalformed if it is not valid JSON or lacks required fields.
//   - pipeline.ErrInvariantViolation if its flags contradict each other.
func Load(path string) (pipeline.Descriptor, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return pipeline.Descriptor{}, fmt.Errorf("state %s: %w", path, pipeline.ErrNotFound)
		}
		return pipeline.Descriptor{}, fmt.Errorf("state %s: %w", path, err)
	}
	return decode(path, b)
}

func decode(path string, b []byte) (pipeline.Descriptor, error) {
	var d pipeline.Descriptor
	dec := json.NewDecoder(bytes.NewReader(b))
	if err := dec.Decode(&d); err != nil {
		return pipeline.Descriptor{}, fmt.Errorf("state %s: %w: %v", path, pipeline.ErrMalformed, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return pipeline.Descriptor{}, fmt.Errorf("state %s: %w: trailing data after document", path, pipeline.ErrMalformed)
	}
	if err := pipeline.Validate(d); err != nil {
		return pipeline.Descriptor{}, fmt.Errorf("state %s: %w", path, err)
	}
	return d, nil
}

// Encode renders d the way Save writes it: two-space indented JSON with
// fields in declaration order and a trailing newline.
func Encode(d pipeline.Descriptor) ([]byte, error) {
	b, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// Save validates d and writes it to path.
//
// If a document already exists at path, d must be a legal successor of it
// (see pipeline.CheckTransition); otherwise Save refuses with
// pipeline.ErrInvariantViolation and leaves the file untouched. Saving bytes
// identical to what is on disk does not rewrite the file.
func Save(path string, d pipeline.Descriptor) error {
	if err := pipeline.Validate(d); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}

	next, err := Encode(d)
	if err != nil {
		return fmt.Errorf("save %s: encode: %w", path, err)
	}

	current, err := os.ReadFile(path)
	switch {
	case err == nil:
		if bytes.Equal(current, next) {
			return nil
		}
		prev, err := decode(path, current)
		if err != nil {
			return fmt.Errorf("save %s: existing document: %w", path, err)
		}
		if err := pipeline.CheckTransition(prev, d); err != nil {
			return fmt.Errorf("save %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return fmt.Errorf("save %s: %w", path, err)
	}

	return writeAtomic(path, next)
}

func writeAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("save %s: write: %w", path, err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("save %s: sync: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("save %s: close: %w", path, err)
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("save %s: chmod: %w", path, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("save %s: rename: %w", path, err)
	}
	return nil
}

// Entry is one document found by List.
type Entry struct {
	Path       string
	Name       string
	Descriptor pipeline.Descriptor
	// Err is set when the document could not be loaded.
	Err error
}

// ReadyFor reports whether the entry loaded and has work for stage s.
func (e Entry) ReadyFor(s pipeline.Stage) bool {
	return e.Err == nil && e.Descriptor.ReadyFor(s)
}

// List returns every state document in dir sorted by file name. Documents
// that fail to load are included with Err set. A missing dir yields no
// entries.
func List(dir string) ([]Entry, error) {
	des, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	var out []Entry
	for _, de := range des {
		name := de.Name()
		if de.IsDir() || !strings.EqualFold(filepath.Ext(name), Ext) || strings.HasPrefix(name, ".") {
			continue
		}
		p := filepath.Join(dir, name)
		d, err := Load(p)
		out = append(out, Entry{Path: p, Name: name, Descriptor: d, Err: err})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
