// Package discover lists the delimited files in a directory and records them
// as a new pipeline descriptor.
package discover

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"csvload/internal/pipeline"
	"csvload/internal/state"
)

// ErrNotADirectory is returned when the scan target is a regular file.
var ErrNotADirectory = errors.New("not a directory")

// Extensions are the file suffixes discovery picks up, matched case-insensitively.
var Extensions = []string{".csv", ".tsv", ".txt"}

// Result is a completed scan.
type Result struct {
	Descriptor pipeline.Descriptor
	// Path is where the descriptor was written.
	Path string
}

// Files lists delimited files directly inside dir, sorted by name.
// Subdirectories are not descended into; symlinks to files are followed.
func Files(dir string) ([]pipeline.DiscoveredFile, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: invalid path %s", pipeline.ErrNotFound, dir)
		}
		return nil, fmt.Errorf("discover: stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotADirectory, dir)
	}

	des, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("discover: read %s: %w", dir, err)
	}

	var out []pipeline.DiscoveredFile
	for _, de := range des {
		name := de.Name()
		if !hasExtension(name) {
			continue
		}
		p := filepath.Join(dir, name)
		fi, err := os.Stat(p)
		if err != nil || !fi.Mode().IsRegular() {
			continue
		}
		out = append(out, pipeline.DiscoveredFile{Name: name, Path: p, Size: fi.Size()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func hasExtension(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Scan discovers the files in dir and writes a fresh descriptor with every
// flag false to metadataDir. dir is recorded as an absolute path.
func Scan(dir, metadataDir string, now time.Time) (Result, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return Result{}, fmt.Errorf("discover: resolve %s: %w", dir, err)
	}
	files, err := Files(abs)
	if err != nil {
		return Result{}, err
	}

	d := pipeline.NewDescriptor(abs, now, files)
	for _, f := range d.Files {
		if f.TargetTableName == "" {
			return Result{}, fmt.Errorf("%w: %s yields an empty table name; rename the file", pipeline.ErrMalformed, f.FileName)
		}
	}
	p := state.PathFor(metadataDir, d.ID)
	if err := state.Save(p, d); err != nil {
		return Result{}, fmt.Errorf("discover: save %s: %w", p, err)
	}
	return Result{Descriptor: d, Path: p}, nil
}
