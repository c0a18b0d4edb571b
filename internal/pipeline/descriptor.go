// Package pipeline holds the durable model of one directory scan and the pure
// transitions that move its files through the stages.
//
// Nothing here touches the file system or a database. The state package
// persists a Descriptor; the stage package decides what to run and feeds
// results back through Advance.
package pipeline

import (
	"slices"
	"time"

	"csvload/internal/schema"
)

// Descriptor is the durable record of one directory scan.
type Descriptor struct {
	ID              string       `json:"id"`
	SourceDirectory string       `json:"sourceDirectory"`
	ScannedAt       time.Time    `json:"scannedAt"`
	Files           []FileRecord `json:"files"`
	// BoundConnection names the connection profile every database stage uses.
	// Once set it never changes.
	BoundConnection string `json:"boundConnection,omitempty"`
}

// FileRecord is one file's identity, inferred schema and stage flags.
//
// FileName, FullPath and SizeBytes are fixed at discovery. The flags only ever
// go from false to true, and a later flag implies every earlier one.
type FileRecord struct {
	FileName        string          `json:"fileName"`
	FullPath        string          `json:"fullPath"`
	SizeBytes       int64           `json:"sizeBytes"`
	TargetTableName string          `json:"targetTableName"`
	Headers         []string        `json:"headers"`
	Columns         []schema.Column `json:"columns"`
	RowCount        int64           `json:"rowCount"`
	Delimiter       string          `json:"delimiter,omitempty"`

	SchemaInferred    bool `json:"schemaInferred"`
	TableMaterialized bool `json:"tableMaterialized"`
	DataLoaded        bool `json:"dataLoaded"`
}

// Clone returns a deep copy.
func (d Descriptor) Clone() Descriptor {
	out := d
	out.Files = make([]FileRecord, len(d.Files))
	for i, f := range d.Files {
		out.Files[i] = f.Clone()
	}
	if d.Files == nil {
		out.Files = nil
	}
	return out
}

// Clone returns a deep copy.
func (f FileRecord) Clone() FileRecord {
	out := f
	out.Headers = slices.Clone(f.Headers)
	out.Columns = slices.Clone(f.Columns)
	return out
}

// FieldDelimiter returns the recorded delimiter, or "," when none was recorded.
func (f FileRecord) FieldDelimiter() string {
	if f.Delimiter == "" {
		return ","
	}
	return f.Delimiter
}

// Progress counts files per completed stage.
type Progress struct {
	Total             int
	SchemaInferred    int
	TableMaterialized int
	DataLoaded        int
}

// Progress summarizes the descriptor's stage flags.
func (d Descriptor) Progress() Progress {
	p := Progress{Total: len(d.Files)}
	for _, f := range d.Files {
		if f.SchemaInferred {
			p.SchemaInferred++
		}
		if f.TableMaterialized {
			p.TableMaterialized++
		}
		if f.DataLoaded {
			p.DataLoaded++
		}
	}
	return p
}

// NewDescriptor builds a fresh descriptor for files discovered in dir at scannedAt.
// Every stage flag starts false.
func NewDescriptor(dir string, scannedAt time.Time, files []DiscoveredFile) Descriptor {
	scannedAt = scannedAt.UTC()
	d := Descriptor{
		ID:              DescriptorID(scannedAt, dir),
		SourceDirectory: dir,
		ScannedAt:       scannedAt,
		Files:           make([]FileRecord, 0, len(files)),
	}
	for _, f := range files {
		d.Files = append(d.Files, FileRecord{
			FileName:        f.Name,
			FullPath:        f.Path,
			SizeBytes:       f.Size,
			TargetTableName: TableName(f.Name),
			Headers:         []string{},
			Columns:         []schema.Column{},
		})
	}
	return d
}

// DiscoveredFile is what discovery knows about a file before any stage runs.
type DiscoveredFile struct {
	Name string
	Path string
	Size int64
}
