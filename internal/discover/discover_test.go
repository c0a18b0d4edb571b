package discover

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"csvload/internal/pipeline"
	"csvload/internal/state"
)

func touch(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestFiles_FiltersAndSorts(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	touch(t, dir, "pets.csv", "id\n1\n")
	touch(t, dir, "Animals.TSV", "id\n")
	touch(t, dir, "notes.txt", "a\n")
	touch(t, dir, "readme.md", "# no")
	touch(t, dir, "archive.csv.gz", "x")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.csv"), 0o755))
	touch(t, filepath.Join(dir, "nested.csv"), "deep.csv", "x")

	files, err := Files(dir)
	require.NoError(t, err)

	var names []string
	for _, f := range files {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"Animals.TSV", "notes.txt", "pets.csv"}, names)
	assert.Equal(t, int64(len("id\n1\n")), files[2].Size)
	assert.Equal(t, filepath.Join(dir, "pets.csv"), files[2].Path)
}

func TestFiles_Errors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	_, err := Files(filepath.Join(dir, "nope"))
	assert.ErrorIs(t, err, pipeline.ErrNotFound)
	assert.Contains(t, err.Error(), "invalid path")

	touch(t, dir, "a.csv", "x")
	_, err = Files(filepath.Join(dir, "a.csv"))
	assert.ErrorIs(t, err, ErrNotADirectory)
}

func TestScan_WritesFreshDescriptor(t *testing.T) {
	t.Parallel()
	src := filepath.Join(t.TempDir(), "Pet Owners")
	require.NoError(t, os.Mkdir(src, 0o755))
	touch(t, src, "owners.csv", "id,name\n1,Ann\n")
	touch(t, src, "Quarter-1 Sales Data.csv", "a\n")
	meta := filepath.Join(t.TempDir(), "metadata")

	now := time.Date(2025, 3, 4, 5, 6, 7, 890_000_000, time.UTC)
	res, err := Scan(src, meta, now)
	require.NoError(t, err)

	assert.Equal(t, "2025-03-04T05-06-07-890Z_pet_owners", res.Descriptor.ID)
	assert.Equal(t, filepath.Join(meta, res.Descriptor.ID+".json"), res.Path)
	require.Len(t, res.Descriptor.Files, 2)
	assert.Equal(t, "quarter_1_sales_data", res.Descriptor.Files[0].TargetTableName)
	for _, f := range res.Descriptor.Files {
		assert.False(t, f.SchemaInferred || f.TableMaterialized || f.DataLoaded)
	}

	loaded, err := state.Load(res.Path)
	require.NoError(t, err)
	assert.Equal(t, res.Descriptor, loaded)
}

func TestScan_EmptyDirectory(t *testing.T) {
	t.Parallel()
	src := t.TempDir()

	res, err := Scan(src, filepath.Join(t.TempDir(), "m"), time.Now())
	require.NoError(t, err)
	assert.Empty(t, res.Descriptor.Files)
}

func TestScan_RejectsUnnameableFile(t *testing.T) {
	t.Parallel()
	src := t.TempDir()
	touch(t, src, "@@@.csv", "a\n")

	_, err := Scan(src, filepath.Join(t.TempDir(), "m"), time.Now())
	assert.ErrorIs(t, err, pipeline.ErrMalformed)
}
