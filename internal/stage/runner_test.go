package stage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"csvload/internal/connections"
	"csvload/internal/discover"
	"csvload/internal/pipeline"
	"csvload/internal/prompt"
	"csvload/internal/schema"
	"csvload/internal/state"
	"csvload/internal/storage"
	_ "csvload/internal/storage/sqlite"
	"csvload/internal/tabular"
	"csvload/internal/tabular/csvfile"
)

type fakeInferer struct {
	fail  map[string]error
	calls []string
}

func (f *fakeInferer) Infer(_ context.Context, path string) (schema.Result, error) {
	f.calls = append(f.calls, filepath.Base(path))
	if err := f.fail[filepath.Base(path)]; err != nil {
		return schema.Result{}, err
	}
	return schema.Result{
		Headers:   []string{"id"},
		RowCount:  2,
		Columns:   []schema.Column{{Name: "id", Type: schema.Int, SourceType: "INTEGER"}},
		Delimiter: ",",
	}, nil
}

type fakeRepo struct {
	existing  map[string]bool
	created   []string
	loads     []storage.LoadRequest
	createErr error
	loadErr   error
	closed    bool
}

func (f *fakeRepo) Ping(context.Context) error { return nil }

func (f *fakeRepo) TableExists(_ context.Context, table string) (bool, error) {
	return f.existing[table], nil
}

func (f *fakeRepo) CreateTable(_ context.Context, table string, _ []schema.Column) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, table)
	return nil
}

func (f *fakeRepo) LoadRows(_ context.Context, req storage.LoadRequest) (int64, error) {
	if f.loadErr != nil {
		return 0, f.loadErr
	}
	f.loads = append(f.loads, req)
	return 2, nil
}

func (f *fakeRepo) Close() error {
	f.closed = true
	return nil
}

// countingChooser records how often it was asked.
type countingChooser struct {
	answer string
	calls  int
}

func (c *countingChooser) ChooseOneOf(ctx context.Context, title string, opts []prompt.Option) (string, error) {
	c.calls++
	return prompt.Fixed(c.answer).ChooseOneOf(ctx, title, opts)
}

func testProfiles() *connections.Set {
	return &connections.Set{Profiles: []connections.Profile{
		{Name: "local", Driver: connections.DriverSQLite, FilePath: "/tmp/unused.db"},
		{Name: "other", Driver: connections.DriverSQLite, FilePath: "/tmp/other.db"},
	}}
}

func writeDescriptor(t *testing.T, mutate func(*pipeline.Descriptor)) string {
	t.Helper()
	d := pipeline.NewDescriptor("/data/pets", time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), []pipeline.DiscoveredFile{
		{Name: "owners.csv", Path: "/data/pets/owners.csv", Size: 10},
		{Name: "pets.csv", Path: "/data/pets/pets.csv", Size: 20},
	})
	if mutate != nil {
		mutate(&d)
	}
	path := state.PathFor(t.TempDir(), d.ID)
	require.NoError(t, state.Save(path, d))
	return path
}

func inferred(d *pipeline.Descriptor) {
	for i := range d.Files {
		d.Files[i].SchemaInferred = true
		d.Files[i].Headers = []string{"id"}
		d.Files[i].Columns = []schema.Column{{Name: "id", Type: schema.Int}}
		d.Files[i].Delimiter = ";"
	}
}

func materialized(d *pipeline.Descriptor) {
	inferred(d)
	for i := range d.Files {
		d.Files[i].TableMaterialized = true
	}
	d.BoundConnection = "local"
}

func repoOpener(repo *fakeRepo) func(context.Context, storage.Config) (storage.Repository, error) {
	return func(context.Context, storage.Config) (storage.Repository, error) { return repo, nil }
}

func TestRun_SchemaThenIdempotent(t *testing.T) {
	t.Parallel()

	path := writeDescriptor(t, nil)
	inf := &fakeInferer{}
	r := &Runner{Inferer: inf}

	rep, err := r.Run(context.Background(), path, pipeline.StageSchema)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Processed)
	assert.Equal(t, int64(4), rep.Rows)
	assert.Equal(t, []string{"owners.csv", "pets.csv"}, inf.calls)

	d, err := state.Load(path)
	require.NoError(t, err)
	for _, f := range d.Files {
		assert.True(t, f.SchemaInferred)
		assert.Equal(t, []string{"id"}, f.Headers)
		assert.Equal(t, int64(2), f.RowCount)
	}

	before, err := os.ReadFile(path)
	require.NoError(t, err)
	info, err := os.Stat(path)
	require.NoError(t, err)

	rep, err = r.Run(context.Background(), path, pipeline.StageSchema)
	require.NoError(t, err)
	assert.Zero(t, rep.Processed)
	assert.Equal(t, 2, rep.Skipped)
	assert.Len(t, inf.calls, 2, "no file is analyzed twice")

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	info2, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, info.ModTime(), info2.ModTime())
}

func TestRun_SchemaSavesPartialProgress(t *testing.T) {
	t.Parallel()

	path := writeDescriptor(t, nil)
	boom := errors.New("engine exploded")
	r := &Runner{Inferer: &fakeInferer{fail: map[string]error{"pets.csv": boom}}}

	_, err := r.Run(context.Background(), path, pipeline.StageSchema)
	require.ErrorIs(t, err, boom)

	var se *pipeline.StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, pipeline.StageSchema, se.Stage)
	assert.Equal(t, "pets.csv", se.File)
	assert.Contains(t, err.Error(), "stage=schema file=pets.csv")

	d, err := state.Load(path)
	require.NoError(t, err)
	assert.True(t, d.Files[0].SchemaInferred)
	assert.False(t, d.Files[1].SchemaInferred)
}

func TestRun_MaterializeBeforeSchemaIsNotReady(t *testing.T) {
	t.Parallel()

	path := writeDescriptor(t, nil)
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	chooser := &countingChooser{answer: "local"}
	r := &Runner{Connections: testProfiles(), Chooser: chooser, NewRepository: repoOpener(&fakeRepo{})}

	_, err = r.Run(context.Background(), path, pipeline.StageMaterialize)
	require.ErrorIs(t, err, pipeline.ErrNotReady)
	assert.Contains(t, err.Error(), "owners.csv")
	assert.Zero(t, chooser.calls)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRun_MaterializeBindsOnce(t *testing.T) {
	t.Parallel()

	path := writeDescriptor(t, inferred)
	chooser := &countingChooser{answer: "other"}
	repo := &fakeRepo{}
	r := &Runner{Connections: testProfiles(), Chooser: chooser, NewRepository: repoOpener(repo)}

	rep, err := r.Run(context.Background(), path, pipeline.StageMaterialize)
	require.NoError(t, err)
	assert.Equal(t, 1, chooser.calls)
	assert.Equal(t, "other", rep.Connection)
	assert.Equal(t, []string{"owners", "pets"}, repo.created)
	assert.True(t, repo.closed)

	d, err := state.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "other", d.BoundConnection)
	assert.True(t, d.Files[0].TableMaterialized)
	assert.True(t, d.Files[1].TableMaterialized)

	_, err = r.Run(context.Background(), path, pipeline.StageMaterialize)
	require.NoError(t, err)
	assert.Equal(t, 1, chooser.calls, "a bound descriptor is never asked again")
}

func TestRun_MaterializeTableCollision(t *testing.T) {
	t.Parallel()

	path := writeDescriptor(t, inferred)
	repo := &fakeRepo{existing: map[string]bool{"pets": true}}
	r := &Runner{Connections: testProfiles(), Chooser: prompt.Fixed("local"), NewRepository: repoOpener(repo)}

	_, err := r.Run(context.Background(), path, pipeline.StageMaterialize)
	require.ErrorIs(t, err, pipeline.ErrAlreadyExists)
	assert.ErrorIs(t, err, storage.ErrTableExists)
	assert.Equal(t, []string{"owners"}, repo.created)

	d, err := state.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "local", d.BoundConnection)
	assert.True(t, d.Files[0].TableMaterialized)
	assert.False(t, d.Files[1].TableMaterialized)
}

func TestRun_MaterializeCreateRace(t *testing.T) {
	t.Parallel()

	path := writeDescriptor(t, inferred)
	repo := &fakeRepo{createErr: storage.ErrTableExists}
	r := &Runner{Connections: testProfiles(), Chooser: prompt.Fixed("local"), NewRepository: repoOpener(repo)}

	_, err := r.Run(context.Background(), path, pipeline.StageMaterialize)
	assert.ErrorIs(t, err, pipeline.ErrAlreadyExists)
}

func TestRun_MaterializeWithoutChoice(t *testing.T) {
	t.Parallel()

	path := writeDescriptor(t, inferred)
	r := &Runner{Connections: testProfiles(), NewRepository: repoOpener(&fakeRepo{})}

	_, err := r.Run(context.Background(), path, pipeline.StageMaterialize)
	require.ErrorIs(t, err, pipeline.ErrMissingConnection)
	assert.ErrorIs(t, err, prompt.ErrNoChoice)

	d, err := state.Load(path)
	require.NoError(t, err)
	assert.Empty(t, d.BoundConnection)
}

func TestRun_LoadRequiresBinding(t *testing.T) {
	t.Parallel()

	path := writeDescriptor(t, func(d *pipeline.Descriptor) {
		materialized(d)
		d.BoundConnection = ""
	})
	r := &Runner{Connections: testProfiles(), Chooser: prompt.Fixed("local"), NewRepository: repoOpener(&fakeRepo{})}

	_, err := r.Run(context.Background(), path, pipeline.StageLoad)
	require.ErrorIs(t, err, pipeline.ErrMissingConnection)
	assert.ErrorIs(t, err, pipeline.ErrMalformed)
}

func TestRun_LoadPassesFileShape(t *testing.T) {
	t.Parallel()

	path := writeDescriptor(t, materialized)
	repo := &fakeRepo{}
	r := &Runner{Connections: testProfiles(), NewRepository: repoOpener(repo)}

	rep, err := r.Run(context.Background(), path, pipeline.StageLoad)
	require.NoError(t, err)
	assert.Equal(t, int64(4), rep.Rows)

	require.Len(t, repo.loads, 2)
	req := repo.loads[0]
	assert.Equal(t, "owners", req.Table)
	assert.Equal(t, "/data/pets/owners.csv", req.Path)
	assert.Equal(t, ";", req.Delimiter)
	assert.NotNil(t, req.OnSkip)

	d, err := state.Load(path)
	require.NoError(t, err)
	assert.True(t, d.Files[0].DataLoaded)
	assert.True(t, d.Files[1].DataLoaded)
}

func TestRun_LoadUnsupportedDriver(t *testing.T) {
	t.Parallel()

	path := writeDescriptor(t, materialized)
	r := &Runner{Connections: testProfiles(), NewRepository: repoOpener(&fakeRepo{loadErr: storage.ErrUnsupported})}

	_, err := r.Run(context.Background(), path, pipeline.StageLoad)
	require.ErrorIs(t, err, pipeline.ErrUnsupportedDriver)
	assert.ErrorIs(t, err, pipeline.ErrTransportFailure)

	d, err := state.Load(path)
	require.NoError(t, err)
	assert.False(t, d.Files[0].DataLoaded)
}

func TestRun_LoadTransportFailure(t *testing.T) {
	t.Parallel()

	path := writeDescriptor(t, materialized)
	r := &Runner{Connections: testProfiles(), NewRepository: repoOpener(&fakeRepo{loadErr: errors.New("connection reset")})}

	_, err := r.Run(context.Background(), path, pipeline.StageLoad)
	require.ErrorIs(t, err, pipeline.ErrTransportFailure)
	assert.NotErrorIs(t, err, pipeline.ErrUnsupportedDriver)
}

func TestRun_UnknownBoundConnection(t *testing.T) {
	t.Parallel()

	path := writeDescriptor(t, func(d *pipeline.Descriptor) {
		materialized(d)
		d.BoundConnection = "gone"
	})
	r := &Runner{Connections: testProfiles(), NewRepository: repoOpener(&fakeRepo{})}

	_, err := r.Run(context.Background(), path, pipeline.StageLoad)
	assert.ErrorIs(t, err, pipeline.ErrNotFound)
}

func TestRun_MissingDocument(t *testing.T) {
	t.Parallel()

	r := &Runner{Inferer: &fakeInferer{}}
	_, err := r.Run(context.Background(), filepath.Join(t.TempDir(), "nope.json"), pipeline.StageSchema)
	assert.ErrorIs(t, err, pipeline.ErrNotFound)
}

func TestRun_SQLiteEndToEnd(t *testing.T) {
	t.Parallel()

	data := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(data, "Pet Owners.csv"), []byte("id,name,active\n1,Ann,yes\n2,,no\n"), 0o644))
	meta := t.TempDir()

	res, err := discover.Scan(data, meta, time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC))
	require.NoError(t, err)

	dbPath := filepath.Join(t.TempDir(), "target.db")
	r := &Runner{
		Inferer: schema.NewEngine(tabular.OpenerFunc(csvfile.Open)),
		Connections: &connections.Set{Profiles: []connections.Profile{
			{Name: "local", Driver: connections.DriverSQLite, FilePath: dbPath},
		}},
		Chooser: prompt.Fixed("local"),
	}
	ctx := context.Background()

	_, err = r.Run(ctx, res.Path, pipeline.StageSchema)
	require.NoError(t, err)
	_, err = r.Run(ctx, res.Path, pipeline.StageMaterialize)
	require.NoError(t, err)
	_, err = r.Run(ctx, res.Path, pipeline.StageLoad)
	require.ErrorIs(t, err, pipeline.ErrUnsupportedDriver)

	d, err := state.Load(res.Path)
	require.NoError(t, err)
	f := d.Files[0]
	assert.Equal(t, "pet_owners", f.TargetTableName)
	assert.Equal(t, schema.Boolean, f.Columns[2].Type)
	assert.True(t, f.Columns[1].Nullable)
	assert.True(t, f.TableMaterialized)
	assert.False(t, f.DataLoaded)

	_, err = r.Run(ctx, res.Path, pipeline.StageMaterialize)
	require.NoError(t, err, "already materialized files are skipped")
}
