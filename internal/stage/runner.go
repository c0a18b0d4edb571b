// Package stage runs one pipeline stage over every eligible file of a state
// document and persists the result.
package stage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"csvload/internal/connections"
	"csvload/internal/metrics"
	"csvload/internal/pipeline"
	"csvload/internal/prompt"
	"csvload/internal/schema"
	"csvload/internal/state"
	"csvload/internal/storage"
)

// Inferer is what the schema stage needs; *schema.Engine in production.
type Inferer interface {
	Infer(ctx context.Context, path string) (schema.Result, error)
}

// Runner drives a stage. Only the fields a stage touches need to be set:
// the schema stage needs Inferer, the database stages need Connections.
//
// A Runner does not lock the state document. Running two stages against the
// same document at once is the caller's problem.
type Runner struct {
	Inferer     Inferer
	Connections *connections.Set

	// NewRepository opens a target database; storage.New when nil.
	NewRepository func(ctx context.Context, cfg storage.Config) (storage.Repository, error)

	// Chooser picks a connection for an unbound descriptor. A nil Chooser
	// behaves like prompt.NonInteractive.
	Chooser prompt.Chooser

	Logger *zap.Logger
}

// Report summarizes one run.
type Report struct {
	Stage      pipeline.Stage
	Connection string
	Processed  int
	Skipped    int
	Rows       int64
}

// Run loads the document at path, runs st on every eligible file in stored
// order and saves the document once at the end.
//
// When a file fails, the progress made on earlier files is still saved and the
// error is returned as a *pipeline.StageError naming the file. When no file is
// eligible but some file has not reached the stage yet, Run fails with
// pipeline.ErrNotReady. When every file is already past the stage, Run does
// nothing and leaves the document untouched.
//
// The materialize stage binds a connection on first use, asking the Chooser
// once. The load stage requires an existing binding.
func (r *Runner) Run(ctx context.Context, path string, st pipeline.Stage) (Report, error) {
	log := r.logger().With(zap.String("stage", st.String()))
	rep := Report{Stage: st}

	d, err := state.Load(path)
	if err != nil {
		return rep, &pipeline.StageError{Stage: st, Err: err}
	}
	rep.Connection = d.BoundConnection

	var eligible []int
	for i, f := range d.Files {
		if st.Eligible(f) {
			eligible = append(eligible, i)
		}
	}

	if len(eligible) == 0 {
		for _, f := range d.Files {
			if !st.Ready(f) {
				return rep, &pipeline.StageError{
					Stage: st,
					File:  f.FileName,
					Err:   fmt.Errorf("%w: %s must finish the stage before %s", pipeline.ErrNotReady, f.FileName, st),
				}
			}
		}
		rep.Skipped = len(d.Files)
		log.Info("nothing to do", zap.String("descriptor", d.ID))
		return rep, nil
	}
	rep.Skipped = len(d.Files) - len(eligible)

	runErr := r.runFiles(ctx, log, &d, st, eligible, &rep)

	if err := state.Save(path, d); err != nil {
		if runErr == nil {
			return rep, &pipeline.StageError{Stage: st, Err: err}
		}
		return rep, errors.Join(runErr, fmt.Errorf("save partial progress: %w", err))
	}
	return rep, runErr
}

func (r *Runner) runFiles(ctx context.Context, log *zap.Logger, d *pipeline.Descriptor, st pipeline.Stage, eligible []int, rep *Report) error {
	var repo storage.Repository
	if st.NeedsConnection() {
		name, err := r.connectionFor(ctx, d, st)
		if err != nil {
			return &pipeline.StageError{Stage: st, Err: err}
		}
		rep.Connection = name
		log = log.With(zap.String("connection", name))

		repo, err = r.open(ctx, name)
		if err != nil {
			return &pipeline.StageError{Stage: st, Err: err}
		}
		defer repo.Close()
	}

	for _, i := range eligible {
		f := d.Files[i]
		flog := log.With(zap.String("file", f.FileName), zap.String("table", f.TargetTableName))

		start := time.Now()
		out, rows, err := r.runFile(ctx, flog, repo, st, i, f)
		took := time.Since(start)
		if err == nil {
			*d, err = pipeline.Advance(*d, out)
		}
		if err != nil {
			metrics.RecordStageFile(st.String(), metrics.StatusError, took)
			flog.Error("stage failed", zap.Duration("duration", took), zap.Error(err))
			return &pipeline.StageError{Stage: st, File: f.FileName, Err: err}
		}

		metrics.RecordStageFile(st.String(), metrics.StatusOK, took)
		metrics.RecordRows(st.String(), rows)
		flog.Info("stage done", zap.Int64("rows", rows), zap.Duration("duration", took))
		rep.Processed++
		rep.Rows += rows
	}
	return nil
}

func (r *Runner) runFile(ctx context.Context, log *zap.Logger, repo storage.Repository, st pipeline.Stage, i int, f pipeline.FileRecord) (pipeline.Outcome, int64, error) {
	out := pipeline.Outcome{Stage: st, File: i}

	switch st {
	case pipeline.StageSchema:
		if r.Inferer == nil {
			return out, 0, fmt.Errorf("%w: no schema engine configured", pipeline.ErrInvariantViolation)
		}
		res, err := r.Inferer.Infer(ctx, f.FullPath)
		if err != nil {
			return out, 0, err
		}
		out.Schema = &res
		return out, res.RowCount, nil

	case pipeline.StageMaterialize:
		return out, 0, materialize(ctx, repo, f)

	case pipeline.StageLoad:
		n, err := repo.LoadRows(ctx, storage.LoadRequest{
			Table:     f.TargetTableName,
			Path:      f.FullPath,
			Columns:   f.Columns,
			Delimiter: f.FieldDelimiter(),
			OnSkip: func(line int, err error) {
				log.Warn("skipped line", zap.Int("line", line), zap.Error(err))
			},
		})
		if err != nil {
			if errors.Is(err, storage.ErrUnsupported) {
				return out, 0, fmt.Errorf("%w: %w", pipeline.ErrUnsupportedDriver, err)
			}
			return out, 0, fmt.Errorf("%w: %w", pipeline.ErrTransportFailure, err)
		}
		return out, n, nil

	default:
		return out, 0, fmt.Errorf("%w: unknown stage %s", pipeline.ErrInvariantViolation, st)
	}
}

// materialize never alters an existing table.
func materialize(ctx context.Context, repo storage.Repository, f pipeline.FileRecord) error {
	table := f.TargetTableName

	exists, err := repo.TableExists(ctx, table)
	if err != nil {
		return fmt.Errorf("%w: %w", pipeline.ErrTransportFailure, err)
	}
	if exists {
		return fmt.Errorf("%w: %w: %s", pipeline.ErrAlreadyExists, storage.ErrTableExists, table)
	}

	if err := repo.CreateTable(ctx, table, f.Columns); err != nil {
		if errors.Is(err, storage.ErrTableExists) {
			return fmt.Errorf("%w: %w", pipeline.ErrAlreadyExists, err)
		}
		return fmt.Errorf("%w: %w", pipeline.ErrTransportFailure, err)
	}
	return nil
}

// connectionFor returns the bound connection, binding one first for the
// materialize stage. d is updated in place so the binding is saved with the
// run's progress.
func (r *Runner) connectionFor(ctx context.Context, d *pipeline.Descriptor, st pipeline.Stage) (string, error) {
	if d.BoundConnection != "" || st != pipeline.StageMaterialize {
		return pipeline.RequireConnection(*d)
	}

	if r.Connections == nil || len(r.Connections.Profiles) == 0 {
		return "", fmt.Errorf("%w: no connection profiles configured", pipeline.ErrMissingConnection)
	}

	options := make([]prompt.Option, 0, len(r.Connections.Profiles))
	for _, p := range r.Connections.Profiles {
		options = append(options, prompt.Option{Label: p.Name, Value: p.Name, Description: p.Describe()})
	}

	chooser := r.Chooser
	if chooser == nil {
		chooser = prompt.NonInteractive{Hint: "pass --connection"}
	}
	name, err := chooser.ChooseOneOf(ctx, fmt.Sprintf("Select a connection for %s", d.ID), options)
	if err != nil {
		return "", fmt.Errorf("%w: %w", pipeline.ErrMissingConnection, err)
	}

	bound, err := pipeline.BindConnection(*d, name)
	if err != nil {
		return "", err
	}
	*d = bound
	r.logger().Info("connection bound", zap.String("descriptor", d.ID), zap.String("connection", name))
	return name, nil
}

func (r *Runner) open(ctx context.Context, name string) (storage.Repository, error) {
	if r.Connections == nil {
		return nil, fmt.Errorf("%w: connection %q", pipeline.ErrNotFound, name)
	}
	p, err := r.Connections.Find(name)
	if err != nil {
		return nil, err
	}
	cfg, err := p.StorageConfig()
	if err != nil {
		return nil, err
	}

	newRepo := r.NewRepository
	if newRepo == nil {
		newRepo = storage.New
	}
	repo, err := newRepo(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", pipeline.ErrTransportFailure, name, err)
	}
	return repo, nil
}

func (r *Runner) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}
