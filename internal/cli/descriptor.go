package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"csvload/internal/pipeline"
	"csvload/internal/prompt"
	"csvload/internal/state"
)

// resolveDescriptor turns the optional argument of a stage command into a
// state document path. With no argument the operator picks from the
// documents in the metadata directory; documents with nothing to do for st
// are shown but cannot be picked.
func (a *app) resolveDescriptor(ctx context.Context, args []string, st pipeline.Stage) (string, error) {
	if len(args) > 0 {
		return a.descriptorPath(args[0])
	}

	entries, err := state.List(a.cfg.MetadataDir)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", fmt.Errorf("%w: no state documents in %s; run scan first", pipeline.ErrNotFound, a.cfg.MetadataDir)
	}

	options := make([]prompt.Option, 0, len(entries))
	for _, e := range entries {
		o := prompt.Option{Label: e.Name, Value: e.Path}
		switch {
		case e.Err != nil:
			o.Disabled, o.Reason = true, e.Err.Error()
		case !e.ReadyFor(st):
			o.Disabled, o.Reason = true, "Not ready"
		default:
			p := e.Descriptor.Progress()
			o.Description = fmt.Sprintf("%s · %d files · analyzed %d, created %d, imported %d",
				e.Descriptor.SourceDirectory, p.Total, p.SchemaInferred, p.TableMaterialized, p.DataLoaded)
		}
		options = append(options, o)
	}

	chooser := prompt.Detect("", "pass the descriptor id or path as an argument")
	return chooser.ChooseOneOf(ctx, "Select a metadata file", options)
}

// descriptorPath accepts a path to a document or a descriptor id.
func (a *app) descriptorPath(arg string) (string, error) {
	if _, err := os.Stat(arg); err == nil {
		return arg, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}

	id := strings.TrimSuffix(filepath.Base(arg), state.Ext)
	p := state.PathFor(a.cfg.MetadataDir, id)
	if _, err := os.Stat(p); err != nil {
		return "", fmt.Errorf("%w: descriptor %q (looked for %s)", pipeline.ErrNotFound, arg, p)
	}
	return p, nil
}
