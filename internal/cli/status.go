package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"csvload/internal/state"
)

func newStatusCmd(a *app) *cobra.Command {
	var columns bool
	cmd := &cobra.Command{
		Use:   "status [descriptor]",
		Short: "Show stage progress for one or all state documents",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				path, err := a.descriptorPath(args[0])
				if err != nil {
					return err
				}
				d, err := state.Load(path)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s  %s", headerStyle.Render(d.ID), d.SourceDirectory)
				if d.BoundConnection != "" {
					fmt.Fprintf(out, "  connection=%s", d.BoundConnection)
				}
				fmt.Fprintln(out)
				printFiles(out, d)
				if columns {
					for _, f := range d.Files {
						if f.SchemaInferred {
							printColumns(out, f)
						}
					}
				}
				return nil
			}

			entries, err := state.List(a.cfg.MetadataDir)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintf(out, "no state documents in %s\n", a.cfg.MetadataDir)
				return nil
			}
			for _, e := range entries {
				if e.Err != nil {
					fmt.Fprintf(out, "%s  %s\n", e.Name, failStyle.Render(e.Err.Error()))
					continue
				}
				p := e.Descriptor.Progress()
				fmt.Fprintf(out, "%s  files=%d analyzed=%d created=%d imported=%d\n",
					e.Name, p.Total, p.SchemaInferred, p.TableMaterialized, p.DataLoaded)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&columns, "columns", false, "also print inferred columns")
	return cmd
}
