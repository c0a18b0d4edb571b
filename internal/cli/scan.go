package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"csvload/internal/discover"
)

func newScanCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "scan <dir>",
		Short: "Record the delimited files of a directory in a new state document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := discover.Scan(args[0], a.cfg.MetadataDir, time.Now())
			if err != nil {
				return err
			}
			d := res.Descriptor
			a.log.Info("scan complete",
				zap.String("descriptor", d.ID),
				zap.String("dir", d.SourceDirectory),
				zap.Int("files", len(d.Files)),
			)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n", res.Path)
			for _, f := range d.Files {
				fmt.Fprintf(out, "  %s -> %s (%d bytes)\n", f.FileName, f.TargetTableName, f.SizeBytes)
			}
			return nil
		},
	}
}
