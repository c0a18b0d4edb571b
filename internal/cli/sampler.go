package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"csvload/internal/sampler"
)

func newSamplerCmd(a *app) *cobra.Command {
	var seed uint64
	cmd := &cobra.Command{
		Use:   "sampler <dir>",
		Short: "Write sample CSV files (owners, animals, pets) under <dir>/" + sampler.SubDir,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := sampler.Generate(args[0], seed)
			if err != nil {
				return err
			}
			for _, f := range res.Files {
				a.log.Info("sample written", zap.String("file", f.Path), zap.Int("rows", f.Rows))
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Dir)
			return nil
		},
	}
	cmd.Flags().Uint64Var(&seed, "seed", 1, "random seed; the same seed gives the same data")
	return cmd
}
