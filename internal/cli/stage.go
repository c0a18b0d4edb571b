package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"csvload/internal/pipeline"
	"csvload/internal/prompt"
	"csvload/internal/stage"
)

var stageHelp = map[string]string{
	"analyze": "Infer column types for every file not yet analyzed",
	"create":  "Create a table for every analyzed file",
	"import":  "Bulk-load every file whose table exists",
}

func newStageCmd(a *app, verb string) *cobra.Command {
	st, err := pipeline.ParseStage(verb)
	if err != nil {
		panic(err)
	}

	var connection string
	cmd := &cobra.Command{
		Use:   verb + " [descriptor]",
		Short: stageHelp[verb],
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			path, err := a.resolveDescriptor(ctx, args, st)
			if err != nil {
				return err
			}

			r := &stage.Runner{
				Chooser: prompt.Detect(connection, "pass --connection"),
				Logger:  a.log,
			}
			if st == pipeline.StageSchema {
				if r.Inferer, err = a.inferer(); err != nil {
					return err
				}
			}
			if st.NeedsConnection() {
				if r.Connections, err = a.connections(); err != nil {
					return err
				}
			}

			a.log.Info("stage starting", zap.String("stage", st.String()), zap.String("descriptor", path))
			rep, err := r.Run(ctx, path, st)
			printReport(cmd.OutOrStdout(), rep)
			return err
		},
	}
	if st == pipeline.StageMaterialize {
		cmd.Flags().StringVar(&connection, "connection", "", "connection profile to bind when the descriptor has none")
	}
	return cmd
}
