package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"csvload/internal/storage"
)

func newConnectionsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connections",
		Short: "Inspect connection profiles",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List connection profiles without secrets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			set, err := a.connections()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(set.Profiles) == 0 {
				fmt.Fprintf(out, "no connection profiles in %s\n", a.cfg.ConnectionsPath)
				return nil
			}
			for _, p := range set.Profiles {
				fmt.Fprintln(out, p.Describe())
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Open and ping every connection profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			set, err := a.connections()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			failed := 0
			for _, r := range set.Check(cmd.Context(), storage.New) {
				if r.Err != nil {
					failed++
					a.log.Warn("connection check failed", zap.String("connection", r.Name), zap.Error(r.Err))
					fmt.Fprintf(out, "%s %s: %v\n", failStyle.Render("✗"), r.Name, r.Err)
					continue
				}
				fmt.Fprintf(out, "%s %s\n", okStyle.Render("✓"), r.Name)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d connections failed", failed, len(set.Profiles))
			}
			return nil
		},
	})
	return cmd
}
