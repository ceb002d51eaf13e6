package main

import (
	"fmt"

	"bounty-arbitration-service/config"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func reclaimCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "reclaim",
		Short: "Run one lease reclaim sweep and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			svc := newService(cfg, st)
			out := cmd.OutOrStdout()

			if dryRun {
				ids, err := svc.ExpiredLeaseIDs(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s %d lapsed lease(s)\n", color.New(color.FgYellow).Sprint("dry-run:"), len(ids))
				for _, id := range ids {
					fmt.Fprintf(out, "  %s\n", id)
				}
				return nil
			}

			ids, err := svc.ReclaimExpired(cmd.Context())
			for _, id := range ids {
				fmt.Fprintf(out, "  %s %s\n", color.New(color.FgGreen).Sprint("reopened"), id)
			}
			if err != nil {
				fmt.Fprintf(out, "%s %v\n", color.New(color.FgRed).Sprint("errors:"), err)
				return err
			}
			fmt.Fprintf(out, "%s %d bounty(ies) reopened\n", color.New(color.FgGreen).Sprint("done:"), len(ids))
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list lapsed leases without reopening them")
	return cmd
}
