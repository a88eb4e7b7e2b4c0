package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"fleet-monitor-backend/internal/blacklist"
)

func newBlacklistCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blacklist",
		Short: "Inspect the robot blacklist",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Print the configured ranges",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ranges, err := blacklist.Load(a.cfg.Blacklist.Path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(ranges) == 0 {
				fmt.Fprintln(out, "no ranges configured")
				return nil
			}
			for _, r := range ranges {
				if r.End == nil {
					fmt.Fprintf(out, "%d and above\n", r.Start)
				} else {
					fmt.Fprintf(out, "%d-%d\n", r.Start, *r.End)
				}
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "check <code>...",
		Short: "Report whether robot codes are blacklisted",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ranges, err := blacklist.Load(a.cfg.Blacklist.Path)
			if err != nil {
				return err
			}
			for _, code := range args {
				verdict := "allowed"
				if blacklist.IsBlacklisted(code, ranges) {
					verdict = "blacklisted"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", code, verdict)
			}
			return nil
		},
	})
	return cmd
}
