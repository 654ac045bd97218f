package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vadim/neo-gateway/internal/domain/tenant/entity"
)

func newUnattributedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unattributed",
		Short: "Review events received for unmapped channel accounts",
	}

	cmd.AddCommand(newUnattributedListCmd())
	cmd.AddCommand(newUnattributedDismissCmd())
	return cmd
}

func newUnattributedListCmd() *cobra.Command {
	var (
		status string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List unattributed events",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, pool, err := connectTenants(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer pool.Close()

			events, err := svc.ListUnattributed(cmd.Context(), entity.UnattributedFilter{
				Status: entity.UnattributedStatus(status),
				Limit:  limit,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(events) == 0 {
				fmt.Fprintln(out, "Inbox is empty.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tACCOUNT\tHITS\tLAST SEEN\tPREVIEW")
			for _, ev := range events {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
					ev.ID, ev.ChannelType, ev.AccountExternalID, ev.HitCount,
					ev.LastSeenAt.Format("2006-01-02 15:04"), truncate(ev.TextPreview, 40))
			}
			w.Flush()
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", string(entity.UnattributedPendingReview), "pending_review or dismissed")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum events to list")
	return cmd
}

func newUnattributedDismissCmd() *cobra.Command {
	var note string

	cmd := &cobra.Command{
		Use:   "dismiss <id>",
		Short: "Mark an unattributed event as reviewed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, pool, err := connectTenants(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := svc.DismissUnattributed(cmd.Context(), actorFlag(cmd), args[0], note); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Dismissed %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&note, "note", "", "review note")
	return cmd
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
