package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	channel "github.com/vadim/neo-gateway/internal/domain/channel/entity"
	tenantservice "github.com/vadim/neo-gateway/internal/domain/tenant/service"
)

func newChannelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "channel",
		Short: "Channel account commands",
	}

	cmd.AddCommand(newChannelRegisterCmd())
	cmd.AddCommand(newChannelReassignCmd())
	cmd.AddCommand(newChannelListCmd())
	return cmd
}

func newChannelRegisterCmd() *cobra.Command {
	var (
		tenantID    string
		channelType string
		externalID  string
		displayName string
		accessToken string
	)

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a Messenger page or WhatsApp number for a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			ct, err := channel.ParseType(channelType)
			if err != nil {
				return err
			}

			svc, pool, err := connectTenants(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer pool.Close()

			acc, err := svc.RegisterChannelAccount(cmd.Context(), tenantservice.RegisterChannelAccountInput{
				Actor:       actorFlag(cmd),
				TenantID:    tenantID,
				ChannelType: ct,
				ExternalID:  externalID,
				DisplayName: displayName,
				AccessToken: accessToken,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s account %s as %s\n", acc.ChannelType, acc.ExternalID, acc.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "owning tenant id (required)")
	cmd.Flags().StringVar(&channelType, "type", "", "channel type: messenger or whatsapp (required)")
	cmd.Flags().StringVar(&externalID, "external-id", "", "page id or phone number id (required)")
	cmd.Flags().StringVar(&displayName, "name", "", "display name")
	cmd.Flags().StringVar(&accessToken, "token", "", "page or system user access token")
	cmd.MarkFlagRequired("tenant")
	cmd.MarkFlagRequired("type")
	cmd.MarkFlagRequired("external-id")
	return cmd
}

func newChannelReassignCmd() *cobra.Command {
	var (
		tenantID string
		reason   string
	)

	cmd := &cobra.Command{
		Use:   "reassign <account-id>",
		Short: "Move a channel account to another tenant",
		Long:  "Moves a channel account to another tenant. Existing conversations stay with the tenant they were recorded under.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, pool, err := connectTenants(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer pool.Close()

			acc, err := svc.ReassignChannelAccount(cmd.Context(), tenantservice.ReassignChannelAccountInput{
				Actor:     actorFlag(cmd),
				AccountID: args[0],
				TenantID:  tenantID,
				Reason:    reason,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Account %s now belongs to tenant %s\n", acc.ID, acc.TenantID)
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "new owning tenant id (required)")
	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded in the audit trail")
	cmd.MarkFlagRequired("tenant")
	return cmd
}

func newChannelListCmd() *cobra.Command {
	var tenantID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List channel accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, pool, err := connectTenants(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer pool.Close()

			accounts, err := svc.ListChannelAccounts(cmd.Context(), tenantID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(accounts) == 0 {
				fmt.Fprintln(out, "No channel accounts found.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTENANT\tTYPE\tEXTERNAL ID\tSTATE")
			for _, a := range accounts {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", a.ID, a.TenantID, a.ChannelType, a.ExternalID, a.VerificationState)
			}
			w.Flush()
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "only list accounts of this tenant")
	return cmd
}
