package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vadim/neo-gateway/internal/domain/tenant/entity"
	tenantservice "github.com/vadim/neo-gateway/internal/domain/tenant/service"
)

func newTenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Tenant management commands",
	}

	cmd.AddCommand(newTenantCreateCmd())
	cmd.AddCommand(newTenantListCmd())
	cmd.AddCommand(newTenantStatusCmd("suspend", "Suspend a tenant; its messages are stored but not answered", entity.StatusSuspended))
	cmd.AddCommand(newTenantStatusCmd("activate", "Re-activate a suspended tenant", entity.StatusActive))
	return cmd
}

func newTenantCreateCmd() *cobra.Command {
	var (
		name     string
		agents   []string
		persona  string
		fallback string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, pool, err := connectTenants(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer pool.Close()

			t, err := svc.CreateTenant(cmd.Context(), tenantservice.CreateTenantInput{
				Actor:          actorFlag(cmd),
				Name:           name,
				AgentSenderIDs: agents,
				PersonaPrompt:  persona,
				FallbackReply:  fallback,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created tenant %s (%s)\n", t.ID, t.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "tenant name (required)")
	cmd.Flags().StringSliceVar(&agents, "agent", nil, "sender id of a human agent; repeatable")
	cmd.Flags().StringVar(&persona, "persona", "", "persona prompt for generated replies")
	cmd.Flags().StringVar(&fallback, "fallback", "", "reply sent when no reply can be generated")
	cmd.MarkFlagRequired("name")
	return cmd
}

func newTenantListCmd() *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tenants",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, pool, err := connectTenants(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer pool.Close()

			tenants, err := svc.ListTenants(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}
			printTenants(cmd, tenants)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 100, "maximum tenants to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "tenants to skip")
	return cmd
}

func printTenants(cmd *cobra.Command, tenants []entity.Tenant) {
	out := cmd.OutOrStdout()
	if len(tenants) == 0 {
		fmt.Fprintln(out, "No tenants found.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tAGENTS\tCREATED")
	for _, t := range tenants {
		agents := strings.Join(t.AgentSenderIDs, ",")
		if agents == "" {
			agents = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Name, t.Status, agents, t.CreatedAt.Format("2006-01-02"))
	}
	w.Flush()
}

func newTenantStatusCmd(use, short string, status entity.Status) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   use + " <tenant-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, pool, err := connectTenants(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer pool.Close()

			t, err := svc.SetStatus(cmd.Context(), tenantservice.SetStatusInput{
				Actor:    actorFlag(cmd),
				TenantID: args[0],
				Status:   status,
				Reason:   reason,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Tenant %s is %s\n", t.ID, t.Status)
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded in the audit trail")
	return cmd
}
