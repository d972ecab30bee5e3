package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/rcourtman/paybridge/internal/plans"
	"github.com/rcourtman/paybridge/internal/server"
	"github.com/spf13/cobra"
)

const commandTimeout = 45 * time.Second

var cadencesJSON bool

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Verify gateway credentials by listing one customer",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, app *server.App) error {
			creds := app.Config.Processor.Active()
			if err := app.Billing.CheckConfig(ctx); err != nil {
				return fmt.Errorf("%s credentials rejected: %w", creds.Mode(), err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Credentials OK (mode=%s, location=%s)\n", creds.Mode(), creds.LocationID)
			return nil
		})
	},
}

var syncSubscriptionCmd = &cobra.Command{
	Use:   "sync-subscription <subscription-id>",
	Short: "Fetch a subscription from Square and apply it to its recurring contribution",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, app *server.App) error {
			if err := app.Engine.SyncSubscriptionStatus(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Subscription %s synced\n", args[0])
			return nil
		})
	},
}

var membershipPlanCmd = &cobra.Command{
	Use:   "membership-plan <membership-type-id> <plan-id>",
	Short: "Map a CRM membership type to an existing Square subscription plan",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		typeID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("membership type id must be an integer: %w", err)
		}
		return withApp(cmd.Context(), func(ctx context.Context, app *server.App) error {
			if err := app.Plans.SetMembershipPlan(ctx, typeID, args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Membership type %d now bills against plan %s\n", typeID, args[1])
			return nil
		})
	},
}

var cadencesCmd = &cobra.Command{
	Use:   "cadences",
	Short: "List the supported CRM frequencies and their Square cadences",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if cadencesJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(plans.Cadences())
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "UNIT\tSTEP\tCADENCE")
		for _, c := range plans.Cadences() {
			fmt.Fprintf(tw, "%s\t%d\t%s\n", c.Unit, c.Step, c.Cadence)
		}
		return tw.Flush()
	},
}

func init() {
	cadencesCmd.Flags().BoolVar(&cadencesJSON, "json", false, "print as JSON")
}

func withApp(parent context.Context, fn func(context.Context, *server.App) error) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(parent, commandTimeout)
	defer cancel()

	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(ctx, app)
}
